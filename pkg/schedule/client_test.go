package schedule

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client, err := NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func seedSlot(t *testing.T, client *Client, label string, capacity int) *Slot {
	slot := NewSlot(label, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC).UnixMilli(), capacity)
	_, err := client.Apply(context.Background(), &ChangeSet{CreateSlots: []*Slot{slot}})
	require.NoError(t, err)
	return slot
}

func TestNewClient_RequiresInstanceName(t *testing.T) {
	_, err := NewClient(&redis.Options{Addr: "localhost:0"}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "instance name cannot be empty")
}

func TestApply_CreateSlotAndTemplate(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	slot := NewSlot("Monday AM", 1000, 240)
	tmpl := NewTemplate("review", 45)

	applied, err := client.Apply(ctx, &ChangeSet{
		CreateSlots:     []*Slot{slot},
		CreateTemplates: []*Template{tmpl},
	})
	require.NoError(t, err)
	assert.Len(t, applied.Slots, 1)
	assert.Len(t, applied.Templates, 1)

	got, err := client.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, "Monday AM", got.Label)
	assert.Equal(t, 240, got.CapacityMinutes)
	assert.Equal(t, 0, got.UsedMinutes)

	byName, err := client.FindTemplateByName(ctx, "review")
	require.NoError(t, err)
	assert.Equal(t, tmpl.ID, byName.ID)
	assert.Equal(t, 45, byName.DurationMinutes)
}

func TestApply_EmptyChangeSetIsNoop(t *testing.T) {
	client, mr := setupTestClient(t)

	applied, err := client.Apply(context.Background(), &ChangeSet{})
	require.NoError(t, err)
	assert.NotNil(t, applied)
	assert.Empty(t, mr.Keys())
}

func TestApply_PlaceTaskConsumesCapacity(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()
	slot := seedSlot(t, client, "Monday AM", 60)

	task := NewTask("write report", "", slot.ID, 40)
	applied, err := client.Apply(ctx, &ChangeSet{CreateTasks: []*Task{task}})
	require.NoError(t, err)
	require.Len(t, applied.Touched, 1)
	assert.Equal(t, 40, applied.Touched[0].UsedMinutes)

	got, err := client.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, got.UsedMinutes)
	assert.Equal(t, 20, got.RemainingMinutes())

	inSlot, err := client.TasksInSlot(ctx, slot.ID)
	require.NoError(t, err)
	require.Len(t, inSlot, 1)
	assert.Equal(t, task.ID, inSlot[0].ID)
	assert.Equal(t, TaskStatusScheduled, inSlot[0].Status)
}

func TestApply_CapacityExceededLeavesStateUntouched(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()
	slot := seedSlot(t, client, "Monday AM", 60)

	// The first task fits on its own; together they do not.
	first := NewTask("a", "", slot.ID, 30)
	second := NewTask("b", "", slot.ID, 31)

	_, err := client.Apply(ctx, &ChangeSet{CreateTasks: []*Task{first, second}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCapacityExceeded))

	got, err := client.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.UsedMinutes)

	tasks, err := client.ListTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestApply_TaskIntoSlotCreatedInSameChangeSet(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	slot := NewSlot("Tuesday", 2000, 90)
	task := NewTask("standup", "", slot.ID, 15)

	_, err := client.Apply(ctx, &ChangeSet{CreateSlots: []*Slot{slot}, CreateTasks: []*Task{task}})
	require.NoError(t, err)

	got, err := client.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, got.UsedMinutes)
}

func TestApply_MissingSlot(t *testing.T) {
	client, _ := setupTestClient(t)

	task := NewTask("orphan", "", NewSlot("x", 0, 10).ID, 5)
	_, err := client.Apply(context.Background(), &ChangeSet{CreateTasks: []*Task{task}})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestApply_DuplicateTemplateName(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	_, err := client.Apply(ctx, &ChangeSet{CreateTemplates: []*Template{NewTemplate("review", 30)}})
	require.NoError(t, err)

	_, err = client.Apply(ctx, &ChangeSet{CreateTemplates: []*Template{NewTemplate("review", 60)}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateTemplate))

	templates, err := client.ListTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, 30, templates[0].DurationMinutes)
}

func TestApply_CompleteTask(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()
	slot := seedSlot(t, client, "Monday AM", 60)

	task := NewTask("a", "", slot.ID, 30)
	_, err := client.Apply(ctx, &ChangeSet{CreateTasks: []*Task{task}})
	require.NoError(t, err)

	applied, err := client.Apply(ctx, &ChangeSet{CompleteTasks: []string{task.ID}})
	require.NoError(t, err)
	require.Len(t, applied.Completed, 1)

	got, err := client.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusCompleted, got.Status)
	assert.NotZero(t, got.CompletedAtMs)

	_, err = client.Apply(ctx, &ChangeSet{CompleteTasks: []string{task.ID}})
	assert.True(t, errors.Is(err, ErrAlreadyCompleted))
}

func TestApply_InvalidChangeSet(t *testing.T) {
	client, _ := setupTestClient(t)

	_, err := client.Apply(context.Background(), &ChangeSet{CreateSlots: []*Slot{NewSlot("", 0, 10)}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid change set")
}

func TestLock_ExcludesSecondHolder(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	release, err := client.Lock(ctx, "slot-a", time.Second)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = client.Lock(waitCtx, "slot-a", time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	// Other scopes are independent.
	releaseB, err := client.Lock(ctx, "slot-b", time.Second)
	require.NoError(t, err)
	releaseB()

	release()
	release()

	again, err := client.Lock(ctx, "slot-a", time.Second)
	require.NoError(t, err)
	again()
}

func TestLock_ExpiredHolderCannotReleaseNewHolder(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	stale, err := client.Lock(ctx, "slot-a", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := client.Lock(ctx, "slot-a", time.Second)
	require.NoError(t, err)

	stale()
	assert.True(t, mr.Exists(LockKey("test-instance", "slot-a")))

	fresh()
	assert.False(t, mr.Exists(LockKey("test-instance", "slot-a")))
}

func TestExportImport(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()
	slot := seedSlot(t, client, "Monday AM", 60)
	_, err := client.Apply(ctx, &ChangeSet{
		CreateTemplates: []*Template{NewTemplate("review", 30)},
		CreateTasks:     []*Task{NewTask("a", "", slot.ID, 30)},
	})
	require.NoError(t, err)

	saved, err := client.Export(ctx)
	require.NoError(t, err)

	// Diverge, then restore.
	_, err = client.Apply(ctx, &ChangeSet{CreateSlots: []*Slot{NewSlot("extra", 5000, 10)}})
	require.NoError(t, err)
	require.NoError(t, client.Import(ctx, saved))

	restored, err := client.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved, restored)

	inSlot, err := client.TasksInSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Len(t, inSlot, 1)
}

func TestImport_ConcurrentCreateLeavesNoOrphans(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()
	slot := seedSlot(t, client, "Monday AM", 120)
	_, err := client.Apply(ctx, &ChangeSet{CreateTasks: []*Task{NewTask("a", "", slot.ID, 30)}})
	require.NoError(t, err)

	saved, err := client.Export(ctx)
	require.NoError(t, err)

	late := NewTask("late", "", slot.ID, 15)
	client.importHook = func() {
		client.importHook = nil
		_, err := client.Apply(ctx, &ChangeSet{CreateTasks: []*Task{late}})
		require.NoError(t, err)
	}

	err = client.Import(ctx, saved)
	require.ErrorIs(t, err, ErrConflict)

	// The competing commit survives intact.
	got, err := client.GetTask(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, "late", got.Name)

	require.NoError(t, client.Import(ctx, saved))

	restored, err := client.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved, restored)

	indexed, err := mr.ZMembers(TaskIndexKey("test-instance"))
	require.NoError(t, err)
	for _, key := range mr.Keys() {
		if id, ok := strings.CutPrefix(key, "docket:test-instance:task:"); ok {
			assert.Contains(t, indexed, id, "task hash %s has no index entry", key)
		}
	}
	assert.False(t, mr.Exists(TaskKey("test-instance", late.ID)))
}

func TestSubscribeScheduleEvents(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	sub, err := client.SubscribeScheduleEvents(ctx)
	require.NoError(t, err)
	defer sub.Close()

	slot := seedSlot(t, client, "Monday AM", 60)

	select {
	case event := <-sub.Events():
		require.NotNil(t, event.Applied)
		require.Len(t, event.Applied.Slots, 1)
		assert.Equal(t, slot.ID, event.Applied.Slots[0].ID)
		assert.Equal(t, "test-instance", event.Instance)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for schedule event")
	}
}
