package execute

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/docket/internal/claim"
	"github.com/dyluth/docket/internal/command"
	"github.com/dyluth/docket/pkg/schedule"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) *schedule.Client {
	mr := miniredis.RunT(t)
	client, err := schedule.NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRequiredFields(t *testing.T) {
	assert.Equal(t, []string{"task_instance", "target_slot_id"}, RequiredFields(command.ActionPlace))
	assert.Empty(t, RequiredFields(command.ActionList))
	assert.Empty(t, RequiredFields("unknown"))

	assert.True(t, Mutates(command.ActionComplete))
	assert.False(t, Mutates(command.ActionList))

	fields := RequiredFields(command.ActionPlace)
	fields[0] = "mutated"
	assert.Equal(t, "task_instance", RequiredFields(command.ActionPlace)[0])
}

func TestExecute_Place(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	slot := schedule.NewSlot("Monday AM", 1000, 60)
	_, err := store.Apply(ctx, &schedule.ChangeSet{CreateSlots: []*schedule.Slot{slot}})
	require.NoError(t, err)

	result, err := New(store).Execute(ctx, command.New(command.ActionPlace, nil), map[string]any{
		"task_instance":  claim.TaskInstance{Name: "report", DurationMinutes: 40},
		"target_slot_id": slot.ID,
		"can_fit":        true,
	})
	require.NoError(t, err)
	require.Len(t, result.Applied.Tasks, 1)
	assert.Equal(t, "report", result.Applied.Tasks[0].Name)

	got, err := store.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, got.UsedMinutes)
}

func TestExecute_PlaceOverCapacityWritesNothing(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	slot := schedule.NewSlot("Monday AM", 1000, 30)
	_, err := store.Apply(ctx, &schedule.ChangeSet{CreateSlots: []*schedule.Slot{slot}})
	require.NoError(t, err)

	_, err = New(store).Execute(ctx, command.New(command.ActionPlace, nil), map[string]any{
		"task_instance":  claim.TaskInstance{Name: "report", DurationMinutes: 40},
		"target_slot_id": slot.ID,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, schedule.ErrCapacityExceeded))

	tasks, err := store.ListTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestExecute_CreateAndComplete(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	exec := New(store)

	result, err := exec.Execute(ctx, command.New(command.ActionCreateSlot, nil), map[string]any{
		"slot_operation": &claim.SlotOperation{Op: claim.OpCreate, Label: "Tuesday", StartMs: 5000, CapacityMinutes: 90},
	})
	require.NoError(t, err)
	require.Len(t, result.Applied.Slots, 1)
	slotID := result.Applied.Slots[0].ID

	_, err = exec.Execute(ctx, command.New(command.ActionCreateTemplate, nil), map[string]any{
		"template_operation": claim.TemplateOperation{Op: claim.OpCreate, Name: "review", DurationMinutes: 30},
	})
	require.NoError(t, err)

	placed, err := exec.Execute(ctx, command.New(command.ActionPlace, nil), map[string]any{
		"task_instance":  claim.TaskInstance{Name: "r", DurationMinutes: 30},
		"target_slot_id": slotID,
	})
	require.NoError(t, err)
	taskID := placed.Applied.Tasks[0].ID

	done, err := exec.Execute(ctx, command.New(command.ActionComplete, nil), map[string]any{
		"completion_status": claim.CompletionStatus{TaskID: taskID, Status: "completed"},
	})
	require.NoError(t, err)
	require.Len(t, done.Applied.Completed, 1)

	view, err := exec.Execute(ctx, command.New(command.ActionList, nil), nil)
	require.NoError(t, err)
	require.NotNil(t, view.View)
	assert.Len(t, view.View.Slots, 1)
	assert.Len(t, view.View.Templates, 1)
	assert.Len(t, view.View.Tasks, 1)
}

func TestBuildChangeSet_Errors(t *testing.T) {
	_, err := BuildChangeSet(command.ActionPlace, map[string]any{"target_slot_id": "x"})
	assert.ErrorContains(t, err, `"task_instance" is missing`)

	_, err = BuildChangeSet(command.ActionPlace, map[string]any{
		"task_instance":  "not a task",
		"target_slot_id": "x",
	})
	assert.ErrorContains(t, err, "unexpected type")

	_, err = BuildChangeSet(command.ActionCreateSlot, map[string]any{
		"slot_operation": claim.SlotOperation{Op: "delete"},
	})
	assert.ErrorContains(t, err, "unsupported slot operation")

	cs, err := BuildChangeSet("unknown", nil)
	require.NoError(t, err)
	assert.True(t, cs.Empty())
}
