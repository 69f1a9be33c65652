package producer

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dyluth/docket/internal/arbiter"
	"github.com/dyluth/docket/internal/claim"
	"github.com/dyluth/docket/internal/command"
	"github.com/dyluth/docket/internal/validate"
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

func apply(t *testing.T, store *schedule.Client, cs *schedule.ChangeSet) {
	_, err := store.Apply(context.Background(), cs)
	require.NoError(t, err)
}

func byType(claims []claim.Claim, typ claim.Type) (claim.Claim, bool) {
	for _, c := range claims {
		if c.Type == typ {
			return c, true
		}
	}
	return claim.Claim{}, false
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(NewDisplayHandler()))
	require.NoError(t, reg.Register(NewTemplateManager()))

	err := reg.Register(NewDisplayHandler())
	assert.ErrorContains(t, err, "already registered")
	assert.Error(t, reg.Register(nil))

	p, ok := reg.Get(DisplayHandlerName)
	require.True(t, ok)
	assert.Equal(t, DisplayHandlerName, p.Name())

	_, ok = reg.Get("Nobody")
	assert.False(t, ok)

	assert.Equal(t, []string{DisplayHandlerName, TemplateManagerName}, reg.Names())
	assert.Equal(t, 2, reg.Len())
}

func TestPlacementProposer_ExplicitSlot(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	slot := schedule.NewSlot("Monday AM", 1000, 60)
	template := schedule.NewTemplate("review", 30)
	apply(t, store, &schedule.ChangeSet{CreateSlots: []*schedule.Slot{slot}, CreateTemplates: []*schedule.Template{template}})

	claims, err := NewPlacementProposer(store).Process(ctx, command.New(command.ActionPlace, map[string]any{
		"task": "weekly review", "template": "review", "slot": slot.ID,
	}))
	require.NoError(t, err)
	require.Len(t, claims, 3)

	instance, ok := byType(claims, claim.TypeTaskInstance)
	require.True(t, ok)
	assert.Equal(t, claim.TaskInstance{Name: "weekly review", TemplateID: template.ID, DurationMinutes: 30}, instance.Value)
	assert.InDelta(t, 100, arbiter.Score(instance), 1e-9)

	target, ok := byType(claims, claim.TypeTargetSlotID)
	require.True(t, ok)
	assert.Equal(t, slot.ID, target.Value)
	assert.InDelta(t, 95, arbiter.Score(target), 1e-9)

	for _, c := range claims {
		assert.Equal(t, PlacementProposerName, c.Producer)
		assert.NoError(t, c.Validate())
	}
}

func TestPlacementProposer_DefaultsToEarliestSlot(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	early := schedule.NewSlot("Early", 1000, 60)
	late := schedule.NewSlot("Late", 9000, 60)
	apply(t, store, &schedule.ChangeSet{CreateSlots: []*schedule.Slot{late, early}})

	claims, err := NewPlacementProposer(store).Process(ctx, command.New(command.ActionPlace, map[string]any{"task": "a", "duration": 10}))
	require.NoError(t, err)

	target, ok := byType(claims, claim.TypeTargetSlotID)
	require.True(t, ok)
	assert.Equal(t, early.ID, target.Value)
	assert.InDelta(t, 55, arbiter.Score(target), 1e-9)

	proposal, ok := byType(claims, claim.TypePlacementProposal)
	require.True(t, ok)
	assert.Equal(t, "earliest slot", proposal.Value.(claim.PlacementProposal).Reason)
}

func TestPlacementProposer_UnknownSlotScoresLower(t *testing.T) {
	store := setupStore(t)
	missing := schedule.NewSlot("ghost", 0, 1).ID

	claims, err := NewPlacementProposer(store).Process(context.Background(), command.New(command.ActionPlace, map[string]any{
		"task": "a", "duration": 10, "slot": missing,
	}))
	require.NoError(t, err)
	target, ok := byType(claims, claim.TypeTargetSlotID)
	require.True(t, ok)
	assert.InDelta(t, 65, arbiter.Score(target), 1e-9)
}

func TestPlacementProposer_NoSlotsProposesOnlyInstance(t *testing.T) {
	store := setupStore(t)
	claims, err := NewPlacementProposer(store).Process(context.Background(), command.New(command.ActionPlace, map[string]any{"task": "a", "duration": 10}))
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, claim.TypeTaskInstance, claims[0].Type)
}

func TestPlacementProposer_BadCommand(t *testing.T) {
	store := setupStore(t)
	_, err := NewPlacementProposer(store).Process(context.Background(), command.New(command.ActionPlace, map[string]any{"duration": 10}))
	assert.Error(t, err)

	claims, err := NewPlacementProposer(store).Process(context.Background(), command.New(command.ActionList, nil))
	require.NoError(t, err)
	assert.Empty(t, claims)
}

func TestAutoReplacementProposer(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	full := schedule.NewSlot("Full", 1000, 30)
	tooSmall := schedule.NewSlot("Small", 2000, 10)
	roomy := schedule.NewSlot("Roomy", 3000, 120)
	later := schedule.NewSlot("Later", 4000, 120)
	apply(t, store, &schedule.ChangeSet{CreateSlots: []*schedule.Slot{full, tooSmall, roomy, later}})

	results := validate.Results{Outcomes: []*validate.Outcome{{
		Validator: validate.CapacityValidatorName,
		Concern:   validate.ConcernCapacity,
		Passed:    false,
		Details:   map[string]any{"slot_id": full.ID, "required": 45},
	}}}

	cmd := command.New(command.ActionPlace, map[string]any{"task": "a", "duration": 45, "slot": full.ID})
	claims, err := NewAutoReplacementProposer(store).Propose(ctx, cmd, results)
	require.NoError(t, err)
	require.Len(t, claims, 4)

	alternatives, ok := byType(claims, claim.TypeAlternativeSlots)
	require.True(t, ok)
	assert.Equal(t, []string{roomy.ID, later.ID}, alternatives.Value)

	target, ok := byType(claims, claim.TypeTargetSlotID)
	require.True(t, ok)
	assert.Equal(t, roomy.ID, target.Value)
	assert.InDelta(t, 100, arbiter.Score(target), 1e-9)

	replacement, ok := byType(claims, claim.TypeReplacementProposal)
	require.True(t, ok)
	assert.Equal(t, full.ID, replacement.Value.(claim.ReplacementProposal).FromSlotID)
}

func TestAutoReplacementProposer_NothingFits(t *testing.T) {
	store := setupStore(t)
	apply(t, store, &schedule.ChangeSet{CreateSlots: []*schedule.Slot{schedule.NewSlot("Small", 1000, 10)}})

	cmd := command.New(command.ActionPlace, map[string]any{"task": "a", "duration": 45})
	claims, err := NewAutoReplacementProposer(store).Propose(context.Background(), cmd, validate.Results{})
	require.NoError(t, err)
	assert.Empty(t, claims)
}

func TestTemplateManager(t *testing.T) {
	claims, err := NewTemplateManager().Process(context.Background(), command.New(command.ActionCreateTemplate, map[string]any{"name": "review", "duration": "30"}))
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, claim.TemplateOperation{Op: claim.OpCreate, Name: "review", DurationMinutes: 30}, claims[0].Value)

	_, err = NewTemplateManager().Process(context.Background(), command.New(command.ActionCreateTemplate, map[string]any{"name": "review"}))
	assert.Error(t, err)
}

func TestSlotManager(t *testing.T) {
	now := func() time.Time { return time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC) }
	claims, err := NewSlotManager(now).Process(context.Background(), command.New(command.ActionCreateSlot, map[string]any{
		"label": "Monday AM", "start": "09:00", "capacity": 240,
	}))
	require.NoError(t, err)
	require.Len(t, claims, 1)

	op := claims[0].Value.(claim.SlotOperation)
	assert.Equal(t, "Monday AM", op.Label)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC).UnixMilli(), op.StartMs)
	assert.Equal(t, 240, op.CapacityMinutes)

	_, err = NewSlotManager(now).Process(context.Background(), command.New(command.ActionCreateSlot, map[string]any{"label": "x", "capacity": 10}))
	assert.ErrorContains(t, err, `invalid "start"`)
}

func TestCompletionHandler_ResolvesShortID(t *testing.T) {
	store := setupStore(t)
	slot := schedule.NewSlot("Monday AM", 1000, 60)
	task := schedule.NewTask("a", "", slot.ID, 10)
	apply(t, store, &schedule.ChangeSet{CreateSlots: []*schedule.Slot{slot}, CreateTasks: []*schedule.Task{task}})

	claims, err := NewCompletionHandler(store).Process(context.Background(), command.New(command.ActionComplete, map[string]any{"task_id": task.ID[:8]}))
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, task.ID, claims[0].Value.(claim.CompletionStatus).TaskID)
}

func TestBuiltins_UniqueNames(t *testing.T) {
	reg := NewRegistry()
	for _, p := range Builtins(setupStore(t), nil, nil) {
		require.NoError(t, reg.Register(p))
	}
	assert.Equal(t, 7, reg.Len())
}
