package producer

import (
	"context"
	"fmt"
	"time"

	"github.com/dyluth/docket/internal/arbiter"
	"github.com/dyluth/docket/internal/claim"
	"github.com/dyluth/docket/internal/command"
	"github.com/dyluth/docket/internal/resolver"
	"github.com/dyluth/docket/internal/timespec"
	"github.com/dyluth/docket/internal/validate"
	"github.com/dyluth/docket/pkg/schedule"
)

var certainEvidence = claim.Evidence{
	claim.EvidenceDomainDictionaryMatch: true,
	claim.EvidenceRuleMatch:             true,
}

// TemplateManager proposes template creation.
type TemplateManager struct{}

func NewTemplateManager() *TemplateManager { return &TemplateManager{} }

func (m *TemplateManager) Name() string { return TemplateManagerName }

func (m *TemplateManager) Process(ctx context.Context, cmd *command.Command) ([]claim.Claim, error) {
	if cmd.Action != command.ActionCreateTemplate {
		return nil, nil
	}

	duration, err := cmd.Int(command.KeyDuration)
	if err != nil {
		return nil, err
	}

	op := claim.TemplateOperation{
		Op:              claim.OpCreate,
		Name:            cmd.String(command.KeyName),
		DurationMinutes: duration,
	}
	return []claim.Claim{
		claim.New(claim.TypeTemplateOperation, TemplateManagerName, op, confidenceCertain, certainEvidence),
	}, nil
}

// SlotManager proposes slot creation. Clock times in the start field are
// read against the current day.
type SlotManager struct {
	now func() time.Time
}

// NewSlotManager creates a slot manager. A nil now uses time.Now.
func NewSlotManager(now func() time.Time) *SlotManager {
	if now == nil {
		now = time.Now
	}
	return &SlotManager{now: now}
}

func (m *SlotManager) Name() string { return SlotManagerName }

func (m *SlotManager) Process(ctx context.Context, cmd *command.Command) ([]claim.Claim, error) {
	if cmd.Action != command.ActionCreateSlot {
		return nil, nil
	}

	capacity, err := cmd.Int(command.KeyCapacity)
	if err != nil {
		return nil, err
	}

	startMs, err := timespec.Parse(cmd.String(command.KeyStart), m.now())
	if err != nil {
		return nil, fmt.Errorf("invalid %q: %w", command.KeyStart, err)
	}

	op := claim.SlotOperation{
		Op:              claim.OpCreate,
		Label:           cmd.String(command.KeyLabel),
		StartMs:         startMs,
		CapacityMinutes: capacity,
	}
	return []claim.Claim{
		claim.New(claim.TypeSlotOperation, SlotManagerName, op, confidenceCertain, certainEvidence),
	}, nil
}

// CompletionHandler proposes marking a task completed. Short task IDs are
// resolved to the full ID before the claim is made.
type CompletionHandler struct {
	store resolver.TaskLookup
}

func NewCompletionHandler(store resolver.TaskLookup) *CompletionHandler {
	return &CompletionHandler{store: store}
}

func (h *CompletionHandler) Name() string { return CompletionHandlerName }

func (h *CompletionHandler) Process(ctx context.Context, cmd *command.Command) ([]claim.Claim, error) {
	if cmd.Action != command.ActionComplete {
		return nil, nil
	}

	id, err := resolver.ResolveTaskID(ctx, h.store, cmd.String(command.KeyTaskID))
	if err != nil {
		return nil, err
	}

	status := claim.CompletionStatus{TaskID: id, Status: string(schedule.TaskStatusCompleted)}
	return []claim.Claim{
		claim.New(claim.TypeCompletionStatus, CompletionHandlerName, status, confidenceCertain, certainEvidence),
	}, nil
}

// DisplayHandler backs the read-only list action. Listing changes nothing,
// so it asserts nothing; the executor renders the schedule.
type DisplayHandler struct{}

func NewDisplayHandler() *DisplayHandler { return &DisplayHandler{} }

func (h *DisplayHandler) Name() string { return DisplayHandlerName }

func (h *DisplayHandler) Process(ctx context.Context, cmd *command.Command) ([]claim.Claim, error) {
	return nil, nil
}

// Builtins returns every built-in producer wired to store, in trigger-table order.
// The capacity and consistency validators are included because they also
// assert claims; caps decides which claims they judge when validating.
func Builtins(store validate.Store, caps arbiter.Capabilities, now func() time.Time) []Producer {
	return []Producer{
		NewPlacementProposer(store),
		validate.NewCapacityValidator(store, caps),
		validate.NewConsistencyValidator(store, caps),
		NewTemplateManager(),
		NewSlotManager(now),
		NewCompletionHandler(store),
		NewDisplayHandler(),
	}
}
