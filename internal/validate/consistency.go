package validate

import (
	"context"
	"fmt"

	"github.com/dyluth/docket/internal/arbiter"
	"github.com/dyluth/docket/internal/claim"
	"github.com/dyluth/docket/internal/command"
	"github.com/dyluth/docket/internal/resolver"
	"github.com/dyluth/docket/pkg/schedule"
)

// ConsistencyValidatorName is the identity under which the consistency
// validator registers and asserts claims.
const ConsistencyValidatorName = "ConsistencyValidator"

// ConsistencyValidator checks that the front-running proposals of a run agree
// with the schedule: referenced entities exist, names are unique, and values
// are in range. As a producer it asserts consistency_check_result and
// validation_errors for the command as issued.
type ConsistencyValidator struct {
	store Store
	caps  arbiter.Capabilities
}

// NewConsistencyValidator creates a consistency validator reading from store.
// Only claims caps authorizes can lead; a nil caps judges every claim.
func NewConsistencyValidator(store Store, caps arbiter.Capabilities) *ConsistencyValidator {
	return &ConsistencyValidator{store: store, caps: caps}
}

func (v *ConsistencyValidator) Name() string     { return ConsistencyValidatorName }
func (v *ConsistencyValidator) Concern() Concern { return ConcernConsistency }

// Validate checks the leading claim of the type each action depends on.
func (v *ConsistencyValidator) Validate(ctx context.Context, claims []claim.Claim, cmd *command.Command) (*Outcome, error) {
	var (
		violations []string
		err        error
	)

	switch cmd.Action {
	case command.ActionPlace:
		instance, ok := leadingValue[claim.TaskInstance](claims, v.caps, claim.TypeTaskInstance)
		if !ok {
			violations = []string{"no task instance proposed"}
			break
		}
		slotID := ""
		if target, ok := leading(claims, v.caps, claim.TypeTargetSlotID); ok {
			slotID, _ = target.Value.(string)
		}
		violations, err = v.checkTask(ctx, instance, slotID)

	case command.ActionCreateTemplate:
		op, ok := leadingValue[claim.TemplateOperation](claims, v.caps, claim.TypeTemplateOperation)
		if !ok {
			violations = []string{"no template operation proposed"}
			break
		}
		violations, err = v.checkTemplate(ctx, op)

	case command.ActionCreateSlot:
		op, ok := leadingValue[claim.SlotOperation](claims, v.caps, claim.TypeSlotOperation)
		if !ok {
			violations = []string{"no slot operation proposed"}
			break
		}
		violations, err = v.checkSlot(ctx, op)

	case command.ActionComplete:
		status, ok := leadingValue[claim.CompletionStatus](claims, v.caps, claim.TypeCompletionStatus)
		if !ok {
			violations = []string{"no completion proposed"}
			break
		}
		violations, err = v.checkCompletion(ctx, status.TaskID)

	default:
		return &Outcome{Passed: true, Details: map[string]any{"applicable": false}}, nil
	}

	if err != nil {
		return nil, err
	}
	return &Outcome{Passed: len(violations) == 0, Violations: violations}, nil
}

// Process checks the command as issued, before any arbitration.
func (v *ConsistencyValidator) Process(ctx context.Context, cmd *command.Command) ([]claim.Claim, error) {
	var (
		violations []string
		err        error
	)

	switch cmd.Action {
	case command.ActionPlace:
		placement, perr := ReadPlacement(ctx, v.store, cmd)
		if perr != nil {
			violations = []string{perr.Error()}
			break
		}
		instance := claim.TaskInstance{Name: placement.TaskName, DurationMinutes: placement.DurationMinutes}
		if placement.Template != nil {
			instance.TemplateID = placement.Template.ID
		}
		violations, err = v.checkTask(ctx, instance, placement.SlotID)

	case command.ActionCreateTemplate:
		duration, derr := cmd.Int(command.KeyDuration)
		if derr != nil {
			violations = []string{derr.Error()}
			break
		}
		violations, err = v.checkTemplate(ctx, claim.TemplateOperation{
			Op:              claim.OpCreate,
			Name:            cmd.String(command.KeyName),
			DurationMinutes: duration,
		})

	case command.ActionCreateSlot:
		capacity, cerr := cmd.Int(command.KeyCapacity)
		if cerr != nil {
			violations = []string{cerr.Error()}
			break
		}
		if cmd.String(command.KeyLabel) == "" {
			violations = []string{"slot label cannot be empty"}
		}
		if capacity <= 0 {
			violations = append(violations, fmt.Sprintf("capacity must be > 0, got %d", capacity))
		}

	case command.ActionComplete:
		id, rerr := resolver.ResolveTaskID(ctx, v.store, cmd.String(command.KeyTaskID))
		if rerr != nil {
			violations = []string{rerr.Error()}
			break
		}
		violations, err = v.checkCompletion(ctx, id)

	default:
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	evidence := claim.Evidence{claim.EvidenceRuleMatch: true}
	if violations == nil {
		violations = []string{}
	}
	result := map[string]any{
		"action": cmd.Action,
		"passed": len(violations) == 0,
	}
	return []claim.Claim{
		claim.New(claim.TypeConsistencyCheckResult, ConsistencyValidatorName, result, 1.0, evidence),
		claim.New(claim.TypeValidationErrors, ConsistencyValidatorName, violations, 1.0, evidence),
	}, nil
}

func (v *ConsistencyValidator) checkTask(ctx context.Context, instance claim.TaskInstance, slotID string) ([]string, error) {
	var violations []string
	if instance.Name == "" {
		violations = append(violations, "task name cannot be empty")
	}
	if instance.DurationMinutes <= 0 {
		violations = append(violations, fmt.Sprintf("task duration must be > 0, got %d", instance.DurationMinutes))
	}

	if instance.TemplateID != "" {
		if _, err := v.store.GetTemplate(ctx, instance.TemplateID); err != nil {
			if !schedule.IsNotFound(err) {
				return nil, fmt.Errorf("failed to read template: %w", err)
			}
			violations = append(violations, fmt.Sprintf("template %s does not exist", instance.TemplateID))
		}
	}

	// A missing slot is a capacity failure and may be repaired by replacement.
	if slotID != "" && instance.Name != "" {
		tasks, err := v.store.TasksInSlot(ctx, slotID)
		if err != nil {
			return nil, fmt.Errorf("failed to read slot tasks: %w", err)
		}
		for _, task := range tasks {
			if task.Name == instance.Name && task.Status == schedule.TaskStatusScheduled {
				violations = append(violations, fmt.Sprintf("task %q is already scheduled in this slot", instance.Name))
				break
			}
		}
	}

	return violations, nil
}

func (v *ConsistencyValidator) checkTemplate(ctx context.Context, op claim.TemplateOperation) ([]string, error) {
	var violations []string
	if op.Op != claim.OpCreate {
		violations = append(violations, fmt.Sprintf("unsupported template operation %q", op.Op))
	}
	if op.Name == "" {
		violations = append(violations, "template name cannot be empty")
	}
	if op.DurationMinutes <= 0 {
		violations = append(violations, fmt.Sprintf("template duration must be > 0, got %d", op.DurationMinutes))
	}

	if op.Name != "" {
		_, err := v.store.FindTemplateByName(ctx, op.Name)
		switch {
		case err == nil:
			violations = append(violations, fmt.Sprintf("template %q already exists", op.Name))
		case !schedule.IsNotFound(err):
			return nil, fmt.Errorf("failed to look up template: %w", err)
		}
	}

	return violations, nil
}

func (v *ConsistencyValidator) checkSlot(ctx context.Context, op claim.SlotOperation) ([]string, error) {
	var violations []string
	if op.Op != claim.OpCreate {
		violations = append(violations, fmt.Sprintf("unsupported slot operation %q", op.Op))
	}
	if op.Label == "" {
		violations = append(violations, "slot label cannot be empty")
	}
	if op.CapacityMinutes <= 0 {
		violations = append(violations, fmt.Sprintf("capacity must be > 0, got %d", op.CapacityMinutes))
	}

	slots, err := v.store.ListSlots(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}
	for _, s := range slots {
		if s.Label == op.Label && s.StartMs == op.StartMs {
			violations = append(violations, fmt.Sprintf("slot %q already exists at that start", op.Label))
			break
		}
	}

	return violations, nil
}

func (v *ConsistencyValidator) checkCompletion(ctx context.Context, taskID string) ([]string, error) {
	task, err := v.store.GetTask(ctx, taskID)
	if err != nil {
		if schedule.IsNotFound(err) {
			return []string{fmt.Sprintf("task %s does not exist", taskID)}, nil
		}
		return nil, fmt.Errorf("failed to read task: %w", err)
	}
	if task.Status != schedule.TaskStatusScheduled {
		return []string{fmt.Sprintf("task %q is already %s", task.Name, task.Status)}, nil
	}
	return nil, nil
}

// leading returns the claim Arbitrate would select for t under caps.
func leading(claims []claim.Claim, caps arbiter.Capabilities, t claim.Type) (claim.Claim, bool) {
	if caps == nil {
		return arbiter.Leading(claims, t)
	}
	return arbiter.LeadingAuthorized(claims, caps, t)
}

// leadingValue returns the front-running claim value of type t as T.
// Both T and *T values are accepted.
func leadingValue[T any](claims []claim.Claim, caps arbiter.Capabilities, t claim.Type) (T, bool) {
	var zero T
	c, ok := leading(claims, caps, t)
	if !ok {
		return zero, false
	}
	switch v := c.Value.(type) {
	case T:
		return v, true
	case *T:
		if v != nil {
			return *v, true
		}
	}
	return zero, false
}
