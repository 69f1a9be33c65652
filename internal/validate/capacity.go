package validate

import (
	"context"
	"fmt"

	"github.com/dyluth/docket/internal/arbiter"
	"github.com/dyluth/docket/internal/claim"
	"github.com/dyluth/docket/internal/command"
	"github.com/dyluth/docket/pkg/schedule"
)

// CapacityValidatorName is the identity under which the capacity validator
// registers and asserts claims.
const CapacityValidatorName = "CapacityValidator"

// CapacityValidator checks that the leading placement fits its slot.
// It is also a producer: for place commands it asserts can_fit,
// remaining_capacity and capacity_check_result for the requested slot.
type CapacityValidator struct {
	store Store
	caps  arbiter.Capabilities
}

// NewCapacityValidator creates a capacity validator reading from store.
// Only claims caps authorizes can lead; a nil caps judges every claim.
func NewCapacityValidator(store Store, caps arbiter.Capabilities) *CapacityValidator {
	return &CapacityValidator{store: store, caps: caps}
}

func (v *CapacityValidator) Name() string     { return CapacityValidatorName }
func (v *CapacityValidator) Concern() Concern { return ConcernCapacity }

// Validate judges the authorized front-running target_slot_id against the
// authorized front-running task_instance duration. Actions other than place always pass.
func (v *CapacityValidator) Validate(ctx context.Context, claims []claim.Claim, cmd *command.Command) (*Outcome, error) {
	if cmd.Action != command.ActionPlace {
		return &Outcome{Passed: true, Details: map[string]any{"applicable": false}}, nil
	}

	target, ok := leading(claims, v.caps, claim.TypeTargetSlotID)
	slotID, _ := target.Value.(string)
	if !ok || slotID == "" {
		return &Outcome{Passed: false, Violations: []string{"no target slot proposed"}}, nil
	}

	instance, ok := leadingValue[claim.TaskInstance](claims, v.caps, claim.TypeTaskInstance)
	if !ok {
		return &Outcome{
			Passed:   true,
			Warnings: []string{"no task instance proposed; nothing to fit"},
			Details:  map[string]any{"slot_id": slotID},
		}, nil
	}

	details := map[string]any{
		"slot_id":  slotID,
		"required": instance.DurationMinutes,
	}

	slot, err := v.store.GetSlot(ctx, slotID)
	if err != nil {
		if schedule.IsNotFound(err) {
			return &Outcome{
				Passed:     false,
				Violations: []string{fmt.Sprintf("target slot %s does not exist", slotID)},
				Details:    details,
			}, nil
		}
		return nil, fmt.Errorf("failed to read slot: %w", err)
	}

	details["remaining"] = slot.RemainingMinutes()
	details["capacity"] = slot.CapacityMinutes

	if !slot.CanFit(instance.DurationMinutes) {
		return &Outcome{
			Passed: false,
			Violations: []string{fmt.Sprintf("slot %q has %d minutes left, task needs %d",
				slot.Label, slot.RemainingMinutes(), instance.DurationMinutes)},
			Details: details,
		}, nil
	}

	return &Outcome{Passed: true, Details: details}, nil
}

// Process asserts the capacity facts for the slot a place command targets:
// the named slot, or the earliest slot when none is named.
// Commands it cannot interpret yield no claims; consistency reports those.
func (v *CapacityValidator) Process(ctx context.Context, cmd *command.Command) ([]claim.Claim, error) {
	if cmd.Action != command.ActionPlace {
		return nil, nil
	}

	placement, err := ReadPlacement(ctx, v.store, cmd)
	if err != nil {
		return nil, nil
	}

	var slot *schedule.Slot
	if placement.SlotID != "" {
		slot, err = v.store.GetSlot(ctx, placement.SlotID)
		if err != nil && !schedule.IsNotFound(err) {
			return nil, fmt.Errorf("failed to read slot: %w", err)
		}
	} else {
		slot, err = DefaultSlot(ctx, v.store)
		if err != nil {
			return nil, fmt.Errorf("failed to list slots: %w", err)
		}
	}

	evidence := claim.Evidence{claim.EvidenceRuleMatch: true}

	if slot == nil {
		result := map[string]any{"can_fit": false, "required": placement.DurationMinutes, "reason": "no slot available"}
		return []claim.Claim{
			claim.New(claim.TypeCanFit, CapacityValidatorName, false, 1.0, evidence),
			claim.New(claim.TypeCapacityCheckResult, CapacityValidatorName, result, 1.0, evidence),
		}, nil
	}

	fits := slot.CanFit(placement.DurationMinutes)
	result := map[string]any{
		"slot_id":   slot.ID,
		"can_fit":   fits,
		"required":  placement.DurationMinutes,
		"remaining": slot.RemainingMinutes(),
	}
	return []claim.Claim{
		claim.New(claim.TypeCanFit, CapacityValidatorName, fits, 1.0, evidence),
		claim.New(claim.TypeRemainingCapacity, CapacityValidatorName, slot.RemainingMinutes(), 1.0, evidence),
		claim.New(claim.TypeCapacityCheckResult, CapacityValidatorName, result, 1.0, evidence),
	}, nil
}
