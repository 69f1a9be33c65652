package claim

import "fmt"

// Type identifies the kind of fact a claim asserts.
// The set is closed: every Type has exactly one output field.
type Type string

const (
	TypeTaskInstance           Type = "task_instance"
	TypeTargetSlotID           Type = "target_slot_id"
	TypePlacementProposal      Type = "placement_proposal"
	TypeCapacityCheckResult    Type = "capacity_check_result"
	TypeRemainingCapacity      Type = "remaining_capacity"
	TypeCanFit                 Type = "can_fit"
	TypeConsistencyCheckResult Type = "consistency_check_result"
	TypeValidationErrors       Type = "validation_errors"
	TypeAlternativeSlots       Type = "alternative_slots"
	TypeReplacementProposal    Type = "replacement_proposal"
	TypeTemplateOperation      Type = "template_operation"
	TypeSlotOperation          Type = "slot_operation"
	TypeCompletionStatus       Type = "completion_status"
)

// types lists the vocabulary in canonical order. Arbitration output follows this order.
var types = []Type{
	TypeTaskInstance,
	TypeTargetSlotID,
	TypePlacementProposal,
	TypeCapacityCheckResult,
	TypeRemainingCapacity,
	TypeCanFit,
	TypeConsistencyCheckResult,
	TypeValidationErrors,
	TypeAlternativeSlots,
	TypeReplacementProposal,
	TypeTemplateOperation,
	TypeSlotOperation,
	TypeCompletionStatus,
}

// fields maps each type to the output field its winning value fills.
// Extending the vocabulary means extending both types and this table.
var fields = map[Type]string{
	TypeTaskInstance:           "task_instance",
	TypeTargetSlotID:           "target_slot_id",
	TypePlacementProposal:      "placement_proposal",
	TypeCapacityCheckResult:    "capacity_check_result",
	TypeRemainingCapacity:      "remaining_capacity",
	TypeCanFit:                 "can_fit",
	TypeConsistencyCheckResult: "consistency_check_result",
	TypeValidationErrors:       "validation_errors",
	TypeAlternativeSlots:       "alternative_slots",
	TypeReplacementProposal:    "replacement_proposal",
	TypeTemplateOperation:      "template_operation",
	TypeSlotOperation:          "slot_operation",
	TypeCompletionStatus:       "completion_status",
}

// Types returns the full vocabulary in canonical order.
func Types() []Type {
	out := make([]Type, len(types))
	copy(out, types)
	return out
}

// Field returns the output field name for t.
func (t Type) Field() (string, bool) {
	f, ok := fields[t]
	return f, ok
}

// Valid reports whether t belongs to the vocabulary.
func (t Type) Valid() bool {
	_, ok := fields[t]
	return ok
}

// Rank returns t's position in canonical order, or -1 for unknown types.
func (t Type) Rank() int {
	for i, known := range types {
		if known == t {
			return i
		}
	}
	return -1
}

// ParseType converts an identifier to a Type, rejecting anything outside the vocabulary.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown claim type %q", s)
	}
	return t, nil
}

// TypeForField returns the type whose output field is name.
func TypeForField(name string) (Type, bool) {
	for _, t := range types {
		if fields[t] == name {
			return t, true
		}
	}
	return "", false
}
