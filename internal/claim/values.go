package claim

// Typed values carried by claims. The executor and validators type-assert
// Claim.Value against these; producers outside this repo may use them too.

// TaskInstance describes the task a place command would create.
type TaskInstance struct {
	Name            string `json:"name"`
	TemplateID      string `json:"template_id,omitempty"`
	DurationMinutes int    `json:"duration_minutes"`
}

// PlacementProposal pairs a task with the slot it should go into.
type PlacementProposal struct {
	TaskName        string `json:"task_name"`
	SlotID          string `json:"slot_id"`
	DurationMinutes int    `json:"duration_minutes"`
	Reason          string `json:"reason,omitempty"`
}

// Operation kinds for template and slot operations.
const (
	OpCreate = "create"
)

// TemplateOperation describes a template mutation.
type TemplateOperation struct {
	Op              string `json:"op"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
}

// SlotOperation describes a slot mutation.
type SlotOperation struct {
	Op              string `json:"op"`
	Label           string `json:"label"`
	StartMs         int64  `json:"start_ms"`
	CapacityMinutes int    `json:"capacity_minutes"`
}

// CompletionStatus marks a task done.
type CompletionStatus struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// ReplacementProposal moves a placement from a full slot to one with room.
type ReplacementProposal struct {
	FromSlotID string `json:"from_slot_id"`
	ToSlotID   string `json:"to_slot_id"`
	Reason     string `json:"reason"`
}
