package schedule

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Slot is a capacity-constrained window on the schedule.
type Slot struct {
	ID              string `json:"id"`               // UUID
	Label           string `json:"label"`            // Human label, e.g. "Monday AM"
	StartMs         int64  `json:"start_ms"`         // Unix milliseconds when the slot opens
	CapacityMinutes int    `json:"capacity_minutes"` // Total minutes that may be committed
	UsedMinutes     int    `json:"used_minutes"`     // Minutes already committed by placed tasks
	CreatedAtMs     int64  `json:"created_at_ms"`
}

// RemainingMinutes returns the capacity still available in the slot.
func (s *Slot) RemainingMinutes() int {
	return s.CapacityMinutes - s.UsedMinutes
}

// CanFit reports whether a task of the given duration fits in the remaining capacity.
func (s *Slot) CanFit(durationMinutes int) bool {
	return durationMinutes <= s.RemainingMinutes()
}

// Template describes a reusable kind of task.
type Template struct {
	ID              string `json:"id"`
	Name            string `json:"name"` // Unique within an instance
	DurationMinutes int    `json:"duration_minutes"`
	CreatedAtMs     int64  `json:"created_at_ms"`
}

// Task is a template instance placed into a slot.
type Task struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	TemplateID      string     `json:"template_id"`
	SlotID          string     `json:"slot_id"`
	DurationMinutes int        `json:"duration_minutes"`
	Status          TaskStatus `json:"status"`
	CreatedAtMs     int64      `json:"created_at_ms"`
	CompletedAtMs   int64      `json:"completed_at_ms,omitempty"`
}

// TaskStatus defines the lifecycle state of a task.
type TaskStatus string

const (
	// TaskStatusScheduled indicates the task occupies capacity in its slot
	TaskStatusScheduled TaskStatus = "scheduled"

	// TaskStatusCompleted indicates the task has been marked done
	TaskStatusCompleted TaskStatus = "completed"
)

// NewSlot builds a slot with a fresh ID and creation timestamp.
func NewSlot(label string, startMs int64, capacityMinutes int) *Slot {
	return &Slot{
		ID:              uuid.New().String(),
		Label:           label,
		StartMs:         startMs,
		CapacityMinutes: capacityMinutes,
		CreatedAtMs:     time.Now().UnixMilli(),
	}
}

// NewTemplate builds a template with a fresh ID and creation timestamp.
func NewTemplate(name string, durationMinutes int) *Template {
	return &Template{
		ID:              uuid.New().String(),
		Name:            name,
		DurationMinutes: durationMinutes,
		CreatedAtMs:     time.Now().UnixMilli(),
	}
}

// NewTask builds a scheduled task with a fresh ID and creation timestamp.
func NewTask(name, templateID, slotID string, durationMinutes int) *Task {
	return &Task{
		ID:              uuid.New().String(),
		Name:            name,
		TemplateID:      templateID,
		SlotID:          slotID,
		DurationMinutes: durationMinutes,
		Status:          TaskStatusScheduled,
		CreatedAtMs:     time.Now().UnixMilli(),
	}
}

// Validate checks if the Slot has valid field values.
func (s *Slot) Validate() error {
	if !isValidUUID(s.ID) {
		return fmt.Errorf("invalid slot ID: not a valid UUID")
	}
	if s.Label == "" {
		return fmt.Errorf("slot label cannot be empty")
	}
	if s.CapacityMinutes <= 0 {
		return fmt.Errorf("invalid capacity: must be > 0, got %d", s.CapacityMinutes)
	}
	if s.UsedMinutes < 0 || s.UsedMinutes > s.CapacityMinutes {
		return fmt.Errorf("invalid used minutes: %d of %d", s.UsedMinutes, s.CapacityMinutes)
	}
	return nil
}

// Validate checks if the Template has valid field values.
func (t *Template) Validate() error {
	if !isValidUUID(t.ID) {
		return fmt.Errorf("invalid template ID: not a valid UUID")
	}
	if t.Name == "" {
		return fmt.Errorf("template name cannot be empty")
	}
	if t.DurationMinutes <= 0 {
		return fmt.Errorf("invalid duration: must be > 0, got %d", t.DurationMinutes)
	}
	return nil
}

// Validate checks if the Task has valid field values.
func (t *Task) Validate() error {
	if !isValidUUID(t.ID) {
		return fmt.Errorf("invalid task ID: not a valid UUID")
	}
	if !isValidUUID(t.SlotID) {
		return fmt.Errorf("invalid slot ID: not a valid UUID")
	}
	if t.TemplateID != "" && !isValidUUID(t.TemplateID) {
		return fmt.Errorf("invalid template ID: not a valid UUID")
	}
	if t.Name == "" {
		return fmt.Errorf("task name cannot be empty")
	}
	if t.DurationMinutes <= 0 {
		return fmt.Errorf("invalid duration: must be > 0, got %d", t.DurationMinutes)
	}
	if err := t.Status.Validate(); err != nil {
		return fmt.Errorf("invalid status: %w", err)
	}
	return nil
}

// Validate checks if the TaskStatus is a valid enum value.
func (ts TaskStatus) Validate() error {
	switch ts {
	case TaskStatusScheduled, TaskStatusCompleted:
		return nil
	default:
		return fmt.Errorf("unknown task status: %q", ts)
	}
}

// isValidUUID checks if a string is a valid UUID format.
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
