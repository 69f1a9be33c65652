package schedule

import (
	"fmt"
	"strconv"
)

// Serialization helpers for converting between Go structs and Redis hashes
//
// Every schedule entity is flat, so each field maps to exactly one hash field.
// Numeric fields are stored as decimal strings; HIncrBy on used_minutes relies on that.

// SlotToHash converts a Slot to a Redis hash.
func SlotToHash(s *Slot) map[string]interface{} {
	return map[string]interface{}{
		"id":               s.ID,
		"label":            s.Label,
		"start_ms":         s.StartMs,
		"capacity_minutes": s.CapacityMinutes,
		"used_minutes":     s.UsedMinutes,
		"created_at_ms":    s.CreatedAtMs,
	}
}

// HashToSlot converts a Redis hash to a Slot.
func HashToSlot(hash map[string]string) (*Slot, error) {
	capacity, err := strconv.Atoi(hash["capacity_minutes"])
	if err != nil {
		return nil, fmt.Errorf("invalid capacity_minutes field: %w", err)
	}

	used, err := strconv.Atoi(hash["used_minutes"])
	if err != nil {
		return nil, fmt.Errorf("invalid used_minutes field: %w", err)
	}

	startMs, err := strconv.ParseInt(hash["start_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid start_ms field: %w", err)
	}

	createdAtMs, _ := strconv.ParseInt(hash["created_at_ms"], 10, 64)

	return &Slot{
		ID:              hash["id"],
		Label:           hash["label"],
		StartMs:         startMs,
		CapacityMinutes: capacity,
		UsedMinutes:     used,
		CreatedAtMs:     createdAtMs,
	}, nil
}

// TemplateToHash converts a Template to a Redis hash.
func TemplateToHash(t *Template) map[string]interface{} {
	return map[string]interface{}{
		"id":               t.ID,
		"name":             t.Name,
		"duration_minutes": t.DurationMinutes,
		"created_at_ms":    t.CreatedAtMs,
	}
}

// HashToTemplate converts a Redis hash to a Template.
func HashToTemplate(hash map[string]string) (*Template, error) {
	duration, err := strconv.Atoi(hash["duration_minutes"])
	if err != nil {
		return nil, fmt.Errorf("invalid duration_minutes field: %w", err)
	}

	createdAtMs, _ := strconv.ParseInt(hash["created_at_ms"], 10, 64)

	return &Template{
		ID:              hash["id"],
		Name:            hash["name"],
		DurationMinutes: duration,
		CreatedAtMs:     createdAtMs,
	}, nil
}

// TaskToHash converts a Task to a Redis hash.
func TaskToHash(t *Task) map[string]interface{} {
	return map[string]interface{}{
		"id":               t.ID,
		"name":             t.Name,
		"template_id":      t.TemplateID,
		"slot_id":          t.SlotID,
		"duration_minutes": t.DurationMinutes,
		"status":           string(t.Status),
		"created_at_ms":    t.CreatedAtMs,
		"completed_at_ms":  t.CompletedAtMs,
	}
}

// HashToTask converts a Redis hash to a Task.
func HashToTask(hash map[string]string) (*Task, error) {
	duration, err := strconv.Atoi(hash["duration_minutes"])
	if err != nil {
		return nil, fmt.Errorf("invalid duration_minutes field: %w", err)
	}

	createdAtMs, _ := strconv.ParseInt(hash["created_at_ms"], 10, 64)
	completedAtMs, _ := strconv.ParseInt(hash["completed_at_ms"], 10, 64)

	return &Task{
		ID:              hash["id"],
		Name:            hash["name"],
		TemplateID:      hash["template_id"],
		SlotID:          hash["slot_id"],
		DurationMinutes: duration,
		Status:          TaskStatus(hash["status"]),
		CreatedAtMs:     createdAtMs,
		CompletedAtMs:   completedAtMs,
	}, nil
}
