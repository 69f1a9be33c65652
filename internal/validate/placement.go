package validate

import (
	"context"
	"fmt"

	"github.com/dyluth/docket/internal/command"
	"github.com/dyluth/docket/pkg/schedule"
)

// Store is the read side of the schedule the built-in validators need.
// *schedule.Client satisfies it.
type Store interface {
	GetSlot(ctx context.Context, slotID string) (*schedule.Slot, error)
	ListSlots(ctx context.Context) ([]*schedule.Slot, error)
	GetTemplate(ctx context.Context, templateID string) (*schedule.Template, error)
	FindTemplateByName(ctx context.Context, name string) (*schedule.Template, error)
	GetTask(ctx context.Context, taskID string) (*schedule.Task, error)
	ScanTaskIDs(ctx context.Context, prefix string) ([]string, error)
	TasksInSlot(ctx context.Context, slotID string) ([]*schedule.Task, error)
}

// Placement is a place command's request read against the schedule.
type Placement struct {
	TaskName        string
	Template        *schedule.Template // nil when no template was named
	DurationMinutes int
	SlotID          string // empty when the command names no slot
}

// ReadPlacement interprets a place command. An explicit duration overrides
// the template's.
func ReadPlacement(ctx context.Context, store Store, cmd *command.Command) (*Placement, error) {
	p := &Placement{
		TaskName: cmd.String(command.KeyTask),
		SlotID:   cmd.String(command.KeySlot),
	}
	if p.TaskName == "" {
		return nil, fmt.Errorf("place requires %q", command.KeyTask)
	}

	if name := cmd.String(command.KeyTemplate); name != "" {
		template, err := store.FindTemplateByName(ctx, name)
		if err != nil {
			if schedule.IsNotFound(err) {
				return nil, fmt.Errorf("template %q does not exist", name)
			}
			return nil, fmt.Errorf("failed to look up template: %w", err)
		}
		p.Template = template
		p.DurationMinutes = template.DurationMinutes
	}

	if cmd.Has(command.KeyDuration) {
		d, err := cmd.Int(command.KeyDuration)
		if err != nil {
			return nil, err
		}
		p.DurationMinutes = d
	}

	if p.DurationMinutes <= 0 {
		if p.Template == nil && !cmd.Has(command.KeyDuration) {
			return nil, fmt.Errorf("place requires %q or %q", command.KeyTemplate, command.KeyDuration)
		}
		return nil, fmt.Errorf("duration must be > 0, got %d", p.DurationMinutes)
	}

	return p, nil
}

// DefaultSlot returns the earliest slot on the schedule, or nil when there are none.
// It is the candidate proposed when a place command names no slot.
func DefaultSlot(ctx context.Context, store Store) (*schedule.Slot, error) {
	slots, err := store.ListSlots(ctx)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return nil, nil
	}
	return slots[0], nil
}
