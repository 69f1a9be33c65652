// Package execute is the only code path that writes the schedule. It turns
// the approved fields of a run into one change set and commits it atomically.
package execute

import (
	"context"
	"fmt"
	"log"

	"github.com/dyluth/docket/internal/claim"
	"github.com/dyluth/docket/internal/command"
	"github.com/dyluth/docket/pkg/schedule"
)

// Store is the schedule surface the executor needs. *schedule.Client satisfies it.
type Store interface {
	Apply(ctx context.Context, cs *schedule.ChangeSet) (*schedule.Applied, error)
	Export(ctx context.Context) (*schedule.State, error)
}

// Result describes what an execution did.
type Result struct {
	Action  string            `json:"action"`
	Applied *schedule.Applied `json:"applied,omitempty"` // Set for mutating actions
	View    *schedule.State   `json:"view,omitempty"`    // Set for list
}

// requiredFields lists the output fields each mutating action consumes.
var requiredFields = map[string][]string{
	command.ActionPlace:          {"task_instance", "target_slot_id"},
	command.ActionCreateTemplate: {"template_operation"},
	command.ActionCreateSlot:     {"slot_operation"},
	command.ActionComplete:       {"completion_status"},
}

// RequiredFields returns the fields action needs filled before it can execute.
// Read-only and unknown actions need none.
func RequiredFields(action string) []string {
	return append([]string(nil), requiredFields[action]...)
}

// Mutates reports whether action writes the schedule.
func Mutates(action string) bool {
	_, ok := requiredFields[action]
	return ok
}

// Executor applies approved runs.
type Executor struct {
	store Store
}

// New creates an executor writing to store.
func New(store Store) *Executor {
	return &Executor{store: store}
}

// Execute applies the effects of action given the approved fields. Either all
// effects are committed or, on error, none are.
func (e *Executor) Execute(ctx context.Context, cmd *command.Command, fields map[string]any) (*Result, error) {
	if cmd.Action == command.ActionList {
		view, err := e.store.Export(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read schedule: %w", err)
		}
		return &Result{Action: cmd.Action, View: view}, nil
	}

	cs, err := BuildChangeSet(cmd.Action, fields)
	if err != nil {
		return nil, err
	}
	if cs.Empty() {
		return &Result{Action: cmd.Action, Applied: &schedule.Applied{}}, nil
	}

	applied, err := e.store.Apply(ctx, cs)
	if err != nil {
		return nil, fmt.Errorf("failed to apply %s: %w", cmd.Action, err)
	}

	log.Printf("[Executor] Applied %s: %d slot(s), %d template(s), %d task(s), %d completion(s)",
		cmd.Action, len(applied.Slots), len(applied.Templates), len(applied.Tasks), len(applied.Completed))

	return &Result{Action: cmd.Action, Applied: applied}, nil
}

// BuildChangeSet maps an action and its approved fields to schedule effects.
// Unknown actions map to an empty change set.
func BuildChangeSet(action string, fields map[string]any) (*schedule.ChangeSet, error) {
	switch action {
	case command.ActionPlace:
		instance, err := field[claim.TaskInstance](fields, "task_instance")
		if err != nil {
			return nil, err
		}
		slotID, err := field[string](fields, "target_slot_id")
		if err != nil {
			return nil, err
		}
		task := schedule.NewTask(instance.Name, instance.TemplateID, slotID, instance.DurationMinutes)
		return &schedule.ChangeSet{CreateTasks: []*schedule.Task{task}}, nil

	case command.ActionCreateTemplate:
		op, err := field[claim.TemplateOperation](fields, "template_operation")
		if err != nil {
			return nil, err
		}
		if op.Op != claim.OpCreate {
			return nil, fmt.Errorf("unsupported template operation %q", op.Op)
		}
		template := schedule.NewTemplate(op.Name, op.DurationMinutes)
		return &schedule.ChangeSet{CreateTemplates: []*schedule.Template{template}}, nil

	case command.ActionCreateSlot:
		op, err := field[claim.SlotOperation](fields, "slot_operation")
		if err != nil {
			return nil, err
		}
		if op.Op != claim.OpCreate {
			return nil, fmt.Errorf("unsupported slot operation %q", op.Op)
		}
		slot := schedule.NewSlot(op.Label, op.StartMs, op.CapacityMinutes)
		return &schedule.ChangeSet{CreateSlots: []*schedule.Slot{slot}}, nil

	case command.ActionComplete:
		status, err := field[claim.CompletionStatus](fields, "completion_status")
		if err != nil {
			return nil, err
		}
		return &schedule.ChangeSet{CompleteTasks: []string{status.TaskID}}, nil

	default:
		return &schedule.ChangeSet{}, nil
	}
}

// field extracts an approved value of type T (or *T).
func field[T any](fields map[string]any, name string) (T, error) {
	var zero T
	raw, ok := fields[name]
	if !ok {
		return zero, fmt.Errorf("approved field %q is missing", name)
	}
	switch v := raw.(type) {
	case T:
		return v, nil
	case *T:
		if v != nil {
			return *v, nil
		}
	}
	return zero, fmt.Errorf("approved field %q has unexpected type %T", name, raw)
}
