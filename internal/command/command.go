// Package command defines the request a run processes.
package command

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Actions understood by the built-in trigger table.
const (
	ActionPlace          = "place"
	ActionCreateTemplate = "create_template"
	ActionCreateSlot     = "create_slot"
	ActionComplete       = "complete"
	ActionList           = "list"
)

// Payload keys read by the built-in producers and validators.
const (
	KeyTask     = "task"     // place: task name
	KeyTemplate = "template" // place: template name
	KeyDuration = "duration" // place, create_template: minutes
	KeySlot     = "slot"     // place: slot ID
	KeyName     = "name"     // create_template
	KeyLabel    = "label"    // create_slot
	KeyStart    = "start"    // create_slot: RFC3339, HH:MM or +offset
	KeyCapacity = "capacity" // create_slot: minutes
	KeyTaskID   = "task_id"  // complete: full or short task ID
)

// Command is an action plus a free-form payload.
// No phase of a run modifies a command; producers receive clones.
type Command struct {
	ID      string         `json:"id"`
	Action  string         `json:"action"`
	Payload map[string]any `json:"payload,omitempty"`
}

// New builds a command with a fresh ID. The payload is deep-copied.
func New(action string, payload map[string]any) *Command {
	return &Command{
		ID:      uuid.New().String(),
		Action:  action,
		Payload: copyMap(payload),
	}
}

// Clone returns a deep copy of the command.
func (c *Command) Clone() *Command {
	return &Command{ID: c.ID, Action: c.Action, Payload: copyMap(c.Payload)}
}

// Has reports whether the payload carries key.
func (c *Command) Has(key string) bool {
	_, ok := c.Payload[key]
	return ok
}

// String returns the payload value for key formatted as a string.
func (c *Command) String(key string) string {
	v, ok := c.Payload[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Int returns the payload value for key as an int. Strings are parsed;
// floats are accepted only when integral.
func (c *Command) Int(key string) (int, error) {
	v, ok := c.Payload[key]
	if !ok {
		return 0, fmt.Errorf("missing %q", key)
	}

	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("%q must be a whole number, got %v", key, n)
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("%q must be an integer: %w", key, err)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("%q has unsupported type %T", key, v)
	}
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
