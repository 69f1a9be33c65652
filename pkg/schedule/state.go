package schedule

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// State is a complete copy of one instance's schedule.
type State struct {
	Slots     []*Slot     `json:"slots"`
	Templates []*Template `json:"templates"`
	Tasks     []*Task     `json:"tasks"`
}

// Export reads the full schedule.
func (c *Client) Export(ctx context.Context) (*State, error) {
	slots, err := c.ListSlots(ctx)
	if err != nil {
		return nil, err
	}
	templates, err := c.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}
	tasks, err := c.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	return &State{Slots: slots, Templates: templates, Tasks: tasks}, nil
}

// Import replaces the full schedule with state in a single MULTI/EXEC. If a
// slot, template or task is created while it runs, nothing is written and
// ErrConflict is returned. Callers serialize with runs by holding LockScope.
func (c *Client) Import(ctx context.Context, state *State) error {
	if state == nil {
		return fmt.Errorf("state cannot be nil")
	}
	for _, s := range state.Slots {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("slot %s: %w", s.ID, err)
		}
	}
	for _, t := range state.Templates {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("template %s: %w", t.ID, err)
		}
	}
	for _, task := range state.Tasks {
		if err := task.Validate(); err != nil {
			return fmt.Errorf("task %s: %w", task.ID, err)
		}
	}

	// Every new slot, template or task touches one of the indexes, so watching
	// them catches any commit between the read of the current keys and EXEC.
	watched := []string{
		SlotIndexKey(c.instanceName),
		TemplateIndexKey(c.instanceName),
		TaskIndexKey(c.instanceName),
	}

	err := c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := c.Export(ctx)
		if err != nil {
			return fmt.Errorf("failed to read current schedule: %w", err)
		}
		if c.importHook != nil {
			c.importHook()
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, s := range current.Slots {
				pipe.Del(ctx, SlotKey(c.instanceName, s.ID), SlotTasksKey(c.instanceName, s.ID))
			}
			for _, t := range current.Templates {
				pipe.Del(ctx, TemplateKey(c.instanceName, t.ID))
			}
			for _, task := range current.Tasks {
				pipe.Del(ctx, TaskKey(c.instanceName, task.ID))
			}
			pipe.Del(ctx, watched...)

			for _, s := range state.Slots {
				pipe.HSet(ctx, SlotKey(c.instanceName, s.ID), SlotToHash(s))
				pipe.ZAdd(ctx, SlotIndexKey(c.instanceName), redis.Z{Score: float64(s.StartMs), Member: s.ID})
			}
			for _, t := range state.Templates {
				pipe.HSet(ctx, TemplateKey(c.instanceName, t.ID), TemplateToHash(t))
				pipe.HSet(ctx, TemplateIndexKey(c.instanceName), t.Name, t.ID)
			}
			for _, task := range state.Tasks {
				pipe.HSet(ctx, TaskKey(c.instanceName, task.ID), TaskToHash(task))
				pipe.ZAdd(ctx, TaskIndexKey(c.instanceName), redis.Z{Score: float64(task.CreatedAtMs), Member: task.ID})
				pipe.SAdd(ctx, SlotTasksKey(c.instanceName, task.SlotID), task.ID)
			}
			return nil
		})
		return err
	}, watched...)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to write schedule: %w", err)
	}
	return nil
}
