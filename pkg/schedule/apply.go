package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCapacityExceeded is returned when a change set would push a slot past its capacity.
	ErrCapacityExceeded = errors.New("slot capacity exceeded")

	// ErrConflict is returned when a watched key changed between read and commit.
	ErrConflict = errors.New("concurrent schedule modification")

	// ErrDuplicateTemplate is returned when a template name is already taken.
	ErrDuplicateTemplate = errors.New("template name already exists")

	// ErrAlreadyCompleted is returned when completing a task that is not scheduled.
	ErrAlreadyCompleted = errors.New("task already completed")
)

// ChangeSet is the complete set of effects one approved run applies.
// Apply commits all of it or none of it.
type ChangeSet struct {
	CreateSlots     []*Slot
	CreateTemplates []*Template
	CreateTasks     []*Task
	CompleteTasks   []string // Task IDs
}

// Empty reports whether the change set has no effects.
func (cs *ChangeSet) Empty() bool {
	return cs == nil || (len(cs.CreateSlots) == 0 && len(cs.CreateTemplates) == 0 &&
		len(cs.CreateTasks) == 0 && len(cs.CompleteTasks) == 0)
}

// Applied describes what a committed change set changed.
type Applied struct {
	Slots     []*Slot     `json:"slots,omitempty"`     // Created slots
	Templates []*Template `json:"templates,omitempty"` // Created templates
	Tasks     []*Task     `json:"tasks,omitempty"`     // Created tasks
	Completed []*Task     `json:"completed,omitempty"` // Tasks transitioned to completed
	Touched   []*Slot     `json:"touched,omitempty"`   // Existing slots whose usage changed, post-commit values
}

// ScheduleEvent is published on the schedule events channel after every commit.
type ScheduleEvent struct {
	Instance  string   `json:"instance"`
	AppliedAt int64    `json:"applied_at_ms"`
	Applied   *Applied `json:"applied"`
}

// Apply commits a change set atomically.
//
// Every slot a new task targets, every task being completed and the template
// name index are WATCHed; capacity and existence are re-checked against the
// watched values and all writes go out in one MULTI/EXEC. If any watched key
// changes before EXEC the transaction is discarded and ErrConflict is returned.
// A rejected change set leaves the schedule untouched.
func (c *Client) Apply(ctx context.Context, cs *ChangeSet) (*Applied, error) {
	if cs.Empty() {
		return &Applied{}, nil
	}
	if err := cs.validate(); err != nil {
		return nil, fmt.Errorf("invalid change set: %w", err)
	}

	watched := []string{TemplateIndexKey(c.instanceName)}
	for _, task := range cs.CreateTasks {
		watched = append(watched, SlotKey(c.instanceName, task.SlotID))
	}
	for _, id := range cs.CompleteTasks {
		watched = append(watched, TaskKey(c.instanceName, id))
	}

	var applied *Applied
	err := c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		plan, err := c.plan(ctx, tx, cs)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			c.write(ctx, pipe, cs, plan)
			return nil
		})
		if err != nil {
			return err
		}

		applied = plan.result(cs)
		return nil
	}, watched...)

	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return nil, ErrConflict
		}
		return nil, err
	}

	c.publishApplied(ctx, applied)
	return applied, nil
}

// applyPlan holds the values read under WATCH that the write phase needs.
type applyPlan struct {
	existing  map[string]*Slot // Existing slots touched by new tasks, usage already advanced
	completed []*Task
	now       int64
}

func (c *Client) plan(ctx context.Context, tx *redis.Tx, cs *ChangeSet) (*applyPlan, error) {
	p := &applyPlan{existing: make(map[string]*Slot), now: time.Now().UnixMilli()}

	names := make(map[string]bool, len(cs.CreateTemplates))
	for _, t := range cs.CreateTemplates {
		if names[t.Name] {
			return nil, fmt.Errorf("template %q: %w", t.Name, ErrDuplicateTemplate)
		}
		names[t.Name] = true

		taken, err := tx.HExists(ctx, TemplateIndexKey(c.instanceName), t.Name).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read template index: %w", err)
		}
		if taken {
			return nil, fmt.Errorf("template %q: %w", t.Name, ErrDuplicateTemplate)
		}
	}

	pending := make(map[string]*Slot, len(cs.CreateSlots))
	for _, s := range cs.CreateSlots {
		copied := *s
		pending[s.ID] = &copied
	}

	for _, task := range cs.CreateTasks {
		slot, ok := pending[task.SlotID]
		if !ok {
			slot, ok = p.existing[task.SlotID]
		}
		if !ok {
			hashData, err := tx.HGetAll(ctx, SlotKey(c.instanceName, task.SlotID)).Result()
			if err != nil {
				return nil, fmt.Errorf("failed to read slot from Redis: %w", err)
			}
			if len(hashData) == 0 {
				return nil, fmt.Errorf("slot %s: %w", task.SlotID, redis.Nil)
			}
			slot, err = HashToSlot(hashData)
			if err != nil {
				return nil, fmt.Errorf("failed to deserialize slot: %w", err)
			}
			p.existing[slot.ID] = slot
		}

		if !slot.CanFit(task.DurationMinutes) {
			return nil, fmt.Errorf("slot %s has %d of %d minutes left, task needs %d: %w",
				slot.ID, slot.RemainingMinutes(), slot.CapacityMinutes, task.DurationMinutes, ErrCapacityExceeded)
		}
		slot.UsedMinutes += task.DurationMinutes
	}

	// Slots created in this change set are written with their final usage.
	for _, s := range cs.CreateSlots {
		s.UsedMinutes = pending[s.ID].UsedMinutes
	}

	for _, id := range cs.CompleteTasks {
		hashData, err := tx.HGetAll(ctx, TaskKey(c.instanceName, id)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read task from Redis: %w", err)
		}
		if len(hashData) == 0 {
			return nil, fmt.Errorf("task %s: %w", id, redis.Nil)
		}
		task, err := HashToTask(hashData)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize task: %w", err)
		}
		if task.Status != TaskStatusScheduled {
			return nil, fmt.Errorf("task %s: %w", id, ErrAlreadyCompleted)
		}
		task.Status = TaskStatusCompleted
		task.CompletedAtMs = p.now
		p.completed = append(p.completed, task)
	}

	return p, nil
}

func (c *Client) write(ctx context.Context, pipe redis.Pipeliner, cs *ChangeSet, p *applyPlan) {
	for _, s := range cs.CreateSlots {
		pipe.HSet(ctx, SlotKey(c.instanceName, s.ID), SlotToHash(s))
		pipe.ZAdd(ctx, SlotIndexKey(c.instanceName), redis.Z{Score: float64(s.StartMs), Member: s.ID})
	}

	for _, t := range cs.CreateTemplates {
		pipe.HSet(ctx, TemplateKey(c.instanceName, t.ID), TemplateToHash(t))
		pipe.HSet(ctx, TemplateIndexKey(c.instanceName), t.Name, t.ID)
	}

	for _, task := range cs.CreateTasks {
		pipe.HSet(ctx, TaskKey(c.instanceName, task.ID), TaskToHash(task))
		pipe.ZAdd(ctx, TaskIndexKey(c.instanceName), redis.Z{Score: float64(task.CreatedAtMs), Member: task.ID})
		pipe.SAdd(ctx, SlotTasksKey(c.instanceName, task.SlotID), task.ID)
		if _, ok := p.existing[task.SlotID]; ok {
			pipe.HIncrBy(ctx, SlotKey(c.instanceName, task.SlotID), "used_minutes", int64(task.DurationMinutes))
		}
	}

	for _, task := range p.completed {
		pipe.HSet(ctx, TaskKey(c.instanceName, task.ID),
			"status", string(task.Status),
			"completed_at_ms", task.CompletedAtMs)
	}
}

func (p *applyPlan) result(cs *ChangeSet) *Applied {
	applied := &Applied{
		Slots:     cs.CreateSlots,
		Templates: cs.CreateTemplates,
		Tasks:     cs.CreateTasks,
		Completed: p.completed,
	}
	seen := make(map[string]bool)
	for _, task := range cs.CreateTasks {
		if slot, ok := p.existing[task.SlotID]; ok && !seen[slot.ID] {
			seen[slot.ID] = true
			applied.Touched = append(applied.Touched, slot)
		}
	}
	return applied
}

func (cs *ChangeSet) validate() error {
	for _, s := range cs.CreateSlots {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("slot %q: %w", s.Label, err)
		}
	}
	for _, t := range cs.CreateTemplates {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("template %q: %w", t.Name, err)
		}
	}
	for _, task := range cs.CreateTasks {
		if err := task.Validate(); err != nil {
			return fmt.Errorf("task %q: %w", task.Name, err)
		}
		if task.Status != TaskStatusScheduled {
			return fmt.Errorf("task %q: new tasks must be %s", task.Name, TaskStatusScheduled)
		}
	}
	for _, id := range cs.CompleteTasks {
		if !isValidUUID(id) {
			return fmt.Errorf("invalid task ID %q: not a valid UUID", id)
		}
	}
	return nil
}

// publishApplied announces a committed change set. The commit has already
// happened, so a publish failure is logged rather than returned.
func (c *Client) publishApplied(ctx context.Context, applied *Applied) {
	event := ScheduleEvent{
		Instance:  c.instanceName,
		AppliedAt: time.Now().UnixMilli(),
		Applied:   applied,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("[Schedule] Failed to marshal schedule event: %v", err)
		return
	}
	if err := c.rdb.Publish(ctx, ScheduleEventsChannel(c.instanceName), payload).Err(); err != nil {
		log.Printf("[Schedule] Failed to publish schedule event: %v", err)
	}
}
