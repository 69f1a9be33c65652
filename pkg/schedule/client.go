package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Client provides type-safe access to the schedule stored in Redis.
// All operations are scoped to a specific instance via instanceName.
// The client is thread-safe and can be used concurrently from multiple goroutines.
type Client struct {
	rdb          *redis.Client
	instanceName string

	// importHook runs between Import's read of the current schedule and its
	// write. Tests use it to commit a competing change.
	importHook func()
}

// NewClient creates a new schedule client for the specified instance.
// The client automatically namespaces all keys and channels with the instance name.
//
// Returns an error if instanceName is empty.
func NewClient(redisOpts *redis.Options, instanceName string) (*Client, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Client{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping verifies Redis connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// InstanceName returns the namespace this client operates in.
func (c *Client) InstanceName() string {
	return c.instanceName
}

// RedisClient exposes the underlying Redis client for collaborators that keep
// their own keys in the same namespace (snapshots).
func (c *Client) RedisClient() *redis.Client {
	return c.rdb
}

// GetSlot retrieves a slot by ID.
// Returns (nil, redis.Nil) if the slot doesn't exist. Use IsNotFound() to check.
func (c *Client) GetSlot(ctx context.Context, slotID string) (*Slot, error) {
	hashData, err := c.rdb.HGetAll(ctx, SlotKey(c.instanceName, slotID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read slot from Redis: %w", err)
	}
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	slot, err := HashToSlot(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize slot: %w", err)
	}
	return slot, nil
}

// GetTemplate retrieves a template by ID.
// Returns (nil, redis.Nil) if the template doesn't exist.
func (c *Client) GetTemplate(ctx context.Context, templateID string) (*Template, error) {
	hashData, err := c.rdb.HGetAll(ctx, TemplateKey(c.instanceName, templateID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read template from Redis: %w", err)
	}
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	template, err := HashToTemplate(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize template: %w", err)
	}
	return template, nil
}

// FindTemplateByName looks a template up by its unique name.
// Returns (nil, redis.Nil) if no template has that name.
func (c *Client) FindTemplateByName(ctx context.Context, name string) (*Template, error) {
	id, err := c.rdb.HGet(ctx, TemplateIndexKey(c.instanceName), name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, redis.Nil
		}
		return nil, fmt.Errorf("failed to read template index: %w", err)
	}
	return c.GetTemplate(ctx, id)
}

// GetTask retrieves a task by ID.
// Returns (nil, redis.Nil) if the task doesn't exist.
func (c *Client) GetTask(ctx context.Context, taskID string) (*Task, error) {
	hashData, err := c.rdb.HGetAll(ctx, TaskKey(c.instanceName, taskID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read task from Redis: %w", err)
	}
	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	task, err := HashToTask(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize task: %w", err)
	}
	return task, nil
}

// ListSlots returns every slot ordered by start time (earliest first).
func (c *Client) ListSlots(ctx context.Context) ([]*Slot, error) {
	ids, err := c.rdb.ZRange(ctx, SlotIndexKey(c.instanceName), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read slot index: %w", err)
	}

	slots := make([]*Slot, 0, len(ids))
	for _, id := range ids {
		slot, err := c.GetSlot(ctx, id)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

// ListTemplates returns every template ordered by name.
func (c *Client) ListTemplates(ctx context.Context) ([]*Template, error) {
	byName, err := c.rdb.HGetAll(ctx, TemplateIndexKey(c.instanceName)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read template index: %w", err)
	}

	templates := make([]*Template, 0, len(byName))
	for _, id := range byName {
		template, err := c.GetTemplate(ctx, id)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		templates = append(templates, template)
	}

	sort.Slice(templates, func(i, j int) bool {
		return templates[i].Name < templates[j].Name
	})
	return templates, nil
}

// ListTasks returns every task ordered by creation time (oldest first).
func (c *Client) ListTasks(ctx context.Context) ([]*Task, error) {
	ids, err := c.rdb.ZRange(ctx, TaskIndexKey(c.instanceName), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read task index: %w", err)
	}
	return c.getTasks(ctx, ids)
}

// TasksInSlot returns the tasks placed in a slot ordered by creation time.
func (c *Client) TasksInSlot(ctx context.Context, slotID string) ([]*Task, error) {
	ids, err := c.rdb.SMembers(ctx, SlotTasksKey(c.instanceName, slotID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read slot tasks: %w", err)
	}

	tasks, err := c.getTasks(ctx, ids)
	if err != nil {
		return nil, err
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAtMs != tasks[j].CreatedAtMs {
			return tasks[i].CreatedAtMs < tasks[j].CreatedAtMs
		}
		return tasks[i].ID < tasks[j].ID
	})
	return tasks, nil
}

// ScanTaskIDs returns the IDs of all tasks whose ID starts with prefix, sorted.
func (c *Client) ScanTaskIDs(ctx context.Context, prefix string) ([]string, error) {
	ids, err := c.rdb.ZRange(ctx, TaskIndexKey(c.instanceName), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read task index: %w", err)
	}

	var matches []string
	for _, id := range ids {
		if strings.HasPrefix(id, prefix) {
			matches = append(matches, id)
		}
	}
	sort.Strings(matches)
	return matches, nil
}

func (c *Client) getTasks(ctx context.Context, ids []string) ([]*Task, error) {
	tasks := make([]*Task, 0, len(ids))
	for _, id := range ids {
		task, err := c.GetTask(ctx, id)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error (redis.Nil).
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
