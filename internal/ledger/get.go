package ledger

import (
	"context"
	"fmt"
	"io"

	"github.com/dyluth/docket/internal/resolver"
	"github.com/dyluth/docket/pkg/schedule"
)

// GetTask resolves a full or short task ID and writes the task as pretty JSON.
func GetTask(ctx context.Context, store resolver.TaskLookup, id string, w io.Writer) error {
	fullID, err := resolver.ResolveTaskID(ctx, store, id)
	if err != nil {
		if resolver.IsNotFoundError(err) {
			return &TaskNotFoundError{TaskID: id}
		}
		return err
	}

	task, err := store.GetTask(ctx, fullID)
	if err != nil {
		if schedule.IsNotFound(err) {
			return &TaskNotFoundError{TaskID: id}
		}
		return fmt.Errorf("failed to fetch task: %w", err)
	}

	if err := FormatSingleJSON(w, task); err != nil {
		return fmt.Errorf("failed to format task: %w", err)
	}
	return nil
}

// TaskNotFoundError is returned when no task matches the requested ID.
type TaskNotFoundError struct {
	TaskID string
}

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("task with ID '%s' not found", e.TaskID)
}

// IsNotFound returns true if the error is a TaskNotFoundError.
func IsNotFound(err error) bool {
	_, ok := err.(*TaskNotFoundError)
	return ok
}
