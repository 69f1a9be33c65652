package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dyluth/docket/pkg/schedule"
)

// MinShortIDLength is the minimum required length for short ID prefixes.
const MinShortIDLength = 6

// TaskLookup is the part of the schedule store the resolver reads.
type TaskLookup interface {
	GetTask(ctx context.Context, taskID string) (*schedule.Task, error)
	ScanTaskIDs(ctx context.Context, prefix string) ([]string, error)
}

// ResolveTaskID resolves a short ID prefix to a full task UUID.
//
// A full UUID is checked for existence and returned as-is. Shorter input must
// be at least MinShortIDLength characters and match exactly one task.
func ResolveTaskID(ctx context.Context, store TaskLookup, shortID string) (string, error) {
	if len(shortID) == 36 && strings.Count(shortID, "-") == 4 {
		if _, err := store.GetTask(ctx, shortID); err != nil {
			if schedule.IsNotFound(err) {
				return "", &NotFoundError{ShortID: shortID}
			}
			return "", fmt.Errorf("failed to verify task existence: %w", err)
		}
		return shortID, nil
	}

	if len(shortID) < MinShortIDLength {
		return "", fmt.Errorf("short ID must be at least %d characters (got %d)", MinShortIDLength, len(shortID))
	}

	matches, err := store.ScanTaskIDs(ctx, shortID)
	if err != nil {
		return "", fmt.Errorf("failed to search for task: %w", err)
	}

	switch len(matches) {
	case 0:
		return "", &NotFoundError{ShortID: shortID}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{ShortID: shortID, Matches: matches}
	}
}

// NotFoundError indicates no task matched the short ID.
type NotFoundError struct {
	ShortID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no tasks found matching '%s'", e.ShortID)
}

// AmbiguousError indicates multiple tasks matched the short ID.
type AmbiguousError struct {
	ShortID string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous short ID '%s' matches %d tasks", e.ShortID, len(e.Matches))
}

// FormatAmbiguousError lists up to 10 matching IDs, then "...and N more".
func FormatAmbiguousError(err *AmbiguousError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ambiguous short ID '%s' matches %d tasks:\n", err.ShortID, len(err.Matches))

	displayCount := len(err.Matches)
	if displayCount > 10 {
		displayCount = 10
	}
	for i := 0; i < displayCount; i++ {
		fmt.Fprintf(&b, "  %s\n", err.Matches[i])
	}
	if len(err.Matches) > 10 {
		fmt.Fprintf(&b, "  ...and %d more\n", len(err.Matches)-10)
	}

	b.WriteString("\nUse a longer prefix to uniquely identify the task.")
	return b.String()
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsAmbiguousError checks if an error is an AmbiguousError.
func IsAmbiguousError(err error) bool {
	var target *AmbiguousError
	return errors.As(err, &target)
}
