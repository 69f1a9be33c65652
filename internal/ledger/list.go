// Package ledger renders the schedule for the CLI: tables for people, JSONL
// for tools.
package ledger

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/dyluth/docket/pkg/schedule"
)

// OutputFormat specifies how the schedule is written.
type OutputFormat string

const (
	// OutputFormatDefault uses tables with truncated labels
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL writes complete records as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// Exporter reads the full schedule. *schedule.Client satisfies it.
type Exporter interface {
	Export(ctx context.Context) (*schedule.State, error)
}

// FilterCriteria narrows the listing. All filters are ANDed together.
type FilterCriteria struct {
	SinceMs   int64               // Slots starting at or after, 0 = no filter
	UntilMs   int64               // Slots starting at or before, 0 = no filter
	LabelGlob string              // Glob on slot label, empty = no filter
	Status    schedule.TaskStatus // Task status, empty = no filter
}

func (fc *FilterCriteria) matchesSlot(s *schedule.Slot) bool {
	if fc.SinceMs > 0 && s.StartMs < fc.SinceMs {
		return false
	}
	if fc.UntilMs > 0 && s.StartMs > fc.UntilMs {
		return false
	}
	if fc.LabelGlob != "" {
		matched, err := filepath.Match(fc.LabelGlob, s.Label)
		if err != nil || !matched {
			return false
		}
	}
	return true
}

// Apply returns the part of state the filters select. Tasks are kept only when
// their slot is kept. Templates are never filtered.
func (fc *FilterCriteria) Apply(state *schedule.State) *schedule.State {
	if fc == nil {
		return state
	}

	out := &schedule.State{Templates: state.Templates}
	kept := make(map[string]bool, len(state.Slots))
	for _, s := range state.Slots {
		if fc.matchesSlot(s) {
			kept[s.ID] = true
			out.Slots = append(out.Slots, s)
		}
	}
	for _, t := range state.Tasks {
		if !kept[t.SlotID] {
			continue
		}
		if fc.Status != "" && t.Status != fc.Status {
			continue
		}
		out.Tasks = append(out.Tasks, t)
	}
	return out
}

// ListSchedule reads the schedule, applies filters and writes it in format.
func ListSchedule(ctx context.Context, store Exporter, instanceName string, format OutputFormat, filters *FilterCriteria, w io.Writer) error {
	state, err := store.Export(ctx)
	if err != nil {
		return fmt.Errorf("failed to read schedule: %w", err)
	}
	return Write(w, filters.Apply(state), instanceName, format)
}

// Write renders an already-read schedule in format.
func Write(w io.Writer, state *schedule.State, instanceName string, format OutputFormat) error {
	switch format {
	case OutputFormatDefault, "":
		FormatTable(w, state, instanceName)
	case OutputFormatJSONL:
		if err := FormatJSONL(w, state); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
	return nil
}
