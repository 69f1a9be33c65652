package ledger

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dyluth/docket/pkg/schedule"
)

// FormatTable writes the schedule as two tables, slots then tasks.
// Returns the number of tasks listed.
func FormatTable(w io.Writer, state *schedule.State, instanceName string) int {
	if len(state.Slots) == 0 && len(state.Tasks) == 0 {
		fmt.Fprintf(w, "No schedule entries found for instance '%s'\n", instanceName)
		return 0
	}

	fmt.Fprintf(w, "Schedule for instance '%s':\n\n", instanceName)

	fmt.Fprintf(w, "%-10s %-20s %-16s %-9s %s\n", "SLOT", "LABEL", "START", "USED", "FREE")
	fmt.Fprintf(w, "%-10s %-20s %-16s %-9s %s\n",
		"----------", "--------------------", "----------------", "---------", "-----")
	for _, s := range state.Slots {
		fmt.Fprintf(w, "%-10s %-20s %-16s %-9s %dm\n",
			formatID(s.ID),
			formatLabel(s.Label),
			formatStart(s.StartMs),
			fmt.Sprintf("%d/%d", s.UsedMinutes, s.CapacityMinutes),
			s.RemainingMinutes(),
		)
	}

	labels := make(map[string]string, len(state.Slots))
	for _, s := range state.Slots {
		labels[s.ID] = s.Label
	}

	if len(state.Tasks) > 0 {
		fmt.Fprintf(w, "\n%-10s %-20s %-20s %-6s %-10s %s\n", "TASK", "NAME", "SLOT", "MIN", "STATUS", "AGE")
		fmt.Fprintf(w, "%-10s %-20s %-20s %-6s %-10s %s\n",
			"----------", "--------------------", "--------------------", "------", "----------", "--------")
		for _, t := range state.Tasks {
			fmt.Fprintf(w, "%-10s %-20s %-20s %-6d %-10s %s\n",
				formatID(t.ID),
				formatLabel(t.Name),
				formatLabel(slotName(labels, t.SlotID)),
				t.DurationMinutes,
				t.Status,
				formatAge(t.CreatedAtMs),
			)
		}
	}

	countMsg := "task"
	if len(state.Tasks) != 1 {
		countMsg = "tasks"
	}
	fmt.Fprintf(w, "\n%d %s in %d slot(s)\n", len(state.Tasks), countMsg, len(state.Slots))

	return len(state.Tasks)
}

// record is one JSONL line.
type record struct {
	Kind string      `json:"kind"`
	Data interface{} `json:"data"`
}

// FormatJSONL writes every slot, template and task as one JSON object per line,
// tagged with its kind.
func FormatJSONL(w io.Writer, state *schedule.State) error {
	write := func(kind string, v interface{}) error {
		data, err := json.Marshal(record{Kind: kind, Data: v})
		if err != nil {
			return fmt.Errorf("failed to marshal %s to JSON: %w", kind, err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
		return nil
	}

	for _, s := range state.Slots {
		if err := write("slot", s); err != nil {
			return err
		}
	}
	for _, t := range state.Templates {
		if err := write("template", t); err != nil {
			return err
		}
	}
	for _, t := range state.Tasks {
		if err := write("task", t); err != nil {
			return err
		}
	}
	return nil
}

// FormatSingleJSON writes v as pretty-printed JSON.
func FormatSingleJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal to JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	fmt.Fprintln(w)
	return nil
}

// formatID truncates an ID to its first 8 characters, which is also the
// short form accepted by `docket run complete`.
func formatID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatLabel keeps labels to one line of at most 20 characters.
func formatLabel(label string) string {
	label = strings.TrimSpace(strings.SplitN(label, "\n", 2)[0])
	if label == "" {
		return "-"
	}
	if len(label) > 20 {
		return label[:17] + "..."
	}
	return label
}

func slotName(labels map[string]string, slotID string) string {
	if label, ok := labels[slotID]; ok {
		return label
	}
	return formatID(slotID)
}

// formatStart renders a slot start in local time.
func formatStart(startMs int64) string {
	if startMs == 0 {
		return "-"
	}
	return time.UnixMilli(startMs).Format("2006-01-02 15:04")
}

// formatAge formats Unix milliseconds as relative time like "2m ago".
func formatAge(timestampMs int64) string {
	if timestampMs == 0 {
		return "-"
	}

	diff := time.Since(time.UnixMilli(timestampMs))

	switch {
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}
