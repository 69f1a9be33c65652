package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dyluth/docket/internal/ledger"
	"github.com/dyluth/docket/internal/printer"
	"github.com/dyluth/docket/internal/resolver"
	"github.com/dyluth/docket/internal/timespec"
	"github.com/dyluth/docket/pkg/schedule"
	"github.com/spf13/cobra"
)

var (
	scheduleOutputFormat string
	scheduleFrom         string
	scheduleUntil        string
	scheduleLabel        string
	scheduleStatus       string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule [TASK_ID]",
	Short: "Inspect the schedule",
	Long: `Inspect the schedule in list or get mode. Reading never goes through
the pipeline; use "docket run list" for an arbitrated read.

List Mode (no TASK_ID):
  Displays slots, templates and tasks as a table or JSONL stream.

Get Mode (with TASK_ID):
  Displays one task as pretty-printed JSON. Short IDs are accepted.

Filters (list mode only):
  --from, --until  Slot start window (duration offset, HH:MM or RFC3339)
  --label          Glob on slot label ("Mon*")
  --status         Task status (scheduled or completed)

Examples:
  docket schedule
  docket schedule --from=-24h --until=+7d
  docket schedule --label="Mon*" --status=scheduled --output=jsonl
  docket schedule 3f2a1b`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSchedule,
}

func init() {
	scheduleCmd.Flags().StringVarP(&scheduleOutputFormat, "output", "o", "default", "Output format: default or jsonl (ignored in get mode)")
	scheduleCmd.Flags().StringVar(&scheduleFrom, "from", "", "Show slots starting at or after this time")
	scheduleCmd.Flags().StringVar(&scheduleUntil, "until", "", "Show slots starting at or before this time")
	scheduleCmd.Flags().StringVar(&scheduleLabel, "label", "", "Filter slots by label (glob pattern)")
	scheduleCmd.Flags().StringVar(&scheduleStatus, "status", "", "Filter tasks by status")
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	isGetMode := len(args) > 0

	var outputFormat ledger.OutputFormat
	if !isGetMode {
		switch scheduleOutputFormat {
		case "default":
			outputFormat = ledger.OutputFormatDefault
		case "jsonl":
			outputFormat = ledger.OutputFormatJSONL
		default:
			return printer.Error(
				"invalid output format",
				fmt.Sprintf("Unknown format: %s", scheduleOutputFormat),
				[]string{"Valid formats: default, jsonl"},
			)
		}
	}

	var filters *ledger.FilterCriteria
	if !isGetMode {
		var err error
		filters, err = scheduleFilters(time.Now())
		if err != nil {
			return err
		}
	}

	env, err := loadEnv()
	if err != nil {
		return err
	}
	client, err := connect(ctx, env)
	if err != nil {
		return err
	}
	defer client.Close()

	if isGetMode {
		return getTask(ctx, client, args[0])
	}

	if err := ledger.ListSchedule(ctx, client, env.Instance, outputFormat, filters, printer.Stdout); err != nil {
		return printer.Error("failed to list schedule", err.Error(), nil)
	}
	return nil
}

func scheduleFilters(now time.Time) (*ledger.FilterCriteria, error) {
	fromMs, untilMs, err := timespec.ParseRange(scheduleFrom, scheduleUntil, now)
	if err != nil {
		return nil, printer.Error(
			"invalid time filter",
			err.Error(),
			[]string{"Use a duration offset (+2h, -30m), HH:MM, or RFC3339 (2026-01-05T09:00:00Z)"},
		)
	}

	filters := &ledger.FilterCriteria{
		SinceMs:   fromMs,
		UntilMs:   untilMs,
		LabelGlob: scheduleLabel,
	}
	if scheduleStatus != "" {
		status := schedule.TaskStatus(scheduleStatus)
		if err := status.Validate(); err != nil {
			return nil, printer.Error(
				"invalid status filter",
				err.Error(),
				[]string{"Valid statuses: scheduled, completed"},
			)
		}
		filters.Status = status
	}
	return filters, nil
}

func getTask(ctx context.Context, client *schedule.Client, id string) error {
	err := ledger.GetTask(ctx, client, id, printer.Stdout)
	if err == nil {
		return nil
	}

	if ledger.IsNotFound(err) {
		return printer.Error(
			fmt.Sprintf("task with ID '%s' not found", id),
			"",
			[]string{"List tasks:\n  docket schedule"},
		)
	}
	var ambiguous *resolver.AmbiguousError
	if errors.As(err, &ambiguous) {
		return printer.Error(
			"ambiguous task ID",
			resolver.FormatAmbiguousError(ambiguous),
			[]string{"Use a longer prefix or the full ID"},
		)
	}
	return fmt.Errorf("failed to get task: %w", err)
}
