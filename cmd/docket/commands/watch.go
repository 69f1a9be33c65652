package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dyluth/docket/internal/printer"
	"github.com/dyluth/docket/internal/watch"
	"github.com/spf13/cobra"
)

var watchOutputFormat string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream schedule changes as they are committed",
	Long: `Stream every committed change to the schedule: created slots, templates
and tasks, completions, and slot usage updates.

Output Formats:
  default - Human-readable output with timestamps and emojis
  json    - Line-delimited JSON for programmatic processing

Examples:
  docket watch
  docket watch --instance team-a
  docket watch --output=json > changes.jsonl`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or json)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var outputFormat watch.OutputFormat
	switch watchOutputFormat {
	case "default":
		outputFormat = watch.OutputFormatDefault
	case "json":
		outputFormat = watch.OutputFormatJSON
	default:
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", watchOutputFormat),
			[]string{"Valid formats: default, json"},
		)
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

	if outputFormat == watch.OutputFormatDefault {
		printer.Step("Watching schedule %q (Ctrl+C to stop)\n", env.Instance)
	}

	if err := watch.StreamActivity(ctx, client, outputFormat, printer.Stdout); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
