package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dyluth/docket/internal/command"
	"github.com/dyluth/docket/internal/controller"
	"github.com/dyluth/docket/internal/ledger"
	"github.com/dyluth/docket/internal/printer"
	"github.com/spf13/cobra"
)

var runOutputFormat string

var runCmd = &cobra.Command{
	Use:   "run ACTION [KEY=VALUE ...]",
	Short: "Process one command through the arbitration pipeline",
	Long: `Run one command through the pipeline: producers assert claims, the
validators check capacity and consistency, the arbiter picks a winner per
claim type, and the executor writes the schedule only if every gate passed.

Actions:
  create_slot      label=, start=, capacity=
  create_template  name=, duration=
  place            task=, and template= and/or duration=, optional slot=
  complete         task_id= (full or short ID)
  list

Output Formats:
  default - Outcome summary with warnings and rejection details
  json    - The full run envelope, including validation and arbitration

Examples:
  docket run create_slot label="Monday AM" start=2026-01-05T09:00:00Z capacity=120
  docket run create_template name=review duration=30
  docket run place task="review PR" template=review
  docket run complete task_id=3f2a1b
  docket run list --output=json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runOutputFormat, "output", "o", "default", "Output format (default or json)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if runOutputFormat != "default" && runOutputFormat != "json" {
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", runOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	payload, err := parsePayload(args[1:])
	if err != nil {
		return printer.Error(
			"invalid arguments",
			err.Error(),
			[]string{"Pass payload values as KEY=VALUE, for example:\n  docket run place task=standup duration=15"},
		)
	}

	env, err := loadEnv()
	if err != nil {
		return err
	}
	cfg, err := loadGovernance(env)
	if err != nil {
		return err
	}
	client, err := connect(ctx, env)
	if err != nil {
		return err
	}
	defer client.Close()

	ctrl, err := controller.NewScheduleController(cfg, client)
	if err != nil {
		return printer.Error("controller not started", err.Error(), nil)
	}

	envelope, err := ctrl.Process(ctx, command.New(args[0], payload))
	if err != nil {
		return err
	}

	if runOutputFormat == "json" {
		if err := writeEnvelopeJSON(envelope); err != nil {
			return err
		}
	} else {
		writeEnvelope(envelope, env.Instance)
	}

	if !envelope.Success {
		return fmt.Errorf("run %s did not succeed", envelope.RunID)
	}
	return nil
}

// parsePayload turns KEY=VALUE arguments into a command payload. Values stay
// strings; producers convert them.
func parsePayload(args []string) (map[string]any, error) {
	payload := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("argument %q is not KEY=VALUE", arg)
		}
		if _, dup := payload[key]; dup {
			return nil, fmt.Errorf("key %q given more than once", key)
		}
		payload[key] = value
	}
	return payload, nil
}

func writeEnvelopeJSON(envelope *controller.Envelope) error {
	enc := json.NewEncoder(printer.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(envelope); err != nil {
		return fmt.Errorf("failed to encode run envelope: %w", err)
	}
	return nil
}

func writeEnvelope(envelope *controller.Envelope, instanceName string) {
	for _, w := range envelope.Report.Warnings {
		printer.Warning("%s\n", w)
	}

	if !envelope.Success {
		printer.Failure("%s failed in %s phase: %s\n", envelope.Action, envelope.Phase, envelope.Error.Reason)
		printer.Info("%s\n", envelope.Error.Message)
		for _, d := range envelope.Error.Details {
			printer.Detail("%s\n", d)
		}
		printer.Detail("run %s\n", envelope.RunID)
		return
	}

	printer.Success("%s succeeded\n", envelope.Action)
	if envelope.Report.Retried {
		printer.Info("Placed by auto-replacement after the first proposal failed capacity\n")
	}

	result := envelope.Result
	if result != nil && result.View != nil {
		printer.Println()
		ledger.Write(printer.Stdout, result.View, instanceName, ledger.OutputFormatDefault)
	}
	if result != nil && result.Applied != nil {
		for _, s := range result.Applied.Slots {
			printer.Detail("slot %s %q (%d min)\n", s.ID, s.Label, s.CapacityMinutes)
		}
		for _, t := range result.Applied.Templates {
			printer.Detail("template %s %q (%d min)\n", t.ID, t.Name, t.DurationMinutes)
		}
		for _, t := range result.Applied.Tasks {
			printer.Detail("task %s %q in slot %s (%d min)\n", t.ID, t.Name, t.SlotID, t.DurationMinutes)
		}
		for _, t := range result.Applied.Completed {
			printer.Detail("completed %s %q\n", t.ID, t.Name)
		}
	}
	printer.Detail("run %s\n", envelope.RunID)
}
