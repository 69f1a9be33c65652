package commands

import (
	"context"
	"fmt"

	"github.com/dyluth/docket/internal/config"
	"github.com/dyluth/docket/internal/ledger"
	"github.com/dyluth/docket/internal/printer"
	"github.com/dyluth/docket/internal/snapshot"
	"github.com/dyluth/docket/pkg/schedule"
	"github.com/spf13/cobra"
)

var snapshotOutputFormat string

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Save, list and restore schedule snapshots",
	Long: `Snapshots are full copies of the schedule kept in Redis next to it.
One is archived automatically after every successful mutating run; more can
be saved by hand and any of them restored.

Examples:
  docket snapshot list
  docket snapshot save before-reorg
  docket snapshot latest --output=json
  docket snapshot restore snapshot_20260105_090000_before-reorg`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots, newest first",
	Args:  cobra.NoArgs,
	RunE: withSnapshots(func(ctx context.Context, store *snapshot.Store, _ *config.Env, _ []string) error {
		snaps, err := store.List(ctx)
		if err != nil {
			return err
		}
		if snapshotOutputFormat == "json" {
			return ledger.FormatSingleJSON(printer.Stdout, snaps)
		}
		if len(snaps) == 0 {
			printer.Info("No snapshots saved.\n")
			return nil
		}
		for _, s := range snaps {
			printer.Info("%s  %s  %d slot(s), %d task(s)\n",
				s.ID, s.CreatedAt.Format("2006-01-02 15:04:05"), len(s.State.Slots), len(s.State.Tasks))
		}
		return nil
	}),
}

var snapshotSaveCmd = &cobra.Command{
	Use:   "save [REASON]",
	Short: "Save a snapshot of the current schedule",
	Args:  cobra.MaximumNArgs(1),
	RunE: withSnapshots(func(ctx context.Context, store *snapshot.Store, _ *config.Env, args []string) error {
		reason := "manual"
		if len(args) > 0 {
			reason = args[0]
		}
		snap, err := store.Save(ctx, reason, map[string]any{"source": "cli"})
		if err != nil {
			return err
		}
		printer.Success("Saved %s\n", snap.ID)
		return nil
	}),
}

var snapshotLatestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Show the newest snapshot",
	Args:  cobra.NoArgs,
	RunE: withSnapshots(func(ctx context.Context, store *snapshot.Store, env *config.Env, _ []string) error {
		snap, err := store.Latest(ctx)
		if err != nil {
			return err
		}
		return writeSnapshot(snap, env.Instance)
	}),
}

var snapshotRestoreCmd = &cobra.Command{
	Use:   "restore SNAPSHOT_ID",
	Short: "Replace the live schedule with a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: withSnapshots(func(ctx context.Context, store *snapshot.Store, _ *config.Env, args []string) error {
		snap, err := store.Restore(ctx, args[0])
		if err != nil {
			return err
		}
		printer.Success("Restored %s (%d slot(s), %d template(s), %d task(s))\n",
			snap.ID, len(snap.State.Slots), len(snap.State.Templates), len(snap.State.Tasks))
		return nil
	}),
}

func init() {
	snapshotCmd.PersistentFlags().StringVarP(&snapshotOutputFormat, "output", "o", "default", "Output format (default or json)")
	snapshotCmd.AddCommand(snapshotListCmd, snapshotSaveCmd, snapshotLatestCmd, snapshotRestoreCmd)
	rootCmd.AddCommand(snapshotCmd)
}

type snapshotAction func(ctx context.Context, store *snapshot.Store, env *config.Env, args []string) error

// withSnapshots connects to the schedule and runs fn against its snapshot store.
func withSnapshots(fn snapshotAction) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		if snapshotOutputFormat != "default" && snapshotOutputFormat != "json" {
			return printer.Error(
				"invalid output format",
				fmt.Sprintf("Unknown format: %s", snapshotOutputFormat),
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

		if err := fn(ctx, snapshot.New(client), env, args); err != nil {
			return snapshotError(err)
		}
		return nil
	}
}

func writeSnapshot(snap *snapshot.Snapshot, instanceName string) error {
	if snapshotOutputFormat == "json" {
		return ledger.FormatSingleJSON(printer.Stdout, snap)
	}
	printer.Info("%s (reason: %s, saved %s)\n\n", snap.ID, snap.Reason, snap.CreatedAt.Format("2006-01-02 15:04:05"))
	return ledger.Write(printer.Stdout, snap.State, instanceName, ledger.OutputFormatDefault)
}

func snapshotError(err error) error {
	if snapshot.IsNotFound(err) {
		return printer.Error(
			"snapshot not found",
			err.Error(),
			[]string{"List snapshots:\n  docket snapshot list"},
		)
	}
	if schedule.IsNotFound(err) {
		return printer.Error("snapshot refers to missing data", err.Error(), nil)
	}
	return printer.Error("snapshot operation failed", err.Error(), nil)
}
