package commands

import (
	"fmt"

	"github.com/dyluth/docket/internal/config"
	"github.com/dyluth/docket/internal/governance"
	"github.com/dyluth/docket/internal/printer"
	"github.com/spf13/cobra"
)

var (
	configForce bool
	configPrint bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create and check the governance file",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default governance file",
	Long: `Write the default governance file: which producer may assert which
claim types, the fields each action requires before approval, and the
controller timeouts.

Examples:
  docket config init
  docket config init --governance rules/docket.yml --force`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the governance file",
	Args:  cobra.NoArgs,
	RunE:  runConfigCheck,
}

func init() {
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "Overwrite an existing file")
	configCheckCmd.Flags().BoolVar(&configPrint, "print", false, "Print the effective config with defaults filled in")
	configCmd.AddCommand(configInitCmd, configCheckCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	env, err := loadEnv()
	if err != nil {
		return err
	}

	if err := config.InitGovernance(env.Governance, configForce); err != nil {
		return printer.Error(
			"governance file not written",
			err.Error(),
			[]string{fmt.Sprintf("Overwrite it:\n  docket config init --governance %s --force", env.Governance)},
		)
	}

	printer.Success("Wrote %s\n", env.Governance)
	return nil
}

func runConfigCheck(cmd *cobra.Command, args []string) error {
	env, err := loadEnv()
	if err != nil {
		return err
	}

	cfg, err := governance.Load(env.Governance)
	if err != nil {
		return printer.Error("governance file is invalid", err.Error(), nil)
	}

	printer.Success("%s is valid (version %s)\n", env.Governance, cfg.Version)
	for _, name := range cfg.Producers() {
		types := cfg.Allowed(name)
		printer.Detail("%s: %d claim type(s)\n", name, len(types))
	}
	printer.Detail("call timeout %s, lock ttl %s\n", cfg.CallTimeout(), cfg.LockTTL())

	if configPrint {
		data, err := cfg.Marshal()
		if err != nil {
			return fmt.Errorf("failed to render governance config: %w", err)
		}
		printer.Println()
		printer.Printf("%s", data)
	}
	return nil
}
