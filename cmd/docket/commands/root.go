package commands

import (
	"context"
	"fmt"

	"github.com/dyluth/docket/internal/config"
	"github.com/dyluth/docket/internal/governance"
	"github.com/dyluth/docket/internal/printer"
	"github.com/dyluth/docket/pkg/schedule"
	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string
)

var (
	flagRedisURL   string
	flagInstance   string
	flagGovernance string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "docket",
	Short: "Docket - claim-arbitrated task scheduling",
	Long: `Docket schedules tasks into time slots. Every request is answered by
independent producers that assert claims, validated for capacity and
consistency, arbitrated under the governance rules, and only then written
to the shared schedule in Redis.

Environment:
  DOCKET_REDIS_URL    Redis connection URL (default redis://localhost:6379/0)
  DOCKET_INSTANCE     Schedule namespace (default "default")
  DOCKET_GOVERNANCE   Governance file (default docket.yml)`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagRedisURL, "redis-url", "", "Redis URL (overrides DOCKET_REDIS_URL)")
	rootCmd.PersistentFlags().StringVarP(&flagInstance, "instance", "n", "", "Schedule instance name (overrides DOCKET_INSTANCE)")
	rootCmd.PersistentFlags().StringVarP(&flagGovernance, "governance", "g", "", "Governance file (overrides DOCKET_GOVERNANCE)")
}

// loadEnv reads the environment and applies flag overrides.
func loadEnv() (*config.Env, error) {
	env, err := config.LoadEnv()
	if err != nil {
		return nil, err
	}
	if flagRedisURL != "" {
		env.RedisURL = flagRedisURL
	}
	if flagInstance != "" {
		env.Instance = flagInstance
	}
	if flagGovernance != "" {
		env.Governance = flagGovernance
	}
	if err := env.Validate(); err != nil {
		return nil, printer.Error(
			"invalid configuration",
			err.Error(),
			[]string{"Check DOCKET_REDIS_URL and DOCKET_INSTANCE, or the --redis-url and --instance flags"},
		)
	}
	return env, nil
}

// connect opens the schedule for env's instance and checks Redis is reachable.
func connect(ctx context.Context, env *config.Env) (*schedule.Client, error) {
	opts, err := env.RedisOptions()
	if err != nil {
		return nil, err
	}

	client, err := schedule.NewClient(opts, env.Instance)
	if err != nil {
		return nil, fmt.Errorf("failed to create schedule client: %w", err)
	}

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, printer.ErrorWithContext(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to Redis at %s", env.RedisURL),
			map[string]string{"instance": env.Instance, "error": err.Error()},
			[]string{"Start Redis or point DOCKET_REDIS_URL at a running server"},
		)
	}
	return client, nil
}

// loadGovernance reads the governance file, failing with a hint to create it.
func loadGovernance(env *config.Env) (*governance.Config, error) {
	cfg, err := governance.Load(env.Governance)
	if err != nil {
		return nil, printer.Error(
			"governance config not loaded",
			err.Error(),
			[]string{fmt.Sprintf("Create a default file:\n  docket config init --governance %s", env.Governance)},
		)
	}
	return cfg, nil
}
