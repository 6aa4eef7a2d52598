// Package commands implements the gridci CLI.
package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gridci/gridci/pkg/telemetry"
)

var (
	// Global flags
	logLevel   string
	logFormat  string
	jsonOutput bool
	dbPath     string

	// exitCode carries the verdict-driven exit status out of RunE.
	exitCode int
)

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context, version, commit, buildDate string) (int, error) {
	rootCmd := newRootCommand(version, commit, buildDate)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		return exitCode, err
	}
	return exitCode, nil
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "gridci",
		Short: "gridci - compatibility matrix test runner",
		Long: `gridci expands a declarative test matrix into concrete jobs, runs each
job's commands as subprocesses, and aggregates the results into a single
pass or fail verdict.

A matrix declares named axes (such as python and django versions), the
Cartesian product of which defines the candidate jobs. Exclusion rules
remove known-invalid combinations, and allow-failure rules mark jobs whose
failures are reported without failing the run.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console or json)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "report output in JSON format")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", defaultDBPath(), "run history database path")

	rootCmd.AddCommand(newRunCommand(version))
	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newWatchCommand(version))

	return rootCmd
}

// telemetryConfig builds the process telemetry configuration from the
// persistent flags. Callers adjust the tracing and metrics sections for
// their command, then Validate before constructing components.
func telemetryConfig(version string) *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	if version != "" {
		cfg.ServiceVersion = version
	}
	cfg.Logging.Level = logLevel
	cfg.Logging.Format = logFormat
	return cfg
}

// newLogger builds the CLI logger from the persistent flags.
func newLogger() (zerolog.Logger, error) {
	cfg := telemetryConfig("")
	if err := cfg.Validate(); err != nil {
		return zerolog.Nop(), err
	}
	return telemetry.NewLogger(cfg.Logging)
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "gridci.db"
	}
	return filepath.Join(home, ".gridci", "history.db")
}
