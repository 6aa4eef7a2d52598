package commands

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gridci/gridci/pkg/telemetry"
)

func newRunCommand(version string) *cobra.Command {
	var (
		parallel      int
		timeout       time.Duration
		workDir       string
		targets       []string
		dryRun        bool
		maxJobs       int
		policyDir     string
		noHistory     bool
		traceExporter string
		traceEndpoint string
	)

	cmd := &cobra.Command{
		Use:   "run <matrix-file>",
		Short: "Run a test matrix and report the verdict",
		Long: `Expand the matrix declaration into jobs, run every selected job's
commands, and print the aggregated report.

The process exits 0 when the run passes and 1 when any job not marked
allow-failure fails, errors, or is aborted.`,
		Example: `  # Run a matrix declared in YAML
  gridci run matrix.yaml

  # Run with six workers and a JSON report
  gridci run matrix.yaml --parallel 6 --json

  # Run only the postgres jobs
  gridci run matrix.yaml --target db=postgres

  # Show what would run without executing anything
  gridci run matrix.yaml --dry-run

  # Enforce a job budget and custom admission policies
  gridci run matrix.yaml --max-jobs 50 --policy-dir ./policies

  # Export spans to an OTLP collector
  gridci run matrix.yaml --trace otlp --trace-endpoint localhost:4317`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			telCfg := telemetryConfig(version)
			telCfg.Metrics.Enabled = true
			if traceExporter != "" {
				telCfg.Tracing.Enabled = true
				telCfg.Tracing.Exporter = traceExporter
				telCfg.Tracing.Endpoint = traceEndpoint
				telCfg.Tracing.Insecure = true
			}
			if err := telCfg.Validate(); err != nil {
				return err
			}

			logger, err := telemetry.NewLogger(telCfg.Logging)
			if err != nil {
				return err
			}
			metrics := telemetry.NewMetrics(telCfg.Metrics)

			var tracer *telemetry.Tracer
			if telCfg.Tracing.Enabled {
				tracer, err = telemetry.NewTracer(telCfg.Tracing, telCfg.ServiceName, telCfg.ServiceVersion)
				if err != nil {
					return err
				}
				defer func() {
					ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					if err := tracer.Shutdown(ctx); err != nil {
						logger.Warn().Err(err).Msg("trace export incomplete")
					}
				}()
			}

			rep, err := runPipeline(cmd.Context(), logger, pipelineOptions{
				ConfigPath:  args[0],
				Parallel:    parallel,
				Timeout:     timeout,
				WorkDir:     workDir,
				Targets:     targets,
				DryRun:      dryRun,
				MaxJobs:     maxJobs,
				PolicyDir:   policyDir,
				SkipHistory: noHistory,
				Metrics:     metrics,
				Tracer:      tracer,
			})
			if err != nil {
				return err
			}
			if rep == nil {
				// Dry run: selection already printed, nothing executed.
				return nil
			}

			if err := writeReport(rep, os.Stdout); err != nil {
				return err
			}
			exitCode = rep.ExitCode()
			return nil
		},
	}

	cmd.Flags().IntVarP(&parallel, "parallel", "p", 0, "worker count (overrides the declaration)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-job timeout (overrides the declaration)")
	cmd.Flags().StringVarP(&workDir, "work-dir", "w", "", "working directory for job commands")
	cmd.Flags().StringArrayVarP(&targets, "target", "t", nil, "run only jobs matching axis=value[,axis=value] (repeatable)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the job selection without executing")
	cmd.Flags().IntVar(&maxJobs, "max-jobs", 0, "job budget enforced by policy (0 = unlimited)")
	cmd.Flags().StringVar(&policyDir, "policy-dir", "", "directory of additional .rego admission policies")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "skip saving the run to the history database")
	cmd.Flags().StringVar(&traceExporter, "trace", "", "trace exporter (stdout or otlp)")
	cmd.Flags().StringVar(&traceEndpoint, "trace-endpoint", "localhost:4317", "OTLP gRPC endpoint")

	return cmd
}
