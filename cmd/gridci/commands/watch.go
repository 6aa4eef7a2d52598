package commands

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gridci/gridci/pkg/telemetry"
)

// watchDebounce coalesces the event bursts editors produce on save.
const watchDebounce = 500 * time.Millisecond

func newWatchCommand(version string) *cobra.Command {
	var (
		parallel  int
		workDir   string
		maxJobs   int
		policyDir string
		listen    string
	)

	cmd := &cobra.Command{
		Use:   "watch <matrix-file>",
		Short: "Re-run the matrix whenever its declaration changes",
		Long: `Run the matrix once, then watch the declaration file and re-run on every
change. A status server exposes Prometheus metrics on /metrics, liveness
on /healthz, and the latest report as JSON on /report.`,
		Example: `  # Watch a matrix and serve status on the default port
  gridci watch matrix.yaml

  # Serve status on a custom address
  gridci watch matrix.yaml --listen :8080`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			telCfg := telemetryConfig(version)
			telCfg.Metrics.Enabled = true
			telCfg.Metrics.ListenAddress = listen
			if err := telCfg.Validate(); err != nil {
				return err
			}

			logger, err := telemetry.NewLogger(telCfg.Logging)
			if err != nil {
				return err
			}
			metrics := telemetry.NewMetrics(telCfg.Metrics)
			server := telemetry.NewStatusServer(telCfg.Metrics, metrics, logger)
			server.Start()
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = server.Shutdown(ctx)
			}()

			opts := pipelineOptions{
				ConfigPath: args[0],
				Parallel:   parallel,
				WorkDir:    workDir,
				MaxJobs:    maxJobs,
				PolicyDir:  policyDir,
				Metrics:    metrics,
			}

			runOnce := func() {
				rep, err := runPipeline(cmd.Context(), logger, opts)
				if err != nil {
					logger.Error().Err(err).Msg("matrix run failed")
					return
				}
				server.SetReport(rep)
				if err := writeReport(rep, os.Stdout); err != nil {
					logger.Error().Err(err).Msg("writing report")
				}
			}

			runOnce()
			return watchFile(cmd.Context(), logger, args[0], runOnce)
		},
	}

	cmd.Flags().IntVarP(&parallel, "parallel", "p", 0, "worker count (overrides the declaration)")
	cmd.Flags().StringVarP(&workDir, "work-dir", "w", "", "working directory for job commands")
	cmd.Flags().IntVar(&maxJobs, "max-jobs", 0, "job budget enforced by policy (0 = unlimited)")
	cmd.Flags().StringVar(&policyDir, "policy-dir", "", "directory of additional .rego admission policies")
	cmd.Flags().StringVar(&listen, "listen", ":9290", "status server listen address")

	return cmd
}

// watchFile re-invokes onChange whenever path is written. The watch is on the
// parent directory because editors typically replace files on save, which
// drops a watch held on the file itself.
func watchFile(ctx context.Context, logger zerolog.Logger, path string, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	logger.Info().Str("path", abs).Msg("watching for changes")

	var debounce *time.Timer
	trigger := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, func() {
				select {
				case trigger <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("watch error")
		case <-trigger:
			logger.Info().Str("path", abs).Msg("declaration changed, re-running")
			onChange()
		}
	}
}
