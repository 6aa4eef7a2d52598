package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/gridci/gridci/pkg/config"
	"github.com/gridci/gridci/pkg/matrix"
	"github.com/gridci/gridci/pkg/policy"
	"github.com/gridci/gridci/pkg/report"
	"github.com/gridci/gridci/pkg/runner"
	"github.com/gridci/gridci/pkg/stores"
	"github.com/gridci/gridci/pkg/telemetry"
	sshtransport "github.com/gridci/gridci/pkg/transports/ssh"
)

// pipelineOptions configures one matrix run from load to report.
type pipelineOptions struct {
	// ConfigPath is the matrix declaration file.
	ConfigPath string

	// Parallel overrides the declaration's worker count when positive.
	Parallel int

	// Timeout overrides the declaration's per-job timeout when positive.
	Timeout time.Duration

	// WorkDir overrides the command working directory.
	WorkDir string

	// Targets restricts execution to jobs matching any of these partial
	// axis=value selectors. Empty runs every selected job.
	Targets []string

	// DryRun resolves and admits the matrix, prints the selection, and
	// skips execution.
	DryRun bool

	// MaxJobs is the policy job budget; zero means unlimited.
	MaxJobs int

	// PolicyDir holds additional user .rego policies.
	PolicyDir string

	// SkipHistory disables run persistence.
	SkipHistory bool

	// Metrics is the optional run observer; nil disables collection.
	Metrics *telemetry.Metrics

	// Tracer is the optional span source; nil disables tracing.
	Tracer *telemetry.Tracer
}

// runPipeline resolves, admits, executes, and reports one matrix run. The
// returned report is non-nil whenever execution started; a dry run or an
// error before execution (load, validation, policy denial) returns nil.
func runPipeline(ctx context.Context, logger zerolog.Logger, opts pipelineOptions) (*report.Report, error) {
	startedAt := time.Now()

	// The run ID is minted up front so logs, the trace span, and the
	// persisted report all share it.
	runID := uuid.New().String()
	logger = telemetry.WithRun(logger, runID)

	loader := config.NewLoader(logger)
	cfg, err := loader.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	axes := cfg.ToAxes()
	jobs, err := matrix.Expand(axes)
	if err != nil {
		return nil, err
	}
	selections := matrix.ApplyRules(jobs, cfg.ExcludeRules(), cfg.AllowFailureRules())
	excluded := len(jobs) - len(selections)

	logger.Info().
		Str("matrix", cfg.Name).
		Int("jobs", len(jobs)).
		Int("selected", len(selections)).
		Int("excluded", excluded).
		Msg("matrix resolved")

	if err := admitMatrix(ctx, logger, cfg, jobs, selections, opts); err != nil {
		return nil, err
	}

	if len(opts.Targets) > 0 {
		selections, err = filterTargets(selections, opts.Targets)
		if err != nil {
			return nil, err
		}
		logger.Info().Int("targeted", len(selections)).Msg("target filter applied")
	}

	if opts.DryRun {
		printSelections(os.Stdout, selections)
		return nil, nil
	}

	exec, workDir, cleanup, err := buildExecutor(ctx, logger, cfg, opts.WorkDir)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	work := make([]runner.Work, 0, len(selections))
	for _, sel := range selections {
		resolved := cfg.ResolveJob(sel.Job)
		work = append(work, runner.Work{
			Selection: sel,
			Commands:  resolved.Commands,
			Env:       resolved.Env,
		})
	}

	parallel := cfg.Runner.Parallel
	if opts.Parallel > 0 {
		parallel = opts.Parallel
	}
	jobTimeout, err := cfg.Runner.JobTimeout()
	if err != nil {
		return nil, err
	}
	if opts.Timeout > 0 {
		jobTimeout = opts.Timeout
	}

	runCtx := ctx
	var runSpan trace.Span
	var tracer runner.Tracer
	if opts.Tracer != nil {
		runCtx, runSpan = opts.Tracer.StartRunSpan(ctx, runID, cfg.Name, len(selections))
		tracer = opts.Tracer
	}
	var observer runner.Observer
	if opts.Metrics != nil {
		opts.Metrics.RecordRunStarted()
		observer = opts.Metrics
	}

	results := runner.New(exec, logger).Run(runCtx, work, runner.Options{
		Parallel:   parallel,
		Shell:      cfg.Runner.Shell,
		JobTimeout: jobTimeout,
		WorkDir:    workDir,
		InheritEnv: true,
		Observer:   observer,
		Tracer:     tracer,
	})

	rep := report.New(cfg.Name, opts.ConfigPath, excluded, results, startedAt)
	rep.RunID = runID
	if runSpan != nil {
		runSpan.End()
	}

	if opts.Metrics != nil {
		opts.Metrics.RecordRunCompleted(rep.Verdict, rep.Summary.Duration)
	}

	if !opts.SkipHistory {
		if err := persistReport(ctx, logger, rep); err != nil {
			logger.Warn().Err(err).Msg("run history not saved")
		}
	}

	logger.Info().
		Str("run_id", rep.RunID).
		Str("verdict", string(rep.Verdict)).
		Int("passed", rep.Summary.Passed).
		Int("failed", rep.Summary.Failed).
		Int("soft_failed", rep.Summary.SoftFailed).
		Msg("run complete")

	return rep, nil
}

// admitMatrix evaluates the admission policies against the resolved matrix.
func admitMatrix(ctx context.Context, logger zerolog.Logger, cfg *config.MatrixConfig, jobs []matrix.Job, selections []matrix.Selection, opts pipelineOptions) error {
	engine, err := policy.NewEngine(ctx, logger)
	if err != nil {
		return err
	}
	if opts.PolicyDir != "" {
		if err := engine.LoadDir(ctx, opts.PolicyDir); err != nil {
			return err
		}
	}

	allowed := 0
	for _, sel := range selections {
		if sel.AllowFailure {
			allowed++
		}
	}
	axes := make([]policy.AxisInput, 0, len(cfg.Axes))
	for _, a := range cfg.Axes {
		axes = append(axes, policy.AxisInput{Name: a.Name, Values: a.Values})
	}

	result, err := engine.Evaluate(ctx, &policy.Input{
		Name:          cfg.Name,
		Axes:          axes,
		JobCount:      len(jobs),
		SelectedCount: len(selections),
		AllowedCount:  allowed,
		MaxJobs:       opts.MaxJobs,
	})
	if err != nil {
		return err
	}
	if !result.Allowed {
		msgs := make([]string, 0, len(result.Violations))
		for _, v := range result.Violations {
			msgs = append(msgs, fmt.Sprintf("%s: %s", v.Policy, v.Message))
		}
		return matrix.NewConfigurationError(
			"matrix denied by policy:\n  "+strings.Join(msgs, "\n  "), nil).
			WithCode(matrix.ErrCodePolicyDenied)
	}
	return nil
}

// buildExecutor selects local or remote execution from the declaration. The
// cleanup function closes any remote connection and is safe to call always.
func buildExecutor(ctx context.Context, logger zerolog.Logger, cfg *config.MatrixConfig, workDirOverride string) (runner.Executor, string, func(), error) {
	if cfg.Remote == nil {
		return runner.NewLocalExecutor(), workDirOverride, func() {}, nil
	}

	sshCfg := sshtransport.DefaultConfig(cfg.Remote.Host, cfg.Remote.User)
	sshCfg.KeyFile = cfg.Remote.KeyFile
	if cfg.Remote.KnownHostsFile != "" {
		sshCfg.KnownHostsFile = cfg.Remote.KnownHostsFile
	}
	sshCfg.WorkDir = cfg.Remote.WorkDir

	client, err := sshtransport.NewClient(sshCfg, logger)
	if err != nil {
		return nil, "", func() {}, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, "", func() {}, err
	}
	if err := client.Stage(ctx, cfg.Remote.Upload); err != nil {
		_ = client.Close()
		return nil, "", func() {}, err
	}

	workDir := cfg.Remote.WorkDir
	if workDirOverride != "" {
		workDir = workDirOverride
	}
	return sshtransport.NewExecutor(client), workDir, func() { _ = client.Close() }, nil
}

// filterTargets keeps the selections matching any target selector. Each
// selector is a comma-separated list of axis=value pairs forming one
// partial-match rule.
func filterTargets(selections []matrix.Selection, targets []string) ([]matrix.Selection, error) {
	rules := make([]matrix.Rule, 0, len(targets))
	for _, target := range targets {
		rule := matrix.Rule{}
		for _, pair := range strings.Split(target, ",") {
			axis, value, ok := strings.Cut(pair, "=")
			if !ok || axis == "" {
				return nil, matrix.NewConfigurationError(
					fmt.Sprintf("invalid target %q: want axis=value[,axis=value]", target), nil)
			}
			rule[strings.TrimSpace(axis)] = strings.TrimSpace(value)
		}
		rules = append(rules, rule)
	}

	var kept []matrix.Selection
	for _, sel := range selections {
		for _, rule := range rules {
			if rule.Matches(sel.Job) {
				kept = append(kept, sel)
				break
			}
		}
	}
	return kept, nil
}

// printSelections renders the dry-run job table.
func printSelections(w io.Writer, selections []matrix.Selection) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tDISPOSITION")
	for _, sel := range selections {
		disposition := "run"
		if sel.AllowFailure {
			disposition = "allow-failure"
		}
		fmt.Fprintf(tw, "%s\t%s\n", sel.Job.Label(), disposition)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "\n%d jobs would run\n", len(selections))
}

// persistReport saves a finished run to the history database.
func persistReport(ctx context.Context, logger zerolog.Logger, rep *report.Report) error {
	store, err := stores.NewSQLiteStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Init(ctx); err != nil {
		return err
	}
	if err := store.SaveReport(ctx, rep); err != nil {
		return err
	}
	logger.Debug().Str("run_id", rep.RunID).Str("db", dbPath).Msg("run history saved")
	return nil
}

// writeReport renders the report in the format chosen by the global flag.
func writeReport(rep *report.Report, w io.Writer) error {
	if jsonOutput {
		return rep.WriteJSON(w)
	}
	return rep.WriteText(w)
}
