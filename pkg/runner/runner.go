package runner

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/gridci/gridci/pkg/matrix"
	"github.com/gridci/gridci/pkg/telemetry"
)

// Work is one selected job together with its fully-expanded command sequence
// and static environment.
type Work struct {
	Selection matrix.Selection
	Commands  []string
	Env       map[string]string
}

// Observer receives job lifecycle notifications. Implementations must be safe
// for concurrent use; the runner calls them from worker goroutines.
type Observer interface {
	JobStarted(job matrix.Job)
	JobFinished(result matrix.JobResult)
	CommandFinished(job matrix.Job, result matrix.CommandResult)
}

// Tracer opens a span per job and per command, nested under whatever span the
// run context carries. telemetry.Tracer satisfies it.
type Tracer interface {
	StartJobSpan(ctx context.Context, job matrix.Job, allowFailure bool) (context.Context, trace.Span)
	StartCommandSpan(ctx context.Context, command string) (context.Context, trace.Span)
}

// Options configures a run.
type Options struct {
	// Parallel is the worker count. Values below one run jobs sequentially.
	Parallel int

	// Shell is passed through to the executor.
	Shell string

	// JobTimeout bounds one job's whole command sequence. Zero disables it.
	JobTimeout time.Duration

	// WorkDir is the working directory for commands; empty inherits.
	WorkDir string

	// InheritEnv controls whether the parent process environment is passed
	// to job commands. On by default from the CLI.
	InheritEnv bool

	// Observer is optional.
	Observer Observer

	// Tracer is optional; nil disables job and command spans.
	Tracer Tracer
}

// Runner executes matrix jobs on a worker pool.
//
// Jobs are independent units with no shared mutable state: they may run
// sequentially or concurrently without affecting results, and results are
// always emitted in input order regardless of completion order.
type Runner struct {
	executor Executor
	logger   zerolog.Logger
}

// New creates a runner on top of an executor.
func New(executor Executor, logger zerolog.Logger) *Runner {
	return &Runner{
		executor: executor,
		logger:   logger.With().Str("component", "runner").Logger(),
	}
}

// Run executes every entry of work and returns one JobResult per entry, in
// input order.
//
// Within a job the command sequence is fail-fast: the first non-zero exit (or
// start failure) records the job's final status and skips its remaining
// commands. Across jobs there is no fail-fast: every job runs to completion
// before aggregation.
//
// Cancelling ctx stops in-flight commands promptly; jobs that were running
// or had not started are reported as aborted, never omitted.
func (r *Runner) Run(ctx context.Context, work []Work, opts Options) []matrix.JobResult {
	results := make([]matrix.JobResult, len(work))

	workers := opts.Parallel
	if workers < 1 {
		workers = 1
	}
	if workers > len(work) {
		workers = len(work)
	}

	queue := make(chan int, len(work))
	for i := range work {
		queue <- i
	}
	close(queue)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range queue {
				// A cancelled run still drains the queue so every job is
				// accounted for in the report.
				if ctx.Err() != nil {
					results[idx] = r.abortedResult(work[idx], opts)
					continue
				}
				results[idx] = r.runJob(ctx, work[idx], opts)
			}
		}()
	}
	wg.Wait()

	return results
}

// runJob executes one job's command sequence.
func (r *Runner) runJob(ctx context.Context, w Work, opts Options) matrix.JobResult {
	job := w.Selection.Job
	logger := telemetry.WithJob(r.logger, job.Label())

	jobCtx := ctx
	cancel := context.CancelFunc(func() {})
	if opts.JobTimeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, opts.JobTimeout)
	}
	defer cancel()

	var jobSpan trace.Span
	if opts.Tracer != nil {
		jobCtx, jobSpan = opts.Tracer.StartJobSpan(jobCtx, job, w.Selection.AllowFailure)
	}

	if opts.Observer != nil {
		opts.Observer.JobStarted(job)
	}
	logger.Info().Int("commands", len(w.Commands)).Msg("job started")

	result := matrix.JobResult{
		Job:          job,
		AllowFailure: w.Selection.AllowFailure,
		Status:       matrix.JobStatusRunning,
		StartedAt:    time.Now(),
	}

	env := r.buildEnv(w, opts)
	cmdOpts := CommandOptions{Env: env, Dir: opts.WorkDir, Shell: opts.Shell}

	for _, command := range w.Commands {
		cmdCtx := jobCtx
		var cmdSpan trace.Span
		if opts.Tracer != nil {
			cmdCtx, cmdSpan = opts.Tracer.StartCommandSpan(jobCtx, command)
		}
		cmdResult := r.executor.RunCommand(cmdCtx, command, cmdOpts)
		if cmdSpan != nil {
			telemetry.RecordError(cmdSpan, cmdResult.Err)
			cmdSpan.End()
		}
		result.Commands = append(result.Commands, cmdResult)
		result.ExitCode = cmdResult.ExitCode

		if opts.Observer != nil {
			opts.Observer.CommandFinished(job, cmdResult)
		}

		if cmdResult.ExitCode != 0 || cmdResult.Err != nil {
			result.Status = r.failureStatus(ctx, jobCtx, cmdResult, w.Selection.AllowFailure)
			result.Err = cmdResult.Err
			logger.Warn().
				Str("command", command).
				Int("exit_code", cmdResult.ExitCode).
				Str("status", string(result.Status)).
				Msg("command failed, skipping remaining commands for this job")
			break
		}

		logger.Debug().
			Str("command", command).
			Dur("duration", cmdResult.Duration).
			Msg("command passed")
	}

	if result.Status == matrix.JobStatusRunning {
		result.Status = matrix.JobStatusPassed
	}
	result.FinishedAt = time.Now()

	if jobSpan != nil {
		telemetry.RecordError(jobSpan, result.Err)
		jobSpan.End()
	}
	if opts.Observer != nil {
		opts.Observer.JobFinished(result)
	}
	logger.Info().
		Str("status", string(result.Status)).
		Dur("duration", result.Duration()).
		Msg("job finished")

	return result
}

// failureStatus classifies a failed command into the job's final status.
func (r *Runner) failureStatus(runCtx, jobCtx context.Context, cmd matrix.CommandResult, allowFailure bool) matrix.JobStatus {
	switch {
	case runCtx.Err() != nil:
		// The whole run was cancelled mid-command.
		return matrix.JobStatusAborted
	case jobCtx.Err() != nil && matrix.IsCommand(cmd.Err):
		// Job timeout also surfaces as a context error; treat it as a
		// failure, not an abort, since the run itself continues.
		return failOrSoftFail(allowFailure)
	case matrix.IsCommand(cmd.Err):
		if allowFailure {
			return matrix.JobStatusSoftFailed
		}
		return matrix.JobStatusError
	default:
		return failOrSoftFail(allowFailure)
	}
}

func failOrSoftFail(allowFailure bool) matrix.JobStatus {
	if allowFailure {
		return matrix.JobStatusSoftFailed
	}
	return matrix.JobStatusFailed
}

// abortedResult records a job that never started because the run was
// cancelled.
func (r *Runner) abortedResult(w Work, opts Options) matrix.JobResult {
	result := matrix.JobResult{
		Job:          w.Selection.Job,
		AllowFailure: w.Selection.AllowFailure,
		Status:       matrix.JobStatusAborted,
		ExitCode:     -1,
		Err:          matrix.NewCancelledError("run cancelled before job started", nil),
	}
	if opts.Observer != nil {
		opts.Observer.JobFinished(result)
	}
	return result
}

// buildEnv synthesizes the job's environment: optionally the parent
// environment, then the declaration's static env in sorted key order, then
// one upper-cased variable per axis value, then runner bookkeeping
// variables. Identical work always yields an identical environment.
func (r *Runner) buildEnv(w Work, opts Options) []string {
	var env []string
	if opts.InheritEnv {
		env = os.Environ()
	}
	keys := make([]string, 0, len(w.Env))
	for key := range w.Env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		env = append(env, key+"="+w.Env[key])
	}
	for _, axis := range w.Selection.Job.AxisOrder {
		env = append(env, envName(axis)+"="+w.Selection.Job.Assignments[axis])
	}
	env = append(env, "GRIDCI_JOB="+w.Selection.Job.Label())
	env = append(env, fmt.Sprintf("GRIDCI_ALLOW_FAILURE=%t", w.Selection.AllowFailure))
	return env
}

// envName converts an axis name to an environment variable name: upper-cased
// with non-alphanumerics folded to underscores.
func envName(axis string) string {
	var b strings.Builder
	for _, r := range axis {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - ('a' - 'A'))
		case (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
