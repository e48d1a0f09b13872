// Package runner launches the external analysis tool for a configuration,
// streams its combined output while it runs and turns the outcome into a
// result.Result.
//
// A Runner executes at most one job at a time:
//
//	r := runner.New(runner.Options{Binary: "osa_tool", WorkDir: dir})
//	lines, handle, err := r.Start(ctx, cfg)
//	for l := range lines {
//	    fmt.Println(l.Text)
//	}
//	res, err := handle.Result()
//
// Failures to launch the tool are reported inside the result (exit code 127)
// rather than as errors.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/greg-hellings/osapanel/pkg/jobconfig"
	"github.com/greg-hellings/osapanel/pkg/report"
	"github.com/greg-hellings/osapanel/pkg/result"
	"github.com/greg-hellings/osapanel/pkg/state"
)

const (
	// ExitLaunchFailure is reported when the tool could not be started.
	ExitLaunchFailure = 127
	// ExitTimeout is reported when the tool exceeded Options.Timeout.
	ExitTimeout = 124
	// ExitInterrupted is reported when the caller's context stopped the tool.
	ExitInterrupted = 130

	// DefaultBinary is the analysis tool executable.
	DefaultBinary = "osa_tool"
	// DefaultMaxLogBytes bounds the captured log.
	DefaultMaxLogBytes = 4 << 20

	failureTailLines = 10
	streamBuffer     = 256
)

// ErrReentrant is returned when a job is started while another is running.
var ErrReentrant = errors.New("a job is already running")

// State is the lifecycle position of a Runner.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// LaunchError describes a tool that could not be started.
type LaunchError struct {
	Binary string
	Err    error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch %s: %v", e.Binary, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// OutputLine is one line of combined tool output.
type OutputLine struct {
	Text string
	Time time.Time
}

// Options configures a Runner.
type Options struct {
	// Binary is the tool executable (DefaultBinary if empty).
	Binary string
	// ExtraArgs are placed before the generated arguments.
	ExtraArgs []string
	// WorkDir is the session scoped directory; each run gets its own output
	// directory inside it.
	WorkDir string
	// Timeout stops the tool after the given duration. Zero means no limit.
	Timeout time.Duration
	// Token is handed to the tool as GIT_TOKEN.
	Token string
	// Env holds additional KEY=VALUE entries for the tool.
	Env []string

	ReportPatterns []string
	SummaryFile    string
	MaxLogBytes    int

	Executor CommandExecutor
}

// Handle provides access to the terminal result of a started job.
type Handle struct {
	mu     sync.RWMutex
	result *result.Result
	err    error
	done   chan struct{}
}

// Result blocks until the job completes. The error is non-nil only when the
// caller's context ended the job; the result is populated either way.
func (h *Handle) Result() (*result.Result, error) {
	<-h.done
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.result.Clone(), h.err
}

// Done returns a channel closed when the job finishes.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Runner executes analysis jobs one at a time.
type Runner struct {
	opts      Options
	exec      CommandExecutor
	collector *report.Collector

	mu    sync.Mutex
	state State
	live  *logBuffer
}

// New creates a Runner.
func New(opts Options) *Runner {
	if opts.Binary == "" {
		opts.Binary = DefaultBinary
	}
	if opts.MaxLogBytes == 0 {
		opts.MaxLogBytes = DefaultMaxLogBytes
	}
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	executor := opts.Executor
	if executor == nil {
		executor = NewExecutor()
	}
	return &Runner{
		opts:      opts,
		exec:      executor,
		collector: report.NewCollector(opts.ReportPatterns, opts.SummaryFile),
	}
}

// State returns the current lifecycle state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Log returns the output captured so far for the current or last job.
func (r *Runner) Log() string {
	r.mu.Lock()
	live := r.live
	r.mu.Unlock()
	if live == nil {
		return ""
	}
	return live.String()
}

// Invoke runs cfg to completion and returns its result. It returns
// ErrReentrant without starting anything while another job is running.
func (r *Runner) Invoke(ctx context.Context, cfg jobconfig.Configuration) (*result.Result, error) {
	lines, handle, err := r.Start(ctx, cfg)
	if err != nil {
		return nil, err
	}
	for range lines {
	}
	return handle.Result()
}

// Start launches cfg asynchronously. The returned channel carries output
// lines in arrival order and is closed when the job ends; callers must drain
// it, the tool's output is not read while the channel is full.
func (r *Runner) Start(ctx context.Context, cfg jobconfig.Configuration) (<-chan OutputLine, *Handle, error) {
	r.mu.Lock()
	if r.state == StateRunning {
		r.mu.Unlock()
		return nil, nil, ErrReentrant
	}
	r.state = StateRunning
	live := newLogBuffer(r.opts.MaxLogBytes)
	r.live = live
	r.mu.Unlock()

	// Freeze the configuration for the lifetime of the job.
	cfg = cfg.Clone()

	lines := make(chan OutputLine, streamBuffer)
	handle := &Handle{done: make(chan struct{})}

	go func() {
		defer close(handle.done)
		defer close(lines)

		res, err := r.run(ctx, cfg, live, lines)

		handle.mu.Lock()
		handle.result = res
		handle.err = err
		handle.mu.Unlock()

		r.mu.Lock()
		r.state = StateCompleted
		r.mu.Unlock()
	}()

	return lines, handle, nil
}

func (r *Runner) run(ctx context.Context, cfg jobconfig.Configuration, live *logBuffer, lines chan<- OutputLine) (*result.Result, error) {
	res := &result.Result{StartedAt: time.Now()}
	red := newRedactor(r.opts.Token, cfg.APIKey)

	emit := func(text string) {
		text = red.Redact(text)
		live.AppendLine(text)
		lines <- OutputLine{Text: text, Time: time.Now()}
	}

	outDir, err := os.MkdirTemp(r.opts.WorkDir, "run-*")
	if err != nil {
		r.launchFailed(res, emit, &LaunchError{Binary: r.opts.Binary, Err: fmt.Errorf("create output directory: %w", err)})
		finish(res, live)
		return res, nil
	}

	args := append(append([]string(nil), r.opts.ExtraArgs...), BuildArgs(cfg, outDir)...)

	runCtx := ctx
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	slog.Info("Starting analysis tool",
		"binary", r.opts.Binary,
		"repository", cfg.RepositoryURL,
		"mode", cfg.Mode,
		"output", outDir,
		"token", state.RedactToken(r.opts.Token))
	slog.Debug("Analysis tool arguments", "args", red.Redact(strings.Join(args, " ")))

	out := newLineWriter(emit)
	execRes, execErr := r.exec.Run(runCtx, r.opts.Binary, args, ExecOptions{
		Dir:    r.opts.WorkDir,
		Env:    r.env(cfg),
		Output: out,
	})
	out.Flush()

	exited := execErr == nil && execRes.ExitCode == 0
	timedOut := !exited && r.opts.Timeout > 0 && ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded)
	interrupted := !exited && ctx.Err() != nil

	switch {
	case timedOut:
		res.ExitCode = ExitTimeout
		res.TimedOut = true
		emit(fmt.Sprintf("error: analysis tool timed out after %s", r.opts.Timeout))
	case interrupted:
		res.ExitCode = ExitInterrupted
		res.Interrupted = true
		emit(fmt.Sprintf("error: analysis tool was interrupted: %v", context.Cause(ctx)))
	case execErr != nil:
		r.launchFailed(res, emit, &LaunchError{Binary: r.opts.Binary, Err: execErr})
	default:
		res.ExitCode = execRes.ExitCode
	}

	arts, err := r.collector.Collect(outDir)
	if err != nil {
		slog.Warn("Failed to collect run artifacts", "dir", outDir, "error", err)
		res.Warnings = append(res.Warnings, fmt.Sprintf("could not collect reports: %v", err))
	} else {
		res.ReportFiles = arts.Files
		res.Summary = arts.Summary
	}

	finish(res, live)

	slog.Info("Analysis tool finished",
		"exitCode", res.ExitCode,
		"timedOut", res.TimedOut,
		"interrupted", res.Interrupted,
		"reports", len(res.ReportFiles),
		"duration", res.Duration())

	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	return res, nil
}

func (r *Runner) launchFailed(res *result.Result, emit func(string), err *LaunchError) {
	slog.Error("Analysis tool could not be launched", "binary", err.Binary, "error", err.Err)
	res.ExitCode = ExitLaunchFailure
	emit("error: " + err.Error())
}

func (r *Runner) env(cfg jobconfig.Configuration) []string {
	env := append([]string(nil), r.opts.Env...)
	if r.opts.Token != "" {
		env = append(env, state.TokenEnvVar+"="+r.opts.Token)
	}
	if cfg.APIKey != "" {
		env = append(env, state.APIKeyEnvVar+"="+cfg.APIKey)
	}
	return env
}

func finish(res *result.Result, live *logBuffer) {
	if live.Truncated() {
		res.Warnings = append(res.Warnings, "log output was truncated")
	}
	if res.ReportFiles == nil {
		res.ReportFiles = []result.ReportFile{}
	}
	res.Log = live.String()
	res.Succeeded = res.ExitCode == 0
	res.Message = message(res)
	res.FinishedAt = time.Now()
}

func message(res *result.Result) string {
	switch {
	case res.TimedOut:
		return result.MessageTimeout
	case res.Interrupted:
		return result.MessageInterrupted
	case res.Succeeded:
		return result.MessageSuccess
	}
	tail := tailLines(res.Log, failureTailLines)
	if len(tail) == 0 {
		return result.MessageFailure
	}
	return result.MessageFailure + "\n" + strings.Join(tail, "\n")
}
