package build

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"time"
)

// DefaultCommand is the compiler used when none is configured.
const DefaultCommand = "sphinx-build"

// Result is the outcome of one compiler invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Succeeded reports whether the compiler exited with status zero.
func (r *Result) Succeeded() bool {
	return r != nil && r.ExitCode == 0
}

// Options configures a Runner.
type Options struct {
	// Command is the compiler executable, looked up on PATH.
	Command string

	// Args are passed before the source and output paths.
	Args []string

	// Env is appended to the inherited environment of the compiler.
	Env []string

	// MinVersion is an optional semver constraint (e.g. ">= 1.8") checked
	// against `<command> --version` by Check.
	MinVersion string

	// Retries is how many times a launch that failed for a transient
	// reason (resource exhaustion) is retried. Compiler errors are never
	// retried.
	Retries int

	// Backoff is the delay before the first retry; it doubles per attempt.
	Backoff time.Duration

	// WaitDelay bounds how long output pipes are drained after the
	// process has been killed.
	WaitDelay time.Duration

	// Logger is used for structured logging.
	Logger *slog.Logger
}

// DefaultOptions returns sensible default runner options.
func DefaultOptions() Options {
	return Options{
		Command:   DefaultCommand,
		Retries:   3,
		Backoff:   200 * time.Millisecond,
		WaitDelay: 2 * time.Second,
		Logger:    slog.Default(),
	}
}

// Runner invokes the document compiler. It is safe for sequential reuse;
// every Build starts a fresh process.
type Runner struct {
	opts  Options
	start func(*exec.Cmd) error
}

// New creates a Runner from opts.
func New(opts Options) *Runner {
	if opts.Command == "" {
		opts.Command = DefaultCommand
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Runner{opts: opts, start: (*exec.Cmd).Start}
}

// Command returns the configured compiler executable.
func (r *Runner) Command() string { return r.opts.Command }

// Build renders source into output. The returned Result is non-nil whenever
// the compiler process ran, including when ctx was cancelled mid-run; in
// that case the process group is killed and ctx.Err() is returned too.
func (r *Runner) Build(ctx context.Context, source, output string) (*Result, error) {
	backoff := r.opts.Backoff

	for attempt := 0; ; attempt++ {
		res, err := r.run(ctx, source, output)
		if err == nil || !isTransient(err) || attempt >= r.opts.Retries {
			return res, err
		}

		r.opts.Logger.Warn("compiler launch failed, retrying",
			slog.String("command", r.opts.Command),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()),
		)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		backoff *= 2
	}
}

func (r *Runner) run(ctx context.Context, source, output string) (*Result, error) {
	args := append(slices.Clone(r.opts.Args), source, output)

	cmd := exec.CommandContext(ctx, r.opts.Command, args...) //nolint:gosec
	if len(r.opts.Env) > 0 {
		cmd.Env = append(os.Environ(), r.opts.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = r.opts.WaitDelay

	configureProcess(cmd)

	r.opts.Logger.Debug("starting compiler",
		slog.String("command", r.opts.Command),
		slog.Any("args", args),
	)

	started := time.Now()

	if err := r.start(cmd); err != nil {
		return nil, fmt.Errorf("starting %s: %w", r.opts.Command, err)
	}

	waitErr := cmd.Wait()

	res := &Result{
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(started),
	}

	if ctx.Err() != nil {
		return res, ctx.Err()
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return res, fmt.Errorf("running %s: %w", r.opts.Command, waitErr)
	}

	return res, nil
}
