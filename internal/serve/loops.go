package serve

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/hupe1980/sphinxserve/internal/build"
	"github.com/hupe1980/sphinxserve/internal/notify"
	"github.com/hupe1980/sphinxserve/internal/watch"
)

// Builder compiles the source tree into the output directory.
// *build.Runner satisfies it.
type Builder interface {
	Build(ctx context.Context, source, output string) (*build.Result, error)
}

// Checker is implemented by builders that can verify the compiler before
// the first build.
type Checker interface {
	Check(ctx context.Context) (string, error)
}

// watchLoop raises pending for every event the source delivers. It returns
// nil when ctx is done and ErrWatchStreamEnded when the stream closes first.
func watchLoop(ctx context.Context, src watch.Source, pending *notify.Pending, last *atomic.Pointer[watch.Event], logger *slog.Logger) error {
	errs := src.Errors()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-src.Events():
			if !ok {
				if ctx.Err() != nil {
					return nil
				}

				return ErrWatchStreamEnded
			}

			logger.Debug("source changed",
				slog.String("path", ev.Path),
				slog.String("kind", ev.Kind.String()),
			)

			if last != nil {
				last.Store(&ev)
			}

			pending.Set()

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}

			logger.Warn("file watch error", slog.String("error", err.Error()))
		}
	}
}

// renderer runs builds on demand and announces successful ones.
type renderer struct {
	builder   Builder
	source    string
	output    string
	keepGoing bool
	pending   *notify.Pending
	reload    *notify.Broadcast
	last      *atomic.Pointer[watch.Event]
	status    *statusWriter
	logger    *slog.Logger
}

// loop waits for the rebuild signal, rebuilds, and fires the reload signal
// on success. Sets that arrive during a build schedule exactly one further
// build. A failed build ends the loop unless keepGoing is set.
func (r *renderer) loop(ctx context.Context) error {
	for {
		if err := r.pending.Wait(ctx); err != nil {
			return nil
		}

		if err := r.build(ctx, r.trigger()); err != nil {
			if ctx.Err() != nil {
				return nil
			}

			if !r.keepGoing {
				return err
			}

			r.logger.Warn("build failed, serving last good output", slog.String("error", err.Error()))

			continue
		}

		r.reload.Fire()
	}
}

// build runs the compiler once and reports the outcome.
func (r *renderer) build(ctx context.Context, trigger string) error {
	r.logger.Debug("building", slog.String("source", r.source), slog.String("output", r.output))

	res, err := r.builder.Build(ctx, r.source, r.output)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err != nil || !res.Succeeded() {
		failed := &BuildFailedError{Result: res, Err: err}

		if stderr := failed.Stderr(); stderr != "" {
			r.logger.Error("compiler reported errors", slog.String("stderr", stderr))
		}

		r.status.failed(trigger, failed)

		return failed
	}

	r.logger.Debug("build finished",
		slog.Duration("duration", res.Duration),
		slog.String("stdout", res.Stdout),
	)

	if res.Stderr != "" {
		r.logger.Warn("compiler warnings", slog.String("stderr", res.Stderr))
	}

	r.status.ok(trigger, res.Duration)

	return nil
}

func (r *renderer) trigger() string {
	if r.last == nil {
		return "change"
	}

	ev := r.last.Load()
	if ev == nil {
		return "change"
	}

	return ev.Path
}
