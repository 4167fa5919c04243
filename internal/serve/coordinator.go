package serve

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/sphinxserve/internal/build"
	"github.com/hupe1980/sphinxserve/internal/logging"
	"github.com/hupe1980/sphinxserve/internal/notify"
	"github.com/hupe1980/sphinxserve/internal/project"
	"github.com/hupe1980/sphinxserve/internal/server"
	"github.com/hupe1980/sphinxserve/internal/watch"
)

// Options is the immutable configuration of one Run.
type Options struct {
	// SourcePath is the documentation source directory.
	SourcePath string

	// OutputPath receives the compiler output and is served over HTTP.
	// Defaults to SourcePath/html.
	OutputPath string

	// KeepGoing keeps serving the last good output when a background
	// build fails instead of stopping.
	KeepGoing bool

	// Build configures the default compiler runner.
	Build build.Options

	// Watch configures the file event source. Root and the output
	// exclusion are filled in by Run.
	Watch watch.Options

	// Server configures the web server. Root is filled in by Run.
	Server server.Options

	// Out is the writer for user-facing status messages.
	Out io.Writer

	// Logger is used for structured logging.
	Logger *slog.Logger
}

// DefaultOptions returns sensible default options for the current directory.
func DefaultOptions() Options {
	return Options{
		SourcePath: ".",
		Build:      build.DefaultOptions(),
		Watch:      watch.DefaultOptions(),
		Server:     server.DefaultOptions(),
		Out:        os.Stderr,
		Logger:     slog.Default(),
	}
}

// Deps replaces the default collaborators. Zero fields use the defaults.
type Deps struct {
	// Builder runs the compiler. Defaults to build.New(opts.Build).
	Builder Builder

	// OpenSource starts the file watch. Defaults to watch.Open.
	OpenSource func(watch.Options) (watch.Source, error)
}

// Run serves SourcePath until ctx is done or a termination signal
// arrives, in which case it returns nil. Startup problems and fatal task
// failures are returned as errors; a failed build is a *BuildFailedError.
func Run(ctx context.Context, opts Options, deps Deps) error {
	opts, err := resolve(opts)
	if err != nil {
		return err
	}

	logger := opts.Logger
	status := newStatusWriter(opts.Out)

	// Installed before the first build so an interrupt during a slow initial
	// build still cancels the compiler.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := project.Check(opts.SourcePath); err != nil {
		return err
	}

	builder := deps.Builder
	if builder == nil {
		bopts := opts.Build
		bopts.Logger = logging.Component(logger, "build")
		builder = build.New(bopts)
	}

	if c, ok := builder.(Checker); ok {
		v, err := c.Check(ctx)
		if err != nil {
			return err
		}

		if v != "" {
			logger.Debug("compiler version", slog.String("version", v))
		}
	}

	open := deps.OpenSource
	if open == nil {
		open = watch.Open
	}

	wopts := opts.Watch
	wopts.Root = opts.SourcePath
	wopts.Exclude = append(append([]string(nil), wopts.Exclude...), opts.OutputPath)
	wopts.Logger = logging.Component(logger, "watch")

	src, err := open(wopts)
	if err != nil {
		return err
	}
	defer src.Close()

	pending := notify.NewPending()
	reload := notify.NewBroadcast()

	var last atomic.Pointer[watch.Event]

	r := &renderer{
		builder:   builder,
		source:    opts.SourcePath,
		output:    opts.OutputPath,
		keepGoing: opts.KeepGoing,
		pending:   pending,
		reload:    reload,
		last:      &last,
		status:    status,
		logger:    logger,
	}

	// The first build must succeed before anything is served.
	if err := r.build(ctx, "initial build"); err != nil {
		if ctx.Err() != nil {
			status.stopping()
			return nil
		}

		return err
	}

	sopts := opts.Server
	sopts.Root = opts.OutputPath
	sopts.Logger = logging.Component(logger, "server")

	srv := server.New(sopts, reload)
	if err := srv.Listen(); err != nil {
		return err
	}

	status.serving("http://"+srv.Addr()+"/", opts.SourcePath)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return watchLoop(gctx, src, pending, &last, logger)
	})

	g.Go(func() error {
		return r.loop(gctx)
	})

	g.Go(func() error {
		return srv.Serve(gctx)
	})

	err = g.Wait()

	if err == nil {
		status.stopping()
	}

	return err
}

// resolve fills defaults and makes paths absolute.
func resolve(opts Options) (Options, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.SourcePath == "" {
		opts.SourcePath = "."
	}

	src, err := filepath.Abs(opts.SourcePath)
	if err != nil {
		return opts, fmt.Errorf("resolving source path %q: %w", opts.SourcePath, err)
	}

	opts.SourcePath = src

	if opts.OutputPath == "" {
		opts.OutputPath = filepath.Join(src, project.DefaultOutputDir)
	}

	out, err := filepath.Abs(opts.OutputPath)
	if err != nil {
		return opts, fmt.Errorf("resolving output path %q: %w", opts.OutputPath, err)
	}

	opts.OutputPath = out

	return opts, nil
}
