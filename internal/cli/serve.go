package cli

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/sphinxserve/internal/config"
	"github.com/hupe1980/sphinxserve/internal/logging"
	"github.com/hupe1980/sphinxserve/internal/project"
	"github.com/hupe1980/sphinxserve/internal/serve"
	"github.com/hupe1980/sphinxserve/internal/watch"
)

// quietFlag makes sphinx-build print errors only.
const quietFlag = "-Q"

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [SOURCE_PATH]",
		Short: "Build, watch, and serve a documentation source directory",
		Long: `Serve builds SOURCE_PATH (default: the current directory) into
<SOURCE_PATH>/html, serves the output on http://localhost:8888, and
rebuilds whenever a .rst or .txt file changes. Open pages reload
automatically after each successful rebuild.

The source directory must contain conf.py and index.rst; use
"sphinxserve init" to create them.

A failed initial build stops sphinxserve before anything is served. A
failed rebuild stops it too, unless --keep-going is set, in which case
the last good output keeps being served.`,
		Example: `  sphinxserve
  sphinxserve serve docs --socket 0.0.0.0:8000
  sphinxserve serve docs --builder-args=-W --keep-going
  sphinxserve serve docs --polling --poll-interval 2s`,
		Args: cobra.MaximumNArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return nil, cobra.ShellCompDirectiveFilterDirs
		},
		RunE: runServe,
	}

	registerServeFlags(cmd)

	return cmd
}

// registerServeFlags adds the serve flags to a cobra command. The values
// are read back through config.Load.
func registerServeFlags(cmd *cobra.Command) {
	d := config.Default()

	f := cmd.Flags()
	f.String("socket", "", "listen socket as host:port (overrides --host and --port)")
	f.String("host", d.Host, "HTTP listen host")
	f.Int("port", d.Port, "HTTP listen port")
	f.String("output-dir", d.OutputDir, "output directory, relative to the source path")
	f.StringSlice("extensions", d.Extensions, "source file extensions that trigger a rebuild")
	f.String("builder", d.Builder, "document compiler executable")
	f.StringArray("builder-args", nil, "extra compiler argument (repeatable)")
	f.String("min-builder-version", "", "required compiler version constraint, e.g. \">= 1.8\"")
	f.Duration("debounce", d.Debounce, "quiet period before a change triggers a rebuild")
	f.Bool("polling", false, "poll the file system instead of using native notifications")
	f.Duration("poll-interval", d.PollInterval, "scan interval when --polling is set")
	f.Bool("keep-going", false, "keep serving the last good output when a rebuild fails")
	f.StringSlice("strip-font-hosts", d.StripFontHosts, "CSS @import hosts to strip from stylesheets")
	f.Duration("long-poll-timeout", 0, "maximum duration of a reload long-poll (0 waits forever)")
	f.Duration("shutdown-timeout", d.ShutdownTimeout, "graceful HTTP shutdown timeout")
	f.Int("launch-retries", d.LaunchRetries, "retries for transient compiler launch failures")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	logger := logging.FromContext(ctx)

	opts := serveOptions(cfg, args)
	opts.Out = cmd.ErrOrStderr()
	opts.Logger = logger
	opts.Build.Args = compilerArgs(cfg.BuilderArgs, logging.Debug(logger))

	err := serve.Run(ctx, opts, serve.Deps{})
	if err == nil {
		return nil
	}

	var failed *serve.BuildFailedError
	if errors.As(err, &failed) {
		if stderr := strings.TrimSpace(failed.Stderr()); stderr != "" {
			fmt.Fprintln(cmd.ErrOrStderr(), stderr)
		}
	}

	if errors.Is(err, project.ErrMissingSource) {
		return &ExitError{Code: 2, Err: err}
	}

	return &ExitError{Code: 1, Err: err}
}

// serveOptions maps the loaded configuration onto coordinator options.
func serveOptions(cfg *config.Config, args []string) serve.Options {
	source := cfg.SourcePath
	if len(args) == 1 {
		source = args[0]
	}

	if source == "" {
		source = "."
	}

	opts := serve.DefaultOptions()
	opts.SourcePath = source
	opts.OutputPath = cfg.ResolveOutputDir(source)
	opts.KeepGoing = cfg.KeepGoing

	opts.Build.Command = cfg.Builder
	opts.Build.Args = cfg.BuilderArgs
	opts.Build.MinVersion = cfg.MinBuilderVersion
	opts.Build.Retries = cfg.LaunchRetries

	opts.Watch.Extensions = watch.NewExtensionSet(cfg.Extensions...)
	opts.Watch.Debounce = cfg.Debounce
	opts.Watch.Polling = cfg.Polling
	opts.Watch.PollInterval = cfg.PollInterval

	opts.Server.Host = cfg.Host
	opts.Server.Port = cfg.Port
	opts.Server.FontHosts = cfg.StripFontHosts
	opts.Server.LongPollTimeout = cfg.LongPollTimeout
	opts.Server.ShutdownTimeout = cfg.ShutdownTimeout

	return opts
}

// compilerArgs returns the compiler arguments. Unless debug logging is on,
// the compiler runs quietly and only reports errors.
func compilerArgs(extra []string, debug bool) []string {
	args := make([]string, 0, len(extra)+1)

	if !debug && !slices.Contains(extra, quietFlag) {
		args = append(args, quietFlag)
	}

	return append(args, extra...)
}
