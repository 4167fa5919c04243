package cli

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hupe1980/sphinxserve/internal/config"
	"github.com/hupe1980/sphinxserve/internal/project"
)

type initOptions struct {
	conf       bool
	index      bool
	configFile bool
	force      bool
}

func newInitCommand() *cobra.Command {
	opts := &initOptions{}

	cmd := &cobra.Command{
		Use:   "init [PATH]",
		Short: "Create a minimal documentation source tree",
		Long: `Init creates PATH (default: the current directory) and writes the files
sphinxserve needs to start: a minimal conf.py and a placeholder
index.rst. With --config-file it also writes a commented .sphinxserve.yaml
holding the current settings.

Without any of --conf, --index, or --config-file, both conf.py and
index.rst are created. Existing files are kept unless --force is set.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}

			return runInit(cmd, dir, opts)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opts.conf, "conf", false, "write a minimal "+project.ConfFile)
	f.BoolVar(&opts.index, "index", false, "write a placeholder "+project.IndexFile)
	f.BoolVar(&opts.configFile, "config-file", false, "write "+config.FileName+" with the current settings")
	f.BoolVar(&opts.force, "force", false, "overwrite existing files")

	return cmd
}

func runInit(cmd *cobra.Command, dir string, opts *initOptions) error {
	if !opts.conf && !opts.index && !opts.configFile {
		opts.conf, opts.index = true, true
	}

	written, err := project.Scaffold(dir, project.ScaffoldOptions{
		Conf:  opts.conf,
		Index: opts.index,
		Force: opts.force,
	})
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	if opts.configFile {
		p := filepath.Join(dir, config.FileName)

		switch err := config.WriteFile(p, config.FromContext(cmd.Context()), opts.force); {
		case err == nil:
			written = append(written, p)
		case errors.Is(err, config.ErrFileExists):
			// kept
		default:
			return &ExitError{Code: 1, Err: err}
		}
	}

	w := cmd.OutOrStdout()

	if len(written) == 0 {
		fmt.Fprintln(w, "nothing to do: all files already exist (use --force to overwrite)")
		return nil
	}

	for _, p := range written {
		fmt.Fprintf(w, "created %s\n", p)
	}

	return nil
}
