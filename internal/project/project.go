// Package project validates and scaffolds a documentation source tree.
package project

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// Well-known file names inside a source tree.
const (
	ConfFile  = "conf.py"
	IndexFile = "index.rst"
)

// DefaultOutputDir is the output directory, relative to the source tree,
// used when none is configured.
const DefaultOutputDir = "html"

var (
	// ErrMissingSource is returned when the source directory does not exist.
	ErrMissingSource = errors.New("source directory does not exist")

	// ErrMissingConf is returned when the compiler configuration is absent.
	ErrMissingConf = errors.New(ConfFile + " not found")

	// ErrMissingIndex is returned when the root document is absent.
	ErrMissingIndex = errors.New(IndexFile + " not found")
)

// DefaultConf is the minimal compiler configuration written by Scaffold.
const DefaultConf = "master_doc = 'index'\n"

// DefaultIndex is the placeholder root document written by Scaffold.
const DefaultIndex = `Index rst file
==============

This is the main reStructuredText page. It is meant as a
temporary example, ready to override.
`

// Check verifies that dir is a directory holding both ConfFile and IndexFile.
func Check(dir string) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrMissingSource, dir)
	}

	if !exists(filepath.Join(dir, IndexFile)) {
		return fmt.Errorf("%w in %s (run `sphinxserve init --index` to create one)", ErrMissingIndex, dir)
	}

	if !exists(filepath.Join(dir, ConfFile)) {
		return fmt.Errorf("%w in %s (run `sphinxserve init --conf` to create one)", ErrMissingConf, dir)
	}

	return nil
}

// ScaffoldOptions selects which files Scaffold writes.
type ScaffoldOptions struct {
	Conf  bool
	Index bool

	// Force overwrites files that already exist.
	Force bool

	// Logger receives overwrite warnings. Defaults to slog.Default().
	Logger *slog.Logger
}

// Scaffold creates dir if needed and writes the selected default files. It
// returns the paths it wrote; existing files are left untouched unless
// Force is set.
func Scaffold(dir string, opts ScaffoldOptions) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}

	var files []struct{ name, content string }
	if opts.Conf {
		files = append(files, struct{ name, content string }{ConfFile, DefaultConf})
	}

	if opts.Index {
		files = append(files, struct{ name, content string }{IndexFile, DefaultIndex})
	}

	var written []string

	for _, f := range files {
		p := filepath.Join(dir, f.name)
		if exists(p) && !opts.Force {
			continue
		}

		if err := NewFileWriter(p, WithLogger(opts.Logger)).Write([]byte(f.content)); err != nil {
			return written, err
		}

		written = append(written, p)
	}

	return written, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}
