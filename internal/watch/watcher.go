package watch

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrNotDirectory is returned by Open when the watch root is not a directory.
var ErrNotDirectory = errors.New("not a directory")

// Source is a running watch over a directory tree.
type Source interface {
	// Events delivers accepted changes. The channel is closed when the
	// source stops, either through Close or because the underlying
	// facility failed.
	Events() <-chan Event

	// Errors delivers non-fatal errors reported by the watch facility.
	Errors() <-chan error

	// Close stops watching and releases all OS handles.
	Close() error
}

// Options configures a Source.
type Options struct {
	// Root is the directory watched recursively.
	Root string

	// Extensions selects which file names produce events.
	Extensions ExtensionSet

	// Exclude lists directories that are never watched.
	Exclude []string

	// Polling selects the polling source instead of native notifications.
	Polling bool

	// PollInterval is the scan period of the polling source.
	PollInterval time.Duration

	// Debounce is an optional quiet period; zero emits every event.
	Debounce time.Duration

	// Logger is used for structured logging.
	Logger *slog.Logger
}

// DefaultOptions returns sensible default watch options.
func DefaultOptions() Options {
	return Options{
		Extensions:   NewExtensionSet(DefaultExtensions...),
		PollInterval: time.Second,
		Logger:       slog.Default(),
	}
}

// Open starts watching opts.Root. It fails fast when the root does not
// exist or the OS watch cannot be established.
func Open(opts Options) (Source, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Extensions.Len() == 0 {
		opts.Extensions = NewExtensionSet(DefaultExtensions...)
	}

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving watch root %q: %w", opts.Root, err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("watching %s: %w", root, err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("watching %s: %w", root, ErrNotDirectory)
	}

	f, err := newFilter(root, opts.Extensions, opts.Exclude)
	if err != nil {
		return nil, err
	}

	var src Source
	if opts.Polling {
		src, err = newPollingSource(f, opts.PollInterval, opts.Logger)
	} else {
		src, err = newNativeSource(f, opts.Logger)
	}

	if err != nil {
		return nil, err
	}

	if opts.Debounce > 0 {
		src = newDebounced(src, opts.Debounce)
	}

	return src, nil
}

// filter decides which directories are watched and which events are kept.
type filter struct {
	root    string
	exts    ExtensionSet
	exclude []string
}

func newFilter(root string, exts ExtensionSet, exclude []string) (filter, error) {
	f := filter{root: root, exts: exts}

	for _, e := range exclude {
		abs, err := filepath.Abs(e)
		if err != nil {
			return filter{}, fmt.Errorf("resolving excluded path %q: %w", e, err)
		}

		f.exclude = append(f.exclude, abs)
	}

	return f, nil
}

// skipDir reports whether the directory at path must not be watched.
func (f filter) skipDir(path string) bool {
	if path == f.root {
		return false
	}

	// Skip hidden directories (e.g., .git).
	if strings.HasPrefix(filepath.Base(path), ".") {
		return true
	}

	return f.excluded(path)
}

func (f filter) excluded(path string) bool {
	for _, e := range f.exclude {
		if path == e || strings.HasPrefix(path, e+string(filepath.Separator)) {
			return true
		}
	}

	return false
}

// accept reports whether a file change at path is relevant.
func (f filter) accept(path string) bool {
	return f.exts.Match(path) && !f.excluded(path)
}

// nativeSource is a Source backed by fsnotify.
type nativeSource struct {
	watcher *fsnotify.Watcher
	filter  filter
	logger  *slog.Logger
	events  chan Event
	errors  chan error
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

func newNativeSource(f filter, logger *slog.Logger) (*nativeSource, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	s := &nativeSource{
		watcher: watcher,
		filter:  f,
		logger:  logger,
		events:  make(chan Event),
		errors:  make(chan error, 16),
		done:    make(chan struct{}),
	}

	if err := s.addRecursive(f.root, nil); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watching source directory: %w", err)
	}

	s.wg.Add(1)

	go s.run()

	return s, nil
}

func (s *nativeSource) Events() <-chan Event { return s.events }

func (s *nativeSource) Errors() <-chan error { return s.errors }

func (s *nativeSource) Close() error {
	var err error

	s.once.Do(func() {
		close(s.done)
		err = s.watcher.Close()
		s.wg.Wait()
	})

	return err
}

func (s *nativeSource) run() {
	defer s.wg.Done()
	defer close(s.events)

	for {
		select {
		case <-s.done:
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}

			// If a new directory was created, watch it too. Files that landed
			// in it before the watch was added are reported as created.
			if event.Has(fsnotify.Create) {
				if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
					var found []string

					if !s.filter.skipDir(event.Name) {
						err := s.addRecursive(event.Name, func(path string) {
							found = append(found, path)
						})
						if err != nil {
							s.report(fmt.Errorf("watching new directory %s: %w", event.Name, err))
						}
					}

					for _, path := range found {
						if !s.send(Event{Path: path, Kind: Created}) {
							return
						}
					}

					continue
				}
			}

			ev, ok := s.convert(event)
			if !ok {
				continue
			}

			if !s.send(ev) {
				return
			}

		case watchErr, ok := <-s.watcher.Errors:
			if !ok {
				return
			}

			s.report(watchErr)
		}
	}
}

// send delivers ev unless the source is closing.
func (s *nativeSource) send(ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *nativeSource) report(err error) {
	select {
	case s.errors <- err:
	default:
		s.logger.Warn("dropping watcher error", slog.String("error", err.Error()))
	}
}

// convert maps an fsnotify event to an Event, dropping irrelevant ones.
func (s *nativeSource) convert(event fsnotify.Event) (Event, bool) {
	kind, ok := kindOf(event.Op)
	if !ok {
		return Event{}, false
	}

	if !s.filter.accept(event.Name) {
		return Event{}, false
	}

	return Event{Path: event.Name, Kind: kind}, true
}

// kindOf classifies op. Chmod-only and empty ops are not changes.
func kindOf(op fsnotify.Op) (Kind, bool) {
	switch {
	case op.Has(fsnotify.Remove):
		return Deleted, true
	case op.Has(fsnotify.Rename):
		return Moved, true
	case op.Has(fsnotify.Create):
		return Created, true
	case op.Has(fsnotify.Write):
		return Modified, true
	default:
		return 0, false
	}
}

// addRecursive walks root and adds every directory that is not skipped.
// When found is non-nil it is called for each accepted file in the tree.
// A directory is watched before its entries are listed, so a file is either
// reported by the walk or by the watch (possibly both).
func (s *nativeSource) addRecursive(root string, found func(path string)) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			if found != nil && s.filter.accept(path) {
				found(path)
			}

			return nil
		}

		if s.filter.skipDir(path) {
			return filepath.SkipDir
		}

		return s.watcher.Add(path)
	})
}
