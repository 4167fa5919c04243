package watch

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/radovskyb/watcher"
)

// pollingSource is a Source that rescans the tree every interval. It is
// slower than fsnotify but works on network mounts and in containers
// where inotify events do not cross the bind mount.
type pollingSource struct {
	w      *watcher.Watcher
	filter filter
	logger *slog.Logger
	events chan Event
	errors chan error
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

func newPollingSource(f filter, interval time.Duration, logger *slog.Logger) (*pollingSource, error) {
	if interval <= 0 {
		interval = time.Second
	}

	w := watcher.New()
	w.FilterOps(watcher.Create, watcher.Write, watcher.Remove, watcher.Rename, watcher.Move)
	w.IgnoreHiddenFiles(true)

	if len(f.exclude) > 0 {
		if err := w.Ignore(f.exclude...); err != nil {
			return nil, fmt.Errorf("excluding paths from polling watcher: %w", err)
		}
	}

	if err := w.AddRecursive(f.root); err != nil {
		return nil, fmt.Errorf("watching source directory: %w", err)
	}

	s := &pollingSource{
		w:      w,
		filter: f,
		logger: logger,
		events: make(chan Event),
		errors: make(chan error, 16),
		done:   make(chan struct{}),
	}

	started := make(chan error, 1)

	go func() {
		if err := w.Start(interval); err != nil {
			started <- err
		}
	}()

	// Start signals readiness through Wait; an immediate error means it
	// never started.
	ready := make(chan struct{})
	go func() {
		w.Wait()
		close(ready)
	}()

	select {
	case err := <-started:
		return nil, fmt.Errorf("starting polling watcher: %w", err)
	case <-ready:
	}

	s.wg.Add(1)

	go s.run()

	return s, nil
}

func (s *pollingSource) Events() <-chan Event { return s.events }

func (s *pollingSource) Errors() <-chan error { return s.errors }

func (s *pollingSource) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.w.Close()
		s.wg.Wait()
	})

	return nil
}

func (s *pollingSource) run() {
	defer s.wg.Done()
	defer close(s.events)

	for {
		select {
		case event := <-s.w.Event:
			// Keep draining after Close; the poller blocks on unbuffered
			// sends until it observes the close request.
			ev, ok := s.convert(event)
			if !ok {
				continue
			}

			select {
			case s.events <- ev:
			case <-s.done:
			}

		case err := <-s.w.Error:
			select {
			case s.errors <- err:
			default:
				s.logger.Warn("dropping watcher error", slog.String("error", err.Error()))
			}

		case <-s.w.Closed:
			return
		}
	}
}

func (s *pollingSource) convert(event watcher.Event) (Event, bool) {
	if event.FileInfo != nil && event.IsDir() {
		return Event{}, false
	}

	var kind Kind

	switch event.Op {
	case watcher.Create:
		kind = Created
	case watcher.Write:
		kind = Modified
	case watcher.Rename, watcher.Move:
		kind = Moved
	case watcher.Remove:
		kind = Deleted
	default:
		return Event{}, false
	}

	if !s.filter.accept(event.Path) {
		return Event{}, false
	}

	return Event{Path: event.Path, Kind: kind}, true
}
