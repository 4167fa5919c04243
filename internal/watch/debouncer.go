package watch

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer coalesces rapid events into a single callback invocation.
// Only the last event within the configured interval triggers the callback.
type Debouncer struct {
	interval time.Duration
	mu       sync.Mutex
	timer    *time.Timer
	callback func(Event)
	last     Event
}

// NewDebouncer creates a debouncer that waits for interval of quiet before
// firing callback with the last event seen.
func NewDebouncer(interval time.Duration, callback func(Event)) *Debouncer {
	return &Debouncer{
		interval: interval,
		callback: callback,
	}
}

// Trigger records ev. If no further events arrive within the debounce
// interval, the callback fires with the last event seen.
func (d *Debouncer) Trigger(ev Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.last = ev

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.interval, func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("debouncer callback panicked", slog.Any("error", r))
			}
		}()

		d.mu.Lock()
		last := d.last
		d.mu.Unlock()
		d.callback(last)
	})
}

// Stop cancels any pending debounced callback.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// debounced wraps a Source so that bursts of events separated by less than
// the interval reach the consumer as one event.
type debounced struct {
	inner  Source
	events chan Event
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

func newDebounced(inner Source, interval time.Duration) *debounced {
	d := &debounced{
		inner:  inner,
		events: make(chan Event),
		done:   make(chan struct{}),
	}

	d.wg.Add(1)

	go d.run(interval)

	return d
}

func (d *debounced) run(interval time.Duration) {
	defer d.wg.Done()
	defer close(d.events)

	fired := make(chan Event, 1)
	deb := NewDebouncer(interval, func(ev Event) {
		select {
		case fired <- ev:
		default: // one is already queued
		}
	})
	defer deb.Stop()

	in := d.inner.Events()

	for {
		select {
		case <-d.done:
			return

		case ev, ok := <-in:
			if !ok {
				return
			}

			deb.Trigger(ev)

		case ev := <-fired:
			select {
			case d.events <- ev:
			case <-d.done:
				return
			}
		}
	}
}

func (d *debounced) Events() <-chan Event { return d.events }

func (d *debounced) Errors() <-chan error { return d.inner.Errors() }

func (d *debounced) Close() error {
	var err error

	d.once.Do(func() {
		close(d.done)
		err = d.inner.Close()
		d.wg.Wait()
	})

	return err
}
