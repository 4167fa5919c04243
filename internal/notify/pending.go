package notify

import "context"

// Pending is a coalescing, auto-resetting signal with a single consumer.
// The zero value is not usable; create one with NewPending.
type Pending struct {
	ch chan struct{}
}

// NewPending returns a cleared Pending signal.
func NewPending() *Pending {
	return &Pending{ch: make(chan struct{}, 1)}
}

// Set raises the signal. It never blocks; setting an already raised signal
// is a no-op.
func (p *Pending) Set() {
	select {
	case p.ch <- struct{}{}:
	default:
	}
}

// Wait blocks until the signal is raised and clears it in the same step, so
// a Set that happens after Wait returns schedules exactly one further wake-up.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsSet reports whether the signal is currently raised without clearing it.
func (p *Pending) IsSet() bool {
	return len(p.ch) > 0
}
