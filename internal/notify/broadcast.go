package notify

import (
	"context"
	"sync"
)

// Broadcast releases all current waiters each time it fires.
type Broadcast struct {
	mu    sync.Mutex
	ch    chan struct{}
	fired uint64
}

// NewBroadcast returns a Broadcast with no pending firing.
func NewBroadcast() *Broadcast {
	return &Broadcast{ch: make(chan struct{})}
}

// Fire releases every goroutine currently blocked in Wait and resets the
// signal for the next round.
func (b *Broadcast) Fire() {
	b.mu.Lock()
	close(b.ch)
	b.ch = make(chan struct{})
	b.fired++
	b.mu.Unlock()
}

// Wait blocks until the next Fire or until ctx is done.
func (b *Broadcast) Wait(ctx context.Context) error {
	select {
	case <-b.Subscribe():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe returns a channel that is closed by the next Fire. It lets
// callers multiplex the signal with other channels in a select.
func (b *Broadcast) Subscribe() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.ch
}

// Count returns how many times the signal has fired.
func (b *Broadcast) Count() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.fired
}
