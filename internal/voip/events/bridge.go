package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Listener receives events from a Bridge while attached.
type Listener struct {
	ch chan Event
}

// Events returns the listener's channel. It is closed on Detach.
func (l *Listener) Events() <-chan Event {
	return l.ch
}

// Bridge fans events out to the attached listeners. Nothing is queued for
// listeners that are not attached, and a listener that falls behind by more
// than its buffer loses events. Events reach each listener in publish order.
type Bridge struct {
	mu        sync.RWMutex
	listeners map[*Listener]struct{}
	bufSize   int
	closed    bool
	dropped   atomic.Int64
	onDrop    func(Kind)
}

// NewBridge creates a bridge whose listeners buffer bufSize events
func NewBridge(bufSize int) *Bridge {
	if bufSize <= 0 {
		bufSize = 64
	}
	return &Bridge{
		listeners: make(map[*Listener]struct{}),
		bufSize:   bufSize,
	}
}

// SetOnDrop registers a callback invoked for every dropped event.
func (b *Bridge) SetOnDrop(fn func(Kind)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onDrop = fn
}

// Attach registers a new listener
func (b *Bridge) Attach() *Listener {
	l := &Listener{ch: make(chan Event, b.bufSize)}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(l.ch)
		return l
	}
	b.listeners[l] = struct{}{}
	slog.Debug("[Bridge] Listener attached", "listeners", len(b.listeners))
	return l
}

// Detach removes the listener and closes its channel
func (b *Bridge) Detach(l *Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.listeners[l]; !ok {
		return
	}
	delete(b.listeners, l)
	close(l.ch)
	slog.Debug("[Bridge] Listener detached", "listeners", len(b.listeners))
}

// Listening reports whether at least one listener is attached
func (b *Bridge) Listening() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners) > 0
}

// DroppedCount returns the number of events that reached no listener
func (b *Bridge) DroppedCount() int64 {
	return b.dropped.Load()
}

func (b *Bridge) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.listeners) == 0 {
		b.drop(event, "no listener")
		return nil
	}
	for l := range b.listeners {
		select {
		case l.ch <- event:
		default:
			b.drop(event, "listener buffer full")
		}
	}
	return nil
}

func (b *Bridge) drop(event Event, reason string) {
	b.dropped.Add(1)
	slog.Debug("[Bridge] Event dropped", "event", event.Kind, "call_id", event.CallID, "reason", reason)
	if b.onDrop != nil {
		b.onDrop(event.Kind)
	}
}

// Close detaches every listener
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for l := range b.listeners {
		close(l.ch)
	}
	b.listeners = make(map[*Listener]struct{})
	return nil
}

var _ Publisher = (*Bridge)(nil)
