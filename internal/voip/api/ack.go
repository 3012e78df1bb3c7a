package api

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	types "github.com/sebas/voipcenter/api/types/v1"
	"github.com/sebas/voipcenter/internal/voip/center"
	"github.com/sebas/voipcenter/internal/voip/events"
	"github.com/sebas/voipcenter/internal/voip/store"
)

// ErrAckExpired is delivered to a pending acknowledgment nobody answered in time
var ErrAckExpired = errors.New("acknowledgment expired")

// AckHub carries acknowledgment requests to the attached streams and routes
// replies back to the waiting caller.
type AckHub struct {
	mu      sync.Mutex
	sinks   map[chan types.AckRequest]struct{}
	pending *store.TTLStore[string, chan error]
	ttl     time.Duration
}

// NewAckHub creates a hub. Pending requests are forgotten after ttl; a ttl of
// zero keeps them until a reply arrives or the caller gives up.
func NewAckHub(ttl time.Duration) *AckHub {
	h := &AckHub{
		sinks: make(map[chan types.AckRequest]struct{}),
		ttl:   ttl,
	}
	h.pending = store.NewTTLStore(time.Second, func(id string, reply chan error) {
		slog.Debug("[API] Acknowledgment expired", "id", id)
		select {
		case reply <- ErrAckExpired:
		default:
		}
	})
	return h
}

// Register adds a stream; the returned func removes it.
func (h *AckHub) Register() (<-chan types.AckRequest, func()) {
	ch := make(chan types.AckRequest, 8)
	h.mu.Lock()
	h.sinks[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.sinks, ch)
		h.mu.Unlock()
	}
}

// Acknowledge sends the request to every stream and waits for the first reply
func (h *AckHub) Acknowledge(ctx context.Context, req events.Event) error {
	id := uuid.NewString()
	reply := make(chan error, 1)
	h.pending.Set(id, reply, h.ttl)

	msg := types.AckRequest{
		Request:   string(req.Kind),
		ID:        id,
		Arguments: req.Fields,
	}

	h.mu.Lock()
	delivered := 0
	for sink := range h.sinks {
		select {
		case sink <- msg:
			delivered++
		default:
		}
	}
	h.mu.Unlock()

	if delivered == 0 {
		h.pending.Delete(id)
		return center.ErrNoListener
	}
	slog.Debug("[API] Acknowledgment requested", "id", id, "request", msg.Request, "call_id", req.CallID)

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		h.pending.Delete(id)
		return ctx.Err()
	}
}

// Reply completes a pending request. errMsg, when set, is the application's
// refusal. It reports false for unknown or expired ids.
func (h *AckHub) Reply(id, errMsg string) bool {
	reply, ok := h.pending.Take(id)
	if !ok {
		return false
	}
	var err error
	if errMsg != "" {
		err = errors.New(errMsg)
	}
	reply <- err
	return true
}

// Pending returns the number of unanswered requests
func (h *AckHub) Pending() int {
	return h.pending.Len()
}

// Close stops the expiry sweeper
func (h *AckHub) Close() {
	h.pending.Close()
}

var _ center.Acknowledger = (*AckHub)(nil)
