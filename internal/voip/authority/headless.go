package authority

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sebas/voipcenter/internal/voip/session"
)

// CallState is the presentation state of a call inside the headless authority
type CallState string

const (
	CallRinging    CallState = "ringing"
	CallAnswering  CallState = "answering"
	CallConnecting CallState = "connecting"
	CallActive     CallState = "active"
	CallEnding     CallState = "ending"
	CallEnded      CallState = "ended"
	CallFailed     CallState = "failed"
)

// Call is a call the headless authority presents
type Call struct {
	ID         string
	CallerID   string
	CallerName string
	Outgoing   bool
	State      CallState
	EndCause   string
	UpdatedAt  time.Time
}

func (c Call) live() bool {
	return c.State != CallEnded && c.State != CallFailed
}

// Headless presents calls to nobody; user actions are injected by calling
// Answer, End, ActivateAudio and friends, typically from the HTTP API.
type Headless struct {
	mu       sync.Mutex
	delegate Delegate
	calls    map[string]*Call
	audio    AudioConfig
	audioOn  bool
}

// NewHeadless creates an authority without a UI
func NewHeadless() *Headless {
	return &Headless{
		calls: make(map[string]*Call),
		audio: DefaultAudioConfig(),
	}
}

func (h *Headless) SetDelegate(d Delegate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.delegate = d
}

func (h *Headless) getDelegate() Delegate {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.delegate
}

// liveCall returns the call currently presented, if any; the caller holds the lock.
func (h *Headless) liveCall() *Call {
	for _, c := range h.calls {
		if c.live() {
			return c
		}
	}
	return nil
}

// admit records a new call when none is live; the caller holds the lock.
func (h *Headless) admit(op string, c *Call) error {
	if _, ok := h.calls[c.ID]; ok {
		return &Error{Op: op, CallID: c.ID, Cause: ErrCallExists}
	}
	if live := h.liveCall(); live != nil {
		return &Error{Op: op, CallID: c.ID, Cause: ErrCallLimit}
	}
	// Calls that are over are only kept until the next one
	clear(h.calls)
	h.calls[c.ID] = c
	return nil
}

func (h *Headless) ReportIncomingCall(ctx context.Context, identity session.Identity) error {
	if err := ctx.Err(); err != nil {
		return &Error{Op: "reportIncomingCall", CallID: identity.ID, Cause: err}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.admit("reportIncomingCall", &Call{
		ID:         identity.ID,
		CallerID:   identity.CallerID,
		CallerName: identity.CallerName,
		State:      CallRinging,
		UpdatedAt:  time.Now(),
	}); err != nil {
		return err
	}
	slog.Info("[Authority] Presenting incoming call", "call_id", identity.ID, "caller", identity.CallerName)
	return nil
}

func (h *Headless) ReportCallEnded(ctx context.Context, callID string, cause session.TerminationCause) {
	h.mu.Lock()
	c, ok := h.calls[callID]
	if !ok || !c.live() {
		h.mu.Unlock()
		return
	}
	c.State = CallEnded
	c.EndCause = cause.String()
	c.UpdatedAt = time.Now()
	deactivate := h.audioOn && h.liveCall() == nil
	if deactivate {
		h.audioOn = false
	}
	d := h.delegate
	h.mu.Unlock()

	slog.Info("[Authority] Call ended", "call_id", callID, "cause", cause.String())
	if deactivate && d != nil {
		d.OnAudioSessionDeactivated()
	}
}

func (h *Headless) RequestStartCall(ctx context.Context, identity session.Identity) error {
	h.mu.Lock()
	err := h.admit("startCall", &Call{
		ID:         identity.ID,
		CallerID:   identity.CallerID,
		CallerName: identity.CallerName,
		Outgoing:   true,
		State:      CallConnecting,
		UpdatedAt:  time.Now(),
	})
	if err != nil {
		h.mu.Unlock()
		return err
	}
	d := h.delegate
	h.mu.Unlock()

	if d != nil {
		d.OnStartOutgoingRequested(NewAction(identity.ID, func(fulfilled bool) {
			if !fulfilled {
				h.setState(identity.ID, CallFailed)
			}
		}))
	}
	return nil
}

func (h *Headless) ReportOutgoingConnecting(callID string) {
	slog.Debug("[Authority] Outgoing call connecting", "call_id", callID)
}

func (h *Headless) ReportOutgoingConnected(callID string) {
	h.setState(callID, CallActive)
	h.activateAudio()
}

func (h *Headless) ConfigureAudioSession(cfg AudioConfig) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.audio = cfg
	return nil
}

// AudioConfig returns the last configuration handed over
func (h *Headless) AudioConfig() AudioConfig {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.audio
}

func (h *Headless) setState(callID string, state CallState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.calls[callID]; ok && c.live() {
		c.State = state
		c.UpdatedAt = time.Now()
	}
}

func (h *Headless) activateAudio() {
	h.mu.Lock()
	if h.audioOn {
		h.mu.Unlock()
		return
	}
	h.audioOn = true
	d := h.delegate
	h.mu.Unlock()
	if d != nil {
		d.OnAudioSessionActivated()
	}
}

// Answer simulates the user answering a ringing call. Audio is activated once
// the center fulfills the answer.
func (h *Headless) Answer(callID string) error {
	h.mu.Lock()
	c, ok := h.calls[callID]
	if !ok {
		h.mu.Unlock()
		return &Error{Op: "answer", CallID: callID, Cause: ErrUnknownCall}
	}
	if c.State != CallRinging {
		h.mu.Unlock()
		return &Error{Op: "answer", CallID: callID, Cause: ErrInvalidState}
	}
	c.State = CallAnswering
	c.UpdatedAt = time.Now()
	d := h.delegate
	h.mu.Unlock()

	if d != nil {
		d.OnAnswerRequested(NewAction(callID, func(fulfilled bool) {
			if !fulfilled {
				h.setState(callID, CallFailed)
				return
			}
			h.setState(callID, CallActive)
			h.activateAudio()
		}))
	}
	return nil
}

// End simulates the user pressing the end button
func (h *Headless) End(callID string) error {
	h.mu.Lock()
	c, ok := h.calls[callID]
	if !ok || !c.live() {
		h.mu.Unlock()
		return &Error{Op: "end", CallID: callID, Cause: ErrUnknownCall}
	}
	c.State = CallEnding
	c.UpdatedAt = time.Now()
	d := h.delegate
	h.mu.Unlock()

	if d != nil {
		d.OnEndRequested(NewAction(callID, func(bool) {
			h.ReportCallEnded(context.Background(), callID, session.CauseUserEndedManually)
		}))
	}
	return nil
}

// ActivateAudio simulates the system handing audio to the call
func (h *Headless) ActivateAudio() {
	h.activateAudio()
}

// DeactivateAudio simulates the system taking audio back
func (h *Headless) DeactivateAudio() {
	h.mu.Lock()
	h.audioOn = false
	d := h.delegate
	h.mu.Unlock()
	if d != nil {
		d.OnAudioSessionDeactivated()
	}
}

// Reset drops every call, as if the call UI restarted
func (h *Headless) Reset() {
	h.mu.Lock()
	h.calls = make(map[string]*Call)
	h.audioOn = false
	d := h.delegate
	h.mu.Unlock()

	slog.Warn("[Authority] Reset")
	if d != nil {
		d.OnReset()
	}
}

// Calls lists the known calls, most recently updated first
func (h *Headless) Calls() []Call {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Call, 0, len(h.calls))
	for _, c := range h.calls {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

// Call returns one call by id
func (h *Headless) Call(callID string) (Call, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.calls[callID]
	if !ok {
		return Call{}, false
	}
	return *c, true
}

func (h *Headless) Close() error {
	return nil
}

var _ Authority = (*Headless)(nil)
