// Package authority is the boundary to the call UI that presents calls to
// the user. The center reports calls to it and receives the user's actions
// through a Delegate.
package authority

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sebas/voipcenter/internal/voip/session"
)

// ErrAuthority marks every failure reported by an authority.
var ErrAuthority = errors.New("authority error")

// Reasons an authority refuses a report.
var (
	ErrCallExists   = errors.New("call already exists")
	ErrCallLimit    = errors.New("maximum calls reached")
	ErrUnknownCall  = errors.New("unknown call")
	ErrUnreachable  = errors.New("call UI unreachable")
	ErrUnsupported  = errors.New("not supported")
	ErrInvalidState = errors.New("invalid call state")
)

// Error describes a failed authority operation.
type Error struct {
	Op     string
	CallID string
	Cause  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("authority %s %s: %v", e.Op, e.CallID, e.Cause)
}

func (e *Error) Unwrap() []error {
	return []error{ErrAuthority, e.Cause}
}

// Audio session modes
const (
	ModeAudio = "audio"
	ModeVideo = "video"
)

// AudioConfig is handed to the authority when a call is answered.
type AudioConfig struct {
	Mode             string
	IOBufferDuration time.Duration
	SampleRate       float64
}

// DefaultAudioConfig returns voice-chat defaults
func DefaultAudioConfig() AudioConfig {
	return AudioConfig{
		Mode:             ModeAudio,
		IOBufferDuration: 5 * time.Millisecond,
		SampleRate:       44100,
	}
}

// Action is a user request the authority waits on. Exactly one of Fulfill or
// Fail takes effect; later calls are ignored.
type Action interface {
	CallID() string
	Fulfill()
	Fail()
}

// Delegate receives the user's actions. Implementations must not block the
// caller.
type Delegate interface {
	OnStartOutgoingRequested(action Action)
	OnAnswerRequested(action Action)
	OnEndRequested(action Action)
	OnAudioSessionActivated()
	OnAudioSessionDeactivated()
	// OnReset means the authority dropped every call it knew about.
	OnReset()
}

// Authority presents calls to the user.
type Authority interface {
	SetDelegate(d Delegate)
	// ReportIncomingCall asks the authority to present an incoming call and
	// returns once it did or refused.
	ReportIncomingCall(ctx context.Context, identity session.Identity) error
	ReportCallEnded(ctx context.Context, callID string, cause session.TerminationCause)
	// RequestStartCall asks the authority to place an outgoing call. The
	// authority answers through OnStartOutgoingRequested.
	RequestStartCall(ctx context.Context, identity session.Identity) error
	ReportOutgoingConnecting(callID string)
	ReportOutgoingConnected(callID string)
	ConfigureAudioSession(cfg AudioConfig) error
	Close() error
}

type action struct {
	callID string
	once   sync.Once
	done   func(fulfilled bool)
}

// NewAction wraps a completion callback; done runs at most once.
func NewAction(callID string, done func(fulfilled bool)) Action {
	return &action{callID: callID, done: done}
}

func (a *action) CallID() string { return a.callID }

func (a *action) Fulfill() {
	a.once.Do(func() {
		if a.done != nil {
			a.done(true)
		}
	})
}

func (a *action) Fail() {
	a.once.Do(func() {
		if a.done != nil {
			a.done(false)
		}
	})
}
