// Package session implements the state machine of the single call the
// service tracks at any time.
package session

import (
	"log/slog"
	"maps"
	"sync"
	"time"
)

// Identity names one call attempt. It is immutable once assigned.
type Identity struct {
	ID         string
	CallerID   string
	CallerName string
	Info       map[string]any
}

// NewIdentity copies info so later changes by the caller do not leak in.
func NewIdentity(id, callerID, callerName string, info map[string]any) Identity {
	return Identity{
		ID:         id,
		CallerID:   callerID,
		CallerName: callerName,
		Info:       maps.Clone(info),
	}
}

// Snapshot is a point-in-time copy of the session.
type Snapshot struct {
	Identity             *Identity
	Role                 Role
	State                CallState
	Cause                TerminationCause
	EndedManually        bool
	Generation           uint64
	OutgoingAcknowledged bool
	StartedAt            time.Time
	EndedAt              time.Time
}

// StateLabel renders the state with its cause, e.g. "Ended(RemoteEnded)".
func (s Snapshot) StateLabel() string {
	if s.State == StateEnded {
		return s.State.String() + "(" + s.Cause.String() + ")"
	}
	return s.State.String()
}

// Session is the call state machine. Every mutating method is expected to be
// called from a single owner; the mutex only protects concurrent readers.
//
// Each call attempt bumps the generation so asynchronous completions issued
// for an earlier attempt can be recognized and ignored.
type Session struct {
	mu sync.RWMutex

	identity      *Identity
	role          Role
	state         CallState
	cause         TerminationCause
	endedManually bool
	generation    uint64
	outgoingAcked bool
	startedAt     time.Time
	endedAt       time.Time
}

// New creates an idle session
func New() *Session {
	return &Session{state: StateIdle}
}

// State returns the current state
func (s *Session) State() CallState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Generation returns the tag of the current call attempt
func (s *Session) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Snapshot returns a copy of the session
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		Role:                 s.role,
		State:                s.state,
		Cause:                s.cause,
		EndedManually:        s.endedManually,
		Generation:           s.generation,
		OutgoingAcknowledged: s.outgoingAcked,
		StartedAt:            s.startedAt,
		EndedAt:              s.endedAt,
	}
	if s.identity != nil {
		id := NewIdentity(s.identity.ID, s.identity.CallerID, s.identity.CallerName, s.identity.Info)
		snap.Identity = &id
	}
	return snap
}

// transitionTo moves to next when the transition table allows it. The
// caller holds the lock.
func (s *Session) transitionTo(op string, next CallState) error {
	if !s.state.CanTransitionTo(next) {
		return invalid(op, s.state)
	}
	s.state = next
	return nil
}

// begin starts a new call attempt in the given state; the caller holds the lock.
func (s *Session) begin(op string, id Identity, role Role, next CallState) (uint64, error) {
	if !s.state.CanTransitionTo(next) {
		return 0, busy(op, s.state)
	}
	ident := NewIdentity(id.ID, id.CallerID, id.CallerName, id.Info)
	s.identity = &ident
	s.role = role
	s.state = next
	s.cause = CauseNone
	s.endedManually = false
	s.outgoingAcked = false
	s.startedAt = time.Now()
	s.endedAt = time.Time{}
	s.generation++
	return s.generation, nil
}

// end moves the session to Ended. It returns false when the session was
// already terminal, leaving the recorded cause untouched.
func (s *Session) end(cause TerminationCause, manually bool) bool {
	if s.state == StateEnded {
		return false
	}
	if err := s.transitionTo("end", StateEnded); err != nil {
		return false
	}
	s.settle(cause, manually)
	return true
}

// settle records how the call ended
func (s *Session) settle(cause TerminationCause, manually bool) {
	s.cause = cause
	s.endedManually = manually
	s.endedAt = time.Now()
	slog.Info("[Session] Ended",
		"call_id", s.identity.ID,
		"cause", cause.String(),
		"manually", manually,
	)
}

// ReceiveIncoming starts an incoming call. The returned generation must
// accompany the completion of the authority report.
func (s *Session) ReceiveIncoming(id Identity) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gen, err := s.begin("receiveIncoming", id, RoleIncoming, StateIncoming)
	if err != nil {
		return 0, err
	}
	slog.Info("[Session] Incoming", "call_id", id.ID, "caller_id", id.CallerID, "generation", gen)
	return gen, nil
}

// RollbackIncoming returns to Idle after the authority refused to present the
// call. It only applies while the given attempt is still Incoming.
func (s *Session) RollbackIncoming(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation || s.state != StateIncoming {
		return false
	}
	if err := s.transitionTo("rollback", StateIdle); err != nil {
		return false
	}
	s.identity = nil
	s.role = RoleNone
	s.startedAt = time.Time{}
	return true
}

// ReceiveMissed ends the call because the caller gave up. From Idle, or after
// another call ended, the missed call is recorded directly as
// Ended(RemoteEnded); a repeated notice for the ended call changes nothing.
// It returns the state the session was in, so the caller knows whether the
// authority still shows the call.
func (s *Session) ReceiveMissed(id Identity) (CallState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state
	switch prev {
	case StateIdle, StateEnded:
		if prev == StateEnded && s.identity != nil && s.identity.ID == id.ID {
			return prev, nil
		}
		if _, err := s.begin("receiveMissed", id, RoleIncoming, StateEnded); err != nil {
			return prev, err
		}
		s.settle(CauseRemoteEnded, false)
	case StateIncoming:
		s.end(CauseRemoteEnded, false)
	default:
		return prev, invalid("receiveMissed", prev)
	}
	return prev, nil
}

// StartOutgoing begins an outgoing call
func (s *Session) StartOutgoing(id Identity) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gen, err := s.begin("startOutgoing", id, RoleOutgoing, StateConnecting)
	if err != nil {
		return 0, err
	}
	slog.Info("[Session] Outgoing", "call_id", id.ID, "target", id.CallerName, "generation", gen)
	return gen, nil
}

// ConfirmOutgoingConnecting marks the outgoing leg as acknowledged by the
// authority. It reports false when not Connecting.
func (s *Session) ConfirmOutgoingConnecting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnecting {
		return false
	}
	s.outgoingAcked = true
	return true
}

// Accept moves an incoming call to Active
func (s *Session) Accept() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIncoming {
		return invalid("accept", s.state)
	}
	if err := s.transitionTo("accept", StateActive); err != nil {
		return err
	}
	s.cause = CauseNone
	return nil
}

// EndBeforeAccept ends an incoming call the user declined
func (s *Session) EndBeforeAccept() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateIncoming:
		return s.end(CauseUserRejected, false), nil
	case StateEnded:
		return false, nil
	default:
		return false, invalid("endBeforeAccept", s.state)
	}
}

// EndActive ends a call the user hung up from the authority
func (s *Session) EndActive() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateActive, StateConnecting:
		return s.end(CauseUserEndedManually, true), nil
	case StateEnded:
		return false, nil
	default:
		return false, invalid("endActive", s.state)
	}
}

// EndByApplication ends the call on behalf of the application
func (s *Session) EndByApplication(manually bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateIncoming, StateConnecting, StateActive:
		cause := CauseRemoteEnded
		if manually {
			cause = CauseUserEndedManually
		}
		return s.end(cause, manually), nil
	case StateEnded:
		return false, nil
	default:
		return false, invalid("endCall", s.state)
	}
}

// MarkUnanswered ends an incoming call nobody picked up
func (s *Session) MarkUnanswered() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateIncoming:
		return s.end(CauseUnanswered, false), nil
	case StateEnded:
		return false, nil
	default:
		return false, invalid("unanswered", s.state)
	}
}

// Fail ends the call because it could not be connected
func (s *Session) Fail() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateIncoming, StateConnecting, StateActive:
		return s.end(CauseFailed, false), nil
	case StateEnded:
		return false, nil
	default:
		return false, invalid("fail", s.state)
	}
}

// ConfirmConnected acknowledges that media is flowing. An outgoing call in
// Connecting is promoted to Active; an Active call is left unchanged.
func (s *Session) ConfirmConnected() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateConnecting:
		if err := s.transitionTo("callConnected", StateActive); err != nil {
			return false, err
		}
		return true, nil
	case StateActive:
		return false, nil
	default:
		return false, invalid("callConnected", s.state)
	}
}

// Reset forces the session back to Idle regardless of its state and returns
// what it looked like before.
func (s *Session) Reset() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.snapshotLocked()
	s.identity = nil
	s.role = RoleNone
	s.state = StateIdle
	s.cause = CauseNone
	s.endedManually = false
	s.outgoingAcked = false
	s.startedAt = time.Time{}
	s.endedAt = time.Time{}
	s.generation++
	return prev
}
