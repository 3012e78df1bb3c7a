package session

import "fmt"

// CallState represents the lifecycle state of the call session
type CallState int

const (
	// StateIdle means no call is in progress
	StateIdle CallState = iota
	// StateIncoming is after an incoming signal was received and reported
	StateIncoming
	// StateConnecting is an outgoing call waiting to be connected
	StateConnecting
	// StateActive is an accepted incoming call or a connected outgoing call
	StateActive
	// StateEnded is the terminal state, carrying a TerminationCause
	StateEnded
)

// String returns the string representation of the state
func (s CallState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateIncoming:
		return "Incoming"
	case StateConnecting:
		return "Connecting"
	case StateActive:
		return "Active"
	case StateEnded:
		return "Ended"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// validTransitions defines which state transitions are allowed.
// Reset bypasses this table. Idle and Ended lead straight to Ended when a
// missed call is recorded without ever ringing.
var validTransitions = map[CallState][]CallState{
	StateIdle:       {StateIncoming, StateConnecting, StateEnded},
	StateIncoming:   {StateActive, StateEnded, StateIdle},
	StateConnecting: {StateActive, StateEnded},
	StateActive:     {StateEnded},
	StateEnded:      {StateIncoming, StateConnecting, StateEnded},
}

// CanTransitionTo checks if a transition from current state to next state is valid
func (s CallState) CanTransitionTo(next CallState) bool {
	allowed, ok := validTransitions[s]
	if !ok {
		return false
	}
	for _, state := range allowed {
		if state == next {
			return true
		}
	}
	return false
}

// IsTerminal returns true if this is a terminal state
func (s CallState) IsTerminal() bool {
	return s == StateEnded
}

// Role tells whether the call was received or placed
type Role int

const (
	RoleNone Role = iota
	RoleIncoming
	RoleOutgoing
)

func (r Role) String() string {
	switch r {
	case RoleIncoming:
		return "incoming"
	case RoleOutgoing:
		return "outgoing"
	default:
		return "none"
	}
}

// TerminationCause explains why a call ended
type TerminationCause int

const (
	// CauseNone is the zero value for sessions that have not ended
	CauseNone TerminationCause = iota
	// CauseUserRejected means the user declined before accepting
	CauseUserRejected
	// CauseUserEndedManually means the user hung up an active call
	CauseUserEndedManually
	// CauseRemoteEnded means the other party hung up or the call was missed
	CauseRemoteEnded
	// CauseUnanswered means the application gave up on an incoming call
	CauseUnanswered
	// CauseFailed means the call could not be connected (caller already gone)
	CauseFailed
)

// String returns the string representation of the termination cause
func (c TerminationCause) String() string {
	switch c {
	case CauseNone:
		return "None"
	case CauseUserRejected:
		return "UserRejected"
	case CauseUserEndedManually:
		return "UserEndedManually"
	case CauseRemoteEnded:
		return "RemoteEnded"
	case CauseUnanswered:
		return "Unanswered"
	case CauseFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Unknown(%d)", c)
	}
}
