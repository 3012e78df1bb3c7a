// Package events defines the notices delivered to the application and the
// publishers that carry them.
package events

import (
	"encoding/json"
	"time"
)

// Kind identifies the event on the wire
type Kind string

const (
	// PushReceived fires once the authority presented an incoming call
	PushReceived Kind = "onDidReceiveIncomingPush"
	// CallAccepted fires when the user answered
	CallAccepted Kind = "onDidAcceptIncomingCall"
	// CallRejected fires after a pre-accept rejection was acknowledged
	CallRejected Kind = "onDidRejectIncomingCall"
	// CallEnded fires when a presented call terminated
	CallEnded Kind = "onDidEndCall"
	// PushTokenUpdated fires when the push token changed
	PushTokenUpdated Kind = "onDidUpdatePushToken"
	// AudioSessionActivated fires when the authority handed over audio
	AudioSessionActivated Kind = "onDidActivateAudioSession"
	// AudioSessionDeactivated fires when the authority took audio back
	AudioSessionDeactivated Kind = "onDidDeactivateAudioSession"
)

// Field names shared by events and acknowledgment requests.
const (
	FieldPayload       = "payload"
	FieldCallerName    = "incoming_caller_name"
	FieldUUID          = "uuid"
	FieldCallerID      = "incoming_caller_id"
	FieldEndedManually = "isEndCallManually"
	FieldInfo          = "info"
	FieldToken         = "token"
)

// Event is one notice on the stream
type Event struct {
	// ID is unique per event instance, for deduplication by listeners
	ID     string
	Kind   Kind
	Time   time.Time
	CallID string
	NodeID string
	Fields map[string]any
}

// MarshalJSON flattens the event into {"event": kind, ...fields}
func (e Event) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(e.Fields)+4)
	for k, v := range e.Fields {
		m[k] = v
	}
	m["event"] = string(e.Kind)
	m["event_id"] = e.ID
	m["timestamp"] = e.Time.Format(time.RFC3339Nano)
	if e.NodeID != "" {
		m["node_id"] = e.NodeID
	}
	return json.Marshal(m)
}
