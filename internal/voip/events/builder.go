package events

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// Builder constructs events with consistent ids, timestamps and node id.
type Builder struct {
	nodeID string
}

// NewBuilder creates an event builder for this node
func NewBuilder(nodeID string) *Builder {
	return &Builder{nodeID: nodeID}
}

func (b *Builder) newEvent(kind Kind, callID string, fields map[string]any) Event {
	if fields == nil {
		fields = map[string]any{}
	}
	return Event{
		ID:     uuid.New().String(),
		Kind:   kind,
		Time:   time.Now().UTC(),
		CallID: callID,
		NodeID: b.nodeID,
		Fields: fields,
	}
}

// PushReceived announces a presented incoming call with its push payload
func (b *Builder) PushReceived(callID string, payload map[string]any, callerName string) Event {
	return b.newEvent(PushReceived, callID, map[string]any{
		FieldPayload:    maps.Clone(payload),
		FieldCallerName: callerName,
	})
}

// CallAccepted announces that the user answered
func (b *Builder) CallAccepted(callID, callerID string) Event {
	return b.newEvent(CallAccepted, callID, map[string]any{
		FieldUUID:     callID,
		FieldCallerID: callerID,
	})
}

// CallRejected announces an acknowledged pre-accept rejection
func (b *Builder) CallRejected(callID, callerID string, endedManually bool, info map[string]any) Event {
	return b.newEvent(CallRejected, callID, Termination(callID, callerID, endedManually, info))
}

// CallEnded announces the end of a presented call
func (b *Builder) CallEnded(callID, callerID string, endedManually bool, info map[string]any) Event {
	return b.newEvent(CallEnded, callID, Termination(callID, callerID, endedManually, info))
}

// PushTokenUpdated announces a new push token in hex
func (b *Builder) PushTokenUpdated(tokenHex string) Event {
	return b.newEvent(PushTokenUpdated, "", map[string]any{FieldToken: tokenHex})
}

// AudioSessionActivated announces that audio may start
func (b *Builder) AudioSessionActivated(callID string) Event {
	return b.newEvent(AudioSessionActivated, callID, nil)
}

// AudioSessionDeactivated announces that audio stopped
func (b *Builder) AudioSessionDeactivated(callID string) Event {
	return b.newEvent(AudioSessionDeactivated, callID, nil)
}

// Termination builds the field set shared by termination events and
// acknowledgment requests.
func Termination(callID, callerID string, endedManually bool, info map[string]any) map[string]any {
	if info == nil {
		info = map[string]any{}
	}
	return map[string]any{
		FieldUUID:          callID,
		FieldCallerID:      callerID,
		FieldEndedManually: endedManually,
		FieldInfo:          maps.Clone(info),
	}
}
