// Package types defines the JSON shapes of the voipcenter HTTP and WebSocket API.
package types

import "encoding/json"

// HealthResponse is the response from /api/v1/health
type HealthResponse struct {
	Status string `json:"status"`
	Uptime int64  `json:"uptime"`
	NodeID string `json:"node_id"`
}

// MethodResponse wraps the result of /api/v1/methods/{method}.
// Result is null for requests without a value.
type MethodResponse struct {
	Method string `json:"method"`
	Result any    `json:"result"`
}

// ErrorResponse is returned with every non-2xx status
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// PushResponse is the response from /api/v1/push. Pushes are always
// accepted; Dropped carries the diagnostic for a malformed payload.
type PushResponse struct {
	Accepted bool   `json:"accepted"`
	Dropped  string `json:"dropped,omitempty"`
}

// TokenRequest is the body of /api/v1/push/token
type TokenRequest struct {
	Token string `json:"token"`
}

// AckRequest travels on the event stream when the application must
// acknowledge the end of a call.
type AckRequest struct {
	Request   string         `json:"request"`
	ID        string         `json:"id"`
	Arguments map[string]any `json:"arguments"`
}

// AckReply answers an AckRequest, either on the stream or through
// /api/v1/replies/{id}.
type AckReply struct {
	Reply  string          `json:"reply"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Session is the session part of /api/v1/status
type Session struct {
	State         string         `json:"state"`
	Label         string         `json:"label"`
	Role          string         `json:"role"`
	CallID        string         `json:"call_id,omitempty"`
	CallerID      string         `json:"caller_id,omitempty"`
	CallerName    string         `json:"caller_name,omitempty"`
	Info          map[string]any `json:"info,omitempty"`
	Cause         string         `json:"cause,omitempty"`
	EndedManually bool           `json:"ended_manually"`
	Generation    uint64         `json:"generation"`
	StartedAt     string         `json:"started_at,omitempty"`
	EndedAt       string         `json:"ended_at,omitempty"`
}

// StatusResponse is the response from /api/v1/status
type StatusResponse struct {
	Session         Session `json:"session"`
	ReactionPending bool    `json:"reaction_pending"`
	Announced       bool    `json:"announced"`
	AnswerPending   bool    `json:"answer_pending"`
	AckPending      bool    `json:"ack_pending"`
	Listening       bool    `json:"listening"`
	PendingAcks     int     `json:"pending_acks"`
	EventsDropped   int64   `json:"events_dropped"`
}

// Call is a call known to the headless authority
type Call struct {
	ID         string `json:"id"`
	CallerID   string `json:"caller_id"`
	CallerName string `json:"caller_name"`
	Outgoing   bool   `json:"outgoing"`
	State      string `json:"state"`
	EndCause   string `json:"end_cause,omitempty"`
	UpdatedAt  string `json:"updated_at"`
}

// AuthorityRequest is the body of the headless authority actions
type AuthorityRequest struct {
	CallID string `json:"call_id"`
	Target string `json:"target,omitempty"`
}
