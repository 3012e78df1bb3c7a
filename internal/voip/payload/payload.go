// Package payload interprets push transport payloads.
package payload

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"

	"github.com/sebas/voipcenter/internal/voip/session"
)

// Well-known keys of the push payload.
const (
	KeyAPS        = "aps"
	KeyAlert      = "alert"
	KeyUUID       = "uuid"
	KeyCallerID   = "incoming_caller_id"
	KeyCallerName = "incoming_caller_name"
	KeyCallMissed = "call_missed"
)

// ErrMalformedPayload indicates a push payload without the expected structure.
var ErrMalformedPayload = errors.New("malformed payload")

// MalformedError names the field that could not be interpreted.
type MalformedError struct {
	Field  string
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed payload: %s: %s", e.Field, e.Reason)
}

func (e *MalformedError) Unwrap() error {
	return ErrMalformedPayload
}

// Kind tags an IncomingSignal
type Kind int

const (
	KindCall Kind = iota
	KindMissed
)

func (k Kind) String() string {
	if k == KindMissed {
		return "missed"
	}
	return "call"
}

// Signal is the interpreted push: either a call to present or a notice that
// the caller gave up.
type Signal struct {
	Kind     Kind
	Identity session.Identity
	// Alert is the alert object as received, cached for the reaction record.
	Alert map[string]any
}

// IsMissed reports whether the signal is a missed-call notice
func (s Signal) IsMissed() bool {
	return s.Kind == KindMissed
}

// ParseJSON decodes raw push bytes and interprets them
func ParseJSON(data []byte) (Signal, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Signal{}, &MalformedError{Field: "$", Reason: err.Error()}
	}
	return Parse(raw)
}

// Parse interprets a decoded push payload. Missing or mistyped required
// fields yield a *MalformedError.
func Parse(raw map[string]any) (Signal, error) {
	aps, err := object(raw, KeyAPS, KeyAPS)
	if err != nil {
		return Signal{}, err
	}
	alert, err := object(aps, KeyAlert, KeyAPS+"."+KeyAlert)
	if err != nil {
		return Signal{}, err
	}

	id, err := str(alert, KeyUUID)
	if err != nil {
		return Signal{}, err
	}
	if id == "" {
		return Signal{}, &MalformedError{Field: KeyUUID, Reason: "empty"}
	}
	callerID, err := str(alert, KeyCallerID)
	if err != nil {
		return Signal{}, err
	}
	callerName, err := str(alert, KeyCallerName)
	if err != nil {
		return Signal{}, err
	}
	missed, ok := alert[KeyCallMissed].(bool)
	if !ok {
		return Signal{}, fieldError(alert, KeyCallMissed, KeyCallMissed, "bool")
	}

	sig := Signal{
		Kind:     KindCall,
		Identity: session.NewIdentity(id, callerID, callerName, alert),
		Alert:    maps.Clone(alert),
	}
	if missed {
		sig.Kind = KindMissed
	}
	return sig, nil
}

func object(m map[string]any, key, path string) (map[string]any, error) {
	v, ok := m[key].(map[string]any)
	if !ok {
		return nil, fieldError(m, key, path, "object")
	}
	return v, nil
}

func str(m map[string]any, key string) (string, error) {
	v, ok := m[key].(string)
	if !ok {
		return "", fieldError(m, key, key, "string")
	}
	return v, nil
}

func fieldError(m map[string]any, key, field, want string) error {
	if _, present := m[key]; !present {
		return &MalformedError{Field: field, Reason: "missing"}
	}
	return &MalformedError{Field: field, Reason: "expected " + want}
}
