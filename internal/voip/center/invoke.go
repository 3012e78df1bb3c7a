package center

import (
	"context"
	"fmt"
)

// Request names of the synchronous surface.
const (
	MethodGetVoIPToken                  = "getVoIPToken"
	MethodGetToken                      = "getToken"
	MethodGetIncomingCallerName         = "getIncomingCallerName"
	MethodStartCall                     = "startCall"
	MethodEndCall                       = "endCall"
	MethodAcceptIncomingCall            = "acceptIncomingCall"
	MethodUnansweredIncomingCall        = "unansweredIncomingCall"
	MethodCallConnected                 = "callConnected"
	MethodGetLatestNotification         = "getLatestNotification"
	MethodConsumeLatestReaction         = "consumeLatestReaction"
	MethodTestIncomingCall              = "testIncomingCall"
	MethodRequestAuthLocalNotification  = "requestAuthLocalNotification"
	MethodGetLocalNotificationsSettings = "getLocalNotificationsSettings"
)

// Invoke dispatches a named request with its arguments. A nil result with a
// nil error means the request has no value to return.
func (c *Center) Invoke(ctx context.Context, method string, args map[string]any) (any, error) {
	a := arguments{method: method, values: args}

	switch method {
	case MethodGetVoIPToken, MethodGetToken:
		tok, ok, err := c.Token(ctx)
		if err != nil || !ok {
			return nil, err
		}
		return tok, nil

	case MethodGetIncomingCallerName:
		name, ok, err := c.IncomingCallerName(ctx)
		if err != nil || !ok {
			return nil, err
		}
		return name, nil

	case MethodStartCall:
		id, err := a.id("uuid")
		if err != nil {
			return nil, err
		}
		target, err := a.str("targetName")
		if err != nil {
			return nil, err
		}
		return nil, c.StartCall(ctx, id, target)

	case MethodEndCall:
		manually, err := a.boolean("isEndCallManually")
		if err != nil {
			return nil, err
		}
		return nil, c.EndCall(ctx, manually)

	case MethodAcceptIncomingCall:
		state, err := a.str("callerState")
		if err != nil {
			return nil, err
		}
		return nil, c.AcceptIncomingCall(ctx, state)

	case MethodUnansweredIncomingCall:
		skip, err := a.boolean("skipLocalNotification")
		if err != nil {
			return nil, err
		}
		title, err := a.optionalStr("missedCallTitle")
		if err != nil {
			return nil, err
		}
		body, err := a.optionalStr("missedCallBody")
		if err != nil {
			return nil, err
		}
		return nil, c.UnansweredIncomingCall(ctx, skip, title, body)

	case MethodCallConnected:
		return nil, c.CallConnected(ctx)

	case MethodGetLatestNotification, MethodConsumeLatestReaction:
		rec, ok, err := c.ConsumeLatestReaction(ctx)
		if err != nil || !ok {
			return nil, err
		}
		return map[string]any{
			"action":  string(rec.Reaction),
			"payload": rec.Payload,
		}, nil

	case MethodTestIncomingCall:
		id, err := a.id("uuid")
		if err != nil {
			return nil, err
		}
		callerID, err := a.str("callerId")
		if err != nil {
			return nil, err
		}
		callerName, err := a.str("callerName")
		if err != nil {
			return nil, err
		}
		return nil, c.TestIncomingCall(ctx, id, callerID, callerName)

	case MethodRequestAuthLocalNotification:
		options, err := a.strings("options")
		if err != nil {
			return nil, err
		}
		granted, err := c.RequestNotificationAuthorization(ctx, options)
		if err != nil {
			return nil, err
		}
		return map[string]any{"granted": granted}, nil

	case MethodGetLocalNotificationsSettings:
		return c.NotificationSettings(ctx)

	default:
		return nil, fmt.Errorf("%w: %s", ErrNotImplemented, method)
	}
}

type arguments struct {
	method string
	values map[string]any
}

func (a arguments) str(field string) (string, error) {
	v, ok := a.values[field].(string)
	if !ok {
		return "", invalidArgs(a.method, field)
	}
	return v, nil
}

func (a arguments) optionalStr(field string) (string, error) {
	raw, present := a.values[field]
	if !present || raw == nil {
		return "", nil
	}
	v, ok := raw.(string)
	if !ok {
		return "", invalidArgs(a.method, field)
	}
	return v, nil
}

func (a arguments) boolean(field string) (bool, error) {
	v, ok := a.values[field].(bool)
	if !ok {
		return false, invalidArgs(a.method, field)
	}
	return v, nil
}

// id accepts any non-empty string; call ids are opaque
func (a arguments) id(field string) (string, error) {
	v, err := a.str(field)
	if err != nil {
		return "", err
	}
	if v == "" {
		return "", invalidArgs(a.method, field)
	}
	return v, nil
}

// strings accepts a missing field as an empty list
func (a arguments) strings(field string) ([]string, error) {
	raw, present := a.values[field]
	if !present || raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, invalidArgs(a.method, field)
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, invalidArgs(a.method, field)
		}
		out = append(out, s)
	}
	return out, nil
}
