package center

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sebas/voipcenter/internal/voip/authority"
	"github.com/sebas/voipcenter/internal/voip/payload"
	"github.com/sebas/voipcenter/internal/voip/reaction"
	"github.com/sebas/voipcenter/internal/voip/session"
	"github.com/sebas/voipcenter/internal/voip/token"
)

// CallerStateCalling is the callerState meaning the caller is still on the line.
const CallerStateCalling = "calling"

// Token returns the push token as hex. ok is false when none was registered.
func (c *Center) Token(ctx context.Context) (string, bool, error) {
	tok, err := c.tokens.Load(ctx)
	if errors.Is(err, token.ErrNoToken) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return token.EncodeHex(tok), true, nil
}

// IncomingCallerName returns the caller name while an incoming call is live
func (c *Center) IncomingCallerName(ctx context.Context) (string, bool, error) {
	type name struct {
		v  string
		ok bool
	}
	n, err := run(ctx, c, func() (name, error) {
		snap := c.session.Snapshot()
		if snap.Identity == nil || snap.Role != session.RoleIncoming || snap.State.IsTerminal() {
			return name{}, nil
		}
		return name{snap.Identity.CallerName, true}, nil
	})
	return n.v, n.ok, err
}

// StartCall begins an outgoing call and asks the authority to present it
func (c *Center) StartCall(ctx context.Context, callID, target string) error {
	identity := session.NewIdentity(callID, target, target, nil)
	gen, err := run(ctx, c, func() (uint64, error) {
		gen, err := c.session.StartOutgoing(identity)
		if err != nil {
			return 0, err
		}
		c.cur = callState{}
		c.observe()
		return gen, nil
	})
	if err != nil {
		return err
	}

	if err := c.authority.RequestStartCall(ctx, identity); err != nil {
		if !errors.Is(err, authority.ErrAuthority) {
			err = &authority.Error{Op: "requestStartCall", CallID: callID, Cause: err}
		}
		c.monitor.AuthorityFailed("requestStartCall")
		slog.Warn("[Center] Authority refused outgoing call", "call_id", callID, "error", err)
		c.enqueue(func() {
			if gen != c.session.Generation() {
				return
			}
			if changed, _ := c.session.Fail(); changed {
				c.afterEnd(callID, session.CauseFailed)
			}
		})
		return err
	}
	return nil
}

// EndCall ends the current call on behalf of the application. The application
// is the originator, so no event is emitted back to it.
func (c *Center) EndCall(ctx context.Context, manually bool) error {
	_, err := run(ctx, c, func() (struct{}, error) {
		before := c.session.Snapshot()
		if before.State == session.StateIdle {
			slog.Debug("[Center] endCall without a call")
			return struct{}{}, nil
		}
		changed, err := c.session.EndByApplication(manually)
		if err != nil || !changed {
			return struct{}{}, err
		}
		cause := c.session.Snapshot().Cause
		c.endAtAuthority(before, cause)
		c.afterEnd(before.Identity.ID, cause)
		return struct{}{}, nil
	})
	return err
}

// AcceptIncomingCall completes the authority's answer action. Any callerState
// other than "calling" means the caller is gone and the call fails.
func (c *Center) AcceptIncomingCall(ctx context.Context, callerState string) error {
	_, err := run(ctx, c, func() (struct{}, error) {
		if callerState == CallerStateCalling {
			if c.cur.pendingAnswer == nil {
				slog.Debug("[Center] acceptIncomingCall without pending answer", "state", c.session.State().String())
				return struct{}{}, nil
			}
			c.fulfill(c.cur.pendingAnswer)
			c.cur.pendingAnswer = nil
			return struct{}{}, nil
		}

		before := c.session.Snapshot()
		changed, err := c.session.Fail()
		if err != nil {
			slog.Info("[Center] acceptIncomingCall out of state", "caller_state", callerState, "error", err)
			return struct{}{}, nil
		}
		if changed {
			slog.Info("[Center] Caller gone before answer completed", "call_id", before.Identity.ID, "caller_state", callerState)
			c.endAtAuthority(before, session.CauseFailed)
			c.afterEnd(before.Identity.ID, session.CauseFailed)
		}
		return struct{}{}, nil
	})
	return err
}

// UnansweredIncomingCall ends an incoming call nobody picked up and, unless
// skipped, schedules a missed-call notification. The notification goes out
// even when there is no incoming call left to end.
func (c *Center) UnansweredIncomingCall(ctx context.Context, skipNotification bool, title, body string) error {
	callID, err := run(ctx, c, func() (string, error) {
		before := c.session.Snapshot()
		var callID string
		if before.Identity != nil {
			callID = before.Identity.ID
		}
		changed, err := c.session.MarkUnanswered()
		if err != nil {
			slog.Info("[Center] unansweredIncomingCall out of state", "call_id", callID, "error", err)
			return callID, nil
		}
		if changed {
			c.endAtAuthority(before, session.CauseUnanswered)
			c.afterEnd(before.Identity.ID, session.CauseUnanswered)
		}
		return callID, nil
	})
	if err != nil || skipNotification {
		return err
	}

	note := c.cfg.Notification
	note.CallID = callID
	if title != "" {
		note.Title = title
	}
	if body != "" {
		note.Body = body
	}
	if err := c.notifier.Schedule(ctx, note.WithDefaults()); err != nil {
		slog.Warn("[Center] Failed to schedule missed-call notification", "call_id", callID, "error", err)
	}
	return nil
}

// CallConnected acknowledges that media flows. It promotes an outgoing call
// from Connecting to Active.
func (c *Center) CallConnected(ctx context.Context) error {
	_, err := run(ctx, c, func() (struct{}, error) {
		promoted, err := c.session.ConfirmConnected()
		if err != nil {
			slog.Info("[Center] callConnected out of state", "error", err)
			return struct{}{}, nil
		}
		if promoted {
			c.observe()
			id := c.session.Snapshot().Identity.ID
			c.async(func(context.Context) {
				c.authority.ReportOutgoingConnected(id)
			})
		}
		return struct{}{}, nil
	})
	return err
}

// ConsumeLatestReaction returns the unread reaction and clears it
func (c *Center) ConsumeLatestReaction(ctx context.Context) (reaction.Record, bool, error) {
	type result struct {
		rec reaction.Record
		ok  bool
	}
	r, err := run(ctx, c, func() (result, error) {
		rec, ok := c.reactions.Consume()
		return result{rec, ok}, nil
	})
	return r.rec, r.ok, err
}

// TestIncomingCall feeds a synthetic incoming push through the regular path
// and waits for the authority report.
func (c *Center) TestIncomingCall(ctx context.Context, callID, callerID, callerName string) error {
	info := map[string]any{"infoTest": "text"}
	alert := map[string]any{
		payload.KeyUUID:       callID,
		payload.KeyCallerID:   callerID,
		payload.KeyCallerName: callerName,
		payload.KeyCallMissed: false,
		"infoTest":            "text",
	}
	sig := payload.Signal{
		Kind:     payload.KindCall,
		Identity: session.NewIdentity(callID, callerID, callerName, info),
		Alert:    alert,
	}

	result := make(chan error, 1)
	done := func(err error) { result <- err }
	if !c.enqueue(func() { c.handleSignal(sig, done) }) {
		return ErrStopped
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Center) RequestNotificationAuthorization(ctx context.Context, options []string) (bool, error) {
	return c.notifier.RequestAuthorization(ctx, options)
}

func (c *Center) NotificationSettings(ctx context.Context) (map[string]any, error) {
	return c.notifier.Settings(ctx)
}

