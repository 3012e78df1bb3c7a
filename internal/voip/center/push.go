package center

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sebas/voipcenter/internal/voip/authority"
	"github.com/sebas/voipcenter/internal/voip/payload"
	"github.com/sebas/voipcenter/internal/voip/session"
)

// HandlePush interprets a push payload and feeds it to the session. A
// malformed payload is dropped with a diagnostic; the error is returned only
// so the transport can log it.
func (c *Center) HandlePush(ctx context.Context, raw map[string]any) error {
	sig, err := payload.Parse(raw)
	if err != nil {
		c.monitor.PushReceived("malformed")
		slog.Warn("[Center] Dropping malformed push", "error", err)
		return err
	}
	c.monitor.PushReceived(sig.Kind.String())
	slog.Info("[Center] Push received", "call_id", sig.Identity.ID, "kind", sig.Kind.String())

	if !c.enqueue(func() { c.handleSignal(sig, nil) }) {
		return ErrStopped
	}
	return nil
}

func finish(done func(error), err error) {
	if done != nil {
		done(err)
	}
}

func (c *Center) handleSignal(sig payload.Signal, done func(error)) {
	if sig.IsMissed() {
		c.receiveMissed(sig)
		finish(done, nil)
		return
	}
	c.receiveIncoming(sig, done)
}

func (c *Center) receiveIncoming(sig payload.Signal, done func(error)) {
	gen, err := c.session.ReceiveIncoming(sig.Identity)
	if err != nil {
		slog.Warn("[Center] Incoming push ignored", "call_id", sig.Identity.ID, "error", err)
		finish(done, err)
		return
	}
	c.cur = callState{payload: sig.Alert}
	c.observe()

	identity := sig.Identity
	c.async(func(ctx context.Context) {
		if c.cfg.ReportTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.cfg.ReportTimeout)
			defer cancel()
		}
		err := c.authority.ReportIncomingCall(ctx, identity)
		if err != nil && !errors.Is(err, authority.ErrAuthority) {
			err = &authority.Error{Op: "reportIncomingCall", CallID: identity.ID, Cause: err}
		}
		if !c.enqueue(func() { c.incomingReported(gen, identity, err, done) }) {
			finish(done, ErrStopped)
		}
	})
}

// incomingReported handles the completion of reportIncomingCall. Completions
// for an attempt that was superseded in the meantime do not touch the session.
func (c *Center) incomingReported(gen uint64, identity session.Identity, err error, done func(error)) {
	current := gen == c.session.Generation()

	if err != nil {
		c.monitor.AuthorityFailed("reportIncomingCall")
		slog.Warn("[Center] Authority refused incoming call", "call_id", identity.ID, "error", err)
		if current && c.session.RollbackIncoming(gen) {
			c.cur = callState{}
			c.observe()
		}
		finish(done, err)
		return
	}

	snap := c.session.Snapshot()
	if !current || snap.State == session.StateEnded {
		cause := session.CauseRemoteEnded
		if current {
			cause = snap.Cause
		}
		slog.Warn("[Center] Incoming report completed for a call that is already over",
			"call_id", identity.ID,
			"cause", cause.String(),
		)
		c.reportEnded(identity.ID, cause)
		finish(done, nil)
		return
	}

	c.cur.reported = true
	c.cur.announced = true
	c.publish(c.builder.PushReceived(identity.ID, c.cur.payload, identity.CallerName))
	finish(done, nil)
}

func (c *Center) receiveMissed(sig payload.Signal) {
	before := c.session.Snapshot()
	if before.State == session.StateIncoming && !isCurrent(before, sig.Identity.ID) {
		slog.Warn("[Center] Missed-call notice for another call ignored",
			"call_id", sig.Identity.ID,
			"current", before.Identity.ID,
		)
		return
	}

	prev, err := c.session.ReceiveMissed(sig.Identity)
	if err != nil {
		slog.Warn("[Center] Missed-call notice ignored", "call_id", sig.Identity.ID, "error", err)
		return
	}

	if prev == session.StateEnded && isCurrent(before, sig.Identity.ID) {
		slog.Debug("[Center] Missed-call notice for ended call", "call_id", sig.Identity.ID)
		return
	}

	switch prev {
	case session.StateIdle, session.StateEnded:
		c.cur = callState{payload: sig.Alert}
		slog.Info("[Center] Missed call recorded", "call_id", sig.Identity.ID)
		c.afterEnd(sig.Identity.ID, session.CauseRemoteEnded)
	case session.StateIncoming:
		c.endAtAuthority(before, session.CauseRemoteEnded)
		if c.cur.announced {
			id := before.Identity
			c.publish(c.builder.CallEnded(id.ID, id.CallerID, false, id.Info))
		}
		c.afterEnd(before.Identity.ID, session.CauseRemoteEnded)
	}
}
