package center

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sebas/voipcenter/internal/voip/authority"
	"github.com/sebas/voipcenter/internal/voip/events"
	"github.com/sebas/voipcenter/internal/voip/reaction"
	"github.com/sebas/voipcenter/internal/voip/session"
)

// The authority calls these from its own goroutines. Each one only enqueues.

func (c *Center) OnStartOutgoingRequested(a authority.Action) {
	if !c.enqueue(func() { c.startRequested(a) }) {
		a.Fail()
	}
}

func (c *Center) OnAnswerRequested(a authority.Action) {
	if !c.enqueue(func() { c.answerRequested(a) }) {
		a.Fail()
	}
}

func (c *Center) OnEndRequested(a authority.Action) {
	if !c.enqueue(func() { c.endRequested(a) }) {
		a.Fulfill()
	}
}

func (c *Center) OnAudioSessionActivated() {
	c.enqueue(func() {
		c.publish(c.builder.AudioSessionActivated(c.currentID()))
	})
}

func (c *Center) OnAudioSessionDeactivated() {
	c.enqueue(func() {
		c.publish(c.builder.AudioSessionDeactivated(c.currentID()))
	})
}

func (c *Center) OnReset() {
	c.enqueue(c.reset)
}

func (c *Center) currentID() string {
	if snap := c.session.Snapshot(); snap.Identity != nil {
		return snap.Identity.ID
	}
	return ""
}

func (c *Center) startRequested(a authority.Action) {
	snap := c.session.Snapshot()
	if !isCurrent(snap, a.CallID()) || !c.session.ConfirmOutgoingConnecting() {
		slog.Warn("[Center] Start request for unknown call", "call_id", a.CallID(), "state", snap.StateLabel())
		c.fail(a)
		return
	}
	c.cur.reported = true
	id := a.CallID()
	c.async(func(context.Context) {
		c.authority.ReportOutgoingConnecting(id)
	})
	c.fulfill(a)
}

func (c *Center) answerRequested(a authority.Action) {
	snap := c.session.Snapshot()
	if !isCurrent(snap, a.CallID()) {
		slog.Warn("[Center] Answer for unknown call",
			"call_id", a.CallID(),
			"recently_ended", c.recent.Contains(a.CallID()),
		)
		c.fail(a)
		return
	}
	if err := c.session.Accept(); err != nil {
		slog.Warn("[Center] Answer rejected", "call_id", a.CallID(), "error", err)
		c.fail(a)
		return
	}
	c.observe()

	if c.reactions.Record(reaction.Accepted, c.cur.payload) {
		c.monitor.ReactionOverwritten()
	}
	if err := c.authority.ConfigureAudioSession(c.cfg.Audio); err != nil {
		slog.Warn("[Center] Failed to configure audio session", "call_id", a.CallID(), "error", err)
	}
	c.cur.pendingAnswer = a
	slog.Info("[Center] Call accepted", "call_id", a.CallID())
	c.publish(c.builder.CallAccepted(snap.Identity.ID, snap.Identity.CallerID))
}

// endRequested starts the acknowledgment round trip. The session only ends
// once the application replied or the wait gave up.
func (c *Center) endRequested(a authority.Action) {
	snap := c.session.Snapshot()
	if !isCurrent(snap, a.CallID()) {
		if cause, ok := c.recent.Get(a.CallID()); ok {
			slog.Debug("[Center] End for finished call", "call_id", a.CallID(), "cause", cause.String())
		} else {
			slog.Warn("[Center] End for unknown call", "call_id", a.CallID())
		}
		c.fulfill(a)
		return
	}
	if c.cur.ackPending {
		slog.Debug("[Center] End already awaiting acknowledgment", "call_id", a.CallID())
		c.fulfill(a)
		return
	}

	id := snap.Identity
	var req events.Event
	switch snap.State {
	case session.StateIncoming:
		if c.reactions.Record(reaction.Rejected, c.cur.payload) {
			c.monitor.ReactionOverwritten()
		}
		req = c.builder.CallRejected(id.ID, id.CallerID, false, id.Info)
	case session.StateActive, session.StateConnecting:
		req = c.builder.CallEnded(id.ID, id.CallerID, true, id.Info)
	default:
		c.fulfill(a)
		return
	}

	c.cur.ackPending = true
	gen := snap.Generation
	slog.Info("[Center] Awaiting acknowledgment", "call_id", id.ID, "request", req.Kind)

	c.async(func(ctx context.Context) {
		if c.cfg.AckTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.cfg.AckTimeout)
			defer cancel()
		}
		start := time.Now()
		err := c.acker.Acknowledge(ctx, req)
		c.monitor.Acknowledged(ackOutcome(err), time.Since(start))
		if !c.enqueue(func() { c.acknowledged(gen, req, a, err) }) {
			a.Fulfill()
		}
	})
}

func ackOutcome(err error) string {
	switch {
	case err == nil:
		return "acknowledged"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrNoListener):
		return "no_listener"
	default:
		return "failed"
	}
}

// acknowledged ends the session after the round trip and then releases the
// authority's end action.
func (c *Center) acknowledged(gen uint64, req events.Event, a authority.Action, err error) {
	defer c.fulfill(a)

	if gen != c.session.Generation() {
		slog.Debug("[Center] Acknowledgment for superseded call", "call_id", req.CallID)
		return
	}
	c.cur.ackPending = false
	if err != nil {
		slog.Warn("[Center] Acknowledgment missed, proceeding with teardown",
			"call_id", req.CallID,
			"request", req.Kind,
			"error", err,
		)
	}

	var changed bool
	switch c.session.State() {
	case session.StateIncoming:
		changed, _ = c.session.EndBeforeAccept()
	case session.StateActive, session.StateConnecting:
		changed, _ = c.session.EndActive()
	}
	if !changed {
		return
	}
	snap := c.session.Snapshot()
	c.afterEnd(snap.Identity.ID, snap.Cause)
}

func (c *Center) reset() {
	prev := c.session.Reset()
	// Actions belong to the authority that just dropped them
	c.cur.pendingAnswer = nil

	if prev.Identity != nil && !prev.State.IsTerminal() {
		c.recent.Add(prev.Identity.ID, session.CauseRemoteEnded)
		c.monitor.CallEnded(session.CauseRemoteEnded.String())
		if c.cur.announced || prev.Role == session.RoleOutgoing {
			id := prev.Identity
			c.publish(c.builder.CallEnded(id.ID, id.CallerID, false, id.Info))
		}
	}
	c.cur = callState{}
	c.observe()
	slog.Warn("[Center] Authority reset, session forced to Idle", "previous", prev.StateLabel())
}
