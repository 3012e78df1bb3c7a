package center

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sebas/voipcenter/internal/voip/authority"
	"github.com/sebas/voipcenter/internal/voip/events"
	"github.com/sebas/voipcenter/internal/voip/notify"
	"github.com/sebas/voipcenter/internal/voip/payload"
	"github.com/sebas/voipcenter/internal/voip/reaction"
	"github.com/sebas/voipcenter/internal/voip/session"
	"github.com/sebas/voipcenter/internal/voip/token"
	"github.com/stretchr/testify/require"
)

const (
	callA = "0b7e6c2a-4f55-4f0c-9a55-2d1c7f3e9a01"
	callB = "5d2f8e1b-8c3a-4b6e-b1c2-7a9e0f4d3c02"
)

const waitFor = 2 * time.Second

// acker hands every request to the test, which decides when to reply
type acker struct {
	requests chan events.Event
	replies  chan error
}

func newAcker() *acker {
	return &acker{
		requests: make(chan events.Event, 8),
		replies:  make(chan error, 8),
	}
}

func (a *acker) Acknowledge(ctx context.Context, req events.Event) error {
	a.requests <- req
	select {
	case err := <-a.replies:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// gatedAuthority holds reportIncomingCall until the test opens the gate
type gatedAuthority struct {
	*authority.Headless
	gate chan struct{}
	err  error
}

func (g *gatedAuthority) ReportIncomingCall(ctx context.Context, id session.Identity) error {
	if g.gate != nil {
		<-g.gate
	}
	if g.err != nil {
		return g.err
	}
	return g.Headless.ReportIncomingCall(ctx, id)
}

type harness struct {
	center *Center
	auth   *authority.Headless
	pub    *events.ChannelPublisher
	acker  *acker
	tokens *token.MemoryStore
}

func newHarness(t *testing.T, cfg Config, auth authority.Authority) *harness {
	t.Helper()

	h := &harness{
		pub:    events.NewChannelPublisher(64),
		acker:  newAcker(),
		tokens: token.NewMemoryStore(),
	}
	switch a := auth.(type) {
	case nil:
		h.auth = authority.NewHeadless()
		auth = h.auth
	case *authority.Headless:
		h.auth = a
	case *gatedAuthority:
		h.auth = a.Headless
	}

	c, err := New(cfg, Deps{
		Authority:    auth,
		Publisher:    h.pub,
		Acknowledger: h.acker,
		Tokens:       h.tokens,
		Notifier:     notify.NewLoggingNotifier(nil),
	})
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { c.Close() })
	h.center = c
	return h
}

func push(id, callerID, callerName string, missed bool) map[string]any {
	return map[string]any{
		payload.KeyAPS: map[string]any{
			payload.KeyAlert: map[string]any{
				payload.KeyUUID:       id,
				payload.KeyCallerID:   callerID,
				payload.KeyCallerName: callerName,
				payload.KeyCallMissed: missed,
				"extra":               "kept",
			},
		},
	}
}

// waitEvent returns the next event of the given kind, skipping others
func (h *harness) waitEvent(t *testing.T, kind events.Kind) events.Event {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case e := <-h.pub.Events():
			if e.Kind == kind {
				return e
			}
		case <-deadline:
			t.Fatalf("no %s event", kind)
		}
	}
}

// drain returns the events published so far
func (h *harness) drain() []events.Event {
	var out []events.Event
	for {
		select {
		case e := <-h.pub.Events():
			out = append(out, e)
		default:
			return out
		}
	}
}

func kinds(list []events.Event) []events.Kind {
	out := make([]events.Kind, 0, len(list))
	for _, e := range list {
		out = append(out, e.Kind)
	}
	return out
}

func (h *harness) status(t *testing.T) Status {
	t.Helper()
	st, err := h.center.Status(context.Background())
	require.NoError(t, err)
	return st
}

func (h *harness) requireState(t *testing.T, label string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.status(t).Session.StateLabel() == label
	}, waitFor, 5*time.Millisecond, "want %s", label)
}

func (h *harness) request(t *testing.T) events.Event {
	t.Helper()
	select {
	case req := <-h.acker.requests:
		return req
	case <-time.After(waitFor):
		t.Fatal("no acknowledgment request")
		return events.Event{}
	}
}

// present delivers an incoming push and waits until it was announced
func (h *harness) present(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, h.center.HandlePush(context.Background(), push(id, "C1", "Bob", false)))
	h.waitEvent(t, events.PushReceived)
}

// answer presents a call and completes the answer action
func (h *harness) answer(t *testing.T, id string) {
	t.Helper()
	h.present(t, id)
	require.NoError(t, h.auth.Answer(id))
	h.waitEvent(t, events.CallAccepted)
	require.NoError(t, h.center.AcceptIncomingCall(context.Background(), CallerStateCalling))
	require.Eventually(t, func() bool {
		c, _ := h.auth.Call(id)
		return c.State == authority.CallActive
	}, waitFor, 5*time.Millisecond)
}

func TestIncomingPushIsAnnouncedOnce(t *testing.T) {
	h := newHarness(t, Config{}, nil)

	h.present(t, callA)

	st := h.status(t)
	require.Equal(t, session.StateIncoming, st.Session.State)
	require.True(t, st.Announced)
	require.Equal(t, "Bob", st.Session.Identity.CallerName)
	require.Equal(t, "kept", st.Session.Identity.Info["extra"])
	require.NotContains(t, kinds(h.drain()), events.PushReceived)

	c, ok := h.auth.Call(callA)
	require.True(t, ok)
	require.Equal(t, authority.CallRinging, c.State)

	name, ok, err := h.center.IncomingCallerName(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Bob", name)
}

func TestMissedPushFromIdle(t *testing.T) {
	h := newHarness(t, Config{}, nil)

	require.NoError(t, h.center.HandlePush(context.Background(), push(callA, "C1", "Bob", true)))
	h.requireState(t, "Ended(RemoteEnded)")

	require.Empty(t, h.drain())
	_, ok := h.auth.Call(callA)
	require.False(t, ok, "missed call must never reach the authority")
}

func TestMalformedPushIsDropped(t *testing.T) {
	h := newHarness(t, Config{}, nil)

	raw := push(callA, "C1", "Bob", false)
	delete(raw[payload.KeyAPS].(map[string]any)[payload.KeyAlert].(map[string]any), payload.KeyCallMissed)

	err := h.center.HandlePush(context.Background(), raw)
	require.ErrorIs(t, err, payload.ErrMalformedPayload)
	require.Equal(t, session.StateIdle, h.status(t).Session.State)
}

func TestAcceptRecordsReaction(t *testing.T) {
	h := newHarness(t, Config{}, nil)

	h.present(t, callA)
	require.NoError(t, h.auth.Answer(callA))

	e := h.waitEvent(t, events.CallAccepted)
	require.Equal(t, callA, e.Fields[events.FieldUUID])
	require.Equal(t, "C1", e.Fields[events.FieldCallerID])

	st := h.status(t)
	require.Equal(t, session.StateActive, st.Session.State)
	require.True(t, st.ReactionPending)
	require.True(t, st.AnswerPending)

	rec, ok, err := h.center.ConsumeLatestReaction(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, reaction.Accepted, rec.Reaction)
	require.Equal(t, callA, rec.Payload[payload.KeyUUID])

	_, ok, err = h.center.ConsumeLatestReaction(context.Background())
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, h.center.AcceptIncomingCall(context.Background(), CallerStateCalling))
	require.Eventually(t, func() bool {
		c, _ := h.auth.Call(callA)
		return c.State == authority.CallActive
	}, waitFor, 5*time.Millisecond)
	h.waitEvent(t, events.AudioSessionActivated)
	require.False(t, h.status(t).AnswerPending)
}

func TestAcceptWithCallerGoneFails(t *testing.T) {
	h := newHarness(t, Config{}, nil)

	h.present(t, callA)
	require.NoError(t, h.auth.Answer(callA))
	h.waitEvent(t, events.CallAccepted)

	require.NoError(t, h.center.AcceptIncomingCall(context.Background(), "ended"))
	h.requireState(t, "Ended(Failed)")
	require.Eventually(t, func() bool {
		c, _ := h.auth.Call(callA)
		return !(c.State == authority.CallAnswering || c.State == authority.CallActive)
	}, waitFor, 5*time.Millisecond)
}

func TestRejectWaitsForAcknowledgment(t *testing.T) {
	h := newHarness(t, Config{AckTimeout: 0}, nil)
	h.present(t, callA)

	require.NoError(t, h.auth.End(callA))
	req := h.request(t)
	require.Equal(t, events.CallRejected, req.Kind)
	require.Equal(t, false, req.Fields[events.FieldEndedManually])
	require.Equal(t, "C1", req.Fields[events.FieldCallerID])

	// Without a reply the call stays presented
	time.Sleep(50 * time.Millisecond)
	st := h.status(t)
	require.Equal(t, session.StateIncoming, st.Session.State)
	require.True(t, st.AckPending)

	h.acker.replies <- nil
	h.requireState(t, "Ended(UserRejected)")

	rec, ok, err := h.center.ConsumeLatestReaction(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, reaction.Rejected, rec.Reaction)

	require.Eventually(t, func() bool {
		c, _ := h.auth.Call(callA)
		return c.State == authority.CallEnded
	}, waitFor, 5*time.Millisecond)

	// The acknowledgment request is the only notice of the rejection
	got := kinds(h.drain())
	require.NotContains(t, got, events.CallRejected)
	require.NotContains(t, got, events.CallEnded)

	_, ok, err = h.center.IncomingCallerName(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAckTimeoutProceedsWithTeardown(t *testing.T) {
	h := newHarness(t, Config{AckTimeout: 20 * time.Millisecond}, nil)
	h.present(t, callA)

	require.NoError(t, h.auth.End(callA))
	h.request(t)
	h.requireState(t, "Ended(UserRejected)")
	require.False(t, h.status(t).AckPending)
}

func TestAckFailureProceedsWithTeardown(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	h.answer(t, callA)

	require.NoError(t, h.auth.End(callA))
	req := h.request(t)
	require.Equal(t, events.CallEnded, req.Kind)
	h.acker.replies <- ErrNoListener

	h.requireState(t, "Ended(UserEndedManually)")
}

func TestEndActiveAfterAcknowledgment(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	h.answer(t, callA)

	require.NoError(t, h.auth.End(callA))
	req := h.request(t)
	require.Equal(t, events.CallEnded, req.Kind)
	require.Equal(t, true, req.Fields[events.FieldEndedManually])
	require.Equal(t, session.StateActive, h.status(t).Session.State)

	h.acker.replies <- nil
	h.requireState(t, "Ended(UserEndedManually)")
	st := h.status(t)
	require.True(t, st.Session.EndedManually)

	// A second end of the same call is fulfilled without another round trip
	require.ErrorIs(t, h.auth.End(callA), authority.ErrUnknownCall)
	require.NoError(t, h.center.EndCall(context.Background(), false))
	require.Equal(t, "Ended(UserEndedManually)", h.status(t).Session.StateLabel())
	require.Empty(t, h.acker.requests)
}

func TestOpaqueCallIDs(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	ctx := context.Background()

	require.NoError(t, h.center.HandlePush(ctx, push("A", "C1", "Bob", false)))
	e := h.waitEvent(t, events.PushReceived)
	require.Equal(t, "A", e.CallID)
	require.Equal(t, "Bob", e.Fields[events.FieldCallerName])

	require.NoError(t, h.auth.Answer("A"))
	e = h.waitEvent(t, events.CallAccepted)
	require.Equal(t, "A", e.Fields[events.FieldUUID])
	require.Equal(t, session.StateActive, h.status(t).Session.State)

	rec, ok, err := h.center.ConsumeLatestReaction(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, reaction.Accepted, rec.Reaction)

	_, err = h.center.Invoke(ctx, MethodStartCall, map[string]any{"uuid": "B", "targetName": "Alice"})
	require.ErrorIs(t, err, session.ErrAlreadyInCall)
	require.Equal(t, "A", h.status(t).Session.Identity.ID)
}

func TestStartCallWhileActive(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	h.answer(t, callA)

	err := h.center.StartCall(context.Background(), callB, "Alice")
	require.ErrorIs(t, err, session.ErrAlreadyInCall)
	require.Equal(t, callA, h.status(t).Session.Identity.ID)
}

func TestOutgoingCall(t *testing.T) {
	h := newHarness(t, Config{}, nil)

	require.NoError(t, h.center.StartCall(context.Background(), callB, "Alice"))
	st := h.status(t)
	require.Equal(t, session.StateConnecting, st.Session.State)
	require.Equal(t, session.RoleOutgoing, st.Session.Role)

	require.Eventually(t, func() bool {
		return h.status(t).Session.OutgoingAcknowledged
	}, waitFor, 5*time.Millisecond)

	require.NoError(t, h.center.CallConnected(context.Background()))
	require.Equal(t, session.StateActive, h.status(t).Session.State)
	require.Eventually(t, func() bool {
		c, _ := h.auth.Call(callB)
		return c.State == authority.CallActive
	}, waitFor, 5*time.Millisecond)

	// Confirming again is a pure acknowledgment
	require.NoError(t, h.center.CallConnected(context.Background()))

	require.NoError(t, h.center.EndCall(context.Background(), true))
	h.requireState(t, "Ended(UserEndedManually)")
	require.Eventually(t, func() bool {
		c, _ := h.auth.Call(callB)
		return c.State == authority.CallEnded
	}, waitFor, 5*time.Millisecond)
	require.NotContains(t, kinds(h.drain()), events.CallEnded)
}

func TestAuthorityFailureRollsBack(t *testing.T) {
	auth := &gatedAuthority{
		Headless: authority.NewHeadless(),
		err:      errors.New("busy"),
	}
	h := newHarness(t, Config{}, auth)

	err := h.center.TestIncomingCall(context.Background(), callA, "C1", "Bob")
	require.ErrorIs(t, err, authority.ErrAuthority)

	st := h.status(t)
	require.Equal(t, session.StateIdle, st.Session.State)
	require.Nil(t, st.Session.Identity)
	require.NotContains(t, kinds(h.drain()), events.PushReceived)
}

func TestLateReportForMissedCall(t *testing.T) {
	auth := &gatedAuthority{
		Headless: authority.NewHeadless(),
		gate:     make(chan struct{}),
	}
	h := newHarness(t, Config{}, auth)

	require.NoError(t, h.center.HandlePush(context.Background(), push(callA, "C1", "Bob", false)))
	h.requireState(t, "Incoming")
	require.NoError(t, h.center.HandlePush(context.Background(), push(callA, "C1", "Bob", true)))
	h.requireState(t, "Ended(RemoteEnded)")

	close(auth.gate)
	require.Eventually(t, func() bool {
		c, ok := h.auth.Call(callA)
		return ok && c.State == authority.CallEnded
	}, waitFor, 5*time.Millisecond)

	require.NotContains(t, kinds(h.drain()), events.PushReceived)
	require.Equal(t, "Ended(RemoteEnded)", h.status(t).Session.StateLabel())
}

func TestMissedWhileIncomingEndsCall(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	h.present(t, callA)

	// A notice for another call is ignored
	require.NoError(t, h.center.HandlePush(context.Background(), push(callB, "C2", "Eve", true)))
	h.requireState(t, "Incoming")

	require.NoError(t, h.center.HandlePush(context.Background(), push(callA, "C1", "Bob", true)))
	e := h.waitEvent(t, events.CallEnded)
	require.Equal(t, false, e.Fields[events.FieldEndedManually])
	require.Equal(t, "Ended(RemoteEnded)", h.status(t).Session.StateLabel())

	require.Eventually(t, func() bool {
		c, _ := h.auth.Call(callA)
		return c.State == authority.CallEnded
	}, waitFor, 5*time.Millisecond)

	// Repeating the notice changes nothing
	require.NoError(t, h.center.HandlePush(context.Background(), push(callA, "C1", "Bob", true)))
	h.requireState(t, "Ended(RemoteEnded)")
	require.NotContains(t, kinds(h.drain()), events.CallEnded)
}

func TestMissedAfterAnotherCallEnded(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	h.present(t, callA)

	_, err := h.center.Invoke(context.Background(), MethodUnansweredIncomingCall, map[string]any{
		"skipLocalNotification": true,
	})
	require.NoError(t, err)
	h.requireState(t, "Ended(Unanswered)")
	h.drain()

	require.NoError(t, h.center.HandlePush(context.Background(), push(callB, "C2", "Eve", true)))
	h.requireState(t, "Ended(RemoteEnded)")
	st := h.status(t)
	require.Equal(t, callB, st.Session.Identity.ID)
	gen := st.Session.Generation

	_, ok := h.auth.Call(callB)
	require.False(t, ok, "missed call must never reach the authority")

	// Repeating the notice leaves the recorded call alone
	require.NoError(t, h.center.HandlePush(context.Background(), push(callB, "C2", "Eve", true)))
	require.Never(t, func() bool {
		return h.status(t).Session.Generation != gen
	}, 50*time.Millisecond, 5*time.Millisecond)
	require.Empty(t, h.drain())
}

func TestResetForcesIdle(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	h.present(t, callA)

	h.auth.Reset()
	e := h.waitEvent(t, events.CallEnded)
	require.Equal(t, callA, e.CallID)

	st := h.status(t)
	require.Equal(t, session.StateIdle, st.Session.State)
	require.False(t, st.Announced)

	// A new call may begin
	h.present(t, callB)
}

func TestUnansweredSchedulesNotification(t *testing.T) {
	delivered := make(chan notify.Notification, 1)
	h := newHarness(t, Config{}, nil)
	h.center.notifier = notify.NewLoggingNotifier(func(n notify.Notification) { delivered <- n })
	h.center.cfg.Notification.Delay = 10 * time.Millisecond

	h.present(t, callA)
	_, err := h.center.Invoke(context.Background(), MethodUnansweredIncomingCall, map[string]any{
		"skipLocalNotification": false,
		"missedCallTitle":       "Missed Bob",
	})
	require.NoError(t, err)
	h.requireState(t, "Ended(Unanswered)")

	select {
	case n := <-delivered:
		require.Equal(t, "Missed Bob", n.Title)
		require.Equal(t, notify.DefaultBody, n.Body)
		require.Equal(t, callA, n.CallID)
	case <-time.After(waitFor):
		t.Fatal("notification not delivered")
	}
}

func TestUnansweredAfterResetStillNotifies(t *testing.T) {
	delivered := make(chan notify.Notification, 1)
	h := newHarness(t, Config{}, nil)
	h.center.notifier = notify.NewLoggingNotifier(func(n notify.Notification) { delivered <- n })
	h.center.cfg.Notification.Delay = 10 * time.Millisecond

	h.present(t, callA)
	h.auth.Reset()
	h.waitEvent(t, events.CallEnded)
	require.Equal(t, session.StateIdle, h.status(t).Session.State)

	_, err := h.center.Invoke(context.Background(), MethodUnansweredIncomingCall, map[string]any{
		"skipLocalNotification": false,
	})
	require.NoError(t, err)
	require.Equal(t, session.StateIdle, h.status(t).Session.State)

	select {
	case n := <-delivered:
		require.Equal(t, notify.DefaultTitle, n.Title)
		require.Equal(t, notify.DefaultBody, n.Body)
	case <-time.After(waitFor):
		t.Fatal("notification not delivered")
	}
}

func TestOutOfStateRequestsAreAcknowledged(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	ctx := context.Background()

	testCases := []struct {
		name   string
		method string
		args   map[string]any
	}{
		{"callConnected while idle", MethodCallConnected, nil},
		{"accept with caller gone while idle", MethodAcceptIncomingCall, map[string]any{"callerState": "ended"}},
		{"accept while idle", MethodAcceptIncomingCall, map[string]any{"callerState": CallerStateCalling}},
		{"unanswered while idle", MethodUnansweredIncomingCall, map[string]any{"skipLocalNotification": true}},
		{"endCall while idle", MethodEndCall, map[string]any{"isEndCallManually": true}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := h.center.Invoke(ctx, tc.method, tc.args)
			require.NoError(t, err)
			require.Nil(t, v)
			require.Equal(t, session.StateIdle, h.status(t).Session.State)
		})
	}

	// An incoming call that was never accepted cannot be confirmed as connected
	h.present(t, callA)
	require.NoError(t, h.center.CallConnected(ctx))
	require.Equal(t, session.StateIncoming, h.status(t).Session.State)
}

func TestPushTokenUpdates(t *testing.T) {
	h := newHarness(t, Config{}, nil)

	v, err := h.center.Invoke(context.Background(), MethodGetToken, nil)
	require.NoError(t, err)
	require.Nil(t, v)

	require.NoError(t, h.tokens.Save(context.Background(), []byte{0xde, 0xad, 0xbe, 0xef}))
	e := h.waitEvent(t, events.PushTokenUpdated)
	require.Equal(t, "deadbeef", e.Fields[events.FieldToken])

	v, err = h.center.Invoke(context.Background(), MethodGetVoIPToken, nil)
	require.NoError(t, err)
	require.Equal(t, "deadbeef", v)
}

func TestInvokeArguments(t *testing.T) {
	h := newHarness(t, Config{}, nil)

	testCases := []struct {
		name   string
		method string
		args   map[string]any
		field  string
	}{
		{"endCall without flag", MethodEndCall, nil, "isEndCallManually"},
		{"endCall with string flag", MethodEndCall, map[string]any{"isEndCallManually": "yes"}, "isEndCallManually"},
		{"startCall empty uuid", MethodStartCall, map[string]any{"uuid": "", "targetName": "Alice"}, "uuid"},
		{"startCall numeric uuid", MethodStartCall, map[string]any{"uuid": 7.0, "targetName": "Alice"}, "uuid"},
		{"startCall without target", MethodStartCall, map[string]any{"uuid": callB}, "targetName"},
		{"accept without state", MethodAcceptIncomingCall, map[string]any{}, "callerState"},
		{"unanswered without skip", MethodUnansweredIncomingCall, map[string]any{}, "skipLocalNotification"},
		{"unanswered bad title", MethodUnansweredIncomingCall, map[string]any{"skipLocalNotification": true, "missedCallTitle": 3.0}, "missedCallTitle"},
		{"test call without caller", MethodTestIncomingCall, map[string]any{"uuid": callA}, "callerId"},
		{"authorization bad options", MethodRequestAuthLocalNotification, map[string]any{"options": "alert"}, "options"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.center.Invoke(context.Background(), tc.method, tc.args)
			require.ErrorIs(t, err, ErrInvalidArguments)

			var ie *InvalidArgumentsError
			require.ErrorAs(t, err, &ie)
			require.Equal(t, "InvalidArguments:"+tc.method, err.Error())
			require.Equal(t, tc.field, ie.Field)
		})
	}

	require.Equal(t, session.StateIdle, h.status(t).Session.State)

	_, err := h.center.Invoke(context.Background(), "reticulateSplines", nil)
	require.ErrorIs(t, err, ErrNotImplemented)
}

func TestInvokeReactionShape(t *testing.T) {
	h := newHarness(t, Config{}, nil)

	v, err := h.center.Invoke(context.Background(), MethodGetLatestNotification, nil)
	require.NoError(t, err)
	require.Nil(t, v)

	h.present(t, callA)
	require.NoError(t, h.auth.Answer(callA))
	h.waitEvent(t, events.CallAccepted)

	v, err = h.center.Invoke(context.Background(), MethodConsumeLatestReaction, nil)
	require.NoError(t, err)
	m := v.(map[string]any)
	require.Equal(t, "Accepted", m["action"])
	require.Equal(t, callA, m["payload"].(map[string]any)[payload.KeyUUID])
}

func TestNotificationAuthorization(t *testing.T) {
	h := newHarness(t, Config{}, nil)

	v, err := h.center.Invoke(context.Background(), MethodRequestAuthLocalNotification, map[string]any{
		"options": []any{"alert", "sound"},
	})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"granted": true}, v)

	v, err = h.center.Invoke(context.Background(), MethodGetLocalNotificationsSettings, nil)
	require.NoError(t, err)
	settings := v.(map[string]any)
	require.Equal(t, "authorized", settings["authorizationStatus"])
	require.Equal(t, "disabled", settings["badgeSetting"])
}

func TestClosedCenterRefusesRequests(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	require.NoError(t, h.center.Close())

	_, err := h.center.Status(context.Background())
	require.ErrorIs(t, err, ErrStopped)
	require.ErrorIs(t, h.center.HandlePush(context.Background(), push(callA, "C1", "Bob", false)), ErrStopped)
}
