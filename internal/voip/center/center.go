// Package center owns the call session. Push signals, authority callbacks
// and application requests are turned into commands and executed one at a
// time by a single goroutine, so the session, the reaction cache and the
// per-call bookkeeping are never touched concurrently.
package center

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sebas/voipcenter/internal/voip/authority"
	"github.com/sebas/voipcenter/internal/voip/events"
	"github.com/sebas/voipcenter/internal/voip/notify"
	"github.com/sebas/voipcenter/internal/voip/reaction"
	"github.com/sebas/voipcenter/internal/voip/session"
	"github.com/sebas/voipcenter/internal/voip/stats"
	"github.com/sebas/voipcenter/internal/voip/token"
)

// Acknowledger carries an end-of-call request to the application and
// returns once the application replied.
type Acknowledger interface {
	Acknowledge(ctx context.Context, request events.Event) error
}

// Config tunes the center
type Config struct {
	NodeID string
	// AckTimeout bounds the acknowledgment round trip; zero waits forever.
	AckTimeout time.Duration
	// ReportTimeout bounds reportIncomingCall; zero waits forever.
	ReportTimeout time.Duration
	Audio         authority.AudioConfig
	// Notification holds the missed-call defaults
	Notification notify.Notification
	QueueSize    int
	RecentCalls  int
}

// Deps are the collaborators of the center
type Deps struct {
	Authority    authority.Authority
	Publisher    events.Publisher
	Acknowledger Acknowledger
	Tokens       token.Store
	Notifier     notify.Notifier
	Monitor      *stats.Monitor
}

// callState is the bookkeeping of the current call attempt. It is reset
// whenever a new attempt begins and only touched by the command loop.
type callState struct {
	payload       map[string]any
	reported      bool
	announced     bool
	pendingAnswer authority.Action
	ackPending    bool
}

// Status is a point-in-time view for diagnostics
type Status struct {
	Session         session.Snapshot
	ReactionPending bool
	Announced       bool
	AnswerPending   bool
	AckPending      bool
}

// Center coordinates the call session
type Center struct {
	cfg       Config
	session   *session.Session
	reactions *reaction.Cache
	authority authority.Authority
	publisher events.Publisher
	builder   *events.Builder
	acker     Acknowledger
	tokens    token.Store
	notifier  notify.Notifier
	monitor   *stats.Monitor
	recent    *lru.Cache[string, session.TerminationCause]

	cmds    chan func()
	done    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started atomic.Bool

	cur callState
}

// New creates a center and registers it as the authority's delegate.
// Start must be called before any request is served.
func New(cfg Config, deps Deps) (*Center, error) {
	if deps.Authority == nil {
		return nil, errors.New("center: authority is required")
	}
	if deps.Acknowledger == nil {
		return nil, errors.New("center: acknowledger is required")
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NewNoopPublisher()
	}
	if deps.Tokens == nil {
		deps.Tokens = token.NewMemoryStore()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.NewLoggingNotifier(nil)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RecentCalls <= 0 {
		cfg.RecentCalls = 32
	}
	if cfg.Audio.Mode == "" {
		cfg.Audio = authority.DefaultAudioConfig()
	}

	recent, err := lru.New[string, session.TerminationCause](cfg.RecentCalls)
	if err != nil {
		return nil, fmt.Errorf("center: failed to create recent-call cache: %w", err)
	}

	c := &Center{
		cfg:       cfg,
		session:   session.New(),
		reactions: reaction.NewCache(),
		authority: deps.Authority,
		publisher: deps.Publisher,
		builder:   events.NewBuilder(cfg.NodeID),
		acker:     deps.Acknowledger,
		tokens:    deps.Tokens,
		notifier:  deps.Notifier,
		monitor:   deps.Monitor,
		recent:    recent,
		cmds:      make(chan func(), cfg.QueueSize),
		done:      make(chan struct{}),
		ctx:       context.Background(),
	}
	deps.Authority.SetDelegate(c)
	return c, nil
}

// Start runs the command loop and begins observing the token store
func (c *Center) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return errors.New("center: already started")
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	go c.loop()

	updates, err := c.tokens.Observe(c.ctx)
	if err != nil {
		slog.Warn("[Center] Push token updates unavailable", "error", err)
	} else {
		c.wg.Add(1)
		go c.forwardTokens(updates)
	}

	slog.Info("[Center] Started",
		"ack_timeout", c.cfg.AckTimeout,
		"report_timeout", c.cfg.ReportTimeout,
		"audio_mode", c.cfg.Audio.Mode,
	)
	return nil
}

// Close stops the loop and waits for in-flight authority and
// acknowledgment calls to return.
func (c *Center) Close() error {
	if !c.started.Load() {
		return nil
	}
	c.cancel()
	<-c.done
	c.wg.Wait()
	return nil
}

func (c *Center) loop() {
	defer close(c.done)
	for {
		select {
		case cmd := <-c.cmds:
			cmd()
		case <-c.ctx.Done():
			return
		}
	}
}

// enqueue hands a command to the loop. It reports false once the loop stopped.
func (c *Center) enqueue(cmd func()) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.cmds <- cmd:
		return true
	case <-c.done:
		return false
	}
}

// run executes fn on the loop and waits for its result
func run[T any](ctx context.Context, c *Center, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	var zero T
	ch := make(chan result, 1)
	cmd := func() {
		v, err := fn()
		ch <- result{v, err}
	}

	select {
	case <-c.done:
		return zero, ErrStopped
	default:
	}
	select {
	case c.cmds <- cmd:
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-c.done:
		return zero, ErrStopped
	}

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-c.done:
		return zero, ErrStopped
	}
}

// async runs fn off the loop; Close waits for it.
func (c *Center) async(fn func(ctx context.Context)) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn(c.ctx)
	}()
}

func (c *Center) forwardTokens(updates <-chan []byte) {
	defer c.wg.Done()
	for tok := range updates {
		hex := token.EncodeHex(tok)
		slog.Info("[Center] Push token updated")
		if !c.enqueue(func() { c.publish(c.builder.PushTokenUpdated(hex)) }) {
			return
		}
	}
}

func (c *Center) publish(e events.Event) {
	if err := c.publisher.Publish(c.ctx, e); err != nil {
		slog.Warn("[Center] Failed to publish event", "event", e.Kind, "error", err)
		return
	}
	c.monitor.EventPublished(string(e.Kind))
}

// observe records the committed state in the metrics
func (c *Center) observe() {
	st := c.session.State()
	inProgress := st == session.StateIncoming || st == session.StateConnecting || st == session.StateActive
	c.monitor.Transition(st.String(), inProgress)
}

func isCurrent(snap session.Snapshot, callID string) bool {
	return snap.Identity != nil && snap.Identity.ID == callID
}

// reportEnded tells the authority to stop presenting the call
func (c *Center) reportEnded(callID string, cause session.TerminationCause) {
	c.async(func(ctx context.Context) {
		c.authority.ReportCallEnded(ctx, callID, cause)
	})
}

// endAtAuthority reports the end only when the authority knows the call.
// An incoming report still in flight is handled when it completes.
func (c *Center) endAtAuthority(before session.Snapshot, cause session.TerminationCause) {
	if c.cur.reported || before.Role == session.RoleOutgoing {
		c.reportEnded(before.Identity.ID, cause)
	}
}

// fulfill and fail complete authority actions off the loop, since the
// authority may call back into the delegate from inside the completion.
func (c *Center) fulfill(a authority.Action) {
	c.async(func(context.Context) { a.Fulfill() })
}

func (c *Center) fail(a authority.Action) {
	c.async(func(context.Context) { a.Fail() })
}

// afterEnd finishes the bookkeeping of a call that just reached Ended
func (c *Center) afterEnd(callID string, cause session.TerminationCause) {
	c.observe()
	c.recent.Add(callID, cause)
	c.monitor.CallEnded(cause.String())
	if c.cur.pendingAnswer != nil {
		c.fail(c.cur.pendingAnswer)
		c.cur.pendingAnswer = nil
	}
}

// Status returns a snapshot of the session and its bookkeeping
func (c *Center) Status(ctx context.Context) (Status, error) {
	return run(ctx, c, func() (Status, error) {
		return Status{
			Session:         c.session.Snapshot(),
			ReactionPending: c.reactions.Pending(),
			Announced:       c.cur.announced,
			AnswerPending:   c.cur.pendingAnswer != nil,
			AckPending:      c.cur.ackPending,
		}, nil
	})
}

var _ authority.Delegate = (*Center)(nil)
