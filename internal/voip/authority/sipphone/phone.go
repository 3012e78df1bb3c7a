// Package sipphone presents calls on a SIP desk phone. Ringing the phone is
// the incoming-call report, picking up is the answer action and hanging up is
// the end action.
package sipphone

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/sebas/voipcenter/internal/voip/authority"
	"github.com/sebas/voipcenter/internal/voip/session"
)

// Config holds the SIP settings of the phone authority
type Config struct {
	BindAddr      string
	Port          int
	AdvertiseAddr string
	// PhoneURI is where INVITEs are sent, e.g. sip:desk@192.168.1.20:5060
	PhoneURI    string
	RingTimeout time.Duration
	// MediaPort is the RTP port advertised in the SDP offer
	MediaPort int
}

type legState int

const (
	legRinging legState = iota
	legAnswered
	legEnded
)

// leg is one INVITE dialog with the phone
type leg struct {
	id        string
	sipCallID string
	outgoing  bool
	identity  session.Identity

	invite   *sip.Request
	localTag string
	// Filled from the 2xx
	remoteContact sip.Uri
	remoteTag     string
	hasDialog     bool

	state        legState
	endedLocally bool
	cancel       context.CancelFunc
}

// Phone is an authority.Authority backed by a SIP phone
type Phone struct {
	cfg    Config
	ua     *sipgo.UserAgent
	srv    *sipgo.Server
	client *sipgo.Client
	target sip.Uri

	mu       sync.Mutex
	delegate authority.Delegate
	legs     map[string]*leg
	bySIP    map[string]string
	audio    authority.AudioConfig
	audioOn  bool
	seq      uint64
	closed   bool
}

// New creates the phone authority. Start binds the SIP listener.
func New(cfg Config) (*Phone, error) {
	if cfg.PhoneURI == "" {
		return nil, errors.New("sipphone: phone URI is required")
	}
	var target sip.Uri
	if err := sip.ParseUri(cfg.PhoneURI, &target); err != nil {
		return nil, fmt.Errorf("sipphone: invalid phone URI: %w", err)
	}
	if cfg.RingTimeout <= 0 {
		cfg.RingTimeout = 60 * time.Second
	}
	if cfg.Port == 0 {
		cfg.Port = 5060
	}
	if cfg.AdvertiseAddr == "" {
		cfg.AdvertiseAddr = "127.0.0.1"
	}
	if cfg.MediaPort == 0 {
		cfg.MediaPort = 40000
	}

	ua, err := sipgo.NewUA()
	if err != nil {
		return nil, fmt.Errorf("failed to create user agent: %w", err)
	}
	srv, err := sipgo.NewServer(ua)
	if err != nil {
		ua.Close()
		return nil, fmt.Errorf("failed to create server: %w", err)
	}
	client, err := sipgo.NewClient(ua)
	if err != nil {
		ua.Close()
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	p := &Phone{
		cfg:    cfg,
		ua:     ua,
		srv:    srv,
		client: client,
		target: target,
		legs:   make(map[string]*leg),
		bySIP:  make(map[string]string),
		audio:  authority.DefaultAudioConfig(),
	}
	srv.OnRequest(sip.INVITE, p.handleINVITE)
	srv.OnRequest(sip.BYE, p.handleBYE)
	return p, nil
}

// Start listens for requests from the phone until ctx is done
func (p *Phone) Start(ctx context.Context) {
	listenAddr := fmt.Sprintf("%s:%d", p.cfg.BindAddr, p.cfg.Port)
	slog.Info("[SIPPhone] Starting SIP listener", "listen", listenAddr, "phone", p.cfg.PhoneURI)
	go func() {
		if err := p.srv.ListenAndServe(ctx, "udp", listenAddr); err != nil && ctx.Err() == nil {
			slog.Error("[SIPPhone] SIP listener stopped", "listen", listenAddr, "error", err)
		}
	}()
}

func (p *Phone) SetDelegate(d authority.Delegate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delegate = d
}

func (p *Phone) getDelegate() authority.Delegate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.delegate
}

// admit registers a new leg; the phone shows one call at a time.
func (p *Phone) admit(op string, identity session.Identity, outgoing bool) (*leg, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, &authority.Error{Op: op, CallID: identity.ID, Cause: authority.ErrUnreachable}
	}
	if _, ok := p.legs[identity.ID]; ok {
		return nil, &authority.Error{Op: op, CallID: identity.ID, Cause: authority.ErrCallExists}
	}
	for _, l := range p.legs {
		if l.state != legEnded {
			return nil, &authority.Error{Op: op, CallID: identity.ID, Cause: authority.ErrCallLimit}
		}
	}
	// Ended legs are only kept until the next call
	for id, l := range p.legs {
		delete(p.legs, id)
		delete(p.bySIP, l.sipCallID)
	}

	l := &leg{
		id:        identity.ID,
		sipCallID: generateCallID(),
		localTag:  generateTag(),
		outgoing:  outgoing,
		identity:  identity,
	}
	p.legs[l.id] = l
	p.bySIP[l.sipCallID] = l.id
	return l, nil
}

func (p *Phone) drop(l *leg) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.legs, l.id)
	delete(p.bySIP, l.sipCallID)
}

// ReportIncomingCall rings the phone and returns once it signals ringing
func (p *Phone) ReportIncomingCall(ctx context.Context, identity session.Identity) error {
	l, err := p.admit("reportIncomingCall", identity, false)
	if err != nil {
		return err
	}

	presented, err := p.dial(l)
	if err != nil {
		p.drop(l)
		return &authority.Error{Op: "reportIncomingCall", CallID: identity.ID, Cause: err}
	}

	select {
	case err := <-presented:
		if err != nil {
			return &authority.Error{Op: "reportIncomingCall", CallID: identity.ID, Cause: err}
		}
		slog.Info("[SIPPhone] Phone ringing", "call_id", identity.ID, "caller", identity.CallerName)
		return nil
	case <-ctx.Done():
		p.mu.Lock()
		l.endedLocally = true
		p.mu.Unlock()
		l.cancel()
		return &authority.Error{Op: "reportIncomingCall", CallID: identity.ID, Cause: ctx.Err()}
	}
}

// dial sends the INVITE and follows the transaction in the background. The
// returned channel yields once, when the phone rings, answers or refuses.
func (p *Phone) dial(l *leg) (<-chan error, error) {
	p.mu.Lock()
	p.seq++
	sessionID := p.seq
	audio := p.audio
	p.mu.Unlock()

	body, err := BuildOffer(p.cfg.AdvertiseAddr, p.cfg.MediaPort, audio, sessionID)
	if err != nil {
		return nil, err
	}
	invite := p.buildINVITE(l, body)

	ringCtx, cancel := context.WithTimeout(context.Background(), p.cfg.RingTimeout)
	tx, err := p.client.TransactionRequest(ringCtx, invite)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", authority.ErrUnreachable, err)
	}

	p.mu.Lock()
	l.invite = invite
	l.cancel = cancel
	p.mu.Unlock()

	slog.Info("[SIPPhone] INVITE sent",
		"call_id", l.id,
		"sip_call_id", l.sipCallID,
		"target", invite.Recipient.String(),
	)

	presented := make(chan error, 1)
	go p.executeINVITE(ringCtx, cancel, l, tx, presented)
	return presented, nil
}

func (p *Phone) ReportCallEnded(ctx context.Context, callID string, cause session.TerminationCause) {
	p.mu.Lock()
	l, ok := p.legs[callID]
	if !ok || l.state == legEnded {
		p.mu.Unlock()
		return
	}
	answered := l.state == legAnswered
	l.state = legEnded
	l.endedLocally = true
	p.mu.Unlock()

	slog.Info("[SIPPhone] Ending call on phone", "call_id", callID, "cause", cause.String(), "answered", answered)
	if answered {
		if err := p.sendBYE(ctx, l); err != nil {
			slog.Warn("[SIPPhone] BYE failed", "call_id", callID, "error", err)
		}
	} else if l.cancel != nil {
		// executeINVITE sends the CANCEL
		l.cancel()
	}
	p.deactivateAudio()
}

// RequestStartCall asks for the start action; once fulfilled the phone is
// called so the user can talk from the handset.
func (p *Phone) RequestStartCall(ctx context.Context, identity session.Identity) error {
	l, err := p.admit("startCall", identity, true)
	if err != nil {
		return err
	}
	d := p.getDelegate()
	if d == nil {
		p.drop(l)
		return &authority.Error{Op: "startCall", CallID: identity.ID, Cause: authority.ErrUnsupported}
	}

	d.OnStartOutgoingRequested(authority.NewAction(identity.ID, func(fulfilled bool) {
		if !fulfilled {
			slog.Info("[SIPPhone] Outgoing call refused", "call_id", identity.ID)
			p.drop(l)
			return
		}
		presented, err := p.dial(l)
		if err != nil {
			slog.Warn("[SIPPhone] Failed to ring phone for outgoing call", "call_id", identity.ID, "error", err)
			p.remoteEnded(l)
			return
		}
		go func() {
			if err := <-presented; err != nil {
				slog.Warn("[SIPPhone] Phone refused outgoing call", "call_id", identity.ID, "error", err)
			}
		}()
	}))
	return nil
}

func (p *Phone) ReportOutgoingConnecting(callID string) {
	slog.Debug("[SIPPhone] Outgoing call connecting", "call_id", callID)
}

func (p *Phone) ReportOutgoingConnected(callID string) {
	slog.Info("[SIPPhone] Outgoing call connected", "call_id", callID)
	p.activateAudio()
}

func (p *Phone) ConfigureAudioSession(cfg authority.AudioConfig) error {
	if cfg.SampleRate <= 0 {
		return &authority.Error{Op: "configureAudioSession", Cause: authority.ErrUnsupported}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.audio = cfg
	return nil
}

func (p *Phone) activateAudio() {
	p.mu.Lock()
	if p.audioOn {
		p.mu.Unlock()
		return
	}
	p.audioOn = true
	d := p.delegate
	p.mu.Unlock()
	if d != nil {
		d.OnAudioSessionActivated()
	}
}

func (p *Phone) deactivateAudio() {
	p.mu.Lock()
	if !p.audioOn {
		p.mu.Unlock()
		return
	}
	p.audioOn = false
	d := p.delegate
	p.mu.Unlock()
	if d != nil {
		d.OnAudioSessionDeactivated()
	}
}

// remoteEnded hands an end initiated at the phone to the delegate
func (p *Phone) remoteEnded(l *leg) {
	p.mu.Lock()
	if l.endedLocally {
		p.mu.Unlock()
		return
	}
	l.state = legEnded
	d := p.delegate
	p.mu.Unlock()

	if d == nil {
		return
	}
	d.OnEndRequested(authority.NewAction(l.id, func(bool) {
		p.deactivateAudio()
	}))
}

// answered hands the pickup of an incoming call to the delegate
func (p *Phone) answered(l *leg) {
	d := p.getDelegate()
	if d == nil || l.outgoing {
		return
	}
	d.OnAnswerRequested(authority.NewAction(l.id, func(fulfilled bool) {
		if fulfilled {
			p.activateAudio()
			return
		}
		p.mu.Lock()
		live := l.state == legAnswered
		l.state = legEnded
		l.endedLocally = true
		p.mu.Unlock()
		if live {
			if err := p.sendBYE(context.Background(), l); err != nil {
				slog.Warn("[SIPPhone] BYE after failed answer", "call_id", l.id, "error", err)
			}
		}
	}))
}

// Close hangs up whatever is live and stops the user agent
func (p *Phone) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	var live []*leg
	for _, l := range p.legs {
		if l.state != legEnded {
			live = append(live, l)
		}
	}
	p.mu.Unlock()

	for _, l := range live {
		p.ReportCallEnded(context.Background(), l.id, session.CauseRemoteEnded)
	}
	p.ua.Close()
	slog.Info("[SIPPhone] Closed")
	return nil
}

var _ authority.Authority = (*Phone)(nil)
