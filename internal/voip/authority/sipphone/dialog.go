package sipphone

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"
	"github.com/sebas/voipcenter/internal/voip/authority"
)

// Header carrying the call id of the session to the phone
const headerCallUUID = "X-Call-UUID"

func generateCallID() string {
	return uuid.NewString() + "@voipcenter"
}

func generateTag() string {
	return uuid.NewString()[:8]
}

func (p *Phone) localURI(user string) sip.Uri {
	return sip.Uri{
		Scheme: "sip",
		User:   user,
		Host:   p.cfg.AdvertiseAddr,
		Port:   p.cfg.Port,
	}
}

// buildINVITE constructs the INVITE that rings the phone
func (p *Phone) buildINVITE(l *leg, sdpBody []byte) *sip.Request {
	invite := sip.NewRequest(sip.INVITE, p.target)

	maxFwd := sip.MaxForwardsHeader(70)
	invite.AppendHeader(&maxFwd)

	// The phone displays the remote party: the caller for incoming calls,
	// the dialed target for outgoing ones.
	user := l.identity.CallerID
	if user == "" {
		user = "voipcenter"
	}
	fromParams := sip.NewParams()
	fromParams.Add("tag", l.localTag)
	invite.AppendHeader(&sip.FromHeader{
		DisplayName: l.identity.CallerName,
		Address:     p.localURI(user),
		Params:      fromParams,
	})
	invite.AppendHeader(&sip.ToHeader{
		Address: p.target,
		Params:  sip.NewParams(),
	})

	callIDHdr := sip.CallIDHeader(l.sipCallID)
	invite.AppendHeader(&callIDHdr)
	invite.AppendHeader(&sip.CSeqHeader{SeqNo: 1, MethodName: sip.INVITE})
	invite.AppendHeader(&sip.ContactHeader{Address: p.localURI("voipcenter")})
	invite.AppendHeader(sip.NewHeader(headerCallUUID, l.id))

	contentType := sip.ContentTypeHeader("application/sdp")
	invite.AppendHeader(&contentType)
	invite.SetBody(sdpBody)
	return invite
}

// executeINVITE follows the INVITE transaction until a final response or
// until ctx ends, which happens on ring timeout or a local hangup.
func (p *Phone) executeINVITE(ctx context.Context, cancel context.CancelFunc, l *leg, tx sip.ClientTransaction, presented chan<- error) {
	defer cancel()

	var once sync.Once
	report := func(err error) {
		once.Do(func() { presented <- err })
	}
	wasPresented := false

	for {
		select {
		case <-ctx.Done():
			if err := p.sendCANCEL(l); err != nil {
				slog.Warn("[SIPPhone] CANCEL failed", "call_id", l.id, "error", err)
			}
			report(ctx.Err())
			if wasPresented && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				slog.Info("[SIPPhone] Phone stopped ringing", "call_id", l.id)
				p.remoteEnded(l)
			}
			return

		case resp := <-tx.Responses():
			if resp == nil {
				report(fmt.Errorf("%w: no response", authority.ErrUnreachable))
				p.markEnded(l)
				return
			}
			code := int(resp.StatusCode)
			slog.Debug("[SIPPhone] Response received", "call_id", l.id, "status", code, "reason", resp.Reason)

			switch {
			case code < 180:
				continue
			case code < 200:
				wasPresented = true
				report(nil)
			case code < 300:
				report(nil)
				p.handle2xx(l, resp)
				return
			default:
				if !wasPresented {
					report(fmt.Errorf("%w: %d %s", authority.ErrUnreachable, code, resp.Reason))
					p.markEnded(l)
					return
				}
				slog.Info("[SIPPhone] Phone declined", "call_id", l.id, "status", code)
				p.remoteEnded(l)
				return
			}

		case <-tx.Done():
			report(fmt.Errorf("%w: transaction terminated", authority.ErrUnreachable))
			if wasPresented {
				p.remoteEnded(l)
			} else {
				p.markEnded(l)
			}
			return
		}
	}
}

func (p *Phone) markEnded(l *leg) {
	p.mu.Lock()
	defer p.mu.Unlock()
	l.state = legEnded
}

func (p *Phone) handle2xx(l *leg, resp *sip.Response) {
	p.mu.Lock()
	if contact := resp.Contact(); contact != nil {
		l.remoteContact = contact.Address
	} else {
		l.remoteContact = l.invite.Recipient
	}
	if to := resp.To(); to != nil {
		if tag, ok := to.Params.Get("tag"); ok {
			l.remoteTag = tag
		}
	}
	l.hasDialog = true
	hungUp := l.endedLocally
	if !hungUp {
		l.state = legAnswered
	}
	p.mu.Unlock()

	if err := p.sendACK(l, resp); err != nil {
		slog.Error("[SIPPhone] Failed to send ACK", "call_id", l.id, "error", err)
	}
	if hungUp {
		// Picked up after we gave up on the call
		if err := p.sendBYE(context.Background(), l); err != nil {
			slog.Warn("[SIPPhone] BYE failed", "call_id", l.id, "error", err)
		}
		return
	}

	slog.Info("[SIPPhone] Phone picked up", "call_id", l.id, "remote_contact", l.remoteContact.String())
	p.answered(l)
}

// sendACK acknowledges a 2xx; it is sent directly, outside a transaction.
func (p *Phone) sendACK(l *leg, resp *sip.Response) error {
	ack := sip.NewRequest(sip.ACK, l.remoteContact)
	sip.CopyHeaders("From", l.invite, ack)
	sip.CopyHeaders("Call-ID", l.invite, ack)
	if to := resp.To(); to != nil {
		ack.AppendHeader(&sip.ToHeader{
			DisplayName: to.DisplayName,
			Address:     to.Address,
			Params:      to.Params,
		})
	}
	ack.AppendHeader(&sip.CSeqHeader{SeqNo: 1, MethodName: sip.ACK})
	maxFwd := sip.MaxForwardsHeader(70)
	ack.AppendHeader(&maxFwd)

	destAddr := resp.Source()
	if destAddr == "" {
		destAddr = hostPort(l.remoteContact)
	}
	ack.SetDestination(destAddr)

	done := make(chan error, 1)
	go func() {
		done <- p.client.WriteRequest(ack)
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("write ACK: %w", err)
		}
	case <-time.After(5 * time.Second):
		return errors.New("ACK timeout: write did not complete within 5 seconds")
	}
	slog.Debug("[SIPPhone] ACK sent", "call_id", l.id, "dest", destAddr)
	return nil
}

// sendCANCEL withdraws a ringing INVITE
func (p *Phone) sendCANCEL(l *leg) error {
	cancelReq := sip.NewRequest(sip.CANCEL, l.invite.Recipient)
	sip.CopyHeaders("Via", l.invite, cancelReq)
	sip.CopyHeaders("From", l.invite, cancelReq)
	sip.CopyHeaders("To", l.invite, cancelReq)
	sip.CopyHeaders("Call-ID", l.invite, cancelReq)
	cancelReq.AppendHeader(&sip.CSeqHeader{SeqNo: 1, MethodName: sip.CANCEL})
	maxFwd := sip.MaxForwardsHeader(70)
	cancelReq.AppendHeader(&maxFwd)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tx, err := p.client.TransactionRequest(ctx, cancelReq)
	if err != nil {
		return fmt.Errorf("send CANCEL: %w", err)
	}
	select {
	case resp := <-tx.Responses():
		if resp != nil {
			slog.Debug("[SIPPhone] CANCEL response", "call_id", l.id, "status", resp.StatusCode)
		}
	case <-tx.Done():
	case <-ctx.Done():
	}
	slog.Info("[SIPPhone] CANCEL sent", "call_id", l.id)
	return nil
}

// sendBYE hangs up an answered call
func (p *Phone) sendBYE(ctx context.Context, l *leg) error {
	p.mu.Lock()
	if !l.hasDialog {
		p.mu.Unlock()
		return nil
	}
	requestURI := l.remoteContact
	remoteTag := l.remoteTag
	p.mu.Unlock()

	bye := sip.NewRequest(sip.BYE, requestURI)
	maxFwd := sip.MaxForwardsHeader(70)
	bye.AppendHeader(&maxFwd)
	sip.CopyHeaders("From", l.invite, bye)

	toParams := sip.NewParams()
	toParams.Add("tag", remoteTag)
	bye.AppendHeader(&sip.ToHeader{Address: p.target, Params: toParams})

	callIDHdr := sip.CallIDHeader(l.sipCallID)
	bye.AppendHeader(&callIDHdr)
	bye.AppendHeader(&sip.CSeqHeader{SeqNo: 2, MethodName: sip.BYE})
	bye.SetDestination(hostPort(requestURI))

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := p.client.TransactionRequest(ctx, bye)
	if err != nil {
		return fmt.Errorf("send BYE: %w", err)
	}
	select {
	case resp := <-tx.Responses():
		if resp != nil {
			slog.Debug("[SIPPhone] BYE response", "call_id", l.id, "status", resp.StatusCode)
		}
	case <-tx.Done():
	case <-ctx.Done():
		slog.Warn("[SIPPhone] BYE timeout", "call_id", l.id)
	}
	return nil
}

func hostPort(u sip.Uri) string {
	port := u.Port
	if port == 0 {
		port = 5060
	}
	return fmt.Sprintf("%s:%d", u.Host, port)
}

// handleINVITE refuses calls placed from the phone; outgoing calls start
// from the application.
func (p *Phone) handleINVITE(req *sip.Request, tx sip.ServerTransaction) {
	slog.Info("[SIPPhone] Refusing call from phone", "sip_call_id", req.CallID().String())
	res := sip.NewResponseFromRequest(req, sip.StatusCode(403), "Forbidden", nil)
	if err := tx.Respond(res); err != nil {
		slog.Error("[SIPPhone] Error sending response", "error", err)
	}
}

// handleBYE treats a hangup at the phone as the user's end action
func (p *Phone) handleBYE(req *sip.Request, tx sip.ServerTransaction) {
	sipCallID := req.CallID().String()

	p.mu.Lock()
	id, ok := p.bySIP[sipCallID]
	l := p.legs[id]
	p.mu.Unlock()

	if !ok || l == nil {
		resp := sip.NewResponseFromRequest(req, 481, "Call/Transaction Does Not Exist", nil)
		if err := tx.Respond(resp); err != nil {
			slog.Error("[SIPPhone] Error sending response", "error", err)
		}
		return
	}

	resp := sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil)
	if err := tx.Respond(resp); err != nil {
		slog.Error("[SIPPhone] Error sending response", "error", err)
	}
	slog.Info("[SIPPhone] Phone hung up", "call_id", id)
	p.remoteEnded(l)
}
