package dialog

import (
	"context"
	"fmt"

	"github.com/emiago/sipgo/sip"
)

// wantsContact reports whether method carries a Contact header (spec.md
// §4.5's request-construction rules); BYE, CANCEL, and ACK never do.
func wantsContact(m sip.RequestMethod) bool {
	switch m {
	case sip.INVITE, sip.UPDATE, sip.REFER, sip.PRACK:
		return true
	default:
		return false
	}
}

// sendRequest is the single UAC request builder every operation below goes
// through: it assembles From/To/Call-ID/CSeq/Route/Contact/Max-Forwards/
// User-Agent, lets the handler append to the headers, registers the
// transaction, advances cseq, and hands the result to the sender.
func (d *Dialog) sendRequest(ctx context.Context, method sip.RequestMethod, ruri, contentType string, body []byte, extraHeaders string, flags SendFlags) (*Request, error) {
	cseq := d.cseq
	d.cseq++

	req := &Request{
		Method:      method,
		RURI:        ruri,
		From:        buildPartyHeader(d.localParty, d.localTag),
		To:          buildPartyHeader(d.remoteParty, d.remoteTag),
		CallID:      d.callID,
		CSeq:        cseq,
		ContentType: contentType,
		Body:        body,
		Flags:       flags,
	}

	var built string
	built += fmt.Sprintf("%s: %s%s", hdrFrom, req.From, CRLF)
	built += fmt.Sprintf("%s: %s%s", hdrTo, req.To, CRLF)
	built += fmt.Sprintf("%s: %s%s", hdrCallID, d.callID, CRLF)
	built += fmt.Sprintf("%s: %d %s%s", hdrCSeq, cseq, method, CRLF)

	if route, ok := buildRoute(d.route, d.remoteTag, d.outboundProxy, d.forceOutboundProxy); ok {
		built += fmt.Sprintf("%s: %s%s", hdrRoute, route, CRLF)
	}
	if wantsContact(method) {
		built += fmt.Sprintf("%s: <%s>%s", hdrContact, d.contactURIFor(), CRLF)
	}
	if !flags.Has(FlagVerbatim) {
		built += fmt.Sprintf("%s: %d%s", hdrMaxForwards, d.maxForwards(), CRLF)
		if d.cfg.Signature != "" {
			built += fmt.Sprintf("%s: %s%s", hdrUserAgent, d.cfg.Signature, CRLF)
		}
	}
	built += extraHeaders

	d.handler.OnSendRequest(method.String(), contentType, body, &built, flags, cseq)
	req.Headers = built

	d.uacTrans.Set(Transaction{Method: method, CSeq: cseq})
	d.reportTableSizes()

	if err := d.sender.SendRequest(req); err != nil {
		return nil, &DialogError{Category: CategoryTransport, CallID: d.callID, CSeq: cseq, Method: method, Cause: err}
	}
	return req, nil
}

func (d *Dialog) maxForwards() int {
	if d.cfg.MaxForwards > 0 {
		return d.cfg.MaxForwards
	}
	return 70
}

// Invite starts an initial dialog: Disconnected -> Pending (spec.md §4.5).
func (d *Dialog) Invite(ctx context.Context, ruri, localParty, remoteParty, contentType string, body []byte, flags SendFlags) (*Request, error) {
	if d.Status() != StatusDisconnected {
		return nil, &DialogError{Category: CategoryState, CallID: d.callID, Method: sip.INVITE, Cause: fmt.Errorf("invite only admissible while disconnected")}
	}
	d.localParty = localParty
	d.remoteParty = remoteParty
	d.remoteURI = ruri

	req, err := d.sendRequest(ctx, sip.INVITE, ruri, contentType, body, "", flags)
	if err != nil {
		return nil, err
	}
	d.transition(evUACInviteSent)
	return req, nil
}

// Reinvite sends a mid-dialog INVITE (target-refresh / session update)
// while Connected. The dialog status itself does not change.
func (d *Dialog) Reinvite(ctx context.Context, contentType string, body []byte, flags SendFlags) (*Request, error) {
	if d.Status() != StatusConnected {
		return nil, &DialogError{Category: CategoryState, CallID: d.callID, Method: sip.INVITE, Cause: fmt.Errorf("reinvite only admissible while connected")}
	}
	return d.sendRequest(ctx, sip.INVITE, d.remoteURI, contentType, body, "", flags)
}

// Bye ends the dialog. While Pending, no BYE has anything to answer yet —
// the peer never saw a final response, so the abandoned INVITE is
// cancelled instead and status moves to Disconnecting to await it. While
// Connected/Disconnecting, a real BYE is sent straight to Disconnected
// (spec.md §4.5's two `bye` rows).
func (d *Dialog) Bye(ctx context.Context) (*Request, error) {
	status := d.Status()
	if status == StatusPending {
		d.transition(evUACByeFromPending)
		return nil, d.Cancel(ctx)
	}
	if status != StatusConnected && status != StatusDisconnecting {
		return nil, &DialogError{Category: CategoryState, CallID: d.callID, Method: sip.BYE, Cause: fmt.Errorf("bye not admissible while disconnected")}
	}

	// Status advances before the send is attempted, matching the source's
	// ordering: a failed send below does not revert it. The caller has
	// already committed to tearing down, and reverting would let a
	// transient transport failure resurrect a dialog the application
	// believes is gone.
	d.transition(evUACByeFromConnected)

	req, err := d.sendRequest(ctx, sip.BYE, d.remoteURI, "", nil, "", 0)
	if err != nil {
		return nil, err
	}
	return req, nil
}

// Cancel aborts the most recent outstanding UAC INVITE transaction.
func (d *Dialog) Cancel(ctx context.Context) error {
	tr, ok := d.uacTrans.MostRecent(sip.INVITE)
	if !ok {
		return ErrNoUACInvite
	}
	if d.sender.Cancel(tr.TransportToken) < 0 {
		return &DialogError{Category: CategoryTransport, CallID: d.callID, CSeq: tr.CSeq, Method: sip.CANCEL, Cause: fmt.Errorf("transaction layer refused cancel")}
	}
	return nil
}

// Refer sends a REFER within this dialog asking the peer to transfer
// itself to referTarget, e.g. "sip:bob@example.com" or another dialog's
// identity for an attended transfer.
func (d *Dialog) Refer(ctx context.Context, referTarget string, flags SendFlags) (*Request, error) {
	if d.Status() != StatusConnected {
		return nil, &DialogError{Category: CategoryState, CallID: d.callID, Method: sip.REFER, Cause: fmt.Errorf("refer only admissible while connected")}
	}
	extra := fmt.Sprintf("%s: <%s>%s", hdrReferTo, referTarget, CRLF)
	return d.sendRequest(ctx, sip.REFER, d.remoteURI, "", nil, extra, flags)
}

// buildTransferRequest is the scratch builder `transfer()` uses instead of
// a cloned dialog object (spec.md §9's design note): it computes the REFER
// a transfer sends — request-URI swapped to target, Contact swapped to
// this dialog's own remote_uri, the original route carried in a
// Transfer-RR header — without mutating d. The caller merges the returned
// transaction and next CSeq back in only once the send has succeeded.
func buildTransferRequest(d *Dialog, target string, flags SendFlags) (*Request, Transaction) {
	cseq := d.cseq
	req := &Request{
		Method: sip.REFER,
		RURI:   target,
		From:   buildPartyHeader(d.localParty, d.localTag),
		To:     buildPartyHeader(d.remoteParty, d.remoteTag),
		CallID: d.callID,
		CSeq:   cseq,
		Flags:  flags,
	}

	var built string
	built += fmt.Sprintf("%s: %s%s", hdrFrom, req.From, CRLF)
	built += fmt.Sprintf("%s: %s%s", hdrTo, req.To, CRLF)
	built += fmt.Sprintf("%s: %s%s", hdrCallID, d.callID, CRLF)
	built += fmt.Sprintf("%s: %d %s%s", hdrCSeq, cseq, sip.REFER, CRLF)
	built += fmt.Sprintf("%s: <%s>%s", hdrContact, d.remoteURI, CRLF)
	if d.route != "" {
		built += fmt.Sprintf("%s: <%s>%s", hdrTransferRR, d.route, CRLF)
	}
	built += fmt.Sprintf("%s: <%s>%s", hdrReferTo, target, CRLF)
	if !flags.Has(FlagVerbatim) {
		built += fmt.Sprintf("%s: %d%s", hdrMaxForwards, d.maxForwards(), CRLF)
		if d.cfg.Signature != "" {
			built += fmt.Sprintf("%s: %s%s", hdrUserAgent, d.cfg.Signature, CRLF)
		}
	}

	d.handler.OnSendRequest(sip.REFER.String(), "", nil, &built, flags, cseq)
	req.Headers = built

	return req, Transaction{Method: sip.REFER, CSeq: cseq}
}

// Transfer replaces this dialog's own call with target (spec.md §4.5's
// transfer() row): it builds the REFER via buildTransferRequest without
// touching route or remote_uri, and only on a successful send does it
// merge the clone's transaction and CSeq back in and move to
// Disconnecting. Distinct from Refer, which leaves this dialog Connected
// while a sibling dialog answers an attended referral.
func (d *Dialog) Transfer(ctx context.Context, target string, flags SendFlags) (*Request, error) {
	if d.Status() != StatusConnected {
		return nil, &DialogError{Category: CategoryState, CallID: d.callID, Method: sip.REFER, Cause: fmt.Errorf("transfer only admissible while connected")}
	}

	req, tr := buildTransferRequest(d, target, flags)
	if err := d.sender.SendRequest(req); err != nil {
		return nil, &DialogError{Category: CategoryTransport, CallID: d.callID, CSeq: tr.CSeq, Method: sip.REFER, Cause: err}
	}

	d.uacTrans.Set(tr)
	d.cseq = tr.CSeq + 1
	d.reportTableSizes()
	d.transition(evUACTransferSent)
	return req, nil
}

// Update sends a session-modifying UPDATE, admissible in both Pending
// (pre-answer early media renegotiation) and Connected.
func (d *Dialog) Update(ctx context.Context, contentType string, body []byte, flags SendFlags) (*Request, error) {
	status := d.Status()
	if status != StatusPending && status != StatusConnected {
		return nil, &DialogError{Category: CategoryState, CallID: d.callID, Method: sip.UPDATE, Cause: fmt.Errorf("update only admissible while pending or connected")}
	}
	return d.sendRequest(ctx, sip.UPDATE, d.remoteURI, contentType, body, "", flags)
}

// Prack acknowledges a reliable provisional reply. Admissible only while
// Pending (spec.md §4.5: ErrPrackNotPending otherwise).
func (d *Dialog) Prack(ctx context.Context, rseq uint32) (*Request, error) {
	if d.Status() != StatusPending {
		return nil, ErrPrackNotPending
	}
	extra := fmt.Sprintf("RAck: %d %d %s%s", rseq, d.cseq, sip.INVITE, CRLF)
	return d.sendRequest(ctx, sip.PRACK, d.remoteURI, "", nil, extra, 0)
}

// SendAck200 builds and sends the ACK for a 2xx to the initial INVITE.
// Unlike every other UAC request, it is not tracked in uacTrans: an ACK to
// a 2xx has no reply of its own, and a forked INVITE may need several,
// one per 2xx received (spec.md §4.5, send_200_ack). Once the ACK is sent,
// the INVITE transaction at cseq is erased from uacTrans.
func (d *Dialog) SendAck200(ctx context.Context, cseq uint32, contentType string, body []byte) error {
	req := &Request{
		Method:      sip.ACK,
		RURI:        d.remoteURI,
		From:        buildPartyHeader(d.localParty, d.localTag),
		To:          buildPartyHeader(d.remoteParty, d.remoteTag),
		CallID:      d.callID,
		CSeq:        cseq,
		ContentType: contentType,
		Body:        body,
	}
	var built string
	built += fmt.Sprintf("%s: %s%s", hdrFrom, req.From, CRLF)
	built += fmt.Sprintf("%s: %s%s", hdrTo, req.To, CRLF)
	built += fmt.Sprintf("%s: %s%s", hdrCallID, d.callID, CRLF)
	built += fmt.Sprintf("%s: %d %s%s", hdrCSeq, cseq, sip.ACK, CRLF)
	if route, ok := buildRoute(d.route, d.remoteTag, d.outboundProxy, d.forceOutboundProxy); ok {
		built += fmt.Sprintf("%s: %s%s", hdrRoute, route, CRLF)
	}
	built += fmt.Sprintf("%s: %d%s", hdrMaxForwards, d.maxForwards(), CRLF)
	req.Headers = built

	if err := d.sender.SendRequest(req); err != nil {
		return &DialogError{Category: CategoryTransport, CallID: d.callID, CSeq: cseq, Method: sip.ACK, Cause: err}
	}
	d.uacTrans.Delete(cseq)
	d.reportTableSizes()
	return nil
}
