package dialog

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"github.com/rs/zerolog"
)

// Dialog is one peer-to-peer SIP relationship: its status, learned
// identifiers, and the two CSeq-keyed transaction tables. One instance
// represents exactly one dialog; it neither persists itself nor
// multiplexes others. It is owned exclusively by its session and must not
// be used from more than one goroutine at a time (see package doc).
type Dialog struct {
	machine *fsm.FSM

	callID       string
	localTag     string
	remoteTag    string
	localURI     string
	remoteURI    string
	localParty   string
	remoteParty  string
	route        string
	contactURI   string
	contactBuilt bool
	user         string
	domain       string

	cseq       uint32
	rCseq      uint32
	rCseqSeen  bool

	pendingInvites int
	uacTrans       *TransactionTable
	uasTrans       *TransactionTable

	outboundProxy      string
	forceOutboundProxy bool

	cfg        Config
	sender     Sender
	handler    Handler
	hasHandler bool
	log        zerolog.Logger
	metrics    *Metrics

	createdAt time.Time
}

// New creates a Disconnected dialog with empty transaction tables.
// localTag comes from an external id generator, per spec: it is fixed for
// the lifetime of the dialog. callID may be empty for a dialog that will
// learn it from the first inbound request (UAS role); a UAC-initiated
// dialog must supply one, since the first outbound request needs a
// Call-ID header.
//
// A nil handler is accepted: every callback then behaves as its documented
// default (spec.md §4.6, "absence = default behavior"), which for
// onInvite2xx means UpdateOnReply ACKs a 2xx itself instead of leaving it
// to the application (spec.md §4.4 step 7).
func New(cfg Config, sender Sender, handler Handler, localTag, callID string, opts ...Option) *Dialog {
	hasHandler := handler != nil
	if !hasHandler {
		handler = NopHandler{}
	}
	d := &Dialog{
		machine:            newDialogFSM(),
		callID:             callID,
		localTag:           localTag,
		cseq:               10,
		uacTrans:           newTransactionTable(),
		uasTrans:           newTransactionTable(),
		outboundProxy:      cfg.OutboundProxy,
		forceOutboundProxy: cfg.ForceOutboundProxy,
		cfg:                cfg,
		sender:             sender,
		handler:            handler,
		hasHandler:         hasHandler,
		log:                zerolog.Nop(),
		createdAt:          time.Now(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Option configures optional Dialog dependencies at construction.
type Option func(*Dialog)

// WithLogger attaches a structured logger; the default is a disabled
// no-op logger.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Dialog) { d.log = l }
}

// WithMetrics attaches a Prometheus-backed metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(d *Dialog) { d.metrics = m }
}

// ID is a derived, read-only dialog identity string, useful for an owning
// session that indexes many dialogs. Not itself part of any invariant.
func (d *Dialog) ID() string {
	return d.callID + d.localTag + d.remoteTag
}

// Status returns the current dialog status.
func (d *Dialog) Status() DialogStatus { return statusFromFSM(d.machine.Current()) }

// CallID, LocalTag, RemoteTag, Route, CSeq expose the fields external
// callers (e.g. a session building the next request by hand) need
// read-only access to.
func (d *Dialog) CallID() string    { return d.callID }
func (d *Dialog) LocalTag() string  { return d.localTag }
func (d *Dialog) RemoteTag() string { return d.remoteTag }
func (d *Dialog) Route() string     { return d.route }
func (d *Dialog) CSeq() uint32      { return d.cseq }
func (d *Dialog) PendingInvites() int { return d.pendingInvites }

// DialogSnapshot is a read-only value copy of the externally-interesting
// dialog fields, for diagnostics/logging without exposing the live
// transaction tables.
type DialogSnapshot struct {
	Status         DialogStatus
	CallID         string
	LocalTag       string
	RemoteTag      string
	CSeq           uint32
	PendingInvites int
	CreatedAt      time.Time
}

func (d *Dialog) Snapshot() DialogSnapshot {
	return DialogSnapshot{
		Status:         d.Status(),
		CallID:         d.callID,
		LocalTag:       d.localTag,
		RemoteTag:      d.remoteTag,
		CSeq:           d.cseq,
		PendingInvites: d.pendingInvites,
		CreatedAt:      d.createdAt,
	}
}

// contactURIFor lazily computes and caches the Contact header value from
// config (spec.md §4.7).
func (d *Dialog) contactURIFor() string {
	if !d.contactBuilt {
		d.contactURI = buildContact(d.user, contactHost(d.cfg), d.cfg.LocalSIPPort)
		d.contactBuilt = true
	}
	return d.contactURI
}

func (d *Dialog) reportTableSizes() {
	d.metrics.tableSizes(d.pendingInvites, d.uacTrans.Len(), d.uasTrans.Len())
}

// UpdateOnRequest is the inbound-request entry point (spec.md §4.2).
func (d *Dialog) UpdateOnRequest(req *Request) {
	if req.Method == sip.ACK || req.Method == sip.CANCEL {
		d.handler.OnSipRequest(req)
		return
	}

	if d.rCseqSeen && req.CSeq <= d.rCseq {
		d.log.Debug().Str("call_id", req.CallID).Uint32("cseq", req.CSeq).Msg("rejecting out-of-order CSeq")
		d.metrics.cseqRejected()
		d.replyError(req, 500, "Server Internal Error")
		return
	}

	if req.Method == sip.INVITE && d.pendingInvites > 0 {
		d.log.Debug().Str("call_id", req.CallID).Msg("rejecting overlapping INVITE")
		d.metrics.overlapRejected()
		d.replyError(req, 500, "Server Internal Error", buildRetryAfter(rand.Intn(10)))
		return
	}
	if req.Method == sip.INVITE {
		d.pendingInvites++
	}

	d.rCseq = req.CSeq
	d.rCseqSeen = true
	d.uasTrans.Set(Transaction{Method: req.Method, CSeq: req.CSeq, TransportToken: req.TransportToken})
	d.reportTableSizes()

	if isTargetRefreshMethod(req.Method) && req.FromURI != "" {
		d.remoteURI = req.FromURI
	}

	if d.callID == "" {
		d.callID = req.CallID
		d.remoteTag = req.FromTag
		d.user = req.User
		d.domain = req.Domain
		d.localURI = req.RURI
		d.remoteParty = req.From
		d.localParty = req.To
		d.route = req.Route
	}

	d.handler.OnSipRequest(req)
}

// isTargetRefreshMethod reports whether method triggers remote-uri target
// refresh on an inbound request (spec.md §4.2 rule 5).
func isTargetRefreshMethod(m sip.RequestMethod) bool {
	switch m {
	case sip.INVITE, sip.UPDATE, sip.NOTIFY, sip.SUBSCRIBE:
		return true
	default:
		return false
	}
}

// Reply answers a request received into this dialog. It is the only
// sanctioned way to answer one (spec.md §4.3).
func (d *Dialog) Reply(req *Request, code int, reason, contentType string, body []byte, hdrs string, flags SendFlags) error {
	d.handler.OnSendReply(req, code, reason, contentType, body, &hdrs, flags)

	out := &Reply{
		Method:         req.Method,
		Code:           code,
		Reason:         reason,
		CSeq:           req.CSeq,
		LocalTag:       d.localTag,
		Headers:        hdrs,
		ContentType:    contentType,
		Body:           body,
		Flags:          flags,
		TransportToken: req.TransportToken,
	}
	if !flags.Has(FlagVerbatim) && d.cfg.Signature != "" {
		out.Headers += hdrServer + ": " + d.cfg.Signature + CRLF
	}
	if code >= 100 && code < 300 && req.Method != sip.CANCEL && req.Method != sip.BYE {
		out.Headers += hdrContact + ": <" + d.contactURIFor() + ">" + CRLF
	}

	if err := d.updateOnLocalReplySent(req, code); err != nil {
		return err
	}

	return d.sender.SendReply(out)
}

// replyError sends a stateless error reply (spec.md §4.3's reply_error
// helper): a fresh local tag, signature appended, no transaction touched.
func (d *Dialog) replyError(req *Request, code int, reason string, extraHeaders ...string) {
	tag := uuid.NewString()
	hdrs := fmt.Sprintf("%s: %s%s", hdrTo, buildPartyHeader(req.To, tag), CRLF)
	for _, h := range extraHeaders {
		hdrs += h
	}
	rep := &Reply{
		Method:         req.Method,
		Code:           code,
		Reason:         reason,
		CSeq:           req.CSeq,
		LocalTag:       tag,
		Headers:        hdrs,
		TransportToken: req.TransportToken,
	}
	if d.cfg.Signature != "" {
		rep.Headers += hdrServer + ": " + d.cfg.Signature + CRLF
	}
	if d.sender != nil {
		_ = d.sender.SendReply(rep)
	}
}

// updateOnLocalReplySent drives the UAS-side state machine per the table
// in spec.md §4.3.
func (d *Dialog) updateOnLocalReplySent(req *Request, code int) error {
	tr, ok := d.uasTrans.Get(req.CSeq)
	if !ok {
		return ErrNoMatchingTransaction
	}

	switch {
	case tr.Method == sip.INVITE && req.Method == sip.CANCEL:
		// unchanged
	case tr.Method == sip.INVITE && code < 200:
		d.transition(evUASInviteProvisional)
	case tr.Method == sip.INVITE && code < 300:
		d.transition(evUASInviteAccepted)
	case tr.Method == sip.INVITE && code >= 300:
		d.transition(evUASInviteRejected)
	case tr.Method == sip.BYE && code >= 200:
		d.transition(evUASByeCompleted)
	}

	if code >= 200 {
		if tr.Method == sip.INVITE {
			d.pendingInvites--
		}
		d.uasTrans.Delete(req.CSeq)
		d.reportTableSizes()
	}
	return nil
}

// transition fires ev against the status machine, logging and counting
// but never surfacing a rejection error to the caller. UpdateOnReply and
// the UAC operations check the current status before firing;
// updateOnLocalReplySent does not, so a local reply outside the event's
// Src states (e.g. to a re-INVITE while Connected) is rejected here and
// leaves the status unchanged.
func (d *Dialog) transition(ev string) {
	if _, err := fireStatus(context.Background(), d.machine, ev); err != nil {
		d.log.Warn().Err(err).Str("event", ev).Msg("dialog status transition rejected")
		return
	}
	d.metrics.transition(ev)
}

// UpdateOnReply is the inbound-reply entry point (spec.md §4.4).
func (d *Dialog) UpdateOnReply(reply *Reply) {
	tr, ok := d.uacTrans.Get(reply.CSeq)
	if !ok {
		d.log.Debug().Uint32("cseq", reply.CSeq).Msg("stale reply, no matching UAC transaction")
		return
	}
	oldStatus := d.Status()
	transMethod := tr.Method

	if reply.Code > 100 && reply.Code < 300 && reply.RemoteTag != "" {
		if d.remoteTag == "" || (oldStatus < StatusConnected && reply.Code >= 200) {
			d.remoteTag = reply.RemoteTag
		}
	}

	if oldStatus < StatusConnected && reply.Route != "" {
		d.route = reply.Route
	}

	if reply.NextRequestURI != "" {
		d.remoteURI = reply.NextRequestURI
	}

	switch {
	case oldStatus == StatusDisconnecting && transMethod == sip.INVITE && reply.Code == 487:
		d.transition(evUACCancelConfirmed)
	case oldStatus == StatusDisconnecting && transMethod == sip.INVITE:
		// CANCEL was rejected (or the race hasn't resolved yet): any
		// non-487 outcome, including a provisional still coming in,
		// means BYE is what actually tears the dialog down.
		d.Bye(context.Background())
	case (oldStatus == StatusPending || oldStatus == StatusDisconnected) && transMethod == sip.INVITE && reply.Code < 200:
		d.transition(evUACInviteProvisional)
	case (oldStatus == StatusPending || oldStatus == StatusDisconnected) && transMethod == sip.INVITE && reply.Code < 300:
		d.transition(evUACInviteAccepted)
	case (oldStatus == StatusPending || oldStatus == StatusDisconnected) && transMethod == sip.INVITE && reply.Code >= 300:
		d.transition(evUACInviteRejected)
	}

	if reply.Code >= 200 {
		if reply.Code < 300 && transMethod == sip.INVITE {
			// 2xx to INVITE: the transaction is retained past the final
			// response because a forked INVITE can see more than one
			// 2xx, each needing its own ACK. The eventual ACK sender
			// erases it (SendAck200 in uac.go).
			if d.hasHandler {
				d.handler.OnInvite2xx(reply)
			} else {
				// No application is watching for further forked 2xxs on
				// this cseq, so there is nothing to key a second ACK off
				// of; ACK now and erase the transaction instead of
				// leaking it.
				_ = d.SendAck200(context.Background(), reply.CSeq, "", nil)
				d.uacTrans.Delete(reply.CSeq)
				d.reportTableSizes()
			}
		} else {
			d.uacTrans.Delete(reply.CSeq)
			d.reportTableSizes()
		}
	}

	d.handler.OnSipReply(reply, oldStatus, transMethod.String())
}

// OnUASTimeout dispatches a transaction-layer timeout to the handler. It
// never mutates dialog state itself; the application decides teardown.
func (d *Dialog) OnUASTimeout(ev TimeoutEvent) {
	switch ev.Kind {
	case NoAck:
		d.handler.OnNoAck(ev.CSeq)
	case NoPrack:
		d.handler.OnNoPrack(ev.Req, ev.Reply)
	}
}
