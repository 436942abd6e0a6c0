package dialog

// Handler is the outbound-to-application capability set (spec.md §4.6).
// Every method is optional: a Dialog built with a nil Handler, or one that
// embeds NopHandler for the methods it doesn't care about, behaves as if
// that callback had done nothing, with one exception: with a nil Handler,
// UpdateOnReply sends the ACK for a 2xx to an INVITE itself, where a
// non-nil Handler's OnInvite2xx is called instead.
type Handler interface {
	// OnSipRequest notifies of a new inbound request accepted into the
	// dialog (including ACK/CANCEL, which bypass transaction bookkeeping).
	OnSipRequest(req *Request)
	// OnSipReply notifies of an inbound reply after the state update has
	// already applied; oldStatus is the status before that update.
	OnSipReply(reply *Reply, oldStatus DialogStatus, transMethod string)
	// OnSendRequest is invoked just before a request is emitted; it may
	// append to hdrs.
	OnSendRequest(method string, contentType string, body []byte, hdrs *string, flags SendFlags, cseq uint32)
	// OnSendReply is invoked just before a reply is emitted; it may
	// append to hdrs.
	OnSendReply(req *Request, code int, reason string, contentType string, body []byte, hdrs *string, flags SendFlags)
	// OnInvite2xx is invoked instead of an automatic ACK when a 2xx to an
	// INVITE arrives and the application wants to attach a body.
	OnInvite2xx(reply *Reply)
	// OnNoAck / OnNoPrack surface transaction-layer timeouts. Neither
	// mutates dialog state; the application decides whether to tear down.
	OnNoAck(cseq uint32)
	OnNoPrack(req *Request, reply *Reply)
}

// NopHandler implements Handler with no-op methods. Embed it to implement
// only the callbacks you need.
type NopHandler struct{}

func (NopHandler) OnSipRequest(*Request)                                                 {}
func (NopHandler) OnSipReply(*Reply, DialogStatus, string)                               {}
func (NopHandler) OnSendRequest(string, string, []byte, *string, SendFlags, uint32)       {}
func (NopHandler) OnSendReply(*Request, int, string, string, []byte, *string, SendFlags)  {}
func (NopHandler) OnInvite2xx(*Reply)                                                     {}
func (NopHandler) OnNoAck(uint32)                                                         {}
func (NopHandler) OnNoPrack(*Request, *Reply)                                             {}

var _ Handler = NopHandler{}
