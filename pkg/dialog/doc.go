// Package dialog implements the dialog layer of a SIP (RFC 3261) user
// agent: per-call peer state, the UAC/UAS transaction tables keyed by CSeq,
// CSeq- and status-code-driven state transitions, and the header/request
// construction rules that turn dialog state into outgoing requests and
// replies.
//
// The package sits between a transaction/transport layer, which parses wire
// messages and owns retransmission and timers, and an application session
// handler, which implements call logic such as media negotiation. Dialog
// treats both as opaque: it is handed already-parsed Request/Reply records
// and TimeoutEvents, and it emits already-structured Request/Reply records
// to a Sender.
//
// A Dialog is single-threaded and non-reentrant: every entry point
// (UpdateOnRequest, UpdateOnReply, the UAC operations, OnUASTimeout) must be
// serialized by the caller, typically the owning session's event loop.
package dialog
