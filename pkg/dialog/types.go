package dialog

import (
	"fmt"

	"github.com/emiago/sipgo/sip"
)

// SendFlags modify how a request or reply is constructed. They are a bitmask
// so callers can combine them, though today there is exactly one bit.
type SendFlags uint32

const (
	// FlagVerbatim suppresses automatic Server/User-Agent/Max-Forwards
	// injection; the caller's headers are sent unmodified.
	FlagVerbatim SendFlags = 1 << iota
)

// Has reports whether f includes bit.
func (f SendFlags) Has(bit SendFlags) bool {
	return f&bit != 0
}

// TimeoutKind identifies the reason a TimeoutEvent fired.
type TimeoutKind int

const (
	// NoAck fires when a 2xx reply to an INVITE never saw its ACK.
	NoAck TimeoutKind = iota
	// NoPrack fires when a reliable provisional reply never saw its PRACK.
	NoPrack
)

func (k TimeoutKind) String() string {
	switch k {
	case NoAck:
		return "NoAck"
	case NoPrack:
		return "NoPrack"
	default:
		return "Unknown"
	}
}

// Request is an already-parsed inbound request, or an already-built
// outbound one, handed across the boundary with the transaction/transport
// layer. Dialog never serializes or parses SIP wire format itself.
type Request struct {
	Method      sip.RequestMethod
	RURI        string
	From        string
	To          string
	FromTag     string
	FromURI     string
	CallID      string
	CSeq        uint32
	Route       string
	User        string
	Domain      string
	Headers     string
	Body        []byte
	ContentType string
	Flags       SendFlags

	// TransportToken is an opaque handle the transaction layer uses to
	// correlate cancellation and replies. Dialog stores and forwards it,
	// never inspects or frees it.
	TransportToken any
}

// Reply is an already-parsed inbound response, or an already-built
// outbound one.
type Reply struct {
	Method          sip.RequestMethod
	Code            int
	Reason          string
	CSeq            uint32
	LocalTag        string
	RemoteTag       string
	Route           string
	NextRequestURI  string
	Headers         string
	Body            []byte
	ContentType     string
	Flags           SendFlags
	TransportToken  any
}

// TimeoutEvent is delivered by the transaction layer when an ACK or PRACK
// it was waiting for never arrived. Dialog never mutates its own state in
// response to one; it only forwards it to the handler.
type TimeoutEvent struct {
	Kind  TimeoutKind
	CSeq  uint32
	Req   *Request
	Reply *Reply
}

// Config is the immutable snapshot of process configuration a Dialog is
// built with. Values are copied in at construction; nothing here is
// mutable process-wide state, and the package never loads it from a CLI
// flag, environment variable, or file itself.
type Config struct {
	LocalSIPIP         string
	PublicIP           string
	LocalSIPPort       int
	OutboundProxy      string
	ForceOutboundProxy bool
	Signature          string
	MaxForwards         int
}

// Sender is the outbound sink the dialog hands built requests/replies to.
// It is assumed non-blocking: it enqueues for transport and returns.
type Sender interface {
	SendRequest(req *Request) error
	SendReply(rep *Reply) error
	// Cancel asks the transaction layer to cancel the transaction behind
	// token, returning a negative value on failure exactly as spec'd.
	Cancel(token any) int
}

// Sentinel errors for the handful of outcomes spec'd as distinguishable by
// the caller. See DialogError for the richer, optional wrapper.
var (
	// ErrNoMatchingTransaction is returned by Reply when no UAS
	// transaction matches the request being answered.
	ErrNoMatchingTransaction = fmt.Errorf("dialog: no matching transaction")
	// ErrPrackNotPending is returned by Prack when the dialog is not in
	// the Pending state.
	ErrPrackNotPending = fmt.Errorf("dialog: prack only admissible while pending")
	// ErrNoUACInvite is returned by Cancel when there is no outstanding
	// UAC INVITE transaction to cancel.
	ErrNoUACInvite = fmt.Errorf("dialog: no pending UAC invite to cancel")
	// ErrNoInviteRequest reports that an initial INVITE record was
	// required and not given. No function in this package returns it.
	ErrNoInviteRequest = fmt.Errorf("dialog: invite request required")
)

// ErrorCategory classifies a DialogError for programmatic branching.
type ErrorCategory string

const (
	CategoryProtocol    ErrorCategory = "protocol"    // peer violated CSeq/overlap rules
	CategoryTransaction ErrorCategory = "transaction"  // no matching transaction
	CategoryState       ErrorCategory = "state"        // operation inadmissible in current status
	CategoryTransport   ErrorCategory = "transport"    // sender sink failed
)

// DialogError is a structured error carrying dialog context, for the
// handful of outcomes spec.md §7 calls out as worth distinguishing
// programmatically. Sized to those outcomes, not a general-purpose error
// taxonomy.
type DialogError struct {
	Category ErrorCategory
	CallID   string
	CSeq     uint32
	Method   sip.RequestMethod
	Cause    error
}

func (e *DialogError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("dialog[%s] callid=%s cseq=%d method=%s: %v",
			e.Category, e.CallID, e.CSeq, e.Method, e.Cause)
	}
	return fmt.Sprintf("dialog[%s] callid=%s cseq=%d method=%s", e.Category, e.CallID, e.CSeq, e.Method)
}

func (e *DialogError) Unwrap() error { return e.Cause }
