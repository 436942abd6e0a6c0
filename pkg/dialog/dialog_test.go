package dialog

import (
	"context"
	"testing"

	"github.com/emiago/sipgo/sip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	requests []*Request
	replies  []*Reply
	cancels  int
	failNext bool
}

func (f *fakeSender) SendRequest(req *Request) error {
	f.requests = append(f.requests, req)
	return nil
}

func (f *fakeSender) SendReply(rep *Reply) error {
	f.replies = append(f.replies, rep)
	return nil
}

func (f *fakeSender) Cancel(token any) int {
	f.cancels++
	return 0
}

var _ Sender = (*fakeSender)(nil)

func newTestDialog(t *testing.T) (*Dialog, *fakeSender) {
	t.Helper()
	sender := &fakeSender{}
	cfg := Config{LocalSIPIP: "10.0.0.1", LocalSIPPort: 5060, Signature: "testsuite"}
	d := New(cfg, sender, NopHandler{}, "localtag123", "")
	return d, sender
}

// Scenario: UAS accepts an inbound INVITE and later receives a BYE
// (spec.md §8's basic successful call, UAS side).
func TestUASAcceptsInviteThenBye(t *testing.T) {
	d, sender := newTestDialog(t)

	inv := &Request{
		Method:  sip.INVITE,
		RURI:    "sip:bob@example.com",
		From:    "sip:alice@example.com",
		To:      "sip:bob@example.com",
		FromTag: "alicetag",
		CallID:  "call-1",
		CSeq:    1,
	}
	d.UpdateOnRequest(inv)
	assert.Equal(t, "call-1", d.CallID())
	assert.Equal(t, "alicetag", d.RemoteTag())
	assert.Equal(t, 1, d.PendingInvites())

	require.NoError(t, d.Reply(inv, 180, "Ringing", "", nil, "", 0))
	assert.Equal(t, StatusPending, d.Status())

	require.NoError(t, d.Reply(inv, 200, "OK", "", nil, "", 0))
	assert.Equal(t, StatusConnected, d.Status())
	assert.Equal(t, 0, d.PendingInvites())
	require.Len(t, sender.replies, 2)
	assert.Equal(t, 200, sender.replies[1].Code)

	bye := &Request{Method: sip.BYE, CallID: "call-1", CSeq: 2}
	d.UpdateOnRequest(bye)
	require.NoError(t, d.Reply(bye, 200, "OK", "", nil, "", 0))
	assert.Equal(t, StatusDisconnected, d.Status())
}

// Scenario: a UAS rejects the INVITE outright (spec.md §8's rejected call).
func TestUASRejectsInvite(t *testing.T) {
	d, _ := newTestDialog(t)
	inv := &Request{Method: sip.INVITE, CallID: "call-2", CSeq: 1}
	d.UpdateOnRequest(inv)

	require.NoError(t, d.Reply(inv, 486, "Busy Here", "", nil, "", 0))
	assert.Equal(t, StatusDisconnected, d.Status())
	assert.Equal(t, 0, d.PendingInvites())
}

// Scenario: an out-of-order CSeq is rejected statelessly and never reaches
// the handler or the transaction table (spec.md §4.2 rule 1).
func TestOutOfOrderCSeqRejected(t *testing.T) {
	d, sender := newTestDialog(t)
	first := &Request{Method: sip.INVITE, CallID: "call-3", CSeq: 5, To: "sip:bob@example.com"}
	d.UpdateOnRequest(first)
	require.NoError(t, d.Reply(first, 200, "OK", "", nil, "", 0))

	stale := &Request{Method: sip.UPDATE, CallID: "call-3", CSeq: 3, To: "sip:bob@example.com"}
	d.UpdateOnRequest(stale)

	require.Len(t, sender.replies, 2)
	assert.Equal(t, 500, sender.replies[1].Code)
	_, ok := d.uasTrans.Get(3)
	assert.False(t, ok)
}

// Scenario: an overlapping INVITE is rejected with Retry-After while one is
// already pending (spec.md §4.2 rule 2).
func TestOverlappingInviteRejected(t *testing.T) {
	d, sender := newTestDialog(t)
	first := &Request{Method: sip.INVITE, CallID: "call-4", CSeq: 1}
	d.UpdateOnRequest(first)

	second := &Request{Method: sip.INVITE, CallID: "call-4", CSeq: 3}
	d.UpdateOnRequest(second)

	require.Len(t, sender.replies, 1)
	assert.Equal(t, 500, sender.replies[0].Code)
	assert.Contains(t, sender.replies[0].Headers, "Retry-After")
	assert.Equal(t, 1, d.PendingInvites())
}

// Scenario: UAC sends an INVITE, abandons it with a BYE while still
// Pending. Per spec.md §4.5's `bye` (Pending) row, this cancels the
// outstanding INVITE transaction rather than sending a real BYE, moving
// to Disconnecting; a 487 then confirms teardown (spec.md §8 scenario 2).
func TestUACByeWhilePendingThenCancelConfirmed(t *testing.T) {
	d, sender := newTestDialog(t)
	_, err := d.Invite(context.Background(), "sip:bob@example.com", "sip:alice@example.com", "sip:bob@example.com", "", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, d.Status())

	req, err := d.Bye(context.Background())
	require.NoError(t, err)
	assert.Nil(t, req, "bye() while pending cancels, it does not build a BYE request")
	assert.Equal(t, StatusDisconnecting, d.Status())
	assert.Equal(t, 1, sender.cancels, "bye() while pending must cancel the outstanding INVITE")
	for _, r := range sender.requests {
		assert.NotEqual(t, sip.BYE, r.Method, "no BYE should be sent while the INVITE was never answered")
	}

	d.UpdateOnReply(&Reply{Method: sip.INVITE, Code: 487, CSeq: 10})
	assert.Equal(t, StatusDisconnected, d.Status())
	_, ok := d.uacTrans.Get(10)
	assert.False(t, ok)
}

// Scenario: the CANCEL is rejected (peer answers anyway, or any other
// non-487 final/early reply arrives) — per spec.md §4.4's Disconnecting
// row, everything but 487 forces a real BYE to tear the dialog down.
func TestUACCancelRejectedSendsBye(t *testing.T) {
	d, sender := newTestDialog(t)
	_, err := d.Invite(context.Background(), "sip:bob@example.com", "sip:alice@example.com", "sip:bob@example.com", "", nil, 0)
	require.NoError(t, err)
	_, err = d.Bye(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusDisconnecting, d.Status())

	d.UpdateOnReply(&Reply{Method: sip.INVITE, Code: 200, CSeq: 10, RemoteTag: "bobtag"})

	var byeSent bool
	for _, r := range sender.requests {
		if r.Method == sip.BYE {
			byeSent = true
		}
	}
	assert.True(t, byeSent, "a 2xx despite cancel must be torn down with a real BYE")
}

// Scenario: a 2xx to the INVITE is retained in uacTrans (never deleted by
// UpdateOnReply) because a forked INVITE may see several, each needing its
// own ACK; SendAck200 is what eventually completes it.
func TestInvite2xxRetainsTransactionUntilAck(t *testing.T) {
	d, sender := newTestDialog(t)
	_, err := d.Invite(context.Background(), "sip:bob@example.com", "sip:alice@example.com", "sip:bob@example.com", "", nil, 0)
	require.NoError(t, err)

	d.UpdateOnReply(&Reply{Method: sip.INVITE, Code: 200, CSeq: 10, RemoteTag: "bobtag"})
	assert.Equal(t, StatusConnected, d.Status())
	_, ok := d.uacTrans.Get(10)
	assert.True(t, ok, "2xx to INVITE must stay in the table until ACK is sent")

	require.NoError(t, d.SendAck200(context.Background(), 10, "", nil))
	require.Len(t, sender.requests, 2)
	assert.Equal(t, sip.ACK, sender.requests[1].Method)
}

// Scenario: with no handler attached at all (spec.md §4.4 step 7's "if no
// handler is attached, call send_200_ack" fallback), a 2xx to INVITE is
// ACKed automatically and the transaction is erased without the caller
// lifting a finger.
func TestInvite2xxWithoutHandlerAutoAcks(t *testing.T) {
	sender := &fakeSender{}
	cfg := Config{LocalSIPIP: "10.0.0.1", LocalSIPPort: 5060, Signature: "testsuite"}
	d := New(cfg, sender, nil, "localtag123", "")

	_, err := d.Invite(context.Background(), "sip:bob@example.com", "sip:alice@example.com", "sip:bob@example.com", "", nil, 0)
	require.NoError(t, err)

	d.UpdateOnReply(&Reply{Method: sip.INVITE, Code: 200, CSeq: 10, RemoteTag: "bobtag"})

	require.Len(t, sender.requests, 2)
	assert.Equal(t, sip.ACK, sender.requests[1].Method)
	_, ok := d.uacTrans.Get(10)
	assert.False(t, ok, "with no handler attached the dialog itself ACKs and erases the transaction")
}

func TestPrackOnlyAdmissibleWhilePending(t *testing.T) {
	d, _ := newTestDialog(t)
	_, err := d.Prack(context.Background(), 1)
	assert.ErrorIs(t, err, ErrPrackNotPending)

	_, err = d.Invite(context.Background(), "sip:bob@example.com", "sip:alice@example.com", "sip:bob@example.com", "", nil, 0)
	require.NoError(t, err)
	_, err = d.Prack(context.Background(), 1)
	require.NoError(t, err)
}

func TestCancelWithNoOutstandingInviteFails(t *testing.T) {
	d, _ := newTestDialog(t)
	err := d.Cancel(context.Background())
	assert.ErrorIs(t, err, ErrNoUACInvite)
}
