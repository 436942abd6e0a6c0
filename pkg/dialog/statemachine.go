package dialog

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
)

// DialogStatus is the four-state dialog lifecycle driven by INVITE/BYE/
// CANCEL responses (spec.md §4.1). The int ordering matters: several
// transition rules compare "status < Connected", which is only meaningful
// because Disconnected < Pending < Connected < Disconnecting in the order
// a call actually progresses (Disconnecting only follows Connected or
// Pending, never precedes them).
type DialogStatus int

const (
	StatusDisconnected DialogStatus = iota
	StatusPending
	StatusConnected
	StatusDisconnecting
)

// statusNames are used verbatim in diagnostic output, matching the
// reference implementation's status2str table.
var statusNames = [...]string{"Disconnected", "Pending", "Connected", "Disconnecting"}

func (s DialogStatus) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "Unknown"
}

func statusFromFSM(s string) DialogStatus {
	for i, name := range statusNames {
		if name == s {
			return DialogStatus(i)
		}
	}
	return StatusDisconnected
}

// Dialog status-machine events. Each corresponds to exactly one cell of
// the transition tables in spec.md §4.3/§4.4/§4.5; firing the wrong event
// from the wrong call site is a bug the fsm library will reject, since its
// Src list encodes which current states that cell applies to.
const (
	evUACInviteSent        = "uac_invite_sent"         // invite(): Disconnected -> Pending
	evUACInviteProvisional = "uac_invite_provisional"   // <200 to INVITE
	evUACInviteAccepted    = "uac_invite_accepted"      // 2xx to INVITE
	evUACInviteRejected    = "uac_invite_rejected"      // >=300 to INVITE
	evUACCancelConfirmed   = "uac_cancel_confirmed"     // 487 while Disconnecting
	evUACByeFromConnected  = "uac_bye_from_connected"    // bye() in Connected/Disconnecting
	evUACByeFromPending    = "uac_bye_from_pending"      // bye() in Pending
	evUACTransferSent      = "uac_transfer_sent"         // transfer() in Connected
	evUASInviteProvisional = "uas_invite_provisional"    // local <200 reply to INVITE
	evUASInviteAccepted    = "uas_invite_accepted"       // local 2xx reply to INVITE
	evUASInviteRejected    = "uas_invite_rejected"       // local >=300 reply to INVITE
	evUASByeCompleted      = "uas_bye_completed"          // local >=200 reply to BYE
)

// newDialogFSM builds the status machine starting at StatusDisconnected,
// with the exact transitions spec.md's tables allow. Transitions it does
// not allow (e.g. firing an accept event from Connected) return an error
// from fsm and leave the status unchanged; updateOnLocalReplySent relies
// on that rejection for replies sent outside Disconnected/Pending (INVITE)
// or Connected/Disconnecting (BYE), and callers driving the machine
// directly (tests) can rely on it too.
func newDialogFSM() *fsm.FSM {
	d, p, c, dc := StatusDisconnected.String(), StatusPending.String(), StatusConnected.String(), StatusDisconnecting.String()

	return fsm.NewFSM(
		d,
		fsm.Events{
			{Name: evUACInviteSent, Src: []string{d}, Dst: p},
			{Name: evUACInviteProvisional, Src: []string{d, p}, Dst: p},
			{Name: evUACInviteAccepted, Src: []string{d, p}, Dst: c},
			{Name: evUACInviteRejected, Src: []string{d, p}, Dst: d},
			{Name: evUACCancelConfirmed, Src: []string{dc}, Dst: d},
			{Name: evUACByeFromConnected, Src: []string{c, dc}, Dst: d},
			{Name: evUACByeFromPending, Src: []string{p}, Dst: dc},
			{Name: evUACTransferSent, Src: []string{c}, Dst: dc},
			{Name: evUASInviteProvisional, Src: []string{d, p}, Dst: p},
			{Name: evUASInviteAccepted, Src: []string{d, p}, Dst: c},
			{Name: evUASInviteRejected, Src: []string{d, p}, Dst: d},
			{Name: evUASByeCompleted, Src: []string{c, dc}, Dst: d},
		},
		fsm.Callbacks{},
	)
}

// fireStatus fires event against the machine and, on success, returns the
// new status. Rows in spec.md's tables marked "unchanged" are simply never
// fired; this is not an error path, so callers that don't need a
// transition never call it.
func fireStatus(ctx context.Context, m *fsm.FSM, event string) (DialogStatus, error) {
	if err := m.Event(ctx, event); err != nil {
		return statusFromFSM(m.Current()), fmt.Errorf("dialog: status transition %q rejected: %w", event, err)
	}
	return statusFromFSM(m.Current()), nil
}
