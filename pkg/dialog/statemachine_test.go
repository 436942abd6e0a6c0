package dialog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusStringRoundTrip(t *testing.T) {
	for s := StatusDisconnected; s <= StatusDisconnecting; s++ {
		assert.Equal(t, s, statusFromFSM(s.String()))
	}
	assert.Equal(t, "Unknown", DialogStatus(99).String())
}

func TestStatusOrdering(t *testing.T) {
	assert.Less(t, int(StatusDisconnected), int(StatusPending))
	assert.Less(t, int(StatusPending), int(StatusConnected))
	assert.Less(t, int(StatusConnected), int(StatusDisconnecting))
}

func TestFSMUACInviteHappyPath(t *testing.T) {
	m := newDialogFSM()
	ctx := context.Background()

	s, err := fireStatus(ctx, m, evUACInviteSent)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, s)

	s, err = fireStatus(ctx, m, evUACInviteProvisional)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, s)

	s, err = fireStatus(ctx, m, evUACInviteAccepted)
	require.NoError(t, err)
	assert.Equal(t, StatusConnected, s)
}

func TestFSMRejectsInadmissibleTransition(t *testing.T) {
	m := newDialogFSM()
	ctx := context.Background()

	_, err := fireStatus(ctx, m, evUACCancelConfirmed)
	require.Error(t, err)
	assert.Equal(t, StatusDisconnected, statusFromFSM(m.Current()))
}

func TestFSMByeFromPendingGoesToDisconnecting(t *testing.T) {
	m := newDialogFSM()
	ctx := context.Background()

	_, err := fireStatus(ctx, m, evUACInviteSent)
	require.NoError(t, err)

	s, err := fireStatus(ctx, m, evUACByeFromPending)
	require.NoError(t, err)
	assert.Equal(t, StatusDisconnecting, s)

	s, err = fireStatus(ctx, m, evUACCancelConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusDisconnected, s)
}

func TestFSMTransferFromConnected(t *testing.T) {
	m := newDialogFSM()
	ctx := context.Background()
	_, _ = fireStatus(ctx, m, evUACInviteSent)
	_, _ = fireStatus(ctx, m, evUACInviteAccepted)

	s, err := fireStatus(ctx, m, evUACTransferSent)
	require.NoError(t, err)
	assert.Equal(t, StatusDisconnecting, s)
}
