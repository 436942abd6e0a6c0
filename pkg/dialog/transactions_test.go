package dialog

import (
	"testing"

	"github.com/emiago/sipgo/sip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionTableSetGetDelete(t *testing.T) {
	tt := newTransactionTable()
	_, ok := tt.Get(1)
	require.False(t, ok)

	tt.Set(Transaction{Method: sip.INVITE, CSeq: 1})
	tt.Set(Transaction{Method: sip.BYE, CSeq: 2})

	tr, ok := tt.Get(1)
	require.True(t, ok)
	assert.Equal(t, sip.INVITE, tr.Method)
	assert.Equal(t, 2, tt.Len())

	tt.Delete(1)
	_, ok = tt.Get(1)
	assert.False(t, ok)
	assert.Equal(t, 1, tt.Len())
}

func TestTransactionTableOrderPreserved(t *testing.T) {
	tt := newTransactionTable()
	tt.Set(Transaction{Method: sip.INVITE, CSeq: 10})
	tt.Set(Transaction{Method: sip.BYE, CSeq: 12})
	tt.Set(Transaction{Method: sip.UPDATE, CSeq: 11})

	assert.Equal(t, []uint32{10, 12, 11}, tt.Keys())

	var seen []uint32
	tt.ForEach(func(tr Transaction) bool {
		seen = append(seen, tr.CSeq)
		return true
	})
	assert.Equal(t, []uint32{10, 12, 11}, seen)

	seen = nil
	tt.ForEachReverse(func(tr Transaction) bool {
		seen = append(seen, tr.CSeq)
		return true
	})
	assert.Equal(t, []uint32{11, 12, 10}, seen)
}

func TestTransactionTableCountAndMostRecent(t *testing.T) {
	tt := newTransactionTable()
	tt.Set(Transaction{Method: sip.INVITE, CSeq: 10})
	tt.Set(Transaction{Method: sip.INVITE, CSeq: 14})
	tt.Set(Transaction{Method: sip.BYE, CSeq: 16})

	assert.Equal(t, 2, tt.CountMethod(sip.INVITE))
	assert.Equal(t, 1, tt.CountMethod(sip.BYE))
	assert.Equal(t, 0, tt.CountMethod(sip.CANCEL))

	tr, ok := tt.MostRecent(sip.INVITE)
	require.True(t, ok)
	assert.EqualValues(t, 14, tr.CSeq)

	_, ok = tt.MostRecent(sip.CANCEL)
	assert.False(t, ok)
}

func TestTransactionTableDeleteMissingIsNoop(t *testing.T) {
	tt := newTransactionTable()
	tt.Set(Transaction{Method: sip.INVITE, CSeq: 1})
	tt.Delete(99)
	assert.Equal(t, 1, tt.Len())
}
