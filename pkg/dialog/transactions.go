package dialog

import "github.com/emiago/sipgo/sip"

// Transaction is the dialog's record of a single outstanding client- or
// server-initiated transaction, identified by its CSeq number within the
// dialog. TransportToken is opaque: the dialog only stores and forwards it.
type Transaction struct {
	Method         sip.RequestMethod
	CSeq           uint32
	TransportToken any
}

// TransactionTable is an ordered mapping from CSeq to Transaction. For a
// dialog, insertion order and CSeq order coincide (CSeq is strictly
// increasing per direction), so a slice of keys alongside the map gives
// cheap forward/reverse iteration without a separate sort step.
//
// Not safe for concurrent use: a Dialog's tables are owned exclusively by
// the Dialog and serialized by its caller, per the package's single-
// threaded concurrency model.
type TransactionTable struct {
	order []uint32
	byKey map[uint32]Transaction
}

func newTransactionTable() *TransactionTable {
	return &TransactionTable{byKey: make(map[uint32]Transaction)}
}

// Set inserts or overwrites the transaction at cseq.
func (t *TransactionTable) Set(tr Transaction) {
	if _, exists := t.byKey[tr.CSeq]; !exists {
		t.order = append(t.order, tr.CSeq)
	}
	t.byKey[tr.CSeq] = tr
}

// Get looks up the transaction at cseq.
func (t *TransactionTable) Get(cseq uint32) (Transaction, bool) {
	tr, ok := t.byKey[cseq]
	return tr, ok
}

// Delete removes the transaction at cseq, if present.
func (t *TransactionTable) Delete(cseq uint32) {
	if _, exists := t.byKey[cseq]; !exists {
		return
	}
	delete(t.byKey, cseq)
	for i, k := range t.order {
		if k == cseq {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of outstanding transactions.
func (t *TransactionTable) Len() int { return len(t.order) }

// ForEach iterates in insertion order (CSeq-ascending for a dialog's own
// tables), stopping early if fn returns false.
func (t *TransactionTable) ForEach(fn func(Transaction) bool) {
	for _, k := range t.order {
		if !fn(t.byKey[k]) {
			return
		}
	}
}

// ForEachReverse iterates in reverse insertion order (most recent first),
// stopping early if fn returns false.
func (t *TransactionTable) ForEachReverse(fn func(Transaction) bool) {
	for i := len(t.order) - 1; i >= 0; i-- {
		if !fn(t.byKey[t.order[i]]) {
			return
		}
	}
}

// CountMethod returns how many outstanding transactions have the given
// method. For the UAS table and INVITE this equals the dialog's
// pendingInvites counter, which is maintained separately.
func (t *TransactionTable) CountMethod(method sip.RequestMethod) int {
	n := 0
	for _, k := range t.order {
		if t.byKey[k].Method == method {
			n++
		}
	}
	return n
}

// MostRecent returns the most recently inserted transaction with the given
// method, searching from the newest entry backwards. cancel() uses this to
// find the UAC INVITE to cancel.
func (t *TransactionTable) MostRecent(method sip.RequestMethod) (Transaction, bool) {
	var found Transaction
	ok := false
	t.ForEachReverse(func(tr Transaction) bool {
		if tr.Method == method {
			found, ok = tr, true
			return false
		}
		return true
	})
	return found, ok
}

// Keys returns the outstanding CSeqs in insertion order. Mainly for tests
// and diagnostics.
func (t *TransactionTable) Keys() []uint32 {
	out := make([]uint32, len(t.order))
	copy(out, t.order)
	return out
}
