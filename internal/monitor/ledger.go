package monitor

import "torrentstream/seedwarden/internal/domain"

// Ledger counts consecutive stalled observations per transfer. Entries are
// only ever created by Increment and removed by Clear or Retain; counts never
// go down.
// It is not safe for concurrent use; Monitor guards it.
type Ledger struct {
	counts map[domain.TransferID]int
}

func NewLedger() *Ledger {
	return &Ledger{counts: make(map[domain.TransferID]int)}
}

// Increment records one more stalled observation and returns the new count.
func (l *Ledger) Increment(id domain.TransferID) int {
	l.counts[id]++
	return l.counts[id]
}

// Count returns the current count, 0 when the transfer has no entry.
func (l *Ledger) Count(id domain.TransferID) int {
	return l.counts[id]
}

// Clear drops the entry and reports whether one existed.
func (l *Ledger) Clear(id domain.TransferID) bool {
	if _, ok := l.counts[id]; !ok {
		return false
	}
	delete(l.counts, id)
	return true
}

// Retain drops every entry whose id is not in present and returns the
// dropped ids.
func (l *Ledger) Retain(present map[domain.TransferID]struct{}) []domain.TransferID {
	var dropped []domain.TransferID
	for id := range l.counts {
		if _, ok := present[id]; !ok {
			dropped = append(dropped, id)
			delete(l.counts, id)
		}
	}
	return dropped
}

func (l *Ledger) Len() int {
	return len(l.counts)
}

func (l *Ledger) Snapshot() map[domain.TransferID]int {
	out := make(map[domain.TransferID]int, len(l.counts))
	for id, n := range l.counts {
		out[id] = n
	}
	return out
}
