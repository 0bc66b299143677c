package paper

import (
	"sync"

	"quantbot-go/internal/venue"
)

// Ledger stores paper deals in memory for fill lookups.
type Ledger struct {
	mu    sync.Mutex
	deals []venue.Deal
	index map[uint64]int
}

// NewLedger creates an empty ledger optionally pre-sizing storage.
func NewLedger(capacity int) *Ledger {
	if capacity < 0 {
		capacity = 0
	}
	return &Ledger{deals: make([]venue.Deal, 0, capacity), index: make(map[uint64]int, capacity)}
}

// Record appends a deal to the ledger.
func (l *Ledger) Record(deal venue.Deal) {
	l.mu.Lock()
	l.index[deal.ID] = len(l.deals)
	l.deals = append(l.deals, deal)
	l.mu.Unlock()
}

// Get returns the deal with the given id.
func (l *Ledger) Get(id uint64) (venue.Deal, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.index[id]
	if !ok {
		return venue.Deal{}, false
	}
	return l.deals[i], true
}

// Snapshot returns a copy of the recorded deals.
func (l *Ledger) Snapshot() []venue.Deal {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]venue.Deal, len(l.deals))
	copy(out, l.deals)
	return out
}

// Reset clears all stored deals.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.deals = l.deals[:0]
	l.index = make(map[uint64]int)
	l.mu.Unlock()
}
