// Package reconcile tracks transfers that committed on a backend but whose
// record write failed. Funds moved, so the entry must be surfaced until an
// operator resolves it; it is operational state, not an accounting log.
package reconcile

import (
	"sync"
	"time"
)

// Orphan is a committed transfer with no corresponding donation record.
type Orphan struct {
	ID        string    `json:"id"`
	Account   string    `json:"account"`
	Amount    uint64    `json:"amount"`
	Fee       uint64    `json:"fee"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// Journal is an in-memory set of unresolved orphans.
type Journal struct {
	mu      sync.Mutex
	orphans map[string]Orphan
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{orphans: make(map[string]Orphan)}
}

// Record adds an orphan to the journal.
func (j *Journal) Record(o Orphan) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	j.orphans[o.ID] = o
}

// Resolve removes an orphan once an operator has reconciled it.
func (j *Journal) Resolve(id string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.orphans[id]; !ok {
		return false
	}
	delete(j.orphans, id)
	return true
}

// Pending returns the unresolved orphans.
func (j *Journal) Pending() []Orphan {
	j.mu.Lock()
	defer j.mu.Unlock()
	result := make([]Orphan, 0, len(j.orphans))
	for _, o := range j.orphans {
		result = append(result, o)
	}
	return result
}

// Len returns the number of unresolved orphans.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.orphans)
}
