// Package coffee holds the donation record model.
package coffee

// Record is a single recorded donation. Immutable after creation except for
// Name and Message, which Update may replace. Amount and Timestamp are
// snapshots taken when the deposit committed, not live references.
type Record struct {
	ID        string `json:"id" db:"id"`
	Name      string `json:"name" db:"name"`
	Message   string `json:"message" db:"message"`
	Amount    uint64 `json:"amount" db:"amount"`
	Timestamp uint64 `json:"timestamp" db:"timestamp"`
}

// Payload is the caller-supplied portion of a deposit.
type Payload struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Amount  uint64 `json:"amount"`
}

// Patch carries the mutable fields of a record. A nil field leaves the
// existing value in place.
type Patch struct {
	Name    *string `json:"name"`
	Message *string `json:"message"`
}

// SearchCriteria filters records by substring match. Empty fields match
// everything.
type SearchCriteria struct {
	Name    string
	Message string
}
