// Package backend abstracts the two value-transfer backends behind a single
// capability so the payment gate never branches on network mode after
// initialization.
package backend

import "context"

// TransferOutcome is the verdict of a single transfer attempt. It is the
// contract between a backend and the payment gate, never persisted.
type TransferOutcome struct {
	Succeeded   bool
	Amount      uint64
	FeeCharged  uint64
	ErrorDetail string
}

// ValueBackend is the capability required to move value. Every method
// suspends the caller on a call to an external process; none are atomic
// with respect to other operations touching the same account.
type ValueBackend interface {
	// ResolveBalance returns the holding of the referenced account.
	ResolveBalance(ctx context.Context, accountRef string) (uint64, error)

	// ResolveFee returns the fee charged per transfer. The local backend
	// always reports zero.
	ResolveFee(ctx context.Context) (uint64, error)

	// Transfer moves amount from one account to another, paying fee in
	// addition to amount. The backend's verdict is forwarded verbatim.
	Transfer(ctx context.Context, from, to string, amount, fee uint64) (TransferOutcome, error)
}
