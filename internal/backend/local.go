package backend

import (
	"context"

	"github.com/Coffee-Network/coffee_ledger/internal/token"
)

// LocalTokenBackend moves value through the test-token process. There is no
// fee model; balances are the caller's raw token holding.
type LocalTokenBackend struct {
	client *token.Client
}

var _ ValueBackend = (*LocalTokenBackend)(nil)

// NewLocalTokenBackend creates a backend over the given token client.
func NewLocalTokenBackend(client *token.Client) *LocalTokenBackend {
	return &LocalTokenBackend{client: client}
}

func (b *LocalTokenBackend) ResolveBalance(ctx context.Context, accountRef string) (uint64, error) {
	return b.client.Balance(ctx, accountRef)
}

func (b *LocalTokenBackend) ResolveFee(context.Context) (uint64, error) {
	return 0, nil
}

func (b *LocalTokenBackend) Transfer(ctx context.Context, from, to string, amount, _ uint64) (TransferOutcome, error) {
	ok, err := b.client.Transfer(ctx, from, to, amount)
	if err != nil {
		return TransferOutcome{}, err
	}
	if !ok {
		return TransferOutcome{ErrorDetail: "token process rejected transfer"}, nil
	}
	return TransferOutcome{Succeeded: true, Amount: amount}, nil
}
