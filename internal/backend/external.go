package backend

import (
	"context"
	"errors"

	apperrors "github.com/Coffee-Network/coffee_ledger/internal/errors"
	"github.com/Coffee-Network/coffee_ledger/internal/ledger"
	"github.com/Coffee-Network/coffee_ledger/pkg/logger"
)

// DefaultTransferFee is the conservative fee assumed when the ledger's fee
// lookup is unavailable, in the ledger's base unit.
const DefaultTransferFee uint64 = 10_000

// ExternalLedgerBackend moves value through the external ledger process.
// Fees are live and paid in addition to the transferred amount.
type ExternalLedgerBackend struct {
	client     *ledger.Client
	defaultFee uint64
	log        *logger.Logger
}

var _ ValueBackend = (*ExternalLedgerBackend)(nil)

// NewExternalLedgerBackend creates a backend over the given ledger client.
// A zero defaultFee falls back to DefaultTransferFee.
func NewExternalLedgerBackend(client *ledger.Client, defaultFee uint64, log *logger.Logger) *ExternalLedgerBackend {
	if defaultFee == 0 {
		defaultFee = DefaultTransferFee
	}
	if log == nil {
		log = logger.NewDefault("ledger-backend")
	}
	return &ExternalLedgerBackend{client: client, defaultFee: defaultFee, log: log}
}

func (b *ExternalLedgerBackend) ResolveBalance(ctx context.Context, accountRef string) (uint64, error) {
	return b.client.AccountBalance(ctx, accountRef)
}

// ResolveFee queries the ledger's current transfer fee. A ledger-level
// rejection is recovered with the default fee; an unreachable ledger is
// fatal to the operation.
func (b *ExternalLedgerBackend) ResolveFee(ctx context.Context) (uint64, error) {
	fee, err := b.client.TransferFee(ctx)
	if err != nil {
		if errors.Is(err, apperrors.Unreachable("ledger", nil)) {
			return 0, err
		}
		b.log.WithError(apperrors.FeeUnavailable(err)).Warnf("fee lookup failed, assuming default fee %d", b.defaultFee)
		return b.defaultFee, nil
	}
	return fee, nil
}

// Transfer submits a ledger transfer. The from reference is carried as the
// source subaccount when present; the ledger debits the service's own
// account otherwise.
func (b *ExternalLedgerBackend) Transfer(ctx context.Context, from, to string, amount, fee uint64) (TransferOutcome, error) {
	args := ledger.TransferArgs{
		Memo:   0,
		Amount: amount,
		Fee:    fee,
		To:     to,
	}
	if from != "" {
		args.FromSubaccount = &from
	}

	result, err := b.client.Transfer(ctx, args)
	if err != nil {
		return TransferOutcome{}, err
	}
	if !result.Succeeded {
		return TransferOutcome{ErrorDetail: result.Detail, FeeCharged: fee}, nil
	}
	return TransferOutcome{Succeeded: true, Amount: amount, FeeCharged: fee}, nil
}
