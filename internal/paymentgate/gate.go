// Package paymentgate orchestrates deposits, withdrawals and the faucet
// through whichever value backend the initialization gate selected.
//
// Every backend call is a suspension point: other operations may fully
// execute against the record store and the service's holding account while
// a call is in flight. A balance check is therefore not a lock. The gate
// compensates with a per-account in-flight guard: it is acquired before the
// first backend call of an operation and released only after commit or
// failure, and a second operation for the same account meanwhile fails with
// Busy instead of interleaving.
package paymentgate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Coffee-Network/coffee_ledger/internal/backend"
	"github.com/Coffee-Network/coffee_ledger/internal/domain/coffee"
	apperrors "github.com/Coffee-Network/coffee_ledger/internal/errors"
	"github.com/Coffee-Network/coffee_ledger/internal/ledger"
	"github.com/Coffee-Network/coffee_ledger/internal/metrics"
	"github.com/Coffee-Network/coffee_ledger/internal/principal"
	"github.com/Coffee-Network/coffee_ledger/internal/reconcile"
	"github.com/Coffee-Network/coffee_ledger/internal/storage"
	"github.com/Coffee-Network/coffee_ledger/internal/storage/memory"
	"github.com/Coffee-Network/coffee_ledger/internal/token"
	"github.com/Coffee-Network/coffee_ledger/pkg/logger"
)

// TokenProcess is the slice of the test-token client the gate calls
// directly (supply provisioning and the faucet).
type TokenProcess interface {
	InitializeSupply(ctx context.Context, name, seedAddress, ticker string, totalSupply uint64) (bool, error)
	Transfer(ctx context.Context, from, to string, amount uint64) (bool, error)
	Balance(ctx context.Context, accountRef string) (uint64, error)
}

// Notifier is told about every committed donation.
type Notifier interface {
	NotifyDonation(rec coffee.Record)
}

// Settings is the immutable portion of the gate's configuration, fixed at
// process start.
type Settings struct {
	Owner              principal.Principal
	ServiceAccount     string
	DefaultTransferFee uint64
	FaucetAmount       uint64
	TokenName          string
	TokenTicker        string
	TokenSupply        uint64
}

// Deps bundles the gate's collaborators. Nil fields default: Store to the
// in-memory store, Journal to a fresh journal, Clock to time.Now, NewID to
// uuid.NewString.
type Deps struct {
	Store          storage.CoffeeStore
	Journal        *reconcile.Journal
	Token          TokenProcess
	BackendFactory func(mode NetworkMode) (backend.ValueBackend, error)
	Metrics        *metrics.Metrics
	Notifier       Notifier
	Log            *logger.Logger
	Clock          func() time.Time
	NewID          func() string
}

type initState int8

const (
	stateUninitialized initState = iota
	stateInitializing
	stateInitialized
)

// Gate is the payment-gated entry point for all value movement.
type Gate struct {
	settings Settings
	store    storage.CoffeeStore
	journal  *reconcile.Journal
	token    TokenProcess
	factory  func(mode NetworkMode) (backend.ValueBackend, error)
	metrics  *metrics.Metrics
	notifier Notifier
	log      *logger.Logger
	now      func() time.Time
	newID    func() string

	mu      sync.Mutex
	state   initState
	mode    NetworkMode
	backend backend.ValueBackend

	inflightMu sync.Mutex
	inflight   map[string]struct{}
}

// New constructs a gate. See Deps for defaulting rules.
func New(settings Settings, deps Deps) *Gate {
	if deps.Store == nil {
		deps.Store = memory.New()
	}
	if deps.Journal == nil {
		deps.Journal = reconcile.NewJournal()
	}
	if deps.Log == nil {
		deps.Log = logger.NewDefault("paymentgate")
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	return &Gate{
		settings: settings,
		store:    deps.Store,
		journal:  deps.Journal,
		token:    deps.Token,
		factory:  deps.BackendFactory,
		metrics:  deps.Metrics,
		notifier: deps.Notifier,
		log:      deps.Log,
		now:      deps.Clock,
		newID:    deps.NewID,
		inflight: make(map[string]struct{}),
	}
}

// DefaultBackendFactory builds the production backend for each mode from
// the two process clients.
func DefaultBackendFactory(ledgerClient *ledger.Client, tokenClient *token.Client, defaultFee uint64, log *logger.Logger) func(mode NetworkMode) (backend.ValueBackend, error) {
	return func(mode NetworkMode) (backend.ValueBackend, error) {
		switch mode {
		case ModeLocal:
			return backend.NewLocalTokenBackend(tokenClient), nil
		case ModeExternal:
			return backend.NewExternalLedgerBackend(ledgerClient, defaultFee, log), nil
		default:
			return nil, fmt.Errorf("unknown network mode %d", mode)
		}
	}
}

// Store exposes the record store backing the gate.
func (g *Gate) Store() storage.CoffeeStore { return g.store }

// Journal exposes the reconciliation journal.
func (g *Gate) Journal() *reconcile.Journal { return g.journal }

// IsOwner reports whether identity is the configured owner. Pure equality;
// the owner never changes after deployment.
func (g *Gate) IsOwner(identity principal.Principal) bool {
	return identity.Equal(g.settings.Owner)
}

// Mode returns the selected network mode and whether initialization has
// completed.
func (g *Gate) Mode() (NetworkMode, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mode, g.state == stateInitialized
}

// Initialize selects the network mode, exactly once per process lifetime.
// Local mode provisions the test-token supply before reporting success; a
// failed provisioning leaves the gate uninitialized so the call can be
// retried. Any concurrent or subsequent call fails with AlreadyInitialized
// and does not alter the mode.
func (g *Gate) Initialize(ctx context.Context, mode NetworkMode) error {
	if _, err := ParseMode(int8(mode)); err != nil {
		return err
	}

	g.mu.Lock()
	if g.state != stateUninitialized {
		g.mu.Unlock()
		return apperrors.AlreadyInitialized()
	}
	g.state = stateInitializing
	g.mu.Unlock()

	fail := func(err error) error {
		g.mu.Lock()
		g.state = stateUninitialized
		g.mu.Unlock()
		return err
	}

	if mode == ModeLocal {
		if g.token == nil {
			return fail(fmt.Errorf("no token process configured"))
		}
		ok, err := g.token.InitializeSupply(ctx, g.settings.TokenName, g.settings.ServiceAccount, g.settings.TokenTicker, g.settings.TokenSupply)
		if err != nil {
			return fail(fmt.Errorf("provision token supply: %w", err))
		}
		if !ok {
			return fail(apperrors.TransferFailed("token supply provisioning rejected"))
		}
	}

	be, err := g.factory(mode)
	if err != nil {
		return fail(err)
	}

	g.mu.Lock()
	g.mode = mode
	g.backend = be
	g.state = stateInitialized
	g.mu.Unlock()

	g.log.Infof("initialized in %s mode", mode)
	return nil
}

// activeBackend returns the selected backend, or NotInitialized.
func (g *Gate) activeBackend() (backend.ValueBackend, NetworkMode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != stateInitialized {
		return nil, 0, apperrors.NotInitialized()
	}
	return g.backend, g.mode, nil
}

// acquire takes the in-flight guard for key. The returned release func must
// be called once the operation commits or fails.
func (g *Gate) acquire(key string) (func(), error) {
	g.inflightMu.Lock()
	defer g.inflightMu.Unlock()
	if _, busy := g.inflight[key]; busy {
		return nil, apperrors.Busy(key)
	}
	g.inflight[key] = struct{}{}
	return func() {
		g.inflightMu.Lock()
		delete(g.inflight, key)
		g.inflightMu.Unlock()
	}, nil
}

// Deposit moves amount from the caller to the service's account and records
// the donation. The caller's balance must be strictly greater than the
// amount; transferring an exact full balance is rejected, matching the
// ledger's fee headroom requirement.
func (g *Gate) Deposit(ctx context.Context, caller principal.Principal, payload coffee.Payload) (coffee.Record, error) {
	if payload.Amount == 0 {
		return coffee.Record{}, apperrors.InvalidArgument("amount must be positive")
	}

	be, _, err := g.activeBackend()
	if err != nil {
		return coffee.Record{}, err
	}

	callerRef := caller.String()
	release, err := g.acquire(callerRef)
	if err != nil {
		return coffee.Record{}, err
	}
	defer release()

	balance, err := be.ResolveBalance(ctx, callerRef)
	if err != nil {
		return coffee.Record{}, err
	}
	if balance <= payload.Amount {
		return coffee.Record{}, apperrors.InsufficientFunds(balance, payload.Amount)
	}

	fee, err := be.ResolveFee(ctx)
	if err != nil {
		return coffee.Record{}, err
	}

	outcome, err := be.Transfer(ctx, callerRef, g.settings.ServiceAccount, payload.Amount, fee)
	if err != nil {
		return coffee.Record{}, err
	}
	if g.metrics != nil {
		g.metrics.RecordTransfer("deposit", outcome.Succeeded)
	}
	if !outcome.Succeeded {
		return coffee.Record{}, apperrors.TransferFailed(outcome.ErrorDetail)
	}

	rec := coffee.Record{
		ID:        g.newID(),
		Name:      payload.Name,
		Message:   payload.Message,
		Amount:    payload.Amount,
		Timestamp: uint64(g.now().UnixNano()),
	}
	inserted, err := g.store.InsertCoffee(ctx, rec)
	if err != nil {
		// The transfer already committed; losing the record would silently
		// drop recorded funds. Journal the orphan and surface it.
		g.journal.Record(reconcile.Orphan{
			ID:      rec.ID,
			Account: callerRef,
			Amount:  payload.Amount,
			Fee:     outcome.FeeCharged,
			Detail:  err.Error(),
		})
		if g.metrics != nil {
			g.metrics.SetOrphanedTransfers(g.journal.Len())
		}
		g.log.WithError(err).Errorf("record write failed after committed transfer %s", rec.ID)
		return coffee.Record{}, apperrors.ReconciliationRequired(err)
	}

	if g.metrics != nil {
		g.metrics.RecordDeposit()
	}
	if g.notifier != nil {
		g.notifier.NotifyDonation(inserted)
	}
	g.log.Infof("recorded donation %s of %d", inserted.ID, inserted.Amount)
	return inserted, nil
}

// Withdraw moves amount from the service's account to an arbitrary
// destination. Only the configured owner may call it.
func (g *Gate) Withdraw(ctx context.Context, requester principal.Principal, to string, amount uint64) error {
	if !g.IsOwner(requester) {
		return apperrors.Unauthorized("only owner can withdraw funds")
	}
	if amount == 0 {
		return apperrors.InvalidArgument("amount must be positive")
	}
	if to == "" {
		return apperrors.InvalidArgument("destination is required")
	}

	be, _, err := g.activeBackend()
	if err != nil {
		return err
	}

	// Withdrawals debit the service's holding account, so they serialize on
	// it rather than on the requester.
	release, err := g.acquire(g.settings.ServiceAccount)
	if err != nil {
		return err
	}
	defer release()

	balance, err := be.ResolveBalance(ctx, g.settings.ServiceAccount)
	if err != nil {
		return err
	}
	if balance <= amount {
		return apperrors.InsufficientFunds(balance, amount)
	}

	fee, err := be.ResolveFee(ctx)
	if err != nil {
		return err
	}

	outcome, err := be.Transfer(ctx, g.settings.ServiceAccount, to, amount, fee)
	if err != nil {
		return err
	}
	if g.metrics != nil {
		g.metrics.RecordTransfer("withdraw", outcome.Succeeded)
	}
	if !outcome.Succeeded {
		return apperrors.TransferFailed(outcome.ErrorDetail)
	}

	if g.metrics != nil {
		g.metrics.RecordWithdrawal()
	}
	g.log.Infof("withdrew %d to %s", amount, to)
	return nil
}

// Faucet grants the fixed top-up amount to a caller holding zero tokens.
// Any positive balance fails with FaucetAlreadyFunded so the faucet cannot
// be drained. Only available in local mode.
func (g *Gate) Faucet(ctx context.Context, caller principal.Principal) (uint64, error) {
	_, mode, err := g.activeBackend()
	if err != nil {
		return 0, err
	}
	if mode != ModeLocal {
		return 0, apperrors.InvalidArgument("faucet is only available on the local network")
	}

	callerRef := caller.String()
	release, err := g.acquire(callerRef)
	if err != nil {
		return 0, err
	}
	defer release()

	balance, err := g.token.Balance(ctx, callerRef)
	if err != nil {
		return 0, err
	}
	if balance > 0 {
		return 0, apperrors.FaucetAlreadyFunded()
	}

	ok, err := g.token.Transfer(ctx, g.settings.ServiceAccount, callerRef, g.settings.FaucetAmount)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, apperrors.TransferFailed("token process rejected faucet transfer")
	}

	if g.metrics != nil {
		g.metrics.RecordFaucetGrant()
	}
	g.log.Infof("faucet granted %d to %s", g.settings.FaucetAmount, callerRef)
	return g.settings.FaucetAmount, nil
}

// WalletBalance resolves the balance of the given account reference through
// the active backend. An empty reference resolves to the caller.
func (g *Gate) WalletBalance(ctx context.Context, caller principal.Principal, accountRef string) (uint64, error) {
	be, _, err := g.activeBackend()
	if err != nil {
		return 0, err
	}
	if accountRef == "" {
		accountRef = caller.String()
	}
	return be.ResolveBalance(ctx, accountRef)
}
