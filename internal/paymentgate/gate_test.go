package paymentgate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Coffee-Network/coffee_ledger/internal/backend"
	"github.com/Coffee-Network/coffee_ledger/internal/domain/coffee"
	apperrors "github.com/Coffee-Network/coffee_ledger/internal/errors"
	"github.com/Coffee-Network/coffee_ledger/internal/principal"
	"github.com/Coffee-Network/coffee_ledger/internal/storage"
	"github.com/Coffee-Network/coffee_ledger/internal/storage/memory"
)

const (
	testOwner   = principal.Principal("owner-principal")
	testCaller  = principal.Principal("caller-principal")
	testService = "service-account"
)

type fakeBackend struct {
	mu           sync.Mutex
	balances     map[string]uint64
	fee          uint64
	rejectDetail string
	hold         chan struct{}
	transfers    int
}

func (b *fakeBackend) ResolveBalance(_ context.Context, accountRef string) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[accountRef], nil
}

func (b *fakeBackend) ResolveFee(context.Context) (uint64, error) {
	return b.fee, nil
}

func (b *fakeBackend) Transfer(_ context.Context, from, to string, amount, fee uint64) (backend.TransferOutcome, error) {
	if b.hold != nil {
		<-b.hold
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transfers++
	if b.rejectDetail != "" {
		return backend.TransferOutcome{Succeeded: false, ErrorDetail: b.rejectDetail}, nil
	}
	b.balances[from] -= amount + fee
	b.balances[to] += amount
	return backend.TransferOutcome{Succeeded: true, Amount: amount, FeeCharged: fee}, nil
}

type fakeToken struct {
	mu         sync.Mutex
	balances   map[string]uint64
	rejectInit bool
	initCalls  int
}

func (t *fakeToken) InitializeSupply(_ context.Context, _, seedAddress, _ string, totalSupply uint64) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.initCalls++
	if t.rejectInit {
		return false, nil
	}
	if t.balances == nil {
		t.balances = make(map[string]uint64)
	}
	t.balances[seedAddress] = totalSupply
	return true, nil
}

func (t *fakeToken) Transfer(_ context.Context, from, to string, amount uint64) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.balances[from] < amount {
		return false, nil
	}
	t.balances[from] -= amount
	t.balances[to] += amount
	return true, nil
}

func (t *fakeToken) Balance(_ context.Context, accountRef string) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balances[accountRef], nil
}

// failingStore rejects inserts so the orphan path can be exercised.
type failingStore struct {
	storage.CoffeeStore
}

func (failingStore) InsertCoffee(context.Context, coffee.Record) (coffee.Record, error) {
	return coffee.Record{}, errors.New("disk full")
}

type captureNotifier struct {
	mu   sync.Mutex
	recs []coffee.Record
}

func (n *captureNotifier) NotifyDonation(rec coffee.Record) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.recs = append(n.recs, rec)
}

func testSettings() Settings {
	return Settings{
		Owner:              testOwner,
		ServiceAccount:     testService,
		DefaultTransferFee: 10_000,
		FaucetAmount:       100,
		TokenName:          "ICToken",
		TokenTicker:        "ICT",
		TokenSupply:        1_000_000_000_000,
	}
}

func newTestGate(t *testing.T, deps Deps) (*Gate, *fakeBackend) {
	t.Helper()
	be := &fakeBackend{balances: make(map[string]uint64)}
	if deps.BackendFactory == nil {
		deps.BackendFactory = func(NetworkMode) (backend.ValueBackend, error) { return be, nil }
	}
	if deps.Token == nil {
		deps.Token = &fakeToken{}
	}
	g := New(testSettings(), deps)
	if err := g.Initialize(context.Background(), ModeLocal); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return g, be
}

func TestInitializeOnlyOnce(t *testing.T) {
	g, _ := newTestGate(t, Deps{})

	err := g.Initialize(context.Background(), ModeExternal)
	if !errors.Is(err, apperrors.AlreadyInitialized()) {
		t.Fatalf("second Initialize() error = %v, want AlreadyInitialized", err)
	}
	if mode, ok := g.Mode(); !ok || mode != ModeLocal {
		t.Fatalf("Mode() = %v, %v; want ModeLocal, true", mode, ok)
	}
}

func TestInitializeRejectsUnknownMode(t *testing.T) {
	g := New(testSettings(), Deps{Token: &fakeToken{}})
	if err := g.Initialize(context.Background(), NetworkMode(7)); err == nil {
		t.Fatal("Initialize(7) succeeded, want error")
	}
	if _, ok := g.Mode(); ok {
		t.Fatal("gate reported initialized after rejected mode")
	}
}

func TestInitializeRollsBackOnProvisioningFailure(t *testing.T) {
	tok := &fakeToken{rejectInit: true}
	be := &fakeBackend{balances: make(map[string]uint64)}
	g := New(testSettings(), Deps{
		Token:          tok,
		BackendFactory: func(NetworkMode) (backend.ValueBackend, error) { return be, nil },
	})

	if err := g.Initialize(context.Background(), ModeLocal); err == nil {
		t.Fatal("Initialize() succeeded despite rejected supply provisioning")
	}

	// A failed provisioning must leave the gate retryable.
	tok.rejectInit = false
	if err := g.Initialize(context.Background(), ModeLocal); err != nil {
		t.Fatalf("retried Initialize() error = %v", err)
	}
	if tok.initCalls != 2 {
		t.Fatalf("initCalls = %d, want 2", tok.initCalls)
	}
}

func TestDepositRecordsDonation(t *testing.T) {
	store := memory.New()
	notifier := &captureNotifier{}
	g, be := newTestGate(t, Deps{Store: store, Notifier: notifier})
	be.balances[testCaller.String()] = 500

	rec, err := g.Deposit(context.Background(), testCaller, coffee.Payload{
		Name:    "alice",
		Message: "great stream",
		Amount:  100,
	})
	if err != nil {
		t.Fatalf("Deposit() error = %v", err)
	}
	if rec.ID == "" || rec.Timestamp == 0 {
		t.Fatalf("Deposit() returned incomplete record: %+v", rec)
	}

	got, err := store.GetCoffee(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("GetCoffee(%s) error = %v", rec.ID, err)
	}
	if got.Amount != 100 || got.Name != "alice" {
		t.Fatalf("stored record = %+v", got)
	}
	if be.balances[testService] != 100 {
		t.Fatalf("service balance = %d, want 100", be.balances[testService])
	}
	if len(notifier.recs) != 1 {
		t.Fatalf("notifier received %d alerts, want 1", len(notifier.recs))
	}
}

func TestDepositRejectsExactBalance(t *testing.T) {
	g, be := newTestGate(t, Deps{})
	be.balances[testCaller.String()] = 100

	_, err := g.Deposit(context.Background(), testCaller, coffee.Payload{Name: "a", Amount: 100})
	if !errors.Is(err, apperrors.InsufficientFunds(0, 0)) {
		t.Fatalf("Deposit() error = %v, want InsufficientFunds", err)
	}
	if be.transfers != 0 {
		t.Fatalf("transfer attempted despite insufficient funds")
	}
}

func TestDepositTransferRejectedLeavesNoRecord(t *testing.T) {
	store := memory.New()
	g, be := newTestGate(t, Deps{Store: store})
	be.balances[testCaller.String()] = 500
	be.rejectDetail = "ledger rejected"

	_, err := g.Deposit(context.Background(), testCaller, coffee.Payload{Name: "a", Amount: 100})
	if !errors.Is(err, apperrors.TransferFailed("")) {
		t.Fatalf("Deposit() error = %v, want TransferFailed", err)
	}

	recs, err := store.ListCoffees(context.Background())
	if err != nil {
		t.Fatalf("ListCoffees() error = %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("store has %d records after failed transfer, want 0", len(recs))
	}
}

func TestDepositRequiresInitialization(t *testing.T) {
	g := New(testSettings(), Deps{Token: &fakeToken{}})

	_, err := g.Deposit(context.Background(), testCaller, coffee.Payload{Name: "a", Amount: 1})
	if !errors.Is(err, apperrors.NotInitialized()) {
		t.Fatalf("Deposit() error = %v, want NotInitialized", err)
	}
}

func TestDepositBusyGuard(t *testing.T) {
	g, be := newTestGate(t, Deps{})
	be.balances[testCaller.String()] = 500
	be.hold = make(chan struct{})

	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		close(started)
		_, err := g.Deposit(context.Background(), testCaller, coffee.Payload{Name: "a", Amount: 10})
		done <- err
	}()
	<-started
	// Wait until the first deposit is parked inside the backend.
	deadline := time.After(2 * time.Second)
	for {
		g.inflightMu.Lock()
		_, parked := g.inflight[testCaller.String()]
		g.inflightMu.Unlock()
		if parked {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first deposit never acquired the in-flight guard")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	_, err := g.Deposit(context.Background(), testCaller, coffee.Payload{Name: "b", Amount: 10})
	if !errors.Is(err, apperrors.Busy("")) {
		t.Fatalf("concurrent Deposit() error = %v, want Busy", err)
	}

	close(be.hold)
	if err := <-done; err != nil {
		t.Fatalf("first Deposit() error = %v", err)
	}

	// The guard is released after commit.
	if _, err := g.Deposit(context.Background(), testCaller, coffee.Payload{Name: "c", Amount: 10}); err != nil {
		t.Fatalf("followup Deposit() error = %v", err)
	}
}

func TestDepositJournalsOrphanedTransfer(t *testing.T) {
	g, be := newTestGate(t, Deps{Store: failingStore{memory.New()}})
	be.balances[testCaller.String()] = 500

	_, err := g.Deposit(context.Background(), testCaller, coffee.Payload{Name: "a", Amount: 100})
	if !errors.Is(err, apperrors.ReconciliationRequired(nil)) {
		t.Fatalf("Deposit() error = %v, want ReconciliationRequired", err)
	}

	// The transfer committed, so it must be journaled rather than lost.
	pending := g.Journal().Pending()
	if len(pending) != 1 {
		t.Fatalf("journal has %d orphans, want 1", len(pending))
	}
	if pending[0].Amount != 100 || pending[0].Account != testCaller.String() {
		t.Fatalf("orphan = %+v", pending[0])
	}
}

func TestWithdrawOwnerOnly(t *testing.T) {
	g, be := newTestGate(t, Deps{})
	be.balances[testService] = 500

	err := g.Withdraw(context.Background(), testCaller, "some-destination", 100)
	if !errors.Is(err, apperrors.Unauthorized("")) {
		t.Fatalf("Withdraw() by non-owner error = %v, want Unauthorized", err)
	}

	if err := g.Withdraw(context.Background(), testOwner, "some-destination", 100); err != nil {
		t.Fatalf("Withdraw() by owner error = %v", err)
	}
	if be.balances["some-destination"] != 100 {
		t.Fatalf("destination balance = %d, want 100", be.balances["some-destination"])
	}
}

func TestWithdrawRejectsExactBalance(t *testing.T) {
	g, be := newTestGate(t, Deps{})
	be.balances[testService] = 100

	err := g.Withdraw(context.Background(), testOwner, "dest", 100)
	if !errors.Is(err, apperrors.InsufficientFunds(0, 0)) {
		t.Fatalf("Withdraw() error = %v, want InsufficientFunds", err)
	}
}

func TestFaucetGrantsOnce(t *testing.T) {
	tok := &fakeToken{}
	g, _ := newTestGate(t, Deps{Token: tok})

	granted, err := g.Faucet(context.Background(), testCaller)
	if err != nil {
		t.Fatalf("Faucet() error = %v", err)
	}
	if granted != 100 {
		t.Fatalf("granted = %d, want 100", granted)
	}
	if bal, _ := tok.Balance(context.Background(), testCaller.String()); bal != 100 {
		t.Fatalf("caller token balance = %d, want 100", bal)
	}

	_, err = g.Faucet(context.Background(), testCaller)
	if !errors.Is(err, apperrors.FaucetAlreadyFunded()) {
		t.Fatalf("second Faucet() error = %v, want FaucetAlreadyFunded", err)
	}
}

func TestFaucetLocalModeOnly(t *testing.T) {
	be := &fakeBackend{balances: make(map[string]uint64)}
	g := New(testSettings(), Deps{
		Token:          &fakeToken{},
		BackendFactory: func(NetworkMode) (backend.ValueBackend, error) { return be, nil },
	})
	if err := g.Initialize(context.Background(), ModeExternal); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	_, err := g.Faucet(context.Background(), testCaller)
	if !errors.Is(err, apperrors.InvalidArgument("")) {
		t.Fatalf("Faucet() on external mode error = %v, want InvalidArgument", err)
	}
}

func TestWalletBalanceDefaultsToCaller(t *testing.T) {
	g, be := newTestGate(t, Deps{})
	be.balances[testCaller.String()] = 321
	be.balances["other"] = 42

	bal, err := g.WalletBalance(context.Background(), testCaller, "")
	if err != nil {
		t.Fatalf("WalletBalance() error = %v", err)
	}
	if bal != 321 {
		t.Fatalf("balance = %d, want 321", bal)
	}

	bal, err = g.WalletBalance(context.Background(), testCaller, "other")
	if err != nil {
		t.Fatalf("WalletBalance(other) error = %v", err)
	}
	if bal != 42 {
		t.Fatalf("balance = %d, want 42", bal)
	}
}
