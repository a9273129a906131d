package httpapi

import (
	"context"
	"encoding/base32"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Coffee-Network/coffee_ledger/internal/backend"
	"github.com/Coffee-Network/coffee_ledger/internal/domain/coffee"
	"github.com/Coffee-Network/coffee_ledger/internal/middleware"
	"github.com/Coffee-Network/coffee_ledger/internal/paymentgate"
	"github.com/Coffee-Network/coffee_ledger/internal/principal"
	"github.com/Coffee-Network/coffee_ledger/internal/records"
	"github.com/Coffee-Network/coffee_ledger/internal/storage/memory"
)

var testSecret = []byte("test-secret")

type stubBackend struct {
	balances map[string]uint64
}

func (b *stubBackend) ResolveBalance(_ context.Context, ref string) (uint64, error) {
	return b.balances[ref], nil
}

func (b *stubBackend) ResolveFee(context.Context) (uint64, error) { return 0, nil }

func (b *stubBackend) Transfer(_ context.Context, from, to string, amount, fee uint64) (backend.TransferOutcome, error) {
	b.balances[from] -= amount + fee
	b.balances[to] += amount
	return backend.TransferOutcome{Succeeded: true, Amount: amount, FeeCharged: fee}, nil
}

type stubToken struct {
	balances map[string]uint64
}

func (t *stubToken) InitializeSupply(_ context.Context, _, seedAddress, _ string, totalSupply uint64) (bool, error) {
	t.balances[seedAddress] = totalSupply
	return true, nil
}

func (t *stubToken) Transfer(_ context.Context, from, to string, amount uint64) (bool, error) {
	if t.balances[from] < amount {
		return false, nil
	}
	t.balances[from] -= amount
	t.balances[to] += amount
	return true, nil
}

func (t *stubToken) Balance(_ context.Context, ref string) (uint64, error) {
	return t.balances[ref], nil
}

func makePrincipal(t *testing.T, body []byte) principal.Principal {
	t.Helper()
	buf := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(buf[:4], crc32.ChecksumIEEE(body))
	copy(buf[4:], body)
	text := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf)

	p, err := principal.FromText(text)
	if err != nil {
		t.Fatalf("FromText() error = %v", err)
	}
	return p
}

type fixture struct {
	router http.Handler
	be     *stubBackend
	owner  principal.Principal
	donor  principal.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	owner := makePrincipal(t, []byte{1, 1, 1, 1})
	donor := makePrincipal(t, []byte{2, 2, 2, 2})

	be := &stubBackend{balances: make(map[string]uint64)}
	store := memory.New()
	gate := paymentgate.New(paymentgate.Settings{
		Owner:          owner,
		ServiceAccount: "service-account",
		FaucetAmount:   100,
		TokenName:      "ICToken",
		TokenTicker:    "ICT",
		TokenSupply:    1_000_000,
	}, paymentgate.Deps{
		Store:          store,
		Token:          &stubToken{balances: make(map[string]uint64)},
		BackendFactory: func(paymentgate.NetworkMode) (backend.ValueBackend, error) { return be, nil },
	})

	router := NewRouter(RouterDeps{
		Gate:    gate,
		Records: records.New(store, nil),
		Auth:    middleware.NewAuthMiddleware(testSecret, nil),
	})
	return &fixture{router: router, be: be, owner: owner, donor: donor}
}

func (f *fixture) do(t *testing.T, method, path, body string, as principal.Principal) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if as != "" {
		token, err := middleware.IssueToken(testSecret, as)
		if err != nil {
			t.Fatalf("IssueToken() error = %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func (f *fixture) initialize(t *testing.T) {
	t.Helper()
	rr := f.do(t, http.MethodPost, "/v1/initialize", `{"network":0}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("initialize status = %d, body = %s", rr.Code, rr.Body.String())
	}
}

func TestInitializeEndpoint(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)

	rr := f.do(t, http.MethodPost, "/v1/initialize", `{"network":1}`, "")
	if rr.Code != http.StatusConflict {
		t.Fatalf("second initialize status = %d, want 409", rr.Code)
	}

	rr = f.do(t, http.MethodPost, "/v1/initialize", `{"network":9}`, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad mode status = %d, want 400", rr.Code)
	}
}

func TestDepositFlow(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	f.be.balances[f.donor.String()] = 1_000

	rr := f.do(t, http.MethodPost, "/v1/coffees", `{"name":"alice","message":"cheers","amount":250}`, f.donor)
	if rr.Code != http.StatusCreated {
		t.Fatalf("deposit status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var rec coffee.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if rec.ID == "" || rec.Amount != 250 {
		t.Fatalf("record = %+v", rec)
	}

	rr = f.do(t, http.MethodGet, "/v1/coffees/"+rec.ID, "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}

	rr = f.do(t, http.MethodGet, "/v1/coffees", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	var recs []coffee.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &recs); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("list has %d records, want 1", len(recs))
	}
}

func TestDepositRequiresBearerToken(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)

	rr := f.do(t, http.MethodPost, "/v1/coffees", `{"name":"a","amount":1}`, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestDepositInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	f.be.balances[f.donor.String()] = 50

	rr := f.do(t, http.MethodPost, "/v1/coffees", `{"name":"a","amount":50}`, f.donor)
	if rr.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402, body = %s", rr.Code, rr.Body.String())
	}
}

func TestWithdrawEndpoint(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	f.be.balances["service-account"] = 500

	rr := f.do(t, http.MethodPost, "/v1/withdraw", `{"to":"dest","amount":100}`, f.donor)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("non-owner withdraw status = %d, want 403", rr.Code)
	}

	rr = f.do(t, http.MethodPost, "/v1/withdraw", `{"to":"dest","amount":100}`, f.owner)
	if rr.Code != http.StatusOK {
		t.Fatalf("owner withdraw status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if f.be.balances["dest"] != 100 {
		t.Fatalf("destination balance = %d, want 100", f.be.balances["dest"])
	}
}

func TestFaucetEndpoint(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)

	rr := f.do(t, http.MethodPost, "/v1/faucet", "", f.donor)
	if rr.Code != http.StatusOK {
		t.Fatalf("faucet status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var resp map[string]uint64
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["granted"] != 100 {
		t.Fatalf("granted = %d, want 100", resp["granted"])
	}

	rr = f.do(t, http.MethodPost, "/v1/faucet", "", f.donor)
	if rr.Code != http.StatusConflict {
		t.Fatalf("second faucet status = %d, want 409", rr.Code)
	}
}

func TestSearchAndPageEndpoints(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	f.be.balances[f.donor.String()] = 10_000

	for i := 0; i < 3; i++ {
		body := fmt.Sprintf(`{"name":"donor-%d","message":"msg","amount":10}`, i)
		if rr := f.do(t, http.MethodPost, "/v1/coffees", body, f.donor); rr.Code != http.StatusCreated {
			t.Fatalf("seed deposit %d status = %d", i, rr.Code)
		}
	}

	rr := f.do(t, http.MethodGet, "/v1/coffees/search?name=donor-1", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("search status = %d", rr.Code)
	}
	var recs []coffee.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &recs); err != nil {
		t.Fatalf("decode search: %v", err)
	}
	if len(recs) != 1 || recs[0].Name != "donor-1" {
		t.Fatalf("search results = %+v", recs)
	}

	rr = f.do(t, http.MethodGet, "/v1/coffees/page?size=2&page=2", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("page status = %d", rr.Code)
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &recs); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("page 2 has %d records, want 1", len(recs))
	}

	rr = f.do(t, http.MethodGet, "/v1/coffees/page?size=0&page=1", "", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid page status = %d, want 400", rr.Code)
	}
}

func TestUpdateAndDeleteEndpoints(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	f.be.balances[f.donor.String()] = 1_000

	rr := f.do(t, http.MethodPost, "/v1/coffees", `{"name":"old","message":"m","amount":10}`, f.donor)
	if rr.Code != http.StatusCreated {
		t.Fatalf("deposit status = %d", rr.Code)
	}
	var rec coffee.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}

	rr = f.do(t, http.MethodPatch, "/v1/coffees/"+rec.ID, `{"name":"new"}`, f.donor)
	if rr.Code != http.StatusOK {
		t.Fatalf("patch status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var updated coffee.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode updated: %v", err)
	}
	if updated.Name != "new" || updated.Amount != 10 {
		t.Fatalf("updated = %+v", updated)
	}

	rr = f.do(t, http.MethodDelete, "/v1/coffees/"+rec.ID, "", f.donor)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rr.Code)
	}

	rr = f.do(t, http.MethodGet, "/v1/coffees/"+rec.ID, "", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", rr.Code)
	}
}

func TestResolveAddressEndpoint(t *testing.T) {
	f := newFixture(t)

	rr := f.do(t, http.MethodGet, "/v1/address/"+f.donor.String(), "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp["address"]) != 64 {
		t.Fatalf("address = %q, want 64 hex chars", resp["address"])
	}

	rr = f.do(t, http.MethodGet, "/v1/address/not!base32", "", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad principal status = %d, want 400", rr.Code)
	}
}

func TestWalletBalanceEndpoint(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	f.be.balances[f.donor.String()] = 777

	rr := f.do(t, http.MethodGet, "/v1/wallet/balance", "", f.donor)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var resp map[string]uint64
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["balance"] != 777 {
		t.Fatalf("balance = %d, want 777", resp["balance"])
	}
}

func TestOperationsBeforeInitialize(t *testing.T) {
	f := newFixture(t)
	f.be.balances[f.donor.String()] = 1_000

	rr := f.do(t, http.MethodPost, "/v1/coffees", `{"name":"a","amount":10}`, f.donor)
	if rr.Code != http.StatusConflict {
		t.Fatalf("deposit before initialize status = %d, want 409", rr.Code)
	}
}
