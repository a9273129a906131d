// Package httpapi exposes the command surface over REST.
package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Coffee-Network/coffee_ledger/internal/alerts"
	"github.com/Coffee-Network/coffee_ledger/internal/domain/coffee"
	apperrors "github.com/Coffee-Network/coffee_ledger/internal/errors"
	"github.com/Coffee-Network/coffee_ledger/internal/metrics"
	"github.com/Coffee-Network/coffee_ledger/internal/middleware"
	"github.com/Coffee-Network/coffee_ledger/internal/paymentgate"
	"github.com/Coffee-Network/coffee_ledger/internal/principal"
	"github.com/Coffee-Network/coffee_ledger/internal/records"
	"github.com/Coffee-Network/coffee_ledger/pkg/logger"
)

// handler bundles the HTTP endpoints.
type handler struct {
	gate    *paymentgate.Gate
	records *records.Service
	log     *logger.Logger
}

// RouterDeps carries everything the router needs. Hub, Metrics, Registry
// and FaucetLimiter may be nil; the corresponding endpoints or middleware
// are then omitted.
type RouterDeps struct {
	Gate          *paymentgate.Gate
	Records       *records.Service
	Auth          *middleware.AuthMiddleware
	Hub           *alerts.Hub
	Metrics       *metrics.Metrics
	Registry      *prometheus.Registry
	FaucetLimiter *middleware.RateLimiter
	Log           *logger.Logger
}

// NewRouter builds the REST command surface.
func NewRouter(deps RouterDeps) *mux.Router {
	log := deps.Log
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{gate: deps.Gate, records: deps.Records, log: log}

	r := mux.NewRouter()
	r.Use(middleware.LoggingMiddleware(log))
	if deps.Metrics != nil {
		r.Use(middleware.MetricsMiddleware(deps.Metrics))
	}

	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	if deps.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	v1 := r.PathPrefix("/v1").Subrouter()
	authed := func(next http.HandlerFunc) http.Handler {
		return deps.Auth.Handler(next)
	}

	v1.HandleFunc("/initialize", h.initialize).Methods(http.MethodPost)

	v1.HandleFunc("/coffees", h.listCoffees).Methods(http.MethodGet)
	v1.Handle("/coffees", authed(h.deposit)).Methods(http.MethodPost)
	v1.HandleFunc("/coffees/search", h.searchCoffees).Methods(http.MethodGet)
	v1.HandleFunc("/coffees/page", h.pageCoffees).Methods(http.MethodGet)
	v1.HandleFunc("/coffees/{id}", h.getCoffee).Methods(http.MethodGet)
	v1.Handle("/coffees/{id}", authed(h.updateCoffee)).Methods(http.MethodPatch)
	v1.Handle("/coffees/{id}", authed(h.deleteCoffee)).Methods(http.MethodDelete)

	v1.Handle("/withdraw", authed(h.withdraw)).Methods(http.MethodPost)
	v1.Handle("/wallet/balance", authed(h.walletBalance)).Methods(http.MethodGet)
	v1.HandleFunc("/address/{principal}", h.resolveAddress).Methods(http.MethodGet)
	v1.Handle("/reconciliation", authed(h.listOrphans)).Methods(http.MethodGet)

	faucet := http.Handler(http.HandlerFunc(h.faucet))
	if deps.FaucetLimiter != nil {
		faucet = deps.FaucetLimiter.Handler(faucet)
	}
	v1.Handle("/faucet", deps.Auth.Handler(faucet)).Methods(http.MethodPost)

	if deps.Hub != nil {
		v1.Handle("/alerts", deps.Hub).Methods(http.MethodGet)
	}

	return r
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) initialize(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Network int8 `json:"network"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, apperrors.InvalidArgument(err.Error()))
		return
	}

	mode, err := paymentgate.ParseMode(payload.Network)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.gate.Initialize(r.Context(), mode); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "initialized", "mode": mode.String()})
}

func (h *handler) deposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		writeError(w, apperrors.Unauthorized("missing caller identity"))
		return
	}

	var payload coffee.Payload
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, apperrors.InvalidArgument(err.Error()))
		return
	}

	rec, err := h.gate.Deposit(r.Context(), caller, payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *handler) withdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		writeError(w, apperrors.Unauthorized("missing caller identity"))
		return
	}

	var payload struct {
		To     string `json:"to"`
		Amount uint64 `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, apperrors.InvalidArgument(err.Error()))
		return
	}

	if err := h.gate.Withdraw(r.Context(), caller, payload.To, payload.Amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) faucet(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		writeError(w, apperrors.Unauthorized("missing caller identity"))
		return
	}

	granted, err := h.gate.Faucet(r.Context(), caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"granted": granted})
}

func (h *handler) walletBalance(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		writeError(w, apperrors.Unauthorized("missing caller identity"))
		return
	}

	balance, err := h.gate.WalletBalance(r.Context(), caller, r.URL.Query().Get("address"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"balance": balance})
}

func (h *handler) resolveAddress(w http.ResponseWriter, r *http.Request) {
	text := mux.Vars(r)["principal"]
	p, err := principal.FromText(text)
	if err != nil {
		writeError(w, apperrors.InvalidArgument(err.Error()))
		return
	}
	address, err := principal.AccountIdentifier(p, 0)
	if err != nil {
		writeError(w, apperrors.InvalidArgument(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": address})
}

func (h *handler) listOrphans(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok || !h.gate.IsOwner(caller) {
		writeError(w, apperrors.Unauthorized("only owner can inspect reconciliation state"))
		return
	}
	writeJSON(w, http.StatusOK, h.gate.Journal().Pending())
}

func (h *handler) getCoffee(w http.ResponseWriter, r *http.Request) {
	rec, err := h.records.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handler) listCoffees(w http.ResponseWriter, r *http.Request) {
	recs, err := h.records.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *handler) deleteCoffee(w http.ResponseWriter, r *http.Request) {
	rec, err := h.records.Delete(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handler) updateCoffee(w http.ResponseWriter, r *http.Request) {
	var patch coffee.Patch
	if err := decodeJSON(r.Body, &patch); err != nil {
		writeError(w, apperrors.InvalidArgument(err.Error()))
		return
	}

	rec, err := h.records.Update(r.Context(), mux.Vars(r)["id"], patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handler) searchCoffees(w http.ResponseWriter, r *http.Request) {
	criteria := coffee.SearchCriteria{
		Name:    r.URL.Query().Get("name"),
		Message: r.URL.Query().Get("message"),
	}
	recs, err := h.records.Search(r.Context(), criteria)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *handler) pageCoffees(w http.ResponseWriter, r *http.Request) {
	pageSize, err := queryInt(r, "size")
	if err != nil {
		writeError(w, apperrors.InvalidArgument(err.Error()))
		return
	}
	page, err := queryInt(r, "page")
	if err != nil {
		writeError(w, apperrors.InvalidArgument(err.Error()))
		return
	}

	recs, err := h.records.Page(r.Context(), pageSize, page)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, fmt.Errorf("query parameter %q is required", key)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("query parameter %q must be an integer", key)
	}
	return v, nil
}

func decodeJSON(body io.Reader, dst any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	serviceErr := apperrors.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = apperrors.Internal("unexpected error", err)
	}
	writeJSON(w, serviceErr.HTTPStatus, map[string]any{"error": serviceErr})
}
