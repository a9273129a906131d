package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/Coffee-Network/coffee_ledger/internal/alerts"
	"github.com/Coffee-Network/coffee_ledger/internal/config"
	"github.com/Coffee-Network/coffee_ledger/internal/httpapi"
	"github.com/Coffee-Network/coffee_ledger/internal/ledger"
	"github.com/Coffee-Network/coffee_ledger/internal/metrics"
	"github.com/Coffee-Network/coffee_ledger/internal/middleware"
	"github.com/Coffee-Network/coffee_ledger/internal/paymentgate"
	"github.com/Coffee-Network/coffee_ledger/internal/reconcile"
	"github.com/Coffee-Network/coffee_ledger/internal/records"
	"github.com/Coffee-Network/coffee_ledger/internal/storage"
	"github.com/Coffee-Network/coffee_ledger/internal/storage/memory"
	"github.com/Coffee-Network/coffee_ledger/internal/storage/postgres"
	redisstore "github.com/Coffee-Network/coffee_ledger/internal/storage/redis"
	"github.com/Coffee-Network/coffee_ledger/internal/token"
	"github.com/Coffee-Network/coffee_ledger/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault("main").WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := logger.New(os.Stderr, "coffee-ledger", level)

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("service exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	store, cleanup, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	ledgerClient, err := ledger.NewClient(ledger.Config{RPCURL: cfg.LedgerRPCURL})
	if err != nil {
		return err
	}
	tokenClient, err := token.NewClient(token.Config{RPCURL: cfg.TokenRPCURL})
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	hub := alerts.NewHub(log.Named("alerts"))
	go hub.Run()

	journal := reconcile.NewJournal()
	gate := paymentgate.New(paymentgate.Settings{
		Owner:              cfg.OwnerPrincipal(),
		ServiceAccount:     cfg.ServiceAccount,
		DefaultTransferFee: cfg.DefaultTransferFee,
		FaucetAmount:       cfg.FaucetAmount,
		TokenName:          cfg.TokenName,
		TokenTicker:        cfg.TokenTicker,
		TokenSupply:        cfg.TokenSupply,
	}, paymentgate.Deps{
		Store:          store,
		Journal:        journal,
		Token:          tokenClient,
		BackendFactory: paymentgate.DefaultBackendFactory(ledgerClient, tokenClient, cfg.DefaultTransferFee, log.Named("backend")),
		Metrics:        m,
		Notifier:       hub,
		Log:            log.Named("paymentgate"),
	})

	sweeper := reconcile.NewSweeper(journal, m, log.Named("reconcile"))
	sweeper.Start()
	defer sweeper.Stop()

	router := httpapi.NewRouter(httpapi.RouterDeps{
		Gate:          gate,
		Records:       records.New(store, log.Named("records")),
		Auth:          middleware.NewAuthMiddleware([]byte(cfg.JWTSecret), log.Named("auth")),
		Hub:           hub,
		Metrics:       m,
		Registry:      registry,
		FaucetLimiter: middleware.NewRateLimiter(cfg.FaucetRatePerMinute, cfg.FaucetBurst, log.Named("ratelimit")),
		Log:           log.Named("httpapi"),
	})

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// openStore picks the record store: postgres when a DSN is set, redis when a
// URL is set, otherwise the in-memory store.
func openStore(cfg *config.Config, log *logger.Logger) (storage.CoffeeStore, func(), error) {
	switch {
	case cfg.PostgresDSN != "":
		store, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		log.Info("using postgres record store")
		return store, func() { store.Close() }, nil

	case cfg.RedisURL != "":
		store, err := redisstore.Open(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		log.Info("using redis record store")
		return store, func() { store.Close() }, nil

	default:
		log.Info("using in-memory record store")
		return memory.New(), func() {}, nil
	}
}
