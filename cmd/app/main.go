// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"upi-autopay-subscription/internal/config"
	"upi-autopay-subscription/internal/domain/ports/adapter"
	payAdapters "upi-autopay-subscription/internal/infra/adapters/payment"
	"upi-autopay-subscription/internal/infra/api"
	"upi-autopay-subscription/internal/infra/db"
	"upi-autopay-subscription/internal/infra/lock"
	"upi-autopay-subscription/internal/infra/logging"
	"upi-autopay-subscription/internal/infra/metrics"
	"upi-autopay-subscription/internal/infra/qr"
	red "upi-autopay-subscription/internal/infra/redis"
	"upi-autopay-subscription/internal/infra/sched"
	"upi-autopay-subscription/internal/infra/scheduler"
	"upi-autopay-subscription/internal/usecase"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "developer mode: console logs, relaxed secrets, simulated provider allowed")
	mintFor := flag.String("mint-admin-token", "", "print an admin JWT for the given operator name and exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	if *mintFor != "" {
		auth := api.NewAuthManager(cfg.Security.AdminJWTSecret, 24*time.Hour)
		if auth == nil {
			logger.Fatal().Msg("ADMIN_JWT_SECRET is not set")
		}
		tok, err := auth.Mint(*mintFor)
		if err != nil {
			logger.Fatal().Err(err).Msg("mint admin token")
		}
		fmt.Println(tok)
		return
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("exit")
	}
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	// ---- Store ----
	store, err := db.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info().Str("backend", store.Backend).Msg("store connected")

	// ---- Locker ----
	locker, closeLocker, err := newLocker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLocker()

	// ---- Provider ----
	provider, charger, err := newProvider(cfg, logger)
	if err != nil {
		return err
	}
	logger.Info().Str("provider", provider.Name()).Bool("charger", charger != nil).Msg("payment provider ready")

	// ---- Use cases ----
	now := time.Now
	mandateUC := usecase.NewMandateUseCase(store.Stores, provider, charger, locker, qr.New(0), usecase.MandateConfig{
		MerchantVPA:       cfg.Merchant.UPIID,
		MerchantName:      cfg.Merchant.Name,
		MerchantCode:      cfg.Merchant.Code,
		Amount:            cfg.SubscriptionAmount(),
		Currency:          "INR",
		PlanID:            cfg.Razorpay.PlanID,
		TotalCount:        cfg.Subscription.TotalCount,
		CallbackURL:       strings.TrimRight(cfg.Server.APIBaseURL, "/") + "/api/upi-mandates/callback",
		KeySecret:         cfg.Razorpay.KeySecret,
		ProviderTimeout:   cfg.Razorpay.Timeout,
		LockTTL:           cfg.Redis.LockTTL,
		MaxFailedAttempts: cfg.Scheduler.MaxFailedAttempts,
		Dev:               cfg.Runtime.Dev,
		Now:               now,
	}, logger)
	userUC := usecase.NewUserUseCase(store.Stores.Users, locker, cfg.Subscription.TrialDays, cfg.Redis.LockTTL, now, logger)
	paymentUC := usecase.NewPaymentUseCase(store.Stores, provider, locker, usecase.PaymentConfig{
		KeySecret: cfg.Razorpay.KeySecret,
		Amount:    cfg.SubscriptionAmount(),
		Currency:  "INR",
		LockTTL:   cfg.Redis.LockTTL,
		Now:       now,
	}, logger)
	webhookUC := usecase.NewWebhookUseCase(store.Stores, mandateUC, provider, locker, cfg.Razorpay.WebhookSecret, cfg.Redis.LockTTL, now, logger)
	billingUC := usecase.NewBillingUseCase(store.Stores.Mandates, mandateUC, usecase.BillingConfig{
		BatchSize:   cfg.Scheduler.BatchSize,
		TickTimeout: cfg.Scheduler.TickTimeout,
		Now:         now,
	}, logger)
	adminUC := usecase.NewAdminUseCase(store.Stores.Users, store.Stores.Mandates, store.Stores.TM, mandateUC, locker, cfg.Redis.LockTTL, now, logger)
	reconcileUC := usecase.NewReconcileUseCase(store.Stores.Reconciliations, provider, cfg.Razorpay.Timeout, cfg.Scheduler.ReconcileMaxTries, now, logger)

	// ---- Workers ----
	chargeSched, err := scheduler.NewDaily("charge", cfg.Scheduler.ChargeTime, cfg.ChargeLocation(),
		cfg.Scheduler.TickTimeout+time.Minute, sched.NewChargeWorker(billingUC, logger), logger)
	if err != nil {
		return err
	}
	workers := []*scheduler.Scheduler{
		chargeSched,
		scheduler.NewInterval("expiry", cfg.Scheduler.ExpiryInterval, time.Minute,
			sched.NewExpiryWorker(mandateUC, userUC, 200, logger), logger),
		scheduler.NewInterval("reconcile", cfg.Scheduler.ReconcileInterval, time.Minute,
			sched.NewReconcileWorker(reconcileUC, 50, logger), logger),
	}
	for _, w := range workers {
		w.Start(ctx)
	}
	defer func() {
		for _, w := range workers {
			w.Stop()
		}
	}()

	// ---- HTTP ----
	srv := api.NewServer(api.Deps{
		Mandates: mandateUC,
		Webhooks: webhookUC,
		Billing:  billingUC,
		Payments: paymentUC,
		Users:    userUC,
		Admin:    adminUC,
		Auth:     api.NewAuthManager(cfg.Security.AdminJWTSecret, 12*time.Hour),
		Health:   store.Health,
	}, api.Options{
		FrontendURL:    cfg.Server.FrontendURL,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Razorpay.Timeout + 20*time.Second,
		Dev:            cfg.Runtime.Dev,
	}, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)))
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("http shutdown")
	}
	logger.Info().Msg("bye")
	return nil
}

// newLocker prefers Redis and falls back to an in-process lock, which is only safe for one replica.
func newLocker(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (adapter.Locker, func(), error) {
	if cfg.Redis.URL == "" {
		logger.Warn().Msg("REDIS_URL not set; using in-process locks (single replica only)")
		return lock.NewMemoryLocker(), func() {}, nil
	}
	client, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return red.NewLocker(client), func() { _ = client.Close() }, nil
}

// newProvider returns the Razorpay adapter when keys are configured. The simulated provider is
// used without keys in dev mode, and as the charger when SIMULATED_CHARGES is on.
func newProvider(cfg *config.Config, logger *zerolog.Logger) (adapter.Provider, adapter.MandateCharger, error) {
	var provider adapter.Provider
	switch {
	case cfg.Razorpay.KeyID != "" && cfg.Razorpay.KeySecret != "":
		rp, err := payAdapters.NewRazorpayProvider(cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret, logger)
		if err != nil {
			return nil, nil, err
		}
		provider = rp
	case cfg.Runtime.Dev:
		provider = payAdapters.NewSimulatedProvider()
	default:
		return nil, nil, errors.New("razorpay key id and secret are required outside dev mode")
	}

	// Simulated debits only ever happen behind the explicit flag.
	var charger adapter.MandateCharger
	sim, isSim := provider.(*payAdapters.SimulatedProvider)
	if c, ok := provider.(adapter.MandateCharger); ok && !isSim {
		charger = c
	}
	if cfg.Scheduler.SimulatedCharges {
		logger.Warn().Msg("SIMULATED_CHARGES on: scheduled charges succeed without contacting the provider")
		if !isSim {
			sim = payAdapters.NewSimulatedProvider()
		}
		charger = sim
	}
	return provider, charger, nil
}
