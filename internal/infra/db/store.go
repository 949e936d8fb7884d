// Package db opens the configured store backend and exposes it as use-case repositories.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"upi-autopay-subscription/internal/config"
	mg "upi-autopay-subscription/internal/infra/db/mongo"
	pg "upi-autopay-subscription/internal/infra/db/postgres"
	"upi-autopay-subscription/internal/usecase"
)

// Store bundles the repositories of one backend with its lifecycle hooks.
type Store struct {
	Backend string
	Stores  usecase.Stores
	Health  func(ctx context.Context) error
	Close   func()
}

// Open selects MongoDB or Postgres from the store URL scheme.
func Open(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*Store, error) {
	if cfg.UsesMongo() {
		return openMongo(ctx, cfg)
	}
	return openPostgres(ctx, cfg, logger)
}

func openPostgres(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*Store, error) {
	pool, err := pg.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	statsCtx, stopStats := context.WithCancel(context.Background())
	go pg.ReportPoolStats(statsCtx, pool, 15*time.Second, logger)

	return &Store{
		Backend: "postgres",
		Stores: usecase.Stores{
			Users:           pg.NewUserRepo(pool),
			Mandates:        pg.NewMandateRepo(pool),
			Payments:        pg.NewPaymentRepo(pool),
			Events:          pg.NewWebhookEventRepo(pool),
			Reconciliations: pg.NewReconciliationRepo(pool),
			TM:              pg.NewTxManager(pool),
		},
		Health: func(ctx context.Context) error { return pool.Ping(ctx) },
		Close: func() {
			stopStats()
			pool.Close()
		},
	}, nil
}

func openMongo(ctx context.Context, cfg *config.Config) (*Store, error) {
	client, err := mg.Connect(ctx, cfg.Database.MongoURI)
	if err != nil {
		return nil, fmt.Errorf("mongo: %w", err)
	}
	database := client.Database(cfg.Database.MongoDatabase)
	if err := mg.EnsureIndexes(ctx, database); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo indexes: %w", err)
	}

	return &Store{
		Backend: "mongo",
		Stores: usecase.Stores{
			Users:           mg.NewUserRepo(database),
			Mandates:        mg.NewMandateRepo(database),
			Payments:        mg.NewPaymentRepo(database),
			Events:          mg.NewWebhookEventRepo(database),
			Reconciliations: mg.NewReconciliationRepo(database),
			TM:              mg.NewTxManager(client),
		},
		Health: mg.Healthcheck(client),
		Close: func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(dctx)
		},
	}, nil
}
