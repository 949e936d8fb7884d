package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"upi-autopay-subscription/internal/config"
	"upi-autopay-subscription/internal/infra/db"
	"upi-autopay-subscription/internal/infra/lock"
	"upi-autopay-subscription/internal/infra/logging"
	"upi-autopay-subscription/internal/usecase"
)

// seed registers trial users for local testing of the mandate flow. Existing users are left as is.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	count := flag.Int("users", 3, "number of demo users")
	prefix := flag.String("prefix", "demo-user", "user id prefix")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, true)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := db.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open store")
	}
	defer store.Close()

	users := usecase.NewUserUseCase(store.Stores.Users, lock.NewMemoryLocker(), cfg.Subscription.TrialDays, 5*time.Second, nil, logger)
	for i := 1; i <= *count; i++ {
		id := fmt.Sprintf("%s-%d", *prefix, i)
		u, created, err := users.Register(ctx, id, "seed-device-"+id)
		if err != nil {
			logger.Fatal().Err(err).Str("user_id", id).Msg("register")
		}
		state := "exists"
		if created {
			state = "created"
		}
		fmt.Printf("%-20s %-8s status=%s trial_ends=%v\n", u.ID, state, u.SubscriptionStatus, u.TrialEndsAt)
	}
	fmt.Printf("seeded %d users into %s\n", *count, store.Backend)
}
