// Command reconcile recomputes the denormalized like, reply and comment
// counters from their ledgers and child records.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/edgeee/social-backend/config"
	"github.com/edgeee/social-backend/mongo"
	"github.com/edgeee/social-backend/postgres"
	"github.com/edgeee/social-backend/social"
)

func main() {
	timeout := flag.Duration("timeout", 5*time.Minute, "abort the run after this long")
	flag.Parse()

	if err := run(*timeout); err != nil {
		slog.Error("Reconcile failed", "error", err.Error())
		os.Exit(1)
	}
}

func run(timeout time.Duration) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	pg, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer pg.Close()

	mg, err := mongo.Connect(ctx, cfg.MongoURL, cfg.MongoDB)
	if err != nil {
		return err
	}
	defer mg.Close(context.Background())

	svc := &social.Service{
		Logger:   logger,
		Users:    pg,
		Posts:    pg,
		Comments: mg,
	}
	_, err = svc.Reconcile(ctx)
	return err
}
