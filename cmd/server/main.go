// Command server runs the social backend HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edgeee/social-backend/api"
	"github.com/edgeee/social-backend/api/validator"
	"github.com/edgeee/social-backend/auth"
	"github.com/edgeee/social-backend/config"
	"github.com/edgeee/social-backend/mongo"
	"github.com/edgeee/social-backend/nats"
	"github.com/edgeee/social-backend/postgres"
	"github.com/edgeee/social-backend/redis"
	"github.com/edgeee/social-backend/social"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Server failed", "error", err.Error())
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer pg.Close()
	if err := pg.CreateSchema(ctx); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	mg, err := mongo.Connect(ctx, cfg.MongoURL, cfg.MongoDB)
	if err != nil {
		return err
	}
	defer mg.Close(context.Background())
	if err := mg.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}

	cache, err := redis.Connect(ctx, cfg.RedisAddr, cfg.CacheTTL)
	if err != nil {
		return err
	}
	defer cache.Close()

	sessions, err := auth.New(cfg.AuthScheme, pg, auth.Options{
		Secret:        []byte(cfg.JWTSecret),
		RefreshSecret: []byte(cfg.JWTRefreshSecret),
		TTL:           cfg.JWTTTL,
		RefreshTTL:    cfg.JWTRefreshTTL,
	})
	if err != nil {
		return err
	}

	svc := &social.Service{
		Logger:   logger,
		Users:    pg,
		Posts:    pg,
		Comments: mg,
		Sessions: sessions,
		Cache:    cache,
	}
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, logger)
		if err != nil {
			return err
		}
		defer nc.Close()
		svc.Events = nc

		if logger.Enabled(ctx, slog.LevelDebug) {
			sub, err := nc.Subscribe(func(e social.Event) {
				logger.Debug("Event published", "type", e.Type, "entity_id", e.EntityID, "actor_id", e.ActorID)
			})
			if err != nil {
				return fmt.Errorf("subscribe events: %w", err)
			}
			defer sub.Unsubscribe()
		}
	}

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: &api.API{
			Logger:  logger,
			Service: svc,
			Val:     validator.New(),
		},
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("Listening", "addr", cfg.Addr, "auth", cfg.AuthScheme)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
