package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/AmanBang/meshcall/internal/config"
	"github.com/AmanBang/meshcall/internal/logging"
	"github.com/AmanBang/meshcall/internal/relay"
)

func main() {
	logging.InitServer()
	cfg := config.LoadRelay()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("opening store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	srv := relay.NewServer(cfg, store, slog.Default())
	if err := srv.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("relay server failed", "error", err)
		os.Exit(1)
	}
}

// openStore picks Redis when configured, the in-memory store otherwise.
func openStore(ctx context.Context, cfg *config.RelayConfig) (relay.Store, error) {
	if cfg.Redis.Host == "" {
		slog.Info("using in-memory store")
		return relay.NewMemoryStore(cfg.RoomTTL, cfg.SignalTTL), nil
	}

	store, err := relay.NewRedisStore(ctx, cfg.Redis, cfg.RoomTTL, cfg.SignalTTL)
	if err != nil {
		return nil, err
	}
	slog.Info("connected to Redis", "host", cfg.Redis.Host)
	return store, nil
}
