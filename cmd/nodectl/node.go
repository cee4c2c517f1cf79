package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/bandeira-tech/b3nd-sdk/internal/bootstrap"
	"github.com/bandeira-tech/b3nd-sdk/pkg/config"
	"github.com/bandeira-tech/b3nd-sdk/pkg/httpserver"
	"github.com/bandeira-tech/b3nd-sdk/pkg/observability"
	"github.com/bandeira-tech/b3nd-sdk/pkg/ratelimit"
	"github.com/bandeira-tech/b3nd-sdk/pkg/wallet"
	"github.com/bandeira-tech/b3nd-sdk/pkg/wsserver"
)

// cmdNode runs an embedded node-server in-process (§6 CLI surface:
// "node (run an embedded server)"), sharing bootstrap wiring with
// cmd/node-server so the two entrypoints never disagree on what
// BACKEND_URL/SCHEMA_MODULE mean.
func cmdNode(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	logger := slog.New(slog.NewTextHandler(stdout, nil))
	cfg := config.Load()

	obsCfg := observability.DefaultConfig()
	obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
	provider, err := observability.New(ctx, obsCfg)
	if err != nil {
		logger.Error("observability init failed", "error", err)
		return exitBackend
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		provider.Shutdown(shutdownCtx)
	}()

	backend, err := bootstrap.BuildValidatedBackend(ctx, cfg)
	if err != nil {
		logger.Error("backend init failed", "error", err)
		return exitBackend
	}
	backend = observability.Wrap(backend, provider)
	defer backend.Close()

	walletOpts := []wallet.Option{}
	if cfg.JWTSigningKeyPath != "" {
		keys, err := wallet.LoadOrCreateFileKeySet(cfg.JWTSigningKeyPath)
		if err != nil {
			logger.Error("wallet keyset load failed", "error", err)
			return exitBackend
		}
		walletOpts = append(walletOpts, wallet.WithKeys(keys))
	}
	w, err := wallet.New(backend, walletOpts...)
	if err != nil {
		logger.Error("wallet init failed", "error", err)
		return exitBackend
	}

	mux := http.NewServeMux()
	httpserver.New(backend, mux, httpserver.WithAllowedOrigins(cfg.CORSOrigins))
	mux.HandleFunc("/ws", wsserver.New(backend).Handler)
	wallet.NewServer(w, mux, "/api/v1")

	var handler http.Handler = mux
	if cfg.RedisURL != "" {
		store := ratelimit.NewRedisStore(cfg.RedisURL)
		defer store.Close()
		handler = ratelimit.Middleware(store, ratelimit.DefaultPolicy())(mux)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		return exitBackend
	}
	return exitOK
}
