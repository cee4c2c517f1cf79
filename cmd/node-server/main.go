// Command node-server runs the HTTP and WebSocket surfaces over a
// configured backend, with the wallet's auth/proxy routes mounted
// alongside (§4.7, §4.8, §4.9).
package main

import (
	"context"
	"errors"
	"log"
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
	"github.com/bandeira-tech/b3nd-sdk/pkg/node"
	"github.com/bandeira-tech/b3nd-sdk/pkg/observability"
	"github.com/bandeira-tech/b3nd-sdk/pkg/ratelimit"
	"github.com/bandeira-tech/b3nd-sdk/pkg/wallet"
	"github.com/bandeira-tech/b3nd-sdk/pkg/wsserver"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	obsCfg := observability.DefaultConfig()
	obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
	provider, err := observability.New(ctx, obsCfg)
	if err != nil {
		logger.Error("observability init failed", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Error("observability shutdown error", "error", err)
		}
	}()

	backend, err := bootstrap.BuildValidatedBackend(ctx, cfg)
	if err != nil {
		logger.Error("backend init failed", "error", err)
		return 1
	}
	backend = observability.Wrap(backend, provider)

	walletOpts := []wallet.Option{}
	if cfg.JWTSigningKeyPath != "" {
		keys, err := wallet.LoadOrCreateFileKeySet(cfg.JWTSigningKeyPath)
		if err != nil {
			logger.Error("wallet keyset load failed", "error", err)
			return 1
		}
		walletOpts = append(walletOpts, wallet.WithKeys(keys))
	}
	w, err := wallet.New(backend, walletOpts...)
	if err != nil {
		logger.Error("wallet init failed", "error", err)
		return 1
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
	log.Println("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	return closeBackend(backend)
}

func closeBackend(n node.Node) int {
	if err := n.Close(); err != nil {
		log.Printf("backend close error: %v", err)
		return 1
	}
	return 0
}
