// Command authd serves the authcore engine over HTTP.
//
// Engine settings are read from AUTHCORE_* variables (see
// authcore.LoadConfigFromEnv) and server settings from AUTHD_*. With
// AUTHD_DEV=1 it runs against an in-process miniredis and an in-memory
// account store, generating ephemeral keys when none are configured.
//
// Endpoints:
//
//	POST /v1/register                    {"email","password","first_name","last_name"}
//	POST /v1/login                       {"email","password"}
//	POST /v1/refresh                     {"refresh_token"}
//	POST /v1/revoke                      {"token"}
//	POST /v1/logout                      bearer access token; revokes every token of the user
//	GET  /v1/me                          bearer access token
//	GET  /v1/providers
//	GET  /v1/oauth/{provider}/url        ?platform=web|mobile
//	POST /v1/oauth/{provider}/callback   {"code","state","platform"}
//	POST /v1/oauth/apple/form_post       Apple form_post redirect target
//	GET  /metrics                        Prometheus text format
//	GET  /healthz
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/accountstore/memory"
	"github.com/MrEthical07/authcore/accountstore/sqlite"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "authd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	srvCfg, err := loadServerConfig()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(srvCfg.LogLevel)}))

	cfg, err := authcore.LoadConfigFromEnv()
	if err != nil {
		return err
	}
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	// ---------- infrastructure ----------
	var client redis.UniversalClient
	if srvCfg.Dev && srvCfg.RedisAddr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		defer mr.Close()
		srvCfg.RedisAddr = mr.Addr()
		logger.Warn("authd: dev mode, using in-process miniredis", "addr", mr.Addr())
	}
	client = redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{srvCfg.RedisAddr},
		Password: srvCfg.RedisPassword,
	})
	defer client.Close()

	if srvCfg.Dev {
		if err := fillDevSecrets(&cfg); err != nil {
			return err
		}
	}

	var accounts authcore.AccountStore
	switch {
	case srvCfg.DBPath != "":
		db, err := sqlite.Open(srvCfg.DBPath)
		if err != nil {
			return fmt.Errorf("open account store: %w", err)
		}
		defer db.Close()
		accounts = db
	case srvCfg.Dev:
		accounts = memory.New()
		logger.Warn("authd: dev mode, accounts are kept in memory")
	default:
		return errors.New("AUTHD_DB_PATH is required outside dev mode")
	}

	// ---------- engine ----------
	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(client).
		WithAccountStore(accounts).
		WithLogger(logger).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	srv := newServer(engine, rate.New(client, cfg.Store.KeyPrefix), srvCfg, logger)

	httpServer := &http.Server{
		Addr:              srvCfg.Addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      srvCfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sweepVisitors(ctx, srv.edge)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("authd: listening", "addr", srvCfg.Addr, "providers", len(engine.GetAvailableProviders()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("authd: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), srvCfg.ShutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func sweepVisitors(ctx context.Context, t *edgeThrottle) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
