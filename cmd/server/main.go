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

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"discard/internal/elgamal"
	jwttoken "discard/internal/jwt_token"
	"discard/internal/platform/config"
	"discard/internal/platform/httpserver"
	"discard/internal/platform/logger"
	"discard/internal/platform/metrics"
	httptransport "discard/internal/transport/http"
)

// main loads configuration, wires storage and services, and runs the HTTP
// server alongside the background workers until SIGINT or SIGTERM.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// the decryption table is built once per process
	go elgamal.WarmUp()

	app, err := wire(ctx, cfg, log, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer app.close()

	if cfg.Auth.InternalToken == "" {
		log.Warn("INTERNAL_API_TOKEN is empty; all /internal routes will reject requests")
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Addresses:     app.addressHandler,
		Compliance:    app.complianceHandler,
		Shielding:     app.shieldingHandler,
		Nullifiers:    app.nullifierHandler,
		Validator:     jwttoken.NewValidator(jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer)),
		InternalToken: cfg.Auth.InternalToken,
		Logger:        log,
		Metrics:       metrics.New(prometheus.DefaultRegisterer),
		Gatherer:      prometheus.DefaultGatherer,
		HealthChecks:  app.healthChecks,
	})
	srv := httpserver.New(cfg.Server, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting discard", "addr", cfg.Server.Addr,
			"storage_backend", cfg.StorageBackend,
			"nullifier_backend", cfg.NullifierBackend,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		log.Info("http server stopped")
		return nil
	})
	if app.sweeper != nil {
		g.Go(func() error {
			return app.sweeper.Start(gctx)
		})
	}
	if app.relay != nil {
		g.Go(func() error {
			if err := app.relay.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("audit relay: %w", err)
			}
			return nil
		})
	}
	return g.Wait()
}
