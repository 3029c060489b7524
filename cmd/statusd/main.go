// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/curateworld/venue-scraper/internal/cache"
	"github.com/curateworld/venue-scraper/internal/config"
	"github.com/curateworld/venue-scraper/internal/ledger"
	"github.com/curateworld/venue-scraper/internal/logging"
	"github.com/curateworld/venue-scraper/internal/persistence/postgres"
	httptransport "github.com/curateworld/venue-scraper/internal/transport/http"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	logger := logging.NewLogger(cfg.Env)

	fileStore, err := cache.NewFileStore(cfg.DataDir, logger)
	if err != nil {
		log.Fatalf("file cache init failed: %v", err)
	}

	deps := httptransport.Deps{
		Logger:    logger,
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
	}

	// The status surface stays up on the file cache alone when Postgres
	// is unreachable.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Warn("db unavailable, serving file cache only", "error", err)
		deps.Cache = cache.NewStore(fileStore, nil, false, logger)
	} else {
		defer pool.Close()
		deps.Cache = cache.NewStore(fileStore, cache.NewPGStore(pool, logger), false, logger)
		deps.Runs = ledger.NewRunLedger(pool, logger)
		deps.Health = postgres.NewSchemaHealthChecker(pool)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httptransport.NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("statusd listening",
			"addr", cfg.HTTPAddr,
			"version", Version,
			"commit", Commit,
			"build_date", BuildDate,
		)

		if err := srv.ListenAndServe(); err != nil &&
			err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
}
