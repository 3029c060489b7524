// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/curateworld/venue-scraper/internal/cache"
	"github.com/curateworld/venue-scraper/internal/config"
	"github.com/curateworld/venue-scraper/internal/domain"
	"github.com/curateworld/venue-scraper/internal/extract"
	"github.com/curateworld/venue-scraper/internal/fetch"
	"github.com/curateworld/venue-scraper/internal/ledger"
	"github.com/curateworld/venue-scraper/internal/logging"
	"github.com/curateworld/venue-scraper/internal/orchestrate"
	"github.com/curateworld/venue-scraper/internal/persistence/postgres"
	"github.com/curateworld/venue-scraper/internal/registry"
	"github.com/curateworld/venue-scraper/internal/retry"
	"github.com/curateworld/venue-scraper/internal/runlock"
	"github.com/curateworld/venue-scraper/internal/scrape"
)

// Exit codes: 1 run failure, 2 usage, 3 lock held elsewhere.
const exitCodeLocked = 3

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		return 2
	}
	verb := os.Args[1]

	flags := flag.NewFlagSet(verb, flag.ExitOnError)
	writeDB := flags.Bool("write-db", false, "authorize writes to the relational backend for partial runs")
	strict := flags.Bool("strict", false, "treat lock and database failures as fatal (scheduled runs)")

	var mode orchestrate.Mode
	var domainArg string
	switch verb {
	case "full":
		mode = orchestrate.ModeFull
		_ = flags.Parse(os.Args[2:])
	case "retry":
		mode = orchestrate.ModeRetry
		_ = flags.Parse(os.Args[2:])
	case "domains":
		mode = orchestrate.ModeDomains
		if len(os.Args) < 3 {
			printUsage(os.Stderr)
			return 2
		}
		domainArg = os.Args[2]
		_ = flags.Parse(os.Args[3:])
	default:
		printUsage(os.Stderr)
		return 2
	}

	cfg := config.Load()
	logger := logging.NewLogger(cfg.Env)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	venues, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		logger.Error("loading venue registry failed", "path", cfg.RegistryPath, "error", err)
		return 1
	}

	// Freeform page venues cannot yield events without the extraction
	// service, so a missing credential is systemic, not degradable.
	llm := extract.NewLLMClient(nil, cfg.ExtractorURL, cfg.ExtractorAPIKey, logging.ForComponent(logger, "llm"))
	if !llm.Configured() && registryNeedsExtractor(venues) {
		logger.Error("extractor not configured but the registry contains freeform page venues",
			"registry", cfg.RegistryPath,
		)
		return 1
	}

	// A full run authorizes relational writes by config; partial runs
	// need the explicit flag.
	dbWrites := cfg.DBWriteEnabled && (mode == orchestrate.ModeFull || *writeDB)

	pool := connectDatabase(ctx, cfg, logger, *strict)
	if pool == nil && *strict {
		return 1
	}
	if pool != nil {
		defer pool.Close()
	}

	var lock *runlock.Lock
	if pool != nil {
		lock, err = runlock.Acquire(ctx, pool, logger)
		if err != nil {
			if errors.Is(err, runlock.ErrAlreadyLocked) {
				logger.Error("another scrape run holds the lock, aborting")
				return exitCodeLocked
			}
			if *strict {
				logger.Error("run lock acquisition failed", "error", err)
				return 1
			}
			// Degrade: scrape file-only rather than skip the run.
			logger.Warn("run lock unavailable, degrading to file-only run", "error", err)
			pool.Close()
			pool = nil
		}
	}
	if lock != nil {
		defer lock.Release()
	}

	fileStore, err := cache.NewFileStore(cfg.DataDir, logger)
	if err != nil {
		logger.Error("initializing file cache failed", "error", err)
		return 1
	}
	var pgStore *cache.PGStore
	var runLedger orchestrate.RunLedger
	if pool != nil {
		pgStore = cache.NewPGStore(pool, logging.ForComponent(logger, "cache"))
		runLedger = ledger.NewRunLedger(pool, logging.ForComponent(logger, "ledger"))
	}
	store := cache.NewStore(fileStore, pgStore, dbWrites, logger)

	fetcher := fetch.New(fetch.Options{
		ReaderBaseURL: cfg.ReaderBaseURL,
		Logger:        logging.ForComponent(logger, "fetch"),
	})
	chain := &extract.Chain{
		Fetch:         fetcher,
		LLM:           llm,
		Logger:        logging.ForComponent(logger, "extract"),
		LookaheadDays: cfg.LookaheadDays,
	}
	scraper := scrape.NewDriver(chain, store, logging.ForComponent(logger, "scrape"), scrape.Options{
		VenueDelay: cfg.InterVenueWait,
	})
	retrier := retry.NewDriver(scraper, logging.ForComponent(logger, "retry"), retry.Options{
		Attempts: cfg.RetryAttempts,
		Backoff:  cfg.RetryBackoff,
	})

	orc := &orchestrate.Orchestrator{
		Scraper:  scraper,
		Retrier:  retrier,
		Store:    store,
		Ledger:   runLedger,
		Logger:   logger,
		DataDir:  cfg.DataDir,
		Registry: venues,
	}

	req := orchestrate.Request{Mode: mode, Venues: venues}
	if mode == orchestrate.ModeDomains {
		req.Venues = registry.Filter(venues, strings.Split(domainArg, ","))
		if len(req.Venues) == 0 {
			logger.Error("no registry venues match the requested domains", "domains", domainArg)
			return 1
		}
	}

	status, err := orc.Execute(ctx, req)
	if err != nil {
		logger.Error("scrape run failed", "status", string(status), "error", err)
		return 1
	}
	logger.Info("scrape run done", "status", string(status))
	return 0
}

// connectDatabase opens the pool and bootstraps the schema. Outside
// strict mode a dead database degrades the run to file-only instead of
// blocking it.
func connectDatabase(ctx context.Context, cfg config.Config, logger *slog.Logger, strict bool) *pgxpool.Pool {
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		if strict {
			logger.Error("db connect failed", "error", err)
			return nil
		}
		logger.Warn("db unavailable, running file-only", "error", err)
		return nil
	}

	if cfg.AutoMigrate {
		if err := postgres.EnsureSchema(ctx, pool, logger); err != nil {
			if strict {
				logger.Error("schema bootstrap failed", "error", err)
				pool.Close()
				return nil
			}
			logger.Warn("schema bootstrap failed, running file-only", "error", err)
			pool.Close()
			return nil
		}
	}
	return pool
}

// registryNeedsExtractor reports whether any venue resolves to the
// freeform page path. Structured-feed-only registries run fine without
// the extraction service.
func registryNeedsExtractor(venues []domain.VenueDescriptor) bool {
	for _, v := range venues {
		if v.Format == domain.FormatPage || v.Format == domain.FormatAuto {
			return true
		}
	}
	return false
}

func printUsage(w *os.File) {
	_, _ = fmt.Fprintln(w, "usage: scraper <full|retry|domains d1,d2,...> [-write-db] [-strict]")
}
