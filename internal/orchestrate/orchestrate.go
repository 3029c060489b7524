// SPDX-License-Identifier: Apache-2.0

// Package orchestrate sequences a whole run: scrape, retry, aggregate
// rebuild, classification, report, ledger completion.
package orchestrate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/curateworld/venue-scraper/internal/aggregate"
	"github.com/curateworld/venue-scraper/internal/cache"
	"github.com/curateworld/venue-scraper/internal/domain"
	"github.com/curateworld/venue-scraper/internal/metrics"
	"github.com/curateworld/venue-scraper/internal/report"
	"github.com/curateworld/venue-scraper/internal/scrape"
)

// Mode selects what a run covers.
type Mode string

const (
	ModeFull    Mode = "full"
	ModeRetry   Mode = "retry"
	ModeDomains Mode = "domains"
)

type scrapeRunner interface {
	Run(ctx context.Context, cch *domain.VenueCache, venues []domain.VenueDescriptor, scope scrape.Scope, runID, mode string) (scrape.Outcome, error)
}

type retryRunner interface {
	Run(ctx context.Context, cch *domain.VenueCache, registry []domain.VenueDescriptor, runID string) (int, error)
}

// RunLedger is the slice of the ledger the orchestrator drives. A nil
// ledger (file-only run) downgrades bookkeeping to log lines.
type RunLedger interface {
	Begin(ctx context.Context, mode string) (uuid.UUID, error)
	Complete(ctx context.Context, runID uuid.UUID, status domain.RunStatus, stats domain.RunStats) error
}

type Orchestrator struct {
	Scraper  scrapeRunner
	Retrier  retryRunner
	Store    *cache.Store
	Ledger   RunLedger
	Logger   *slog.Logger
	DataDir  string
	Registry []domain.VenueDescriptor

	// Now is injectable for tests.
	Now func() time.Time
}

// Request describes one run. Venues is the subset to scrape directly
// (the whole registry for a full run); retry candidacy always consults
// the full registry.
type Request struct {
	Mode   Mode
	Venues []domain.VenueDescriptor
}

// Execute runs the pipeline end to end. The ledger row opened at the
// start is completed exactly once on every exit path, panics included.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (status domain.RunStatus, err error) {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := o.Now
	if now == nil {
		now = time.Now
	}
	started := now()

	runID := o.beginLedger(ctx, string(req.Mode), logger)

	stats := domain.RunStats{Mode: string(req.Mode)}
	status = domain.RunError

	defer func() {
		if r := recover(); r != nil {
			status = domain.RunError
			err = fmt.Errorf("run panicked: %v", r)
			logger.Error("scrape run panicked", "run_id", runID, "panic", r)
		}
		stats.DurationMS = now().Sub(started).Milliseconds()
		o.completeLedger(runID, status, stats, logger)
		metrics.IncRunOutcome(status)
	}()

	cch, err := o.Store.Load(ctx)
	if err != nil {
		return domain.RunError, fmt.Errorf("loading cache: %w", err)
	}

	var attempted []string

	switch req.Mode {
	case ModeRetry:
		attempted = candidateDomains(cch, o.Registry)
		passes, rerr := o.Retrier.Run(ctx, cch, o.Registry, runID.String())
		if rerr != nil {
			return domain.RunError, rerr
		}
		stats.RetryPasses = passes

	case ModeDomains:
		if _, serr := o.Scraper.Run(ctx, cch, req.Venues, scrape.ScopePartial, runID.String(), string(req.Mode)); serr != nil {
			return domain.RunError, serr
		}
		attempted = domainNames(req.Venues)

	default:
		if _, serr := o.Scraper.Run(ctx, cch, req.Venues, scrape.ScopeFull, runID.String(), string(req.Mode)); serr != nil {
			return domain.RunError, serr
		}
		attempted = domainNames(req.Venues)

		passes, rerr := o.Retrier.Run(ctx, cch, o.Registry, runID.String())
		if rerr != nil {
			return domain.RunError, rerr
		}
		stats.RetryPasses = passes
	}

	fillStats(&stats, cch, attempted)

	agg := aggregate.Rebuild(cch, now())
	aggPath, aerr := aggregate.Save(o.DataDir, agg)
	if aerr != nil {
		return domain.RunError, aerr
	}
	stats.RebuiltAt = now().UTC()
	logger.Info("category aggregate rebuilt", "path", aggPath, "events", agg.TotalEvents)

	status = classify(stats)

	rep := report.Build(cch, runID.String(), status, stats, now())
	mdPath, jsonPath, werr := report.Write(o.DataDir, rep)
	if werr != nil {
		// The run itself finished; a broken report is logged, not fatal.
		logger.Error("writing run report failed", "error", werr)
	} else {
		logger.Info("run report written", "markdown", mdPath, "json", jsonPath)
	}

	logger.Info("scrape run finished",
		"run_id", runID,
		"mode", string(req.Mode),
		"status", string(status),
		"attempted", stats.VenuesAttempted,
		"succeeded", stats.VenuesSucceeded,
		"events", stats.TotalEvents,
	)
	return status, nil
}

func (o *Orchestrator) beginLedger(ctx context.Context, mode string, logger *slog.Logger) uuid.UUID {
	if o.Ledger == nil {
		runID := uuid.New()
		logger.Info("run ledger unavailable, file-only run", "run_id", runID)
		return runID
	}
	runID, err := o.Ledger.Begin(ctx, mode)
	if err != nil {
		// A dead ledger must not block scraping.
		logger.Error("run ledger begin failed, continuing unrecorded", "error", err)
		return uuid.New()
	}
	return runID
}

func (o *Orchestrator) completeLedger(runID uuid.UUID, status domain.RunStatus, stats domain.RunStats, logger *slog.Logger) {
	if o.Ledger == nil {
		logger.Info("run complete (unrecorded)", "run_id", runID, "status", string(status))
		return
	}
	// Fresh context: completion must land even when the run context is
	// already cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.Ledger.Complete(ctx, runID, status, stats); err != nil {
		logger.Error("run ledger completion failed", "run_id", runID, "error", err)
	}
}

// fillStats counts outcomes over the venues this run actually touched,
// reading their final state from the cache.
func fillStats(stats *domain.RunStats, cch *domain.VenueCache, attempted []string) {
	stats.VenuesAttempted = len(attempted)
	for _, d := range attempted {
		entry, ok := cch.Venues[d]
		if !ok {
			continue
		}
		switch entry.Status {
		case domain.StatusSuccess:
			stats.VenuesSucceeded++
		case domain.StatusEmptyPage, domain.StatusEmptyPagePreserved:
			stats.VenuesEmpty++
		default:
			stats.VenuesFailed++
		}
	}
	stats.TotalEvents = cch.TotalEvents

	outstanding := cch.FailedDomains()
	sort.Strings(outstanding)
	stats.Outstanding = outstanding
}

// classify grades the run. A run with residual failures is failed only
// when the cache holds zero events; preserved events from earlier runs
// mean consumers still get data, which is stale, not broken.
func classify(stats domain.RunStats) domain.RunStatus {
	unresolved := stats.VenuesFailed + stats.VenuesEmpty
	switch {
	case stats.VenuesAttempted == 0:
		return domain.RunSuccess
	case unresolved == 0:
		return domain.RunSuccess
	case stats.TotalEvents == 0:
		return domain.RunFailed
	default:
		return domain.RunPartialSuccess
	}
}

func candidateDomains(cch *domain.VenueCache, registry []domain.VenueDescriptor) []string {
	out := make([]string, 0)
	for _, venue := range registry {
		if entry, ok := cch.Venues[venue.Domain]; ok && entry.Failed() {
			out = append(out, venue.Domain)
		}
	}
	return out
}

func domainNames(venues []domain.VenueDescriptor) []string {
	out := make([]string, 0, len(venues))
	for _, v := range venues {
		out = append(out, v.Domain)
	}
	return out
}
