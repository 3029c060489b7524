// SPDX-License-Identifier: Apache-2.0

// Package retry re-attempts venues left in a failed or empty state by
// an earlier pass.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/curateworld/venue-scraper/internal/domain"
	"github.com/curateworld/venue-scraper/internal/scrape"
)

// passRunner is the slice of the scrape driver the retry loop needs.
type passRunner interface {
	Run(ctx context.Context, cch *domain.VenueCache, venues []domain.VenueDescriptor, scope scrape.Scope, runID, mode string) (scrape.Outcome, error)
}

type Options struct {
	// Attempts bounds the number of retry passes. The loop exits early
	// once nothing is left to retry.
	Attempts int

	// Backoff is the fixed pause before each pass.
	Backoff time.Duration

	Sleep func(time.Duration)
}

type Driver struct {
	scraper passRunner
	logger  *slog.Logger

	attempts int
	backoff  time.Duration
	sleep    func(time.Duration)
}

func NewDriver(scraper passRunner, logger *slog.Logger, opts Options) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 2
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 30 * time.Second
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	return &Driver{
		scraper:  scraper,
		logger:   logger,
		attempts: opts.Attempts,
		backoff:  opts.Backoff,
		sleep:    opts.Sleep,
	}
}

// Run retries failed venues until every one succeeds or the attempt
// budget is spent. Candidates are recomputed before each pass, so a
// venue recovered in pass one is not touched in pass two. A run with
// no candidates makes no network calls at all.
func (d *Driver) Run(ctx context.Context, cch *domain.VenueCache, registry []domain.VenueDescriptor, runID string) (int, error) {
	passes := 0

	for passes < d.attempts {
		candidates := failedVenues(cch, registry)
		if len(candidates) == 0 {
			if passes == 0 {
				d.logger.Info("no failed venues, skipping retry")
			}
			return passes, nil
		}

		d.logger.Info("retry pass starting",
			"pass", passes+1,
			"of", d.attempts,
			"candidates", len(candidates),
		)
		d.sleep(d.backoff)

		out, err := d.scraper.Run(ctx, cch, candidates, scrape.ScopePartial, runID, "retry")
		if err != nil {
			return passes, err
		}
		passes++

		d.logger.Info("retry pass finished",
			"pass", passes,
			"recovered", out.Succeeded,
			"still_failing", out.Failed+out.Empty,
		)
	}
	return passes, nil
}

// failedVenues maps the cache's failed domains back onto registry
// descriptors, preserving registry order. Venues no longer in the
// registry are not retried.
func failedVenues(cch *domain.VenueCache, registry []domain.VenueDescriptor) []domain.VenueDescriptor {
	out := make([]domain.VenueDescriptor, 0)
	for _, venue := range registry {
		if entry, ok := cch.Venues[venue.Domain]; ok && entry.Failed() {
			out = append(out, venue)
		}
	}
	return out
}
