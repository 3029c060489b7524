// SPDX-License-Identifier: Apache-2.0

// Package scrape runs the sequential venue loop: fetch, extract,
// classify, persist, one venue at a time.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/curateworld/venue-scraper/internal/cache"
	"github.com/curateworld/venue-scraper/internal/domain"
	"github.com/curateworld/venue-scraper/internal/extract"
	"github.com/curateworld/venue-scraper/internal/fetch"
	"github.com/curateworld/venue-scraper/internal/metrics"
)

// Scope separates runs that cover the whole registry from runs over a
// subset. Only a full run may advance the cache's LastUpdated marker.
type Scope string

const (
	ScopeFull    Scope = "full"
	ScopePartial Scope = "partial"
)

// Extractor is the per-venue extraction chain. *extract.Chain is the
// production implementation.
type Extractor interface {
	Run(ctx context.Context, venue domain.VenueDescriptor, today time.Time) (extract.Result, error)
}

type Options struct {
	// VenueDelay is the pause between consecutive venues. The registry
	// is small and venues are third-party sites; do not hammer them.
	VenueDelay time.Duration

	// Sleep and Now exist so tests can run without wall-clock time.
	Sleep func(time.Duration)
	Now   func() time.Time
}

type Driver struct {
	extractor Extractor
	store     *cache.Store
	logger    *slog.Logger

	venueDelay time.Duration
	sleep      func(time.Duration)
	now        func() time.Time
}

func NewDriver(extractor Extractor, store *cache.Store, logger *slog.Logger, opts Options) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.VenueDelay <= 0 {
		opts.VenueDelay = time.Second
	}
	return &Driver{
		extractor:  extractor,
		store:      store,
		logger:     logger,
		venueDelay: opts.VenueDelay,
		sleep:      opts.Sleep,
		now:        opts.Now,
	}
}

// Outcome summarizes one driver pass.
type Outcome struct {
	Attempted int
	Succeeded int
	Failed    int
	Empty     int
}

// Run scrapes the given venues in order, mutating and persisting the
// cache after every venue. Venue-level failures are recorded, not
// returned; the error return is reserved for systemic problems
// (cancelled context, cache persistence failure).
func (d *Driver) Run(ctx context.Context, cch *domain.VenueCache, venues []domain.VenueDescriptor, scope Scope, runID, mode string) (Outcome, error) {
	var out Outcome

	for i, venue := range venues {
		if err := ctx.Err(); err != nil {
			return out, fmt.Errorf("scrape interrupted: %w", err)
		}
		if i > 0 {
			d.sleep(d.venueDelay)
		}

		entry := d.scrapeVenue(ctx, venue, cch.Venues[venue.Domain])
		cch.Venues[venue.Domain] = entry

		out.Attempted++
		switch entry.Status {
		case domain.StatusSuccess:
			out.Succeeded++
		case domain.StatusEmptyPage, domain.StatusEmptyPagePreserved:
			out.Empty++
		default:
			out.Failed++
		}

		if err := d.store.PersistVenue(ctx, cch, venue.Domain); err != nil {
			return out, err
		}
	}

	cch.LastRunID = runID
	cch.LastRunMode = mode
	if scope == ScopeFull && out.Succeeded > 0 {
		cch.LastUpdated = d.now().UTC()
	}
	if err := d.store.PersistMeta(ctx, cch); err != nil {
		return out, err
	}

	metrics.SetCachedEvents(cch.TotalEvents)
	metrics.SetFailedVenues(len(cch.FailedDomains()))

	d.logger.Info("scrape pass finished",
		"scope", string(scope),
		"attempted", out.Attempted,
		"succeeded", out.Succeeded,
		"failed", out.Failed,
		"empty", out.Empty,
	)
	return out, nil
}

// scrapeVenue runs one venue through the chain and classifies the
// result. Prior events and DataFreshAt survive every non-success
// outcome; only a successful extraction replaces them.
func (d *Driver) scrapeVenue(ctx context.Context, venue domain.VenueDescriptor, prior domain.CachedVenueEntry) domain.CachedVenueEntry {
	now := d.now().UTC()

	entry := domain.CachedVenueEntry{
		Domain:          venue.Domain,
		VenueName:       venue.Name,
		Category:        venue.Category,
		City:            venue.City,
		Events:          prior.Events,
		Method:          prior.Method,
		DataFreshAt:     prior.DataFreshAt,
		LastAttemptedAt: now,
	}
	if entry.Events == nil {
		entry.Events = []domain.Event{}
	}

	res, err := d.extractor.Run(ctx, venue, now)
	if err != nil {
		if errors.Is(err, fetch.ErrEmptyContent) {
			entry.Status = emptyStatus(prior)
		} else {
			entry.Status = domain.StatusError
			entry.ErrorMessage = err.Error()
		}
		d.logger.Warn("venue scrape failed",
			"domain", venue.Domain,
			"status", string(entry.Status),
			"preserved_events", len(entry.Events),
			"error", err,
		)
		metrics.IncVenueAttempt(entry.Status)
		return entry
	}

	events := domain.DedupEvents(domain.FilterUpcoming(res.Events, now))
	if len(events) == 0 {
		entry.Status = emptyStatus(prior)
		d.logger.Info("venue yielded no events",
			"domain", venue.Domain,
			"status", string(entry.Status),
			"preserved_events", len(entry.Events),
		)
		metrics.IncVenueAttempt(entry.Status)
		return entry
	}

	entry.Status = domain.StatusSuccess
	entry.Method = res.Method
	entry.Events = events
	entry.DataFreshAt = now
	entry.ErrorMessage = ""

	d.logger.Info("venue scraped",
		"domain", venue.Domain,
		"method", string(res.Method),
		"events", len(events),
	)
	metrics.IncVenueAttempt(domain.StatusSuccess)
	metrics.AddEventsExtracted(res.Method, len(events))
	return entry
}

// emptyStatus distinguishes "nothing there" from "nothing there, but
// we are still serving older events".
func emptyStatus(prior domain.CachedVenueEntry) domain.VenueStatus {
	if len(prior.Events) > 0 {
		return domain.StatusEmptyPagePreserved
	}
	return domain.StatusEmptyPage
}
