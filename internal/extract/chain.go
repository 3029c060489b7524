// SPDX-License-Identifier: Apache-2.0

// Package extract turns raw calendar content into canonical events.
// Methods are tried in fixed priority order; the first one yielding at
// least one event wins, and methods are never merged within one venue.
package extract

import (
	"context"
	"log/slog"
	"time"

	"github.com/curateworld/venue-scraper/internal/domain"
	"github.com/curateworld/venue-scraper/internal/fetch"
)

// DefaultFallbackOrder is policy, not an invariant: the relative value
// of the URL-pattern scan versus the calendar-link scan was tuned per
// venue in production, so operators can reorder it.
var DefaultFallbackOrder = []domain.ExtractionMethod{
	domain.MethodURLPattern,
	domain.MethodCalendarLink,
}

type Chain struct {
	Fetch         *fetch.Client
	LLM           *LLMClient
	Logger        *slog.Logger
	LookaheadDays int
	FallbackOrder []domain.ExtractionMethod
}

type Result struct {
	Events []domain.Event
	Method domain.ExtractionMethod
}

// Run executes the extraction priority chain for one venue:
// structured feed > LLM extraction > fallback scanners. A fetch failure
// on the primary method aborts the attempt; fallback fetches are
// best-effort and never turn a readable venue into a failed one.
func (c *Chain) Run(ctx context.Context, venue domain.VenueDescriptor, today time.Time) (Result, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	readerText := ""

	switch venue.Format {
	case domain.FormatICS:
		feed, err := c.Fetch.ICS(ctx, venue.CalendarURL)
		if err != nil {
			return Result{}, err
		}
		events, err := FromICS(feed, venue, today)
		if err != nil {
			return Result{}, err
		}
		if len(events) > 0 {
			return Result{Events: events, Method: domain.MethodICS}, nil
		}

	case domain.FormatTribe:
		records, err := c.Fetch.TribeEvents(ctx, venue.CalendarURL, today, c.lookahead())
		if err != nil {
			return Result{}, err
		}
		if events := FromTribe(records, venue, today); len(events) > 0 {
			return Result{Events: events, Method: domain.MethodTribe}, nil
		}

	default:
		content, err := c.Fetch.ReaderPage(ctx, venue.CalendarURL, venue.MaxContentChars)
		if err != nil {
			return Result{}, err
		}
		readerText = content

		if c.LLM.Configured() {
			events, err := c.LLM.Extract(ctx, venue, content, today)
			if err != nil {
				return Result{}, err
			}
			if len(events) > 0 {
				return Result{Events: events, Method: domain.MethodLLM}, nil
			}
		}
	}

	return c.runFallbacks(ctx, venue, today, readerText, logger), nil
}

func (c *Chain) runFallbacks(ctx context.Context, venue domain.VenueDescriptor, today time.Time, readerText string, logger *slog.Logger) Result {
	rawHTML, err := c.Fetch.RawPage(ctx, venue.CalendarURL)
	if err != nil {
		logger.Debug("raw page unavailable for fallback scan",
			"domain", venue.Domain,
			"error", err,
		)
	}
	if rawHTML == "" && readerText == "" {
		return Result{}
	}

	order := c.FallbackOrder
	if len(order) == 0 {
		order = DefaultFallbackOrder
	}

	for _, method := range order {
		var events []domain.Event
		switch method {
		case domain.MethodURLPattern:
			events = ScanEventURLs(rawHTML, readerText, venue, today)
		case domain.MethodCalendarLink:
			events = ScanCalendarLinks(rawHTML, venue, today)
		default:
			continue
		}
		if len(events) > 0 {
			logger.Info("fallback extraction succeeded",
				"domain", venue.Domain,
				"method", string(method),
				"events", len(events),
			)
			return Result{Events: events, Method: method}
		}
	}
	return Result{}
}

func (c *Chain) lookahead() int {
	if c.LookaheadDays > 0 {
		return c.LookaheadDays
	}
	return 180
}
