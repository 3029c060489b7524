// SPDX-License-Identifier: Apache-2.0

package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/curateworld/venue-scraper/internal/cache"
	"github.com/curateworld/venue-scraper/internal/domain"
	"github.com/curateworld/venue-scraper/internal/extract"
	"github.com/curateworld/venue-scraper/internal/fetch"
)

var testNow = time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)

type stubExtractor struct {
	results map[string]extract.Result
	errs    map[string]error
	calls   []string
}

func (s *stubExtractor) Run(_ context.Context, venue domain.VenueDescriptor, _ time.Time) (extract.Result, error) {
	s.calls = append(s.calls, venue.Domain)
	if err, ok := s.errs[venue.Domain]; ok {
		return extract.Result{}, err
	}
	return s.results[venue.Domain], nil
}

func newTestDriver(t *testing.T, ext Extractor, opts Options) (*Driver, *cache.Store) {
	t.Helper()
	file, err := cache.NewFileStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	store := cache.NewStore(file, nil, false, nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if opts.Sleep == nil {
		opts.Sleep = func(time.Duration) {}
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return testNow }
	}
	return NewDriver(ext, store, logger, opts), store
}

func venue(domainName string) domain.VenueDescriptor {
	return domain.VenueDescriptor{
		Domain:      domainName,
		Name:        "Venue " + domainName,
		Category:    "music",
		City:        "San Francisco",
		CalendarURL: "https://" + domainName + "/calendar",
	}
}

func futureEvent(title, day string) domain.Event {
	return domain.Event{Title: title, StartDate: day + "T20:00:00"}
}

func TestRunSuccessReplacesPriorEvents(t *testing.T) {
	ext := &stubExtractor{results: map[string]extract.Result{
		"fillmore.com": {
			Events: []domain.Event{futureEvent("New Show", "2026-09-01")},
			Method: domain.MethodICS,
		},
	}}
	driver, _ := newTestDriver(t, ext, Options{})

	cch := domain.NewVenueCache()
	cch.Venues["fillmore.com"] = domain.CachedVenueEntry{
		Domain:      "fillmore.com",
		Status:      domain.StatusSuccess,
		Events:      []domain.Event{futureEvent("Old Show", "2026-08-20")},
		DataFreshAt: testNow.Add(-48 * time.Hour),
	}

	out, err := driver.Run(context.Background(), cch, []domain.VenueDescriptor{venue("fillmore.com")}, ScopeFull, "run-1", "full")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Succeeded != 1 || out.Attempted != 1 {
		t.Fatalf("unexpected outcome: %+v", out)
	}

	entry := cch.Venues["fillmore.com"]
	if entry.Status != domain.StatusSuccess {
		t.Fatalf("expected success, got %s", entry.Status)
	}
	if len(entry.Events) != 1 || entry.Events[0].Title != "New Show" {
		t.Fatalf("expected replaced events, got %+v", entry.Events)
	}
	if !entry.DataFreshAt.Equal(testNow) {
		t.Fatalf("expected DataFreshAt advanced to now, got %s", entry.DataFreshAt)
	}
	if entry.Method != domain.MethodICS {
		t.Fatalf("expected ics method, got %q", entry.Method)
	}
}

func TestRunPreservesEventsOnFetchError(t *testing.T) {
	ext := &stubExtractor{errs: map[string]error{
		"fillmore.com": fmt.Errorf("fetching page: %w", errors.New("connect refused")),
	}}
	driver, _ := newTestDriver(t, ext, Options{})

	freshAt := testNow.Add(-24 * time.Hour)
	cch := domain.NewVenueCache()
	cch.Venues["fillmore.com"] = domain.CachedVenueEntry{
		Domain:      "fillmore.com",
		Status:      domain.StatusSuccess,
		Method:      domain.MethodLLM,
		Events:      []domain.Event{futureEvent("Kept Show", "2026-09-10")},
		DataFreshAt: freshAt,
	}

	out, err := driver.Run(context.Background(), cch, []domain.VenueDescriptor{venue("fillmore.com")}, ScopeFull, "run-1", "full")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Failed != 1 {
		t.Fatalf("expected 1 failed, got %+v", out)
	}

	entry := cch.Venues["fillmore.com"]
	if entry.Status != domain.StatusError {
		t.Fatalf("expected error status, got %s", entry.Status)
	}
	if len(entry.Events) != 1 || entry.Events[0].Title != "Kept Show" {
		t.Fatalf("expected preserved events, got %+v", entry.Events)
	}
	if !entry.DataFreshAt.Equal(freshAt) {
		t.Fatalf("expected DataFreshAt untouched, got %s", entry.DataFreshAt)
	}
	if !entry.LastAttemptedAt.Equal(testNow) {
		t.Fatalf("expected LastAttemptedAt advanced, got %s", entry.LastAttemptedAt)
	}
	if entry.ErrorMessage == "" {
		t.Fatal("expected recorded error message")
	}
}

func TestRunEmptyPageStatuses(t *testing.T) {
	ext := &stubExtractor{errs: map[string]error{
		"withprior.com": fmt.Errorf("reading calendar: %w", fetch.ErrEmptyContent),
		"fresh.com":     fmt.Errorf("reading calendar: %w", fetch.ErrEmptyContent),
	}}
	driver, _ := newTestDriver(t, ext, Options{})

	cch := domain.NewVenueCache()
	cch.Venues["withprior.com"] = domain.CachedVenueEntry{
		Domain: "withprior.com",
		Status: domain.StatusSuccess,
		Events: []domain.Event{futureEvent("Held Over", "2026-09-05")},
	}

	venues := []domain.VenueDescriptor{venue("withprior.com"), venue("fresh.com")}
	out, err := driver.Run(context.Background(), cch, venues, ScopeFull, "run-1", "full")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Empty != 2 {
		t.Fatalf("expected 2 empty, got %+v", out)
	}

	if got := cch.Venues["withprior.com"]; got.Status != domain.StatusEmptyPagePreserved {
		t.Fatalf("expected empty_page_preserved, got %s", got.Status)
	}
	if got := cch.Venues["withprior.com"]; len(got.Events) != 1 {
		t.Fatalf("expected preserved events, got %+v", got.Events)
	}
	if got := cch.Venues["fresh.com"]; got.Status != domain.StatusEmptyPage {
		t.Fatalf("expected empty_page, got %s", got.Status)
	}
}

func TestRunZeroExtractedTreatedAsEmpty(t *testing.T) {
	ext := &stubExtractor{results: map[string]extract.Result{
		"quiet.com": {Events: []domain.Event{}, Method: domain.MethodNone},
	}}
	driver, _ := newTestDriver(t, ext, Options{})

	cch := domain.NewVenueCache()
	out, err := driver.Run(context.Background(), cch, []domain.VenueDescriptor{venue("quiet.com")}, ScopeFull, "run-1", "full")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Empty != 1 {
		t.Fatalf("expected empty outcome, got %+v", out)
	}
	if got := cch.Venues["quiet.com"]; got.Status != domain.StatusEmptyPage {
		t.Fatalf("expected empty_page, got %s", got.Status)
	}
}

func TestRunDedupsAndDropsPastEvents(t *testing.T) {
	ext := &stubExtractor{results: map[string]extract.Result{
		"dupes.com": {
			Events: []domain.Event{
				futureEvent("Same Show", "2026-09-01"),
				futureEvent("Same Show", "2026-09-01"),
				futureEvent("Past Show", "2026-07-01"),
				futureEvent("Other Show", "2026-09-02"),
			},
			Method: domain.MethodURLPattern,
		},
	}}
	driver, _ := newTestDriver(t, ext, Options{})

	cch := domain.NewVenueCache()
	if _, err := driver.Run(context.Background(), cch, []domain.VenueDescriptor{venue("dupes.com")}, ScopeFull, "run-1", "full"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	entry := cch.Venues["dupes.com"]
	if len(entry.Events) != 2 {
		t.Fatalf("expected 2 events after dedup and cutoff, got %+v", entry.Events)
	}
	if cch.TotalEvents != 2 {
		t.Fatalf("expected recounted totals, got %d", cch.TotalEvents)
	}
}

func TestLastUpdatedAdvancesOnlyOnFullSuccess(t *testing.T) {
	okResult := extract.Result{
		Events: []domain.Event{futureEvent("Show", "2026-09-01")},
		Method: domain.MethodICS,
	}

	t.Run("full run with success advances", func(t *testing.T) {
		ext := &stubExtractor{results: map[string]extract.Result{"a.com": okResult}}
		driver, _ := newTestDriver(t, ext, Options{})
		cch := domain.NewVenueCache()
		if _, err := driver.Run(context.Background(), cch, []domain.VenueDescriptor{venue("a.com")}, ScopeFull, "run-1", "full"); err != nil {
			t.Fatalf("Run: %v", err)
		}
		if !cch.LastUpdated.Equal(testNow) {
			t.Fatalf("expected LastUpdated=now, got %s", cch.LastUpdated)
		}
		if cch.LastRunID != "run-1" || cch.LastRunMode != "full" {
			t.Fatalf("expected run markers recorded, got %q/%q", cch.LastRunID, cch.LastRunMode)
		}
	})

	t.Run("partial run never advances", func(t *testing.T) {
		ext := &stubExtractor{results: map[string]extract.Result{"a.com": okResult}}
		driver, _ := newTestDriver(t, ext, Options{})
		cch := domain.NewVenueCache()
		if _, err := driver.Run(context.Background(), cch, []domain.VenueDescriptor{venue("a.com")}, ScopePartial, "run-2", "retry"); err != nil {
			t.Fatalf("Run: %v", err)
		}
		if !cch.LastUpdated.IsZero() {
			t.Fatalf("expected LastUpdated untouched, got %s", cch.LastUpdated)
		}
	})

	t.Run("full run with zero successes never advances", func(t *testing.T) {
		ext := &stubExtractor{errs: map[string]error{"a.com": errors.New("down")}}
		driver, _ := newTestDriver(t, ext, Options{})
		cch := domain.NewVenueCache()
		if _, err := driver.Run(context.Background(), cch, []domain.VenueDescriptor{venue("a.com")}, ScopeFull, "run-3", "full"); err != nil {
			t.Fatalf("Run: %v", err)
		}
		if !cch.LastUpdated.IsZero() {
			t.Fatalf("expected LastUpdated untouched, got %s", cch.LastUpdated)
		}
	})
}

func TestRunSleepsBetweenVenues(t *testing.T) {
	ext := &stubExtractor{}
	var slept []time.Duration
	driver, _ := newTestDriver(t, ext, Options{
		VenueDelay: 250 * time.Millisecond,
		Sleep:      func(d time.Duration) { slept = append(slept, d) },
	})

	venues := []domain.VenueDescriptor{venue("a.com"), venue("b.com"), venue("c.com")}
	if _, err := driver.Run(context.Background(), domain.NewVenueCache(), venues, ScopeFull, "run-1", "full"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(slept) != 2 {
		t.Fatalf("expected a sleep between each venue pair, got %d", len(slept))
	}
	for _, d := range slept {
		if d != 250*time.Millisecond {
			t.Fatalf("unexpected sleep duration %s", d)
		}
	}
	if len(ext.calls) != 3 {
		t.Fatalf("expected all venues attempted, got %v", ext.calls)
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ext := &stubExtractor{}
	driver, _ := newTestDriver(t, ext, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := driver.Run(ctx, domain.NewVenueCache(), []domain.VenueDescriptor{venue("a.com")}, ScopeFull, "run-1", "full")
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if len(ext.calls) != 0 {
		t.Fatalf("expected no venue attempts, got %v", ext.calls)
	}
}

func TestRunIsIdempotentForIdenticalInput(t *testing.T) {
	ext := &stubExtractor{results: map[string]extract.Result{
		"a.com": {
			Events: []domain.Event{futureEvent("Show", "2026-09-01")},
			Method: domain.MethodICS,
		},
	}}
	driver, _ := newTestDriver(t, ext, Options{})
	venues := []domain.VenueDescriptor{venue("a.com")}

	cch := domain.NewVenueCache()
	if _, err := driver.Run(context.Background(), cch, venues, ScopeFull, "run-1", "full"); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	first := cch.Venues["a.com"]

	if _, err := driver.Run(context.Background(), cch, venues, ScopeFull, "run-2", "full"); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	second := cch.Venues["a.com"]

	if len(first.Events) != len(second.Events) || first.Status != second.Status {
		t.Fatalf("expected identical entries, got %+v vs %+v", first, second)
	}
	if cch.TotalEvents != 1 {
		t.Fatalf("expected stable totals, got %d", cch.TotalEvents)
	}
}
