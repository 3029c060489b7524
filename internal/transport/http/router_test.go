// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/curateworld/venue-scraper/internal/domain"
)

type mockCacheReader struct {
	cache *domain.VenueCache
	err   error
}

func (m *mockCacheReader) Load(context.Context) (*domain.VenueCache, error) {
	return m.cache, m.err
}

type mockRunReader struct {
	record *domain.RunRecord
	err    error
}

func (m *mockRunReader) Latest(context.Context) (*domain.RunRecord, error) {
	return m.record, m.err
}

type mockHealthChecker struct{ err error }

func (m *mockHealthChecker) Check(context.Context) error { return m.err }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func statusCache() *domain.VenueCache {
	cch := domain.NewVenueCache()
	cch.Venues["fillmore.com"] = domain.CachedVenueEntry{
		Domain: "fillmore.com",
		Status: domain.StatusSuccess,
		Events: []domain.Event{{Title: "Show", StartDate: "2026-09-01T20:00:00"}},
	}
	cch.Venues["broken.com"] = domain.CachedVenueEntry{
		Domain:       "broken.com",
		Status:       domain.StatusError,
		ErrorMessage: "connect refused",
	}
	cch.LastUpdated = time.Date(2026, 8, 14, 6, 0, 0, 0, time.UTC)
	cch.RecountTotals()
	return cch
}

func TestRouter_Healthz(t *testing.T) {
	router := NewRouter(Deps{
		Cache:  &mockCacheReader{cache: domain.NewVenueCache()},
		Logger: discardLogger(),
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
}

func TestRouter_HealthzUnhealthy(t *testing.T) {
	router := NewRouter(Deps{
		Cache:  &mockCacheReader{cache: domain.NewVenueCache()},
		Health: &mockHealthChecker{err: errors.New("schema missing")},
		Logger: discardLogger(),
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503 got %d", rec.Code)
	}
}

func TestRouter_Status(t *testing.T) {
	runID := uuid.New()
	router := NewRouter(Deps{
		Cache: &mockCacheReader{cache: statusCache()},
		Runs: &mockRunReader{record: &domain.RunRecord{
			ID:        runID,
			Status:    domain.RunPartialSuccess,
			StartedAt: time.Date(2026, 8, 14, 5, 0, 0, 0, time.UTC),
		}},
		Logger: discardLogger(),
	})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}

	var resp statusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.VenueCount != 2 || resp.TotalEvents != 1 {
		t.Fatalf("unexpected totals: %+v", resp)
	}
	if resp.StatusCounts["success"] != 1 || resp.StatusCounts["error"] != 1 {
		t.Fatalf("unexpected status counts: %+v", resp.StatusCounts)
	}
	if resp.FailedCount != 1 {
		t.Fatalf("expected 1 failed venue, got %d", resp.FailedCount)
	}
	if resp.LastRun == nil || resp.LastRun.ID != runID.String() {
		t.Fatalf("expected last run in response, got %+v", resp.LastRun)
	}
}

func TestRouter_StatusWithoutLedger(t *testing.T) {
	router := NewRouter(Deps{
		Cache:  &mockCacheReader{cache: statusCache()},
		Logger: discardLogger(),
	})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}

	var resp statusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.LastRun != nil {
		t.Fatalf("expected no last run, got %+v", resp.LastRun)
	}
}

func TestRouter_StatusCacheError(t *testing.T) {
	router := NewRouter(Deps{
		Cache:  &mockCacheReader{err: errors.New("disk gone")},
		Logger: discardLogger(),
	})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500 got %d", rec.Code)
	}
}

func TestRouter_StatusFailed(t *testing.T) {
	router := NewRouter(Deps{
		Cache:  &mockCacheReader{cache: statusCache()},
		Logger: discardLogger(),
	})

	req := httptest.NewRequest(http.MethodGet, "/status/failed", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}

	var resp struct {
		Failed []struct {
			Domain string `json:"domain"`
			Error  string `json:"error"`
		} `json:"failed"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Failed) != 1 || resp.Failed[0].Domain != "broken.com" {
		t.Fatalf("unexpected failed list: %+v", resp.Failed)
	}
}

func TestRouter_Version(t *testing.T) {
	router := NewRouter(Deps{
		Cache:   &mockCacheReader{cache: domain.NewVenueCache()},
		Logger:  discardLogger(),
		Version: "1.2.3",
	})

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["version"] != "1.2.3" || resp["commit"] != "none" {
		t.Fatalf("unexpected version payload: %+v", resp)
	}
}

func TestRouter_Metrics(t *testing.T) {
	router := NewRouter(Deps{
		Cache:  &mockCacheReader{cache: domain.NewVenueCache()},
		Logger: discardLogger(),
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
}
