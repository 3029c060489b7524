// SPDX-License-Identifier: Apache-2.0

// Package httptransport serves the operational status surface: health,
// cache status, metrics and version. The consumer-facing events API
// lives elsewhere; this process only reports on the pipeline.
package httptransport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/curateworld/venue-scraper/internal/metrics"
)

type Deps struct {
	Cache     CacheReader
	Runs      RunReader
	Health    HealthChecker
	Logger    *slog.Logger
	Version   string
	Commit    string
	BuildDate string
}

type statusResponse struct {
	LastUpdated  time.Time          `json:"last_updated,omitzero"`
	TotalEvents  int                `json:"total_events"`
	VenueCount   int                `json:"venue_count"`
	StatusCounts map[string]int     `json:"status_counts"`
	FailedCount  int                `json:"failed_count"`
	LastRun      *runStatusResponse `json:"last_run,omitempty"`
}

type runStatusResponse struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics.Init()
	version := valueOrDefault(deps.Version, "dev")
	commit := valueOrDefault(deps.Commit, "none")
	buildDate := valueOrDefault(deps.BuildDate, "unknown")

	r := chi.NewRouter()
	r.Use(requestIDMiddleware())
	r.Use(requestLoggingMiddleware(logger))

	// ---------------- HEALTH ----------------

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if deps.Health != nil {
			if err := deps.Health.Check(r.Context()); err != nil {
				logger.Warn("health check failed", "error", err)
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// ---------------- METRICS ----------------

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// ---------------- VERSION ----------------

	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version":    version,
			"commit":     commit,
			"build_date": buildDate,
		})
	})

	// ---------------- STATUS ----------------

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		cch, err := deps.Cache.Load(r.Context())
		if err != nil {
			logger.Error("status cache load failed", "error", err)
			http.Error(w, "failed to load cache", http.StatusInternalServerError)
			return
		}

		resp := statusResponse{
			LastUpdated:  cch.LastUpdated,
			TotalEvents:  cch.TotalEvents,
			VenueCount:   len(cch.Venues),
			StatusCounts: make(map[string]int),
			FailedCount:  len(cch.FailedDomains()),
		}
		for status, n := range cch.StatusCounts() {
			resp.StatusCounts[string(status)] = n
		}

		if deps.Runs != nil {
			if rec, err := deps.Runs.Latest(r.Context()); err != nil {
				logger.Warn("status run lookup failed", "error", err)
			} else if rec != nil {
				resp.LastRun = &runStatusResponse{
					ID:         rec.ID.String(),
					Status:     string(rec.Status),
					StartedAt:  rec.StartedAt,
					FinishedAt: rec.FinishedAt,
				}
			}
		}

		writeJSON(w, http.StatusOK, resp)
	})

	// ---------------- FAILED VENUES ----------------

	r.Get("/status/failed", func(w http.ResponseWriter, r *http.Request) {
		cch, err := deps.Cache.Load(r.Context())
		if err != nil {
			logger.Error("status cache load failed", "error", err)
			http.Error(w, "failed to load cache", http.StatusInternalServerError)
			return
		}

		type failedVenue struct {
			Domain          string    `json:"domain"`
			Status          string    `json:"status"`
			PreservedEvents int       `json:"preserved_events"`
			LastAttemptedAt time.Time `json:"last_attempted_at"`
			Error           string    `json:"error,omitempty"`
		}
		failed := make([]failedVenue, 0)
		for _, entry := range cch.Venues {
			if !entry.Failed() {
				continue
			}
			failed = append(failed, failedVenue{
				Domain:          entry.Domain,
				Status:          string(entry.Status),
				PreservedEvents: len(entry.Events),
				LastAttemptedAt: entry.LastAttemptedAt,
				Error:           entry.ErrorMessage,
			})
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"failed": failed,
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func valueOrDefault(value, defaultValue string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return defaultValue
	}
	return trimmed
}
