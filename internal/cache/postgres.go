// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/curateworld/venue-scraper/internal/domain"
)

// PGStore is the shared relational backend. It mirrors the file cache
// row-per-venue so the request-serving layer can read it without
// touching this process.
type PGStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPGStore(pool *pgxpool.Pool, logger *slog.Logger) *PGStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PGStore{pool: pool, logger: logger}
}

// Load reads the whole cache. An empty table returns an empty cache;
// the resolver treats that as "fall back to the file".
func (s *PGStore) Load(ctx context.Context) (*domain.VenueCache, error) {
	cache := domain.NewVenueCache()

	rows, err := s.pool.Query(ctx, `
		SELECT domain, venue_name, category, city, status, method,
		       events, last_attempted_at, data_fresh_at, error_message
		FROM venue_cache
	`)
	if err != nil {
		return nil, fmt.Errorf("querying venue_cache: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			entry       domain.CachedVenueEntry
			eventsJSON  []byte
			dataFreshAt *time.Time
			errMessage  *string
		)
		if err := rows.Scan(
			&entry.Domain,
			&entry.VenueName,
			&entry.Category,
			&entry.City,
			&entry.Status,
			&entry.Method,
			&eventsJSON,
			&entry.LastAttemptedAt,
			&dataFreshAt,
			&errMessage,
		); err != nil {
			return nil, fmt.Errorf("scanning venue_cache row: %w", err)
		}
		if dataFreshAt != nil {
			entry.DataFreshAt = *dataFreshAt
		}
		if errMessage != nil {
			entry.ErrorMessage = *errMessage
		}
		if len(eventsJSON) > 0 {
			if err := json.Unmarshal(eventsJSON, &entry.Events); err != nil {
				return nil, fmt.Errorf("decoding events for %s: %w", entry.Domain, err)
			}
		}
		if entry.Events == nil {
			entry.Events = []domain.Event{}
		}
		cache.Venues[entry.Domain] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating venue_cache rows: %w", err)
	}

	if err := s.loadMeta(ctx, cache); err != nil {
		return nil, err
	}
	cache.RecountTotals()
	return cache, nil
}

func (s *PGStore) loadMeta(ctx context.Context, cache *domain.VenueCache) error {
	var (
		lastUpdated *time.Time
		lastRunID   *string
		lastRunMode *string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT last_updated, last_run_id, last_run_mode
		FROM venue_cache_meta WHERE id = TRUE
	`).Scan(&lastUpdated, &lastRunID, &lastRunMode)
	if err != nil {
		// Missing meta row just means no full run has completed yet.
		s.logger.Debug("no cache meta row", "error", err)
		return nil
	}
	if lastUpdated != nil {
		cache.LastUpdated = *lastUpdated
	}
	if lastRunID != nil {
		cache.LastRunID = *lastRunID
	}
	if lastRunMode != nil {
		cache.LastRunMode = *lastRunMode
	}
	return nil
}

// UpsertVenue writes one venue entry.
func (s *PGStore) UpsertVenue(ctx context.Context, entry domain.CachedVenueEntry) error {
	eventsJSON, err := json.Marshal(entry.Events)
	if err != nil {
		return fmt.Errorf("encoding events for %s: %w", entry.Domain, err)
	}

	var dataFreshAt *time.Time
	if !entry.DataFreshAt.IsZero() {
		dataFreshAt = &entry.DataFreshAt
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO venue_cache (
			domain, venue_name, category, city, status, method,
			events, last_attempted_at, data_fresh_at, error_message, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW())
		ON CONFLICT (domain) DO UPDATE SET
			venue_name = EXCLUDED.venue_name,
			category = EXCLUDED.category,
			city = EXCLUDED.city,
			status = EXCLUDED.status,
			method = EXCLUDED.method,
			events = EXCLUDED.events,
			last_attempted_at = EXCLUDED.last_attempted_at,
			data_fresh_at = EXCLUDED.data_fresh_at,
			error_message = EXCLUDED.error_message,
			updated_at = NOW()
	`,
		entry.Domain,
		entry.VenueName,
		entry.Category,
		entry.City,
		string(entry.Status),
		string(entry.Method),
		eventsJSON,
		entry.LastAttemptedAt,
		dataFreshAt,
		nullableString(entry.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("upserting venue %s: %w", entry.Domain, err)
	}
	return nil
}

// SaveMeta records the aggregate freshness markers.
func (s *PGStore) SaveMeta(ctx context.Context, cache *domain.VenueCache) error {
	var lastUpdated *time.Time
	if !cache.LastUpdated.IsZero() {
		lastUpdated = &cache.LastUpdated
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO venue_cache_meta (id, last_updated, total_events, last_run_id, last_run_mode, updated_at)
		VALUES (TRUE, $1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET
			last_updated = EXCLUDED.last_updated,
			total_events = EXCLUDED.total_events,
			last_run_id = EXCLUDED.last_run_id,
			last_run_mode = EXCLUDED.last_run_mode,
			updated_at = NOW()
	`,
		lastUpdated,
		cache.TotalEvents,
		nullableString(cache.LastRunID),
		nullableString(cache.LastRunMode),
	)
	if err != nil {
		return fmt.Errorf("upserting cache meta: %w", err)
	}
	return nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
