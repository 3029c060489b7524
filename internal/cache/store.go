// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/curateworld/venue-scraper/internal/domain"
)

// Store is the single persistence choke point the whole pipeline writes
// through. Reads prefer the relational backend and fall back to the
// file; writes always land on the file, and reach Postgres only when
// the run is authorized to write there.
type Store struct {
	file    *FileStore
	pg      *PGStore
	logger  *slog.Logger
	writeDB bool
}

func NewStore(file *FileStore, pg *PGStore, writeDB bool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{file: file, pg: pg, logger: logger, writeDB: writeDB && pg != nil}
}

// WritesDB reports whether this store is authorized to write Postgres.
func (s *Store) WritesDB() bool {
	return s.writeDB
}

// Load returns the current cache, preferring the relational backend.
// A broken or empty Postgres never blocks startup; the file is the
// durable source of truth.
func (s *Store) Load(ctx context.Context) (*domain.VenueCache, error) {
	if s.pg != nil {
		cache, err := s.pg.Load(ctx)
		if err != nil {
			s.logger.Warn("relational cache read failed, falling back to file", "error", err)
		} else if len(cache.Venues) > 0 {
			return cache, nil
		}
	}
	return s.file.Load()
}

// PersistVenue records one venue's updated entry: the file is rewritten
// atomically, and the single changed row is upserted to Postgres when
// authorized. Postgres failures degrade to file-only persistence.
func (s *Store) PersistVenue(ctx context.Context, cache *domain.VenueCache, domainKey string) error {
	cache.RecountTotals()
	if err := s.file.Save(cache); err != nil {
		return fmt.Errorf("persisting cache after %s: %w", domainKey, err)
	}

	if !s.writeDB {
		return nil
	}
	entry, ok := cache.Venues[domainKey]
	if !ok {
		return nil
	}
	if err := s.pg.UpsertVenue(ctx, entry); err != nil {
		s.logger.Warn("relational upsert failed, continuing file-only",
			"domain", domainKey,
			"error", err,
		)
	}
	return nil
}

// PersistMeta writes the aggregate markers after a run finishes.
func (s *Store) PersistMeta(ctx context.Context, cache *domain.VenueCache) error {
	cache.RecountTotals()
	if err := s.file.Save(cache); err != nil {
		return fmt.Errorf("persisting cache metadata: %w", err)
	}
	if s.writeDB {
		if err := s.pg.SaveMeta(ctx, cache); err != nil {
			s.logger.Warn("relational meta upsert failed", "error", err)
		}
	}
	return nil
}
