// SPDX-License-Identifier: Apache-2.0

// Package cache persists the venue cache to its two backends: a durable
// JSON file that survives anything, and Postgres for shared reads.
package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/curateworld/venue-scraper/internal/domain"
)

const cacheFileName = "venue-events-cache.json"

// FileStore is the durable backend. Every save goes through a temp file
// and an atomic rename, so a reader never observes a half-written cache
// and a crash mid-write leaves the previous cache intact.
type FileStore struct {
	path   string
	logger *slog.Logger
}

func NewFileStore(dataDir string, logger *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{
		path:   filepath.Join(dataDir, cacheFileName),
		logger: logger,
	}, nil
}

// Path returns the backing file location (reports reference it).
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the cache file. A missing file is a first run, not an
// error.
func (s *FileStore) Load() (*domain.VenueCache, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.NewVenueCache(), nil
		}
		return nil, fmt.Errorf("reading cache file: %w", err)
	}

	var cache domain.VenueCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, fmt.Errorf("parsing cache file: %w", err)
	}
	if cache.Venues == nil {
		cache.Venues = make(map[string]domain.CachedVenueEntry)
	}
	return &cache, nil
}

// Save writes the whole cache atomically.
func (s *FileStore) Save(cache *domain.VenueCache) error {
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cache: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), cacheFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp cache file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp cache file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing cache file: %w", err)
	}
	return nil
}
