// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/curateworld/venue-scraper/internal/domain"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	cache := domain.NewVenueCache()
	cache.Venues["fillmore.com"] = domain.CachedVenueEntry{
		Domain:    "fillmore.com",
		VenueName: "The Fillmore",
		Category:  "music",
		Status:    domain.StatusSuccess,
		Events: []domain.Event{
			{Title: "Show", StartDate: "2026-09-01T20:00:00"},
		},
		LastAttemptedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		DataFreshAt:     time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	cache.LastUpdated = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	cache.RecountTotals()

	if err := store.Save(cache); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	entry, ok := loaded.Venues["fillmore.com"]
	if !ok {
		t.Fatal("expected venue entry after round trip")
	}
	if len(entry.Events) != 1 || entry.Events[0].Title != "Show" {
		t.Fatalf("unexpected events after round trip: %+v", entry.Events)
	}
	if loaded.TotalEvents != 1 {
		t.Fatalf("expected TotalEvents=1, got %d", loaded.TotalEvents)
	}
	if !loaded.LastUpdated.Equal(cache.LastUpdated) {
		t.Fatalf("expected LastUpdated preserved, got %s", loaded.LastUpdated)
	}
}

func TestFileStoreFirstRun(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	cache, err := store.Load()
	if err != nil {
		t.Fatalf("Load on first run: %v", err)
	}
	if len(cache.Venues) != 0 {
		t.Fatalf("expected empty cache, got %d venues", len(cache.Venues))
	}
	if cache.Venues == nil {
		t.Fatal("expected initialized venues map")
	}
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, nil)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := store.Save(domain.NewVenueCache()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
	if _, err := os.Stat(filepath.Join(dir, cacheFileName)); err != nil {
		t.Fatalf("expected cache file present: %v", err)
	}
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, nil)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := os.WriteFile(store.Path(), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}
	if _, err := store.Load(); err == nil {
		t.Fatal("expected error for corrupt cache file")
	}
}

func TestStoreLoadFallsBackToFile(t *testing.T) {
	file, err := NewFileStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	seed := domain.NewVenueCache()
	seed.Venues["venue.com"] = domain.CachedVenueEntry{Domain: "venue.com", Status: domain.StatusSuccess}
	if err := file.Save(seed); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// No Postgres wired at all: reads come from the file.
	store := NewStore(file, nil, true, nil)
	if store.WritesDB() {
		t.Fatal("store without a pg backend must not claim db writes")
	}

	cache, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := cache.Venues["venue.com"]; !ok {
		t.Fatal("expected file-backed venue entry")
	}
}

func TestStorePersistVenueRecounts(t *testing.T) {
	file, err := NewFileStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	store := NewStore(file, nil, false, nil)

	cache := domain.NewVenueCache()
	cache.Venues["venue.com"] = domain.CachedVenueEntry{
		Domain: "venue.com",
		Status: domain.StatusSuccess,
		Events: []domain.Event{
			{Title: "A", StartDate: "2026-09-01T20:00:00"},
			{Title: "B", StartDate: "2026-09-02T20:00:00"},
		},
	}

	if err := store.PersistVenue(context.Background(), cache, "venue.com"); err != nil {
		t.Fatalf("PersistVenue: %v", err)
	}
	if cache.TotalEvents != 2 {
		t.Fatalf("expected recounted totals, got %d", cache.TotalEvents)
	}
}
