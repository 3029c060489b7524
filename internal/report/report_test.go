// SPDX-License-Identifier: Apache-2.0

package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/curateworld/venue-scraper/internal/domain"
)

func sampleCache() *domain.VenueCache {
	cch := domain.NewVenueCache()
	cch.Venues["fillmore.com"] = domain.CachedVenueEntry{
		Domain:    "fillmore.com",
		VenueName: "The Fillmore",
		Status:    domain.StatusSuccess,
		Method:    domain.MethodICS,
		Events:    []domain.Event{{Title: "Show", StartDate: "2026-09-01T20:00:00"}},
	}
	cch.Venues["broken.com"] = domain.CachedVenueEntry{
		Domain:       "broken.com",
		VenueName:    "Broken Venue",
		Status:       domain.StatusError,
		Method:       domain.MethodCalendarLink,
		ErrorMessage: "fetching page: connect refused",
	}
	cch.RecountTotals()
	return cch
}

func TestBuildCollectsOutstandingFailures(t *testing.T) {
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	stats := domain.RunStats{Mode: "full", VenuesAttempted: 2}

	rep := Build(sampleCache(), "run-1", domain.RunPartialSuccess, stats, now)

	if len(rep.Venues) != 2 {
		t.Fatalf("expected 2 venue rows, got %d", len(rep.Venues))
	}
	if rep.Venues[0].Domain != "broken.com" {
		t.Fatalf("expected sorted venue rows, got %q first", rep.Venues[0].Domain)
	}
	if len(rep.Outstanding) != 1 || rep.Outstanding[0].Domain != "broken.com" {
		t.Fatalf("expected broken.com outstanding, got %+v", rep.Outstanding)
	}
	if rep.Outstanding[0].Method != domain.MethodCalendarLink {
		t.Fatalf("expected last winning method on outstanding row, got %q", rep.Outstanding[0].Method)
	}
	if rep.StatusCounts["success"] != 1 || rep.StatusCounts["error"] != 1 {
		t.Fatalf("unexpected status counts: %+v", rep.StatusCounts)
	}
}

func TestWriteProducesDailyFilesAndPointer(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	rep := Build(sampleCache(), "run-1", domain.RunSuccess, domain.RunStats{Mode: "full"}, now)

	mdPath, jsonPath, err := Write(dir, rep)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if filepath.Base(mdPath) != "scrape-report-2026-08-15.md" {
		t.Fatalf("unexpected markdown name %q", mdPath)
	}
	if filepath.Base(jsonPath) != "scrape-report-2026-08-15.json" {
		t.Fatalf("unexpected json name %q", jsonPath)
	}

	md, err := os.ReadFile(mdPath)
	if err != nil {
		t.Fatalf("read markdown: %v", err)
	}
	text := string(md)
	for _, want := range []string{
		"# Scrape Run Report",
		"## Status Breakdown",
		"| fillmore.com | success | ics | 1 |",
		"### broken.com",
		"connect refused",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("markdown missing %q:\n%s", want, text)
		}
	}

	pointerData, err := os.ReadFile(filepath.Join(dir, "reports", "latest.json"))
	if err != nil {
		t.Fatalf("read latest.json: %v", err)
	}
	var pointer struct {
		Report string `json:"report"`
		RunID  string `json:"run_id"`
	}
	if err := json.Unmarshal(pointerData, &pointer); err != nil {
		t.Fatalf("decode latest.json: %v", err)
	}
	if pointer.Report != "scrape-report-2026-08-15.json" || pointer.RunID != "run-1" {
		t.Fatalf("unexpected pointer: %+v", pointer)
	}
}

func TestWriteOverwritesSameDay(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 8, 15, 6, 0, 0, 0, time.UTC)

	first := Build(sampleCache(), "run-1", domain.RunSuccess, domain.RunStats{Mode: "full"}, now)
	if _, _, err := Write(dir, first); err != nil {
		t.Fatalf("first Write: %v", err)
	}

	second := Build(sampleCache(), "run-2", domain.RunSuccess, domain.RunStats{Mode: "full"}, now.Add(6*time.Hour))
	_, jsonPath, err := Write(dir, second)
	if err != nil {
		t.Fatalf("second Write: %v", err)
	}

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var loaded Report
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if loaded.RunID != "run-2" {
		t.Fatalf("expected same-day report replaced, got run %q", loaded.RunID)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "reports"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	// Two dailies would mean the date key changed; one md + one json + pointer.
	if len(entries) != 3 {
		t.Fatalf("expected 3 files in reports dir, got %d", len(entries))
	}
}
