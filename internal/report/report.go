// SPDX-License-Identifier: Apache-2.0

// Package report writes the per-run operator report: a markdown page
// for humans, a JSON twin for tooling, and a latest.json pointer so
// dashboards never have to guess the newest file name.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/curateworld/venue-scraper/internal/domain"
)

const reportsDirName = "reports"

type VenueRow struct {
	Domain        string                  `json:"domain"`
	VenueName     string                  `json:"venue_name"`
	Status        domain.VenueStatus      `json:"status"`
	Method        domain.ExtractionMethod `json:"method,omitempty"`
	EventCount    int                     `json:"event_count"`
	LastAttempted time.Time               `json:"last_attempted_at"`
	DataFreshAt   time.Time               `json:"data_fresh_at,omitzero"`
	Error         string                  `json:"error,omitempty"`
}

type Report struct {
	GeneratedAt  time.Time          `json:"generated_at_utc"`
	RunID        string             `json:"run_id"`
	RunStatus    domain.RunStatus   `json:"run_status"`
	Stats        domain.RunStats    `json:"stats"`
	StatusCounts map[string]int     `json:"status_counts"`
	TotalEvents  int                `json:"total_events"`
	Venues       []VenueRow         `json:"venues"`
	Outstanding  []VenueRow         `json:"outstanding_failures"`
}

// Build snapshots the cache into a report. Outstanding failures carry
// their last winning method so persistently ambiguous venues can be
// spotted and re-curated in the registry.
func Build(cch *domain.VenueCache, runID string, runStatus domain.RunStatus, stats domain.RunStats, now time.Time) *Report {
	rep := &Report{
		GeneratedAt:  now.UTC(),
		RunID:        runID,
		RunStatus:    runStatus,
		Stats:        stats,
		StatusCounts: make(map[string]int),
		TotalEvents:  cch.TotalEvents,
		Venues:       make([]VenueRow, 0, len(cch.Venues)),
	}

	for status, n := range cch.StatusCounts() {
		rep.StatusCounts[string(status)] = n
	}

	for _, entry := range cch.Venues {
		row := VenueRow{
			Domain:        entry.Domain,
			VenueName:     entry.VenueName,
			Status:        entry.Status,
			Method:        entry.Method,
			EventCount:    len(entry.Events),
			LastAttempted: entry.LastAttemptedAt,
			DataFreshAt:   entry.DataFreshAt,
			Error:         entry.ErrorMessage,
		}
		rep.Venues = append(rep.Venues, row)
		if entry.Failed() {
			rep.Outstanding = append(rep.Outstanding, row)
		}
	}

	sort.Slice(rep.Venues, func(i, j int) bool { return rep.Venues[i].Domain < rep.Venues[j].Domain })
	sort.Slice(rep.Outstanding, func(i, j int) bool { return rep.Outstanding[i].Domain < rep.Outstanding[j].Domain })
	return rep
}

// Write lands the report under <dataDir>/reports and repoints
// latest.json at the new JSON file.
func Write(dataDir string, rep *Report) (mdPath, jsonPath string, err error) {
	dir := filepath.Join(dataDir, reportsDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("creating reports directory: %w", err)
	}

	day := rep.GeneratedAt.Format("2006-01-02")
	mdPath = filepath.Join(dir, "scrape-report-"+day+".md")
	jsonPath = filepath.Join(dir, "scrape-report-"+day+".json")

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("encoding report: %w", err)
	}
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return "", "", fmt.Errorf("writing report json: %w", err)
	}
	if err := os.WriteFile(mdPath, []byte(renderMarkdown(rep)), 0o644); err != nil {
		return "", "", fmt.Errorf("writing report markdown: %w", err)
	}

	pointer := struct {
		Report      string    `json:"report"`
		Markdown    string    `json:"markdown"`
		RunID       string    `json:"run_id"`
		GeneratedAt time.Time `json:"generated_at_utc"`
	}{
		Report:      filepath.Base(jsonPath),
		Markdown:    filepath.Base(mdPath),
		RunID:       rep.RunID,
		GeneratedAt: rep.GeneratedAt,
	}
	pointerData, err := json.MarshalIndent(pointer, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("encoding latest pointer: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "latest.json"), pointerData, 0o644); err != nil {
		return "", "", fmt.Errorf("writing latest pointer: %w", err)
	}
	return mdPath, jsonPath, nil
}

func renderMarkdown(rep *Report) string {
	var lines []string
	add := func(format string, args ...any) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}

	add("# Scrape Run Report")
	add("")
	add("Generated: %s", rep.GeneratedAt.Format(time.RFC3339))
	add("Run: %s (%s, %s)", rep.RunID, rep.Stats.Mode, rep.RunStatus)
	add("Venues attempted: %d", rep.Stats.VenuesAttempted)
	add("Total cached events: %d", rep.TotalEvents)
	add("Duration: %dms", rep.Stats.DurationMS)
	add("")

	add("## Status Breakdown")
	for _, status := range []domain.VenueStatus{
		domain.StatusSuccess,
		domain.StatusError,
		domain.StatusEmptyPage,
		domain.StatusEmptyPagePreserved,
	} {
		add("- %s: %d", status, rep.StatusCounts[string(status)])
	}
	add("")

	add("## Venues")
	add("")
	add("| Domain | Status | Method | Events | Fresh At |")
	add("| --- | --- | --- | ---: | --- |")
	for _, row := range rep.Venues {
		freshAt := "n/a"
		if !row.DataFreshAt.IsZero() {
			freshAt = row.DataFreshAt.Format("2006-01-02")
		}
		add("| %s | %s | %s | %d | %s |", row.Domain, row.Status, orDash(string(row.Method)), row.EventCount, freshAt)
	}
	add("")

	if len(rep.Outstanding) > 0 {
		add("## Outstanding Failures")
		add("")
		for _, row := range rep.Outstanding {
			add("### %s", row.Domain)
			add("- Venue: %s", row.VenueName)
			add("- Status: %s", row.Status)
			add("- Last method: %s", orDash(string(row.Method)))
			add("- Preserved events: %d", row.EventCount)
			if row.Error != "" {
				add("- Error: `%s`", row.Error)
			}
			add("")
		}
	}

	add("## Notes")
	add("- Failed venues keep serving their previously cached events.")
	add("- Venues stuck on a fallback method are candidates for registry curation.")
	add("")

	return strings.Join(lines, "\n")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
