// SPDX-License-Identifier: Apache-2.0

// Package aggregate rebuilds the category-keyed consumer cache from the
// per-venue cache after every run.
package aggregate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/curateworld/venue-scraper/internal/categorize"
	"github.com/curateworld/venue-scraper/internal/domain"
)

const aggregateFileName = "events-by-category.json"

// VenueEvent is one event annotated with where it came from, ready for
// the consumer surface.
type VenueEvent struct {
	domain.Event
	VenueName string `json:"venueName"`
	Domain    string `json:"domain"`
}

// CategoryCache is the consumer-facing aggregate: every cached event,
// grouped by category, sorted by start date.
type CategoryCache struct {
	Categories  map[string][]VenueEvent `json:"categories"`
	GeneratedAt time.Time               `json:"generatedAt"`
	TotalEvents int                     `json:"totalEvents"`
}

// Rebuild regroups the whole venue cache by category. Events without a
// usable category inherit their venue's; a venue category of "all"
// falls through the categorizer on the event text.
func Rebuild(cch *domain.VenueCache, now time.Time) *CategoryCache {
	out := &CategoryCache{
		Categories:  make(map[string][]VenueEvent),
		GeneratedAt: now.UTC(),
	}

	for _, entry := range cch.Venues {
		for _, event := range entry.Events {
			cat := eventCategory(event, entry)
			out.Categories[cat] = append(out.Categories[cat], VenueEvent{
				Event:     event,
				VenueName: entry.VenueName,
				Domain:    entry.Domain,
			})
			out.TotalEvents++
		}
	}

	for cat := range out.Categories {
		events := out.Categories[cat]
		sort.Slice(events, func(i, j int) bool {
			if events[i].StartDate != events[j].StartDate {
				return events[i].StartDate < events[j].StartDate
			}
			return events[i].Title < events[j].Title
		})
		out.Categories[cat] = events
	}
	return out
}

func eventCategory(event domain.Event, entry domain.CachedVenueEntry) string {
	if event.Category != "" && event.Category != "all" && categorize.Known(event.Category) {
		return event.Category
	}
	if entry.Category != "" && entry.Category != "all" && categorize.Known(entry.Category) {
		return entry.Category
	}
	return categorize.Assign(event.Title+" "+event.Description, entry.Category)
}

// Save writes the aggregate next to the venue cache, atomically.
func Save(dataDir string, agg *CategoryCache) (string, error) {
	path := filepath.Join(dataDir, aggregateFileName)

	data, err := json.MarshalIndent(agg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding category aggregate: %w", err)
	}

	tmp, err := os.CreateTemp(dataDir, aggregateFileName+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("creating temp aggregate file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("writing temp aggregate file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("closing temp aggregate file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("replacing aggregate file: %w", err)
	}
	return path, nil
}
