// SPDX-License-Identifier: Apache-2.0

// Package registry loads the static venue descriptor list that drives
// every scrape run.
package registry

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/curateworld/venue-scraper/internal/domain"
)

// Load reads the registry file, drops rows without an http(s) calendar
// URL and deduplicates by (normalized domain, calendar URL). Order is
// preserved so scrape runs iterate venues deterministically.
func Load(path string) ([]domain.VenueDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading venue registry: %w", err)
	}

	var raw []domain.VenueDescriptor
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing venue registry: %w", err)
	}

	seen := make(map[string]struct{}, len(raw))
	venues := make([]domain.VenueDescriptor, 0, len(raw))
	for _, v := range raw {
		v.Domain = domain.NormalizeHost(v.Domain)
		v.CalendarURL = strings.TrimSpace(v.CalendarURL)
		if v.Domain == "" || !strings.HasPrefix(v.CalendarURL, "http") {
			continue
		}
		key := v.Domain + "|" + strings.TrimRight(v.CalendarURL, "/")
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if v.Format == domain.FormatAuto {
			v.Format = DetectFormat(v.CalendarURL)
		}
		venues = append(venues, v)
	}

	if len(venues) == 0 {
		return nil, fmt.Errorf("venue registry %s contains no usable venues", path)
	}
	return venues, nil
}

// Filter returns the descriptors whose domain appears in domains.
// Lookup is by normalized host so operator input can carry www.
func Filter(venues []domain.VenueDescriptor, domains []string) []domain.VenueDescriptor {
	want := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		want[domain.NormalizeHost(d)] = struct{}{}
	}
	out := make([]domain.VenueDescriptor, 0, len(domains))
	for _, v := range venues {
		if _, ok := want[v.Domain]; ok {
			out = append(out, v)
		}
	}
	return out
}

// DetectFormat guesses the source format from the calendar URL.
// ICS feeds advertise themselves in the URL; The Events Calendar sites
// expose the tribe REST path. Everything else goes through the reader.
func DetectFormat(calendarURL string) domain.SourceFormat {
	lowered := strings.ToLower(calendarURL)
	if strings.Contains(lowered, ".ics") || strings.Contains(lowered, "ical=1") {
		return domain.FormatICS
	}
	if strings.Contains(lowered, "/wp-json/tribe/") {
		return domain.FormatTribe
	}
	if u, err := url.Parse(calendarURL); err == nil {
		if strings.HasSuffix(strings.ToLower(u.Path), "/feed.ics") {
			return domain.FormatICS
		}
	}
	return domain.FormatPage
}
