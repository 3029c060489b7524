// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/curateworld/venue-scraper/internal/domain"
)

func writeRegistry(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "venue-registry.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write registry fixture: %v", err)
	}
	return path
}

func TestLoadDedupesAndNormalizes(t *testing.T) {
	path := writeRegistry(t, `[
		{"domain": "WWW.Fillmore.com", "name": "The Fillmore", "category": "music", "city": "San Francisco", "calendar_url": "https://fillmore.com/events/"},
		{"domain": "fillmore.com", "name": "The Fillmore", "category": "music", "city": "San Francisco", "calendar_url": "https://fillmore.com/events"},
		{"domain": "badvenue.com", "name": "No Calendar", "category": "all", "calendar_url": "not-a-url"},
		{"domain": "greekberkeley.com", "name": "Greek Theatre", "category": "music", "city": "Berkeley", "calendar_url": "https://greekberkeley.com/events/?ical=1"}
	]`)

	venues, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(venues) != 2 {
		t.Fatalf("expected 2 usable venues, got %d", len(venues))
	}
	if venues[0].Domain != "fillmore.com" {
		t.Fatalf("expected normalized domain fillmore.com, got %s", venues[0].Domain)
	}
	if venues[1].Format != domain.FormatICS {
		t.Fatalf("expected ical=1 URL to detect as ics, got %q", venues[1].Format)
	}
	if venues[0].Format != domain.FormatPage {
		t.Fatalf("expected plain events page to detect as page, got %q", venues[0].Format)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing registry")
	}
}

func TestLoadEmptyRegistry(t *testing.T) {
	path := writeRegistry(t, `[]`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for registry with no usable venues")
	}
}

func TestFilter(t *testing.T) {
	venues := []domain.VenueDescriptor{
		{Domain: "fillmore.com"},
		{Domain: "greekberkeley.com"},
		{Domain: "thechapelsf.com"},
	}

	got := Filter(venues, []string{"www.thechapelsf.com", "fillmore.com"})
	if len(got) != 2 {
		t.Fatalf("expected 2 filtered venues, got %d", len(got))
	}
	if got[0].Domain != "fillmore.com" || got[1].Domain != "thechapelsf.com" {
		t.Fatalf("unexpected filter result: %+v", got)
	}
}

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		url  string
		want domain.SourceFormat
	}{
		{"https://venue.com/events.ics", domain.FormatICS},
		{"https://venue.com/events/?ical=1", domain.FormatICS},
		{"https://venue.com/wp-json/tribe/events/v1/events", domain.FormatTribe},
		{"https://venue.com/calendar", domain.FormatPage},
	}
	for _, tc := range cases {
		if got := DetectFormat(tc.url); got != tc.want {
			t.Fatalf("DetectFormat(%q) = %q, want %q", tc.url, got, tc.want)
		}
	}
}
