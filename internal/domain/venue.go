package domain

import "strings"

// Source format hints carried by the registry. An empty hint means the
// format is detected from the calendar URL at scrape time.
type SourceFormat string

const (
	FormatAuto  SourceFormat = ""
	FormatICS   SourceFormat = "ics"
	FormatTribe SourceFormat = "tribe"
	FormatPage  SourceFormat = "page"
)

// VenueDescriptor is one registry row. Descriptors are immutable once
// loaded; all mutable per-venue state lives in CachedVenueEntry.
type VenueDescriptor struct {
	Domain          string       `json:"domain"`
	Name            string       `json:"name"`
	Category        string       `json:"category"`
	City            string       `json:"city"`
	State           string       `json:"state"`
	CalendarURL     string       `json:"calendar_url"`
	Format          SourceFormat `json:"format,omitempty"`
	MaxContentChars int          `json:"max_content_chars,omitempty"`
}

// NormalizeHost lowercases a hostname and strips a leading www.
func NormalizeHost(host string) string {
	h := strings.ToLower(strings.TrimSpace(host))
	return strings.TrimPrefix(h, "www.")
}
