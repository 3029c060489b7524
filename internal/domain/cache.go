package domain

import "time"

type VenueStatus string

const (
	StatusSuccess            VenueStatus = "success"
	StatusError              VenueStatus = "error"
	StatusEmptyPage          VenueStatus = "empty_page"
	StatusEmptyPagePreserved VenueStatus = "empty_page_preserved"
)

// ExtractionMethod names which step of the extractor chain produced the
// cached events. Kept per venue so persistently ambiguous venues can be
// flagged for registry curation.
type ExtractionMethod string

const (
	MethodICS          ExtractionMethod = "ics"
	MethodTribe        ExtractionMethod = "tribe_json"
	MethodLLM          ExtractionMethod = "llm"
	MethodURLPattern   ExtractionMethod = "url_pattern"
	MethodCalendarLink ExtractionMethod = "calendar_link"
	MethodNone         ExtractionMethod = ""
)

// CachedVenueEntry is the per-venue cache record. It is overwritten on
// every attempt, but Events and DataFreshAt survive failed attempts so
// a broken fetch never erases history.
type CachedVenueEntry struct {
	Domain          string           `json:"domain"`
	VenueName       string           `json:"venueName"`
	Category        string           `json:"category"`
	City            string           `json:"city,omitempty"`
	Status          VenueStatus      `json:"status"`
	Method          ExtractionMethod `json:"method,omitempty"`
	Events          []Event          `json:"events"`
	LastAttemptedAt time.Time        `json:"lastAttemptedAt"`
	DataFreshAt     time.Time        `json:"dataFreshAt,omitzero"`
	ErrorMessage    string           `json:"errorMessage,omitempty"`
}

// Failed reports whether the venue is a candidate for the retry driver.
func (e CachedVenueEntry) Failed() bool {
	switch e.Status {
	case StatusError, StatusEmptyPage, StatusEmptyPagePreserved:
		return true
	default:
		return false
	}
}

// VenueCache is the aggregate the whole pipeline reads and writes.
// LastUpdated advances only when a full run records at least one
// success; partial runs never touch it.
type VenueCache struct {
	Venues      map[string]CachedVenueEntry `json:"venues"`
	LastUpdated time.Time                   `json:"lastUpdated,omitzero"`
	TotalEvents int                         `json:"totalEvents"`
	LastRunID   string                      `json:"lastRunId,omitempty"`
	LastRunMode string                      `json:"lastRunMode,omitempty"`
}

// NewVenueCache returns an empty cache ready for its first run.
func NewVenueCache() *VenueCache {
	return &VenueCache{Venues: make(map[string]CachedVenueEntry)}
}

// RecountTotals recomputes TotalEvents from the per-venue lists.
func (c *VenueCache) RecountTotals() {
	total := 0
	for _, v := range c.Venues {
		total += len(v.Events)
	}
	c.TotalEvents = total
}

// StatusCounts returns the number of venues per status.
func (c *VenueCache) StatusCounts() map[VenueStatus]int {
	counts := make(map[VenueStatus]int, 4)
	for _, v := range c.Venues {
		counts[v.Status]++
	}
	return counts
}

// FailedDomains lists venues currently in a failed or empty state,
// in no particular order.
func (c *VenueCache) FailedDomains() []string {
	out := make([]string, 0)
	for domain, v := range c.Venues {
		if v.Failed() {
			out = append(out, domain)
		}
	}
	return out
}
