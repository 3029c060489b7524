// SPDX-License-Identifier: Apache-2.0

package extract

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/curateworld/venue-scraper/internal/categorize"
	"github.com/curateworld/venue-scraper/internal/domain"
)

// Venue sites encode events in a handful of recognizable URL shapes.
// The include/exclude lists below were tuned against the production
// registry; exclusions mostly remove listing, feed and commerce pages.
var (
	eventIncludePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)/event/`),
		regexp.MustCompile(`(?i)/events/`),
		regexp.MustCompile(`(?i)/show/`),
		regexp.MustCompile(`(?i)/shows/`),
		regexp.MustCompile(`(?i)/ticket`),
		regexp.MustCompile(`(?i)/buy-tickets`),
		regexp.MustCompile(`(?i)/tm-event/`),
		regexp.MustCompile(`(?i)/programs?/`),
	}

	eventExcludePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)/events?$`),
		regexp.MustCompile(`(?i)/events/page/\d+/?$`),
		regexp.MustCompile(`(?i)/events/(feed|month|list|map|day|week|calendar)/?`),
		regexp.MustCompile(`(?i)/events/(category|tag|venue|organizer)/`),
		regexp.MustCompile(`(?i)/events/v\d+/?$`),
		regexp.MustCompile(`(?i)/wp-json`),
		regexp.MustCompile(`(?i)/api/`),
		regexp.MustCompile(`(?i)/rss`),
		regexp.MustCompile(`(?i)/search`),
		regexp.MustCompile(`(?i)/cart`),
		regexp.MustCompile(`(?i)/checkout`),
		regexp.MustCompile(`(?i)/login`),
		regexp.MustCompile(`(?i)/signup`),
	}

	datedPathSuffix = regexp.MustCompile(`/(\d{4})-(\d{2})-(\d{2})(?:/\d+)?/?$`)
	markdownLink    = regexp.MustCompile(`\[([^\]]*)\]\(([^)]+)\)`)
	bareURL         = regexp.MustCompile(`https?://[^\s)\]>"']+`)
	numericTail     = regexp.MustCompile(`^\d+$`)
	dayTail         = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	slashRun        = regexp.MustCompile(`/{2,}`)
)

// ScanEventURLs is the first fallback: harvest links from the raw page
// HTML and the reader rendering, keep same-site event-shaped URLs that
// carry a date, and synthesize a minimal event from slug and date.
func ScanEventURLs(rawHTML, readerText string, venue domain.VenueDescriptor, today time.Time) []domain.Event {
	type candidate struct {
		title string
		href  string
	}
	candidates := make([]candidate, 0, 64)

	if rawHTML != "" {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML)); err == nil {
			doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
				href, _ := sel.Attr("href")
				candidates = append(candidates, candidate{title: strings.TrimSpace(sel.Text()), href: href})
			})
		}
	}

	for _, m := range markdownLink.FindAllStringSubmatch(readerText, -1) {
		candidates = append(candidates, candidate{title: strings.TrimSpace(m[1]), href: strings.TrimSpace(m[2])})
	}
	for _, raw := range bareURL.FindAllString(readerText, -1) {
		candidates = append(candidates, candidate{href: strings.TrimRight(raw, ".,;)")})
	}

	events := make([]domain.Event, 0, 16)
	for _, cand := range candidates {
		canonical := CanonicalizeURL(cand.href, venue.CalendarURL)
		if canonical == "" {
			continue
		}
		if !SameSite(canonical, venue.Domain) {
			continue
		}
		if !LikelyEventURL(canonical) {
			continue
		}

		start := startDateFromURL(canonical)
		if start == "" {
			// Undated event URLs cannot satisfy the canonical shape.
			continue
		}

		title := cand.title
		if title == "" || len(title) < 5 {
			title = titleFromURL(canonical)
		}
		if title == "" {
			continue
		}

		events = append(events, domain.Event{
			Title:     title,
			StartDate: start,
			Category:  categorize.Assign(title, venue.Category),
			EventURL:  canonical,
			City:      venue.City,
		})
	}

	return domain.DedupEvents(domain.FilterUpcoming(events, today))
}

// LikelyEventURL applies the exclusion list first, then accepts dated
// paths and the known event URL shapes.
func LikelyEventURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)

	for _, pat := range eventExcludePatterns {
		if pat.MatchString(path) {
			return false
		}
	}
	if datedPathSuffix.MatchString(path) {
		return true
	}
	for _, pat := range eventIncludePatterns {
		if pat.MatchString(path) {
			return true
		}
	}
	return false
}

// CanonicalizeURL resolves a candidate against the page URL, drops
// non-http schemes and fragments, and normalizes host and path.
func CanonicalizeURL(candidate, baseURL string) string {
	raw := strings.TrimSpace(candidate)
	if raw == "" {
		return ""
	}
	lowered := strings.ToLower(raw)
	for _, prefix := range []string{"mailto:", "tel:", "javascript:", "#"} {
		if strings.HasPrefix(lowered, prefix) {
			return ""
		}
	}
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		base = nil
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	joined := ref
	if base != nil {
		joined = base.ResolveReference(ref)
	}

	scheme := strings.ToLower(joined.Scheme)
	if scheme != "http" && scheme != "https" {
		return ""
	}
	host := domain.NormalizeHost(joined.Hostname())
	if host == "" {
		return ""
	}
	if port := joined.Port(); port != "" {
		host = host + ":" + port
	}

	path := slashRun.ReplaceAllString(joined.EscapedPath(), "/")
	if path == "" {
		path = "/"
	}
	if path != "/" {
		path = strings.TrimRight(path, "/")
	}

	return scheme + "://" + host + path
}

// SameSite matches hosts within the venue's domain, including
// subdomains in either direction (tickets.venue.com vs venue.com).
func SameSite(rawURL, venueDomain string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := domain.NormalizeHost(u.Hostname())
	target := domain.NormalizeHost(venueDomain)
	if host == "" || target == "" {
		return false
	}
	return host == target ||
		strings.HasSuffix(host, "."+target) ||
		strings.HasSuffix(target, "."+host)
}

// startDateFromURL reads a trailing /YYYY-MM-DD path segment. Venues
// rarely encode a time, so dated URLs default to a 7pm start.
func startDateFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	m := datedPathSuffix.FindStringSubmatch(u.Path)
	if m == nil {
		return ""
	}
	return m[1] + "-" + m[2] + "-" + m[3] + "T19:00:00"
}

// titleFromURL reconstructs a display title from the last meaningful
// path segment.
func titleFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	parts := make([]string, 0, 8)
	for _, p := range strings.Split(u.Path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return ""
	}

	tail := parts[len(parts)-1]
	if numericTail.MatchString(tail) || dayTail.MatchString(tail) {
		if len(parts) < 2 {
			return ""
		}
		tail = parts[len(parts)-2]
	}

	words := strings.Fields(strings.ReplaceAll(tail, "-", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
