// SPDX-License-Identifier: Apache-2.0

// Package fetch retrieves raw calendar content for one venue at a time.
// Every fetcher either returns content or a typed failure; none leaves
// partial side effects behind.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/curateworld/venue-scraper/internal/metrics"
)

const (
	UserAgent = "curateworld-venue-scraper/2.0"

	icsTimeout    = 60 * time.Second
	readerTimeout = 45 * time.Second
	pageTimeout   = 30 * time.Second

	// Responses shorter than this are treated as empty pages, not data.
	minContentChars = 100

	// DefaultMaxContentChars caps the reader rendering when the registry
	// does not set a per-venue limit.
	DefaultMaxContentChars = 20000

	pageCacheSize = 128
)

// ErrEmptyContent marks a fetch that technically succeeded but returned
// too little content to contain listings.
var ErrEmptyContent = errors.New("empty or low-content page")

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

type Options struct {
	HTTPClient    *http.Client
	ReaderBaseURL string
	Logger        *slog.Logger
}

// Client issues all upstream calendar requests for a run. Fetched pages
// are kept in a small LRU so the fallback scanners reuse the primary
// fetch instead of hitting the venue twice.
type Client struct {
	http       *http.Client
	readerBase string
	logger     *slog.Logger
	pages      *lru.Cache[string, string]
}

func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	readerBase := opts.ReaderBaseURL
	if readerBase == "" {
		readerBase = "https://r.jina.ai/"
	}
	if !strings.HasSuffix(readerBase, "/") {
		readerBase += "/"
	}

	// Size error only fires for non-positive sizes.
	pages, _ := lru.New[string, string](pageCacheSize)

	return &Client{
		http:       httpClient,
		readerBase: readerBase,
		logger:     logger,
		pages:      pages,
	}
}

// ICS retrieves a raw iCalendar feed.
func (c *Client) ICS(ctx context.Context, feedURL string) (string, error) {
	body, err := c.get(ctx, feedURL, "ics", icsTimeout, "text/calendar,text/plain,*/*;q=0.8")
	if err != nil {
		return "", err
	}
	if len(strings.TrimSpace(body)) < minContentChars {
		return "", fmt.Errorf("ics feed %s: %w", feedURL, ErrEmptyContent)
	}
	return body, nil
}

// ReaderPage retrieves a cleaned textual rendering of the calendar page
// through the reader service, capped at maxChars. Some venues front-load
// navigation and stale content, so the cap is per venue.
func (c *Client) ReaderPage(ctx context.Context, pageURL string, maxChars int) (string, error) {
	if maxChars <= 0 {
		maxChars = DefaultMaxContentChars
	}
	readerURL := c.readerBase + pageURL
	if cached, ok := c.pages.Get(readerURL); ok {
		return capContent(cached, maxChars), nil
	}

	body, err := c.get(ctx, readerURL, "reader", readerTimeout, "text/plain,text/markdown,*/*;q=0.8")
	if err != nil {
		return "", err
	}
	if len(strings.TrimSpace(body)) < minContentChars {
		return "", fmt.Errorf("reader rendering of %s: %w", pageURL, ErrEmptyContent)
	}
	c.pages.Add(readerURL, body)
	return capContent(body, maxChars), nil
}

// RawPage retrieves the calendar page HTML itself, for the fallback
// link scanners.
func (c *Client) RawPage(ctx context.Context, pageURL string) (string, error) {
	if cached, ok := c.pages.Get(pageURL); ok {
		return cached, nil
	}

	body, err := c.get(ctx, pageURL, "page", pageTimeout, "text/html,application/xhtml+xml,*/*;q=0.8")
	if err != nil {
		return "", err
	}
	if len(strings.TrimSpace(body)) < minContentChars {
		return "", fmt.Errorf("page %s: %w", pageURL, ErrEmptyContent)
	}
	c.pages.Add(pageURL, body)
	return body, nil
}

func (c *Client) get(ctx context.Context, rawURL, kind string, timeout time.Duration, accept string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("building request for %s: %w", rawURL, err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", accept)

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", &StatusError{Code: resp.StatusCode, URL: rawURL}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", rawURL, err)
	}

	metrics.ObserveFetchDuration(kind, time.Since(started))
	c.logger.Debug("fetched",
		"url", rawURL,
		"bytes", len(body),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return string(body), nil
}

// capContent truncates to at most maxChars bytes, backing off to the
// previous rune boundary so the extractor never sees a split rune.
func capContent(body string, maxChars int) string {
	if len(body) <= maxChars {
		return body
	}
	cut := maxChars
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut]
}
