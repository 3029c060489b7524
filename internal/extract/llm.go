// SPDX-License-Identifier: Apache-2.0

package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/curateworld/venue-scraper/internal/categorize"
	"github.com/curateworld/venue-scraper/internal/domain"
)

const llmTimeout = 60 * time.Second

// LLMClient calls the text-extraction service that turns a cleaned page
// rendering into structured events. The service output is untrusted:
// anything that does not decode as a JSON event array degrades to zero
// events for the attempt, never an error.
type LLMClient struct {
	http   *http.Client
	url    string
	apiKey string
	logger *slog.Logger
}

type llmRequest struct {
	Venue    string `json:"venue"`
	Category string `json:"category"`
	City     string `json:"city,omitempty"`
	Content  string `json:"content"`
	Today    string `json:"today"`
}

type llmResponse struct {
	Text string `json:"text"`
}

func NewLLMClient(httpClient *http.Client, serviceURL, apiKey string, logger *slog.Logger) *LLMClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMClient{http: httpClient, url: serviceURL, apiKey: apiKey, logger: logger}
}

// Configured reports whether the service is wired up; unconfigured
// clients are skipped by the chain so structured venues still work.
func (c *LLMClient) Configured() bool {
	return c != nil && strings.TrimSpace(c.url) != ""
}

// Extract sends the cleaned content and returns today-or-later events.
// Transport and HTTP failures are real errors (the retry driver handles
// them); malformed model output is not.
func (c *LLMClient) Extract(ctx context.Context, venue domain.VenueDescriptor, content string, today time.Time) ([]domain.Event, error) {
	payload, err := json.Marshal(llmRequest{
		Venue:    venue.Name,
		Category: venue.Category,
		City:     venue.City,
		Content:  content,
		Today:    today.Format("2006-01-02"),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding extraction request for %s: %w", venue.Domain, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, llmTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building extraction request for %s: %w", venue.Domain, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling extraction service for %s: %w", venue.Domain, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading extraction response for %s: %w", venue.Domain, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("extraction service returned %d for %s", resp.StatusCode, venue.Domain)
	}

	var parsed llmResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		// Some deployments return the model text without the envelope.
		parsed.Text = string(body)
	}

	events := decodeEventArray(parsed.Text)
	if events == nil {
		c.logger.Warn("extraction output had no event array",
			"domain", venue.Domain,
			"response_chars", len(parsed.Text),
		)
		return []domain.Event{}, nil
	}

	out := make([]domain.Event, 0, len(events))
	for _, e := range events {
		if !e.Valid() {
			continue
		}
		if e.Category == "" || !categorize.Known(e.Category) {
			e.Category = categorize.Assign(e.Title+" "+e.Description, venue.Category)
		}
		if e.City == "" {
			e.City = venue.City
		}
		out = append(out, e)
	}
	return domain.DedupEvents(domain.FilterUpcoming(out, today)), nil
}

// decodeEventArray finds the first JSON array in the model text and
// decodes it. Returns nil when no decodable array exists.
func decodeEventArray(text string) []domain.Event {
	start := strings.Index(text, "[")
	if start < 0 {
		return nil
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				var events []domain.Event
				if err := json.Unmarshal([]byte(text[start:i+1]), &events); err != nil {
					return nil
				}
				return events
			}
		}
	}
	return nil
}
