// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

const (
	tribePerPage  = 50
	tribeMaxPages = 10
	tribeTimeout  = 30 * time.Second
)

// TribeRecord is one event record from The Events Calendar REST API,
// kept close to the wire shape; mapping to the canonical Event happens
// in the extract package.
type TribeRecord struct {
	Title            string `json:"title"`
	Description      string `json:"description"`
	URL              string `json:"url"`
	StartDate        string `json:"start_date"`
	EndDate          string `json:"end_date"`
	Status           string `json:"status"`
	HideFromListings bool   `json:"hide_from_listings"`
	Cost             string `json:"cost"`
	AllDay           bool   `json:"all_day"`
	Venue            struct {
		City string `json:"city"`
	} `json:"venue"`
}

type tribePage struct {
	Events     []TribeRecord `json:"events"`
	Total      int           `json:"total"`
	TotalPages int           `json:"total_pages"`
}

// TribeEvents pages through the plugin API inside the lookahead window.
// It stops on an empty page, the reported page count, or the hard page
// bound, whichever comes first.
func (c *Client) TribeEvents(ctx context.Context, apiURL string, today time.Time, lookaheadDays int) ([]TribeRecord, error) {
	base, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("parsing tribe api url %s: %w", apiURL, err)
	}

	startDate := today.Format("2006-01-02")
	endDate := today.AddDate(0, 0, lookaheadDays).Format("2006-01-02")

	records := make([]TribeRecord, 0, tribePerPage)
	for page := 1; page <= tribeMaxPages; page++ {
		q := base.Query()
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(tribePerPage))
		q.Set("start_date", startDate)
		q.Set("end_date", endDate)
		base.RawQuery = q.Encode()

		body, err := c.get(ctx, base.String(), "tribe", tribeTimeout, "application/json")
		if err != nil {
			// Tribe APIs answer 404 for pages past the end of the window.
			var statusErr *StatusError
			if errors.As(err, &statusErr) && statusErr.Code == 404 && page > 1 {
				break
			}
			return nil, err
		}

		var parsed tribePage
		if err := json.Unmarshal([]byte(body), &parsed); err != nil {
			return nil, fmt.Errorf("parsing tribe page %d of %s: %w", page, apiURL, err)
		}

		if len(parsed.Events) == 0 {
			break
		}
		records = append(records, parsed.Events...)

		if parsed.TotalPages > 0 && page >= parsed.TotalPages {
			break
		}
		if len(parsed.Events) < tribePerPage {
			break
		}
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("tribe api %s: %w", apiURL, ErrEmptyContent)
	}
	return records, nil
}
