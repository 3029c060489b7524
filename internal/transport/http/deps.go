// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"

	"github.com/curateworld/venue-scraper/internal/domain"
)

type CacheReader interface {
	Load(ctx context.Context) (*domain.VenueCache, error)
}

type RunReader interface {
	Latest(ctx context.Context) (*domain.RunRecord, error)
}

type HealthChecker interface {
	Check(ctx context.Context) error
}
