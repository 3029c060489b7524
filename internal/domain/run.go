package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunRunning        RunStatus = "running"
	RunSuccess        RunStatus = "success"
	RunPartialSuccess RunStatus = "partial_success"
	RunFailed         RunStatus = "failed"
	RunError          RunStatus = "error"
)

// RunRecord is one row in the run ledger. A record is created when the
// run starts and completed exactly once, crash paths included.
type RunRecord struct {
	ID         uuid.UUID       `json:"id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at,omitzero"`
	Status     RunStatus       `json:"status"`
	Stats      json.RawMessage `json:"stats,omitempty"`
}

// RunStats is the machine-readable summary recorded in the ledger and
// emitted next to the human-readable report.
type RunStats struct {
	Mode            string    `json:"mode"`
	VenuesAttempted int       `json:"venues_attempted"`
	VenuesSucceeded int       `json:"venues_succeeded"`
	VenuesFailed    int       `json:"venues_failed"`
	VenuesEmpty     int       `json:"venues_empty"`
	TotalEvents     int       `json:"total_events"`
	RetryPasses     int       `json:"retry_passes"`
	RebuiltAt       time.Time `json:"rebuilt_at,omitzero"`
	DurationMS      int64     `json:"duration_ms"`
	Outstanding     []string  `json:"outstanding_failures,omitempty"`
}
