// SPDX-License-Identifier: Apache-2.0

// Package ledger records every scrape run in Postgres so operators can
// answer "when did the last run finish, and how did it go" without
// reading log files.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/curateworld/venue-scraper/internal/domain"
)

type RunLedger struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewRunLedger(pool *pgxpool.Pool, logger *slog.Logger) *RunLedger {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunLedger{pool: pool, logger: logger}
}

// Begin opens a ledger row for a new run.
func (l *RunLedger) Begin(ctx context.Context, mode string) (uuid.UUID, error) {
	runID := uuid.New()

	_, err := l.pool.Exec(ctx, `
		INSERT INTO scrape_runs (id, started_at, status, stats)
		VALUES ($1, NOW(), $2, $3)
	`, runID, domain.RunRunning, fmt.Sprintf(`{"mode":%q}`, mode))
	if err != nil {
		l.logger.Error("insert run ledger row failed", "run_id", runID, "error", err)
		return uuid.Nil, fmt.Errorf("begin run ledger row: %w", err)
	}

	l.logger.Info("scrape run started", "run_id", runID, "mode", mode)
	return runID, nil
}

// Complete closes the ledger row. A run finishes exactly once: a
// second call for the same id finds the row already closed and is a
// logged no-op.
func (l *RunLedger) Complete(ctx context.Context, runID uuid.UUID, status domain.RunStatus, stats domain.RunStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encode run stats: %w", err)
	}

	cmd, err := l.pool.Exec(ctx, `
		UPDATE scrape_runs
		SET status = $2,
		    stats = $3,
		    finished_at = NOW()
		WHERE id = $1
		  AND finished_at IS NULL
	`, runID, status, statsJSON)
	if err != nil {
		l.logger.Error("close run ledger row failed", "run_id", runID, "error", err)
		return fmt.Errorf("complete run ledger row: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		l.logger.Info("run already completed", "run_id", runID)
		return nil
	}

	l.logger.Info("scrape run completed", "run_id", runID, "status", status)
	return nil
}

// Latest returns the most recently started run, or nil when the ledger
// is empty.
func (l *RunLedger) Latest(ctx context.Context) (*domain.RunRecord, error) {
	var (
		rec        domain.RunRecord
		finishedAt *time.Time
	)
	err := l.pool.QueryRow(ctx, `
		SELECT id, started_at, finished_at, status, stats
		FROM scrape_runs
		ORDER BY started_at DESC
		LIMIT 1
	`).Scan(&rec.ID, &rec.StartedAt, &finishedAt, &rec.Status, &rec.Stats)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		l.logger.Error("read latest run failed", "error", err)
		return nil, fmt.Errorf("read latest run: %w", err)
	}
	if finishedAt != nil {
		rec.FinishedAt = *finishedAt
	}
	return &rec, nil
}
