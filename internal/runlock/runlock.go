// SPDX-License-Identifier: Apache-2.0

// Package runlock serializes scrape runs across processes with a
// Postgres advisory lock.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// One key for the whole pipeline: at most one scrape run at a time,
// regardless of mode or host.
const scrapeRunLockID int64 = 0x5653525f53435250 // "VSR_SCRP"

// ErrAlreadyLocked means another scrape run holds the lock right now.
var ErrAlreadyLocked = errors.New("another scrape run is in progress")

// Lock holds a session-scoped advisory lock on a dedicated pooled
// connection. The lock lives exactly as long as the connection does,
// so a crashed process releases it automatically.
type Lock struct {
	conn   *pgxpool.Conn
	logger *slog.Logger
}

// Acquire takes the scrape-run advisory lock without blocking. It
// returns ErrAlreadyLocked when some other process holds it.
func Acquire(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*Lock, error) {
	if pool == nil {
		return nil, errors.New("nil database pool")
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire db connection for run lock: %w", err)
	}

	var locked bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, scrapeRunLockID).Scan(&locked); err != nil {
		conn.Release()
		return nil, fmt.Errorf("try run lock: %w", err)
	}
	if !locked {
		conn.Release()
		return nil, ErrAlreadyLocked
	}

	logger.Info("scrape run lock acquired")
	return &Lock{conn: conn, logger: logger}, nil
}

// Release unlocks and returns the connection to the pool. Safe to call
// more than once.
func (l *Lock) Release() {
	if l == nil || l.conn == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := l.conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, scrapeRunLockID); err != nil {
		l.logger.Error("scrape run unlock failed", "error", err)
	}
	l.conn.Release()
	l.conn = nil
	l.logger.Info("scrape run lock released")
}
