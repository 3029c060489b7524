//go:build integration

// SPDX-License-Identifier: Apache-2.0

package runlock

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func TestAcquireIsExclusiveAcrossSessions(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	baseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if baseURL == "" {
		t.Skip("set DATABASE_URL to run integration tests")
	}

	// Two pools stand in for two concurrent scraper processes.
	poolA, err := pgxpool.New(ctx, baseURL)
	if err != nil {
		t.Skipf("skip integration test: cannot create pool (%v)", err)
	}
	defer poolA.Close()
	if err := poolA.Ping(ctx); err != nil {
		t.Skipf("skip integration test: cannot reach database (%v)", err)
	}

	poolB, err := pgxpool.New(ctx, baseURL)
	if err != nil {
		t.Fatalf("create second pool: %v", err)
	}
	defer poolB.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	lock, err := Acquire(ctx, poolA, logger)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	if _, err := Acquire(ctx, poolB, logger); !errors.Is(err, ErrAlreadyLocked) {
		lock.Release()
		t.Fatalf("expected ErrAlreadyLocked for the second process, got %v", err)
	}

	lock.Release()
	lock.Release() // second release must be a no-op

	relock, err := Acquire(ctx, poolB, logger)
	if err != nil {
		t.Fatalf("reacquire after release: %v", err)
	}
	relock.Release()
}
