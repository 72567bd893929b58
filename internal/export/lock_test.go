package export

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/studiolapse/studiolapse-agent/internal/db"
)

func openLockDB(t *testing.T, path string) *db.DB {
	t.Helper()
	database, err := db.New(path, nil)
	if err != nil {
		t.Fatalf("db.New() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestSQLiteLock_ExclusiveAcrossConnections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.db")
	a := NewSQLiteLock(openLockDB(t, path).Conn(), nil)
	b := NewSQLiteLock(openLockDB(t, path).Conn(), nil)
	ctx := context.Background()

	release, err := a.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if _, err := b.Acquire(ctx); !errors.Is(err, ErrBusy) {
		t.Fatalf("second Acquire() error = %v, want ErrBusy", err)
	}
	if _, err := a.Acquire(ctx); !errors.Is(err, ErrBusy) {
		t.Fatalf("re-entrant Acquire() error = %v, want ErrBusy", err)
	}

	release()
	release()

	releaseB, err := b.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	releaseB()
}

func TestSQLiteLock_StaleLeaseTakenOver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.db")
	dead := NewSQLiteLock(openLockDB(t, path).Conn(), nil)
	live := NewSQLiteLock(openLockDB(t, path).Conn(), nil)
	ctx := context.Background()
	base := time.Now()
	dead.now = func() time.Time { return base }

	releaseDead, err := dead.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	live.now = func() time.Time { return base.Add(DefaultLeaseTTL / 2) }
	if _, err := live.Acquire(ctx); !errors.Is(err, ErrBusy) {
		t.Fatalf("Acquire() within lease error = %v, want ErrBusy", err)
	}

	live.now = func() time.Time { return base.Add(DefaultLeaseTTL + time.Second) }
	releaseLive, err := live.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() of stale lease error = %v", err)
	}

	// the previous holder's release must not drop the new lease
	releaseDead()
	if _, err := live.Acquire(ctx); !errors.Is(err, ErrBusy) {
		t.Errorf("Acquire() after stale release error = %v, want ErrBusy", err)
	}
	releaseLive()
}
