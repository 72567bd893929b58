package export

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultLeaseTTL = 30 * time.Second

// Lock is the export claim shared by every process using the agent
// database. Acquire returns ErrBusy while another holder is alive.
type Lock interface {
	Acquire(ctx context.Context) (release func(), err error)
}

type localLock struct{}

func (localLock) Acquire(ctx context.Context) (func(), error) {
	return func() {}, nil
}

// SQLiteLock is a lease on the single export_lock row. The holder renews
// it while it runs; a lease that has not been renewed for ttl belongs to a
// dead process and may be taken over.
type SQLiteLock struct {
	db     *sql.DB
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

func NewSQLiteLock(db *sql.DB, logger *slog.Logger) *SQLiteLock {
	return &SQLiteLock{db: db, ttl: DefaultLeaseTTL, logger: logger, now: time.Now}
}

func (l *SQLiteLock) Acquire(ctx context.Context) (func(), error) {
	owner := uuid.NewString()
	now := l.now()
	res, err := l.db.ExecContext(ctx, `
		INSERT INTO export_lock (id, owner, pid, acquired_at, heartbeat_at) VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET owner = excluded.owner, pid = excluded.pid,
			acquired_at = excluded.acquired_at, heartbeat_at = excluded.heartbeat_at
		WHERE export_lock.heartbeat_at < ?
	`, owner, os.Getpid(), now.UnixMilli(), now.UnixMilli(), now.Add(-l.ttl).UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("claim export lock: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("claim export lock: %w", err)
	} else if n == 0 {
		return nil, ErrBusy
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.renew(owner, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() { l.release(owner, stop, done) })
	}, nil
}

func (l *SQLiteLock) release(owner string, stop chan<- struct{}, done <-chan struct{}) {
	close(stop)
	<-done
	if _, err := l.db.ExecContext(context.Background(),
		`DELETE FROM export_lock WHERE id = 1 AND owner = ?`, owner); err != nil && l.logger != nil {
		l.logger.Error("failed to release export lock", "error", err)
	}
}

func (l *SQLiteLock) renew(owner string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			res, err := l.db.ExecContext(context.Background(),
				`UPDATE export_lock SET heartbeat_at = ? WHERE id = 1 AND owner = ?`, l.now().UnixMilli(), owner)
			if err != nil {
				if l.logger != nil {
					l.logger.Warn("failed to renew export lock", "error", err)
				}
				continue
			}
			if n, _ := res.RowsAffected(); n == 0 {
				if l.logger != nil {
					l.logger.Error("export lock lost to another process")
				}
				return
			}
		}
	}
}
