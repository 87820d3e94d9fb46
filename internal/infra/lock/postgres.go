package lock

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/repository"
)

// Postgres uses session-level advisory locks. Each held lock pins one pool
// connection until it is released.
type Postgres struct {
	db *sql.DB
}

var _ repository.Locker = (*Postgres)(nil)

func NewPostgres(db *sql.DB) (*Postgres, error) {
	if db == nil {
		return nil, errors.New("lock: postgres pool is required")
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) TryLock(ctx context.Context, key string) (repository.LockHandle, bool, error) {
	if strings.TrimSpace(key) == "" {
		return nil, false, ErrEmptyKey
	}
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("lock: acquire connection: %w", err)
	}

	id := AdvisoryKey(key)
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", id).Scan(&acquired); err != nil {
		_ = conn.Close()
		return nil, false, fmt.Errorf("lock: try advisory lock %q: %w", key, err)
	}
	if !acquired {
		_ = conn.Close()
		return nil, false, nil
	}
	return &advisoryHandle{conn: conn, id: id}, true, nil
}

// AdvisoryKey maps a lock key onto the bigint space of advisory locks.
func AdvisoryKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64())
}

type advisoryHandle struct {
	conn *sql.Conn
	id   int64
}

func (h *advisoryHandle) Unlock(ctx context.Context) error {
	if h.conn == nil {
		return ErrNotHeld
	}
	conn := h.conn
	h.conn = nil

	var released bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", h.id).Scan(&released); err != nil {
		// The session may still hold the lock; it must not return to the pool.
		discard(conn)
		return fmt.Errorf("lock: advisory unlock: %w", err)
	}
	_ = conn.Close()
	if !released {
		return ErrNotHeld
	}
	return nil
}

// discard closes the underlying session instead of pooling it again.
func discard(conn *sql.Conn) {
	_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	_ = conn.Close()
}
