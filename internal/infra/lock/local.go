package lock

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/repository"
)

var (
	ErrEmptyKey    = errors.New("lock: empty key")
	ErrNotHeld     = errors.New("lock: not held")
	ErrUnknownKind = errors.New("lock: unknown driver")
)

// Local serialises keys inside a single process.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

var _ repository.Locker = (*Local)(nil)

func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

func (l *Local) TryLock(ctx context.Context, key string) (repository.LockHandle, bool, error) {
	if strings.TrimSpace(key) == "" {
		return nil, false, ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, false, nil
	}
	l.held[key] = struct{}{}
	return &localHandle{owner: l, key: key}, true, nil
}

type localHandle struct {
	owner *Local
	key   string
	once  sync.Once
}

func (h *localHandle) Unlock(context.Context) error {
	released := false
	h.once.Do(func() {
		h.owner.mu.Lock()
		delete(h.owner.held, h.key)
		h.owner.mu.Unlock()
		released = true
	})
	if !released {
		return ErrNotHeld
	}
	return nil
}
