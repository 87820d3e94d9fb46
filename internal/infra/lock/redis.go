package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/repository"
	goredislib "github.com/redis/go-redis/v9"
)

// Redis is a redsync mutex per key, tried once. Expiry must exceed the
// longest expected cycle.
type Redis struct {
	rs     *redsync.Redsync
	expiry time.Duration
}

var _ repository.Locker = (*Redis)(nil)

func NewRedis(client goredislib.UniversalClient, expiry time.Duration) (*Redis, error) {
	if client == nil {
		return nil, errors.New("lock: redis client is required")
	}
	if expiry <= 0 {
		expiry = 5 * time.Minute
	}
	return &Redis{rs: redsync.New(goredis.NewPool(client)), expiry: expiry}, nil
}

func (r *Redis) TryLock(ctx context.Context, key string) (repository.LockHandle, bool, error) {
	if strings.TrimSpace(key) == "" {
		return nil, false, ErrEmptyKey
	}
	mutex := r.rs.NewMutex(key, redsync.WithExpiry(r.expiry), redsync.WithTries(1))
	if err := mutex.LockContext(ctx); err != nil {
		if isContention(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("lock: redis %q: %w", key, err)
	}
	return &redisHandle{mutex: mutex}, true, nil
}

func isContention(err error) bool {
	if errors.Is(err, redsync.ErrFailed) {
		return true
	}
	var taken *redsync.ErrTaken
	if errors.As(err, &taken) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "lock already taken") || strings.Contains(msg, "failed to acquire lock")
}

type redisHandle struct {
	mutex *redsync.Mutex
}

func (h *redisHandle) Unlock(ctx context.Context) error {
	ok, err := h.mutex.UnlockContext(ctx)
	if err != nil {
		return fmt.Errorf("lock: redis unlock: %w", err)
	}
	if !ok {
		return ErrNotHeld
	}
	return nil
}
