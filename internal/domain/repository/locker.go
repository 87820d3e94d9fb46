package repository

import "context"

type LockHandle interface {
	Unlock(ctx context.Context) error
}

// Locker grants exclusive ownership of a key. A key held elsewhere is
// reported as acquired=false with a nil error.
type Locker interface {
	TryLock(ctx context.Context, key string) (handle LockHandle, acquired bool, err error)
}
