package service

import (
	"context"
	"errors"

	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/entity"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/repository"
)

var (
	ErrCycleInProgress  = errors.New("another cycle is in progress for this watcher and tenant")
	ErrTenantNotAllowed = errors.New("tenant is not allowed")
	ErrInvalidBatchSize = errors.New("batch size out of range")
	ErrNotConfigured    = errors.New("server misconfigured")
)

type WatcherService interface {
	RunCycle(ctx context.Context, req entity.CycleRequest) (entity.CycleResult, error)
	State(ctx context.Context, tenant string) (entity.WatcherState, error)
}

type OutboxService interface {
	List(ctx context.Context, filter repository.OutboxFilter) ([]entity.OutboxEvent, string, error)
}

// Dispatcher delivers events to every configured sink once.
// Failed deliveries come back as error strings, never as a Go error.
type Dispatcher interface {
	Enabled() bool
	Send(ctx context.Context, events []entity.Event) (dispatched int, errs []string)
}
