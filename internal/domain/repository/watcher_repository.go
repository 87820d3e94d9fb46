package repository

import (
	"context"

	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/entity"
)

type InsertOutcome int

const (
	Inserted InsertOutcome = iota + 1
	AlreadyExists
)

func (o InsertOutcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case AlreadyExists:
		return "already_exists"
	}
	return "unknown"
}

// CursorRepository stores the per-(watcher, tenant) high-water mark.
// Calls join the transaction carried by ctx when there is one.
type CursorRepository interface {
	ReadOrCreate(ctx context.Context, watcherName, tenant string) (int64, error)
	Advance(ctx context.Context, watcherName, tenant string, lastSeenID int64, result []byte) error
	Get(ctx context.Context, watcherName, tenant string) (entity.WatcherState, error)
}

type SourceRepository interface {
	FetchAfter(ctx context.Context, tenant string, afterID int64, limit int) ([]entity.SourceRow, error)
}

type OutboxFilter struct {
	Tenant string
	Status entity.OutboxStatus
	Limit  int
	Cursor string
}

type OutboxRepository interface {
	InsertIfAbsent(ctx context.Context, event entity.OutboxEvent) (InsertOutcome, error)
	MarkDispatched(ctx context.Context, eventIDs []string) error
	MarkError(ctx context.Context, eventIDs []string, message string) error
	List(ctx context.Context, filter OutboxFilter) ([]entity.OutboxEvent, error)
}

type AuditLogRepository interface {
	Record(ctx context.Context, entry entity.AgentLog) error
}
