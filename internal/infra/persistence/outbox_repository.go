package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/entity"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/repository"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/infra/pagination"
	"gorm.io/gorm/clause"
)

const defaultListLimit = 50

type OutboxRepository struct {
	db  *DB
	now func() time.Time
}

var _ repository.OutboxRepository = (*OutboxRepository)(nil)

func NewOutboxRepository(db *DB) *OutboxRepository {
	return &OutboxRepository{db: db, now: time.Now}
}

// InsertIfAbsent relies on the unique event_id index; a conflicting row is
// left untouched and reported as AlreadyExists.
func (r *OutboxRepository) InsertIfAbsent(ctx context.Context, event entity.OutboxEvent) (repository.InsertOutcome, error) {
	event.ID = 0
	if event.Status == "" {
		event.Status = entity.OutboxStatusNew
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = r.now().UTC()
	}

	res := r.db.Write(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).
		Create(&event)
	if res.Error != nil {
		return 0, fmt.Errorf("outbox: insert %s: %w", event.EventID, res.Error)
	}
	if res.RowsAffected == 0 {
		return repository.AlreadyExists, nil
	}
	return repository.Inserted, nil
}

func (r *OutboxRepository) MarkDispatched(ctx context.Context, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}
	err := r.db.Write(ctx).
		Model(&entity.OutboxEvent{}).
		Where("event_id IN ? AND status IN ?", eventIDs, entity.StatusesBefore(entity.OutboxStatusDispatched)).
		Updates(map[string]any{
			"status":        entity.OutboxStatusDispatched,
			"dispatched_at": r.now().UTC(),
			"last_error":    nil,
		}).Error
	if err != nil {
		return fmt.Errorf("outbox: mark dispatched: %w", err)
	}
	return nil
}

func (r *OutboxRepository) MarkError(ctx context.Context, eventIDs []string, message string) error {
	if len(eventIDs) == 0 {
		return nil
	}
	err := r.db.Write(ctx).
		Model(&entity.OutboxEvent{}).
		Where("event_id IN ? AND status IN ?", eventIDs, entity.StatusesBefore(entity.OutboxStatusError)).
		Updates(map[string]any{
			"status":     entity.OutboxStatusError,
			"last_error": truncate(message, maxErrorLength),
		}).Error
	if err != nil {
		return fmt.Errorf("outbox: mark error: %w", err)
	}
	return nil
}

func (r *OutboxRepository) List(ctx context.Context, filter repository.OutboxFilter) ([]entity.OutboxEvent, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := r.db.Read(ctx).
		Limit(limit).
		Order("created_at DESC").
		Order("id DESC")
	if filter.Tenant != "" {
		query = query.Where("tenant = ?", filter.Tenant)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Cursor != "" {
		cursorTime, cursorID, err := pagination.Decode(filter.Cursor)
		if err != nil {
			if errors.Is(err, pagination.ErrInvalidCursor) {
				return nil, repository.ErrInvalidCursor
			}
			return nil, err
		}
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursorTime, cursorTime, cursorID)
	}

	var events []entity.OutboxEvent
	if err := query.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
