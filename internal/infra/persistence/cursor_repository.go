package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/entity"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/repository"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CursorRepository struct {
	db  *DB
	now func() time.Time
}

var _ repository.CursorRepository = (*CursorRepository)(nil)

func NewCursorRepository(db *DB) *CursorRepository {
	return &CursorRepository{db: db, now: time.Now}
}

// ReadOrCreate inserts the row at zero when missing, then reads it back with
// a row lock so concurrent writers in other transactions wait for ours.
func (r *CursorRepository) ReadOrCreate(ctx context.Context, watcherName, tenant string) (int64, error) {
	conn := r.db.Write(ctx)
	seed := entity.WatcherState{WatcherName: watcherName, Tenant: tenant}
	err := conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "watcher_name"}, {Name: "tenant"}},
		DoNothing: true,
	}).Create(&seed).Error
	if err != nil {
		return 0, fmt.Errorf("cursor: create: %w", err)
	}

	var state entity.WatcherState
	err = r.db.Write(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("watcher_name = ? AND tenant = ?", watcherName, tenant).
		Take(&state).Error
	if err != nil {
		return 0, fmt.Errorf("cursor: read: %w", err)
	}
	return state.LastSeenID, nil
}

func (r *CursorRepository) Advance(ctx context.Context, watcherName, tenant string, lastSeenID int64, result []byte) error {
	now := r.now().UTC()
	updates := map[string]any{
		"last_seen_id": lastSeenID,
		"last_run_at":  now,
	}
	if len(result) > 0 {
		updates["last_result"] = datatypes.JSON(result)
	}

	res := r.db.Write(ctx).
		Model(&entity.WatcherState{}).
		Where("watcher_name = ? AND tenant = ? AND last_seen_id <= ?", watcherName, tenant, lastSeenID).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("cursor: advance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("cursor %s/%s to %d: %w", watcherName, tenant, lastSeenID, repository.ErrCursorRegression)
	}
	return nil
}

func (r *CursorRepository) Get(ctx context.Context, watcherName, tenant string) (entity.WatcherState, error) {
	var state entity.WatcherState
	err := r.db.Read(ctx).
		Where("watcher_name = ? AND tenant = ?", watcherName, tenant).
		Take(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entity.WatcherState{}, repository.ErrNotFound
		}
		return entity.WatcherState{}, err
	}
	return state, nil
}
