package persistence

import (
	"context"
	"time"

	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/entity"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/repository"
)

type AuditLogRepository struct {
	db  *DB
	now func() time.Time
}

var _ repository.AuditLogRepository = (*AuditLogRepository)(nil)

func NewAuditLogRepository(db *DB) *AuditLogRepository {
	return &AuditLogRepository{db: db, now: time.Now}
}

func (r *AuditLogRepository) Record(ctx context.Context, entry entity.AgentLog) error {
	if entry.TS.IsZero() {
		entry.TS = r.now().UTC()
	}
	if entry.Error != nil {
		msg := truncate(*entry.Error, maxErrorLength)
		entry.Error = &msg
	}
	entry.ID = 0
	return r.db.Write(ctx).Create(&entry).Error
}
