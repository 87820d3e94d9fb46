package persistence

import (
	"context"
	"fmt"

	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/entity"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/repository"
)

// SourceRepository reads the append-only source table that lives in each
// tenant's own schema.
type SourceRepository struct {
	db       *DB
	table    string
	idColumn string
}

var _ repository.SourceRepository = (*SourceRepository)(nil)

func NewSourceRepository(db *DB, table, idColumn string) (*SourceRepository, error) {
	if !ValidIdentifier(table) {
		return nil, fmt.Errorf("%w: table %q", repository.ErrInvalidIdentifier, table)
	}
	if !ValidIdentifier(idColumn) {
		return nil, fmt.Errorf("%w: column %q", repository.ErrInvalidIdentifier, idColumn)
	}
	return &SourceRepository{db: db, table: table, idColumn: idColumn}, nil
}

func (r *SourceRepository) FetchAfter(ctx context.Context, tenant string, afterID int64, limit int) ([]entity.SourceRow, error) {
	if limit <= 0 {
		return []entity.SourceRow{}, nil
	}
	table, err := qualifiedTable(tenant, r.table)
	if err != nil {
		return nil, err
	}
	id := quoteIdentifier(r.idColumn)
	query := "SELECT * FROM " + table + " WHERE " + id + " > ? ORDER BY " + id + " ASC LIMIT ?"

	var raw []map[string]any
	if err := r.db.Read(ctx).Raw(query, afterID, limit).Scan(&raw).Error; err != nil {
		return nil, fmt.Errorf("source: fetch %s: %w", table, err)
	}

	rows := make([]entity.SourceRow, 0, len(raw))
	for _, m := range raw {
		rows = append(rows, entity.SourceRow(m))
	}
	return rows, nil
}
