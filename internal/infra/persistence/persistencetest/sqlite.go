// Package persistencetest opens throwaway SQLite databases laid out like
// the production schema, one attached database per tenant.
package persistencetest

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/entity"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/infra/persistence"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const SourceTable = "contact_messages"

func NewDB(t testing.TB, tenants ...string) *persistence.DB {
	t.Helper()
	dir := t.TempDir()

	gdb, err := gorm.Open(sqlite.Open(filepath.Join(dir, "watcher.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	// attachments are per connection
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, gdb.AutoMigrate(&entity.WatcherState{}, &entity.OutboxEvent{}, &entity.AgentLog{}))

	for _, tenant := range tenants {
		require.True(t, persistence.ValidIdentifier(tenant), "tenant %q", tenant)
		path := filepath.Join(dir, tenant+".db")
		require.NoError(t, gdb.Exec(fmt.Sprintf("ATTACH DATABASE '%s' AS %s", path, tenant)).Error)
		require.NoError(t, gdb.Exec(fmt.Sprintf(
			"CREATE TABLE %s.%s (id INTEGER PRIMARY KEY, name TEXT NOT NULL, email TEXT NOT NULL, message TEXT)",
			tenant, SourceTable,
		)).Error)
	}
	return persistence.Wrap(gdb)
}

// InsertRows appends count contact messages to the tenant's source table and
// returns the last id written.
func InsertRows(t testing.TB, db *persistence.DB, tenant string, count int) int64 {
	t.Helper()
	var last int64
	for i := 0; i < count; i++ {
		res := db.Conn.Exec(
			fmt.Sprintf("INSERT INTO %s.%s (name, email, message) VALUES (?, ?, ?)", tenant, SourceTable),
			fmt.Sprintf("name-%d", i), fmt.Sprintf("user%d@example.com", i), "hello",
		)
		require.NoError(t, res.Error)
	}
	require.NoError(t, db.Conn.Raw(fmt.Sprintf("SELECT COALESCE(MAX(id), 0) FROM %s.%s", tenant, SourceTable)).Scan(&last).Error)
	return last
}

// InsertRowWithID writes a row with an explicit id, which may leave gaps.
func InsertRowWithID(t testing.TB, db *persistence.DB, tenant string, id int64) {
	t.Helper()
	require.NoError(t, db.Conn.Exec(
		fmt.Sprintf("INSERT INTO %s.%s (id, name, email, message) VALUES (?, ?, ?, ?)", tenant, SourceTable),
		id, fmt.Sprintf("name-%d", id), fmt.Sprintf("user%d@example.com", id), "hello",
	).Error)
}
