package persistence_test

import (
	"context"
	"errors"
	"testing"

	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/entity"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/infra/persistence"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/infra/persistence/persistencetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTx_RollsBackOnError(t *testing.T) {
	db := persistencetest.NewDB(t)
	audit := persistence.NewAuditLogRepository(db)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.WithTx(ctx, func(ctx context.Context) error {
		require.NoError(t, audit.Record(ctx, entity.AgentLog{AgentName: "w", Action: entity.AuditActionRunStart, Status: entity.AuditStatusOK}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, db.Conn.Model(&entity.AgentLog{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestWithTx_NestedCallJoinsOuter(t *testing.T) {
	db := persistencetest.NewDB(t)
	audit := persistence.NewAuditLogRepository(db)
	ctx := context.Background()

	err := db.WithTx(ctx, func(ctx context.Context) error {
		inner := db.WithTx(ctx, func(ctx context.Context) error {
			return audit.Record(ctx, entity.AgentLog{AgentName: "w", Action: entity.AuditActionRunStart, Status: entity.AuditStatusOK})
		})
		require.NoError(t, inner)
		return errors.New("outer fails")
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Conn.Model(&entity.AgentLog{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestNilDB(t *testing.T) {
	var db *persistence.DB
	assert.ErrorIs(t, db.Ping(context.Background()), persistence.ErrNotInitialized)
	assert.ErrorIs(t, db.WithTx(context.Background(), func(context.Context) error { return nil }), persistence.ErrNotInitialized)
	assert.Nil(t, db.Write(context.Background()))
	db.Close()
}
