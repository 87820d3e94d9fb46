package persistence_test

import (
	"context"
	"testing"

	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/repository"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/infra/persistence"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/infra/persistence/persistencetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSourceRepository_FetchAfter(t *testing.T) {
	db := persistencetest.NewDB(t, "hoamx_com")
	persistencetest.InsertRows(t, db, "hoamx_com", 5)
	repo, err := persistence.NewSourceRepository(db, persistencetest.SourceTable, "id")
	require.NoError(t, err)
	ctx := context.Background()

	rows, err := repo.FetchAfter(ctx, "hoamx_com", 2, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	first, err := rows[0].ID("id")
	require.NoError(t, err)
	second, err := rows[1].ID("id")
	require.NoError(t, err)
	assert.Equal(t, int64(3), first)
	assert.Equal(t, int64(4), second)
	assert.Equal(t, "user2@example.com", rows[0]["email"])

	rows, err = repo.FetchAfter(ctx, "hoamx_com", 5, 50)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestSourceRepository_TenantsAreIsolated(t *testing.T) {
	db := persistencetest.NewDB(t, "alpha", "beta")
	persistencetest.InsertRows(t, db, "alpha", 3)
	repo, err := persistence.NewSourceRepository(db, persistencetest.SourceTable, "id")
	require.NoError(t, err)

	rows, err := repo.FetchAfter(context.Background(), "beta", 0, 50)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSourceRepository_RejectsUnsafeIdentifiers(t *testing.T) {
	db := persistencetest.NewDB(t)

	_, err := persistence.NewSourceRepository(db, "contact_messages; drop table x", "id")
	assert.ErrorIs(t, err, repository.ErrInvalidIdentifier)

	repo, err := persistence.NewSourceRepository(db, persistencetest.SourceTable, "id")
	require.NoError(t, err)
	_, err = repo.FetchAfter(context.Background(), `x"; DELETE FROM agent_log; --`, 0, 10)
	assert.ErrorIs(t, err, repository.ErrInvalidIdentifier)
}
