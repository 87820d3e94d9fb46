package persistence_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hoamxTrav/hoamx-watcher-agent/internal/domain/repository"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/infra/persistence"
	"github.com/hoamxTrav/hoamx-watcher-agent/internal/infra/persistence/persistencetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRepository_ReadOrCreateStartsAtZero(t *testing.T) {
	db := persistencetest.NewDB(t)
	repo := persistence.NewCursorRepository(db)
	ctx := context.Background()

	var got int64
	err := db.WithTx(ctx, func(ctx context.Context) error {
		var err error
		got, err = repo.ReadOrCreate(ctx, "watcher", "hoamx_com")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)

	again, err := repo.ReadOrCreate(ctx, "watcher", "hoamx_com")
	require.NoError(t, err)
	assert.Equal(t, int64(0), again)
}

func TestCursorRepository_AdvanceIsMonotonic(t *testing.T) {
	db := persistencetest.NewDB(t)
	repo := persistence.NewCursorRepository(db)
	ctx := context.Background()

	_, err := repo.ReadOrCreate(ctx, "watcher", "hoamx_com")
	require.NoError(t, err)

	summary, _ := json.Marshal(map[string]int{"observed_count": 3})
	require.NoError(t, repo.Advance(ctx, "watcher", "hoamx_com", 3, summary))
	require.NoError(t, repo.Advance(ctx, "watcher", "hoamx_com", 3, nil))

	err = repo.Advance(ctx, "watcher", "hoamx_com", 2, nil)
	assert.ErrorIs(t, err, repository.ErrCursorRegression)

	state, err := repo.Get(ctx, "watcher", "hoamx_com")
	require.NoError(t, err)
	assert.Equal(t, int64(3), state.LastSeenID)
	require.NotNil(t, state.LastRunAt)
	assert.JSONEq(t, `{"observed_count":3}`, string(state.LastResult))
}

func TestCursorRepository_KeysAreIndependent(t *testing.T) {
	db := persistencetest.NewDB(t)
	repo := persistence.NewCursorRepository(db)
	ctx := context.Background()

	for _, tenant := range []string{"alpha", "beta"} {
		_, err := repo.ReadOrCreate(ctx, "watcher", tenant)
		require.NoError(t, err)
	}
	require.NoError(t, repo.Advance(ctx, "watcher", "alpha", 10, nil))

	beta, err := repo.ReadOrCreate(ctx, "watcher", "beta")
	require.NoError(t, err)
	assert.Equal(t, int64(0), beta)

	_, err = repo.Get(ctx, "other", "alpha")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCursorRepository_RollbackDiscardsAdvance(t *testing.T) {
	db := persistencetest.NewDB(t)
	repo := persistence.NewCursorRepository(db)
	ctx := context.Background()

	_, err := repo.ReadOrCreate(ctx, "watcher", "hoamx_com")
	require.NoError(t, err)

	err = db.WithTx(ctx, func(ctx context.Context) error {
		if err := repo.Advance(ctx, "watcher", "hoamx_com", 7, nil); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	state, err := repo.Get(ctx, "watcher", "hoamx_com")
	require.NoError(t, err)
	assert.Equal(t, int64(0), state.LastSeenID)
}
