package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/oskrba/internal/db"
	"github.com/erazemk/oskrba/internal/localstore"
)

func TestLocalRoundTrip(t *testing.T) {
	storage := localstore.New(db.NewTestDB(t))
	repo := NewLocal(storage, nil)
	ctx := context.Background()

	st, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, st)

	require.NoError(t, repo.Save(ctx, sampleState()))
	st, err = repo.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, sampleState(), *st)

	require.NoError(t, repo.Clear(ctx))
	st, err = repo.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestLocalDiscardsCorruptState(t *testing.T) {
	storage := localstore.New(db.NewTestDB(t))
	repo := NewLocal(storage, nil)
	ctx := context.Background()

	require.NoError(t, storage.Set(ctx, StateKey, "{not json"))

	st, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, st)

	_, ok, err := storage.Get(ctx, StateKey)
	require.NoError(t, err)
	assert.False(t, ok, "corrupt payload must be removed")
}
