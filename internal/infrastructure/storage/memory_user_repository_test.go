package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"image-similarity/internal/domain/entity"
)

func TestMemoryUserRepository_GetCreatesUser(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx := context.Background()

	user, err := repo.Get(ctx, 1, 10)
	require.NoError(t, err)
	require.Equal(t, entity.StateMainMenu, user.State)
	require.Equal(t, int64(10), user.ChatID)
}

func TestMemoryUserRepository_SaveIsolatesCopies(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx := context.Background()

	user, err := repo.Get(ctx, 1, 10)
	require.NoError(t, err)
	user.SetState(entity.StateAwaitingSecond)
	user.Pending = []byte("first")

	again, err := repo.Get(ctx, 1, 10)
	require.NoError(t, err)
	require.Equal(t, entity.StateMainMenu, again.State)

	require.NoError(t, repo.Save(ctx, user))
	again, err = repo.Get(ctx, 1, 10)
	require.NoError(t, err)
	require.Equal(t, entity.StateAwaitingSecond, again.State)
	require.Equal(t, []byte("first"), again.Pending)
}

func TestMemoryUserRepository_Reset(t *testing.T) {
	repo := NewMemoryUserRepository()
	ctx := context.Background()

	user, err := repo.Get(ctx, 2, 20)
	require.NoError(t, err)
	user.SetState(entity.StateAwaitingSecond)
	user.Pending = []byte("first")
	require.NoError(t, repo.Save(ctx, user))

	require.NoError(t, repo.Reset(ctx, 2))
	user, err = repo.Get(ctx, 2, 20)
	require.NoError(t, err)
	require.Equal(t, entity.StateMainMenu, user.State)
	require.Nil(t, user.Pending)
}
