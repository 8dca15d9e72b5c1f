package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"image-similarity/internal/domain/entity"
	"image-similarity/internal/infrastructure/storage"
)

func TestUserService_BeginCompareAndCancel(t *testing.T) {
	repo := storage.NewMemoryUserRepository()
	svc := NewUserService(repo)
	ctx := context.Background()

	user, err := svc.BeginCompare(ctx, 1, 10)
	require.NoError(t, err)
	require.Equal(t, entity.StateAwaitingFirst, user.State)

	_, _, err = svc.AcceptImage(ctx, 1, 10, []byte("first"))
	require.NoError(t, err)

	user, err = svc.Cancel(ctx, 1, 10)
	require.NoError(t, err)
	require.Equal(t, entity.StateMainMenu, user.State)
	require.Nil(t, user.Pending)
}

func TestUserService_AcceptImagePair(t *testing.T) {
	repo := storage.NewMemoryUserRepository()
	svc := NewUserService(repo)
	ctx := context.Background()

	_, err := svc.UpdateOptions(ctx, 2, 20, func(o *entity.ComparisonOptions) {
		o.FeatureExtractor = entity.ModelMobileNet
		o.MaxMatches = 10
	})
	require.NoError(t, err)
	_, err = svc.BeginCompare(ctx, 2, 20)
	require.NoError(t, err)

	user, req, err := svc.AcceptImage(ctx, 2, 20, []byte("first"))
	require.NoError(t, err)
	require.Nil(t, req)
	require.Equal(t, entity.StateAwaitingSecond, user.State)

	user, req, err = svc.AcceptImage(ctx, 2, 20, []byte("second"))
	require.NoError(t, err)
	require.NotNil(t, req)
	require.Equal(t, entity.StateProcessing, user.State)
	require.Equal(t, []byte("first"), req.ImageA)
	require.Equal(t, []byte("second"), req.ImageB)
	require.Equal(t, entity.ModelMobileNet, req.Options.FeatureExtractor)
	require.Equal(t, 10, req.Options.MaxMatches)

	_, _, err = svc.AcceptImage(ctx, 2, 20, []byte("third"))
	require.ErrorIs(t, err, ErrBusy)

	user, err = svc.Finish(ctx, 2, 20)
	require.NoError(t, err)
	require.Equal(t, entity.StateMainMenu, user.State)
}

func TestUserService_SetState(t *testing.T) {
	repo := storage.NewMemoryUserRepository()
	svc := NewUserService(repo)
	ctx := context.Background()

	user, err := svc.SetState(ctx, 3, 30, entity.StateAwaitingSecond)
	require.NoError(t, err)
	require.Equal(t, entity.StateAwaitingSecond, user.State)
}
