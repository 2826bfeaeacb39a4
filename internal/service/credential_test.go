package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credserver/internal/model"
	"credserver/internal/storage"
	storeMocks "credserver/internal/storage/mocks"
)

func TestCredentialService_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the stored document", func(t *testing.T) {
		mStore := new(storeMocks.MockStore)
		want := &model.Credentials{AccessToken: "a", RefreshToken: "r", ExpiryDate: 42}
		mStore.On("Load", ctx).Return(want, nil)

		got, err := NewCredentialService(mStore).Get(ctx)

		require.NoError(t, err)
		assert.Equal(t, want, got)
		mStore.AssertExpectations(t)
	})

	t.Run("missing document is not ready", func(t *testing.T) {
		mStore := new(storeMocks.MockStore)
		mStore.On("Load", ctx).Return(nil, storage.ErrNotFound)

		_, err := NewCredentialService(mStore).Get(ctx)

		assert.ErrorIs(t, err, ErrCredentialsNotReady)
	})

	t.Run("corrupt document is surfaced", func(t *testing.T) {
		mStore := new(storeMocks.MockStore)
		mStore.On("Load", ctx).Return(nil, storage.ErrCorrupt)

		_, err := NewCredentialService(mStore).Get(ctx)

		assert.ErrorIs(t, err, storage.ErrCorrupt)
		assert.NotErrorIs(t, err, ErrCredentialsNotReady)
	})
}

func TestCredentialService_Status(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0)

	tests := []struct {
		name  string
		creds *model.Credentials
		want  CredentialStatus
	}{
		{
			name:  "freshly seeded document has unknown expiry and counts as expired",
			creds: &model.Credentials{AccessToken: "a", RefreshToken: "r"},
			want:  CredentialStatus{Expired: true},
		},
		{
			name: "valid token",
			creds: &model.Credentials{
				AccessToken: "a", RefreshToken: "r", ExpiryDate: now.Unix() + 1800,
				TokenType: "Bearer", ResourceURL: "portal.qwen.ai",
			},
			want: CredentialStatus{
				ExpiryDate: now.Unix() + 1800, ExpiryKnown: true, ExpiresIn: 1800,
				TokenType: "Bearer", ResourceURL: "portal.qwen.ai",
			},
		},
		{
			name:  "expired token",
			creds: &model.Credentials{AccessToken: "a", RefreshToken: "r", ExpiryDate: now.Unix() - 5},
			want:  CredentialStatus{ExpiryDate: now.Unix() - 5, ExpiryKnown: true, ExpiresIn: -5, Expired: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mStore := new(storeMocks.MockStore)
			mStore.On("Load", ctx).Return(tt.creds, nil)

			got, err := NewCredentialService(mStore).Status(ctx, now)

			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestCredentialService_Ready(t *testing.T) {
	ctx := context.Background()

	mStore := new(storeMocks.MockStore)
	mStore.On("Exists", ctx).Return(false, nil).Once()
	mStore.On("Exists", ctx).Return(false, errors.New("bucket unreachable")).Once()
	svc := NewCredentialService(mStore)

	assert.NoError(t, svc.Ready(ctx))
	assert.EqualError(t, svc.Ready(ctx), "bucket unreachable")
	mStore.AssertExpectations(t)
}
