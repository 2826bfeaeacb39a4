package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"credserver/internal/model"
	"credserver/internal/storage/mocks"
)

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "oauth_creds.json")
	store := NewFileStore(path)

	t.Run("missing file", func(t *testing.T) {
		creds, err := store.Load(ctx)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Nil(t, creds)

		ok, err := store.Exists(ctx)
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("save then load", func(t *testing.T) {
		in := &model.Credentials{
			AccessToken:  "access",
			RefreshToken: "refresh",
			ExpiryDate:   1700000000,
			TokenType:    "Bearer",
			ResourceURL:  "portal.qwen.ai",
		}
		require.NoError(t, store.Save(ctx, in))

		out, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, in, out)

		ok, err := store.Exists(ctx)
		assert.NoError(t, err)
		assert.True(t, ok)

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(raw), "\n    \"access_token\": \"access\"")

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})

	t.Run("no temp files left behind", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, &model.Credentials{AccessToken: "a", RefreshToken: "r"}))

		entries, err := os.ReadDir(filepath.Dir(path))
		require.NoError(t, err)
		for _, e := range entries {
			assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "leftover %s", e.Name())
		}
	})

	t.Run("seeded document omits optional fields", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, &model.Credentials{AccessToken: "a", RefreshToken: "r"}))

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(raw), `"expiry_date": 0`)
		assert.NotContains(t, string(raw), "token_type")
	})

	t.Run("corrupt file", func(t *testing.T) {
		for _, body := range []string{"not json", "", "null", "[1,2]", `{"access_token": `} {
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

			creds, err := store.Load(ctx)
			assert.ErrorIs(t, err, ErrCorrupt, "body %q", body)
			assert.Nil(t, creds)

			ok, err := store.Exists(ctx)
			assert.NoError(t, err)
			assert.True(t, ok)
		}
	})

	t.Run("save nil", func(t *testing.T) {
		assert.Error(t, store.Save(ctx, nil))
	})
}

func TestCachedStore(t *testing.T) {
	ctx := context.Background()

	t.Run("second load is served from memory", func(t *testing.T) {
		next := new(mocks.MockStore)
		next.On("Load", ctx).Return(&model.Credentials{AccessToken: "a"}, nil).Once()
		cs := NewCachedStore(next)

		first, err := cs.Load(ctx)
		require.NoError(t, err)
		second, err := cs.Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		second.AccessToken = "mutated"
		third, _ := cs.Load(ctx)
		assert.Equal(t, "a", third.AccessToken)
		next.AssertExpectations(t)
	})

	t.Run("errors are not cached", func(t *testing.T) {
		next := new(mocks.MockStore)
		next.On("Load", ctx).Return(nil, ErrNotFound).Once()
		next.On("Load", ctx).Return(&model.Credentials{AccessToken: "a"}, nil).Once()
		cs := NewCachedStore(next)

		_, err := cs.Load(ctx)
		assert.ErrorIs(t, err, ErrNotFound)

		creds, err := cs.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "a", creds.AccessToken)
		next.AssertExpectations(t)
	})

	t.Run("save and invalidate drop the cache", func(t *testing.T) {
		next := new(mocks.MockStore)
		next.On("Load", ctx).Return(&model.Credentials{AccessToken: "a"}, nil).Times(3)
		next.On("Save", ctx, mock.Anything).Return(nil).Once()
		cs := NewCachedStore(next)

		_, _ = cs.Load(ctx)
		require.NoError(t, cs.Save(ctx, &model.Credentials{AccessToken: "b"}))
		_, _ = cs.Load(ctx)
		cs.Invalidate()
		_, _ = cs.Load(ctx)

		next.AssertExpectations(t)
	})

	t.Run("failed save still invalidates", func(t *testing.T) {
		next := new(mocks.MockStore)
		next.On("Load", ctx).Return(&model.Credentials{AccessToken: "a"}, nil).Twice()
		next.On("Save", ctx, mock.Anything).Return(errors.New("disk full")).Once()
		cs := NewCachedStore(next)

		_, _ = cs.Load(ctx)
		assert.Error(t, cs.Save(ctx, &model.Credentials{}))
		_, _ = cs.Load(ctx)

		next.AssertExpectations(t)
	})

	t.Run("disabled cache reads through", func(t *testing.T) {
		next := new(mocks.MockStore)
		next.On("Load", ctx).Return(&model.Credentials{AccessToken: "a"}, nil).Times(3)
		cs := NewCachedStore(next)

		_, _ = cs.Load(ctx)
		cs.Disable()
		_, _ = cs.Load(ctx)
		_, _ = cs.Load(ctx)

		next.AssertExpectations(t)
	})

	t.Run("exists passes through", func(t *testing.T) {
		next := new(mocks.MockStore)
		next.On("Exists", ctx).Return(true, nil).Once()
		cs := NewCachedStore(next)

		ok, err := cs.Exists(ctx)
		assert.NoError(t, err)
		assert.True(t, ok)
		next.AssertExpectations(t)
	})
}

func TestWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := t.TempDir()
	path := filepath.Join(dir, "oauth_creds.json")
	changed := make(chan struct{}, 8)

	err := Watch(ctx, path, 10*time.Millisecond, zerolog.Nop(), func() {
		changed <- struct{}{}
	})
	require.NoError(t, err)

	// Unrelated files in the same directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0o600))
	select {
	case <-changed:
		t.Fatal("unexpected change notification for another file")
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, NewFileStore(path).Save(ctx, &model.Credentials{AccessToken: "a"}))
	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Fatal("expected change notification")
	}
}

func TestWatch_InvalidatesBeforeDebounce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "oauth_creds.json")
	writer := NewFileStore(path)
	require.NoError(t, writer.Save(ctx, &model.Credentials{AccessToken: "first"}))

	cached := NewCachedStore(NewFileStore(path))
	creds, err := cached.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "first", creds.AccessToken)

	require.NoError(t, Watch(ctx, path, time.Hour, zerolog.Nop(), cached.Invalidate))
	require.NoError(t, writer.Save(ctx, &model.Credentials{AccessToken: "second"}))

	assert.Eventually(t, func() bool {
		creds, err := cached.Load(ctx)
		return err == nil && creds.AccessToken == "second"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestFileStore_ConcurrentReadersNeverSeePartialWrites(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "oauth_creds.json")
	store := NewFileStore(path)

	// A long token makes a torn write much more likely to be observable.
	long := strings.Repeat("x", 64*1024)
	require.NoError(t, store.Save(ctx, &model.Credentials{AccessToken: "0", RefreshToken: long}))

	stop := make(chan struct{})
	var wg sync.WaitGroup
	errs := make(chan error, 8)

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				creds, err := store.Load(ctx)
				if err != nil {
					errs <- err
					return
				}
				if creds.RefreshToken != long {
					errs <- errors.New("document read with truncated refresh token")
					return
				}
			}
		}()
	}

	for i := 1; i <= 200; i++ {
		require.NoError(t, store.Save(ctx, &model.Credentials{
			AccessToken:  strings.Repeat("a", i),
			RefreshToken: long,
			ExpiryDate:   int64(i),
		}))
	}
	close(stop)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NotErrorIs(t, err, ErrCorrupt)
		assert.NoError(t, err)
	}
}

func TestWatch_MissingDirectory(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope", "creds.json"), DefaultDebounce, zerolog.Nop(), func() {})
	assert.Error(t, err)
}

func TestIsNoSuchKey(t *testing.T) {
	assert.True(t, isNoSuchKey(minio.ErrorResponse{Code: "NoSuchKey"}))
	assert.True(t, isNoSuchKey(minio.ErrorResponse{Code: "NoSuchBucket"}))
	assert.False(t, isNoSuchKey(minio.ErrorResponse{Code: "AccessDenied"}))
	assert.False(t, isNoSuchKey(errors.New("boom")))
}
