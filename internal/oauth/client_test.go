package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc, cfg Config) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg.TokenURL = srv.URL + "/oauth/token"
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	return NewClient(cfg)
}

func TestClient_Refresh(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/oauth/token", r.URL.Path)
			assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
			assert.Equal(t, "old-refresh", r.PostForm.Get("refresh_token"))
			_, hasClient := r.PostForm["client_id"]
			assert.False(t, hasClient)

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"new-access","refresh_token":"new-refresh","expires_in":7200}`))
		}, Config{})

		tr, err := c.Refresh(ctx, "old-refresh")
		require.NoError(t, err)
		assert.Equal(t, "new-access", tr.AccessToken)
		assert.Equal(t, "new-refresh", tr.RefreshToken)
		assert.Equal(t, int64(7200), tr.ExpiresIn)
	})

	t.Run("client credentials sent when configured", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "my-client", r.PostForm.Get("client_id"))
			assert.Equal(t, "my-secret", r.PostForm.Get("client_secret"))
			_, _ = w.Write([]byte(`{"access_token":"a"}`))
		}, Config{ClientID: "my-client", ClientSecret: "my-secret"})

		tr, err := c.Refresh(ctx, "r")
		require.NoError(t, err)
		assert.Equal(t, "a", tr.AccessToken)
		assert.Empty(t, tr.RefreshToken)
		assert.Zero(t, tr.ExpiresIn)
	})

	t.Run("non 2xx", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
		}, Config{})

		tr, err := c.Refresh(ctx, "r")
		assert.Nil(t, tr)
		var se *StatusError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, http.StatusBadRequest, se.StatusCode)
		assert.Contains(t, se.Error(), "invalid_grant")
	})

	t.Run("missing access token", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"refresh_token":"r2"}`))
		}, Config{})

		_, err := c.Refresh(ctx, "r")
		assert.ErrorIs(t, err, ErrMissingAccessToken)
	})

	t.Run("invalid json", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		}, Config{})

		_, err := c.Refresh(ctx, "r")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "decode token response")
	})

	t.Run("timeout", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}, Config{Timeout: 20 * time.Millisecond})

		_, err := c.Refresh(ctx, "r")
		assert.Error(t, err)
	})

	t.Run("empty refresh token", func(t *testing.T) {
		c := NewClient(Config{TokenURL: "http://127.0.0.1:0"})
		_, err := c.Refresh(ctx, "")
		assert.Error(t, err)
	})
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, strings.Repeat("x", 4)+"...", truncate(strings.Repeat("x", 10), 4))
}
