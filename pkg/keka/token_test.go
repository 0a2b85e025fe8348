package keka

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/sequoiaprint/keka-integrations/pkg/app/errors"
	"github.com/sequoiaprint/keka-integrations/pkg/config"
	"github.com/sequoiaprint/keka-integrations/pkg/kvcache"
)

func testTokenServer(t *testing.T, token string, calls *int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "kekaapi", r.PostForm.Get("grant_type"))
		require.Equal(t, "client-1", r.PostForm.Get("client_id"))
		require.Equal(t, "secret-1", r.PostForm.Get("client_secret"))
		require.Equal(t, "key-1", r.PostForm.Get("api_key"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"` + token + `","token_type":"Bearer"}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestProvider(t *testing.T, tokenURL string) (*TokenProvider, kvcache.Store) {
	t.Helper()
	cache := kvcache.NewMemoryStore()
	cfg := &config.KekaConfig{
		TokenURL:     tokenURL,
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		APIKey:       "key-1",
		TokenTTL:     24 * time.Hour,
	}
	return NewTokenProvider(cfg, cache, zap.NewNop()), cache
}

func TestTokenProvider_ExchangeAndCache(t *testing.T) {
	ctx := context.Background()
	calls := 0
	server := testTokenServer(t, "tok-abc", &calls)

	provider, cache := newTestProvider(t, server.URL)

	token, fetched, err := provider.Token(ctx)
	require.NoError(t, err)
	require.True(t, fetched)
	require.Equal(t, "tok-abc", token)
	require.Equal(t, 1, calls)

	// Second call is served from the in-memory slot
	token, fetched, err = provider.Token(ctx)
	require.NoError(t, err)
	require.False(t, fetched)
	require.Equal(t, "tok-abc", token)
	require.Equal(t, 1, calls)

	// The durable cache holds a mirror
	cached, err := cache.Get(ctx, accessTokenKey)
	require.NoError(t, err)
	require.Equal(t, "tok-abc", string(cached))
}

func TestTokenProvider_DurableCacheFallback(t *testing.T) {
	ctx := context.Background()
	calls := 0
	server := testTokenServer(t, "tok-fresh", &calls)

	provider, cache := newTestProvider(t, server.URL)
	require.NoError(t, cache.SetTTL(ctx, accessTokenKey, []byte("tok-cached"), time.Hour))

	token, fetched, err := provider.Token(ctx)
	require.NoError(t, err)
	require.False(t, fetched)
	require.Equal(t, "tok-cached", token)
	require.Equal(t, 0, calls)
	require.Equal(t, "tok-cached", provider.Peek())
}

func TestTokenProvider_RefreshOverwrites(t *testing.T) {
	ctx := context.Background()
	calls := 0
	server := testTokenServer(t, "tok-new", &calls)

	provider, cache := newTestProvider(t, server.URL)
	require.NoError(t, cache.Set(ctx, accessTokenKey, []byte("tok-old")))

	token, err := provider.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, "tok-new", token)
	require.Equal(t, 1, calls)

	cached, err := cache.Get(ctx, accessTokenKey)
	require.NoError(t, err)
	require.Equal(t, "tok-new", string(cached))
}

func TestTokenProvider_Peek(t *testing.T) {
	server := testTokenServer(t, "tok-abc", new(int))
	provider, _ := newTestProvider(t, server.URL)

	require.Empty(t, provider.Peek())

	_, _, err := provider.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok-abc", provider.Peek())
}

func TestTokenProvider_ExchangeFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	provider, _ := newTestProvider(t, server.URL)

	_, _, err := provider.Token(context.Background())
	require.Error(t, err)
	require.True(t, apperrors.Is(err, apperrors.CategoryUnauthorized))
}

func TestTokenProvider_MissingAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token_type":"Bearer"}`))
	}))
	defer server.Close()

	provider, _ := newTestProvider(t, server.URL)

	_, _, err := provider.Token(context.Background())
	require.Error(t, err)
	require.True(t, apperrors.Is(err, apperrors.CategoryUnauthorized))
}

func TestTokenProvider_Invalidate(t *testing.T) {
	ctx := context.Background()
	calls := 0
	server := testTokenServer(t, "tok-abc", &calls)

	provider, cache := newTestProvider(t, server.URL)

	_, _, err := provider.Token(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	provider.Invalidate(ctx)
	require.Empty(t, provider.Peek())
	_, err = cache.Get(ctx, accessTokenKey)
	require.ErrorIs(t, err, kvcache.ErrNotFound)

	// Next Token call has to exchange again
	_, fetched, err := provider.Token(ctx)
	require.NoError(t, err)
	require.True(t, fetched)
	require.Equal(t, 2, calls)
}
