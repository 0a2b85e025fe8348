package keka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/sequoiaprint/keka-integrations/pkg/app/errors"
	"github.com/sequoiaprint/keka-integrations/pkg/config"
	"github.com/sequoiaprint/keka-integrations/pkg/kvcache"
)

// accessTokenKey is the durable-cache key the token is mirrored under.
const accessTokenKey = "keka_access_token"

const defaultTokenTTL = 24 * time.Hour

// TokenProvider acquires and caches the Keka bearer credential. A
// single in-memory slot serves repeat callers within the process; a
// durable cache entry with a fixed TTL survives restarts. Every
// successful exchange overwrites both.
type TokenProvider struct {
	cfg        *config.KekaConfig
	cache      kvcache.Store
	httpClient *http.Client
	logger     *zap.Logger

	mu    sync.Mutex
	token string
}

// NewTokenProvider creates a TokenProvider backed by the given durable cache.
func NewTokenProvider(cfg *config.KekaConfig, cache kvcache.Store, logger *zap.Logger) *TokenProvider {
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = defaultRequestTimeout
	}

	return &TokenProvider{
		cfg:        cfg,
		cache:      cache,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("keka-token"),
	}
}

// Token returns a valid bearer token. Resolution order: in-memory
// slot, durable cache, credential exchange. fetched reports whether a
// network call was made, so callers can charge it against their rate
// quota.
func (p *TokenProvider) Token(ctx context.Context) (token string, fetched bool, err error) {
	p.mu.Lock()
	if p.token != "" {
		token = p.token
		p.mu.Unlock()
		return token, false, nil
	}
	p.mu.Unlock()

	if cached, err := p.cache.Get(ctx, accessTokenKey); err == nil && len(cached) > 0 {
		token = string(cached)
		p.mu.Lock()
		p.token = token
		p.mu.Unlock()
		return token, false, nil
	} else if err != nil && !errors.Is(err, kvcache.ErrNotFound) {
		p.logger.Warn("token cache read failed", zap.Error(err))
	}

	token, err = p.Refresh(ctx)
	if err != nil {
		return "", false, err
	}
	return token, true, nil
}

// Peek returns the in-memory token without triggering acquisition.
// Empty string means no token has been resolved yet.
func (p *TokenProvider) Peek() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token
}

// Refresh performs the credential exchange unconditionally and
// replaces both the in-memory slot and the durable cache entry.
func (p *TokenProvider) Refresh(ctx context.Context) (string, error) {
	token, err := p.exchange(ctx)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	p.token = token
	p.mu.Unlock()

	ttl := p.cfg.TokenTTL
	if ttl == 0 {
		ttl = defaultTokenTTL
	}
	if err := p.cache.SetTTL(ctx, accessTokenKey, []byte(token), ttl); err != nil {
		// A cache write failure is not fatal: the in-memory slot holds the token.
		p.logger.Warn("failed to mirror token to durable cache", zap.Error(err))
	}

	p.logger.Info("access token refreshed")
	return token, nil
}

// Invalidate drops the in-memory slot and the durable cache entry,
// forcing the next Token call to exchange.
func (p *TokenProvider) Invalidate(ctx context.Context) {
	p.mu.Lock()
	p.token = ""
	p.mu.Unlock()

	if err := p.cache.Delete(ctx, accessTokenKey); err != nil {
		p.logger.Warn("failed to delete cached token", zap.Error(err))
	}
}

func (p *TokenProvider) exchange(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "kekaapi")
	form.Set("scope", "kekaapi")
	form.Set("client_id", p.cfg.ClientID)
	form.Set("client_secret", p.cfg.ClientSecret)
	form.Set("api_key", p.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", apperrors.AuthError(err, "call token endpoint")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apperrors.AuthError(readHTTPError(resp), "token endpoint refused exchange")
	}

	var tr struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", apperrors.AuthError(err, "decode token response")
	}
	if tr.AccessToken == "" {
		return "", apperrors.AuthError(nil, "token response missing access_token")
	}

	return tr.AccessToken, nil
}
