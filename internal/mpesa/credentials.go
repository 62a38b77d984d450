package mpesa

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// tokenFetchTimeout bounds a shared refresh, which outlives the caller that started it.
const tokenFetchTimeout = 15 * time.Second

// TokenFetcher exchanges the consumer key pair for a bearer token.
type TokenFetcher func(ctx context.Context) (token string, ttl time.Duration, err error)

// CredentialCache holds one bearer token per Client. Concurrent refreshes
// collapse into a single token request.
type CredentialCache struct {
	mu        sync.RWMutex
	token     string
	expiresAt time.Time
	margin    time.Duration
	now       func() time.Time
	group     singleflight.Group
}

func NewCredentialCache(margin time.Duration) *CredentialCache {
	return &CredentialCache{
		margin: margin,
		now:    time.Now,
	}
}

// Get returns the cached token, fetching a new one when it is missing or
// within the refresh margin of expiry.
func (c *CredentialCache) Get(ctx context.Context, fetch TokenFetcher) (string, error) {
	if token, ok := c.cached(); ok {
		return token, nil
	}

	v, err, _ := c.group.Do("token", func() (interface{}, error) {
		if token, ok := c.cached(); ok {
			return token, nil
		}

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), tokenFetchTimeout)
		defer cancel()

		token, ttl, err := fetch(fetchCtx)
		if err != nil {
			return "", err
		}

		c.mu.Lock()
		c.token = token
		c.expiresAt = c.now().Add(ttl)
		c.mu.Unlock()

		return token, nil
	})
	if err != nil {
		return "", err
	}

	return v.(string), nil
}

// Invalidate drops the cached token, typically after the provider answered 401.
func (c *CredentialCache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

func (c *CredentialCache) cached() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.token == "" {
		return "", false
	}
	if !c.now().Add(c.margin).Before(c.expiresAt) {
		return "", false
	}
	return c.token, true
}
