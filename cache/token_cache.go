// Package cache holds the in-process read cache for access tokens. The
// userinfo and validate endpoints are read-heavy; tokens change rarely
// (issue, revoke), so a short-TTL cache in front of the store is cheap.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/nimbusid/oauthd/domain"
)

// HashToken hashes a raw token value. Cache keys are hashes so a dump of
// the cache never contains usable bearer credentials.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// AccessTokenCache caches access token records by hashed token value.
type AccessTokenCache struct {
	cache  *ttlcache.Cache[string, *domain.AccessToken]
	maxTTL time.Duration
}

// NewAccessTokenCache creates a cache whose entries live at most maxTTL,
// clamped to the token's own remaining lifetime.
func NewAccessTokenCache(maxTTL time.Duration) *AccessTokenCache {
	c := ttlcache.New(
		ttlcache.WithTTL[string, *domain.AccessToken](maxTTL),
		ttlcache.WithDisableTouchOnHit[string, *domain.AccessToken](),
	)
	go c.Start()

	return &AccessTokenCache{cache: c, maxTTL: maxTTL}
}

// Set stores a token record.
func (c *AccessTokenCache) Set(_ context.Context, token *domain.AccessToken) {
	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		return
	}
	if ttl > c.maxTTL {
		ttl = c.maxTTL
	}
	c.cache.Set(HashToken(token.Token), token, ttl)
}

// Get returns a cached record, or nil and false on miss.
func (c *AccessTokenCache) Get(_ context.Context, tokenValue string) (*domain.AccessToken, bool) {
	item := c.cache.Get(HashToken(tokenValue))
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

// Delete drops a record, used when a token is revoked.
func (c *AccessTokenCache) Delete(_ context.Context, tokenValue string) {
	c.cache.Delete(HashToken(tokenValue))
}

// Len returns the number of cached entries.
func (c *AccessTokenCache) Len() int {
	return c.cache.Len()
}

// Close stops the background expiry loop.
func (c *AccessTokenCache) Close() {
	c.cache.Stop()
}
