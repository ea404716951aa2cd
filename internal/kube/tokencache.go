package kube

import (
	"sync"
	"time"

	checkpointv1 "github.com/devsisters/checkpoint/api/v1"
)

// tokenCache holds bound tokens per ServiceAccount. Entries are kept for at
// most half the token's lifetime so a cached token is never close to expiry
// when handed out.
type tokenCache struct {
	mu      sync.Mutex
	entries map[checkpointv1.ServiceAccountInfo]tokenEntry
	now     func() time.Time
}

type tokenEntry struct {
	token      string
	validUntil time.Time
}

func newTokenCache() *tokenCache {
	return &tokenCache{
		entries: make(map[checkpointv1.ServiceAccountInfo]tokenEntry),
		now:     time.Now,
	}
}

func (c *tokenCache) get(sa checkpointv1.ServiceAccountInfo) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[sa]
	if !ok || c.now().After(e.validUntil) {
		delete(c.entries, sa)
		return "", false
	}
	return e.token, true
}

func (c *tokenCache) put(sa checkpointv1.ServiceAccountInfo, token string, ttlSeconds int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[sa] = tokenEntry{
		token:      token,
		validUntil: c.now().Add(time.Duration(ttlSeconds) * time.Second),
	}
}
