package websearch

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

type cacheEntry struct {
	resp     Response
	storedAt time.Time
}

// resultCache is a small in-process TTL cache for search responses.
// Entries expire on read.
type resultCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

func newResultCache(ttl time.Duration) *resultCache {
	return &resultCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func cacheKey(req Request) string {
	return fmt.Sprintf("%s|%d|%s|%s", strings.ToLower(strings.TrimSpace(req.Query)), req.Count, req.Country, req.Language)
}

func (c *resultCache) get(req Request) (*Response, bool) {
	if c == nil || c.ttl <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey(req)
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.storedAt) >= c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	resp := entry.resp
	resp.Cached = true
	return &resp, true
}

func (c *resultCache) put(req Request, resp *Response) {
	if c == nil || c.ttl <= 0 || resp == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(req)] = cacheEntry{resp: *resp, storedAt: c.now()}
}
