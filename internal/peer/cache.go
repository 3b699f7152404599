package peer

import (
	"context"
	"sync"
	"time"

	"github.com/a2arun/agentnode/internal/a2atypes"
)

// RefreshFunc fetches a fresh AgentCard for url, grounded on
// runtime/registry/cache.go's RefreshFunc.
type RefreshFunc func(ctx context.Context, url string) (a2atypes.AgentCard, string, error) // card, etag, err

type cacheEntry struct {
	card     a2atypes.AgentCard
	etag     string
	fetchedAt time.Time
}

// CardCache is a TTL-bounded cache of peer AgentCards with background
// refresh, grounded on runtime/registry/cache.go's MemoryCache. Distinct
// peer URLs refresh independently; a refresh failure leaves the stale
// entry in place rather than evicting it, so a peer's transient outage
// doesn't block orchestrator routing that was already working.
type CardCache struct {
	ttl     time.Duration
	refresh RefreshFunc

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewCardCache constructs a CardCache. ttl is how long a cached card
// counts as fresh; an older card is still served while a background
// refresh runs.
func NewCardCache(ttl time.Duration, refresh RefreshFunc) *CardCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CardCache{ttl: ttl, refresh: refresh, entries: make(map[string]cacheEntry)}
}

// Get returns the AgentCard for url, fetching it synchronously if absent. A
// stale-but-present entry triggers a background refresh and is returned
// immediately (serve-stale-while-revalidate), matching the teacher's
// StartRefresh/refreshLoop behavior.
func (c *CardCache) Get(ctx context.Context, url string) (a2atypes.AgentCard, error) {
	c.mu.Lock()
	entry, ok := c.entries[url]
	c.mu.Unlock()

	if !ok {
		card, etag, err := c.refresh(ctx, url)
		if err != nil {
			return a2atypes.AgentCard{}, err
		}
		c.mu.Lock()
		c.entries[url] = cacheEntry{card: card, etag: etag, fetchedAt: time.Now()}
		c.mu.Unlock()
		return card, nil
	}

	if time.Since(entry.fetchedAt) > c.ttl {
		go c.backgroundRefresh(url)
	}
	return entry.card, nil
}

func (c *CardCache) backgroundRefresh(url string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	card, etag, err := c.refresh(ctx, url)
	if err != nil {
		return
	}
	c.mu.Lock()
	c.entries[url] = cacheEntry{card: card, etag: etag, fetchedAt: time.Now()}
	c.mu.Unlock()
}

// Invalidate drops a cached entry, forcing the next Get to fetch fresh.
func (c *CardCache) Invalidate(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, url)
}
