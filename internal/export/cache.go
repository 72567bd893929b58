package export

import (
	"context"
	"log/slog"
	"sync"

	"github.com/studiolapse/studiolapse-agent/internal/kvstore"
)

// DurationCache maps clip references to probed durations in seconds. It is
// loaded from the key-value store on first use and written through on every
// Put. Entries are never evicted; clip references are not reused.
type DurationCache struct {
	kv     kvstore.Store
	logger *slog.Logger

	mu      sync.Mutex
	loaded  bool
	entries map[string]float64
}

func NewDurationCache(kv kvstore.Store, logger *slog.Logger) *DurationCache {
	return &DurationCache{kv: kv, logger: logger}
}

func (c *DurationCache) Get(ctx context.Context, clipRef string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.load(ctx)
	d, ok := c.entries[clipRef]
	return d, ok
}

func (c *DurationCache) Put(ctx context.Context, clipRef string, seconds float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.load(ctx)
	c.entries[clipRef] = seconds
	return kvstore.SetJSON(ctx, c.kv, kvstore.KeyDurationCache, c.entries)
}

func (c *DurationCache) Len(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.load(ctx)
	return len(c.entries)
}

// load must be called with mu held.
func (c *DurationCache) load(ctx context.Context) {
	if c.loaded {
		return
	}
	entries := make(map[string]float64)
	if _, err := kvstore.GetJSON(ctx, c.kv, kvstore.KeyDurationCache, &entries); err != nil {
		if c.logger != nil {
			c.logger.Error("failed to read duration cache, starting empty", "error", err)
		}
		entries = make(map[string]float64)
	}
	c.entries = entries
	c.loaded = true
}
