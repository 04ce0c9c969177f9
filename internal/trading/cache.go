package trading

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/hedgebot/internal/types"
)

// DefaultResultTTL is how long fetched market metadata is reused
const DefaultResultTTL = 60 * time.Second

type cachedMarket struct {
	details  *types.MarketDetails
	cachedAt time.Time
}

// resultCache memoizes market metadata for settlement checks. Two sweeps
// may miss at the same time and both fetch; the later write wins.
type resultCache struct {
	source MetadataSource
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]cachedMarket
}

func newResultCache(source MetadataSource, ttl time.Duration, now func() time.Time) *resultCache {
	return &resultCache{
		source:  source,
		ttl:     ttl,
		now:     now,
		entries: make(map[string]cachedMarket),
	}
}

// result reports whether the market is closed and tokenID won. A failed
// fetch reads as open with no winner and is not cached.
func (c *resultCache) result(ctx context.Context, conditionID, tokenID string) (closed, won bool) {
	details := c.get(ctx, conditionID)
	if details == nil || !details.Closed {
		return false, false
	}
	return true, details.Winner(tokenID)
}

func (c *resultCache) get(ctx context.Context, conditionID string) *types.MarketDetails {
	c.mu.Lock()
	entry, ok := c.entries[conditionID]
	c.mu.Unlock()

	if ok && c.now().Sub(entry.cachedAt) < c.ttl {
		return entry.details
	}

	details, err := c.source.FetchMarketMetadata(ctx, conditionID)
	if err != nil {
		log.Warn().Err(err).Str("condition", conditionID).Msg("⚠️ Failed to fetch market result")
		return nil
	}

	c.mu.Lock()
	c.entries[conditionID] = cachedMarket{details: details, cachedAt: c.now()}
	c.mu.Unlock()
	return details
}

// prune drops entries past their TTL
func (c *resultCache) prune() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for id, e := range c.entries {
		if now.Sub(e.cachedAt) >= c.ttl {
			delete(c.entries, id)
		}
	}
}
