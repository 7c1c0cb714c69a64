package stock

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SummaryCache keeps short-lived stock summaries in Redis so dashboard polling
// does not hammer the ledger tables.
type SummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSummaryCache instantiates the cache helper.
func NewSummaryCache(client *redis.Client, ttl time.Duration) *SummaryCache {
	return &SummaryCache{client: client, ttl: ttl}
}

func summaryKey(productID int64) string {
	return fmt.Sprintf("stock:summary:%d", productID)
}

// Get returns the cached summary, ok=false on miss or when no cache is wired.
func (c *SummaryCache) Get(ctx context.Context, productID int64) (Summary, bool) {
	if c == nil || c.client == nil {
		return Summary{}, false
	}
	raw, err := c.client.Get(ctx, summaryKey(productID)).Bytes()
	if err != nil {
		return Summary{}, false
	}
	var summary Summary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return Summary{}, false
	}
	return summary, true
}

// Set stores the summary under the configured TTL.
func (c *SummaryCache) Set(ctx context.Context, productID int64, summary Summary) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, summaryKey(productID), raw, c.ttl).Err()
}

// Invalidate drops the cached summary after a mutation.
func (c *SummaryCache) Invalidate(ctx context.Context, productID int64) {
	if c == nil || c.client == nil {
		return
	}
	c.client.Del(ctx, summaryKey(productID))
}
