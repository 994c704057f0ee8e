package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// PriceCache stores last traded prices per symbol with a short TTL.
// The scanner's time-to-entry estimation reads through this cache so a
// single cycle does not hit the ticker endpoint twice for one symbol.
type PriceCache struct {
	client *Client
	prefix string
	ttl    time.Duration
}

// NewPriceCache creates a new price cache
func NewPriceCache(client *Client, prefix string, ttl time.Duration) *PriceCache {
	return &PriceCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Get returns the cached price for a symbol. The second return value
// reports whether the cache held a fresh entry.
func (c *PriceCache) Get(ctx context.Context, symbol string) (float64, bool) {
	if !c.client.Enabled() {
		return 0, false
	}

	raw, err := c.client.Redis().Get(ctx, c.key(symbol)).Result()
	if err != nil {
		return 0, false
	}

	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}

	return price, true
}

// Set stores the price for a symbol. Errors are swallowed: the cache is
// an optimization, not a source of truth.
func (c *PriceCache) Set(ctx context.Context, symbol string, price float64) {
	if !c.client.Enabled() {
		return
	}

	raw := strconv.FormatFloat(price, 'f', -1, 64)
	_ = c.client.Redis().Set(ctx, c.key(symbol), raw, c.ttl).Err()
}

func (c *PriceCache) key(symbol string) string {
	return fmt.Sprintf("%s:price:%s", c.prefix, symbol)
}
