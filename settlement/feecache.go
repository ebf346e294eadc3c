package settlement

import (
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/vitwit/x402-router/types"
)

// FeeQuoteCache is a short-TTL cache of facilitator-fee quotes keyed by
// (network, hook, hookData). Two requests with the same hook but
// different encoded data never share a quote, since fee depends on
// hook-specific execution cost. Safe for concurrent use.
//
// Expiry is lazy: entries are compared against the wall clock at read
// time and overwritten on the next put. No background sweep runs.
type FeeQuoteCache struct {
	mu      sync.RWMutex
	entries map[string]*types.FeeQuote
	now     func() time.Time
}

// NewFeeQuoteCache builds an empty cache.
func NewFeeQuoteCache() *FeeQuoteCache {
	return &FeeQuoteCache{
		entries: make(map[string]*types.FeeQuote),
		now:     time.Now,
	}
}

func quoteKey(network, hook string, hookData []byte) string {
	return strings.ToLower(network) + "|" + strings.ToLower(hook) + "|" + hex.EncodeToString(hookData)
}

// Get returns the cached quote for the triple, or a miss when absent or
// expired. Expired entries are dropped on the spot.
func (c *FeeQuoteCache) Get(network, hook string, hookData []byte) (*types.FeeQuote, bool) {
	key := quoteKey(network, hook, hookData)

	c.mu.RLock()
	quote, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if quote.Expired(c.now()) {
		c.mu.Lock()
		// Recheck under the write lock; a fresh quote may have landed.
		if cur, ok := c.entries[key]; ok && cur.Expired(c.now()) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return quote, true
}

// Put stores a quote, overwriting any previous entry for its triple.
func (c *FeeQuoteCache) Put(quote *types.FeeQuote) {
	hookData, _ := hexDecodeLoose(quote.HookData)
	key := quoteKey(quote.Network, quote.Hook, hookData)

	c.mu.Lock()
	c.entries[key] = quote
	c.mu.Unlock()
}

// Clear drops all entries for a network, or every entry when network is
// empty.
func (c *FeeQuoteCache) Clear(network string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if network == "" {
		c.entries = make(map[string]*types.FeeQuote)
		return
	}
	prefix := strings.ToLower(network) + "|"
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

// Len reports the number of entries, expired or not.
func (c *FeeQuoteCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func hexDecodeLoose(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return nil, nil
	}
	return hex.DecodeString(s)
}
