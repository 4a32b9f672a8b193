package execution

import (
	"sync"
	"time"

	"cryptoSignalBot/internal/domain"
)

type cachedPrice struct {
	price float64
	at    time.Time
}

// PriceCache keeps the latest streamed close per symbol.
type PriceCache struct {
	mu     sync.RWMutex
	now    func() time.Time
	prices map[string]cachedPrice
}

// NewPriceCache creates an empty cache. now defaults to time.Now.
func NewPriceCache(now func() time.Time) *PriceCache {
	if now == nil {
		now = time.Now
	}
	return &PriceCache{now: now, prices: make(map[string]cachedPrice)}
}

// HandleKline records the close of a streamed kline. It matches the handler
// signature of ports.ExchangeClient.StreamKlines.
func (c *PriceCache) HandleKline(k *domain.Kline) {
	if k == nil || k.Symbol == "" || k.Close <= 0 {
		return
	}
	c.Set(k.Symbol, k.Close)
}

// Set stores price for symbol at the current time.
func (c *PriceCache) Set(symbol string, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[symbol] = cachedPrice{price: price, at: c.now()}
}

// Get returns the cached price for symbol if it is no older than maxAge.
func (c *PriceCache) Get(symbol string, maxAge time.Duration) (float64, bool) {
	c.mu.RLock()
	p, ok := c.prices[symbol]
	c.mu.RUnlock()
	if !ok {
		return 0, false
	}
	if maxAge > 0 && c.now().Sub(p.at) > maxAge {
		return 0, false
	}
	return p.price, true
}
