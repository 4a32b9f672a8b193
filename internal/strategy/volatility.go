package strategy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"cryptoSignalBot/internal/adapters/tracing"
	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"

	"go.opentelemetry.io/otel/attribute"
)

// DefaultMinVolatility is the daily range, in percent of the average price, a symbol
// needs to be eligible.
const DefaultMinVolatility = 3.0

// VolatilityData is the 24h range summary of one symbol, built from its daily candle.
type VolatilityData struct {
	Symbol          string
	VolatilityScore float64 // (high - low) / avg * 100
	HighPrice       float64
	LowPrice        float64
	AvgPrice        float64 // (open + high + low + close) / 4
	PriceChange24h  float64 // percent, close against open
	Volume24h       float64
	LastUpdated     time.Time
}

// VolatilityRanking is one row of the ranking, most volatile first.
type VolatilityRanking struct {
	Symbol          string
	Rank            int
	VolatilityScore float64
	IsEligible      bool
}

// VolatilityConfig holds the tracker settings.
type VolatilityConfig struct {
	Interval      time.Duration // refresh period, default 5m
	MinVolatility float64       // eligibility threshold in percent, default 3
	Now           func() time.Time
}

// VolatilityTracker keeps the daily volatility of every symbol traded by an active
// strategy and ranks them.
type VolatilityTracker struct {
	market     ports.MarketData
	strategies ports.StrategyRepository
	logger     ports.Logger
	cfg        VolatilityConfig

	mu       sync.RWMutex
	data     map[string]VolatilityData
	tracking bool
	cancel   context.CancelFunc
}

// NewVolatilityTracker creates a tracker with no data.
func NewVolatilityTracker(market ports.MarketData, strategies ports.StrategyRepository, logger ports.Logger, cfg VolatilityConfig) (*VolatilityTracker, error) {
	if market == nil || strategies == nil || logger == nil {
		return nil, errors.New("missing required dependencies for VolatilityTracker")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.MinVolatility <= 0 {
		cfg.MinVolatility = DefaultMinVolatility
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &VolatilityTracker{
		market:     market,
		strategies: strategies,
		logger:     logger,
		cfg:        cfg,
		data:       make(map[string]VolatilityData),
	}, nil
}

// Start refreshes in the background immediately and then on every tick until Stop or
// ctx is done. Calling Start while tracking is a no-op.
func (t *VolatilityTracker) Start(ctx context.Context) {
	t.mu.Lock()
	if t.tracking {
		t.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	t.tracking = true
	t.cancel = cancel
	t.mu.Unlock()

	t.logger.Info(ctx, "Volatility tracking started", map[string]interface{}{"interval": t.cfg.Interval.String()})

	go func() {
		t.refresh(ctx)
		ticker := time.NewTicker(t.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.refresh(ctx)
			}
		}
	}()
}

// Stop ends tracking. Collected data is kept.
func (t *VolatilityTracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.tracking {
		return
	}
	t.tracking = false
	t.cancel()
	t.cancel = nil
	t.logger.Info(context.Background(), "Volatility tracking stopped")
}

func (t *VolatilityTracker) refresh(ctx context.Context) {
	if _, err := t.Update(ctx); err != nil && ctx.Err() == nil {
		t.logger.Error(ctx, err, "Error updating volatility data")
	}
}

// Update fetches the daily candle of every symbol of the active strategies and
// returns how many symbols were refreshed. A failing symbol keeps its previous data.
func (t *VolatilityTracker) Update(ctx context.Context) (updated int, err error) {
	op := "VolatilityUpdate"
	ctx, span := tracing.StartSpan(ctx, "strategy.volatility")
	defer func() {
		span.SetAttributes(attribute.Int("updated", updated))
		tracing.End(span, err)
	}()

	active, err := t.strategies.ActiveStrategies(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s failed to load strategies: %w", op, err)
	}
	for _, symbol := range symbols(active) {
		klines, err := t.market.GetKlines(ctx, symbol, "1d", 2)
		if err != nil {
			if ctx.Err() != nil {
				return updated, ctx.Err()
			}
			t.logger.Debug(ctx, op+": symbol skipped", map[string]interface{}{"symbol": symbol, "error": err.Error()})
			continue
		}
		if len(klines) == 0 {
			continue
		}
		d := volatilityOf(klines[len(klines)-1], t.cfg.Now())
		d.Symbol = symbol
		t.mu.Lock()
		t.data[symbol] = d
		t.mu.Unlock()
		updated++
	}
	t.logger.Debug(ctx, op+": completed", map[string]interface{}{"symbols": updated, "top": t.TopSymbols(5)})
	return updated, nil
}

func volatilityOf(k *domain.Kline, now time.Time) VolatilityData {
	d := VolatilityData{
		HighPrice:   k.High,
		LowPrice:    k.Low,
		AvgPrice:    (k.Open + k.High + k.Low + k.Close) / 4,
		Volume24h:   k.Volume,
		LastUpdated: now,
	}
	if d.AvgPrice > 0 {
		d.VolatilityScore = (k.High - k.Low) / d.AvgPrice * 100
	}
	if k.Open > 0 {
		d.PriceChange24h = (k.Close - k.Open) / k.Open * 100
	}
	return d
}

// IsEligible reports whether symbol has data at or above the threshold.
func (t *VolatilityTracker) IsEligible(symbol string) bool {
	d, ok := t.Get(symbol)
	return ok && d.VolatilityScore >= t.Threshold()
}

// Get returns the data of symbol.
func (t *VolatilityTracker) Get(symbol string) (VolatilityData, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.data[symbol]
	return d, ok
}

// Ranking orders every tracked symbol by score, highest first. Ties sort by symbol.
func (t *VolatilityTracker) Ranking() []VolatilityRanking {
	t.mu.RLock()
	all := make([]VolatilityData, 0, len(t.data))
	for _, d := range t.data {
		all = append(all, d)
	}
	t.mu.RUnlock()
	threshold := t.cfg.MinVolatility

	sort.Slice(all, func(i, j int) bool {
		if all[i].VolatilityScore != all[j].VolatilityScore {
			return all[i].VolatilityScore > all[j].VolatilityScore
		}
		return all[i].Symbol < all[j].Symbol
	})
	out := make([]VolatilityRanking, len(all))
	for i, d := range all {
		out[i] = VolatilityRanking{
			Symbol:          d.Symbol,
			Rank:            i + 1,
			VolatilityScore: d.VolatilityScore,
			IsEligible:      d.VolatilityScore >= threshold,
		}
	}
	return out
}

// TopSymbols returns up to limit eligible symbols, most volatile first.
func (t *VolatilityTracker) TopSymbols(limit int) []string {
	var out []string
	for _, r := range t.Ranking() {
		if len(out) == limit {
			break
		}
		if r.IsEligible {
			out = append(out, r.Symbol)
		}
	}
	return out
}

// Threshold returns the eligibility threshold, in percent.
func (t *VolatilityTracker) Threshold() float64 {
	return t.cfg.MinVolatility
}

// symbols returns the sorted set of symbols traded by strategies.
func symbols(strategies []domain.StrategySettings) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range strategies {
		for _, sym := range s.Symbols {
			if _, ok := seen[sym]; ok {
				continue
			}
			seen[sym] = struct{}{}
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out
}
