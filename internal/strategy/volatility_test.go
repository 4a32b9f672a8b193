package strategy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cryptoSignalBot/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStrategies struct {
	active []domain.StrategySettings
	err    error
}

func (s *stubStrategies) List(ctx context.Context) ([]domain.StrategySettings, error) {
	return s.active, s.err
}

func (s *stubStrategies) Get(ctx context.Context, id string) (*domain.StrategySettings, error) {
	return nil, errors.New("not implemented")
}

func (s *stubStrategies) ActiveStrategies(ctx context.Context) ([]domain.StrategySettings, error) {
	return s.active, s.err
}

// dailyMarket serves one daily candle per symbol.
type dailyMarket struct {
	mu        sync.Mutex
	candles   map[string][4]float64 // open, high, low, close
	failing   map[string]bool
	intervals []string
}

func (m *dailyMarket) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*domain.Kline, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intervals = append(m.intervals, interval)
	if m.failing[symbol] {
		return nil, errors.New("symbol unavailable")
	}
	c, ok := m.candles[symbol]
	if !ok {
		return nil, nil
	}
	return []*domain.Kline{
		{Symbol: symbol, Interval: interval, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1},
		{Symbol: symbol, Interval: interval, Open: c[0], High: c[1], Low: c[2], Close: c[3], Volume: 500},
	}, nil
}

func (m *dailyMarket) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	return 0, nil
}

func (m *dailyMarket) GetServerTime(ctx context.Context) (time.Time, error) {
	return time.Now(), nil
}

func trackedStrategy(symbols ...string) domain.StrategySettings {
	s := domain.DefaultStrategy()
	s.Symbols = symbols
	return s
}

func newTestTracker(t *testing.T, market *dailyMarket, strategies *stubStrategies) *VolatilityTracker {
	t.Helper()
	tracker, err := NewVolatilityTracker(market, strategies, &mockLogger{}, VolatilityConfig{Now: func() time.Time { return signalTime }})
	require.NoError(t, err)
	return tracker
}

func TestNewVolatilityTracker(t *testing.T) {
	_, err := NewVolatilityTracker(nil, &stubStrategies{}, &mockLogger{}, VolatilityConfig{})
	assert.Error(t, err)

	tracker, err := NewVolatilityTracker(&dailyMarket{}, &stubStrategies{}, &mockLogger{}, VolatilityConfig{})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, tracker.cfg.Interval)
	assert.Equal(t, DefaultMinVolatility, tracker.Threshold())
}

func TestVolatilityTracker_Update(t *testing.T) {
	market := &dailyMarket{
		candles: map[string][4]float64{
			"BTCUSDT": {100, 104, 96, 100}, // range 8 over avg 100
			"ETHUSDT": {200, 202, 198, 204}, // range 4 over avg 201
		},
		failing: map[string]bool{"XRPUSDT": true},
	}
	strategies := &stubStrategies{active: []domain.StrategySettings{
		trackedStrategy("BTCUSDT", "ETHUSDT"),
		trackedStrategy("ETHUSDT", "XRPUSDT", "NEWUSDT"),
	}}
	tracker := newTestTracker(t, market, strategies)

	updated, err := tracker.Update(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, updated)
	for _, interval := range market.intervals {
		assert.Equal(t, "1d", interval)
	}
	assert.Len(t, market.intervals, 4, "each symbol is fetched once")

	btc, ok := tracker.Get("BTCUSDT")
	require.True(t, ok)
	assert.InDelta(t, 8.0, btc.VolatilityScore, 1e-9)
	assert.InDelta(t, 100.0, btc.AvgPrice, 1e-9)
	assert.InDelta(t, 0.0, btc.PriceChange24h, 1e-9)
	assert.Equal(t, 500.0, btc.Volume24h)
	assert.Equal(t, signalTime, btc.LastUpdated)

	eth, ok := tracker.Get("ETHUSDT")
	require.True(t, ok)
	assert.InDelta(t, 4.0/201*100, eth.VolatilityScore, 1e-9)
	assert.InDelta(t, 2.0, eth.PriceChange24h, 1e-9)

	_, ok = tracker.Get("XRPUSDT")
	assert.False(t, ok)
}

func TestVolatilityTracker_KeepsDataOnSymbolFailure(t *testing.T) {
	market := &dailyMarket{candles: map[string][4]float64{"BTCUSDT": {100, 110, 90, 100}}}
	tracker := newTestTracker(t, market, &stubStrategies{active: []domain.StrategySettings{trackedStrategy("BTCUSDT")}})

	_, err := tracker.Update(context.Background())
	require.NoError(t, err)
	market.failing = map[string]bool{"BTCUSDT": true}
	updated, err := tracker.Update(context.Background())
	require.NoError(t, err)
	assert.Zero(t, updated)
	assert.True(t, tracker.IsEligible("BTCUSDT"))
}

func TestVolatilityTracker_StrategyError(t *testing.T) {
	boom := errors.New("store down")
	tracker := newTestTracker(t, &dailyMarket{}, &stubStrategies{err: boom})
	_, err := tracker.Update(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestVolatilityTracker_RankingAndEligibility(t *testing.T) {
	market := &dailyMarket{candles: map[string][4]float64{
		"AAAUSDT": {100, 101, 99, 100}, // 2%
		"BBBUSDT": {100, 103, 97, 100}, // 6%
		"CCCUSDT": {100, 102, 98, 100}, // 4%
		"DDDUSDT": {100, 102, 98, 100}, // 4%
	}}
	tracker := newTestTracker(t, market, &stubStrategies{active: []domain.StrategySettings{
		trackedStrategy("AAAUSDT", "BBBUSDT", "CCCUSDT", "DDDUSDT"),
	}})
	_, err := tracker.Update(context.Background())
	require.NoError(t, err)

	ranking := tracker.Ranking()
	require.Len(t, ranking, 4)
	assert.Equal(t, VolatilityRanking{Symbol: "BBBUSDT", Rank: 1, VolatilityScore: 6, IsEligible: true}, ranking[0])
	assert.Equal(t, "CCCUSDT", ranking[1].Symbol)
	assert.Equal(t, "DDDUSDT", ranking[2].Symbol)
	assert.Equal(t, 4, ranking[3].Rank)
	assert.False(t, ranking[3].IsEligible)

	assert.True(t, tracker.IsEligible("CCCUSDT"))
	assert.False(t, tracker.IsEligible("AAAUSDT"))
	assert.False(t, tracker.IsEligible("ZZZUSDT"), "untracked symbols are not eligible")
	assert.Equal(t, []string{"BBBUSDT", "CCCUSDT"}, tracker.TopSymbols(2))
	assert.Equal(t, []string{"BBBUSDT", "CCCUSDT", "DDDUSDT"}, tracker.TopSymbols(10))
}

func TestVolatilityTracker_CustomThreshold(t *testing.T) {
	market := &dailyMarket{candles: map[string][4]float64{
		"BBBUSDT": {100, 103, 97, 100}, // 6%
		"CCCUSDT": {100, 102, 98, 100}, // 4%
	}}
	tracker, err := NewVolatilityTracker(market, &stubStrategies{active: []domain.StrategySettings{
		trackedStrategy("BBBUSDT", "CCCUSDT"),
	}}, &mockLogger{}, VolatilityConfig{MinVolatility: 5})
	require.NoError(t, err)
	_, err = tracker.Update(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5.0, tracker.Threshold())
	assert.False(t, tracker.IsEligible("CCCUSDT"))
	assert.Equal(t, []string{"BBBUSDT"}, tracker.TopSymbols(10))
}

func TestVolatilityTracker_StartStop(t *testing.T) {
	market := &dailyMarket{candles: map[string][4]float64{"BTCUSDT": {100, 110, 90, 100}}}
	tracker, err := NewVolatilityTracker(market, &stubStrategies{active: []domain.StrategySettings{trackedStrategy("BTCUSDT")}},
		&mockLogger{}, VolatilityConfig{Interval: 10 * time.Millisecond})
	require.NoError(t, err)

	tracker.Start(context.Background())
	tracker.Start(context.Background())
	require.Eventually(t, func() bool {
		_, ok := tracker.Get("BTCUSDT")
		return ok
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		market.mu.Lock()
		defer market.mu.Unlock()
		return len(market.intervals) >= 3
	}, time.Second, 5*time.Millisecond)

	tracker.Stop()
	tracker.Stop()
	tracker.mu.RLock()
	defer tracker.mu.RUnlock()
	assert.False(t, tracker.tracking)
}
