package execution

import (
	"context"
	"sync"
	"testing"
	"time"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStrategies struct {
	byID map[string]domain.StrategySettings
}

func (m *mockStrategies) List(ctx context.Context) ([]domain.StrategySettings, error) {
	out := make([]domain.StrategySettings, 0, len(m.byID))
	for _, s := range m.byID {
		out = append(out, s)
	}
	return out, nil
}

func (m *mockStrategies) Get(ctx context.Context, id string) (*domain.StrategySettings, error) {
	s, ok := m.byID[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return &s, nil
}

func (m *mockStrategies) ActiveStrategies(ctx context.Context) ([]domain.StrategySettings, error) {
	return m.List(ctx)
}

type mockRecorder struct {
	mu     sync.Mutex
	events []string
}

func (m *mockRecorder) RecordStopLoss(ctx context.Context, symbol, tradeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, symbol+":"+tradeID)
}

func newMonitor(t *testing.T, f *fixture, trailing bool) (*ExitMonitor, *PriceCache, *mockRecorder) {
	t.Helper()
	settings := domain.DefaultStrategy()
	settings.ID = "trend"
	settings.TrailingStop = trailing
	settings.TrailingDistance = 1
	strategies := &mockStrategies{byID: map[string]domain.StrategySettings{"trend": settings}}

	cache := NewPriceCache(f.clock.Now)
	recorder := &mockRecorder{}
	m, err := NewExitMonitor(f.engine, strategies, recorder, cache, f.logger, ExitMonitorConfig{})
	require.NoError(t, err)
	return m, cache, recorder
}

func openTrade(t *testing.T, f *fixture, symbol string, side domain.TradeSide, sl, tp float64) *domain.Trade {
	t.Helper()
	trade, err := f.ledger.AddTrade(context.Background(), domain.Trade{
		Symbol:     symbol,
		StrategyID: "trend",
		Side:       side,
		EntryPrice: 100,
		Quantity:   1,
		StopLoss:   sl,
		TakeProfit: tp,
		Paper:      true,
	})
	require.NoError(t, err)
	return trade
}

func TestNewExitMonitor(t *testing.T) {
	f := newFixture(t, 1000, Config{})
	_, err := NewExitMonitor(nil, &mockStrategies{}, nil, NewPriceCache(nil), f.logger, ExitMonitorConfig{})
	assert.Error(t, err)

	m, err := NewExitMonitor(f.engine, &mockStrategies{}, nil, NewPriceCache(nil), f.logger, ExitMonitorConfig{})
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, m.cfg.Interval)
	assert.Equal(t, 30*time.Second, m.cfg.MaxPriceAge)
}

func TestSweep_ClosesOnCrossing(t *testing.T) {
	f := newFixture(t, 1000, Config{})
	m, cache, recorder := newMonitor(t, f, false)
	ctx := context.Background()

	longStop := openTrade(t, f, "AAAUSDT", domain.Long, 98, 104)
	shortTarget := openTrade(t, f, "BBBUSDT", domain.Short, 102, 96)
	untouched := openTrade(t, f, "CCCUSDT", domain.Long, 98, 104)

	cache.Set("AAAUSDT", 97)
	cache.Set("BBBUSDT", 95)
	cache.Set("CCCUSDT", 101)

	report, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Checked: 3, Closed: 2}, report)

	got, err := f.ledger.GetTrade(ctx, longStop.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, got.Status)
	assert.Equal(t, domain.CloseReasonStopLoss, got.CloseReason)
	assert.Equal(t, -3.0, got.PNL)

	got, err = f.ledger.GetTrade(ctx, shortTarget.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CloseReasonTakeProfit, got.CloseReason)
	assert.Equal(t, 5.0, got.PNL)

	got, err = f.ledger.GetTrade(ctx, untouched.ID)
	require.NoError(t, err)
	assert.True(t, got.IsOpen())

	assert.Equal(t, []string{"AAAUSDT:" + longStop.ID}, recorder.events)

	equity, err := f.ledger.LatestEquity(ctx)
	require.NoError(t, err)
	assert.Equal(t, 102.0, equity)
}

func TestSweep_FallsBackToTicker(t *testing.T) {
	f := newFixture(t, 1000, Config{})
	m, cache, _ := newMonitor(t, f, false)
	ctx := context.Background()

	trade := openTrade(t, f, "BTCUSDT", domain.Long, 98, 104)
	cache.Set("BTCUSDT", 101)
	f.clock.Advance(time.Minute) // streamed price is stale now
	f.exchange.setPrice("BTCUSDT", 105)

	report, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Closed)

	got, _ := f.ledger.GetTrade(ctx, trade.ID)
	assert.Equal(t, 105.0, got.ExitPrice)
	assert.Equal(t, domain.CloseReasonTakeProfit, got.CloseReason)
}

func TestSweep_IsolatesFailures(t *testing.T) {
	f := newFixture(t, 1000, Config{})
	m, cache, _ := newMonitor(t, f, false)
	ctx := context.Background()

	openTrade(t, f, "ERRUSDT", domain.Long, 98, 104)
	ok := openTrade(t, f, "OKUSDT", domain.Long, 98, 104)
	f.exchange.priceErr["ERRUSDT"] = ports.ErrRetriesExhausted
	cache.Set("OKUSDT", 110)

	report, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Closed)

	got, _ := f.ledger.GetTrade(ctx, ok.ID)
	assert.True(t, got.IsClosed())
	assert.Contains(t, f.logger.errMsgs, "Sweep: trade check failed")
}

func TestSweep_TrailingStop(t *testing.T) {
	f := newFixture(t, 1000, Config{})
	m, cache, recorder := newMonitor(t, f, true)
	ctx := context.Background()

	trade := openTrade(t, f, "BTCUSDT", domain.Long, 98, 110)

	// Trailed level 99.99 is still below entry: stop stays put.
	cache.Set("BTCUSDT", 101)
	report, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Trailed)

	cache.Set("BTCUSDT", 103)
	report, err = m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Trailed)
	got, _ := f.ledger.GetTrade(ctx, trade.ID)
	assert.InDelta(t, 101.97, got.StopLoss, 1e-9)

	// A pullback above the new stop neither closes nor loosens it.
	cache.Set("BTCUSDT", 102)
	report, err = m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Checked: 1}, report)

	cache.Set("BTCUSDT", 101.5)
	report, err = m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Closed)

	got, _ = f.ledger.GetTrade(ctx, trade.ID)
	assert.Equal(t, domain.CloseReasonStopLoss, got.CloseReason)
	assert.InDelta(t, 1.5, got.PNL, 1e-9)
	assert.Empty(t, recorder.events, "profitable trailed stops do not count toward the breaker")
	assert.Empty(t, m.extremes)
}

func TestSweep_RecordsOnlyLosingStops(t *testing.T) {
	f := newFixture(t, 1000, Config{})
	m, cache, recorder := newMonitor(t, f, false)
	ctx := context.Background()

	losing := openTrade(t, f, "AAAUSDT", domain.Long, 98, 110)
	shortLosing := openTrade(t, f, "BBBUSDT", domain.Short, 102, 90)
	cache.Set("AAAUSDT", 97.5)
	cache.Set("BBBUSDT", 102.5)

	report, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Closed)
	assert.ElementsMatch(t, []string{"AAAUSDT:" + losing.ID, "BBBUSDT:" + shortLosing.ID}, recorder.events)

	// A stop moved to break-even closes flat and is not a loss.
	flat := openTrade(t, f, "CCCUSDT", domain.Long, 98, 110)
	stop := 100.0
	_, err = f.ledger.UpdateTrade(ctx, flat.ID, domain.TradeUpdate{StopLoss: &stop})
	require.NoError(t, err)
	cache.Set("CCCUSDT", 100)

	report, err = m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Closed)
	got, err := f.ledger.GetTrade(ctx, flat.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CloseReasonStopLoss, got.CloseReason)
	assert.Len(t, recorder.events, 2)
}

func TestSweep_ShortTrailingStop(t *testing.T) {
	f := newFixture(t, 1000, Config{})
	m, cache, _ := newMonitor(t, f, true)
	ctx := context.Background()

	trade := openTrade(t, f, "BTCUSDT", domain.Short, 102, 90)
	cache.Set("BTCUSDT", 97)
	report, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Trailed)

	got, _ := f.ledger.GetTrade(ctx, trade.ID)
	assert.InDelta(t, 97.97, got.StopLoss, 1e-9)
}

func TestSweep_UnknownStrategySkipsTrailing(t *testing.T) {
	f := newFixture(t, 1000, Config{})
	m, cache, _ := newMonitor(t, f, true)
	ctx := context.Background()

	trade, err := f.ledger.AddTrade(ctx, domain.Trade{
		Symbol: "BTCUSDT", StrategyID: "deleted", Side: domain.Long,
		EntryPrice: 100, Quantity: 1, StopLoss: 98, TakeProfit: 110, Paper: true,
	})
	require.NoError(t, err)
	cache.Set("BTCUSDT", 105)

	report, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Checked: 1}, report)
	got, _ := f.ledger.GetTrade(ctx, trade.ID)
	assert.Equal(t, 98.0, got.StopLoss)
}

func TestExitMonitor_StartStop(t *testing.T) {
	f := newFixture(t, 1000, Config{})
	m, cache, _ := newMonitor(t, f, false)
	m.cfg.Interval = 10 * time.Millisecond

	trade := openTrade(t, f, "BTCUSDT", domain.Long, 98, 104)
	cache.Set("BTCUSDT", 120)

	m.Start(context.Background())
	m.Start(context.Background())
	require.Eventually(t, func() bool {
		got, err := f.ledger.GetTrade(context.Background(), trade.ID)
		return err == nil && got.IsClosed()
	}, time.Second, 5*time.Millisecond)
	m.Stop()
	m.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.False(t, m.running)
}

func TestPriceCache(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	cache := NewPriceCache(clock.Now)

	_, ok := cache.Get("BTCUSDT", time.Minute)
	assert.False(t, ok)

	cache.HandleKline(&domain.Kline{Symbol: "BTCUSDT", Close: 50000})
	cache.HandleKline(&domain.Kline{Symbol: "ETHUSDT", Close: 0})
	cache.HandleKline(nil)

	p, ok := cache.Get("BTCUSDT", time.Minute)
	assert.True(t, ok)
	assert.Equal(t, 50000.0, p)
	_, ok = cache.Get("ETHUSDT", time.Minute)
	assert.False(t, ok)

	clock.Advance(2 * time.Minute)
	_, ok = cache.Get("BTCUSDT", time.Minute)
	assert.False(t, ok)
	_, ok = cache.Get("BTCUSDT", 0)
	assert.True(t, ok)
}
