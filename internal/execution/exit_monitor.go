package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
	"cryptoSignalBot/internal/risk"
)

// ExitMonitorConfig holds the exit monitor settings.
type ExitMonitorConfig struct {
	Interval    time.Duration // sweep period, default 15s
	MaxPriceAge time.Duration // streamed prices older than this fall back to the ticker, default 30s
}

// SweepReport summarizes one pass over the open trades.
type SweepReport struct {
	Checked int
	Closed  int
	Trailed int
	Failed  int
}

// ExitMonitor closes OPEN trades whose price crosses the stop or target level
// and trails stops for strategies that enable it.
type ExitMonitor struct {
	engine     *Engine
	strategies ports.StrategyRepository
	recorder   ports.StopLossRecorder
	cache      *PriceCache
	logger     ports.Logger
	cfg        ExitMonitorConfig

	sweepMu  sync.Mutex
	extremes map[string]float64 // most favorable price seen per trade

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// NewExitMonitor creates an ExitMonitor. recorder may be nil.
func NewExitMonitor(engine *Engine, strategies ports.StrategyRepository, recorder ports.StopLossRecorder, cache *PriceCache, logger ports.Logger, cfg ExitMonitorConfig) (*ExitMonitor, error) {
	if engine == nil || strategies == nil || cache == nil || logger == nil {
		return nil, errors.New("missing required dependencies for exit monitor")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.MaxPriceAge <= 0 {
		cfg.MaxPriceAge = 30 * time.Second
	}
	return &ExitMonitor{
		engine:     engine,
		strategies: strategies,
		recorder:   recorder,
		cache:      cache,
		logger:     logger,
		cfg:        cfg,
		extremes:   make(map[string]float64),
	}, nil
}

// Start runs Sweep every interval in a goroutine until Stop or ctx is done.
func (m *ExitMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.mu.Unlock()

	m.logger.Info(ctx, "Exit monitor started", map[string]interface{}{"interval": m.cfg.Interval.String()})
	go m.Run(ctx, m.cfg.Interval)
}

// Stop ends the sweep loop started by Start. It does not wait for an in-flight sweep.
func (m *ExitMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	m.cancel()
	m.cancel = nil
	m.logger.Info(context.Background(), "Exit monitor stopped")
}

// Run sweeps immediately and then every interval until ctx is done.
func (m *ExitMonitor) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = m.cfg.Interval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := m.Sweep(ctx); err != nil && ctx.Err() == nil {
			m.logger.Error(ctx, err, "Exit sweep failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep checks every OPEN trade once. Failures on one trade do not stop the others.
func (m *ExitMonitor) Sweep(ctx context.Context) (SweepReport, error) {
	op := "Sweep"
	m.sweepMu.Lock()
	defer m.sweepMu.Unlock()

	var report SweepReport
	trades, err := m.engine.ledger.GetOpenTrades(ctx)
	if err != nil {
		return report, fmt.Errorf("%s failed to load open trades: %w", op, err)
	}

	open := make(map[string]struct{}, len(trades))
	for _, trade := range trades {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		open[trade.ID] = struct{}{}
		report.Checked++

		closed, trailed, err := m.checkTrade(ctx, trade)
		switch {
		case err != nil:
			report.Failed++
			m.logger.Error(ctx, err, op+": trade check failed", map[string]interface{}{
				"tradeId": trade.ID,
				"symbol":  trade.Symbol,
			})
		case closed:
			report.Closed++
			delete(open, trade.ID)
		case trailed:
			report.Trailed++
		}
	}

	for id := range m.extremes {
		if _, ok := open[id]; !ok {
			delete(m.extremes, id)
		}
	}
	if report.Closed > 0 || report.Failed > 0 {
		m.logger.Info(ctx, op+": completed", map[string]interface{}{
			"checked": report.Checked,
			"closed":  report.Closed,
			"trailed": report.Trailed,
			"failed":  report.Failed,
		})
	}
	return report, nil
}

func (m *ExitMonitor) checkTrade(ctx context.Context, trade *domain.Trade) (closed, trailed bool, err error) {
	price, err := m.price(ctx, trade.Symbol)
	if err != nil {
		return false, false, err
	}

	var reason domain.CloseReason
	switch {
	case trade.HitsStopLoss(price):
		reason = domain.CloseReasonStopLoss
	case trade.HitsTakeProfit(price):
		reason = domain.CloseReasonTakeProfit
	}
	if reason != "" {
		closedTrade, err := m.engine.closeAt(ctx, trade, price, reason)
		if err != nil {
			if errors.Is(err, ports.ErrTradeClosed) {
				m.logger.Debug(ctx, "Sweep: trade already closed", map[string]interface{}{"tradeId": trade.ID})
				return true, false, nil
			}
			return false, false, err
		}
		// Trailed stops that lock in profit are not losses.
		if reason == domain.CloseReasonStopLoss && closedTrade.PNL < 0 && m.recorder != nil {
			m.recorder.RecordStopLoss(ctx, trade.Symbol, trade.ID)
		}
		return true, false, nil
	}

	trailed, err = m.trail(ctx, trade, price)
	return false, trailed, err
}

// trail moves the stop behind the most favorable price once the trailed level
// reaches break-even. Stops never loosen.
func (m *ExitMonitor) trail(ctx context.Context, trade *domain.Trade, price float64) (bool, error) {
	extreme, ok := m.extremes[trade.ID]
	if !ok {
		extreme = trade.EntryPrice
	}
	if (trade.Side == domain.Long && price > extreme) || (trade.Side == domain.Short && price < extreme) {
		extreme = price
	}
	m.extremes[trade.ID] = extreme

	settings, err := m.strategies.Get(ctx, trade.StrategyID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !settings.TrailingStop || settings.TrailingDistance <= 0 {
		return false, nil
	}

	next := risk.TrailingStop(trade.Side, trade.StopLoss, extreme, settings.TrailingDistance)
	if next == trade.StopLoss {
		return false, nil
	}
	if (trade.Side == domain.Long && next < trade.EntryPrice) || (trade.Side == domain.Short && next > trade.EntryPrice) {
		return false, nil
	}

	if _, err := m.engine.ledger.UpdateTrade(ctx, trade.ID, domain.TradeUpdate{StopLoss: &next}); err != nil {
		if errors.Is(err, ports.ErrTradeClosed) {
			return false, nil
		}
		return false, err
	}
	m.logger.Info(ctx, "Trailing stop moved", map[string]interface{}{
		"tradeId":  trade.ID,
		"symbol":   trade.Symbol,
		"from":     trade.StopLoss,
		"to":       next,
		"extreme":  extreme,
		"distance": settings.TrailingDistance,
	})
	return true, nil
}

func (m *ExitMonitor) price(ctx context.Context, symbol string) (float64, error) {
	if p, ok := m.cache.Get(symbol, m.cfg.MaxPriceAge); ok {
		return p, nil
	}
	p, err := m.engine.exchange.GetTickerPrice(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("price for %s: %w", symbol, err)
	}
	m.cache.Set(symbol, p)
	return p, nil
}
