package backtesting

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"cryptoSignalBot/internal/adapters/memory"
	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ledger"
	"cryptoSignalBot/internal/ports"
	"cryptoSignalBot/internal/risk"
	"cryptoSignalBot/internal/strategy"
	"cryptoSignalBot/internal/strategy/analytics"
)

// BacktestConfig holds configuration for backtesting
type BacktestConfig struct {
	StartTime      time.Time // zero means from the first candle
	EndTime        time.Time // zero means up to the last candle
	InitialFunds   float64
	MinTradeAmount float64
	CandleLimit    int    // candles served per evaluation, defaults to strategy.DefaultCandleLimit
	Symbol         string // defaults to the symbol of the first candle
	Interval       string // defaults to the interval of the first candle
}

// BacktestResult holds the results of a backtest
type BacktestResult struct {
	*analytics.Report
	Performance *domain.StrategyPerformance
	SharpeRatio float64
	Candles     int
	Trades      []*domain.Trade
}

// Backtest replays klines through the signal generator for settings. At most one
// trade is open at a time; it closes when a later candle's range crosses its stop
// loss (checked first) or take profit. A trade still open after the last candle is
// closed at that candle's close.
func Backtest(ctx context.Context, settings domain.StrategySettings, klines []*domain.Kline, config BacktestConfig, logger ports.Logger) (*BacktestResult, error) {
	op := "Backtest"
	if logger == nil {
		return nil, errors.New("missing required dependencies for backtest")
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("%s failed: %w: %w", op, ports.ErrInvalidStrategy, err)
	}
	klines = window(klines, config.StartTime, config.EndTime)
	if len(klines) < settings.MinCandles() {
		return nil, fmt.Errorf("%s failed: not enough data points for strategy: have %d, need %d", op, len(klines), settings.MinCandles())
	}
	if config.InitialFunds <= 0 {
		config.InitialFunds = ledger.DefaultInitialBalance
	}
	if config.CandleLimit <= 0 {
		config.CandleLimit = strategy.DefaultCandleLimit
	}
	if config.Symbol == "" {
		config.Symbol = klines[0].Symbol
	}
	if config.Interval == "" {
		config.Interval = klines[0].Interval
	}

	feed := &replayFeed{klines: klines}
	book, err := ledger.New(memory.NewStore(), logger, ledger.Config{
		InitialBalance: config.InitialFunds,
		Now:            feed.now,
	})
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}
	gen, err := strategy.NewGenerator(feed, logger, strategy.GeneratorConfig{
		CandleLimit: config.CandleLimit,
		Now:         feed.now,
	})
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}

	var open *domain.Trade
	for i, k := range klines {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%s canceled: %w", op, err)
		}
		feed.pos = i

		if open != nil {
			if price, reason, hit := exitOnCandle(open, k); hit {
				if _, err := book.CloseTrade(ctx, open.ID, price, reason); err != nil {
					return nil, fmt.Errorf("%s failed to close trade: %w", op, err)
				}
				open = nil
			}
		}
		if open != nil || i+1 < settings.MinCandles() {
			continue
		}

		sig, err := gen.Evaluate(ctx, settings, config.Symbol, config.Interval)
		if err != nil {
			return nil, fmt.Errorf("%s failed: %w", op, err)
		}
		if sig == nil {
			continue
		}
		open, err = openTrade(ctx, book, settings, sig, config.MinTradeAmount)
		if err != nil {
			return nil, fmt.Errorf("%s failed: %w", op, err)
		}
		if open == nil {
			logger.Debug(ctx, op+": signal skipped, order too small", map[string]interface{}{
				"time":  k.CloseTime,
				"entry": sig.EntryPrice,
			})
		}
	}
	if open != nil {
		last := klines[len(klines)-1]
		if _, err := book.CloseTrade(ctx, open.ID, last.Close, domain.CloseReasonSystem); err != nil {
			return nil, fmt.Errorf("%s failed to close trade at end of data: %w", op, err)
		}
	}

	trades, err := book.GetRecentTrades(ctx, -1, "", "")
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}
	sort.SliceStable(trades, func(i, j int) bool { return trades[i].EntryTime.Before(trades[j].EntryTime) })
	perf, err := book.CalculatePerformance(ctx, settings.ID)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}

	result := &BacktestResult{
		Report:      analytics.Analyze(trades, config.InitialFunds),
		Performance: perf[settings.ID],
		Candles:     len(klines),
		Trades:      trades,
	}
	if result.Performance == nil {
		result.Performance = &domain.StrategyPerformance{StrategyID: settings.ID}
	}
	returns := make([]float64, 0, len(trades))
	for _, t := range trades {
		returns = append(returns, t.PNLPercentage/100)
	}
	result.SharpeRatio = calculateSharpeRatio(returns)

	logger.Info(ctx, "Backtest finished", map[string]interface{}{
		"strategy":     settings.ID,
		"symbol":       config.Symbol,
		"interval":     config.Interval,
		"candles":      len(klines),
		"trades":       result.TotalTrades,
		"finalBalance": result.FinalBalance,
	})
	return result, nil
}

// openTrade sizes sig against the current equity and records it. It returns nil
// when the order would fall below minNotional or exceed the equity.
func openTrade(ctx context.Context, book *ledger.Ledger, settings domain.StrategySettings, sig *domain.Signal, minNotional float64) (*domain.Trade, error) {
	equity, err := book.LatestEquity(ctx)
	if err != nil {
		return nil, err
	}
	order, err := risk.SizeOrder(equity, settings.RiskPerTrade, sig.EntryPrice, minNotional)
	if errors.Is(err, ports.ErrBelowMinNotional) || errors.Is(err, ports.ErrInsufficientFunds) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return book.AddTrade(ctx, domain.Trade{
		Symbol:     sig.Symbol,
		StrategyID: sig.StrategyID,
		Side:       sig.Side,
		EntryPrice: sig.EntryPrice,
		EntryTime:  sig.Timestamp,
		Quantity:   order.Quantity.InexactFloat64(),
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		Paper:      true,
	})
}

// exitOnCandle reports the exit level crossed by the candle's range, if any.
func exitOnCandle(t *domain.Trade, k *domain.Kline) (float64, domain.CloseReason, bool) {
	adverse, favorable := k.Low, k.High
	if t.Side == domain.Short {
		adverse, favorable = k.High, k.Low
	}
	if t.HitsStopLoss(adverse) {
		return t.StopLoss, domain.CloseReasonStopLoss, true
	}
	if t.HitsTakeProfit(favorable) {
		return t.TakeProfit, domain.CloseReasonTakeProfit, true
	}
	return 0, "", false
}

// window keeps the klines opened within [start, end]; zero bounds are open.
func window(klines []*domain.Kline, start, end time.Time) []*domain.Kline {
	if start.IsZero() && end.IsZero() {
		return klines
	}
	out := make([]*domain.Kline, 0, len(klines))
	for _, k := range klines {
		if !start.IsZero() && k.OpenTime.Before(start) {
			continue
		}
		if !end.IsZero() && k.OpenTime.After(end) {
			continue
		}
		out = append(out, k)
	}
	return out
}

// calculateSharpeRatio is the mean over the sample standard deviation of returns,
// with a risk-free rate of 0.
func calculateSharpeRatio(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	stdDev := math.Sqrt(variance)

	if stdDev == 0 {
		return 0
	}
	return mean / stdDev
}
