package app

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
	"cryptoSignalBot/internal/risk"
	"cryptoSignalBot/internal/utils"

	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultCycleInterval  = 60 * time.Second
	defaultStreamInterval = "1m"
)

// RiskGuard decides whether the daily limits allow another cycle.
type RiskGuard interface {
	ShouldStopTrading(ctx context.Context, strategies []domain.StrategySettings) (risk.Decision, error)
}

// Breaker is the extreme-stop circuit breaker re-armed on every start.
type Breaker interface {
	Rearm()
}

// PriceSink receives streamed klines.
type PriceSink interface {
	HandleKline(k *domain.Kline)
}

// VolatilityFilter reports whether a symbol moves enough to trade.
type VolatilityFilter interface {
	IsEligible(symbol string) bool
}

// PerformanceSink stores per-strategy performance summaries.
type PerformanceSink interface {
	UpdatePerformance(ctx context.Context, perf map[string]*domain.StrategyPerformance) error
}

// ControllerConfig holds the scheduling settings.
type ControllerConfig struct {
	Interval       time.Duration // analysis cycle period, default 60s
	CallSpacing    time.Duration // minimum spacing between evaluations, default 100ms
	StreamInterval string        // kline interval of price streams, default 1m
}

// Dependencies are the collaborators of the BotController. Breaker, Prices, Ledger,
// Performance, Notifier, Errors and Volatility are optional.
type Dependencies struct {
	Exchange    ports.ExchangeClient
	Strategies  ports.StrategyRepository
	Guard       RiskGuard
	Generator   ports.SignalGenerator
	Executor    ports.OrderExecutor
	Breaker     Breaker
	Prices      PriceSink
	Ledger      ports.TradeLedger
	Performance PerformanceSink
	Notifier    ports.Notifier
	Errors      *ErrorTracker
	Volatility  VolatilityFilter
	Logger      ports.Logger
}

// CycleReport summarizes one analysis pass.
type CycleReport struct {
	Started      time.Time
	Duration     time.Duration
	Skipped      bool
	Reason       string
	Combinations int
	Signals      int
	Trades       int
	Errors       int
	Filtered     int  // combinations skipped for low volatility
	Discarded    bool // the controller stopped while the cycle was in flight
}

type priceStream struct {
	symbol string
	stopCh chan struct{}
}

// BotController owns the Stopped -> Running -> Stopped lifecycle and the periodic
// analysis loop. Only one cycle runs at a time.
type BotController struct {
	deps    Dependencies
	cfg     ControllerConfig
	limiter *utils.RateLimiter

	mu         sync.Mutex // protects the state fields below
	running    bool
	generation uint64
	cancel     context.CancelFunc
	streams    []priceStream
	lastCycle  CycleReport

	cycleMu sync.Mutex
}

// NewBotController creates a stopped controller.
func NewBotController(deps Dependencies, cfg ControllerConfig) (*BotController, error) {
	if deps.Exchange == nil || deps.Strategies == nil || deps.Guard == nil ||
		deps.Generator == nil || deps.Executor == nil || deps.Logger == nil {
		return nil, errors.New("missing required dependencies for BotController")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultCycleInterval
	}
	if cfg.CallSpacing <= 0 {
		cfg.CallSpacing = 100 * time.Millisecond
	}
	if cfg.StreamInterval == "" {
		cfg.StreamInterval = defaultStreamInterval
	}
	return &BotController{
		deps:    deps,
		cfg:     cfg,
		limiter: utils.NewRateLimiter(cfg.CallSpacing),
	}, nil
}

// Start verifies exchange connectivity, then schedules the analysis cycle and runs
// one immediately. The connectivity check runs without holding the state lock.
func (c *BotController) Start(ctx context.Context) error {
	op := "Start"
	if c.IsRunning() {
		c.deps.Logger.Warn(ctx, "Attempted to start bot when already running")
		return fmt.Errorf("%s failed: %w", op, ports.ErrAlreadyRunning)
	}
	if !c.deps.Exchange.IsConfigured() {
		return fmt.Errorf("%s failed: %w", op, ports.ErrNotConfigured)
	}
	if err := c.deps.Exchange.Ping(ctx); err != nil {
		c.deps.Logger.Error(ctx, err, "Exchange ping failed")
		return fmt.Errorf("%s failed: exchange unreachable: %w", op, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		c.deps.Logger.Warn(ctx, "Attempted to start bot when already running")
		return fmt.Errorf("%s failed: %w", op, ports.ErrAlreadyRunning)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.running = true
	c.generation++
	c.cancel = cancel
	gen := c.generation

	if c.deps.Breaker != nil {
		c.deps.Breaker.Rearm()
	}
	if c.deps.Errors != nil {
		c.deps.Errors.Clear()
	}
	c.streams = c.startStreams(runCtx)

	go c.loop(runCtx, gen)

	c.deps.Logger.Info(ctx, "Trading bot started", map[string]interface{}{
		"interval": c.cfg.Interval.String(),
		"streams":  len(c.streams),
	})
	return nil
}

// Stop cancels the schedule and the price streams. It returns false if the bot was
// not running. In-flight cycles finish but their results are discarded.
func (c *BotController) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return false
	}
	c.running = false
	c.cancel()
	c.cancel = nil
	for _, s := range c.streams {
		select {
		case s.stopCh <- struct{}{}:
		default:
		}
	}
	c.streams = nil
	c.deps.Logger.Info(context.Background(), "Trading bot stopped")
	return true
}

// Halt stops the bot on behalf of a safety interlock. It is a no-op if the bot is
// already stopped.
func (c *BotController) Halt(ctx context.Context, reason string) {
	if c.Stop() {
		c.deps.Logger.Warn(ctx, "Trading bot halted", map[string]interface{}{"reason": reason})
	}
}

// IsRunning reports whether the bot is in the Running state.
func (c *BotController) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// LastCycle returns the report of the most recent completed cycle.
func (c *BotController) LastCycle() CycleReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCycle
}

func (c *BotController) loop(ctx context.Context, gen uint64) {
	c.runScheduled(ctx)
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !c.isCurrent(gen) {
				return
			}
			c.runScheduled(ctx)
		}
	}
}

func (c *BotController) runScheduled(ctx context.Context) {
	if _, err := c.RunCycle(ctx); err != nil && ctx.Err() == nil && !errors.Is(err, ports.ErrNotRunning) {
		c.deps.Logger.Error(ctx, err, "Analysis cycle failed")
	}
}

// RunCycle runs one analysis pass over every active strategy, symbol and timeframe.
// Overlapping calls are skipped. Errors in one combination do not abort the others.
func (c *BotController) RunCycle(ctx context.Context) (report CycleReport, err error) {
	op := "RunCycle"
	report.Started = time.Now()

	c.mu.Lock()
	running, gen := c.running, c.generation
	c.mu.Unlock()
	if !running {
		return report, fmt.Errorf("%s failed: %w", op, ports.ErrNotRunning)
	}

	if !c.cycleMu.TryLock() {
		c.deps.Logger.Debug(ctx, op+": previous cycle still running, skipped")
		report.Skipped = true
		report.Reason = "cycle already in progress"
		return report, nil
	}
	defer c.cycleMu.Unlock()

	ctx, span := tracing.StartSpan(ctx, "bot.cycle")
	defer func() {
		span.SetAttributes(
			attribute.Int("combinations", report.Combinations),
			attribute.Int("signals", report.Signals),
			attribute.Int("trades", report.Trades),
			attribute.Int("errors", report.Errors),
		)
		tracing.End(span, err)
	}()

	all, err := c.deps.Strategies.List(ctx)
	if err != nil {
		return report, fmt.Errorf("%s failed to load strategies: %w", op, err)
	}
	decision, err := c.deps.Guard.ShouldStopTrading(ctx, all)
	if err != nil {
		return report, fmt.Errorf("%s failed risk check: %w", op, err)
	}
	if decision.Stop {
		c.deps.Logger.Warn(ctx, op+": risk limits reached, skipping cycle", map[string]interface{}{
			"reason":      decision.Reason,
			"dailyProfit": decision.DailyProfit,
			"tradesToday": decision.TradesToday,
		})
		report.Skipped = true
		report.Reason = decision.Reason
		c.finish(gen, report)
		return report, nil
	}

	active, err := c.deps.Strategies.ActiveStrategies(ctx)
	if err != nil {
		return report, fmt.Errorf("%s failed to load active strategies: %w", op, err)
	}
	c.deps.Logger.Debug(ctx, op+": analysis started", map[string]interface{}{
		"strategies": len(active),
		"symbols":    len(symbolUnion(active)),
	})

cycle:
	for _, settings := range active {
		for _, symbol := range settings.Symbols {
			for _, timeframe := range settings.Timeframes {
				if err := c.limiter.Wait(ctx); err != nil {
					report.Discarded = true
					break cycle
				}
				if !c.isCurrent(gen) {
					report.Discarded = true
					break cycle
				}
				report.Combinations++
				if c.runCombination(ctx, gen, settings, symbol, timeframe, &report) {
					report.Discarded = true
					break cycle
				}
			}
		}
	}

	if report.Trades > 0 {
		c.refreshPerformance(ctx)
	}
	if report.Errors > 0 && c.deps.Errors != nil && c.deps.Errors.HasExcessiveErrors() {
		c.deps.Logger.Warn(ctx, op+": excessive error rate", map[string]interface{}{
			"recentErrors": c.deps.Errors.CountSince(c.deps.Errors.cfg.Window),
			"window":       c.deps.Errors.cfg.Window.String(),
		})
	}
	report.Duration = time.Since(report.Started)
	c.deps.Logger.Info(ctx, op+": analysis completed", map[string]interface{}{
		"combinations": report.Combinations,
		"signals":      report.Signals,
		"trades":       report.Trades,
		"errors":       report.Errors,
		"filtered":     report.Filtered,
		"discarded":    report.Discarded,
		"duration":     report.Duration.String(),
	})
	c.finish(gen, report)
	return report, nil
}

// runCombination evaluates and executes one (strategy, symbol, timeframe). It
// returns true when the controller stopped before the signal could be acted on.
func (c *BotController) runCombination(ctx context.Context, gen uint64, settings domain.StrategySettings, symbol, timeframe string, report *CycleReport) (stopped bool) {
	fields := map[string]interface{}{
		"strategy":  settings.ID,
		"symbol":    symbol,
		"timeframe": timeframe,
	}

	if c.deps.Volatility != nil && !c.deps.Volatility.IsEligible(symbol) {
		report.Filtered++
		c.deps.Logger.Debug(ctx, "Symbol below volatility threshold, skipped", fields)
		return false
	}

	signal, err := c.deps.Generator.Evaluate(ctx, settings, symbol, timeframe)
	if err != nil {
		report.Errors++
		c.reportError(ctx, err, "Signal evaluation failed", fields)
		return false
	}
	if signal == nil {
		return false
	}
	report.Signals++

	if !c.isCurrent(gen) {
		c.deps.Logger.Info(ctx, "Bot stopped during analysis, signal discarded", fields)
		return true
	}

	trade, err := c.deps.Executor.Execute(ctx, signal, settings)
	if err != nil {
		report.Errors++
		c.reportError(ctx, err, "Signal execution failed", fields)
		return false
	}
	if trade != nil {
		report.Trades++
	}
	return false
}

func (c *BotController) reportError(ctx context.Context, err error, msg string, fields map[string]interface{}) {
	c.deps.Logger.Error(ctx, err, msg, fields)
	if c.deps.Errors != nil {
		c.deps.Errors.Record(err, fmt.Sprintf("%s %v/%v", msg, fields["strategy"], fields["symbol"]))
	}
	if c.deps.Notifier == nil {
		return
	}
	switch sev := ports.Severity(err); sev {
	case domain.SeverityHigh, domain.SeverityCritical:
		detail := err.Error()
		if errors.Is(err, ports.ErrAuthenticationFailed) || errors.Is(err, ports.ErrInvalidAPIKeys) {
			detail += " (check API key configuration and permissions)"
		}
		c.deps.Notifier.Notify(ctx, sev, msg, detail)
	}
}

func (c *BotController) refreshPerformance(ctx context.Context) {
	if c.deps.Ledger == nil || c.deps.Performance == nil {
		return
	}
	perf, err := c.deps.Ledger.CalculatePerformance(ctx, "")
	if err != nil {
		c.deps.Logger.Error(ctx, err, "Failed to calculate strategy performance")
		return
	}
	if err := c.deps.Performance.UpdatePerformance(ctx, perf); err != nil {
		c.deps.Logger.Error(ctx, err, "Failed to store strategy performance")
	}
}

func (c *BotController) finish(gen uint64, report CycleReport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation == gen {
		c.lastCycle = report
	}
}

func (c *BotController) isCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running && c.generation == gen
}

// startStreams must be called with mu held.
func (c *BotController) startStreams(ctx context.Context) []priceStream {
	if c.deps.Prices == nil {
		return nil
	}
	active, err := c.deps.Strategies.ActiveStrategies(ctx)
	if err != nil {
		c.deps.Logger.Error(ctx, err, "Failed to load strategies for price streams")
		return nil
	}

	var streams []priceStream
	for _, symbol := range symbolUnion(active) {
		_, stopCh, err := c.deps.Exchange.StreamKlines(ctx, symbol, c.cfg.StreamInterval,
			c.deps.Prices.HandleKline,
			func(err error) {
				c.deps.Logger.Error(ctx, err, "Price stream error", map[string]interface{}{"symbol": symbol})
			},
		)
		if err != nil {
			c.deps.Logger.Error(ctx, err, "Failed to start price stream", map[string]interface{}{"symbol": symbol})
			continue
		}
		streams = append(streams, priceStream{symbol: symbol, stopCh: stopCh})
	}
	return streams
}

// symbolUnion returns the sorted set of symbols traded by strategies.
func symbolUnion(strategies []domain.StrategySettings) []string {
	seen := make(map[string]struct{})
	for _, s := range strategies {
		for _, sym := range s.Symbols {
			seen[sym] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for sym := range seen {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
