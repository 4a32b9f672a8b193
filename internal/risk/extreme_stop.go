package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
)

// Halter stops trading. It must be idempotent.
type Halter interface {
	Halt(ctx context.Context, reason string)
}

// EquitySource provides the current realized account value.
type EquitySource interface {
	LatestEquity(ctx context.Context) (float64, error)
}

// Trip reasons.
const (
	ReasonStopLossLimit = "STOP_LOSS_LIMIT"
	ReasonPortfolioLoss = "PORTFOLIO_LOSS"
)

// ExtremeStopConfig holds the circuit breaker thresholds.
type ExtremeStopConfig struct {
	Interval            time.Duration // monitoring tick, default 60s
	StopLossWindow      time.Duration // default 30m
	MaxStopLosses       int           // default 3
	PortfolioWindow     time.Duration // default 4h
	MaxPortfolioLossPct float64       // default 10
	Now                 func() time.Time
}

func (c *ExtremeStopConfig) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.StopLossWindow <= 0 {
		c.StopLossWindow = 30 * time.Minute
	}
	if c.MaxStopLosses <= 0 {
		c.MaxStopLosses = 3
	}
	if c.PortfolioWindow <= 0 {
		c.PortfolioWindow = 4 * time.Hour
	}
	if c.MaxPortfolioLossPct <= 0 {
		c.MaxPortfolioLossPct = 10
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

type stopLossEvent struct {
	at      time.Time
	symbol  string
	tradeID string
}

type portfolioSnapshot struct {
	at    time.Time
	value float64
}

// ExtremeStopStatus is the breaker state reported to operators.
type ExtremeStopStatus struct {
	IsMonitoring       bool
	Tripped            bool
	LastReason         string
	RecentStopLosses   int
	MaxStopLosses      int
	PortfolioLoss4h    float64 // percent
	MaxPortfolioLoss   float64 // percent
	PortfolioSnapshots int
}

// ExtremeStopMonitor halts trading when stop losses cluster or the portfolio draws down
// sharply. Once tripped it stays tripped until Rearm or Reset.
type ExtremeStopMonitor struct {
	cfg      ExtremeStopConfig
	equity   EquitySource
	notifier ports.Notifier
	logger   ports.Logger

	mu         sync.Mutex
	halter     Halter
	stopLosses []stopLossEvent
	snapshots  []portfolioSnapshot
	tripped    bool
	lastReason string
	monitoring bool
	cancel     context.CancelFunc
}

// NewExtremeStopMonitor creates the breaker. notifier may be nil.
func NewExtremeStopMonitor(cfg ExtremeStopConfig, equity EquitySource, notifier ports.Notifier, logger ports.Logger) (*ExtremeStopMonitor, error) {
	if equity == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for ExtremeStopMonitor")
	}
	cfg.applyDefaults()
	return &ExtremeStopMonitor{
		cfg:      cfg,
		equity:   equity,
		notifier: notifier,
		logger:   logger,
	}, nil
}

// SetHalter sets the component stopped on trip.
func (m *ExtremeStopMonitor) SetHalter(h Halter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.halter = h
}

// Start takes an initial snapshot and checks the thresholds on every tick until Stop
// or ctx is done. Calling Start while monitoring is a no-op.
func (m *ExtremeStopMonitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.monitoring {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.monitoring = true
	m.cancel = cancel
	m.mu.Unlock()

	m.takeSnapshot(ctx)
	m.logger.Info(ctx, "Extreme stop monitoring started", map[string]interface{}{"interval": m.cfg.Interval.String()})

	go func() {
		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Check(ctx)
			}
		}
	}()
}

// Stop ends monitoring. It does not wait for an in-flight check.
func (m *ExtremeStopMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.monitoring {
		return
	}
	m.monitoring = false
	m.cancel()
	m.cancel = nil
	m.logger.Info(context.Background(), "Extreme stop monitoring stopped")
}

// RecordStopLoss registers a stop-loss exit and re-checks the clustering threshold.
func (m *ExtremeStopMonitor) RecordStopLoss(ctx context.Context, symbol, tradeID string) {
	now := m.cfg.Now()
	m.mu.Lock()
	m.stopLosses = append(m.stopLosses, stopLossEvent{at: now, symbol: symbol, tradeID: tradeID})
	m.pruneLocked(now)
	count := len(m.stopLosses)
	m.mu.Unlock()

	m.logger.Info(ctx, "Stop loss recorded", map[string]interface{}{
		"symbol":          symbol,
		"tradeId":         tradeID,
		"totalStopLosses": count,
	})
	if alert := m.checkStopLossLimit(ctx); alert != nil {
		m.trip(ctx, alert)
	}
}

// Check takes a portfolio snapshot and evaluates both thresholds. It returns the alert
// raised by this check, or nil.
func (m *ExtremeStopMonitor) Check(ctx context.Context) *domain.Alert {
	m.takeSnapshot(ctx)
	alert := m.checkPortfolioLoss(ctx)
	if alert == nil {
		alert = m.checkStopLossLimit(ctx)
	}
	if alert == nil {
		return nil
	}
	return m.trip(ctx, alert)
}

// Status reports the current breaker state.
func (m *ExtremeStopMonitor) Status() ExtremeStopStatus {
	now := m.cfg.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked(now)
	loss, _ := m.portfolioLossLocked(now)
	return ExtremeStopStatus{
		IsMonitoring:       m.monitoring,
		Tripped:            m.tripped,
		LastReason:         m.lastReason,
		RecentStopLosses:   len(m.stopLosses),
		MaxStopLosses:      m.cfg.MaxStopLosses,
		PortfolioLoss4h:    loss,
		MaxPortfolioLoss:   m.cfg.MaxPortfolioLossPct,
		PortfolioSnapshots: len(m.snapshots),
	}
}

// Rearm clears the tripped flag while keeping the tracked history.
func (m *ExtremeStopMonitor) Rearm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tripped = false
}

// Reset clears all tracked events, snapshots and the tripped flag.
func (m *ExtremeStopMonitor) Reset() {
	m.mu.Lock()
	m.stopLosses = nil
	m.snapshots = nil
	m.tripped = false
	m.lastReason = ""
	m.mu.Unlock()
	m.logger.Info(context.Background(), "Extreme stop monitor reset")
}

func (m *ExtremeStopMonitor) takeSnapshot(ctx context.Context) {
	value, err := m.equity.LatestEquity(ctx)
	if err != nil {
		m.logger.Error(ctx, err, "Error taking portfolio snapshot")
		return
	}
	now := m.cfg.Now()
	m.mu.Lock()
	m.snapshots = append(m.snapshots, portfolioSnapshot{at: now, value: value})
	m.pruneLocked(now)
	n := len(m.snapshots)
	m.mu.Unlock()
	m.logger.Debug(ctx, "Portfolio snapshot taken", map[string]interface{}{"value": value, "snapshots": n})
}

// pruneLocked drops stop-loss events outside the stop-loss window and snapshots older
// than the portfolio window plus one tick. The extra tick keeps the samples taken
// around the window boundary available as the reference for the loss check.
func (m *ExtremeStopMonitor) pruneLocked(now time.Time) {
	slCutoff := now.Add(-m.cfg.StopLossWindow)
	events := m.stopLosses[:0]
	for _, e := range m.stopLosses {
		if e.at.After(slCutoff) {
			events = append(events, e)
		}
	}
	m.stopLosses = events

	snapCutoff := now.Add(-m.cfg.PortfolioWindow - m.cfg.Interval)
	snaps := m.snapshots[:0]
	for _, s := range m.snapshots {
		if s.at.After(snapCutoff) {
			snaps = append(snaps, s)
		}
	}
	m.snapshots = snaps
}

// portfolioLossLocked returns the percentage drop of the latest snapshot from the
// highest snapshot taken at least one portfolio window ago.
func (m *ExtremeStopMonitor) portfolioLossLocked(now time.Time) (loss, reference float64) {
	if len(m.snapshots) < 2 {
		return 0, 0
	}
	cutoff := now.Add(-m.cfg.PortfolioWindow)
	found := false
	for _, s := range m.snapshots {
		if !s.at.After(cutoff) && (!found || s.value > reference) {
			reference = s.value
			found = true
		}
	}
	if !found || reference <= 0 {
		return 0, reference
	}
	current := m.snapshots[len(m.snapshots)-1].value
	return (reference - current) / reference * 100, reference
}

func (m *ExtremeStopMonitor) checkPortfolioLoss(ctx context.Context) *domain.Alert {
	now := m.cfg.Now()
	m.mu.Lock()
	loss, reference := m.portfolioLossLocked(now)
	var current float64
	if n := len(m.snapshots); n > 0 {
		current = m.snapshots[n-1].value
	}
	m.mu.Unlock()

	if loss < m.cfg.MaxPortfolioLossPct {
		return nil
	}
	return &domain.Alert{
		Severity: domain.SeverityCritical,
		Title:    ReasonPortfolioLoss,
		Detail: fmt.Sprintf("portfolio lost %.2f%% within %s (high %.2f, now %.2f); bot stopped",
			loss, m.cfg.PortfolioWindow, reference, current),
		Time: now,
	}
}

func (m *ExtremeStopMonitor) checkStopLossLimit(ctx context.Context) *domain.Alert {
	now := m.cfg.Now()
	m.mu.Lock()
	m.pruneLocked(now)
	count := len(m.stopLosses)
	m.mu.Unlock()

	if count < m.cfg.MaxStopLosses {
		return nil
	}
	return &domain.Alert{
		Severity: domain.SeverityCritical,
		Title:    ReasonStopLossLimit,
		Detail:   fmt.Sprintf("%d stop losses triggered within %s; bot stopped", count, m.cfg.StopLossWindow),
		Time:     now,
	}
}

// trip halts trading and raises the alert once per arming.
func (m *ExtremeStopMonitor) trip(ctx context.Context, alert *domain.Alert) *domain.Alert {
	m.mu.Lock()
	if m.tripped {
		m.mu.Unlock()
		return nil
	}
	m.tripped = true
	m.lastReason = alert.Title
	halter := m.halter
	m.mu.Unlock()

	m.logger.Error(ctx, fmt.Errorf("extreme stop triggered: %s", alert.Title), "Extreme stop protocol activated", map[string]interface{}{
		"reason": alert.Title,
		"detail": alert.Detail,
	})
	if halter != nil {
		halter.Halt(ctx, "extreme stop: "+alert.Detail)
	}
	if m.notifier != nil {
		m.notifier.Notify(ctx, alert.Severity, "EXTREME STOP: "+alert.Title, alert.Detail)
	}
	return alert
}
