package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
)

// HealthStatus is the overall verdict of a health check.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)

// Names of the individual checks.
const (
	CheckAPIKeys            = "apiKeysConfigured"
	CheckAPIConnection      = "apiConnection"
	CheckAccountAccess      = "accountAccess"
	CheckTradingPermissions = "tradingPermissions"
	CheckStrategiesLoaded   = "strategiesLoaded"
	CheckConfigValid        = "configValid"
)

// HealthConfig holds the thresholds the checker compares against.
type HealthConfig struct {
	QuoteAsset     string
	MinTradeAmount float64
	MaxClockSkew   time.Duration // default 5m
	HighRiskPct    float64       // per-trade risk above this is a warning, default 5
	LiveTrading    bool
	Testnet        bool
	ProbeSymbol    string // test order symbol, default BTCUSDT
	Now            func() time.Time
}

// HealthReport is the result of HealthChecker.Check.
type HealthReport struct {
	Overall         HealthStatus
	Checks          map[string]bool
	Warnings        []string
	Errors          []string
	Recommendations []string
}

func (r *HealthReport) fail(check, errMsg, recommendation string) {
	r.Checks[check] = false
	r.Errors = append(r.Errors, errMsg)
	if recommendation != "" {
		r.Recommendations = append(r.Recommendations, recommendation)
	}
}

func (r *HealthReport) warn(msg, recommendation string) {
	r.Warnings = append(r.Warnings, msg)
	if recommendation != "" {
		r.Recommendations = append(r.Recommendations, recommendation)
	}
}

// HealthChecker verifies that the exchange, account and strategies are usable.
type HealthChecker struct {
	exchange   ports.ExchangeClient
	strategies ports.StrategyRepository
	errors     *ErrorTracker
	logger     ports.Logger
	cfg        HealthConfig
}

// NewHealthChecker creates a HealthChecker. errs may be nil.
func NewHealthChecker(exchange ports.ExchangeClient, strategies ports.StrategyRepository, errs *ErrorTracker, logger ports.Logger, cfg HealthConfig) (*HealthChecker, error) {
	if exchange == nil || strategies == nil || logger == nil {
		return nil, errors.New("missing required dependencies for HealthChecker")
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	if cfg.MaxClockSkew <= 0 {
		cfg.MaxClockSkew = 5 * time.Minute
	}
	if cfg.HighRiskPct <= 0 {
		cfg.HighRiskPct = 5
	}
	if cfg.ProbeSymbol == "" {
		cfg.ProbeSymbol = "BTCUSDT"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &HealthChecker{exchange: exchange, strategies: strategies, errors: errs, logger: logger, cfg: cfg}, nil
}

// Check runs every check. The report is healthy with no failed checks, a warning
// with at most two and critical otherwise.
func (h *HealthChecker) Check(ctx context.Context) HealthReport {
	report := HealthReport{Checks: map[string]bool{
		CheckAPIKeys:            true,
		CheckAPIConnection:      true,
		CheckAccountAccess:      true,
		CheckTradingPermissions: true,
		CheckStrategiesLoaded:   true,
		CheckConfigValid:        true,
	}}
	h.logger.Info(ctx, "Starting system health check")

	h.checkAPIKeys(&report)
	h.checkConnection(ctx, &report)
	h.checkAccount(ctx, &report)
	h.checkTradingPermissions(ctx, &report)
	h.checkStrategies(ctx, &report)
	h.checkConfig(&report)
	h.checkErrorRate(&report)

	failed := 0
	for _, ok := range report.Checks {
		if !ok {
			failed++
		}
	}
	switch {
	case failed == 0:
		report.Overall = HealthHealthy
	case failed <= 2:
		report.Overall = HealthWarning
	default:
		report.Overall = HealthCritical
	}

	h.logger.Info(ctx, "System health check completed", map[string]interface{}{
		"overall":      report.Overall,
		"failedChecks": failed,
		"warnings":     len(report.Warnings),
		"errors":       len(report.Errors),
	})
	return report
}

func (h *HealthChecker) checkAPIKeys(r *HealthReport) {
	if !h.exchange.IsConfigured() {
		r.fail(CheckAPIKeys, "API keys not configured", "Configure BINANCE_API_KEY and BINANCE_API_SECRET")
	}
}

func (h *HealthChecker) checkConnection(ctx context.Context, r *HealthReport) {
	serverTime, err := h.exchange.GetServerTime(ctx)
	if err != nil {
		h.logger.Error(ctx, err, "API connection check failed")
		r.fail(CheckAPIConnection, "Cannot reach the exchange API", "Check network connectivity and firewall settings")
		return
	}
	skew := h.cfg.Now().Sub(serverTime)
	if skew < 0 {
		skew = -skew
	}
	if skew > h.cfg.MaxClockSkew {
		r.warn(fmt.Sprintf("Local clock differs from exchange server time by %s", skew.Round(time.Second)),
			"Synchronize the system clock")
	}
}

func (h *HealthChecker) checkAccount(ctx context.Context, r *HealthReport) {
	account, err := h.exchange.GetAccountInfo(ctx)
	if err != nil {
		h.logger.Error(ctx, err, "Account access check failed")
		r.fail(CheckAccountAccess, "Cannot read account information", "Check API key permissions (spot trading required)")
		return
	}
	if !account.CanTrade {
		r.Errors = append(r.Errors, "Trading is not allowed on this account")
		r.Recommendations = append(r.Recommendations, "Enable trading permission for the API key")
	}
	if free := account.FreeBalance(h.cfg.QuoteAsset); free < h.cfg.MinTradeAmount {
		r.warn(fmt.Sprintf("Low %s balance: %.2f", h.cfg.QuoteAsset, free),
			fmt.Sprintf("At least %.2f %s is required to trade", h.cfg.MinTradeAmount, h.cfg.QuoteAsset))
	}
}

func (h *HealthChecker) checkTradingPermissions(ctx context.Context, r *HealthReport) {
	_, err := h.exchange.PlaceTestOrder(ctx, ports.OrderRequest{
		Symbol:   h.cfg.ProbeSymbol,
		Side:     domain.Buy,
		Type:     domain.OrderTypeMarket,
		Quantity: "0.001",
	})
	if err != nil {
		h.logger.Error(ctx, err, "Trading permissions check failed")
		r.fail(CheckTradingPermissions, "No trading permission", "Enable trading permission for the API key")
	}
}

func (h *HealthChecker) checkStrategies(ctx context.Context, r *HealthReport) {
	all, err := h.strategies.List(ctx)
	if err != nil {
		h.logger.Error(ctx, err, "Strategy configuration check failed")
		r.fail(CheckStrategiesLoaded, "Failed to load strategies", "")
		return
	}
	if len(all) == 0 {
		r.fail(CheckStrategiesLoaded, "No trading strategies configured", "Create at least one trading strategy")
		return
	}

	active := 0
	for _, s := range all {
		if s.IsActive {
			active++
		}
		if len(s.Symbols) == 0 {
			r.warn(fmt.Sprintf("Strategy %q has no trading pairs", s.Name), "")
		}
		if s.RiskPerTrade > h.cfg.HighRiskPct {
			r.warn(fmt.Sprintf("High risk per trade in strategy %q: %.2f%%", s.Name, s.RiskPerTrade), "")
		}
	}
	if active == 0 {
		r.warn("No active trading strategies", "Activate at least one trading strategy")
	}
}

func (h *HealthChecker) checkConfig(r *HealthReport) {
	if h.cfg.MinTradeAmount <= 0 {
		r.fail(CheckConfigValid, "Minimum trade amount must be positive", "")
	}
	if h.cfg.LiveTrading && h.cfg.Testnet {
		r.warn("Live trading is enabled while the testnet endpoint is selected",
			"Disable the testnet for live trading or disable live trading for tests")
	}
}

func (h *HealthChecker) checkErrorRate(r *HealthReport) {
	if h.errors == nil || !h.errors.HasExcessiveErrors() {
		return
	}
	window := h.errors.cfg.Window
	r.warn(fmt.Sprintf("%d errors in the last %s", h.errors.CountSince(window), window),
		"Check the recent errors in the logs")
	for _, rec := range h.errors.Recent(domain.SeverityCritical, 3) {
		r.Errors = append(r.Errors, fmt.Sprintf("%s: %s", rec.Context, rec.Message))
	}
}
