package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cryptoSignalBot/config"
	"cryptoSignalBot/internal/adapters/binanceclient"
	"cryptoSignalBot/internal/adapters/logger"
	"cryptoSignalBot/internal/adapters/memory"
	"cryptoSignalBot/internal/adapters/notify"
	"cryptoSignalBot/internal/adapters/postgres"
	"cryptoSignalBot/internal/adapters/sqlite"
	"cryptoSignalBot/internal/app"
	"cryptoSignalBot/internal/execution"
	"cryptoSignalBot/internal/ledger"
	"cryptoSignalBot/internal/ports"
	"cryptoSignalBot/internal/risk"
	"cryptoSignalBot/internal/strategy"
	"cryptoSignalBot/internal/strategy/analytics"

	"go.uber.org/fx"
)

func newLogger(lc fx.Lifecycle, cfg *config.Config) (ports.Logger, error) {
	l, sync, err := logger.New(cfg.LogLevelName, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error {
		sync()
		return nil
	}})
	l.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "format": cfg.LogFormat})
	return l, nil
}

func newStorage(lc fx.Lifecycle, cfg *config.Config, log ports.Logger) (ports.Storage, error) {
	var (
		store ports.Storage
		err   error
	)
	switch cfg.StorageDriver {
	case config.DriverMemory:
		log.Warn(context.Background(), "Using in-memory storage; trades are lost on exit")
		store = memory.NewStore()
	case config.DriverPostgres:
		store, err = postgres.NewStore(context.Background(), postgres.Config{DSN: cfg.PostgresDSN, Logger: log})
	default:
		store, err = sqlite.NewStore(sqlite.Config{DBPath: cfg.DBPath, Driver: cfg.StorageDriver, Logger: log})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s storage: %w", cfg.StorageDriver, err)
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error {
		return store.Close()
	}})
	return store, nil
}

func newExchange(cfg *config.Config, log ports.Logger) (ports.ExchangeClient, error) {
	return binanceclient.New(binanceclient.Config{
		APIKey:               cfg.APIKey,
		SecretKey:            cfg.SecretKey,
		UseTestnet:           cfg.IsTestnet,
		Logger:               log,
		Retry:                cfg.RetryPolicy(),
		RequestTimeout:       cfg.RequestTimeout,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
}

// newNotifier always logs alerts and also sends them to Telegram when configured.
func newNotifier(cfg *config.Config, log ports.Logger) ports.Notifier {
	notifiers := notify.Fanout{notify.NewLogNotifier(log)}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID, cfg.TelegramMinSeverity, log)
		if err != nil {
			log.Error(context.Background(), err, "Telegram notifier unavailable, alerts are logged only")
		} else {
			notifiers = append(notifiers, tg)
		}
	}
	return notifiers
}

func newLedger(cfg *config.Config, store ports.Storage, log ports.Logger) (*ledger.Ledger, error) {
	return ledger.New(store, log, ledger.Config{
		InitialBalance: cfg.InitialBalance,
		WinRateMode:    analytics.WinRateMode(cfg.DailyWinRateMode),
	})
}

func newSettings(cfg *config.Config, store ports.Storage, log ports.Logger) (*strategy.SettingsManager, error) {
	ctx := context.Background()
	settings, err := strategy.NewSettingsManager(ctx, store, log)
	if err != nil {
		return nil, err
	}
	if cfg.StrategiesFile == "" {
		return settings, nil
	}

	data, err := os.ReadFile(cfg.StrategiesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read strategies file '%s': %w", cfg.StrategiesFile, err)
	}
	var n int
	switch strings.ToLower(filepath.Ext(cfg.StrategiesFile)) {
	case ".yaml", ".yml":
		n, err = settings.ImportYAML(ctx, data)
	default:
		n, err = settings.ImportJSON(ctx, data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to import strategies from '%s': %w", cfg.StrategiesFile, err)
	}
	log.Info(ctx, "Strategies imported", map[string]interface{}{"file": cfg.StrategiesFile, "count": n})
	return settings, nil
}

func newGuard(l *ledger.Ledger, log ports.Logger) (*risk.Guard, error) {
	return risk.NewGuard(l, log)
}

func newGenerator(cfg *config.Config, exchange ports.ExchangeClient, log ports.Logger) (*strategy.Generator, error) {
	return strategy.NewGenerator(exchange, log, strategy.GeneratorConfig{CandleLimit: cfg.CandleLimit})
}

func newEngine(cfg *config.Config, exchange ports.ExchangeClient, l *ledger.Ledger, log ports.Logger) (*execution.Engine, error) {
	return execution.NewEngine(exchange, l, log, execution.Config{
		Live:           cfg.LiveTrading,
		QuoteAsset:     cfg.QuoteAsset,
		MinTradeAmount: cfg.MinTradeAmount,
		MinConfidence:  cfg.MinConfidence,
	})
}

func newPriceCache() *execution.PriceCache {
	return execution.NewPriceCache(nil)
}

func newExtremeStop(cfg *config.Config, l *ledger.Ledger, notifier ports.Notifier, log ports.Logger) (*risk.ExtremeStopMonitor, error) {
	return risk.NewExtremeStopMonitor(risk.ExtremeStopConfig{
		Interval:            cfg.ExtremeStopInterval,
		MaxStopLosses:       cfg.MaxStopLosses30Min,
		MaxPortfolioLossPct: cfg.MaxPortfolioLoss4H,
	}, l, notifier, log)
}

func newExitMonitor(cfg *config.Config, engine *execution.Engine, settings *strategy.SettingsManager, extreme *risk.ExtremeStopMonitor, cache *execution.PriceCache, log ports.Logger) (*execution.ExitMonitor, error) {
	return execution.NewExitMonitor(engine, settings, extreme, cache, log, execution.ExitMonitorConfig{
		Interval: cfg.ExitCheckInterval,
	})
}

func newVolatilityTracker(cfg *config.Config, exchange ports.ExchangeClient, settings *strategy.SettingsManager, log ports.Logger) (*strategy.VolatilityTracker, error) {
	return strategy.NewVolatilityTracker(exchange, settings, log, strategy.VolatilityConfig{
		Interval:      cfg.VolatilityInterval,
		MinVolatility: cfg.MinVolatilityPct,
	})
}

func newErrorTracker() *app.ErrorTracker {
	return app.NewErrorTracker(app.ErrorTrackerConfig{})
}

func newController(
	cfg *config.Config,
	exchange ports.ExchangeClient,
	settings *strategy.SettingsManager,
	guard *risk.Guard,
	generator *strategy.Generator,
	engine *execution.Engine,
	extreme *risk.ExtremeStopMonitor,
	cache *execution.PriceCache,
	l *ledger.Ledger,
	notifier ports.Notifier,
	errs *app.ErrorTracker,
	volatility *strategy.VolatilityTracker,
	log ports.Logger,
) (*app.BotController, error) {
	var filter app.VolatilityFilter
	if cfg.VolatilityFilter {
		filter = volatility
	}
	return app.NewBotController(app.Dependencies{
		Exchange:    exchange,
		Strategies:  settings,
		Guard:       guard,
		Generator:   generator,
		Executor:    engine,
		Breaker:     extreme,
		Prices:      cache,
		Ledger:      l,
		Performance: settings,
		Notifier:    notifier,
		Errors:      errs,
		Volatility:  filter,
		Logger:      log,
	}, app.ControllerConfig{
		Interval:    cfg.AnalysisInterval,
		CallSpacing: cfg.MinCallSpacing,
	})
}

func newHealthChecker(cfg *config.Config, exchange ports.ExchangeClient, settings *strategy.SettingsManager, errs *app.ErrorTracker, log ports.Logger) (*app.HealthChecker, error) {
	return app.NewHealthChecker(exchange, settings, errs, log, app.HealthConfig{
		QuoteAsset:     cfg.QuoteAsset,
		MinTradeAmount: cfg.MinTradeAmount,
		LiveTrading:    cfg.LiveTrading,
		Testnet:        cfg.IsTestnet,
	})
}
