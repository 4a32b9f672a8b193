package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"cryptoSignalBot/internal/adapters/logger"
	"cryptoSignalBot/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"BOT_CONFIG_FILE", "BINANCE_API_KEY", "BINANCE_API_SECRET", "IS_TESTNET", "LIVE_TRADING", "QUOTE_ASSET",
	"ANALYSIS_INTERVAL_SECONDS", "MIN_CALL_SPACING_MS", "CANDLE_LIMIT", "MIN_TRADE_AMOUNT", "MIN_CONFIDENCE",
	"INITIAL_BALANCE", "EXIT_CHECK_INTERVAL_SECONDS", "EXTREME_STOP_INTERVAL_SECONDS", "MAX_STOP_LOSSES_30MIN",
	"MAX_PORTFOLIO_LOSS_4H", "DAILY_WINRATE_MODE", "RETRY_MAX_ATTEMPTS", "RETRY_BASE_DELAY_MS", "RETRY_MAX_DELAY_MS",
	"REQUEST_TIMEOUT_SECONDS", "STORAGE_DRIVER", "DB_PATH", "POSTGRES_DSN", "STRATEGIES_FILE",
	"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "TELEGRAM_MIN_SEVERITY", "LOG_LEVEL", "LOG_FORMAT",
	"TRACING_ENABLED", "RECONNECT_DELAY_SECONDS", "MAX_RECONNECT_ATTEMPTS",
	"VOLATILITY_INTERVAL_SECONDS", "MIN_VOLATILITY_PCT", "VOLATILITY_FILTER",
}

// isolate runs the test in an empty directory with every config key blanked.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
	return dir
}

func TestLoadConfig_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsTestnet)
	assert.False(t, cfg.LiveTrading)
	assert.Equal(t, "USDT", cfg.QuoteAsset)
	assert.Equal(t, time.Minute, cfg.AnalysisInterval)
	assert.Equal(t, 100*time.Millisecond, cfg.MinCallSpacing)
	assert.Equal(t, 100, cfg.CandleLimit)
	assert.Equal(t, 10.0, cfg.MinTradeAmount)
	assert.Equal(t, 100.0, cfg.InitialBalance)
	assert.Equal(t, 15*time.Second, cfg.ExitCheckInterval)
	assert.Equal(t, 3, cfg.MaxStopLosses30Min)
	assert.Equal(t, 10.0, cfg.MaxPortfolioLoss4H)
	assert.Equal(t, "recompute", cfg.DailyWinRateMode)
	assert.Equal(t, 5*time.Minute, cfg.VolatilityInterval)
	assert.Equal(t, 3.0, cfg.MinVolatilityPct)
	assert.False(t, cfg.VolatilityFilter)
	assert.Equal(t, DriverSQLite3, cfg.StorageDriver)
	assert.Equal(t, "./data/trading_bot.db", cfg.DBPath)
	assert.Equal(t, logger.LevelInfo, cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, domain.SeverityHigh, cfg.TelegramMinSeverity)

	policy := cfg.RetryPolicy()
	assert.Equal(t, 3, policy.MaxAttempts)
	assert.Equal(t, time.Second, policy.BaseDelay)
	assert.Equal(t, 8*time.Second, policy.MaxDelay)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("BINANCE_API_KEY", "key")
	t.Setenv("BINANCE_API_SECRET", "secret")
	t.Setenv("LIVE_TRADING", "true")
	t.Setenv("ANALYSIS_INTERVAL_SECONDS", "30")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DAILY_WINRATE_MODE", "Running")
	t.Setenv("VOLATILITY_FILTER", "true")
	t.Setenv("MIN_VOLATILITY_PCT", "2.5")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.LiveTrading)
	assert.Equal(t, 30*time.Second, cfg.AnalysisInterval)
	assert.Equal(t, DriverMemory, cfg.StorageDriver)
	assert.Equal(t, logger.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "running", cfg.DailyWinRateMode)
	assert.True(t, cfg.VolatilityFilter)
	assert.Equal(t, 2.5, cfg.MinVolatilityPct)
}

func TestLoadConfig_SettingsFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "bot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("min_trade_amount: 25\ncandle_limit: 200\nquote_asset: busd\n"), 0o600))
	t.Setenv("BOT_CONFIG_FILE", path)
	t.Setenv("CANDLE_LIMIT", "150") // environment wins over the file

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 25.0, cfg.MinTradeAmount)
	assert.Equal(t, 150, cfg.CandleLimit)
	assert.Equal(t, "BUSD", cfg.QuoteAsset)
}

func TestLoadConfig_MissingSettingsFile(t *testing.T) {
	isolate(t)
	t.Setenv("BOT_CONFIG_FILE", "does-not-exist.yaml")
	_, err := LoadConfig()
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestLoadConfig_CollectsErrors(t *testing.T) {
	isolate(t)
	t.Setenv("LIVE_TRADING", "true")
	t.Setenv("MIN_TRADE_AMOUNT", "0")
	t.Setenv("RETRY_MAX_ATTEMPTS", "0")
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("CANDLE_LIMIT", "lots")
	t.Setenv("MIN_VOLATILITY_PCT", "-1")

	_, err := LoadConfig()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "configuration validation failed: ")
	assert.Contains(t, msg, "must be set for live trading")
	assert.Contains(t, msg, "MIN_TRADE_AMOUNT must be positive")
	assert.Contains(t, msg, "RETRY_MAX_ATTEMPTS must be at least 1")
	assert.Contains(t, msg, "POSTGRES_DSN must be set")
	assert.Contains(t, msg, "MIN_VOLATILITY_PCT cannot be negative")
	assert.Contains(t, msg, "invalid integer value 'lots' for key CANDLE_LIMIT")
}

func TestLoadConfig_UnknownDriver(t *testing.T) {
	isolate(t)
	t.Setenv("STORAGE_DRIVER", "mongo")
	_, err := LoadConfig()
	assert.ErrorContains(t, err, `unknown STORAGE_DRIVER "mongo"`)
}
