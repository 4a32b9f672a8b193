package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"cryptoSignalBot/internal/adapters/logger"
	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/utils"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage drivers.
const (
	DriverSQLite3  = "sqlite3"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey      string
	SecretKey   string
	IsTestnet   bool
	LiveTrading bool // false places test orders only
	QuoteAsset  string

	// Engine
	AnalysisInterval    time.Duration
	MinCallSpacing      time.Duration
	CandleLimit         int
	MinTradeAmount      float64
	MinConfidence       int
	InitialBalance      float64
	ExitCheckInterval   time.Duration
	ExtremeStopInterval time.Duration
	MaxStopLosses30Min  int
	MaxPortfolioLoss4H  float64 // percent
	DailyWinRateMode    string

	// Volatility
	VolatilityInterval time.Duration
	MinVolatilityPct   float64
	VolatilityFilter   bool // skip symbols below MinVolatilityPct

	// Retry
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	RequestTimeout   time.Duration

	// Storage
	StorageDriver string
	DBPath        string
	PostgresDSN   string

	// Strategies
	StrategiesFile string

	// Notifications
	TelegramToken       string
	TelegramChatID      int64
	TelegramMinSeverity domain.Severity

	// Observability
	LogLevel       logger.LogLevel
	LogLevelName   string
	LogFormat      string
	TracingEnabled bool

	// WebSocket
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

// RetryPolicy returns the retry settings for exchange reads.
func (c *Config) RetryPolicy() utils.RetryPolicy {
	return utils.RetryPolicy{
		MaxAttempts: c.RetryMaxAttempts,
		BaseDelay:   c.RetryBaseDelay,
		MaxDelay:    c.RetryMaxDelay,
	}
}

// source resolves keys from the environment first, then the optional settings file.
type source struct {
	file *viper.Viper
}

func (s source) get(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	if s.file != nil && s.file.IsSet(key) {
		return s.file.GetString(key)
	}
	return ""
}

// LoadConfig loads configuration from environment variables (.env file) and the
// optional settings file named by BOT_CONFIG_FILE.
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	src := source{}
	if path := os.Getenv("BOT_CONFIG_FILE"); path != "" {
		v := viper.New()
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
		}
		src.file = v
	}
	return load(src)
}

func load(src source) (*Config, error) {
	cfg := &Config{}
	var errs []string // Collect validation errors
	p := parser{src: src, errs: &errs}

	// Binance API
	cfg.APIKey = p.str("BINANCE_API_KEY", "")
	cfg.SecretKey = p.str("BINANCE_API_SECRET", "")
	cfg.IsTestnet = p.boolean("IS_TESTNET", true) // Default to testnet for safety
	cfg.LiveTrading = p.boolean("LIVE_TRADING", false)
	cfg.QuoteAsset = strings.ToUpper(p.str("QUOTE_ASSET", "USDT"))
	if cfg.LiveTrading && (cfg.APIKey == "" || cfg.SecretKey == "") {
		errs = append(errs, "BINANCE_API_KEY and BINANCE_API_SECRET must be set for live trading")
	}

	// Engine
	cfg.AnalysisInterval = p.seconds("ANALYSIS_INTERVAL_SECONDS", 60)
	cfg.MinCallSpacing = time.Duration(p.integer("MIN_CALL_SPACING_MS", 100)) * time.Millisecond
	cfg.CandleLimit = p.integer("CANDLE_LIMIT", 100)
	cfg.MinTradeAmount = p.float("MIN_TRADE_AMOUNT", 10)
	cfg.MinConfidence = p.integer("MIN_CONFIDENCE", 0)
	cfg.InitialBalance = p.float("INITIAL_BALANCE", 100)
	cfg.ExitCheckInterval = p.seconds("EXIT_CHECK_INTERVAL_SECONDS", 15)
	cfg.ExtremeStopInterval = p.seconds("EXTREME_STOP_INTERVAL_SECONDS", 60)
	cfg.MaxStopLosses30Min = p.integer("MAX_STOP_LOSSES_30MIN", 3)
	cfg.MaxPortfolioLoss4H = p.float("MAX_PORTFOLIO_LOSS_4H", 10)
	cfg.DailyWinRateMode = strings.ToLower(p.str("DAILY_WINRATE_MODE", "recompute"))

	if cfg.AnalysisInterval <= 0 || cfg.ExitCheckInterval <= 0 || cfg.ExtremeStopInterval <= 0 {
		errs = append(errs, "ANALYSIS_INTERVAL_SECONDS, EXIT_CHECK_INTERVAL_SECONDS and EXTREME_STOP_INTERVAL_SECONDS must be positive")
	}
	if cfg.MinCallSpacing < 0 {
		errs = append(errs, "MIN_CALL_SPACING_MS cannot be negative")
	}
	if cfg.CandleLimit <= 0 {
		errs = append(errs, "CANDLE_LIMIT must be positive")
	}
	if cfg.MinTradeAmount <= 0 {
		errs = append(errs, "MIN_TRADE_AMOUNT must be positive")
	}
	if cfg.MinConfidence < 0 || cfg.MinConfidence > 100 {
		errs = append(errs, "MIN_CONFIDENCE must be between 0 and 100")
	}
	if cfg.InitialBalance <= 0 {
		errs = append(errs, "INITIAL_BALANCE must be positive")
	}
	if cfg.MaxStopLosses30Min <= 0 {
		errs = append(errs, "MAX_STOP_LOSSES_30MIN must be positive")
	}
	if cfg.MaxPortfolioLoss4H <= 0 || cfg.MaxPortfolioLoss4H >= 100 {
		errs = append(errs, "MAX_PORTFOLIO_LOSS_4H must be between 0 and 100 (exclusive)")
	}
	if cfg.DailyWinRateMode != "recompute" && cfg.DailyWinRateMode != "running" {
		errs = append(errs, "DAILY_WINRATE_MODE must be 'recompute' or 'running'")
	}

	// Volatility
	cfg.VolatilityInterval = p.seconds("VOLATILITY_INTERVAL_SECONDS", 300)
	cfg.MinVolatilityPct = p.float("MIN_VOLATILITY_PCT", 3)
	cfg.VolatilityFilter = p.boolean("VOLATILITY_FILTER", false)
	if cfg.VolatilityInterval <= 0 {
		errs = append(errs, "VOLATILITY_INTERVAL_SECONDS must be positive")
	}
	if cfg.MinVolatilityPct < 0 {
		errs = append(errs, "MIN_VOLATILITY_PCT cannot be negative")
	}

	// Retry
	cfg.RetryMaxAttempts = p.integer("RETRY_MAX_ATTEMPTS", 3)
	cfg.RetryBaseDelay = time.Duration(p.integer("RETRY_BASE_DELAY_MS", 1000)) * time.Millisecond
	cfg.RetryMaxDelay = time.Duration(p.integer("RETRY_MAX_DELAY_MS", 8000)) * time.Millisecond
	cfg.RequestTimeout = p.seconds("REQUEST_TIMEOUT_SECONDS", 10)
	if cfg.RetryMaxAttempts < 1 {
		errs = append(errs, "RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.RetryBaseDelay <= 0 || cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		errs = append(errs, "RETRY_BASE_DELAY_MS must be positive and not exceed RETRY_MAX_DELAY_MS")
	}
	if cfg.RequestTimeout <= 0 {
		errs = append(errs, "REQUEST_TIMEOUT_SECONDS must be positive")
	}

	// Storage
	cfg.StorageDriver = strings.ToLower(p.str("STORAGE_DRIVER", DriverSQLite3))
	cfg.DBPath = p.str("DB_PATH", "./data/trading_bot.db")
	cfg.PostgresDSN = p.str("POSTGRES_DSN", "")
	switch cfg.StorageDriver {
	case DriverSQLite3, DriverSQLite:
		if cfg.DBPath == "" {
			errs = append(errs, "DB_PATH must be set")
		}
	case DriverPostgres:
		if cfg.PostgresDSN == "" {
			errs = append(errs, "POSTGRES_DSN must be set for the postgres driver")
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Sprintf("unknown STORAGE_DRIVER %q", cfg.StorageDriver))
	}

	cfg.StrategiesFile = p.str("STRATEGIES_FILE", "")

	// Notifications
	cfg.TelegramToken = p.str("TELEGRAM_BOT_TOKEN", "")
	cfg.TelegramChatID = int64(p.integer("TELEGRAM_CHAT_ID", 0))
	cfg.TelegramMinSeverity = domain.Severity(strings.ToLower(p.str("TELEGRAM_MIN_SEVERITY", string(domain.SeverityHigh))))
	if (cfg.TelegramToken == "") != (cfg.TelegramChatID == 0) {
		errs = append(errs, "TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}

	// Observability
	cfg.LogLevelName = p.str("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(cfg.LogLevelName)
	cfg.LogFormat = strings.ToLower(p.str("LOG_FORMAT", "json"))
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" && cfg.LogFormat != "plain" {
		errs = append(errs, "LOG_FORMAT must be 'json', 'console' or 'plain'")
	}
	cfg.TracingEnabled = p.boolean("TRACING_ENABLED", false)

	// Connection Settings
	cfg.ReconnectDelay = p.seconds("RECONNECT_DELAY_SECONDS", 5)
	if cfg.ReconnectDelay <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.MaxReconnectAttempts = p.integer("MAX_RECONNECT_ATTEMPTS", 10)
	if cfg.MaxReconnectAttempts < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// --- Value Helpers ---

// parser reads typed values; malformed values are recorded as validation errors.
type parser struct {
	src  source
	errs *[]string
}

func (p parser) str(key, defaultValue string) string {
	if v := strings.TrimSpace(p.src.get(key)); v != "" {
		return v
	}
	return defaultValue
}

func (p parser) integer(key string, defaultValue int) int {
	valueStr := p.src.get(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(strings.TrimSpace(valueStr))
	if err != nil {
		*p.errs = append(*p.errs, fmt.Sprintf("invalid integer value '%s' for key %s", valueStr, key))
		return defaultValue
	}
	return value
}

func (p parser) float(key string, defaultValue float64) float64 {
	valueStr := p.src.get(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(valueStr), 64)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Sprintf("invalid float value '%s' for key %s", valueStr, key))
		return defaultValue
	}
	return value
}

func (p parser) boolean(key string, defaultValue bool) bool {
	valueStr := p.src.get(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
	if err != nil {
		*p.errs = append(*p.errs, fmt.Sprintf("invalid boolean value '%s' for key %s", valueStr, key))
		return defaultValue
	}
	return value
}

func (p parser) seconds(key string, defaultValue int) time.Duration {
	return time.Duration(p.integer(key, defaultValue)) * time.Second
}
