package ports

import (
	"context"

	"cryptoSignalBot/internal/domain"
)

// Storage is a durable key-value store for JSON documents.
type Storage interface {
	// Load returns the value stored under key. found is false if the key is absent.
	Load(ctx context.Context, key string) (value []byte, found bool, err error)
	// Save stores value under key, replacing any previous value.
	Save(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases the underlying resources.
	Close() error
}

// TradeLedger is the single source of truth for trades and equity.
type TradeLedger interface {
	AddTrade(ctx context.Context, trade domain.Trade) (*domain.Trade, error)
	UpdateTrade(ctx context.Context, id string, update domain.TradeUpdate) (*domain.Trade, error)
	GetTrade(ctx context.Context, id string) (*domain.Trade, error)
	GetOpenTrades(ctx context.Context) ([]*domain.Trade, error)
	GetRecentTrades(ctx context.Context, limit int, symbol, strategyID string) ([]*domain.Trade, error)
	CalculatePerformance(ctx context.Context, strategyID string) (map[string]*domain.StrategyPerformance, error)
	GetDailyPerformance(ctx context.Context, days int) ([]domain.DailyPerformance, error)
	GetEquityData(ctx context.Context, timeframe domain.EquityTimeframe) ([]domain.EquityPoint, error)
	LatestEquity(ctx context.Context) (float64, error)
	InitialBalance() float64
}

// StrategyRepository provides the strategy settings read by the scheduler and engine.
type StrategyRepository interface {
	List(ctx context.Context) ([]domain.StrategySettings, error)
	Get(ctx context.Context, id string) (*domain.StrategySettings, error)
	ActiveStrategies(ctx context.Context) ([]domain.StrategySettings, error)
}
