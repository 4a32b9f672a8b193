package ports

import (
	"context"

	"cryptoSignalBot/internal/domain"
)

// SignalGenerator maps (settings, symbol, timeframe) to zero or one Signal.
// A nil signal with a nil error means no entry condition was met.
type SignalGenerator interface {
	Evaluate(ctx context.Context, settings domain.StrategySettings, symbol, timeframe string) (*domain.Signal, error)
}

// OrderExecutor turns a signal into an order and an OPEN trade.
type OrderExecutor interface {
	Execute(ctx context.Context, signal *domain.Signal, settings domain.StrategySettings) (*domain.Trade, error)
}

// StopLossRecorder is notified whenever a trade closes on its stop level.
type StopLossRecorder interface {
	RecordStopLoss(ctx context.Context, symbol, tradeID string)
}
