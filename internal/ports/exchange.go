package ports

import (
	"context"
	"time"

	"cryptoSignalBot/internal/domain"
)

// OrderRequest describes an order to submit. Quantity and Price are decimal strings
// already rounded to the exchange precision.
type OrderRequest struct {
	Symbol   string
	Side     domain.OrderSide
	Type     domain.OrderType
	Quantity string
	Price    string // only for LIMIT orders
}

// OrderResponse represents the essential details returned after placing an order.
type OrderResponse struct {
	OrderID       int64     // Exchange's order ID (0 for test orders)
	Symbol        string    // Symbol for the order
	ClientOrderID string    // User-defined order ID
	Price         float64   // Price of the order (might be 0 for market orders)
	ExecutedQty   float64   // Quantity filled
	Status        string    // Order status (e.g., NEW, FILLED, TEST)
	Type          string    // Order type (e.g., MARKET, LIMIT)
	Side          string    // Order side (BUY, SELL)
	Timestamp     time.Time // Time the order response was generated
}

// Balance is the free and locked amount of a single asset.
type Balance struct {
	Asset  string
	Free   float64
	Locked float64
}

// AccountInfo is the trading account snapshot.
type AccountInfo struct {
	CanTrade bool
	Balances []Balance
}

// FreeBalance returns the free amount of asset, or 0 if the account holds none.
func (a *AccountInfo) FreeBalance(asset string) float64 {
	for _, b := range a.Balances {
		if b.Asset == asset {
			return b.Free
		}
	}
	return 0
}

// MarketData provides read-only candle and price data.
type MarketData interface {
	// GetKlines retrieves historical klines/candlestick data for the given symbol.
	GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error)

	// GetTickerPrice retrieves the last ticker price for a given symbol.
	GetTickerPrice(ctx context.Context, symbol string) (float64, error)

	// GetServerTime retrieves the current server time from the exchange.
	GetServerTime(ctx context.Context) (time.Time, error)
}

// ExchangeClient defines the interface for interacting with a cryptocurrency exchange.
// This abstraction allows decoupling the core bot logic from specific exchange implementations.
type ExchangeClient interface {
	MarketData

	// IsConfigured reports whether API credentials are present.
	IsConfigured() bool

	// Ping checks the connectivity to the exchange API.
	Ping(ctx context.Context) error

	// GetAccountInfo retrieves trading permissions and balances.
	GetAccountInfo(ctx context.Context) (*AccountInfo, error)

	// PlaceOrder submits a real order.
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error)

	// PlaceTestOrder validates an order without risking funds.
	PlaceTestOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error)

	// StreamKlines starts a WebSocket stream for K-line/candlestick data.
	// It takes handlers for processing domain.Kline events and errors.
	// Returns channels to control the stream (doneCh, stopCh) or an error if connection fails.
	StreamKlines(ctx context.Context, symbol, interval string, handler func(kline *domain.Kline), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error)
}
