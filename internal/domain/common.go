package domain

import "fmt"

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// OrderType represents the exchange order type.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// TradeSide is the direction of a position.
type TradeSide string

const (
	Long  TradeSide = "LONG"
	Short TradeSide = "SHORT"
)

// OrderSide returns the order side that opens a position in this direction.
func (s TradeSide) OrderSide() OrderSide {
	if s == Short {
		return Sell
	}
	return Buy
}

// CloseSide returns the order side that flattens a position in this direction.
func (s TradeSide) CloseSide() OrderSide {
	if s == Short {
		return Buy
	}
	return Sell
}

// Valid reports whether s is LONG or SHORT.
func (s TradeSide) Valid() bool {
	return s == Long || s == Short
}

// TradeStatus represents the lifecycle state of a trade.
type TradeStatus string

const (
	StatusOpen     TradeStatus = "OPEN"
	StatusClosed   TradeStatus = "CLOSED"
	StatusCanceled TradeStatus = "CANCELED"
)

// CloseReason indicates why a trade was closed.
type CloseReason string

const (
	CloseReasonTakeProfit CloseReason = "TAKE_PROFIT"
	CloseReasonStopLoss   CloseReason = "STOP_LOSS"
	CloseReasonManual     CloseReason = "MANUAL"
	CloseReasonSystem     CloseReason = "SYSTEM"
)

// Severity grades alerts and errors surfaced to the operator.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseTradeSide accepts LONG/SHORT as well as the BUY/SELL spelling.
func ParseTradeSide(s string) (TradeSide, error) {
	switch s {
	case "LONG", "BUY":
		return Long, nil
	case "SHORT", "SELL":
		return Short, nil
	default:
		return "", fmt.Errorf("unknown trade side %q", s)
	}
}
