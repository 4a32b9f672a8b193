package domain

import (
	"fmt"
	"time"
)

// Trade is one position lifecycle record, from order fill to exit.
// ExitPrice, ExitTime, PNL and PNLPercentage are only meaningful once Status is CLOSED.
type Trade struct {
	ID            string      `json:"id"`
	Symbol        string      `json:"symbol"`
	StrategyID    string      `json:"strategyId"`
	Side          TradeSide   `json:"side"`
	EntryPrice    float64     `json:"entryPrice"`
	EntryTime     time.Time   `json:"entryTime"`
	Quantity      float64     `json:"quantity"`
	StopLoss      float64     `json:"stopLoss"`
	TakeProfit    float64     `json:"takeProfit"`
	Status        TradeStatus `json:"status"`
	ExitPrice     float64     `json:"exitPrice,omitempty"`
	ExitTime      *time.Time  `json:"exitTime,omitempty"`
	PNL           float64     `json:"pnl,omitempty"`
	PNLPercentage float64     `json:"pnlPercentage,omitempty"`
	CloseReason   CloseReason `json:"closeReason,omitempty"`
	Notes         string      `json:"notes,omitempty"`
	OrderID       int64       `json:"orderId,omitempty"`
	Paper         bool        `json:"paper,omitempty"`
}

// TradeUpdate is a partial update merged into an existing trade.
// Nil fields are left untouched.
type TradeUpdate struct {
	Status        *TradeStatus
	ExitPrice     *float64
	ExitTime      *time.Time
	PNL           *float64
	PNLPercentage *float64
	CloseReason   *CloseReason
	StopLoss      *float64
	TakeProfit    *float64
	Notes         *string
}

// SetsExit reports whether u touches any of the exit fields.
func (u TradeUpdate) SetsExit() bool {
	return u.ExitPrice != nil || u.ExitTime != nil || u.PNL != nil ||
		u.PNLPercentage != nil || u.CloseReason != nil
}

// Closes reports whether u transitions the trade to CLOSED.
func (u TradeUpdate) Closes() bool {
	return u.Status != nil && *u.Status == StatusClosed
}

// Validate checks the invariants of a freshly opened trade.
func (t *Trade) Validate() error {
	if t.Symbol == "" {
		return fmt.Errorf("trade symbol is required")
	}
	if !t.Side.Valid() {
		return fmt.Errorf("invalid trade side %q", t.Side)
	}
	if t.Quantity <= 0 {
		return fmt.Errorf("trade quantity must be positive, got %f", t.Quantity)
	}
	if t.EntryPrice <= 0 {
		return fmt.Errorf("trade entry price must be positive, got %f", t.EntryPrice)
	}
	switch t.Side {
	case Long:
		if t.StopLoss > 0 && t.StopLoss >= t.EntryPrice {
			return fmt.Errorf("long stop loss %f must be below entry %f", t.StopLoss, t.EntryPrice)
		}
		if t.TakeProfit > 0 && t.TakeProfit <= t.EntryPrice {
			return fmt.Errorf("long take profit %f must be above entry %f", t.TakeProfit, t.EntryPrice)
		}
	case Short:
		if t.StopLoss > 0 && t.StopLoss <= t.EntryPrice {
			return fmt.Errorf("short stop loss %f must be above entry %f", t.StopLoss, t.EntryPrice)
		}
		if t.TakeProfit > 0 && t.TakeProfit >= t.EntryPrice {
			return fmt.Errorf("short take profit %f must be below entry %f", t.TakeProfit, t.EntryPrice)
		}
	}
	return nil
}

// Apply merges u into t.
func (t *Trade) Apply(u TradeUpdate) {
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.ExitPrice != nil {
		t.ExitPrice = *u.ExitPrice
	}
	if u.ExitTime != nil {
		at := *u.ExitTime
		t.ExitTime = &at
	}
	if u.PNL != nil {
		t.PNL = *u.PNL
	}
	if u.PNLPercentage != nil {
		t.PNLPercentage = *u.PNLPercentage
	}
	if u.CloseReason != nil {
		t.CloseReason = *u.CloseReason
	}
	if u.StopLoss != nil {
		t.StopLoss = *u.StopLoss
	}
	if u.TakeProfit != nil {
		t.TakeProfit = *u.TakeProfit
	}
	if u.Notes != nil {
		t.Notes = *u.Notes
	}
}

// ResultTime is the time a completed trade is attributed to: exit time, falling back to entry.
func (t *Trade) ResultTime() time.Time {
	if t.ExitTime != nil && !t.ExitTime.IsZero() {
		return *t.ExitTime
	}
	return t.EntryTime
}
