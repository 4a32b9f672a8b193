package domain

import "time"

// IsOpen checks if the trade is still open.
func (t *Trade) IsOpen() bool {
	return t.Status == StatusOpen
}

// IsClosed checks if the trade has been closed with a realized result.
func (t *Trade) IsClosed() bool {
	return t.Status == StatusClosed
}

// PNLAt returns the profit or loss of the trade if it were closed at price.
func (t *Trade) PNLAt(price float64) float64 {
	if t.Side == Short {
		return (t.EntryPrice - price) * t.Quantity
	}
	return (price - t.EntryPrice) * t.Quantity
}

// HitsStopLoss reports whether price has crossed the stop level.
func (t *Trade) HitsStopLoss(price float64) bool {
	if t.StopLoss <= 0 {
		return false
	}
	if t.Side == Short {
		return price >= t.StopLoss
	}
	return price <= t.StopLoss
}

// HitsTakeProfit reports whether price has crossed the target level.
func (t *Trade) HitsTakeProfit(price float64) bool {
	if t.TakeProfit <= 0 {
		return false
	}
	if t.Side == Short {
		return price <= t.TakeProfit
	}
	return price >= t.TakeProfit
}

// Close builds the update that transitions an open trade to CLOSED at exitPrice.
func (t *Trade) Close(exitPrice float64, at time.Time, reason CloseReason) TradeUpdate {
	status := StatusClosed
	pnl := t.PNLAt(exitPrice)
	var pct float64
	if notional := t.EntryPrice * t.Quantity; notional > 0 {
		pct = pnl / notional * 100
	}
	return TradeUpdate{
		Status:        &status,
		ExitPrice:     &exitPrice,
		ExitTime:      &at,
		PNL:           &pnl,
		PNLPercentage: &pct,
		CloseReason:   &reason,
	}
}
