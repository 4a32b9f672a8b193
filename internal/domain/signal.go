package domain

import "time"

// Signal is a generated, not-yet-executed trade proposal.
type Signal struct {
	Symbol     string
	Timeframe  string
	Side       TradeSide
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	Confidence int // 1..99
	StrategyID string
	Timestamp  time.Time
}
