package domain

// StrategyPerformance aggregates completed trades for one strategy.
type StrategyPerformance struct {
	StrategyID            string  `json:"strategyId" yaml:"strategyId"`
	TotalTrades           int     `json:"totalTrades" yaml:"totalTrades"`
	WinningTrades         int     `json:"winningTrades" yaml:"winningTrades"`
	LosingTrades          int     `json:"losingTrades" yaml:"losingTrades"`
	BreakEvenTrades       int     `json:"breakEvenTrades" yaml:"breakEvenTrades"`
	TotalProfit           float64 `json:"totalProfit" yaml:"totalProfit"`
	WinRate               float64 `json:"winRate" yaml:"winRate"` // fraction 0..1
	AverageProfitPerTrade float64 `json:"averageProfitPerTrade" yaml:"averageProfitPerTrade"`
	LargestWin            float64 `json:"largestWin" yaml:"largestWin"`
	LargestLoss           float64 `json:"largestLoss" yaml:"largestLoss"`
	ConsecutiveWins       int     `json:"consecutiveWins" yaml:"consecutiveWins"`
	ConsecutiveLosses     int     `json:"consecutiveLosses" yaml:"consecutiveLosses"`
	MaxConsecutiveWins    int     `json:"maxConsecutiveWins" yaml:"maxConsecutiveWins"`
	MaxConsecutiveLosses  int     `json:"maxConsecutiveLosses" yaml:"maxConsecutiveLosses"`
}

// DailyPerformance aggregates completed trades for one UTC calendar date.
type DailyPerformance struct {
	Date    string  `json:"date"` // YYYY-MM-DD
	Trades  int     `json:"trades"`
	Wins    int     `json:"wins"`
	Losses  int     `json:"losses"`
	Profit  float64 `json:"profit"`
	WinRate float64 `json:"winRate"` // fraction 0..1
}
