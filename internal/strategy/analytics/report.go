package analytics

import (
	"math"
	"sort"
	"time"

	"cryptoSignalBot/internal/domain"
)

// Report holds equity-curve metrics for a sequence of completed trades.
type Report struct {
	TotalTrades          int
	WinningTrades        int
	LosingTrades         int
	WinRate              float64
	TotalProfit          float64
	FinalBalance         float64
	ReturnOnInvestment   float64
	MaxDrawdown          float64 // fraction of the peak balance
	ProfitFactor         float64
	AverageWin           float64
	AverageLoss          float64
	Expectancy           float64
	AverageTradeDuration time.Duration
	Drawdowns            []Drawdown
	EquityCurve          []domain.EquityPoint
	MonthlyReturns       map[string]float64
}

// Drawdown represents a drawdown period
type Drawdown struct {
	StartTime  time.Time
	EndTime    time.Time
	StartValue float64
	EndValue   float64
	Depth      float64
}

// MonthlyReturn represents a monthly return value
type MonthlyReturn struct {
	Month  time.Time
	Return float64
}

// Analyze builds a Report from the CLOSED trades in trades, replayed in exit order
// starting from initialBalance.
func Analyze(trades []*domain.Trade, initialBalance float64) *Report {
	r := &Report{
		FinalBalance:   initialBalance,
		MonthlyReturns: make(map[string]float64),
		EquityCurve:    []domain.EquityPoint{},
	}

	closed := make([]*domain.Trade, 0, len(trades))
	for _, t := range trades {
		if completed(t) {
			closed = append(closed, t)
		}
	}
	if len(closed) == 0 {
		return r
	}
	sort.SliceStable(closed, func(i, j int) bool {
		return closed[i].ResultTime().Before(closed[j].ResultTime())
	})

	balance, peak := initialBalance, initialBalance
	var grossWin, grossLoss float64
	var totalDuration time.Duration
	var open *Drawdown

	for _, t := range closed {
		r.TotalTrades++
		switch {
		case t.PNL > 0:
			r.WinningTrades++
			grossWin += t.PNL
		case t.PNL < 0:
			r.LosingTrades++
			grossLoss += t.PNL
		}
		totalDuration += t.ResultTime().Sub(t.EntryTime)

		balance += t.PNL
		at := t.ResultTime()
		r.MonthlyReturns[at.UTC().Format("2006-01")] += t.PNL
		r.EquityCurve = append(r.EquityCurve, domain.EquityPoint{Timestamp: at, Value: balance})

		if balance >= peak {
			peak = balance
			if open != nil {
				open.EndTime, open.EndValue = at, balance
				r.Drawdowns = append(r.Drawdowns, *open)
				open = nil
			}
			continue
		}
		depth := (peak - balance) / peak
		if open == nil {
			open = &Drawdown{StartTime: at, StartValue: peak}
		}
		open.Depth = math.Max(open.Depth, depth)
		r.MaxDrawdown = math.Max(r.MaxDrawdown, depth)
	}
	if open != nil {
		open.EndTime, open.EndValue = closed[len(closed)-1].ResultTime(), balance
		r.Drawdowns = append(r.Drawdowns, *open)
	}

	n := float64(r.TotalTrades)
	r.FinalBalance = balance
	r.TotalProfit = balance - initialBalance
	if initialBalance != 0 {
		r.ReturnOnInvestment = r.TotalProfit / initialBalance
	}
	r.WinRate = float64(r.WinningTrades) / n
	if r.WinningTrades > 0 {
		r.AverageWin = grossWin / float64(r.WinningTrades)
	}
	if r.LosingTrades > 0 {
		r.AverageLoss = grossLoss / float64(r.LosingTrades)
	}
	if grossLoss != 0 {
		r.ProfitFactor = grossWin / -grossLoss
	}
	r.Expectancy = r.TotalProfit / n
	r.AverageTradeDuration = totalDuration / time.Duration(len(closed))
	return r
}

// GetMonthlyReturns returns the monthly returns sorted by month.
func (r *Report) GetMonthlyReturns() []MonthlyReturn {
	returns := make([]MonthlyReturn, 0, len(r.MonthlyReturns))
	for month, profit := range r.MonthlyReturns {
		date, _ := time.Parse("2006-01", month)
		returns = append(returns, MonthlyReturn{Month: date, Return: profit})
	}
	sort.Slice(returns, func(i, j int) bool {
		return returns[i].Month.Before(returns[j].Month)
	})
	return returns
}
