package analytics

import (
	"sort"
	"time"

	"cryptoSignalBot/internal/domain"
)

// WinRateMode selects how the per-day win rate is maintained.
type WinRateMode string

const (
	// WinRateRecompute derives the rate as wins/trades for the bucket.
	WinRateRecompute WinRateMode = "recompute"
	// WinRateRunning updates the rate incrementally per trade. Break-even trades
	// increase the trade count without moving the rate.
	WinRateRunning WinRateMode = "running"
)

const dateLayout = "2006-01-02"

type tradeResult int

const (
	resultNone tradeResult = iota
	resultWin
	resultLoss
	resultBreakEven
)

// completed reports whether t carries a realized result.
func completed(t *domain.Trade) bool {
	return t.Status == domain.StatusClosed
}

// CalculatePerformance aggregates trades per strategy. When strategyID is not empty
// only that strategy is included. TotalTrades counts every trade of the strategy;
// win/loss statistics only count CLOSED trades, scanned in chronological order.
func CalculatePerformance(trades []*domain.Trade, strategyID string) map[string]*domain.StrategyPerformance {
	filtered := make([]*domain.Trade, 0, len(trades))
	for _, t := range trades {
		if strategyID == "" || t.StrategyID == strategyID {
			filtered = append(filtered, t)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].ResultTime().Before(filtered[j].ResultTime())
	})

	out := make(map[string]*domain.StrategyPerformance)
	last := make(map[string]tradeResult)
	for _, t := range filtered {
		perf, ok := out[t.StrategyID]
		if !ok {
			perf = &domain.StrategyPerformance{StrategyID: t.StrategyID}
			out[t.StrategyID] = perf
		}
		perf.TotalTrades++
		if !completed(t) {
			continue
		}

		switch {
		case t.PNL > 0:
			perf.WinningTrades++
			if last[t.StrategyID] == resultWin {
				perf.ConsecutiveWins++
			} else {
				perf.ConsecutiveWins = 1
			}
			perf.ConsecutiveLosses = 0
			last[t.StrategyID] = resultWin
			if t.PNL > perf.LargestWin {
				perf.LargestWin = t.PNL
			}
		case t.PNL < 0:
			perf.LosingTrades++
			if last[t.StrategyID] == resultLoss {
				perf.ConsecutiveLosses++
			} else {
				perf.ConsecutiveLosses = 1
			}
			perf.ConsecutiveWins = 0
			last[t.StrategyID] = resultLoss
			if t.PNL < perf.LargestLoss {
				perf.LargestLoss = t.PNL
			}
		default:
			perf.BreakEvenTrades++
			perf.ConsecutiveWins = 0
			perf.ConsecutiveLosses = 0
			last[t.StrategyID] = resultBreakEven
		}
		perf.MaxConsecutiveWins = max(perf.MaxConsecutiveWins, perf.ConsecutiveWins)
		perf.MaxConsecutiveLosses = max(perf.MaxConsecutiveLosses, perf.ConsecutiveLosses)
		perf.TotalProfit += t.PNL
	}

	for _, perf := range out {
		done := perf.WinningTrades + perf.LosingTrades + perf.BreakEvenTrades
		if done > 0 {
			perf.WinRate = float64(perf.WinningTrades) / float64(done)
			perf.AverageProfitPerTrade = perf.TotalProfit / float64(done)
		}
	}
	return out
}

// DailyPerformance buckets CLOSED trades by the UTC date of their exit time (entry time
// if the exit is unset) for the last days dates ending at now. Every date in range gets a
// bucket, even without trades. The result is sorted by date ascending.
func DailyPerformance(trades []*domain.Trade, days int, now time.Time, mode WinRateMode) []domain.DailyPerformance {
	if days <= 0 {
		return []domain.DailyPerformance{}
	}
	buckets := make(map[string]*domain.DailyPerformance, days)
	today := now.UTC()
	for i := 0; i < days; i++ {
		date := today.AddDate(0, 0, -i).Format(dateLayout)
		buckets[date] = &domain.DailyPerformance{Date: date}
	}

	ordered := make([]*domain.Trade, 0, len(trades))
	for _, t := range trades {
		if completed(t) {
			ordered = append(ordered, t)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ResultTime().Before(ordered[j].ResultTime())
	})

	for _, t := range ordered {
		b, ok := buckets[t.ResultTime().UTC().Format(dateLayout)]
		if !ok {
			continue
		}
		b.Trades++
		b.Profit += t.PNL
		n := float64(b.Trades)
		switch {
		case t.PNL > 0:
			b.Wins++
			if mode == WinRateRunning {
				b.WinRate = (b.WinRate*(n-1) + 1) / n
			}
		case t.PNL < 0:
			b.Losses++
			if mode == WinRateRunning {
				b.WinRate = b.WinRate * (n - 1) / n
			}
		}
		if mode != WinRateRunning {
			b.WinRate = float64(b.Wins) / n
		}
	}

	out := make([]domain.DailyPerformance, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Date < out[j].Date
	})
	return out
}
