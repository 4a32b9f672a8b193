package risk

import (
	"context"
	"fmt"
	"math"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
)

// DailyStats is the part of the ledger the guard reads.
type DailyStats interface {
	GetDailyPerformance(ctx context.Context, days int) ([]domain.DailyPerformance, error)
	InitialBalance() float64
}

// Limits are the most restrictive daily limits across a set of strategies.
// Zero means the limit is not set.
type Limits struct {
	MaxDailyLossPct float64
	MaxTradesPerDay int
}

// Decision is the outcome of a daily limit check.
type Decision struct {
	Stop        bool
	Reason      string
	Limits      Limits
	DailyProfit float64
	TradesToday int
	LossLimit   float64 // quote units derived from MaxDailyLossPct
}

// Guard gates trading activity on daily loss and trade-count limits.
type Guard struct {
	stats  DailyStats
	logger ports.Logger
}

// NewGuard creates a new risk guard instance
func NewGuard(stats DailyStats, logger ports.Logger) (*Guard, error) {
	if stats == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Guard")
	}
	return &Guard{stats: stats, logger: logger}, nil
}

// MostRestrictive returns the minimum positive maxDailyLoss and maxTradesPerDay
// across every strategy, active or not.
func MostRestrictive(strategies []domain.StrategySettings) Limits {
	var l Limits
	for _, s := range strategies {
		if s.MaxDailyLoss > 0 && (l.MaxDailyLossPct == 0 || s.MaxDailyLoss < l.MaxDailyLossPct) {
			l.MaxDailyLossPct = s.MaxDailyLoss
		}
		if s.MaxTradesPerDay > 0 && (l.MaxTradesPerDay == 0 || s.MaxTradesPerDay < l.MaxTradesPerDay) {
			l.MaxTradesPerDay = s.MaxTradesPerDay
		}
	}
	return l
}

// ShouldStopTrading compares today's ledger bucket with the most restrictive limits of
// strategies. The daily result limit applies to the absolute profit, so a large gain
// also pauses trading for the day.
func (g *Guard) ShouldStopTrading(ctx context.Context, strategies []domain.StrategySettings) (Decision, error) {
	op := "ShouldStopTrading"
	if len(strategies) == 0 {
		return Decision{}, nil
	}
	d := Decision{Limits: MostRestrictive(strategies)}

	daily, err := g.stats.GetDailyPerformance(ctx, 1)
	if err != nil {
		return d, fmt.Errorf("%s failed: %w", op, err)
	}
	if len(daily) > 0 {
		today := daily[len(daily)-1]
		d.DailyProfit = today.Profit
		d.TradesToday = today.Trades
	}

	fields := map[string]interface{}{
		"dailyProfit":     d.DailyProfit,
		"tradesToday":     d.TradesToday,
		"maxDailyLossPct": d.Limits.MaxDailyLossPct,
		"maxTradesPerDay": d.Limits.MaxTradesPerDay,
	}
	if d.Limits.MaxDailyLossPct > 0 {
		d.LossLimit = g.stats.InitialBalance() * d.Limits.MaxDailyLossPct / 100
		if math.Abs(d.DailyProfit) > d.LossLimit {
			d.Stop = true
			d.Reason = fmt.Sprintf("daily loss limit reached: |%.2f| > %.2f", d.DailyProfit, d.LossLimit)
			g.logger.Info(ctx, op+": daily loss limit reached", fields)
			return d, nil
		}
	}
	if d.Limits.MaxTradesPerDay > 0 && d.TradesToday >= d.Limits.MaxTradesPerDay {
		d.Stop = true
		d.Reason = fmt.Sprintf("max trades per day reached: %d >= %d", d.TradesToday, d.Limits.MaxTradesPerDay)
		g.logger.Info(ctx, op+": max trades per day reached", fields)
		return d, nil
	}
	return d, nil
}
