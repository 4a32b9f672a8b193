package domain

import (
	"fmt"
	"time"
)

// EquityPoint is a snapshot of total account value.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// EquityTimeframe selects a trailing window of equity history.
type EquityTimeframe string

const (
	TimeframeDaily   EquityTimeframe = "daily"
	TimeframeWeekly  EquityTimeframe = "weekly"
	TimeframeMonthly EquityTimeframe = "monthly"
	TimeframeYearly  EquityTimeframe = "yearly"
)

// Window returns the trailing duration covered by the timeframe.
func (tf EquityTimeframe) Window() (time.Duration, error) {
	switch tf {
	case TimeframeDaily:
		return 24 * time.Hour, nil
	case TimeframeWeekly:
		return 7 * 24 * time.Hour, nil
	case TimeframeMonthly:
		return 30 * 24 * time.Hour, nil
	case TimeframeYearly:
		return 365 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown equity timeframe %q", tf)
	}
}
