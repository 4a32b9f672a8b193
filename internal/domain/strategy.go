package domain

import (
	"errors"
	"fmt"
	"strings"
)

// IndicatorSettings holds the RSI/EMA/volume parameters of a strategy.
type IndicatorSettings struct {
	RSIPeriod       int     `json:"rsiPeriod" yaml:"rsiPeriod"`
	RSIOverbought   float64 `json:"rsiOverbought" yaml:"rsiOverbought"`
	RSIOversold     float64 `json:"rsiOversold" yaml:"rsiOversold"`
	EMAShort        int     `json:"emaShort" yaml:"emaShort"`
	EMALong         int     `json:"emaLong" yaml:"emaLong"`
	VolumeFilter    bool    `json:"volumeFilter" yaml:"volumeFilter"`
	VolumeThreshold float64 `json:"volumeThreshold" yaml:"volumeThreshold"`
}

// StrategySettings is a named, independently activatable trading configuration.
type StrategySettings struct {
	ID               string               `json:"id" yaml:"id"`
	Name             string               `json:"name" yaml:"name"`
	Description      string               `json:"description,omitempty" yaml:"description,omitempty"`
	Symbols          []string             `json:"symbols" yaml:"symbols"`
	Timeframes       []string             `json:"timeframes" yaml:"timeframes"`
	StopLoss         float64              `json:"stopLoss" yaml:"stopLoss"`     // percent
	TakeProfit       float64              `json:"takeProfit" yaml:"takeProfit"` // percent
	TrailingStop     bool                 `json:"trailingStop" yaml:"trailingStop"`
	TrailingDistance float64              `json:"trailingDistance" yaml:"trailingDistance"` // percent
	RiskPerTrade     float64              `json:"riskPerTrade" yaml:"riskPerTrade"`         // percent of available balance
	MaxDailyLoss     float64              `json:"maxDailyLoss" yaml:"maxDailyLoss"`         // percent of initial balance
	MaxTradesPerDay  int                  `json:"maxTradesPerDay" yaml:"maxTradesPerDay"`
	Indicators       IndicatorSettings    `json:"indicators" yaml:"indicators"`
	IsActive         bool                 `json:"isActive" yaml:"isActive"`
	Performance      *StrategyPerformance `json:"performance,omitempty" yaml:"performance,omitempty"`
}

// DefaultStrategy returns the built-in RSI + EMA crossover strategy.
func DefaultStrategy() StrategySettings {
	return StrategySettings{
		ID:               "rsi-ema-cross",
		Name:             "RSI + EMA Crossover",
		Description:      "Enters when RSI leaves an extreme zone while the short EMA crosses the long EMA",
		Symbols:          []string{"BTCUSDT", "ETHUSDT", "BNBUSDT"},
		Timeframes:       []string{"15m", "1h"},
		StopLoss:         2,
		TakeProfit:       4,
		TrailingStop:     true,
		TrailingDistance: 1,
		RiskPerTrade:     1,
		MaxDailyLoss:     5,
		MaxTradesPerDay:  10,
		Indicators: IndicatorSettings{
			RSIPeriod:       14,
			RSIOverbought:   70,
			RSIOversold:     30,
			EMAShort:        9,
			EMALong:         21,
			VolumeFilter:    true,
			VolumeThreshold: 1.5,
		},
		IsActive: true,
	}
}

// Validate checks that the strategy can be evaluated and executed.
func (s *StrategySettings) Validate() error {
	var problems []string
	if strings.TrimSpace(s.ID) == "" {
		problems = append(problems, "id is required")
	}
	if strings.TrimSpace(s.Name) == "" {
		problems = append(problems, "name is required")
	}
	if len(s.Symbols) == 0 {
		problems = append(problems, "at least one symbol is required")
	}
	if len(s.Timeframes) == 0 {
		problems = append(problems, "at least one timeframe is required")
	}
	if s.StopLoss <= 0 {
		problems = append(problems, "stopLoss must be positive")
	}
	if s.TakeProfit <= 0 {
		problems = append(problems, "takeProfit must be positive")
	}
	if s.RiskPerTrade <= 0 || s.RiskPerTrade > 100 {
		problems = append(problems, "riskPerTrade must be in (0, 100]")
	}
	if s.TrailingStop && s.TrailingDistance <= 0 {
		problems = append(problems, "trailingDistance must be positive when trailingStop is enabled")
	}
	if s.MaxDailyLoss < 0 {
		problems = append(problems, "maxDailyLoss cannot be negative")
	}
	if s.MaxTradesPerDay < 0 {
		problems = append(problems, "maxTradesPerDay cannot be negative")
	}
	ind := s.Indicators
	if ind.RSIPeriod <= 0 {
		problems = append(problems, "rsiPeriod must be positive")
	}
	if ind.RSIOversold <= 0 || ind.RSIOverbought >= 100 || ind.RSIOversold >= ind.RSIOverbought {
		problems = append(problems, "rsi thresholds must satisfy 0 < oversold < overbought < 100")
	}
	if ind.EMAShort <= 0 || ind.EMALong <= 0 {
		problems = append(problems, "ema periods must be positive")
	} else if ind.EMAShort >= ind.EMALong {
		problems = append(problems, "emaShort must be less than emaLong")
	}
	if ind.VolumeFilter && ind.VolumeThreshold <= 0 {
		problems = append(problems, "volumeThreshold must be positive when volumeFilter is enabled")
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// MinCandles is the number of candles needed before signals are evaluated.
func (s *StrategySettings) MinCandles() int {
	return s.Indicators.EMALong + 10
}

func (s StrategySettings) String() string {
	return fmt.Sprintf("%s(%s)", s.ID, strings.Join(s.Symbols, ","))
}
