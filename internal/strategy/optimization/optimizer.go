package optimization

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
	"cryptoSignalBot/internal/strategy/analytics"
	"cryptoSignalBot/internal/strategy/backtesting"
)

// Parameter names accepted in a ParameterRange.
const (
	ParamStopLoss        = "stopLoss"
	ParamTakeProfit      = "takeProfit"
	ParamRiskPerTrade    = "riskPerTrade"
	ParamRSIPeriod       = "rsiPeriod"
	ParamRSIOversold     = "rsiOversold"
	ParamRSIOverbought   = "rsiOverbought"
	ParamEMAShort        = "emaShort"
	ParamEMALong         = "emaLong"
	ParamVolumeThreshold = "volumeThreshold"
)

// ParameterRange defines a range for a parameter to optimize
type ParameterRange struct {
	Name string
	Min  float64
	Max  float64
	Step float64
}

// OptimizationResult holds the results of a parameter optimization
type OptimizationResult struct {
	Parameters map[string]float64
	Settings   domain.StrategySettings
	Report     *analytics.Report
	Score      float64
}

// OptimizerConfig holds configuration for the optimizer
type OptimizerConfig struct {
	ParameterRanges []ParameterRange
	Backtest        backtesting.BacktestConfig
	Workers         int // concurrent backtests, defaults to 4
	ScoreFunction   func(*analytics.Report) float64
}

// Optimizer runs a grid search over strategy settings, backtesting every combination.
type Optimizer struct {
	config OptimizerConfig
	logger ports.Logger
}

// NewOptimizer creates a new optimizer instance
func NewOptimizer(config OptimizerConfig, logger ports.Logger) (*Optimizer, error) {
	if logger == nil {
		return nil, fmt.Errorf("missing required dependencies for optimizer")
	}
	for _, r := range config.ParameterRanges {
		if _, ok := setters[r.Name]; !ok {
			return nil, fmt.Errorf("%w: unknown parameter %q", ports.ErrInvalidRequest, r.Name)
		}
		if r.Step <= 0 || r.Max < r.Min {
			return nil, fmt.Errorf("%w: parameter %q needs min <= max and a positive step", ports.ErrInvalidRequest, r.Name)
		}
	}
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.ScoreFunction == nil {
		config.ScoreFunction = DefaultScoreFunction
	}
	return &Optimizer{config: config, logger: logger}, nil
}

// Optimize backtests base with every parameter combination and returns the results
// best score first. Combinations that produce invalid settings are skipped.
func (o *Optimizer) Optimize(ctx context.Context, base domain.StrategySettings, klines []*domain.Kline) ([]OptimizationResult, error) {
	combinations := o.generateParameterCombinations()
	results := make([]OptimizationResult, 0, len(combinations))

	resultChan := make(chan OptimizationResult, len(combinations))
	sem := make(chan struct{}, o.config.Workers)
	var wg sync.WaitGroup

	for _, params := range combinations {
		settings := withParams(base, params)
		if err := settings.Validate(); err != nil {
			o.logger.Debug(ctx, "Skipping invalid parameter combination", map[string]interface{}{"params": params, "error": err.Error()})
			continue
		}

		wg.Add(1)
		go func(params map[string]float64, settings domain.StrategySettings) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			result, err := backtesting.Backtest(ctx, settings, klines, o.config.Backtest, o.logger)
			if err != nil {
				o.logger.Warn(ctx, "Backtest failed for parameter combination", map[string]interface{}{"params": params, "error": err.Error()})
				return
			}
			resultChan <- OptimizationResult{
				Parameters: params,
				Settings:   settings,
				Report:     result.Report,
				Score:      o.config.ScoreFunction(result.Report),
			}
		}(params, settings)
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	for result := range resultChan {
		results = append(results, result)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sortResultsByScore(results)
	return results, nil
}

// generateParameterCombinations generates all possible parameter combinations
func (o *Optimizer) generateParameterCombinations() []map[string]float64 {
	var combinations []map[string]float64
	currentCombination := make(map[string]float64)

	var generate func(int)
	generate = func(paramIndex int) {
		if paramIndex == len(o.config.ParameterRanges) {
			combination := make(map[string]float64, len(currentCombination))
			for k, v := range currentCombination {
				combination[k] = v
			}
			combinations = append(combinations, combination)
			return
		}

		param := o.config.ParameterRanges[paramIndex]
		steps := int(math.Floor((param.Max-param.Min)/param.Step + 1e-9))
		for i := 0; i <= steps; i++ {
			currentCombination[param.Name] = param.Min + float64(i)*param.Step
			generate(paramIndex + 1)
		}
	}

	generate(0)
	return combinations
}

var setters = map[string]func(*domain.StrategySettings, float64){
	ParamStopLoss:        func(s *domain.StrategySettings, v float64) { s.StopLoss = v },
	ParamTakeProfit:      func(s *domain.StrategySettings, v float64) { s.TakeProfit = v },
	ParamRiskPerTrade:    func(s *domain.StrategySettings, v float64) { s.RiskPerTrade = v },
	ParamRSIPeriod:       func(s *domain.StrategySettings, v float64) { s.Indicators.RSIPeriod = int(math.Round(v)) },
	ParamRSIOversold:     func(s *domain.StrategySettings, v float64) { s.Indicators.RSIOversold = v },
	ParamRSIOverbought:   func(s *domain.StrategySettings, v float64) { s.Indicators.RSIOverbought = v },
	ParamEMAShort:        func(s *domain.StrategySettings, v float64) { s.Indicators.EMAShort = int(math.Round(v)) },
	ParamEMALong:         func(s *domain.StrategySettings, v float64) { s.Indicators.EMALong = int(math.Round(v)) },
	ParamVolumeThreshold: func(s *domain.StrategySettings, v float64) { s.Indicators.VolumeThreshold = v },
}

// withParams returns a copy of base with params applied.
func withParams(base domain.StrategySettings, params map[string]float64) domain.StrategySettings {
	s := base
	s.Symbols = append([]string(nil), base.Symbols...)
	s.Timeframes = append([]string(nil), base.Timeframes...)
	s.Performance = nil
	for name, v := range params {
		setters[name](&s, v)
	}
	return s
}

// sortResultsByScore sorts optimization results by score in descending order
func sortResultsByScore(results []OptimizationResult) {
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
}

// DefaultScoreFunction weights win rate, profit factor, drawdown and return into one score.
func DefaultScoreFunction(r *analytics.Report) float64 {
	if r == nil || r.TotalTrades == 0 {
		return 0
	}
	score := 0.0
	score += r.WinRate * 0.3
	score += math.Min(r.ProfitFactor, 10) * 0.2
	score += (1 - r.MaxDrawdown) * 0.2
	score += r.ReturnOnInvestment * 0.3
	return score
}
