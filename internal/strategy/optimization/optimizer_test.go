package optimization

import (
	"context"
	"testing"
	"time"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
	"cryptoSignalBot/internal/strategy/analytics"
	"cryptoSignalBot/internal/strategy/backtesting"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (nopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// testKlines is a flat series with a long signal at index 39 followed by a candle
// ranging from 102 to 108.
func testKlines() []*domain.Kline {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	ohlcv := make([][5]float64, 0, 41)
	for i := 0; i < 38; i++ {
		ohlcv = append(ohlcv, [5]float64{100, 100, 100, 100, 10})
	}
	ohlcv = append(ohlcv,
		[5]float64{99, 99, 99, 99, 10},
		[5]float64{103, 103, 103, 103, 30},
		[5]float64{103, 108, 102, 105, 10},
	)
	out := make([]*domain.Kline, len(ohlcv))
	for i, v := range ohlcv {
		open := start.Add(time.Duration(i) * 15 * time.Minute)
		out[i] = &domain.Kline{
			OpenTime: open, CloseTime: open.Add(15*time.Minute - time.Millisecond),
			Symbol: "BTCUSDT", Interval: "15m",
			Open: v[0], High: v[1], Low: v[2], Close: v[3], Volume: v[4], IsFinal: true,
		}
	}
	return out
}

func TestNewOptimizer(t *testing.T) {
	_, err := NewOptimizer(OptimizerConfig{}, nil)
	assert.Error(t, err)

	_, err = NewOptimizer(OptimizerConfig{ParameterRanges: []ParameterRange{{Name: "leverage", Min: 1, Max: 2, Step: 1}}}, nopLogger{})
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)

	_, err = NewOptimizer(OptimizerConfig{ParameterRanges: []ParameterRange{{Name: ParamStopLoss, Min: 1, Max: 2, Step: 0}}}, nopLogger{})
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)

	o, err := NewOptimizer(OptimizerConfig{}, nopLogger{})
	require.NoError(t, err)
	assert.Equal(t, 4, o.config.Workers)
	assert.NotNil(t, o.config.ScoreFunction)
}

func TestOptimizer(t *testing.T) {
	config := OptimizerConfig{
		ParameterRanges: []ParameterRange{
			{Name: ParamStopLoss, Min: 1, Max: 2, Step: 1},
			{Name: ParamTakeProfit, Min: 2, Max: 4, Step: 1},
		},
		Backtest: backtesting.BacktestConfig{InitialFunds: 1000},
		Workers:  2,
	}
	optimizer, err := NewOptimizer(config, nopLogger{})
	require.NoError(t, err)

	results, err := optimizer.Optimize(context.Background(), domain.DefaultStrategy(), testKlines())
	require.NoError(t, err)

	// 2 stop losses * 3 take profits
	require.Len(t, results, 6)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score, "results must be sorted by score")
	}
	for _, r := range results {
		assert.Equal(t, 1, r.Report.TotalTrades)
		assert.Equal(t, r.Parameters[ParamStopLoss], r.Settings.StopLoss)
		assert.Equal(t, r.Parameters[ParamTakeProfit], r.Settings.TakeProfit)
	}
	assert.Equal(t, 4.0, results[0].Parameters[ParamTakeProfit])
	assert.Equal(t, 2.0, results[len(results)-1].Parameters[ParamTakeProfit])
}

func TestOptimizer_SkipsInvalidCombinations(t *testing.T) {
	optimizer, err := NewOptimizer(OptimizerConfig{
		ParameterRanges: []ParameterRange{{Name: ParamEMAShort, Min: 9, Max: 25, Step: 8}},
	}, nopLogger{})
	require.NoError(t, err)

	base := domain.DefaultStrategy()
	results, err := optimizer.Optimize(context.Background(), base, testKlines())
	require.NoError(t, err)

	// emaShort 25 is not below emaLong 21
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Less(t, r.Settings.Indicators.EMAShort, base.Indicators.EMALong)
	}
	assert.Equal(t, 9, base.Indicators.EMAShort, "base settings must not be modified")
}

func TestGenerateParameterCombinations(t *testing.T) {
	optimizer, err := NewOptimizer(OptimizerConfig{
		ParameterRanges: []ParameterRange{
			{Name: ParamRSIPeriod, Min: 10, Max: 14, Step: 4},
			{Name: ParamStopLoss, Min: 0.5, Max: 1.5, Step: 0.5},
		},
	}, nopLogger{})
	require.NoError(t, err)

	combinations := optimizer.generateParameterCombinations()
	require.Len(t, combinations, 6)
	seen := make(map[[2]float64]bool)
	for _, c := range combinations {
		seen[[2]float64{c[ParamRSIPeriod], c[ParamStopLoss]}] = true
	}
	for _, period := range []float64{10, 14} {
		for _, sl := range []float64{0.5, 1, 1.5} {
			assert.True(t, seen[[2]float64{period, sl}], "missing combination %v/%v", period, sl)
		}
	}
}

func TestWithParams(t *testing.T) {
	base := domain.DefaultStrategy()
	s := withParams(base, map[string]float64{
		ParamRSIPeriod:       9.6,
		ParamRSIOversold:     25,
		ParamVolumeThreshold: 2,
		ParamRiskPerTrade:    0.5,
	})
	assert.Equal(t, 10, s.Indicators.RSIPeriod)
	assert.Equal(t, 25.0, s.Indicators.RSIOversold)
	assert.Equal(t, 2.0, s.Indicators.VolumeThreshold)
	assert.Equal(t, 0.5, s.RiskPerTrade)
	assert.Equal(t, 14, base.Indicators.RSIPeriod)
}

func TestDefaultScoreFunction(t *testing.T) {
	report := &analytics.Report{
		TotalTrades:        10,
		WinRate:            0.6,
		ProfitFactor:       2.0,
		MaxDrawdown:        0.2,
		ReturnOnInvestment: 0.5,
	}
	expectedScore := 0.6*0.3 + 2.0*0.2 + 0.8*0.2 + 0.5*0.3
	assert.InDelta(t, expectedScore, DefaultScoreFunction(report), 1e-12)

	assert.Zero(t, DefaultScoreFunction(&analytics.Report{}))
	assert.Zero(t, DefaultScoreFunction(nil))
}
