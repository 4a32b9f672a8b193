package indicators

import "fmt"

// MovingAverageType defines the type of moving average
type MovingAverageType string

const (
	// SimpleMovingAverage represents a simple moving average
	SimpleMovingAverage MovingAverageType = "SMA"
	// ExponentialMovingAverage represents an exponential moving average
	ExponentialMovingAverage MovingAverageType = "EMA"
)

// MovingAverageConfig holds configuration for moving average indicators
type MovingAverageConfig struct {
	IndicatorConfig
	Type MovingAverageType
}

// MovingAverage implements both SMA and EMA indicators
type MovingAverage struct {
	BaseIndicator
	config MovingAverageConfig
}

// NewMovingAverage creates a new moving average indicator instance
func NewMovingAverage(config MovingAverageConfig) *MovingAverage {
	return &MovingAverage{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		config:        config,
	}
}

// Name returns the name of the indicator
func (m *MovingAverage) Name() string {
	return string(m.config.Type)
}

// Compute returns the moving average series for values based on the configured type.
func (m *MovingAverage) Compute(values []float64) ([]float64, error) {
	switch m.config.Type {
	case SimpleMovingAverage:
		return CalculateSMA(values, m.Config.Period), nil
	case ExponentialMovingAverage:
		return CalculateEMA(values, m.Config.Period), nil
	default:
		return nil, fmt.Errorf("unsupported moving average type: %s", m.config.Type)
	}
}

// CalculateSMA computes the simple moving average for every index of values.
// Indices before period-1 hold 0.
func CalculateSMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// CalculateEMA computes the exponential moving average for every index of values.
// It is seeded with the SMA of the first period values at index period-1; earlier
// indices hold 0 and must not be read.
func CalculateEMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	var sum float64
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	out[period-1] = sum / float64(period)

	multiplier := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		out[i] = (values[i]-out[i-1])*multiplier + out[i-1]
	}
	return out
}

// AverageOfPreceding returns the mean of the n values before the last one.
// It returns 0 when there are not enough values.
func AverageOfPreceding(values []float64, n int) float64 {
	if n <= 0 || len(values) < n+1 {
		return 0
	}
	var sum float64
	for _, v := range values[len(values)-1-n : len(values)-1] {
		sum += v
	}
	return sum / float64(n)
}
