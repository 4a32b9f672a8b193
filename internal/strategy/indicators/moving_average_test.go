package indicators

import (
	"math"
	"testing"
)

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) <= 0.0001
}

func TestMovingAverage_Compute(t *testing.T) {
	closes := []float64{100.0, 102.0, 101.0, 103.0, 104.0}

	tests := []struct {
		name         string
		config       MovingAverageConfig
		values       []float64
		expectedLast float64
		expectError  bool
	}{
		{
			name: "SMA with sufficient data",
			config: MovingAverageConfig{
				IndicatorConfig: IndicatorConfig{Period: 3},
				Type:            SimpleMovingAverage,
			},
			values:       closes,
			expectedLast: 102.666667, // (101 + 103 + 104) / 3
		},
		{
			name: "EMA with sufficient data",
			config: MovingAverageConfig{
				IndicatorConfig: IndicatorConfig{Period: 3},
				Type:            ExponentialMovingAverage,
			},
			values:       closes,
			expectedLast: 103.0, // seed 101, then 102, then 103
		},
		{
			name: "Insufficient data yields zeros",
			config: MovingAverageConfig{
				IndicatorConfig: IndicatorConfig{Period: 6},
				Type:            SimpleMovingAverage,
			},
			values:       closes,
			expectedLast: 0,
		},
		{
			name: "Invalid MA type",
			config: MovingAverageConfig{
				IndicatorConfig: IndicatorConfig{Period: 3},
				Type:            "INVALID",
			},
			values:      closes,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ma := NewMovingAverage(tt.config)
			series, err := ma.Compute(tt.values)

			if tt.expectError {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}

			if err != nil {
				t.Errorf("Unexpected error: %v", err)
				return
			}
			if len(series) != len(tt.values) {
				t.Fatalf("Expected %d values, got %d", len(tt.values), len(series))
			}
			if last := series[len(series)-1]; !approxEqual(last, tt.expectedLast) {
				t.Errorf("Expected value %f, got %f", tt.expectedLast, last)
			}
		})
	}
}

func TestCalculateEMA_SeedAndPlaceholders(t *testing.T) {
	ema := CalculateEMA([]float64{1, 2, 3, 4, 5}, 3)
	expected := []float64{0, 0, 2, 3, 4}
	for i := range expected {
		if !approxEqual(ema[i], expected[i]) {
			t.Errorf("ema[%d] = %f, want %f", i, ema[i], expected[i])
		}
	}
}

func TestCalculateEMA_ConstantSeriesConverges(t *testing.T) {
	const v = 42.5
	prices := make([]float64, 50)
	for i := range prices {
		prices[i] = v
	}
	for _, period := range []int{1, 5, 9, 21} {
		ema := CalculateEMA(prices, period)
		for i := period - 1; i < len(ema); i++ {
			if !approxEqual(ema[i], v) {
				t.Fatalf("period %d: ema[%d] = %f, want %f", period, i, ema[i], v)
			}
		}
	}
}

func TestCalculateSMA(t *testing.T) {
	sma := CalculateSMA([]float64{1, 2, 3, 4, 5}, 2)
	expected := []float64{0, 1.5, 2.5, 3.5, 4.5}
	for i := range expected {
		if !approxEqual(sma[i], expected[i]) {
			t.Errorf("sma[%d] = %f, want %f", i, sma[i], expected[i])
		}
	}
}

func TestAverageOfPreceding(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		n        int
		expected float64
	}{
		{name: "excludes last value", values: []float64{1, 2, 3, 4, 5, 6, 100}, n: 5, expected: 4},
		{name: "exact length", values: []float64{10, 20, 30, 40, 50, 60}, n: 5, expected: 30},
		{name: "too short", values: []float64{1, 2, 3}, n: 5, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AverageOfPreceding(tt.values, tt.n); !approxEqual(got, tt.expected) {
				t.Errorf("AverageOfPreceding() = %f, want %f", got, tt.expected)
			}
		})
	}
}

func TestMovingAverage_Name(t *testing.T) {
	tests := []struct {
		name     string
		config   MovingAverageConfig
		expected string
	}{
		{
			name: "SMA name",
			config: MovingAverageConfig{
				Type: SimpleMovingAverage,
			},
			expected: "SMA",
		},
		{
			name: "EMA name",
			config: MovingAverageConfig{
				Type: ExponentialMovingAverage,
			},
			expected: "EMA",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ma := NewMovingAverage(tt.config)
			if name := ma.Name(); name != tt.expected {
				t.Errorf("Expected name %s, got %s", tt.expected, name)
			}
		})
	}
}
