package indicators

import (
	"math/rand"
	"testing"
)

func TestCalculateRSI(t *testing.T) {
	tests := []struct {
		name     string
		closes   []float64
		period   int
		expected []float64
	}{
		{
			name:     "Wilder smoothing after seed",
			closes:   []float64{100, 102, 101, 103, 102, 104}, // +2 -1 +2 -1 +2
			period:   3,
			expected: []float64{50, 50, 50, 80, 61.538462, 77.272727},
		},
		{
			name:     "All gains uses loss epsilon",
			closes:   []float64{100, 102, 104, 106},
			period:   3,
			expected: []float64{50, 50, 50, 99.950025},
		},
		{
			name:     "All losses",
			closes:   []float64{106, 104, 102, 100},
			period:   3,
			expected: []float64{50, 50, 50, 0},
		},
		{
			name:     "Insufficient data is neutral",
			closes:   []float64{100, 101, 102},
			period:   3,
			expected: []float64{50, 50, 50},
		},
		{
			name:     "Empty input",
			closes:   []float64{},
			period:   14,
			expected: []float64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rsi := CalculateRSI(tt.closes, tt.period)
			if len(rsi) != len(tt.expected) {
				t.Fatalf("Expected %d values, got %d", len(tt.expected), len(rsi))
			}
			for i := range tt.expected {
				if !approxEqual(rsi[i], tt.expected[i]) {
					t.Errorf("rsi[%d] = %f, want %f", i, rsi[i], tt.expected[i])
				}
			}
		})
	}
}

func TestCalculateRSI_FlatAfterRise(t *testing.T) {
	closes := []float64{10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 19, 18, 17, 16, 15, 14, 13, 12, 11, 10, 10, 10}
	rsi := CalculateRSI(closes, 14)
	for i := 0; i < 14; i++ {
		if rsi[i] != 50.0 {
			t.Errorf("rsi[%d] = %f, want exactly 50", i, rsi[i])
		}
	}
	if rsi[14] == 50.0 {
		t.Errorf("rsi[14] should be a computed value")
	}
}

func TestCalculateRSI_Bounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for run := 0; run < 50; run++ {
		closes := make([]float64, 200)
		price := 100.0
		for i := range closes {
			price += rng.NormFloat64() * 2
			if price < 1 {
				price = 1
			}
			closes[i] = price
		}
		period := 2 + rng.Intn(20)
		for i, v := range CalculateRSI(closes, period) {
			if v < 0 || v > 100 {
				t.Fatalf("run %d: rsi[%d] = %f out of bounds", run, i, v)
			}
		}
	}
}

func TestRSI_Compute(t *testing.T) {
	rsi := NewRSI(RSIConfig{IndicatorConfig: IndicatorConfig{Period: 3}, Overbought: 70, Oversold: 30})
	series := rsi.Compute([]float64{100, 102, 101, 103, 102, 104})
	if !approxEqual(series[5], 77.272727) {
		t.Errorf("Expected 77.272727, got %f", series[5])
	}
	if rsi.RequiredDataPoints() != 3 {
		t.Errorf("Expected 3 required data points, got %d", rsi.RequiredDataPoints())
	}
}

func TestRSI_IsOverboughtOversold(t *testing.T) {
	config := RSIConfig{
		IndicatorConfig: IndicatorConfig{Period: 14},
		Overbought:      70,
		Oversold:        30,
	}

	tests := []struct {
		name         string
		value        float64
		isOverbought bool
		isOversold   bool
	}{
		{
			name:         "Overbought condition",
			value:        75.0,
			isOverbought: true,
			isOversold:   false,
		},
		{
			name:         "Oversold condition",
			value:        25.0,
			isOverbought: false,
			isOversold:   true,
		},
		{
			name:         "Neutral condition",
			value:        50.0,
			isOverbought: false,
			isOversold:   false,
		},
		{
			name:         "Exact overbought threshold",
			value:        70.0,
			isOverbought: false,
			isOversold:   false,
		},
		{
			name:         "Exact oversold threshold",
			value:        30.0,
			isOverbought: false,
			isOversold:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rsi := NewRSI(config)
			if overbought := rsi.IsOverbought(tt.value); overbought != tt.isOverbought {
				t.Errorf("IsOverbought(%f) = %v, want %v", tt.value, overbought, tt.isOverbought)
			}
			if oversold := rsi.IsOversold(tt.value); oversold != tt.isOversold {
				t.Errorf("IsOversold(%f) = %v, want %v", tt.value, oversold, tt.isOversold)
			}
		})
	}
}

func TestRSI_Name(t *testing.T) {
	rsi := NewRSI(RSIConfig{})
	if name := rsi.Name(); name != "RSI" {
		t.Errorf("Expected name 'RSI', got '%s'", name)
	}
}
