package indicators

// NeutralRSI is emitted where there is not enough history for a real value.
const NeutralRSI = 50.0

// lossEpsilon replaces a zero average loss so RS stays finite.
const lossEpsilon = 0.001

// RSIConfig holds configuration for the RSI indicator
type RSIConfig struct {
	IndicatorConfig
	Overbought float64
	Oversold   float64
}

// RSI implements the Relative Strength Index indicator
type RSI struct {
	BaseIndicator
	config RSIConfig
}

// NewRSI creates a new RSI indicator instance
func NewRSI(config RSIConfig) *RSI {
	return &RSI{
		BaseIndicator: BaseIndicator{Config: config.IndicatorConfig},
		config:        config,
	}
}

// Name returns the name of the indicator
func (r *RSI) Name() string {
	return "RSI"
}

// Compute returns the RSI series for closes.
func (r *RSI) Compute(closes []float64) []float64 {
	return CalculateRSI(closes, r.Config.Period)
}

// IsOverbought checks if the RSI value is above the overbought threshold
func (r *RSI) IsOverbought(value float64) bool {
	return value > r.config.Overbought
}

// IsOversold checks if the RSI value is below the oversold threshold
func (r *RSI) IsOversold(value float64) bool {
	return value < r.config.Oversold
}

// CalculateRSI computes Wilder's RSI for every index of closes.
// Indices below period hold NeutralRSI. The value at index period is seeded from the
// simple average gain and loss of the first period deltas; later values use Wilder smoothing.
func CalculateRSI(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	for i := range out {
		out[i] = NeutralRSI
	}
	if period <= 0 || len(closes) <= period {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		gain, loss := splitChange(closes[i] - closes[i-1])
		avgGain += gain
		avgLoss += loss
	}
	p := float64(period)
	avgGain /= p
	avgLoss /= p
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		gain, loss := splitChange(closes[i] - closes[i-1])
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

// splitChange counts a flat change as a zero gain.
func splitChange(change float64) (gain, loss float64) {
	if change >= 0 {
		return change, 0
	}
	return 0, -change
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		avgLoss = lossEpsilon
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
