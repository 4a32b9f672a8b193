package indicators

// IndicatorConfig holds common configuration for indicators
type IndicatorConfig struct {
	Period int
}

// BaseIndicator provides common functionality for indicators
type BaseIndicator struct {
	Config IndicatorConfig
}

// RequiredDataPoints returns the number of values needed before the first real output.
func (b *BaseIndicator) RequiredDataPoints() int {
	return b.Config.Period
}
