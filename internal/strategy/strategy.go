package strategy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"cryptoSignalBot/internal/adapters/tracing"
	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
	"cryptoSignalBot/internal/risk"
	"cryptoSignalBot/internal/strategy/indicators"

	"go.opentelemetry.io/otel/attribute"
)

// DefaultCandleLimit is the number of candles fetched per evaluation.
const DefaultCandleLimit = 100

// volumeLookback is the number of candles averaged by the volume filter.
const volumeLookback = 5

// GeneratorConfig holds parameters for the signal generator.
type GeneratorConfig struct {
	CandleLimit int
	Now         func() time.Time
}

// Generator evaluates the RSI + EMA crossover rules for one strategy, symbol and timeframe.
// It only reads market data; it never places orders or touches the ledger.
type Generator struct {
	market ports.MarketData
	logger ports.Logger
	cfg    GeneratorConfig
}

// NewGenerator creates a new Generator instance.
func NewGenerator(market ports.MarketData, logger ports.Logger, cfg GeneratorConfig) (*Generator, error) {
	if market == nil || logger == nil {
		return nil, errors.New("missing required dependencies for signal generator")
	}
	if cfg.CandleLimit <= 0 {
		cfg.CandleLimit = DefaultCandleLimit
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Generator{market: market, logger: logger, cfg: cfg}, nil
}

// Evaluate returns a signal when the entry rules trigger on the latest candle.
// A nil signal with a nil error means no signal, including when history is too short.
func (g *Generator) Evaluate(ctx context.Context, settings domain.StrategySettings, symbol, timeframe string) (sig *domain.Signal, err error) {
	op := "Evaluate"
	ctx, span := tracing.StartSpan(ctx, "strategy.evaluate",
		attribute.String("strategy", settings.ID),
		attribute.String("symbol", symbol),
		attribute.String("timeframe", timeframe),
	)
	defer func() { tracing.End(span, err) }()

	limit := g.cfg.CandleLimit
	if need := settings.MinCandles(); limit < need {
		limit = need
	}
	klines, err := g.market.GetKlines(ctx, symbol, timeframe, limit)
	if err != nil {
		return nil, fmt.Errorf("%s failed to fetch klines for %s %s: %w", op, symbol, timeframe, err)
	}
	if len(klines) < settings.MinCandles() {
		g.logger.Debug(ctx, op+": not enough data", map[string]interface{}{
			"symbol":    symbol,
			"timeframe": timeframe,
			"candles":   len(klines),
			"required":  settings.MinCandles(),
		})
		return nil, nil
	}

	eval := EvaluateSeries(settings.Indicators, domain.ClosePrices(klines), domain.Volumes(klines))
	if !eval.Triggered {
		g.logger.Debug(ctx, op+": no signal", map[string]interface{}{
			"strategy":  settings.ID,
			"symbol":    symbol,
			"timeframe": timeframe,
			"rsi":       eval.RSI,
		})
		return nil, nil
	}

	entry := klines[len(klines)-1].Close
	sig = &domain.Signal{
		Symbol:     symbol,
		Timeframe:  timeframe,
		Side:       eval.Side,
		EntryPrice: entry,
		StopLoss:   risk.StopLossPrice(eval.Side, entry, settings.StopLoss),
		TakeProfit: risk.TakeProfitPrice(eval.Side, entry, settings.TakeProfit),
		Confidence: eval.Confidence,
		StrategyID: settings.ID,
		Timestamp:  g.cfg.Now(),
	}
	g.logger.Info(ctx, op+": signal generated", map[string]interface{}{
		"strategy":   settings.ID,
		"symbol":     symbol,
		"timeframe":  timeframe,
		"side":       sig.Side,
		"entry":      sig.EntryPrice,
		"confidence": sig.Confidence,
	})
	return sig, nil
}

// Evaluation is the outcome of the entry rules on the last two indices of a series.
type Evaluation struct {
	Triggered  bool
	Side       domain.TradeSide
	Confidence int
	RSI        float64 // at the last index
}

// EvaluateSeries applies the entry rules to closes and volumes, which must have equal
// length of at least two.
func EvaluateSeries(ind domain.IndicatorSettings, closes, volumes []float64) Evaluation {
	if len(closes) < 2 || len(volumes) != len(closes) {
		return Evaluation{}
	}
	rsiInd := indicators.NewRSI(indicators.RSIConfig{
		IndicatorConfig: indicators.IndicatorConfig{Period: ind.RSIPeriod},
		Overbought:      ind.RSIOverbought,
		Oversold:        ind.RSIOversold,
	})
	rsi := rsiInd.Compute(closes)
	emaShort, errShort := ema(ind.EMAShort).Compute(closes)
	emaLong, errLong := ema(ind.EMALong).Compute(closes)
	if errShort != nil || errLong != nil {
		return Evaluation{}
	}

	last := len(closes) - 1
	prev := last - 1
	out := Evaluation{RSI: rsi[last]}

	volumeOK := true
	volumeRatio := 0.0
	if ind.VolumeFilter {
		avg := indicators.AverageOfPreceding(volumes, volumeLookback)
		volumeOK = volumes[last] > avg*ind.VolumeThreshold
		if avg > 0 {
			volumeRatio = volumes[last] / avg
		}
	}
	if !volumeOK {
		return out
	}

	isLong := rsiInd.IsOversold(rsi[prev]) && rsi[last] > rsi[prev] &&
		emaShort[prev] < emaLong[prev] && emaShort[last] > emaLong[last] &&
		closes[last] > emaShort[last]
	isShort := rsiInd.IsOverbought(rsi[prev]) && rsi[last] < rsi[prev] &&
		emaShort[prev] > emaLong[prev] && emaShort[last] < emaLong[last] &&
		closes[last] < emaShort[last]

	confidence := 50.0
	switch {
	case isLong:
		out.Side = domain.Long
		confidence += (ind.RSIOversold - rsi[prev]) / 2
		confidence += (emaShort[last] - emaLong[last]) / emaLong[last] * 1000
	case isShort:
		out.Side = domain.Short
		confidence += (rsi[prev] - ind.RSIOverbought) / 2
		confidence += (emaLong[last] - emaShort[last]) / emaLong[last] * 1000
	default:
		return out
	}
	if ind.VolumeFilter {
		confidence += math.Min(15, (volumeRatio-1)*10)
	}

	out.Triggered = true
	out.Confidence = clampConfidence(confidence)
	return out
}

func ema(period int) *indicators.MovingAverage {
	return indicators.NewMovingAverage(indicators.MovingAverageConfig{
		IndicatorConfig: indicators.IndicatorConfig{Period: period},
		Type:            indicators.ExponentialMovingAverage,
	})
}

func clampConfidence(c float64) int {
	r := int(math.Round(c))
	if r < 1 {
		return 1
	}
	if r > 99 {
		return 99
	}
	return r
}
