package backtesting

import (
	"context"
	"fmt"
	"time"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
)

// replayFeed serves a growing prefix of a candle series as market data. pos is the
// index of the latest closed candle.
type replayFeed struct {
	klines []*domain.Kline
	pos    int
}

func (f *replayFeed) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*domain.Kline, error) {
	end := f.pos + 1
	start := 0
	if limit > 0 && end-limit > 0 {
		start = end - limit
	}
	return f.klines[start:end], nil
}

func (f *replayFeed) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	if len(f.klines) == 0 {
		return 0, fmt.Errorf("%w: no candles for %s", ports.ErrNotFound, symbol)
	}
	return f.klines[f.pos].Close, nil
}

func (f *replayFeed) GetServerTime(ctx context.Context) (time.Time, error) {
	return f.now(), nil
}

// now is the close time of the latest candle.
func (f *replayFeed) now() time.Time {
	if len(f.klines) == 0 {
		return time.Time{}
	}
	return f.klines[f.pos].CloseTime
}
