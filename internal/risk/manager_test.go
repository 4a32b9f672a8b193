package risk

import (
	"context"
	"errors"
	"sync"
	"testing"

	"cryptoSignalBot/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct {
	mu        sync.Mutex
	infoMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

type mockDailyStats struct {
	today   domain.DailyPerformance
	err     error
	initial float64
}

func (m *mockDailyStats) GetDailyPerformance(ctx context.Context, days int) ([]domain.DailyPerformance, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []domain.DailyPerformance{m.today}, nil
}

func (m *mockDailyStats) InitialBalance() float64 {
	return m.initial
}

func strategyWithLimits(id string, maxLoss float64, maxTrades int, active bool) domain.StrategySettings {
	s := domain.DefaultStrategy()
	s.ID = id
	s.MaxDailyLoss = maxLoss
	s.MaxTradesPerDay = maxTrades
	s.IsActive = active
	return s
}

func TestMostRestrictive(t *testing.T) {
	limits := MostRestrictive([]domain.StrategySettings{
		strategyWithLimits("a", 5, 10, true),
		strategyWithLimits("b", 3, 0, false),
		strategyWithLimits("c", 0, 7, true),
	})
	assert.Equal(t, 3.0, limits.MaxDailyLossPct)
	assert.Equal(t, 7, limits.MaxTradesPerDay)
}

func TestGuard_ShouldStopTrading(t *testing.T) {
	tests := []struct {
		name       string
		strategies []domain.StrategySettings
		today      domain.DailyPerformance
		wantStop   bool
		reason     string
	}{
		{
			name:       "uses minimum trade cap across strategies",
			strategies: []domain.StrategySettings{strategyWithLimits("a", 50, 5, true), strategyWithLimits("b", 50, 10, true)},
			today:      domain.DailyPerformance{Trades: 5},
			wantStop:   true,
			reason:     "max trades",
		},
		{
			name:       "inactive strategies still count",
			strategies: []domain.StrategySettings{strategyWithLimits("a", 50, 10, true), strategyWithLimits("b", 50, 2, false)},
			today:      domain.DailyPerformance{Trades: 2},
			wantStop:   true,
			reason:     "max trades",
		},
		{
			name:       "below trade cap",
			strategies: []domain.StrategySettings{strategyWithLimits("a", 50, 5, true)},
			today:      domain.DailyPerformance{Trades: 4},
		},
		{
			name:       "daily loss exceeds limit",
			strategies: []domain.StrategySettings{strategyWithLimits("a", 5, 10, true)},
			today:      domain.DailyPerformance{Trades: 2, Profit: -5.01},
			wantStop:   true,
			reason:     "daily loss",
		},
		{
			name:       "loss exactly at limit continues",
			strategies: []domain.StrategySettings{strategyWithLimits("a", 5, 10, true)},
			today:      domain.DailyPerformance{Trades: 2, Profit: -5},
		},
		{
			name:       "large gain also pauses",
			strategies: []domain.StrategySettings{strategyWithLimits("a", 5, 10, true)},
			today:      domain.DailyPerformance{Trades: 2, Profit: 6},
			wantStop:   true,
			reason:     "daily loss",
		},
		{
			name:  "no strategies never stops",
			today: domain.DailyPerformance{Trades: 100, Profit: -100},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guard, err := NewGuard(&mockDailyStats{today: tt.today, initial: 100}, &mockLogger{})
			require.NoError(t, err)

			d, err := guard.ShouldStopTrading(context.Background(), tt.strategies)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStop, d.Stop)
			if tt.reason != "" {
				assert.Contains(t, d.Reason, tt.reason)
			}
		})
	}
}

func TestGuard_LedgerError(t *testing.T) {
	boom := errors.New("storage down")
	guard, err := NewGuard(&mockDailyStats{err: boom, initial: 100}, &mockLogger{})
	require.NoError(t, err)
	_, err = guard.ShouldStopTrading(context.Background(), []domain.StrategySettings{domain.DefaultStrategy()})
	assert.ErrorIs(t, err, boom)
}

func TestNewGuard_MissingDependencies(t *testing.T) {
	_, err := NewGuard(nil, &mockLogger{})
	assert.Error(t, err)
}
