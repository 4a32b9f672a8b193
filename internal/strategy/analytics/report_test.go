package analytics

import (
	"testing"
	"time"

	"cryptoSignalBot/internal/domain"
)

func TestAnalyze(t *testing.T) {
	initialBalance := 10000.0
	trades := []*domain.Trade{
		closedTrade("s1", 1000, base.Add(-6*time.Hour)),
		closedTrade("s1", -1000, base),
		{StrategyID: "s1", Status: domain.StatusOpen, EntryTime: base},
	}

	report := Analyze(trades, initialBalance)

	if report.TotalTrades != 2 {
		t.Errorf("Expected 2 total trades, got %d", report.TotalTrades)
	}
	if report.WinningTrades != 1 || report.LosingTrades != 1 {
		t.Errorf("Expected 1 win and 1 loss, got %d/%d", report.WinningTrades, report.LosingTrades)
	}
	if report.WinRate != 0.5 {
		t.Errorf("Expected 0.5 win rate, got %f", report.WinRate)
	}
	if report.TotalProfit != 0 {
		t.Errorf("Expected 0 total profit, got %f", report.TotalProfit)
	}
	if report.FinalBalance != initialBalance {
		t.Errorf("Expected final balance of %f, got %f", initialBalance, report.FinalBalance)
	}
	if report.AverageWin != 1000 || report.AverageLoss != -1000 {
		t.Errorf("Expected average win/loss 1000/-1000, got %f/%f", report.AverageWin, report.AverageLoss)
	}
	if report.ProfitFactor != 1.0 {
		t.Errorf("Expected 1.0 profit factor, got %f", report.ProfitFactor)
	}
	if report.AverageTradeDuration != time.Hour {
		t.Errorf("Expected 1h average duration, got %s", report.AverageTradeDuration)
	}
	if len(report.EquityCurve) != 2 {
		t.Errorf("Expected 2 equity curve points, got %d", len(report.EquityCurve))
	}
	if monthly := report.GetMonthlyReturns(); len(monthly) != 1 {
		t.Errorf("Expected 1 monthly return, got %d", len(monthly))
	}
}

func TestAnalyzeEmptyTrades(t *testing.T) {
	report := Analyze(nil, 10000.0)
	if report.TotalTrades != 0 {
		t.Errorf("Expected 0 total trades, got %d", report.TotalTrades)
	}
	if report.FinalBalance != 10000.0 {
		t.Errorf("Expected final balance of 10000.0, got %f", report.FinalBalance)
	}
}

func TestAnalyzeDrawdown(t *testing.T) {
	trades := []*domain.Trade{
		closedTrade("s1", 1000, base.Add(-18*time.Hour)),
		closedTrade("s1", -2200, base.Add(-6*time.Hour)),
	}

	report := Analyze(trades, 10000.0)

	if report.MaxDrawdown != 0.2 {
		t.Errorf("Expected 0.2 max drawdown, got %f", report.MaxDrawdown)
	}
	if len(report.Drawdowns) != 1 {
		t.Fatalf("Expected 1 drawdown period, got %d", len(report.Drawdowns))
	}
	if report.Drawdowns[0].StartValue != 11000 || report.Drawdowns[0].EndValue != 8800 {
		t.Errorf("Unexpected drawdown bounds %+v", report.Drawdowns[0])
	}
}
