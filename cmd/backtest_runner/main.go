package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"cryptoSignalBot/config"
	"cryptoSignalBot/internal/adapters/logger"
	"cryptoSignalBot/internal/adapters/memory"
	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
	"cryptoSignalBot/internal/strategy"
	"cryptoSignalBot/internal/strategy/backtesting"
	"cryptoSignalBot/internal/strategy/optimization"
	"cryptoSignalBot/internal/utils"

	flag "github.com/spf13/pflag"
)

func main() {
	klinesFile := flag.StringP("klines", "k", "", "kline CSV written by fetch_klines (required)")
	strategiesFile := flag.StringP("strategies", "s", "", "YAML or JSON strategy file; defaults to the built-in strategy")
	strategyID := flag.String("strategy-id", "", "strategy to run from the strategies file; all active ones when empty")
	funds := flag.Float64("funds", 1000, "initial balance")
	tradesOut := flag.String("trades-out", "", "optional CSV path for the simulated trades")
	optimize := flag.Bool("optimize", false, "grid search stop loss and take profit instead of a single run")
	top := flag.Int("top", 5, "number of optimization results to print")
	flag.Parse()
	if *klinesFile == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger, sync, err := logger.New(cfg.LogLevelName, cfg.LogFormat)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer sync()
	ctx := context.Background()

	klines, err := utils.ReadKlinesFromCSV(*klinesFile)
	if err != nil {
		log.Fatalf("Error loading klines from %s: %v", *klinesFile, err)
	}
	if len(klines) == 0 {
		log.Fatalf("No klines in %s", *klinesFile)
	}
	appLogger.Info(ctx, "Loaded klines", map[string]interface{}{
		"file": *klinesFile, "count": len(klines), "symbol": klines[0].Symbol, "interval": klines[0].Interval,
	})

	settings, err := loadStrategies(ctx, *strategiesFile, *strategyID, appLogger)
	if err != nil {
		log.Fatalf("Error loading strategies: %v", err)
	}

	btConfig := backtesting.BacktestConfig{
		InitialFunds:   *funds,
		MinTradeAmount: cfg.MinTradeAmount,
		CandleLimit:    cfg.CandleLimit,
	}
	if *optimize {
		runOptimization(ctx, settings, klines, btConfig, *top, appLogger)
		return
	}

	var trades []*domain.Trade
	for _, s := range settings {
		result, err := backtesting.Backtest(ctx, s, klines, btConfig, appLogger)
		if err != nil {
			appLogger.Error(ctx, err, "Backtest error", map[string]interface{}{"strategy": s.ID})
			continue
		}
		printResult(s, result)
		trades = append(trades, result.Trades...)
	}

	if *tradesOut != "" {
		if err := utils.WriteTradesToCSV(trades, *tradesOut); err != nil {
			appLogger.Error(ctx, err, "Error writing trades CSV")
			return
		}
		appLogger.Info(ctx, "Trades saved to", map[string]interface{}{"filename": *tradesOut})
	}
}

func runOptimization(ctx context.Context, settings []domain.StrategySettings, klines []*domain.Kline, btConfig backtesting.BacktestConfig, top int, log ports.Logger) {
	optimizer, err := optimization.NewOptimizer(optimization.OptimizerConfig{
		ParameterRanges: []optimization.ParameterRange{
			{Name: optimization.ParamStopLoss, Min: 1, Max: 3, Step: 0.5},
			{Name: optimization.ParamTakeProfit, Min: 2, Max: 6, Step: 1},
		},
		Backtest: btConfig,
	}, log)
	if err != nil {
		log.Error(ctx, err, "Failed to create optimizer")
		return
	}
	for _, s := range settings {
		results, err := optimizer.Optimize(ctx, s, klines)
		if err != nil {
			log.Error(ctx, err, "Optimization error", map[string]interface{}{"strategy": s.ID})
			continue
		}
		fmt.Printf("=== %s (%s): %d combinations ===\n", s.Name, s.ID, len(results))
		for i, r := range results {
			if i == top {
				break
			}
			fmt.Printf("%2d. SL %.1f%% TP %.1f%%  score %.3f  trades %d  win %.1f%%  ROI %.2f%%  maxDD %.2f%%\n",
				i+1, r.Settings.StopLoss, r.Settings.TakeProfit, r.Score, r.Report.TotalTrades,
				r.Report.WinRate*100, r.Report.ReturnOnInvestment*100, r.Report.MaxDrawdown*100)
		}
		fmt.Println()
	}
}

// loadStrategies returns the strategies to backtest. Without a file the built-in
// default is used.
func loadStrategies(ctx context.Context, path, id string, log ports.Logger) ([]domain.StrategySettings, error) {
	if path == "" {
		return []domain.StrategySettings{domain.DefaultStrategy()}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// A fresh manager is seeded with the default strategy, which the import may replace.
	manager, err := strategy.NewSettingsManager(ctx, memory.NewStore(), log)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		_, err = manager.ImportYAML(ctx, data)
	default:
		_, err = manager.ImportJSON(ctx, data)
	}
	if err != nil {
		return nil, err
	}

	if id != "" {
		s, err := manager.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return []domain.StrategySettings{*s}, nil
	}
	return manager.ActiveStrategies(ctx)
}

func printResult(s domain.StrategySettings, r *backtesting.BacktestResult) {
	fmt.Printf("=== %s (%s) ===\n", s.Name, s.ID)
	fmt.Printf("Candles:        %d\n", r.Candles)
	fmt.Printf("Trades:         %d (won %d, lost %d)\n", r.TotalTrades, r.WinningTrades, r.LosingTrades)
	fmt.Printf("Win rate:       %.2f%%\n", r.WinRate*100)
	fmt.Printf("Total profit:   %.2f\n", r.TotalProfit)
	fmt.Printf("Final balance:  %.2f (ROI %.2f%%)\n", r.FinalBalance, r.ReturnOnInvestment*100)
	fmt.Printf("Max drawdown:   %.2f%%\n", r.MaxDrawdown*100)
	fmt.Printf("Profit factor:  %.2f\n", r.ProfitFactor)
	fmt.Printf("Avg win/loss:   %.2f / %.2f\n", r.AverageWin, r.AverageLoss)
	fmt.Printf("Sharpe ratio:   %.2f\n", r.SharpeRatio)
	fmt.Printf("Best/worst:     %.2f / %.2f\n", r.Performance.LargestWin, r.Performance.LargestLoss)
	fmt.Printf("Max streaks:    %d wins, %d losses\n", r.Performance.MaxConsecutiveWins, r.Performance.MaxConsecutiveLosses)
	for _, m := range r.GetMonthlyReturns() {
		fmt.Printf("  %s: %.2f\n", m.Month.Format("2006-01"), m.Return)
	}
	fmt.Println()
}
