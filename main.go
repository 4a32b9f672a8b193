package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"cryptoSignalBot/config"
	"cryptoSignalBot/internal/adapters/tracing"
	"cryptoSignalBot/internal/app"
	"cryptoSignalBot/internal/execution"
	"cryptoSignalBot/internal/ports"
	"cryptoSignalBot/internal/risk"
	"cryptoSignalBot/internal/strategy"

	"go.uber.org/fx"
)

const version = "0.3.0"

func main() {
	// Fail on configuration before the dependency graph is built.
	if _, err := config.LoadConfig(); err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	fx.New(
		fx.NopLogger,
		fx.Provide(
			config.LoadConfig,
			newLogger,
			newStorage,
			newExchange,
			newNotifier,
			newLedger,
			newSettings,
			newGuard,
			newGenerator,
			newEngine,
			newPriceCache,
			newExtremeStop,
			newExitMonitor,
			newVolatilityTracker,
			newErrorTracker,
			newController,
			newHealthChecker,
		),
		fx.Invoke(initTracing, run),
	).Run()
}

func initTracing(lc fx.Lifecycle, cfg *config.Config, logger ports.Logger) error {
	if err := tracing.Init(cfg.TracingEnabled, version); err != nil {
		return err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tracing.Shutdown(ctx)
		},
	})
	logger.Info(context.Background(), "Tracing initialized", map[string]interface{}{"enabled": cfg.TracingEnabled})
	return nil
}

// run starts the process-scoped monitors and the bot controller.
func run(
	lc fx.Lifecycle,
	logger ports.Logger,
	controller *app.BotController,
	extreme *risk.ExtremeStopMonitor,
	exits *execution.ExitMonitor,
	volatility *strategy.VolatilityTracker,
	health *app.HealthChecker,
) {
	extreme.SetHalter(controller)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			report := health.Check(ctx)
			fields := map[string]interface{}{"overall": report.Overall, "warnings": report.Warnings, "errors": report.Errors}
			if report.Overall == app.HealthCritical {
				logger.Warn(ctx, "System health is critical", fields)
			} else {
				logger.Info(ctx, "System health", fields)
			}

			// Monitors outlive the start context.
			bg := context.WithoutCancel(ctx)
			extreme.Start(bg)
			exits.Start(bg)
			volatility.Start(bg)
			return controller.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			controller.Stop()
			volatility.Stop()
			exits.Stop()
			extreme.Stop()
			last := controller.LastCycle()
			logger.Info(ctx, "Application finished gracefully.", map[string]interface{}{
				"lastCycle":       last.Started,
				"lastCycleTrades": last.Trades,
				"lastCycleErrors": last.Errors,
			})
			return nil
		},
	})
}
