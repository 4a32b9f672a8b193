package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cryptoSignalBot/internal/adapters/tracing"
	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
	"cryptoSignalBot/internal/risk"

	"go.opentelemetry.io/otel/attribute"
)

// Config holds the execution settings.
type Config struct {
	Live           bool    // place real orders instead of test orders
	QuoteAsset     string  // balance asset used for sizing, e.g. USDT
	MinTradeAmount float64 // minimum notional in quote units, inclusive
	MinConfidence  int     // signals below this are skipped; 0 accepts all
	Now            func() time.Time
}

// Engine turns signals into sized orders and OPEN ledger trades.
type Engine struct {
	exchange ports.ExchangeClient
	ledger   ports.TradeLedger
	logger   ports.Logger
	cfg      Config
}

// NewEngine creates a new execution Engine.
func NewEngine(exchange ports.ExchangeClient, ledger ports.TradeLedger, logger ports.Logger, cfg Config) (*Engine, error) {
	if exchange == nil || ledger == nil || logger == nil {
		return nil, errors.New("missing required dependencies for execution engine")
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	if cfg.MinTradeAmount <= 0 {
		return nil, fmt.Errorf("%w: minimum trade amount must be positive", ports.ErrConfigurationError)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{exchange: exchange, ledger: ledger, logger: logger, cfg: cfg}, nil
}

// Execute sizes and submits an order for signal and records the resulting trade.
// It returns (nil, nil) when the signal is skipped for low confidence.
func (e *Engine) Execute(ctx context.Context, signal *domain.Signal, settings domain.StrategySettings) (trade *domain.Trade, err error) {
	op := "Execute"
	if signal == nil {
		return nil, fmt.Errorf("%s failed: %w: nil signal", op, ports.ErrInvalidRequest)
	}
	ctx, span := tracing.StartSpan(ctx, "execution.execute",
		attribute.String("symbol", signal.Symbol),
		attribute.String("side", string(signal.Side)),
		attribute.Int("confidence", signal.Confidence),
		attribute.Bool("live", e.cfg.Live),
	)
	defer func() { tracing.End(span, err) }()

	if signal.Confidence < e.cfg.MinConfidence {
		e.logger.Info(ctx, op+": signal below minimum confidence, skipped", map[string]interface{}{
			"symbol":        signal.Symbol,
			"confidence":    signal.Confidence,
			"minConfidence": e.cfg.MinConfidence,
		})
		return nil, nil
	}

	price, err := e.exchange.GetTickerPrice(ctx, signal.Symbol)
	if err != nil {
		return nil, fmt.Errorf("%s failed to fetch price for %s: %w", op, signal.Symbol, err)
	}
	account, err := e.exchange.GetAccountInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s failed to fetch account: %w", op, err)
	}
	if e.cfg.Live && !account.CanTrade {
		return nil, fmt.Errorf("%s failed: %w: account cannot trade", op, ports.ErrPermissionDenied)
	}
	balance := account.FreeBalance(e.cfg.QuoteAsset)

	order, err := risk.SizeOrder(balance, settings.RiskPerTrade, price, e.cfg.MinTradeAmount)
	if err != nil {
		e.logger.Warn(ctx, op+": order rejected by sizing", map[string]interface{}{
			"symbol":  signal.Symbol,
			"balance": balance,
			"price":   price,
			"risk":    settings.RiskPerTrade,
			"error":   err.Error(),
		})
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}

	stopLoss, takeProfit := e.exitLevels(ctx, signal, settings, price)

	req := ports.OrderRequest{
		Symbol:   signal.Symbol,
		Side:     signal.Side.OrderSide(),
		Type:     domain.OrderTypeMarket,
		Quantity: order.Quantity.StringFixed(risk.QuantityPlaces),
	}
	resp, err := e.submit(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}

	trade, err = e.ledger.AddTrade(ctx, domain.Trade{
		Symbol:     signal.Symbol,
		StrategyID: signal.StrategyID,
		Side:       signal.Side,
		EntryPrice: price,
		EntryTime:  e.cfg.Now(),
		Quantity:   order.Quantity.InexactFloat64(),
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		Status:     domain.StatusOpen,
		Notes: fmt.Sprintf("Signal confidence: %d%%, Timeframe: %s, Balance: %.2f %s",
			signal.Confidence, signal.Timeframe, balance, e.cfg.QuoteAsset),
		OrderID: resp.OrderID,
		Paper:   !e.cfg.Live,
	})
	if err != nil {
		e.logger.Error(ctx, err, op+": order placed but trade could not be recorded", map[string]interface{}{
			"symbol":  signal.Symbol,
			"orderId": resp.OrderID,
		})
		return nil, fmt.Errorf("%s failed to record trade: %w", op, err)
	}

	e.logger.Info(ctx, op+": trade opened", map[string]interface{}{
		"tradeId":    trade.ID,
		"symbol":     trade.Symbol,
		"side":       trade.Side,
		"quantity":   req.Quantity,
		"notional":   order.Notional.StringFixed(2),
		"entryPrice": trade.EntryPrice,
		"stopLoss":   trade.StopLoss,
		"takeProfit": trade.TakeProfit,
		"paper":      trade.Paper,
	})
	return trade, nil
}

// CloseTrade closes an OPEN trade at the current ticker price.
// In live mode the position is flattened with an opposite market order first.
func (e *Engine) CloseTrade(ctx context.Context, tradeID string, reason domain.CloseReason) (*domain.Trade, error) {
	op := "CloseTrade"
	trade, err := e.ledger.GetTrade(ctx, tradeID)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}
	if !trade.IsOpen() {
		return nil, fmt.Errorf("%s failed: %w: trade %s", op, ports.ErrTradeClosed, tradeID)
	}
	price, err := e.exchange.GetTickerPrice(ctx, trade.Symbol)
	if err != nil {
		return nil, fmt.Errorf("%s failed to fetch price for %s: %w", op, trade.Symbol, err)
	}
	return e.closeAt(ctx, trade, price, reason)
}

// closeAt flattens trade (live mode only) and records the exit at price.
func (e *Engine) closeAt(ctx context.Context, trade *domain.Trade, price float64, reason domain.CloseReason) (*domain.Trade, error) {
	op := "CloseTrade"
	if !trade.Paper {
		req := ports.OrderRequest{
			Symbol:   trade.Symbol,
			Side:     trade.Side.CloseSide(),
			Type:     domain.OrderTypeMarket,
			Quantity: fmt.Sprintf("%.*f", risk.QuantityPlaces, trade.Quantity),
		}
		if _, err := e.exchange.PlaceOrder(ctx, req); err != nil {
			return nil, fmt.Errorf("%s failed to flatten %s: %w", op, trade.ID, err)
		}
	}
	closed, err := e.ledger.UpdateTrade(ctx, trade.ID, trade.Close(price, e.cfg.Now(), reason))
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}
	e.logger.Info(ctx, op+": trade closed", map[string]interface{}{
		"tradeId":   closed.ID,
		"symbol":    closed.Symbol,
		"reason":    reason,
		"exitPrice": closed.ExitPrice,
		"pnl":       closed.PNL,
	})
	return closed, nil
}

func (e *Engine) submit(ctx context.Context, req ports.OrderRequest) (*ports.OrderResponse, error) {
	var (
		resp *ports.OrderResponse
		err  error
	)
	if e.cfg.Live {
		resp, err = e.exchange.PlaceOrder(ctx, req)
	} else {
		resp, err = e.exchange.PlaceTestOrder(ctx, req)
	}
	if err != nil {
		if !errors.Is(err, ports.ErrOrderPlacementFailed) {
			err = fmt.Errorf("%w: %w", ports.ErrOrderPlacementFailed, err)
		}
		return nil, err
	}
	if resp == nil {
		resp = &ports.OrderResponse{Symbol: req.Symbol, Status: "TEST", Timestamp: e.cfg.Now()}
	}
	return resp, nil
}

// exitLevels keeps the signal's stop and target unless the price moved past one of
// them since the signal was generated, in which case both are re-derived from price.
func (e *Engine) exitLevels(ctx context.Context, signal *domain.Signal, settings domain.StrategySettings, price float64) (stopLoss, takeProfit float64) {
	stopLoss, takeProfit = signal.StopLoss, signal.TakeProfit
	levels := domain.Trade{Side: signal.Side, StopLoss: stopLoss, TakeProfit: takeProfit}
	if stopLoss > 0 && takeProfit > 0 && !levels.HitsStopLoss(price) && !levels.HitsTakeProfit(price) {
		return stopLoss, takeProfit
	}
	stopLoss = risk.StopLossPrice(signal.Side, price, settings.StopLoss)
	takeProfit = risk.TakeProfitPrice(signal.Side, price, settings.TakeProfit)
	e.logger.Warn(ctx, "Execute: signal levels stale, re-derived from current price", map[string]interface{}{
		"symbol":         signal.Symbol,
		"signalEntry":    signal.EntryPrice,
		"price":          price,
		"stopLoss":       stopLoss,
		"takeProfit":     takeProfit,
		"signalStopLoss": signal.StopLoss,
	})
	return stopLoss, takeProfit
}
