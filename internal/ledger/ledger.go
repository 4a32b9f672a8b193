package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
	"cryptoSignalBot/internal/strategy/analytics"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

const (
	// TradesKey is the storage key of the trade history document.
	TradesKey = "trading_history"
	// EquityKey is the storage key of the equity history document.
	EquityKey = "equity_history"

	DefaultInitialBalance = 100.0
)

type tradeHistory struct {
	Trades      []*domain.Trade `json:"trades"`
	LastUpdated time.Time       `json:"lastUpdated"`
}

type equityHistory struct {
	Data        []domain.EquityPoint `json:"data"`
	LastUpdated time.Time            `json:"lastUpdated"`
}

// Config holds the ledger settings.
type Config struct {
	InitialBalance float64
	WinRateMode    analytics.WinRateMode
	Now            func() time.Time // defaults to time.Now
	NewID          func() string    // defaults to a trade_<uuid> generator
}

// Ledger is the single source of truth for trades and equity. Every mutation is a
// load-modify-save of the stored documents under one mutex.
type Ledger struct {
	store  ports.Storage
	logger ports.Logger
	cfg    Config

	mu sync.Mutex
}

// New creates a ledger over store.
func New(store ports.Storage, logger ports.Logger, cfg Config) (*Ledger, error) {
	if store == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Ledger")
	}
	if cfg.InitialBalance <= 0 {
		cfg.InitialBalance = DefaultInitialBalance
	}
	if cfg.WinRateMode == "" {
		cfg.WinRateMode = analytics.WinRateRecompute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return "trade_" + uuid.NewString() }
	}
	return &Ledger{store: store, logger: logger, cfg: cfg}, nil
}

// InitialBalance returns the starting account value equity is measured from.
func (l *Ledger) InitialBalance() float64 {
	return l.cfg.InitialBalance
}

// AddTrade assigns an id to trade, stores it and recomputes equity.
// Only OPEN trades without exit data are accepted.
func (l *Ledger) AddTrade(ctx context.Context, trade domain.Trade) (*domain.Trade, error) {
	op := "AddTrade"
	if err := trade.Validate(); err != nil {
		return nil, fmt.Errorf("%s failed: %w: %w", op, ports.ErrInvalidRequest, err)
	}
	if trade.Status == "" {
		trade.Status = domain.StatusOpen
	}
	if !trade.IsOpen() {
		return nil, fmt.Errorf("%s failed: %w: new trades must be %s, got %s", op, ports.ErrInvalidRequest, domain.StatusOpen, trade.Status)
	}
	if trade.ExitPrice != 0 || trade.ExitTime != nil || trade.PNL != 0 || trade.PNLPercentage != 0 || trade.CloseReason != "" {
		return nil, fmt.Errorf("%s failed: %w: new trades cannot carry exit data", op, ports.ErrInvalidRequest)
	}
	if trade.EntryTime.IsZero() {
		trade.EntryTime = l.cfg.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	history, err := l.loadTrades(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}
	trade.ID = l.cfg.NewID()
	stored := trade
	history.Trades = append(history.Trades, &stored)
	if err := l.saveTrades(ctx, history); err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}
	if err := l.updateEquity(ctx, history); err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}

	l.logger.Info(ctx, "Trade recorded", map[string]interface{}{
		"tradeId":    stored.ID,
		"symbol":     stored.Symbol,
		"side":       stored.Side,
		"strategyId": stored.StrategyID,
		"entryPrice": stored.EntryPrice,
		"quantity":   stored.Quantity,
	})
	out := stored
	return &out, nil
}

// UpdateTrade merges update into the trade with id and recomputes equity.
// It fails with ports.ErrNotFound for an unknown id and ports.ErrTradeClosed once
// the trade is CLOSED or CANCELED. Exit fields are only accepted together with
// the transition to CLOSED.
func (l *Ledger) UpdateTrade(ctx context.Context, id string, update domain.TradeUpdate) (*domain.Trade, error) {
	op := "UpdateTrade"
	l.mu.Lock()
	defer l.mu.Unlock()

	history, err := l.loadTrades(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}
	idx := indexOf(history.Trades, id)
	if idx < 0 {
		return nil, fmt.Errorf("%s failed: %w: trade %s", op, ports.ErrNotFound, id)
	}
	current := history.Trades[idx]
	if !current.IsOpen() {
		return nil, fmt.Errorf("%s failed: %w: trade %s is %s", op, ports.ErrTradeClosed, id, current.Status)
	}
	if update.SetsExit() && !update.Closes() {
		return nil, fmt.Errorf("%s failed: %w: exit fields of trade %s require status %s", op, ports.ErrInvalidRequest, id, domain.StatusClosed)
	}

	updated := *current
	updated.Apply(update)
	if updated.IsClosed() {
		if updated.ExitPrice <= 0 {
			return nil, fmt.Errorf("%s failed: %w: closing trade %s requires an exit price", op, ports.ErrInvalidRequest, id)
		}
		if updated.ExitTime == nil || updated.ExitTime.IsZero() {
			now := l.cfg.Now()
			updated.ExitTime = &now
		}
		if update.PNL == nil {
			updated.PNL = updated.PNLAt(updated.ExitPrice)
		}
	}
	history.Trades[idx] = &updated

	if err := l.saveTrades(ctx, history); err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}
	if err := l.updateEquity(ctx, history); err != nil {
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}

	l.logger.Debug(ctx, op+": trade updated", map[string]interface{}{
		"tradeId": id,
		"status":  updated.Status,
		"pnl":     updated.PNL,
	})
	out := updated
	return &out, nil
}

// CloseTrade transitions an OPEN trade to CLOSED at exitPrice.
func (l *Ledger) CloseTrade(ctx context.Context, id string, exitPrice float64, reason domain.CloseReason) (*domain.Trade, error) {
	trade, err := l.GetTrade(ctx, id)
	if err != nil {
		return nil, err
	}
	return l.UpdateTrade(ctx, id, trade.Close(exitPrice, l.cfg.Now(), reason))
}

// GetTrade returns the trade with id.
func (l *Ledger) GetTrade(ctx context.Context, id string) (*domain.Trade, error) {
	history, err := l.snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetTrade failed: %w", err)
	}
	idx := indexOf(history.Trades, id)
	if idx < 0 {
		return nil, fmt.Errorf("GetTrade failed: %w: trade %s", ports.ErrNotFound, id)
	}
	return history.Trades[idx], nil
}

// GetOpenTrades returns all OPEN trades ordered by entry time ascending.
func (l *Ledger) GetOpenTrades(ctx context.Context) ([]*domain.Trade, error) {
	history, err := l.snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetOpenTrades failed: %w", err)
	}
	open := make([]*domain.Trade, 0)
	for _, t := range history.Trades {
		if t.IsOpen() {
			open = append(open, t)
		}
	}
	sort.SliceStable(open, func(i, j int) bool {
		return open[i].EntryTime.Before(open[j].EntryTime)
	})
	return open, nil
}

// GetRecentTrades filters by symbol and strategyID (empty matches all) and returns up
// to limit trades, most recent entry first.
func (l *Ledger) GetRecentTrades(ctx context.Context, limit int, symbol, strategyID string) ([]*domain.Trade, error) {
	history, err := l.snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetRecentTrades failed: %w", err)
	}
	out := make([]*domain.Trade, 0, len(history.Trades))
	for _, t := range history.Trades {
		if (symbol == "" || t.Symbol == symbol) && (strategyID == "" || t.StrategyID == strategyID) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EntryTime.After(out[j].EntryTime)
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CalculatePerformance aggregates trades per strategy, optionally for one strategyID.
func (l *Ledger) CalculatePerformance(ctx context.Context, strategyID string) (map[string]*domain.StrategyPerformance, error) {
	history, err := l.snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("CalculatePerformance failed: %w", err)
	}
	return analytics.CalculatePerformance(history.Trades, strategyID), nil
}

// GetDailyPerformance returns one bucket per UTC date for the last days dates.
func (l *Ledger) GetDailyPerformance(ctx context.Context, days int) ([]domain.DailyPerformance, error) {
	history, err := l.snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetDailyPerformance failed: %w", err)
	}
	return analytics.DailyPerformance(history.Trades, days, l.cfg.Now(), l.cfg.WinRateMode), nil
}

// GetEquityData returns the equity points inside the trailing window of timeframe.
// An empty window yields the most recent point.
func (l *Ledger) GetEquityData(ctx context.Context, timeframe domain.EquityTimeframe) ([]domain.EquityPoint, error) {
	window, err := timeframe.Window()
	if err != nil {
		return nil, fmt.Errorf("GetEquityData failed: %w: %w", ports.ErrInvalidRequest, err)
	}

	l.mu.Lock()
	history, err := l.loadEquity(ctx)
	l.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("GetEquityData failed: %w", err)
	}

	start := l.cfg.Now().Add(-window)
	out := make([]domain.EquityPoint, 0, len(history.Data))
	for _, p := range history.Data {
		if !p.Timestamp.Before(start) {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return history.Data[len(history.Data)-1:], nil
	}
	return out, nil
}

// LatestEquity returns the value of the most recent equity point.
func (l *Ledger) LatestEquity(ctx context.Context) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	history, err := l.loadEquity(ctx)
	if err != nil {
		return 0, fmt.Errorf("LatestEquity failed: %w", err)
	}
	return history.Data[len(history.Data)-1].Value, nil
}

// ClearAllData resets the trades to empty and equity to a single initial-balance point.
func (l *Ledger) ClearAllData(ctx context.Context) error {
	op := "ClearAllData"
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.cfg.Now()
	if err := l.saveEquity(ctx, &equityHistory{
		Data:        []domain.EquityPoint{{Timestamp: now, Value: l.cfg.InitialBalance}},
		LastUpdated: now,
	}); err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	if err := l.saveTrades(ctx, &tradeHistory{Trades: []*domain.Trade{}, LastUpdated: now}); err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	l.logger.Warn(ctx, "All trading data cleared", map[string]interface{}{"initialBalance": l.cfg.InitialBalance})
	return nil
}

func (l *Ledger) snapshot(ctx context.Context) (*tradeHistory, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadTrades(ctx)
}

// updateEquity appends a point when the realized equity differs from the last point.
// Caller must hold l.mu.
func (l *Ledger) updateEquity(ctx context.Context, trades *tradeHistory) error {
	equity, err := l.loadEquity(ctx)
	if err != nil {
		return err
	}
	value := l.cfg.InitialBalance
	for _, t := range trades.Trades {
		if t.IsClosed() {
			value += t.PNL
		}
	}
	if last := equity.Data[len(equity.Data)-1]; last.Value == value {
		return nil
	}
	now := l.cfg.Now()
	equity.Data = append(equity.Data, domain.EquityPoint{Timestamp: now, Value: value})
	equity.LastUpdated = now
	return l.saveEquity(ctx, equity)
}

func (l *Ledger) loadTrades(ctx context.Context) (*tradeHistory, error) {
	history := &tradeHistory{Trades: []*domain.Trade{}}
	found, err := l.load(ctx, TradesKey, history)
	if err != nil {
		return nil, err
	}
	if !found {
		history.LastUpdated = l.cfg.Now()
	}
	return history, nil
}

func (l *Ledger) saveTrades(ctx context.Context, history *tradeHistory) error {
	history.LastUpdated = l.cfg.Now()
	return l.save(ctx, TradesKey, history)
}

// loadEquity seeds and persists a single initial-balance point when no history exists.
func (l *Ledger) loadEquity(ctx context.Context) (*equityHistory, error) {
	history := &equityHistory{}
	found, err := l.load(ctx, EquityKey, history)
	if err != nil {
		return nil, err
	}
	if found && len(history.Data) > 0 {
		return history, nil
	}
	now := l.cfg.Now()
	history = &equityHistory{
		Data:        []domain.EquityPoint{{Timestamp: now, Value: l.cfg.InitialBalance}},
		LastUpdated: now,
	}
	if err := l.saveEquity(ctx, history); err != nil {
		return nil, err
	}
	return history, nil
}

func (l *Ledger) saveEquity(ctx context.Context, history *equityHistory) error {
	return l.save(ctx, EquityKey, history)
}

func (l *Ledger) load(ctx context.Context, key string, v interface{}) (bool, error) {
	raw, found, err := l.store.Load(ctx, key)
	if err != nil {
		return false, fmt.Errorf("loading %s: %w", key, err)
	}
	if !found || len(raw) == 0 {
		return false, nil
	}
	if err := sonic.Unmarshal(raw, v); err != nil {
		l.logger.Error(ctx, err, "Stored document is corrupt", map[string]interface{}{"key": key})
		return false, fmt.Errorf("decoding %s: %w: %w", key, ports.ErrQueryFailed, err)
	}
	return true, nil
}

func (l *Ledger) save(ctx context.Context, key string, v interface{}) error {
	raw, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := l.store.Save(ctx, key, raw); err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	return nil
}

func indexOf(trades []*domain.Trade, id string) int {
	for i, t := range trades {
		if t.ID == id {
			return i
		}
	}
	return -1
}
