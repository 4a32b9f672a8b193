package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"
	"cryptoSignalBot/internal/utils"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
)

const (
	// Base URLs
	baseURLProduction = "https://api.binance.com"
	baseURLTestnet    = "https://testnet.binance.vision"

	maxKlinesPerRequest = 1000
)

// Client implements the ports.ExchangeClient interface on the Binance spot API.
type Client struct {
	spotClient           *binance.Client
	logger               ports.Logger
	configured           bool
	retry                utils.RetryPolicy
	requestTimeout       time.Duration
	reconnectDelay       time.Duration
	maxReconnectAttempts int
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey               string
	SecretKey            string
	UseTestnet           bool
	Logger               ports.Logger
	Retry                utils.RetryPolicy // applied to read-only calls
	RequestTimeout       time.Duration     // per request, default 10s
	ReconnectDelay       time.Duration     // first stream reconnect delay, default 1s
	MaxReconnectAttempts int               // Max attempts before giving up
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	configured := cfg.APIKey != "" && cfg.SecretKey != ""
	if !configured {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		// Websocket endpoints follow the package-level switch.
		binance.UseTestnet = true
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance client configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = utils.DefaultRetryPolicy
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 10
	}

	return &Client{
		spotClient:           client,
		logger:               cfg.Logger,
		configured:           configured,
		retry:                cfg.Retry,
		requestTimeout:       cfg.RequestTimeout,
		reconnectDelay:       cfg.ReconnectDelay,
		maxReconnectAttempts: cfg.MaxReconnectAttempts,
	}, nil
}

// mapAPICode translates a Binance API error code into a ports error.
func mapAPICode(code int64) error {
	switch code {
	case -1003, -1015: // Too many requests / orders
		return ports.ErrRateLimited
	case -1001, -1016: // Internal error / service shutting down
		return ports.ErrExchangeUnavailable
	case -1021: // Timestamp for this request is outside of the recvWindow
		return ports.ErrTimeout
	case -1022, -2014, -2015: // Signature, API-key format, key/IP/permissions
		return ports.ErrAuthenticationFailed
	case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1112, -1114, -1115, -1116, -1117, -1120, -1121, -1125, -1127, -1128, -1130, -1013:
		return ports.ErrInvalidRequest
	case -2010: // New order rejected
		return ports.ErrOrderPlacementFailed
	case -2019, -3005: // Margin / balance insufficient
		return ports.ErrInsufficientFunds
	case -2013: // Order does not exist
		return ports.ErrNotFound
	}
	return ports.ErrUnknown
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message
		mappedErr := mapAPICode(apiErr.Code)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var finalErr error
	msg := err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "Unauthorized") || strings.Contains(msg, "Forbidden"):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrAuthenticationFailed, err)
	case strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset by peer") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "i/o timeout"):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// read runs a read-only request with the per-request timeout and retry policy.
func (c *Client) read(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return utils.Retry(ctx, c.retry, op, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
		return c.handleError(ctx, fn(callCtx), op)
	})
}

// IsConfigured reports whether API credentials are present.
func (c *Client) IsConfigured() bool {
	return c.configured
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	err := c.read(ctx, op, func(ctx context.Context) error {
		return c.spotClient.NewPingService().Do(ctx)
	})
	if err != nil {
		return err
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// GetServerTime retrieves the current server time from the exchange.
func (c *Client) GetServerTime(ctx context.Context) (time.Time, error) {
	op := "GetServerTime"
	var serverTimeMs int64
	err := c.read(ctx, op, func(ctx context.Context) error {
		var err error
		serverTimeMs, err = c.spotClient.NewServerTimeService().Do(ctx)
		return err
	})
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(serverTimeMs), nil
}

// GetTickerPrice retrieves the last ticker price for a given symbol.
func (c *Client) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	op := "GetTickerPrice"
	var prices []*binance.SymbolPrice
	err := c.read(ctx, op, func(ctx context.Context) error {
		var err error
		prices, err = c.spotClient.NewListPricesService().Symbol(symbol).Do(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("%s failed: %w: no price data returned for symbol %s", op, ports.ErrNotFound, symbol)
	}

	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		parseErr := fmt.Errorf("could not parse price '%s': %w", prices[0].Price, err)
		return 0, c.handleError(ctx, parseErr, op)
	}
	return price, nil
}

// GetAccountInfo retrieves trading permissions and balances.
func (c *Client) GetAccountInfo(ctx context.Context) (*ports.AccountInfo, error) {
	op := "GetAccountInfo"
	if !c.configured {
		return nil, fmt.Errorf("%s failed: %w", op, ports.ErrNotConfigured)
	}
	var account *binance.Account
	err := c.read(ctx, op, func(ctx context.Context) error {
		var err error
		account, err = c.spotClient.NewGetAccountService().Do(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	info, err := translateAccount(account)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	return info, nil
}

// GetKlines retrieves historical klines/candlestick data for the given symbol.
func (c *Client) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error) {
	op := "GetKlines"
	var binanceKlines []*binance.Kline
	err := c.read(ctx, op, func(ctx context.Context) error {
		var err error
		binanceKlines, err = c.spotClient.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	domainKlines := make([]*domain.Kline, 0, len(binanceKlines))
	for _, bk := range binanceKlines {
		dk, err := translateBinanceKline(bk, symbol, interval)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline: %w", err), op)
		}
		domainKlines = append(domainKlines, dk)
	}
	return domainKlines, nil
}

// GetKlinesRange fetches all klines for a symbol/interval between start and end time.
func (c *Client) GetKlinesRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]*domain.Kline, error) {
	op := "GetKlinesRange"
	var allKlines []*domain.Kline
	from := start

	for {
		var klines []*binance.Kline
		err := c.read(ctx, op, func(ctx context.Context) error {
			var err error
			klines, err = c.spotClient.NewKlinesService().
				Symbol(symbol).
				Interval(interval).
				StartTime(from.UnixMilli()).
				EndTime(end.UnixMilli()).
				Limit(maxKlinesPerRequest).
				Do(ctx)
			return err
		})
		if err != nil {
			return nil, err
		}
		if len(klines) == 0 {
			break
		}
		for _, bk := range klines {
			dk, err := translateBinanceKline(bk, symbol, interval)
			if err != nil {
				return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline range: %w", err), op)
			}
			allKlines = append(allKlines, dk)
		}
		last := klines[len(klines)-1]
		from = time.UnixMilli(last.CloseTime + 1)
		if from.After(end) || len(klines) < maxKlinesPerRequest {
			break
		}
	}

	return allKlines, nil
}

func (c *Client) orderService(req ports.OrderRequest) *binance.CreateOrderService {
	svc := c.spotClient.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(binance.SideType(req.Side)).
		Type(binance.OrderType(req.Type)).
		Quantity(req.Quantity)
	if req.Type == domain.OrderTypeLimit {
		svc = svc.Price(req.Price).TimeInForce(binance.TimeInForceTypeGTC)
	}
	return svc
}

// PlaceOrder submits a real order. Orders are never retried.
func (c *Client) PlaceOrder(ctx context.Context, req ports.OrderRequest) (*ports.OrderResponse, error) {
	op := "PlaceOrder"
	if !c.configured {
		return nil, fmt.Errorf("%s failed: %w", op, ports.ErrNotConfigured)
	}
	callCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	order, err := c.orderService(req).Do(callCtx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	resp := translateOrderResponse(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol":      req.Symbol,
		"side":        req.Side,
		"quantity":    req.Quantity,
		"orderID":     resp.OrderID,
		"executedQty": resp.ExecutedQty,
		"status":      resp.Status,
	})
	return resp, nil
}

// PlaceTestOrder validates an order with the exchange without executing it.
func (c *Client) PlaceTestOrder(ctx context.Context, req ports.OrderRequest) (*ports.OrderResponse, error) {
	op := "PlaceTestOrder"
	if !c.configured {
		return nil, fmt.Errorf("%s failed: %w", op, ports.ErrNotConfigured)
	}
	callCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	if err := c.orderService(req).Test(callCtx); err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful", map[string]interface{}{"symbol": req.Symbol, "side": req.Side, "quantity": req.Quantity})
	return &ports.OrderResponse{
		Symbol:    req.Symbol,
		Status:    "TEST",
		Type:      string(req.Type),
		Side:      string(req.Side),
		Timestamp: time.Now(),
	}, nil
}

// StreamKlines starts a WebSocket stream for K-line/candlestick data. Dropped
// connections are re-established with exponential backoff until stopCh receives,
// ctx is done or the reconnect attempts are used up; doneCh is closed then.
func (c *Client) StreamKlines(ctx context.Context, symbol, interval string, handler func(kline *domain.Kline), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error) {
	op := "StreamKlines"
	wsCtx, cancelWs := context.WithCancel(ctx)
	fields := map[string]interface{}{"symbol": symbol, "interval": interval}

	binanceHandler := func(event *binance.WsKlineEvent) {
		domainKline, err := translateWsKline(event)
		if err != nil {
			c.logger.Error(wsCtx, err, op+": Failed to translate WebSocket kline event")
			return
		}
		handler(domainKline)
	}
	binanceErrHandler := func(err error) {
		translatedErr := c.handleError(wsCtx, err, op+" WebSocket")
		if errHandler != nil {
			errHandler(translatedErr)
		}
	}

	backoff := utils.RetryPolicy{BaseDelay: c.reconnectDelay, MaxDelay: 60 * c.reconnectDelay}.NewBackoff()

	go func() {
		defer cancelWs()

		for attempt := 0; ; {
			if wsCtx.Err() != nil {
				return
			}
			c.logger.Info(wsCtx, op+": Attempting WebSocket connection...", fields)
			innerDoneCh, innerStopCh, connectErr := binance.WsKlineServe(symbol, interval, binanceHandler, binanceErrHandler)
			if connectErr != nil {
				_ = c.handleError(wsCtx, connectErr, op+" connection attempt")
				attempt++
				if attempt >= c.maxReconnectAttempts {
					c.logger.Error(wsCtx, connectErr, op+": Max reconnection attempts exceeded, giving up.", fields)
					return
				}
				delay := backoff.Duration()
				c.logger.Info(wsCtx, op+": Connection failed, retrying...", map[string]interface{}{
					"symbol": symbol, "interval": interval, "attempt": attempt + 1, "delay": delay.String(),
				})
				select {
				case <-time.After(delay):
					continue
				case <-wsCtx.Done():
					return
				}
			}

			c.logger.Info(wsCtx, op+": WebSocket connection established.", fields)
			attempt = 0
			backoff.Reset()

			select {
			case <-innerDoneCh:
				c.logger.Warn(wsCtx, op+": WebSocket connection closed unexpectedly. Reconnecting...", fields)
			case <-wsCtx.Done():
				select {
				case innerStopCh <- struct{}{}:
				default:
				}
				c.logger.Info(wsCtx, op+": WebSocket stopped.", fields)
				return
			}
		}
	}()

	doneCh = make(chan struct{})
	stopCh = make(chan struct{}, 1)

	go func() {
		select {
		case <-stopCh:
			cancelWs()
		case <-wsCtx.Done():
		}
	}()

	go func() {
		<-wsCtx.Done()
		close(doneCh)
	}()

	return doneCh, stopCh, nil
}

// --- Translation Helpers ---

func parseFloat(name, value string) (float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s '%s': %w", name, value, err)
	}
	return f, nil
}

func translateAccount(account *binance.Account) (*ports.AccountInfo, error) {
	if account == nil {
		return nil, errors.New("received nil account")
	}
	info := &ports.AccountInfo{CanTrade: account.CanTrade}
	for _, b := range account.Balances {
		free, err := parseFloat("free balance", b.Free)
		if err != nil {
			return nil, err
		}
		locked, err := parseFloat("locked balance", b.Locked)
		if err != nil {
			return nil, err
		}
		if free == 0 && locked == 0 {
			continue
		}
		info.Balances = append(info.Balances, ports.Balance{Asset: b.Asset, Free: free, Locked: locked})
	}
	return info, nil
}

func translateOrderResponse(order *binance.CreateOrderResponse) *ports.OrderResponse {
	if order == nil {
		return nil
	}
	price, _ := strconv.ParseFloat(order.Price, 64)
	execQty, _ := strconv.ParseFloat(order.ExecutedQuantity, 64)
	// Market orders report a zero price; derive the average fill price.
	if price == 0 && execQty > 0 {
		quote, _ := strconv.ParseFloat(order.CummulativeQuoteQuantity, 64)
		price = quote / execQty
	}

	return &ports.OrderResponse{
		OrderID:       order.OrderID,
		Symbol:        order.Symbol,
		ClientOrderID: order.ClientOrderID,
		Price:         price,
		ExecutedQty:   execQty,
		Status:        string(order.Status),
		Type:          string(order.Type),
		Side:          string(order.Side),
		Timestamp:     time.UnixMilli(order.TransactTime),
	}
}

func translateWsKline(event *binance.WsKlineEvent) (*domain.Kline, error) {
	if event == nil {
		return nil, errors.New("received nil kline event")
	}
	k := event.Kline
	ohlcv, err := parseOHLCV(k.Open, k.High, k.Low, k.Close, k.Volume)
	if err != nil {
		return nil, err
	}
	return &domain.Kline{
		OpenTime:  time.UnixMilli(k.StartTime),
		CloseTime: time.UnixMilli(k.EndTime),
		Symbol:    k.Symbol,
		Interval:  k.Interval,
		Open:      ohlcv[0],
		High:      ohlcv[1],
		Low:       ohlcv[2],
		Close:     ohlcv[3],
		Volume:    ohlcv[4],
		IsFinal:   k.IsFinal,
	}, nil
}

func translateBinanceKline(bk *binance.Kline, symbol, interval string) (*domain.Kline, error) {
	if bk == nil {
		return nil, errors.New("received nil historical kline")
	}
	ohlcv, err := parseOHLCV(bk.Open, bk.High, bk.Low, bk.Close, bk.Volume)
	if err != nil {
		return nil, err
	}
	return &domain.Kline{
		OpenTime:  time.UnixMilli(bk.OpenTime),
		CloseTime: time.UnixMilli(bk.CloseTime),
		Symbol:    symbol,
		Interval:  interval,
		Open:      ohlcv[0],
		High:      ohlcv[1],
		Low:       ohlcv[2],
		Close:     ohlcv[3],
		Volume:    ohlcv[4],
		IsFinal:   true, // Historical klines are always final
	}, nil
}

func parseOHLCV(open, high, low, cls, volume string) ([5]float64, error) {
	var out [5]float64
	names := [5]string{"open price", "high price", "low price", "close price", "volume"}
	for i, v := range [5]string{open, high, low, cls, volume} {
		f, err := parseFloat(names[i], v)
		if err != nil {
			return out, err
		}
		out[i] = f
	}
	return out, nil
}
