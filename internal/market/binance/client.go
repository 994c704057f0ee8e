package binance

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/wonny/mtfscan/backend/internal/contracts"
	"github.com/wonny/mtfscan/backend/pkg/config"
	"github.com/wonny/mtfscan/backend/pkg/httputil"
	"github.com/wonny/mtfscan/backend/pkg/logger"
	"github.com/wonny/mtfscan/backend/pkg/redis"
)

// Client talks to the Binance USDT-M futures REST API. All requests go
// through a shared client-side rate limiter; transient failures
// (timeouts, 5xx, 429) are wrapped in contracts.ErrTransient after the
// bounded retries are exhausted.
type Client struct {
	baseURL    string
	httpClient *httputil.Client
	limiter    *rate.Limiter
	prices     *redis.PriceCache
	logger     *logger.Logger
}

// New creates a new Binance futures client
func New(cfg *config.Config, log *logger.Logger, httpClient *httputil.Client, prices *redis.PriceCache) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.Binance.BaseURL, "/"),
		httpClient: httpClient.WithRetry(cfg.Binance.MaxRetries, cfg.Binance.RetryDelay),
		limiter:    rate.NewLimiter(rate.Every(cfg.Binance.RequestDelay), 1),
		prices:     prices,
		logger:     log,
	}
}

type ticker24h struct {
	Symbol      string `json:"symbol"`
	QuoteVolume string `json:"quoteVolume"`
}

// ListActiveSymbols returns USDT-quoted futures symbols whose 24h quote
// volume meets the minimum.
func (c *Client) ListActiveSymbols(ctx context.Context, minQuoteVolume float64) ([]string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var tickers []ticker24h
	endpoint := c.baseURL + "/fapi/v1/ticker/24hr"
	if err := c.httpClient.GetJSON(ctx, endpoint, &tickers); err != nil {
		return nil, classify(fmt.Errorf("fetch 24h tickers: %w", err))
	}

	symbols := make([]string, 0, len(tickers))
	for _, t := range tickers {
		if !strings.HasSuffix(t.Symbol, "USDT") {
			continue
		}
		volume, err := strconv.ParseFloat(t.QuoteVolume, 64)
		if err != nil || volume < minQuoteVolume {
			continue
		}
		symbols = append(symbols, t.Symbol)
	}

	c.logger.WithField("symbols", len(symbols)).Info("Active symbols with sufficient volume")
	return symbols, nil
}

// GetCandles returns up to limit OHLCV bars for a symbol and interval,
// oldest first.
func (c *Client) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]contracts.Candle, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	var raw [][]interface{}
	endpoint := c.baseURL + "/fapi/v1/klines?" + params.Encode()
	if err := c.httpClient.GetJSON(ctx, endpoint, &raw); err != nil {
		return nil, classify(fmt.Errorf("fetch klines for %s %s: %w", symbol, interval, err))
	}

	candles := make([]contracts.Candle, 0, len(raw))
	for _, row := range raw {
		// Kline rows: [openTime, open, high, low, close, volume, ...]
		if len(row) < 6 {
			continue
		}
		candle := contracts.Candle{
			Open:   parseField(row[1]),
			High:   parseField(row[2]),
			Low:    parseField(row[3]),
			Close:  parseField(row[4]),
			Volume: parseField(row[5]),
		}
		candles = append(candles, candle)
	}

	return candles, nil
}

type tickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// LastPrice returns the latest traded price for a symbol, reading
// through the price cache when one is configured.
func (c *Client) LastPrice(ctx context.Context, symbol string) (float64, error) {
	if c.prices != nil {
		if price, ok := c.prices.Get(ctx, symbol); ok {
			return price, nil
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	var t tickerPrice
	endpoint := c.baseURL + "/fapi/v1/ticker/price?symbol=" + url.QueryEscape(symbol)
	if err := c.httpClient.GetJSON(ctx, endpoint, &t); err != nil {
		return 0, classify(fmt.Errorf("fetch price for %s: %w", symbol, err))
	}

	price, err := strconv.ParseFloat(t.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed price %q for %s: %w", t.Price, symbol, err)
	}

	if c.prices != nil {
		c.prices.Set(ctx, symbol, price)
	}

	return price, nil
}

// classify wraps retryable upstream failures in ErrTransient so
// callers can tell them apart from permanent ones.
func classify(err error) error {
	var statusErr *httputil.StatusError
	if errors.As(err, &statusErr) {
		if httputil.IsRetryableStatus(statusErr.Code) {
			return fmt.Errorf("%w: %w", contracts.ErrTransient, err)
		}
		return err
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	// Remaining transport-level failures (connection resets, DNS,
	// client timeouts) are worth retrying next cycle.
	return fmt.Errorf("%w: %w", contracts.ErrTransient, err)
}

// parseField converts a kline field to float64. Binance encodes prices
// as strings and times as numbers.
func parseField(v interface{}) float64 {
	switch val := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(val, 64)
		return f
	case float64:
		return val
	}
	return 0
}
