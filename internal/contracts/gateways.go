package contracts

import (
	"context"
	"errors"
)

// ErrTransient marks an upstream failure worth retrying (timeouts,
// 5xx). Callers retry a bounded number of times, then skip the item.
var ErrTransient = errors.New("transient upstream failure")

// MarketData supplies the symbol universe and candle series.
type MarketData interface {
	// ListActiveSymbols returns USDT-quoted symbols whose 24h quote
	// volume is at least minQuoteVolume.
	ListActiveSymbols(ctx context.Context, minQuoteVolume float64) ([]string, error)

	// GetCandles returns up to limit bars for a symbol/interval,
	// oldest first.
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)

	// LastPrice returns the latest traded price for a symbol.
	LastPrice(ctx context.Context, symbol string) (float64, error)
}

// MessageRef identifies a sent message for later deletion.
type MessageRef struct {
	ChatID    int64
	MessageID int64
}

// Messenger pushes ephemeral notifications to subscribers. Transport
// internals are out of scope for the core; it only sees this surface.
type Messenger interface {
	SendEphemeral(ctx context.Context, recipient int64, text string) (MessageRef, error)

	// Delete removes a previously sent message. Best effort: callers
	// ignore the error.
	Delete(ctx context.Context, ref MessageRef) error
}
