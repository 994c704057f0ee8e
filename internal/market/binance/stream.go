package binance

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/mtfscan/backend/pkg/config"
	"github.com/wonny/mtfscan/backend/pkg/logger"
	"github.com/wonny/mtfscan/backend/pkg/redis"
)

const (
	streamReadTimeout  = 90 * time.Second
	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = time.Minute
)

// PriceStream keeps the price cache warm from the futures miniTicker
// websocket feed so the scanner rarely has to hit the REST price
// endpoint.
type PriceStream struct {
	url    string
	prices *redis.PriceCache
	logger *logger.Logger
}

// NewPriceStream creates a price stream backed by the futures
// miniTicker websocket feed.
func NewPriceStream(cfg *config.Config, log *logger.Logger, prices *redis.PriceCache) *PriceStream {
	return &PriceStream{
		url:    strings.TrimRight(cfg.Binance.StreamURL, "/") + "/ws/!miniTicker@arr",
		prices: prices,
		logger: log,
	}
}

// miniTicker is the subset of the miniTicker payload we consume.
type miniTicker struct {
	Symbol string `json:"s"`
	Close  string `json:"c"`
}

// Run consumes the stream until ctx is cancelled, reconnecting with
// capped exponential backoff on any connection failure.
func (s *PriceStream) Run(ctx context.Context) {
	delay := reconnectBaseDelay
	for {
		if err := s.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.WithError(err).Warnf("Price stream disconnected, reconnecting in %s", delay)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
	}
}

func (s *PriceStream) consume(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	s.logger.WithField("url", s.url).Info("Price stream connected")

	// Close the socket when ctx ends so ReadMessage unblocks.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
	})

	for {
		if err := conn.SetReadDeadline(time.Now().Add(streamReadTimeout)); err != nil {
			return err
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var tickers []miniTicker
		if err := json.Unmarshal(message, &tickers); err != nil {
			// Non-ticker frames (pings, subscription acks) are fine to skip.
			continue
		}

		for _, t := range tickers {
			if !strings.HasSuffix(t.Symbol, "USDT") {
				continue
			}
			price, err := strconv.ParseFloat(t.Close, 64)
			if err != nil || price <= 0 {
				continue
			}
			s.prices.Set(ctx, t.Symbol, price)
		}
	}
}
