package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Msaraldi/trade-app/internal/metrics"
	"github.com/Msaraldi/trade-app/internal/model"
)

const (
	wsURL        = "wss://stream.bytick.com/v5/public"
	testnetWSURL = "wss://stream-testnet.bybit.com/v5/public"
)

// PriceFeed streams ticker updates for a symbol set over the public v5
// websocket and emits them as model ticks. It reconnects with backoff until
// the context is canceled.
type PriceFeed struct {
	log      zerolog.Logger
	symbols  []string
	category Category
	url      string

	// lastPrices fills the gaps in delta frames, which omit unchanged fields.
	lastPrices map[string]float64
}

// NewPriceFeed builds a feed for the given symbols.
func NewPriceFeed(log zerolog.Logger, symbols []string, category Category, testnet bool) *PriceFeed {
	base := wsURL
	if testnet {
		base = testnetWSURL
	}
	return &PriceFeed{
		log:        log,
		symbols:    append([]string(nil), symbols...),
		category:   category,
		url:        fmt.Sprintf("%s/%s", base, category),
		lastPrices: make(map[string]float64),
	}
}

// Run pushes ticks onto out until the context is canceled.
func (f *PriceFeed) Run(ctx context.Context, out chan<- model.Tick) error {
	if len(f.symbols) == 0 {
		return fmt.Errorf("price feed requires at least one symbol")
	}

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := f.consume(ctx, out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.log.Warn().Err(err).Msg("price feed disconnected, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*1.8))
			continue
		}
		return nil
	}
}

type wsRequest struct {
	Op   string   `json:"op"`
	Args []string `json:"args,omitempty"`
}

type tickerFrame struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
	TS    int64  `json:"ts"`
	Data  struct {
		Symbol    string `json:"symbol"`
		LastPrice string `json:"lastPrice"`
		Volume24h string `json:"volume24h"`
	} `json:"data"`
}

func (f *PriceFeed) consume(ctx context.Context, out chan<- model.Tick) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	args := make([]string, len(f.symbols))
	for i, sym := range f.symbols {
		args[i] = "tickers." + strings.ToUpper(sym)
	}
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(wsRequest{Op: "subscribe", Args: args}); err != nil {
		return err
	}

	f.log.Info().Strs("symbols", f.symbols).Str("category", string(f.category)).Msg("connected market data feed")

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))

	// The v5 stream expects an application-level ping, not a ws control frame.
	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteJSON(wsRequest{Op: "ping"}); err != nil {
					f.log.Warn().Err(err).Msg("feed ping failed")
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))

		var frame tickerFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			f.log.Warn().Err(err).Msg("failed to decode feed message")
			continue
		}
		if !strings.HasPrefix(frame.Topic, "tickers.") {
			// Pong and subscription acks carry no topic.
			continue
		}

		tick, ok := f.mergeFrame(frame)
		if !ok {
			continue
		}
		select {
		case out <- tick:
			metrics.TicksTotal.WithLabelValues(tick.Symbol).Inc()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// mergeFrame folds a snapshot or delta frame into the last-known prices and
// produces a tick. Delta frames without a price update yield no tick.
func (f *PriceFeed) mergeFrame(frame tickerFrame) (model.Tick, bool) {
	symbol := frame.Data.Symbol
	if symbol == "" {
		symbol = strings.TrimPrefix(frame.Topic, "tickers.")
	}

	price := parseF(frame.Data.LastPrice)
	if price > 0 {
		f.lastPrices[symbol] = price
	} else if frame.Type == "delta" {
		price = f.lastPrices[symbol]
	}
	if price <= 0 {
		return model.Tick{}, false
	}

	ts := time.UnixMilli(frame.TS)
	if frame.TS == 0 {
		ts = time.Now()
	}
	return model.Tick{
		Symbol:   symbol,
		Price:    price,
		Volume:   parseF(frame.Data.Volume24h),
		Ts:       ts,
		Exchange: model.ExchangeBybit,
	}, true
}
