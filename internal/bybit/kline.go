package bybit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Msaraldi/trade-app/internal/metrics"
	"github.com/Msaraldi/trade-app/internal/model"
)

const (
	// defaultStartMS is 2020-03-01 UTC, the earliest backfill point when the
	// caller gives no start.
	defaultStartMS = 1583020800000

	klinePageLimit = 1000
	// maxKlineWindows caps one backfill at 20 pages (20,000 candles).
	maxKlineWindows = 20
	// klineGroupSize bounds in-flight page requests for rate limiting.
	klineGroupSize = 5
	// klineGroupPause separates request groups.
	klineGroupPause = 50 * time.Millisecond
)

// intervalMS returns the candle duration for a v5 kline interval token.
// Unknown tokens fall back to 15 minutes.
func intervalMS(interval string) int64 {
	switch interval {
	case "1":
		return 60_000
	case "3":
		return 180_000
	case "5":
		return 300_000
	case "15":
		return 900_000
	case "30":
		return 1_800_000
	case "60":
		return 3_600_000
	case "120":
		return 7_200_000
	case "240":
		return 14_400_000
	case "360":
		return 21_600_000
	case "720":
		return 43_200_000
	case "D", "d":
		return 86_400_000
	case "W", "w":
		return 604_800_000
	case "M", "m":
		return 2_592_000_000
	default:
		return 900_000
	}
}

// GetAllKlines backfills candles for [start, end] in milliseconds, walking
// backwards from end one 1000-candle window at a time. Zero start and end
// select the defaults (2020-03-01 and now). Individual window failures are
// skipped, so a partial exchange outage yields a gappy but usable series.
// The result is ascending by timestamp with duplicates removed.
func (c *Client) GetAllKlines(ctx context.Context, symbol string, category Category, interval string, start, end int64) ([]model.Candle, error) {
	explicitStart := start > 0
	if end <= 0 {
		end = time.Now().UnixMilli()
	}
	if start <= 0 {
		start = defaultStartMS
	}

	window := intervalMS(interval) * klinePageLimit

	// Window end timestamps, newest first.
	var windowEnds []int64
	windowEnd := end
	for i := 0; i < maxKlineWindows && windowEnd > start; i++ {
		windowEnds = append(windowEnds, windowEnd)
		windowStart := windowEnd - window
		if windowStart < start {
			windowStart = start
		}
		windowEnd = windowStart - 1
	}

	var (
		mu      sync.Mutex
		candles []model.Candle
	)
	for offset := 0; offset < len(windowEnds); offset += klineGroupSize {
		group := windowEnds[offset:]
		if len(group) > klineGroupSize {
			group = group[:klineGroupSize]
		}

		var wg sync.WaitGroup
		for _, endTS := range group {
			wg.Add(1)
			go func(endTS int64) {
				defer wg.Done()
				metrics.KlineRequestsTotal.WithLabelValues(symbol).Inc()
				params := fmt.Sprintf("category=%s&symbol=%s&interval=%s&limit=%d&end=%d",
					category, symbol, interval, klinePageLimit, endTS)
				var result klineResult
				if err := c.get(ctx, "/v5/market/kline", params, false, &result); err != nil {
					c.log.Debug().Err(err).Str("symbol", symbol).Int64("end", endTS).Msg("kline window fetch failed")
					return
				}
				page := result.candles()
				mu.Lock()
				candles = append(candles, page...)
				mu.Unlock()
			}(endTS)
		}
		wg.Wait()

		if offset+klineGroupSize < len(windowEnds) {
			select {
			case <-ctx.Done():
				return nil, c.fail(errorf(ErrNetwork, "%v", ctx.Err()))
			case <-time.After(klineGroupPause):
			}
		}
	}

	// Windows overlap the requested range loosely; trim only when the caller
	// pinned the start themselves.
	if explicitStart {
		kept := candles[:0]
		for _, candle := range candles {
			if candle.Timestamp >= start {
				kept = append(kept, candle)
			}
		}
		candles = kept
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].Timestamp < candles[j].Timestamp })

	deduped := candles[:0]
	var lastTS int64 = -1
	for _, candle := range candles {
		if candle.Timestamp == lastTS {
			continue
		}
		deduped = append(deduped, candle)
		lastTS = candle.Timestamp
	}
	return deduped, nil
}
