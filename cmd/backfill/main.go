// Binary backfill fetches historical candles for one symbol and writes them
// to stdout as CSV.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"os"
	ossignal "os/signal"
	"strconv"
	"syscall"

	"github.com/Msaraldi/trade-app/internal/bybit"
	"github.com/Msaraldi/trade-app/internal/util"
)

func main() {
	var (
		symbol   = flag.String("symbol", "BTCUSDT", "symbol to backfill")
		category = flag.String("category", "linear", "market category: spot, linear, inverse")
		interval = flag.String("interval", "15", "kline interval token (1, 5, 15, 60, D, W, M)")
		start    = flag.Int64("start", 0, "range start in ms since epoch (0 = earliest)")
		end      = flag.Int64("end", 0, "range end in ms since epoch (0 = now)")
		testnet  = flag.Bool("testnet", false, "use the testnet REST host")
		logLevel = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	log := util.NewLogger(*logLevel)

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client := bybit.New(log, "", "", *testnet)
	candles, err := client.GetAllKlines(ctx, *symbol, bybit.ParseCategory(*category), *interval, *start, *end)
	if err != nil {
		log.Fatal().Err(err).Msg("backfill failed")
	}
	log.Info().Str("symbol", *symbol).Int("candles", len(candles)).Msg("backfill complete")

	w := csv.NewWriter(os.Stdout)
	defer w.Flush()
	_ = w.Write([]string{"timestamp", "open", "high", "low", "close", "volume"})
	for _, candle := range candles {
		record := []string{
			strconv.FormatInt(candle.Timestamp, 10),
			strconv.FormatFloat(candle.Open, 'f', -1, 64),
			strconv.FormatFloat(candle.High, 'f', -1, 64),
			strconv.FormatFloat(candle.Low, 'f', -1, 64),
			strconv.FormatFloat(candle.Close, 'f', -1, 64),
			strconv.FormatFloat(candle.Volume, 'f', -1, 64),
		}
		if err := w.Write(record); err != nil {
			log.Fatal().Err(err).Msg("write csv")
		}
	}
}
