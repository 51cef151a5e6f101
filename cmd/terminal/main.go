// Binary terminal runs the trading terminal core: market data in, shared
// state, and the module registry fanning events out.
package main

import (
	"context"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Msaraldi/trade-app/internal/bus"
	"github.com/Msaraldi/trade-app/internal/bybit"
	"github.com/Msaraldi/trade-app/internal/config"
	"github.com/Msaraldi/trade-app/internal/metrics"
	"github.com/Msaraldi/trade-app/internal/model"
	"github.com/Msaraldi/trade-app/internal/module"
	"github.com/Msaraldi/trade-app/internal/module/stoploss"
	"github.com/Msaraldi/trade-app/internal/state"
	"github.com/Msaraldi/trade-app/internal/util"
)

func main() {
	_ = godotenv.Load() // best-effort

	log := util.NewLogger("info")

	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if cfg.App.LogLevel != "" {
		log = util.NewLogger(cfg.App.LogLevel)
	}

	_ = metrics.Serve(cfg.App.MetricsAddr)
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	events := bus.New(cfg.Bus.Capacity)
	st := state.New(events)

	settings := model.DefaultSettings()
	if cfg.Risk.DefaultRiskPercent > 0 {
		settings.DefaultRiskPercent = cfg.Risk.DefaultRiskPercent
	}
	if cfg.Risk.MaxDailyLoss > 0 {
		settings.MaxDailyLoss = cfg.Risk.MaxDailyLoss
	}
	st.SetSettings(settings)

	registry := module.NewRegistry(log, st)
	if cfg.Modules.StopLoss.Enabled {
		sl := stoploss.New(log, stoploss.Config{
			AutoBreakeven:      cfg.Modules.StopLoss.AutoBreakeven,
			BreakevenThreshold: cfg.Modules.StopLoss.BreakevenThreshold,
		})
		if err := registry.Register(sl); err != nil {
			log.Fatal().Err(err).Msg("register stop-loss module")
		}
		if err := registry.SetActive(stoploss.ModuleID, true); err != nil {
			log.Fatal().Err(err).Msg("activate stop-loss module")
		}
	}
	defer registry.Shutdown()

	go func() {
		if err := registry.Run(ctx); err != nil {
			log.Error().Err(err).Msg("registry stopped")
			cancel()
		}
	}()

	apiKey := getEnv("BYBIT_API_KEY", cfg.Exchange.APIKey)
	apiSecret := getEnv("BYBIT_API_SECRET", cfg.Exchange.APISecret)
	category := bybit.ParseCategory(cfg.Exchange.Category)

	client := bybit.New(log, apiKey, apiSecret, cfg.Exchange.Testnet)
	if ok, err := client.TestConnection(ctx); err != nil || !ok {
		log.Warn().Err(err).Msg("exchange unreachable, continuing with stream only")
	}
	if apiKey != "" {
		if balance, err := client.GetWalletBalance(ctx); err != nil {
			log.Warn().Err(err).Msg("wallet balance fetch failed")
		} else {
			st.UpdateBalance("UNIFIED", balance.AvailableBalance)
		}
	}

	feed := bybit.NewPriceFeed(log, cfg.Exchange.Symbols, category, cfg.Exchange.Testnet)
	ticks := make(chan model.Tick, 1024)
	go func() {
		if err := feed.Run(ctx, ticks); err != nil {
			log.Error().Err(err).Msg("price feed stopped")
			cancel()
		}
	}()

	log.Info().Strs("symbols", cfg.Exchange.Symbols).Str("category", string(category)).Msg("terminal started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			return
		case tick := <-ticks:
			st.UpdatePrice(tick)
		}
	}
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
