// Package model standardizes the value types shared between data ingestion,
// shared state, and trading modules.
package model

import "time"

// ExchangeBybit identifies ticks sourced from Bybit.
const ExchangeBybit = "bybit"

// Tick models one observed market data sample for a symbol. Ticks are
// immutable once constructed; the latest tick per symbol overwrites the
// previous one in shared state.
type Tick struct {
	Symbol   string
	Price    float64
	Volume   float64
	Ts       time.Time
	Exchange string
}

// Side enumerates position directions.
type Side string

const (
	// SideLong indicates a long position.
	SideLong Side = "long"
	// SideShort indicates a short position.
	SideShort Side = "short"
)

// Position describes an open position. Modules read positions but never
// mutate them; mutation happens only through the order-execution path, which
// lives outside this core.
type Position struct {
	ID         string
	Symbol     string
	Side       Side
	EntryPrice float64
	Quantity   float64
	StopLoss   *float64 // nil when no stop is set
	TakeProfit *float64 // nil when no target is set
	CreatedAt  time.Time
}

// Candle is an immutable OHLCV aggregate for one time bucket, keyed by its
// opening timestamp in milliseconds within a (symbol, category, interval)
// series.
type Candle struct {
	Timestamp int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// AlarmCondition enumerates supported price alarm triggers.
type AlarmCondition string

const (
	AlarmPriceAbove AlarmCondition = "price_above"
	AlarmPriceBelow AlarmCondition = "price_below"
	AlarmCrossVwap  AlarmCondition = "cross_vwap"
	AlarmCrossVal   AlarmCondition = "cross_val"
	AlarmCrossVah   AlarmCondition = "cross_vah"
)

// Alarm describes a user-defined price alert.
type Alarm struct {
	ID          string
	Symbol      string
	Condition   AlarmCondition
	TargetPrice float64
	Active      bool
}

// Settings captures user-level runtime preferences.
type Settings struct {
	DefaultRiskPercent float64
	MaxDailyLoss       float64
	Theme              string
}

// DefaultSettings returns the settings applied before any user override.
func DefaultSettings() Settings {
	return Settings{
		DefaultRiskPercent: 1.0,
		MaxDailyLoss:       5.0,
		Theme:              "dark",
	}
}
