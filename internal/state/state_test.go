package state

import (
	"context"
	"testing"
	"time"

	"github.com/Msaraldi/trade-app/internal/bus"
	"github.com/Msaraldi/trade-app/internal/model"
)

func TestUpdatePriceThenRead(t *testing.T) {
	s := New(bus.New(8))

	tick := model.Tick{Symbol: "BTCUSDT", Price: 64000.5, Volume: 1.25, Ts: time.Now(), Exchange: model.ExchangeBybit}
	s.UpdatePrice(tick)

	got, ok := s.Price("BTCUSDT")
	if !ok {
		t.Fatalf("expected price for BTCUSDT")
	}
	if got.Price != tick.Price || got.Volume != tick.Volume {
		t.Fatalf("read-back mismatch: got %+v want %+v", got, tick)
	}
	if _, ok := s.Price("ETHUSDT"); ok {
		t.Fatalf("expected no price for unknown symbol")
	}
}

func TestUpdatePricePublishesAfterWrite(t *testing.T) {
	b := bus.New(8)
	s := New(b)
	sub := b.Subscribe()

	s.UpdatePrice(model.Tick{Symbol: "BTCUSDT", Price: 100})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	e, err := sub.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive returned error: %v", err)
	}
	if e.Type != bus.PriceUpdated {
		t.Fatalf("expected PriceUpdated, got %v", e.Type)
	}
	// The event consumer must observe the write that produced the event.
	if got, ok := s.Price("BTCUSDT"); !ok || got.Price != 100 {
		t.Fatalf("state not visible at event time: %+v ok=%v", got, ok)
	}
}

func TestModuleActiveFlag(t *testing.T) {
	b := bus.New(8)
	s := New(b)
	sub := b.Subscribe()

	if s.ModuleActive("stop_loss") {
		t.Fatalf("unknown module should be inactive")
	}
	s.SetModuleActive("stop_loss", true)
	if !s.ModuleActive("stop_loss") {
		t.Fatalf("expected module active after toggle")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	e, err := sub.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive returned error: %v", err)
	}
	if e.Type != bus.ModuleStateChanged || e.ModuleID != "stop_loss" || !e.Active {
		t.Fatalf("unexpected event %+v", e)
	}
}

func TestPositionLifecycle(t *testing.T) {
	b := bus.New(8)
	s := New(b)
	sub := b.Subscribe()

	id := s.OpenPosition(model.Position{Symbol: "BTCUSDT", Side: model.SideLong, EntryPrice: 100, Quantity: 1})
	if id == "" {
		t.Fatalf("expected generated position id")
	}
	positions := s.Positions()
	if len(positions) != 1 || positions[0].ID != id {
		t.Fatalf("unexpected positions snapshot %+v", positions)
	}
	if positions[0].CreatedAt.IsZero() {
		t.Fatalf("expected created_at to be filled")
	}

	// Snapshot is a copy, mutating it must not affect the state.
	positions[0].EntryPrice = 1
	if s.Positions()[0].EntryPrice != 100 {
		t.Fatalf("snapshot mutation leaked into state")
	}

	if !s.ClosePosition(id, 42.5) {
		t.Fatalf("expected close to find position")
	}
	if s.ClosePosition(id, 0) {
		t.Fatalf("expected second close to fail")
	}
	if len(s.Positions()) != 0 {
		t.Fatalf("expected no open positions")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	opened, err := sub.Receive(ctx)
	if err != nil || opened.Type != bus.PositionOpened {
		t.Fatalf("expected PositionOpened, got %+v err=%v", opened, err)
	}
	closed, err := sub.Receive(ctx)
	if err != nil || closed.Type != bus.PositionClosed {
		t.Fatalf("expected PositionClosed, got %+v err=%v", closed, err)
	}
	if closed.PnL != 42.5 {
		t.Fatalf("expected pnl 42.5, got %.2f", closed.PnL)
	}
}

func TestAlarmTrigger(t *testing.T) {
	b := bus.New(8)
	s := New(b)
	sub := b.Subscribe()

	id := s.AddAlarm(model.Alarm{Symbol: "BTCUSDT", Condition: model.AlarmPriceAbove, TargetPrice: 70000, Active: true})
	if !s.TriggerAlarm(id) {
		t.Fatalf("expected alarm to fire")
	}
	if s.TriggerAlarm(id) {
		t.Fatalf("deactivated alarm must not fire again")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	e, err := sub.Receive(ctx)
	if err != nil || e.Type != bus.AlarmTriggered || e.AlarmID != id {
		t.Fatalf("unexpected alarm event %+v err=%v", e, err)
	}
}

func TestDefaultSettings(t *testing.T) {
	s := New(bus.New(8))
	settings := s.Settings()
	if settings.DefaultRiskPercent != 1.0 || settings.MaxDailyLoss != 5.0 {
		t.Fatalf("unexpected defaults %+v", settings)
	}

	settings.DefaultRiskPercent = 2.0
	s.SetSettings(settings)
	if s.Settings().DefaultRiskPercent != 2.0 {
		t.Fatalf("settings update not applied")
	}
}
