package bybit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(zerolog.Nop(), "demo-api-key", "demo-api-secret", false, WithBaseURL(srv.URL))
}

func errKind(t *testing.T, err error) ErrorKind {
	t.Helper()
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *bybit.Error, got %T: %v", err, err)
	}
	return apiErr.Kind
}

func TestParseCategory(t *testing.T) {
	cases := map[string]Category{
		"spot":    CategorySpot,
		"SPOT":    CategorySpot,
		"linear":  CategoryLinear,
		"inverse": CategoryInverse,
		"":        CategoryLinear,
		"bogus":   CategoryLinear,
	}
	for in, want := range cases {
		if got := ParseCategory(in); got != want {
			t.Errorf("ParseCategory(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestGetTicker(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v5/market/tickers" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("category") != "linear" || q.Get("symbol") != "BTCUSDT" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `{"retCode":0,"retMsg":"OK","result":{"list":[
			{"symbol":"BTCUSDT","lastPrice":"64250.5","price24hPcnt":"0.012",
			 "highPrice24h":"65000","lowPrice24h":"63000","volume24h":"1234.5","turnover24h":"79000000"}
		]}}`)
	})

	ticker, err := c.GetTicker(context.Background(), "BTCUSDT", CategoryLinear)
	if err != nil {
		t.Fatalf("GetTicker returned error: %v", err)
	}
	if ticker.Symbol != "BTCUSDT" || ticker.LastPrice != 64250.5 {
		t.Fatalf("unexpected ticker: %+v", ticker)
	}
	if ticker.Volume24h != 1234.5 || ticker.Category != CategoryLinear {
		t.Fatalf("unexpected ticker fields: %+v", ticker)
	}
}

func TestGetTickerEmptyListIsParseError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"retCode":0,"retMsg":"OK","result":{"list":[]}}`)
	})
	_, err := c.GetTicker(context.Background(), "NOPEUSDT", CategoryLinear)
	if kind := errKind(t, err); kind != ErrParse {
		t.Fatalf("expected parse error, got %s", kind)
	}
}

func TestRetCodeMapsToAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"retCode":10001,"retMsg":"params error","result":null}`)
	})
	_, err := c.GetAllTickers(context.Background(), CategoryLinear)
	if kind := errKind(t, err); kind != ErrAPI {
		t.Fatalf("expected api error, got %s", kind)
	}
}

func TestAuthRetCodeMapsToAuthError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"retCode":10003,"retMsg":"invalid api key","result":null}`)
	})
	_, err := c.GetWalletBalance(context.Background())
	if kind := errKind(t, err); kind != ErrAuth {
		t.Fatalf("expected auth error, got %s", kind)
	}
}

func TestMalformedBodyIsParseError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>gateway timeout</html>`)
	})
	_, err := c.GetAllTickers(context.Background(), CategoryLinear)
	if kind := errKind(t, err); kind != ErrParse {
		t.Fatalf("expected parse error, got %s", kind)
	}
}

func TestUnreachableHostIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := New(zerolog.Nop(), "", "", false, WithBaseURL(srv.URL))

	_, err := c.GetAllTickers(context.Background(), CategoryLinear)
	if kind := errKind(t, err); kind != ErrNetwork {
		t.Fatalf("expected network error, got %s", kind)
	}
}

func TestGetWalletBalanceSignsAndAggregates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery != "accountType=UNIFIED" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		timestamp := r.Header.Get("X-BAPI-TIMESTAMP")
		want := sign("demo-api-secret", timestamp, "demo-api-key", "5000", "accountType=UNIFIED")
		if got := r.Header.Get("X-BAPI-SIGN"); got != want {
			t.Errorf("signature mismatch: got %s want %s", got, want)
		}
		if r.Header.Get("X-BAPI-API-KEY") != "demo-api-key" {
			t.Errorf("missing api key header")
		}
		fmt.Fprint(w, `{"retCode":0,"retMsg":"OK","result":{"list":[{"coin":[
			{"coin":"USDT","equity":"1000.5","availableToWithdraw":"900","unrealisedPnl":"12.5"},
			{"coin":"BTC","equity":"499.5","availableToWithdraw":"400","unrealisedPnl":"-2.5"}
		]}]}}`)
	})

	balance, err := c.GetWalletBalance(context.Background())
	if err != nil {
		t.Fatalf("GetWalletBalance returned error: %v", err)
	}
	if balance.TotalEquity != 1500 || balance.AvailableBalance != 1300 {
		t.Fatalf("unexpected aggregates: %+v", balance)
	}
	if len(balance.Coins) != 2 || balance.Coins[1].UnrealizedPnL != -2.5 {
		t.Fatalf("unexpected coins: %+v", balance.Coins)
	}
}

func TestGetInstruments(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("limit") != "500" || q.Get("category") != "inverse" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `{"retCode":0,"retMsg":"OK","result":{"list":[
			{"symbol":"BTCUSD","baseCoin":"BTC","quoteCoin":"USD","status":"Trading",
			 "leverageFilter":{"maxLeverage":"100"}},
			{"symbol":"OLDUSD","baseCoin":"OLD","quoteCoin":"USD","status":"Closed"}
		]}}`)
	})

	instruments, err := c.GetInstruments(context.Background(), CategoryInverse)
	if err != nil {
		t.Fatalf("GetInstruments returned error: %v", err)
	}
	if len(instruments) != 2 {
		t.Fatalf("expected 2 instruments, got %d", len(instruments))
	}
	if instruments[0].MaxLeverage != 100 {
		t.Fatalf("leverage filter not parsed: %+v", instruments[0])
	}
	if instruments[1].MaxLeverage != 1.0 {
		t.Fatalf("missing leverage filter should default to 1.0: %+v", instruments[1])
	}
}

func TestGetAllTickersWithLeverage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v5/market/tickers":
			fmt.Fprint(w, `{"retCode":0,"retMsg":"OK","result":{"list":[
				{"symbol":"BTCUSDT","lastPrice":"64000"},
				{"symbol":"ETHUSDT","lastPrice":"3200"}
			]}}`)
		case "/v5/market/instruments-info":
			fmt.Fprint(w, `{"retCode":0,"retMsg":"OK","result":{"list":[
				{"symbol":"BTCUSDT","status":"Trading","leverageFilter":{"maxLeverage":"75"}}
			]}}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	tickers, err := c.GetAllTickersWithLeverage(context.Background(), CategoryLinear)
	if err != nil {
		t.Fatalf("GetAllTickersWithLeverage returned error: %v", err)
	}
	byStr := map[string]float64{}
	for _, ticker := range tickers {
		byStr[ticker.Symbol] = ticker.MaxLeverage
	}
	if byStr["BTCUSDT"] != 75 {
		t.Fatalf("leverage not joined: %+v", tickers)
	}
	if byStr["ETHUSDT"] != 0 {
		t.Fatalf("symbol without instrument should keep zero leverage: %+v", tickers)
	}
}

func TestGetAllTickersWithLeverageSurvivesInstrumentFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v5/market/tickers":
			fmt.Fprint(w, `{"retCode":0,"retMsg":"OK","result":{"list":[{"symbol":"BTCUSDT","lastPrice":"64000"}]}}`)
		default:
			fmt.Fprint(w, `{"retCode":10001,"retMsg":"params error","result":null}`)
		}
	})

	tickers, err := c.GetAllTickersWithLeverage(context.Background(), CategoryLinear)
	if err != nil {
		t.Fatalf("expected instruments failure to be swallowed, got %v", err)
	}
	if len(tickers) != 1 || tickers[0].MaxLeverage != 0 {
		t.Fatalf("unexpected tickers: %+v", tickers)
	}
}

func TestGetAllInstrumentsFetchesEveryCategory(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		category := r.URL.Query().Get("category")
		switch category {
		case "spot", "linear":
			fmt.Fprintf(w, `{"retCode":0,"retMsg":"OK","result":{"list":[{"symbol":"A-%s","status":"Trading"}]}}`, category)
		case "inverse":
			fmt.Fprint(w, `{"retCode":10001,"retMsg":"params error","result":null}`)
		default:
			t.Errorf("unexpected category %q", category)
		}
	})

	all, err := c.GetAllInstruments(context.Background())
	if err != nil {
		t.Fatalf("GetAllInstruments returned error: %v", err)
	}
	if len(all.Spot) != 1 || len(all.Linear) != 1 {
		t.Fatalf("expected one instrument per healthy category: %+v", all)
	}
	if len(all.Inverse) != 0 {
		t.Fatalf("failed category must come back empty: %+v", all.Inverse)
	}
}

func TestGetKlinesParsesRows(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("interval") != "15" || q.Get("limit") != "200" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `{"retCode":0,"retMsg":"OK","result":{"list":[
			["1716200900000","101","103","100","102","9.5","960"],
			["1716200000000","100","102","99","101","10.5","1050"]
		]}}`)
	})

	candles, err := c.GetKlines(context.Background(), "BTCUSDT", CategoryLinear, "15", 200)
	if err != nil {
		t.Fatalf("GetKlines returned error: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}
	if candles[0].Timestamp != 1716200900000 || candles[0].Close != 102 {
		t.Fatalf("unexpected candle: %+v", candles[0])
	}
	if candles[1].Volume != 10.5 {
		t.Fatalf("unexpected candle: %+v", candles[1])
	}
}

func TestTestConnection(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v5/market/time" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"retCode":0,"retMsg":"OK","result":{"timeSecond":"1716200000"}}`)
	})
	ok, err := c.TestConnection(context.Background())
	if err != nil || !ok {
		t.Fatalf("TestConnection = %v, %v", ok, err)
	}
}
