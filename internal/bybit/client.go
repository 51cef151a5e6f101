// Package bybit implements the Bybit v5 REST and websocket market data
// client: tickers, instruments, wallet balance, historical klines, and a
// streaming price feed.
package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Msaraldi/trade-app/internal/metrics"
	"github.com/Msaraldi/trade-app/internal/model"
)

// Primary REST host is bytick.com, which stays reachable from regions where
// bybit.com is blocked.
const (
	restURL        = "https://api.bytick.com"
	testnetRestURL = "https://api-testnet.bybit.com"
)

// Category selects the Bybit market segment.
type Category string

const (
	CategorySpot    Category = "spot"
	CategoryLinear  Category = "linear" // USDT perpetual
	CategoryInverse Category = "inverse"
)

// ParseCategory maps free-form input onto a known category, defaulting to
// linear.
func ParseCategory(s string) Category {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "spot":
		return CategorySpot
	case "inverse":
		return CategoryInverse
	default:
		return CategoryLinear
	}
}

// Client is a Bybit v5 REST API client. All methods return *Error with a
// kind the caller can branch on.
type Client struct {
	log       zerolog.Logger
	apiKey    string
	apiSecret string
	baseURL   string
	http      *http.Client
}

// Option configures Client construction.
type Option func(*Client)

// WithBaseURL overrides the REST host, primarily for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimSuffix(u, "/")
		}
	}
}

// New constructs a client. Keys may be empty for public market data
// endpoints.
func New(log zerolog.Logger, apiKey, apiSecret string, testnet bool, opts ...Option) *Client {
	base := restURL
	if testnet {
		base = testnetRestURL
	}
	c := &Client{
		log:       log,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   base,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope is the uniform v5 response wrapper.
type envelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

// Auth-related retCodes per the v5 docs: invalid key, signature mismatch,
// permission denied, expired key.
func authRetCode(code int) bool {
	switch code {
	case 10003, 10004, 10005, 33004:
		return true
	}
	return false
}

// get performs a GET against endpoint with the given query string, unwraps
// the envelope, and decodes result into out. Signed requests carry the
// X-BAPI headers.
func (c *Client) get(ctx context.Context, endpoint, params string, signed bool, out any) error {
	url := c.baseURL + endpoint
	if params != "" {
		url += "?" + params
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return c.fail(errorf(ErrNetwork, "build request: %v", err))
	}
	if signed {
		req.Header = c.authHeaders(params)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.fail(errorf(ErrNetwork, "%v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.fail(errorf(ErrNetwork, "read body: %v", err))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return c.fail(errorf(ErrParse, "%v: %s", err, body))
	}
	if env.RetCode != 0 {
		kind := ErrAPI
		if authRetCode(env.RetCode) {
			kind = ErrAuth
		}
		return c.fail(errorf(kind, "retCode %d: %s", env.RetCode, env.RetMsg))
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return c.fail(errorf(ErrParse, "decode result: %v", err))
	}
	return nil
}

func (c *Client) fail(err *Error) *Error {
	metrics.RestErrorsTotal.WithLabelValues(err.Kind.String()).Inc()
	return err
}

// parseF converts the exchange's string-encoded numbers, returning 0 for
// empty or malformed fields.
func parseF(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// TestConnection probes the public server time endpoint and reports
// reachability.
func (c *Client) TestConnection(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v5/market/time", nil)
	if err != nil {
		return false, c.fail(errorf(ErrNetwork, "build request: %v", err))
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, c.fail(errorf(ErrNetwork, "%v", err))
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

// WalletBalance aggregates the unified account balance.
type WalletBalance struct {
	TotalEquity      float64
	AvailableBalance float64
	Coins            []CoinBalance
}

// CoinBalance is the per-coin slice of a wallet balance.
type CoinBalance struct {
	Coin          string
	Equity        float64
	Available     float64
	UnrealizedPnL float64
}

type walletBalanceResult struct {
	List []struct {
		Coin []struct {
			Coin                string `json:"coin"`
			Equity              string `json:"equity"`
			AvailableToWithdraw string `json:"availableToWithdraw"`
			UnrealisedPnl       string `json:"unrealisedPnl"`
		} `json:"coin"`
	} `json:"list"`
}

// GetWalletBalance fetches the UNIFIED account balance. Requires API keys.
func (c *Client) GetWalletBalance(ctx context.Context) (WalletBalance, error) {
	var result walletBalanceResult
	if err := c.get(ctx, "/v5/account/wallet-balance", "accountType=UNIFIED", true, &result); err != nil {
		return WalletBalance{}, err
	}
	if len(result.List) == 0 {
		return WalletBalance{}, c.fail(errorf(ErrParse, "no balance data"))
	}

	var balance WalletBalance
	for _, coin := range result.List[0].Coin {
		equity := parseF(coin.Equity)
		available := parseF(coin.AvailableToWithdraw)
		balance.TotalEquity += equity
		balance.AvailableBalance += available
		balance.Coins = append(balance.Coins, CoinBalance{
			Coin:          coin.Coin,
			Equity:        equity,
			Available:     available,
			UnrealizedPnL: parseF(coin.UnrealisedPnl),
		})
	}
	return balance, nil
}

// Ticker is a 24h market summary for one symbol.
type Ticker struct {
	Symbol       string
	LastPrice    float64
	Price24hPcnt float64
	HighPrice24h float64
	LowPrice24h  float64
	Volume24h    float64
	Turnover24h  float64
	Category     Category
	MaxLeverage  float64
}

type tickerResult struct {
	List []tickerData `json:"list"`
}

type tickerData struct {
	Symbol       string `json:"symbol"`
	LastPrice    string `json:"lastPrice"`
	Price24hPcnt string `json:"price24hPcnt"`
	HighPrice24h string `json:"highPrice24h"`
	LowPrice24h  string `json:"lowPrice24h"`
	Volume24h    string `json:"volume24h"`
	Turnover24h  string `json:"turnover24h"`
}

func (t tickerData) ticker(category Category) Ticker {
	return Ticker{
		Symbol:       t.Symbol,
		LastPrice:    parseF(t.LastPrice),
		Price24hPcnt: parseF(t.Price24hPcnt),
		HighPrice24h: parseF(t.HighPrice24h),
		LowPrice24h:  parseF(t.LowPrice24h),
		Volume24h:    parseF(t.Volume24h),
		Turnover24h:  parseF(t.Turnover24h),
		Category:     category,
	}
}

// GetTicker fetches the ticker for one symbol.
func (c *Client) GetTicker(ctx context.Context, symbol string, category Category) (Ticker, error) {
	params := fmt.Sprintf("category=%s&symbol=%s", category, symbol)
	var result tickerResult
	if err := c.get(ctx, "/v5/market/tickers", params, false, &result); err != nil {
		return Ticker{}, err
	}
	if len(result.List) == 0 {
		return Ticker{}, c.fail(errorf(ErrParse, "no ticker data for %s", symbol))
	}
	return result.List[0].ticker(category), nil
}

// GetAllTickers fetches every ticker in the category.
func (c *Client) GetAllTickers(ctx context.Context, category Category) ([]Ticker, error) {
	var result tickerResult
	if err := c.get(ctx, "/v5/market/tickers", "category="+string(category), false, &result); err != nil {
		return nil, err
	}
	tickers := make([]Ticker, len(result.List))
	for i, t := range result.List {
		tickers[i] = t.ticker(category)
	}
	return tickers, nil
}

// GetAllTickersWithLeverage fetches tickers and instruments concurrently and
// joins max leverage onto each ticker. An instruments failure leaves leverage
// at zero rather than failing the call.
func (c *Client) GetAllTickersWithLeverage(ctx context.Context, category Category) ([]Ticker, error) {
	var (
		wg          sync.WaitGroup
		tickers     []Ticker
		tickersErr  error
		instruments []Instrument
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		tickers, tickersErr = c.GetAllTickers(ctx, category)
	}()
	go func() {
		defer wg.Done()
		instruments, _ = c.GetInstruments(ctx, category)
	}()
	wg.Wait()
	if tickersErr != nil {
		return nil, tickersErr
	}

	leverage := make(map[string]float64, len(instruments))
	for _, inst := range instruments {
		leverage[inst.Symbol] = inst.MaxLeverage
	}
	for i := range tickers {
		tickers[i].MaxLeverage = leverage[tickers[i].Symbol]
	}
	return tickers, nil
}

// Instrument describes one tradeable symbol.
type Instrument struct {
	Symbol      string
	BaseCoin    string
	QuoteCoin   string
	Status      string
	Category    Category
	MaxLeverage float64
}

// AllInstruments groups instruments by category.
type AllInstruments struct {
	Spot    []Instrument
	Linear  []Instrument
	Inverse []Instrument
}

type instrumentsResult struct {
	List []struct {
		Symbol         string `json:"symbol"`
		BaseCoin       string `json:"baseCoin"`
		QuoteCoin      string `json:"quoteCoin"`
		Status         string `json:"status"`
		LeverageFilter *struct {
			MaxLeverage string `json:"maxLeverage"`
		} `json:"leverageFilter"`
	} `json:"list"`
}

// GetInstruments fetches up to 500 instruments in the category.
func (c *Client) GetInstruments(ctx context.Context, category Category) ([]Instrument, error) {
	params := fmt.Sprintf("category=%s&limit=500", category)
	var result instrumentsResult
	if err := c.get(ctx, "/v5/market/instruments-info", params, false, &result); err != nil {
		return nil, err
	}
	instruments := make([]Instrument, len(result.List))
	for i, data := range result.List {
		maxLeverage := 1.0
		if data.LeverageFilter != nil {
			if v := parseF(data.LeverageFilter.MaxLeverage); v > 0 {
				maxLeverage = v
			}
		}
		instruments[i] = Instrument{
			Symbol:      data.Symbol,
			BaseCoin:    data.BaseCoin,
			QuoteCoin:   data.QuoteCoin,
			Status:      data.Status,
			Category:    category,
			MaxLeverage: maxLeverage,
		}
	}
	return instruments, nil
}

// GetAllInstruments fetches the three categories concurrently. A failed
// category comes back empty.
func (c *Client) GetAllInstruments(ctx context.Context) (AllInstruments, error) {
	var (
		wg  sync.WaitGroup
		all AllInstruments
	)
	fetch := func(category Category, dst *[]Instrument) {
		defer wg.Done()
		instruments, err := c.GetInstruments(ctx, category)
		if err != nil {
			c.log.Warn().Err(err).Str("category", string(category)).Msg("instruments fetch failed")
			return
		}
		*dst = instruments
	}
	wg.Add(3)
	go fetch(CategorySpot, &all.Spot)
	go fetch(CategoryLinear, &all.Linear)
	go fetch(CategoryInverse, &all.Inverse)
	wg.Wait()
	return all, nil
}

// klineResult rows are arrays of strings:
// [startTime, open, high, low, close, volume, turnover].
type klineResult struct {
	List [][]string `json:"list"`
}

func (r klineResult) candles() []model.Candle {
	candles := make([]model.Candle, 0, len(r.List))
	for _, row := range r.List {
		if len(row) < 6 {
			continue
		}
		ts, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		candles = append(candles, model.Candle{
			Timestamp: ts,
			Open:      parseF(row[1]),
			High:      parseF(row[2]),
			Low:       parseF(row[3]),
			Close:     parseF(row[4]),
			Volume:    parseF(row[5]),
		})
	}
	return candles
}

// GetKlines fetches one page of candles, newest first as returned by the
// exchange.
func (c *Client) GetKlines(ctx context.Context, symbol string, category Category, interval string, limit int) ([]model.Candle, error) {
	params := fmt.Sprintf("category=%s&symbol=%s&interval=%s&limit=%d", category, symbol, interval, limit)
	var result klineResult
	if err := c.get(ctx, "/v5/market/kline", params, false, &result); err != nil {
		return nil, err
	}
	return result.candles(), nil
}
