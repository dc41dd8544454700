// Package binance is the market-data collaborator: REST history and
// exchange metadata, plus websocket ticker and kline streams.
package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"marketdash/internal/model"
)

const (
	DefaultRESTURL = "https://api.binance.com"
	DefaultTimeout = 10 * time.Second

	// MaxKlines is the largest page the klines endpoint returns.
	MaxKlines = 1000
)

// ErrStatus is returned (wrapped) for non-2xx REST responses.
var ErrStatus = errors.New("binance: unexpected status")

// PriceObserver receives quoted prices so display precision can be learned.
type PriceObserver interface {
	ObserveString(symbol, price string) int
}

// Config configures the REST client.
type Config struct {
	BaseURL  string        // default: https://api.binance.com
	Timeout  time.Duration // default: 10s
	Observer PriceObserver // optional
}

// Client is a REST client for the public spot endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	observer   PriceObserver
}

// NewClient creates a REST client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultRESTURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		observer:   cfg.Observer,
	}
}

// Klines fetches up to limit candles for symbol at a provider interval
// ("1h", "4h", "1d"), oldest first.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	if limit <= 0 || limit > MaxKlines {
		limit = MaxKlines
	}
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(symbol))
	q.Set("interval", interval)
	q.Set("limit", strconv.Itoa(limit))

	var rows [][]json.RawMessage
	if err := c.get(ctx, "/api/v3/klines", q, &rows); err != nil {
		return nil, fmt.Errorf("klines %s %s: %w", symbol, interval, err)
	}

	candles := make([]model.Candle, 0, len(rows))
	var lastClose string
	for i, row := range rows {
		cd, closeText, err := parseKlineRow(row)
		if err != nil {
			return nil, fmt.Errorf("klines %s %s: row %d: %w", symbol, interval, i, err)
		}
		candles = append(candles, cd)
		lastClose = closeText
	}
	if c.observer != nil && lastClose != "" {
		c.observer.ObserveString(strings.ToUpper(symbol), lastClose)
	}
	return candles, nil
}

// parseKlineRow decodes [openTime, "open", "high", "low", "close", "volume", ...].
func parseKlineRow(row []json.RawMessage) (model.Candle, string, error) {
	if len(row) < 6 {
		return model.Candle{}, "", fmt.Errorf("expected at least 6 fields, got %d", len(row))
	}
	var cd model.Candle
	if err := json.Unmarshal(row[0], &cd.Time); err != nil {
		return model.Candle{}, "", fmt.Errorf("open time: %w", err)
	}

	var texts [5]string
	for i := range texts {
		if err := json.Unmarshal(row[i+1], &texts[i]); err != nil {
			return model.Candle{}, "", fmt.Errorf("field %d: %w", i+1, err)
		}
	}
	dst := []*float64{&cd.Open, &cd.High, &cd.Low, &cd.Close, &cd.Volume}
	for i, s := range texts {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return model.Candle{}, "", fmt.Errorf("field %d: %w", i+1, err)
		}
		*dst[i] = v
	}
	return cd, texts[3], nil
}

type exchangeInfo struct {
	Symbols []model.Pair `json:"symbols"`
}

// ExchangeInfo lists every spot pair.
func (c *Client) ExchangeInfo(ctx context.Context) ([]model.Pair, error) {
	var info exchangeInfo
	if err := c.get(ctx, "/api/v3/exchangeInfo", nil, &info); err != nil {
		return nil, fmt.Errorf("exchange info: %w", err)
	}
	return info.Symbols, nil
}

// TradingPairs returns the symbols currently trading against USDC, or
// against USDT when no USDC pair is listed.
func (c *Client) TradingPairs(ctx context.Context) ([]string, error) {
	pairs, err := c.ExchangeInfo(ctx)
	if err != nil {
		return nil, err
	}
	return FilterQuote(pairs, "USDC", "USDT"), nil
}

// FilterQuote returns the trading symbols for the first quote asset in
// order that has any.
func FilterQuote(pairs []model.Pair, quotes ...string) []string {
	for _, q := range quotes {
		var out []string
		for i := range pairs {
			if pairs[i].Trading() && pairs[i].QuoteAsset == q {
				out = append(out, pairs[i].Symbol)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return []string{}
}

type tickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// TickerPrice returns the latest traded price for symbol.
func (c *Client) TickerPrice(ctx context.Context, symbol string) (float64, error) {
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(symbol))

	var tp tickerPrice
	if err := c.get(ctx, "/api/v3/ticker/price", q, &tp); err != nil {
		return 0, fmt.Errorf("ticker price %s: %w", symbol, err)
	}
	price, err := strconv.ParseFloat(tp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("ticker price %s: %w", symbol, err)
	}
	if c.observer != nil {
		c.observer.ObserveString(tp.Symbol, tp.Price)
	}
	return price, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w %d: %s", ErrStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
