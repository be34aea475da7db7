package exchange

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"spotalert/pkg/ratelimit"
)

const binanceBaseURL = "https://api.binance.com"

var binanceJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Binance реализует интерфейс Exchange для Binance spot market data
type Binance struct {
	baseURL    string
	httpClient *http.Client
	limiter    *ratelimit.RateLimiter
}

// NewBinance создает новый экземпляр Binance.
// Использует глобальный HTTP клиент с connection pooling.
func NewBinance() *Binance {
	return &Binance{
		baseURL:    binanceBaseURL,
		httpClient: GetGlobalHTTPClient().GetClient(),
		// Лимит weight у Binance щедрый, 10 req/sec хватает с запасом
		limiter: ratelimit.NewRateLimiter(10, 20),
	}
}

func (b *Binance) GetName() string {
	return "binance"
}

// doRequest выполняет GET запрос к публичному API Binance
func (b *Binance) doRequest(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL := b.baseURL + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, &ExchangeError{
			Exchange:  "binance",
			Message:   err.Error(),
			Original:  err,
			Transient: true,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		_ = binanceJSON.Unmarshal(body, &apiErr)
		return nil, &ExchangeError{
			Exchange:  "binance",
			Code:      strconv.Itoa(apiErr.Code),
			Message:   fmt.Sprintf("HTTP %d: %s", resp.StatusCode, apiErr.Msg),
			Transient: resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests,
		}
	}

	return body, nil
}

// GetCandlesticks получает последние свечи пары, старые первыми.
// Ответ Binance: массив массивов
// [openTime, open, high, low, close, volume, closeTime, ...]
func (b *Binance) GetCandlesticks(ctx context.Context, pair, interval string, limit int) ([]*Candlestick, error) {
	params := url.Values{}
	params.Set("symbol", symbolFromPair(pair))
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	body, err := b.doRequest(ctx, "/api/v3/klines", params)
	if err != nil {
		return nil, err
	}

	var raw [][]interface{}
	if err := binanceJSON.Unmarshal(body, &raw); err != nil {
		return nil, &ExchangeError{
			Exchange: "binance",
			Message:  "malformed klines response",
			Original: err,
		}
	}

	candles := make([]*Candlestick, 0, len(raw))
	for _, k := range raw {
		if len(k) < 7 {
			return nil, &ExchangeError{
				Exchange: "binance",
				Message:  fmt.Sprintf("kline entry has %d fields", len(k)),
			}
		}

		candle, err := parseBinanceKline(pair, k)
		if err != nil {
			return nil, err
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func parseBinanceKline(pair string, k []interface{}) (*Candlestick, error) {
	openMs, okOpen := k[0].(float64)
	closeMs, okClose := k[6].(float64)
	if !okOpen || !okClose {
		return nil, &ExchangeError{
			Exchange: "binance",
			Message:  "kline timestamps are not numeric",
		}
	}

	prices := make([]decimal.Decimal, 5)
	for i, idx := range []int{1, 2, 3, 4, 5} {
		s, ok := k[idx].(string)
		if !ok {
			return nil, &ExchangeError{
				Exchange: "binance",
				Message:  "kline price is not a string",
			}
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, &ExchangeError{
				Exchange: "binance",
				Message:  "kline price " + s + " is not a decimal",
				Original: err,
			}
		}
		prices[i] = d
	}

	return &Candlestick{
		Pair:      pair,
		OpenTime:  msToTime(int64(openMs)),
		CloseTime: msToTime(int64(closeMs)),
		Open:      prices[0],
		High:      prices[1],
		Low:       prices[2],
		Close:     prices[3],
		Volume:    prices[4],
	}, nil
}

func (b *Binance) Close() error {
	return nil
}

var _ Exchange = (*Binance)(nil)
