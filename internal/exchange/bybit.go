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

const bybitBaseURL = "https://api.bybit.com"

var bybitJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// bybitIntervals - каноничный таймфрейм → интервал Bybit v5
var bybitIntervals = map[string]string{
	Interval1m: "1",
	Interval5m: "5",
	Interval1h: "60",
	Interval1d: "D",
}

// Bybit реализует интерфейс Exchange для Bybit spot market data
type Bybit struct {
	baseURL    string
	httpClient *http.Client
	limiter    *ratelimit.RateLimiter
}

// NewBybit создает новый экземпляр Bybit
func NewBybit() *Bybit {
	return &Bybit{
		baseURL:    bybitBaseURL,
		httpClient: GetGlobalHTTPClient().GetClient(),
		limiter:    ratelimit.NewRateLimiter(10, 20),
	}
}

func (b *Bybit) GetName() string {
	return "bybit"
}

// doRequest выполняет GET запрос к публичному API Bybit v5 и проверяет
// retCode конверта
func (b *Bybit) doRequest(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
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
			Exchange:  "bybit",
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
		return nil, &ExchangeError{
			Exchange:  "bybit",
			Message:   fmt.Sprintf("HTTP %d", resp.StatusCode),
			Transient: resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests,
		}
	}

	var baseResp struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
	}
	if err := bybitJSON.Unmarshal(body, &baseResp); err != nil {
		return nil, err
	}
	if baseResp.RetCode != 0 {
		return nil, &ExchangeError{
			Exchange: "bybit",
			Code:     strconv.Itoa(baseResp.RetCode),
			Message:  baseResp.RetMsg,
		}
	}

	return body, nil
}

// GetCandlesticks получает последние свечи пары, старые первыми.
// Bybit отдает list новыми вперед, порядок разворачивается.
func (b *Bybit) GetCandlesticks(ctx context.Context, pair, interval string, limit int) ([]*Candlestick, error) {
	bybitInterval, ok := bybitIntervals[interval]
	if !ok {
		return nil, &ExchangeError{
			Exchange: "bybit",
			Message:  "unsupported interval " + interval,
		}
	}

	params := url.Values{}
	params.Set("category", "spot")
	params.Set("symbol", symbolFromPair(pair))
	params.Set("interval", bybitInterval)
	params.Set("limit", strconv.Itoa(limit))

	body, err := b.doRequest(ctx, "/v5/market/kline", params)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result struct {
			List [][]string `json:"list"`
		} `json:"result"`
	}
	if err := bybitJSON.Unmarshal(body, &resp); err != nil {
		return nil, &ExchangeError{
			Exchange: "bybit",
			Message:  "malformed kline response",
			Original: err,
		}
	}

	intervalDur := intervalDuration(interval)

	candles := make([]*Candlestick, 0, len(resp.Result.List))
	for i := len(resp.Result.List) - 1; i >= 0; i-- {
		k := resp.Result.List[i]
		if len(k) < 6 {
			return nil, &ExchangeError{
				Exchange: "bybit",
				Message:  fmt.Sprintf("kline entry has %d fields", len(k)),
			}
		}

		openMs, err := strconv.ParseInt(k[0], 10, 64)
		if err != nil {
			return nil, &ExchangeError{
				Exchange: "bybit",
				Message:  "kline timestamp " + k[0] + " is not numeric",
				Original: err,
			}
		}

		prices := make([]decimal.Decimal, 5)
		for j := 0; j < 5; j++ {
			d, err := decimal.NewFromString(k[j+1])
			if err != nil {
				return nil, &ExchangeError{
					Exchange: "bybit",
					Message:  "kline price " + k[j+1] + " is not a decimal",
					Original: err,
				}
			}
			prices[j] = d
		}

		openTime := msToTime(openMs)
		candles = append(candles, &Candlestick{
			Pair:      pair,
			OpenTime:  openTime,
			CloseTime: openTime.Add(intervalDur),
			Open:      prices[0],
			High:      prices[1],
			Low:       prices[2],
			Close:     prices[3],
			Volume:    prices[4],
		})
	}
	return candles, nil
}

func (b *Bybit) Close() error {
	return nil
}

var _ Exchange = (*Bybit)(nil)
