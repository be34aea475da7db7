// Package exchange предоставляет унифицированный интерфейс получения
// рыночных данных (свечей) с бирж. Движку алертов нужны только
// публичные market data endpoints, авторизация не используется.
package exchange

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Exchange определяет унифицированный интерфейс источника свечей
type Exchange interface {
	// GetName возвращает имя биржи
	GetName() string

	// GetCandlesticks получает последние свечи пары, старые первыми.
	// interval - таймфрейм свечи ("1m", "5m", "1h", "1d"),
	// limit - максимальное число свечей.
	GetCandlesticks(ctx context.Context, pair, interval string, limit int) ([]*Candlestick, error)

	// Close закрывает соединения с биржей
	Close() error
}

// Candlestick представляет одну свечу таймфрейма
type Candlestick struct {
	Pair      string          `json:"pair"`
	OpenTime  time.Time       `json:"open_time"`
	CloseTime time.Time       `json:"close_time"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// Contains возвращает true, если цена лежит внутри диапазона [Low, High] свечи
func (c *Candlestick) Contains(price decimal.Decimal) bool {
	return price.GreaterThanOrEqual(c.Low) && price.LessThanOrEqual(c.High)
}

// Поддерживаемые таймфреймы свечей
const (
	Interval1m = "1m"
	Interval5m = "5m"
	Interval1h = "1h"
	Interval1d = "1d"
)

// ExchangeError представляет ошибку от биржи
type ExchangeError struct {
	Exchange  string
	Code      string
	Message   string
	Original  error
	Transient bool // true для сетевых ошибок и 5xx/429
}

func (e *ExchangeError) Error() string {
	return e.Exchange + ": " + e.Message
}

// Unwrap возвращает оригинальную ошибку для поддержки errors.Is() и errors.As()
func (e *ExchangeError) Unwrap() error {
	return e.Original
}

// Temporary возвращает true, если запрос имеет смысл повторить
// (интегрируется с pkg/retry)
func (e *ExchangeError) Temporary() bool {
	return e.Transient
}

// symbolFromPair конвертирует каноничную пару "ETH/USDT" в биржевой
// символ "ETHUSDT"
func symbolFromPair(pair string) string {
	return strings.ToUpper(strings.ReplaceAll(pair, "/", ""))
}

func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// intervalDuration возвращает длительность каноничного таймфрейма
func intervalDuration(interval string) time.Duration {
	switch interval {
	case Interval1m:
		return time.Minute
	case Interval5m:
		return 5 * time.Minute
	case Interval1h:
		return time.Hour
	case Interval1d:
		return 24 * time.Hour
	}
	return time.Minute
}
