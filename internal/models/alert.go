package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AlertType определяет тип условия срабатывания алерта
type AlertType string

// Типы алертов
const (
	AlertTypeRange     AlertType = "range"     // цена внутри ценового диапазона
	AlertTypeTrend     AlertType = "trend"     // цена пересекла линию тренда
	AlertTypeRemainder AlertType = "remainder" // напоминание в заданный момент времени
)

// ServerIDPrivate - sentinel значение server_id, означающее личного
// получателя (direct message) вместо канала сервера
const ServerIDPrivate int64 = 0

// NewAlertID - sentinel значение id до вставки в БД
const NewAlertID int64 = 0

// MarginDisabled возвращает sentinel значение "раннее предупреждение отключено"
func MarginDisabled() decimal.Decimal {
	return decimal.Zero
}

// Ошибки валидации алертов
var (
	ErrInvalidAlertType   = errors.New("invalid alert type")
	ErrMissingPair        = errors.New("exchange and pair are required")
	ErrMissingDates       = errors.New("trend alert requires both from_date and to_date")
	ErrDatesOutOfOrder    = errors.New("from_date must be before to_date")
	ErrNegativeRepeat     = errors.New("repeat cannot be negative")
	ErrNegativeSnooze     = errors.New("snooze cannot be negative")
	ErrNegativeMargin     = errors.New("margin cannot be negative")
	ErrMissingRemindDate  = errors.New("remainder alert requires from_date")
)

// Alert представляет условие пользователя на пару (exchange, pair).
//
// Один и тот же базовый тип используется для всех трех видов алертов,
// применимость полей зависит от Type:
//
//   - range: FromPrice/ToPrice задают ценовой коридор, FromDate/ToDate -
//     опциональное окно активности (nil = не ограничено)
//   - trend: две точки (FromPrice, FromDate) и (ToPrice, ToDate) задают
//     линию, обе даты обязательны
//   - remainder: только FromDate (момент срабатывания) и Message;
//     Exchange/Pair, Margin, Repeat и Snooze для этого типа не имеют
//     смысла и игнорируются движком
//
// Мутации выполняются только через типизированные методы репозитория,
// никогда in-place.
type Alert struct {
	ID       int64 `json:"id" db:"id"`
	UserID   int64 `json:"user_id" db:"user_id"`
	ServerID int64 `json:"server_id" db:"server_id"` // ServerIDPrivate = личный получатель

	Type AlertType `json:"type" db:"type"`

	Exchange string `json:"exchange" db:"exchange"`
	Pair     string `json:"pair" db:"pair"` // "ETH/USD"

	// Message может быть опущено в hot-path выборках (см. fetch-методы
	// репозитория без message)
	Message string `json:"message" db:"message"`

	CreationDate  time.Time  `json:"creation_date" db:"creation_date"`
	ListeningDate time.Time  `json:"listening_date" db:"listening_date"`
	LastTrigger   *time.Time `json:"last_trigger,omitempty" db:"last_trigger"`

	FromPrice decimal.Decimal `json:"from_price" db:"from_price"`
	ToPrice   decimal.Decimal `json:"to_price" db:"to_price"`
	FromDate  *time.Time      `json:"from_date,omitempty" db:"from_date"`
	ToDate    *time.Time      `json:"to_date,omitempty" db:"to_date"`

	// Margin - дистанция раннего предупреждения; decimal.Zero = отключено
	Margin decimal.Decimal `json:"margin" db:"margin"`

	// Repeat - оставшееся число срабатываний; 0 = больше не срабатывает,
	// но запись живет до retention sweep
	Repeat int16 `json:"repeat" db:"repeat"`

	// Snooze - минимальный интервал между срабатываниями, в часах
	Snooze int16 `json:"snooze" db:"snooze"`
}

// Validate проверяет инварианты алерта в зависимости от типа.
//
// Для range нормализует порядок цен (FromPrice <= ToPrice) вместо
// возврата ошибки - пользовательский ввод просто переставляется.
func (a *Alert) Validate() error {
	if a.Repeat < 0 {
		return ErrNegativeRepeat
	}
	if a.Snooze < 0 {
		return ErrNegativeSnooze
	}

	switch a.Type {
	case AlertTypeRange:
		if a.Exchange == "" || a.Pair == "" {
			return ErrMissingPair
		}
		if a.Margin.IsNegative() {
			return ErrNegativeMargin
		}
		// Нормализация коридора: from <= to
		if a.FromPrice.GreaterThan(a.ToPrice) {
			a.FromPrice, a.ToPrice = a.ToPrice, a.FromPrice
		}
		if a.FromDate != nil && a.ToDate != nil && a.FromDate.After(*a.ToDate) {
			return ErrDatesOutOfOrder
		}
	case AlertTypeTrend:
		if a.Exchange == "" || a.Pair == "" {
			return ErrMissingPair
		}
		if a.Margin.IsNegative() {
			return ErrNegativeMargin
		}
		if a.FromDate == nil || a.ToDate == nil {
			return ErrMissingDates
		}
		if !a.FromDate.Before(*a.ToDate) {
			return ErrDatesOutOfOrder
		}
	case AlertTypeRemainder:
		if a.FromDate == nil {
			return ErrMissingRemindDate
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidAlertType, a.Type)
	}

	return nil
}

// IsPrivate возвращает true, если получатель алерта - личное сообщение
func (a *Alert) IsPrivate() bool {
	return a.ServerID == ServerIDPrivate
}

// HasMargin возвращает true, если настроено раннее предупреждение
func (a *Alert) HasMargin() bool {
	return a.Type != AlertTypeRemainder && a.Margin.IsPositive()
}

// Ticker возвращает базовый тикер пары ("ETH" для "ETH/USD")
func (a *Alert) Ticker() string {
	if idx := strings.IndexByte(a.Pair, '/'); idx > 0 {
		return a.Pair[:idx]
	}
	return a.Pair
}

// ParseAlertType разбирает строковое представление типа алерта
func ParseAlertType(s string) (AlertType, error) {
	switch AlertType(strings.ToLower(s)) {
	case AlertTypeRange:
		return AlertTypeRange, nil
	case AlertTypeTrend:
		return AlertTypeTrend, nil
	case AlertTypeRemainder:
		return AlertTypeRemainder, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAlertType, s)
}
