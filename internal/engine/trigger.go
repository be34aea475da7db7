package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"spotalert/internal/exchange"
	"spotalert/internal/models"
)

// Outcome - результат проверки алерта против свечи
type Outcome int

// Результаты проверки
const (
	OutcomeNone    Outcome = iota // условие не выполнено
	OutcomeMatched                // полное совпадение
	OutcomeMargin                 // раннее предупреждение (однократное)
)

// Evaluate проверяет типоспецифичный предикат алерта против свечи.
//
// candle может быть nil только для remainder-алертов (им свечи не нужны).
// closeOnly переключает трендовый и диапазонный предикаты с полного
// диапазона свечи low..high на тело open..close.
func Evaluate(a *models.Alert, candle *exchange.Candlestick, now time.Time, closeOnly bool) Outcome {
	switch a.Type {
	case models.AlertTypeRange:
		if candle == nil {
			return OutcomeNone
		}
		return demoteExhausted(a, rangeOutcome(a, candle, now, closeOnly))
	case models.AlertTypeTrend:
		if candle == nil {
			return OutcomeNone
		}
		return demoteExhausted(a, trendOutcome(a, candle, closeOnly))
	case models.AlertTypeRemainder:
		if a.FromDate != nil && !now.Before(*a.FromDate) {
			return OutcomeMatched
		}
	}
	return OutcomeNone
}

// demoteExhausted понижает полное совпадение алерта с исчерпанным
// repeat: такой алерт пригоден только ради одноразового
// margin-предупреждения и больше не порождает MATCHING-уведомлений.
func demoteExhausted(a *models.Alert, out Outcome) Outcome {
	if out != OutcomeMatched || a.Repeat != 0 {
		return out
	}
	if a.HasMargin() {
		return OutcomeMargin
	}
	return OutcomeNone
}

// rangeOutcome - совпадение, если диапазон свечи пересекает коридор
// [FromPrice, ToPrice] и текущий момент внутри опционального окна дат;
// margin-предупреждение, если пересечения еще нет, но ближайшая граница
// коридора ближе Margin.
func rangeOutcome(a *models.Alert, candle *exchange.Candlestick, now time.Time, closeOnly bool) Outcome {
	if a.FromDate != nil && now.Before(*a.FromDate) {
		return OutcomeNone
	}
	if a.ToDate != nil && now.After(*a.ToDate) {
		return OutcomeNone
	}

	low, high := candleBand(candle, closeOnly)
	if intersects(low, high, a.FromPrice, a.ToPrice) {
		return OutcomeMatched
	}
	if a.HasMargin() && bandDistance(low, high, a.FromPrice, a.ToPrice).LessThanOrEqual(a.Margin) {
		return OutcomeMargin
	}
	return OutcomeNone
}

// trendOutcome - совпадение, если диапазон свечи содержит значение линии
// тренда в момент закрытия свечи; margin-предупреждение аналогично range.
func trendOutcome(a *models.Alert, candle *exchange.Candlestick, closeOnly bool) Outcome {
	if candle.CloseTime.Before(*a.FromDate) {
		return OutcomeNone
	}

	value := TrendValueAt(a, candle.CloseTime)
	low, high := candleBand(candle, closeOnly)
	if intersects(low, high, value, value) {
		return OutcomeMatched
	}
	if a.HasMargin() && bandDistance(low, high, value, value).LessThanOrEqual(a.Margin) {
		return OutcomeMargin
	}
	return OutcomeNone
}

// TrendValueAt возвращает значение линии тренда в момент t линейной
// интерполяцией между точками (FromPrice, FromDate) и (ToPrice, ToDate).
// За пределами отрезка значение зажимается к ближайшей точке.
func TrendValueAt(a *models.Alert, t time.Time) decimal.Decimal {
	from, to := *a.FromDate, *a.ToDate
	if !t.After(from) {
		return a.FromPrice
	}
	if !t.Before(to) {
		return a.ToPrice
	}

	elapsed := decimal.NewFromInt(int64(t.Sub(from)))
	total := decimal.NewFromInt(int64(to.Sub(from)))
	return a.FromPrice.Add(a.ToPrice.Sub(a.FromPrice).Mul(elapsed).Div(total))
}

// candleBand возвращает ценовую полосу свечи: полный диапазон low..high
// либо тело open..close в close-only режиме
func candleBand(c *exchange.Candlestick, closeOnly bool) (decimal.Decimal, decimal.Decimal) {
	if !closeOnly {
		return c.Low, c.High
	}
	if c.Open.LessThanOrEqual(c.Close) {
		return c.Open, c.Close
	}
	return c.Close, c.Open
}

// intersects возвращает true, если отрезки [aLow, aHigh] и [bLow, bHigh]
// пересекаются
func intersects(aLow, aHigh, bLow, bHigh decimal.Decimal) bool {
	return aLow.LessThanOrEqual(bHigh) && aHigh.GreaterThanOrEqual(bLow)
}

// bandDistance возвращает расстояние между непересекающимися отрезками
func bandDistance(aLow, aHigh, bLow, bHigh decimal.Decimal) decimal.Decimal {
	if aHigh.LessThan(bLow) {
		return bLow.Sub(aHigh)
	}
	if aLow.GreaterThan(bHigh) {
		return aLow.Sub(bHigh)
	}
	return decimal.Zero
}
