package models

import "strings"

// SelectionFilter - неизменяемая спецификация выборки алертов.
//
// Используется для массовых операций (list/count/delete/migrate):
// каждое заполненное поле сужает выборку, nil-поля игнорируются.
// Сужение аддитивно: With-методы возвращают новую, более
// ограничительную копию, исходный фильтр не меняется.
type SelectionFilter struct {
	ServerID     *int64
	UserID       *int64
	Type         *AlertType
	TickerOrPair string // "ETH" матчит обе стороны пары, "ETH/USD" - точно
}

// FilterOfServer возвращает фильтр по серверу
func FilterOfServer(serverID int64) SelectionFilter {
	return SelectionFilter{ServerID: &serverID}
}

// FilterOfUser возвращает фильтр по владельцу (по всем серверам)
func FilterOfUser(userID int64) SelectionFilter {
	return SelectionFilter{UserID: &userID}
}

// FilterOfServerUser возвращает фильтр по паре (сервер, владелец)
func FilterOfServerUser(serverID, userID int64) SelectionFilter {
	return SelectionFilter{ServerID: &serverID, UserID: &userID}
}

// WithType возвращает копию фильтра, суженную по типу алерта
func (f SelectionFilter) WithType(t AlertType) SelectionFilter {
	f.Type = &t
	return f
}

// WithTickerOrPair возвращает копию фильтра, суженную по тикеру или паре
func (f SelectionFilter) WithTickerOrPair(tickerOrPair string) SelectionFilter {
	f.TickerOrPair = strings.ToUpper(tickerOrPair)
	return f
}

// IsPair возвращает true, если TickerOrPair задает полную пару
func (f SelectionFilter) IsPair() bool {
	return strings.ContainsRune(f.TickerOrPair, '/')
}

// IsEmpty возвращает true, если фильтр не ограничивает выборку.
// Массовые delete/migrate с пустым фильтром запрещены (fail fast).
func (f SelectionFilter) IsEmpty() bool {
	return f.ServerID == nil && f.UserID == nil && f.Type == nil && f.TickerOrPair == ""
}
