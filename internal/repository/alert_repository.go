package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"spotalert/internal/models"
)

// alertColumns - полный список колонок таблицы alerts
const alertColumns = `id, user_id, server_id, type, exchange, pair, message, creation_date, listening_date, last_trigger, from_price, to_price, from_date, to_date, margin, repeat, snooze`

// alertColumnsNoMessage - колонки без message для hot-path выборок
const alertColumnsNoMessage = `id, user_id, server_id, type, exchange, pair, creation_date, listening_date, last_trigger, from_price, to_price, from_date, to_date, margin, repeat, snooze`

// eligibilityCondition - условие пригодности алерта к срабатыванию.
//
// Аргументы: $1 = now, $2 = допуск в секундах (полцикла, чтобы джиттер
// планировщика не приводил к пропуску), $3 = горизонт remainder
// (now + период проверки + допуск).
//
// Для range дополнительно проверяется опциональное окно дат, для
// remainder - только наступление from_date в пределах горизонта;
// repeat/margin/snooze для remainder игнорируются.
const eligibilityCondition = `
	listening_date <= $1
	AND (
		(type = 'remainder' AND from_date <= $3)
		OR (
			type <> 'remainder'
			AND (repeat > 0 OR margin > 0)
			AND (last_trigger IS NULL OR last_trigger + make_interval(hours => snooze::int) <= $1 + make_interval(secs => $2))
			AND (type <> 'range' OR (
				(from_date IS NULL OR from_date <= $1 + make_interval(secs => $2))
				AND (to_date IS NULL OR to_date >= $1)))
		)
	)`

// AlertRepository - работа с таблицей alerts (Postgres)
type AlertRepository struct {
	db DBTX
}

// NewAlertRepository создает новый экземпляр репозитория
func NewAlertRepository(db DBTX) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create вставляет алерт и присваивает ID
func (r *AlertRepository) Create(alert *models.Alert) error {
	query := `
		INSERT INTO alerts (user_id, server_id, type, exchange, pair, message, creation_date, listening_date, last_trigger, from_price, to_price, from_date, to_date, margin, repeat, snooze)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id`

	if alert.CreationDate.IsZero() {
		alert.CreationDate = time.Now().UTC()
	}
	if alert.ListeningDate.IsZero() {
		alert.ListeningDate = alert.CreationDate
	}

	return r.db.QueryRow(
		query,
		alert.UserID,
		alert.ServerID,
		alert.Type,
		strings.ToLower(alert.Exchange),
		strings.ToUpper(alert.Pair),
		alert.Message,
		alert.CreationDate,
		alert.ListeningDate,
		nullTime(alert.LastTrigger),
		alert.FromPrice,
		alert.ToPrice,
		nullTime(alert.FromDate),
		nullTime(alert.ToDate),
		alert.Margin,
		alert.Repeat,
		alert.Snooze,
	).Scan(&alert.ID)
}

// GetByID возвращает алерт целиком, включая message
func (r *AlertRepository) GetByID(id int64) (*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1`

	alert, err := scanAlert(r.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}
	return alert, nil
}

// GetMessagesByID догружает message для набора алертов
func (r *AlertRepository) GetMessagesByID(ids []int64) (map[int64]string, error) {
	if len(ids) == 0 {
		return map[int64]string{}, nil
	}

	query := `SELECT id, message FROM alerts WHERE id = ANY($1)`

	rows, err := r.db.Query(query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make(map[int64]string, len(ids))
	for rows.Next() {
		var id int64
		var message string
		if err := rows.Scan(&id, &message); err != nil {
			return nil, err
		}
		messages[id] = message
	}
	return messages, rows.Err()
}

// CountAlerts возвращает точное число алертов под фильтром
func (r *AlertRepository) CountAlerts(filter models.SelectionFilter) (int64, error) {
	where, args := filterClause(filter, 1)
	query := `SELECT COUNT(*) FROM alerts` + where

	var count int64
	if err := r.db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// GetAlertsOrderByPairUserIDID возвращает страницу алертов под фильтром.
// Порядок (pair, user_id, id) стабилен между страницами.
func (r *AlertRepository) GetAlertsOrderByPairUserIDID(filter models.SelectionFilter, offset, limit int64) ([]*models.Alert, error) {
	where, args := filterClause(filter, 1)
	query := `SELECT ` + alertColumns + ` FROM alerts` + where +
		fmt.Sprintf(` ORDER BY pair, user_id, id LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

// GetPairsByExchangesHavingRepeatAndDelayOverWithActiveRange возвращает
// комбинации exchange → {pair} с хотя бы одним пригодным алертом
func (r *AlertRepository) GetPairsByExchangesHavingRepeatAndDelayOverWithActiveRange(now time.Time, checkPeriod time.Duration) (map[string][]string, error) {
	query := `SELECT exchange, pair FROM alerts WHERE` + eligibilityCondition + ` GROUP BY exchange, pair`

	delta := checkPeriod.Seconds() / 2
	horizon := now.Add(checkPeriod + checkPeriod/2)

	rows, err := r.db.Query(query, now, delta, horizon)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pairs := make(map[string][]string)
	for rows.Next() {
		var exchange, pair string
		if err := rows.Scan(&exchange, &pair); err != nil {
			return nil, err
		}
		pairs[exchange] = append(pairs[exchange], pair)
	}
	return pairs, rows.Err()
}

// FetchAlertsWithoutMessageByExchangeAndPairHavingRepeatAndDelayOverWithActiveRange
// стримит пригодные алерты пары через consumer. Message не загружается.
// Курсор остается открыт на время callback'а.
func (r *AlertRepository) FetchAlertsWithoutMessageByExchangeAndPairHavingRepeatAndDelayOverWithActiveRange(
	now time.Time, exchange, pair string, checkPeriod time.Duration, consumer AlertConsumer) error {

	query := `SELECT ` + alertColumnsNoMessage + ` FROM alerts WHERE` + eligibilityCondition +
		` AND exchange = $4 AND pair = $5 ORDER BY id`

	delta := checkPeriod.Seconds() / 2
	horizon := now.Add(checkPeriod + checkPeriod/2)

	return r.streamAlertsNoMessage(consumer, query, now, delta, horizon, exchange, pair)
}

// FetchAlertsHavingRepeatZeroAndLastTriggerBefore стримит кандидатов
// retention sweep: repeat исчерпан, последнее срабатывание старше threshold
func (r *AlertRepository) FetchAlertsHavingRepeatZeroAndLastTriggerBefore(threshold time.Time, consumer AlertConsumer) error {
	query := `SELECT ` + alertColumnsNoMessage + ` FROM alerts
		WHERE type <> 'remainder' AND repeat = 0 AND last_trigger IS NOT NULL AND last_trigger < $1
		ORDER BY id`

	return r.streamAlertsNoMessage(consumer, query, threshold)
}

// FetchAlertsByTypeHavingToDateBefore стримит алерты типа с полностью
// истекшим окном активности
func (r *AlertRepository) FetchAlertsByTypeHavingToDateBefore(alertType models.AlertType, threshold time.Time, consumer AlertConsumer) error {
	query := `SELECT ` + alertColumnsNoMessage + ` FROM alerts
		WHERE type = $1 AND to_date IS NOT NULL AND to_date < $2
		ORDER BY id`

	return r.streamAlertsNoMessage(consumer, query, alertType, threshold)
}

// streamAlertsNoMessage выполняет запрос и прогоняет строки через consumer
func (r *AlertRepository) streamAlertsNoMessage(consumer AlertConsumer, query string, args ...interface{}) error {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		alert, err := scanAlertNoMessage(rows)
		if err != nil {
			return err
		}
		if err := consumer(alert); err != nil {
			return err
		}
	}
	return rows.Err()
}

// MatchedAlertBatchUpdates применяет мутацию совпадения одним statement'ом:
// сброс margin, repeat-1 (floor 0), last_trigger = now.
//
// Guard по last_trigger делает повторное применение с тем же now no-op'ом:
// retry после сбоя транзакции не декрементирует repeat дважды.
func (r *AlertRepository) MatchedAlertBatchUpdates(now time.Time, fn func(BatchAccumulator)) error {
	ids, err := collect(fn)
	if err != nil {
		return err
	}

	query := `
		UPDATE alerts
		SET margin = 0, repeat = GREATEST(repeat - 1, 0), last_trigger = $1
		WHERE id = ANY($2) AND (last_trigger IS NULL OR last_trigger <> $1)`

	_, err = r.db.Exec(query, now, pq.Array(ids))
	return err
}

// MarginAlertBatchUpdates сбрасывает margin зарегистрированных id
// (предупреждение однократное)
func (r *AlertRepository) MarginAlertBatchUpdates(fn func(BatchAccumulator)) error {
	ids, err := collect(fn)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`UPDATE alerts SET margin = 0 WHERE id = ANY($1)`, pq.Array(ids))
	return err
}

// AlertBatchDeletes удаляет зарегистрированные id одним statement'ом
func (r *AlertRepository) AlertBatchDeletes(fn func(BatchAccumulator)) error {
	ids, err := collect(fn)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`DELETE FROM alerts WHERE id = ANY($1)`, pq.Array(ids))
	return err
}

// DeleteByFilter удаляет алерты под непустым фильтром
func (r *AlertRepository) DeleteByFilter(filter models.SelectionFilter) (int64, error) {
	if filter.IsEmpty() {
		return 0, ErrEmptyFilter
	}

	where, args := filterClause(filter, 1)
	result, err := r.db.Exec(`DELETE FROM alerts`+where, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// UpdateServerIDByFilter переносит алерты под непустым фильтром на
// другого получателя
func (r *AlertRepository) UpdateServerIDByFilter(filter models.SelectionFilter, serverID int64) (int64, error) {
	if filter.IsEmpty() {
		return 0, ErrEmptyFilter
	}

	where, args := filterClause(filter, 2)
	args = append([]interface{}{serverID}, args...)

	result, err := r.db.Exec(`UPDATE alerts SET server_id = $1`+where, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// UpdateServerIDOfUserAndServerID переносит алерты пользователя с одного
// сервера на другого получателя (обычно ServerIDPrivate)
func (r *AlertRepository) UpdateServerIDOfUserAndServerID(userID, serverID, newServerID int64) (int64, error) {
	query := `UPDATE alerts SET server_id = $1 WHERE user_id = $2 AND server_id = $3`

	result, err := r.db.Exec(query, newServerID, userID, serverID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ============ Точечные обновления отдельных полей ============

// UpdateMessage обновляет пользовательский текст алерта
func (r *AlertRepository) UpdateMessage(id int64, message string) error {
	return r.updateField(id, `message`, message)
}

// UpdateMargin обновляет дистанцию раннего предупреждения
func (r *AlertRepository) UpdateMargin(id int64, margin decimal.Decimal) error {
	return r.updateField(id, `margin`, margin)
}

// UpdateRepeat обновляет оставшееся число срабатываний
func (r *AlertRepository) UpdateRepeat(id int64, repeat int16) error {
	return r.updateField(id, `repeat`, repeat)
}

// UpdateSnooze обновляет интервал между срабатываниями (часы)
func (r *AlertRepository) UpdateSnooze(id int64, snooze int16) error {
	return r.updateField(id, `snooze`, snooze)
}

// UpdateFromPrice обновляет нижнюю цену (range) или цену первой точки (trend)
func (r *AlertRepository) UpdateFromPrice(id int64, price decimal.Decimal) error {
	return r.updateField(id, `from_price`, price)
}

// UpdateToPrice обновляет верхнюю цену (range) или цену второй точки (trend)
func (r *AlertRepository) UpdateToPrice(id int64, price decimal.Decimal) error {
	return r.updateField(id, `to_price`, price)
}

// UpdateFromDate обновляет начало окна (range), первую точку (trend)
// или момент срабатывания (remainder)
func (r *AlertRepository) UpdateFromDate(id int64, date *time.Time) error {
	return r.updateField(id, `from_date`, nullTime(date))
}

// UpdateToDate обновляет конец окна (range) или вторую точку (trend)
func (r *AlertRepository) UpdateToDate(id int64, date *time.Time) error {
	return r.updateField(id, `to_date`, nullTime(date))
}

// UpdateListeningDate обновляет момент начала проверок
func (r *AlertRepository) UpdateListeningDate(id int64, date time.Time) error {
	return r.updateField(id, `listening_date`, date)
}

// updateField выполняет точечное обновление одной колонки
func (r *AlertRepository) updateField(id int64, column string, value interface{}) error {
	query := `UPDATE alerts SET ` + column + ` = $1 WHERE id = $2`

	result, err := r.db.Exec(query, value, id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrAlertNotFound
	}
	return nil
}

// ============ Вспомогательные функции сканирования ============

// rowScanner - общий интерфейс *sql.Row и *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanAlert читает строку со всеми колонками alertColumns
func scanAlert(row rowScanner) (*models.Alert, error) {
	alert := &models.Alert{}
	var lastTrigger, fromDate, toDate sql.NullTime
	var fromPrice, toPrice, margin decimal.NullDecimal

	err := row.Scan(
		&alert.ID,
		&alert.UserID,
		&alert.ServerID,
		&alert.Type,
		&alert.Exchange,
		&alert.Pair,
		&alert.Message,
		&alert.CreationDate,
		&alert.ListeningDate,
		&lastTrigger,
		&fromPrice,
		&toPrice,
		&fromDate,
		&toDate,
		&margin,
		&alert.Repeat,
		&alert.Snooze,
	)
	if err != nil {
		return nil, err
	}

	applyNullable(alert, lastTrigger, fromDate, toDate, fromPrice, toPrice, margin)
	return alert, nil
}

// scanAlertNoMessage читает строку с колонками alertColumnsNoMessage
func scanAlertNoMessage(row rowScanner) (*models.Alert, error) {
	alert := &models.Alert{}
	var lastTrigger, fromDate, toDate sql.NullTime
	var fromPrice, toPrice, margin decimal.NullDecimal

	err := row.Scan(
		&alert.ID,
		&alert.UserID,
		&alert.ServerID,
		&alert.Type,
		&alert.Exchange,
		&alert.Pair,
		&alert.CreationDate,
		&alert.ListeningDate,
		&lastTrigger,
		&fromPrice,
		&toPrice,
		&fromDate,
		&toDate,
		&margin,
		&alert.Repeat,
		&alert.Snooze,
	)
	if err != nil {
		return nil, err
	}

	applyNullable(alert, lastTrigger, fromDate, toDate, fromPrice, toPrice, margin)
	return alert, nil
}

func applyNullable(alert *models.Alert, lastTrigger, fromDate, toDate sql.NullTime, fromPrice, toPrice, margin decimal.NullDecimal) {
	if lastTrigger.Valid {
		t := lastTrigger.Time.UTC()
		alert.LastTrigger = &t
	}
	if fromDate.Valid {
		t := fromDate.Time.UTC()
		alert.FromDate = &t
	}
	if toDate.Valid {
		t := toDate.Time.UTC()
		alert.ToDate = &t
	}
	if fromPrice.Valid {
		alert.FromPrice = fromPrice.Decimal
	}
	if toPrice.Valid {
		alert.ToPrice = toPrice.Decimal
	}
	if margin.Valid {
		alert.Margin = margin.Decimal
	}
}

// nullTime конвертирует *time.Time в sql.NullTime
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// filterClause строит WHERE по SelectionFilter.
// firstArg - номер первого placeholder'а ($1, $2, ...).
// Пустой фильтр дает пустую строку (выборка без ограничений).
func filterClause(filter models.SelectionFilter, firstArg int) (string, []interface{}) {
	var conds []string
	var args []interface{}
	n := firstArg

	if filter.ServerID != nil {
		conds = append(conds, fmt.Sprintf("server_id = $%d", n))
		args = append(args, *filter.ServerID)
		n++
	}
	if filter.UserID != nil {
		conds = append(conds, fmt.Sprintf("user_id = $%d", n))
		args = append(args, *filter.UserID)
		n++
	}
	if filter.Type != nil {
		conds = append(conds, fmt.Sprintf("type = $%d", n))
		args = append(args, *filter.Type)
		n++
	}
	if filter.TickerOrPair != "" {
		if filter.IsPair() {
			conds = append(conds, fmt.Sprintf("pair = $%d", n))
		} else {
			// Тикер матчит любую из сторон пары
			conds = append(conds, fmt.Sprintf("(split_part(pair, '/', 1) = $%d OR split_part(pair, '/', 2) = $%d)", n, n))
		}
		args = append(args, filter.TickerOrPair)
		n++
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
