package repository

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"

	"spotalert/internal/models"
)

// ============================================================
// AlertRepository Tests
// ============================================================

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func alertRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "server_id", "type", "exchange", "pair", "message",
		"creation_date", "listening_date", "last_trigger",
		"from_price", "to_price", "from_date", "to_date",
		"margin", "repeat", "snooze",
	})
}

func alertRowsNoMessage() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "server_id", "type", "exchange", "pair",
		"creation_date", "listening_date", "last_trigger",
		"from_price", "to_price", "from_date", "to_date",
		"margin", "repeat", "snooze",
	})
}

func TestAlertRepositoryCreate(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(`INSERT INTO alerts`).
		WithArgs(
			int64(7), int64(10), models.AlertTypeRange, "binance", "ETH/USD", "to the moon",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), int16(3), int16(8),
		).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	repo := NewAlertRepository(db)
	alert := &models.Alert{
		UserID:    7,
		ServerID:  10,
		Type:      models.AlertTypeRange,
		Exchange:  "Binance",
		Pair:      "eth/usd",
		Message:   "to the moon",
		FromPrice: decimal.NewFromInt(100),
		ToPrice:   decimal.NewFromInt(200),
		Repeat:    3,
		Snooze:    8,
	}

	if err := repo.Create(alert); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if alert.ID != 42 {
		t.Errorf("ID = %d, ожидалось 42", alert.ID)
	}
	if alert.CreationDate.IsZero() || alert.ListeningDate.IsZero() {
		t.Error("Create должен проставлять creation_date и listening_date")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestAlertRepositoryGetByID(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	db, mock := newMock(t)

	mock.ExpectQuery(`SELECT (.+) FROM alerts WHERE id`).
		WithArgs(int64(42)).
		WillReturnRows(alertRows().AddRow(
			42, 7, 10, "range", "binance", "ETH/USD", "to the moon",
			now, now, nil,
			"100", "200", nil, nil,
			"5", 3, 8,
		))

	repo := NewAlertRepository(db)
	alert, err := repo.GetByID(42)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if alert.ID != 42 || alert.UserID != 7 || alert.ServerID != 10 {
		t.Errorf("неверные идентификаторы: %+v", alert)
	}
	if alert.Message != "to the moon" {
		t.Errorf("Message = %q", alert.Message)
	}
	if !alert.FromPrice.Equal(decimal.NewFromInt(100)) || !alert.ToPrice.Equal(decimal.NewFromInt(200)) {
		t.Errorf("цены: from=%s to=%s", alert.FromPrice, alert.ToPrice)
	}
	if alert.LastTrigger != nil || alert.FromDate != nil || alert.ToDate != nil {
		t.Error("nullable поля должны остаться nil")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestAlertRepositoryGetByIDNotFound(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(`SELECT (.+) FROM alerts WHERE id`).
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	repo := NewAlertRepository(db)
	if _, err := repo.GetByID(99); !errors.Is(err, ErrAlertNotFound) {
		t.Errorf("ожидалась ErrAlertNotFound, получено %v", err)
	}
}

func TestAlertRepositoryCountAlerts(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM alerts WHERE server_id = \$1 AND user_id = \$2`).
		WithArgs(int64(10), int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	repo := NewAlertRepository(db)
	count, err := repo.CountAlerts(models.FilterOfServerUser(10, 7))
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if count != 5 {
		t.Errorf("count = %d, ожидалось 5", count)
	}
}

func TestAlertRepositoryCountAlertsTickerFilter(t *testing.T) {
	db, mock := newMock(t)

	// Тикер матчит обе стороны пары
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM alerts WHERE user_id = \$1 AND \(split_part\(pair, '/', 1\) = \$2 OR split_part\(pair, '/', 2\) = \$2\)`).
		WithArgs(int64(7), "ETH").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	repo := NewAlertRepository(db)
	count, err := repo.CountAlerts(models.FilterOfUser(7).WithTickerOrPair("eth"))
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, ожидалось 2", count)
	}
}

func TestAlertRepositoryGetAlertsPagination(t *testing.T) {
	now := time.Now().UTC()
	db, mock := newMock(t)

	mock.ExpectQuery(`SELECT (.+) FROM alerts WHERE user_id = \$1 ORDER BY pair, user_id, id LIMIT \$2 OFFSET \$3`).
		WithArgs(int64(7), int64(25), int64(50)).
		WillReturnRows(alertRows().
			AddRow(1, 7, 0, "range", "binance", "BTC/USDT", "", now, now, nil, "1", "2", nil, nil, "0", 1, 0).
			AddRow(2, 7, 0, "trend", "binance", "ETH/USD", "", now, now, nil, "1", "2", now, now.Add(time.Hour), "0", 1, 0))

	repo := NewAlertRepository(db)
	alerts, err := repo.GetAlertsOrderByPairUserIDID(models.FilterOfUser(7), 50, 25)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("len = %d, ожидалось 2", len(alerts))
	}
	if alerts[1].Type != models.AlertTypeTrend || alerts[1].FromDate == nil {
		t.Errorf("второй алерт: %+v", alerts[1])
	}
}

func TestAlertRepositoryGetPairsByExchanges(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(`SELECT exchange, pair FROM alerts WHERE(.+)GROUP BY exchange, pair`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"exchange", "pair"}).
			AddRow("binance", "ETH/USD").
			AddRow("binance", "BTC/USDT").
			AddRow("", ""))

	repo := NewAlertRepository(db)
	pairs, err := repo.GetPairsByExchangesHavingRepeatAndDelayOverWithActiveRange(time.Now().UTC(), 15*time.Minute)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if len(pairs["binance"]) != 2 {
		t.Errorf("binance: %v", pairs["binance"])
	}
	// Remainder-алерты группируются под пустым exchange
	if len(pairs[""]) != 1 {
		t.Errorf("remainder group: %v", pairs[""])
	}
}

func TestAlertRepositoryFetchByExchangeAndPair(t *testing.T) {
	now := time.Now().UTC()
	db, mock := newMock(t)

	mock.ExpectQuery(`SELECT (.+) FROM alerts WHERE(.+)exchange = \$4 AND pair = \$5 ORDER BY id`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "binance", "ETH/USD").
		WillReturnRows(alertRowsNoMessage().
			AddRow(1, 7, 0, "range", "binance", "ETH/USD", now, now, nil, "100", "200", nil, nil, "0", 3, 0).
			AddRow(2, 8, 0, "range", "binance", "ETH/USD", now, now, nil, "150", "250", nil, nil, "0", 1, 0))

	repo := NewAlertRepository(db)

	var seen []int64
	err := repo.FetchAlertsWithoutMessageByExchangeAndPairHavingRepeatAndDelayOverWithActiveRange(
		now, "binance", "ETH/USD", 15*time.Minute,
		func(a *models.Alert) error {
			if a.Message != "" {
				t.Error("message должен быть опущен в hot-path выборке")
			}
			seen = append(seen, a.ID)
			return nil
		})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("seen = %v", seen)
	}
}

func TestAlertRepositoryFetchConsumerError(t *testing.T) {
	now := time.Now().UTC()
	db, mock := newMock(t)

	mock.ExpectQuery(`SELECT (.+) FROM alerts WHERE(.+)repeat = 0(.+)ORDER BY id`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(alertRowsNoMessage().
			AddRow(1, 7, 0, "range", "binance", "ETH/USD", now, now, now, "1", "2", nil, nil, "0", 0, 0))

	repo := NewAlertRepository(db)

	wantErr := errors.New("stop")
	err := repo.FetchAlertsHavingRepeatZeroAndLastTriggerBefore(now, func(a *models.Alert) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("ошибка consumer'а должна прерывать поток, получено %v", err)
	}
}

func TestAlertRepositoryMatchedAlertBatchUpdates(t *testing.T) {
	now := time.Now().UTC()
	db, mock := newMock(t)

	mock.ExpectExec(`UPDATE alerts\s+SET margin = 0, repeat = GREATEST\(repeat - 1, 0\), last_trigger = \$1`).
		WithArgs(now, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	repo := NewAlertRepository(db)
	err := repo.MatchedAlertBatchUpdates(now, func(b BatchAccumulator) {
		b.BatchID(1)
		b.BatchID(2)
		b.BatchID(1) // дубликат игнорируется
	})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestAlertRepositoryBatchEmptySet(t *testing.T) {
	db, _ := newMock(t)
	repo := NewAlertRepository(db)

	// Пустая партия - нарушение контракта, fail fast без запроса к БД
	err := repo.MatchedAlertBatchUpdates(time.Now(), func(b BatchAccumulator) {})
	if !errors.Is(err, ErrEmptyBatch) {
		t.Errorf("ожидалась ErrEmptyBatch, получено %v", err)
	}

	err = repo.MarginAlertBatchUpdates(func(b BatchAccumulator) {})
	if !errors.Is(err, ErrEmptyBatch) {
		t.Errorf("ожидалась ErrEmptyBatch, получено %v", err)
	}

	err = repo.AlertBatchDeletes(func(b BatchAccumulator) {})
	if !errors.Is(err, ErrEmptyBatch) {
		t.Errorf("ожидалась ErrEmptyBatch, получено %v", err)
	}
}

func TestAlertRepositoryMarginAlertBatchUpdates(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec(`UPDATE alerts SET margin = 0 WHERE id = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewAlertRepository(db)
	err := repo.MarginAlertBatchUpdates(func(b BatchAccumulator) {
		b.BatchID(5)
	})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
}

func TestAlertRepositoryAlertBatchDeletes(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec(`DELETE FROM alerts WHERE id = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	repo := NewAlertRepository(db)
	err := repo.AlertBatchDeletes(func(b BatchAccumulator) {
		b.BatchID(1)
		b.BatchID(2)
		b.BatchID(3)
	})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
}

func TestAlertRepositoryDeleteByFilter(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec(`DELETE FROM alerts WHERE server_id = \$1`).
		WithArgs(int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 4))

	repo := NewAlertRepository(db)
	deleted, err := repo.DeleteByFilter(models.FilterOfServer(10))
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if deleted != 4 {
		t.Errorf("deleted = %d, ожидалось 4", deleted)
	}
}

func TestAlertRepositoryDeleteByFilterEmpty(t *testing.T) {
	db, _ := newMock(t)
	repo := NewAlertRepository(db)

	if _, err := repo.DeleteByFilter(models.SelectionFilter{}); !errors.Is(err, ErrEmptyFilter) {
		t.Errorf("ожидалась ErrEmptyFilter, получено %v", err)
	}
	if _, err := repo.UpdateServerIDByFilter(models.SelectionFilter{}, 0); !errors.Is(err, ErrEmptyFilter) {
		t.Errorf("ожидалась ErrEmptyFilter, получено %v", err)
	}
}

func TestAlertRepositoryUpdateServerIDOfUserAndServerID(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec(`UPDATE alerts SET server_id = \$1 WHERE user_id = \$2 AND server_id = \$3`).
		WithArgs(models.ServerIDPrivate, int64(7), int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	repo := NewAlertRepository(db)
	migrated, err := repo.UpdateServerIDOfUserAndServerID(7, 10, models.ServerIDPrivate)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if migrated != 3 {
		t.Errorf("migrated = %d, ожидалось 3", migrated)
	}
}

func TestAlertRepositoryUpdateField(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec(`UPDATE alerts SET repeat = \$1 WHERE id = \$2`).
		WithArgs(int16(5), int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewAlertRepository(db)
	if err := repo.UpdateRepeat(42, 5); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
}

func TestAlertRepositoryUpdateFieldNotFound(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec(`UPDATE alerts SET snooze = \$1 WHERE id = \$2`).
		WithArgs(int16(2), int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewAlertRepository(db)
	if err := repo.UpdateSnooze(99, 2); !errors.Is(err, ErrAlertNotFound) {
		t.Errorf("ожидалась ErrAlertNotFound, получено %v", err)
	}
}

func TestAlertRepositoryGetMessagesByID(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(`SELECT id, message FROM alerts WHERE id = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "message"}).
			AddRow(1, "first").
			AddRow(2, "second"))

	repo := NewAlertRepository(db)
	messages, err := repo.GetMessagesByID([]int64{1, 2})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if messages[1] != "first" || messages[2] != "second" {
		t.Errorf("messages = %v", messages)
	}
}

func TestAlertRepositoryGetMessagesByIDEmpty(t *testing.T) {
	db, _ := newMock(t)
	repo := NewAlertRepository(db)

	messages, err := repo.GetMessagesByID(nil)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("ожидалась пустая map, получено %v", messages)
	}
}
