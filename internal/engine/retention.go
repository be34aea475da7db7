package engine

import (
	"time"

	"spotalert/internal/models"
	"spotalert/internal/repository"
	"spotalert/pkg/utils"
)

// RunRetention выполняет retention sweep'ы хранилища:
//
//   - алерты с исчерпанным repeat, чье последнее срабатывание старше
//     окна хранения
//   - range/trend алерты, чье окно активности полностью истекло
//
// Каждая категория идет отдельной транзакцией: отказ одной не
// откатывает остальные.
func (m *Matcher) RunRetention(now time.Time) {
	threshold := now.Add(-m.cfg.RetentionPeriod)

	if n, err := m.sweepExhausted(threshold); err != nil {
		m.log.Error("Exhausted alert sweep failed", utils.Err(err))
	} else {
		RecordSweep("repeat_exhausted", n)
	}

	for _, t := range []models.AlertType{models.AlertTypeRange, models.AlertTypeTrend} {
		if n, err := m.sweepElapsedWindow(t, now); err != nil {
			m.log.Error("Elapsed window sweep failed",
				utils.String("alert_type", string(t)), utils.Err(err))
		} else {
			RecordSweep("window_elapsed", n)
		}
	}
}

// sweepExhausted удаляет алерты, у которых repeat обнулился и последнее
// срабатывание старше threshold
func (m *Matcher) sweepExhausted(threshold time.Time) (int, error) {
	var removed int
	err := m.txm.Transactional(func(tx repository.Tx) error {
		var ids []int64
		err := tx.Alerts().FetchAlertsHavingRepeatZeroAndLastTriggerBefore(threshold, func(a *models.Alert) error {
			ids = append(ids, a.ID)
			return nil
		})
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		removed = len(ids)
		return tx.Alerts().AlertBatchDeletes(func(b repository.BatchAccumulator) {
			for _, id := range ids {
				b.BatchID(id)
			}
		})
	})
	return removed, err
}

// sweepElapsedWindow удаляет алерты типа, чье окно ToDate полностью
// истекло к моменту now
func (m *Matcher) sweepElapsedWindow(alertType models.AlertType, now time.Time) (int, error) {
	var removed int
	err := m.txm.Transactional(func(tx repository.Tx) error {
		var ids []int64
		err := tx.Alerts().FetchAlertsByTypeHavingToDateBefore(alertType, now, func(a *models.Alert) error {
			ids = append(ids, a.ID)
			return nil
		})
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		removed = len(ids)
		return tx.Alerts().AlertBatchDeletes(func(b repository.BatchAccumulator) {
			for _, id := range ids {
				b.BatchID(id)
			}
		})
	})
	return removed, err
}
