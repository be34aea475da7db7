package service

import (
	"errors"
	"strconv"
	"time"

	"spotalert/internal/engine"
	"spotalert/internal/models"
	"spotalert/internal/repository"
	"spotalert/pkg/utils"
)

// Лимиты пагинации списков алертов
const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// AlertService предоставляет бизнес-логику управления алертами.
//
// Отвечает за:
// - Создание алертов с валидацией инвариантов типа
// - Пагинированные списки под SelectionFilter
// - Точечные обновления полей
// - Массовые delete/migrate с уведомлением затронутых владельцев
//
// Массовые операции создают DELETED/MIGRATED уведомления в той же
// транзакции, что и мутация: у владельца никогда не будет уведомления
// об операции, которая откатилась.
type AlertService struct {
	txm      repository.TxManager
	notifier Notifier
	log      *utils.Logger
}

// NewAlertService создает сервис алертов
func NewAlertService(txm repository.TxManager, log *utils.Logger) *AlertService {
	return &AlertService{
		txm: txm,
		log: log.WithComponent("alerts"),
	}
}

// SetNotifier устанавливает получателя пинков о новых уведомлениях.
//
// Вызывается после инициализации сервиса доставки в main.go.
func (s *AlertService) SetNotifier(n Notifier) {
	s.notifier = n
}

// CreateAlert валидирует и сохраняет алерт, присваивая ID
func (s *AlertService) CreateAlert(alert *models.Alert) error {
	if err := alert.Validate(); err != nil {
		return err
	}
	return s.txm.Transactional(func(tx repository.Tx) error {
		return tx.Alerts().Create(alert)
	})
}

// GetAlert возвращает алерт целиком, включая message
func (s *AlertService) GetAlert(id int64) (*models.Alert, error) {
	var alert *models.Alert
	err := s.txm.Transactional(func(tx repository.Tx) error {
		var err error
		alert, err = tx.Alerts().GetByID(id)
		return err
	})
	return alert, err
}

// ListAlerts возвращает страницу алертов под фильтром и точное общее
// число строк под тем же фильтром
func (s *AlertService) ListAlerts(filter models.SelectionFilter, offset, limit int64) ([]*models.Alert, int64, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	var (
		alerts []*models.Alert
		total  int64
	)
	err := s.txm.Transactional(func(tx repository.Tx) error {
		var err error
		total, err = tx.Alerts().CountAlerts(filter)
		if err != nil {
			return err
		}
		alerts, err = tx.Alerts().GetAlertsOrderByPairUserIDID(filter, offset, limit)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return alerts, total, nil
}

// UpdateMessage обновляет пользовательский текст алерта
func (s *AlertService) UpdateMessage(id int64, message string) error {
	return s.txm.Transactional(func(tx repository.Tx) error {
		return tx.Alerts().UpdateMessage(id, message)
	})
}

// UpdateRepeat обновляет остаток срабатываний алерта
func (s *AlertService) UpdateRepeat(id int64, repeat int16) error {
	if repeat < 0 {
		return models.ErrNegativeRepeat
	}
	return s.txm.Transactional(func(tx repository.Tx) error {
		return tx.Alerts().UpdateRepeat(id, repeat)
	})
}

// UpdateSnooze обновляет минимальный интервал между срабатываниями
func (s *AlertService) UpdateSnooze(id int64, snooze int16) error {
	if snooze < 0 {
		return models.ErrNegativeSnooze
	}
	return s.txm.Transactional(func(tx repository.Tx) error {
		return tx.Alerts().UpdateSnooze(id, snooze)
	})
}

// DeleteAlerts удаляет алерты под непустым фильтром и уведомляет каждого
// затронутого владельца числом удаленных записей
func (s *AlertService) DeleteAlerts(filter models.SelectionFilter) (int64, error) {
	var removed int64
	err := s.txm.Transactional(func(tx repository.Tx) error {
		perUser, err := ownersUnderFilter(tx, filter)
		if err != nil {
			return err
		}

		removed, err = tx.Alerts().DeleteByFilter(filter)
		if err != nil {
			return err
		}

		for userID, count := range perUser {
			err := s.enqueueAdminNotification(tx, userID, models.NotificationTypeDeleted, map[string]string{
				models.FieldCount: strconv.FormatInt(count, 10),
			})
			if err != nil {
				return err
			}
		}

		if removed > 0 && s.notifier != nil {
			tx.AfterCommit(s.notifier.Notify)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("Alerts removed by filter", utils.Count(int(removed)))
	return removed, nil
}

// MigrateAlerts переносит алерты под непустым фильтром на личный канал
// владельцев и уведомляет каждого затронутого владельца
func (s *AlertService) MigrateAlerts(filter models.SelectionFilter) (int64, error) {
	var moved int64
	err := s.txm.Transactional(func(tx repository.Tx) error {
		perUser, err := ownersUnderFilter(tx, filter)
		if err != nil {
			return err
		}

		moved, err = tx.Alerts().UpdateServerIDByFilter(filter, models.ServerIDPrivate)
		if err != nil {
			return err
		}

		for userID, count := range perUser {
			err := s.enqueueAdminNotification(tx, userID, models.NotificationTypeMigrated, map[string]string{
				models.FieldCount: strconv.FormatInt(count, 10),
			})
			if err != nil {
				return err
			}
		}

		if moved > 0 && s.notifier != nil {
			tx.AfterCommit(s.notifier.Notify)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("Alerts migrated to private recipients", utils.Count(int(moved)))
	return moved, nil
}

// enqueueAdminNotification ставит уведомление об административной
// операции в личный канал владельца
func (s *AlertService) enqueueAdminNotification(tx repository.Tx, userID int64, ntype models.NotificationType, fields map[string]string) error {
	notif := &models.Notification{
		Type:          ntype,
		RecipientType: models.RecipientTypeUser,
		RecipientID:   userID,
		UserID:        userID,
		CreationDate:  time.Now().UTC(),
		Fields:        fields,
	}

	settings, err := tx.UserSettings().Get(userID)
	switch {
	case err == nil:
		notif.Locale = settings.Locale
	case !errors.Is(err, repository.ErrSettingsNotFound):
		return err
	}

	if err := tx.Notifications().Create(notif); err != nil {
		return err
	}
	engine.RecordNotificationCreated(string(ntype))
	return nil
}

// ownersUnderFilter возвращает владелец → число его алертов под фильтром.
// Считается до мутации: после delete/migrate выборка уже пуста.
func ownersUnderFilter(tx repository.Tx, filter models.SelectionFilter) (map[int64]int64, error) {
	if filter.IsEmpty() {
		return nil, repository.ErrEmptyFilter
	}

	total, err := tx.Alerts().CountAlerts(filter)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, nil
	}

	alerts, err := tx.Alerts().GetAlertsOrderByPairUserIDID(filter, 0, total)
	if err != nil {
		return nil, err
	}

	perUser := make(map[int64]int64)
	for _, a := range alerts {
		perUser[a.UserID]++
	}
	return perUser, nil
}
