package repository

import (
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/lib/pq"

	"spotalert/internal/models"
)

var fieldsJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// notificationColumns - полный список колонок таблицы notifications
const notificationColumns = `id, creation_date, status, type, recipient_type, recipient_id, user_id, locale, fields`

// NotificationRepository - работа с таблицей notifications (Postgres)
type NotificationRepository struct {
	db DBTX
}

// NewNotificationRepository создает новый экземпляр репозитория
func NewNotificationRepository(db DBTX) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create вставляет уведомление и присваивает ID.
// Пустой статус по умолчанию NEW.
func (r *NotificationRepository) Create(notif *models.Notification) error {
	query := `
		INSERT INTO notifications (creation_date, status, type, recipient_type, recipient_id, user_id, locale, fields)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	if notif.CreationDate.IsZero() {
		notif.CreationDate = time.Now().UTC()
	}
	if notif.Status == "" {
		notif.Status = models.NotificationStatusNew
	}
	if notif.Locale == "" {
		notif.Locale = models.DefaultLocale
	}

	fields, err := fieldsJSON.Marshal(notif.Fields)
	if err != nil {
		return err
	}

	return r.db.QueryRow(
		query,
		notif.CreationDate,
		notif.Status,
		notif.Type,
		notif.RecipientType,
		notif.RecipientID,
		notif.UserID,
		notif.Locale,
		fields,
	).Scan(&notif.ID)
}

// GetNewOrderByCreationDate возвращает до limit уведомлений в статусе
// NEW, старые первыми
func (r *NotificationRepository) GetNewOrderByCreationDate(limit int) ([]*models.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE status = $1
		ORDER BY creation_date, id
		LIMIT $2`

	return r.queryNotifications(query, models.NotificationStatusNew, limit)
}

// GetRecent возвращает последние уведомления независимо от статуса
func (r *NotificationRepository) GetRecent(limit int) ([]*models.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		ORDER BY creation_date DESC, id DESC
		LIMIT $1`

	return r.queryNotifications(query, limit)
}

// Count возвращает общее число уведомлений
func (r *NotificationRepository) Count() (int64, error) {
	var count int64
	err := r.db.QueryRow(`SELECT COUNT(*) FROM notifications`).Scan(&count)
	return count, err
}

// StatusBatchUpdate переводит зарегистрированные id в новый статус
// одним statement'ом
func (r *NotificationRepository) StatusBatchUpdate(status models.NotificationStatus, fn func(BatchAccumulator)) error {
	ids, err := collect(fn)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`UPDATE notifications SET status = $1 WHERE id = ANY($2)`, status, pq.Array(ids))
	return err
}

// StatusRecipientBatchUpdate переводит зарегистрированные id в новый
// статус и ретаргетирует на другого получателя (миграция server → user)
func (r *NotificationRepository) StatusRecipientBatchUpdate(status models.NotificationStatus, recipientType models.RecipientType, recipientID int64, fn func(BatchAccumulator)) error {
	ids, err := collect(fn)
	if err != nil {
		return err
	}

	query := `
		UPDATE notifications
		SET status = $1, recipient_type = $2, recipient_id = $3
		WHERE id = ANY($4)`

	_, err = r.db.Exec(query, status, recipientType, recipientID, pq.Array(ids))
	return err
}

// StatusOfRecipientUpdate переводит все уведомления получателя в новый статус
func (r *NotificationRepository) StatusOfRecipientUpdate(status models.NotificationStatus, recipientType models.RecipientType, recipientID int64) (int64, error) {
	query := `UPDATE notifications SET status = $1 WHERE recipient_type = $2 AND recipient_id = $3`

	result, err := r.db.Exec(query, status, recipientType, recipientID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// UnblockStatusOfDiscordUser возвращает BLOCKED уведомления пользователя
// в NEW. Вызывается, когда получатель снова взаимодействует с ботом.
func (r *NotificationRepository) UnblockStatusOfDiscordUser(userID int64) (int64, error) {
	query := `
		UPDATE notifications
		SET status = $1
		WHERE status = $2 AND recipient_type = $3 AND recipient_id = $4`

	result, err := r.db.Exec(query,
		models.NotificationStatusNew,
		models.NotificationStatusBlocked,
		models.RecipientTypeUser,
		userID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// NotificationBatchDeletes удаляет зарегистрированные id одним statement'ом
func (r *NotificationRepository) NotificationBatchDeletes(fn func(BatchAccumulator)) error {
	ids, err := collect(fn)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`DELETE FROM notifications WHERE id = ANY($1)`, pq.Array(ids))
	return err
}

// DeleteHavingCreationDateBefore удаляет уведомления старше cutoff
// независимо от статуса (retention)
func (r *NotificationRepository) DeleteHavingCreationDateBefore(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM notifications WHERE creation_date < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// queryNotifications выполняет запрос и сканирует все строки
func (r *NotificationRepository) queryNotifications(query string, args ...interface{}) ([]*models.Notification, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifs []*models.Notification
	for rows.Next() {
		notif := &models.Notification{}
		var fields []byte
		err := rows.Scan(
			&notif.ID,
			&notif.CreationDate,
			&notif.Status,
			&notif.Type,
			&notif.RecipientType,
			&notif.RecipientID,
			&notif.UserID,
			&notif.Locale,
			&fields,
		)
		if err != nil {
			return nil, err
		}
		if len(fields) > 0 {
			if err := fieldsJSON.Unmarshal(fields, &notif.Fields); err != nil {
				return nil, err
			}
		}
		notifs = append(notifs, notif)
	}
	return notifs, rows.Err()
}
