package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"spotalert/internal/models"
)

// UserSettingsRepository - работа с таблицей user_settings (Postgres)
type UserSettingsRepository struct {
	db DBTX
}

// NewUserSettingsRepository создает новый экземпляр репозитория
func NewUserSettingsRepository(db DBTX) *UserSettingsRepository {
	return &UserSettingsRepository{db: db}
}

// Get возвращает настройки пользователя
func (r *UserSettingsRepository) Get(userID int64) (*models.UserSettings, error) {
	query := `
		SELECT user_id, locale, timezone, last_access, creation_date
		FROM user_settings
		WHERE user_id = $1`

	s := &models.UserSettings{}
	err := r.db.QueryRow(query, userID).Scan(
		&s.UserID,
		&s.Locale,
		&s.Timezone,
		&s.LastAccess,
		&s.CreationDate,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSettingsNotFound
		}
		return nil, err
	}
	return s, nil
}

// Upsert создает или обновляет настройки пользователя
func (r *UserSettingsRepository) Upsert(settings *models.UserSettings) error {
	query := `
		INSERT INTO user_settings (user_id, locale, timezone, last_access, creation_date)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET locale = EXCLUDED.locale, timezone = EXCLUDED.timezone, last_access = EXCLUDED.last_access`

	now := time.Now().UTC()
	if settings.CreationDate.IsZero() {
		settings.CreationDate = now
	}
	if settings.LastAccess.IsZero() {
		settings.LastAccess = now
	}
	if settings.Locale == "" {
		settings.Locale = models.DefaultLocale
	}
	if settings.Timezone == "" {
		settings.Timezone = models.DefaultTimezone
	}

	_, err := r.db.Exec(query,
		settings.UserID,
		settings.Locale,
		settings.Timezone,
		settings.LastAccess,
		settings.CreationDate,
	)
	return err
}

// UpdateLocale обновляет локаль пользователя
func (r *UserSettingsRepository) UpdateLocale(userID int64, locale string) error {
	return r.updateField(userID, `locale`, locale)
}

// UpdateTimezone обновляет таймзону пользователя
func (r *UserSettingsRepository) UpdateTimezone(userID int64, timezone string) error {
	return r.updateField(userID, `timezone`, timezone)
}

// UpdateLastAccess обновляет момент последней активности
func (r *UserSettingsRepository) UpdateLastAccess(userID int64, at time.Time) error {
	return r.updateField(userID, `last_access`, at)
}

// UserBatchDeletes удаляет настройки пользователей пачкой
func (r *UserSettingsRepository) UserBatchDeletes(fn func(BatchAccumulator)) error {
	ids, err := collect(fn)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`DELETE FROM user_settings WHERE user_id = ANY($1)`, pq.Array(ids))
	return err
}

func (r *UserSettingsRepository) updateField(userID int64, column string, value interface{}) error {
	query := `UPDATE user_settings SET ` + column + ` = $1 WHERE user_id = $2`

	result, err := r.db.Exec(query, value, userID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSettingsNotFound
	}
	return nil
}

// ServerSettingsRepository - работа с таблицей server_settings (Postgres)
type ServerSettingsRepository struct {
	db DBTX
}

// NewServerSettingsRepository создает новый экземпляр репозитория
func NewServerSettingsRepository(db DBTX) *ServerSettingsRepository {
	return &ServerSettingsRepository{db: db}
}

// Get возвращает настройки сервера
func (r *ServerSettingsRepository) Get(serverID int64) (*models.ServerSettings, error) {
	query := `
		SELECT server_id, timezone, channel_id, last_access, creation_date
		FROM server_settings
		WHERE server_id = $1`

	s := &models.ServerSettings{}
	err := r.db.QueryRow(query, serverID).Scan(
		&s.ServerID,
		&s.Timezone,
		&s.ChannelID,
		&s.LastAccess,
		&s.CreationDate,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSettingsNotFound
		}
		return nil, err
	}
	return s, nil
}

// Upsert создает или обновляет настройки сервера
func (r *ServerSettingsRepository) Upsert(settings *models.ServerSettings) error {
	query := `
		INSERT INTO server_settings (server_id, timezone, channel_id, last_access, creation_date)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (server_id) DO UPDATE
		SET timezone = EXCLUDED.timezone, channel_id = EXCLUDED.channel_id, last_access = EXCLUDED.last_access`

	now := time.Now().UTC()
	if settings.CreationDate.IsZero() {
		settings.CreationDate = now
	}
	if settings.LastAccess.IsZero() {
		settings.LastAccess = now
	}
	if settings.Timezone == "" {
		settings.Timezone = models.DefaultTimezone
	}

	_, err := r.db.Exec(query,
		settings.ServerID,
		settings.Timezone,
		settings.ChannelID,
		settings.LastAccess,
		settings.CreationDate,
	)
	return err
}

// UpdateTimezone обновляет таймзону сервера
func (r *ServerSettingsRepository) UpdateTimezone(serverID int64, timezone string) error {
	return r.updateField(serverID, `timezone`, timezone)
}

// UpdateChannelID обновляет канал уведомлений сервера
func (r *ServerSettingsRepository) UpdateChannelID(serverID int64, channelID int64) error {
	return r.updateField(serverID, `channel_id`, channelID)
}

// UpdateLastAccess обновляет момент последней активности
func (r *ServerSettingsRepository) UpdateLastAccess(serverID int64, at time.Time) error {
	return r.updateField(serverID, `last_access`, at)
}

// Delete удаляет настройки сервера (бот удален с сервера)
func (r *ServerSettingsRepository) Delete(serverID int64) error {
	result, err := r.db.Exec(`DELETE FROM server_settings WHERE server_id = $1`, serverID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSettingsNotFound
	}
	return nil
}

func (r *ServerSettingsRepository) updateField(serverID int64, column string, value interface{}) error {
	query := `UPDATE server_settings SET ` + column + ` = $1 WHERE server_id = $2`

	result, err := r.db.Exec(query, value, serverID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSettingsNotFound
	}
	return nil
}

// Статическая проверка соответствия интерфейсам
var _ AlertRepositoryInterface = (*AlertRepository)(nil)
var _ NotificationRepositoryInterface = (*NotificationRepository)(nil)
var _ UserSettingsRepositoryInterface = (*UserSettingsRepository)(nil)
var _ ServerSettingsRepositoryInterface = (*ServerSettingsRepository)(nil)
