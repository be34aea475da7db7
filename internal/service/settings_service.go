package service

import (
	"errors"
	"time"

	"spotalert/internal/models"
	"spotalert/internal/repository"
	"spotalert/pkg/utils"
)

// SettingsService - сервис настроек пользователей и серверов
type SettingsService struct {
	txm repository.TxManager
	log *utils.Logger
}

// NewSettingsService создает сервис настроек
func NewSettingsService(txm repository.TxManager, log *utils.Logger) *SettingsService {
	return &SettingsService{
		txm: txm,
		log: log.WithComponent("settings"),
	}
}

// GetUserSettings возвращает настройки пользователя. Для пользователя
// без сохраненных настроек возвращаются значения по умолчанию, а не
// ошибка: настройки необязательны.
func (s *SettingsService) GetUserSettings(userID int64) (*models.UserSettings, error) {
	var settings *models.UserSettings
	err := s.txm.Transactional(func(tx repository.Tx) error {
		var err error
		settings, err = tx.UserSettings().Get(userID)
		if errors.Is(err, repository.ErrSettingsNotFound) {
			settings = &models.UserSettings{
				UserID:   userID,
				Locale:   models.DefaultLocale,
				Timezone: models.DefaultTimezone,
			}
			return nil
		}
		return err
	})
	return settings, err
}

// SetUserLocale устанавливает локаль уведомлений пользователя
func (s *SettingsService) SetUserLocale(userID int64, locale string) error {
	if !models.IsSupportedLocale(locale) {
		return models.ErrUnsupportedLocale
	}

	return s.txm.Transactional(func(tx repository.Tx) error {
		err := tx.UserSettings().UpdateLocale(userID, locale)
		if errors.Is(err, repository.ErrSettingsNotFound) {
			return tx.UserSettings().Upsert(&models.UserSettings{
				UserID:   userID,
				Locale:   locale,
				Timezone: models.DefaultTimezone,
			})
		}
		return err
	})
}

// SetUserTimezone устанавливает таймзону пользователя (имя из базы IANA)
func (s *SettingsService) SetUserTimezone(userID int64, timezone string) error {
	if _, err := time.LoadLocation(timezone); err != nil {
		return models.ErrInvalidTimezone
	}

	return s.txm.Transactional(func(tx repository.Tx) error {
		err := tx.UserSettings().UpdateTimezone(userID, timezone)
		if errors.Is(err, repository.ErrSettingsNotFound) {
			return tx.UserSettings().Upsert(&models.UserSettings{
				UserID:   userID,
				Locale:   models.DefaultLocale,
				Timezone: timezone,
			})
		}
		return err
	})
}

// TouchUser обновляет отметку последней активности пользователя
func (s *SettingsService) TouchUser(userID int64, at time.Time) error {
	return s.txm.Transactional(func(tx repository.Tx) error {
		err := tx.UserSettings().UpdateLastAccess(userID, at)
		if errors.Is(err, repository.ErrSettingsNotFound) {
			return tx.UserSettings().Upsert(&models.UserSettings{
				UserID:     userID,
				Locale:     models.DefaultLocale,
				Timezone:   models.DefaultTimezone,
				LastAccess: at,
			})
		}
		return err
	})
}

// GetServerSettings возвращает настройки сервера, значения по умолчанию
// для не настроенного сервера
func (s *SettingsService) GetServerSettings(serverID int64) (*models.ServerSettings, error) {
	var settings *models.ServerSettings
	err := s.txm.Transactional(func(tx repository.Tx) error {
		var err error
		settings, err = tx.ServerSettings().Get(serverID)
		if errors.Is(err, repository.ErrSettingsNotFound) {
			settings = &models.ServerSettings{
				ServerID: serverID,
				Timezone: models.DefaultTimezone,
			}
			return nil
		}
		return err
	})
	return settings, err
}

// SetServerTimezone устанавливает таймзону сервера
func (s *SettingsService) SetServerTimezone(serverID int64, timezone string) error {
	if _, err := time.LoadLocation(timezone); err != nil {
		return models.ErrInvalidTimezone
	}

	return s.txm.Transactional(func(tx repository.Tx) error {
		err := tx.ServerSettings().UpdateTimezone(serverID, timezone)
		if errors.Is(err, repository.ErrSettingsNotFound) {
			return tx.ServerSettings().Upsert(&models.ServerSettings{
				ServerID: serverID,
				Timezone: timezone,
			})
		}
		return err
	})
}

// SetServerChannel устанавливает канал уведомлений сервера
// (0 = системный канал)
func (s *SettingsService) SetServerChannel(serverID, channelID int64) error {
	return s.txm.Transactional(func(tx repository.Tx) error {
		err := tx.ServerSettings().UpdateChannelID(serverID, channelID)
		if errors.Is(err, repository.ErrSettingsNotFound) {
			return tx.ServerSettings().Upsert(&models.ServerSettings{
				ServerID:  serverID,
				Timezone:  models.DefaultTimezone,
				ChannelID: channelID,
			})
		}
		return err
	})
}

// DeleteServerSettings удаляет настройки сервера (бот покинул сервер)
func (s *SettingsService) DeleteServerSettings(serverID int64) error {
	return s.txm.Transactional(func(tx repository.Tx) error {
		err := tx.ServerSettings().Delete(serverID)
		if errors.Is(err, repository.ErrSettingsNotFound) {
			return nil
		}
		return err
	})
}
