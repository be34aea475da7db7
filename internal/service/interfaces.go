package service

import (
	"time"

	"spotalert/internal/models"
)

// Notifier - пинок сервиса доставки о новых уведомлениях.
// Реализуется DeliveryService; отдельный интерфейс позволяет избежать
// циклических зависимостей и упрощает тестирование.
type Notifier interface {
	Notify()
}

// ============ Интерфейсы сервисов для Dependency Injection ============

// AlertServiceInterface определяет интерфейс сервиса алертов
type AlertServiceInterface interface {
	CreateAlert(alert *models.Alert) error
	GetAlert(id int64) (*models.Alert, error)
	ListAlerts(filter models.SelectionFilter, offset, limit int64) ([]*models.Alert, int64, error)
	UpdateMessage(id int64, message string) error
	UpdateRepeat(id int64, repeat int16) error
	UpdateSnooze(id int64, snooze int16) error
	DeleteAlerts(filter models.SelectionFilter) (int64, error)
	MigrateAlerts(filter models.SelectionFilter) (int64, error)
}

// DeliveryServiceInterface определяет интерфейс сервиса доставки
type DeliveryServiceInterface interface {
	Notify()
	RunRound() error
	UnblockUser(userID int64) (int64, error)
	RunRetention(now time.Time)
	RecentNotifications(limit int) ([]*models.Notification, error)
	NotificationCount() (int64, error)
}

// Broadcaster - опциональный приемник операционных событий доставки
// для админ-панели (WebSocket hub)
type Broadcaster interface {
	BroadcastDeliveryOutcome(notificationID int64, outcome string)
}

// SettingsServiceInterface определяет интерфейс сервиса настроек
type SettingsServiceInterface interface {
	GetUserSettings(userID int64) (*models.UserSettings, error)
	SetUserLocale(userID int64, locale string) error
	SetUserTimezone(userID int64, timezone string) error
	TouchUser(userID int64, at time.Time) error
	GetServerSettings(serverID int64) (*models.ServerSettings, error)
	SetServerTimezone(serverID int64, timezone string) error
	SetServerChannel(serverID, channelID int64) error
	DeleteServerSettings(serverID int64) error
}

// Проверяем, что реальные сервисы реализуют интерфейсы
var _ AlertServiceInterface = (*AlertService)(nil)
var _ DeliveryServiceInterface = (*DeliveryService)(nil)
var _ SettingsServiceInterface = (*SettingsService)(nil)
var _ Notifier = (*DeliveryService)(nil)
