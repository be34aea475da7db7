package models

import (
	"errors"
	"time"
)

// Значения настроек по умолчанию
const (
	DefaultLocale   = "en"
	DefaultTimezone = "UTC"
)

// SupportedLocales - локали, для которых есть шаблоны уведомлений
var SupportedLocales = []string{"en", "ru"}

var (
	ErrUnsupportedLocale = errors.New("unsupported locale")
	ErrInvalidTimezone   = errors.New("invalid timezone")
)

// IsSupportedLocale проверяет, поддерживается ли локаль
func IsSupportedLocale(locale string) bool {
	for _, l := range SupportedLocales {
		if l == locale {
			return true
		}
	}
	return false
}

// UserSettings - настройки пользователя для рендеринга и расчета времени
type UserSettings struct {
	UserID       int64     `json:"user_id" db:"user_id"`
	Locale       string    `json:"locale" db:"locale"`
	Timezone     string    `json:"timezone" db:"timezone"`
	LastAccess   time.Time `json:"last_access" db:"last_access"`
	CreationDate time.Time `json:"creation_date" db:"creation_date"`
}

// ServerSettings - настройки сервера (группового получателя)
type ServerSettings struct {
	ServerID     int64     `json:"server_id" db:"server_id"`
	Timezone     string    `json:"timezone" db:"timezone"`
	// ChannelID - канал для уведомлений; 0 = системный канал сервера
	ChannelID    int64     `json:"channel_id" db:"channel_id"`
	LastAccess   time.Time `json:"last_access" db:"last_access"`
	CreationDate time.Time `json:"creation_date" db:"creation_date"`
}

// Location возвращает *time.Location для таймзоны пользователя,
// UTC при некорректном значении
func (s *UserSettings) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
