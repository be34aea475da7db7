package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"spotalert/internal/models"
	"spotalert/internal/repository"
)

// ErrMockDatabase - сценарная ошибка хранилища
var ErrMockDatabase = errors.New("database unavailable")

// withVars подставляет mux path-переменные в запрос, чтобы звать
// handler без роутера
func withVars(r *http.Request, vars map[string]string) *http.Request {
	return mux.SetURLVars(r, vars)
}

// ============ Mock Alert Service ============

type MockAlertService struct {
	alerts map[int64]*models.Alert
	nextID int64
	err    error

	deleted  int64
	migrated int64
}

func NewMockAlertService() *MockAlertService {
	return &MockAlertService{
		alerts: make(map[int64]*models.Alert),
		nextID: 1,
	}
}

func (m *MockAlertService) CreateAlert(alert *models.Alert) error {
	if m.err != nil {
		return m.err
	}
	if err := alert.Validate(); err != nil {
		return err
	}
	alert.ID = m.nextID
	m.nextID++
	m.alerts[alert.ID] = alert
	return nil
}

func (m *MockAlertService) GetAlert(id int64) (*models.Alert, error) {
	if m.err != nil {
		return nil, m.err
	}
	a, ok := m.alerts[id]
	if !ok {
		return nil, repository.ErrAlertNotFound
	}
	return a, nil
}

func (m *MockAlertService) ListAlerts(filter models.SelectionFilter, offset, limit int64) ([]*models.Alert, int64, error) {
	if m.err != nil {
		return nil, 0, m.err
	}
	var alerts []*models.Alert
	for _, a := range m.alerts {
		alerts = append(alerts, a)
	}
	return alerts, int64(len(alerts)), nil
}

func (m *MockAlertService) UpdateMessage(id int64, message string) error {
	a, err := m.GetAlert(id)
	if err != nil {
		return err
	}
	a.Message = message
	return nil
}

func (m *MockAlertService) UpdateRepeat(id int64, repeat int16) error {
	if repeat < 0 {
		return models.ErrNegativeRepeat
	}
	a, err := m.GetAlert(id)
	if err != nil {
		return err
	}
	a.Repeat = repeat
	return nil
}

func (m *MockAlertService) UpdateSnooze(id int64, snooze int16) error {
	if snooze < 0 {
		return models.ErrNegativeSnooze
	}
	a, err := m.GetAlert(id)
	if err != nil {
		return err
	}
	a.Snooze = snooze
	return nil
}

func (m *MockAlertService) DeleteAlerts(filter models.SelectionFilter) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	if filter.IsEmpty() {
		return 0, repository.ErrEmptyFilter
	}
	return m.deleted, nil
}

func (m *MockAlertService) MigrateAlerts(filter models.SelectionFilter) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	if filter.IsEmpty() {
		return 0, repository.ErrEmptyFilter
	}
	return m.migrated, nil
}

// ============ Mock Delivery Service ============

type MockDeliveryService struct {
	notifs    []*models.Notification
	err       error
	kicks     int
	unblocked int64
}

func NewMockDeliveryService() *MockDeliveryService {
	return &MockDeliveryService{}
}

func (m *MockDeliveryService) Notify() { m.kicks++ }

func (m *MockDeliveryService) RunRound() error { return m.err }

func (m *MockDeliveryService) UnblockUser(userID int64) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.unblocked, nil
}

func (m *MockDeliveryService) RunRetention(now time.Time) {}

func (m *MockDeliveryService) RecentNotifications(limit int) ([]*models.Notification, error) {
	if m.err != nil {
		return nil, m.err
	}
	if limit > 0 && limit < len(m.notifs) {
		return m.notifs[:limit], nil
	}
	return m.notifs, nil
}

func (m *MockDeliveryService) NotificationCount() (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return int64(len(m.notifs)), nil
}

// ============ Mock Settings Service ============

type MockSettingsService struct {
	users   map[int64]*models.UserSettings
	servers map[int64]*models.ServerSettings
	err     error
}

func NewMockSettingsService() *MockSettingsService {
	return &MockSettingsService{
		users:   make(map[int64]*models.UserSettings),
		servers: make(map[int64]*models.ServerSettings),
	}
}

func (m *MockSettingsService) GetUserSettings(userID int64) (*models.UserSettings, error) {
	if m.err != nil {
		return nil, m.err
	}
	if s, ok := m.users[userID]; ok {
		return s, nil
	}
	return &models.UserSettings{
		UserID:   userID,
		Locale:   models.DefaultLocale,
		Timezone: models.DefaultTimezone,
	}, nil
}

func (m *MockSettingsService) SetUserLocale(userID int64, locale string) error {
	if m.err != nil {
		return m.err
	}
	if !models.IsSupportedLocale(locale) {
		return models.ErrUnsupportedLocale
	}
	s, _ := m.GetUserSettings(userID)
	s.Locale = locale
	m.users[userID] = s
	return nil
}

func (m *MockSettingsService) SetUserTimezone(userID int64, timezone string) error {
	if m.err != nil {
		return m.err
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return models.ErrInvalidTimezone
	}
	s, _ := m.GetUserSettings(userID)
	s.Timezone = timezone
	m.users[userID] = s
	return nil
}

func (m *MockSettingsService) TouchUser(userID int64, at time.Time) error { return m.err }

func (m *MockSettingsService) GetServerSettings(serverID int64) (*models.ServerSettings, error) {
	if m.err != nil {
		return nil, m.err
	}
	if s, ok := m.servers[serverID]; ok {
		return s, nil
	}
	return &models.ServerSettings{
		ServerID: serverID,
		Timezone: models.DefaultTimezone,
	}, nil
}

func (m *MockSettingsService) SetServerTimezone(serverID int64, timezone string) error {
	if m.err != nil {
		return m.err
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return models.ErrInvalidTimezone
	}
	s, _ := m.GetServerSettings(serverID)
	s.Timezone = timezone
	m.servers[serverID] = s
	return nil
}

func (m *MockSettingsService) SetServerChannel(serverID, channelID int64) error {
	if m.err != nil {
		return m.err
	}
	s, _ := m.GetServerSettings(serverID)
	s.ChannelID = channelID
	m.servers[serverID] = s
	return nil
}

func (m *MockSettingsService) DeleteServerSettings(serverID int64) error {
	if m.err != nil {
		return m.err
	}
	delete(m.servers, serverID)
	return nil
}
