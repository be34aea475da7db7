package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"spotalert/internal/models"
)

// Общие ошибки слоя персистентности
var (
	ErrAlertNotFound        = errors.New("alert not found")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrSettingsNotFound     = errors.New("settings not found")
	ErrEmptyBatch           = errors.New("batch update requires at least one id")
	ErrEmptyFilter          = errors.New("bulk mutation requires a non-empty filter")
)

// DBTX - общий интерфейс *sql.DB и *sql.Tx.
// Позволяет одному репозиторию работать и вне, и внутри транзакции.
type DBTX interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// BatchAccumulator - коллектор id для массовой мутации.
//
// Вызывающий регистрирует каждый id через BatchID, бэкенд применяет
// всю партию одним statement'ом. Повторная регистрация одного id
// игнорируется, порядок не гарантируется.
type BatchAccumulator interface {
	BatchID(id int64)
}

// AlertConsumer - построчный потребитель потоковой выборки алертов.
// Возврат ошибки прерывает поток; курсор живет только внутри вызова
// fetch-метода и не переживает его.
type AlertConsumer func(alert *models.Alert) error

// AlertRepositoryInterface определяет интерфейс репозитория алертов.
//
// Реализуется Postgres-бэкендом (AlertRepository) и in-memory бэкендом
// (memory пакет); оба обязаны давать идентичную семантику выборок,
// пагинации и batch-мутаций.
type AlertRepositoryInterface interface {
	// Create вставляет алерт и присваивает ID
	Create(alert *models.Alert) error

	// GetByID возвращает алерт целиком, включая message
	GetByID(id int64) (*models.Alert, error)

	// GetMessagesByID догружает message для набора алертов
	// (hot-path выборки его опускают)
	GetMessagesByID(ids []int64) (map[int64]string, error)

	// CountAlerts возвращает точное число алертов под фильтром
	CountAlerts(filter models.SelectionFilter) (int64, error)

	// GetAlertsOrderByPairUserIDID возвращает страницу алертов под
	// фильтром, упорядоченную по (pair, user_id, id)
	GetAlertsOrderByPairUserIDID(filter models.SelectionFilter, offset, limit int64) ([]*models.Alert, error)

	// GetPairsByExchangesHavingRepeatAndDelayOverWithActiveRange
	// возвращает exchange → {pair} комбинации, имеющие хотя бы один
	// алерт, пригодный к срабатыванию в этом цикле. Remainder-алерты
	// группируются под пустым exchange (свечи им не нужны).
	GetPairsByExchangesHavingRepeatAndDelayOverWithActiveRange(now time.Time, checkPeriod time.Duration) (map[string][]string, error)

	// FetchAlertsWithoutMessageByExchangeAndPairHavingRepeatAndDelayOverWithActiveRange
	// стримит пригодные алерты пары через consumer, не загружая message.
	// Курсор остается открыт на время callback'а, так что вызывающий
	// может безопасно накапливать batch-мутации по тем же строкам.
	FetchAlertsWithoutMessageByExchangeAndPairHavingRepeatAndDelayOverWithActiveRange(
		now time.Time, exchange, pair string, checkPeriod time.Duration, consumer AlertConsumer) error

	// FetchAlertsHavingRepeatZeroAndLastTriggerBefore стримит алерты с
	// исчерпанным repeat и последним срабатыванием старше threshold
	// (кандидаты retention sweep)
	FetchAlertsHavingRepeatZeroAndLastTriggerBefore(threshold time.Time, consumer AlertConsumer) error

	// FetchAlertsByTypeHavingToDateBefore стримит алерты типа, чье окно
	// активности полностью истекло
	FetchAlertsByTypeHavingToDateBefore(alertType models.AlertType, threshold time.Time, consumer AlertConsumer) error

	// MatchedAlertBatchUpdates применяет к зарегистрированным id мутацию
	// совпадения: сброс margin, repeat-1 (floor 0), last_trigger = now.
	// Идемпотентно при повторе с тем же now.
	MatchedAlertBatchUpdates(now time.Time, fn func(BatchAccumulator)) error

	// MarginAlertBatchUpdates сбрасывает margin зарегистрированных id
	// (однократное предупреждение уже отправлено)
	MarginAlertBatchUpdates(fn func(BatchAccumulator)) error

	// AlertBatchDeletes удаляет зарегистрированные id одним statement'ом
	AlertBatchDeletes(fn func(BatchAccumulator)) error

	// DeleteByFilter удаляет алерты под непустым фильтром,
	// возвращает число удаленных
	DeleteByFilter(filter models.SelectionFilter) (int64, error)

	// UpdateServerIDByFilter переносит алерты под непустым фильтром на
	// другого получателя (ServerIDPrivate = личный канал),
	// возвращает число перенесенных
	UpdateServerIDByFilter(filter models.SelectionFilter, serverID int64) (int64, error)

	// UpdateServerIDOfUserAndServerID переносит алерты пользователя с
	// одного сервера на другого получателя
	UpdateServerIDOfUserAndServerID(userID, serverID, newServerID int64) (int64, error)

	// Точечные обновления отдельных полей
	UpdateMessage(id int64, message string) error
	UpdateMargin(id int64, margin decimal.Decimal) error
	UpdateRepeat(id int64, repeat int16) error
	UpdateSnooze(id int64, snooze int16) error
	UpdateFromPrice(id int64, price decimal.Decimal) error
	UpdateToPrice(id int64, price decimal.Decimal) error
	UpdateFromDate(id int64, date *time.Time) error
	UpdateToDate(id int64, date *time.Time) error
	UpdateListeningDate(id int64, date time.Time) error
}

// NotificationRepositoryInterface определяет интерфейс репозитория уведомлений
type NotificationRepositoryInterface interface {
	// Create вставляет уведомление со статусом NEW и присваивает ID
	Create(notif *models.Notification) error

	// GetNewOrderByCreationDate возвращает до limit уведомлений в статусе
	// NEW, старые первыми
	GetNewOrderByCreationDate(limit int) ([]*models.Notification, error)

	// GetRecent возвращает последние уведомления независимо от статуса
	// (для админ-API)
	GetRecent(limit int) ([]*models.Notification, error)

	// Count возвращает общее число уведомлений
	Count() (int64, error)

	// StatusBatchUpdate переводит зарегистрированные id в новый статус
	StatusBatchUpdate(status models.NotificationStatus, fn func(BatchAccumulator)) error

	// StatusRecipientBatchUpdate переводит зарегистрированные id в новый
	// статус и одновременно ретаргетирует на другого получателя
	// (миграция server → личный канал)
	StatusRecipientBatchUpdate(status models.NotificationStatus, recipientType models.RecipientType, recipientID int64, fn func(BatchAccumulator)) error

	// StatusOfRecipientUpdate переводит ВСЕ уведомления получателя в
	// новый статус, возвращает число затронутых
	StatusOfRecipientUpdate(status models.NotificationStatus, recipientType models.RecipientType, recipientID int64) (int64, error)

	// UnblockStatusOfDiscordUser возвращает BLOCKED уведомления
	// пользователя в NEW (получатель снова взаимодействует с ботом)
	UnblockStatusOfDiscordUser(userID int64) (int64, error)

	// NotificationBatchDeletes удаляет зарегистрированные id
	NotificationBatchDeletes(fn func(BatchAccumulator)) error

	// DeleteHavingCreationDateBefore удаляет уведомления старше cutoff
	// независимо от статуса, возвращает число удаленных
	DeleteHavingCreationDateBefore(cutoff time.Time) (int64, error)
}

// UserSettingsRepositoryInterface определяет интерфейс настроек пользователя
type UserSettingsRepositoryInterface interface {
	Get(userID int64) (*models.UserSettings, error)
	Upsert(settings *models.UserSettings) error
	UpdateLocale(userID int64, locale string) error
	UpdateTimezone(userID int64, timezone string) error
	UpdateLastAccess(userID int64, at time.Time) error
	// UserBatchDeletes удаляет настройки пользователей пачкой
	// (retention для ушедших пользователей)
	UserBatchDeletes(fn func(BatchAccumulator)) error
}

// ServerSettingsRepositoryInterface определяет интерфейс настроек сервера
type ServerSettingsRepositoryInterface interface {
	Get(serverID int64) (*models.ServerSettings, error)
	Upsert(settings *models.ServerSettings) error
	UpdateTimezone(serverID int64, timezone string) error
	UpdateChannelID(serverID int64, channelID int64) error
	UpdateLastAccess(serverID int64, at time.Time) error
	Delete(serverID int64) error
}

// Tx - транзакционный контекст: связывает набор репозиториев с одной
// логической транзакцией.
//
// AfterCommit откладывает внешне видимые побочные эффекты (исходящие
// отправки) до успешного коммита; при откате callbacks отбрасываются.
// CommitUnit поддерживает частичные коммиты больших партий.
type Tx interface {
	Alerts() AlertRepositoryInterface
	Notifications() NotificationRepositoryInterface
	UserSettings() UserSettingsRepositoryInterface
	ServerSettings() ServerSettingsRepositoryInterface

	// AfterCommit регистрирует callback, выполняемый строго после
	// успешного коммита объемлющей транзакции
	AfterCommit(fn func())

	// CommitUnit учитывает одну единицу работы; после n накопленных
	// единиц фиксирует текущую транзакцию и открывает новую.
	// Потокобезопасен.
	CommitUnit(n int) error

	// Child выполняет fn в дочернем контексте, разделяющем соединение
	// родителя. Коммит дочернего контекста не коммитит родителя.
	Child(fn func(Tx) error) error
}

// TxManager открывает транзакционные контексты.
// Реализации: SQLTxManager (Postgres) и memory.Store (тесты).
type TxManager interface {
	// Transactional выполняет fn в новой транзакции: commit при nil,
	// rollback при ошибке; затем запускает AfterCommit callbacks
	Transactional(fn func(Tx) error) error
}
