package models

import "time"

// NotificationStatus определяет состояние уведомления в машине доставки
type NotificationStatus string

// Статусы уведомлений
//
// Переходы:
//
//	NEW → SENDING     захват раунда отправки (в одной транзакции)
//	SENDING → удалено успешная доставка или получатель больше не существует
//	SENDING → NEW     временная сетевая ошибка, повтор в следующем раунде
//	SENDING → BLOCKED получатель заблокировал бота
//	BLOCKED → NEW     только явный unblock при активности получателя
const (
	NotificationStatusNew     NotificationStatus = "NEW"
	NotificationStatusSending NotificationStatus = "SENDING"
	NotificationStatusBlocked NotificationStatus = "BLOCKED"
)

// NotificationType - дискриминатор рендеринга текста сообщения
type NotificationType string

// Типы уведомлений
const (
	NotificationTypeMatching  NotificationType = "MATCHING"  // сработал алерт
	NotificationTypeMargin    NotificationType = "MARGIN"    // раннее предупреждение
	NotificationTypeRemainder NotificationType = "REMAINDER" // напоминание по времени
	NotificationTypeDeleted   NotificationType = "DELETED"   // алерты удалены администр. операцией
	NotificationTypeMigrated  NotificationType = "MIGRATED"  // алерты перенесены на личный канал
	NotificationTypeUpdated   NotificationType = "UPDATED"   // алерты изменены администр. операцией
)

// RecipientType определяет адресата уведомления
type RecipientType string

// Типы получателей
const (
	RecipientTypeUser   RecipientType = "user"   // личное сообщение пользователю
	RecipientTypeServer RecipientType = "server" // канал уведомлений сервера
)

// Ключи структурированного payload уведомления (Fields).
// Payload отвязан от Alert: к моменту отправки алерт уже может быть
// удален retention sweep'ом.
const (
	FieldAlertID      = "alert_id"
	FieldAlertType    = "alert_type"
	FieldExchange     = "exchange"
	FieldPair         = "pair"
	FieldPrice        = "price"      // цена в момент совпадения
	FieldMatchDate    = "match_date" // RFC3339
	FieldMessage      = "message"    // пользовательский текст алерта
	FieldCount        = "count"      // число затронутых алертов (delete/migrate)
	FieldFromServerID = "from_server_id"
)

// Notification представляет поставленное в очередь сообщение получателю.
//
// Создается движком матчинга (при совпадении) или административными
// операциями (delete/migrate) в той же транзакции, что и породившая
// мутация. Потребляется и удаляется сервисом доставки либо понижается
// до BLOCKED/NEW при сбое. Старые записи собирает retention sweep по
// CreationDate независимо от статуса.
type Notification struct {
	ID           int64              `json:"id" db:"id"`
	CreationDate time.Time          `json:"creation_date" db:"creation_date"`
	Status       NotificationStatus `json:"status" db:"status"`
	Type         NotificationType   `json:"type" db:"type"`

	RecipientType RecipientType `json:"recipient_type" db:"recipient_type"`
	RecipientID   int64         `json:"recipient_id" db:"recipient_id"`

	// UserID - владелец породившего алерта; нужен для миграции на личный
	// канал при потере доступа к серверу
	UserID int64 `json:"user_id" db:"user_id"`

	Locale string            `json:"locale" db:"locale"`
	Fields map[string]string `json:"fields" db:"fields"` // JSON в БД
}

// IsPending возвращает true, если уведомление ожидает отправки
func (n *Notification) IsPending() bool {
	return n.Status == NotificationStatusNew
}
