package websocket

import (
	"time"

	"spotalert/internal/models"
)

// MessageType - тип исходящего события
type MessageType string

const (
	// MessageTypeNotification - в очередь поставлено новое уведомление
	MessageTypeNotification MessageType = "notification"
	// MessageTypeCycle - завершен цикл матчинга
	MessageTypeCycle MessageType = "cycleUpdate"
	// MessageTypeDelivery - исход попытки доставки
	MessageTypeDelivery MessageType = "deliveryUpdate"
)

// NotificationMessage - событие постановки уведомления в очередь
type NotificationMessage struct {
	Type      MessageType      `json:"type"`
	Timestamp string           `json:"timestamp"`
	Data      NotificationData `json:"data"`
}

// NotificationData - проекция уведомления для админ-панели
type NotificationData struct {
	ID            int64             `json:"id"`
	NotifType     string            `json:"notif_type"`
	Status        string            `json:"status"`
	RecipientType string            `json:"recipient_type"`
	RecipientID   int64             `json:"recipient_id"`
	UserID        int64             `json:"user_id"`
	Fields        map[string]string `json:"fields,omitempty"`
	CreationDate  string            `json:"creation_date"`
}

// NewNotificationMessage создает событие из уведомления
func NewNotificationMessage(n *models.Notification) *NotificationMessage {
	return &NotificationMessage{
		Type:      MessageTypeNotification,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data: NotificationData{
			ID:            n.ID,
			NotifType:     string(n.Type),
			Status:        string(n.Status),
			RecipientType: string(n.RecipientType),
			RecipientID:   n.RecipientID,
			UserID:        n.UserID,
			Fields:        n.Fields,
			CreationDate:  n.CreationDate.UTC().Format(time.RFC3339),
		},
	}
}

// CycleMessage - событие завершения цикла матчинга
type CycleMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp"`
	Data      CycleData   `json:"data"`
}

// CycleData - сводка цикла
type CycleData struct {
	PairsChecked int     `json:"pairs_checked"`
	AlertsFired  int     `json:"alerts_fired"`
	DurationMS   float64 `json:"duration_ms"`
}

// NewCycleMessage создает сводку завершенного цикла
func NewCycleMessage(pairsChecked, alertsFired int, durationMS float64) *CycleMessage {
	return &CycleMessage{
		Type:      MessageTypeCycle,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data: CycleData{
			PairsChecked: pairsChecked,
			AlertsFired:  alertsFired,
			DurationMS:   durationMS,
		},
	}
}

// DeliveryMessage - событие исхода попытки доставки
type DeliveryMessage struct {
	Type      MessageType  `json:"type"`
	Timestamp string       `json:"timestamp"`
	Data      DeliveryData `json:"data"`
}

// DeliveryData - исход доставки одного уведомления
type DeliveryData struct {
	NotificationID int64  `json:"notification_id"`
	Outcome        string `json:"outcome"`
}

// NewDeliveryMessage создает событие исхода доставки
func NewDeliveryMessage(notificationID int64, outcome string) *DeliveryMessage {
	return &DeliveryMessage{
		Type:      MessageTypeDelivery,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Data: DeliveryData{
			NotificationID: notificationID,
			Outcome:        outcome,
		},
	}
}
