package discord

import (
	"fmt"
	"strings"
	"time"

	"spotalert/internal/models"
)

// Renderer строит текст сообщения из структурированного payload
// уведомления с учетом локали и таймзоны получателя
type Renderer struct{}

// NewRenderer создает рендерер сообщений
func NewRenderer() *Renderer {
	return &Renderer{}
}

// шаблоны по локалям; неизвестная локаль падает на en
var templates = map[string]map[models.NotificationType]string{
	"en": {
		models.NotificationTypeMatching: "Alert triggered: %s on %s hit %s",
		models.NotificationTypeMargin:   "Heads up: %s on %s is approaching your alert (price %s)",
		models.NotificationTypeDeleted:  "%s of your alerts were removed",
		models.NotificationTypeMigrated: "%s of your alerts were moved to direct messages",
		models.NotificationTypeUpdated:  "%s of your alerts were updated",
	},
	"ru": {
		models.NotificationTypeMatching: "Сработал алерт: %s на %s достиг %s",
		models.NotificationTypeMargin:   "Внимание: %s на %s приближается к алерту (цена %s)",
		models.NotificationTypeDeleted:  "Удалено алертов: %s",
		models.NotificationTypeMigrated: "Перенесено алертов в личные сообщения: %s",
		models.NotificationTypeUpdated:  "Изменено алертов: %s",
	},
}

// Render возвращает текст сообщения для уведомления.
// loc - таймзона получателя для отображения времени совпадения.
func (r *Renderer) Render(notif *models.Notification, loc *time.Location) string {
	locale := strings.ToLower(notif.Locale)
	tmpl, ok := templates[locale]
	if !ok {
		tmpl = templates[models.DefaultLocale]
	}

	var text string
	switch notif.Type {
	case models.NotificationTypeMatching, models.NotificationTypeMargin:
		text = fmt.Sprintf(tmpl[notif.Type],
			notif.Fields[models.FieldPair],
			notif.Fields[models.FieldExchange],
			notif.Fields[models.FieldPrice],
		)
		if when := renderMatchDate(notif.Fields[models.FieldMatchDate], loc); when != "" {
			text += " (" + when + ")"
		}
		if msg := notif.Fields[models.FieldMessage]; msg != "" {
			text += "\n> " + msg
		}
	case models.NotificationTypeDeleted, models.NotificationTypeMigrated, models.NotificationTypeUpdated:
		text = fmt.Sprintf(tmpl[notif.Type], notif.Fields[models.FieldCount])
	default:
		// напоминания несут готовый пользовательский текст
		text = notif.Fields[models.FieldMessage]
	}
	return text
}

// renderMatchDate форматирует момент совпадения в таймзоне получателя
func renderMatchDate(raw string, loc *time.Location) string {
	if raw == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return ""
	}
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02 15:04 MST")
}
