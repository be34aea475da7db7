package service

import "spotalert/internal/models"

// ValidTransitions определяет допустимые переходы статуса уведомления.
// Удаление записи (успешная доставка, исчезнувший получатель) не
// является переходом статуса и сюда не входит.
var ValidTransitions = map[models.NotificationStatus][]models.NotificationStatus{
	models.NotificationStatusNew:     {models.NotificationStatusSending},
	models.NotificationStatusSending: {models.NotificationStatusNew, models.NotificationStatusBlocked},
	models.NotificationStatusBlocked: {models.NotificationStatusNew}, // только явный unblock
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to models.NotificationStatus) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// StatusInfo возвращает описание статуса для админ-API
func StatusInfo(s models.NotificationStatus) string {
	switch s {
	case models.NotificationStatusNew:
		return "Ожидает отправки"
	case models.NotificationStatusSending:
		return "Захвачено раундом отправки"
	case models.NotificationStatusBlocked:
		return "Получатель заблокировал бота"
	default:
		return "Неизвестный статус"
	}
}

// IsDispatchable возвращает true, если уведомление может попасть в раунд
// отправки
func IsDispatchable(s models.NotificationStatus) bool {
	return s == models.NotificationStatusNew
}
