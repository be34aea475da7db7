package handlers

import (
	"net/http"

	"spotalert/internal/models"
	"spotalert/internal/service"
)

// NotificationHandler отвечает за очередь уведомлений
//
// Endpoints:
// - GET /api/v1/notifications - последние уведомления и общий размер очереди
// - POST /api/v1/notifications/dispatch - внеочередной пинок доставки
// - POST /api/v1/users/{id}/unblock - разблокировка BLOCKED уведомлений
type NotificationHandler struct {
	deliveryService service.DeliveryServiceInterface
}

// NewNotificationHandler создает новый NotificationHandler с внедрением
// зависимости
func NewNotificationHandler(deliveryService service.DeliveryServiceInterface) *NotificationHandler {
	return &NotificationHandler{deliveryService: deliveryService}
}

// GetNotificationsResponse представляет ответ списка уведомлений
type GetNotificationsResponse struct {
	Notifications []*models.Notification `json:"notifications"`
	Total         int64                  `json:"total"`
}

// GetNotifications возвращает последние уведомления независимо от
// статуса
//
// GET /api/v1/notifications?limit=50
func (h *NotificationHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	limit := int(queryInt64(r, "limit", 0))

	notifs, err := h.deliveryService.RecentNotifications(limit)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	if notifs == nil {
		notifs = []*models.Notification{}
	}

	total, err := h.deliveryService.NotificationCount()
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, GetNotificationsResponse{
		Notifications: notifs,
		Total:         total,
	})
}

// Dispatch запрашивает внеочередной раунд доставки
//
// POST /api/v1/notifications/dispatch
//
// HTTP коды:
// - 202 Accepted: раунд запрошен, выполнится асинхронно
func (h *NotificationHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	h.deliveryService.Notify()
	respondWithJSON(w, http.StatusAccepted, map[string]string{"message": "Dispatch requested"})
}

// UnblockUserResponse представляет результат разблокировки
type UnblockUserResponse struct {
	Unblocked int64 `json:"unblocked"`
}

// UnblockUser возвращает BLOCKED уведомления пользователя в очередь
//
// POST /api/v1/users/{id}/unblock
func (h *NotificationHandler) UnblockUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	unblocked, err := h.deliveryService.UnblockUser(userID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, UnblockUserResponse{Unblocked: unblocked})
}
