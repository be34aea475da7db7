package handlers

import (
	"net/http"

	"spotalert/internal/models"
	"spotalert/internal/service"
)

// AlertHandler отвечает за управление алертами
//
// Endpoints:
// - GET /api/v1/alerts - пагинированный список под фильтром
// - POST /api/v1/alerts - создание алерта
// - GET /api/v1/alerts/{id} - алерт целиком, включая message
// - PATCH /api/v1/alerts/{id} - точечное обновление полей
// - DELETE /api/v1/alerts - массовое удаление под фильтром
// - POST /api/v1/alerts/migrate - массовый перенос на личный канал
//
// Фильтр собирается из query параметров server_id, user_id, type,
// ticker. Массовые операции с пустым фильтром отклоняются.
type AlertHandler struct {
	alertService service.AlertServiceInterface
}

// NewAlertHandler создает новый AlertHandler с внедрением зависимости
func NewAlertHandler(alertService service.AlertServiceInterface) *AlertHandler {
	return &AlertHandler{alertService: alertService}
}

// ListAlertsResponse представляет страницу списка алертов
type ListAlertsResponse struct {
	Alerts []*models.Alert `json:"alerts"`
	Total  int64           `json:"total"`
	Offset int64           `json:"offset"`
	Limit  int64           `json:"limit"`
}

// ListAlerts возвращает страницу алертов под фильтром
//
// GET /api/v1/alerts?server_id=555&user_id=10&type=range&ticker=ETH&offset=0&limit=50
func (h *AlertHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	filter := filterFromQuery(r)
	offset := queryInt64(r, "offset", 0)
	limit := queryInt64(r, "limit", 0)

	alerts, total, err := h.alertService.ListAlerts(filter, offset, limit)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	if alerts == nil {
		alerts = []*models.Alert{}
	}

	respondWithJSON(w, http.StatusOK, ListAlertsResponse{
		Alerts: alerts,
		Total:  total,
		Offset: offset,
		Limit:  int64(len(alerts)),
	})
}

// CreateAlert создает алерт
//
// POST /api/v1/alerts
//
// HTTP коды:
// - 201 Created: алерт создан, в теле алерт с присвоенным id
// - 400 Bad Request: невалидное тело или нарушенный инвариант типа
func (h *AlertHandler) CreateAlert(w http.ResponseWriter, r *http.Request) {
	var alert models.Alert
	if err := handlerJSON.NewDecoder(r.Body).Decode(&alert); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := h.alertService.CreateAlert(&alert); err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, &alert)
}

// GetAlert возвращает алерт по id
//
// GET /api/v1/alerts/{id}
func (h *AlertHandler) GetAlert(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid alert id")
		return
	}

	alert, err := h.alertService.GetAlert(id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, alert)
}

// UpdateAlertRequest представляет тело точечного обновления.
// nil-поля не трогаются.
type UpdateAlertRequest struct {
	Message *string `json:"message,omitempty"`
	Repeat  *int16  `json:"repeat,omitempty"`
	Snooze  *int16  `json:"snooze,omitempty"`
}

// UpdateAlert выполняет точечное обновление полей алерта
//
// PATCH /api/v1/alerts/{id}
func (h *AlertHandler) UpdateAlert(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid alert id")
		return
	}

	var req UpdateAlertRequest
	if err := handlerJSON.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Message == nil && req.Repeat == nil && req.Snooze == nil {
		respondWithError(w, http.StatusBadRequest, "Empty update")
		return
	}

	if req.Message != nil {
		if err := h.alertService.UpdateMessage(id, *req.Message); err != nil {
			respondWithServiceError(w, err)
			return
		}
	}
	if req.Repeat != nil {
		if err := h.alertService.UpdateRepeat(id, *req.Repeat); err != nil {
			respondWithServiceError(w, err)
			return
		}
	}
	if req.Snooze != nil {
		if err := h.alertService.UpdateSnooze(id, *req.Snooze); err != nil {
			respondWithServiceError(w, err)
			return
		}
	}

	alert, err := h.alertService.GetAlert(id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, alert)
}

// BulkAlertsResponse представляет результат массовой операции
type BulkAlertsResponse struct {
	Affected int64 `json:"affected"`
}

// DeleteAlerts удаляет алерты под фильтром
//
// DELETE /api/v1/alerts?server_id=555
//
// HTTP коды:
// - 200 OK: в теле число удаленных алертов
// - 400 Bad Request: пустой фильтр
func (h *AlertHandler) DeleteAlerts(w http.ResponseWriter, r *http.Request) {
	removed, err := h.alertService.DeleteAlerts(filterFromQuery(r))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, BulkAlertsResponse{Affected: removed})
}

// MigrateAlerts переносит алерты под фильтром на личный канал владельцев
//
// POST /api/v1/alerts/migrate?server_id=555
func (h *AlertHandler) MigrateAlerts(w http.ResponseWriter, r *http.Request) {
	moved, err := h.alertService.MigrateAlerts(filterFromQuery(r))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, BulkAlertsResponse{Affected: moved})
}
