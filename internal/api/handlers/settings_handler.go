package handlers

import (
	"net/http"

	"spotalert/internal/service"
)

// SettingsHandler отвечает за настройки пользователей и серверов
//
// Endpoints:
// - GET /api/v1/users/{id}/settings - настройки пользователя
// - PATCH /api/v1/users/{id}/settings - locale и timezone
// - GET /api/v1/servers/{id}/settings - настройки сервера
// - PATCH /api/v1/servers/{id}/settings - timezone и channel_id
// - DELETE /api/v1/servers/{id}/settings - сброс настроек сервера
//
// Для получателей без сохраненных настроек GET возвращает значения по
// умолчанию, а не 404: настройки необязательны.
type SettingsHandler struct {
	settingsService service.SettingsServiceInterface
}

// NewSettingsHandler создает новый SettingsHandler с внедрением
// зависимости
func NewSettingsHandler(settingsService service.SettingsServiceInterface) *SettingsHandler {
	return &SettingsHandler{settingsService: settingsService}
}

// GetUserSettings возвращает настройки пользователя
//
// GET /api/v1/users/{id}/settings
func (h *SettingsHandler) GetUserSettings(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	settings, err := h.settingsService.GetUserSettings(userID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, settings)
}

// UpdateUserSettingsRequest представляет тело обновления настроек
// пользователя. nil-поля не трогаются.
type UpdateUserSettingsRequest struct {
	Locale   *string `json:"locale,omitempty"`
	Timezone *string `json:"timezone,omitempty"`
}

// UpdateUserSettings обновляет locale и timezone пользователя
//
// PATCH /api/v1/users/{id}/settings
func (h *SettingsHandler) UpdateUserSettings(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	var req UpdateUserSettingsRequest
	if err := handlerJSON.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Locale == nil && req.Timezone == nil {
		respondWithError(w, http.StatusBadRequest, "Empty update")
		return
	}

	if req.Locale != nil {
		if err := h.settingsService.SetUserLocale(userID, *req.Locale); err != nil {
			respondWithServiceError(w, err)
			return
		}
	}
	if req.Timezone != nil {
		if err := h.settingsService.SetUserTimezone(userID, *req.Timezone); err != nil {
			respondWithServiceError(w, err)
			return
		}
	}

	settings, err := h.settingsService.GetUserSettings(userID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, settings)
}

// GetServerSettings возвращает настройки сервера
//
// GET /api/v1/servers/{id}/settings
func (h *SettingsHandler) GetServerSettings(w http.ResponseWriter, r *http.Request) {
	serverID, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid server id")
		return
	}

	settings, err := h.settingsService.GetServerSettings(serverID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, settings)
}

// UpdateServerSettingsRequest представляет тело обновления настроек
// сервера. channel_id = 0 означает системный канал.
type UpdateServerSettingsRequest struct {
	Timezone  *string `json:"timezone,omitempty"`
	ChannelID *int64  `json:"channel_id,omitempty"`
}

// UpdateServerSettings обновляет timezone и канал уведомлений сервера
//
// PATCH /api/v1/servers/{id}/settings
func (h *SettingsHandler) UpdateServerSettings(w http.ResponseWriter, r *http.Request) {
	serverID, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid server id")
		return
	}

	var req UpdateServerSettingsRequest
	if err := handlerJSON.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Timezone == nil && req.ChannelID == nil {
		respondWithError(w, http.StatusBadRequest, "Empty update")
		return
	}

	if req.Timezone != nil {
		if err := h.settingsService.SetServerTimezone(serverID, *req.Timezone); err != nil {
			respondWithServiceError(w, err)
			return
		}
	}
	if req.ChannelID != nil {
		if err := h.settingsService.SetServerChannel(serverID, *req.ChannelID); err != nil {
			respondWithServiceError(w, err)
			return
		}
	}

	settings, err := h.settingsService.GetServerSettings(serverID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, settings)
}

// DeleteServerSettings сбрасывает настройки сервера
//
// DELETE /api/v1/servers/{id}/settings
func (h *SettingsHandler) DeleteServerSettings(w http.ResponseWriter, r *http.Request) {
	serverID, err := pathID(r, "id")
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid server id")
		return
	}

	if err := h.settingsService.DeleteServerSettings(serverID); err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Server settings removed"})
}
