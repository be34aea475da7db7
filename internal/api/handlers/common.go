package handlers

import (
	"errors"
	"net/http"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"github.com/gorilla/mux"

	"spotalert/internal/models"
	"spotalert/internal/repository"
)

var handlerJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrorResponse - стандартный формат ответа об ошибке
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondWithJSON отправляет JSON ответ
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = handlerJSON.NewEncoder(w).Encode(payload)
}

// respondWithError отправляет JSON ошибку
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, ErrorResponse{Error: message})
}

// validationErrors - ошибки пользовательского ввода, отображаемые в 400
var validationErrors = []error{
	models.ErrInvalidAlertType,
	models.ErrMissingPair,
	models.ErrMissingDates,
	models.ErrDatesOutOfOrder,
	models.ErrNegativeRepeat,
	models.ErrNegativeSnooze,
	models.ErrNegativeMargin,
	models.ErrMissingRemindDate,
	models.ErrUnsupportedLocale,
	models.ErrInvalidTimezone,
	repository.ErrEmptyFilter,
}

// respondWithServiceError отображает ошибку сервиса в HTTP статус
func respondWithServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrAlertNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
		return
	}
	for _, ve := range validationErrors {
		if errors.Is(err, ve) {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	respondWithError(w, http.StatusInternalServerError, err.Error())
}

// pathID извлекает int64 параметр {id} из пути
func pathID(r *http.Request, name string) (int64, error) {
	raw := mux.Vars(r)[name]
	return strconv.ParseInt(raw, 10, 64)
}

// queryInt64 парсит int64 query параметр, def при отсутствии или мусоре
func queryInt64(r *http.Request, name string, def int64) int64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return v
}

// filterFromQuery собирает SelectionFilter из query параметров:
// server_id, user_id, type, ticker
func filterFromQuery(r *http.Request) models.SelectionFilter {
	var filter models.SelectionFilter

	q := r.URL.Query()
	if raw := q.Get("server_id"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter.ServerID = &v
		}
	}
	if raw := q.Get("user_id"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter.UserID = &v
		}
	}
	if raw := q.Get("type"); raw != "" {
		filter = filter.WithType(models.AlertType(raw))
	}
	if raw := q.Get("ticker"); raw != "" {
		filter = filter.WithTickerOrPair(raw)
	}
	return filter
}
