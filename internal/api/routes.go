package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"spotalert/internal/api/handlers"
	"spotalert/internal/api/middleware"
	"spotalert/internal/service"
	"spotalert/internal/websocket"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	AlertService    service.AlertServiceInterface
	DeliveryService service.DeliveryServiceInterface
	SettingsService service.SettingsServiceInterface

	// AdminTokenHash - bcrypt-хеш админ-токена; пустой хеш закрывает
	// весь /api/v1
	AdminTokenHash string

	// Hub - опциональный WebSocket hub операционных событий
	Hub *websocket.Hub
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/  (Bearer админ-токен)
//
//	├── /alerts/
//	│   ├── GET / - пагинированный список под фильтром
//	│   ├── POST / - создать алерт
//	│   ├── GET /{id} - алерт целиком
//	│   ├── PATCH /{id} - обновить message/repeat/snooze
//	│   ├── DELETE / - массовое удаление под фильтром
//	│   └── POST /migrate - массовый перенос на личный канал
//	├── /notifications/
//	│   ├── GET / - последние уведомления
//	│   └── POST /dispatch - внеочередной раунд доставки
//	├── /users/{id}/
//	│   ├── GET /settings - настройки пользователя
//	│   ├── PATCH /settings - locale, timezone
//	│   └── POST /unblock - разблокировка BLOCKED уведомлений
//	└── /servers/{id}/settings - GET / PATCH / DELETE
//
// /ws/events - WebSocket операционных событий
// /health    - liveness probe (без авторизации)
// /metrics   - Prometheus (без авторизации)
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
// 4. AdminAuth (только для /api/v1)
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS)

	var alertHandler *handlers.AlertHandler
	if deps != nil && deps.AlertService != nil {
		alertHandler = handlers.NewAlertHandler(deps.AlertService)
	}

	var notificationHandler *handlers.NotificationHandler
	if deps != nil && deps.DeliveryService != nil {
		notificationHandler = handlers.NewNotificationHandler(deps.DeliveryService)
	}

	var settingsHandler *handlers.SettingsHandler
	if deps != nil && deps.SettingsService != nil {
		settingsHandler = handlers.NewSettingsHandler(deps.SettingsService)
	}

	api := router.PathPrefix("/api/v1").Subrouter()
	if deps != nil {
		api.Use(middleware.AdminAuth(deps.AdminTokenHash))
	}

	if alertHandler != nil {
		api.HandleFunc("/alerts", alertHandler.ListAlerts).Methods("GET")
		api.HandleFunc("/alerts", alertHandler.CreateAlert).Methods("POST")
		api.HandleFunc("/alerts", alertHandler.DeleteAlerts).Methods("DELETE")
		api.HandleFunc("/alerts/migrate", alertHandler.MigrateAlerts).Methods("POST")
		api.HandleFunc("/alerts/{id:[0-9]+}", alertHandler.GetAlert).Methods("GET")
		api.HandleFunc("/alerts/{id:[0-9]+}", alertHandler.UpdateAlert).Methods("PATCH")
	}

	if notificationHandler != nil {
		api.HandleFunc("/notifications", notificationHandler.GetNotifications).Methods("GET")
		api.HandleFunc("/notifications/dispatch", notificationHandler.Dispatch).Methods("POST")
		api.HandleFunc("/users/{id:[0-9]+}/unblock", notificationHandler.UnblockUser).Methods("POST")
	}

	if settingsHandler != nil {
		api.HandleFunc("/users/{id:[0-9]+}/settings", settingsHandler.GetUserSettings).Methods("GET")
		api.HandleFunc("/users/{id:[0-9]+}/settings", settingsHandler.UpdateUserSettings).Methods("PATCH")
		api.HandleFunc("/servers/{id:[0-9]+}/settings", settingsHandler.GetServerSettings).Methods("GET")
		api.HandleFunc("/servers/{id:[0-9]+}/settings", settingsHandler.UpdateServerSettings).Methods("PATCH")
		api.HandleFunc("/servers/{id:[0-9]+}/settings", settingsHandler.DeleteServerSettings).Methods("DELETE")
	}

	if deps != nil && deps.Hub != nil {
		hub := deps.Hub
		router.HandleFunc("/ws/events", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWS(hub, w, r)
		})
	}

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods("GET")

	return router
}
