package middleware

import (
	"net/http"
	"runtime/debug"

	"spotalert/pkg/utils"
)

// Recovery перехватывает panic в handlers и превращает его в 500.
//
// Сервер продолжает обслуживать последующие запросы, stack trace
// уходит в лог для разбора.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				utils.Error("Panic in HTTP handler",
					utils.Any("panic", err),
					utils.String("method", r.Method),
					utils.String("path", r.URL.Path),
					utils.String("stack", string(debug.Stack())),
				)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
