package middleware

import (
	"net/http"
	"strings"

	"spotalert/pkg/crypto"
)

// AdminAuth возвращает middleware, проверяющий админ-токен из
// заголовка Authorization: Bearer <token> против bcrypt-хеша.
//
// Если хеш не настроен (пустой), защищенные маршруты недоступны: отказ
// по умолчанию безопаснее открытого API. bcrypt-сравнение выполняется
// в константное время.
func AdminAuth(tokenHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenHash == "" {
				http.Error(w, "Admin API disabled. Set ADMIN_TOKEN_HASH.", http.StatusForbidden)
				return
			}

			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="Admin API"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if err := crypto.VerifyToken(token, tokenHash); err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="Admin API"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
