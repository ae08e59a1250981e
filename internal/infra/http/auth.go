package http

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// BearerAuthMiddleware пропускает запросы только с корректным Bearer-секретом.
// При несовпадении возвращает 401 без каких-либо побочных эффектов.
func BearerAuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"аутентификация не пройдена"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
