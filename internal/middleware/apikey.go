package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/spf13/viper"
)

// APIKeyMiddleware checks the X-API-Key header against the configured key.
// An empty configured key disables the check (local development).
func APIKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		expected := viper.GetString("api.key")
		if expected == "" {
			next.ServeHTTP(w, r)
			return
		}

		got := r.Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
