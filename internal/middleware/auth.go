package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/nspmotors/loyalty-backend/internal/models"
)

type contextKey string

const accountKey contextKey = "account"

// TokenResolver resolves a bearer token to its account. Implemented by the
// session authority.
type TokenResolver interface {
	Resolve(ctx context.Context, token string) (*models.Account, error)
}

// AuthMiddleware resolves the Authorization bearer token and stores the
// account in the request context. Every failure mode returns the same
// authentication-required response.
func AuthMiddleware(resolver TokenResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			if token == "" {
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}

			account, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), accountKey, account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AccountFromContext returns the authenticated account set by
// AuthMiddleware, or nil.
func AccountFromContext(ctx context.Context) *models.Account {
	account, _ := ctx.Value(accountKey).(*models.Account)
	return account
}

func extractBearer(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}
