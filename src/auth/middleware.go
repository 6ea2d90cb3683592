package auth

import (
	"context"
	"net/http"
	"strings"

	logger "github.com/sirupsen/logrus"

	"signalcopier/src/model"
)

// TokenResolver looks up the user behind an opaque API token.
// Implemented by repository.UserRepository.
type TokenResolver interface {
	FindByToken(ctx context.Context, token string) (*model.User, error)
}

// RequireToken authenticates requests by bearer token and stores the resolved
// user in the request context. The webhook ingestion path stays outside this
// middleware; alert sources cannot carry credentials.
func RequireToken(users TokenResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			user, err := users.FindByToken(r.Context(), token)
			if err != nil {
				logger.WithError(err).Error("Failed to resolve API token")
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			if user == nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	// some alerting tools can only set a custom header
	return r.Header.Get("X-API-Token")
}
