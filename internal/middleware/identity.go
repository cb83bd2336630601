package middleware

import (
	"context"
	"net/http"
	"strings"

	"rag-chat/internal/logger"
	"rag-chat/internal/models"
)

type userKey struct{}

// Headers carrying the optional profile fields of the caller
const (
	UserEmailHeader = "X-User-Email"
	UserNameHeader  = "X-User-Name"
)

// IdentityMiddleware reads the authenticated user placed on the request by the
// fronting auth proxy. Requests without the identity header run as anonymous,
// which retrieval treats as having no permissions.
func IdentityMiddleware(identityHeader string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(identityHeader))
			if id == "" {
				next.ServeHTTP(w, r)
				return
			}
			user := &models.User{
				ID:    id,
				Email: strings.TrimSpace(r.Header.Get(UserEmailHeader)),
				Name:  strings.TrimSpace(r.Header.Get(UserNameHeader)),
			}
			ctx := ContextWithUser(r.Context(), user)
			ctx = logger.ContextWithLogger(ctx, logger.FromContext(ctx).With("user_id", id))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ContextWithUser attaches the caller identity
func ContextWithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext returns the caller, or nil when anonymous
func UserFromContext(ctx context.Context) *models.User {
	user, _ := ctx.Value(userKey{}).(*models.User)
	return user
}
