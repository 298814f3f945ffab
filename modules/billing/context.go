package billing

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
)

var ErrNoPrincipal = errors.New("no authenticated user on request")

type userIDKey struct{}

// WithUserID attaches the authenticated user to the request context.
func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFromContext extracts the authenticated user from the context.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(userIDKey{}).(uuid.UUID)
	return userID, ok
}

// PrincipalResolver extracts the authenticated user from an incoming request.
type PrincipalResolver func(r *http.Request) (uuid.UUID, error)

// HeaderPrincipal resolves the user from a header set by the trusted gateway
// in front of this service.
func HeaderPrincipal(header string) PrincipalResolver {
	return func(r *http.Request) (uuid.UUID, error) {
		raw := r.Header.Get(header)
		if raw == "" {
			return uuid.Nil, ErrNoPrincipal
		}
		userID, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, errors.Join(ErrNoPrincipal, err)
		}
		return userID, nil
	}
}

// PrincipalMiddleware resolves the principal and stores it on the context.
// Requests without one are rejected before reaching any handler.
func PrincipalMiddleware(resolve PrincipalResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := resolve(r)
			if err != nil {
				respondError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}
