package auth

import (
	"chat-relay/errors"
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey string

const (
	UserIDKey contextKey = "user_id"

	// CookieName is the cookie set by the login collaborator.
	CookieName = "jwt"
)

// WithUserID stores a verified identity in the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// UserIDFromContext returns the identity injected by the middleware.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok && userID != ""
}

// Required rejects requests without a valid token.
func (a *Authenticator) Required(next http.Handler) http.Handler {
	return a.middleware(next, true)
}

// Optional lets requests without any token through unauthenticated.
// A token that is present but invalid is still rejected.
func (a *Authenticator) Optional(next http.Handler) http.Handler {
	return a.middleware(next, false)
}

func (a *Authenticator) middleware(next http.Handler, required bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := extractToken(r)
		if tokenStr == "" {
			if required {
				writeUnauthorized(w, errors.ErrMissingToken)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		claims, err := a.ValidateToken(tokenStr)
		if err != nil {
			writeUnauthorized(w, errors.ErrInvalidToken)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), claims.UserID)))
	})
}

// extractToken looks at the Authorization header, then the jwt cookie, then
// the token query parameter (browsers cannot set headers on a websocket upgrade).
func extractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return r.URL.Query().Get("token")
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
