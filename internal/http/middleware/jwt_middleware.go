package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/diagnosis/visitor-management/internal/domain"
	"github.com/diagnosis/visitor-management/internal/http/response"
	"github.com/diagnosis/visitor-management/internal/session"
	"github.com/diagnosis/visitor-management/pkg/logger"
)

// SessionResumer turns a bearer token into the session it was issued for.
type SessionResumer interface {
	Resume(ctx context.Context, token string) (*session.Session, error)
}

func bearerToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
}

// RequireSession rejects requests without a live staff session and stores the
// session in the request context.
func RequireSession(resumer SessionResumer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				response.Unauthorized(w, "Missing or invalid authorization header")
				return
			}
			sess, err := resumer.Resume(r.Context(), raw)
			if err != nil {
				response.FromError(w, r, err)
				return
			}
			ctx := session.NewContext(r.Context(), sess)
			ctx = context.WithValue(ctx, logger.UserIDKey, sess.UserID())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole must run after RequireSession.
func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := session.FromContext(r.Context())
			if !ok {
				response.Unauthorized(w, "Authentication required")
				return
			}
			for _, role := range roles {
				if sess.Role() == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			response.Forbidden(w, "Insufficient permissions")
		})
	}
}

// Session returns the session stored by RequireSession.
func Session(r *http.Request) *session.Session {
	sess, _ := session.FromContext(r.Context())
	return sess
}
