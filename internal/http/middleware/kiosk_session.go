package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/visitor-management/internal/http/response"
	"github.com/diagnosis/visitor-management/pkg/logger"
)

// KioskAuthorizer checks that a kiosk token was issued for a flow.
type KioskAuthorizer interface {
	Authorize(token, flowID string) error
}

// RequireKioskFlow guards /kiosk/flows/{id} routes. The flow id comes from
// the URL; the token must have been issued for exactly that flow.
func RequireKioskFlow(authz KioskAuthorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := bearerToken(r)
			if tok == "" {
				response.Unauthorized(w, "kiosk token is required")
				return
			}
			flowID := chi.URLParam(r, "id")
			if err := authz.Authorize(tok, flowID); err != nil {
				response.FromError(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), logger.KioskFlowKey, flowID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
