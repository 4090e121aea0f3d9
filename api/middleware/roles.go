package middleware

import (
	"net/http"

	"github.com/fleetline/dispatch-backend/api/responses"
	"github.com/fleetline/dispatch-backend/pkg/enums"
	pkgerrors "github.com/fleetline/dispatch-backend/pkg/errors"
	"github.com/fleetline/dispatch-backend/pkg/logger"
)

// RequireAnyRole rejects callers whose role is outside the allowed set.
func RequireAnyRole(logg *logger.Logger, allowed ...enums.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			if !actor.Role.HasAnyRole(allowed...) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "role not allowed"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
