package controllers

import (
	"net/http"

	"github.com/fleetline/dispatch-backend/api/middleware"
	"github.com/fleetline/dispatch-backend/api/responses"
	"github.com/fleetline/dispatch-backend/api/validators"
	"github.com/fleetline/dispatch-backend/internal/users"
	pkgerrors "github.com/fleetline/dispatch-backend/pkg/errors"
	"github.com/fleetline/dispatch-backend/pkg/logger"
	"github.com/fleetline/dispatch-backend/pkg/push"
)

type registerDeviceRequest struct {
	Token string `json:"token" validate:"required,min=8"`
}

// RegisterDevice stores the caller's push token. Dispatch staff are also
// subscribed to the shared staff topic so broadcast pushes reach them.
func RegisterDevice(usersRepo users.Repository, pushClient push.Client, staffTopic string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		var req registerDeviceRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := usersRepo.SetDeviceToken(r.Context(), actor.UserID, &req.Token); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "storing device token"))
			return
		}

		if pushClient != nil && staffTopic != "" && actor.IsDispatchStaff() {
			if err := pushClient.SubscribeToTopic(r.Context(), req.Token, staffTopic); err != nil {
				logg.Warn(r.Context(), "staff topic subscription failed")
			}
		}

		responses.WriteSuccess(w, map[string]string{"status": "registered"})
	}
}

// UnregisterDevice clears the caller's push token.
func UnregisterDevice(usersRepo users.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		if err := usersRepo.SetDeviceToken(r.Context(), actor.UserID, nil); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clearing device token"))
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "unregistered"})
	}
}
