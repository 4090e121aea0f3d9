package controllers

import (
	"net/http"

	"github.com/fleetline/dispatch-backend/api/middleware"
	"github.com/fleetline/dispatch-backend/api/responses"
	"github.com/fleetline/dispatch-backend/api/validators"
	"github.com/fleetline/dispatch-backend/internal/drivers"
	pkgerrors "github.com/fleetline/dispatch-backend/pkg/errors"
	"github.com/fleetline/dispatch-backend/pkg/logger"
)

type availabilityRequest struct {
	Available *bool `json:"available" validate:"required"`
}

func DriversProfile(svc drivers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		driver, err := svc.Profile(r.Context(), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newDriverView(driver))
	}
}

func DriversSetAvailability(svc drivers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		var req availabilityRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		driver, err := svc.SetAvailability(r.Context(), actor, *req.Available)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newDriverView(driver))
	}
}
