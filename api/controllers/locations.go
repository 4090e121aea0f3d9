package controllers

import (
	"net/http"
	"time"

	"github.com/fleetline/dispatch-backend/api/middleware"
	"github.com/fleetline/dispatch-backend/api/responses"
	"github.com/fleetline/dispatch-backend/api/validators"
	"github.com/fleetline/dispatch-backend/internal/locations"
	pkgerrors "github.com/fleetline/dispatch-backend/pkg/errors"
	"github.com/fleetline/dispatch-backend/pkg/logger"
	"github.com/fleetline/dispatch-backend/pkg/types"
)

// Coordinates are pointers so presence and range validate independently;
// lat 0 and lng 0 are legitimate samples.
type submitLocationRequest struct {
	Lat        *float64   `json:"lat" validate:"required,min=-90,max=90"`
	Lng        *float64   `json:"lng" validate:"required,min=-180,max=180"`
	RecordedAt *time.Time `json:"recorded_at"`
}

func LocationsSubmit(svc locations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		var req submitLocationRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := locations.SubmitInput{
			Point: types.GeoPoint{Lat: *req.Lat, Lng: *req.Lng},
		}
		if req.RecordedAt != nil {
			input.RecordedAt = *req.RecordedAt
		}

		location, err := svc.Submit(r.Context(), actor, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newLocationView(location))
	}
}

func LocationsLatest(svc locations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		driverID, err := validators.ParseIDParam(r, "driverID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		location, err := svc.Latest(r.Context(), actor, driverID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newLocationView(location))
	}
}

func LocationsHistory(svc locations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		driverID, err := validators.ParseIDParam(r, "driverID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		since, err := validators.ParseQueryTime(r, "since")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.History(r.Context(), actor, driverID, since)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newLocationViews(rows))
	}
}
