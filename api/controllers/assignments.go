package controllers

import (
	"net/http"

	"github.com/fleetline/dispatch-backend/api/middleware"
	"github.com/fleetline/dispatch-backend/api/responses"
	"github.com/fleetline/dispatch-backend/api/validators"
	"github.com/fleetline/dispatch-backend/internal/assignment"
	pkgerrors "github.com/fleetline/dispatch-backend/pkg/errors"
	"github.com/fleetline/dispatch-backend/pkg/logger"
)

type assignRequest struct {
	DriverID int64 `json:"driver_id" validate:"required,gt=0"`
}

type batchAssignRequest struct {
	Pairs []struct {
		OrderID  int64 `json:"order_id" validate:"required,gt=0"`
		DriverID int64 `json:"driver_id" validate:"required,gt=0"`
	} `json:"pairs" validate:"required,min=1,max=200,dive"`
}

func AssignOrder(svc assignment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		orderID, err := validators.ParseIDParam(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req assignRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Assign(r.Context(), actor, orderID, req.DriverID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderView(order))
	}
}

func BatchAssignOrders(svc assignment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		var req batchAssignRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		pairs := make([]assignment.Pair, 0, len(req.Pairs))
		for _, pair := range req.Pairs {
			pairs = append(pairs, assignment.Pair{OrderID: pair.OrderID, DriverID: pair.DriverID})
		}

		// The warehouse scope comes from the actor's token, never the body.
		result, err := svc.BatchAssign(r.Context(), actor, assignment.BatchInput{
			Pairs:                  pairs,
			AccessibleWarehouseIDs: actor.WarehouseIDs,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

func UnassignOrder(svc assignment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		orderID, err := validators.ParseIDParam(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Unassign(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderView(order))
	}
}
