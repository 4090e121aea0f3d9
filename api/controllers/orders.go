package controllers

import (
	"net/http"

	"github.com/fleetline/dispatch-backend/api/middleware"
	"github.com/fleetline/dispatch-backend/api/responses"
	"github.com/fleetline/dispatch-backend/api/validators"
	"github.com/fleetline/dispatch-backend/internal/orders"
	"github.com/fleetline/dispatch-backend/pkg/enums"
	pkgerrors "github.com/fleetline/dispatch-backend/pkg/errors"
	"github.com/fleetline/dispatch-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

type createOrderRequest struct {
	Reference     string          `json:"reference"`
	Total         decimal.Decimal `json:"total" validate:"required"`
	PaymentMethod string          `json:"payment_method" validate:"required"`
	WarehouseID   int64           `json:"warehouse_id" validate:"required,gt=0"`
	Notes         string          `json:"notes"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Notes  string `json:"notes"`
}

func OrdersCreate(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		method, err := enums.ParsePaymentMethod(req.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		order, err := svc.Create(r.Context(), actor, orders.CreateOrderInput{
			Reference:     req.Reference,
			Total:         req.Total,
			PaymentMethod: method,
			WarehouseID:   req.WarehouseID,
			Notes:         req.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderView(order))
	}
}

func OrdersGet(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
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

		order, err := svc.Get(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderView(order))
	}
}

func OrdersHistory(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
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

		entries, err := svc.History(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newHistoryViews(entries))
	}
}

func OrdersUpdateStatus(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
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

		var req updateStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		target, err := enums.ParseOrderStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order status"))
			return
		}

		order, err := svc.UpdateStatus(r.Context(), actor, orders.UpdateStatusInput{
			OrderID: orderID,
			Target:  target,
			Notes:   req.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderView(order))
	}
}
