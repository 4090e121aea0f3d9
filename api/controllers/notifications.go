package controllers

import (
	"net/http"

	"github.com/fleetline/dispatch-backend/api/middleware"
	"github.com/fleetline/dispatch-backend/api/responses"
	"github.com/fleetline/dispatch-backend/api/validators"
	"github.com/fleetline/dispatch-backend/internal/notifications"
	pkgerrors "github.com/fleetline/dispatch-backend/pkg/errors"
	"github.com/fleetline/dispatch-backend/pkg/logger"
)

func NotificationsList(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		unreadOnly := validators.ParseQueryBool(r, "unread")

		rows, err := svc.List(r.Context(), actor, limit, unreadOnly)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newNotificationViews(rows))
	}
}

func NotificationsMarkRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		notificationID, err := validators.ParseIDParam(r, "notificationID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.MarkRead(r.Context(), actor, notificationID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "read"})
	}
}

func NotificationsMarkAllRead(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.ActorFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		if err := svc.MarkAllRead(r.Context(), actor); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "read"})
	}
}
