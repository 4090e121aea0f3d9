package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fleetline/dispatch-backend/api/controllers"
	"github.com/fleetline/dispatch-backend/api/middleware"
	"github.com/fleetline/dispatch-backend/internal/assignment"
	"github.com/fleetline/dispatch-backend/internal/drivers"
	"github.com/fleetline/dispatch-backend/internal/locations"
	"github.com/fleetline/dispatch-backend/internal/notifications"
	"github.com/fleetline/dispatch-backend/internal/orders"
	"github.com/fleetline/dispatch-backend/internal/realtime"
	"github.com/fleetline/dispatch-backend/internal/users"
	"github.com/fleetline/dispatch-backend/pkg/config"
	"github.com/fleetline/dispatch-backend/pkg/enums"
	"github.com/fleetline/dispatch-backend/pkg/logger"
	"github.com/fleetline/dispatch-backend/pkg/push"
)

// Dependencies carries everything the router wires into handlers.
type Dependencies struct {
	Config *config.Config
	Logger *logger.Logger

	// readiness probes, keyed by dependency name
	Pingers map[string]controllers.Pinger

	Orders        orders.Service
	Assignment    assignment.Service
	Locations     locations.Service
	Drivers       drivers.Service
	Notifications notifications.Service
	UsersRepo     users.Repository
	Push          push.Client
	Hub           *realtime.Hub
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.Realtime.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Pingers))
	})

	r.Handle("/metrics", promhttp.Handler())

	// The hub authenticates the socket itself so the handshake can be
	// completed before the policy-violation close is sent.
	r.Get("/ws/tracking", deps.Hub.HandleWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/orders", func(r chi.Router) {
			staffOnly := middleware.RequireAnyRole(logg, enums.DispatchStaffRoles...)

			r.With(staffOnly).Post("/", controllers.OrdersCreate(deps.Orders, logg))
			r.Get("/{orderID}", controllers.OrdersGet(deps.Orders, logg))
			r.Get("/{orderID}/history", controllers.OrdersHistory(deps.Orders, logg))
			r.Patch("/{orderID}/status", controllers.OrdersUpdateStatus(deps.Orders, logg))

			r.With(staffOnly).Post("/{orderID}/assign", controllers.AssignOrder(deps.Assignment, logg))
			r.With(staffOnly).Post("/{orderID}/unassign", controllers.UnassignOrder(deps.Assignment, logg))
		})

		r.With(middleware.RequireAnyRole(logg, enums.DispatchStaffRoles...)).
			Post("/assignments/batch", controllers.BatchAssignOrders(deps.Assignment, logg))

		r.Route("/drivers", func(r chi.Router) {
			driverOnly := middleware.RequireAnyRole(logg, enums.UserRoleDriver)

			r.With(driverOnly).Get("/me", controllers.DriversProfile(deps.Drivers, logg))
			r.With(driverOnly).Put("/me/availability", controllers.DriversSetAvailability(deps.Drivers, logg))
			r.With(driverOnly).Post("/me/locations", controllers.LocationsSubmit(deps.Locations, logg))

			staffOnly := middleware.RequireAnyRole(logg, enums.DispatchStaffRoles...)
			r.With(staffOnly).Get("/{driverID}/location", controllers.LocationsLatest(deps.Locations, logg))
			r.With(staffOnly).Get("/{driverID}/locations", controllers.LocationsHistory(deps.Locations, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.NotificationsList(deps.Notifications, logg))
			r.Post("/read-all", controllers.NotificationsMarkAllRead(deps.Notifications, logg))
			r.Post("/{notificationID}/read", controllers.NotificationsMarkRead(deps.Notifications, logg))
		})

		r.Route("/devices", func(r chi.Router) {
			r.Post("/", controllers.RegisterDevice(deps.UsersRepo, deps.Push, cfg.Push.StaffTopic, logg))
			r.Delete("/", controllers.UnregisterDevice(deps.UsersRepo, logg))
		})
	})

	return r
}
