package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fleetline/dispatch-backend/api/controllers"
	"github.com/fleetline/dispatch-backend/api/routes"
	"github.com/fleetline/dispatch-backend/internal/assignment"
	"github.com/fleetline/dispatch-backend/internal/drivers"
	"github.com/fleetline/dispatch-backend/internal/locations"
	"github.com/fleetline/dispatch-backend/internal/notifications"
	"github.com/fleetline/dispatch-backend/internal/orders"
	"github.com/fleetline/dispatch-backend/internal/realtime"
	"github.com/fleetline/dispatch-backend/internal/users"
	"github.com/fleetline/dispatch-backend/pkg/config"
	"github.com/fleetline/dispatch-backend/pkg/db"
	"github.com/fleetline/dispatch-backend/pkg/logger"
	"github.com/fleetline/dispatch-backend/pkg/metrics"
	"github.com/fleetline/dispatch-backend/pkg/migrate"
	"github.com/fleetline/dispatch-backend/pkg/pubsub"
	"github.com/fleetline/dispatch-backend/pkg/push"
	"github.com/fleetline/dispatch-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}()

	var pushClient push.Client
	if cfg.Push.ServerKey != "" {
		httpPush, err := push.NewHTTPClient(cfg.Push)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap push client", err)
			os.Exit(1)
		}
		pushClient = httpPush
	} else {
		logg.Warn(ctx, "push server key not set, push delivery disabled")
	}

	usersRepo := users.NewRepository(dbClient.DB())
	driversRepo := drivers.NewRepository(dbClient.DB())
	ordersRepo := orders.NewRepository(dbClient.DB())
	notificationsRepo := notifications.NewRepository(dbClient.DB())
	locationsRepo := locations.NewRepository(dbClient.DB())

	dispatcher, err := notifications.NewDispatcher(cfg.Notifications.DispatchQueueSize, usersRepo, notificationsRepo, pushClient, logg)
	if err != nil {
		logg.Error(ctx, "failed to create notification dispatcher", err)
		os.Exit(1)
	}

	notificationsSvc, err := notifications.NewService(notificationsRepo, dispatcher, logg)
	if err != nil {
		logg.Error(ctx, "failed to create notifications service", err)
		os.Exit(1)
	}

	machine := orders.NewStateMachine()

	ordersSvc, err := orders.NewService(dbClient, ordersRepo, driversRepo, usersRepo, notificationsSvc, machine, logg)
	if err != nil {
		logg.Error(ctx, "failed to create orders service", err)
		os.Exit(1)
	}

	assignmentSvc, err := assignment.NewService(dbClient, ordersRepo, driversRepo, notificationsSvc, machine, pushClient, cfg.Push.StaffTopic, logg)
	if err != nil {
		logg.Error(ctx, "failed to create assignment service", err)
		os.Exit(1)
	}

	locationsSvc, err := locations.NewService(dbClient, locationsRepo, driversRepo, redisClient, pubsubClient, notificationsSvc, cfg.Locations, logg)
	if err != nil {
		logg.Error(ctx, "failed to create locations service", err)
		os.Exit(1)
	}

	driversSvc, err := drivers.NewService(driversRepo, logg)
	if err != nil {
		logg.Error(ctx, "failed to create drivers service", err)
		os.Exit(1)
	}

	realtimeMetrics := metrics.NewRealtimeMetrics(prometheus.DefaultRegisterer)
	hub, err := realtime.NewHub(pubsubClient.TrackingSubscription(), cfg.JWT, cfg.Realtime, realtimeMetrics, logg)
	if err != nil {
		logg.Error(ctx, "failed to create realtime hub", err)
		os.Exit(1)
	}

	go dispatcher.Run(ctx)
	go func() {
		if err := hub.Run(ctx); err != nil {
			logg.Error(ctx, "realtime hub stopped unexpectedly", err)
		}
	}()

	handler := routes.NewRouter(routes.Dependencies{
		Config: cfg,
		Logger: logg,
		Pingers: map[string]controllers.Pinger{
			"database": dbClient,
			"redis":    redisClient,
			"pubsub":   pubsubClient,
		},
		Orders:        ordersSvc,
		Assignment:    assignmentSvc,
		Locations:     locationsSvc,
		Drivers:       driversSvc,
		Notifications: notificationsSvc,
		UsersRepo:     usersRepo,
		Push:          pushClient,
		Hub:           hub,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	logCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(logCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(logCtx, "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(logCtx, "server shutdown failed", err)
	}

	// The signal context cancellation also stops the hub and dispatcher;
	// wait briefly for the dispatcher to drain in-flight deliveries.
	select {
	case <-dispatcher.Done():
	case <-time.After(5 * time.Second):
	}

	logg.Info(logCtx, "api server stopped")
}
