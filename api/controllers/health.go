package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/fleetline/dispatch-backend/api/responses"
	"github.com/fleetline/dispatch-backend/pkg/config"
	pkgerrors "github.com/fleetline/dispatch-backend/pkg/errors"
	"github.com/fleetline/dispatch-backend/pkg/logger"
)

// Pinger is the readiness probe surface shared by the infra clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Fleetline-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every dependency and reports the first failure.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Fleetline-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Wrap(pkgerrors.CodeDependency, err, name+" unavailable").
						WithDetails(map[string]any{"dependency": name}))
				return
			}
		}

		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
