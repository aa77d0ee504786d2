package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/wildroots/wildroots-backend/api/responses"
	"github.com/wildroots/wildroots-backend/pkg/config"
	pkgerrors "github.com/wildroots/wildroots-backend/pkg/errors"
	"github.com/wildroots/wildroots-backend/pkg/logger"
)

const readinessTimeout = 2 * time.Second

// Pinger is any dependency with a health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-WildRoots-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings the database and Redis. Either failing marks the
// instance unready.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP, redisP Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-WildRoots-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := map[string]string{"database": "ok", "redis": "ok"}
		ready := true
		if err := ping(ctx, dbP); err != nil {
			checks["database"] = err.Error()
			ready = false
		}
		if err := ping(ctx, redisP); err != nil {
			checks["redis"] = err.Error()
			ready = false
		}

		if !ready {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").WithDetails(checks))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}

func ping(ctx context.Context, p Pinger) error {
	if p == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "not configured")
	}
	return p.Ping(ctx)
}
