// Package health binds the liveness and readiness endpoints.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/ahrav/scanguard/internal/api/errs"
	"github.com/ahrav/scanguard/pkg/common/logger"
	"github.com/ahrav/scanguard/pkg/web"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "scanguard"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Build string
	Log   *logger.Logger
	// Ready reports whether dependencies such as the database are reachable.
	// Nil means always ready.
	Ready func(ctx context.Context) error
}

// Routes binds all the health check endpoints.
func Routes(app *web.App, cfg Config) {
	const version = "v1"

	app.HandlerFuncNoMid(http.MethodGet, version, "/health", health(cfg))
	app.HandlerFuncNoMid(http.MethodGet, version, "/readiness", readiness(cfg))
}

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Build   string `json:"build,omitempty"`
}

func health(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		return web.JSON{Value: healthResponse{
			Status:  "healthy",
			Service: ServiceName,
			Build:   cfg.Build,
		}}
	}
}

type readyResponse struct {
	Status string `json:"status"`
}

func readiness(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		if cfg.Ready != nil {
			ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()

			if err := cfg.Ready(ctx); err != nil {
				cfg.Log.Warn(ctx, "readiness check failed", "error", err)
				return errs.Newf(errs.Unavailable, "not ready: %v", err)
			}
		}
		return web.JSON{Value: readyResponse{Status: "ready"}}
	}
}
