// Package routes binds every scanguard endpoint.
package routes

import (
	"github.com/ahrav/scanguard/internal/api/mux"
	"github.com/ahrav/scanguard/internal/api/routes/dashboard"
	"github.com/ahrav/scanguard/internal/api/routes/health"
	"github.com/ahrav/scanguard/internal/api/routes/quarantine"
	"github.com/ahrav/scanguard/internal/api/routes/scan"
	"github.com/ahrav/scanguard/pkg/web"
)

// Routes constructs an add value which provides the implementation of
// RouteAdder for specifying what routes to bind to this instance.
func Routes() add {
	return add{}
}

type add struct{}

// Add implements the RouteAdder interface.
func (add) Add(app *web.App, cfg mux.Config) {
	health.Routes(app, health.Config{
		Build: cfg.Build,
		Log:   cfg.Log,
		Ready: cfg.Ready,
	})

	var metrics scan.RequestMetrics
	if cfg.Metrics != nil {
		metrics = cfg.Metrics
	}
	scan.Routes(app, scan.Config{
		Log:      cfg.Log,
		Starter:  cfg.Scans,
		Registry: cfg.Registry,
		Metrics:  metrics,
	})

	quarantine.Routes(app, quarantine.Config{
		Log:     cfg.Log,
		Service: cfg.Quarantine,
	})

	dashboard.Routes(app, dashboard.Config{
		Log:   cfg.Log,
		Stats: cfg.Registry,
	})
}
