// Package mux provides support to bind domain level routes
// to the application mux.
package mux

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/scanguard/internal/api/mid"
	"github.com/ahrav/scanguard/internal/api/routes/dashboard"
	"github.com/ahrav/scanguard/internal/api/routes/quarantine"
	"github.com/ahrav/scanguard/internal/api/routes/scan"
	"github.com/ahrav/scanguard/pkg/common/logger"
	"github.com/ahrav/scanguard/pkg/web"
)

// Options represent optional parameters.
type Options struct {
	corsOrigin []string
}

// WithCORS provides configuration options for CORS.
func WithCORS(origins []string) func(opts *Options) {
	return func(opts *Options) {
		opts.corsOrigin = origins
	}
}

// APIMetrics is the instrumentation the HTTP layer records into.
type APIMetrics interface {
	mid.RequestMetrics
	scan.RequestMetrics
}

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Build  string
	Log    *logger.Logger
	Tracer trace.Tracer

	Scans      scan.Starter
	Registry   Registry
	Quarantine quarantine.Service
	// Ready reports whether the service's dependencies are reachable.
	Ready   func(ctx context.Context) error
	Metrics APIMetrics
}

// Registry answers both job and dashboard queries.
type Registry interface {
	scan.Reader
	dashboard.StatsProvider
}

// RouteAdder defines behavior that sets the routes to bind for an instance
// of the service.
type RouteAdder interface {
	Add(app *web.App, cfg Config)
}

// WebAPI constructs a http.Handler with all application routes bound.
func WebAPI(cfg Config, routeAdder RouteAdder, options ...func(opts *Options)) http.Handler {
	logger := func(ctx context.Context, msg string, args ...any) {
		cfg.Log.Info(ctx, msg, args...)
	}

	mw := []web.MidFunc{
		mid.Otel(cfg.Tracer),
		mid.Logger(cfg.Log),
		mid.Errors(cfg.Log),
	}
	if cfg.Metrics != nil {
		mw = append(mw, mid.Metrics(cfg.Metrics))
	}
	mw = append(mw, mid.Panics())

	app := web.NewApp(logger, cfg.Tracer, mw...)

	var opts Options
	for _, option := range options {
		option(&opts)
	}

	if len(opts.corsOrigin) > 0 {
		app.EnableCORS(opts.corsOrigin)
	}

	routeAdder.Add(app, cfg)

	return app
}
