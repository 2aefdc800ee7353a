// Package mid contains the set of middleware functions.
package mid

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/scanguard/pkg/web"
)

// Otel starts a handler span under the request span and tags it with the
// matched route pattern.
func Otel(tracer trace.Tracer) web.MidFunc {
	m := func(next web.HandlerFunc) web.HandlerFunc {
		h := func(ctx context.Context, r *http.Request) web.Encoder {
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}

			ctx, span := tracer.Start(ctx, "handler "+route,
				trace.WithAttributes(semconv.HTTPRoute(route)))
			defer span.End()

			return next(ctx, r)
		}

		return h
	}

	return m
}
