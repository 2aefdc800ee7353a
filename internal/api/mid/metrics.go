package mid

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ahrav/scanguard/pkg/web"
)

// RequestMetrics records request counts and latencies.
type RequestMetrics interface {
	IncRequestsTotal(ctx context.Context, method, path string, status int)
	ObserveRequestDuration(ctx context.Context, method, path string, duration time.Duration)
}

// Metrics records every request against its route pattern.
func Metrics(m RequestMetrics) web.MidFunc {
	mw := func(next web.HandlerFunc) web.HandlerFunc {
		h := func(ctx context.Context, r *http.Request) web.Encoder {
			start := time.Now()
			resp := next(ctx, r)

			path := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				path = rctx.RoutePattern()
			}
			m.IncRequestsTotal(ctx, r.Method, path, web.StatusCode(resp))
			m.ObserveRequestDuration(ctx, r.Method, path, time.Since(start))

			return resp
		}

		return h
	}

	return mw
}
