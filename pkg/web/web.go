// Package web is a small framework for JSON APIs: handlers return an Encoder
// and middleware wraps handlers rather than http.Handlers.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// Encoder defines behavior that can encode a data model and provide
// the content type for that encoding.
type Encoder interface {
	Encode() (data []byte, contentType string, err error)
}

// HandlerFunc represents a function that handles a http request within our own
// little mini framework.
type HandlerFunc func(ctx context.Context, r *http.Request) Encoder

// Logger represents a function that will be called to add information
// to the logs.
type Logger func(ctx context.Context, msg string, args ...any)

// App is the entrypoint into our application and what configures our context
// object for each of our http handlers.
type App struct {
	log     Logger
	tracer  trace.Tracer
	mux     *chi.Mux
	otmux   http.Handler
	mw      []MidFunc
	origins []string
}

// NewApp creates an App value that handle a set of routes for the application.
func NewApp(log Logger, tracer trace.Tracer, mw ...MidFunc) *App {
	mux := chi.NewRouter()

	return &App{
		log:    log,
		tracer: tracer,
		mux:    mux,
		otmux: otelhttp.NewHandler(mux, "request",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		),
		mw: mw,
	}
}

// ServeHTTP implements the http.Handler interface.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.otmux.ServeHTTP(w, r)
}

// EnableCORS enables CORS preflight requests to work in the middleware. It
// prevents the MethodNotAllowedHandler from being called.
func (a *App) EnableCORS(origins []string) {
	a.origins = origins

	handler := func(ctx context.Context, r *http.Request) Encoder {
		return NoResponse{}
	}
	handler = wrapMiddleware([]MidFunc{a.corsHandler}, handler)

	a.mux.Options("/*", a.adapt(handler))
}

func (a *App) corsHandler(next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, r *http.Request) Encoder {
		w := GetWriter(ctx)

		origin := r.Header.Get("Origin")
		for _, host := range a.origins {
			if host == "*" || host == origin {
				w.Header().Set("Access-Control-Allow-Origin", host)
				break
			}
		}

		w.Header().Set("Access-Control-Allow-Methods", "POST, PATCH, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		return next(ctx, r)
	}
}

// HandlerFuncNoMid sets a handler function for a given HTTP method and path
// pair to the application server mux. Does not include the application
// middleware.
func (a *App) HandlerFuncNoMid(method string, version string, path string, handlerFunc HandlerFunc) {
	if a.origins != nil {
		handlerFunc = wrapMiddleware([]MidFunc{a.corsHandler}, handlerFunc)
	}

	a.mux.Method(method, finalPath(version, path), a.adapt(handlerFunc))
}

// HandlerFunc sets a handler function for a given HTTP method and path pair
// to the application server mux. Route middleware runs inside the app
// middleware.
func (a *App) HandlerFunc(method string, version string, path string, handlerFunc HandlerFunc, mw ...MidFunc) {
	handlerFunc = wrapMiddleware(mw, handlerFunc)
	handlerFunc = wrapMiddleware(a.mw, handlerFunc)

	if a.origins != nil {
		handlerFunc = wrapMiddleware([]MidFunc{a.corsHandler}, handlerFunc)
	}

	a.mux.Method(method, finalPath(version, path), a.adapt(handlerFunc))
}

func (a *App) adapt(handlerFunc HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := setWriter(r.Context(), w)

		resp := handlerFunc(ctx, r)

		if err := Respond(ctx, w, resp); err != nil {
			a.log(ctx, "web-respond", "ERROR", err)
		}
	}
}

func finalPath(version, path string) string {
	if version == "" {
		return path
	}
	return "/" + strings.Trim(version, "/") + path
}

// Param returns the web call parameters from the request.
func Param(r *http.Request, key string) string {
	return chi.URLParam(r, key)
}

// Decode reads the body of an HTTP request as JSON into val. An empty body
// leaves val untouched.
func Decode(r *http.Request, val any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}

	if err := jsonDecode(r.Body, val); err != nil {
		if errors.Is(err, errEmptyBody) {
			return nil
		}
		return fmt.Errorf("request: unable to decode payload: %w", err)
	}
	return nil
}
