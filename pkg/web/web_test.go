package web

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

func newTestApp(mw ...MidFunc) *App {
	return NewApp(func(context.Context, string, ...any) {}, noop.NewTracerProvider().Tracer("test"), mw...)
}

func TestApp_RoutesAndParams(t *testing.T) {
	t.Parallel()

	var order []string
	track := func(name string) MidFunc {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, r *http.Request) Encoder {
				order = append(order, name)
				return next(ctx, r)
			}
		}
	}

	app := newTestApp(track("app"))
	app.HandlerFunc(http.MethodGet, "v1", "/items/{id}", func(ctx context.Context, r *http.Request) Encoder {
		return JSON{Status: http.StatusAccepted, Value: map[string]string{"id": Param(r, "id")}}
	}, track("route"))
	app.HandlerFuncNoMid(http.MethodGet, "v1", "/bare", func(context.Context, *http.Request) Encoder {
		return nil
	})

	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/items/42", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"id":"42"}`, rec.Body.String())
	assert.Equal(t, []string{"app", "route"}, order)

	rec = httptest.NewRecorder()
	app.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/bare", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Len(t, order, 2)

	rec = httptest.NewRecorder()
	app.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApp_CORS(t *testing.T) {
	t.Parallel()

	app := newTestApp()
	app.EnableCORS([]string{"http://ui.local"})
	app.HandlerFunc(http.MethodGet, "v1", "/x", func(context.Context, *http.Request) Encoder {
		return JSON{Value: "ok"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/v1/x", nil)
	req.Header.Set("Origin", "http://ui.local")
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	assert.Equal(t, "http://ui.local", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestDecode(t *testing.T) {
	t.Parallel()

	type payload struct {
		Name string `json:"name"`
	}

	tests := []struct {
		name    string
		body    string
		want    payload
		wantErr bool
	}{
		{name: "valid", body: `{"name":"a"}`, want: payload{Name: "a"}},
		{name: "empty", body: ""},
		{name: "unknown field", body: `{"nope":1}`, wantErr: true},
		{name: "malformed", body: `{`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var body io.Reader = http.NoBody
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req := httptest.NewRequest(http.MethodPost, "/", body)

			var got payload
			err := Decode(req, &got)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
