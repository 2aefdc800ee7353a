package mid

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/scanguard/internal/api/errs"
	"github.com/ahrav/scanguard/pkg/common/logger"
	"github.com/ahrav/scanguard/pkg/web"
)

type mockRequestMetrics struct{ mock.Mock }

func (m *mockRequestMetrics) IncRequestsTotal(ctx context.Context, method, path string, status int) {
	m.Called(ctx, method, path, status)
}

func (m *mockRequestMetrics) ObserveRequestDuration(ctx context.Context, method, path string, d time.Duration) {
	m.Called(ctx, method, path, d)
}

func call(mw web.MidFunc, h web.HandlerFunc) web.Encoder {
	return mw(h)(context.Background(), httptest.NewRequest(http.MethodGet, "/v1/x", nil))
}

func TestErrors(t *testing.T) {
	t.Parallel()

	mw := Errors(logger.Noop())

	tests := []struct {
		name       string
		resp       web.Encoder
		wantStatus int
		wantCode   errs.ErrCode
	}{
		{name: "app error passes through", resp: errs.Newf(errs.NotFound, "gone"), wantStatus: http.StatusNotFound, wantCode: errs.NotFound},
		{name: "plain error becomes internal", resp: plainError{errors.New("boom")}, wantStatus: http.StatusInternalServerError, wantCode: errs.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := call(mw, func(context.Context, *http.Request) web.Encoder { return tt.resp })
			appErr, ok := got.(*errs.Error)
			require.True(t, ok)
			assert.Equal(t, tt.wantStatus, appErr.HTTPStatus())
			assert.True(t, appErr.Code.Equal(tt.wantCode))
		})
	}

	ok := web.JSON{Value: 1}
	assert.Equal(t, ok, call(mw, func(context.Context, *http.Request) web.Encoder { return ok }))
}

type plainError struct{ error }

func (plainError) Encode() ([]byte, string, error) { return nil, "", nil }

func TestPanics(t *testing.T) {
	t.Parallel()

	got := call(Panics(), func(context.Context, *http.Request) web.Encoder { panic("kaboom") })
	appErr, ok := got.(*errs.Error)
	require.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, appErr.HTTPStatus())
	assert.Contains(t, appErr.Message, "kaboom")
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	m := new(mockRequestMetrics)
	m.On("IncRequestsTotal", mock.Anything, http.MethodGet, "/v1/x", http.StatusConflict).Once()
	m.On("ObserveRequestDuration", mock.Anything, http.MethodGet, "/v1/x", mock.Anything).Once()

	call(Metrics(m), func(context.Context, *http.Request) web.Encoder { return errs.Newf(errs.Conflict, "c") })
	m.AssertExpectations(t)
}
