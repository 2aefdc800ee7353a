package routes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/scanguard/internal/api/mux"
	"github.com/ahrav/scanguard/internal/api/routes"
	appquarantine "github.com/ahrav/scanguard/internal/app/quarantine"
	"github.com/ahrav/scanguard/internal/app/scanning"
	"github.com/ahrav/scanguard/internal/domain/quarantine"
	"github.com/ahrav/scanguard/internal/domain/verdict"
	qmemory "github.com/ahrav/scanguard/internal/infra/storage/quarantine/memory"
	smemory "github.com/ahrav/scanguard/internal/infra/storage/scanning/memory"
	"github.com/ahrav/scanguard/pkg/common/logger"
)

type mockQuarantine struct{ mock.Mock }

func (m *mockQuarantine) List(ctx context.Context) ([]*quarantine.Record, error) {
	args := m.Called(ctx)
	recs, _ := args.Get(0).([]*quarantine.Record)
	return recs, args.Error(1)
}

func (m *mockQuarantine) Restore(ctx context.Context, id uuid.UUID) (*quarantine.Record, error) {
	args := m.Called(ctx, id)
	rec, _ := args.Get(0).(*quarantine.Record)
	return rec, args.Error(1)
}

func (m *mockQuarantine) Purge(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockQuarantine) Reconcile(ctx context.Context) (*quarantine.ReconcileReport, error) {
	args := m.Called(ctx)
	rep, _ := args.Get(0).(*quarantine.ReconcileReport)
	return rep, args.Error(1)
}

type unusedSubmitter struct{}

func (unusedSubmitter) Submit(context.Context, string) verdict.RawVerdict {
	return verdict.Failed("not expected")
}

type unusedQuarantiner struct{}

func (unusedQuarantiner) Quarantine(context.Context, string, string, verdict.Classification) (*quarantine.Record, error) {
	return nil, errors.New("not expected")
}

type fixture struct {
	handler http.Handler
	orch    *scanning.Orchestrator
	qsvc    *mockQuarantine
	ready   error
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := logger.Noop()
	tracer := noop.NewTracerProvider().Tracer("test")

	metrics, err := scanning.NewScanMetrics(metricnoop.NewMeterProvider())
	require.NoError(t, err)

	jobs := smemory.NewJobStore()
	results := smemory.NewFileResultStore()
	cfg := scanning.DefaultConfig()
	cfg.PacingDelay = 0

	f := &fixture{qsvc: new(mockQuarantine)}
	f.orch = scanning.NewOrchestrator(cfg, jobs, results, unusedSubmitter{}, unusedQuarantiner{}, metrics, log, tracer)
	t.Cleanup(func() { _ = f.orch.Shutdown(context.Background()) })

	f.handler = mux.WebAPI(mux.Config{
		Build:      "test",
		Log:        log,
		Tracer:     tracer,
		Scans:      f.orch,
		Registry:   scanning.NewRegistry(jobs, results, qmemory.NewStore(), log, tracer),
		Quarantine: f.qsvc,
		Ready:      func(context.Context) error { return f.ready },
	}, routes.Routes())
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHealth(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec, body := f.do(t, http.MethodGet, "/v1/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "scanguard", body["service"])

	rec, _ = f.do(t, http.MethodGet, "/v1/readiness", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	f.ready = errors.New("db down")
	rec, _ = f.do(t, http.MethodGet, "/v1/readiness", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStartScanAndQueryStatus(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	dir := t.TempDir()

	rec, body := f.do(t, http.MethodPost, "/v1/scans", map[string]string{"directory": dir})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "in_progress", body["status"])
	assert.Equal(t, "quick", body["mode"])

	id, err := uuid.Parse(body["job_id"].(string))
	require.NoError(t, err)

	if h, ok := f.orch.Handle(id); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := h.Wait(ctx)
		require.NoError(t, err)
	}

	rec, body = f.do(t, http.MethodGet, "/v1/scans/"+id.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, "100%", body["progress"])

	rec, body = f.do(t, http.MethodGet, "/v1/scans/"+id.String()+"/results", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(50), body["limit"])
	assert.Empty(t, body["results"])

	rec, body = f.do(t, http.MethodGet, "/v1/scans/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["history"], 1)

	rec, body = f.do(t, http.MethodGet, "/v1/dashboard/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["total_scans"])
	assert.Equal(t, float64(0), body["quarantined_files"])
}

func TestScanErrors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
		code   string
	}{
		{"missing directory", http.MethodPost, "/v1/scans", map[string]string{}, http.StatusBadRequest, "invalid_argument"},
		{"nonexistent directory", http.MethodPost, "/v1/scans", map[string]string{"directory": "/no/such/dir"}, http.StatusBadRequest, "invalid_argument"},
		{"unknown mode", http.MethodPost, "/v1/scans", map[string]string{"directory": "/tmp", "mode": "deep"}, http.StatusBadRequest, "invalid_argument"},
		{"unknown field", http.MethodPost, "/v1/scans", map[string]string{"directory": "/tmp", "extra": "x"}, http.StatusBadRequest, "invalid_argument"},
		{"bad job id", http.MethodGet, "/v1/scans/not-a-uuid", nil, http.StatusBadRequest, "invalid_argument"},
		{"unknown job", http.MethodGet, "/v1/scans/" + uuid.NewString(), nil, http.StatusNotFound, "not_found"},
		{"unknown job results", http.MethodGet, "/v1/scans/" + uuid.NewString() + "/results", nil, http.StatusNotFound, "not_found"},
		{"negative limit", http.MethodGet, "/v1/scans/history?limit=-1", nil, http.StatusBadRequest, "invalid_argument"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, tt.code, body["code"])
		})
	}
}

func TestStartScanAfterShutdown(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	require.NoError(t, f.orch.Shutdown(context.Background()))

	rec, body := f.do(t, http.MethodPost, "/v1/scans", map[string]string{"directory": t.TempDir()})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unavailable", body["code"])
}

func TestQuarantineRoutes(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	rec := &quarantine.Record{
		ID:            id,
		OriginalPath:  "/data/evil.exe",
		StoragePath:   "/q/" + id.String() + "_evil.exe",
		FileName:      "evil.exe",
		ThreatLevel:   verdict.ThreatLevelHigh,
		ThreatNames:   []string{"Trojan.Generic"},
		QuarantinedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	tests := []struct {
		name    string
		method  string
		path    string
		setup   func(m *mockQuarantine)
		want    int
		code    string
		reason  string
		checkFn func(t *testing.T, body map[string]any)
	}{
		{
			name:   "list",
			method: http.MethodGet,
			path:   "/v1/quarantine",
			setup: func(m *mockQuarantine) {
				m.On("List", mock.Anything).Return([]*quarantine.Record{rec}, nil)
			},
			want: http.StatusOK,
			checkFn: func(t *testing.T, body map[string]any) {
				assert.Equal(t, float64(1), body["total"])
			},
		},
		{
			name:   "restore ok",
			method: http.MethodPost,
			path:   "/v1/quarantine/" + id.String() + "/restore",
			setup: func(m *mockQuarantine) {
				m.On("Restore", mock.Anything, id).Return(rec, nil)
			},
			want: http.StatusOK,
			checkFn: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "/data/evil.exe", body["original_path"])
				assert.Equal(t, "high", body["threat_level"])
			},
		},
		{
			name:   "restore not found",
			method: http.MethodPost,
			path:   "/v1/quarantine/" + id.String() + "/restore",
			setup: func(m *mockQuarantine) {
				m.On("Restore", mock.Anything, id).Return(nil, quarantine.ErrNotFound)
			},
			want: http.StatusNotFound,
			code: "not_found",
		},
		{
			name:   "restore twice",
			method: http.MethodPost,
			path:   "/v1/quarantine/" + id.String() + "/restore",
			setup: func(m *mockQuarantine) {
				m.On("Restore", mock.Anything, id).Return(nil, quarantine.ErrAlreadyRestored)
			},
			want: http.StatusConflict,
			code: "conflict",
		},
		{
			name:   "restore onto occupied path",
			method: http.MethodPost,
			path:   "/v1/quarantine/" + id.String() + "/restore",
			setup: func(m *mockQuarantine) {
				m.On("Restore", mock.Anything, id).Return(nil,
					fmt.Errorf("%w: /data/evil.exe", quarantine.ErrDestinationExists))
			},
			want: http.StatusConflict,
			code: "conflict",
		},
		{
			name:   "restore file missing",
			method: http.MethodPost,
			path:   "/v1/quarantine/" + id.String() + "/restore",
			setup: func(m *mockQuarantine) {
				m.On("Restore", mock.Anything, id).Return(nil, quarantine.ErrFileMissing)
			},
			want: http.StatusGone,
			code: "gone",
		},
		{
			name:   "restore inconsistent",
			method: http.MethodPost,
			path:   "/v1/quarantine/" + id.String() + "/restore",
			setup: func(m *mockQuarantine) {
				m.On("Restore", mock.Anything, id).Return(nil, &quarantine.InconsistentStateError{
					ID: id, Path: "/data/evil.exe", Op: "restore",
					Err: errors.New("db"), Rollback: errors.New("fs"),
				})
			},
			want:   http.StatusInternalServerError,
			code:   "internal",
			reason: quarantine.ReasonInconsistentState,
		},
		{
			name:   "restore bad id",
			method: http.MethodPost,
			path:   "/v1/quarantine/nope/restore",
			setup:  func(*mockQuarantine) {},
			want:   http.StatusBadRequest,
			code:   "invalid_argument",
		},
		{
			name:   "purge",
			method: http.MethodDelete,
			path:   "/v1/quarantine/" + id.String(),
			setup: func(m *mockQuarantine) {
				m.On("Purge", mock.Anything, id).Return(nil)
			},
			want: http.StatusNoContent,
		},
		{
			name:   "purge unknown",
			method: http.MethodDelete,
			path:   "/v1/quarantine/" + id.String(),
			setup: func(m *mockQuarantine) {
				m.On("Purge", mock.Anything, id).Return(quarantine.ErrNotFound)
			},
			want: http.StatusNotFound,
			code: "not_found",
		},
		{
			name:   "reconcile",
			method: http.MethodPost,
			path:   "/v1/quarantine/reconcile",
			setup: func(m *mockQuarantine) {
				m.On("Reconcile", mock.Anything).Return(&quarantine.ReconcileReport{
					FilesChecked:   2,
					RecordsChecked: 1,
					Issues: []quarantine.Issue{
						{Type: quarantine.IssueOrphanedFile, Path: "/q/stray.bin"},
					},
				}, nil)
			},
			want: http.StatusOK,
			checkFn: func(t *testing.T, body map[string]any) {
				summary := body["summary"].(map[string]any)
				assert.Equal(t, float64(1), summary[string(quarantine.IssueOrphanedFile)])
				assert.Equal(t, float64(0), summary[string(quarantine.IssueMissingFile)])
			},
		},
		{
			name:   "reconcile in progress",
			method: http.MethodPost,
			path:   "/v1/quarantine/reconcile",
			setup: func(m *mockQuarantine) {
				m.On("Reconcile", mock.Anything).Return(nil, appquarantine.ErrReconcileInProgress)
			},
			want: http.StatusConflict,
			code: "conflict",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			tt.setup(f.qsvc)

			resp, body := f.do(t, tt.method, tt.path, nil)
			assert.Equal(t, tt.want, resp.Code)
			if tt.code != "" {
				assert.Equal(t, tt.code, body["code"])
			}
			if tt.reason != "" {
				assert.Equal(t, tt.reason, body["reason"])
			}
			if tt.checkFn != nil {
				tt.checkFn(t, body)
			}
			f.qsvc.AssertExpectations(t)
		})
	}
}
