package scanning

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace/noop"

	appquarantine "github.com/ahrav/scanguard/internal/app/quarantine"
	"github.com/ahrav/scanguard/internal/domain/events"
	domain "github.com/ahrav/scanguard/internal/domain/scanning"
	"github.com/ahrav/scanguard/internal/domain/verdict"
	qmemory "github.com/ahrav/scanguard/internal/infra/storage/quarantine/memory"
	smemory "github.com/ahrav/scanguard/internal/infra/storage/scanning/memory"
	"github.com/ahrav/scanguard/pkg/common/logger"
)

// fakeSubmitter returns canned verdicts keyed by file base name and clean
// verdicts for everything else.
type fakeSubmitter struct {
	mu       sync.Mutex
	verdicts map[string]verdict.RawVerdict
	calls    []string
}

func (f *fakeSubmitter) Submit(_ context.Context, path string) verdict.RawVerdict {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := filepath.Base(path)
	f.calls = append(f.calls, name)
	if v, ok := f.verdicts[name]; ok {
		return v
	}
	return readyVerdict(0, 40)
}

func (f *fakeSubmitter) submitted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) PublishDomainEvent(ctx context.Context, evt events.DomainEvent, opts ...events.PublishOption) error {
	return m.Called(ctx, evt).Error(0)
}

func readyVerdict(positives, total int) verdict.RawVerdict {
	report := &verdict.Report{
		ResponseCode: verdict.ResponseCodeReady,
		Positives:    positives,
		Total:        total,
	}
	for i := range total {
		er := verdict.EngineResult{Engine: "engine" + string(rune('A'+i%26))}
		if i < positives {
			er.Detected = true
			er.Result = "Trojan.Generic"
		}
		report.Scans = append(report.Scans, er)
	}
	payload, _ := json.Marshal(map[string]int{"positives": positives, "total": total})
	return verdict.RawVerdict{Report: report, Payload: payload}
}

type fixture struct {
	orch      *Orchestrator
	jobs      *smemory.JobStore
	results   *smemory.FileResultStore
	qstore    *qmemory.Store
	manager   *appquarantine.Manager
	submitter *fakeSubmitter
}

func newFixture(t *testing.T, cfg Config, verdicts map[string]verdict.RawVerdict, opts ...Option) *fixture {
	t.Helper()

	tracer := noop.NewTracerProvider().Tracer("test")
	metrics, err := NewScanMetrics(metricnoop.NewMeterProvider())
	require.NoError(t, err)

	qstore := qmemory.NewStore()
	manager, err := appquarantine.NewManager(t.TempDir(), qstore, logger.Noop(), tracer)
	require.NoError(t, err)

	f := &fixture{
		jobs:      smemory.NewJobStore(),
		results:   smemory.NewFileResultStore(),
		qstore:    qstore,
		manager:   manager,
		submitter: &fakeSubmitter{verdicts: verdicts},
	}
	f.orch = NewOrchestrator(cfg, f.jobs, f.results, f.submitter, manager, metrics, logger.Noop(), tracer, opts...)
	return f
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PacingDelay = 0
	return cfg
}

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, content, 0o644))
	return p
}

func runScan(t *testing.T, f *fixture, dir string) Summary {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	h, err := f.orch.Start(ctx, StartRequest{Directory: dir})
	require.NoError(t, err)
	summary, err := h.Wait(ctx)
	require.NoError(t, err)
	return summary
}

func TestOrchestrator_InfectedFileQuarantined(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig(), map[string]verdict.RawVerdict{"evil.exe": readyVerdict(7, 40)})
	dir := t.TempDir()
	src := writeFile(t, dir, "evil.exe", []byte("MZ payload"))

	summary := runScan(t, f, dir)
	assert.Equal(t, 1, summary.FilesScanned)
	assert.Equal(t, 1, summary.FilesInfected)
	assert.Equal(t, domain.JobStatusCompleted, summary.Status)
	assert.False(t, summary.CompletedAt.IsZero())

	ctx := context.Background()
	job, err := f.jobs.GetJob(ctx, summary.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, job.Status())
	assert.Equal(t, 1, job.FilesScanned())
	assert.Equal(t, 1, job.FilesInfected())
	assert.Equal(t, domain.ScanModeQuick, job.Mode())

	results, err := f.results.ListResults(ctx, summary.JobID, 0, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, verdict.StatusInfected, results[0].Status)
	assert.Equal(t, verdict.ThreatLevelHigh, results[0].ThreatLevel)
	assert.Equal(t, 7, results[0].DetectionCount)
	assert.Equal(t, 40, results[0].TotalEngines)
	assert.Equal(t, []string{"Trojan.Generic"}, results[0].ThreatNames)
	assert.Len(t, results[0].Digest, 64)

	records, err := f.manager.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, src, records[0].OriginalPath)
	assert.Equal(t, results[0].Digest, records[0].Digest)
	assert.NoFileExists(t, src)
	assert.FileExists(t, records[0].StoragePath)
}

func TestOrchestrator_SkipsQuarantineDirUnderRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "evil.exe", []byte("MZ payload"))

	tracer := noop.NewTracerProvider().Tracer("test")
	metrics, err := NewScanMetrics(metricnoop.NewMeterProvider())
	require.NoError(t, err)

	// Sorts after evil.exe so the walk reaches it after the move.
	qdir := filepath.Join(root, "zz_quarantine")
	qstore := qmemory.NewStore()
	manager, err := appquarantine.NewManager(qdir, qstore, logger.Noop(), tracer)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.ExcludeDirs = []string{qdir + string(filepath.Separator)}
	submitter := &fakeSubmitter{verdicts: map[string]verdict.RawVerdict{
		"evil.exe": readyVerdict(7, 40),
	}}
	f := &fixture{
		jobs:      smemory.NewJobStore(),
		results:   smemory.NewFileResultStore(),
		qstore:    qstore,
		manager:   manager,
		submitter: submitter,
	}
	f.orch = NewOrchestrator(cfg, f.jobs, f.results, submitter, manager, metrics, logger.Noop(), tracer)

	summary := runScan(t, f, root)
	assert.Equal(t, 1, summary.FilesScanned)
	assert.Equal(t, 1, summary.FilesInfected)
	assert.Equal(t, []string{"evil.exe"}, submitter.submitted())

	ctx := context.Background()
	records, err := manager.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	report, err := manager.Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Issues)
}

func TestDirSet(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	set := newDirSet([]string{filepath.Join(base, "q") + "/", ""})

	tests := []struct {
		name string
		path string
		want bool
	}{
		{name: "exact", path: filepath.Join(base, "q"), want: true},
		{name: "unclean", path: filepath.Join(base, "x") + "/../q", want: true},
		{name: "sibling prefix", path: filepath.Join(base, "qq"), want: false},
		{name: "parent", path: base, want: false},
		{name: "child", path: filepath.Join(base, "q", "inner"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, set.contains(tt.path))
		})
	}
	assert.False(t, newDirSet(nil).contains(base))
}

func TestOrchestrator_PendingVerdictNotQuarantined(t *testing.T) {
	t.Parallel()

	pending := verdict.RawVerdict{Report: &verdict.Report{ResponseCode: verdict.ResponseCodePending}}
	f := newFixture(t, testConfig(), map[string]verdict.RawVerdict{"queued.pdf": pending})
	dir := t.TempDir()
	src := writeFile(t, dir, "queued.pdf", []byte("%PDF"))

	summary := runScan(t, f, dir)
	assert.Equal(t, 1, summary.FilesScanned)
	assert.Zero(t, summary.FilesInfected)

	results, err := f.results.ListResults(context.Background(), summary.JobID, 0, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, verdict.StatusScanning, results[0].Status)
	assert.Equal(t, verdict.ThreatLevelUnknown, results[0].ThreatLevel)
	assert.FileExists(t, src)

	active, err := f.qstore.CountActive(context.Background())
	require.NoError(t, err)
	assert.Zero(t, active)
}

func TestOrchestrator_MediumThreatNotQuarantined(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig(), map[string]verdict.RawVerdict{"meh.js": readyVerdict(4, 40)})
	dir := t.TempDir()
	src := writeFile(t, dir, "meh.js", []byte("alert(1)"))

	summary := runScan(t, f, dir)
	assert.Equal(t, 1, summary.FilesScanned)
	assert.Zero(t, summary.FilesInfected)
	assert.FileExists(t, src)

	counts, err := f.results.CountsForJob(context.Background(), summary.JobID)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Infected)
}

func TestOrchestrator_SkipsIneligibleFiles(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxFileSize = 16

	f := newFixture(t, cfg, nil)
	dir := t.TempDir()
	writeFile(t, dir, "notes.txt", []byte("plain"))
	writeFile(t, dir, "Makefile", []byte("all:"))
	writeFile(t, dir, "big.zip", make([]byte, 17))
	writeFile(t, dir, "sub/ok.PNG", []byte("png"))
	writeFile(t, dir, "edge.gz", make([]byte, 16))

	summary := runScan(t, f, dir)
	assert.Equal(t, 2, summary.FilesScanned)
	assert.Equal(t, 3, summary.FilesSkipped)
	assert.ElementsMatch(t, []string{"ok.PNG", "edge.gz"}, f.submitter.submitted())
}

func TestOrchestrator_SubmissionFailureRecordedAsError(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig(), map[string]verdict.RawVerdict{
		"broken.doc": verdict.Failed("Upload failed: 403"),
	})
	dir := t.TempDir()
	writeFile(t, dir, "broken.doc", []byte("doc"))
	writeFile(t, dir, "fine.doc", []byte("doc2"))

	summary := runScan(t, f, dir)
	assert.Equal(t, 2, summary.FilesScanned)
	assert.Equal(t, 1, summary.FileErrors)

	results, err := f.results.ListResults(context.Background(), summary.JobID, 0, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)

	byName := map[string]domain.FileResult{}
	for _, r := range results {
		byName[r.Name] = r
	}
	assert.Equal(t, verdict.StatusError, byName["broken.doc"].Status)
	assert.Equal(t, "Upload failed: 403", byName["broken.doc"].ErrorReason)
	assert.Equal(t, verdict.StatusClean, byName["fine.doc"].Status)
}

func TestOrchestrator_InvalidDirectory(t *testing.T) {
	t.Parallel()

	file := writeFile(t, t.TempDir(), "a.exe", []byte("x"))

	tests := []struct {
		name string
		dir  string
	}{
		{name: "empty", dir: ""},
		{name: "blank", dir: "   "},
		{name: "missing", dir: filepath.Join(t.TempDir(), "nope")},
		{name: "not a directory", dir: file},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, testConfig(), nil)
			h, err := f.orch.Start(context.Background(), StartRequest{Directory: tt.dir})
			require.ErrorIs(t, err, domain.ErrInvalidInput)
			assert.Nil(t, h)

			n, err := f.jobs.CountJobs(context.Background())
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestOrchestrator_RunSurvivesCallerCancellation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig(), nil)
	dir := t.TempDir()
	writeFile(t, dir, "a.exe", []byte("a"))

	ctx, cancel := context.WithCancel(context.Background())
	h, err := f.orch.Start(ctx, StartRequest{Directory: dir, Mode: domain.ScanModeFull})
	require.NoError(t, err)
	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer waitCancel()
	summary, err := h.Wait(waitCtx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FilesScanned)

	job, err := f.jobs.GetJob(context.Background(), h.JobID())
	require.NoError(t, err)
	assert.Equal(t, domain.ScanModeFull, job.Mode())
}

func TestOrchestrator_PublishesEvents(t *testing.T) {
	t.Parallel()

	pub := new(mockPublisher)
	pub.On("PublishDomainEvent", mock.Anything, mock.Anything).Return(nil)

	f := newFixture(t, testConfig(), map[string]verdict.RawVerdict{"evil.exe": readyVerdict(12, 40)}, WithPublisher(pub))
	dir := t.TempDir()
	writeFile(t, dir, "evil.exe", []byte("x"))

	runScan(t, f, dir)

	var types []events.EventType
	for _, c := range pub.Calls {
		types = append(types, c.Arguments.Get(1).(events.DomainEvent).EventType())
	}
	assert.Equal(t, []events.EventType{
		domain.EventTypeJobStarted,
		domain.EventTypeFileInfected,
		domain.EventTypeJobCompleted,
	}, types)
}

func TestOrchestrator_ShutdownRejectsNewJobs(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testConfig(), nil)
	require.NoError(t, f.orch.Shutdown(context.Background()))

	_, err := f.orch.Start(context.Background(), StartRequest{Directory: t.TempDir()})
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestOrchestrator_HandleTracksLiveRuns(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	f := newFixture(t, testConfig(), nil, WithLimiter(blockingLimiter(block)))
	dir := t.TempDir()
	writeFile(t, dir, "a.exe", []byte("a"))

	h, err := f.orch.Start(context.Background(), StartRequest{Directory: dir})
	require.NoError(t, err)

	live, ok := f.orch.Handle(h.JobID())
	require.True(t, ok)
	assert.Same(t, h, live)

	close(block)
	<-h.Done()

	_, ok = f.orch.Handle(h.JobID())
	assert.False(t, ok)
	_, ok = f.orch.Handle(uuid.New())
	assert.False(t, ok)
}

type blockingLimiter chan struct{}

func (b blockingLimiter) Wait(ctx context.Context) error {
	select {
	case <-b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestPacer(t *testing.T) {
	t.Parallel()

	p := newPacer(30*time.Millisecond, nil)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, p.wait(ctx))
	assert.Less(t, time.Since(start), 30*time.Millisecond)

	require.NoError(t, p.wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, p.wait(cancelled), context.Canceled)
}
