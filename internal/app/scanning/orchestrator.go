// Package scanning runs directory scans: it walks a tree, submits each
// eligible file for a reputation verdict, records the outcome and hands
// dangerous files to quarantine.
package scanning

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/scanguard/internal/domain/events"
	"github.com/ahrav/scanguard/internal/domain/quarantine"
	domain "github.com/ahrav/scanguard/internal/domain/scanning"
	"github.com/ahrav/scanguard/internal/domain/verdict"
	"github.com/ahrav/scanguard/internal/infra/digest"
	"github.com/ahrav/scanguard/pkg/common/logger"
	"github.com/ahrav/scanguard/pkg/common/timeutil"
)

// ErrShuttingDown is returned by Start once Shutdown has been called.
var ErrShuttingDown = errors.New("orchestrator shutting down")

// Submitter obtains a reputation verdict for a file. Failures are reported
// inside the verdict, never as a Go error.
type Submitter interface {
	Submit(ctx context.Context, path string) verdict.RawVerdict
}

// Quarantiner isolates an infected file.
type Quarantiner interface {
	Quarantine(ctx context.Context, path, digest string, c verdict.Classification) (*quarantine.Record, error)
}

// Limiter bounds the submission rate shared across all jobs.
type Limiter interface {
	Wait(ctx context.Context) error
}

// StartRequest describes a scan to start.
type StartRequest struct {
	Directory string
	Mode      domain.ScanMode
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLimiter shares l across every job's submissions.
func WithLimiter(l Limiter) Option {
	return func(o *Orchestrator) { o.limiter = l }
}

// WithPublisher sets the publisher for scan domain events.
func WithPublisher(p events.DomainEventPublisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithTimeProvider overrides the clock used for job and record timestamps.
func WithTimeProvider(tp timeutil.Provider) Option {
	return func(o *Orchestrator) { o.clock = tp }
}

// Orchestrator starts scan jobs and runs each on its own goroutine. There is
// no global job lock; runs share only the optional limiter.
type Orchestrator struct {
	cfg        Config
	extensions extensionSet
	excluded   dirSet

	jobs        domain.JobRepository
	results     domain.FileResultRepository
	submitter   Submitter
	quarantiner Quarantiner
	publisher   events.DomainEventPublisher
	limiter     Limiter
	clock       timeutil.Provider

	mu       sync.Mutex
	handles  map[uuid.UUID]*Handle
	closed   bool
	inflight sync.WaitGroup

	metrics ScanMetrics
	logger  *logger.Logger
	tracer  trace.Tracer
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(
	cfg Config,
	jobs domain.JobRepository,
	results domain.FileResultRepository,
	submitter Submitter,
	quarantiner Quarantiner,
	metrics ScanMetrics,
	log *logger.Logger,
	tracer trace.Tracer,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		cfg:         cfg,
		extensions:  newExtensionSet(cfg.Extensions),
		excluded:    newDirSet(cfg.ExcludeDirs),
		jobs:        jobs,
		results:     results,
		submitter:   submitter,
		quarantiner: quarantiner,
		publisher:   events.NopPublisher{},
		clock:       timeutil.Default(),
		handles:     make(map[uuid.UUID]*Handle),
		metrics:     metrics,
		logger:      log.With("component", "scan_orchestrator"),
		tracer:      tracer,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start validates the request, creates the job and launches its run. The run
// is detached from ctx's cancellation so it outlives the caller.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) (*Handle, error) {
	ctx, span := o.tracer.Start(ctx, "scan_orchestrator.start",
		trace.WithAttributes(attribute.String("directory", req.Directory)))
	defer span.End()

	dir, err := validateDirectory(req.Directory)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid directory")
		return nil, err
	}
	mode := req.Mode
	if mode == "" {
		mode = domain.ScanModeQuick
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrShuttingDown
	}
	o.inflight.Add(1)
	o.mu.Unlock()

	job := domain.NewJob(dir, mode, o.clock)
	if err := o.jobs.CreateJob(ctx, job); err != nil {
		o.inflight.Done()
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create job")
		return nil, fmt.Errorf("creating job: %w", err)
	}
	span.SetAttributes(attribute.String("job_id", job.JobID().String()))

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h := newHandle(job.JobID(), cancel)

	o.mu.Lock()
	o.handles[job.JobID()] = h
	o.mu.Unlock()

	o.logger.Info(ctx, "scan job started", "job_id", job.JobID(), "directory", dir, "mode", mode)
	o.publish(ctx, job.JobID(), domain.NewJobStartedEvent(job.JobID(), dir, mode))

	go func() {
		defer o.inflight.Done()
		defer cancel()

		summary, err := o.run(runCtx, job)

		o.mu.Lock()
		delete(o.handles, job.JobID())
		o.mu.Unlock()

		h.finish(summary, err)
	}()

	return h, nil
}

// Handle returns the live handle for jobID, if its run is still in progress.
func (o *Orchestrator) Handle(jobID uuid.UUID) (*Handle, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	h, ok := o.handles[jobID]
	return h, ok
}

// Shutdown stops accepting new jobs and waits for in-flight runs. If ctx ends
// first the remaining runs are cancelled; they still complete their jobs with
// the counters reached so far.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		o.mu.Lock()
		for _, h := range o.handles {
			h.cancel()
		}
		o.mu.Unlock()
		<-done
		return ctx.Err()
	}
}

func validateDirectory(dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", fmt.Errorf("%w: directory is required", domain.ErrInvalidInput)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", domain.ErrInvalidInput, dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", domain.ErrInvalidInput, dir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", domain.ErrInvalidInput, dir)
	}
	return abs, nil
}

// run walks the job's directory and completes the job. Per-file failures are
// recorded and never end the walk.
func (o *Orchestrator) run(ctx context.Context, job *domain.Job) (Summary, error) {
	ctx, span := o.tracer.Start(ctx, "scan_orchestrator.run",
		trace.WithAttributes(attribute.String("job_id", job.JobID().String())))
	defer span.End()

	o.metrics.IncActiveScans(ctx)
	defer o.metrics.DecActiveScans(ctx)

	logr := o.logger.With("job_id", job.JobID())
	r := &jobRun{
		o:     o,
		job:   job,
		pacer: newPacer(o.cfg.PacingDelay, o.limiter),
		log:   logr,
	}

	walkErr := filepath.WalkDir(job.Directory(), func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			logr.Warn(ctx, "skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if o.excluded.contains(path) {
				logr.Debug(ctx, "skipping excluded directory", "path", path)
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		r.visit(ctx, path, d)
		return nil
	})

	// Completion must persist even if the run was cancelled.
	persistCtx := context.WithoutCancel(ctx)
	if err := job.Complete(); err != nil {
		span.RecordError(err)
		return r.summary(), fmt.Errorf("completing job %s: %w", job.JobID(), err)
	}
	if err := o.jobs.UpdateJob(persistCtx, job); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to persist completed job")
		logr.Error(persistCtx, "failed to persist completed job", "error", err)
		return r.summary(), fmt.Errorf("persisting job %s: %w", job.JobID(), err)
	}

	summary := r.summary()
	span.SetAttributes(
		attribute.Int("files_scanned", summary.FilesScanned),
		attribute.Int("files_infected", summary.FilesInfected),
	)
	logr.Info(persistCtx, "scan job completed",
		"files_scanned", summary.FilesScanned,
		"files_infected", summary.FilesInfected,
		"files_skipped", summary.FilesSkipped,
		"file_errors", summary.FileErrors,
	)
	o.publish(persistCtx, job.JobID(), domain.NewJobCompletedEvent(job.JobID(), summary.FilesScanned, summary.FilesInfected))

	if walkErr != nil && !errors.Is(walkErr, context.Canceled) {
		return summary, fmt.Errorf("walking %s: %w", job.Directory(), walkErr)
	}
	return summary, nil
}

// publish keys every event by job so a job's events stay ordered.
func (o *Orchestrator) publish(ctx context.Context, jobID uuid.UUID, evt events.DomainEvent) {
	if err := o.publisher.PublishDomainEvent(ctx, evt, events.WithKey(jobID.String())); err != nil {
		o.logger.Warn(ctx, "failed to publish scan event", "event_type", evt.EventType(), "error", err)
	}
}

// jobRun is the mutable state of one run. It is confined to the run goroutine.
type jobRun struct {
	o     *Orchestrator
	job   *domain.Job
	pacer *pacer
	log   *logger.Logger

	skipped int
	errors  int
}

func (r *jobRun) summary() Summary {
	end, _ := r.job.EndTime()
	return Summary{
		JobID:         r.job.JobID(),
		Status:        r.job.Status(),
		FilesScanned:  r.job.FilesScanned(),
		FilesInfected: r.job.FilesInfected(),
		FilesSkipped:  r.skipped,
		FileErrors:    r.errors,
		StartedAt:     r.job.StartTime(),
		CompletedAt:   end,
	}
}

func (r *jobRun) visit(ctx context.Context, path string, d fs.DirEntry) {
	if !r.o.extensions.allows(path) {
		r.skip(ctx, path, "unsupported_extension")
		return
	}
	info, err := d.Info()
	if err != nil {
		r.recordError(ctx, path, 0, fmt.Sprintf("stat failed: %v", err))
		return
	}
	if info.Size() > r.o.cfg.MaxFileSize {
		r.skip(ctx, path, "too_large")
		return
	}
	r.process(ctx, path, info.Size())
}

func (r *jobRun) skip(ctx context.Context, path, reason string) {
	r.skipped++
	r.o.metrics.IncFilesSkipped(ctx, reason)
	r.log.Debug(ctx, "file skipped", "path", path, "reason", reason)
}

func (r *jobRun) process(ctx context.Context, path string, size int64) {
	o := r.o
	ctx, span := o.tracer.Start(ctx, "scan_orchestrator.process_file",
		trace.WithAttributes(
			attribute.String("path", path),
			attribute.Int64("size", size),
		))
	defer span.End()

	sum, err := digest.File(path)
	if err != nil {
		span.RecordError(err)
		r.recordError(ctx, path, size, err.Error())
		return
	}

	if err := r.pacer.wait(ctx); err != nil {
		// Cancelled while pacing; the walk stops on its next callback.
		return
	}

	start := time.Now()
	raw := o.submitter.Submit(ctx, path)
	o.metrics.ObserveSubmission(ctx, time.Since(start))

	c := verdict.Classify(raw)
	span.SetAttributes(
		attribute.String("status", c.Status.String()),
		attribute.String("threat_level", c.ThreatLevel.String()),
	)

	result := domain.NewFileResult(r.job.JobID(), path, filepath.Base(path), size, sum, c, raw.Payload, o.clock.Now())
	r.save(ctx, result)
	if c.Status == verdict.StatusError {
		r.errors++
		o.metrics.IncFileErrors(ctx)
	}

	if c.Infected() {
		o.publish(ctx, r.job.JobID(), domain.NewFileInfectedEvent(result))
	}

	if o.cfg.Policy.ShouldQuarantine(c) {
		if _, err := o.quarantiner.Quarantine(ctx, path, sum, c); err != nil {
			span.RecordError(err)
			o.metrics.IncQuarantineErrors(ctx)
			r.log.Error(ctx, "failed to quarantine infected file", "path", path, "error", err)
		} else {
			o.metrics.IncFilesQuarantined(ctx)
			if err := r.job.RecordFileInfected(); err != nil {
				r.log.Error(ctx, "failed to record infection", "error", err)
			}
		}
	}

	r.commit(ctx)
}

// recordError persists an error record for a file that never reached the
// reputation service.
func (r *jobRun) recordError(ctx context.Context, path string, size int64, reason string) {
	r.errors++
	r.o.metrics.IncFileErrors(ctx)
	r.log.Warn(ctx, "file scan failed", "path", path, "reason", reason)

	r.save(ctx, domain.NewErrorResult(r.job.JobID(), path, filepath.Base(path), size, reason, r.o.clock.Now()))
	r.commit(ctx)
}

func (r *jobRun) save(ctx context.Context, result domain.FileResult) {
	r.o.metrics.IncFilesScanned(ctx, result.Status.String())
	if err := r.o.results.SaveResult(ctx, result); err != nil {
		r.log.Error(ctx, "failed to save file result", "path", result.Path, "error", err)
	}
}

// commit counts the file and persists the job's live counters.
func (r *jobRun) commit(ctx context.Context) {
	if err := r.job.RecordFileScanned(); err != nil {
		r.log.Error(ctx, "failed to record scanned file", "error", err)
		return
	}
	if err := r.o.jobs.UpdateJob(ctx, r.job); err != nil {
		r.log.Error(ctx, "failed to update job progress", "error", err)
	}
}
