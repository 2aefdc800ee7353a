package scanning

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ScanMetrics records per-file and per-job scan activity.
type ScanMetrics interface {
	IncFilesScanned(ctx context.Context, status string)
	IncFilesQuarantined(ctx context.Context)
	IncFilesSkipped(ctx context.Context, reason string)
	IncFileErrors(ctx context.Context)
	IncQuarantineErrors(ctx context.Context)
	ObserveSubmission(ctx context.Context, d time.Duration)
	IncActiveScans(ctx context.Context)
	DecActiveScans(ctx context.Context)
}

type scanMetrics struct {
	filesScanned      metric.Int64Counter
	filesQuarantined  metric.Int64Counter
	filesSkipped      metric.Int64Counter
	fileErrors        metric.Int64Counter
	quarantineErrors  metric.Int64Counter
	submissionLatency metric.Float64Histogram
	activeScans       metric.Int64UpDownCounter
}

const namespace = "scanguard.scanning"

// NewScanMetrics creates the scan instruments on mp.
func NewScanMetrics(mp metric.MeterProvider) (*scanMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	s := new(scanMetrics)
	var err error

	if s.filesScanned, err = meter.Int64Counter(
		"files_scanned_total",
		metric.WithDescription("Total number of files that completed the scan pipeline, by verdict status"),
	); err != nil {
		return nil, err
	}

	if s.filesQuarantined, err = meter.Int64Counter(
		"files_quarantined_total",
		metric.WithDescription("Total number of files moved into quarantine"),
	); err != nil {
		return nil, err
	}

	if s.filesSkipped, err = meter.Int64Counter(
		"files_skipped_total",
		metric.WithDescription("Total number of files skipped before hashing"),
	); err != nil {
		return nil, err
	}

	if s.fileErrors, err = meter.Int64Counter(
		"file_errors_total",
		metric.WithDescription("Total number of files recorded with an error status"),
	); err != nil {
		return nil, err
	}

	if s.quarantineErrors, err = meter.Int64Counter(
		"quarantine_errors_total",
		metric.WithDescription("Total number of failed quarantine attempts"),
	); err != nil {
		return nil, err
	}

	if s.submissionLatency, err = meter.Float64Histogram(
		"submission_duration_seconds",
		metric.WithDescription("Time spent submitting a file and fetching its report"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.5, 1, 2, 3, 5, 10, 20, 30, 60),
	); err != nil {
		return nil, err
	}

	if s.activeScans, err = meter.Int64UpDownCounter(
		"active_scans",
		metric.WithDescription("Number of scan jobs currently running"),
	); err != nil {
		return nil, err
	}

	return s, nil
}

func (m *scanMetrics) IncFilesScanned(ctx context.Context, status string) {
	m.filesScanned.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (m *scanMetrics) IncFilesQuarantined(ctx context.Context) { m.filesQuarantined.Add(ctx, 1) }

func (m *scanMetrics) IncFilesSkipped(ctx context.Context, reason string) {
	m.filesSkipped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *scanMetrics) IncFileErrors(ctx context.Context)       { m.fileErrors.Add(ctx, 1) }
func (m *scanMetrics) IncQuarantineErrors(ctx context.Context) { m.quarantineErrors.Add(ctx, 1) }

func (m *scanMetrics) ObserveSubmission(ctx context.Context, d time.Duration) {
	m.submissionLatency.Record(ctx, d.Seconds())
}

func (m *scanMetrics) IncActiveScans(ctx context.Context) { m.activeScans.Add(ctx, 1) }
func (m *scanMetrics) DecActiveScans(ctx context.Context) { m.activeScans.Add(ctx, -1) }
