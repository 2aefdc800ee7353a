package quarantine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	domain "github.com/ahrav/scanguard/internal/domain/quarantine"
)

// ErrReconcileInProgress is returned when a pass is requested while another
// is still running.
var ErrReconcileInProgress = errors.New("reconciliation already in progress")

type reconciler struct {
	m *Manager

	mu         sync.Mutex
	inProgress bool
	cancel     context.CancelFunc
	done       chan struct{}
}

func newReconciler(m *Manager) *reconciler { return &reconciler{m: m} }

// Reconcile compares the quarantine directory with the stored records and
// reports disagreements. It never modifies files or records.
func (m *Manager) Reconcile(ctx context.Context) (*domain.ReconcileReport, error) {
	r := m.reconciler
	r.mu.Lock()
	if r.inProgress {
		r.mu.Unlock()
		return nil, ErrReconcileInProgress
	}
	r.inProgress = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.inProgress = false
		r.mu.Unlock()
	}()

	ctx, span := m.tracer.Start(ctx, "quarantine.reconcile")
	defer span.End()

	report, err := m.reconcile(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	reconcileRunsTotal.Inc()
	reconcileDurationSeconds.Observe(report.CompletedAt.Sub(report.StartedAt).Seconds())
	for _, issue := range report.Issues {
		reconcileIssuesTotal.WithLabelValues(string(issue.Type)).Inc()
	}
	span.SetAttributes(
		attribute.Int("files_checked", report.FilesChecked),
		attribute.Int("records_checked", report.RecordsChecked),
		attribute.Int("issues", len(report.Issues)),
	)

	m.logger.Info(ctx, "reconciliation completed",
		"files_checked", report.FilesChecked,
		"records_checked", report.RecordsChecked,
		"orphaned_files", report.Count(domain.IssueOrphanedFile),
		"missing_files", report.Count(domain.IssueMissingFile),
		"stray_restored", report.Count(domain.IssueStrayRestored),
	)

	return report, nil
}

func (m *Manager) reconcile(ctx context.Context) (*domain.ReconcileReport, error) {
	report := &domain.ReconcileReport{StartedAt: m.clock.Now()}

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("reading quarantine dir: %w", err)
	}
	onDisk := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		onDisk[e.Name()] = struct{}{}
	}
	report.FilesChecked = len(onDisk)

	records, err := m.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	report.RecordsChecked = len(records)

	claimed := make(map[string]struct{}, len(records))
	for _, rec := range records {
		name := domain.StorageName(rec.ID, rec.FileName)
		_, present := onDisk[name]
		id := rec.ID

		switch {
		case !rec.Restored && !present:
			report.Issues = append(report.Issues, domain.Issue{
				Type: domain.IssueMissingFile, RecordID: &id, Path: rec.StoragePath,
			})
		case !rec.Restored:
			claimed[name] = struct{}{}
		case present:
			claimed[name] = struct{}{}
			report.Issues = append(report.Issues, domain.Issue{
				Type: domain.IssueStrayRestored, RecordID: &id, Path: rec.StoragePath,
			})
		}
	}

	for name := range onDisk {
		if _, ok := claimed[name]; ok {
			continue
		}
		report.Issues = append(report.Issues, domain.Issue{
			Type: domain.IssueOrphanedFile,
			Path: filepath.Join(m.dir, name),
		})
	}

	confirmed := report.Issues[:0]
	for _, issue := range report.Issues {
		ok, err := m.confirmIssue(ctx, issue)
		if err != nil {
			return nil, err
		}
		if ok {
			confirmed = append(confirmed, issue)
		}
	}
	report.Issues = confirmed

	sort.Slice(report.Issues, func(i, j int) bool {
		if report.Issues[i].Type != report.Issues[j].Type {
			return report.Issues[i].Type < report.Issues[j].Type
		}
		return report.Issues[i].Path < report.Issues[j].Path
	})

	report.CompletedAt = m.clock.Now()
	return report, nil
}

// confirmIssue re-checks a candidate under its record's lock. The directory
// listing and the record listing are separate snapshots, so a quarantine,
// restore or purge caught between them looks like drift until it finishes.
func (m *Manager) confirmIssue(ctx context.Context, issue domain.Issue) (bool, error) {
	var (
		id    uuid.UUID
		hasID bool
	)
	if issue.RecordID != nil {
		id, hasID = *issue.RecordID, true
	} else {
		id, hasID = domain.RecordIDFromStorageName(filepath.Base(issue.Path))
	}
	if hasID {
		unlock := m.locks.lock(id)
		defer unlock()
	}

	present, err := fileExists(issue.Path)
	if err != nil {
		return false, fmt.Errorf("checking %s: %w", issue.Path, err)
	}

	var rec *domain.Record
	if hasID {
		rec, err = m.repo.Get(ctx, id)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			rec = nil
		case err != nil:
			return false, fmt.Errorf("getting record %s: %w", id, err)
		}
	}

	switch issue.Type {
	case domain.IssueOrphanedFile:
		return present && rec == nil, nil
	case domain.IssueMissingFile:
		return !present && rec != nil && !rec.Restored, nil
	case domain.IssueStrayRestored:
		return present && rec != nil && rec.Restored, nil
	default:
		return true, nil
	}
}

// StartReconcileLoop runs Reconcile every interval until ctx is cancelled or
// StopReconcileLoop is called. A non-positive interval disables the loop.
func (m *Manager) StartReconcileLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	r := m.reconciler

	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				if _, err := m.Reconcile(loopCtx); err != nil && !errors.Is(err, ErrReconcileInProgress) {
					m.logger.Error(loopCtx, "periodic reconciliation failed", "error", err)
				}
			}
		}
	}()

	m.logger.Info(ctx, "reconciliation loop started", "interval", interval.String())
}

// StopReconcileLoop stops the background loop and waits for it to exit.
func (m *Manager) StopReconcileLoop() {
	r := m.reconciler
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
