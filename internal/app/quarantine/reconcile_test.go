package quarantine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/ahrav/scanguard/internal/domain/quarantine"
	"github.com/ahrav/scanguard/internal/infra/storage/quarantine/memory"
)

func TestManager_Reconcile(t *testing.T) {
	t.Parallel()

	repo := memory.NewStore()
	m := newTestManager(t, repo)
	ctx := context.Background()
	srcDir := t.TempDir()

	healthy, err := m.Quarantine(ctx, writeFile(t, srcDir, "healthy.exe", []byte("1")), "d", highThreat)
	require.NoError(t, err)

	missing, err := m.Quarantine(ctx, writeFile(t, srcDir, "missing.exe", []byte("2")), "d", highThreat)
	require.NoError(t, err)
	require.NoError(t, os.Remove(missing.StoragePath))

	stray, err := m.Quarantine(ctx, writeFile(t, srcDir, "stray.exe", []byte("3")), "d", highThreat)
	require.NoError(t, err)
	_, err = m.Restore(ctx, stray.ID)
	require.NoError(t, err)
	writeFile(t, m.Dir(), filepath.Base(stray.StoragePath), []byte("3"))

	orphan := writeFile(t, m.Dir(), "unknown_file.exe", []byte("4"))
	writeFile(t, m.Dir(), tempPrefix+"123", []byte("in flight"))
	require.NoError(t, os.Mkdir(filepath.Join(m.Dir(), "subdir"), 0o700))

	report, err := m.Reconcile(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, report.FilesChecked)
	assert.Equal(t, 3, report.RecordsChecked)
	require.Len(t, report.Issues, 3)
	assert.Equal(t, 1, report.Count(domain.IssueMissingFile))
	assert.Equal(t, 1, report.Count(domain.IssueOrphanedFile))
	assert.Equal(t, 1, report.Count(domain.IssueStrayRestored))

	byType := make(map[domain.IssueType]domain.Issue)
	for _, i := range report.Issues {
		byType[i.Type] = i
	}
	assert.Equal(t, orphan, byType[domain.IssueOrphanedFile].Path)
	assert.Nil(t, byType[domain.IssueOrphanedFile].RecordID)
	require.NotNil(t, byType[domain.IssueMissingFile].RecordID)
	assert.Equal(t, missing.ID, *byType[domain.IssueMissingFile].RecordID)
	require.NotNil(t, byType[domain.IssueStrayRestored].RecordID)
	assert.Equal(t, stray.ID, *byType[domain.IssueStrayRestored].RecordID)

	assert.FileExists(t, healthy.StoragePath)
	assert.FileExists(t, orphan)
}

// lagListRepo serves List from a snapshot taken before the latest writes, the
// view a pass gets when a quarantine lands between its two listings.
type lagListRepo struct {
	*memory.Store
	snapshot []*domain.Record
}

func (r *lagListRepo) List(context.Context) ([]*domain.Record, error) {
	return r.snapshot, nil
}

func TestManager_ReconcileSkipsInFlightOperations(t *testing.T) {
	t.Parallel()

	repo := &lagListRepo{Store: memory.NewStore()}
	m := newTestManager(t, repo)
	ctx := context.Background()
	srcDir := t.TempDir()

	rec, err := m.Quarantine(ctx, writeFile(t, srcDir, "fresh.exe", []byte("1")), "d", highThreat)
	require.NoError(t, err)

	unknown := writeFile(t, m.Dir(), domain.StorageName(uuid.New(), "gone.exe"), []byte("2"))

	report, err := m.Reconcile(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, report.FilesChecked)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, domain.IssueOrphanedFile, report.Issues[0].Type)
	assert.Equal(t, unknown, report.Issues[0].Path)
	assert.FileExists(t, rec.StoragePath)
}

func TestManager_ReconcileDropsResolvedMissingFile(t *testing.T) {
	t.Parallel()

	repo := memory.NewStore()
	m := newTestManager(t, repo)
	ctx := context.Background()

	rec, err := m.Quarantine(ctx, writeFile(t, t.TempDir(), "purged.exe", []byte("1")), "d", highThreat)
	require.NoError(t, err)

	// A purge that removed the file but has not yet deleted the record.
	require.NoError(t, os.Remove(rec.StoragePath))
	missing := domain.Issue{Type: domain.IssueMissingFile, RecordID: &rec.ID, Path: rec.StoragePath}
	ok, err := m.confirmIssue(ctx, missing)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repo.Delete(ctx, rec.ID))
	ok, err = m.confirmIssue(ctx, missing)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManager_ReconcileClean(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, memory.NewStore())

	report, err := m.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Issues)
	assert.False(t, report.CompletedAt.Before(report.StartedAt))
}

func TestManager_ReconcileInProgress(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, memory.NewStore())
	m.reconciler.inProgress = true

	_, err := m.Reconcile(context.Background())
	assert.ErrorIs(t, err, ErrReconcileInProgress)
}

func TestManager_ReconcileLoopStartStop(t *testing.T) {
	t.Parallel()

	m := newTestManager(t, memory.NewStore())
	m.StartReconcileLoop(context.Background(), 0)
	assert.Nil(t, m.reconciler.cancel)

	m.StartReconcileLoop(context.Background(), 50*time.Millisecond)
	assert.NotNil(t, m.reconciler.cancel)
	m.StopReconcileLoop()
	assert.Nil(t, m.reconciler.cancel)

	m.StopReconcileLoop()
}
