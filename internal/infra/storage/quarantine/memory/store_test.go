package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/scanguard/internal/domain/quarantine"
	"github.com/ahrav/scanguard/internal/domain/verdict"
)

func newRecord(at time.Time) *quarantine.Record {
	return quarantine.NewRecord("/q", "/src/evil.exe", "digest",
		verdict.Classification{ThreatLevel: verdict.ThreatLevelHigh, ThreatNames: []string{"X"}}, at)
}

func TestStore_CRUD(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewStore()
	base := time.Now()

	older := newRecord(base)
	newer := newRecord(base.Add(time.Second))
	require.NoError(t, s.Create(ctx, older))
	require.NoError(t, s.Create(ctx, newer))
	assert.Error(t, s.Create(ctx, older))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)

	got, err := s.Get(ctx, older.ID)
	require.NoError(t, err)
	got.ThreatNames[0] = "mutated"
	require.NoError(t, got.MarkRestored(base))

	again, err := s.Get(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, "X", again.ThreatNames[0], "stored record must not alias caller copies")
	assert.False(t, again.Restored)

	require.NoError(t, s.Update(ctx, got))
	active, err := s.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, active)

	require.NoError(t, s.Delete(ctx, older.ID))
	_, err = s.Get(ctx, older.ID)
	assert.ErrorIs(t, err, quarantine.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, older.ID), quarantine.ErrNotFound)
	assert.ErrorIs(t, s.Update(ctx, older), quarantine.ErrNotFound)
	_, err = s.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, quarantine.ErrNotFound)
}
