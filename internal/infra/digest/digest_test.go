package digest

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, data, 0o600))
	return p
}

func TestFile_Deterministic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	data := bytes.Repeat([]byte("scanguard"), 10_000) // spans several chunks
	a := writeFile(t, dir, "a.bin", data)
	b := writeFile(t, dir, "b.bin", data)

	flipped := append([]byte(nil), data...)
	flipped[len(flipped)-1] ^= 0xFF
	c := writeFile(t, dir, "c.bin", flipped)

	da, err := File(a)
	require.NoError(t, err)
	db, err := File(b)
	require.NoError(t, err)
	dc, err := File(c)
	require.NoError(t, err)

	assert.Equal(t, da, db)
	assert.NotEqual(t, da, dc)
	assert.Len(t, da, 64)
}

func TestFile_KnownVector(t *testing.T) {
	t.Parallel()

	p := writeFile(t, t.TempDir(), "empty", nil)
	got, err := File(p)
	require.NoError(t, err)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", got)
}

func TestFile_Unreadable(t *testing.T) {
	t.Parallel()

	_, err := File(filepath.Join(t.TempDir(), "missing.exe"))
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
