package file

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string, mod time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestFindOlderThan(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	touch(t, filepath.Join(dir, "transcribe-old"), now.Add(-2*time.Hour))
	touch(t, filepath.Join(dir, "transcribe-new"), now)
	touch(t, filepath.Join(dir, "other-old"), now.Add(-2*time.Hour))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "transcribe-dir"), 0o755))
	old := now.Add(-3 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "transcribe-dir"), old, old))

	found, err := FindOlderThan(dir, "transcribe-*", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "transcribe-old")}, found)
}

func TestFindOlderThanBadPattern(t *testing.T) {
	_, err := FindOlderThan(t.TempDir(), "[", time.Now())
	assert.Error(t, err)
}

func TestRemoveAll(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	touch(t, a, time.Now())

	removed, err := RemoveAll([]string{a, filepath.Join(dir, "missing")})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoFileExists(t, a)
}
