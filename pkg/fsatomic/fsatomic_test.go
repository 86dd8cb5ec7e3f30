package fsatomic_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fledgehq/fledge/pkg/fsatomic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFile_CreatesParentDirs(t *testing.T) {
	tmpDir := t.TempDir()
	target := filepath.Join(tmpDir, "a", "b", "index.html")

	err := fsatomic.WriteFile(target, []byte("<html></html>"), 0o644)
	require.NoError(t, err)

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(got))
}

func TestWriteFile_NoTempFileLeftBehind(t *testing.T) {
	tmpDir := t.TempDir()
	target := filepath.Join(tmpDir, "index.html")

	require.NoError(t, fsatomic.WriteFile(target, []byte("x"), 0o644))

	entries, err := os.ReadDir(tmpDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "index.html", entries[0].Name())
}

func TestWriteFile_OverwritesExisting(t *testing.T) {
	tmpDir := t.TempDir()
	target := filepath.Join(tmpDir, "index.html")

	require.NoError(t, fsatomic.WriteFile(target, []byte("first"), 0o644))
	require.NoError(t, fsatomic.WriteFile(target, []byte("second"), 0o644))

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

func TestExists(t *testing.T) {
	tmpDir := t.TempDir()
	present := filepath.Join(tmpDir, "present")
	require.NoError(t, os.WriteFile(present, []byte("x"), 0o644))

	assert.True(t, fsatomic.Exists(present))
	assert.False(t, fsatomic.Exists(filepath.Join(tmpDir, "absent")))
}
