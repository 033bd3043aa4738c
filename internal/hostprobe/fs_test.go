package hostprobe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCgGetPathPrefersUnifiedLayout(t *testing.T) {
	dir := t.TempDir()
	unifiedDir := filepath.Join(dir, "user.slice", "user-1000.slice")
	require.NoError(t, os.MkdirAll(unifiedDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(unifiedDir, "memory.stat"), []byte("anon 0\n"), 0o644))

	fs, err := NewFS(dir)
	require.NoError(t, err)

	got, err := fs.cgGetPath("memory", "/user.slice/user-1000.slice", "memory.stat")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "user.slice", "user-1000.slice", "memory.stat"), got)
}

func TestCgGetPathFallsBackToLegacyLayout(t *testing.T) {
	dir := t.TempDir()
	legacyDir := filepath.Join(dir, "memory", "user.slice")
	require.NoError(t, os.MkdirAll(legacyDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(legacyDir, "memory.stat"), []byte("anon 0\n"), 0o644))

	fs, err := NewFS(dir)
	require.NoError(t, err)

	got, err := fs.cgGetPath("memory", "/user.slice", "memory.stat")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "memory", "user.slice", "memory.stat"), got)
}

func TestCgGetPathErrorsWhenNeitherLayoutHasTheFile(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFS(dir)
	require.NoError(t, err)

	_, err = fs.cgGetPath("memory", "/nope", "memory.stat")
	assert.Error(t, err)
}

func TestNewFSFailsWithoutCgroupMountpoint(t *testing.T) {
	_, err := NewFS("/does/not/exist/hopefully")
	assert.Error(t, err)
}
