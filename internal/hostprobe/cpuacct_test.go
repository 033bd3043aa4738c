package hostprobe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSNewCPUAcctParsesUsec(t *testing.T) {
	dir := t.TempDir()
	cgDir := filepath.Join(dir, "cpu", "my.slice")
	require.NoError(t, os.MkdirAll(cgDir, 0o755))
	content := "usage_usec 300\nuser_usec 200\nsystem_usec 100\n"
	require.NoError(t, os.WriteFile(filepath.Join(cgDir, "cpu.stat"), []byte(content), 0o644))

	fs, err := NewFS(dir)
	require.NoError(t, err)

	acct, err := fs.NewCPUAcct("/my.slice")
	require.NoError(t, err)
	assert.Equal(t, uint64(300), acct.TotalMicrosec)
	assert.Equal(t, uint64(200), acct.UserMicrosec)
	assert.Equal(t, uint64(100), acct.SystemMicrosec)
}

func TestFSNewCPUAcctErrorsOnIncompleteFile(t *testing.T) {
	dir := t.TempDir()
	cgDir := filepath.Join(dir, "cpu", "my.slice")
	require.NoError(t, os.MkdirAll(cgDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cgDir, "cpu.stat"), []byte("usage_usec 300\n"), 0o644))

	fs, err := NewFS(dir)
	require.NoError(t, err)

	_, err = fs.NewCPUAcct("/my.slice")
	assert.Error(t, err)
}
