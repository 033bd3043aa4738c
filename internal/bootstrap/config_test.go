package bootstrap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), cfg.IntervalMs)
	assert.False(t, cfg.ClearSoftDirty)
	assert.Equal(t, ".", cfg.OutputDir)
	assert.Equal(t, "log.txt", cfg.LogFile)
	assert.Equal(t, "mprotect", cfg.ProtectionMode)
}

func TestParseOverridesAndComments(t *testing.T) {
	in := `
# a comment
interval-ms 500
clear-soft-dirty true
output-dir /tmp/heappulse
log-file "my log.txt"
codecs zlib, snappy , zstd
enable-dummy true
enable-access-pattern false
protection-mode pkey
`
	cfg, err := parse(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, int64(500), cfg.IntervalMs)
	assert.True(t, cfg.ClearSoftDirty)
	assert.Equal(t, "/tmp/heappulse", cfg.OutputDir)
	assert.Equal(t, "my log.txt", cfg.LogFile)
	assert.Equal(t, []string{"zlib", "snappy", "zstd"}, cfg.Codecs)
	assert.Equal(t, "pkey", cfg.ProtectionMode)
	assert.True(t, cfg.IsEnabled("dummy", false))
	assert.False(t, cfg.IsEnabled("access-pattern", true))
}

func TestParseRejectsUnrecognizedKey(t *testing.T) {
	_, err := parse(strings.NewReader("not-a-real-key value\n"))
	assert.Error(t, err)
}

func TestParseRejectsMalformedLine(t *testing.T) {
	_, err := parse(strings.NewReader("interval-ms\n"))
	assert.Error(t, err)
}

func TestIsEnabledFallsBackToDefaultWhenUnset(t *testing.T) {
	cfg := defaultConfig()
	assert.True(t, cfg.IsEnabled("generational", true))
	assert.False(t, cfg.IsEnabled("generational", false))
}

func TestParseHostLabels(t *testing.T) {
	cfg, err := parse(strings.NewReader("host-labels true\n"))
	require.NoError(t, err)
	assert.True(t, cfg.HostLabels)

	cfg, err = parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.False(t, cfg.HostLabels)
}
