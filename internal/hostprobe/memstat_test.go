package hostprobe

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMemStatExtractsKnownKeys(t *testing.T) {
	input := `anon 1048576
file 2097152
file_dirty 4096
slab 65536
pgmajfault 3
some_unknown_key 999
`
	m, err := parseMemStat(bytes.NewReader([]byte(input)))
	require.NoError(t, err)
	assert.Equal(t, uint64(1048576), m.AnonBytes)
	assert.Equal(t, uint64(2097152), m.FileBytes)
	assert.Equal(t, uint64(4096), m.FileDirtyBytes)
	assert.Equal(t, uint64(65536), m.SlabBytes)
	assert.Equal(t, uint64(3), m.PgMajFaultBytes)
}

func TestParseMemStatRejectsMalformedLine(t *testing.T) {
	_, err := parseMemStat(bytes.NewReader([]byte("anon\n")))
	assert.Error(t, err)
}
