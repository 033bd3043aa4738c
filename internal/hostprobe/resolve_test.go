package hostprobe

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessCgroupPathReadsOwnProcess(t *testing.T) {
	pid := os.Getpid()
	path, err := processCgroupPath(pid)
	require.NoError(t, err)
	assert.NotEmpty(t, path)
}

func TestUnitTypeInterfaceName(t *testing.T) {
	cases := map[string]string{
		"foo.service": "Service",
		"foo.slice":   "Slice",
		"foo.socket":  "Socket",
		"no-suffix":   "",
	}
	for unit, want := range cases {
		assert.Equal(t, want, unitTypeInterfaceName(unit), unit)
	}
}
