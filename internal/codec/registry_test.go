package codec

import (
	"bytes"
	"testing"

	"github.com/prometheus/common/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCompressesWithEachAvailableCodec(t *testing.T) {
	r := NewRegistry(log.Base(), []Type{Zlib, Snappy, Zstd, LZ4, LZ4HC})
	input := bytes.Repeat([]byte{0x41}, 64*1024)

	for _, ty := range r.Available() {
		n := r.Compress(ty, input)
		assert.Greaterf(t, n, 0, "codec %s produced 0 bytes for highly compressible input", ty)
		assert.Lessf(t, n, len(input), "codec %s failed to shrink highly compressible input", ty)
	}
}

func TestRegistrySkipsUnbuiltCodecs(t *testing.T) {
	r := NewRegistry(log.Base(), []Type{LZO, LZF})
	assert.Empty(t, r.Available())
	assert.Equal(t, 0, r.Compress(LZO, []byte("hello")))
}

func TestRegistryUnavailableCodecReturnsZero(t *testing.T) {
	r := NewRegistry(log.Base(), []Type{Zlib})
	require.Len(t, r.Available(), 1)
	assert.Equal(t, 0, r.Compress(Snappy, []byte("hello")))
}

func TestParseType(t *testing.T) {
	ty, ok := ParseType("zstd")
	require.True(t, ok)
	assert.Equal(t, Zstd, ty)

	_, ok = ParseType("bogus")
	assert.False(t, ok)
}
