package codec

import (
	"sync"

	"github.com/pierrec/lz4/v4"
)

// lz4Codec wraps github.com/pierrec/lz4/v4's block compressor. The
// Compressor value carries its own hash-table workspace, allocated once at
// construction and reused across calls — the same one-time-init contract
// spec.md §4.C calls out for LZO's workspace.
type lz4Codec struct {
	mu sync.Mutex
	c  lz4.Compressor
}

func newLZ4Codec() *lz4Codec { return &lz4Codec{} }

func (l *lz4Codec) MaxCompressedSize(inputLen int) int {
	return lz4.CompressBlockBound(inputLen)
}

func (l *lz4Codec) Compress(input []byte, scratch []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, err := l.c.CompressBlock(input, scratch)
	if err != nil {
		return 0, err
	}
	// pierrec/lz4 reports n == 0 when the input is incompressible within
	// dst's capacity; spec.md treats a 0-length result as a codec failure,
	// so no special-casing is needed here.
	return n, nil
}

// lz4hcCodec is lz4's high-compression mode — per SPEC_FULL.md, a
// CompressionLevel on the same package, not a separate library.
type lz4hcCodec struct {
	mu sync.Mutex
	c  lz4.CompressorHC
}

func newLZ4HCCodec() *lz4hcCodec {
	return &lz4hcCodec{c: lz4.CompressorHC{Level: lz4.Level9}}
}

func (l *lz4hcCodec) MaxCompressedSize(inputLen int) int {
	return lz4.CompressBlockBound(inputLen)
}

func (l *lz4hcCodec) Compress(input []byte, scratch []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, err := l.c.CompressBlock(input, scratch)
	if err != nil {
		return 0, err
	}
	return n, nil
}
