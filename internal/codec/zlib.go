package codec

import (
	"sync"

	kzlib "github.com/klauspost/compress/zlib"
)

// zlibCodec wraps klauspost/compress/zlib, the faster drop-in the
// opentelemetry-collector-contrib stack pulls in transitively; its Writer
// is pooled and Reset onto a sliceWriter per call rather than
// reconstructed, matching the one-time-init, no-per-call-allocation
// contract of spec.md §4.C.
type zlibCodec struct {
	mu   sync.Mutex
	w    *kzlib.Writer
	init bool
}

func newZlibCodec() *zlibCodec {
	return &zlibCodec{}
}

func (z *zlibCodec) MaxCompressedSize(inputLen int) int {
	// zlib's published bound (see zlib's compressBound): input plus ~0.1%
	// plus a small constant for headers/block overhead.
	return inputLen + inputLen/1000 + 128
}

func (z *zlibCodec) Compress(input []byte, scratch []byte) (int, error) {
	z.mu.Lock()
	defer z.mu.Unlock()

	sw := &sliceWriter{buf: scratch}
	if !z.init {
		z.w = kzlib.NewWriter(sw)
		z.init = true
	} else {
		z.w.Reset(sw)
	}
	if _, err := z.w.Write(input); err != nil {
		return 0, err
	}
	if err := z.w.Close(); err != nil {
		return 0, err
	}
	return sw.n, nil
}
