package codec

import (
	"sync"

	"github.com/klauspost/compress/zstd"
)

// zstdCodec wraps klauspost/compress/zstd. The encoder is constructed once
// and Reset onto a fresh sliceWriter per call, the same pooling pattern as
// zlibCodec.
type zstdCodec struct {
	mu  sync.Mutex
	enc *zstd.Encoder
}

func newZstdCodec() (*zstdCodec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	return &zstdCodec{enc: enc}, nil
}

func (z *zstdCodec) MaxCompressedSize(inputLen int) int {
	// zstd's frame overhead is small and bounded; pad generously since,
	// unlike zlib, klauspost/zstd does not export a compress-bound helper.
	return inputLen + inputLen/2 + 256
}

func (z *zstdCodec) Compress(input []byte, scratch []byte) (int, error) {
	z.mu.Lock()
	defer z.mu.Unlock()

	sw := &sliceWriter{buf: scratch}
	z.enc.Reset(sw)
	if _, err := z.enc.Write(input); err != nil {
		return 0, err
	}
	if err := z.enc.Close(); err != nil {
		return 0, err
	}
	return sw.n, nil
}
