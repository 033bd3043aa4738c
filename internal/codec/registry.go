package codec

import (
	"sync"

	"github.com/prometheus/common/log"
)

// Registry holds the codec set chosen at bootstrap (spec.md §6's "codecs"
// config key) together with one pooled scratch buffer per codec, grown
// (never shrunk) as larger inputs are seen — the Go analogue of the
// original's compression_alloc.cpp warmup pass.
type Registry struct {
	logger   log.Logger
	mu       sync.Mutex
	impls    map[Type]codecImpl
	scratch  map[Type][]byte
	order    []Type
}

// NewRegistry builds codec backends for exactly the requested types,
// skipping and logging any that are recognized but not built into this
// binary (lzo, lzf — see SPEC_FULL.md's DOMAIN STACK) or that fail
// one-time init.
func NewRegistry(logger log.Logger, requested []Type) *Registry {
	r := &Registry{
		logger:  logger,
		impls:   make(map[Type]codecImpl),
		scratch: make(map[Type][]byte),
	}
	for _, t := range requested {
		impl, err := buildCodec(t)
		if err != nil {
			logger.Warnf("codec: %s not built: %v", t, err)
			continue
		}
		if impl == nil {
			logger.Warnf("codec: %s has no pure-Go implementation in this build, skipping", t)
			continue
		}
		r.impls[t] = impl
		r.order = append(r.order, t)
	}
	return r
}

func buildCodec(t Type) (codecImpl, error) {
	switch t {
	case Zlib:
		return newZlibCodec(), nil
	case Snappy:
		return newSnappyCodec(), nil
	case Zstd:
		return newZstdCodec()
	case LZ4:
		return newLZ4Codec(), nil
	case LZ4HC:
		return newLZ4HCCodec(), nil
	case LZO, LZF:
		return nil, nil
	default:
		return nil, nil
	}
}

// Available returns the codecs this registry can actually run, in
// registration order, for tests (package measure) to iterate over.
func (r *Registry) Available() []Type {
	return append([]Type(nil), r.order...)
}

// MaxCompressedSize returns codec t's published upper bound for an input
// of the given length, or 0 if t is not available.
func (r *Registry) MaxCompressedSize(t Type, inputLen int) int {
	impl, ok := r.impls[t]
	if !ok {
		return 0
	}
	return impl.MaxCompressedSize(inputLen)
}

// Compress runs codec t over input, writing into a pooled scratch buffer
// sized to at least MaxCompressedSize(t, len(input)), and returns the
// compressed length (the buffer itself is not returned). Returns 0 if t is unavailable or the
// codec itself fails — the caller (package measure) must not conflate a
// 0-length result with a 0-length input, per spec.md's open question in
// §9.
func (r *Registry) Compress(t Type, input []byte) int {
	r.mu.Lock()
	impl, ok := r.impls[t]
	if !ok {
		r.mu.Unlock()
		return 0
	}
	need := impl.MaxCompressedSize(len(input))
	buf := r.scratch[t]
	if len(buf) < need {
		buf = make([]byte, need)
		r.scratch[t] = buf
	}
	r.mu.Unlock()

	n, err := impl.Compress(input, buf)
	if err != nil {
		r.logger.Debugf("codec: %s compress failed: %v", t, err)
		return 0
	}
	return n
}
