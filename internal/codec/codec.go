// Package codec is the compressor abstraction (spec component C): one
// pure, stateless compress operation over a pluggable codec set. Per
// spec.md §4.C it returns 0 on codec failure and never retains state
// between calls beyond one-time codec init, which here means pooling each
// codec's scratch output buffer (grounded on the original's
// compression_alloc.cpp warmup) rather than allocating one per call.
package codec

import "fmt"

// Type identifies one of the codecs spec.md §4.C enumerates. Not every
// Type is necessarily Available — see Registry.Available.
type Type int

const (
	Zlib Type = iota
	LZ4
	LZO
	Snappy
	Zstd
	LZF
	LZ4HC
)

func (t Type) String() string {
	switch t {
	case Zlib:
		return "zlib"
	case LZ4:
		return "lz4"
	case LZO:
		return "lzo"
	case Snappy:
		return "snappy"
	case Zstd:
		return "zstd"
	case LZF:
		return "lzf"
	case LZ4HC:
		return "lz4hc"
	default:
		return fmt.Sprintf("codec(%d)", int(t))
	}
}

// ParseType maps a config string (spec.md §6's "codecs" key) to a Type.
func ParseType(name string) (Type, bool) {
	switch name {
	case "zlib":
		return Zlib, true
	case "lz4":
		return LZ4, true
	case "lzo":
		return LZO, true
	case "snappy":
		return Snappy, true
	case "zstd":
		return Zstd, true
	case "lzf":
		return LZF, true
	case "lz4hc":
		return LZ4HC, true
	default:
		return 0, false
	}
}

// codecImpl is the pluggable per-codec backend. MaxCompressedSize returns
// the codec's published upper bound for an input of the given length, and
// Compress is a pure function: same input, same scratch capacity, same
// output every time.
type codecImpl interface {
	MaxCompressedSize(inputLen int) int
	Compress(input []byte, scratch []byte) (int, error)
}
