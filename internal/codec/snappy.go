package codec

import "github.com/golang/snappy"

// snappyCodec wraps github.com/golang/snappy, a transitive dependency of
// the opentelemetry-collector-contrib exporter stack promoted here to a
// direct, exercised one. Snappy's block API already writes into a
// caller-supplied buffer, so there is no pooled writer to reset.
type snappyCodec struct{}

func newSnappyCodec() *snappyCodec { return &snappyCodec{} }

func (snappyCodec) MaxCompressedSize(inputLen int) int {
	return snappy.MaxEncodedLen(inputLen)
}

func (snappyCodec) Compress(input []byte, scratch []byte) (int, error) {
	out := snappy.Encode(scratch[:cap(scratch)], input)
	return len(out), nil
}
