package procio

import (
	"os"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"

	"github.com/adam-mcdaniel/heappulse/internal/fixed"
)

func ptrOf(buf []byte) uintptr {
	return uintptr(unsafe.Pointer(&buf[0]))
}

// TestQueryZeroLengthIsNoop covers spec.md §8's "protection of a 0-byte
// range is a no-op" boundary behavior as it applies to the oracle: a
// zero-length query must never touch the kernel interfaces or push a
// result.
func TestQueryZeroLengthIsNoop(t *testing.T) {
	o := New(os.Getpid())
	dst := fixed.NewVector[PageInfo](8)
	o.Query(0x1000, 0, dst)
	assert.Equal(t, 0, dst.Len())
}

// TestQueryRespectsCapacity ensures truncation is silent, never an error,
// and never exceeds the caller-supplied bound — privileged environments
// aside, the pagemap/kpageflags reads themselves are best-effort and may
// legitimately yield nothing under test sandboxing, so this only checks
// the capacity contract, not that pages are actually resolved.
func TestQueryRespectsCapacity(t *testing.T) {
	o := New(os.Getpid())
	buf := make([]byte, 64*1024)
	dst := fixed.NewVector[PageInfo](4)
	o.Query(uintptr(ptrOf(buf)), uint64(len(buf)), dst)
	assert.LessOrEqual(t, dst.Len(), 4)
}

// TestUnreadablePidYieldsEmptySequence exercises the failure semantics of
// spec.md §4.B: a pid that can't be opened must degrade to an empty
// sequence, never a panic or propagated error.
func TestUnreadablePidYieldsEmptySequence(t *testing.T) {
	o := New(-1)
	dst := fixed.NewVector[PageInfo](4)
	o.Query(0x1000, 4096, dst)
	assert.Equal(t, 0, dst.Len())
}
