package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRegistryIntegrity covers spec.md §8 testable property 1: Contains
// is true exactly between record_alloc and record_free.
func TestRegistryIntegrity(t *testing.T) {
	s := New()
	const addr = uintptr(0x1000)
	assert.False(t, s.Contains(addr))

	s.RecordAlloc(addr, 64, 0xdead)
	assert.True(t, s.Contains(addr))

	s.RecordFree(addr)
	assert.False(t, s.Contains(addr))
}

// TestZeroSizeAllocationNotRecorded covers spec.md §8's boundary case.
func TestZeroSizeAllocationNotRecorded(t *testing.T) {
	s := New()
	s.RecordAlloc(0x2000, 0, 0xdead)
	assert.False(t, s.Contains(0x2000))
}

// TestFreeOfAbsentAddressIsNoop covers record_free's documented no-op.
func TestFreeOfAbsentAddressIsNoop(t *testing.T) {
	s := New()
	assert.NotPanics(t, func() { s.RecordFree(0x9999) })
}

// TestCollisionOverwritesOldRecord covers spec.md §8's defensive boundary
// case: a second alloc at a live address overwrites the old record.
func TestCollisionOverwritesOldRecord(t *testing.T) {
	s := New()
	const addr = uintptr(0x3000)
	s.RecordAlloc(addr, 16, 0xdead)
	s.RecordAlloc(addr, 32, 0xdead)

	var sizes []uint64
	s.Lock()
	s.SnapshotLiveLocked(func(_ uint64, rec *AllocationRecord) {
		if rec.Addr == addr {
			sizes = append(sizes, rec.Size)
		}
	})
	s.Unlock()
	require.Len(t, sizes, 1)
	assert.Equal(t, uint64(32), sizes[0])
}

// TestMonotoneAge covers spec.md §8 testable property 2.
func TestMonotoneAge(t *testing.T) {
	s := New()
	s.RecordAlloc(0x4000, 8, 0xbeef)

	s.Lock()
	s.AgeAllLocked()
	s.AgeAllLocked()
	var age uint64
	s.SnapshotLiveLocked(func(_ uint64, rec *AllocationRecord) { age = rec.Age })
	s.Unlock()
	assert.Equal(t, uint64(2), age)
}

// TestCapacityDrop covers spec.md scenario S6: with per-site capacity
// 1,000, the first 1,000 of 1,500 allocations from one return address
// are recorded, the rest silently dropped.
func TestCapacityDrop(t *testing.T) {
	s := New()
	const site = uintptr(0xc0ffee)
	for i := 0; i < 1500; i++ {
		s.RecordAlloc(uintptr(0x10000+i), 8, site)
	}
	for i := 0; i < 1000; i++ {
		assert.Truef(t, s.Contains(uintptr(0x10000+i)), "addr %d should be recorded", i)
	}
	for i := 1000; i < 1500; i++ {
		assert.Falsef(t, s.Contains(uintptr(0x10000+i)), "addr %d should have been dropped", i)
	}
	_, recordDrops := s.Drops()
	assert.Equal(t, uint64(500), recordDrops)
}

// TestReuseAfterFreeRecordsCleanly exercises the original's
// tests/reuse_test.cpp scenario: free then immediately realloc the same
// address must not leak the old record or leave stale age.
func TestReuseAfterFreeRecordsCleanly(t *testing.T) {
	s := New()
	const addr = uintptr(0x5000)
	s.RecordAlloc(addr, 16, 0xdead)
	s.Lock()
	s.AgeAllLocked()
	s.AgeAllLocked()
	s.Unlock()

	s.RecordFree(addr)
	assert.False(t, s.Contains(addr))

	s.RecordAlloc(addr, 24, 0xdead)
	require.True(t, s.Contains(addr))

	s.Lock()
	var rec *AllocationRecord
	s.SnapshotLiveLocked(func(_ uint64, r *AllocationRecord) {
		if r.Addr == addr {
			rec = r
		}
	})
	s.Unlock()
	require.NotNil(t, rec)
	assert.Equal(t, uint64(0), rec.Age)
	assert.Equal(t, uint64(24), rec.Size)
}

func TestHugePageLifecycle(t *testing.T) {
	s := New()
	s.RecordHugePageAlloc(0x600000, 2*1024*1024)

	var found *HugePageRecord
	s.Lock()
	s.SnapshotHugePagesLocked(func(hp *HugePageRecord) { found = hp })
	s.Unlock()
	require.NotNil(t, found)
	assert.True(t, found.Contains(0x600000, 4096))
	assert.False(t, found.Contains(0x600000, 4*1024*1024))

	s.RecordHugePageFree(0x600000)
	found = nil
	s.Lock()
	s.SnapshotHugePagesLocked(func(hp *HugePageRecord) { found = hp })
	s.Unlock()
	assert.Nil(t, found)
}
