package hooks

import (
	"os"
	"testing"

	"github.com/prometheus/common/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adam-mcdaniel/heappulse/internal/codec"
	"github.com/adam-mcdaniel/heappulse/internal/measure"
	"github.com/adam-mcdaniel/heappulse/internal/procio"
	"github.com/adam-mcdaniel/heappulse/internal/protect"
	"github.com/adam-mcdaniel/heappulse/internal/registry"
	"github.com/adam-mcdaniel/heappulse/internal/scheduler"
)

func newTestAdapter(t *testing.T) (*Adapter, *registry.Store, *scheduler.Scheduler) {
	t.Helper()
	store := registry.New()
	oracle := procio.New(os.Getpid())
	codecs := codec.NewRegistry(log.Base(), []codec.Type{codec.Zlib})
	protector := protect.New(protect.ModeDisabled, -1)

	sched := scheduler.New(scheduler.Config{
		Logger:    log.Base(),
		Store:     store,
		Oracle:    oracle,
		Codecs:    codecs,
		Protector: protector,
		PeriodMs:  1_000_000, // never trip MaybeRunInterval mid-test
	})
	dummy := measure.NewDummy()
	require.NoError(t, dummy.Setup(log.Base(), nil))
	require.True(t, sched.Register(dummy))

	return New(store, sched), store, sched
}

func TestPostAllocThenPreFreeRoundTrips(t *testing.T) {
	a, store, _ := newTestAdapter(t)

	const addr = uintptr(0x1000)
	a.PostAlloc(64, addr)
	assert.True(t, store.Contains(addr))

	a.PreFree(addr)
	assert.False(t, store.Contains(addr))
}

func TestPostMmapThenPostMunmapRoundTrips(t *testing.T) {
	a, store, _ := newTestAdapter(t)

	const addr = uintptr(0x2000)
	a.PostMmap(4096, addr)
	assert.True(t, store.Contains(addr))

	a.PostMunmap(addr, 4096)
	assert.False(t, store.Contains(addr))
}

func TestHookRecordsAfterFinalInterval(t *testing.T) {
	a, store, sched := newTestAdapter(t)
	sched.RunFinalInterval() // not in an interval afterward, but exercises the path

	// Simulate being mid-interval by forcing the scheduler's reentrancy
	// flag directly is not possible from this package (unexported), so
	// instead verify the ordinary, non-reentrant path behaves.
	const addr = uintptr(0x3000)
	a.PostAlloc(8, addr)
	assert.True(t, store.Contains(addr))
}

func TestBlockNewThenBlockReleaseRoundTrips(t *testing.T) {
	a, store, _ := newTestAdapter(t)

	const base = uintptr(0x400000)
	const size = uint64(2 * 1024 * 1024)
	a.BlockNew(base, size)

	var sawIt bool
	store.Lock()
	store.SnapshotHugePagesLocked(func(hp *registry.HugePageRecord) {
		if hp.Base == base {
			sawIt = true
		}
	})
	store.Unlock()
	assert.True(t, sawIt)

	a.BlockRelease(base)

	sawIt = false
	store.Lock()
	store.SnapshotHugePagesLocked(func(hp *registry.HugePageRecord) {
		if hp.Base == base {
			sawIt = true
		}
	})
	store.Unlock()
	assert.False(t, sawIt)
}
