package scheduler

import (
	"os"
	"testing"
	"time"

	"github.com/prometheus/common/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adam-mcdaniel/heappulse/internal/codec"
	"github.com/adam-mcdaniel/heappulse/internal/measure"
	"github.com/adam-mcdaniel/heappulse/internal/procio"
	"github.com/adam-mcdaniel/heappulse/internal/protect"
	"github.com/adam-mcdaniel/heappulse/internal/registry"
)

func newTestScheduler(t *testing.T, periodMs int64) (*Scheduler, *measure.Dummy) {
	t.Helper()
	store := registry.New()
	oracle := procio.New(os.Getpid())
	codecs := codec.NewRegistry(log.Base(), []codec.Type{codec.Zlib})
	protector := protect.New(protect.ModeDisabled, -1)

	s := New(Config{
		Logger:    log.Base(),
		Store:     store,
		Oracle:    oracle,
		Codecs:    codecs,
		Protector: protector,
		PeriodMs:  periodMs,
	})

	dummy := measure.NewDummy()
	require.NoError(t, dummy.Setup(log.Base(), nil))
	require.True(t, s.Register(dummy))

	return s, dummy
}

func TestMaybeRunIntervalSkipsBeforePeriodElapses(t *testing.T) {
	s, dummy := newTestScheduler(t, 1_000_000) // effectively never due
	s.MaybeRunInterval()
	assert.Equal(t, uint64(0), dummy.Ran())

	intervalsRun, _ := s.Stats()
	assert.Equal(t, uint64(0), intervalsRun)
}

func TestMaybeRunIntervalRunsOncePeriodElapses(t *testing.T) {
	s, dummy := newTestScheduler(t, 1)
	time.Sleep(5 * time.Millisecond)

	s.MaybeRunInterval()

	assert.Equal(t, uint64(1), dummy.Ran())
	intervalsRun, _ := s.Stats()
	assert.Equal(t, uint64(1), intervalsRun)
	assert.False(t, s.IsInInterval())
}

func TestMaybeRunIntervalIsReentrancySafe(t *testing.T) {
	s, _ := newTestScheduler(t, 1)
	time.Sleep(5 * time.Millisecond) // period elapsed: only the flag can stop the run
	s.inInterval.Store(true)
	s.MaybeRunInterval()
	intervalsRun, _ := s.Stats()
	assert.Equal(t, uint64(0), intervalsRun)
}

func TestRunFinalIntervalBypassesPeriod(t *testing.T) {
	s, dummy := newTestScheduler(t, 1_000_000)
	s.RunFinalInterval()
	assert.Equal(t, uint64(1), dummy.Ran())
}

func TestIsWorkingThreadFalseOutsideInterval(t *testing.T) {
	s, _ := newTestScheduler(t, 0)
	assert.False(t, s.IsWorkingThread())
	s.RunFinalInterval()
	// runInterval unpins and clears workingThreadID before returning.
	assert.False(t, s.IsWorkingThread())
}

// fakeProtector records every ProtectReadOnly/Unprotect call instead of
// touching real page permissions, so runInterval's protect/unprotect
// wiring can be asserted without mprotect-ing the test binary's own heap.
type fakeProtector struct {
	protected, unprotected []protect.Range
}

func (f *fakeProtector) ProtectReadOnly(base uintptr, length uint64) error {
	f.protected = append(f.protected, protect.Range{Base: base, Length: length})
	return nil
}

func (f *fakeProtector) Unprotect(base uintptr, length uint64) error {
	f.unprotected = append(f.unprotected, protect.Range{Base: base, Length: length})
	return nil
}

func TestRunIntervalProtectsLiveSetAndUnprotectsPriorWindow(t *testing.T) {
	store := registry.New()
	oracle := procio.New(os.Getpid())
	codecs := codec.NewRegistry(log.Base(), []codec.Type{codec.Zlib})
	fp := &fakeProtector{}

	s := New(Config{
		Logger:    log.Base(),
		Store:     store,
		Oracle:    oracle,
		Codecs:    codecs,
		Protector: fp,
		PeriodMs:  1_000_000,
	})

	const addr, size = 0x10000, 4096
	store.RecordAlloc(addr, size, 0xdead)

	s.RunFinalInterval()
	require.Len(t, fp.protected, 1)
	assert.Equal(t, uintptr(addr), fp.protected[0].Base)
	assert.Equal(t, uint64(size), fp.protected[0].Length)
	assert.Empty(t, fp.unprotected, "nothing was protected before the first interval")

	s.RunFinalInterval()
	require.Len(t, fp.unprotected, 1)
	assert.Equal(t, uintptr(addr), fp.unprotected[0].Base)
	assert.Equal(t, uint64(size), fp.unprotected[0].Length)
	assert.Len(t, fp.protected, 2, "still live, so protected again for the next window")
}
