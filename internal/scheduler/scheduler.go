//go:build linux

// Package scheduler implements the interval scheduler (spec component F):
// a time-triggered pass, tripped from inside an allocator hook, that
// walks the registry and runs every registered measurement test while
// holding the registry lock for the duration.
package scheduler

import (
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/common/log"
	"golang.org/x/sys/unix"

	"github.com/adam-mcdaniel/heappulse/internal/codec"
	"github.com/adam-mcdaniel/heappulse/internal/faultsig"
	"github.com/adam-mcdaniel/heappulse/internal/fixed"
	"github.com/adam-mcdaniel/heappulse/internal/hostprobe"
	"github.com/adam-mcdaniel/heappulse/internal/measure"
	"github.com/adam-mcdaniel/heappulse/internal/procio"
	"github.com/adam-mcdaniel/heappulse/internal/protect"
	"github.com/adam-mcdaniel/heappulse/internal/registry"
)

const maxTests = 32

// Scheduler is the Idle → Pending → Running → Idle state machine from
// spec.md §4.F. It owns no data of its own beyond the timer and the
// registered test list; the registry it drives lives in package registry.
type Scheduler struct {
	logger log.Logger
	store  *registry.Store
	tests  *fixed.Vector[measure.Test]

	oracle    *procio.Oracle
	codecs    *codec.Registry
	protector protect.Protector
	sinks     map[string]io.Writer
	hostLabel hostprobe.Label

	periodMs       int64
	clearSoftDirty bool

	scheduleMu sync.Mutex
	lastRun    atomic.Int64 // unix nanoseconds

	inInterval      atomic.Bool
	workingThreadID atomic.Int64

	intervalNum atomic.Uint64

	// protectedRanges is the live set this scheduler protected read-only
	// at the end of the previous interval, kept so the next interval can
	// unprotect exactly those ranges before re-deriving a fresh set from
	// the current live snapshot — spec.md §4.E's "protect/later unprotect"
	// cycle.
	protectedRanges []protect.Range

	// Self-telemetry, read by internal/telemetry.
	intervalsRun  atomic.Uint64
	faultsDropped atomic.Uint64
}

// Config bundles the construction-time dependencies a Scheduler needs.
type Config struct {
	Logger         log.Logger
	Store          *registry.Store
	Oracle         *procio.Oracle
	Codecs         *codec.Registry
	Protector      protect.Protector
	Sinks          map[string]io.Writer
	HostLabel      hostprobe.Label
	PeriodMs       int64
	ClearSoftDirty bool
}

// New constructs a Scheduler in the Idle state.
func New(cfg Config) *Scheduler {
	period := cfg.PeriodMs
	if period <= 0 {
		period = 1000
	}
	s := &Scheduler{
		logger:         cfg.Logger,
		store:          cfg.Store,
		tests:          fixed.NewVector[measure.Test](maxTests),
		oracle:         cfg.Oracle,
		codecs:         cfg.Codecs,
		protector:      cfg.Protector,
		sinks:          cfg.Sinks,
		hostLabel:      cfg.HostLabel,
		periodMs:       period,
		clearSoftDirty: cfg.ClearSoftDirty,
	}
	s.lastRun.Store(time.Now().UnixNano())
	return s
}

// Register adds a test to run every interval, in registration order. Not
// safe to call once the scheduler is driving hooks.
func (s *Scheduler) Register(t measure.Test) bool {
	return s.tests.Push(t)
}

// IsInInterval reports whether the scheduler is currently in the Running
// state — the reentrancy guard every hook entry checks first (spec.md
// §4.F, §4.H rule 1).
func (s *Scheduler) IsInInterval() bool {
	return s.inInterval.Load()
}

// IsWorkingThread reports whether the calling OS thread is the one
// currently running the interval pass (invariant H2's working thread).
// The fault handler in package faultsig does not consult it; it records
// every fault the same way.
func (s *Scheduler) IsWorkingThread() bool {
	tid := int64(unix.Gettid())
	return s.workingThreadID.Load() == tid
}

// MaybeRunInterval is the Idle→Pending transition attempt: a try-lock on
// the schedule mutex, tripped from any hook entry point once its own
// (already-held) hook mutex and registry update have completed. Failure
// to acquire the schedule mutex — another thread is already running an
// interval, or simply lost the race — leaves the state Idle and returns
// without running anything, per spec.md §4.F.
func (s *Scheduler) MaybeRunInterval() {
	if s.inInterval.Load() {
		return
	}
	elapsed := time.Since(time.Unix(0, s.lastRun.Load()))
	if elapsed < time.Duration(s.periodMs)*time.Millisecond {
		return
	}
	if !s.scheduleMu.TryLock() {
		return
	}
	defer s.scheduleMu.Unlock()

	// Re-check under the lock: another thread may have just run one.
	elapsed = time.Since(time.Unix(0, s.lastRun.Load()))
	if elapsed < time.Duration(s.periodMs)*time.Millisecond {
		return
	}
	s.runInterval()
}

func (s *Scheduler) runInterval() {
	s.inInterval.Store(true)
	defer s.inInterval.Store(false)

	// Pin to the current OS thread so workingThreadID, as reported by
	// IsWorkingThread, matches the thread that is actually executing this
	// interval pass for its entire duration (spec.md §9's "working
	// thread" concept).
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	tid := int64(unix.Gettid())
	s.workingThreadID.Store(tid)
	defer s.workingThreadID.Store(0)

	s.store.Lock()
	defer s.store.Unlock()

	if s.clearSoftDirty {
		s.oracle.ClearSoftDirty()
	}
	s.store.AgeAllLocked()

	// Drain the fault set accumulated since the previous interval's
	// BatchProtect, then restore full access to exactly those ranges —
	// spec.md §4.E's "unprotect... at the boundary" half of the cycle.
	// Any page the fault handler already restored individually is
	// unprotected again here harmlessly.
	faultSet, dropped := faultsig.Drain()
	if dropped > 0 {
		s.faultsDropped.Add(uint64(dropped))
		s.logger.Warnf("scheduler: dropped %d fault-set entries this interval (ring full)", dropped)
	}
	protect.BatchUnprotect(s.protector, s.logger, s.protectedRanges)
	s.protectedRanges = nil

	num := s.intervalNum.Add(1) - 1
	ctx := &measure.IntervalContext{
		Store:     s.store,
		Oracle:    s.oracle,
		Codecs:    s.codecs,
		Protector: s.protector,
		FaultSet:  faultSet,
		Interval:  num,
		Now:       time.Now(),
		Sinks:     s.sinks,
		HostLabel: s.hostLabel,
	}

	s.tests.Each(func(_ int, t measure.Test) {
		t.Interval(ctx)
	})

	// Protect the now-current live set read-only for the next window, per
	// spec.md §4.F: "protect for the next window after draining" — any
	// write to these ranges before the next interval faults, is captured
	// by faultsig, and is drained at the top of the next runInterval.
	var ranges []protect.Range
	s.store.SnapshotLiveLocked(func(_ uint64, rec *registry.AllocationRecord) {
		ranges = append(ranges, protect.Range{Base: rec.Addr, Length: rec.Size})
	})
	protect.BatchProtect(s.protector, s.logger, ranges)
	s.protectedRanges = ranges

	s.intervalsRun.Add(1)
	s.lastRun.Store(time.Now().UnixNano())
}

// Stats returns self-telemetry counters for internal/telemetry.
func (s *Scheduler) Stats() (intervalsRun, faultsDropped uint64) {
	return s.intervalsRun.Load(), s.faultsDropped.Load()
}

// RunFinalInterval forces one last interval synchronously, bypassing the
// period check — for a caller to run at process shutdown (Instance.Close
// does not call it), matching spec.md §4.E's
// "Cancellation" note that a final pass may run from a destructor.
func (s *Scheduler) RunFinalInterval() {
	if s.inInterval.Load() {
		return
	}
	s.scheduleMu.Lock()
	defer s.scheduleMu.Unlock()
	s.runInterval()
}
