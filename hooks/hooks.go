// Package hooks is the hook adapter (spec component H): the six entry
// points an external allocator calls into on the mutator thread after
// every allocation-relevant event. It is the one package in HeapPulse an
// allocator's own code imports directly; this module ships no cgo shim
// that exports these entry points to C.
package hooks

import (
	"runtime"
	"sync"

	"github.com/adam-mcdaniel/heappulse/internal/registry"
	"github.com/adam-mcdaniel/heappulse/internal/scheduler"
	"github.com/adam-mcdaniel/heappulse/internal/selffilter"
)

// Adapter wires the six hook entry points to a registry and the
// scheduler that drives it. Every method follows the three discipline
// rules from spec.md §4.H: skip while an interval is running, try-lock
// the hook mutex, then update the registry and offer the scheduler a
// chance to run.
type Adapter struct {
	store     *registry.Store
	scheduler *scheduler.Scheduler
	hookMu    sync.Mutex
}

// New constructs an Adapter over the given store and scheduler. Both are
// normally built once at bootstrap (package bootstrap) and shared with
// every other component.
func New(store *registry.Store, sched *scheduler.Scheduler) *Adapter {
	return &Adapter{store: store, scheduler: sched}
}

// callerPC captures the hook's caller's return address with a single
// stack-frame read, never a full backtrace walk, per spec.md §4.H's
// return-address capture rule.
func callerPC() uintptr {
	var pcs [1]uintptr
	n := runtime.Callers(3, pcs[:])
	if n == 0 {
		return 0
	}
	return pcs[0]
}

// PostAlloc implements the post_alloc hook. It takes only size and
// address (no heap handle or alignment), since the registry only tracks
// address, size and return address.
func (a *Adapter) PostAlloc(size uint64, addr uintptr) {
	if a.scheduler.IsInInterval() {
		return
	}
	if !a.hookMu.TryLock() {
		return
	}
	defer a.hookMu.Unlock()

	pc := callerPC()
	if selffilter.IsInternal(pc) {
		return
	}
	a.store.RecordAlloc(addr, size, pc)
	a.scheduler.MaybeRunInterval()
}

// PreFree implements the pre_free hook.
func (a *Adapter) PreFree(addr uintptr) {
	if a.scheduler.IsInInterval() {
		return
	}
	if !a.hookMu.TryLock() {
		return
	}
	defer a.hookMu.Unlock()

	a.store.RecordFree(addr)
	a.scheduler.MaybeRunInterval()
}

// PostMmap implements the post_mmap hook. prot/flags/fd/offset are part
// of the consumed ABI (spec.md §6) but, like PostAlloc's heap handle,
// don't affect registry bookkeeping: an mmap'd range is tracked the same
// way as a small/medium allocation once it's live.
func (a *Adapter) PostMmap(length uint64, returnedAddr uintptr) {
	if a.scheduler.IsInInterval() {
		return
	}
	if !a.hookMu.TryLock() {
		return
	}
	defer a.hookMu.Unlock()

	pc := callerPC()
	if selffilter.IsInternal(pc) {
		return
	}
	a.store.RecordAlloc(returnedAddr, length, pc)
	a.scheduler.MaybeRunInterval()
}

// PostMunmap implements the post_munmap hook.
func (a *Adapter) PostMunmap(addr uintptr, _ uint64) {
	if a.scheduler.IsInInterval() {
		return
	}
	if !a.hookMu.TryLock() {
		return
	}
	defer a.hookMu.Unlock()

	a.store.RecordFree(addr)
	a.scheduler.MaybeRunInterval()
}

// BlockNew implements the block_new hook: a new >=2 MiB slab backing
// region, tracked in the huge-page table rather than the ordinary
// allocation sites.
func (a *Adapter) BlockNew(base uintptr, size uint64) {
	if a.scheduler.IsInInterval() {
		return
	}
	if !a.hookMu.TryLock() {
		return
	}
	defer a.hookMu.Unlock()

	a.store.RecordHugePageAlloc(base, size)
	a.scheduler.MaybeRunInterval()
}

// BlockRelease implements the block_release hook.
func (a *Adapter) BlockRelease(base uintptr) {
	if a.scheduler.IsInInterval() {
		return
	}
	if !a.hookMu.TryLock() {
		return
	}
	defer a.hookMu.Unlock()

	a.store.RecordHugePageFree(base)
	a.scheduler.MaybeRunInterval()
}
