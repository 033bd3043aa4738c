// Package registry implements the allocation-tracking registry (spec
// component D): a two-level site → address → AllocationRecord map with
// fixed capacity at both levels, plus the huge-page table from spec.md
// §3's HugePageRecord entity. Every mutating operation is guarded by one
// mutex (spec invariant I3); the hook adapter (package hooks) try-locks
// its own mutex and then calls Store methods that take this one with a
// blocking Lock, while the interval scheduler holds it for the duration of
// a whole interval. Both levels are built on the
// fixed-capacity Map (package fixed) so growth under pressure fails
// closed instead of allocating, per spec.md §4.A's rationale.
package registry

import (
	"time"

	"github.com/adam-mcdaniel/heappulse/internal/fixed"
)

// PerSiteCapacity and SiteCapacity are the "≈1,000 entries per site" and
// "≈1,000 sites" bounds from spec.md §3.
const (
	PerSiteCapacity = 1000
	SiteCapacity    = 1000
)

// AllocationRecord is the entity described in spec.md §3. Identity is
// Addr; Age increases monotonically while the record is live and is reset
// only by removal and re-creation (record collision, §8's boundary case).
type AllocationRecord struct {
	Addr     uintptr
	Size     uint64
	Age      uint64
	Born     time.Time
	ReturnPC uintptr
}

// AllocationSite is the entity described in spec.md §3: a return-address
// identity owning a bounded map of live records.
type AllocationSite struct {
	ReturnPC    uintptr
	allocations *fixed.Map[uintptr, *AllocationRecord]
}

func newAllocationSite(pc uintptr) *AllocationSite {
	return &AllocationSite{
		ReturnPC:    pc,
		allocations: fixed.NewMap[uintptr, *AllocationRecord](PerSiteCapacity),
	}
}

// HugePageRecord is the entity described in spec.md §3. Nothing in this
// module sets the three accessed/read/written flags, so they stay false;
// Store.ResetHugePageFlagsLocked clears them but has no caller.
type HugePageRecord struct {
	Base     uintptr
	Size     uint64
	Age      uint64
	Accessed bool
	Read     bool
	Written  bool
}

// End returns the exclusive end address of the huge page.
func (h *HugePageRecord) End() uintptr { return h.Base + uintptr(h.Size) }

// Contains reports whether [addr, addr+size) lies entirely within the
// huge page — spec.md invariant I4's read-only derived containment
// relation.
func (h *HugePageRecord) Contains(addr uintptr, size uint64) bool {
	return addr >= h.Base && addr+uintptr(size) <= h.End()
}
