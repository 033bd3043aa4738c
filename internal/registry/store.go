package registry

import (
	"sync"
	"time"

	"github.com/adam-mcdaniel/heappulse/internal/fixed"
)

// Store is the Registry entity of spec.md §3: a mapping from site
// identifier to AllocationSite, plus the huge-page table, behind one
// mutex. All three invariants I1–I3 hold for the lifetime of a Store:
// every live allocation is reachable via exactly one (site, address)
// pair, Contains agrees with the registry's actual contents, and every
// mutation happens under Lock.
type Store struct {
	mu        sync.Mutex
	sites     *fixed.Map[uint64, *AllocationSite]
	hugePages *fixed.Map[uintptr, *HugePageRecord]
	now       func() time.Time

	// Drops counts capacity-exhaustion events (spec.md §7's "capacity
	// exhaustion" error class) for self-telemetry; it is not part of the
	// registry's correctness contract.
	siteDrops   uint64
	recordDrops uint64
}

// New constructs an empty Store with the capacities fixed by spec.md §3.
func New() *Store {
	return &Store{
		sites:     fixed.NewMap[uint64, *AllocationSite](SiteCapacity),
		hugePages: fixed.NewMap[uintptr, *HugePageRecord](256),
		now:       time.Now,
	}
}

// Lock and Unlock expose the registry mutex directly to the interval
// scheduler (package scheduler), which must hold it across age_all,
// every test's interval() call, and the snapshot those tests read —
// spec.md §4.F's Pending→Running transition. Methods below ending in
// "Locked" assume the caller already holds Lock(); every other method
// takes and releases it for the single call, for use from the hook
// adapter (package hooks) in Idle state.
func (s *Store) Lock()   { s.mu.Lock() }
func (s *Store) Unlock() { s.mu.Unlock() }

// RecordAlloc implements spec.md §4.D's record_alloc. A zero size is
// accepted by the hook but not recorded, per spec.md §8.
func (s *Store) RecordAlloc(addr uintptr, size uint64, returnPC uintptr) {
	if size == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordAllocLocked(addr, size, returnPC)
}

func (s *Store) recordAllocLocked(addr uintptr, size uint64, returnPC uintptr) {
	siteID := uint64(returnPC)
	site, ok := s.sites.Get(siteID)
	if !ok {
		if s.sites.Full() {
			// Adding a new site under pressure is not permitted; the
			// whole record is dropped (spec.md §4.D).
			s.siteDrops++
			return
		}
		site = newAllocationSite(returnPC)
		s.sites.Put(siteID, site)
	}
	rec := &AllocationRecord{Addr: addr, Size: size, ReturnPC: returnPC, Born: s.now()}
	if !site.allocations.Has(addr) && site.allocations.Full() {
		// Per-site map full and this is a new address: drop the new
		// record rather than evict a live one (spec.md §4.D).
		s.recordDrops++
		return
	}
	// A live record at addr under another site is overwritten, not kept
	// alongside the new one (I1).
	s.sites.Each(func(id uint64, other *AllocationSite) {
		if id != siteID {
			other.allocations.Remove(addr)
		}
	})
	site.allocations.Put(addr, rec)
}

// RecordFree implements spec.md §4.D's record_free: a site-scan removal,
// since the registry keeps no global address→site reverse index (the
// free path stays allocation-free by not maintaining one).
func (s *Store) RecordFree(addr uintptr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordFreeLocked(addr)
}

func (s *Store) recordFreeLocked(addr uintptr) {
	s.sites.Each(func(_ uint64, site *AllocationSite) {
		site.allocations.Remove(addr)
	})
}

// Contains implements spec.md §4.D's contains: true iff some site holds a
// live record at addr.
func (s *Store) Contains(addr uintptr) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.containsLocked(addr)
}

func (s *Store) containsLocked(addr uintptr) bool {
	found := false
	s.sites.Each(func(_ uint64, site *AllocationSite) {
		if found {
			return
		}
		if site.allocations.Has(addr) {
			found = true
		}
	})
	return found
}

// AgeAllLocked increments every live record's age by one. The caller must
// hold Lock(); the interval scheduler calls this immediately before
// running tests, per spec.md §4.F.
func (s *Store) AgeAllLocked() {
	s.sites.Each(func(_ uint64, site *AllocationSite) {
		site.allocations.Each(func(_ uintptr, rec *AllocationRecord) {
			rec.Age++
		})
	})
	s.hugePages.Each(func(_ uintptr, hp *HugePageRecord) {
		hp.Age++
	})
}

// SnapshotLiveLocked invokes visit(siteID, record) for every live
// (site, record) pair. The caller must hold Lock() for the duration of
// the call and must not retain record pointers past Unlock(), since the
// next interval's age_all mutates them in place.
func (s *Store) SnapshotLiveLocked(visit func(siteID uint64, rec *AllocationRecord)) {
	s.sites.Each(func(siteID uint64, site *AllocationSite) {
		site.allocations.Each(func(_ uintptr, rec *AllocationRecord) {
			visit(siteID, rec)
		})
	})
}

// LiveCountLocked returns the number of live records across all sites.
// The caller must hold Lock().
func (s *Store) LiveCountLocked() int {
	n := 0
	s.sites.Each(func(_ uint64, site *AllocationSite) {
		n += site.allocations.Len()
	})
	return n
}

// RecordHugePageAlloc implements on_huge_page_alloc (spec.md §6).
func (s *Store) RecordHugePageAlloc(base uintptr, size uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hugePages.Put(base, &HugePageRecord{Base: base, Size: size})
}

// RecordHugePageFree implements on_huge_page_free.
func (s *Store) RecordHugePageFree(base uintptr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hugePages.Remove(base)
}

// SnapshotHugePagesLocked invokes visit for every live huge page. Caller
// must hold Lock().
func (s *Store) SnapshotHugePagesLocked(visit func(hp *HugePageRecord)) {
	s.hugePages.Each(func(_ uintptr, hp *HugePageRecord) {
		visit(hp)
	})
}

// ResetHugePageFlagsLocked clears the three per-interval accessed/read/
// written flags on every huge page, at the start of an interval.
func (s *Store) ResetHugePageFlagsLocked() {
	s.hugePages.Each(func(_ uintptr, hp *HugePageRecord) {
		hp.Accessed, hp.Read, hp.Written = false, false, false
	})
}

// Drops reports the number of capacity-exhaustion events observed so far,
// for the self-telemetry package (internal/telemetry) to surface as a
// counter.
func (s *Store) Drops() (siteDrops, recordDrops uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.siteDrops, s.recordDrops
}
