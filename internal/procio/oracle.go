//go:build linux

// Package procio is the page-info oracle (spec component B): it turns a
// virtual address range into a bounded sequence of per-4 KiB PageInfo
// records by reading /proc/<pid>/pagemap and /proc/kpageflags, the same
// pair of kernel interfaces walked by the intel-cri-resource-manager
// memtier idle-page tracker this package is grounded on. All file
// operations are best-effort: any failure yields an empty sequence rather
// than propagating, per spec.md §4.B's failure semantics.
package procio

import (
	"fmt"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/common/log"
	"golang.org/x/sys/unix"

	"github.com/adam-mcdaniel/heappulse/internal/fixed"
)

const (
	pageSize = 4096

	// /proc/<pid>/pagemap bit layout, from fs/proc/task_mmu.c.
	pmSoftDirtyBit = 55
	pmFileBit      = 61
	pmPresentBit   = 63
	pmPFNMask      = uint64(1)<<55 - 1

	// /proc/kpageflags bit layout, from
	// include/uapi/linux/kernel-page-flags.h.
	kpfDirtyBit = 4
	kpfZeroBit  = 24
)

// PageInfo is the ephemeral per-4 KiB record described in spec.md §3.
// Per invariant I5, if Present is false none of the other kernel-derived
// fields should be trusted.
type PageInfo struct {
	PFN        uint64
	VAddr      uintptr
	Present    bool
	Dirty      bool
	SoftDirty  bool
	Zero       bool
	FileMapped bool
}

// Oracle owns the pagemap/kpageflags/clear_refs descriptors for one
// process, opened once and cached for the process's lifetime (they are
// deliberately never closed — spec.md §5's resource-scoping policy).
type Oracle struct {
	pid int

	openOnce  sync.Once
	openErr   error
	pagemap   *os.File
	kpageflag *os.File

	clearOnce  sync.Once
	clearErr   error
	clearRefs  *os.File
}

// New constructs an Oracle for pid. File descriptors are opened lazily, on
// first Query/ClearSoftDirty call, not here.
func New(pid int) *Oracle {
	return &Oracle{pid: pid}
}

func (o *Oracle) open() error {
	o.openOnce.Do(func() {
		pagemapPath := fmt.Sprintf("/proc/%d/pagemap", o.pid)
		pm, err := os.Open(pagemapPath)
		if err != nil {
			o.openErr = errors.Wrapf(err, "open %s", pagemapPath)
			return
		}
		kf, err := os.Open("/proc/kpageflags")
		if err != nil {
			pm.Close()
			o.openErr = errors.Wrap(err, "open /proc/kpageflags")
			return
		}
		o.pagemap = pm
		o.kpageflag = kf
	})
	return o.openErr
}

// Query walks [base, base+length) page by page and appends a PageInfo for
// every covered page that is present and not file-mapped, stopping once
// dst is full (a caller-visible truncation, never an error) or the range
// is exhausted. On any kernel-interface failure it logs and returns an
// empty-so-far sequence rather than propagating, per spec.md §4.B.
func (o *Oracle) Query(base uintptr, length uint64, dst *fixed.Vector[PageInfo]) {
	if length == 0 {
		return
	}
	if err := o.open(); err != nil {
		log.Debugf("procio: oracle unavailable: %v", err)
		return
	}

	alignedBase := uintptr(uint64(base) / pageSize * pageSize)
	end := uint64(base) + length
	alignedEnd := (end + pageSize - 1) / pageSize * pageSize

	pagemapFD := int(o.pagemap.Fd())
	kpageFD := int(o.kpageflag.Fd())

	for addr := uint64(alignedBase); addr < alignedEnd; addr += pageSize {
		if dst.Full() {
			return
		}
		entry, err := pread64(pagemapFD, int64((addr/pageSize)*8))
		if err != nil {
			log.Debugf("procio: pagemap pread failed at %#x: %v", addr, err)
			return
		}
		present := entry&(uint64(1)<<pmPresentBit) != 0
		if !present {
			continue
		}
		fileMapped := entry&(uint64(1)<<pmFileBit) != 0
		if fileMapped {
			continue
		}
		softDirty := entry&(uint64(1)<<pmSoftDirtyBit) != 0
		pfn := entry & pmPFNMask

		flags, err := pread64(kpageFD, int64(pfn*8))
		if err != nil {
			log.Debugf("procio: kpageflags pread failed for pfn %d: %v", pfn, err)
			return
		}
		dst.Push(PageInfo{
			PFN:        pfn,
			VAddr:      uintptr(addr),
			Present:    present,
			Dirty:      flags&(uint64(1)<<kpfDirtyBit) != 0,
			SoftDirty:  softDirty,
			Zero:       flags&(uint64(1)<<kpfZeroBit) != 0,
			FileMapped: fileMapped,
		})
	}
}

func pread64(fd int, offset int64) (uint64, error) {
	var buf [8]byte
	n, err := unix.Pread(fd, buf[:], offset)
	if err != nil {
		return 0, err
	}
	if n != len(buf) {
		return 0, errors.Errorf("short pread: got %d of %d bytes", n, len(buf))
	}
	return hostEndian.Uint64(buf[:]), nil
}

// ClearSoftDirty writes "4" to /proc/<pid>/clear_refs, clearing the
// soft-dirty bit on every page. It is a no-op on failure, matching
// spec.md §4.B, and is intended to be called at most once per interval.
func (o *Oracle) ClearSoftDirty() {
	o.clearOnce.Do(func() {
		path := fmt.Sprintf("/proc/%d/clear_refs", o.pid)
		f, err := os.OpenFile(path, os.O_WRONLY, 0)
		if err != nil {
			o.clearErr = errors.Wrapf(err, "open %s", path)
			return
		}
		o.clearRefs = f
	})
	if o.clearErr != nil || o.clearRefs == nil {
		log.Debugf("procio: clear_refs unavailable: %v", o.clearErr)
		return
	}
	if _, err := o.clearRefs.WriteAt([]byte("4"), 0); err != nil {
		log.Debugf("procio: clear_refs write failed: %v", err)
	}
}
