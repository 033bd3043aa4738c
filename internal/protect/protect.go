//go:build linux

// Package protect implements the access-protection subsystem's batch
// protect/unprotect half (spec component E): given a live range, revoke or
// restore read/write permission on the 4 KiB pages backing it. The other
// half — the fault handler that captures accesses to protected pages and
// hands control back — lives in package faultsig, since it has an
// entirely different safety contract (async-signal-safe, not mutex-safe).
//
// Three modes are supported, selected at bootstrap by the
// "protection-mode" config key (SPEC_FULL.md), mirroring spec.md §4.E's
// build-time mode selection: mprotect, pkey, and disabled (soft-dirty-only
// access inference).
package protect

import (
	"unsafe"

	"github.com/pkg/errors"
	"github.com/prometheus/common/log"
	"golang.org/x/sys/unix"
)

const pageSize = 4096

// Mode selects the protection backend.
type Mode int

const (
	ModeMprotect Mode = iota
	ModePkey
	ModeDisabled
)

// ParseMode maps the "protection-mode" config value to a Mode.
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "mprotect", "":
		return ModeMprotect, true
	case "pkey":
		return ModePkey, true
	case "disabled":
		return ModeDisabled, true
	default:
		return 0, false
	}
}

// Protector applies and lifts read-only protection over page-aligned
// virtual ranges. Failures are logged and skipped, never fatal — per
// spec.md §7, a failing mprotect/pkey_mprotect call is "treated as a bug":
// log the errno and move on to the next range this interval.
type Protector interface {
	ProtectReadOnly(base uintptr, length uint64) error
	Unprotect(base uintptr, length uint64) error
}

// New constructs the Protector for mode.
func New(mode Mode, pkeyID int) Protector {
	switch mode {
	case ModePkey:
		return &pkeyProtector{pkey: pkeyID}
	case ModeDisabled:
		return disabledProtector{}
	default:
		return mprotectProtector{}
	}
}

func alignRange(base uintptr, length uint64) (uintptr, uint64) {
	if length == 0 {
		return base, 0
	}
	alignedBase := base &^ (pageSize - 1)
	end := uint64(base) + length
	alignedEnd := (end + pageSize - 1) &^ (pageSize - 1)
	return alignedBase, alignedEnd - uint64(alignedBase)
}

func viewBytes(base uintptr, length uint64) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(base)), int(length))
}

type mprotectProtector struct{}

func (mprotectProtector) ProtectReadOnly(base uintptr, length uint64) error {
	if length == 0 {
		return nil
	}
	alignedBase, alignedLen := alignRange(base, length)
	if err := unix.Mprotect(viewBytes(alignedBase, alignedLen), unix.PROT_READ); err != nil {
		return errors.Wrapf(err, "mprotect(PROT_READ) at %#x len %d", alignedBase, alignedLen)
	}
	return nil
}

func (mprotectProtector) Unprotect(base uintptr, length uint64) error {
	if length == 0 {
		return nil
	}
	alignedBase, alignedLen := alignRange(base, length)
	prot := unix.PROT_READ | unix.PROT_WRITE | unix.PROT_EXEC
	if err := unix.Mprotect(viewBytes(alignedBase, alignedLen), prot); err != nil {
		return errors.Wrapf(err, "mprotect(RWX) at %#x len %d", alignedBase, alignedLen)
	}
	return nil
}

type pkeyProtector struct {
	pkey int
}

func (p *pkeyProtector) ProtectReadOnly(base uintptr, length uint64) error {
	if length == 0 {
		return nil
	}
	alignedBase, alignedLen := alignRange(base, length)
	if err := unix.PkeyMprotect(viewBytes(alignedBase, alignedLen), unix.PROT_READ, p.pkey); err != nil {
		return errors.Wrapf(err, "pkey_mprotect(PROT_READ) at %#x len %d", alignedBase, alignedLen)
	}
	return nil
}

func (p *pkeyProtector) Unprotect(base uintptr, length uint64) error {
	if length == 0 {
		return nil
	}
	alignedBase, alignedLen := alignRange(base, length)
	prot := unix.PROT_READ | unix.PROT_WRITE
	if err := unix.PkeyMprotect(viewBytes(alignedBase, alignedLen), prot, p.pkey); err != nil {
		return errors.Wrapf(err, "pkey_mprotect(RW) at %#x len %d", alignedBase, alignedLen)
	}
	return nil
}

// disabledProtector implements spec.md §4.E's "disabled" mode: access
// inference relies solely on soft-dirty bits from the page-info oracle
// (package procio), so protect/unprotect are no-ops.
type disabledProtector struct{}

func (disabledProtector) ProtectReadOnly(uintptr, uint64) error { return nil }
func (disabledProtector) Unprotect(uintptr, uint64) error       { return nil }

// Range is a [Base, Base+Length) virtual range to protect or unprotect.
type Range struct {
	Base   uintptr
	Length uint64
}

// BatchProtect applies ProtectReadOnly to every range, logging and
// skipping (never aborting) any range whose protection call fails, per
// spec.md §7.
func BatchProtect(p Protector, logger log.Logger, ranges []Range) {
	for _, r := range ranges {
		if err := p.ProtectReadOnly(r.Base, r.Length); err != nil {
			logger.Warnf("protect: failed to protect range, skipping: %v", err)
		}
	}
}

// BatchUnprotect is BatchProtect's inverse.
func BatchUnprotect(p Protector, logger log.Logger, ranges []Range) {
	for _, r := range ranges {
		if err := p.Unprotect(r.Base, r.Length); err != nil {
			logger.Warnf("protect: failed to unprotect range, skipping: %v", err)
		}
	}
}
