// Package measure implements the pluggable measurement tests of spec
// component G. Every test is an independent internal/fixed.Table writer
// driven by the interval scheduler (package scheduler); none of them
// communicate with each other except through the shared registry
// snapshot each receives in Interval.
package measure

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/common/log"

	"github.com/adam-mcdaniel/heappulse/internal/codec"
	"github.com/adam-mcdaniel/heappulse/internal/fixed"
	"github.com/adam-mcdaniel/heappulse/internal/hostprobe"
	"github.com/adam-mcdaniel/heappulse/internal/procio"
	"github.com/adam-mcdaniel/heappulse/internal/protect"
	"github.com/adam-mcdaniel/heappulse/internal/registry"
)

// Test is the capability set every measurement test implements, per
// spec.md §4.G. Tests that don't care about a given callback embed
// BaseTest to pick up a no-op default rather than writing one out.
type Test interface {
	Name() string
	Setup(logger log.Logger, sinks map[string]io.Writer) error
	Cleanup()
	OnAlloc(rec *registry.AllocationRecord)
	OnFree(rec *registry.AllocationRecord)
	OnAccess(rec *registry.AllocationRecord, isWrite bool)
	OnRead(rec *registry.AllocationRecord)
	OnWrite(rec *registry.AllocationRecord)
	OnHugePageAlloc(hp *registry.HugePageRecord)
	OnHugePageFree(hp *registry.HugePageRecord)
	Interval(ctx *IntervalContext)
}

// BaseTest supplies no-op implementations of every Test method except
// Name, Setup and Interval, which every real test provides itself.
// Tests that don't care about a hook (most of them only care about one
// or two) embed BaseTest and inherit the rest.
type BaseTest struct{}

func (BaseTest) OnAlloc(*registry.AllocationRecord)          {}
func (BaseTest) OnFree(*registry.AllocationRecord)           {}
func (BaseTest) OnAccess(*registry.AllocationRecord, bool)   {}
func (BaseTest) OnRead(*registry.AllocationRecord)           {}
func (BaseTest) OnWrite(*registry.AllocationRecord)          {}
func (BaseTest) OnHugePageAlloc(*registry.HugePageRecord)    {}
func (BaseTest) OnHugePageFree(*registry.HugePageRecord)     {}
func (BaseTest) Cleanup()                                    {}

// IntervalContext bundles everything a test's Interval method may read.
// Store is already locked by the scheduler for the duration of the call;
// tests must not retain AllocationRecord/HugePageRecord pointers past
// Interval returning.
// HostLabel is resolved once at bootstrap (not re-resolved every
// interval, since the owning unit and its cgroup rarely change over a
// run) and carried into every IntervalContext thereafter; it is the
// zero Label when host-labels are disabled or resolution failed.
type IntervalContext struct {
	Store     *registry.Store
	Oracle    *procio.Oracle
	Codecs    *codec.Registry
	Protector protect.Protector
	FaultSet  *fixed.Set[uintptr]
	Interval  uint64
	Now       time.Time
	Sinks     map[string]io.Writer
	HostLabel hostprobe.Label
}

// Sink looks up the output file registered under name, or nil if Sinks
// holds no entry for it (e.g. an IntervalContext built without that sink —
// tests must tolerate a nil sink by skipping the write, not panicking).
func (c *IntervalContext) Sink(name string) io.Writer {
	return c.Sinks[name]
}

// Age-class buckets for the access-pattern and object-liveness tests,
// per spec.md §4.G: "new" (age 0), "young" (1-4), "middle" (5-9),
// "old" (>=10).
func ageClass(age uint64) string {
	switch {
	case age == 0:
		return "new"
	case age <= 4:
		return "young"
	case age <= 9:
		return "middle"
	default:
		return "old"
	}
}

// compressionClassBucket maps a compression ratio in [0,1] to one of the
// ten "[0,10%) ... [90,100%)" bins from spec.md §4.G.
func compressionClassBucket(ratio float64) string {
	pct := int(ratio * 100)
	if pct < 0 {
		pct = 0
	}
	if pct > 99 {
		pct = 99
	}
	low := (pct / 10) * 10
	high := low + 10
	return bucketLabel(low, high)
}

func bucketLabel(low, high int) string {
	return fmt.Sprintf("[%d,%d%%)", low, high)
}
