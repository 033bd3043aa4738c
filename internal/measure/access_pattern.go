package measure

import (
	"io"

	"github.com/prometheus/common/log"

	"github.com/adam-mcdaniel/heappulse/internal/fixed"
	"github.com/adam-mcdaniel/heappulse/internal/procio"
	"github.com/adam-mcdaniel/heappulse/internal/registry"
)

const accessPatternSink = "access-pattern.csv"
const accessWindowCount = 6
const ageClasses4 = 4

// accessGen is one interval's worth of access evidence: addresses
// classified written (a fault under read-only protection — see
// internal/protect — can only be a write, since a read against a
// PROT_READ page never faults) and read (the oracle's present-but-
// clean-after-a-prior-clear heuristic; a best-effort proxy, not a
// guarantee, since HeapPulse has no cheap way to distinguish a read
// fault from a write fault without a PROT_NONE-based two-phase scheme).
type accessGen struct {
	written map[uintptr]uint64
	read    map[uintptr]uint64
}

// AccessPattern implements spec.md §4.G's access-pattern test: six
// rolling windows (this interval, last 2, ..., last 6 intervals) over
// {accessed, read, written, unaccessed, live}, further split by age
// class.
type AccessPattern struct {
	BaseTest
	table   *fixed.Table
	history [accessWindowCount]accessGen
	filled  int
	head    int
}

func NewAccessPattern() *AccessPattern { return &AccessPattern{} }

func (t *AccessPattern) Name() string { return "access-pattern" }

func (t *AccessPattern) Setup(logger log.Logger, sinks map[string]io.Writer) error {
	cols := []string{"interval", "category", "age_class"}
	for w := 1; w <= accessWindowCount; w++ {
		cols = append(cols,
			colName("window", w, "count"),
			colName("window", w, "bytes"),
		)
	}
	t.table = fixed.NewTable(fixed.NewTitle(cols...), 64)
	return nil
}

func colName(prefix string, n int, suffix string) string {
	return prefix + "_" + itoaSmall(n) + "_" + suffix
}

func itoaSmall(n int) string {
	if n < 10 {
		return string(rune('0' + n))
	}
	return string(rune('0'+n/10)) + string(rune('0'+n%10))
}

func (t *AccessPattern) Interval(ctx *IntervalContext) {
	gen := accessGen{written: make(map[uintptr]uint64), read: make(map[uintptr]uint64)}

	live := make(map[uintptr]*registry.AllocationRecord)
	ctx.Store.SnapshotLiveLocked(func(_ uint64, rec *registry.AllocationRecord) {
		live[rec.Addr] = rec
	})

	for addr, rec := range live {
		if recordFaulted(ctx, rec) {
			gen.written[addr] = rec.Size
			continue
		}
		if recordReadHeuristic(ctx, rec) {
			gen.read[addr] = rec.Size
		}
	}

	t.push(gen)

	for _, class := range []string{"new", "young", "middle", "old"} {
		for _, category := range []string{"accessed", "read", "written", "unaccessed", "live"} {
			t.emitCategory(ctx, category, class, live)
		}
	}

	if sink := ctx.Sink(accessPatternSink); sink != nil {
		t.table.Write(accessPatternSink, sink)
	}
}

// windowUnion is the per-address membership evidence accumulated over a
// rolling window of generations, keyed per address.
type windowUnion struct {
	written map[uintptr]bool
	read    map[uintptr]bool
}

func (t *AccessPattern) unionWindow(n int) *windowUnion {
	u := &windowUnion{written: make(map[uintptr]bool), read: make(map[uintptr]bool)}
	count := n
	if count > t.filled {
		count = t.filled
	}
	idx := t.head
	for i := 0; i < count; i++ {
		idx = (idx - 1 + accessWindowCount) % accessWindowCount
		gen := t.history[idx]
		for a := range gen.written {
			u.written[a] = true
		}
		for a := range gen.read {
			u.read[a] = true
		}
	}
	return u
}

func (t *AccessPattern) push(gen accessGen) {
	t.history[t.head] = gen
	t.head = (t.head + 1) % accessWindowCount
	if t.filled < accessWindowCount {
		t.filled++
	}
}

func (t *AccessPattern) emitCategory(
	ctx *IntervalContext,
	category, class string,
	live map[uintptr]*registry.AllocationRecord,
) {
	row := t.table.NewRow()
	title := t.table.Title()
	row.Set(title, "interval", fixed.IntCell(int64(ctx.Interval)))
	row.Set(title, "category", fixed.StringCell(category))
	row.Set(title, "age_class", fixed.StringCell(class))

	for w := 1; w <= accessWindowCount; w++ {
		u := t.unionWindow(w)
		var count int
		var bytes uint64
		for addr, rec := range live {
			if ageClass(rec.Age) != class {
				continue
			}
			if categoryMatches(category, addr, u) {
				count++
				bytes += rec.Size
			}
		}
		row.Set(title, colName("window", w, "count"), fixed.IntCell(int64(count)))
		row.Set(title, colName("window", w, "bytes"), fixed.IntCell(int64(bytes)))
	}
	t.table.Append(row)
}

func categoryMatches(category string, addr uintptr, u *windowUnion) bool {
	w := u.written[addr]
	r := u.read[addr]
	switch category {
	case "written":
		return w
	case "read":
		return r
	case "accessed":
		return w || r
	case "unaccessed":
		return !w && !r
	case "live":
		return true
	default:
		return false
	}
}

// recordFaulted reports whether rec's page range overlaps the interval's
// fault set — under internal/protect's mprotect(PROT_READ) scheme, any
// such fault can only be a write (a read against PROT_READ never
// faults).
func recordFaulted(ctx *IntervalContext, rec *registry.AllocationRecord) bool {
	if ctx.FaultSet == nil {
		return false
	}
	hit := false
	ctx.FaultSet.Each(func(pageAddr uintptr) {
		if hit {
			return
		}
		if pageAddr >= rec.Addr&^(pageGranularitySize-1) && pageAddr < rec.Addr+uintptr(rec.Size) {
			hit = true
		}
	})
	return hit
}

// recordReadHeuristic is a best-effort, non-authoritative proxy for a
// read-only touch: the record's backing pages are present but not dirty
// and not themselves in the fault set. Documented as a heuristic, not a
// guarantee, since distinguishing a true read fault requires a
// PROT_NONE-based two-phase protection scheme this edition does not
// implement.
func recordReadHeuristic(ctx *IntervalContext, rec *registry.AllocationRecord) bool {
	if ctx.Oracle == nil {
		return false
	}
	pages := fixed.NewVector[procio.PageInfo](256)
	queryPages(ctx, rec.Addr, rec.Size, pages)
	found := false
	pages.Each(func(_ int, pi procio.PageInfo) {
		if pi.Present && !pi.Dirty {
			found = true
		}
	})
	return found
}
