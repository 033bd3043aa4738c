package measure

import (
	"fmt"
	"io"

	"github.com/prometheus/common/log"

	"github.com/adam-mcdaniel/heappulse/internal/fixed"
	"github.com/adam-mcdaniel/heappulse/internal/procio"
	"github.com/adam-mcdaniel/heappulse/internal/registry"
)

const generationalSink = "generational.csv"

// generationalThresholds are the eight age thresholds from spec.md §4.G.
var generationalThresholds = []uint64{1, 2, 4, 8, 10, 16, 24, 32}

// Generational implements spec.md §4.G's generational test: for each age
// threshold, partitions live bytes into (physical-present, written,
// read-only, virtual) sums, emitting one row per interval with 32
// aggregate columns (8 thresholds x 4 categories), plus the owning
// systemd unit and its cgroup memory/cpu context when host labeling is
// enabled (internal/hostprobe; empty strings/zeros otherwise).
type Generational struct {
	BaseTest
	table *fixed.Table
}

func NewGenerational() *Generational { return &Generational{} }

func (t *Generational) Name() string { return "generational" }

func (t *Generational) Setup(logger log.Logger, sinks map[string]io.Writer) error {
	cols := []string{"interval", "unit_name", "cgroup_anon_bytes", "cgroup_cpu_total_usec"}
	for _, threshold := range generationalThresholds {
		for _, category := range []string{"virtual", "physical_present", "written", "read_only"} {
			cols = append(cols, fmt.Sprintf("age_ge_%d_%s_bytes", threshold, category))
		}
	}
	t.table = fixed.NewTable(fixed.NewTitle(cols...), 16)
	return nil
}

type genBucket struct {
	virtual, present, written uint64
}

func (t *Generational) Interval(ctx *IntervalContext) {
	buckets := make(map[uint64]*genBucket, len(generationalThresholds))
	for _, threshold := range generationalThresholds {
		buckets[threshold] = &genBucket{}
	}

	ctx.Store.SnapshotLiveLocked(func(_ uint64, rec *registry.AllocationRecord) {
		present, written := t.physicalBytes(ctx, rec)
		for _, threshold := range generationalThresholds {
			if rec.Age < threshold {
				continue
			}
			b := buckets[threshold]
			b.virtual += rec.Size
			b.present += present
			b.written += written
		}
	})

	title := t.table.Title()
	row := t.table.NewRow()
	row.Set(title, "interval", fixed.IntCell(int64(ctx.Interval)))
	row.Set(title, "unit_name", fixed.StringCell(ctx.HostLabel.UnitName))
	row.Set(title, "cgroup_anon_bytes", fixed.IntCell(int64(ctx.HostLabel.Mem.AnonBytes)))
	row.Set(title, "cgroup_cpu_total_usec", fixed.IntCell(int64(ctx.HostLabel.CPU.TotalMicrosec)))
	for _, threshold := range generationalThresholds {
		b := buckets[threshold]
		readOnly := b.present - b.written
		row.Set(title, fmt.Sprintf("age_ge_%d_virtual_bytes", threshold), fixed.IntCell(int64(b.virtual)))
		row.Set(title, fmt.Sprintf("age_ge_%d_physical_present_bytes", threshold), fixed.IntCell(int64(b.present)))
		row.Set(title, fmt.Sprintf("age_ge_%d_written_bytes", threshold), fixed.IntCell(int64(b.written)))
		row.Set(title, fmt.Sprintf("age_ge_%d_read_only_bytes", threshold), fixed.IntCell(int64(readOnly)))
	}
	t.table.Append(row)

	if sink := ctx.Sink(generationalSink); sink != nil {
		t.table.Write(generationalSink, sink)
	}
}

// physicalBytes returns the present and written byte totals for rec's
// backing pages, approximating page-granular present/written bytes by
// the page size for every present/dirty page the oracle reports.
func (t *Generational) physicalBytes(ctx *IntervalContext, rec *registry.AllocationRecord) (present, written uint64) {
	pages := fixed.NewVector[procio.PageInfo](256)
	queryPages(ctx, rec.Addr, rec.Size, pages)
	pages.Each(func(_ int, pi procio.PageInfo) {
		present += pageGranularitySize
		if pi.Dirty {
			written += pageGranularitySize
		}
	})
	return present, written
}
