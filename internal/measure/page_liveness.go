package measure

import (
	"io"

	"github.com/prometheus/common/log"

	"github.com/adam-mcdaniel/heappulse/internal/fixed"
	"github.com/adam-mcdaniel/heappulse/internal/procio"
	"github.com/adam-mcdaniel/heappulse/internal/registry"
)

const pageLivenessSink = "page-liveness.csv"

const defaultPageQueryCapacity = 4096

// PageLiveness is the original's page_liveness_test.cpp: a lighter cousin
// of the page-tracking test, emitting one row per interval with aggregate
// present/dirty/soft-dirty page counts across all live ranges, without
// per-page history.
type PageLiveness struct {
	BaseTest
	table *fixed.Table
}

func NewPageLiveness() *PageLiveness { return &PageLiveness{} }

func (t *PageLiveness) Name() string { return "page-liveness" }

func (t *PageLiveness) Setup(logger log.Logger, sinks map[string]io.Writer) error {
	title := fixed.NewTitle(
		"interval", "present_pages", "dirty_pages", "soft_dirty_pages", "zero_pages",
	)
	t.table = fixed.NewTable(title, 16)
	return nil
}

func (t *PageLiveness) Interval(ctx *IntervalContext) {
	var present, dirty, softDirty, zero int

	ctx.Store.SnapshotLiveLocked(func(_ uint64, rec *registry.AllocationRecord) {
		pages := fixed.NewVector[procio.PageInfo](defaultPageQueryCapacity)
		queryPages(ctx, rec.Addr, rec.Size, pages)
		pages.Each(func(_ int, pi procio.PageInfo) {
			present++
			if pi.Dirty {
				dirty++
			}
			if pi.SoftDirty {
				softDirty++
			}
			if pi.Zero {
				zero++
			}
		})
	})

	row := t.table.NewRow()
	row.Set(t.table.Title(), "interval", fixed.IntCell(int64(ctx.Interval)))
	row.Set(t.table.Title(), "present_pages", fixed.IntCell(int64(present)))
	row.Set(t.table.Title(), "dirty_pages", fixed.IntCell(int64(dirty)))
	row.Set(t.table.Title(), "soft_dirty_pages", fixed.IntCell(int64(softDirty)))
	row.Set(t.table.Title(), "zero_pages", fixed.IntCell(int64(zero)))
	t.table.Append(row)

	if sink := ctx.Sink(pageLivenessSink); sink != nil {
		t.table.Write(pageLivenessSink, sink)
	}
}
