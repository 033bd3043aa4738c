package measure

import (
	"io"

	"github.com/prometheus/common/log"

	"github.com/adam-mcdaniel/heappulse/internal/fixed"
	"github.com/adam-mcdaniel/heappulse/internal/procio"
	"github.com/adam-mcdaniel/heappulse/internal/registry"
)

const pageTrackingSink = "page-tracking.csv"

type pageHistory struct {
	firstInterval    uint64
	writeCount       uint64
	lastWriteSeen    uint64
	sawWriteEver     bool
	readOnlyAfterHit bool
}

// PageTracking implements spec.md §4.G's page-tracking test: per
// physical-page history across intervals (first interval seen, age,
// write count, intervals since last write, a read-only-after-initial-
// write flag, and a contains-new-objects flag), one row per
// (interval, live physical page).
type PageTracking struct {
	BaseTest
	table   *fixed.Table
	history map[uintptr]*pageHistory
}

func NewPageTracking() *PageTracking {
	return &PageTracking{history: make(map[uintptr]*pageHistory)}
}

func (t *PageTracking) Name() string { return "page-tracking" }

func (t *PageTracking) Setup(logger log.Logger, sinks map[string]io.Writer) error {
	title := fixed.NewTitle(
		"interval", "page_addr", "first_interval", "age",
		"write_count", "intervals_since_last_write",
		"read_only_after_initial_write", "contains_new_objects",
	)
	t.table = fixed.NewTable(title, 256)
	return nil
}

func (t *PageTracking) Interval(ctx *IntervalContext) {
	newObjectPages := make(map[uintptr]bool)
	livePages := make(map[uintptr]bool)

	ctx.Store.SnapshotLiveLocked(func(_ uint64, rec *registry.AllocationRecord) {
		pages := fixed.NewVector[procio.PageInfo](256)
		queryPages(ctx, rec.Addr, rec.Size, pages)
		pages.Each(func(_ int, pi procio.PageInfo) {
			livePages[pi.VAddr] = true
			if rec.Age == 0 {
				newObjectPages[pi.VAddr] = true
			}
			h, ok := t.history[pi.VAddr]
			if !ok {
				h = &pageHistory{firstInterval: ctx.Interval}
				t.history[pi.VAddr] = h
			}
			if pi.Dirty {
				h.writeCount++
				h.lastWriteSeen = ctx.Interval
				if !h.sawWriteEver {
					h.sawWriteEver = true
					h.readOnlyAfterHit = true
				} else {
					h.readOnlyAfterHit = false
				}
			}
		})
	})

	title := t.table.Title()
	for pageAddr := range livePages {
		h := t.history[pageAddr]
		sinceWrite := int64(-1)
		if h.sawWriteEver {
			sinceWrite = int64(ctx.Interval - h.lastWriteSeen)
		}
		row := t.table.NewRow()
		row.Set(title, "interval", fixed.IntCell(int64(ctx.Interval)))
		row.Set(title, "page_addr", fixed.PointerCell(uint64(pageAddr)))
		row.Set(title, "first_interval", fixed.IntCell(int64(h.firstInterval)))
		row.Set(title, "age", fixed.IntCell(int64(ctx.Interval-h.firstInterval)))
		row.Set(title, "write_count", fixed.IntCell(int64(h.writeCount)))
		row.Set(title, "intervals_since_last_write", fixed.IntCell(sinceWrite))
		row.Set(title, "read_only_after_initial_write", fixed.BoolCell(h.readOnlyAfterHit && h.writeCount == 1))
		row.Set(title, "contains_new_objects", fixed.BoolCell(newObjectPages[pageAddr]))
		if !t.table.Append(row) {
			if sink := ctx.Sink(pageTrackingSink); sink != nil {
				t.table.Write(pageTrackingSink, sink)
			}
			t.table.Append(row)
		}
	}

	// Drop history for pages no longer backing any live record, since the
	// registry keeps no reverse index and an unbounded history map would
	// defeat the fixed-capacity ethos the rest of the registry follows.
	for addr := range t.history {
		if !livePages[addr] {
			delete(t.history, addr)
		}
	}

	if sink := ctx.Sink(pageTrackingSink); sink != nil {
		t.table.Write(pageTrackingSink, sink)
	}
}
