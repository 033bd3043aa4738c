package measure

import (
	"io"

	"github.com/prometheus/common/log"

	"github.com/adam-mcdaniel/heappulse/internal/fixed"
	"github.com/adam-mcdaniel/heappulse/internal/registry"
)

const hugePageCompressionSink = "huge-page-compression.csv"

// HugePageCompression is the original's
// huge_page_access_compression_test.cpp, kept as its own test per
// SPEC_FULL.md's supplemented-features section rather than folded into
// AccessCompression's granularity switch, matching the original's
// structure: huge pages carry their own Accessed/Read/Written flags
// instead of being derived from the fault set the way object/page
// granularity are. Nothing in this module sets those flags, so they are
// always false when this test reads them.
// Rows also carry the owning systemd unit name when host labeling is
// enabled (internal/hostprobe; empty otherwise).
type HugePageCompression struct {
	BaseTest
	table *fixed.Table
}

func NewHugePageCompression() *HugePageCompression { return &HugePageCompression{} }

func (t *HugePageCompression) Name() string { return "huge-page-compression" }

func (t *HugePageCompression) Setup(logger log.Logger, sinks map[string]io.Writer) error {
	title := fixed.NewTitle(
		"interval", "unit_name", "base_addr", "accessed", "read", "written", "codec",
		"uncompressed_bytes", "compressed_bytes", "ratio", "compression_class",
	)
	t.table = fixed.NewTable(title, 64)
	return nil
}

func (t *HugePageCompression) Interval(ctx *IntervalContext) {
	ctx.Store.SnapshotHugePagesLocked(func(hp *registry.HugePageRecord) {
		data := readMemory(hp.Base, hp.Size)
		if data == nil {
			return
		}
		title := t.table.Title()
		for _, c := range ctx.Codecs.Available() {
			n := ctx.Codecs.Compress(c, data)
			ratio := 0.0
			if len(data) > 0 {
				ratio = float64(n) / float64(len(data))
			}
			row := t.table.NewRow()
			row.Set(title, "interval", fixed.IntCell(int64(ctx.Interval)))
			row.Set(title, "unit_name", fixed.StringCell(ctx.HostLabel.UnitName))
			row.Set(title, "base_addr", fixed.PointerCell(uint64(hp.Base)))
			row.Set(title, "accessed", fixed.BoolCell(hp.Accessed))
			row.Set(title, "read", fixed.BoolCell(hp.Read))
			row.Set(title, "written", fixed.BoolCell(hp.Written))
			row.Set(title, "codec", fixed.StringCell(c.String()))
			row.Set(title, "uncompressed_bytes", fixed.IntCell(int64(hp.Size)))
			row.Set(title, "compressed_bytes", fixed.IntCell(int64(n)))
			row.Set(title, "ratio", fixed.FloatCell(ratio))
			row.Set(title, "compression_class", fixed.StringCell(compressionClassBucket(ratio)))
			if !t.table.Append(row) {
				if sink := ctx.Sink(hugePageCompressionSink); sink != nil {
					t.table.Write(hugePageCompressionSink, sink)
				}
				t.table.Append(row)
			}
		}
	})
	if sink := ctx.Sink(hugePageCompressionSink); sink != nil {
		t.table.Write(hugePageCompressionSink, sink)
	}
}
