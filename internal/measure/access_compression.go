package measure

import (
	"io"
	"unsafe"

	"github.com/prometheus/common/log"

	"github.com/adam-mcdaniel/heappulse/internal/fixed"
	"github.com/adam-mcdaniel/heappulse/internal/procio"
	"github.com/adam-mcdaniel/heappulse/internal/registry"
)

const accessCompressionSink = "access-compression.csv"
const pageGranularitySize = 4096

// Granularity selects what AccessCompression treats as one compressible
// entity. Huge-page granularity is handled by its own test
// (HugePageCompression), matching the original's separate file.
type Granularity int

const (
	GranularityObject Granularity = iota
	GranularityPage
)

func (g Granularity) String() string {
	if g == GranularityPage {
		return "page"
	}
	return "object"
}

// AccessCompression implements spec.md §4.G's access-compression test at
// object or 4 KiB page granularity: for each live entity, every
// available codec is run once and one row is emitted per
// (interval, entity, codec).
type AccessCompression struct {
	BaseTest
	granularity Granularity
	table       *fixed.Table
}

func NewAccessCompression(g Granularity) *AccessCompression {
	return &AccessCompression{granularity: g}
}

func (t *AccessCompression) Name() string {
	return "access-compression-" + t.granularity.String()
}

func (t *AccessCompression) Setup(logger log.Logger, sinks map[string]io.Writer) error {
	title := fixed.NewTitle(
		"interval", "entity_addr", "age_class", "codec",
		"uncompressed_bytes", "compressed_bytes", "ratio", "compression_class",
	)
	t.table = fixed.NewTable(title, 128)
	return nil
}

func (t *AccessCompression) Interval(ctx *IntervalContext) {
	if t.granularity == GranularityPage {
		t.intervalPages(ctx)
	} else {
		t.intervalObjects(ctx)
	}
	if sink := ctx.Sink(accessCompressionSink); sink != nil {
		t.table.Write(accessCompressionSink, sink)
	}
}

func (t *AccessCompression) intervalObjects(ctx *IntervalContext) {
	ctx.Store.SnapshotLiveLocked(func(_ uint64, rec *registry.AllocationRecord) {
		data := readMemory(rec.Addr, rec.Size)
		if data == nil {
			return
		}
		t.emitEntity(ctx, rec.Addr, rec.Size, ageClass(rec.Age), data)
	})
}

func (t *AccessCompression) intervalPages(ctx *IntervalContext) {
	seen := make(map[uintptr]bool)
	ctx.Store.SnapshotLiveLocked(func(_ uint64, rec *registry.AllocationRecord) {
		pages := fixed.NewVector[procio.PageInfo](256)
		queryPages(ctx, rec.Addr, rec.Size, pages)
		pages.Each(func(_ int, pi procio.PageInfo) {
			if seen[pi.VAddr] {
				return
			}
			seen[pi.VAddr] = true
			data := readMemory(pi.VAddr, pageGranularitySize)
			if data == nil {
				return
			}
			t.emitEntity(ctx, pi.VAddr, pageGranularitySize, ageClass(rec.Age), data)
		})
	})
}

func (t *AccessCompression) emitEntity(ctx *IntervalContext, addr uintptr, size uint64, class string, data []byte) {
	title := t.table.Title()
	for _, c := range ctx.Codecs.Available() {
		n := ctx.Codecs.Compress(c, data)
		ratio := 0.0
		if len(data) > 0 {
			ratio = float64(n) / float64(len(data))
		}
		row := t.table.NewRow()
		row.Set(title, "interval", fixed.IntCell(int64(ctx.Interval)))
		row.Set(title, "entity_addr", fixed.PointerCell(uint64(addr)))
		row.Set(title, "age_class", fixed.StringCell(class))
		row.Set(title, "codec", fixed.StringCell(c.String()))
		row.Set(title, "uncompressed_bytes", fixed.IntCell(int64(size)))
		row.Set(title, "compressed_bytes", fixed.IntCell(int64(n)))
		row.Set(title, "ratio", fixed.FloatCell(ratio))
		row.Set(title, "compression_class", fixed.StringCell(compressionClassBucket(ratio)))
		if !t.table.Append(row) {
			if sink := ctx.Sink(accessCompressionSink); sink != nil {
				t.table.Write(accessCompressionSink, sink)
			}
			t.table.Append(row)
		}
	}
}

// readMemory views size bytes of this process's own address space
// starting at addr as a byte slice, for feeding to a compressor. Unsafe
// by nature — addr must name a currently-mapped, live range, which the
// registry guarantees for any record it still holds. Returns nil if size
// is zero, never panics on an unmapped range on its own (a genuinely
// unmapped address would fault the process, same as any other invalid
// memory access in Go).
func readMemory(addr uintptr, size uint64) []byte {
	if size == 0 || addr == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(size))
}
