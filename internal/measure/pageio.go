package measure

import (
	"github.com/adam-mcdaniel/heappulse/internal/fixed"
	"github.com/adam-mcdaniel/heappulse/internal/procio"
)

// queryPages is the shared helper every page-granularity test uses to
// walk a live record's backing pages through the page-info oracle. A nil
// Oracle (an IntervalContext built without one, as in unit tests) yields
// an empty sequence, matching the oracle's own best-effort
// contract (spec.md §4.B).
func queryPages(ctx *IntervalContext, addr uintptr, size uint64, dst *fixed.Vector[procio.PageInfo]) {
	if ctx.Oracle == nil {
		return
	}
	ctx.Oracle.Query(addr, size, dst)
}
