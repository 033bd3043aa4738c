// Package selffilter implements the original's backtrace-based
// self-filtering (src/include/backtrace.hpp, referenced from hook.cpp):
// return addresses that resolve into HeapPulse's own packages are
// discarded so the instrumentation never instruments its own bookkeeping
// allocations (CSV row construction, codec scratch buffers, the registry
// itself). This is a best-effort heuristic, not a correctness guarantee
// — a symbol table stripped of package paths, or inlining that collapses
// a HeapPulse frame into its caller, both cause a false negative.
package selffilter

import (
	"runtime"
	"strings"
)

// internalPrefixes is the package-prefix allowlist captured once at
// init. Any resolved function whose name starts with one of these is
// considered HeapPulse's own code rather than the instrumented
// mutator's.
var internalPrefixes = []string{
	"github.com/adam-mcdaniel/heappulse/internal/",
}

// IsInternal reports whether pc resolves to a function inside HeapPulse
// itself. A pc that can't be resolved (0, or no symbol table) is treated
// as external: under-filtering (occasionally measuring HeapPulse's own
// bookkeeping) is preferable to over-filtering (silently dropping a
// mutator allocation).
func IsInternal(pc uintptr) bool {
	if pc == 0 {
		return false
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return false
	}
	name := fn.Name()
	for _, prefix := range internalPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
