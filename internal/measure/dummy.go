package measure

import (
	"io"

	"github.com/prometheus/common/log"
)

// Dummy is the no-op test from the original's dummy_test.cpp: it touches
// nothing and emits nothing. Kept as the minimal worked example for
// anyone registering a new test, and used by internal/scheduler's tests
// as a zero-cost probe that an interval actually ran.
type Dummy struct {
	BaseTest
	ran uint64
}

func NewDummy() *Dummy { return &Dummy{} }

func (d *Dummy) Name() string { return "dummy" }

func (d *Dummy) Setup(log.Logger, map[string]io.Writer) error { return nil }

func (d *Dummy) Interval(ctx *IntervalContext) {
	d.ran++
}

// Ran reports how many intervals this Dummy has observed, for tests.
func (d *Dummy) Ran() uint64 { return d.ran }
