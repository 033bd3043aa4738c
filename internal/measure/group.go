package measure

import (
	"io"

	"github.com/prometheus/common/log"

	"github.com/adam-mcdaniel/heappulse/internal/fixed"
	"github.com/adam-mcdaniel/heappulse/internal/registry"
)

const maxGroupMembers = 32

// Group composes several tests and broadcasts every callback to each of
// them in registration order, so the scheduler can register one Group in
// place of many individual tests — the "framework provides a group test"
// line from spec.md §4.G.
type Group struct {
	name    string
	members *fixed.Vector[Test]
}

// NewGroup constructs an empty, named Group.
func NewGroup(name string) *Group {
	return &Group{name: name, members: fixed.NewVector[Test](maxGroupMembers)}
}

// Add registers a member test, returning false if the group is full.
func (g *Group) Add(t Test) bool {
	return g.members.Push(t)
}

func (g *Group) Name() string { return g.name }

func (g *Group) Setup(logger log.Logger, sinks map[string]io.Writer) error {
	var firstErr error
	g.members.Each(func(_ int, t Test) {
		if err := t.Setup(logger, sinks); err != nil && firstErr == nil {
			firstErr = err
		}
	})
	return firstErr
}

func (g *Group) Cleanup() {
	g.members.Each(func(_ int, t Test) { t.Cleanup() })
}

func (g *Group) OnAlloc(rec *registry.AllocationRecord) {
	g.members.Each(func(_ int, t Test) { t.OnAlloc(rec) })
}

func (g *Group) OnFree(rec *registry.AllocationRecord) {
	g.members.Each(func(_ int, t Test) { t.OnFree(rec) })
}

func (g *Group) OnAccess(rec *registry.AllocationRecord, isWrite bool) {
	g.members.Each(func(_ int, t Test) { t.OnAccess(rec, isWrite) })
}

func (g *Group) OnRead(rec *registry.AllocationRecord) {
	g.members.Each(func(_ int, t Test) { t.OnRead(rec) })
}

func (g *Group) OnWrite(rec *registry.AllocationRecord) {
	g.members.Each(func(_ int, t Test) { t.OnWrite(rec) })
}

func (g *Group) OnHugePageAlloc(hp *registry.HugePageRecord) {
	g.members.Each(func(_ int, t Test) { t.OnHugePageAlloc(hp) })
}

func (g *Group) OnHugePageFree(hp *registry.HugePageRecord) {
	g.members.Each(func(_ int, t Test) { t.OnHugePageFree(hp) })
}

func (g *Group) Interval(ctx *IntervalContext) {
	g.members.Each(func(_ int, t Test) { t.Interval(ctx) })
}
