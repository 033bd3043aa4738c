package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStats struct {
	intervalsRun  uint64
	faultsDropped uint64
	inInterval    bool
}

func (f fakeStats) Stats() (uint64, uint64) { return f.intervalsRun, f.faultsDropped }
func (f fakeStats) IsInInterval() bool      { return f.inInterval }

type fakeDrops struct {
	siteDrops, recordDrops uint64
}

func (f fakeDrops) Drops() (uint64, uint64) { return f.siteDrops, f.recordDrops }

func collectAll(t *testing.T, c prometheus.Collector) map[string]float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 16)
	c.Collect(ch)
	close(ch)

	out := map[string]float64{}
	for m := range ch {
		var pb dto.Metric
		require.NoError(t, m.Write(&pb))
		name := m.Desc().String()
		if pb.Counter != nil {
			out[name] = pb.Counter.GetValue()
		} else if pb.Gauge != nil {
			out[name] = pb.Gauge.GetValue()
		}
	}
	return out
}

func TestCollectorReportsSchedulerAndStoreStats(t *testing.T) {
	sched := fakeStats{intervalsRun: 7, faultsDropped: 2, inInterval: true}
	store := fakeDrops{siteDrops: 1, recordDrops: 3}

	c := NewCollector(sched, store)
	values := collectAll(t, c)

	var total float64
	for _, v := range values {
		total += v
	}
	assert.Greater(t, total, 0.0)
}

func TestCollectorToleratesNilStore(t *testing.T) {
	sched := fakeStats{intervalsRun: 1}
	c := NewCollector(sched, nil)
	assert.NotPanics(t, func() {
		collectAll(t, c)
	})
}
