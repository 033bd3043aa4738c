package measure

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/adam-mcdaniel/heappulse/internal/registry"
)

func TestAgeClassBuckets(t *testing.T) {
	assert.Equal(t, "new", ageClass(0))
	assert.Equal(t, "young", ageClass(1))
	assert.Equal(t, "young", ageClass(4))
	assert.Equal(t, "middle", ageClass(5))
	assert.Equal(t, "middle", ageClass(9))
	assert.Equal(t, "old", ageClass(10))
	assert.Equal(t, "old", ageClass(1000))
}

func TestCompressionClassBucket(t *testing.T) {
	assert.Equal(t, "[0,10%)", compressionClassBucket(0.0))
	assert.Equal(t, "[0,10%)", compressionClassBucket(0.05))
	assert.Equal(t, "[90,100%)", compressionClassBucket(0.99))
	assert.Equal(t, "[90,100%)", compressionClassBucket(1.0))
}

func TestDummyCountsIntervals(t *testing.T) {
	d := NewDummy()
	assert.NoError(t, d.Setup(nil, nil))
	d.Interval(&IntervalContext{})
	d.Interval(&IntervalContext{})
	assert.Equal(t, uint64(2), d.Ran())
}

func TestGroupBroadcastsToEveryMember(t *testing.T) {
	g := NewGroup("demo")
	a, b := NewDummy(), NewDummy()
	assert.True(t, g.Add(a))
	assert.True(t, g.Add(b))

	assert.NoError(t, g.Setup(nil, nil))
	g.Interval(&IntervalContext{})

	assert.Equal(t, uint64(1), a.Ran())
	assert.Equal(t, uint64(1), b.Ran())
}

func TestGroupIsBoundedCapacity(t *testing.T) {
	g := NewGroup("overflow")
	for i := 0; i < maxGroupMembers; i++ {
		assert.True(t, g.Add(NewDummy()))
	}
	assert.False(t, g.Add(NewDummy()))
}

func TestObjectLivenessBucketsByAge(t *testing.T) {
	store := registry.New()
	store.RecordAlloc(0x1000, 64, 0xAAAA)
	store.RecordAlloc(0x2000, 128, 0xBBBB)

	test := NewObjectLiveness()
	assert.NoError(t, test.Setup(nil, nil))

	var out strings.Builder
	store.Lock()
	defer store.Unlock()
	test.Interval(&IntervalContext{Store: store, Interval: 0, Sinks: map[string]io.Writer{objectLivenessSink: &out}})
	assert.Equal(t, 2, store.LiveCountLocked())
	assert.Equal(t, "interval,age_class,live_count,live_bytes\n0,new,2,192\n0,young,0,0\n0,middle,0,0\n0,old,0,0\n", out.String())
}
