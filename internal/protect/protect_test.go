package protect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMode(t *testing.T) {
	cases := []struct {
		in   string
		want Mode
		ok   bool
	}{
		{"mprotect", ModeMprotect, true},
		{"", ModeMprotect, true},
		{"pkey", ModePkey, true},
		{"disabled", ModeDisabled, true},
		{"bogus", 0, false},
	}
	for _, c := range cases {
		got, ok := ParseMode(c.in)
		assert.Equal(t, c.ok, ok, c.in)
		if c.ok {
			assert.Equal(t, c.want, got, c.in)
		}
	}
}

func TestDisabledProtectorIsNoOp(t *testing.T) {
	p := New(ModeDisabled, -1)
	assert.NoError(t, p.ProtectReadOnly(0x1000, 4096))
	assert.NoError(t, p.Unprotect(0x1000, 4096))
}

func TestAlignRangeRoundsOutward(t *testing.T) {
	base, length := alignRange(0x1001, 10)
	assert.Equal(t, uintptr(0x1000), base)
	assert.Equal(t, uint64(pageSize), length)
}

func TestAlignRangeZeroLength(t *testing.T) {
	base, length := alignRange(0x1000, 0)
	assert.Equal(t, uintptr(0x1000), base)
	assert.Equal(t, uint64(0), length)
}
