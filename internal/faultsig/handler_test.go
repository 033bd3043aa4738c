//go:build linux

package faultsig

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestDrainEmptyRingIsEmptySet exercises the no-faults path: a freshly
// installed handler that has seen no SIGSEGVs must drain to an empty set,
// never nil-panic or report spurious drops.
func TestDrainEmptyRingIsEmptySet(t *testing.T) {
	set, dropped := Drain()
	assert.Equal(t, 0, set.Len())
	assert.Equal(t, 0, dropped)
}

func TestInstallIsIdempotent(t *testing.T) {
	assert.NoError(t, Install())
	assert.NoError(t, Install())
}
