package selffilter

import (
	"fmt"
	"reflect"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsInternalDetectsOwnPackage(t *testing.T) {
	pc, _, _, ok := runtime.Caller(0)
	assert.True(t, ok)
	assert.True(t, IsInternal(pc))
}

func TestIsInternalZeroPCIsExternal(t *testing.T) {
	assert.False(t, IsInternal(0))
}

func TestIsInternalStdlibIsExternal(t *testing.T) {
	pc := reflect.ValueOf(fmt.Sprintf).Pointer()
	assert.False(t, IsInternal(pc))
}
