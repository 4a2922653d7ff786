package assert

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssert(t *testing.T) {
	assert.NotPanics(t, func() { Assert(true, "never") })
	assert.PanicsWithValue(t, "assertion failed: pin count 0 for page 7", func() {
		Assert(false, "pin count %d for page %d", 0, 7)
	})
}
