package overmind

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHistoryWrap(t *testing.T) {
	h := newHistory(4)
	for i := 1; i <= 6; i++ {
		h.Push(float64(i))
	}

	assert.Equal(t, 4, h.Len())
	assert.InDelta(t, 3.0, h.At(0), 1e-12)
	assert.InDelta(t, 6.0, h.At(3), 1e-12)
	assert.InDelta(t, 3.5, h.MeanOldest(2), 1e-12)
	assert.InDelta(t, 5.5, h.MeanNewest(2), 1e-12)
}

func TestHistoryMeanClampsWindow(t *testing.T) {
	h := newHistory(10)
	assert.Zero(t, h.MeanNewest(3))

	h.Push(2)
	h.Push(4)
	assert.InDelta(t, 3.0, h.MeanOldest(30), 1e-12)
	assert.InDelta(t, 3.0, h.MeanNewest(30), 1e-12)
}
