package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceBufferEvictsOldestFirst(t *testing.T) {
	b := NewPriceBuffer(3)
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 0.0, b.Last())
	assert.Empty(t, b.Values())

	for _, p := range []float64{1, 2, 3, 4, 5} {
		b.Push(p)
		assert.LessOrEqual(t, b.Len(), b.Cap())
	}

	assert.Equal(t, 3, b.Len())
	assert.Equal(t, []float64{3, 4, 5}, b.Values())
	assert.Equal(t, 5.0, b.Last())
	assert.Equal(t, 3.0, b.At(0))
}

func TestPriceBufferTail(t *testing.T) {
	b := NewPriceBuffer(4)
	for _, p := range []float64{10, 11, 12, 13, 14, 15} {
		b.Push(p)
	}
	assert.Equal(t, []float64{14, 15}, b.Tail(2))
	assert.Equal(t, []float64{12, 13, 14, 15}, b.Tail(10))
	assert.Nil(t, b.Tail(0))
}

func TestPriceBufferDefaultCapacity(t *testing.T) {
	b := NewPriceBuffer(0)
	require.Equal(t, DefaultCapacity, b.Cap())
	for i := 0; i < 250; i++ {
		b.Push(float64(i))
	}
	assert.Equal(t, DefaultCapacity, b.Len())
	assert.Equal(t, 150.0, b.At(0))
	assert.Equal(t, 249.0, b.Last())
}

func TestPriceBufferAtOutOfRangePanics(t *testing.T) {
	b := NewPriceBuffer(2)
	b.Push(1)
	assert.Panics(t, func() { b.At(1) })
}
