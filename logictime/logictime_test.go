package logictime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZeroValue(t *testing.T) {
	var s LogicStamp
	assert.Equal(t, KVTime(0), s.SegTime)
	assert.Equal(t, int32(0), s.SegKeyNo)
}

func TestLessByTime(t *testing.T) {
	a := New(1, 100)
	b := New(2, 0)
	assert.True(t, Less(a, b))
	assert.False(t, Less(b, a))
}

func TestLessBySeqWithinSameTime(t *testing.T) {
	a := New(5, 1)
	b := New(5, 2)
	assert.True(t, Less(a, b))
	assert.False(t, Less(b, a))
	assert.False(t, Less(a, a))
}

func TestCompare(t *testing.T) {
	a := New(5, 1)
	b := New(5, 2)
	assert.Equal(t, -1, Compare(a, b))
	assert.Equal(t, 1, Compare(b, a))
	assert.Equal(t, 0, Compare(a, a))
}

func TestGreaterOrEqual(t *testing.T) {
	a := New(5, 1)
	b := New(5, 1)
	c := New(5, 2)
	assert.True(t, GreaterOrEqual(a, b))
	assert.True(t, GreaterOrEqual(c, a))
	assert.False(t, GreaterOrEqual(a, c))
}
