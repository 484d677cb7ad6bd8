package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocReturnsDistinctRegions(t *testing.T) {
	a := New(64)

	first := a.Alloc(16)
	second := a.Alloc(16)
	require.Len(t, first, 16)
	require.Len(t, second, 16)

	copy(first, "aaaaaaaaaaaaaaaa")
	copy(second, "bbbbbbbbbbbbbbbb")
	assert.Equal(t, "aaaaaaaaaaaaaaaa", string(first))
	assert.Equal(t, "bbbbbbbbbbbbbbbb", string(second))
}

func TestAllocGrowsBeyondBlockSize(t *testing.T) {
	a := New(8)

	small := a.Alloc(4)
	big := a.Alloc(64) // larger than the block size
	require.Len(t, small, 4)
	require.Len(t, big, 64)
	assert.EqualValues(t, 68, a.Allocated())
}

func TestInternBytesCopiesInput(t *testing.T) {
	a := New(64)

	src := []byte("HasComponent")
	s := a.InternBytes(src)
	src[0] = 'X' // caller reuses its buffer

	assert.Equal(t, "HasComponent", s)
	assert.True(t, a.Owns(s))
}

func TestOwns(t *testing.T) {
	a := New(64)

	owned := a.InternString("ns=1;i=42")
	assert.True(t, a.Owns(owned))
	assert.True(t, a.Owns(owned[5:]), "substrings share arena storage")
	assert.True(t, a.Owns(""), "empty strings have no backing storage")
	assert.False(t, a.Owns("somewhere else"))
}

func TestReset(t *testing.T) {
	a := New(32)

	a.Alloc(16)
	a.Alloc(48)
	require.NotZero(t, a.Allocated())

	a.Reset()
	assert.Zero(t, a.Allocated())

	// usable again after reset
	assert.Len(t, a.Alloc(8), 8)
}
