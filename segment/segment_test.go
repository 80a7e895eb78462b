package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intellect4all/kvdb/blockdevice"
	"github.com/intellect4all/kvdb/digest"
	"github.com/intellect4all/kvdb/entry"
)

func newTestSegment(t *testing.T, size int64) *Segment {
	t.Helper()
	dev := blockdevice.NewMemory()
	require.NoError(t, dev.Truncate(size))
	return newSegment(0, 0, size, dev)
}

func TestPutPacksHeaderForwardDataBackward(t *testing.T) {
	seg := newTestSegment(t, 4096)

	h1 := entry.DataHeader{KeyDigest: digest.Compute([]byte("a")), DataSize: 3}
	off1, err := seg.Put(h1, []byte("xyz"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), off1) // first header at segment start

	h2 := entry.DataHeader{KeyDigest: digest.Compute([]byte("b")), DataSize: 2}
	off2, err := seg.Put(h2, []byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, int64(entry.DataHeaderSize), off2)

	got1, err := seg.ReadHeader(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(4096-3), got1.DataOffset)
	assert.Equal(t, uint32(entry.DataHeaderSize), got1.NextHeaderOffset) // patched to point at h2

	got2, err := seg.ReadHeader(int64(entry.DataHeaderSize))
	require.NoError(t, err)
	assert.Equal(t, uint32(4096-3-2), got2.DataOffset)
	assert.Equal(t, uint32(0), got2.NextHeaderOffset) // chain end
}

func TestReadValueRoundTrip(t *testing.T) {
	seg := newTestSegment(t, 4096)

	h := entry.DataHeader{KeyDigest: digest.Compute([]byte("k")), DataSize: 5}
	_, err := seg.Put(h, []byte("hello"))
	require.NoError(t, err)

	stored, err := seg.ReadHeader(0)
	require.NoError(t, err)
	value, err := seg.ReadValue(stored)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(value))
}

func TestSegmentFullWhenGapTooSmall(t *testing.T) {
	size := int64(entry.DataHeaderSize) + 4 // room for exactly one tiny record
	seg := newTestSegment(t, size)

	h1 := entry.DataHeader{KeyDigest: digest.Compute([]byte("a")), DataSize: 4}
	_, err := seg.Put(h1, []byte("abcd"))
	require.NoError(t, err)

	h2 := entry.DataHeader{KeyDigest: digest.Compute([]byte("b")), DataSize: 1}
	_, err = seg.Put(h2, []byte("z"))
	assert.ErrorIs(t, err, ErrSegmentFull)
}

func TestTombstoneRecordHasNoValueBytes(t *testing.T) {
	seg := newTestSegment(t, 4096)

	h := entry.DataHeader{KeyDigest: digest.Compute([]byte("a")), DataSize: 0}
	_, err := seg.Put(h, nil)
	require.NoError(t, err)

	stored, err := seg.ReadHeader(0)
	require.NoError(t, err)
	assert.True(t, stored.IsTombstone())
	assert.Equal(t, uint32(4096), stored.DataOffset) // no value bytes consumed
}

func TestWalkHeadersYieldsInsertionOrder(t *testing.T) {
	seg := newTestSegment(t, 4096)

	keys := []string{"a", "b", "c"}
	for _, k := range keys {
		h := entry.DataHeader{KeyDigest: digest.Compute([]byte(k)), DataSize: 1}
		_, err := seg.Put(h, []byte("x"))
		require.NoError(t, err)
	}

	var seen []digest.Digest
	err := seg.WalkHeaders(func(_ int64, h entry.DataHeader) (bool, error) {
		seen = append(seen, h.KeyDigest)
		return true, nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 3)
	for i, k := range keys {
		assert.Equal(t, digest.Compute([]byte(k)), seen[i])
	}
}

func TestValuesLieAtHeaderDataOffsetAndSize(t *testing.T) {
	seg := newTestSegment(t, 4096)

	values := [][]byte{[]byte("one"), []byte("twotwo"), []byte("3")}
	for i, v := range values {
		h := entry.DataHeader{KeyDigest: digest.Compute([]byte{byte(i)}), DataSize: uint16(len(v))}
		_, err := seg.Put(h, v)
		require.NoError(t, err)
	}

	i := 0
	err := seg.WalkHeaders(func(_ int64, h entry.DataHeader) (bool, error) {
		value, rerr := seg.ReadValue(h)
		require.NoError(t, rerr)
		assert.Equal(t, values[i], value)
		i++
		return true, nil
	})
	require.NoError(t, err)
}
