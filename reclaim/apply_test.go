package reclaim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intellect4all/kvdb/blockdevice"
	"github.com/intellect4all/kvdb/digest"
	"github.com/intellect4all/kvdb/entry"
	"github.com/intellect4all/kvdb/hashindex"
	"github.com/intellect4all/kvdb/logictime"
	"github.com/intellect4all/kvdb/segment"
)

func newTestDirectory(t *testing.T, segSize int64) (*segment.Directory, blockdevice.Device) {
	t.Helper()
	dev := blockdevice.NewMemory()
	require.NoError(t, dev.Truncate(segSize*4))
	dir := segment.New(dev, segment.Config{BaseOffset: 0, SegmentSize: segSize}, nil)
	return dir, dev
}

func putRecord(t *testing.T, dir *segment.Directory, idx *hashindex.HashIndex, key string, value []byte, segTime int64) {
	t.Helper()
	d := digest.Compute([]byte(key))
	seg, _, _, intraSeq, err := dir.Allocate(len(value))
	require.NoError(t, err)
	header := entry.DataHeader{KeyDigest: d, DataSize: uint16(len(value))}
	abs, err := seg.Put(header, value)
	require.NoError(t, err)
	candidate := entry.HashEntry{
		OnDisk: entry.HashEntryOnDisk{Header: header, HeaderOffset: entry.DataHeaderOffset(abs)},
		Stamp:  logictime.New(logictime.KVTime(segTime), intraSeq),
	}
	require.NoError(t, ApplyUpdate(idx, dir, d, candidate))
}

func TestApplyUpdateMarksLiveOnWin(t *testing.T) {
	dir, _ := newTestDirectory(t, 4096)
	idx := hashindex.InitForCreate(8, nil)

	putRecord(t, dir, idx, "a", []byte("hello"), 1)

	assert.Equal(t, uint32(1), idx.ElementCount())
	id := dir.ActiveSegmentID()
	require.NotNil(t, id)
	assert.Equal(t, float64(0), dir.DeadRatio(*id))
}

func TestRebuildIndexFromSegments(t *testing.T) {
	dir, _ := newTestDirectory(t, 4096)
	idx := hashindex.InitForCreate(8, nil)

	putRecord(t, dir, idx, "a", []byte("v1"), 1)
	putRecord(t, dir, idx, "b", []byte("v2"), 2)
	putRecord(t, dir, idx, "a", []byte("v1-updated"), 3)

	rebuilt, err := RebuildIndex(dir, idx.BucketCount(), nil)
	require.NoError(t, err)
	assert.Equal(t, idx.ElementCount(), rebuilt.ElementCount())

	var slice hashindex.Slice
	slice.Digest = digest.Compute([]byte("a"))
	require.True(t, rebuilt.Get(&slice))
	assert.Equal(t, uint16(len("v1-updated")), slice.HashEntry.OnDisk.Header.DataSize)
}
