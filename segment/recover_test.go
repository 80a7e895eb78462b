package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intellect4all/kvdb/blockdevice"
	"github.com/intellect4all/kvdb/digest"
	"github.com/intellect4all/kvdb/entry"
)

func TestRecoverReconstructsCursors(t *testing.T) {
	dev := blockdevice.NewMemory()
	require.NoError(t, dev.Truncate(4096))
	seg := newSegment(0, 0, 4096, dev)

	_, err := seg.Put(entry.DataHeader{KeyDigest: digest.Compute([]byte("a")), DataSize: 3}, []byte("xyz"))
	require.NoError(t, err)
	_, err = seg.Put(entry.DataHeader{KeyDigest: digest.Compute([]byte("b")), DataSize: 2}, []byte("hi"))
	require.NoError(t, err)

	recovered, err := Recover(0, 0, 4096, dev)
	require.NoError(t, err)
	assert.Equal(t, seg.RecordCount(), recovered.RecordCount())
	assert.Equal(t, seg.FreeBytes(), recovered.FreeBytes())
	assert.Equal(t, seg.headerEnd, recovered.headerEnd)
	assert.Equal(t, seg.dataBoundary, recovered.dataBoundary)
}

func TestRecoverEmptySegment(t *testing.T) {
	dev := blockdevice.NewMemory()
	require.NoError(t, dev.Truncate(4096))

	recovered, err := Recover(0, 0, 4096, dev)
	require.NoError(t, err)
	assert.Equal(t, int32(0), recovered.RecordCount())
	assert.Equal(t, int64(4096), recovered.FreeBytes())
}

func TestRebuildDirectoryFindsSealedAndActive(t *testing.T) {
	dev := blockdevice.NewMemory()
	cfg := Config{BaseOffset: 0, SegmentSize: 128}
	require.NoError(t, dev.Truncate(128 * 3))

	seg0 := newSegment(0, 0, 128, dev)
	_, err := seg0.Put(entry.DataHeader{KeyDigest: digest.Compute([]byte("a")), DataSize: 4}, []byte("abcd"))
	require.NoError(t, err)

	seg1 := newSegment(1, 128, 128, dev)
	_, err = seg1.Put(entry.DataHeader{KeyDigest: digest.Compute([]byte("b")), DataSize: 4}, []byte("efgh"))
	require.NoError(t, err)

	dir, err := RebuildDirectory(dev, cfg, nil)
	require.NoError(t, err)

	assert.Len(t, dir.SealedSegmentIDs(), 1)
	assert.Equal(t, int64(0), dir.SealedSegmentIDs()[0])
	assert.NotNil(t, dir.Segment(1))
	assert.Equal(t, int32(1), dir.Segment(1).RecordCount())
}

func TestRebuildDirectoryNoSegmentsYet(t *testing.T) {
	dev := blockdevice.NewMemory()
	cfg := Config{BaseOffset: 0, SegmentSize: 128}
	require.NoError(t, dev.Truncate(128))

	dir, err := RebuildDirectory(dev, cfg, nil)
	require.NoError(t, err)
	assert.Empty(t, dir.SealedSegmentIDs())
	assert.Equal(t, int64(0), dir.nextID)
}
