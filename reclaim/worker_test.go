package reclaim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intellect4all/kvdb/digest"
	"github.com/intellect4all/kvdb/hashindex"
)

func TestCompactOnceRelocatesLiveRecordsAndFreesSegment(t *testing.T) {
	dir, _ := newTestDirectory(t, 100)
	idx := hashindex.InitForCreate(8, nil)

	// Fill segment 0 with two records, then overwrite one: the overwrite
	// no longer fits, so it rotates into segment 1 and the old copy in
	// segment 0 goes dead.
	putRecord(t, dir, idx, "a", []byte("0123456789012345"), 1)
	putRecord(t, dir, idx, "b", []byte("0123456789012345"), 2)
	putRecord(t, dir, idx, "a", []byte("updated-value-xx"), 3) // rotates to a new segment
	putRecord(t, dir, idx, "c", []byte("0123456789012345"), 4)

	sealedIDs := dir.SealedSegmentIDs()
	require.NotEmpty(t, sealedIDs)
	sealedID := sealedIDs[0]
	require.Greater(t, dir.DeadRatio(sealedID), 0.0)

	w := NewWorker(dir, idx, WorkerConfig{DeadRatioThreshold: 0.01}, nil)
	require.NoError(t, w.CompactOnce(context.Background()))

	assert.Nil(t, dir.Segment(sealedID))

	var slice hashindex.Slice
	slice.Digest = digest.Compute([]byte("a"))
	require.True(t, idx.Get(&slice))
	assert.Equal(t, uint16(len("updated-value-xx")), slice.HashEntry.OnDisk.Header.DataSize)

	slice.Digest = digest.Compute([]byte("b"))
	require.True(t, idx.Get(&slice))
	assert.False(t, slice.HashEntry.OnDisk.Header.IsTombstone())
}

func TestCompactOnceSkipsBelowThreshold(t *testing.T) {
	dir, _ := newTestDirectory(t, 100)
	idx := hashindex.InitForCreate(8, nil)

	putRecord(t, dir, idx, "a", []byte("0123456789012345"), 1)
	putRecord(t, dir, idx, "b", []byte("0123456789012345"), 2)
	putRecord(t, dir, idx, "c", []byte("0123456789012345"), 3) // rotates

	sealedIDs := dir.SealedSegmentIDs()
	require.NotEmpty(t, sealedIDs)
	sealedID := sealedIDs[0]

	w := NewWorker(dir, idx, WorkerConfig{DeadRatioThreshold: 0.99}, nil)
	require.NoError(t, w.CompactOnce(context.Background()))

	assert.NotNil(t, dir.Segment(sealedID))
}
