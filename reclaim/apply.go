// Package reclaim adapts the teacher's background compaction
// (intellect4all/storage-engines/hashindex.compactSegments/applyCompaction)
// into the spec's segment/index split: instead of rewriting a whole
// segment's worth of key/value pairs from an in-memory map, it walks one
// sealed segment's header chain record by record, relocates anything
// hashindex still considers live into a fresh segment, and leans on the
// same last-writer-wins LogicStamp rule the live write path uses to stay
// correct under concurrent updates.
package reclaim

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/intellect4all/kvdb/digest"
	"github.com/intellect4all/kvdb/entry"
	"github.com/intellect4all/kvdb/hashindex"
	"github.com/intellect4all/kvdb/logictime"
	"github.com/intellect4all/kvdb/segment"
)

// ApplyUpdate runs candidate through idx.Update and, when it wins and
// becomes the chain's current entry, tells dir about the newly live
// bytes. It is the one place both the live write path (kvengine) and
// recovery/compaction (this package) funnel index mutations through, so
// the live/dead byte tallies never drift from what the index actually
// holds.
func ApplyUpdate(idx *hashindex.HashIndex, dir *segment.Directory, d digest.Digest, candidate entry.HashEntry) error {
	if err := idx.Update(hashindex.Slice{Digest: d, Candidate: candidate}, dir); err != nil {
		return err
	}
	if idx.IsSameInMem(candidate) {
		size := int64(entry.DataHeaderSize) + int64(candidate.OnDisk.Header.DataSize)
		dir.MarkLive(int64(candidate.OnDisk.HeaderOffset), size)
	}
	return nil
}

// RebuildIndex replays every segment dir currently tracks — sealed ones
// oldest first, then the active one — through ApplyUpdate, in header-chain
// order within each segment. Because Update is keyed by LogicStamp rather
// than scan order, replaying segments in any order that preserves each
// segment's own chain order reconstructs the same index a live snapshot
// would have held. This is the segment-scan fallback used when a
// snapshot is missing or hashindex.Load reports ErrCorruptIndex.
func RebuildIndex(dir *segment.Directory, bucketCount uint32, log *logrus.Logger) (*hashindex.HashIndex, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	idx := hashindex.InitForCreate(bucketCount, log)

	ids := append(dir.SealedSegmentIDs(), activeIDOf(dir)...)
	for _, id := range ids {
		seg := dir.Segment(id)
		if seg == nil {
			continue
		}
		intraSeq := int32(0)
		walkErr := seg.WalkHeaders(func(relOffset int64, h entry.DataHeader) (bool, error) {
			candidate := entry.HashEntry{
				OnDisk: entry.HashEntryOnDisk{
					Header:       h,
					HeaderOffset: entry.DataHeaderOffset(seg.BaseOffset + relOffset),
				},
				Stamp: stampFor(seg, intraSeq),
			}
			intraSeq++
			if err := ApplyUpdate(idx, dir, h.KeyDigest, candidate); err != nil {
				if errors.Is(err, hashindex.ErrIndexFull) {
					log.WithField("segment_id", id).Warn("index full during rebuild; skipping record")
					return true, nil
				}
				return false, err
			}
			return true, nil
		})
		if walkErr != nil {
			return nil, errors.Wrapf(walkErr, "reclaim: rebuild segment %d", id)
		}
	}

	log.WithFields(logrus.Fields{
		"segments":      len(ids),
		"element_count": idx.ElementCount(),
	}).Warn("hash index rebuilt from segment scan")

	return idx, nil
}

func activeIDOf(dir *segment.Directory) []int64 {
	active := dir.ActiveSegmentID()
	if active == nil {
		return nil
	}
	return []int64{*active}
}

func stampFor(seg *segment.Segment, intraSeq int32) logictime.LogicStamp {
	return logictime.New(seg.SealedAt, intraSeq)
}
