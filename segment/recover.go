package segment

import (
	"github.com/sirupsen/logrus"

	"github.com/intellect4all/kvdb/blockdevice"
	"github.com/intellect4all/kvdb/digest"
	"github.com/intellect4all/kvdb/entry"
)

// Recover reconstructs a Segment's write cursors by following its header
// chain from offset 0, without relying on any persisted directory
// metadata. It is the fallback path used when SaveMeta/LoadMeta's region
// is missing or corrupt (§13's segment-scan recovery).
//
// The scan stops at the first header whose next_header_offset is 0. An
// all-zero header (zero digest, data_size 0, data_offset 0,
// next_header_offset 0) where the chain is read — in practice at offset 0
// of a never-written slot — is treated as untouched device space, not a
// genuine tombstone — a real key hashing to the all-zero digest is
// negligibly unlikely.
func Recover(id, baseOffset, size int64, dev blockdevice.Device) (*Segment, error) {
	seg := newSegment(id, baseOffset, size, dev)

	off := int64(0)
	dataBoundary := size
	for {
		h, err := seg.ReadHeader(off)
		if err != nil {
			return nil, err
		}
		if isUntouchedHeader(h) {
			break
		}
		seg.recordCount++
		seg.lastHeaderOffset = off
		dataBoundary = int64(h.DataOffset)
		if h.NextHeaderOffset == 0 {
			break
		}
		off = int64(h.NextHeaderOffset)
	}

	seg.headerEnd = int64(seg.recordCount) * int64(entry.DataHeaderSize)
	seg.dataBoundary = dataBoundary
	return seg, nil
}

func isUntouchedHeader(h entry.DataHeader) bool {
	return h.KeyDigest == digest.Digest{} && h.DataSize == 0 && h.DataOffset == 0 && h.NextHeaderOffset == 0
}

// RebuildDirectory scans segment slots forward from cfg.BaseOffset,
// recovering each with Recover, until it reaches a slot beyond the
// device's current size or a slot with no records; slots after the first
// empty one are not scanned. The last recovered segment becomes active;
// every earlier one is marked sealed. Per-segment live/dead byte tallies
// are not recoverable from the header chain alone and start at zero —
// reclaim.RebuildIndex repopulates live bytes by replaying the index.
func RebuildDirectory(dev blockdevice.Device, cfg Config, log *logrus.Logger) (*Directory, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	d := New(dev, cfg, log)

	devSize, err := dev.Size()
	if err != nil {
		return nil, err
	}

	var recovered []*tracked
	for id := int64(0); ; id++ {
		offset := cfg.BaseOffset + id*cfg.SegmentSize
		if offset+cfg.SegmentSize > devSize {
			break
		}
		seg, err := Recover(id, offset, cfg.SegmentSize, dev)
		if err != nil {
			return nil, err
		}
		if seg.recordCount == 0 {
			break
		}
		recovered = append(recovered, &tracked{seg: seg})
	}

	if len(recovered) == 0 {
		return d, nil
	}

	last := recovered[len(recovered)-1]
	d.active = last
	d.nextID = last.seg.ID + 1
	for _, t := range recovered[:len(recovered)-1] {
		t.sealed = true
		d.sealed = append(d.sealed, t)
	}

	log.WithFields(logrus.Fields{
		"segments_recovered": len(recovered),
		"active_segment_id":  last.seg.ID,
	}).Warn("segment directory rebuilt from header scan")

	return d, nil
}
