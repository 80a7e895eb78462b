package segment

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/intellect4all/kvdb/blockdevice"
	"github.com/intellect4all/kvdb/logictime"
)

// This file persists Directory bookkeeping — which segment ids exist,
// which is active, and each segment's write cursors — across restarts.
// The spec treats SegmentDirectory purely as an interface consumed by the
// update protocol and says nothing about how it persists itself; this is
// the surrounding system's concern, supplied here so the engine has a
// working recovery path (§13 of SPEC_FULL.md).

const (
	// MaxTrackedSegments bounds how many segment records the directory
	// metadata table can hold. It is an implementation limit of this
	// bookkeeping format, not a limit on how many segments may ever be
	// allocated — the reclaimer keeps the live segment count well under
	// this by compacting sealed segments.
	MaxTrackedSegments = 256

	segRecordSize = 8 + 8 + 8 + 4 + 8 + 8 + 1 + 3 // id, headerEnd, dataBoundary, recordCount, lastHeaderOffset, sealedAt, sealed flag, pad
	dirHeaderSize = 8 + 4 + 4                      // nextID, count, pad

	// MetaSize is the fixed, page-rounded size of the persisted directory
	// metadata region.
	MetaSize = 16384
)

func init() {
	if dirHeaderSize+segRecordSize*MaxTrackedSegments > MetaSize {
		panic("segment: MetaSize too small for MaxTrackedSegments")
	}
}

// SaveMeta persists the directory's bookkeeping (segment ids, cursors,
// which one is active) to dev at offset.
func (d *Directory) SaveMeta(dev blockdevice.Device, offset int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	all := make([]*tracked, 0, len(d.sealed)+1)
	all = append(all, d.sealed...)
	if d.active != nil {
		all = append(all, d.active)
	}
	if len(all) > MaxTrackedSegments {
		return errors.Errorf("segment: %d tracked segments exceeds metadata capacity %d", len(all), MaxTrackedSegments)
	}

	buf := make([]byte, MetaSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(d.nextID))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(all)))

	for i, t := range all {
		rec := buf[dirHeaderSize+i*segRecordSize:]
		binary.LittleEndian.PutUint64(rec[0:8], uint64(t.seg.ID))
		binary.LittleEndian.PutUint64(rec[8:16], uint64(t.seg.headerEnd))
		binary.LittleEndian.PutUint64(rec[16:24], uint64(t.seg.dataBoundary))
		binary.LittleEndian.PutUint32(rec[24:28], uint32(t.seg.recordCount))
		binary.LittleEndian.PutUint64(rec[28:36], uint64(t.seg.lastHeaderOffset))
		binary.LittleEndian.PutUint64(rec[36:44], uint64(t.seg.SealedAt))
		if t.sealed {
			rec[44] = 1
		}
	}

	if err := dev.WriteAt(buf, offset); err != nil {
		return errors.Wrap(err, "segment: write directory metadata")
	}
	return nil
}

// LoadMeta reconstructs a Directory from previously-saved metadata at
// offset on dev.
func LoadMeta(dev blockdevice.Device, offset int64, cfg Config, log *logrus.Logger) (*Directory, error) {
	buf := make([]byte, MetaSize)
	if err := dev.ReadAt(buf, offset); err != nil {
		return nil, errors.Wrap(err, "segment: read directory metadata")
	}

	nextID := int64(binary.LittleEndian.Uint64(buf[0:8]))
	count := binary.LittleEndian.Uint32(buf[8:12])
	if count > MaxTrackedSegments {
		return nil, errors.Errorf("segment: corrupt directory metadata: count=%d", count)
	}

	d := New(dev, cfg, log)
	d.nextID = nextID

	for i := uint32(0); i < count; i++ {
		rec := buf[dirHeaderSize+int(i)*segRecordSize:]
		id := int64(binary.LittleEndian.Uint64(rec[0:8]))
		headerEnd := int64(binary.LittleEndian.Uint64(rec[8:16]))
		dataBoundary := int64(binary.LittleEndian.Uint64(rec[16:24]))
		recordCount := int32(binary.LittleEndian.Uint32(rec[24:28]))
		lastHeaderOffset := int64(binary.LittleEndian.Uint64(rec[28:36]))
		sealedAt := logictime.KVTime(binary.LittleEndian.Uint64(rec[36:44]))
		sealed := rec[44] == 1

		seg := newSegment(id, cfg.BaseOffset+id*cfg.SegmentSize, cfg.SegmentSize, dev)
		seg.headerEnd = headerEnd
		seg.dataBoundary = dataBoundary
		seg.recordCount = recordCount
		seg.lastHeaderOffset = lastHeaderOffset
		seg.SealedAt = sealedAt

		t := &tracked{seg: seg, sealed: sealed}
		if sealed {
			d.sealed = append(d.sealed, t)
		} else {
			d.active = t
		}
	}

	return d, nil
}
