package segment

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/intellect4all/kvdb/blockdevice"
	"github.com/intellect4all/kvdb/entry"
	"github.com/intellect4all/kvdb/logictime"
)

// tracked is the directory's bookkeeping for one segment: its slot on the
// device plus live/dead byte tallies an external reclaimer consumes.
type tracked struct {
	seg       *Segment
	liveBytes int64
	deadBytes int64
	sealed    bool
}

// Directory maps segment ids to device offsets and tracks per-segment
// live/dead accounting. It also owns segment allocation and rotation
// policy: when the active segment can't fit a record, Directory seals it
// and opens a new one, the way the teacher's hashindex.rotateSegment does,
// generalized to fixed-size slots on one Device rather than one file per
// segment.
type Directory struct {
	mu sync.Mutex

	dev         blockdevice.Device
	baseOffset  int64
	segmentSize int64
	log         *logrus.Logger

	nextID  int64
	active  *tracked
	sealed  []*tracked
	timeNow func() logictime.KVTime
}

// Config configures a Directory.
type Config struct {
	BaseOffset  int64
	SegmentSize int64
	// Now supplies the wall-clock seconds used to stamp a segment when it
	// is created (sealed later); overridable in tests for determinism.
	Now func() logictime.KVTime
}

// New creates a Directory with no segments allocated yet; the first call
// to Allocate creates segment 0.
func New(dev blockdevice.Device, cfg Config, log *logrus.Logger) *Directory {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Directory{
		dev:         dev,
		baseOffset:  cfg.BaseOffset,
		segmentSize: cfg.SegmentSize,
		log:         log,
		timeNow:     cfg.Now,
	}
}

// SizeofDataHeader returns sizeof(DataHeader), the atom of both the header
// stream and the hash snapshot.
func (d *Directory) SizeofDataHeader() int { return entry.DataHeaderSize }

// SegmentSize returns the fixed segment size.
func (d *Directory) SegmentSize() int64 { return d.segmentSize }

// Allocate hands out the active segment for a record of the given value
// length, rotating to a new segment first if the active one can't fit it.
// Returns the segment to write into, its id, the LogicStamp time component
// for this segment, and the next intra-segment sequence number.
func (d *Directory) Allocate(valueLen int) (seg *Segment, segID int64, segTime logictime.KVTime, intraSeq int32, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active == nil {
		if err := d.openNewSegmentLocked(); err != nil {
			return nil, 0, 0, 0, err
		}
	}

	need := int64(entry.DataHeaderSize) + int64(valueLen)
	if d.active.seg.FreeBytes() < need {
		if err := d.rotateLocked(); err != nil {
			return nil, 0, 0, 0, err
		}
	}

	t := d.active
	return t.seg, t.seg.ID, t.seg.SealedAt, t.seg.RecordCount(), nil
}

// ModifyDeathEntry records that a previously live entry (identified by its
// absolute header offset) is now superseded, tallying dead bytes for the
// segment that owns it so an external reclaimer can find reclaim targets.
func (d *Directory) ModifyDeathEntry(e entry.HashEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()

	size := int64(entry.DataHeaderSize) + int64(e.OnDisk.Header.DataSize)
	if t := d.findByAbsoluteOffsetLocked(int64(e.OnDisk.HeaderOffset)); t != nil {
		t.deadBytes += size
		t.liveBytes -= size
		if t.liveBytes < 0 {
			t.liveBytes = 0
		}
	}
}

// MarkLive records size bytes of a newly written record as live in whatever
// segment owns headerOffset, so dead/live accounting stays balanced.
func (d *Directory) MarkLive(headerOffset int64, size int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t := d.findByAbsoluteOffsetLocked(headerOffset); t != nil {
		t.liveBytes += size
	}
}

// DeadRatio returns the fraction of dead bytes to total used bytes in
// segment id, or 0 if the segment is unknown or empty.
func (d *Directory) DeadRatio(segID int64) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	t := d.findByIDLocked(segID)
	if t == nil {
		return 0
	}
	total := t.liveBytes + t.deadBytes
	if total == 0 {
		return 0
	}
	return float64(t.deadBytes) / float64(total)
}

// ActiveSegmentID returns the active segment's id, or nil if none has
// been allocated yet.
func (d *Directory) ActiveSegmentID() *int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == nil {
		return nil
	}
	id := d.active.seg.ID
	return &id
}

// SealedSegmentIDs returns the ids of every sealed (non-active) segment,
// oldest first — candidates for reclamation.
func (d *Directory) SealedSegmentIDs() []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := make([]int64, 0, len(d.sealed))
	for _, t := range d.sealed {
		ids = append(ids, t.seg.ID)
	}
	return ids
}

// SegmentContaining returns the segment whose byte range holds absOffset
// (an absolute device offset, such as a HashEntryOnDisk.HeaderOffset), or
// nil if none is tracked.
func (d *Directory) SegmentContaining(absOffset int64) *Segment {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t := d.findByAbsoluteOffsetLocked(absOffset); t != nil {
		return t.seg
	}
	return nil
}

// Segment returns the segment with the given id, or nil.
func (d *Directory) Segment(segID int64) *Segment {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t := d.findByIDLocked(segID); t != nil {
		return t.seg
	}
	return nil
}

// Free removes a sealed segment from the directory entirely, after an
// external reclaimer has copied forward anything still live. It does not
// shrink the device; the slot may be reused by a later Allocate in a fuller
// implementation, but this core only removes it from bookkeeping.
func (d *Directory) Free(segID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, t := range d.sealed {
		if t.seg.ID == segID {
			d.sealed = append(d.sealed[:i], d.sealed[i+1:]...)
			return true
		}
	}
	return false
}

func (d *Directory) findByIDLocked(segID int64) *tracked {
	if d.active != nil && d.active.seg.ID == segID {
		return d.active
	}
	for _, t := range d.sealed {
		if t.seg.ID == segID {
			return t
		}
	}
	return nil
}

func (d *Directory) findByAbsoluteOffsetLocked(absOffset int64) *tracked {
	if d.active != nil && inRange(absOffset, d.active.seg) {
		return d.active
	}
	for _, t := range d.sealed {
		if inRange(absOffset, t.seg) {
			return t
		}
	}
	return nil
}

func inRange(absOffset int64, seg *Segment) bool {
	return absOffset >= seg.BaseOffset && absOffset < seg.BaseOffset+seg.Size
}

func (d *Directory) rotateLocked() error {
	d.active.sealed = true
	d.sealed = append(d.sealed, d.active)
	d.log.WithField("segment_id", d.active.seg.ID).Info("segment sealed")
	return d.openNewSegmentLocked()
}

func (d *Directory) openNewSegmentLocked() error {
	id := d.nextID
	d.nextID++

	offset := d.baseOffset + id*d.segmentSize
	if sz, err := d.dev.Size(); err != nil {
		return errors.Wrap(err, "segment directory: device size")
	} else if sz < offset+d.segmentSize {
		if err := d.dev.Truncate(offset + d.segmentSize); err != nil {
			return errors.Wrap(err, "segment directory: grow device")
		}
	}

	seg := newSegment(id, offset, d.segmentSize, d.dev)
	if d.timeNow != nil {
		seg.SealedAt = d.timeNow()
	}
	d.active = &tracked{seg: seg}
	d.log.WithFields(logrus.Fields{"segment_id": id, "offset": offset}).Info("segment opened")
	return nil
}
