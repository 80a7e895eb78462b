// Package segment implements the fixed-size, append-only segment format
// (C4) and the directory that maps segment ids to device offsets and
// tallies per-segment live/dead bytes for an external reclaimer (C5).
//
// A segment packs records as two streams growing toward each other: a
// header stream from offset 0, and a value (data) stream from the
// segment's end. This mirrors the teacher's append-only segment file
// (intellect4all/storage-engines/hashindex.segment), generalized from a
// variable-length, single-growing-direction record file to the spec's
// fixed-size, two-stream layout, which is what lets a segment's header
// chain be scanned independently of its data.
package segment

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/intellect4all/kvdb/blockdevice"
	"github.com/intellect4all/kvdb/entry"
	"github.com/intellect4all/kvdb/logictime"
)

// ErrSegmentFull is returned by Put when the remaining gap between the
// header stream and the data stream is smaller than the record being
// appended.
var ErrSegmentFull = errors.New("segment: full")

// Segment is a contiguous, fixed-size region of a Device, identified by id,
// starting at BaseOffset. Headers are appended from the front; values are
// appended from the back.
type Segment struct {
	ID         int64
	BaseOffset int64
	Size       int64
	SealedAt   logictime.KVTime

	dev blockdevice.Device

	headerEnd    int64 // next header write position, relative to BaseOffset
	dataBoundary int64 // start of the data stream so far, relative to BaseOffset (== Size initially)
	recordCount  int32

	lastHeaderOffset int64 // relative offset of the most recently appended header, -1 if none
}

// newSegment creates an empty segment of the given size at baseOffset on
// dev. No device I/O happens until the first Put.
func newSegment(id int64, baseOffset, size int64, dev blockdevice.Device) *Segment {
	return &Segment{
		ID:               id,
		BaseOffset:       baseOffset,
		Size:             size,
		dev:              dev,
		dataBoundary:     size,
		lastHeaderOffset: -1,
	}
}

// Put appends header (with KeyDigest/DataSize already set by the caller)
// plus value, following the packing rule in §4.4: the header stream grows
// forward, the data stream grows backward, and value ends up immediately
// before the previously appended value.
//
// Put fills in DataOffset and NextHeaderOffset on its own copy of header
// (the caller's value is not modified), writes that copy, patches the
// previous header's NextHeaderOffset to point at this one, and returns the
// absolute device offset of the newly written header — the value
// HashEntryOnDisk.HeaderOffset should carry forward. Callers that need the
// stored header read it back with ReadHeader.
func (s *Segment) Put(header entry.DataHeader, value []byte) (absoluteHeaderOffset int64, err error) {
	need := int64(entry.DataHeaderSize) + int64(len(value))
	gap := s.dataBoundary - s.headerEnd
	if gap < need {
		return 0, ErrSegmentFull
	}

	newBoundary := s.dataBoundary - int64(len(value))

	header.DataOffset = uint32(newBoundary)
	header.NextHeaderOffset = 0 // chain end until a subsequent Put patches it

	headerOffset := s.headerEnd
	buf := make([]byte, entry.DataHeaderSize)
	header.Encode(buf)

	if err := s.dev.WriteAt(buf, s.BaseOffset+headerOffset); err != nil {
		return 0, errors.Wrap(err, "segment: write header")
	}
	if len(value) > 0 {
		if err := s.dev.WriteAt(value, s.BaseOffset+newBoundary); err != nil {
			return 0, errors.Wrap(err, "segment: write value")
		}
	}

	if s.lastHeaderOffset >= 0 {
		if err := s.patchNextHeaderOffset(s.lastHeaderOffset, headerOffset); err != nil {
			return 0, err
		}
	}

	s.headerEnd += int64(entry.DataHeaderSize)
	s.dataBoundary = newBoundary
	s.recordCount++
	s.lastHeaderOffset = headerOffset

	return s.BaseOffset + headerOffset, nil
}

// patchNextHeaderOffset rewrites the NextHeaderOffset field (the last 4
// bytes) of the header at prevHeaderOffset to point at nextHeaderOffset.
func (s *Segment) patchNextHeaderOffset(prevHeaderOffset, nextHeaderOffset int64) error {
	buf := make([]byte, 4)
	encodeUint32LE(buf, uint32(nextHeaderOffset))
	fieldOffset := s.BaseOffset + prevHeaderOffset + int64(entry.DataHeaderSize) - 4
	if err := s.dev.WriteAt(buf, fieldOffset); err != nil {
		return errors.Wrap(err, "segment: patch header chain")
	}
	return nil
}

func encodeUint32LE(buf []byte, v uint32) {
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v >> 16)
	buf[3] = byte(v >> 24)
}

// ReadHeader reads the header at relative offset off within the segment.
func (s *Segment) ReadHeader(off int64) (entry.DataHeader, error) {
	buf := make([]byte, entry.DataHeaderSize)
	if err := s.dev.ReadAt(buf, s.BaseOffset+off); err != nil {
		return entry.DataHeader{}, errors.Wrap(err, "segment: read header")
	}
	return entry.DecodeDataHeader(buf), nil
}

// ReadValue reads DataSize bytes of the value referenced by header.
func (s *Segment) ReadValue(header entry.DataHeader) ([]byte, error) {
	if header.DataSize == 0 {
		return nil, nil
	}
	buf := make([]byte, header.DataSize)
	if err := s.dev.ReadAt(buf, s.BaseOffset+int64(header.DataOffset)); err != nil {
		return nil, errors.Wrap(err, "segment: read value")
	}
	return buf, nil
}

// WalkHeaders calls fn for every header in chain order starting from the
// first appended header, stopping if fn returns false or an error.
func (s *Segment) WalkHeaders(fn func(relOffset int64, h entry.DataHeader) (bool, error)) error {
	off := int64(0)
	for off < s.headerEnd {
		h, err := s.ReadHeader(off)
		if err != nil {
			return err
		}
		cont, err := fn(off, h)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
		off += int64(entry.DataHeaderSize)
	}
	return nil
}

// RecordCount returns the number of records appended so far.
func (s *Segment) RecordCount() int32 { return s.recordCount }

// FreeBytes returns the remaining gap between the header and data streams.
func (s *Segment) FreeBytes() int64 { return s.dataBoundary - s.headerEnd }

// Log emits a structured debug line describing the segment's current fill.
func (s *Segment) Log(log *logrus.Logger) {
	log.WithFields(logrus.Fields{
		"segment_id": s.ID,
		"records":    s.recordCount,
		"free_bytes": s.FreeBytes(),
	}).Debug("segment state")
}
