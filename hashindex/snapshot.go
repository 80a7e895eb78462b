package hashindex

import (
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/intellect4all/kvdb/blockdevice"
	"github.com/intellect4all/kvdb/bucket"
	"github.com/intellect4all/kvdb/digest"
	"github.com/intellect4all/kvdb/entry"
	"github.com/intellect4all/kvdb/logictime"
)

// timestampSize is sizeof(time_t) in this implementation: an 8-byte
// little-endian Unix-seconds value.
const timestampSize = 8

// pageSize is the rounding unit for ComputeIndexSizeOnDevice, matching the
// original C++ engine's use of the platform page size.
const pageSize = 4096

// countSize is sizeof(i32), the width of each per-bucket count.
const countSize = 4

// ComputeIndexSizeOnDevice returns the space reserved for a snapshot of a
// table with the given bucket count: round_up(sizeof(time_t) +
// sizeof(HashEntryOnDisk)*bucket_count, page_size). The per-bucket count
// table (sizeof(i32)*bucket_count) lives inside that same reserved block.
func ComputeIndexSizeOnDevice(bucketCount uint32) int64 {
	raw := int64(timestampSize) + int64(entry.HashEntryOnDiskSize)*int64(bucketCount)
	pages := raw / pageSize
	if raw%pageSize != 0 {
		pages++
	}
	return pages * pageSize
}

// Write persists timestamp (refreshed to now), then per-bucket counts in
// bucket order, then each bucket's entries in chain order, to dev at
// offset. The tail of the reserved entry region is zeroed for determinism
// (Open Question 1). After success it publishes element_count and
// data_theory_size to sb.
func (h *HashIndex) Write(dev blockdevice.Device, offset int64, sb SuperblockAdapter) error {
	h.mu.Lock()
	snapshot := h.snapshotLocked()
	elementCount, dataTheorySize := h.elementCount, h.dataTheorySize
	h.mu.Unlock()

	tsBuf := make([]byte, timestampSize)
	binary.LittleEndian.PutUint64(tsBuf, uint64(time.Now().Unix()))
	if err := dev.WriteAt(tsBuf, offset); err != nil {
		return errors.Wrap(err, "hashindex: write timestamp")
	}

	countsOffset := offset + timestampSize
	countsBuf := make([]byte, countSize*len(snapshot.counts))
	for i, c := range snapshot.counts {
		binary.LittleEndian.PutUint32(countsBuf[i*countSize:], c)
	}
	if err := dev.WriteAt(countsBuf, countsOffset); err != nil {
		return errors.Wrap(err, "hashindex: write bucket counts")
	}

	entriesOffset := countsOffset + int64(len(countsBuf))
	entriesBuf := make([]byte, entry.HashEntryOnDiskSize*len(snapshot.entries))
	for i, e := range snapshot.entries {
		e.Encode(entriesBuf[i*entry.HashEntryOnDiskSize:])
	}
	if err := dev.WriteAt(entriesBuf, entriesOffset); err != nil {
		return errors.Wrap(err, "hashindex: write entries")
	}

	reserved := ComputeIndexSizeOnDevice(h.bucketCount)
	writtenSoFar := entriesOffset + int64(len(entriesBuf)) - offset
	if tail := reserved - writtenSoFar; tail > 0 {
		zero := make([]byte, tail)
		if err := dev.WriteAt(zero, offset+writtenSoFar); err != nil {
			return errors.Wrap(err, "hashindex: zero snapshot tail")
		}
	}

	sb.SetElementNum(elementCount)
	sb.SetDataTheorySize(dataTheorySize)

	h.log.WithFields(logrus.Fields{
		"bucket_count":     h.bucketCount,
		"element_count":    elementCount,
		"data_theory_size": dataTheorySize,
	}).Info("hash index snapshot written")

	return nil
}

type snapshotData struct {
	counts  []uint32
	entries []entry.HashEntryOnDisk
}

func (h *HashIndex) snapshotLocked() snapshotData {
	counts := make([]uint32, h.bucketCount)
	var entries []entry.HashEntryOnDisk
	for i, b := range h.buckets {
		if b == nil {
			continue
		}
		counts[i] = uint32(b.Len())
		b.Iter(func(e entry.HashEntry) bool {
			entries = append(entries, e.OnDisk)
			return true
		})
	}
	return snapshotData{counts: counts, entries: entries}
}

// Load reads timestamp, then bucketCount counts, then Σcounts packed
// HashEntryOnDisk records, inserting each into hash(digest) mod
// bucketCount and stamping every entry with the loaded timestamp and
// intra_seq = 0. It verifies element_count against sb; a mismatch (or a
// short read) returns ErrCorruptIndex.
func Load(dev blockdevice.Device, offset int64, bucketCount uint32, sb SuperblockAdapter, log *logrus.Logger) (*HashIndex, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	tsBuf := make([]byte, timestampSize)
	if err := dev.ReadAt(tsBuf, offset); err != nil {
		return nil, errors.Wrap(ErrCorruptIndex, err.Error())
	}
	ts := logictime.KVTime(binary.LittleEndian.Uint64(tsBuf))

	countsOffset := offset + timestampSize
	countsBuf := make([]byte, countSize*int(bucketCount))
	if err := dev.ReadAt(countsBuf, countsOffset); err != nil {
		return nil, errors.Wrap(ErrCorruptIndex, err.Error())
	}
	counts := make([]uint32, bucketCount)
	var total uint64
	for i := range counts {
		counts[i] = binary.LittleEndian.Uint32(countsBuf[i*countSize:])
		total += uint64(counts[i])
	}

	entriesOffset := countsOffset + int64(len(countsBuf))
	entriesBuf := make([]byte, int64(entry.HashEntryOnDiskSize)*int64(total))
	if len(entriesBuf) > 0 {
		if err := dev.ReadAt(entriesBuf, entriesOffset); err != nil {
			return nil, errors.Wrap(ErrCorruptIndex, err.Error())
		}
	}

	h := &HashIndex{
		buckets:     make([]*bucket.LinkedBucket, bucketCount),
		bucketCount: bucketCount,
		log:         log,
	}

	entryIdx := 0
	for i, count := range counts {
		if count == 0 {
			continue
		}
		b := bucket.New()
		for j := uint32(0); j < count; j++ {
			onDisk := entry.DecodeHashEntryOnDisk(entriesBuf[entryIdx*entry.HashEntryOnDiskSize:])
			entryIdx++
			b.Put(entry.HashEntry{
				OnDisk: onDisk,
				Stamp:  logictime.New(ts, 0),
			})
		}
		h.buckets[i] = b
		h.elementCount += count

		for _, e := range b.Entries() {
			if e.OnDisk.Header.IsTombstone() {
				continue
			}
			h.dataTheorySize += uint64(entry.DataHeaderSize) + uint64(e.OnDisk.Header.DataSize)
		}
	}

	if sb != nil && h.elementCount != sb.GetElementNum() {
		return nil, errors.Wrapf(ErrCorruptIndex, "element_count mismatch: loaded=%d superblock=%d", h.elementCount, sb.GetElementNum())
	}

	log.WithFields(logrus.Fields{
		"bucket_count":  bucketCount,
		"element_count": h.elementCount,
		"timestamp":     ts,
	}).Info("hash index snapshot loaded")

	return h, nil
}

// verifyBucketPartition is a test/property hook: it reports whether every
// entry in the index currently resides in the bucket its digest hashes to,
// and in no other — invariant 1 from §8.
func (h *HashIndex) verifyBucketPartition() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, b := range h.buckets {
		if b == nil {
			continue
		}
		ok := true
		b.Iter(func(e entry.HashEntry) bool {
			if digest.Hash(e.Digest())%uint64(h.bucketCount) != uint64(i) {
				ok = false
				return false
			}
			return true
		})
		if !ok {
			return false
		}
	}
	return true
}
