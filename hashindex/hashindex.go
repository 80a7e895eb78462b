// Package hashindex implements the in-memory hash index (C6): a bucket
// array of LinkedBuckets plus its on-device snapshot (timestamp + per-bucket
// counts + flat entry array), and the update protocol (C7) that ties the
// index to the segment layer under a logical-time rule.
//
// This generalizes the teacher's sharded, Go-map-backed index
// (intellect4all/storage-engines/hashindex.shardedIndex) to the spec's
// open-addressing-by-bucket design with ordered collision chains, which is
// what makes a byte-exact, chain-order-preserving on-disk snapshot (§6)
// possible; a Go map has no stable iteration order to snapshot.
package hashindex

import (
	"math/bits"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/intellect4all/kvdb/bucket"
	"github.com/intellect4all/kvdb/digest"
	"github.com/intellect4all/kvdb/entry"
	"github.com/intellect4all/kvdb/logictime"
)

// ErrIndexFull is returned when a new-key insert finds element_count ==
// bucket_count. No side effects occur.
var ErrIndexFull = errors.New("hashindex: full")

// ErrCorruptIndex is returned by Load when the persisted counters disagree
// with the superblock or a short read is detected.
var ErrCorruptIndex = errors.New("hashindex: corrupt snapshot")

// SuperblockAdapter is the narrow interface this index uses to read/persist
// the two counters the surrounding superblock record cares about. The
// superblock record itself — and everything else it might contain — is
// out of scope for this core.
type SuperblockAdapter interface {
	GetDataTheorySize() uint64
	SetDataTheorySize(uint64)
	GetElementNum() uint32
	SetElementNum(uint32)
}

// Slice is the input to Update: a digest and a pre-built candidate entry
// whose Stamp has already been assigned by the caller (the segment layer,
// which is the only thing allowed to mint LogicStamps). A candidate whose
// header has data_size == 0 is a tombstone.
type Slice struct {
	Digest    digest.Digest
	Candidate entry.HashEntry
	HashEntry entry.HashEntry // filled in by Get
}

// DeathRecorder is the narrow view of C5 (SegmentDirectory) the update
// protocol needs: a place to report that a previously live entry is now
// superseded so its bytes become reclaimable.
type DeathRecorder interface {
	ModifyDeathEntry(entry.HashEntry)
}

// HashIndex is the hash table of LinkedBuckets plus its on-device snapshot.
// A single mutex guards the bucket array and the two running counters;
// it is released before any device I/O in Write, which serializes a
// snapshot instead.
type HashIndex struct {
	mu sync.Mutex

	buckets     []*bucket.LinkedBucket
	bucketCount uint32

	elementCount   uint32
	dataTheorySize uint64

	log *logrus.Logger
}

// InitForCreate sizes the bucket array and zeroes counters; no disk I/O.
// bucket_count is the smallest power of two >= max(1, numObjects), per
// spec's pinned resolution of Open Question 2.
func InitForCreate(numObjects uint32, log *logrus.Logger) *HashIndex {
	if log == nil {
		log = logrus.StandardLogger()
	}
	n := nextPow2(numObjects)
	return &HashIndex{
		buckets:     make([]*bucket.LinkedBucket, n),
		bucketCount: n,
		log:         log,
	}
}

func nextPow2(n uint32) uint32 {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len32(n-1)
}

// BucketCount returns the (fixed) number of buckets.
func (h *HashIndex) BucketCount() uint32 {
	return h.bucketCount
}

// ElementCount returns the current element count under the index's lock.
func (h *HashIndex) ElementCount() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.elementCount
}

// DataTheorySize returns Σ(sizeof(DataHeader)+data_size) over live entries.
func (h *HashIndex) DataTheorySize() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dataTheorySize
}

func (h *HashIndex) bucketFor(d digest.Digest) *bucket.LinkedBucket {
	idx := digest.Hash(d) % uint64(h.bucketCount)
	b := h.buckets[idx]
	if b == nil {
		b = bucket.New()
		h.buckets[idx] = b
	}
	return b
}

// Update is the core mutation (C7's update protocol, §4.7). All steps
// execute under the single index mutex.
func (h *HashIndex) Update(slice Slice, dr DeathRecorder) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	b := h.bucketFor(slice.Digest)
	newEntry := slice.Candidate
	isTombstone := newEntry.OnDisk.Header.IsTombstone()

	existing := b.GetRef(newEntry)

	if existing == nil {
		if isTombstone {
			dr.ModifyDeathEntry(newEntry)
			return nil
		}
		if h.elementCount == h.bucketCount {
			return ErrIndexFull
		}
		b.Put(newEntry)
		h.elementCount++
		h.dataTheorySize += uint64(entry.DataHeaderSize) + uint64(newEntry.OnDisk.Header.DataSize)
		return nil
	}

	if logictime.Less(newEntry.Stamp, existing.Stamp) {
		// Stale write: the arriving update loses to what's already there.
		dr.ModifyDeathEntry(newEntry)
		return nil
	}

	// newEntry wins: the existing slot becomes reclaimable.
	dr.ModifyDeathEntry(*existing)

	if isTombstone {
		h.dataTheorySize -= uint64(entry.DataHeaderSize) + uint64(existing.OnDisk.Header.DataSize)
	} else {
		delta := int64(newEntry.OnDisk.Header.DataSize) - int64(existing.OnDisk.Header.DataSize)
		h.dataTheorySize = uint64(int64(h.dataTheorySize) + delta)
	}

	b.Put(newEntry)
	return nil
}

// Get fills slice.HashEntry from the chain if a digest match exists.
func (h *HashIndex) Get(slice *Slice) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	b := h.bucketFor(slice.Digest)
	probe := entry.HashEntry{OnDisk: entry.HashEntryOnDisk{Header: entry.DataHeader{KeyDigest: slice.Digest}}}
	ref := b.GetRef(probe)
	if ref == nil {
		return false
	}
	slice.HashEntry = ref.Clone()
	return true
}

// RemoveEntry is called by the reclaimer with a tombstone entry; it removes
// the entry from its chain only if the in-memory copy has the same
// seg_time and data_size == 0, per §4.6.
func (h *HashIndex) RemoveEntry(e entry.HashEntry) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	b := h.bucketFor(e.Digest())
	ref := b.GetRef(e)
	if ref == nil {
		return false
	}
	if ref.Stamp.SegTime != e.Stamp.SegTime || !ref.OnDisk.Header.IsTombstone() {
		return false
	}
	removed := b.Remove(e)
	if removed {
		h.elementCount--
	}
	return removed
}

// IsSameInMem reports whether the chain still contains an entry whose
// HeaderOffset equals e's — used by the reclaimer to decide whether a
// copied record is still current before committing the copy.
func (h *HashIndex) IsSameInMem(e entry.HashEntry) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	b := h.bucketFor(e.Digest())
	ref := b.GetRef(e)
	return ref != nil && ref.OnDisk.HeaderOffset == e.OnDisk.HeaderOffset
}

// ForEach calls fn for every live entry across every bucket, in bucket then
// chain order — used by snapshot writers and reclaimers that need a
// read-only pass over the whole table.
func (h *HashIndex) ForEach(fn func(entry.HashEntry)) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, b := range h.buckets {
		if b == nil {
			continue
		}
		b.Iter(func(e entry.HashEntry) bool {
			fn(e)
			return true
		})
	}
}
