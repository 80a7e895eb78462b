// Package bucket implements LinkedBucket, the collision chain for one
// bucket of the hash index: search/insert/replace/remove by digest
// equality, plus by-reference access for in-place mutation.
//
// All operations are total and infallible; a bucket owns the memory for
// its entries. This mirrors the teacher's shard-map collision handling
// (intellect4all/storage-engines/hashindex.shard), generalized from a Go
// map keyed by string to an ordered chain keyed by digest equality, which
// is what the on-disk snapshot format (§6) requires: chain order must be
// preserved across a write/load round trip.
package bucket

import "github.com/intellect4all/kvdb/entry"

// LinkedBucket is an ordered collision chain of HashEntry values, all of
// which hash to the same bucket index.
type LinkedBucket struct {
	entries []entry.HashEntry
}

// New returns an empty LinkedBucket.
func New() *LinkedBucket {
	return &LinkedBucket{}
}

// Search reports whether an entry with the same digest as e exists.
func (b *LinkedBucket) Search(e entry.HashEntry) bool {
	return b.indexOf(e) >= 0
}

// GetRef returns a pointer into the chain for the entry matching e's
// digest, or nil if absent. The pointer is valid until the bucket is next
// mutated (Put/Remove), matching the teacher's "reference into the chain"
// contract.
func (b *LinkedBucket) GetRef(e entry.HashEntry) *entry.HashEntry {
	if i := b.indexOf(e); i >= 0 {
		return &b.entries[i]
	}
	return nil
}

// Put inserts e, replacing any existing entry with the same digest in
// place (preserving its position in the chain); otherwise appends at the
// tail.
func (b *LinkedBucket) Put(e entry.HashEntry) {
	if i := b.indexOf(e); i >= 0 {
		b.entries[i] = e
		return
	}
	b.entries = append(b.entries, e)
}

// Remove deletes the entry matching e's digest, reporting whether one was
// found.
func (b *LinkedBucket) Remove(e entry.HashEntry) bool {
	i := b.indexOf(e)
	if i < 0 {
		return false
	}
	b.entries = append(b.entries[:i], b.entries[i+1:]...)
	return true
}

// Len returns the chain length.
func (b *LinkedBucket) Len() int {
	return len(b.entries)
}

// Iter calls fn for every entry in chain order, stopping early if fn
// returns false.
func (b *LinkedBucket) Iter(fn func(entry.HashEntry) bool) {
	for _, e := range b.entries {
		if !fn(e) {
			return
		}
	}
}

// Entries returns the chain in order, for snapshotting. Callers must not
// mutate the returned slice.
func (b *LinkedBucket) Entries() []entry.HashEntry {
	return b.entries
}

func (b *LinkedBucket) indexOf(e entry.HashEntry) int {
	for i := range b.entries {
		if b.entries[i].Equal(e) {
			return i
		}
	}
	return -1
}
