// Package entry defines the packed on-disk records shared by the segment
// and hash-index layers: DataHeader, DataHeaderOffset, HashEntryOnDisk, and
// the in-memory HashEntry that wraps them with a LogicStamp and an opaque
// read-cache handle.
package entry

import (
	"encoding/binary"

	"github.com/intellect4all/kvdb/digest"
	"github.com/intellect4all/kvdb/logictime"
)

// DataHeader is the fixed-size atom of both the segment's header stream and
// the hash index's on-device snapshot. Packed, little-endian, no padding:
// key_digest(16) | data_size(u16) | data_offset(u32) | next_header_offset(u32).
type DataHeader struct {
	KeyDigest        digest.Digest
	DataSize         uint16
	DataOffset       uint32 // offset of the value bytes within its segment
	NextHeaderOffset uint32 // offset of the next header in the segment's header stream, 0 = chain end
}

// DataHeaderSize is sizeof(DataHeader) per §3/§8: 16 + 2 + 4 + 4 = 26 bytes.
const DataHeaderSize = digest.Size + 2 + 4 + 4

// Encode writes the packed little-endian representation of h into buf, which
// must be at least DataHeaderSize bytes.
func (h DataHeader) Encode(buf []byte) {
	copy(buf[0:digest.Size], h.KeyDigest[:])
	binary.LittleEndian.PutUint16(buf[16:18], h.DataSize)
	binary.LittleEndian.PutUint32(buf[18:22], h.DataOffset)
	binary.LittleEndian.PutUint32(buf[22:26], h.NextHeaderOffset)
}

// DecodeDataHeader reads a packed DataHeader from buf.
func DecodeDataHeader(buf []byte) DataHeader {
	var h DataHeader
	copy(h.KeyDigest[:], buf[0:digest.Size])
	h.DataSize = binary.LittleEndian.Uint16(buf[16:18])
	h.DataOffset = binary.LittleEndian.Uint32(buf[18:22])
	h.NextHeaderOffset = binary.LittleEndian.Uint32(buf[22:26])
	return h
}

// IsTombstone reports whether this header represents a logical delete:
// data_size == 0 and no value bytes.
func (h DataHeader) IsTombstone() bool {
	return h.DataSize == 0
}

// DataHeaderOffset is the DataHeader's absolute device offset.
type DataHeaderOffset uint64

// HashEntryOnDisk is the persisted index entry: a DataHeader plus the
// absolute device offset of that header. Packed, little-endian, 34 bytes.
type HashEntryOnDisk struct {
	Header       DataHeader
	HeaderOffset DataHeaderOffset
}

// HashEntryOnDiskSize is sizeof(HashEntryOnDisk): 26 + 8 = 34 bytes.
const HashEntryOnDiskSize = DataHeaderSize + 8

// Encode writes the packed little-endian representation of e into buf, which
// must be at least HashEntryOnDiskSize bytes.
func (e HashEntryOnDisk) Encode(buf []byte) {
	e.Header.Encode(buf[0:DataHeaderSize])
	binary.LittleEndian.PutUint64(buf[DataHeaderSize:HashEntryOnDiskSize], uint64(e.HeaderOffset))
}

// DecodeHashEntryOnDisk reads a packed HashEntryOnDisk from buf.
func DecodeHashEntryOnDisk(buf []byte) HashEntryOnDisk {
	return HashEntryOnDisk{
		Header:       DecodeDataHeader(buf[0:DataHeaderSize]),
		HeaderOffset: DataHeaderOffset(binary.LittleEndian.Uint64(buf[DataHeaderSize:HashEntryOnDiskSize])),
	}
}

// HashEntry is the in-memory index entry: the persisted part plus a
// LogicStamp used for update ordering and an opaque, non-owning handle
// reserved for an external read-cache. This core never dereferences
// CachePtr; it only preserves it across copies.
type HashEntry struct {
	OnDisk   HashEntryOnDisk
	Stamp    logictime.LogicStamp
	CachePtr uintptr
}

// Digest is shorthand for the entry's key digest.
func (e HashEntry) Digest() digest.Digest { return e.OnDisk.Header.KeyDigest }

// Equal compares two HashEntries by digest only, per §3.
func (e HashEntry) Equal(other HashEntry) bool {
	return e.Digest().Equal(other.Digest())
}

// Clone deep-copies the on-disk part and stamp; CachePtr is copied as-is
// since this core never owns or dereferences it.
func (e HashEntry) Clone() HashEntry {
	return HashEntry{
		OnDisk:   e.OnDisk,
		Stamp:    e.Stamp,
		CachePtr: e.CachePtr,
	}
}
