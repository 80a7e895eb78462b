package bucket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intellect4all/kvdb/digest"
	"github.com/intellect4all/kvdb/entry"
)

func entryFor(key string, size uint16) entry.HashEntry {
	return entry.HashEntry{
		OnDisk: entry.HashEntryOnDisk{
			Header: entry.DataHeader{
				KeyDigest: digest.Compute([]byte(key)),
				DataSize:  size,
			},
		},
	}
}

func TestSearchAndPutAppend(t *testing.T) {
	b := New()
	a := entryFor("a", 1)
	assert.False(t, b.Search(a))

	b.Put(a)
	assert.True(t, b.Search(a))
	assert.Equal(t, 1, b.Len())
}

func TestPutReplacesInPlace(t *testing.T) {
	b := New()
	b.Put(entryFor("a", 1))
	b.Put(entryFor("b", 2))
	b.Put(entryFor("c", 3))

	b.Put(entryFor("b", 99))

	require.Equal(t, 3, b.Len())
	entries := b.Entries()
	assert.Equal(t, uint16(1), entries[0].OnDisk.Header.DataSize)
	assert.Equal(t, uint16(99), entries[1].OnDisk.Header.DataSize)
	assert.Equal(t, uint16(3), entries[2].OnDisk.Header.DataSize)
}

func TestGetRefMutatesInPlace(t *testing.T) {
	b := New()
	b.Put(entryFor("a", 1))

	ref := b.GetRef(entryFor("a", 0))
	require.NotNil(t, ref)
	ref.OnDisk.Header.DataSize = 42

	got := b.GetRef(entryFor("a", 0))
	assert.Equal(t, uint16(42), got.OnDisk.Header.DataSize)
}

func TestRemove(t *testing.T) {
	b := New()
	b.Put(entryFor("a", 1))
	b.Put(entryFor("b", 2))

	assert.True(t, b.Remove(entryFor("a", 0)))
	assert.False(t, b.Search(entryFor("a", 0)))
	assert.Equal(t, 1, b.Len())

	assert.False(t, b.Remove(entryFor("a", 0)))
}

func TestIterStopsEarly(t *testing.T) {
	b := New()
	b.Put(entryFor("a", 1))
	b.Put(entryFor("b", 2))
	b.Put(entryFor("c", 3))

	var seen int
	b.Iter(func(entry.HashEntry) bool {
		seen++
		return seen < 2
	})
	assert.Equal(t, 2, seen)
}
