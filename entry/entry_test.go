package entry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intellect4all/kvdb/digest"
	"github.com/intellect4all/kvdb/logictime"
)

func TestDataHeaderSizeIs26(t *testing.T) {
	require.Equal(t, 26, DataHeaderSize)
}

func TestHashEntryOnDiskSizeIs34(t *testing.T) {
	require.Equal(t, 34, HashEntryOnDiskSize)
}

func TestDataHeaderRoundTrip(t *testing.T) {
	h := DataHeader{
		KeyDigest:        digest.Compute([]byte("k")),
		DataSize:         7,
		DataOffset:       1024,
		NextHeaderOffset: 26,
	}
	buf := make([]byte, DataHeaderSize)
	h.Encode(buf)
	got := DecodeDataHeader(buf)
	assert.Equal(t, h, got)
}

func TestHashEntryOnDiskRoundTrip(t *testing.T) {
	e := HashEntryOnDisk{
		Header: DataHeader{
			KeyDigest:        digest.Compute([]byte("k2")),
			DataSize:         3,
			DataOffset:       500,
			NextHeaderOffset: 0,
		},
		HeaderOffset: 99999,
	}
	buf := make([]byte, HashEntryOnDiskSize)
	e.Encode(buf)
	got := DecodeHashEntryOnDisk(buf)
	assert.Equal(t, e, got)
}

func TestIsTombstone(t *testing.T) {
	assert.True(t, DataHeader{DataSize: 0}.IsTombstone())
	assert.False(t, DataHeader{DataSize: 1}.IsTombstone())
}

func TestHashEntryEqualityByDigestOnly(t *testing.T) {
	d := digest.Compute([]byte("same-key"))
	a := HashEntry{
		OnDisk: HashEntryOnDisk{Header: DataHeader{KeyDigest: d, DataSize: 1}},
		Stamp:  logictime.New(1, 0),
	}
	b := HashEntry{
		OnDisk: HashEntryOnDisk{Header: DataHeader{KeyDigest: d, DataSize: 99}},
		Stamp:  logictime.New(5, 9),
	}
	assert.True(t, a.Equal(b))
}

func TestHashEntryCloneIsDeep(t *testing.T) {
	a := HashEntry{
		OnDisk: HashEntryOnDisk{Header: DataHeader{KeyDigest: digest.Compute([]byte("x")), DataSize: 1}},
		Stamp:  logictime.New(1, 2),
	}
	b := a.Clone()
	b.OnDisk.Header.DataSize = 5
	b.Stamp.SegKeyNo = 10

	assert.Equal(t, uint16(1), a.OnDisk.Header.DataSize)
	assert.Equal(t, int32(2), a.Stamp.SegKeyNo)
}
