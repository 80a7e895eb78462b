package superblock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intellect4all/kvdb/blockdevice"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dev := blockdevice.NewMemory()
	require.NoError(t, dev.Truncate(Size))

	sb := &Superblock{ElementNum: 42, DataTheorySize: 123456}
	require.NoError(t, sb.Save(dev, 0))

	loaded, err := Load(dev, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), loaded.ElementNum)
	assert.Equal(t, uint64(123456), loaded.DataTheorySize)
}

func TestSetters(t *testing.T) {
	var sb Superblock
	sb.SetElementNum(7)
	sb.SetDataTheorySize(99)
	assert.Equal(t, uint32(7), sb.GetElementNum())
	assert.Equal(t, uint64(99), sb.GetDataTheorySize())
}
