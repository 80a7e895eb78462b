// Package superblock persists the two counters the hash index's snapshot
// writer and loader read and publish through hashindex.SuperblockAdapter:
// element_num and data_theory_size. The spec is explicit that the core
// touches nothing else on the superblock record, so this type stays
// narrow by design — it is the "surrounding system" half of that contract,
// not a general-purpose metadata store.
package superblock

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/intellect4all/kvdb/blockdevice"
)

// Size is the fixed, reserved region a Superblock occupies on device. It
// holds far more than the 12 bytes currently used, leaving room to grow
// without relayouting the rest of the device.
const Size = 4096

const wireSize = 4 + 8 // element_num, data_theory_size

// Superblock holds element_num and data_theory_size, and satisfies
// hashindex.SuperblockAdapter.
type Superblock struct {
	ElementNum     uint32
	DataTheorySize uint64
}

func (s *Superblock) GetElementNum() uint32      { return s.ElementNum }
func (s *Superblock) SetElementNum(n uint32)     { s.ElementNum = n }
func (s *Superblock) GetDataTheorySize() uint64  { return s.DataTheorySize }
func (s *Superblock) SetDataTheorySize(n uint64) { s.DataTheorySize = n }

// Save writes the superblock to dev at offset, zero-padding the rest of
// its reserved region.
func (s *Superblock) Save(dev blockdevice.Device, offset int64) error {
	buf := make([]byte, Size)
	binary.LittleEndian.PutUint32(buf[0:4], s.ElementNum)
	binary.LittleEndian.PutUint64(buf[4:12], s.DataTheorySize)
	if err := dev.WriteAt(buf, offset); err != nil {
		return errors.Wrap(err, "superblock: write")
	}
	return nil
}

// Load reads the superblock from dev at offset.
func Load(dev blockdevice.Device, offset int64) (*Superblock, error) {
	buf := make([]byte, wireSize)
	if err := dev.ReadAt(buf, offset); err != nil {
		return nil, errors.Wrap(err, "superblock: read")
	}
	return &Superblock{
		ElementNum:     binary.LittleEndian.Uint32(buf[0:4]),
		DataTheorySize: binary.LittleEndian.Uint64(buf[4:12]),
	}, nil
}
