package blockdevice

import (
	"sync"

	"github.com/pkg/errors"
)

// memDevice is an in-memory Device, used in tests that want to exercise
// the index/segment protocol without touching the filesystem.
type memDevice struct {
	mu   sync.Mutex
	data []byte
}

// NewMemory returns an empty in-memory Device.
func NewMemory() Device {
	return &memDevice{}
}

func (d *memDevice) ReadAt(buf []byte, offset int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if offset < 0 || offset+int64(len(buf)) > int64(len(d.data)) {
		return errors.Wrapf(ErrShortTransfer, "read past end: offset=%d len=%d size=%d", offset, len(buf), len(d.data))
	}
	copy(buf, d.data[offset:offset+int64(len(buf))])
	return nil
}

func (d *memDevice) WriteAt(buf []byte, offset int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	end := offset + int64(len(buf))
	if end > int64(len(d.data)) {
		grown := make([]byte, end)
		copy(grown, d.data)
		d.data = grown
	}
	copy(d.data[offset:end], buf)
	return nil
}

func (d *memDevice) Sync() error { return nil }

func (d *memDevice) Size() (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.data)), nil
}

func (d *memDevice) Truncate(size int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if size <= int64(len(d.data)) {
		d.data = d.data[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, d.data)
	d.data = grown
	return nil
}

func (d *memDevice) Close() error { return nil }
