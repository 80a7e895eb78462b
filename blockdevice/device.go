// Package blockdevice implements the positioned read/write contract the
// rest of the engine treats as an external collaborator: a byte-addressed
// device supporting full-length pread/pwrite. Short transfers are errors.
package blockdevice

import (
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
)

// Device is the block-device contract consumed by the segment and index
// layers. Implementations must make pread/pwrite block until the full
// length is transferred or return an error — no short reads or writes.
type Device interface {
	// ReadAt reads exactly len(buf) bytes starting at offset.
	ReadAt(buf []byte, offset int64) error
	// WriteAt writes exactly len(buf) bytes starting at offset.
	WriteAt(buf []byte, offset int64) error
	// Sync flushes any buffered writes to stable storage.
	Sync() error
	// Size returns the current addressable size of the device.
	Size() (int64, error)
	// Truncate grows or shrinks the device's addressable size.
	Truncate(size int64) error
	// Close releases any underlying resources.
	Close() error
}

// ErrShortTransfer is wrapped around any pread/pwrite that completed fewer
// bytes than requested without an underlying error — the contract in §6
// treats that as a hard failure, not a retry signal.
var ErrShortTransfer = errors.New("blockdevice: short transfer")

// fileDevice is a Device backed by a regular file opened for positioned
// random access, the usual stand-in for a raw block device in userspace.
type fileDevice struct {
	mu   sync.Mutex
	file *os.File
}

// OpenFile opens (creating if absent) path as a file-backed Device.
func OpenFile(path string) (Device, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "blockdevice: open %s", path)
	}
	return &fileDevice{file: f}, nil
}

func (d *fileDevice) ReadAt(buf []byte, offset int64) error {
	n, err := d.file.ReadAt(buf, offset)
	if err != nil && !(errors.Is(err, io.EOF) && n == len(buf)) {
		return errors.Wrap(err, "blockdevice: pread")
	}
	if n != len(buf) {
		return errors.Wrapf(ErrShortTransfer, "pread wanted %d got %d", len(buf), n)
	}
	return nil
}

func (d *fileDevice) WriteAt(buf []byte, offset int64) error {
	n, err := d.file.WriteAt(buf, offset)
	if err != nil {
		return errors.Wrap(err, "blockdevice: pwrite")
	}
	if n != len(buf) {
		return errors.Wrapf(ErrShortTransfer, "pwrite wanted %d got %d", len(buf), n)
	}
	return nil
}

func (d *fileDevice) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return errors.Wrap(d.file.Sync(), "blockdevice: fsync")
}

func (d *fileDevice) Size() (int64, error) {
	info, err := d.file.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "blockdevice: stat")
	}
	return info.Size(), nil
}

func (d *fileDevice) Truncate(size int64) error {
	return errors.Wrap(d.file.Truncate(size), "blockdevice: truncate")
}

func (d *fileDevice) Close() error {
	return errors.Wrap(d.file.Close(), "blockdevice: close")
}
