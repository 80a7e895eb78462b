package kvengine

import (
	"time"

	"github.com/intellect4all/kvdb/reclaim"
)

// Config configures an Engine's on-device layout and background behavior.
type Config struct {
	// DevicePath names a file-backed device. Empty means an in-memory
	// device — useful for tests and short-lived embeddings.
	DevicePath string

	// SegmentSize is the fixed size of every segment, including segment 0.
	SegmentSize int64

	// BucketCapacity is the hash index's bucket_count input: the smallest
	// power of two >= max(1, BucketCapacity) objects the table is sized
	// for. It must be supplied identically across restarts — the spec
	// treats bucket_count as an immutable deployment parameter the caller
	// already knows, the same way the original engine's LoadIndexFromDevice
	// takes ht_size as a parameter rather than persisting it itself.
	BucketCapacity uint32

	// SyncOnWrite calls Device.Sync after every Put/Delete. Off by default;
	// callers wanting durability per write should set this, and callers
	// content with periodic Sync() calls should leave it off.
	SyncOnWrite bool

	// Reclaim configures the compactor. Zero fields are replaced by Open
	// with a one-minute interval and a 0.5 dead-ratio threshold. The
	// background compactor runs only after Engine.StartReclaim; a single
	// sweep can be run with Engine.CompactOnce.
	Reclaim reclaim.WorkerConfig
}

// DefaultConfig returns a Config suitable for a single small device: 64MiB
// segments, a 64k-bucket index, and a background compactor that sweeps
// every minute for segments at least half dead.
func DefaultConfig() Config {
	return Config{
		SegmentSize:    64 << 20,
		BucketCapacity: 1 << 16,
		SyncOnWrite:    false,
		Reclaim:        reclaim.DefaultWorkerConfig(),
	}
}

func (c Config) withDefaults() Config {
	if c.SegmentSize <= 0 {
		c.SegmentSize = 64 << 20
	}
	if c.BucketCapacity == 0 {
		c.BucketCapacity = 1 << 16
	}
	if c.Reclaim.Interval <= 0 {
		c.Reclaim.Interval = time.Minute
	}
	if c.Reclaim.DeadRatioThreshold <= 0 {
		c.Reclaim.DeadRatioThreshold = 0.5
	}
	return c
}
