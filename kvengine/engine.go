// Package kvengine wires the index (hashindex), segment, and superblock
// layers into the public Put/Get/Delete surface (C7's orchestration), and
// supplements it with the startup recovery and background reclamation a
// runnable engine needs but the core update protocol leaves to "the
// surrounding system".
package kvengine

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/intellect4all/kvdb/blockdevice"
	"github.com/intellect4all/kvdb/common"
	"github.com/intellect4all/kvdb/digest"
	"github.com/intellect4all/kvdb/entry"
	"github.com/intellect4all/kvdb/hashindex"
	"github.com/intellect4all/kvdb/logictime"
	"github.com/intellect4all/kvdb/reclaim"
	"github.com/intellect4all/kvdb/segment"
	"github.com/intellect4all/kvdb/superblock"
)

// Fixed device layout: superblock, then directory metadata, then the hash
// index snapshot, then segment data. Each region is reserved up front so
// none of the three subsystems needs to know about the others' sizes at
// runtime — only Open computes the layout, once.
const (
	superblockOffset = 0
	dirMetaOffset    = superblockOffset + superblock.Size
	snapshotOffset   = dirMetaOffset + segment.MetaSize
)

func segmentBaseOffset(bucketCount uint32) int64 {
	return snapshotOffset + hashindex.ComputeIndexSizeOnDevice(bucketCount)
}

var _ common.StorageEngine = (*Engine)(nil)

// Engine orchestrates Put/Get/Delete across the hash index and segment
// layers under a single logical-clock: every record gets its LogicStamp
// from the segment it lands in (segTime) and its position within that
// segment's header chain (seg_key_no), exactly as §4 describes.
type Engine struct {
	mu     sync.Mutex
	closed bool

	cfg Config
	dev blockdevice.Device
	dir *segment.Directory
	idx *hashindex.HashIndex
	sb  *superblock.Superblock
	log *logrus.Logger

	Metrics *Metrics

	cancelReclaim context.CancelFunc
	reclaimGroup  *errgroup.Group
}

// Open creates a new device at cfg.DevicePath (or an in-memory one if
// empty) if it doesn't yet hold a valid layout, otherwise recovers from
// it: a snapshot load if the superblock and snapshot agree, falling back
// to a full segment scan (§13) if the snapshot is missing or
// hashindex.Load reports ErrCorruptIndex.
func Open(cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()
	log := logrus.StandardLogger()

	dev, err := openDevice(cfg.DevicePath)
	if err != nil {
		return nil, err
	}

	segBase := segmentBaseOffset(cfg.BucketCapacity)
	size, err := dev.Size()
	if err != nil {
		return nil, errors.Wrap(err, "kvengine: device size")
	}

	dirCfg := segment.Config{
		BaseOffset:  segBase,
		SegmentSize: cfg.SegmentSize,
		Now:         func() logictime.KVTime { return logictime.KVTime(time.Now().Unix()) },
	}

	var (
		dir *segment.Directory
		idx *hashindex.HashIndex
		sb  *superblock.Superblock
	)

	if size < segBase {
		dir, idx, sb, err = createLayout(dev, cfg, dirCfg, segBase, log)
	} else {
		dir, idx, sb, err = recoverLayout(dev, cfg, dirCfg, log)
	}
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:     cfg,
		dev:     dev,
		dir:     dir,
		idx:     idx,
		sb:      sb,
		log:     log,
		Metrics: newMetrics(),
	}
	return e, nil
}

func openDevice(path string) (blockdevice.Device, error) {
	if path == "" {
		return blockdevice.NewMemory(), nil
	}
	return blockdevice.OpenFile(path)
}

func createLayout(dev blockdevice.Device, cfg Config, dirCfg segment.Config, segBase int64, log *logrus.Logger) (*segment.Directory, *hashindex.HashIndex, *superblock.Superblock, error) {
	if err := dev.Truncate(segBase); err != nil {
		return nil, nil, nil, errors.Wrap(err, "kvengine: allocate fixed regions")
	}

	sb := &superblock.Superblock{}
	if err := sb.Save(dev, superblockOffset); err != nil {
		return nil, nil, nil, err
	}

	idx := hashindex.InitForCreate(cfg.BucketCapacity, log)
	if err := idx.Write(dev, snapshotOffset, sb); err != nil {
		return nil, nil, nil, err
	}

	dir := segment.New(dev, dirCfg, log)
	if err := dir.SaveMeta(dev, dirMetaOffset); err != nil {
		return nil, nil, nil, err
	}

	log.Info("kvengine: created new device layout")
	return dir, idx, sb, nil
}

func recoverLayout(dev blockdevice.Device, cfg Config, dirCfg segment.Config, log *logrus.Logger) (*segment.Directory, *hashindex.HashIndex, *superblock.Superblock, error) {
	sb, err := superblock.Load(dev, superblockOffset)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "kvengine: load superblock")
	}

	dir, dirErr := segment.LoadMeta(dev, dirMetaOffset, dirCfg, log)
	if dirErr != nil {
		log.WithError(dirErr).Warn("directory metadata unreadable; falling back to segment scan")
		dir, dirErr = segment.RebuildDirectory(dev, dirCfg, log)
		if dirErr != nil {
			return nil, nil, nil, errors.Wrap(dirErr, "kvengine: rebuild directory from segments")
		}
	}

	idx, idxErr := hashindex.Load(dev, snapshotOffset, cfg.BucketCapacity, sb, log)
	if idxErr != nil {
		log.WithError(idxErr).Warn("hash index snapshot unreadable; rebuilding from segment scan")
		idx, idxErr = reclaim.RebuildIndex(dir, cfg.BucketCapacity, log)
		if idxErr != nil {
			return nil, nil, nil, errors.Wrap(idxErr, "kvengine: rebuild index from segments")
		}
		sb.SetElementNum(idx.ElementCount())
		sb.SetDataTheorySize(idx.DataTheorySize())
		if err := sb.Save(dev, superblockOffset); err != nil {
			return nil, nil, nil, err
		}
	}

	return dir, idx, sb, nil
}

// Put writes value for key, replacing any existing value or tombstone.
// Per the wire format, a zero-length value is indistinguishable from a
// tombstone (data_size == 0 in both cases) — a Put with an empty value
// behaves the same as Delete.
func (e *Engine) Put(key, value []byte) error {
	return e.write(key, value, false)
}

// Delete writes a tombstone for key. It is not an error to delete a key
// that doesn't exist.
func (e *Engine) Delete(key []byte) error {
	return e.write(key, nil, true)
}

func (e *Engine) write(key, value []byte, tombstone bool) error {
	if len(key) == 0 {
		return common.ErrKeyEmpty
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return common.ErrClosed
	}

	d := digest.Compute(key)
	dataSize := len(value)
	if tombstone {
		dataSize = 0
	}

	seg, _, segTime, intraSeq, err := e.dir.Allocate(dataSize)
	if err != nil {
		return errors.Wrap(err, "kvengine: allocate segment space")
	}

	header := entry.DataHeader{KeyDigest: d, DataSize: uint16(dataSize)}
	writeValue := value
	if tombstone {
		writeValue = nil
	}
	absOffset, err := seg.Put(header, writeValue)
	if err != nil {
		return errors.Wrap(err, "kvengine: write record")
	}
	// Put fills in DataOffset on the header it writes, not on ours.
	if header, err = seg.ReadHeader(absOffset - seg.BaseOffset); err != nil {
		return errors.Wrap(err, "kvengine: read back record header")
	}

	candidate := entry.HashEntry{
		OnDisk: entry.HashEntryOnDisk{Header: header, HeaderOffset: entry.DataHeaderOffset(absOffset)},
		Stamp:  logictime.New(segTime, intraSeq),
	}

	if err := reclaim.ApplyUpdate(e.idx, e.dir, d, candidate); err != nil {
		if errors.Is(err, hashindex.ErrIndexFull) {
			e.Metrics.IndexFull.Inc()
		}
		return err
	}

	if tombstone {
		e.Metrics.Deletes.Inc()
		e.Metrics.Tombstones.Inc()
	} else {
		e.Metrics.Puts.Inc()
	}

	if e.cfg.SyncOnWrite {
		if err := e.dev.Sync(); err != nil {
			return errors.Wrap(err, "kvengine: sync")
		}
	}
	return nil
}

// Get returns the live value for key, or common.ErrKeyNotFound if there
// is none (no entry, or the live entry is a tombstone).
func (e *Engine) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, common.ErrKeyEmpty
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, common.ErrClosed
	}
	e.Metrics.Gets.Inc()

	d := digest.Compute(key)
	slice := hashindex.Slice{Digest: d}
	if !e.idx.Get(&slice) {
		return nil, common.ErrKeyNotFound
	}
	header := slice.HashEntry.OnDisk.Header
	if header.IsTombstone() {
		return nil, common.ErrKeyNotFound
	}

	seg := e.dir.SegmentContaining(int64(slice.HashEntry.OnDisk.HeaderOffset))
	if seg == nil {
		return nil, errors.New("kvengine: indexed entry references an unknown segment")
	}
	return seg.ReadValue(header)
}

// Sync flushes buffered device writes, then persists a fresh hash index
// snapshot, directory metadata, and superblock.
func (e *Engine) Sync() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syncLocked()
}

func (e *Engine) syncLocked() error {
	if e.closed {
		return common.ErrClosed
	}
	if err := e.idx.Write(e.dev, snapshotOffset, e.sb); err != nil {
		return err
	}
	if err := e.dir.SaveMeta(e.dev, dirMetaOffset); err != nil {
		return err
	}
	if err := e.sb.Save(e.dev, superblockOffset); err != nil {
		return err
	}
	return errors.Wrap(e.dev.Sync(), "kvengine: sync device")
}

// StartReclaim launches the background compactor (reclaim.Worker) in a
// goroutine. Close stops it. Calling StartReclaim twice without an
// intervening Close is an error.
func (e *Engine) StartReclaim(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return common.ErrClosed
	}
	if e.cancelReclaim != nil {
		return errors.New("kvengine: reclaim worker already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	worker := reclaim.NewWorker(e.dir, e.idx, e.cfg.Reclaim, e.log)
	g.Go(func() error { return worker.Run(gctx) })

	e.cancelReclaim = cancel
	e.reclaimGroup = g
	return nil
}

// CompactOnce runs a single synchronous compaction sweep, independent of
// the background worker — useful for tests and operator-triggered GC.
func (e *Engine) CompactOnce(ctx context.Context) error {
	e.mu.Lock()
	dir, idx, cfg, log := e.dir, e.idx, e.cfg.Reclaim, e.log
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return common.ErrClosed
	}
	return reclaim.NewWorker(dir, idx, cfg, log).CompactOnce(ctx)
}

// Stats reports current engine-wide counters.
func (e *Engine) Stats() common.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	activeID := int64(-1)
	if id := e.dir.ActiveSegmentID(); id != nil {
		activeID = *id
	}
	segCount := len(e.dir.SealedSegmentIDs())
	if e.dir.ActiveSegmentID() != nil {
		segCount++
	}

	return common.Stats{
		ElementCount:    e.idx.ElementCount(),
		BucketCount:     e.idx.BucketCount(),
		DataTheorySize:  e.idx.DataTheorySize(),
		SegmentCount:    segCount,
		ActiveSegmentID: activeID,
	}
}

// Close stops any running background reclaimer, flushes a final snapshot,
// and closes the device. Close is idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	cancel := e.cancelReclaim
	group := e.reclaimGroup
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		_ = group.Wait()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.syncLocked(); err != nil {
		e.log.WithError(err).Error("kvengine: final sync failed")
	}
	e.closed = true
	return errors.Wrap(e.dev.Close(), "kvengine: close device")
}
