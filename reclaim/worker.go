package reclaim

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/intellect4all/kvdb/entry"
	"github.com/intellect4all/kvdb/hashindex"
	"github.com/intellect4all/kvdb/logictime"
	"github.com/intellect4all/kvdb/segment"
)

// WorkerConfig controls when a Worker decides a sealed segment is worth
// compacting.
type WorkerConfig struct {
	// DeadRatioThreshold is the fraction of dead-to-used bytes a sealed
	// segment must reach before the worker copies it forward.
	DeadRatioThreshold float64
	// Interval is how often Run sweeps for compaction candidates.
	Interval time.Duration
}

// DefaultWorkerConfig matches the teacher's compaction trigger style: a
// majority-dead segment is worth the rewrite, checked periodically rather
// than on every write.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{DeadRatioThreshold: 0.5, Interval: time.Minute}
}

// Worker periodically compacts sealed segments whose dead ratio has
// crossed its threshold, relocating still-live records forward and
// freeing the old slot — the generalization of the teacher's
// compactSegments/applyCompaction pair (hashindex/compaction.go) to
// per-record relocation driven by hashindex.IsSameInMem instead of a
// whole-segment in-memory map merge.
type Worker struct {
	dir *segment.Directory
	idx *hashindex.HashIndex
	cfg WorkerConfig
	log *logrus.Logger
}

// NewWorker builds a Worker over dir and idx.
func NewWorker(dir *segment.Directory, idx *hashindex.HashIndex, cfg WorkerConfig, log *logrus.Logger) *Worker {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Worker{dir: dir, idx: idx, cfg: cfg, log: log}
}

// Run sweeps for compaction candidates every cfg.Interval until ctx is
// canceled. Callers that want to run this alongside other background work
// typically launch it as one goroutine in their own errgroup.Group, which
// is how kvengine.Engine.StartReclaim uses it.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.CompactOnce(ctx); err != nil {
				w.log.WithError(err).Error("compaction sweep failed")
			}
		}
	}
}

// CompactOnce runs a single compaction sweep: every sealed segment whose
// DeadRatio is at or above cfg.DeadRatioThreshold is compacted and freed.
func (w *Worker) CompactOnce(ctx context.Context) error {
	for _, id := range w.dir.SealedSegmentIDs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if w.dir.DeadRatio(id) < w.cfg.DeadRatioThreshold {
			continue
		}
		if err := w.compactSegment(id); err != nil {
			return errors.Wrapf(err, "reclaim: compact segment %d", id)
		}
	}
	return nil
}

func (w *Worker) compactSegment(id int64) error {
	oldSeg := w.dir.Segment(id)
	if oldSeg == nil {
		return nil
	}

	intraSeq := int32(0)
	relocated := 0
	err := oldSeg.WalkHeaders(func(relOffset int64, h entry.DataHeader) (bool, error) {
		absOldOffset := oldSeg.BaseOffset + relOffset
		stamp := logictime.New(oldSeg.SealedAt, intraSeq)
		intraSeq++

		if h.IsTombstone() {
			w.idx.RemoveEntry(entry.HashEntry{
				OnDisk: entry.HashEntryOnDisk{Header: h, HeaderOffset: entry.DataHeaderOffset(absOldOffset)},
				Stamp:  stamp,
			})
			return true, nil
		}

		oldEntry := entry.HashEntry{
			OnDisk: entry.HashEntryOnDisk{Header: h, HeaderOffset: entry.DataHeaderOffset(absOldOffset)},
			Stamp:  stamp,
		}
		if !w.idx.IsSameInMem(oldEntry) {
			// Superseded elsewhere; this copy would resurrect stale data.
			return true, nil
		}
		// Carry forward the stamp the index holds for this record.
		current := hashindex.Slice{Digest: h.KeyDigest}
		if w.idx.Get(&current) {
			stamp = current.HashEntry.Stamp
		}

		value, err := oldSeg.ReadValue(h)
		if err != nil {
			return false, err
		}

		newSeg, _, _, _, err := w.dir.Allocate(len(value))
		if err != nil {
			return false, err
		}
		newHeader := entry.DataHeader{KeyDigest: h.KeyDigest, DataSize: h.DataSize}
		absNewOffset, err := newSeg.Put(newHeader, value)
		if err != nil {
			return false, err
		}
		if newHeader, err = newSeg.ReadHeader(absNewOffset - newSeg.BaseOffset); err != nil {
			return false, err
		}

		candidate := entry.HashEntry{
			OnDisk: entry.HashEntryOnDisk{Header: newHeader, HeaderOffset: entry.DataHeaderOffset(absNewOffset)},
			Stamp:  stamp, // preserved: relocation doesn't change logical write order
		}
		if err := ApplyUpdate(w.idx, w.dir, h.KeyDigest, candidate); err != nil && !errors.Is(err, hashindex.ErrIndexFull) {
			return false, err
		}
		relocated++
		return true, nil
	})
	if err != nil {
		return err
	}

	w.dir.Free(id)
	w.log.WithFields(logrus.Fields{"segment_id": id, "relocated": relocated}).Info("segment compacted")
	return nil
}
