package kvengine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intellect4all/kvdb/common"
	"github.com/intellect4all/kvdb/common/testutil"
)

func testConfig() Config {
	return Config{SegmentSize: 4096, BucketCapacity: 16}
}

func TestPutGetRoundTrip(t *testing.T) {
	e, err := Open(testConfig())
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Put([]byte("name"), []byte("Alice")))
	value, err := e.Get([]byte("name"))
	require.NoError(t, err)
	assert.Equal(t, "Alice", string(value))
}

func TestGetMissingKeyReturnsNotFound(t *testing.T) {
	e, err := Open(testConfig())
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Get([]byte("missing"))
	assert.ErrorIs(t, err, common.ErrKeyNotFound)
}

func TestDeleteThenGetReturnsNotFound(t *testing.T) {
	e, err := Open(testConfig())
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Put([]byte("k"), []byte("v")))
	require.NoError(t, e.Delete([]byte("k")))

	_, err = e.Get([]byte("k"))
	assert.ErrorIs(t, err, common.ErrKeyNotFound)
}

func TestPutOverwriteReturnsLatestValue(t *testing.T) {
	e, err := Open(testConfig())
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Put([]byte("k"), []byte("v1")))
	require.NoError(t, e.Put([]byte("k"), []byte("v2-longer")))

	value, err := e.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "v2-longer", string(value))
}

func TestEmptyKeyRejected(t *testing.T) {
	e, err := Open(testConfig())
	require.NoError(t, err)
	defer e.Close()

	assert.ErrorIs(t, e.Put(nil, []byte("v")), common.ErrKeyEmpty)
	_, getErr := e.Get(nil)
	assert.ErrorIs(t, getErr, common.ErrKeyEmpty)
}

func TestClosedEngineRejectsOperations(t *testing.T) {
	e, err := Open(testConfig())
	require.NoError(t, err)
	require.NoError(t, e.Close())

	assert.ErrorIs(t, e.Put([]byte("k"), []byte("v")), common.ErrClosed)
	_, getErr := e.Get([]byte("k"))
	assert.ErrorIs(t, getErr, common.ErrClosed)
	assert.NoError(t, e.Close()) // idempotent
}

func TestStatsReflectsPuts(t *testing.T) {
	e, err := Open(testConfig())
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Put([]byte("a"), []byte("1")))
	require.NoError(t, e.Put([]byte("b"), []byte("2")))

	stats := e.Stats()
	assert.Equal(t, uint32(2), stats.ElementCount)
	assert.Equal(t, uint32(16), stats.BucketCount)
	assert.GreaterOrEqual(t, stats.SegmentCount, 1)
	assert.Equal(t, int64(0), stats.ActiveSegmentID)
}

func TestFileBackedRecoveryAfterClose(t *testing.T) {
	dir := testutil.TempDir(t)
	path := filepath.Join(dir, "kvdb.img")
	cfg := testConfig()
	cfg.DevicePath = path

	e1, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, e1.Put([]byte("persisted"), []byte("value")))
	require.NoError(t, e1.Close())

	e2, err := Open(cfg)
	require.NoError(t, err)
	defer e2.Close()

	value, err := e2.Get([]byte("persisted"))
	require.NoError(t, err)
	assert.Equal(t, "value", string(value))
}

func TestRecoveryFallsBackToSegmentScanWhenSnapshotCorrupt(t *testing.T) {
	dir := testutil.TempDir(t)
	path := filepath.Join(dir, "kvdb.img")
	cfg := testConfig()
	cfg.DevicePath = path

	e1, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, e1.Put([]byte("a"), []byte("1")))
	require.NoError(t, e1.Put([]byte("b"), []byte("2")))
	require.NoError(t, e1.Sync()) // persists a valid directory and snapshot

	// Corrupt only the superblock's element_num so it disagrees with the
	// (otherwise valid) snapshot just written — the directory metadata is
	// untouched, so Open's recovery should fall back to rebuilding the
	// index from the segments the directory already knows about.
	require.NoError(t, e1.dev.WriteAt([]byte{0xFF, 0xFF, 0xFF, 0xFF}, superblockOffset))
	require.NoError(t, e1.dev.Close())

	e2, err := Open(cfg)
	require.NoError(t, err)
	defer e2.Close()

	value, err := e2.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, "1", string(value))
	value, err = e2.Get([]byte("b"))
	require.NoError(t, err)
	assert.Equal(t, "2", string(value))
}

func TestCompactOnceViaEngine(t *testing.T) {
	e, err := Open(testConfig())
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Put([]byte("a"), []byte("0123456789")))
	require.NoError(t, e.Put([]byte("a"), []byte("updated")))

	require.NoError(t, e.CompactOnce(context.Background()))

	value, err := e.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, "updated", string(value))
}

func TestStartReclaimTwiceErrors(t *testing.T) {
	e, err := Open(testConfig())
	require.NoError(t, err)
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, e.StartReclaim(ctx))
	assert.Error(t, e.StartReclaim(ctx))
}
