package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagestore/pkg/config"
	"pagestore/pkg/storage/disk"
	"pagestore/pkg/storage/page"
)

func fileOptions(t *testing.T) config.Options {
	t.Helper()
	opts := config.DefaultOptions()
	opts.DataDir = t.TempDir()
	opts.PoolSize = 8
	opts.NumInstances = 2
	opts.BucketCapacity = 16
	return opts
}

func memoryOptions() config.Options {
	opts := config.DefaultOptions()
	opts.DataDir = ""
	opts.PoolSize = 8
	opts.NumInstances = 2
	return opts
}

func TestEngineIndexLifecycle(t *testing.T) {
	e, err := NewEngine(memoryOptions())
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.CreateIndex("users"))
	assert.ErrorIs(t, e.CreateIndex("users"), ErrIndexExists)
	assert.Equal(t, []string{"users"}, e.ListIndexes())

	require.NoError(t, e.Insert("users", 1, 100))
	require.NoError(t, e.Insert("users", 1, 50))
	assert.ErrorIs(t, e.Insert("users", 1, 100), ErrInsertRejected)

	values, err := e.Get("users", 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{50, 100}, values)

	require.NoError(t, e.Remove("users", 1, 100))
	assert.ErrorIs(t, e.Remove("users", 1, 100), ErrPairNotFound)

	_, err = e.Get("missing", 1)
	assert.ErrorIs(t, err, ErrIndexNotFound)

	require.NoError(t, e.DropIndex("users"))
	assert.ErrorIs(t, e.DropIndex("users"), ErrIndexNotFound)
	assert.Empty(t, e.ListIndexes())
	assert.ErrorIs(t, e.Insert("users", 1, 1), ErrIndexNotFound)
}

func TestEngineDropIndexKeepsPinnedIndex(t *testing.T) {
	e, err := NewEngine(memoryOptions())
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.CreateIndex("users"))
	require.NoError(t, e.Insert("users", 7, 70))

	// a single-bucket index: its one bucket page is deleted first
	table := e.indexes["users"]
	dirPage := e.BPM.FetchPage(table.DirectoryPageID())
	require.NotNil(t, dirPage)
	bucketID := page.NewHashTableDirectoryPage(dirPage).GetBucketPageID(0)
	require.True(t, e.BPM.UnpinPage(dirPage.ID(), false))
	bucket := e.BPM.FetchPage(bucketID)
	require.NotNil(t, bucket)

	assert.Error(t, e.DropIndex("users"))
	assert.Equal(t, []string{"users"}, e.ListIndexes())
	values, err := e.Get("users", 7)
	require.NoError(t, err)
	assert.Equal(t, []int64{70}, values)

	require.True(t, e.BPM.UnpinPage(bucketID, false))
	require.NoError(t, e.DropIndex("users"))
	assert.Empty(t, e.ListIndexes())
}

func TestEngineScanAndDepth(t *testing.T) {
	opts := memoryOptions()
	opts.BucketCapacity = 4
	e, err := NewEngine(opts)
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.CreateIndex("idx"))
	for k := int64(49); k >= 0; k-- {
		require.NoError(t, e.Insert("idx", k, k*2))
	}

	pairs, err := e.Scan("idx")
	require.NoError(t, err)
	require.Len(t, pairs, 50)
	for i, p := range pairs {
		assert.Equal(t, Pair{Key: int64(i), Value: int64(i) * 2}, p)
	}

	depth, err := e.GlobalDepth("idx")
	require.NoError(t, err)
	assert.Positive(t, depth, "50 pairs do not fit one bucket of 4")
	assert.NoError(t, e.Verify("idx"))
}

func TestEnginePersistence(t *testing.T) {
	opts := fileOptions(t)

	e, err := NewEngine(opts)
	require.NoError(t, err)
	require.NoError(t, e.CreateIndex("a"))
	require.NoError(t, e.CreateIndex("b"))
	for k := int64(0); k < 300; k++ {
		require.NoError(t, e.Insert("a", k, k+1))
		require.NoError(t, e.Insert("b", k, -k))
	}
	require.NoError(t, e.Close())
	assert.ErrorIs(t, e.Insert("a", 1, 1), ErrEngineClosed)
	assert.NoError(t, e.Close(), "second close is a no-op")

	e, err = NewEngine(opts)
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, []string{"a", "b"}, e.ListIndexes())
	for k := int64(0); k < 300; k++ {
		got, err := e.Get("a", k)
		require.NoError(t, err)
		assert.Equal(t, []int64{k + 1}, got)
		got, err = e.Get("b", k)
		require.NoError(t, err)
		assert.Equal(t, []int64{-k}, got)
	}
	assert.NoError(t, e.Verify("a"))
	assert.NoError(t, e.Verify("b"))

	// new pages after reopen do not clobber existing ones
	require.NoError(t, e.CreateIndex("c"))
	for k := int64(0); k < 100; k++ {
		require.NoError(t, e.Insert("c", k, k))
	}
	got, err := e.Get("a", 7)
	require.NoError(t, err)
	assert.Equal(t, []int64{8}, got)
}

func TestEngineLocksDatabase(t *testing.T) {
	opts := fileOptions(t)
	e, err := NewEngine(opts)
	require.NoError(t, err)
	defer e.Close()

	_, err = NewEngine(opts)
	assert.ErrorIs(t, err, disk.ErrDatabaseLocked)
}

func TestEngineStats(t *testing.T) {
	opts := fileOptions(t)
	e, err := NewEngine(opts)
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.CreateIndex("idx"))
	for k := int64(0); k < 100; k++ {
		require.NoError(t, e.Insert("idx", k, k))
	}
	require.NoError(t, e.Flush())

	s := e.Stats()
	assert.Equal(t, 1, s.Indexes)
	assert.Equal(t, 2, s.Instances)
	assert.Equal(t, 16, s.PoolFrames)
	assert.Equal(t, uint64(16*4096), s.PoolBytes)
	assert.Positive(t, s.ResidentPages)
	assert.Positive(t, s.DiskWrites)
	assert.Positive(t, s.FileBytes)
	assert.FileExists(t, filepath.Join(opts.DataDir, opts.MetaFile))
}

func TestEngineRejectsInvalidOptions(t *testing.T) {
	opts := memoryOptions()
	opts.PoolSize = 0
	_, err := NewEngine(opts)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
