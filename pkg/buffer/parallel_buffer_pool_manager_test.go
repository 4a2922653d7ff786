package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"pagestore/pkg/storage/disk"
	"pagestore/pkg/storage/page"
)

func TestParallelBufferPoolManagerSharding(t *testing.T) {
	pbpm := NewParallelBufferPoolManager(4, 8, disk.NewMemoryDiskManager())
	assert.Equal(t, 32, pbpm.GetPoolSize())
	assert.Equal(t, 4, pbpm.NumInstances())

	var pages []*page.Page
	for i := 0; i < 32; i++ {
		p := pbpm.NewPage()
		require.NotNil(t, p, "page %d", i)
		pages = append(pages, p)
	}
	assert.Nil(t, pbpm.NewPage(), "every frame pinned")

	perShard := make(map[int]int)
	for _, p := range pages {
		shard := int(p.ID()) % 4
		perShard[shard]++
		owner := pbpm.GetBufferPoolManager(p.ID())
		assert.Same(t, pbpm.instances[shard], owner)
		assert.Equal(t, int32(shard), owner.instanceIndex)
	}
	assert.Equal(t, map[int]int{0: 8, 1: 8, 2: 8, 3: 8}, perShard)
}

func TestParallelNewPageRoundRobin(t *testing.T) {
	pbpm := NewParallelBufferPoolManager(3, 4, disk.NewMemoryDiskManager())

	var shards []int
	for i := 0; i < 6; i++ {
		p := pbpm.NewPage()
		require.NotNil(t, p)
		shards = append(shards, int(p.ID())%3)
		require.True(t, pbpm.UnpinPage(p.ID(), false))
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2}, shards)
}

func TestParallelNewPageFallsThrough(t *testing.T) {
	pbpm := NewParallelBufferPoolManager(2, 1, disk.NewMemoryDiskManager())

	first := pbpm.NewPage() // shard 0
	require.NotNil(t, first)
	assert.Equal(t, page.PageID(0), first.ID())

	second := pbpm.NewPage() // shard 1
	require.NotNil(t, second)
	require.True(t, pbpm.UnpinPage(second.ID(), false))

	// start shard is 0 again but it is full; shard 1 answers
	third := pbpm.NewPage()
	require.NotNil(t, third)
	assert.Equal(t, 1, int(third.ID())%2)
}

func TestParallelRoutedOperations(t *testing.T) {
	dm := disk.NewMemoryDiskManager()
	pbpm := NewParallelBufferPoolManager(2, 2, dm)

	p := pbpm.NewPage()
	require.NotNil(t, p)
	id := p.ID()
	copy(p.Data[:], "routed")

	assert.False(t, pbpm.DeletePage(id), "pinned")
	require.True(t, pbpm.UnpinPage(id, true))
	assert.False(t, pbpm.UnpinPage(id, false))

	require.True(t, pbpm.FlushPage(id))
	assert.True(t, dm.Contains(id))

	again := pbpm.FetchPage(id)
	require.NotNil(t, again)
	assert.Equal(t, "routed", string(again.Data[:6]))
	require.True(t, pbpm.UnpinPage(id, false))

	assert.True(t, pbpm.DeletePage(id))
	assert.False(t, dm.Contains(id))
}

func TestParallelConcurrentNewPage(t *testing.T) {
	dm := disk.NewMemoryDiskManager()
	pbpm := NewParallelBufferPoolManager(4, 4, dm)

	const workers, perWorker = 8, 50
	ids := make([][]page.PageID, workers)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := 0; i < perWorker; i++ {
				p := pbpm.NewPage()
				if p == nil {
					continue
				}
				p.Data[0] = byte(p.ID())
				ids[w] = append(ids[w], p.ID())
				pbpm.UnpinPage(p.ID(), true)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	seen := make(map[page.PageID]bool)
	for _, list := range ids {
		for _, id := range list {
			assert.False(t, seen[id], "page id %d issued twice", id)
			seen[id] = true
		}
	}

	pbpm.FlushAllPages()
	buf := make([]byte, page.PageSize)
	for id := range seen {
		require.True(t, dm.Contains(id))
		require.NoError(t, dm.ReadPage(id, buf))
		assert.Equal(t, byte(id), buf[0])
	}
	assert.Equal(t, len(seen), dm.NumPages())
}
