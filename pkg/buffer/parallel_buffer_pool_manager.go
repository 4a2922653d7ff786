package buffer

import (
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"pagestore/pkg/assert"
	"pagestore/pkg/storage/disk"
	"pagestore/pkg/storage/page"
)

// ParallelBufferPoolManager shards pages over independent instances by
// page id modulo the instance count. A page id is issued by the shard that
// owns it, so a page never moves between shards and they share no lock.
type ParallelBufferPoolManager struct {
	instances  []*BufferPoolManager
	poolSize   int
	startIndex atomic.Uint32
}

// NewParallelBufferPoolManager builds numInstances shards of poolSize
// frames each over one backing store.
func NewParallelBufferPoolManager(numInstances, poolSize int, diskManager disk.DiskManager) *ParallelBufferPoolManager {
	assert.Assert(numInstances > 0, "instance count must be positive, got %d", numInstances)

	p := &ParallelBufferPoolManager{
		instances: make([]*BufferPoolManager, numInstances),
		poolSize:  poolSize,
	}
	for i := range p.instances {
		p.instances[i] = NewBufferPoolManagerInstance(diskManager, poolSize, numInstances, i)
	}
	return p
}

// GetPoolSize is the total frame count over all shards.
func (p *ParallelBufferPoolManager) GetPoolSize() int {
	return p.poolSize * len(p.instances)
}

func (p *ParallelBufferPoolManager) NumInstances() int {
	return len(p.instances)
}

// GetBufferPoolManager returns the shard owning pageID.
func (p *ParallelBufferPoolManager) GetBufferPoolManager(pageID page.PageID) *BufferPoolManager {
	assert.Assert(pageID >= 0, "no shard owns page id %d", pageID)
	return p.instances[int(pageID)%len(p.instances)]
}

func (p *ParallelBufferPoolManager) FetchPage(pageID page.PageID) *page.Page {
	return p.GetBufferPoolManager(pageID).FetchPage(pageID)
}

func (p *ParallelBufferPoolManager) UnpinPage(pageID page.PageID, isDirty bool) bool {
	return p.GetBufferPoolManager(pageID).UnpinPage(pageID, isDirty)
}

func (p *ParallelBufferPoolManager) FlushPage(pageID page.PageID) bool {
	return p.GetBufferPoolManager(pageID).FlushPage(pageID)
}

func (p *ParallelBufferPoolManager) DeletePage(pageID page.PageID) bool {
	return p.GetBufferPoolManager(pageID).DeletePage(pageID)
}

// NewPage asks each shard once, starting one shard further along than the
// previous call, and returns the first page allocated.
func (p *ParallelBufferPoolManager) NewPage() *page.Page {
	n := uint32(len(p.instances))
	start := p.startIndex.Add(1) - 1
	for i := uint32(0); i < n; i++ {
		if pg := p.instances[(start+i)%n].NewPage(); pg != nil {
			return pg
		}
	}
	return nil
}

// FreeFrameCount sums the shards' free lists.
func (p *ParallelBufferPoolManager) FreeFrameCount() int {
	n := 0
	for _, bpm := range p.instances {
		n += bpm.FreeFrameCount()
	}
	return n
}

// ResidentPageCount sums the pages cached by every shard.
func (p *ParallelBufferPoolManager) ResidentPageCount() int {
	n := 0
	for _, bpm := range p.instances {
		n += bpm.ResidentPageCount()
	}
	return n
}

// FlushAllPages flushes the shards concurrently.
func (p *ParallelBufferPoolManager) FlushAllPages() {
	var g errgroup.Group
	for _, bpm := range p.instances {
		g.Go(func() error {
			bpm.FlushAllPages()
			return nil
		})
	}
	_ = g.Wait()
}
