package buffer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"pagestore/pkg/assert"
	"pagestore/pkg/logging"
	"pagestore/pkg/storage/disk"
	"pagestore/pkg/storage/page"
)

var errNoFreeFrame = errors.New("no victim found (all pages are pinned)")

// BufferPoolManager caches pages of the backing store in a fixed array of
// frames. One mutex covers the page table, the free list, the replacer and
// all page metadata, so every public method is atomic with respect to the
// others.
//
// A frame is either on the free list, or holds a page listed in the page
// table; it is in the replacer exactly when that page has pin count zero.
type BufferPoolManager struct {
	mu          sync.Mutex
	diskManager disk.DiskManager
	pages       []*page.Page        // frames, indexed by frame id
	replacer    *LRUReplacer        // evictable frames
	freeList    []int               // frames holding no page
	pageTable   map[page.PageID]int // page id -> frame id

	numInstances  int32
	instanceIndex int32
	nextPageID    page.PageID

	log *slog.Logger
}

// NewBufferPoolManager builds a standalone pool of poolSize frames.
func NewBufferPoolManager(diskManager disk.DiskManager, poolSize int) *BufferPoolManager {
	return NewBufferPoolManagerInstance(diskManager, poolSize, 1, 0)
}

// NewBufferPoolManagerInstance builds shard instanceIndex of numInstances.
// The shard only allocates page ids congruent to instanceIndex.
func NewBufferPoolManagerInstance(diskManager disk.DiskManager, poolSize, numInstances, instanceIndex int) *BufferPoolManager {
	assert.Assert(poolSize > 0, "pool size must be positive, got %d", poolSize)
	assert.Assert(numInstances > 0, "instance count must be positive, got %d", numInstances)
	assert.Assert(instanceIndex >= 0 && instanceIndex < numInstances,
		"instance index %d out of range for %d instances", instanceIndex, numInstances)

	bpm := &BufferPoolManager{
		diskManager:   diskManager,
		pages:         make([]*page.Page, poolSize),
		replacer:      NewLRUReplacer(poolSize),
		freeList:      make([]int, poolSize),
		pageTable:     make(map[page.PageID]int, poolSize),
		numInstances:  int32(numInstances),
		instanceIndex: int32(instanceIndex),
		nextPageID:    page.PageID(instanceIndex),
		log:           logging.WithComponent("buffer").With("instance", instanceIndex),
	}

	for i := 0; i < poolSize; i++ {
		bpm.pages[i] = page.NewPage()
		bpm.freeList[i] = i
	}

	// skip ids the store already holds
	if counter, ok := diskManager.(disk.PageCounter); ok {
		for bpm.nextPageID < counter.PageCount() {
			bpm.nextPageID += page.PageID(numInstances)
		}
	}

	return bpm
}

// GetPoolSize is the number of frames.
func (b *BufferPoolManager) GetPoolSize() int {
	return len(b.pages)
}

// FetchPage pins the page, reading it from disk when it is not cached.
// It returns nil when no frame can be freed.
func (b *BufferPoolManager) FetchPage(pageID page.PageID) *page.Page {
	assert.Assert(pageID != page.InvalidPageID, "fetch of invalid page id")
	b.mu.Lock()
	defer b.mu.Unlock()

	if frameID, ok := b.pageTable[pageID]; ok {
		b.replacer.Pin(frameID)
		p := b.pages[frameID]
		p.SetPinCount(p.PinCount() + 1)
		return p
	}

	frameID, err := b.findVictimFrame()
	if err != nil {
		return nil
	}

	p := b.pages[frameID]
	p.Reset()
	if err := b.diskManager.ReadPage(pageID, p.Data[:]); err != nil {
		b.log.Error("read page failed", "page_id", pageID, "error", err)
		b.freeList = append(b.freeList, frameID)
		return nil
	}
	p.SetID(pageID)
	p.SetPinCount(1)

	b.pageTable[pageID] = frameID
	b.replacer.Pin(frameID)
	return p
}

// NewPage allocates a page id and pins a zeroed frame for it. It returns
// nil, consuming no id, when no frame can be freed.
func (b *BufferPoolManager) NewPage() *page.Page {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, err := b.findVictimFrame()
	if err != nil {
		return nil
	}

	newPageID := b.allocatePage()

	p := b.pages[frameID]
	p.Reset()
	p.SetID(newPageID)
	p.SetPinCount(1)

	b.pageTable[newPageID] = frameID
	b.replacer.Pin(frameID)
	return p
}

// UnpinPage drops one pin and ORs in isDirty. It returns false when the
// page is not cached or not pinned.
func (b *BufferPoolManager) UnpinPage(pageID page.PageID, isDirty bool) bool {
	assert.Assert(pageID != page.InvalidPageID, "unpin of invalid page id")
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, ok := b.pageTable[pageID]
	if !ok {
		b.log.Warn("unpin of page not in buffer pool", "page_id", pageID)
		return false
	}

	p := b.pages[frameID]
	if p.PinCount() <= 0 {
		b.log.Warn("unpin of page with pin count 0", "page_id", pageID)
		return false
	}

	if isDirty {
		p.SetDirty(true)
	}
	p.SetPinCount(p.PinCount() - 1)
	if p.PinCount() == 0 {
		b.replacer.Unpin(frameID)
	}
	return true
}

// FlushPage writes the page back if it is dirty. It returns false when the
// page is not cached or the write fails.
func (b *BufferPoolManager) FlushPage(pageID page.PageID) bool {
	assert.Assert(pageID != page.InvalidPageID, "flush of invalid page id")
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, ok := b.pageTable[pageID]
	if !ok {
		return false
	}
	return b.flushFrame(b.pages[frameID]) == nil
}

// FlushAllPages writes back every dirty cached page. Failures are logged.
func (b *BufferPoolManager) FlushAllPages() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, p := range b.pages {
		if p.ID() != page.InvalidPageID {
			_ = b.flushFrame(p)
		}
	}
}

// DeletePage drops the page from the pool and frees its id in the store.
// A page that is not cached is deleted trivially; a pinned page is refused.
func (b *BufferPoolManager) DeletePage(pageID page.PageID) bool {
	assert.Assert(pageID != page.InvalidPageID, "delete of invalid page id")
	b.mu.Lock()
	defer b.mu.Unlock()

	frameID, ok := b.pageTable[pageID]
	if !ok {
		b.diskManager.DeallocatePage(pageID)
		return true
	}

	target := b.pages[frameID]
	if target.PinCount() > 0 {
		return false
	}
	if err := b.flushFrame(target); err != nil {
		return false
	}

	// Pin takes the frame out of the replacer; it goes to the free list instead
	b.replacer.Pin(frameID)
	delete(b.pageTable, pageID)
	b.diskManager.DeallocatePage(pageID)

	target.Reset()
	b.freeList = append(b.freeList, frameID)
	return true
}

// AllocatePage hands out the next page id owned by this instance.
func (b *BufferPoolManager) AllocatePage() page.PageID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.allocatePage()
}

func (b *BufferPoolManager) allocatePage() page.PageID {
	next := b.nextPageID
	b.nextPageID += page.PageID(b.numInstances)
	assert.Assert(int32(next)%b.numInstances == b.instanceIndex,
		"page id %d does not belong to instance %d of %d", next, b.instanceIndex, b.numInstances)
	return next
}

// FreeFrameCount is the length of the free list.
func (b *BufferPoolManager) FreeFrameCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.freeList)
}

// ResidentPageCount is the number of pages currently cached.
func (b *BufferPoolManager) ResidentPageCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pageTable)
}

// flushFrame writes a dirty frame and clears its dirty flag.
func (b *BufferPoolManager) flushFrame(p *page.Page) error {
	if !p.IsDirty() {
		return nil
	}
	if err := b.diskManager.WritePage(p.ID(), p.Data[:]); err != nil {
		b.log.Error("write page failed", "page_id", p.ID(), "error", err)
		return fmt.Errorf("flush page %d: %w", p.ID(), err)
	}
	p.SetDirty(false)
	return nil
}

// findVictimFrame takes a frame from the free list, else evicts the least
// recently unpinned page, writing it back first when dirty.
func (b *BufferPoolManager) findVictimFrame() (int, error) {
	if len(b.freeList) > 0 {
		frameID := b.freeList[0]
		b.freeList = b.freeList[1:]
		return frameID, nil
	}

	frameID, ok := b.replacer.Victim()
	if !ok {
		return -1, errNoFreeFrame
	}

	victim := b.pages[frameID]
	b.log.Debug("evict page", "page_id", victim.ID(), "frame", frameID, "dirty", victim.IsDirty())
	if err := b.flushFrame(victim); err != nil {
		// the dirty page stays cached and keeps its place in the LRU order
		b.replacer.Restore(frameID)
		return -1, err
	}

	delete(b.pageTable, victim.ID())
	return frameID, nil
}
