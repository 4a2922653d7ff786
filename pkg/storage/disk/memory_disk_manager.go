package disk

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"pagestore/pkg/storage/page"
)

// MemoryDiskManager keeps pages in a concurrent map. It backs tests and
// scratch engines that need no file.
type MemoryDiskManager struct {
	pages      *xsync.MapOf[page.PageID, []byte]
	nextPageID atomic.Int32
	numReads   atomic.Int64
	numWrites  atomic.Int64
}

func NewMemoryDiskManager() *MemoryDiskManager {
	return &MemoryDiskManager{
		pages: xsync.NewMapOf[page.PageID, []byte](),
	}
}

// ReadPage copies the stored page into dst; unknown pages read as zero.
func (m *MemoryDiskManager) ReadPage(pageID page.PageID, dst []byte) error {
	if len(dst) < page.PageSize {
		return ErrShortBuffer
	}
	m.numReads.Add(1)
	data, ok := m.pages.Load(pageID)
	if !ok {
		clear(dst[:page.PageSize])
		return nil
	}
	copy(dst, data)
	return nil
}

func (m *MemoryDiskManager) WritePage(pageID page.PageID, src []byte) error {
	if len(src) < page.PageSize {
		return ErrShortBuffer
	}
	data := make([]byte, page.PageSize)
	copy(data, src)
	m.pages.Store(pageID, data)
	m.numWrites.Add(1)

	for {
		next := m.nextPageID.Load()
		if int32(pageID) < next || m.nextPageID.CompareAndSwap(next, int32(pageID)+1) {
			return nil
		}
	}
}

func (m *MemoryDiskManager) AllocatePage() page.PageID {
	return page.PageID(m.nextPageID.Add(1) - 1)
}

// DeallocatePage forgets the page's bytes.
func (m *MemoryDiskManager) DeallocatePage(pageID page.PageID) {
	m.pages.Delete(pageID)
}

func (m *MemoryDiskManager) PageCount() page.PageID {
	return page.PageID(m.nextPageID.Load())
}

// Contains reports whether the page has been written and not deallocated.
func (m *MemoryDiskManager) Contains(pageID page.PageID) bool {
	_, ok := m.pages.Load(pageID)
	return ok
}

// NumPages is the number of pages currently stored.
func (m *MemoryDiskManager) NumPages() int {
	return m.pages.Size()
}

func (m *MemoryDiskManager) Close() error {
	return nil
}

func (m *MemoryDiskManager) NumReads() int64 {
	return m.numReads.Load()
}

func (m *MemoryDiskManager) NumWrites() int64 {
	return m.numWrites.Load()
}
