package buffer

import "pagestore/pkg/storage/page"

// BufferPool is the page-cache surface consumed by indexes and executors.
// BufferPoolManager and ParallelBufferPoolManager both implement it.
//
// A nil page from FetchPage/NewPage means every frame is pinned. Each
// successful FetchPage/NewPage must be paired with exactly one UnpinPage.
type BufferPool interface {
	FetchPage(pageID page.PageID) *page.Page
	NewPage() *page.Page
	UnpinPage(pageID page.PageID, isDirty bool) bool
	FlushPage(pageID page.PageID) bool
	FlushAllPages()
	DeletePage(pageID page.PageID) bool
	GetPoolSize() int
}

var (
	_ BufferPool = (*BufferPoolManager)(nil)
	_ BufferPool = (*ParallelBufferPoolManager)(nil)
)
