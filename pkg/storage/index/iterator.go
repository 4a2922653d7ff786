package index

import (
	"pagestore/pkg/storage/page"
)

// Iterator walks every live (key, value) pair of a hash table, one bucket
// page at a time, in no particular order. It holds the table's read lock
// and a pin on the current bucket until Close.
type Iterator[K any, V comparable] struct {
	table    *ExtendibleHashTable[K, V]
	pageIDs  []page.PageID
	next     int // index into pageIDs of the next bucket to load
	currPage *page.Page
	bucket   *page.HashTableBucketPage[K, V]
	currIdx  int
	closed   bool
}

// Iterator positions a new iterator on the first live pair. Callers must
// Close it, and must not modify the table from the same goroutine before
// doing so.
func (t *ExtendibleHashTable[K, V]) Iterator() *Iterator[K, V] {
	t.mu.RLock()
	it := &Iterator[K, V]{table: t, currIdx: -1}

	dir, ok := t.fetchDirectory()
	if !ok {
		return it
	}
	it.pageIDs = t.bucketPageIDs(dir)
	t.bpm.UnpinPage(t.directoryPageID, false)

	it.Next()
	return it
}

func (it *Iterator[K, V]) Key() K {
	return it.bucket.KeyAt(it.currIdx)
}

func (it *Iterator[K, V]) Value() V {
	return it.bucket.ValueAt(it.currIdx)
}

// IsValid reports whether the iterator points at a pair.
func (it *Iterator[K, V]) IsValid() bool {
	return it.currPage != nil
}

// Next advances to the following live pair, crossing bucket pages as
// needed. It returns false once the table is exhausted.
func (it *Iterator[K, V]) Next() bool {
	if it.closed {
		return false
	}
	for {
		if it.currPage != nil {
			for it.currIdx++; it.currIdx < it.bucket.Capacity() && it.bucket.IsOccupied(it.currIdx); it.currIdx++ {
				if it.bucket.IsReadable(it.currIdx) {
					return true
				}
			}
			it.release()
		}

		if it.next >= len(it.pageIDs) {
			return false
		}
		pid := it.pageIDs[it.next]
		it.next++

		raw, bucket := it.table.fetchBucket(pid)
		if raw == nil {
			return false
		}
		it.currPage, it.bucket, it.currIdx = raw, bucket, -1
	}
}

func (it *Iterator[K, V]) release() {
	it.table.bpm.UnpinPage(it.currPage.ID(), false)
	it.currPage, it.bucket = nil, nil
}

// Close unpins the current bucket and releases the table's read lock.
func (it *Iterator[K, V]) Close() {
	if it.closed {
		return
	}
	if it.currPage != nil {
		it.release()
	}
	it.closed = true
	it.table.mu.RUnlock()
}
