package index

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"pagestore/pkg/buffer"
	"pagestore/pkg/logging"
	"pagestore/pkg/storage/page"
)

var (
	ErrPoolExhausted = errors.New("buffer pool has no free frame")
	ErrInvalidOption = errors.New("invalid hash table option")
	ErrNotDirectory  = errors.New("page is not a hash table directory")
)

type Option func(*options)

type options struct {
	bucketCapacity int
	maxDepth       uint32
	hash           any
}

// WithHashFunc replaces the default xxhash of the encoded key. The function
// must agree with the comparator: equal keys hash equally.
func WithHashFunc[K any](fn HashFunc[K]) Option {
	return func(o *options) { o.hash = fn }
}

// WithBucketCapacity caps the number of slots per bucket page.
func WithBucketCapacity(n int) Option {
	return func(o *options) { o.bucketCapacity = n }
}

// WithMaxDepth caps the global depth of the directory.
func WithMaxDepth(depth uint32) Option {
	return func(o *options) { o.maxDepth = depth }
}

// ExtendibleHashTable is a disk-resident hash index: one directory page
// mapping hash prefixes to bucket pages, all accessed through a buffer pool.
// Keys need not be unique; (key, value) pairs are.
//
// A table-wide RWMutex serializes structure changes: GetValue and iterators
// share it, Insert and Remove hold it exclusively.
type ExtendibleHashTable[K any, V comparable] struct {
	name            string
	bpm             buffer.BufferPool
	directoryPageID page.PageID
	keys            page.Codec[K]
	values          page.Codec[V]
	cmp             page.Comparator[K]
	hash            HashFunc[K]
	bucketCapacity  int
	maxDepth        uint32

	mu  sync.RWMutex
	log *slog.Logger
}

func buildTable[K any, V comparable](name string, bpm buffer.BufferPool, keys page.Codec[K], values page.Codec[V], cmp page.Comparator[K], opts []Option) (*ExtendibleHashTable[K, V], error) {
	maxCapacity := page.BucketArraySize(keys.Size() + values.Size())
	o := options{bucketCapacity: maxCapacity, maxDepth: page.MaxDirectoryDepth}
	for _, opt := range opts {
		opt(&o)
	}

	if o.bucketCapacity <= 0 || o.bucketCapacity > maxCapacity {
		return nil, fmt.Errorf("%w: bucket capacity %d not in [1, %d]", ErrInvalidOption, o.bucketCapacity, maxCapacity)
	}
	if o.maxDepth > page.MaxDirectoryDepth {
		return nil, fmt.Errorf("%w: max depth %d above %d", ErrInvalidOption, o.maxDepth, page.MaxDirectoryDepth)
	}

	hash := NewDefaultHash(keys)
	if o.hash != nil {
		fn, ok := o.hash.(HashFunc[K])
		if !ok {
			return nil, fmt.Errorf("%w: hash function has type %T", ErrInvalidOption, o.hash)
		}
		hash = fn
	}

	return &ExtendibleHashTable[K, V]{
		name:            name,
		bpm:             bpm,
		directoryPageID: page.InvalidPageID,
		keys:            keys,
		values:          values,
		cmp:             cmp,
		hash:            hash,
		bucketCapacity:  o.bucketCapacity,
		maxDepth:        o.maxDepth,
		log:             logging.WithIndex(name),
	}, nil
}

// NewExtendibleHashTable formats a fresh directory page at global depth 0
// with a single empty bucket.
func NewExtendibleHashTable[K any, V comparable](name string, bpm buffer.BufferPool, keys page.Codec[K], values page.Codec[V], cmp page.Comparator[K], opts ...Option) (*ExtendibleHashTable[K, V], error) {
	t, err := buildTable(name, bpm, keys, values, cmp, opts)
	if err != nil {
		return nil, err
	}

	dirPage := bpm.NewPage()
	if dirPage == nil {
		return nil, fmt.Errorf("create directory of %q: %w", name, ErrPoolExhausted)
	}
	bucketPage := bpm.NewPage()
	if bucketPage == nil {
		bpm.UnpinPage(dirPage.ID(), false)
		bpm.DeletePage(dirPage.ID())
		return nil, fmt.Errorf("create root bucket of %q: %w", name, ErrPoolExhausted)
	}

	dir := page.NewHashTableDirectoryPage(dirPage)
	dir.Init(dirPage.ID())
	dir.SetBucketPageID(0, bucketPage.ID())
	dir.SetLocalDepth(0, 0)

	t.directoryPageID = dirPage.ID()
	bpm.UnpinPage(bucketPage.ID(), true)
	bpm.UnpinPage(dirPage.ID(), true)

	t.log.Debug("hash table created", "directory_page_id", t.directoryPageID, "bucket_capacity", t.bucketCapacity)
	return t, nil
}

// OpenExtendibleHashTable attaches to a table whose directory already lives
// at directoryPageID. Capacity and depth options must match those it was
// created with.
func OpenExtendibleHashTable[K any, V comparable](name string, bpm buffer.BufferPool, directoryPageID page.PageID, keys page.Codec[K], values page.Codec[V], cmp page.Comparator[K], opts ...Option) (*ExtendibleHashTable[K, V], error) {
	t, err := buildTable(name, bpm, keys, values, cmp, opts)
	if err != nil {
		return nil, err
	}

	dirPage := bpm.FetchPage(directoryPageID)
	if dirPage == nil {
		return nil, fmt.Errorf("open directory of %q: %w", name, ErrPoolExhausted)
	}
	defer bpm.UnpinPage(directoryPageID, false)

	dir := page.NewHashTableDirectoryPage(dirPage)
	if dir.GetPageID() != directoryPageID {
		return nil, fmt.Errorf("open %q at page %d: %w", name, directoryPageID, ErrNotDirectory)
	}
	if err := dir.VerifyIntegrity(); err != nil {
		return nil, fmt.Errorf("open %q at page %d: %w: %v", name, directoryPageID, ErrNotDirectory, err)
	}
	if dir.GetGlobalDepth() > t.maxDepth {
		return nil, fmt.Errorf("%w: %q has global depth %d above max depth %d",
			ErrInvalidOption, name, dir.GetGlobalDepth(), t.maxDepth)
	}

	t.directoryPageID = directoryPageID
	return t, nil
}

func (t *ExtendibleHashTable[K, V]) Name() string {
	return t.name
}

func (t *ExtendibleHashTable[K, V]) DirectoryPageID() page.PageID {
	return t.directoryPageID
}

func (t *ExtendibleHashTable[K, V]) BucketCapacity() int {
	return t.bucketCapacity
}

func (t *ExtendibleHashTable[K, V]) MaxDepth() uint32 {
	return t.maxDepth
}

// normalize round-trips the key through its codec so that comparisons and
// hashing see exactly what a bucket page stores.
func (t *ExtendibleHashTable[K, V]) normalize(key K) K {
	buf := make([]byte, t.keys.Size())
	t.keys.Encode(buf, key)
	return t.keys.Decode(buf)
}

func (t *ExtendibleHashTable[K, V]) keyToDirectoryIndex(key K, dir *page.HashTableDirectoryPage) uint32 {
	return t.hash(key) & dir.GetGlobalDepthMask()
}

func (t *ExtendibleHashTable[K, V]) fetchDirectory() (*page.HashTableDirectoryPage, bool) {
	p := t.bpm.FetchPage(t.directoryPageID)
	if p == nil {
		t.log.Error("fetch directory page failed", "page_id", t.directoryPageID)
		return nil, false
	}
	return page.NewHashTableDirectoryPage(p), true
}

func (t *ExtendibleHashTable[K, V]) fetchBucket(pageID page.PageID) (*page.Page, *page.HashTableBucketPage[K, V]) {
	p := t.bpm.FetchPage(pageID)
	if p == nil {
		t.log.Error("fetch bucket page failed", "page_id", pageID)
		return nil, nil
	}
	return p, page.NewHashTableBucketPage(p, t.keys, t.values, t.bucketCapacity)
}

// GetValue returns every value stored under key.
func (t *ExtendibleHashTable[K, V]) GetValue(key K) []V {
	t.mu.RLock()
	defer t.mu.RUnlock()

	key = t.normalize(key)
	dir, ok := t.fetchDirectory()
	if !ok {
		return nil
	}
	defer t.bpm.UnpinPage(t.directoryPageID, false)

	bucketPageID := dir.GetBucketPageID(t.keyToDirectoryIndex(key, dir))
	raw, bucket := t.fetchBucket(bucketPageID)
	if raw == nil {
		return nil
	}
	defer t.bpm.UnpinPage(bucketPageID, false)

	return bucket.GetValue(key, t.cmp)
}

// Insert adds (key, value). It returns false for a pair already present,
// when the target bucket is full and can no longer be split, or when the
// buffer pool cannot supply a frame.
func (t *ExtendibleHashTable[K, V]) Insert(key K, value V) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key = t.normalize(key)
	dir, ok := t.fetchDirectory()
	if !ok {
		return false
	}
	dirDirty := false
	defer func() { t.bpm.UnpinPage(t.directoryPageID, dirDirty) }()

	// each split deepens the target bucket, so maxDepth splits is the most
	// one insert can need
	for attempt := uint32(0); attempt <= t.maxDepth; attempt++ {
		bucketIdx := t.keyToDirectoryIndex(key, dir)
		bucketPageID := dir.GetBucketPageID(bucketIdx)
		raw, bucket := t.fetchBucket(bucketPageID)
		if raw == nil {
			return false
		}

		if bucket.Insert(key, value, t.cmp) {
			t.bpm.UnpinPage(bucketPageID, true)
			return true
		}
		if !bucket.IsFull() || bucket.Contains(key, value, t.cmp) {
			t.bpm.UnpinPage(bucketPageID, false)
			return false
		}

		split := t.splitBucket(dir, bucketIdx, raw)
		t.bpm.UnpinPage(bucketPageID, split)
		if !split {
			return false
		}
		dirDirty = true
	}
	return false
}

// splitBucket divides the full bucket behind directory slot bucketIdx in
// two, doubling the directory first when the bucket is already at global
// depth. It leaves everything untouched and returns false when the
// directory may not grow or no page can be allocated.
func (t *ExtendibleHashTable[K, V]) splitBucket(dir *page.HashTableDirectoryPage, bucketIdx uint32, oldPage *page.Page) bool {
	localDepth := dir.GetLocalDepth(bucketIdx)
	globalDepth := dir.GetGlobalDepth()
	if localDepth == globalDepth && (globalDepth >= t.maxDepth || !dir.CanIncrGlobalDepth()) {
		t.log.Warn("split refused: directory at max depth",
			"bucket_idx", bucketIdx, "global_depth", globalDepth, "page_id", oldPage.ID())
		return false
	}

	// local depth is unchanged by doubling, so these hold for both halves
	highBit := dir.GetLocalHighBit(bucketIdx)
	first := bucketIdx & dir.GetLocalDepthMask(bucketIdx)

	newPage := t.bpm.NewPage()
	if newPage == nil {
		t.log.Error("split failed: no frame for new bucket", "bucket_idx", bucketIdx)
		return false
	}

	if localDepth == globalDepth {
		size := dir.Size()
		for i := uint32(0); i < size; i++ {
			dir.SetBucketPageID(i+size, dir.GetBucketPageID(i))
			dir.SetLocalDepth(i+size, dir.GetLocalDepth(i))
		}
		dir.IncrGlobalDepth()
		t.log.Debug("directory grown", "global_depth", dir.GetGlobalDepth())
	}

	// every slot sharing the old bucket's low localDepth bits is a sibling;
	// the ones with the new high bit set move to the new page
	for i := first; i < dir.Size(); i += highBit {
		dir.IncrLocalDepth(i)
		if i&highBit != 0 {
			dir.SetBucketPageID(i, newPage.ID())
		}
	}

	copy(newPage.Data[:], oldPage.Data[:])
	oldBucket := page.NewHashTableBucketPage(oldPage, t.keys, t.values, t.bucketCapacity)
	newBucket := page.NewHashTableBucketPage(newPage, t.keys, t.values, t.bucketCapacity)
	moved := 0
	for i := 0; i < t.bucketCapacity && oldBucket.IsOccupied(i); i++ {
		if !oldBucket.IsReadable(i) {
			continue
		}
		target := dir.GetBucketPageID(t.keyToDirectoryIndex(oldBucket.KeyAt(i), dir))
		if target == newPage.ID() {
			oldBucket.RemoveAt(i)
			moved++
		} else {
			newBucket.RemoveAt(i)
		}
	}

	t.log.Debug("bucket split",
		"old_page_id", oldPage.ID(), "new_page_id", newPage.ID(),
		"local_depth", localDepth+1, "moved", moved)
	t.bpm.UnpinPage(newPage.ID(), true)
	return true
}

// Remove deletes the (key, value) pair. A bucket left empty is merged into
// its split image when both sit at the same local depth.
func (t *ExtendibleHashTable[K, V]) Remove(key K, value V) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key = t.normalize(key)
	dir, ok := t.fetchDirectory()
	if !ok {
		return false
	}
	dirDirty := false
	defer func() { t.bpm.UnpinPage(t.directoryPageID, dirDirty) }()

	bucketIdx := t.keyToDirectoryIndex(key, dir)
	bucketPageID := dir.GetBucketPageID(bucketIdx)
	raw, bucket := t.fetchBucket(bucketPageID)
	if raw == nil {
		return false
	}

	removed := bucket.Remove(key, value, t.cmp)
	empty := bucket.IsEmpty()
	t.bpm.UnpinPage(bucketPageID, removed)

	if removed && empty {
		dirDirty = t.mergeBucket(dir, bucketIdx)
	}
	return removed
}

// mergeBucket folds the empty bucket behind bucketIdx into its split image.
// Only one level is merged; the directory never shrinks.
func (t *ExtendibleHashTable[K, V]) mergeBucket(dir *page.HashTableDirectoryPage, bucketIdx uint32) bool {
	localDepth := dir.GetLocalDepth(bucketIdx)
	if localDepth == 0 {
		return false
	}

	imageIdx := dir.GetSplitImageIndex(bucketIdx)
	if dir.GetLocalDepth(imageIdx) != localDepth {
		return false
	}

	emptyPageID := dir.GetBucketPageID(bucketIdx)
	imagePageID := dir.GetBucketPageID(imageIdx)
	if emptyPageID == imagePageID {
		return false
	}

	stride := uint32(1) << (localDepth - 1)
	for i := bucketIdx & (stride - 1); i < dir.Size(); i += stride {
		dir.SetBucketPageID(i, imagePageID)
		dir.DecrLocalDepth(i)
	}

	if !t.bpm.DeletePage(emptyPageID) {
		t.log.Warn("merged bucket page still pinned, not reclaimed", "page_id", emptyPageID)
	}
	t.log.Debug("bucket merged",
		"empty_page_id", emptyPageID, "into_page_id", imagePageID, "local_depth", localDepth-1)
	return true
}

// GetGlobalDepth reads the directory's global depth, or 0 when the
// directory cannot be fetched.
func (t *ExtendibleHashTable[K, V]) GetGlobalDepth() uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	dir, ok := t.fetchDirectory()
	if !ok {
		return 0
	}
	defer t.bpm.UnpinPage(t.directoryPageID, false)
	return dir.GetGlobalDepth()
}

// VerifyIntegrity checks the directory invariants.
func (t *ExtendibleHashTable[K, V]) VerifyIntegrity() error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	dir, ok := t.fetchDirectory()
	if !ok {
		return fmt.Errorf("verify %q: %w", t.name, ErrPoolExhausted)
	}
	defer t.bpm.UnpinPage(t.directoryPageID, false)

	if err := dir.VerifyIntegrity(); err != nil {
		return fmt.Errorf("verify %q: %w", t.name, err)
	}
	return nil
}

// bucketPageIDs lists the distinct bucket pages in directory order.
func (t *ExtendibleHashTable[K, V]) bucketPageIDs(dir *page.HashTableDirectoryPage) []page.PageID {
	seen := make(map[page.PageID]struct{})
	var ids []page.PageID
	for i := uint32(0); i < dir.Size(); i++ {
		pid := dir.GetBucketPageID(i)
		if _, ok := seen[pid]; ok {
			continue
		}
		seen[pid] = struct{}{}
		ids = append(ids, pid)
	}
	return ids
}

// NumBuckets is the number of distinct bucket pages.
func (t *ExtendibleHashTable[K, V]) NumBuckets() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	dir, ok := t.fetchDirectory()
	if !ok {
		return 0
	}
	defer t.bpm.UnpinPage(t.directoryPageID, false)
	return len(t.bucketPageIDs(dir))
}

// Destroy deletes every bucket page and then the directory. It stops at
// the first page still pinned. The table must not be used after a
// successful Destroy.
func (t *ExtendibleHashTable[K, V]) Destroy() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	dir, ok := t.fetchDirectory()
	if !ok {
		return fmt.Errorf("destroy %q: %w", t.name, ErrPoolExhausted)
	}
	ids := t.bucketPageIDs(dir)
	t.bpm.UnpinPage(t.directoryPageID, false)

	ids = append(ids, t.directoryPageID)
	for _, pid := range ids {
		if !t.bpm.DeletePage(pid) {
			return fmt.Errorf("destroy %q: page %d is pinned", t.name, pid)
		}
	}
	t.log.Debug("hash table destroyed", "pages", len(ids))
	t.directoryPageID = page.InvalidPageID
	return nil
}
