package db

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"

	"pagestore/pkg/buffer"
	"pagestore/pkg/config"
	"pagestore/pkg/logging"
	"pagestore/pkg/storage/disk"
	"pagestore/pkg/storage/index"
	"pagestore/pkg/storage/page"
)

var (
	ErrInsertRejected = errors.New("insert rejected: pair exists or bucket cannot split")
	ErrPairNotFound   = errors.New("pair not found")
	ErrEngineClosed   = errors.New("engine closed")
)

// HashIndex is the index type the engine serves: int64 keys to int64 values.
type HashIndex = index.ExtendibleHashTable[int64, int64]

// Pair is one (key, value) entry of an index.
type Pair struct {
	Key   int64
	Value int64
}

// Stats is a point-in-time snapshot of the engine.
type Stats struct {
	Indexes       int
	Instances     int
	PoolFrames    int
	PoolBytes     uint64
	ResidentPages int
	FreeFrames    int
	DiskReads     int64
	DiskWrites    int64
	FileBytes     uint64 // 0 for an in-memory engine
}

type ioCounter interface {
	NumReads() int64
	NumWrites() int64
}

// Engine owns the backing store, the sharded buffer pool, the catalog and
// every open hash index.
type Engine struct {
	DiskManager disk.DiskManager
	BPM         *buffer.ParallelBufferPoolManager
	Catalog     *Catalog

	opts    config.Options
	mu      sync.RWMutex
	indexes map[string]*HashIndex
	closed  bool
	log     *slog.Logger
}

// NewEngine opens (or creates) the database described by opts and reopens
// every index registered in its catalog. An empty DataDir gives an
// in-memory engine.
func NewEngine(opts config.Options) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		opts:    opts,
		indexes: make(map[string]*HashIndex),
		log:     logging.WithComponent("engine"),
	}

	if opts.DataDir == "" {
		e.DiskManager = disk.NewMemoryDiskManager()
	} else {
		if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dm, err := disk.NewFileDiskManager(opts.DBPath())
		if err != nil {
			return nil, err
		}
		e.DiskManager = dm
	}

	catalog, err := NewCatalog(opts.MetaPath())
	if err != nil {
		e.DiskManager.Close()
		return nil, err
	}
	e.Catalog = catalog
	e.BPM = buffer.NewParallelBufferPoolManager(opts.NumInstances, opts.PoolSize, e.DiskManager)

	for _, name := range catalog.ListIndexes() {
		meta, _ := catalog.GetIndex(name)
		table, err := index.OpenExtendibleHashTable[int64, int64](name, e.BPM, page.PageID(meta.DirectoryPageID),
			page.Int64Codec{}, page.Int64Codec{}, index.OrderedComparator[int64](),
			index.WithBucketCapacity(meta.BucketCapacity), index.WithMaxDepth(meta.MaxDepth))
		if err != nil {
			e.DiskManager.Close()
			return nil, fmt.Errorf("reopen index %q: %w", name, err)
		}
		e.indexes[name] = table
	}

	e.log.Info("engine opened",
		"data_dir", opts.DataDir, "instances", opts.NumInstances,
		"pool_size", opts.PoolSize, "indexes", len(e.indexes))
	return e, nil
}

func (e *Engine) getIndex(name string) (*HashIndex, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrEngineClosed
	}
	table, ok := e.indexes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, name)
	}
	return table, nil
}

// CreateIndex builds an empty hash index and registers it.
func (e *Engine) CreateIndex(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	if _, ok := e.indexes[name]; ok {
		return fmt.Errorf("%w: %s", ErrIndexExists, name)
	}

	capacity := e.opts.EffectiveBucketCapacity()
	table, err := index.NewExtendibleHashTable[int64, int64](name, e.BPM,
		page.Int64Codec{}, page.Int64Codec{}, index.OrderedComparator[int64](),
		index.WithBucketCapacity(capacity), index.WithMaxDepth(e.opts.MaxDirectoryDepth))
	if err != nil {
		return fmt.Errorf("create index %q: %w", name, err)
	}
	if err := e.Catalog.CreateIndex(name, table.DirectoryPageID(), capacity, e.opts.MaxDirectoryDepth); err != nil {
		_ = table.Destroy()
		return err
	}

	e.indexes[name] = table
	e.log.Info("index created", "index", name, "directory_page_id", table.DirectoryPageID())
	return nil
}

// DropIndex deletes every page of the index and unregisters it.
func (e *Engine) DropIndex(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	table, ok := e.indexes[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrIndexNotFound, name)
	}

	// a refused Destroy leaves the index registered and reachable
	if err := table.Destroy(); err != nil {
		return err
	}
	if err := e.Catalog.DropIndex(name); err != nil {
		return err
	}
	delete(e.indexes, name)
	e.log.Info("index dropped", "index", name)
	return nil
}

func (e *Engine) ListIndexes() []string {
	return e.Catalog.ListIndexes()
}

func (e *Engine) Insert(name string, key, value int64) error {
	table, err := e.getIndex(name)
	if err != nil {
		return err
	}
	if !table.Insert(key, value) {
		return fmt.Errorf("%w: (%d, %d)", ErrInsertRejected, key, value)
	}
	return nil
}

// Get returns the values stored under key in ascending order.
func (e *Engine) Get(name string, key int64) ([]int64, error) {
	table, err := e.getIndex(name)
	if err != nil {
		return nil, err
	}
	values := table.GetValue(key)
	slices.Sort(values)
	return values, nil
}

func (e *Engine) Remove(name string, key, value int64) error {
	table, err := e.getIndex(name)
	if err != nil {
		return err
	}
	if !table.Remove(key, value) {
		return fmt.Errorf("%w: (%d, %d)", ErrPairNotFound, key, value)
	}
	return nil
}

// Scan returns every pair of the index ordered by key, then value.
func (e *Engine) Scan(name string) ([]Pair, error) {
	table, err := e.getIndex(name)
	if err != nil {
		return nil, err
	}

	var pairs []Pair
	it := table.Iterator()
	for ; it.IsValid(); it.Next() {
		pairs = append(pairs, Pair{Key: it.Key(), Value: it.Value()})
	}
	it.Close()

	slices.SortFunc(pairs, func(a, b Pair) int {
		if c := cmp.Compare(a.Key, b.Key); c != 0 {
			return c
		}
		return cmp.Compare(a.Value, b.Value)
	})
	return pairs, nil
}

func (e *Engine) GlobalDepth(name string) (uint32, error) {
	table, err := e.getIndex(name)
	if err != nil {
		return 0, err
	}
	return table.GetGlobalDepth(), nil
}

// Verify checks the directory invariants of the index.
func (e *Engine) Verify(name string) error {
	table, err := e.getIndex(name)
	if err != nil {
		return err
	}
	return table.VerifyIntegrity()
}

// Flush writes every dirty page and the catalog.
func (e *Engine) Flush() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrEngineClosed
	}
	e.BPM.FlushAllPages()
	if err := e.Catalog.SaveMeta(); err != nil {
		return err
	}
	if fdm, ok := e.DiskManager.(*disk.FileDiskManager); ok {
		return fdm.Sync()
	}
	return nil
}

func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := Stats{
		Indexes:       len(e.indexes),
		Instances:     e.BPM.NumInstances(),
		PoolFrames:    e.BPM.GetPoolSize(),
		PoolBytes:     uint64(e.BPM.GetPoolSize()) * page.PageSize,
		ResidentPages: e.BPM.ResidentPageCount(),
		FreeFrames:    e.BPM.FreeFrameCount(),
	}
	if c, ok := e.DiskManager.(ioCounter); ok {
		s.DiskReads = c.NumReads()
		s.DiskWrites = c.NumWrites()
	}
	if fdm, ok := e.DiskManager.(*disk.FileDiskManager); ok {
		if size, err := fdm.Size(); err == nil {
			s.FileBytes = uint64(size)
		}
	}
	return s
}

// Close flushes all pages, saves the catalog and closes the store.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	e.BPM.FlushAllPages()
	err := errors.Join(e.Catalog.SaveMeta(), e.DiskManager.Close())
	e.log.Info("engine closed", "error", err)
	return err
}
