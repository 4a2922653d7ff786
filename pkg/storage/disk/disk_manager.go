package disk

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"pagestore/pkg/storage/page"
)

var (
	ErrDatabaseLocked = errors.New("database file is locked by another process")
	ErrShortBuffer    = errors.New("page buffer shorter than page size")
	ErrClosed         = errors.New("disk manager is closed")
)

// DiskManager moves whole pages between memory and the backing store.
// Implementations are safe for concurrent use: every buffer pool shard
// shares one store.
//
// AllocatePage is advisory. The buffer pool issues page ids from its own
// per-shard counter and never calls it; a store only needs it for callers
// that write pages without a buffer pool.
type DiskManager interface {
	ReadPage(pageID page.PageID, dst []byte) error
	WritePage(pageID page.PageID, src []byte) error
	AllocatePage() page.PageID
	DeallocatePage(pageID page.PageID)
	Close() error
}

// PageCounter is implemented by stores that know how many pages they hold,
// so a buffer pool reopening them does not reuse live page ids.
type PageCounter interface {
	PageCount() page.PageID
}

// FileDiskManager keeps all pages in one file, page n at offset n*PageSize.
type FileDiskManager struct {
	mu         sync.Mutex
	dbFile     *os.File
	fileName   string
	nextPageID page.PageID
	numReads   atomic.Int64
	numWrites  atomic.Int64
}

// NewFileDiskManager opens or creates the database file and takes an
// exclusive lock on it.
func NewFileDiskManager(dbFileName string) (*FileDiskManager, error) {
	if err := os.MkdirAll(filepath.Dir(dbFileName), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	file, err := os.OpenFile(dbFileName, os.O_RDWR|os.O_CREATE, 0o664)
	if err != nil {
		return nil, fmt.Errorf("open db file: %w", err)
	}

	if err := lockFile(file); err != nil {
		file.Close()
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat db file: %w", err)
	}

	// a trailing partial page still counts as allocated
	pages := (info.Size() + page.PageSize - 1) / page.PageSize

	return &FileDiskManager{
		dbFile:     file,
		fileName:   dbFileName,
		nextPageID: page.PageID(pages),
	}, nil
}

// Close releases the file lock and closes the file.
func (d *FileDiskManager) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dbFile == nil {
		return nil
	}
	var err error
	if e := d.dbFile.Sync(); e != nil {
		err = errors.Join(err, fmt.Errorf("sync db file: %w", e))
	}
	if e := unlockFile(d.dbFile); e != nil {
		err = errors.Join(err, e)
	}
	if e := d.dbFile.Close(); e != nil {
		err = errors.Join(err, fmt.Errorf("close db file: %w", e))
	}
	d.dbFile = nil
	return err
}

// ReadPage fills dst with the page. Bytes never written read as zero.
func (d *FileDiskManager) ReadPage(pageID page.PageID, dst []byte) error {
	if len(dst) < page.PageSize {
		return ErrShortBuffer
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dbFile == nil {
		return ErrClosed
	}

	offset := int64(pageID) * page.PageSize
	n, err := d.dbFile.ReadAt(dst[:page.PageSize], offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read page %d: %w", pageID, err)
	}
	clear(dst[n:page.PageSize])
	d.numReads.Add(1)
	return nil
}

// WritePage writes the page in place. Durability is left to Sync.
func (d *FileDiskManager) WritePage(pageID page.PageID, src []byte) error {
	if len(src) < page.PageSize {
		return ErrShortBuffer
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dbFile == nil {
		return ErrClosed
	}

	offset := int64(pageID) * page.PageSize
	if _, err := d.dbFile.WriteAt(src[:page.PageSize], offset); err != nil {
		return fmt.Errorf("write page %d: %w", pageID, err)
	}
	if pageID >= d.nextPageID {
		d.nextPageID = pageID + 1
	}
	d.numWrites.Add(1)
	return nil
}

// AllocatePage hands out the next page id past the end of the file.
func (d *FileDiskManager) AllocatePage() page.PageID {
	d.mu.Lock()
	defer d.mu.Unlock()

	ret := d.nextPageID
	d.nextPageID++
	return ret
}

// DeallocatePage does not reclaim file space; freed ids are not reused.
func (d *FileDiskManager) DeallocatePage(pageID page.PageID) {}

// PageCount is one past the highest page id allocated or written.
func (d *FileDiskManager) PageCount() page.PageID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nextPageID
}

// Sync flushes the file to stable storage.
func (d *FileDiskManager) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dbFile == nil {
		return ErrClosed
	}
	return d.dbFile.Sync()
}

// Size returns the current file size in bytes.
func (d *FileDiskManager) Size() (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dbFile == nil {
		return 0, ErrClosed
	}
	info, err := d.dbFile.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (d *FileDiskManager) FileName() string {
	return d.fileName
}

func (d *FileDiskManager) NumReads() int64 {
	return d.numReads.Load()
}

func (d *FileDiskManager) NumWrites() int64 {
	return d.numWrites.Load()
}
