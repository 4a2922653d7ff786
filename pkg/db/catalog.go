package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"pagestore/pkg/storage/page"
)

var (
	ErrIndexExists   = errors.New("index already exists")
	ErrIndexNotFound = errors.New("index not found")
)

// IndexMeta is what the catalog persists about one hash index. Capacity and
// depth are needed to reopen the directory with the same bucket layout.
type IndexMeta struct {
	Name            string `json:"name"`
	DirectoryPageID int32  `json:"directory_page_id"`
	BucketCapacity  int    `json:"bucket_capacity"`
	MaxDepth        uint32 `json:"max_depth"`
}

// Catalog maps index names to their metadata and mirrors every change into
// a JSON meta file. An empty MetaFile keeps the catalog in memory only.
type Catalog struct {
	Indexes  map[string]*IndexMeta
	MetaFile string
	mu       sync.RWMutex
}

func NewCatalog(metaFile string) (*Catalog, error) {
	c := &Catalog{
		Indexes:  make(map[string]*IndexMeta),
		MetaFile: metaFile,
	}
	if err := c.LoadMeta(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadMeta reads the meta file. A missing file is an empty catalog.
func (c *Catalog) LoadMeta() error {
	if c.MetaFile == "" {
		return nil
	}
	file, err := os.Open(c.MetaFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer file.Close()

	indexes := make(map[string]*IndexMeta)
	if err := json.NewDecoder(file).Decode(&indexes); err != nil {
		return fmt.Errorf("decode catalog %s: %w", c.MetaFile, err)
	}
	c.Indexes = indexes
	return nil
}

// SaveMeta rewrites the meta file through a temp file and rename.
func (c *Catalog) SaveMeta() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.saveLocked()
}

func (c *Catalog) saveLocked() error {
	if c.MetaFile == "" {
		return nil
	}
	tmp := c.MetaFile + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create catalog: %w", err)
	}
	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c.Indexes); err != nil {
		file.Close()
		return fmt.Errorf("encode catalog: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close catalog: %w", err)
	}
	if err := os.Rename(tmp, c.MetaFile); err != nil {
		return fmt.Errorf("install catalog: %w", err)
	}
	return nil
}

// CreateIndex registers a new index and persists the catalog.
func (c *Catalog) CreateIndex(name string, directoryPageID page.PageID, bucketCapacity int, maxDepth uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.Indexes[name]; exists {
		return fmt.Errorf("%w: %s", ErrIndexExists, name)
	}
	c.Indexes[name] = &IndexMeta{
		Name:            name,
		DirectoryPageID: int32(directoryPageID),
		BucketCapacity:  bucketCapacity,
		MaxDepth:        maxDepth,
	}
	if err := c.saveLocked(); err != nil {
		delete(c.Indexes, name)
		return err
	}
	return nil
}

func (c *Catalog) GetIndex(name string) (*IndexMeta, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	meta, ok := c.Indexes[name]
	return meta, ok
}

func (c *Catalog) HasIndex(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.Indexes[name]
	return ok
}

func (c *Catalog) DropIndex(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.Indexes[name]; !ok {
		return fmt.Errorf("%w: %s", ErrIndexNotFound, name)
	}
	delete(c.Indexes, name)
	return c.saveLocked()
}

// ListIndexes returns the index names in sorted order.
func (c *Catalog) ListIndexes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.Indexes))
	for name := range c.Indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
