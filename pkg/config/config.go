package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"pagestore/pkg/storage/page"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// engineSlotSize is the (key, value) slot width of the engine's int64 indexes.
const engineSlotSize = 16

// Options represents engine configuration options
type Options struct {
	DataDir           string `yaml:"data_dir"`
	DBFile            string `yaml:"db_file"`
	MetaFile          string `yaml:"meta_file"`
	PoolSize          int    `yaml:"pool_size"`
	NumInstances      int    `yaml:"num_instances"`
	BucketCapacity    int    `yaml:"bucket_capacity"` // 0: as many as fit a page
	MaxDirectoryDepth uint32 `yaml:"max_directory_depth"`
	LogLevel          string `yaml:"log_level"`
	LogFormat         string `yaml:"log_format"`
	LogFile           string `yaml:"log_file"`
}

// DefaultOptions returns default engine options
func DefaultOptions() Options {
	return Options{
		DataDir:           "data",
		DBFile:            "pagestore.db",
		MetaFile:          "pagestore.meta",
		PoolSize:          64, // frames per instance, 256KB each at 4 instances
		NumInstances:      4,
		BucketCapacity:    0,
		MaxDirectoryDepth: page.MaxDirectoryDepth,
		LogLevel:          "info",
		LogFormat:         "text",
	}
}

// Load overlays the YAML file at path on the defaults. An empty path
// returns the defaults.
func Load(path string) (Options, error) {
	opts := DefaultOptions()
	if path == "" {
		return opts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := opts.Validate(); err != nil {
		return opts, fmt.Errorf("config %s: %w", path, err)
	}
	return opts, nil
}

func (o Options) Validate() error {
	if o.PoolSize <= 0 {
		return fmt.Errorf("%w: pool_size must be positive, got %d", ErrInvalidConfig, o.PoolSize)
	}
	if o.NumInstances <= 0 {
		return fmt.Errorf("%w: num_instances must be positive, got %d", ErrInvalidConfig, o.NumInstances)
	}
	if max := page.BucketArraySize(engineSlotSize); o.BucketCapacity < 0 || o.BucketCapacity > max {
		return fmt.Errorf("%w: bucket_capacity must be in [0, %d], got %d", ErrInvalidConfig, max, o.BucketCapacity)
	}
	if o.MaxDirectoryDepth < 1 || o.MaxDirectoryDepth > page.MaxDirectoryDepth {
		return fmt.Errorf("%w: max_directory_depth must be in [1, %d], got %d",
			ErrInvalidConfig, page.MaxDirectoryDepth, o.MaxDirectoryDepth)
	}
	if o.DataDir != "" && (o.DBFile == "" || o.MetaFile == "") {
		return fmt.Errorf("%w: db_file and meta_file are required with data_dir", ErrInvalidConfig)
	}
	return nil
}

// DBPath is the database file, or "" for an in-memory engine.
func (o Options) DBPath() string {
	if o.DataDir == "" {
		return ""
	}
	return filepath.Join(o.DataDir, o.DBFile)
}

// MetaPath is the catalog file, or "" for an in-memory engine.
func (o Options) MetaPath() string {
	if o.DataDir == "" {
		return ""
	}
	return filepath.Join(o.DataDir, o.MetaFile)
}

// EffectiveBucketCapacity resolves a zero capacity to the page maximum.
func (o Options) EffectiveBucketCapacity() int {
	if o.BucketCapacity == 0 {
		return page.BucketArraySize(engineSlotSize)
	}
	return o.BucketCapacity
}
