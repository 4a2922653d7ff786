package page

import (
	"encoding/binary"
	"fmt"

	"pagestore/pkg/assert"
)

// Directory page format:
//
//	| PageID (4) | GlobalDepth (4) | {BucketPageID (4), LocalDepth (1)} x DirectoryArraySize |
const (
	MaxDirectoryDepth  = 9
	DirectoryArraySize = 1 << MaxDirectoryDepth

	OffsetDirPageID      = 0
	OffsetDirGlobalDepth = 4
	DirectoryHeaderSize  = 8
	DirectoryEntrySize   = 5
)

// HashTableDirectoryPage maps the low global-depth bits of a key hash to a
// bucket page, and tracks the local depth of every slot.
type HashTableDirectoryPage struct {
	Data []byte
}

func NewHashTableDirectoryPage(p *Page) *HashTableDirectoryPage {
	return &HashTableDirectoryPage{Data: p.Data[:]}
}

// Init formats an empty directory: depth 0, every slot pointing nowhere.
func (d *HashTableDirectoryPage) Init(pageID PageID) {
	d.SetPageID(pageID)
	d.setGlobalDepth(0)
	for i := uint32(0); i < DirectoryArraySize; i++ {
		d.SetBucketPageID(i, InvalidPageID)
		d.SetLocalDepth(i, 0)
	}
}

func (d *HashTableDirectoryPage) GetPageID() PageID {
	return PageID(binary.LittleEndian.Uint32(d.Data[OffsetDirPageID:]))
}

func (d *HashTableDirectoryPage) SetPageID(id PageID) {
	binary.LittleEndian.PutUint32(d.Data[OffsetDirPageID:], uint32(id))
}

func (d *HashTableDirectoryPage) GetGlobalDepth() uint32 {
	return binary.LittleEndian.Uint32(d.Data[OffsetDirGlobalDepth:])
}

func (d *HashTableDirectoryPage) setGlobalDepth(depth uint32) {
	binary.LittleEndian.PutUint32(d.Data[OffsetDirGlobalDepth:], depth)
}

// GetGlobalDepthMask keeps the low global-depth bits of a hash.
func (d *HashTableDirectoryPage) GetGlobalDepthMask() uint32 {
	return (1 << d.GetGlobalDepth()) - 1
}

func (d *HashTableDirectoryPage) CanIncrGlobalDepth() bool {
	return d.GetGlobalDepth() < MaxDirectoryDepth
}

// IncrGlobalDepth doubles the directory. Callers mirror the lower half into
// the upper half first.
func (d *HashTableDirectoryPage) IncrGlobalDepth() {
	assert.Assert(d.CanIncrGlobalDepth(), "global depth %d already at maximum", d.GetGlobalDepth())
	d.setGlobalDepth(d.GetGlobalDepth() + 1)
}

// Size is the number of active directory slots, 2^global depth.
func (d *HashTableDirectoryPage) Size() uint32 {
	return 1 << d.GetGlobalDepth()
}

func entryOffset(bucketIdx uint32) int {
	assert.Assert(bucketIdx < DirectoryArraySize, "directory index %d out of range", bucketIdx)
	return DirectoryHeaderSize + int(bucketIdx)*DirectoryEntrySize
}

func (d *HashTableDirectoryPage) GetBucketPageID(bucketIdx uint32) PageID {
	off := entryOffset(bucketIdx)
	return PageID(binary.LittleEndian.Uint32(d.Data[off:]))
}

func (d *HashTableDirectoryPage) SetBucketPageID(bucketIdx uint32, id PageID) {
	off := entryOffset(bucketIdx)
	binary.LittleEndian.PutUint32(d.Data[off:], uint32(id))
}

func (d *HashTableDirectoryPage) GetLocalDepth(bucketIdx uint32) uint32 {
	return uint32(d.Data[entryOffset(bucketIdx)+4])
}

func (d *HashTableDirectoryPage) SetLocalDepth(bucketIdx uint32, depth uint32) {
	assert.Assert(depth <= MaxDirectoryDepth, "local depth %d exceeds maximum", depth)
	d.Data[entryOffset(bucketIdx)+4] = uint8(depth)
}

func (d *HashTableDirectoryPage) IncrLocalDepth(bucketIdx uint32) {
	d.SetLocalDepth(bucketIdx, d.GetLocalDepth(bucketIdx)+1)
}

func (d *HashTableDirectoryPage) DecrLocalDepth(bucketIdx uint32) {
	depth := d.GetLocalDepth(bucketIdx)
	assert.Assert(depth > 0, "local depth of slot %d already 0", bucketIdx)
	d.SetLocalDepth(bucketIdx, depth-1)
}

// GetLocalDepthMask keeps the low local-depth bits of a slot index.
func (d *HashTableDirectoryPage) GetLocalDepthMask(bucketIdx uint32) uint32 {
	return (1 << d.GetLocalDepth(bucketIdx)) - 1
}

// GetLocalHighBit is the bit a split of this slot's bucket distinguishes on.
func (d *HashTableDirectoryPage) GetLocalHighBit(bucketIdx uint32) uint32 {
	return 1 << d.GetLocalDepth(bucketIdx)
}

// GetSplitImageIndex flips the highest local-depth bit of the slot index,
// giving the slot whose bucket was split off from this one.
func (d *HashTableDirectoryPage) GetSplitImageIndex(bucketIdx uint32) uint32 {
	depth := d.GetLocalDepth(bucketIdx)
	assert.Assert(depth > 0, "slot %d at local depth 0 has no split image", bucketIdx)
	return bucketIdx ^ (1 << (depth - 1))
}

// VerifyIntegrity checks that
//   - every local depth is at most the global depth,
//   - slots sharing a bucket page share a local depth,
//   - a bucket at local depth ld is referenced by exactly 2^(gd-ld) slots.
func (d *HashTableDirectoryPage) VerifyIntegrity() error {
	global := d.GetGlobalDepth()
	if global > MaxDirectoryDepth {
		return fmt.Errorf("global depth %d exceeds maximum %d", global, MaxDirectoryDepth)
	}

	refs := make(map[PageID]uint32)
	depths := make(map[PageID]uint32)
	for i := uint32(0); i < d.Size(); i++ {
		pid := d.GetBucketPageID(i)
		local := d.GetLocalDepth(i)
		if pid == InvalidPageID {
			return fmt.Errorf("slot %d has no bucket page", i)
		}
		if local > global {
			return fmt.Errorf("slot %d: local depth %d exceeds global depth %d", i, local, global)
		}
		if prev, ok := depths[pid]; ok && prev != local {
			return fmt.Errorf("bucket page %d has local depths %d and %d", pid, prev, local)
		}
		depths[pid] = local
		refs[pid]++
	}

	for pid, count := range refs {
		want := uint32(1) << (global - depths[pid])
		if count != want {
			return fmt.Errorf("bucket page %d referenced by %d slots, want %d", pid, count, want)
		}
	}
	return nil
}
