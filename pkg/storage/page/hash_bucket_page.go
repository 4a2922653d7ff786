package page

import (
	"fmt"

	"pagestore/pkg/assert"
)

// Comparator orders keys: negative, zero or positive like cmp.Compare.
type Comparator[K any] func(a, b K) int

// BucketArraySize is the largest slot count whose two bitmaps and slot array
// fit in one page for the given (key, value) slot size.
func BucketArraySize(slotSize int) int {
	n := 4 * PageSize / (4*slotSize + 1)
	for n > 0 && 2*BitsetBytes(n)+n*slotSize > PageSize {
		n--
	}
	return n
}

// HashTableBucketPage is a fixed array of (key, value) slots.
//
// Bucket page format, N = capacity:
//
//	| Occupied bitmap (ceil(N/8)) | Readable bitmap (ceil(N/8)) | {Key, Value} x N |
//
// Occupied means "ever used" and is never cleared; readable means "live".
// Slots are used in index order, so the first unoccupied slot ends a scan.
type HashTableBucketPage[K any, V comparable] struct {
	Data     []byte
	keys     Codec[K]
	values   Codec[V]
	capacity int
	occupied Bitset
	readable Bitset
	slotsOff int
}

func NewHashTableBucketPage[K any, V comparable](p *Page, keys Codec[K], values Codec[V], capacity int) *HashTableBucketPage[K, V] {
	slotSize := keys.Size() + values.Size()
	assert.Assert(capacity > 0 && capacity <= BucketArraySize(slotSize),
		"bucket capacity %d out of range (max %d)", capacity, BucketArraySize(slotSize))

	bm := BitsetBytes(capacity)
	return &HashTableBucketPage[K, V]{
		Data:     p.Data[:],
		keys:     keys,
		values:   values,
		capacity: capacity,
		occupied: Bitset(p.Data[:bm]),
		readable: Bitset(p.Data[bm : 2*bm]),
		slotsOff: 2 * bm,
	}
}

func (b *HashTableBucketPage[K, V]) Capacity() int {
	return b.capacity
}

func (b *HashTableBucketPage[K, V]) slotOffset(idx int) int {
	assert.Assert(idx >= 0 && idx < b.capacity, "bucket slot %d out of range", idx)
	return b.slotsOff + idx*(b.keys.Size()+b.values.Size())
}

func (b *HashTableBucketPage[K, V]) KeyAt(idx int) K {
	return b.keys.Decode(b.Data[b.slotOffset(idx):])
}

func (b *HashTableBucketPage[K, V]) ValueAt(idx int) V {
	return b.values.Decode(b.Data[b.slotOffset(idx)+b.keys.Size():])
}

func (b *HashTableBucketPage[K, V]) setAt(idx int, key K, value V) {
	off := b.slotOffset(idx)
	b.keys.Encode(b.Data[off:], key)
	b.values.Encode(b.Data[off+b.keys.Size():], value)
}

func (b *HashTableBucketPage[K, V]) IsOccupied(idx int) bool {
	return b.occupied.Get(idx)
}

func (b *HashTableBucketPage[K, V]) SetOccupied(idx int) {
	b.occupied.Set(idx)
}

func (b *HashTableBucketPage[K, V]) IsReadable(idx int) bool {
	return b.readable.Get(idx)
}

func (b *HashTableBucketPage[K, V]) SetReadable(idx int) {
	b.readable.Set(idx)
}

// RemoveAt turns a live slot into a tombstone.
func (b *HashTableBucketPage[K, V]) RemoveAt(idx int) {
	b.readable.Clear(idx)
}

// GetValue collects every live value stored under key.
func (b *HashTableBucketPage[K, V]) GetValue(key K, cmp Comparator[K]) []V {
	var result []V
	for i := 0; i < b.capacity && b.IsOccupied(i); i++ {
		if b.IsReadable(i) && cmp(key, b.KeyAt(i)) == 0 {
			result = append(result, b.ValueAt(i))
		}
	}
	return result
}

// Contains reports whether the exact (key, value) pair is live.
func (b *HashTableBucketPage[K, V]) Contains(key K, value V, cmp Comparator[K]) bool {
	return b.find(key, value, cmp) >= 0
}

func (b *HashTableBucketPage[K, V]) find(key K, value V, cmp Comparator[K]) int {
	for i := 0; i < b.capacity && b.IsOccupied(i); i++ {
		if b.IsReadable(i) && cmp(key, b.KeyAt(i)) == 0 && b.ValueAt(i) == value {
			return i
		}
	}
	return -1
}

// Insert stores (key, value) in the first tombstone, else the first never
// used slot. It fails on an exact duplicate or when no slot is free.
func (b *HashTableBucketPage[K, V]) Insert(key K, value V, cmp Comparator[K]) bool {
	tombstone := -1
	i := 0
	for ; i < b.capacity && b.IsOccupied(i); i++ {
		if !b.IsReadable(i) {
			if tombstone < 0 {
				tombstone = i
			}
			continue
		}
		if cmp(key, b.KeyAt(i)) == 0 && b.ValueAt(i) == value {
			return false
		}
	}

	idx := tombstone
	if idx < 0 {
		if i >= b.capacity {
			return false
		}
		idx = i
		b.SetOccupied(idx)
	}
	b.setAt(idx, key, value)
	b.SetReadable(idx)
	return true
}

// Remove tombstones the slot holding (key, value).
func (b *HashTableBucketPage[K, V]) Remove(key K, value V, cmp Comparator[K]) bool {
	idx := b.find(key, value, cmp)
	if idx < 0 {
		return false
	}
	b.RemoveAt(idx)
	return true
}

// IsFull reports whether every slot holds a live pair.
func (b *HashTableBucketPage[K, V]) IsFull() bool {
	for i := 0; i < b.capacity; i++ {
		if !b.IsOccupied(i) || !b.IsReadable(i) {
			return false
		}
	}
	return true
}

// IsEmpty reports whether no slot holds a live pair.
func (b *HashTableBucketPage[K, V]) IsEmpty() bool {
	return b.NumReadable() == 0
}

func (b *HashTableBucketPage[K, V]) NumReadable() int {
	n := 0
	for i := 0; i < b.capacity && b.IsOccupied(i); i++ {
		if b.IsReadable(i) {
			n++
		}
	}
	return n
}

// OccupiedSize is the length of the occupied prefix, tombstones included.
func (b *HashTableBucketPage[K, V]) OccupiedSize() int {
	n := 0
	for n < b.capacity && b.IsOccupied(n) {
		n++
	}
	return n
}

func (b *HashTableBucketPage[K, V]) String() string {
	size := b.OccupiedSize()
	taken := b.NumReadable()
	return fmt.Sprintf("bucket capacity=%d size=%d taken=%d free=%d", b.capacity, size, taken, size-taken)
}
