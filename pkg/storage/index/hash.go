package index

import (
	"bytes"
	"cmp"

	"github.com/cespare/xxhash/v2"

	"pagestore/pkg/storage/page"
)

// HashFunc maps a key to the 32 bits the directory indexes on.
type HashFunc[K any] func(key K) uint32

// NewDefaultHash hashes the key's encoded bytes with xxhash and keeps the
// low 32 bits.
func NewDefaultHash[K any](keys page.Codec[K]) HashFunc[K] {
	size := keys.Size()
	return func(key K) uint32 {
		buf := make([]byte, size)
		keys.Encode(buf, key)
		return uint32(xxhash.Sum64(buf))
	}
}

// OrderedComparator compares any ordered type.
func OrderedComparator[K cmp.Ordered]() page.Comparator[K] {
	return cmp.Compare[K]
}

// BytesComparator compares byte-string keys lexicographically.
func BytesComparator(a, b []byte) int {
	return bytes.Compare(a, b)
}
