package page

// Bitset is a view over a packed little-endian bit array: bit i lives in
// byte i/8 at position i%8.
type Bitset []byte

// BitsetBytes is the number of bytes needed for n bits.
func BitsetBytes(n int) int {
	return (n + 7) / 8
}

func (b Bitset) Get(i int) bool {
	return b[i>>3]&(1<<(i&7)) != 0
}

func (b Bitset) Set(i int) {
	b[i>>3] |= 1 << (i & 7)
}

func (b Bitset) Clear(i int) {
	b[i>>3] &^= 1 << (i & 7)
}
