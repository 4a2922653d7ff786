package page

import (
	"encoding/binary"
	"fmt"
)

// Codec encodes fixed-width values into page slots.
type Codec[T any] interface {
	Size() int
	Encode(dst []byte, v T)
	Decode(src []byte) T
}

// RID addresses a tuple: the heap page holding it and its slot number.
type RID struct {
	PageID  PageID
	SlotNum uint32
}

func (r RID) String() string {
	return fmt.Sprintf("(%d,%d)", r.PageID, r.SlotNum)
}

type Int32Codec struct{}

func (Int32Codec) Size() int { return 4 }

func (Int32Codec) Encode(dst []byte, v int32) {
	binary.LittleEndian.PutUint32(dst, uint32(v))
}

func (Int32Codec) Decode(src []byte) int32 {
	return int32(binary.LittleEndian.Uint32(src))
}

type Int64Codec struct{}

func (Int64Codec) Size() int { return 8 }

func (Int64Codec) Encode(dst []byte, v int64) {
	binary.LittleEndian.PutUint64(dst, uint64(v))
}

func (Int64Codec) Decode(src []byte) int64 {
	return int64(binary.LittleEndian.Uint64(src))
}

type RIDCodec struct{}

func (RIDCodec) Size() int { return 8 }

func (RIDCodec) Encode(dst []byte, v RID) {
	binary.LittleEndian.PutUint32(dst, uint32(v.PageID))
	binary.LittleEndian.PutUint32(dst[4:], v.SlotNum)
}

func (RIDCodec) Decode(src []byte) RID {
	return RID{
		PageID:  PageID(binary.LittleEndian.Uint32(src)),
		SlotNum: binary.LittleEndian.Uint32(src[4:]),
	}
}

// FixedBytesCodec stores byte-string keys zero-padded (or truncated) to a
// fixed width. Decoded keys always have exactly that width.
type FixedBytesCodec struct {
	width int
}

func NewFixedBytesCodec(width int) FixedBytesCodec {
	if width <= 0 {
		panic(fmt.Sprintf("fixed key width must be positive, got %d", width))
	}
	return FixedBytesCodec{width: width}
}

func (c FixedBytesCodec) Size() int { return c.width }

func (c FixedBytesCodec) Encode(dst []byte, v []byte) {
	n := copy(dst[:c.width], v)
	clear(dst[n:c.width])
}

func (c FixedBytesCodec) Decode(src []byte) []byte {
	out := make([]byte, c.width)
	copy(out, src[:c.width])
	return out
}
