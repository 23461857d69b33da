// Package usbms implements the USB Mass Storage Bulk-Only transport: page
// aligned scratch buffers and the bulk channel built on top of a claimed
// MSC interface.
package usbms

import "fmt"

// PageAlignment is the alignment USB bulk transfers are bounced through.
// gousb (and the host controllers beneath it) want transfer buffers sized
// to a multiple of this value for reliable DMA.
const PageAlignment = 0x1000

// AlignedBuffer is a zeroed byte buffer whose backing length is always a
// multiple of PageAlignment, with views of both the originally requested
// size and the rounded-up aligned size. Modeled on the original
// implementation's AlignedBuffer (aligned_slice.rs), adapted to Go: slices
// carry no raw-pointer/Drop story, so the invariant this type actually
// enforces is size alignment, which is what the bulk transfer layer needs.
type AlignedBuffer struct {
	requested int
	aligned   int
	data      []byte
}

// NewAlignedBuffer allocates a zeroed buffer able to hold at least `size`
// bytes, rounded up to the next multiple of PageAlignment.
func NewAlignedBuffer(size int) (*AlignedBuffer, error) {
	if size < 0 {
		return nil, fmt.Errorf("usbms: negative buffer size %d", size)
	}
	aligned := alignUp(size, PageAlignment)
	return &AlignedBuffer{
		requested: size,
		aligned:   aligned,
		data:      make([]byte, aligned),
	}, nil
}

func alignUp(size, align int) int {
	if size == 0 {
		return align
	}
	rem := size % align
	if rem == 0 {
		return size
	}
	return size + (align - rem)
}

// Slice returns a view of exactly the originally requested size.
func (b *AlignedBuffer) Slice() []byte {
	return b.data[:b.requested]
}

// AlignedSlice returns a view of the full rounded-up aligned size.
func (b *AlignedBuffer) AlignedSlice() []byte {
	return b.data
}

// Len returns the originally requested size.
func (b *AlignedBuffer) Len() int {
	return b.requested
}

// AlignedLen returns the rounded-up aligned size.
func (b *AlignedBuffer) AlignedLen() int {
	return b.aligned
}
