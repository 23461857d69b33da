// Package blockdev implements the block-buffered, partition-relative byte
// stream that bridges block-granular SCSI reads/writes to the byte-granular
// Read/Write/Seek a filesystem driver expects. This is the hotspot: it
// mediates arbitrary-granularity byte I/O against a block-granular,
// high-latency, bulk-only transport, and must uphold correctness across
// interleaved reads, writes and seeks without losing or over-flushing
// blocks. Grounded line-for-line on original_source/src/buf_scsi.rs's
// OffsetScsiDevice.
package blockdev

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// BlockDevice is the block-granular device an OffsetDevice buffers against.
// internal/scsi.Device satisfies this. Read must return io.EOF or
// io.ErrUnexpectedEOF when lba names a block at or past the device's
// capacity, so OffsetDevice can tell "no more blocks" apart from a genuine
// transport failure.
type BlockDevice interface {
	BlockSize() uint32
	Read(lba uint32, buf []byte) error
	Write(lba uint32, buf []byte) error
}

// ErrUnsupported is returned by Seek(io.SeekEnd, ...): the core device has
// no notion of partition length, matching the original's
// `unimplemented!()` for SeekFrom::End (SPEC_FULL.md §4.5/§9). Callers that
// need end-relative seeking do it at the FAT File layer, which knows the
// file's logical size.
var ErrUnsupported = errors.New("blockdev: operation not supported")

// ErrInvalidSeek is returned when a Current-relative seek would move the
// cursor before the start of the partition.
var ErrInvalidSeek = errors.New("blockdev: seek before start of partition")

// cacheState is which of Empty/Clean(n)/Dirty(n) the scratch buffer is in,
// per SPEC_FULL.md §4.5's state table.
type cacheState int

const (
	stateEmpty cacheState = iota
	stateClean
	stateDirty
)

// OffsetDevice is a byte-addressable io.ReadWriteSeeker over a BlockDevice,
// relative to a partition's starting byte offset. At most one block is
// cached at a time.
type OffsetDevice struct {
	mu sync.Mutex

	device BlockDevice
	blockSize int64

	partitionStart int64 // fixed at construction
	cursor         int64 // partition-relative logical position

	scratch       []byte
	state         cacheState
	loadedBlockNo int64
}

// New constructs an OffsetDevice over device, whose logical stream starts
// partitionStartBytes into the underlying block device.
func New(device BlockDevice, partitionStartBytes int64) *OffsetDevice {
	bs := int64(device.BlockSize())
	return &OffsetDevice{
		device:         device,
		blockSize:      bs,
		partitionStart: partitionStartBytes,
		scratch:        make([]byte, bs),
		state:          stateEmpty,
	}
}

func (d *OffsetDevice) rawPos() int64 {
	return d.partitionStart + d.cursor
}

func (d *OffsetDevice) currentBlock() int64 {
	return d.rawPos() / d.blockSize
}

func (d *OffsetDevice) offsetInBlock() int64 {
	return d.rawPos() % d.blockSize
}

// fillBuf ensures the scratch buffer holds the block containing the
// current cursor position, flushing a dirty block under it first if
// necessary, and returns a view into the scratch buffer from the current
// in-block offset onward. An empty returned slice means the cursor is at
// or past the end of the device (the caller surfaces this as a short
// read/write, never an error).
func (d *OffsetDevice) fillBuf() ([]byte, error) {
	want := d.currentBlock()
	switch d.state {
	case stateDirty:
		if d.loadedBlockNo != want {
			if err := d.device.Write(uint32(d.loadedBlockNo), d.scratch); err != nil {
				return nil, fmt.Errorf("blockdev: flush block %d: %w", d.loadedBlockNo, err)
			}
			d.state = stateEmpty
		}
	case stateClean:
		if d.loadedBlockNo != want {
			d.state = stateEmpty
		}
	}

	if d.state == stateEmpty {
		if err := d.device.Read(uint32(want), d.scratch); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, nil
			}
			return nil, fmt.Errorf("blockdev: load block %d: %w", want, err)
		}
		d.loadedBlockNo = want
		d.state = stateClean
	}

	off := d.offsetInBlock()
	if off >= d.blockSize {
		return nil, nil
	}
	return d.scratch[off:], nil
}

// Read implements io.Reader. A byte-by-byte consumer would satisfy the
// contract; this instead copies whole view slices per fill, which is the
// "correct implementation transfers contiguous view slices" variant
// SPEC_FULL.md §4.5 calls out as preferred over the original's
// byte-by-byte loop.
func (d *OffsetDevice) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	total := 0
	for total < len(p) {
		view, err := d.fillBuf()
		if err != nil {
			return total, err
		}
		if len(view) == 0 {
			break
		}
		n := copy(p[total:], view)
		d.cursor += int64(n)
		total += n
	}
	if total == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return total, nil
}

// Write implements io.Writer. Only marks the cached block dirty when the
// written bytes actually differ from what's cached (write-elision, per
// SPEC_FULL.md §4.5 — optional but permitted; the invariant "dirty implies
// scratch differs from device" holds either way).
func (d *OffsetDevice) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	total := 0
	for total < len(p) {
		view, err := d.fillBuf()
		if err != nil {
			return total, err
		}
		if len(view) == 0 {
			break
		}
		n := len(p[total:])
		if n > len(view) {
			n = len(view)
		}
		changed := false
		for i := 0; i < n; i++ {
			if view[i] != p[total+i] {
				changed = true
				break
			}
		}
		copy(view[:n], p[total:total+n])
		if changed {
			d.state = stateDirty
		}
		d.cursor += int64(n)
		total += n
	}
	if total < len(p) {
		return total, io.ErrShortWrite
	}
	return total, nil
}

// Flush writes the cached block back if dirty. A no-op otherwise, and
// idempotent: two consecutive flushes issue at most one SCSI write.
func (d *OffsetDevice) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flushLocked()
}

func (d *OffsetDevice) flushLocked() error {
	if d.state != stateDirty {
		return nil
	}
	if err := d.device.Write(uint32(d.loadedBlockNo), d.scratch); err != nil {
		return fmt.Errorf("blockdev: flush block %d: %w", d.loadedBlockNo, err)
	}
	d.state = stateClean
	return nil
}

// Seek implements io.Seeker. Seek never touches the device; it only moves
// the logical cursor. The next Read/Write/Flush reloads/flushes as needed.
// io.SeekEnd is unsupported at this layer (see ErrUnsupported).
func (d *OffsetDevice) Seek(offset int64, whence int) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch whence {
	case io.SeekStart:
		if offset < 0 {
			return d.cursor, ErrInvalidSeek
		}
		d.cursor = offset
	case io.SeekCurrent:
		next := d.cursor + offset
		if next < 0 {
			return d.cursor, ErrInvalidSeek
		}
		d.cursor = next
	case io.SeekEnd:
		return d.cursor, ErrUnsupported
	default:
		return d.cursor, fmt.Errorf("blockdev: invalid whence %d", whence)
	}
	return d.cursor, nil
}

// Close flushes any dirty block. Go has no destructor equivalent to the
// original's Drop impl; callers that own an OffsetDevice must Close it
// explicitly (internal/mount's Unmount does).
func (d *OffsetDevice) Close() error {
	return d.Flush()
}
