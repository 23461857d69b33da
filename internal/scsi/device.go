// Package scsi implements the subset of the SCSI Block Commands set and the
// USB Mass Storage Bulk-Only Transport framing this system needs: INQUIRY,
// READ CAPACITY(10), READ(10) and WRITE(10), grounded on the general BOT/SCSI
// command framing conventions (CBW/CSW, 31/13-byte wrappers) rather than any
// single retrieved file, since no pack repository implements a full BOT
// stack end to end.
package scsi

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
)

// Transport is the byte-oriented channel a Device issues commands over: one
// blocking push for the command/data-out stage, one blocking pull for the
// data-in/status stage. internal/usbms.Channel satisfies this without scsi
// importing it, keeping the block-command layer testable against fakes.
type Transport interface {
	PushBytes(data []byte) error
	PullBytes(dst []byte) error
}

var (
	ErrShortStatus        = fmt.Errorf("scsi: short status response")
	ErrBadStatusSignature = fmt.Errorf("scsi: bad CSW signature")
	ErrCommandFailed      = fmt.Errorf("scsi: command failed")
	ErrPhaseError         = fmt.Errorf("scsi: phase error")
	ErrInvalidDevice      = fmt.Errorf("scsi: malformed device reply")

	// ErrNonBlockMultiple is returned when a buffer length is not a
	// multiple of the device's reported block size.
	ErrNonBlockMultiple = fmt.Errorf("scsi: length is not a multiple of block size")
)

// BufferTooSmallError reports a buffer smaller than one block.
type BufferTooSmallError struct {
	Expected, Actual int
}

func (e *BufferTooSmallError) Error() string {
	return fmt.Sprintf("scsi: buffer too small: need >= %d bytes, got %d", e.Expected, e.Actual)
}

// Device is a SCSI block device reached over a Bulk-Only Transport channel.
// Mirrors SPEC_FULL.md §4.3 / the original's ScsiBlockDevice: learns
// block_size and block_count at construction via INQUIRY + READ CAPACITY,
// then exposes block-granular read/write.
type Device struct {
	transport Transport

	mu        sync.Mutex
	tag       uint32
	blockSize uint32
	numBlocks uint32
}

// Open issues INQUIRY and READ CAPACITY(10) against the transport and
// returns a ready Device, or ErrInvalidDevice on a malformed reply.
func Open(t Transport) (*Device, error) {
	d := &Device{transport: t}
	if err := d.inquiry(); err != nil {
		return nil, err
	}
	if err := d.readCapacity(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Device) nextTag() uint32 {
	d.tag++
	return d.tag
}

// runCommand sends cb as the CDB, transfers dataLen bytes in the given
// direction through buf, and reads back the CSW, failing on a signature
// mismatch or non-zero status.
func (d *Device) runCommand(cb []byte, dir direction, buf []byte) error {
	tag := d.nextTag()
	cbw := commandBlockWrapper{
		tag:     tag,
		dataLen: uint32(len(buf)),
		dir:     dir,
		lun:     0,
		cb:      cb,
	}
	if err := d.transport.PushBytes(cbw.marshal()); err != nil {
		return fmt.Errorf("scsi: send CBW: %w", err)
	}

	if len(buf) > 0 {
		if dir == dirOut {
			if err := d.transport.PushBytes(buf); err != nil {
				return fmt.Errorf("scsi: data-out stage: %w", err)
			}
		} else {
			if err := d.transport.PullBytes(buf); err != nil {
				return fmt.Errorf("scsi: data-in stage: %w", err)
			}
		}
	}

	cswBuf := make([]byte, cswSize)
	if err := d.transport.PullBytes(cswBuf); err != nil {
		return fmt.Errorf("scsi: receive CSW: %w", err)
	}
	csw, err := unmarshalCSW(cswBuf)
	if err != nil {
		return err
	}
	if csw.tag != tag {
		return fmt.Errorf("scsi: CSW tag mismatch: sent %d, got %d", tag, csw.tag)
	}
	switch csw.status {
	case cswStatusOK:
		return nil
	case cswStatusFailed:
		return ErrCommandFailed
	default:
		return ErrPhaseError
	}
}

func (d *Device) inquiry() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	const allocLen = 36
	cdb := []byte{0x12, 0, 0, 0, allocLen, 0}
	resp := make([]byte, allocLen)
	if err := d.runCommand(cdb, dirIn, resp); err != nil {
		return fmt.Errorf("scsi: INQUIRY: %w", err)
	}
	peripheralQualifier := resp[0] >> 5
	if peripheralQualifier != 0 {
		return fmt.Errorf("%w: peripheral qualifier %d", ErrInvalidDevice, peripheralQualifier)
	}
	return nil
}

func (d *Device) readCapacity() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	cdb := make([]byte, 10)
	cdb[0] = 0x25
	resp := make([]byte, 8)
	if err := d.runCommand(cdb, dirIn, resp); err != nil {
		return fmt.Errorf("scsi: READ CAPACITY(10): %w", err)
	}
	lastLBA := binary.BigEndian.Uint32(resp[0:4])
	blockLen := binary.BigEndian.Uint32(resp[4:8])
	if blockLen == 0 {
		return fmt.Errorf("%w: zero block length", ErrInvalidDevice)
	}
	d.blockSize = blockLen
	d.numBlocks = lastLBA + 1
	return nil
}

// BlockSize returns the device-reported block size (512 or 4096).
func (d *Device) BlockSize() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.blockSize
}

// NumBlocks returns the device-reported total block count.
func (d *Device) NumBlocks() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.numBlocks
}

// Read issues READ(10) for len(buf)/BlockSize() blocks starting at lba,
// filling buf. len(buf) must be a positive multiple of BlockSize(). Returns
// io.ErrUnexpectedEOF, never a SCSI command failure, when lba is at or past
// the device's reported block count: internal/blockdev relies on this to
// tell "no more blocks" apart from a real transport error.
func (d *Device) Read(lba uint32, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkBufLocked(buf); err != nil {
		return err
	}
	if lba >= d.numBlocks {
		return io.ErrUnexpectedEOF
	}
	numBlocks := uint16(len(buf) / int(d.blockSize))
	cdb := make([]byte, 10)
	cdb[0] = 0x28
	binary.BigEndian.PutUint32(cdb[2:6], lba)
	binary.BigEndian.PutUint16(cdb[7:9], numBlocks)
	if err := d.runCommand(cdb, dirIn, buf); err != nil {
		return fmt.Errorf("scsi: READ(10): %w", err)
	}
	return nil
}

// Write issues WRITE(10) for len(buf)/BlockSize() blocks starting at lba,
// from buf. len(buf) must be a positive multiple of BlockSize().
func (d *Device) Write(lba uint32, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkBufLocked(buf); err != nil {
		return err
	}
	numBlocks := uint16(len(buf) / int(d.blockSize))
	cdb := make([]byte, 10)
	cdb[0] = 0x2A
	binary.BigEndian.PutUint32(cdb[2:6], lba)
	binary.BigEndian.PutUint16(cdb[7:9], numBlocks)
	if err := d.runCommand(cdb, dirOut, buf); err != nil {
		return fmt.Errorf("scsi: WRITE(10): %w", err)
	}
	return nil
}

// Ping issues a zero-data TEST UNIT READY command, used as the device
// liveness probe behind mount.IsReady: a still-enumerated, ready device
// acknowledges it with a clean CSW; a disconnected one fails the
// transport round trip entirely.
func (d *Device) Ping() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cdb := make([]byte, 6)
	cdb[0] = 0x00 // TEST UNIT READY
	if err := d.runCommand(cdb, dirOut, nil); err != nil {
		return fmt.Errorf("scsi: TEST UNIT READY: %w", err)
	}
	return nil
}

func (d *Device) checkBufLocked(buf []byte) error {
	if uint32(len(buf)) < d.blockSize {
		return &BufferTooSmallError{Expected: int(d.blockSize), Actual: len(buf)}
	}
	if len(buf)%int(d.blockSize) != 0 {
		return ErrNonBlockMultiple
	}
	return nil
}
