package scsi

import "encoding/binary"

// Bulk-Only Transport framing constants (USB Mass Storage Class Bulk-Only
// Transport, §3). CBW/CSW sizes and magic numbers are fixed by that spec,
// not by this repository's domain.
const (
	cbwSignature = 0x43425355 // "USBC"
	cswSignature = 0x53425355 // "USBS"
	cbwSize      = 31
	cswSize      = 13

	cbwFlagDataIn = 0x80
)

// direction of the data stage of a command, as encoded in CBW bit 7 of the
// flags byte.
type direction uint8

const (
	dirOut direction = 0
	dirIn  direction = 1
)

// commandBlockWrapper is the 31-byte CBW prefixing every command sent to
// the device over the OUT endpoint.
type commandBlockWrapper struct {
	tag           uint32
	dataLen       uint32
	dir           direction
	lun           uint8
	cb            []byte // 1..16 bytes, the SCSI command descriptor block
}

func (c commandBlockWrapper) marshal() []byte {
	buf := make([]byte, cbwSize)
	binary.LittleEndian.PutUint32(buf[0:4], cbwSignature)
	binary.LittleEndian.PutUint32(buf[4:8], c.tag)
	binary.LittleEndian.PutUint32(buf[8:12], c.dataLen)
	if c.dir == dirIn {
		buf[12] = cbwFlagDataIn
	}
	buf[13] = c.lun
	buf[14] = byte(len(c.cb))
	copy(buf[15:15+len(c.cb)], c.cb)
	return buf
}

// commandStatusWrapper is the 13-byte CSW the device returns over the IN
// endpoint after the data stage completes.
type commandStatusWrapper struct {
	tag      uint32
	residue  uint32
	status   uint8
}

const (
	cswStatusOK        = 0
	cswStatusFailed    = 1
	cswStatusPhaseErr  = 2
)

func unmarshalCSW(buf []byte) (commandStatusWrapper, error) {
	if len(buf) < cswSize {
		return commandStatusWrapper{}, ErrShortStatus
	}
	sig := binary.LittleEndian.Uint32(buf[0:4])
	if sig != cswSignature {
		return commandStatusWrapper{}, ErrBadStatusSignature
	}
	return commandStatusWrapper{
		tag:     binary.LittleEndian.Uint32(buf[4:8]),
		residue: binary.LittleEndian.Uint32(buf[8:12]),
		status:  buf[12],
	}, nil
}
