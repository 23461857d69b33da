package fat

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

// Raw 32-byte directory entry field offsets.
const (
	deOffName      = 0
	deOffAttr      = 11
	deOffFirstHi   = 20
	deOffFirstLo   = 26
	deOffFileSize  = 28

	attrReadOnly = 0x01
	attrHidden   = 0x02
	attrSystem   = 0x04
	attrVolumeID = 0x08
	attrDirectory = 0x10
	attrArchive  = 0x20
	attrLongName = attrReadOnly | attrHidden | attrSystem | attrVolumeID

	deFree    = 0xE5
	deEndMark = 0x00
)

// DirEntryType is the type carried by a directory entry, named after
// original_source/src/filesystem.rs's enumeration rather than the subset
// FAT itself distinguishes. Its values are plain sequential constants, not
// POSIX type nibbles, and carry no permission bits (FAT only knows file-or-dir; the
// richer enum exists so callers built against a general filesystem API see
// a stable, familiar vocabulary).
type DirEntryType int

const (
	TypeUnknown DirEntryType = iota
	TypeRegularFile
	TypeDirectory
	TypeSymlink
	TypeBlockDevice
	TypeCharDevice
	TypeFifo
	TypeSocket
)

func (t DirEntryType) String() string {
	switch t {
	case TypeRegularFile:
		return "file"
	case TypeDirectory:
		return "directory"
	case TypeSymlink:
		return "symlink"
	case TypeBlockDevice:
		return "block-device"
	case TypeCharDevice:
		return "char-device"
	case TypeFifo:
		return "fifo"
	case TypeSocket:
		return "socket"
	default:
		return "unknown"
	}
}

// DirEntryData is the information a directory iteration step or stat
// returns about one child. FAT itself can only ever populate
// TypeRegularFile or TypeDirectory; the richer enum exists for symmetry
// with the general-purpose Dir/DirIter contracts in interfaces.go.
type DirEntryData struct {
	Name        string
	LengthBytes uint64
	Flags       DirEntryType
}

// rawDirEntry is the decoded form of one 32-byte on-disk slot.
type rawDirEntry struct {
	name         string // 8.3, already de-padded, upper-cased as stored
	attr         byte
	firstCluster uint32
	fileSize     uint32
	free         bool
	end          bool
}

func decodeDirEntry(buf []byte) rawDirEntry {
	if buf[deOffName] == deEndMark {
		return rawDirEntry{end: true}
	}
	if buf[deOffName] == deFree {
		return rawDirEntry{free: true}
	}
	attr := buf[deOffAttr]
	name := decodeShortName(buf[deOffName : deOffName+11])
	hi := binary.LittleEndian.Uint16(buf[deOffFirstHi : deOffFirstHi+2])
	lo := binary.LittleEndian.Uint16(buf[deOffFirstLo : deOffFirstLo+2])
	cluster := uint32(hi)<<16 | uint32(lo)
	size := binary.LittleEndian.Uint32(buf[deOffFileSize : deOffFileSize+4])
	return rawDirEntry{name: name, attr: attr, firstCluster: cluster, fileSize: size}
}

func encodeDirEntry(e rawDirEntry) []byte {
	buf := make([]byte, sizeDirEntry)
	if e.end {
		return buf
	}
	if e.free {
		buf[deOffName] = deFree
		return buf
	}
	copy(buf[deOffName:deOffName+11], encodeShortName(e.name))
	buf[deOffAttr] = e.attr
	binary.LittleEndian.PutUint16(buf[deOffFirstHi:deOffFirstHi+2], uint16(e.firstCluster>>16))
	binary.LittleEndian.PutUint16(buf[deOffFirstLo:deOffFirstLo+2], uint16(e.firstCluster))
	binary.LittleEndian.PutUint32(buf[deOffFileSize:deOffFileSize+4], e.fileSize)
	return buf
}

func (e rawDirEntry) isDirectory() bool { return e.attr&attrDirectory != 0 }

func (e rawDirEntry) toData() DirEntryData {
	t := TypeRegularFile
	if e.isDirectory() {
		t = TypeDirectory
	}
	return DirEntryData{Name: shortNameToDisplay(e.name), LengthBytes: uint64(e.fileSize), Flags: t}
}

// encodeShortName packs a display-form name (e.g. "readme.txt") into the
// fixed 11-byte 8.3 field (8 name bytes, 3 extension bytes, space-padded).
// Long filenames are out of scope (DESIGN.md, C6): names longer than
// 8.3 are truncated, matching the simplest real FAT drivers' fallback
// behavior rather than generating a numeric tail (~1).
func encodeShortName(display string) []byte {
	out := bytes.Repeat([]byte{' '}, 11)
	upper := strings.ToUpper(display)
	base, ext, _ := strings.Cut(upper, ".")
	if len(base) > 8 {
		base = base[:8]
	}
	if len(ext) > 3 {
		ext = ext[:3]
	}
	copy(out[0:8], base)
	copy(out[8:11], ext)
	return out
}

func decodeShortName(field []byte) string {
	base := strings.TrimRight(string(field[0:8]), " ")
	ext := strings.TrimRight(string(field[8:11]), " ")
	if base == "" {
		return ""
	}
	if ext == "" {
		return base
	}
	return fmt.Sprintf("%s.%s", base, ext)
}

func shortNameToDisplay(stored string) string {
	return strings.ToLower(stored)
}

// validShortName reports whether name can be represented without loss in
// an 8.3 slot; CreateFile/CreateDirectory reject anything else rather than
// silently truncating on write (encodeShortName's truncation only guards
// already-validated names against pathological future callers).
func validShortName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	base, ext, _ := strings.Cut(name, ".")
	if strings.Contains(ext, ".") {
		return false
	}
	return len(base) <= 8 && len(ext) <= 3 && len(base) > 0
}
