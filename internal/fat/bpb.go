// Package fat implements the FAT filesystem adaptor this system needs:
// enough of FAT12/16/32 to open/create files and directories, read, write,
// seek, truncate and iterate, bridging a byte-addressable blockdev.Device
// to the uniform interfaces in internal/fat/interfaces.go.
//
// No library in the retrieval pack exposes a sufficient public surface for
// this (see SPEC_FULL.md's "FAT: resolving the assumed library" section),
// so this is an original engine, grounded on soypat/fat's BPB field layout
// (tables.go) and BlockDevice interface shape (fat.go), and on the original
// Rust implementation's FileSystemOps/DirectoryOps/FileOps trait shapes.
package fat

import (
	"encoding/binary"
	"fmt"
)

// BIOS Parameter Block field offsets, named after soypat/fat's tables.go.
const (
	offBytsPerSec  = 11
	offSecPerClus  = 13
	offRsvdSecCnt  = 14
	offNumFATs     = 16
	offRootEntCnt  = 17
	offTotSec16    = 19
	offFATSz16     = 22
	offTotSec32    = 32
	offBS55AA      = 510

	// FAT32 extended BPB.
	offFATSz32    = 36
	offRootClus32 = 44
)

const sizeDirEntry = 32

// Type identifies which FAT variant a mounted volume uses.
type Type int

const (
	Unknown Type = iota
	Fat12
	Fat16
	Fat32
)

func (t Type) String() string {
	switch t {
	case Fat12:
		return "FAT12"
	case Fat16:
		return "FAT16"
	case Fat32:
		return "FAT32"
	default:
		return "unknown"
	}
}

// bpb is the parsed BIOS Parameter Block of a mounted volume.
type bpb struct {
	bytesPerSector    uint16
	sectorsPerCluster uint8
	reservedSectors   uint16
	numFATs           uint8
	rootEntCount      uint16
	fatSizeSectors    uint32
	totalSectors      uint32
	rootCluster       uint32 // FAT32 only
	fsType            Type

	rootDirSectors  uint32
	firstDataSector uint32
	countOfClusters uint32
}

func parseBPB(sector []byte) (bpb, error) {
	if len(sector) < 512 {
		return bpb{}, fmt.Errorf("fat: boot sector shorter than 512 bytes")
	}
	// On-disk signature bytes are 0x55, 0xAA in that order; read as a
	// little-endian uint16 that is 0xAA55.
	if binary.LittleEndian.Uint16(sector[offBS55AA:offBS55AA+2]) != 0xAA55 {
		return bpb{}, fmt.Errorf("fat: boot sector missing 0x55AA signature")
	}

	b := bpb{
		bytesPerSector:    binary.LittleEndian.Uint16(sector[offBytsPerSec : offBytsPerSec+2]),
		sectorsPerCluster: sector[offSecPerClus],
		reservedSectors:   binary.LittleEndian.Uint16(sector[offRsvdSecCnt : offRsvdSecCnt+2]),
		numFATs:           sector[offNumFATs],
		rootEntCount:      binary.LittleEndian.Uint16(sector[offRootEntCnt : offRootEntCnt+2]),
	}
	if b.bytesPerSector == 0 || b.sectorsPerCluster == 0 || b.numFATs == 0 {
		return bpb{}, fmt.Errorf("fat: implausible BPB (bytes/sector=%d sectors/cluster=%d numFATs=%d)",
			b.bytesPerSector, b.sectorsPerCluster, b.numFATs)
	}

	fatSz16 := binary.LittleEndian.Uint16(sector[offFATSz16 : offFATSz16+2])
	if fatSz16 != 0 {
		b.fatSizeSectors = uint32(fatSz16)
	} else {
		b.fatSizeSectors = binary.LittleEndian.Uint32(sector[offFATSz32 : offFATSz32+4])
	}

	totSec16 := binary.LittleEndian.Uint16(sector[offTotSec16 : offTotSec16+2])
	if totSec16 != 0 {
		b.totalSectors = uint32(totSec16)
	} else {
		b.totalSectors = binary.LittleEndian.Uint32(sector[offTotSec32 : offTotSec32+4])
	}

	b.rootDirSectors = (uint32(b.rootEntCount)*sizeDirEntry + uint32(b.bytesPerSector) - 1) / uint32(b.bytesPerSector)
	b.firstDataSector = uint32(b.reservedSectors) + uint32(b.numFATs)*b.fatSizeSectors + b.rootDirSectors

	dataSectors := b.totalSectors - b.firstDataSector
	b.countOfClusters = dataSectors / uint32(b.sectorsPerCluster)

	switch {
	case b.countOfClusters < 4085:
		b.fsType = Fat12
	case b.countOfClusters < 65525:
		b.fsType = Fat16
	default:
		b.fsType = Fat32
		b.rootCluster = binary.LittleEndian.Uint32(sector[offRootClus32 : offRootClus32+4])
	}
	return b, nil
}

// clusterSize is the number of data bytes one cluster holds.
func (b bpb) clusterSize() int64 {
	return int64(b.bytesPerSector) * int64(b.sectorsPerCluster)
}

// firstSectorOfCluster returns the absolute sector number of cluster n's
// first sector. n must be >= 2 (0 and 1 are reserved FAT entries).
func (b bpb) firstSectorOfCluster(n uint32) uint32 {
	return b.firstDataSector + (n-2)*uint32(b.sectorsPerCluster)
}

// byteOffsetOfCluster returns the byte offset, from the start of the
// volume, of cluster n's first byte.
func (b bpb) byteOffsetOfCluster(n uint32) int64 {
	return int64(b.firstSectorOfCluster(n)) * int64(b.bytesPerSector)
}

// fatRegionOffset returns the byte offset of the first (primary) FAT.
func (b bpb) fatRegionOffset() int64 {
	return int64(b.reservedSectors) * int64(b.bytesPerSector)
}

// fatRegionSize returns the size in bytes of one FAT copy.
func (b bpb) fatRegionSize() int64 {
	return int64(b.fatSizeSectors) * int64(b.bytesPerSector)
}

// rootDirOffset returns the byte offset of the fixed-size root directory
// region. Only meaningful for FAT12/16 (FAT32's root is a cluster chain).
func (b bpb) rootDirOffset() int64 {
	return b.fatRegionOffset() + int64(b.numFATs)*b.fatRegionSize()
}

// rootDirSize returns the size in bytes of the fixed-size root directory
// region. Only meaningful for FAT12/16.
func (b bpb) rootDirSize() int64 {
	return int64(b.rootDirSectors) * int64(b.bytesPerSector)
}
