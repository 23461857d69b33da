package mbr

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildSector(entries [4]PartitionEntry, badSuffix bool) []byte {
	buf := make([]byte, 512)
	for i, e := range entries {
		off := pteOffset + i*pteLen
		buf[off] = e.Status
		buf[off+4] = e.TypeTag
		binary.LittleEndian.PutUint32(buf[off+8:off+12], e.StartLBA)
		binary.LittleEndian.PutUint32(buf[off+12:off+16], e.SectorCount)
	}
	if badSuffix {
		buf[510], buf[511] = 0x00, 0x00
	} else {
		buf[510], buf[511] = 0x55, 0xAA
	}
	return buf
}

func TestParseFat32LBAEntry(t *testing.T) {
	var entries [4]PartitionEntry
	entries[0] = PartitionEntry{Status: 0x80, TypeTag: 0x0C, StartLBA: 2048, SectorCount: 204800}
	buf := buildSector(entries, false)

	// 0x0C is the LBA-addressed FAT32 type byte; partitionTypeFromByte maps
	// it to Fat32 and reserves Fat32Lba for 0x0E.
	out, err := Parse(buf)
	require.NoError(t, err)
	require.Equal(t, Fat32, out.Partitions[0].Type)
	require.Equal(t, uint32(2048), out.Partitions[0].StartLBA)
	require.Equal(t, uint32(204800), out.Partitions[0].SectorCount)
}

func TestParseRejectsBadSuffix(t *testing.T) {
	var entries [4]PartitionEntry
	buf := buildSector(entries, true)
	_, err := Parse(buf)
	require.Error(t, err)
	var suffixErr *InvalidMBRSuffixError
	require.ErrorAs(t, err, &suffixErr)
}

func TestParseRejectsShortBuffer(t *testing.T) {
	_, err := Parse(make([]byte, 100))
	require.ErrorIs(t, err, ErrBufferWrongSize)
}

func TestPartitionTypeMapping(t *testing.T) {
	cases := map[byte]PartitionType{
		0x01: Fat12,
		0x04: Fat16,
		0x06: Fat16,
		0x0B: Fat32,
		0x0C: Fat32,
		0x0E: Fat32Lba,
		0x07: Unknown, // NTFS/exFAT, unsupported here
		0x83: Unknown, // Linux
	}
	for tag, want := range cases {
		require.Equal(t, want, partitionTypeFromByte(tag), "tag 0x%02x", tag)
	}
}
