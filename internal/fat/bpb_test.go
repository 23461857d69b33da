package fat

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildBPB fabricates a syntactically valid boot sector with the given
// BPB fields; only the fields parseBPB reads are populated, the data
// region past the BPB is left zeroed since parseBPB never inspects it.
func buildBPB(bytesPerSector uint16, sectorsPerCluster uint8, reservedSectors uint16, numFATs uint8, rootEntCount uint16, fatSizeSectors uint32, totalSectors uint32) []byte {
	buf := make([]byte, 512)
	binary.LittleEndian.PutUint16(buf[offBytsPerSec:], bytesPerSector)
	buf[offSecPerClus] = sectorsPerCluster
	binary.LittleEndian.PutUint16(buf[offRsvdSecCnt:], reservedSectors)
	buf[offNumFATs] = numFATs
	binary.LittleEndian.PutUint16(buf[offRootEntCnt:], rootEntCount)

	if fatSizeSectors <= 0xFFFF {
		binary.LittleEndian.PutUint16(buf[offFATSz16:], uint16(fatSizeSectors))
	} else {
		binary.LittleEndian.PutUint32(buf[offFATSz32:], fatSizeSectors)
	}
	if totalSectors <= 0xFFFF {
		binary.LittleEndian.PutUint16(buf[offTotSec16:], uint16(totalSectors))
	} else {
		binary.LittleEndian.PutUint32(buf[offTotSec32:], totalSectors)
	}
	buf[510], buf[511] = 0x55, 0xAA
	return buf
}

func TestParseBPBRejectsShortSector(t *testing.T) {
	_, err := parseBPB(make([]byte, 100))
	require.Error(t, err)
}

func TestParseBPBRejectsBadSignature(t *testing.T) {
	buf := buildBPB(512, 1, 1, 1, 16, 1, 23)
	buf[510], buf[511] = 0, 0
	_, err := parseBPB(buf)
	require.Error(t, err)
}

func TestParseBPBRejectsImplausibleFields(t *testing.T) {
	buf := buildBPB(0, 1, 1, 1, 16, 1, 23)
	_, err := parseBPB(buf)
	require.Error(t, err)
}

func TestFATTypeThresholds(t *testing.T) {
	// FAT12: countOfClusters < 4085.
	small := buildBPB(512, 1, 1, 1, 16, 1, 23)
	b, err := parseBPB(small)
	require.NoError(t, err)
	require.Equal(t, Fat12, b.fsType)

	// FAT16: 4085 <= countOfClusters < 65525. firstDataSector = 1+1*x+1.
	// Pick fatSizeSectors covering 40000 clusters*2 bytes / 512 and
	// 50000 data sectors, which lands in the FAT16 band.
	fatSz16 := uint32(40000*2/512 + 1)
	total16 := uint32(1) + 1*fatSz16 + 1 + 50000
	mid := buildBPB(512, 1, 1, 1, 16, fatSz16, total16)
	b, err = parseBPB(mid)
	require.NoError(t, err)
	require.Equal(t, Fat16, b.fsType)
	require.GreaterOrEqual(t, b.countOfClusters, uint32(4085))
	require.Less(t, b.countOfClusters, uint32(65525))

	// FAT32: countOfClusters >= 65525.
	fatSz32 := uint32(70000*4/512 + 1)
	total32 := uint32(1) + 1*fatSz32 + 70000
	large := buildBPB(512, 1, 1, 1, 0, fatSz32, total32)
	binary.LittleEndian.PutUint32(large[offRootClus32:], 2)
	b, err = parseBPB(large)
	require.NoError(t, err)
	require.Equal(t, Fat32, b.fsType)
	require.Equal(t, uint32(2), b.rootCluster)
}

func TestBPBGeometryHelpers(t *testing.T) {
	buf := buildBPB(512, 4, 1, 2, 16, 3, 1000)
	b, err := parseBPB(buf)
	require.NoError(t, err)

	require.Equal(t, int64(512), b.fatRegionOffset())
	require.Equal(t, int64(512*3), b.fatRegionSize())
	require.Equal(t, int64(512+2*512*3), b.rootDirOffset())
	require.Equal(t, int64(512), b.rootDirSize()) // 16 entries * 32 bytes = 512
	require.Equal(t, int64(4*512), b.clusterSize())

	firstDataSector := b.firstDataSector
	require.Equal(t, firstDataSector, b.firstSectorOfCluster(2))
	require.Equal(t, int64(firstDataSector)*512, b.byteOffsetOfCluster(2))
}
