package mount

import (
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ischeinkman/nx-fatdrive/internal/fat"
	"github.com/ischeinkman/nx-fatdrive/internal/handles"
	"github.com/ischeinkman/nx-fatdrive/internal/scsi"
)

// resetState clears every guarded section so tests don't leak state into
// each other; it bypasses the lock since tests run single-threaded.
func resetState(t *testing.T) {
	t.Helper()
	usbState = nil
	usbSection = guardedSection{}
	fsState = nil
	fsSection = guardedSection{}
	handlesState = nil
	handlesSection = guardedSection{}
}

// memDevice is a minimal in-memory fat.Device, standing in for a mounted
// partition's byte stream without needing a real blockdev.OffsetDevice.
type memDevice struct {
	data []byte
	pos  int64
}

func (d *memDevice) Read(p []byte) (int, error) {
	if d.pos >= int64(len(d.data)) {
		return 0, io.EOF
	}
	n := copy(p, d.data[d.pos:])
	d.pos += int64(n)
	return n, nil
}

func (d *memDevice) Write(p []byte) (int, error) {
	end := d.pos + int64(len(p))
	if end > int64(len(d.data)) {
		return 0, io.ErrShortWrite
	}
	copy(d.data[d.pos:end], p)
	d.pos = end
	return len(p), nil
}

func (d *memDevice) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		d.pos = offset
	case io.SeekCurrent:
		d.pos += offset
	case io.SeekEnd:
		d.pos = int64(len(d.data)) + offset
	}
	return d.pos, nil
}

// minimalFAT12Image builds just enough of a boot sector for fat.FromDevice
// to mount successfully; field offsets mirror internal/fat's own test
// fixture.
func minimalFAT12Image(t *testing.T) *memDevice {
	t.Helper()
	const (
		offBytsPerSec = 11
		offSecPerClus = 13
		offRsvdSecCnt = 14
		offNumFATs    = 16
		offRootEntCnt = 17
		offFATSz16    = 22
		offTotSec16   = 19

		bytesPerSector  = 512
		totalSectors    = 23
	)
	buf := make([]byte, totalSectors*bytesPerSector)
	binary.LittleEndian.PutUint16(buf[offBytsPerSec:], bytesPerSector)
	buf[offSecPerClus] = 1
	binary.LittleEndian.PutUint16(buf[offRsvdSecCnt:], 1)
	buf[offNumFATs] = 1
	binary.LittleEndian.PutUint16(buf[offRootEntCnt:], 16)
	binary.LittleEndian.PutUint16(buf[offFATSz16:], 1)
	binary.LittleEndian.PutUint16(buf[offTotSec16:], totalSectors)
	buf[510], buf[511] = 0x55, 0xAA
	return &memDevice{data: buf}
}

// fakeTransport answers INQUIRY, READ CAPACITY(10) and TEST UNIT READY over
// the scsi.Transport interface without any real USB hardware.
type fakeTransport struct {
	lastTag    uint32
	lastOpcode byte
	blockSize  uint32
	numBlocks  uint32
	failReady  bool
}

func (f *fakeTransport) PushBytes(data []byte) error {
	if len(data) == 31 {
		f.lastTag = binary.LittleEndian.Uint32(data[4:8])
		f.lastOpcode = data[15]
	}
	return nil
}

func (f *fakeTransport) PullBytes(dst []byte) error {
	switch len(dst) {
	case 36: // INQUIRY
		dst[0] = 0
	case 8: // READ CAPACITY(10)
		binary.BigEndian.PutUint32(dst[0:4], f.numBlocks-1)
		binary.BigEndian.PutUint32(dst[4:8], f.blockSize)
	case 13: // CSW
		binary.LittleEndian.PutUint32(dst[0:4], 0x53425355)
		binary.LittleEndian.PutUint32(dst[4:8], f.lastTag)
		status := byte(0)
		if f.lastOpcode == 0x00 && f.failReady {
			status = 1
		}
		dst[12] = status
	}
	return nil
}

func newFakeDevice(t *testing.T, failReady bool) *scsi.Device {
	t.Helper()
	transport := &fakeTransport{blockSize: 512, numBlocks: 64, failReady: failReady}
	dev, err := scsi.Open(transport)
	require.NoError(t, err)
	return dev
}

func TestIsInitializedWhenNothingMounted(t *testing.T) {
	resetState(t)
	require.ErrorIs(t, IsInitialized(), ErrNotInitialized)
}

func TestIsInitializedOnceAllThreeSectionsAreSet(t *testing.T) {
	resetState(t)
	t.Cleanup(func() { resetState(t) })

	usbState = &usbResources{device: newFakeDevice(t, false)}
	fs, err := fat.FromDevice(minimalFAT12Image(t), nil)
	require.NoError(t, err)
	fsState = fs
	handlesState = handles.New()

	require.NoError(t, IsInitialized())
}

func TestIsReadyDetectsDisconnectedDrive(t *testing.T) {
	resetState(t)
	t.Cleanup(func() { resetState(t) })

	usbState = &usbResources{device: newFakeDevice(t, true)}
	fs, err := fat.FromDevice(minimalFAT12Image(t), nil)
	require.NoError(t, err)
	fsState = fs
	handlesState = handles.New()

	require.ErrorIs(t, IsReady(), ErrDriveDisconnected)
}

func TestIsReadySucceedsWhenDriveResponds(t *testing.T) {
	resetState(t)
	t.Cleanup(func() { resetState(t) })

	usbState = &usbResources{device: newFakeDevice(t, false)}
	fs, err := fat.FromDevice(minimalFAT12Image(t), nil)
	require.NoError(t, err)
	fsState = fs
	handlesState = handles.New()

	require.NoError(t, IsReady())
	require.Equal(t, StatusMounted, GetMountStatus())
}

func TestUnmountClearsAllSections(t *testing.T) {
	resetState(t)
	t.Cleanup(func() { resetState(t) })

	usbState = &usbResources{device: newFakeDevice(t, false)}
	fs, err := fat.FromDevice(minimalFAT12Image(t), nil)
	require.NoError(t, err)
	fsState = fs
	handlesState = handles.New()

	require.NoError(t, Unmount())
	require.ErrorIs(t, IsInitialized(), ErrNotInitialized)
	require.Equal(t, StatusUnmounted, GetMountStatus())
}

func TestPoisonedSectionFailsFast(t *testing.T) {
	resetState(t)
	t.Cleanup(func() { resetState(t) })

	func() {
		defer func() { recover() }()
		_ = withRecover(&fsSection, func() error {
			panic("simulated corruption mid-operation")
		})
	}()

	err := withFS(func(*fat.FileSystem) error { return nil })
	require.ErrorIs(t, err, ErrPoisoned)
}
