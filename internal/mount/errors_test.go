package mount

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ischeinkman/nx-fatdrive/internal/blockdev"
	"github.com/ischeinkman/nx-fatdrive/internal/fat"
	"github.com/ischeinkman/nx-fatdrive/internal/handles"
	"github.com/ischeinkman/nx-fatdrive/internal/mbr"
	"github.com/ischeinkman/nx-fatdrive/internal/scsi"
	"github.com/ischeinkman/nx-fatdrive/internal/usbms"
)

func TestToCodeSuccess(t *testing.T) {
	require.Equal(t, CodeSuccess, ToCode(nil))
}

func TestToCodeTopLevel(t *testing.T) {
	require.Equal(t, CodePoisonedMutex, ToCode(ErrPoisoned))
	require.Equal(t, CodeNotInitialized, ToCode(ErrNotInitialized))
	require.Equal(t, CodeDriveNotFound, ToCode(usbms.ErrDriveNotFound))
	require.Equal(t, CodeDriveDisconnected, ToCode(ErrDriveDisconnected))
}

func TestToCodeWrappedErrorsStillMatch(t *testing.T) {
	wrapped := fmt.Errorf("open file: %w", fat.ErrNotFound)
	require.Equal(t, CodeFileNotFound, ToCode(wrapped))
}

func TestToCodeFilesystemCategory(t *testing.T) {
	require.Equal(t, makeCode(fsPrefix, detailNotFound), ToCode(fat.ErrNotFound))
	require.Equal(t, makeCode(fsPrefix, detailNotFound), ToCode(handles.ErrNotFound))
	require.Equal(t, makeCode(fsPrefix, detailExists), ToCode(fat.ErrExists))
	require.Equal(t, makeCode(fsPrefix, detailInvalidArg), ToCode(fat.ErrInvalidPath))
	require.Equal(t, makeCode(fsPrefix, detailInvalidData), ToCode(fat.ErrNotADirectory))
	require.Equal(t, makeCode(fsPrefix, detailInvalidData), ToCode(fat.ErrIsADirectory))
	require.Equal(t, makeCode(fsPrefix, detailOther), ToCode(fat.ErrDiskFull))
	require.Equal(t, makeCode(fsPrefix, detailOther), ToCode(handles.ErrHandleSpaceExhausted))
}

func TestToCodeScsiCategory(t *testing.T) {
	require.Equal(t, makeCode(scsiPrefix, 0x3000), ToCode(scsi.ErrCommandFailed))
	require.Equal(t, makeCode(scsiPrefix, 0x3000), ToCode(scsi.ErrPhaseError))
	require.Equal(t, makeCode(scsiPrefix, 0x2000), ToCode(scsi.ErrNonBlockMultiple))
	require.Equal(t, makeCode(scsiPrefix, 0x7000), ToCode(scsi.ErrInvalidDevice))

	small := &scsi.BufferTooSmallError{Expected: 512, Actual: 10}
	require.Equal(t, makeCode(scsiPrefix, 0x5000), ToCode(small))
}

func TestToCodeMbrCategory(t *testing.T) {
	bad := &mbr.InvalidMBRSuffixError{Actual: [2]byte{0, 0}}
	require.Equal(t, makeCode(mbrPrefix, 0x2000), ToCode(bad))
	require.Equal(t, makeCode(mbrPrefix, 0x3000), ToCode(mbr.ErrBufferWrongSize))
}

func TestToCodeStdioAndUnknown(t *testing.T) {
	require.Equal(t, makeCode(stdioPrefix, detailUnexpectedEOF), ToCode(io.EOF))
	require.Equal(t, makeCode(stdioPrefix, detailUnexpectedEOF), ToCode(io.ErrUnexpectedEOF))
	require.Equal(t, CodeUnknown, ToCode(errors.New("something this package has never seen")))
}

func TestToCodeUnsupportedSeekMapsToNotImplemented(t *testing.T) {
	require.Equal(t, CodeNotImplemented, ToCode(blockdev.ErrUnsupported))
}

func TestMakeCodeEncodesModuleInLowByte(t *testing.T) {
	c := makeCode(fsPrefix, detailNotFound)
	require.Equal(t, uint32(0xFA), uint32(c)&0xFF)
}
