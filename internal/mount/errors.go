// Package mount owns the three independently-mutex-guarded singletons a
// mounted volume needs — the USB channel, the FAT filesystem, and the
// handle registry — plus the lifecycle (Initialize/Unmount/IsReady) that
// creates and tears them down, and the namespaced error code scheme the
// public capi package collapses every internal error into.
//
// Grounded on the teacher's mutex-guarded singleton pattern
// (HasherServer.mu / NewHasherServerWithDevice in internal/driver) for the
// shape of the locks, and on
// original_source/src/capi_helpers/usbfs.rs/err.rs for the exact
// Initialize/Exit/IsReady sequencing and error code layout.
package mount

import (
	"errors"
	"io"

	"github.com/ischeinkman/nx-fatdrive/internal/blockdev"
	"github.com/ischeinkman/nx-fatdrive/internal/fat"
	"github.com/ischeinkman/nx-fatdrive/internal/handles"
	"github.com/ischeinkman/nx-fatdrive/internal/mbr"
	"github.com/ischeinkman/nx-fatdrive/internal/scsi"
	"github.com/ischeinkman/nx-fatdrive/internal/usbms"
)

// Code is a namespaced, C-ABI-stable error code, following
// original_source/src/capi_helpers/err.rs's layout: a module tag in the
// low byte, with either a small fixed top-level code or a
// (category-prefix | detail) pair shifted left by 8 and tagged.
type Code uint32

const (
	errModule uint32 = 0xFA

	// Top-level codes (original: NX_FATDRIVE_ERR_*).
	CodeSuccess           Code = 0
	CodeNotImplemented    Code = 0x1FA
	CodeNotInitialized    Code = 0x2FA
	CodeDriveNotFound     Code = 0x3FA
	CodePoisonedMutex     Code = 0x4FA
	CodeDriveDisconnected Code = 0x6FA

	stdioPrefix uint32 = 0x2_0000
	fsPrefix    uint32 = 0x4_0000
	scsiPrefix  uint32 = 0x5_0000
	mbrPrefix   uint32 = 0x6_0000

	codeUnknownRaw uint32 = 0xFFFFFE00 + 0xFA
)

// CodeUnknown is the catch-all for an error this package's translation
// table does not recognize.
const CodeUnknown Code = Code(codeUnknownRaw)

// CodeFileNotFound is the filesystem-category "not found" code, built the
// same way the rest of the fs-prefixed codes are: ((prefix + detail) << 8)
// + module.
var CodeFileNotFound = makeCode(fsPrefix, 1)

func makeCode(prefix, detail uint32) Code {
	return Code(((prefix + detail) << 8) + errModule)
}

// stdio detail codes, mirroring io.ErrorKind's ordering in err.rs's
// LibnxErrMapper for io::Error. Go's io/fs doesn't expose as granular a
// kind enum, so only the kinds this system can actually produce are
// mapped; an error matching none of them becomes CodeUnknown.
const (
	detailNotFound    = 1
	detailExists      = 9
	detailInvalidArg  = 11
	detailInvalidData = 12
	detailOther       = 16
	detailUnexpectedEOF = 17
)

// ToCode collapses any error this system can produce into a namespaced
// Code. Concrete sentinel errors from internal/mbr, internal/scsi,
// internal/fat and internal/handles are checked first (most specific);
// io.EOF/io.ErrUnexpectedEOF map to the stdio category; anything else
// becomes CodeUnknown.
func ToCode(err error) Code {
	if err == nil {
		return CodeSuccess
	}

	switch {
	case errors.Is(err, ErrPoisoned):
		return CodePoisonedMutex
	case errors.Is(err, ErrNotInitialized):
		return CodeNotInitialized
	case errors.Is(err, usbms.ErrDriveNotFound):
		return CodeDriveNotFound
	case errors.Is(err, ErrDriveDisconnected):
		return CodeDriveDisconnected

	case errors.Is(err, fat.ErrNotFound), errors.Is(err, handles.ErrNotFound):
		return makeCode(fsPrefix, detailNotFound)
	case errors.Is(err, fat.ErrExists):
		return makeCode(fsPrefix, detailExists)
	case errors.Is(err, fat.ErrInvalidPath):
		return makeCode(fsPrefix, detailInvalidArg)
	case errors.Is(err, fat.ErrNotADirectory), errors.Is(err, fat.ErrIsADirectory):
		return makeCode(fsPrefix, detailInvalidData)
	case errors.Is(err, fat.ErrDiskFull):
		return makeCode(fsPrefix, detailOther)
	case errors.Is(err, handles.ErrHandleSpaceExhausted):
		return makeCode(fsPrefix, detailOther)

	case errors.Is(err, scsi.ErrCommandFailed), errors.Is(err, scsi.ErrPhaseError):
		return makeCode(scsiPrefix, 0x3000)
	case errors.Is(err, scsi.ErrNonBlockMultiple):
		return makeCode(scsiPrefix, 0x2000)
	case errors.Is(err, scsi.ErrInvalidDevice):
		return makeCode(scsiPrefix, 0x7000)
	case isBufferTooSmall(err):
		return makeCode(scsiPrefix, 0x5000)

	case isInvalidMBRSuffix(err):
		return makeCode(mbrPrefix, 0x2000)
	case errors.Is(err, mbr.ErrBufferWrongSize):
		return makeCode(mbrPrefix, 0x3000)

	case errors.Is(err, blockdev.ErrUnsupported):
		return CodeNotImplemented
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return makeCode(stdioPrefix, detailUnexpectedEOF)

	default:
		return CodeUnknown
	}
}

func isBufferTooSmall(err error) bool {
	var e *scsi.BufferTooSmallError
	return errors.As(err, &e)
}

func isInvalidMBRSuffix(err error) bool {
	var e *mbr.InvalidMBRSuffixError
	return errors.As(err, &e)
}
