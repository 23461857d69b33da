// Package capi is the public, C-callable-shaped surface over a mounted
// volume: every function takes and returns plain values or
// pointers-as-out-params, and every fallible call collapses its internal
// Go error to the namespaced internal/mount.Code instead of propagating an
// error value, mirroring a C ABI boundary that has no room for Go's error
// interface. Grounded function-for-function on
// original_source/src/capi_helpers/usbfs.rs's #[no_mangle] extern "C" list.
//
// Wrapping these as actual cgo //export functions is a thin shim left for
// whoever embeds this in a C host; nothing here depends on cgo.
package capi

import (
	"errors"
	"io"
	"time"

	"github.com/ischeinkman/nx-fatdrive/internal/fat"
	"github.com/ischeinkman/nx-fatdrive/internal/mount"
)

// MountStatus re-exports internal/mount.MountStatus so callers never need
// to import the internal package.
type MountStatus = mount.MountStatus

const (
	StatusUnmounted     = mount.StatusUnmounted
	StatusMounted       = mount.StatusMounted
	StatusUnsupportedFS = mount.StatusUnsupportedFS
)

// DirEntry re-exports internal/fat.DirEntryData for the same reason.
type DirEntry = fat.DirEntryData

// FsStats re-exports internal/fat.FsStats.
type FsStats = fat.FsStats

// Initialize scans for and mounts a USB Mass Storage FAT volume, waiting up
// to timeout for a matching device to enumerate. Idempotent.
func Initialize(timeout time.Duration) mount.Code {
	return mount.ToCode(mount.Initialize(timeout))
}

// Exit tears down the mounted volume and releases the USB device.
func Exit() mount.Code {
	return mount.ToCode(mount.Unmount())
}

// IsInitialized reports whether a volume is currently mounted.
func IsInitialized() mount.Code {
	return mount.ToCode(mount.IsInitialized())
}

// IsReady reports whether a mounted volume's USB device still responds.
func IsReady() mount.Code {
	return mount.ToCode(mount.IsReady())
}

// GetMountStatus writes the coarse mount status to *out.
func GetMountStatus(out *MountStatus) mount.Code {
	*out = mount.GetMountStatus()
	return mount.CodeSuccess
}

// DeviceUpdate polls the mounted device for a connect/disconnect
// transition.
func DeviceUpdate() mount.Code {
	return mount.ToCode(mount.DeviceUpdate())
}

// DeviceGetMountStatus is DeviceUpdate followed by GetMountStatus, matching
// usbFsDeviceGetMountStatus's combined poll-and-report shape.
func DeviceGetMountStatus(out *MountStatus) mount.Code {
	if err := mount.DeviceUpdate(); err != nil {
		*out = mount.StatusUnmounted
		return mount.ToCode(err)
	}
	*out = mount.GetMountStatus()
	return mount.CodeSuccess
}

// OpenFile resolves and opens path, writing its handle id to *outHandle.
func OpenFile(path string, outHandle *uint64) mount.Code {
	id, err := mount.OpenFile(path)
	if err != nil {
		return mount.ToCode(err)
	}
	*outHandle = id
	return mount.CodeSuccess
}

// CloseFile flushes and releases a file handle.
func CloseFile(handle uint64) mount.Code {
	return mount.ToCode(mount.CloseFile(handle))
}

// ReadFile reads into buf from handle's current cursor, writing the number
// of bytes actually read to *outN. A read landing exactly at end-of-file is
// success with *outN == 0, matching POSIX read(2): io.EOF is this system's
// internal "nothing left" signal, not a caller-visible error.
func ReadFile(handle uint64, buf []byte, outN *int) mount.Code {
	n, err := mount.ReadFile(handle, buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return mount.ToCode(err)
	}
	*outN = n
	return mount.CodeSuccess
}

// WriteFile writes buf at handle's current cursor, writing the number of
// bytes actually written to *outN.
func WriteFile(handle uint64, buf []byte, outN *int) mount.Code {
	n, err := mount.WriteFile(handle, buf)
	*outN = n
	return mount.ToCode(err)
}

// SeekFile repositions handle's cursor, writing the new absolute offset to
// *outPos.
func SeekFile(handle uint64, offset int64, whence int, outPos *int64) mount.Code {
	pos, err := mount.SeekFile(handle, offset, whence)
	if err != nil {
		return mount.ToCode(err)
	}
	*outPos = pos
	return mount.CodeSuccess
}

// SyncFile flushes handle's buffered writes to the device.
func SyncFile(handle uint64) mount.Code {
	return mount.ToCode(mount.SyncFile(handle))
}

// TruncateFile resizes handle's file to size bytes.
func TruncateFile(handle uint64, size int64) mount.Code {
	return mount.ToCode(mount.TruncateFile(handle, size))
}

// DeleteFile closes any handle open on path, then removes it.
func DeleteFile(path string) mount.Code {
	return mount.ToCode(mount.DeleteFile(path))
}

// StatFile writes the directory entry backing an open handle to *out.
func StatFile(handle uint64, out *DirEntry) mount.Code {
	entry, err := mount.StatFile(handle)
	if err != nil {
		return mount.ToCode(err)
	}
	*out = entry
	return mount.CodeSuccess
}

// StatPath writes path's directory entry to *out without requiring it be
// open.
func StatPath(path string, out *DirEntry) mount.Code {
	entry, err := mount.StatPath(path)
	if err != nil {
		return mount.ToCode(err)
	}
	*out = entry
	return mount.CodeSuccess
}

// StatFilesystem writes the mounted volume's cluster/free-space stats to
// *out.
func StatFilesystem(out *FsStats) mount.Code {
	stats, err := mount.StatFilesystem()
	if err != nil {
		return mount.ToCode(err)
	}
	*out = stats
	return mount.CodeSuccess
}

// OpenDir resolves and opens path as a directory, writing its handle id to
// *outHandle.
func OpenDir(path string, outHandle *uint64) mount.Code {
	id, err := mount.OpenDir(path)
	if err != nil {
		return mount.ToCode(err)
	}
	*outHandle = id
	return mount.CodeSuccess
}

// ReadDir advances handle's iteration cursor by one entry, writing the
// entry to *out and whether one was found to *outEOF (true once the
// directory is exhausted; this is not an error condition).
func ReadDir(handle uint64, out *DirEntry, outEOF *bool) mount.Code {
	entry, ok, err := mount.ReadDir(handle)
	if err != nil {
		return mount.ToCode(err)
	}
	*outEOF = !ok
	if ok {
		*out = entry
	}
	return mount.CodeSuccess
}

// CloseDir releases a directory handle.
func CloseDir(handle uint64) mount.Code {
	return mount.ToCode(mount.CloseDir(handle))
}

// CreateDir creates a new, empty directory at path.
func CreateDir(path string) mount.Code {
	return mount.ToCode(mount.CreateDir(path))
}

// DeleteDir closes any handle open on path, then removes the (empty)
// directory.
func DeleteDir(path string) mount.Code {
	return mount.ToCode(mount.DeleteDir(path))
}

// CreateFile creates a new, empty file at path.
func CreateFile(path string) mount.Code {
	return mount.ToCode(mount.CreateFile(path))
}
