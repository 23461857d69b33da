package mount

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ischeinkman/nx-fatdrive/internal/blockdev"
	"github.com/ischeinkman/nx-fatdrive/internal/fat"
	"github.com/ischeinkman/nx-fatdrive/internal/handles"
	"github.com/ischeinkman/nx-fatdrive/internal/mbr"
	"github.com/ischeinkman/nx-fatdrive/internal/scsi"
	"github.com/ischeinkman/nx-fatdrive/internal/usbms"
)

// ErrNotInitialized is returned by every operation below that needs a
// mounted volume when none is mounted.
var ErrNotInitialized = errors.New("mount: not initialized")

// ErrPoisoned is returned when a guarded section's lock was held by a
// goroutine that panicked; Go's sync.Mutex has no native poisoning, so
// this package implements it explicitly, the same contract
// original_source's std::sync::Mutex<T> gives callers for free.
var ErrPoisoned = errors.New("mount: lock poisoned by a prior panic")

// ErrDriveDisconnected is returned by IsReady/DeviceUpdate when a volume
// was mounted but the USB device no longer responds.
var ErrDriveDisconnected = errors.New("mount: drive disconnected")

// ErrNoFatPartition is returned when no partition table entry names a
// FAT12/16/32 partition type.
var ErrNoFatPartition = errors.New("mount: no FAT partition found in partition table")

// DefaultScanTimeout bounds how long Initialize waits for a matching USB
// device to enumerate.
const DefaultScanTimeout = 10 * time.Second

// guardedSection is one of the three independently-locked singletons.
// Locking order across sections, when more than one is needed at once, is
// always handles -> filesystem -> usb, matching SPEC_FULL.md §5's stated
// order and never acquired in reverse anywhere in this package.
type guardedSection struct {
	mu       sync.Mutex
	poisoned bool
}

func (g *guardedSection) lock() error {
	g.mu.Lock()
	if g.poisoned {
		g.mu.Unlock()
		return ErrPoisoned
	}
	return nil
}

func (g *guardedSection) unlock() { g.mu.Unlock() }

// poison marks the section unusable. Call from a recover() site guarding
// code that ran while the section's lock was held.
func (g *guardedSection) poison() { g.poisoned = true }

var (
	usbSection guardedSection
	usbState   *usbResources

	fsSection guardedSection
	fsState   *fat.FileSystem

	handlesSection guardedSection
	handlesState   *handles.Registry
)

type usbResources struct {
	channel *usbms.Channel
	device  *scsi.Device
	offset  *blockdev.OffsetDevice
}

// withRecover runs fn while holding sec's lock, poisoning the section if
// fn panics (and re-panicking, matching the semantics of a poisoned Rust
// Mutex: the panic still propagates, but every future lock attempt fails
// fast instead of deadlocking or reading torn state).
func withRecover(sec *guardedSection, fn func() error) (err error) {
	if lockErr := sec.lock(); lockErr != nil {
		return lockErr
	}
	defer func() {
		if r := recover(); r != nil {
			sec.poison()
			sec.unlock()
			panic(r)
		}
		sec.unlock()
	}()
	return fn()
}

// IsInitialized reports whether all three sections hold live state.
func IsInitialized() error {
	var usbOK, fsOK, handlesOK bool
	if err := withRecover(&usbSection, func() error { usbOK = usbState != nil; return nil }); err != nil {
		return err
	}
	if err := withRecover(&fsSection, func() error { fsOK = fsState != nil; return nil }); err != nil {
		return err
	}
	if err := withRecover(&handlesSection, func() error { handlesOK = handlesState != nil; return nil }); err != nil {
		return err
	}
	if usbOK && fsOK && handlesOK {
		return nil
	}
	return ErrNotInitialized
}

// Initialize scans for a USB Mass Storage device, opens it as a SCSI block
// device, parses its partition table, mounts the first FAT partition
// found, and stands up a fresh handle registry. Idempotent: calling it
// again while already initialized is a no-op, matching
// original_source/src/capi_helpers/usbfs.rs's usbFsInitialize.
func Initialize(timeout time.Duration) error {
	if IsInitialized() == nil {
		return nil
	}

	channel, err := usbms.Open(timeout)
	if err != nil {
		return fmt.Errorf("mount: open USB channel: %w", err)
	}
	device, err := scsi.Open(channel)
	if err != nil {
		channel.Close()
		return fmt.Errorf("mount: open SCSI device: %w", err)
	}

	sector := make([]byte, device.BlockSize())
	if err := device.Read(0, sector); err != nil {
		channel.Close()
		return fmt.Errorf("mount: read boot sector: %w", err)
	}
	table, err := mbr.Parse(sector)
	if err != nil {
		channel.Close()
		return fmt.Errorf("mount: parse partition table: %w", err)
	}

	idx := -1
	for i, p := range table.Partitions {
		if p.Type != mbr.Unknown {
			idx = i
			break
		}
	}
	if idx < 0 {
		channel.Close()
		return ErrNoFatPartition
	}
	partitionStart := int64(table.Partitions[idx].StartLBA) * int64(device.BlockSize())

	if err := mountDevice(channel, device, partitionStart); err != nil {
		channel.Close()
		return err
	}
	return nil
}

// InitializeWithDevice mounts a FAT volume directly over an already-opened
// SCSI device at the given partition byte offset, bypassing USB discovery
// and MBR parsing entirely. Mirrors the teacher's
// NewHasherServerWithDevice constructor: production code goes through
// Initialize's full discovery sequence, but tests and embedders that
// already have a device (a fake transport, a disk image exposed over a
// loopback SCSI stack) can mount it directly.
func InitializeWithDevice(device *scsi.Device, partitionStartBytes int64) error {
	if IsInitialized() == nil {
		return nil
	}
	return mountDevice(nil, device, partitionStartBytes)
}

// mountDevice builds the FAT filesystem and handle registry over device at
// partitionStart and installs all three sections. channel may be nil when
// the device was constructed without owning a USB channel (InitializeWithDevice).
func mountDevice(channel *usbms.Channel, device *scsi.Device, partitionStart int64) error {
	offsetDevice := blockdev.New(device, partitionStart)
	fs, err := fat.FromDevice(offsetDevice, nil)
	if err != nil {
		return fmt.Errorf("mount: mount FAT filesystem: %w", err)
	}

	if err := withRecover(&usbSection, func() error {
		usbState = &usbResources{channel: channel, device: device, offset: offsetDevice}
		return nil
	}); err != nil {
		return err
	}
	if err := withRecover(&fsSection, func() error {
		fsState = fs
		return nil
	}); err != nil {
		return err
	}
	return withRecover(&handlesSection, func() error {
		handlesState = handles.New()
		return nil
	})
}

// Unmount flushes and tears down every section, in the reverse of
// Initialize's acquisition order (handles, then filesystem, then usb),
// matching original_source's usbFsExit drop order.
func Unmount() error {
	if err := withRecover(&handlesSection, func() error {
		handlesState = nil
		return nil
	}); err != nil {
		return err
	}

	var flushErr error
	if err := withRecover(&fsSection, func() error {
		if fsState == nil {
			return nil
		}
		fsState = nil
		return nil
	}); err != nil {
		return err
	}

	return withRecover(&usbSection, func() error {
		if usbState == nil {
			return nil
		}
		if usbState.offset != nil {
			if err := usbState.offset.Close(); err != nil {
				flushErr = err
			}
		}
		if usbState.channel != nil {
			_ = usbState.channel.Close()
		}
		usbState = nil
		return flushErr
	})
}

// IsReady reports SUCCESS-equivalent (nil) only when a volume is mounted
// and the USB device still responds to a liveness probe.
func IsReady() error {
	if err := IsInitialized(); err != nil {
		return err
	}
	return withRecover(&usbSection, func() error {
		if usbState == nil || usbState.device == nil {
			return ErrNotInitialized
		}
		if err := usbState.device.Ping(); err != nil {
			return ErrDriveDisconnected
		}
		return nil
	})
}

// MountStatus mirrors original_source's usbFsDeviceGetMountStatus values.
type MountStatus int

const (
	StatusUnmounted MountStatus = iota
	StatusMounted
	StatusUnsupportedFS
)

// GetMountStatus reports the coarse tri-state mount status.
func GetMountStatus() MountStatus {
	if IsReady() != nil {
		return StatusUnmounted
	}
	return StatusMounted
}

// DeviceUpdate is the periodic poll callers drive to detect device
// connect/disconnect transitions, returning IsReady's current result.
func DeviceUpdate() error {
	return IsReady()
}

// withFS runs fn with the mounted filesystem, failing with
// ErrNotInitialized if none is mounted.
func withFS(fn func(*fat.FileSystem) error) error {
	return withRecover(&fsSection, func() error {
		if fsState == nil {
			return ErrNotInitialized
		}
		return fn(fsState)
	})
}

// withHandles runs fn with the handle registry, failing with
// ErrNotInitialized if none is mounted.
func withHandles(fn func(*handles.Registry) error) error {
	return withRecover(&handlesSection, func() error {
		if handlesState == nil {
			return ErrNotInitialized
		}
		return fn(handlesState)
	})
}
