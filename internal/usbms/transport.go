package usbms

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/gousb"
)

// Mass Storage Class filter values (USB MSC, SCSI transparent command set,
// Bulk-Only Transport), per SPEC_FULL.md §4.2 / the original
// usb_comm.rs::retrieve_iface_endpoints validation.
const (
	MscClass    = 8
	MscSubclass = 6
	MscProtocol = 0x50
)

// ErrDriveNotFound is returned when no matching MSC interface could be
// found within the caller-supplied timeout.
var ErrDriveNotFound = fmt.Errorf("usbms: no mass storage drive found")

// Channel is a claimed USB bulk-only interface: one IN endpoint (device to
// host) and one OUT endpoint (host to device). Modeled on the teacher's
// USBDevice (internal/driver/device/usb_device.go): ctx/device/config/intf
// acquired in order with rollback-on-error at each step, endpoints resolved
// last, Close tearing down symmetrically.
type Channel struct {
	ctx    *gousb.Context
	device *gousb.Device
	config *gousb.Config
	intf   *gousb.Interface
	epIn   *gousb.InEndpoint
	epOut  *gousb.OutEndpoint
}

// matchesMSC reports whether the device descriptor's class is MSC, or any
// interface setting on it advertises the full MSC/SCSI/BBB triple.
// Mirrors usb_comm.rs's check against "device_desc.class()==8 ||
// iface_desc.class()==8" (and similarly for subclass/protocol).
func matchesMSC(desc *gousb.DeviceDesc) bool {
	if int(desc.Class) == MscClass {
		return true
	}
	for _, cfg := range desc.Configs {
		for _, iface := range cfg.Interfaces {
			for _, alt := range iface.AltSettings {
				if int(alt.Class) == MscClass && int(alt.SubClass) == MscSubclass && int(alt.Protocol) == MscProtocol {
					return true
				}
			}
		}
	}
	return false
}

// Open waits up to timeout for a MSC-class device to appear, then claims
// interface 0, alternate setting 0, of its configuration 1; it does not
// search the device for the interface that matched. Since gousb has no equivalent of the
// original InterfaceAvailableEvent, discovery is a bounded poll: query the
// available device list repeatedly, keep at most the last 3 candidates
// found (SPEC_FULL.md §4.2's "query up to N=3, take the last"), and open
// the final one.
func Open(timeout time.Duration) (*Channel, error) {
	ctx := gousb.NewContext()

	deadline := time.Now().Add(timeout)
	var candidates []*gousb.Device
	for {
		devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
			return matchesMSC(desc)
		})
		for _, d := range devs {
			candidates = append(candidates, d)
			if len(candidates) > 3 {
				stale := candidates[0]
				candidates = candidates[1:]
				stale.Close()
			}
		}
		if err != nil {
			log.Printf("usbms: device enumeration error: %v", err)
		}
		if len(candidates) > 0 {
			break
		}
		if time.Now().After(deadline) {
			ctx.Close()
			return nil, ErrDriveNotFound
		}
		time.Sleep(50 * time.Millisecond)
	}

	device := candidates[len(candidates)-1]
	for _, stale := range candidates[:len(candidates)-1] {
		stale.Close()
	}

	return claim(ctx, device)
}

func claim(ctx *gousb.Context, device *gousb.Device) (*Channel, error) {
	config, err := device.Config(1)
	if err != nil {
		device.Close()
		ctx.Close()
		return nil, fmt.Errorf("usbms: set config: %w", err)
	}

	intf, err := config.Interface(0, 0)
	if err != nil {
		config.Close()
		device.Close()
		ctx.Close()
		return nil, fmt.Errorf("usbms: claim interface: %w", err)
	}

	epOut, err := firstOutEndpoint(intf)
	if err != nil {
		intf.Close()
		config.Close()
		device.Close()
		ctx.Close()
		return nil, err
	}

	epIn, err := firstInEndpoint(intf)
	if err != nil {
		intf.Close()
		config.Close()
		device.Close()
		ctx.Close()
		return nil, err
	}

	log.Printf("usbms: claimed mass storage interface (in=%d out=%d)", epIn.Number, epOut.Number)
	return &Channel{ctx: ctx, device: device, config: config, intf: intf, epIn: epIn, epOut: epOut}, nil
}

func firstOutEndpoint(intf *gousb.Interface) (*gousb.OutEndpoint, error) {
	for _, ep := range intf.Setting.Endpoints {
		if ep.Direction == gousb.EndpointDirectionOut {
			out, err := intf.OutEndpoint(ep.Number)
			if err != nil {
				return nil, fmt.Errorf("usbms: open OUT endpoint: %w", err)
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("usbms: no OUT endpoint on claimed interface")
}

func firstInEndpoint(intf *gousb.Interface) (*gousb.InEndpoint, error) {
	for _, ep := range intf.Setting.Endpoints {
		if ep.Direction == gousb.EndpointDirectionIn {
			in, err := intf.InEndpoint(ep.Number)
			if err != nil {
				return nil, fmt.Errorf("usbms: open IN endpoint: %w", err)
			}
			return in, nil
		}
	}
	return nil, fmt.Errorf("usbms: no IN endpoint on claimed interface")
}

// Close tears down interface, config, device and context, in that order,
// tolerating partial construction.
func (c *Channel) Close() error {
	if c.intf != nil {
		c.intf.Close()
	}
	if c.config != nil {
		c.config.Close()
	}
	if c.device != nil {
		c.device.Close()
	}
	if c.ctx != nil {
		c.ctx.Close()
	}
	return nil
}

// transferTimeout bounds a single bulk transfer; the transport is
// synchronous and blocking from the caller's perspective (SPEC_FULL.md §5),
// but a hung transfer must not hang the process forever.
const transferTimeout = 10 * time.Second

// Push writes an aligned buffer's requested-size view out the OUT
// endpoint, returning the number of bytes actually written. buf must be
// non-empty and backed by an AlignedBuffer (alignment is enforced by the
// caller via NewAlignedBuffer).
func (c *Channel) Push(buf *AlignedBuffer) (int, error) {
	if buf.Len() == 0 {
		return 0, fmt.Errorf("usbms: zero-length transfer")
	}
	ctx, cancel := context.WithTimeout(context.Background(), transferTimeout)
	defer cancel()
	n, err := c.epOut.WriteContext(ctx, buf.Slice())
	if err != nil {
		return n, fmt.Errorf("usbms: bulk OUT transfer: %w", err)
	}
	return n, nil
}

// Pull reads into an aligned buffer's requested-size view from the IN
// endpoint, returning the number of bytes actually read.
func (c *Channel) Pull(buf *AlignedBuffer) (int, error) {
	if buf.Len() == 0 {
		return 0, fmt.Errorf("usbms: zero-length transfer")
	}
	ctx, cancel := context.WithTimeout(context.Background(), transferTimeout)
	defer cancel()
	n, err := c.epIn.ReadContext(ctx, buf.Slice())
	if err != nil {
		return n, fmt.Errorf("usbms: bulk IN transfer: %w", err)
	}
	return n, nil
}

// PushBytes bounces an arbitrary byte slice through a freshly allocated
// aligned buffer, mirroring usb_comm.rs's out_transfer bounce-buffer
// pattern: allocate, copy in, transfer.
func (c *Channel) PushBytes(data []byte) error {
	buf, err := NewAlignedBuffer(len(data))
	if err != nil {
		return err
	}
	copy(buf.Slice(), data)
	n, err := c.Push(buf)
	if err != nil {
		return err
	}
	if n != len(data) {
		return fmt.Errorf("usbms: short write: wrote %d of %d bytes", n, len(data))
	}
	return nil
}

// PullBytes bounces a read of exactly len(dst) bytes through a freshly
// allocated aligned buffer, mirroring usb_comm.rs's in_transfer.
func (c *Channel) PullBytes(dst []byte) error {
	buf, err := NewAlignedBuffer(len(dst))
	if err != nil {
		return err
	}
	n, err := c.Pull(buf)
	if err != nil {
		return err
	}
	if n != len(dst) {
		return fmt.Errorf("usbms: short read: got %d of %d bytes", n, len(dst))
	}
	copy(dst, buf.Slice())
	return nil
}
