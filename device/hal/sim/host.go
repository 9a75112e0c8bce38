package sim

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/bad-alloc-heavy-industries/mxusb/device/hal"
	"github.com/bad-alloc-heavy-industries/mxusb/pkg"
)

// SetupSize is the size of a SETUP packet.
const SetupSize = 8

// Host is the scripted host side of a simulated bus. Each transaction
// method returns once the device's interrupt handlers have run.
//
// A Host is not safe for concurrent use.
type Host struct {
	bus        *Bus
	addr       uint8
	maxPacket0 int
	frame      uint16
	trace      *Trace
}

// NewHost returns a host talking to bus at address 0 with an EP0 max
// packet size of 64.
func NewHost(bus *Bus) *Host {
	return &Host{bus: bus, maxPacket0: hal.MaxPacketSize0}
}

// SetTrace records every subsequent transaction in t. A nil t stops
// recording.
func (h *Host) SetTrace(t *Trace) {
	h.trace = t
}

// Address returns the device address the host currently targets.
func (h *Host) Address() uint8 {
	return h.addr
}

// SetAddress changes the device address the host targets.
func (h *Host) SetAddress(addr uint8) {
	h.addr = addr & 0x7F
}

// MaxPacket0 returns the EP0 max packet size the host assumes.
func (h *Host) MaxPacket0() int {
	return h.maxPacket0
}

// SetMaxPacket0 sets the EP0 max packet size, normally learned from the
// device descriptor.
func (h *Host) SetMaxPacket0(n int) error {
	if n < 1 || n > hal.MaxPacketSize0 {
		return fmt.Errorf("max packet size %d: %w", n, pkg.ErrInvalidParameter)
	}
	h.maxPacket0 = n
	return nil
}

// Frame returns the last start-of-frame number sent.
func (h *Host) Frame() uint16 {
	return h.frame
}

func (h *Host) signal(ctx context.Context, kind Kind, events hal.BusEvent) error {
	h.bus.ctrl.signal(events)
	err := h.bus.interrupt(ctx)
	h.trace.add(Record{Kind: kind, Address: h.addr, Error: errString(err)})
	return err
}

// Reset drives a bus reset. The host falls back to address 0.
func (h *Host) Reset(ctx context.Context) error {
	h.addr = 0
	return h.signal(ctx, KindReset, hal.BusReset)
}

// Suspend signals bus suspend.
func (h *Host) Suspend(ctx context.Context) error {
	return h.signal(ctx, KindSuspend, hal.BusSuspend)
}

// Resume signals bus resume.
func (h *Host) Resume(ctx context.Context) error {
	return h.signal(ctx, KindResume, hal.BusResume)
}

// SOF sends a start-of-frame token.
func (h *Host) SOF(ctx context.Context) error {
	h.frame = (h.frame + 1) & 0x7FF
	return h.signal(ctx, KindSOF, hal.BusSOF)
}

// Setup sends a SETUP transaction to EP0.
func (h *Host) Setup(ctx context.Context, pkt [SetupSize]byte) error {
	hs, err := h.bus.ctrl.setup(h.addr, pkt[:])
	if err == nil {
		err = h.bus.interrupt(ctx)
	}
	h.trace.add(Record{Kind: KindSetup, Address: h.addr, Data: pkt[:], Handshake: hs.String(), Error: errString(err)})
	return err
}

// In performs one IN transaction on ep. A NAK or STALL handshake is
// returned as pkg.ErrNAK or pkg.ErrStall.
func (h *Host) In(ctx context.Context, ep uint8) ([]byte, error) {
	data, hs, err := h.bus.ctrl.in(h.addr, ep)
	if err == nil && hs == pkg.HandshakeACK {
		err = h.bus.interrupt(ctx)
	}
	h.trace.add(Record{Kind: KindIn, Address: h.addr, Endpoint: ep, Data: data, Handshake: hs.String(), Error: errString(err)})
	if err != nil {
		return nil, err
	}
	if err := hs.Error(); err != nil {
		return nil, fmt.Errorf("IN %d: %w", ep, err)
	}
	return data, nil
}

// Out performs one OUT transaction on ep.
func (h *Host) Out(ctx context.Context, ep uint8, data []byte) error {
	hs, err := h.bus.ctrl.out(h.addr, ep, data)
	if err == nil && hs == pkg.HandshakeACK {
		err = h.bus.interrupt(ctx)
	}
	h.trace.add(Record{Kind: KindOut, Address: h.addr, Endpoint: ep, Data: data, Handshake: hs.String(), Error: errString(err)})
	if err != nil {
		return err
	}
	if err := hs.Error(); err != nil {
		return fmt.Errorf("OUT %d: %w", ep, err)
	}
	return nil
}

// ControlIn runs a device-to-host control transfer: the SETUP stage, IN
// data packets until wLength bytes or a short packet arrive, and the
// zero-length OUT status stage.
func (h *Host) ControlIn(ctx context.Context, setup [SetupSize]byte) ([]byte, error) {
	if setup[0]&0x80 == 0 {
		return nil, fmt.Errorf("control IN with host-to-device request: %w", pkg.ErrInvalidParameter)
	}
	length := int(binary.LittleEndian.Uint16(setup[6:8]))
	if err := h.Setup(ctx, setup); err != nil {
		return nil, err
	}

	data := make([]byte, 0, length)
	for len(data) < length {
		pkt, err := h.In(ctx, 0)
		if err != nil {
			return data, fmt.Errorf("data stage: %w", err)
		}
		data = append(data, pkt...)
		if len(pkt) < h.maxPacket0 {
			break
		}
	}
	if len(data) > length {
		return data, fmt.Errorf("data stage returned %d of %d bytes: %w", len(data), length, pkg.ErrInvalidRequest)
	}

	if err := h.Out(ctx, 0, nil); err != nil {
		return data, fmt.Errorf("status stage: %w", err)
	}
	return data, nil
}

// ControlOut runs a host-to-device control transfer: the SETUP stage, OUT
// data packets carrying data and the zero-length IN status stage.
func (h *Host) ControlOut(ctx context.Context, setup [SetupSize]byte, data []byte) error {
	if setup[0]&0x80 != 0 {
		return fmt.Errorf("control OUT with device-to-host request: %w", pkg.ErrInvalidParameter)
	}
	length := int(binary.LittleEndian.Uint16(setup[6:8]))
	if len(data) != length {
		return fmt.Errorf("control OUT with %d bytes for wLength %d: %w", len(data), length, pkg.ErrInvalidParameter)
	}
	if err := h.Setup(ctx, setup); err != nil {
		return err
	}

	for len(data) > 0 {
		n := min(len(data), h.maxPacket0)
		if err := h.Out(ctx, 0, data[:n]); err != nil {
			return fmt.Errorf("data stage: %w", err)
		}
		data = data[n:]
	}

	status, err := h.In(ctx, 0)
	if err != nil {
		return fmt.Errorf("status stage: %w", err)
	}
	if len(status) != 0 {
		return fmt.Errorf("status stage returned %d bytes: %w", len(status), pkg.ErrInvalidRequest)
	}
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return err.Error()
}
