package sim

import (
	"fmt"
	"sync"

	"github.com/bad-alloc-heavy-industries/mxusb/device/hal"
	"github.com/bad-alloc-heavy-industries/mxusb/pkg"
)

// BufferBytes is the size of each endpoint half's packet buffer.
const BufferBytes = 64

// MaxEndpoints is the largest endpoint count a controller can have.
const MaxEndpoints = 16

// EndpointType is the hardware endpoint type held in an endpoint's
// control register.
type EndpointType uint8

// Hardware endpoint types.
const (
	TypeDisabled EndpointType = iota
	TypeControl
	TypeBulk
	TypeIsochronous
)

// String returns the hardware type name.
func (t EndpointType) String() string {
	switch t {
	case TypeControl:
		return "control"
	case TypeBulk:
		return "bulk"
	case TypeIsochronous:
		return "isochronous"
	default:
		return "disabled"
	}
}

// BufferSize is the buffer size class held in an endpoint's control
// register.
type BufferSize uint16

// Buffer size classes.
const (
	BufferSize8    BufferSize = 8
	BufferSize16   BufferSize = 16
	BufferSize32   BufferSize = 32
	BufferSize64   BufferSize = 64
	BufferSize1023 BufferSize = 1023
)

// MapType maps a USB transfer type onto a hardware endpoint type. The
// peripheral has no interrupt type; interrupt endpoints run as bulk.
func MapType(typ hal.TransferType) EndpointType {
	switch typ {
	case hal.Isochronous:
		return TypeIsochronous
	case hal.Control:
		return TypeControl
	default:
		return TypeBulk
	}
}

// MapBufferSize maps a max packet size onto the smallest buffer size class
// that holds it.
func MapBufferSize(size uint16) BufferSize {
	switch {
	case size <= 8:
		return BufferSize8
	case size <= 16:
		return BufferSize16
	case size <= 32:
		return BufferSize32
	case size <= 64:
		return BufferSize64
	}
	return BufferSize1023
}

// EndpointState is a snapshot of one endpoint half's registers.
type EndpointState struct {
	Type             EndpointType
	BufferSize       BufferSize
	Stall            bool
	InterruptDisable bool
	Status           hal.Status
	Count            int
}

type half struct {
	EndpointState
	buf [BufferBytes]byte
}

type endpoint struct {
	out half
	in  half
}

func (e *endpoint) half(dir hal.Direction) *half {
	if dir == hal.In {
		return &e.in
	}
	return &e.out
}

// Controller is a simulated USB device peripheral. It implements
// [hal.Controller] for the device side and exposes transaction methods
// that [Host] drives from the bus side.
//
// All register access is serialized by an internal mutex; handlers and
// the host may run on different goroutines.
type Controller struct {
	mutex sync.Mutex

	eps      []endpoint
	addr     uint8
	attached bool

	busFlags  hal.BusEvent
	busEnable hal.BusEvent
	ioFlags   hal.IOFlag
	ioEnable  bool
}

var _ hal.Controller = (*Controller)(nil)

// NewController creates a controller with n endpoints. Every endpoint
// half starts disabled with StatusNACK0 set.
func NewController(n int) (*Controller, error) {
	if n < 1 || n > MaxEndpoints {
		return nil, fmt.Errorf("controller with %d endpoints: %w", n, pkg.ErrInvalidParameter)
	}
	c := &Controller{eps: make([]endpoint, n)}
	for i := range c.eps {
		c.eps[i].out.Status = hal.StatusNACK0
		c.eps[i].in.Status = hal.StatusNACK0
	}
	return c, nil
}

func (c *Controller) half(ep uint8, dir hal.Direction) *half {
	if int(ep) >= len(c.eps) {
		pkg.LogWarn(pkg.ComponentSim, "register access to missing endpoint",
			"endpoint", ep, "direction", dir)
		return &half{}
	}
	return c.eps[ep].half(dir)
}

// Endpoints implements hal.Controller.
func (c *Controller) Endpoints() int {
	return len(c.eps)
}

// Configure implements hal.Controller.
func (c *Controller) Configure(ep uint8, dir hal.Direction, typ hal.TransferType, maxPacketSize uint16) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	h := c.half(ep, dir)
	h.Count = 0
	h.Type = MapType(typ)
	h.BufferSize = MapBufferSize(maxPacketSize)
	h.Stall = false
	pkg.LogDebug(pkg.ComponentSim, "endpoint configured",
		"endpoint", ep, "direction", dir, "type", h.Type, "buffer", h.BufferSize)
}

// Disable implements hal.Controller.
func (c *Controller) Disable(ep uint8, dir hal.Direction) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.half(ep, dir).Type = TypeDisabled
}

// ResetEndpoint implements hal.Controller.
func (c *Controller) ResetEndpoint(ep uint8, dir hal.Direction) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	h := c.half(ep, dir)
	h.Stall = false
	h.Status = hal.StatusNACK0
}

// ResetAll implements hal.Controller.
func (c *Controller) ResetAll(scope hal.Scope) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	first := 0
	if scope == hal.ScopeUser {
		first = 1
	}
	for i := first; i < len(c.eps); i++ {
		for _, h := range []*half{&c.eps[i].out, &c.eps[i].in} {
			h.EndpointState = EndpointState{Status: hal.StatusNACK0}
		}
	}
}

// SetStall implements hal.Controller.
func (c *Controller) SetStall(ep uint8, dir hal.Direction, stall bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.half(ep, dir).Stall = stall
}

// Stalled implements hal.Controller.
func (c *Controller) Stalled(ep uint8, dir hal.Direction) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.half(ep, dir).Stall
}

// EnableInterrupt implements hal.Controller.
func (c *Controller) EnableInterrupt(ep uint8, dir hal.Direction, enable bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.half(ep, dir).InterruptDisable = !enable
}

// Status implements hal.Controller.
func (c *Controller) Status(ep uint8, dir hal.Direction) hal.Status {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.half(ep, dir).Status
}

// SetStatus implements hal.Controller.
func (c *Controller) SetStatus(ep uint8, dir hal.Direction, status hal.Status) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.half(ep, dir).Status = status
}

// ClearStatus implements hal.Controller.
func (c *Controller) ClearStatus(ep uint8, dir hal.Direction, flags hal.Status) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.half(ep, dir).Status &^= flags
}

// Received implements hal.Controller.
func (c *Controller) Received(ep uint8) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.half(ep, hal.Out).Count
}

// CopyIn implements hal.Controller.
func (c *Controller) CopyIn(ep uint8, dst []byte, n int) []byte {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	h := c.half(ep, hal.Out)
	n = min(n, len(dst), BufferBytes)
	copy(dst[:n], h.buf[:n])
	return dst[n:]
}

// CopyOut implements hal.Controller.
func (c *Controller) CopyOut(ep uint8, src []byte, n int, offset int) []byte {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	h := c.half(ep, hal.In)
	n = min(n, len(src))
	if offset < 0 || offset+n > BufferBytes {
		pkg.LogWarn(pkg.ComponentSim, "IN buffer overrun",
			"endpoint", ep, "offset", offset, "count", n)
		n = max(0, min(n, BufferBytes-offset))
		offset = min(max(offset, 0), BufferBytes)
	}
	copy(h.buf[offset:offset+n], src[:n])
	return src[n:]
}

// Arm implements hal.Controller.
func (c *Controller) Arm(ep uint8, dir hal.Direction, n int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	h := c.half(ep, dir)
	if dir == hal.In {
		h.Count = n
		h.Status &^= hal.StatusNotReady | hal.StatusNACK0
		return
	}
	h.Count = 0
	h.Status = 0
}

// SetAddress implements hal.Controller.
func (c *Controller) SetAddress(addr uint8) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.addr = addr & 0x7F
}

// Address implements hal.Controller.
func (c *Controller) Address() uint8 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.addr
}

// BusEvents implements hal.Controller.
func (c *Controller) BusEvents() hal.BusEvent {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.busFlags
}

// ClearBusEvents implements hal.Controller.
func (c *Controller) ClearBusEvents(events hal.BusEvent) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.busFlags &^= events
}

// EnableBusEvents implements hal.Controller.
func (c *Controller) EnableBusEvents(events hal.BusEvent) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.busEnable = events
}

// EnableIO implements hal.Controller.
func (c *Controller) EnableIO(enable bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.ioEnable = enable
}

// ClearIO implements hal.Controller.
func (c *Controller) ClearIO(flags hal.IOFlag) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.ioFlags &^= flags
}

// Attach implements hal.Controller.
func (c *Controller) Attach() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.attached = true
}

// Detach implements hal.Controller.
func (c *Controller) Detach() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.attached = false
}

// Attached reports whether the device is connected to the bus.
func (c *Controller) Attached() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.attached
}

// Endpoint returns a snapshot of one endpoint half's registers.
func (c *Controller) Endpoint(ep uint8, dir hal.Direction) EndpointState {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.half(ep, dir).EndpointState
}

// pending returns the bus events and IO flags that would raise an
// interrupt right now.
func (c *Controller) pending() (hal.BusEvent, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.busFlags & c.busEnable, c.ioEnable && c.ioFlags != 0
}

// signal latches bus event flags as the bus side of the peripheral would.
func (c *Controller) signal(events hal.BusEvent) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.busFlags |= events
}

// addressed reports whether a token to addr reaches this device.
func (c *Controller) addressed(addr uint8) error {
	if !c.attached {
		return fmt.Errorf("device detached: %w", pkg.ErrNotRunning)
	}
	if addr != c.addr {
		return fmt.Errorf("no device at address %d: %w", addr, pkg.ErrAddressRejected)
	}
	return nil
}

// setup delivers a SETUP transaction to EP0. SETUP is always accepted: it
// clears the stall bits of both EP0 halves and overwrites the OUT buffer.
func (c *Controller) setup(addr uint8, pkt []byte) (pkg.Handshake, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err := c.addressed(addr); err != nil {
		return pkg.HandshakeNAK, err
	}
	ep := &c.eps[0]
	ep.in.Stall = false
	ep.out.Stall = false
	n := copy(ep.out.buf[:], pkt)
	ep.out.Count = n
	ep.out.Status |= hal.StatusSetupComplete | hal.StatusNACK0
	c.ioFlags |= hal.IOSetup
	return pkg.HandshakeACK, nil
}

// out delivers an OUT data transaction.
func (c *Controller) out(addr uint8, epNum uint8, data []byte) (pkg.Handshake, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err := c.addressed(addr); err != nil {
		return pkg.HandshakeNAK, err
	}
	if int(epNum) >= len(c.eps) {
		return pkg.HandshakeNAK, fmt.Errorf("OUT %d: %w", epNum, pkg.ErrInvalidEndpoint)
	}
	h := &c.eps[epNum].out
	switch {
	case h.Type == TypeDisabled:
		return pkg.HandshakeNAK, fmt.Errorf("OUT %d disabled: %w", epNum, pkg.ErrInvalidEndpoint)
	case h.Stall:
		return pkg.HandshakeStall, nil
	case h.Status&hal.StatusNACK0 != 0:
		return pkg.HandshakeNAK, nil
	case len(data) > int(h.BufferSize) || len(data) > BufferBytes:
		return pkg.HandshakeNAK, fmt.Errorf("OUT %d: %d bytes: %w", epNum, len(data), pkg.ErrInvalidParameter)
	}
	h.Count = copy(h.buf[:], data)
	h.Status |= hal.StatusIOComplete | hal.StatusNACK0
	c.ioFlags |= hal.IOComplete
	return pkg.HandshakeACK, nil
}

// in collects an IN data transaction.
func (c *Controller) in(addr uint8, epNum uint8) ([]byte, pkg.Handshake, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err := c.addressed(addr); err != nil {
		return nil, pkg.HandshakeNAK, err
	}
	if int(epNum) >= len(c.eps) {
		return nil, pkg.HandshakeNAK, fmt.Errorf("IN %d: %w", epNum, pkg.ErrInvalidEndpoint)
	}
	h := &c.eps[epNum].in
	switch {
	case h.Type == TypeDisabled:
		return nil, pkg.HandshakeNAK, fmt.Errorf("IN %d disabled: %w", epNum, pkg.ErrInvalidEndpoint)
	case h.Stall:
		return nil, pkg.HandshakeStall, nil
	case h.Status&(hal.StatusNACK0|hal.StatusNotReady) != 0:
		return nil, pkg.HandshakeNAK, nil
	}
	n := min(h.Count, BufferBytes)
	data := make([]byte, n)
	copy(data, h.buf[:n])
	h.Status |= hal.StatusIOComplete | hal.StatusNACK0
	c.ioFlags |= hal.IOComplete
	return data, pkg.HandshakeACK, nil
}
