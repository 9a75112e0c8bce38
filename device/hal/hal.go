package hal

import (
	"fmt"

	"github.com/bad-alloc-heavy-industries/mxusb/pkg"
)

// MaxPacketSize0 is the largest control endpoint packet a full-speed
// controller supports.
const MaxPacketSize0 = 64

// Direction selects one half of an endpoint. The values match the
// direction bit of an endpoint address.
type Direction uint8

// Endpoint directions, named from the host's point of view.
const (
	Out Direction = 0x00 // Host to device
	In  Direction = 0x80 // Device to host
)

// String returns "OUT" or "IN".
func (d Direction) String() string {
	if d == In {
		return "IN"
	}
	return "OUT"
}

// TransferType is a USB transfer type as encoded in bmAttributes bits 1:0.
// Controllers map it onto whatever endpoint types their hardware has.
type TransferType uint8

// Transfer types.
const (
	Control     TransferType = 0
	Isochronous TransferType = 1
	Bulk        TransferType = 2
	Interrupt   TransferType = 3
)

// Scope selects which endpoints ResetAll touches.
type Scope uint8

// Reset scopes.
const (
	ScopeAll  Scope = iota // Every endpoint including EP0
	ScopeUser              // Every endpoint except EP0
)

// Status holds the per-endpoint-half status flags.
type Status uint8

// Status flags.
const (
	// StatusNACK0 marks the buffer as owned by the CPU. The controller NAKs
	// the host while it is set.
	StatusNACK0 Status = 1 << iota
	StatusNACK1
	StatusNotReady
	StatusStall
	// StatusIOComplete is set when a transaction finished on this half.
	StatusIOComplete
	// StatusSetupComplete is set on EP0 OUT when a SETUP packet arrived.
	StatusSetupComplete
)

// String returns the set flags separated by '|'.
func (s Status) String() string {
	names := [...]string{"NACK0", "NACK1", "NOTREADY", "STALL", "IOCOMPL", "SETUP"}
	out := ""
	for i, name := range names {
		if s&(1<<i) == 0 {
			continue
		}
		if out != "" {
			out += "|"
		}
		out += name
	}
	if out == "" {
		return "0"
	}
	return out
}

// BusEvent holds bus-level interrupt flags.
type BusEvent uint8

// Bus events.
const (
	BusReset BusEvent = 1 << iota
	BusSuspend
	BusResume
	BusSOF
)

// BusEventsAll enables every bus event except start of frame.
const BusEventsAll = BusReset | BusSuspend | BusResume

// String returns the set events separated by '|'.
func (e BusEvent) String() string {
	names := [...]string{"reset", "suspend", "resume", "sof"}
	out := ""
	for i, name := range names {
		if e&(1<<i) == 0 {
			continue
		}
		if out != "" {
			out += "|"
		}
		out += name
	}
	if out == "" {
		return "none"
	}
	return out
}

// IOFlag holds the transaction interrupt flags.
type IOFlag uint8

// Transaction interrupt flags.
const (
	IOComplete IOFlag = 1 << iota
	IOSetup
)

// Controller is the register-level view of a USB device peripheral that
// the control-transfer engine drives.
//
// Every method is called from interrupt context except during bring-up,
// and none of them block. Endpoint numbers are never range-checked by the
// caller beyond what [Controller.Endpoints] reports.
type Controller interface {
	// Endpoints returns the number of endpoints the peripheral has.
	Endpoints() int

	// Configure sets the transfer type and max packet size of one endpoint
	// half and clears its byte count.
	Configure(ep uint8, dir Direction, typ TransferType, maxPacketSize uint16)

	// Disable turns an endpoint half off.
	Disable(ep uint8, dir Direction)

	// ResetEndpoint clears the stall bit and leaves only StatusNACK0 set.
	ResetEndpoint(ep uint8, dir Direction)

	// ResetAll disables and clears every endpoint in scope.
	ResetAll(scope Scope)

	// SetStall sets or clears the stall control bit.
	SetStall(ep uint8, dir Direction, stall bool)

	// Stalled reports whether the stall control bit is set.
	Stalled(ep uint8, dir Direction) bool

	// EnableInterrupt unmasks or masks the endpoint half's own interrupt.
	EnableInterrupt(ep uint8, dir Direction, enable bool)

	// Status returns the status flags of an endpoint half.
	Status(ep uint8, dir Direction) Status

	// SetStatus overwrites the status flags.
	SetStatus(ep uint8, dir Direction, status Status)

	// ClearStatus clears the given status flags.
	ClearStatus(ep uint8, dir Direction, flags Status)

	// Received returns the byte count of the last OUT transaction.
	Received(ep uint8) int

	// CopyIn copies n bytes from the OUT buffer into dst and returns dst[n:].
	CopyIn(ep uint8, dst []byte, n int) []byte

	// CopyOut copies n bytes of src into the IN buffer starting at offset
	// and returns src[n:].
	CopyOut(ep uint8, src []byte, n int, offset int) []byte

	// Arm hands an endpoint buffer to the controller. For IN, n bytes are
	// queued for the host. For OUT, the count is cleared, all status flags
	// are cleared and the buffer accepts the next packet.
	Arm(ep uint8, dir Direction, n int)

	// SetAddress writes the device address register.
	SetAddress(addr uint8)

	// Address reads the device address register.
	Address() uint8

	// BusEvents returns the pending bus event flags.
	BusEvents() BusEvent

	// ClearBusEvents acknowledges bus event flags.
	ClearBusEvents(events BusEvent)

	// EnableBusEvents sets the bus interrupt enables to exactly events.
	EnableBusEvents(events BusEvent)

	// EnableIO enables or disables the transaction interrupts.
	EnableIO(enable bool)

	// ClearIO acknowledges transaction interrupt flags.
	ClearIO(flags IOFlag)

	// Attach connects the pull-up so the host sees the device.
	Attach()

	// Detach disconnects from the bus.
	Detach()
}

// ValidEndpoint reports an error if ep is out of range for c.
func ValidEndpoint(c Controller, ep uint8) error {
	if int(ep) >= c.Endpoints() {
		return fmt.Errorf("endpoint %d of %d: %w", ep, c.Endpoints(), pkg.ErrInvalidEndpoint)
	}
	return nil
}
