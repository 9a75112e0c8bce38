package device

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bad-alloc-heavy-industries/mxusb/descriptor"
	"github.com/bad-alloc-heavy-industries/mxusb/device/hal"
	"github.com/bad-alloc-heavy-industries/mxusb/flash"
	"github.com/bad-alloc-heavy-industries/mxusb/pkg"
)

// Stack is the device-side control-transfer engine. It owns the setup
// packet, both EP0 transfer statuses and the device and control state,
// and is driven entirely by [Stack.HandleBusEvent] and
// [Stack.HandleIOComplete].
//
// Handlers run in interrupt context: they never block and never nest.
// Scalars the foreground may read while handlers run are atomic.
type Stack struct {
	ctrl    hal.Controller
	set     *descriptor.Set
	ep0Size uint16

	packet   SetupPacket
	setupBuf [SetupPacketSize]byte

	in  TransferStatus
	out TransferStatus

	state        atomic.Uint32
	ctrlState    atomic.Uint32
	suspended    atomic.Bool
	activeConfig atomic.Uint32
	activeAlt    uint8
	frames       atomic.Uint32

	// reply backs the short RAM answers (configuration, interface, status).
	reply   [2]byte
	scratch [hal.MaxPacketSize0]byte

	// responder answers a captured setup packet.
	responder func() Answer

	mutex              sync.RWMutex
	onStateChange      func(old, new State)
	onSetConfiguration func(config uint8)
}

// New creates a stack serving set through ctrl. The EP0 packet size is
// taken from the device descriptor.
func New(ctrl hal.Controller, set *descriptor.Set) (*Stack, error) {
	if ctrl == nil || set == nil || set.Mem == nil {
		return nil, fmt.Errorf("new stack: %w", pkg.ErrInvalidParameter)
	}
	if set.Device == flash.Nil {
		return nil, fmt.Errorf("new stack: no device descriptor: %w", pkg.ErrInvalidDescriptor)
	}
	ep0Size := uint16(flash.ReadByte(set.Mem, set.Device+7))
	switch ep0Size {
	case 8, 16, 32, 64:
	default:
		return nil, fmt.Errorf("new stack: bMaxPacketSize0 %d: %w", ep0Size, pkg.ErrInvalidDescriptor)
	}
	if ctrl.Endpoints() < 1 {
		return nil, fmt.Errorf("new stack: controller has no endpoints: %w", pkg.ErrInvalidEndpoint)
	}

	s := &Stack{ctrl: ctrl, set: set, ep0Size: ep0Size}
	s.responder = s.handleStandardRequest
	return s, nil
}

// Init brings the peripheral up and attaches to the bus: EP0 as a control
// endpoint owned by the CPU, EP1 OUT disabled and EP1 IN stalled until a
// configuration is selected, address 0 and only the bus event interrupt
// enabled.
func (s *Stack) Init() {
	irq := hal.DisableInterrupts()
	defer hal.RestoreInterrupts(irq)

	c := s.ctrl
	c.Detach()
	c.EnableIO(false)
	c.EnableBusEvents(0)
	c.ResetAll(hal.ScopeAll)

	c.Configure(0, hal.Out, hal.Control, s.ep0Size)
	c.SetStatus(0, hal.Out, hal.StatusNACK0)
	c.Configure(0, hal.In, hal.Control, s.ep0Size)
	c.SetStatus(0, hal.In, hal.StatusNACK0)
	if c.Endpoints() > 1 {
		c.Disable(1, hal.Out)
		c.SetStall(1, hal.Out, true)
		c.Configure(1, hal.In, hal.Bulk, s.ep0Size)
		c.SetStall(1, hal.In, true)
	}

	c.SetAddress(0)
	c.EnableBusEvents(hal.BusEventsAll)

	s.in.reset()
	s.out.reset()
	s.activeConfig.Store(0)
	s.suspended.Store(false)
	s.setState(StateDetached)
	s.setControlState(ControlIdle)
	c.Attach()

	pkg.LogDebug(pkg.ComponentBus, "controller initialised",
		"endpoints", c.Endpoints(), "ep0", s.ep0Size)
}

// Detach disconnects from the bus.
func (s *Stack) Detach() {
	irq := hal.DisableInterrupts()
	defer hal.RestoreInterrupts(irq)
	s.ctrl.Detach()
	s.ctrl.EnableIO(false)
	s.setState(StateDetached)
	s.setControlState(ControlIdle)
}

// State returns the device state.
func (s *Stack) State() State {
	return State(s.state.Load())
}

func (s *Stack) setState(state State) {
	old := State(s.state.Swap(uint32(state)))
	if old == state {
		return
	}
	pkg.LogDebug(pkg.ComponentBus, "device state", "from", old, "to", state)

	s.mutex.RLock()
	cb := s.onStateChange
	s.mutex.RUnlock()
	if cb != nil {
		cb(old, state)
	}
}

// ControlState returns the phase of the EP0 transfer in progress.
func (s *Stack) ControlState() ControlState {
	return ControlState(s.ctrlState.Load())
}

func (s *Stack) setControlState(state ControlState) {
	s.ctrlState.Store(uint32(state))
}

// Suspended reports whether the bus is suspended.
func (s *Stack) Suspended() bool {
	return s.suspended.Load()
}

// ActiveConfiguration returns the selected bConfigurationValue, 0 when
// unconfigured.
func (s *Stack) ActiveConfiguration() uint8 {
	return uint8(s.activeConfig.Load())
}

// IsConfigured reports whether a non-zero configuration is active.
func (s *Stack) IsConfigured() bool {
	return s.ActiveConfiguration() != 0
}

// Address returns the committed device address.
func (s *Stack) Address() uint8 {
	return s.ctrl.Address()
}

// FrameCount returns the number of start-of-frame tokens seen.
func (s *Stack) FrameCount() uint32 {
	return s.frames.Load()
}

// EP0Size returns the control endpoint's max packet size.
func (s *Stack) EP0Size() uint16 {
	return s.ep0Size
}

// Setup returns the most recently captured setup packet.
func (s *Stack) Setup() SetupPacket {
	return s.packet
}

// SetOnStateChange sets a callback run, in interrupt context, on every
// device state change.
func (s *Stack) SetOnStateChange(cb func(old, new State)) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.onStateChange = cb
}

// SetOnSetConfiguration sets a callback run, in interrupt context, after
// SET_CONFIGURATION selects a valid configuration.
func (s *Stack) SetOnSetConfiguration(cb func(config uint8)) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.onSetConfiguration = cb
}
