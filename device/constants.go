package device

import "fmt"

// State is the device's position in the enumeration sequence.
type State uint8

// Device states. Configured is not a state of its own; it is implied by a
// non-zero active configuration. Suspended is tracked separately.
const (
	StateDetached   State = iota // Not connected to the bus
	StateAttached                // Connected, reset in progress
	StatePowered                 // First bus event seen
	StateWaiting                 // Default address, waiting for SET_ADDRESS
	StateAddressing              // SET_ADDRESS acknowledged, not yet committed
	StateAddressed               // Address committed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDetached:
		return "detached"
	case StateAttached:
		return "attached"
	case StatePowered:
		return "powered"
	case StateWaiting:
		return "waiting"
	case StateAddressing:
		return "addressing"
	case StateAddressed:
		return "addressed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// ControlState is the phase of the transfer in progress on EP0.
type ControlState uint8

// Control transfer phases.
const (
	ControlIdle     ControlState = iota
	ControlWait                  // SETUP captured, reply not started
	ControlDataRX                // Receiving the OUT data stage
	ControlDataTX                // Sending the IN data stage
	ControlStatusRX              // Waiting for the host's zero-length OUT
	ControlStatusTX              // Sending the zero-length IN status
)

// String returns the phase name.
func (c ControlState) String() string {
	switch c {
	case ControlIdle:
		return "idle"
	case ControlWait:
		return "wait"
	case ControlDataRX:
		return "dataRX"
	case ControlDataTX:
		return "dataTX"
	case ControlStatusRX:
		return "statusRX"
	case ControlStatusTX:
		return "statusTX"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// Response is the responder's verdict on a SETUP packet.
type Response uint8

// Responses.
const (
	ResponseUnhandled  Response = iota // No handler claimed the request
	ResponseData                       // Reply with a data stage
	ResponseZeroLength                 // Acknowledge with a zero-length status
	ResponseStall                      // Refuse the request
)

// String returns the response name.
func (r Response) String() string {
	switch r {
	case ResponseUnhandled:
		return "unhandled"
	case ResponseData:
		return "data"
	case ResponseZeroLength:
		return "zeroLength"
	case ResponseStall:
		return "stall"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(r))
	}
}

// Memory tags where a transfer's bytes live.
type Memory uint8

// Memory kinds.
const (
	MemoryRAM       Memory = iota // A byte slice
	MemoryFlash                   // A contiguous constant-memory record
	MemoryMultiPart               // A descriptor.Table of constant-memory fragments
)

// String returns the memory kind name.
func (m Memory) String() string {
	switch m {
	case MemoryRAM:
		return "ram"
	case MemoryFlash:
		return "flash"
	case MemoryMultiPart:
		return "multipart"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}
