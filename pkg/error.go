package pkg

import "errors"

// Protocol and build-time errors. The interrupt path never returns these;
// it degrades to a stall instead. They surface from descriptor linking,
// configuration loading and the simulated host.
var (
	// ErrStall indicates the device answered with a STALL handshake.
	ErrStall = errors.New("endpoint stalled")

	// ErrNAK indicates the device had nothing to send or could not accept data.
	ErrNAK = errors.New("NAK received")

	// ErrTruncated indicates fewer bytes arrived than the transaction declared.
	ErrTruncated = errors.New("truncated transfer")

	// ErrInvalidRequest indicates an invalid or unsupported request.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotSupported indicates a request class the stack does not implement.
	ErrNotSupported = errors.New("not supported")

	// ErrAddressRejected indicates a SET_ADDRESS that failed the commit check.
	ErrAddressRejected = errors.New("address rejected")

	// ErrInvalidDescriptor indicates a malformed descriptor record.
	ErrInvalidDescriptor = errors.New("invalid descriptor")

	// ErrDescriptorTooShort indicates the descriptor data is too short.
	ErrDescriptorTooShort = errors.New("descriptor too short")

	// ErrDescriptorTypeMismatch indicates the descriptor type does not match expected.
	ErrDescriptorTypeMismatch = errors.New("descriptor type mismatch")

	// ErrSetupPacketTooShort indicates the setup packet data is too short.
	ErrSetupPacketTooShort = errors.New("setup packet too short")

	// ErrImageFull indicates the constant-memory image has no room left.
	ErrImageFull = errors.New("constant memory image full")

	// ErrImageSealed indicates a write to an image after it was built.
	ErrImageSealed = errors.New("constant memory image sealed")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInvalidEndpoint indicates an endpoint number the controller lacks.
	ErrInvalidEndpoint = errors.New("invalid endpoint")

	// ErrNotRunning indicates the simulated bus dispatcher is not running.
	ErrNotRunning = errors.New("not running")

	// ErrAlreadyRunning indicates the simulated bus dispatcher is already running.
	ErrAlreadyRunning = errors.New("already running")
)

// Handshake is the response a host observes for one transaction.
type Handshake int

// Handshake values.
const (
	HandshakeACK   Handshake = iota // Data accepted or delivered
	HandshakeNAK                    // Endpoint not ready
	HandshakeStall                  // Endpoint stalled
)

// String returns a string representation of the handshake.
func (h Handshake) String() string {
	switch h {
	case HandshakeACK:
		return "ack"
	case HandshakeNAK:
		return "nak"
	case HandshakeStall:
		return "stall"
	default:
		return "unknown"
	}
}

// Error returns the corresponding error for the handshake.
func (h Handshake) Error() error {
	switch h {
	case HandshakeACK:
		return nil
	case HandshakeNAK:
		return ErrNAK
	case HandshakeStall:
		return ErrStall
	default:
		return ErrInvalidRequest
	}
}
