package device

import (
	"encoding/binary"
	"fmt"

	"github.com/bad-alloc-heavy-industries/mxusb/descriptor"
	"github.com/bad-alloc-heavy-industries/mxusb/pkg"
)

// Standard USB request codes (USB 2.0 Spec Table 9-4).
const (
	RequestGetStatus        = 0x00
	RequestClearFeature     = 0x01
	RequestSetFeature       = 0x03
	RequestSetAddress       = 0x05
	RequestGetDescriptor    = 0x06
	RequestSetDescriptor    = 0x07
	RequestGetConfiguration = 0x08
	RequestSetConfiguration = 0x09
	RequestGetInterface     = 0x0A
	RequestSetInterface     = 0x0B
	RequestSynchFrame       = 0x0C
)

// Feature selectors (USB 2.0 Spec Table 9-6).
const (
	FeatureEndpointHalt       = 0x00 // Endpoint halt feature
	FeatureDeviceRemoteWakeup = 0x01 // Device remote wakeup
	FeatureTestMode           = 0x02 // Test mode
)

// Request type masks (USB 2.0 Spec Table 9-2).
const (
	RequestTypeDirectionMask = 0x80 // Direction bit mask
	RequestTypeTypeMask      = 0x60 // Type bits mask
	RequestTypeRecipientMask = 0x1F // Recipient bits mask
)

// Request type direction values.
const (
	RequestDirectionHostToDevice = 0x00 // Host to device
	RequestDirectionDeviceToHost = 0x80 // Device to host
)

// Request type values.
const (
	RequestTypeStandard = 0x00 // Standard request
	RequestTypeClass    = 0x20 // Class-specific request
	RequestTypeVendor   = 0x40 // Vendor-specific request
	RequestTypeReserved = 0x60
)

// Request recipient values.
const (
	RequestRecipientDevice    = 0x00 // Device recipient
	RequestRecipientInterface = 0x01 // Interface recipient
	RequestRecipientEndpoint  = 0x02 // Endpoint recipient
	RequestRecipientOther     = 0x03 // Other recipient
)

// SetupPacket is the 8-byte SETUP packet that opens every control
// transfer. The stack keeps exactly one, overwritten by each new SETUP.
type SetupPacket struct {
	RequestType uint8  // bmRequestType: direction, type, recipient
	Request     uint8  // bRequest
	Value       uint16 // wValue
	Index       uint16 // wIndex
	Length      uint16 // wLength: bytes the host expects in the data stage
}

// SetupPacketSize is the size of a SETUP packet in bytes.
const SetupPacketSize = 8

// ParseSetupPacket parses a setup packet from data into out.
func ParseSetupPacket(data []byte, out *SetupPacket) error {
	if len(data) < SetupPacketSize {
		return pkg.ErrSetupPacketTooShort
	}
	out.RequestType = data[0]
	out.Request = data[1]
	out.Value = binary.LittleEndian.Uint16(data[2:4])
	out.Index = binary.LittleEndian.Uint16(data[4:6])
	out.Length = binary.LittleEndian.Uint16(data[6:8])
	return nil
}

// MarshalTo serializes the setup packet to buf.
// Returns the number of bytes written, or 0 if buf is too small.
func (s *SetupPacket) MarshalTo(buf []byte) int {
	if len(buf) < SetupPacketSize {
		return 0
	}
	buf[0] = s.RequestType
	buf[1] = s.Request
	binary.LittleEndian.PutUint16(buf[2:4], s.Value)
	binary.LittleEndian.PutUint16(buf[4:6], s.Index)
	binary.LittleEndian.PutUint16(buf[6:8], s.Length)
	return SetupPacketSize
}

// IsDeviceToHost reports whether the data stage flows to the host.
func (s *SetupPacket) IsDeviceToHost() bool {
	return s.RequestType&RequestTypeDirectionMask == RequestDirectionDeviceToHost
}

// Type returns the request type bits (standard, class or vendor).
func (s *SetupPacket) Type() uint8 {
	return s.RequestType & RequestTypeTypeMask
}

// IsStandard reports whether this is a standard request.
func (s *SetupPacket) IsStandard() bool {
	return s.Type() == RequestTypeStandard
}

// Recipient returns the recipient bits.
func (s *SetupPacket) Recipient() uint8 {
	return s.RequestType & RequestTypeRecipientMask
}

// DescriptorType returns the descriptor type in the wValue high byte.
func (s *SetupPacket) DescriptorType() descriptor.Type {
	return descriptor.Type(s.Value >> 8)
}

// DescriptorIndex returns the descriptor index in the wValue low byte.
func (s *SetupPacket) DescriptorIndex() uint8 {
	return uint8(s.Value)
}

// AddressLow returns the SET_ADDRESS address byte.
func (s *SetupPacket) AddressLow() uint8 { return uint8(s.Value) }

// AddressHigh returns the SET_ADDRESS high byte, which must be zero.
func (s *SetupPacket) AddressHigh() uint8 { return uint8(s.Value >> 8) }

// EndpointAddress returns the endpoint address carried in wIndex.
func (s *SetupPacket) EndpointAddress() uint8 {
	return uint8(s.Index)
}

// String returns a human-readable representation of the setup packet.
func (s *SetupPacket) String() string {
	dir := "OUT"
	if s.IsDeviceToHost() {
		dir = "IN"
	}
	typ := "std"
	switch s.Type() {
	case RequestTypeClass:
		typ = "class"
	case RequestTypeVendor:
		typ = "vendor"
	case RequestTypeReserved:
		typ = "reserved"
	}
	return fmt.Sprintf("SETUP[%s %s] bRequest=0x%02X wValue=0x%04X wIndex=0x%04X wLength=%d",
		dir, typ, s.Request, s.Value, s.Index, s.Length)
}

// Bytes returns the packet in wire order.
func (s *SetupPacket) Bytes() [SetupPacketSize]byte {
	var buf [SetupPacketSize]byte
	s.MarshalTo(buf[:])
	return buf
}

// GetDescriptorRequest returns a GET_DESCRIPTOR request.
func GetDescriptorRequest(descType, descIndex uint8, length uint16) SetupPacket {
	return SetupPacket{
		RequestType: RequestDirectionDeviceToHost | RequestTypeStandard | RequestRecipientDevice,
		Request:     RequestGetDescriptor,
		Value:       uint16(descType)<<8 | uint16(descIndex),
		Length:      length,
	}
}

// GetStringRequest returns a GET_DESCRIPTOR request for a string in the
// given language.
func GetStringRequest(index uint8, langID uint16, length uint16) SetupPacket {
	pkt := GetDescriptorRequest(uint8(descriptor.TypeString), index, length)
	pkt.Index = langID
	return pkt
}

// SetAddressRequest returns a SET_ADDRESS request. value carries the whole
// wValue so that malformed high bytes can be expressed.
func SetAddressRequest(value uint16) SetupPacket {
	return SetupPacket{
		RequestType: RequestDirectionHostToDevice | RequestTypeStandard | RequestRecipientDevice,
		Request:     RequestSetAddress,
		Value:       value,
	}
}

// SetConfigurationRequest returns a SET_CONFIGURATION request.
func SetConfigurationRequest(config uint8) SetupPacket {
	return SetupPacket{
		RequestType: RequestDirectionHostToDevice | RequestTypeStandard | RequestRecipientDevice,
		Request:     RequestSetConfiguration,
		Value:       uint16(config),
	}
}

// GetConfigurationRequest returns a GET_CONFIGURATION request.
func GetConfigurationRequest() SetupPacket {
	return SetupPacket{
		RequestType: RequestDirectionDeviceToHost | RequestTypeStandard | RequestRecipientDevice,
		Request:     RequestGetConfiguration,
		Length:      1,
	}
}

// GetStatusRequest returns a GET_STATUS request.
func GetStatusRequest(recipient uint8, index uint16) SetupPacket {
	return SetupPacket{
		RequestType: RequestDirectionDeviceToHost | RequestTypeStandard | recipient,
		Request:     RequestGetStatus,
		Index:       index,
		Length:      2,
	}
}

// FeatureRequest returns a SET_FEATURE or CLEAR_FEATURE request.
func FeatureRequest(set bool, recipient uint8, feature uint16, index uint16) SetupPacket {
	req := uint8(RequestClearFeature)
	if set {
		req = RequestSetFeature
	}
	return SetupPacket{
		RequestType: RequestDirectionHostToDevice | RequestTypeStandard | recipient,
		Request:     req,
		Value:       feature,
		Index:       index,
	}
}

// GetInterfaceRequest returns a GET_INTERFACE request.
func GetInterfaceRequest(iface uint8) SetupPacket {
	return SetupPacket{
		RequestType: RequestDirectionDeviceToHost | RequestTypeStandard | RequestRecipientInterface,
		Request:     RequestGetInterface,
		Index:       uint16(iface),
		Length:      1,
	}
}

// SetInterfaceRequest returns a SET_INTERFACE request.
func SetInterfaceRequest(iface, alt uint8) SetupPacket {
	return SetupPacket{
		RequestType: RequestDirectionHostToDevice | RequestTypeStandard | RequestRecipientInterface,
		Request:     RequestSetInterface,
		Value:       uint16(alt),
		Index:       uint16(iface),
	}
}
