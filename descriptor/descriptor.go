package descriptor

import (
	"encoding/binary"

	"github.com/bad-alloc-heavy-industries/mxusb/pkg"
)

// Type is a descriptor type code (USB 2.0 Spec Table 9-5, HID 1.11 7.1).
type Type uint8

// Descriptor types.
const (
	TypeInvalid              Type = 0x00
	TypeDevice               Type = 0x01
	TypeConfiguration        Type = 0x02
	TypeString               Type = 0x03
	TypeInterface            Type = 0x04
	TypeEndpoint             Type = 0x05
	TypeDeviceQualifier      Type = 0x06
	TypeOtherSpeed           Type = 0x07
	TypeInterfacePower       Type = 0x08
	TypeOTG                  Type = 0x09
	TypeDebug                Type = 0x0A
	TypeInterfaceAssociation Type = 0x0B
	TypeDeviceCapability     Type = 0x10
	TypeHID                  Type = 0x21
	TypeHIDReport            Type = 0x22
	TypeHIDPhysical          Type = 0x23
)

// String returns the descriptor type name.
func (t Type) String() string {
	switch t {
	case TypeDevice:
		return "device"
	case TypeConfiguration:
		return "configuration"
	case TypeString:
		return "string"
	case TypeInterface:
		return "interface"
	case TypeEndpoint:
		return "endpoint"
	case TypeDeviceQualifier:
		return "device qualifier"
	case TypeOtherSpeed:
		return "other speed configuration"
	case TypeHID:
		return "hid"
	case TypeHIDReport:
		return "hid report"
	default:
		return "unknown"
	}
}

// USB class codes.
const (
	ClassNone        = 0x00 // Class defined at interface level
	ClassAudio       = 0x01
	ClassCDC         = 0x02
	ClassHID         = 0x03
	ClassMassStorage = 0x08
	ClassHub         = 0x09
	ClassVendor      = 0xFF
)

// HID subclass and protocol codes.
const (
	HIDSubclassNone          = 0x00
	HIDSubclassBootInterface = 0x01
	HIDProtocolNone          = 0x00
	HIDProtocolKeyboard      = 0x01
	HIDProtocolMouse         = 0x02
)

// Configuration attribute bits.
const (
	ConfigAttrBusPowered   = 0x80 // Reserved, always set
	ConfigAttrSelfPowered  = 0x40
	ConfigAttrRemoteWakeup = 0x20
)

// Wire sizes.
const (
	DeviceSize          = 18
	QualifierSize       = 10
	ConfigurationSize   = 9
	InterfaceSize       = 9
	EndpointSize        = 7
	HIDSize             = 6
	ReportReferenceSize = 3
	StringHeaderSize    = 2

	// MaxLength is the largest value the one-byte bLength field can hold.
	MaxLength = 255
)

// LangIDUSEnglish is the language ID for US English.
const LangIDUSEnglish = 0x0409

// EndpointType is the transfer type in bmAttributes bits 1:0.
type EndpointType uint8

// Endpoint transfer types.
const (
	EndpointTypeControl     EndpointType = 0
	EndpointTypeIsochronous EndpointType = 1
	EndpointTypeBulk        EndpointType = 2
	EndpointTypeInterrupt   EndpointType = 3
)

// String returns the transfer type name.
func (t EndpointType) String() string {
	switch t & 0x03 {
	case EndpointTypeControl:
		return "control"
	case EndpointTypeIsochronous:
		return "isochronous"
	case EndpointTypeBulk:
		return "bulk"
	default:
		return "interrupt"
	}
}

// Endpoint address fields.
const (
	EndpointDirIn      = 0x80
	EndpointNumberMask = 0x7F
)

// EndpointAddress combines a direction bit and an endpoint number.
func EndpointAddress(in bool, number uint8) uint8 {
	addr := number & EndpointNumberMask
	if in {
		addr |= EndpointDirIn
	}
	return addr
}

// DeviceDescriptor represents a USB device descriptor (18 bytes).
type DeviceDescriptor struct {
	USBVersion        uint16 // bcdUSB
	DeviceClass       uint8
	DeviceSubClass    uint8
	DeviceProtocol    uint8
	MaxPacketSize0    uint8
	VendorID          uint16
	ProductID         uint16
	DeviceVersion     uint16 // bcdDevice
	ManufacturerIndex uint8
	ProductIndex      uint8
	SerialNumberIndex uint8
	NumConfigurations uint8
}

// MarshalTo serializes the device descriptor to buf.
// Returns the number of bytes written, or 0 if buf is too small.
func (d *DeviceDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < DeviceSize {
		return 0
	}
	buf[0] = DeviceSize
	buf[1] = byte(TypeDevice)
	binary.LittleEndian.PutUint16(buf[2:4], d.USBVersion)
	buf[4] = d.DeviceClass
	buf[5] = d.DeviceSubClass
	buf[6] = d.DeviceProtocol
	buf[7] = d.MaxPacketSize0
	binary.LittleEndian.PutUint16(buf[8:10], d.VendorID)
	binary.LittleEndian.PutUint16(buf[10:12], d.ProductID)
	binary.LittleEndian.PutUint16(buf[12:14], d.DeviceVersion)
	buf[14] = d.ManufacturerIndex
	buf[15] = d.ProductIndex
	buf[16] = d.SerialNumberIndex
	buf[17] = d.NumConfigurations
	return DeviceSize
}

// ParseDevice parses a device descriptor from data into out.
func ParseDevice(data []byte, out *DeviceDescriptor) error {
	if err := check(data, DeviceSize, TypeDevice); err != nil {
		return err
	}
	out.USBVersion = binary.LittleEndian.Uint16(data[2:4])
	out.DeviceClass = data[4]
	out.DeviceSubClass = data[5]
	out.DeviceProtocol = data[6]
	out.MaxPacketSize0 = data[7]
	out.VendorID = binary.LittleEndian.Uint16(data[8:10])
	out.ProductID = binary.LittleEndian.Uint16(data[10:12])
	out.DeviceVersion = binary.LittleEndian.Uint16(data[12:14])
	out.ManufacturerIndex = data[14]
	out.ProductIndex = data[15]
	out.SerialNumberIndex = data[16]
	out.NumConfigurations = data[17]
	return nil
}

// QualifierDescriptor represents a device qualifier descriptor (10 bytes).
// It describes how the device would behave at the other operating speed.
type QualifierDescriptor struct {
	USBVersion             uint16
	DeviceClass            uint8
	DeviceSubClass         uint8
	DeviceProtocol         uint8
	MaxPacketSize0         uint8
	NumOtherConfigurations uint8
}

// MarshalTo serializes the qualifier descriptor to buf.
// The trailing reserved byte is always written as zero.
func (q *QualifierDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < QualifierSize {
		return 0
	}
	buf[0] = QualifierSize
	buf[1] = byte(TypeDeviceQualifier)
	binary.LittleEndian.PutUint16(buf[2:4], q.USBVersion)
	buf[4] = q.DeviceClass
	buf[5] = q.DeviceSubClass
	buf[6] = q.DeviceProtocol
	buf[7] = q.MaxPacketSize0
	buf[8] = q.NumOtherConfigurations
	buf[9] = 0
	return QualifierSize
}

// ParseQualifier parses a device qualifier descriptor from data into out.
func ParseQualifier(data []byte, out *QualifierDescriptor) error {
	if err := check(data, QualifierSize, TypeDeviceQualifier); err != nil {
		return err
	}
	out.USBVersion = binary.LittleEndian.Uint16(data[2:4])
	out.DeviceClass = data[4]
	out.DeviceSubClass = data[5]
	out.DeviceProtocol = data[6]
	out.MaxPacketSize0 = data[7]
	out.NumOtherConfigurations = data[8]
	return nil
}

// ConfigurationDescriptor represents a configuration descriptor (9 bytes).
type ConfigurationDescriptor struct {
	TotalLength        uint16 // wTotalLength of the whole configuration
	NumInterfaces      uint8
	ConfigurationValue uint8 // Value selected by SET_CONFIGURATION
	ConfigurationIndex uint8 // String index
	Attributes         uint8
	MaxPower           uint8 // 2 mA units
}

// MarshalTo serializes the configuration descriptor to buf.
func (c *ConfigurationDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < ConfigurationSize {
		return 0
	}
	buf[0] = ConfigurationSize
	buf[1] = byte(TypeConfiguration)
	binary.LittleEndian.PutUint16(buf[2:4], c.TotalLength)
	buf[4] = c.NumInterfaces
	buf[5] = c.ConfigurationValue
	buf[6] = c.ConfigurationIndex
	buf[7] = c.Attributes
	buf[8] = c.MaxPower
	return ConfigurationSize
}

// ParseConfiguration parses a configuration descriptor from data into out.
func ParseConfiguration(data []byte, out *ConfigurationDescriptor) error {
	if err := check(data, ConfigurationSize, TypeConfiguration); err != nil {
		return err
	}
	out.TotalLength = binary.LittleEndian.Uint16(data[2:4])
	out.NumInterfaces = data[4]
	out.ConfigurationValue = data[5]
	out.ConfigurationIndex = data[6]
	out.Attributes = data[7]
	out.MaxPower = data[8]
	return nil
}

// InterfaceDescriptor represents an interface descriptor (9 bytes).
type InterfaceDescriptor struct {
	InterfaceNumber   uint8
	AlternateSetting  uint8
	NumEndpoints      uint8 // Excluding EP0
	InterfaceClass    uint8
	InterfaceSubClass uint8
	InterfaceProtocol uint8
	InterfaceIndex    uint8 // String index
}

// MarshalTo serializes the interface descriptor to buf.
func (i *InterfaceDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < InterfaceSize {
		return 0
	}
	buf[0] = InterfaceSize
	buf[1] = byte(TypeInterface)
	buf[2] = i.InterfaceNumber
	buf[3] = i.AlternateSetting
	buf[4] = i.NumEndpoints
	buf[5] = i.InterfaceClass
	buf[6] = i.InterfaceSubClass
	buf[7] = i.InterfaceProtocol
	buf[8] = i.InterfaceIndex
	return InterfaceSize
}

// ParseInterface parses an interface descriptor from data into out.
func ParseInterface(data []byte, out *InterfaceDescriptor) error {
	if err := check(data, InterfaceSize, TypeInterface); err != nil {
		return err
	}
	out.InterfaceNumber = data[2]
	out.AlternateSetting = data[3]
	out.NumEndpoints = data[4]
	out.InterfaceClass = data[5]
	out.InterfaceSubClass = data[6]
	out.InterfaceProtocol = data[7]
	out.InterfaceIndex = data[8]
	return nil
}

// EndpointDescriptor represents an endpoint descriptor (7 bytes).
type EndpointDescriptor struct {
	EndpointAddress uint8 // Number plus direction bit
	Attributes      uint8 // Transfer type in bits 1:0
	MaxPacketSize   uint16
	Interval        uint8 // Polling interval in frames
}

// Number returns the endpoint number without the direction bit.
func (e *EndpointDescriptor) Number() uint8 {
	return e.EndpointAddress & EndpointNumberMask
}

// IsIn reports whether the endpoint sends data to the host.
func (e *EndpointDescriptor) IsIn() bool {
	return e.EndpointAddress&EndpointDirIn != 0
}

// TransferType returns the transfer type from the attributes.
func (e *EndpointDescriptor) TransferType() EndpointType {
	return EndpointType(e.Attributes & 0x03)
}

// MarshalTo serializes the endpoint descriptor to buf.
func (e *EndpointDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < EndpointSize {
		return 0
	}
	buf[0] = EndpointSize
	buf[1] = byte(TypeEndpoint)
	buf[2] = e.EndpointAddress
	buf[3] = e.Attributes
	binary.LittleEndian.PutUint16(buf[4:6], e.MaxPacketSize)
	buf[6] = e.Interval
	return EndpointSize
}

// ParseEndpoint parses an endpoint descriptor from data into out.
func ParseEndpoint(data []byte, out *EndpointDescriptor) error {
	if err := check(data, EndpointSize, TypeEndpoint); err != nil {
		return err
	}
	out.EndpointAddress = data[2]
	out.Attributes = data[3]
	out.MaxPacketSize = binary.LittleEndian.Uint16(data[4:6])
	out.Interval = data[6]
	return nil
}

// HIDDescriptor is the HID class descriptor header (6 bytes). The report
// descriptor references that follow it are separate [ReportReference]
// records.
type HIDDescriptor struct {
	HIDVersion     uint16 // bcdHID
	CountryCode    uint8
	NumDescriptors uint8
}

// Length returns the descriptor's bLength: the header plus the report
// references that follow it.
func (h *HIDDescriptor) Length() int {
	return HIDSize + ReportReferenceSize*int(h.NumDescriptors)
}

// MarshalTo serializes the HID class descriptor header to buf. The report
// references are placed separately, directly after it.
func (h *HIDDescriptor) MarshalTo(buf []byte) int {
	if len(buf) < HIDSize {
		return 0
	}
	buf[0] = byte(h.Length())
	buf[1] = byte(TypeHID)
	binary.LittleEndian.PutUint16(buf[2:4], h.HIDVersion)
	buf[4] = h.CountryCode
	buf[5] = h.NumDescriptors
	return HIDSize
}

// ParseHID parses a HID class descriptor header from data into out.
func ParseHID(data []byte, out *HIDDescriptor) error {
	if len(data) < HIDSize {
		return pkg.ErrDescriptorTooShort
	}
	if Type(data[1]) != TypeHID {
		return pkg.ErrDescriptorTypeMismatch
	}
	if int(data[0]) != HIDSize+ReportReferenceSize*int(data[5]) {
		return pkg.ErrInvalidDescriptor
	}
	out.HIDVersion = binary.LittleEndian.Uint16(data[2:4])
	out.CountryCode = data[4]
	out.NumDescriptors = data[5]
	return nil
}

// ReportReference names one class descriptor of a HID interface (3 bytes):
// its type and its length.
type ReportReference struct {
	DescriptorType Type
	Length         uint16
}

// MarshalTo serializes the report reference to buf.
func (r *ReportReference) MarshalTo(buf []byte) int {
	if len(buf) < ReportReferenceSize {
		return 0
	}
	buf[0] = byte(r.DescriptorType)
	binary.LittleEndian.PutUint16(buf[1:3], r.Length)
	return ReportReferenceSize
}

// StringHeader writes the two-byte header of a string descriptor whose
// UTF-16LE payload is payloadLen bytes long.
func StringHeader(buf []byte, payloadLen int) int {
	if len(buf) < StringHeaderSize || StringHeaderSize+payloadLen > MaxLength {
		return 0
	}
	buf[0] = uint8(StringHeaderSize + payloadLen)
	buf[1] = byte(TypeString)
	return StringHeaderSize
}

// check validates the common two-byte descriptor header.
func check(data []byte, size int, typ Type) error {
	if len(data) < size {
		return pkg.ErrDescriptorTooShort
	}
	if Type(data[1]) != typ {
		return pkg.ErrDescriptorTypeMismatch
	}
	if int(data[0]) != size {
		return pkg.ErrInvalidDescriptor
	}
	return nil
}
