package keyboard

import (
	"fmt"

	"github.com/bad-alloc-heavy-industries/mxusb/descriptor"
	"github.com/bad-alloc-heavy-industries/mxusb/flash"
	"github.com/bad-alloc-heavy-industries/mxusb/pkg"
)

// Image placement. The image straddles a 64 KiB bank boundary so reads
// exercise the bank register.
const (
	ImageBase flash.Address = 0x0000_FF00
	ImageSize               = 1024
)

// String descriptor indices.
const (
	StringLanguages    = 0
	StringManufacturer = 1
	StringProduct      = 2
	StringSerial       = 3
	StringInterface    = 4
)

// Defaults for the MXKeyboard.
const (
	DefaultVendorID      = 0x1209
	DefaultProductID     = 0xBADB
	DefaultDeviceVersion = 0x0001
	DefaultPacketSize    = 64
	DefaultInterval      = 1
	DefaultMaxPower      = 250 // 500 mA
)

// ReportEndpoint is the interrupt IN endpoint number carrying key reports.
const ReportEndpoint = 1

// ReportDescriptor is the HID boot keyboard report descriptor: one modifier
// byte, one reserved byte, five LED output bits plus padding, and a
// six-key array.
var ReportDescriptor = [...]byte{
	0x05, 0x01, // Usage Page (Generic Desktop)
	0x09, 0x06, // Usage (Keyboard)
	0xA1, 0x01, // Collection (Application)
	0x05, 0x07, //   Usage Page (Keyboard/Keypad)
	0x19, 0xE0, //   Usage Minimum (Left Control)
	0x29, 0xE7, //   Usage Maximum (Right GUI)
	0x15, 0x00, //   Logical Minimum (0)
	0x25, 0x01, //   Logical Maximum (1)
	0x75, 0x01, //   Report Size (1)
	0x95, 0x08, //   Report Count (8)
	0x81, 0x02, //   Input (Data, Variable, Absolute)
	0x95, 0x01, //   Report Count (1)
	0x75, 0x08, //   Report Size (8)
	0x81, 0x01, //   Input (Constant)
	0x95, 0x05, //   Report Count (5)
	0x75, 0x01, //   Report Size (1)
	0x05, 0x08, //   Usage Page (LEDs)
	0x19, 0x01, //   Usage Minimum (Num Lock)
	0x29, 0x05, //   Usage Maximum (Kana)
	0x91, 0x02, //   Output (Data, Variable, Absolute)
	0x95, 0x01, //   Report Count (1)
	0x75, 0x03, //   Report Size (3)
	0x91, 0x01, //   Output (Constant)
	0x95, 0x06, //   Report Count (6)
	0x75, 0x08, //   Report Size (8)
	0x15, 0x00, //   Logical Minimum (0)
	0x25, 0x65, //   Logical Maximum (101)
	0x05, 0x07, //   Usage Page (Keyboard/Keypad)
	0x19, 0x00, //   Usage Minimum (0)
	0x29, 0x65, //   Usage Maximum (101)
	0x81, 0x00, //   Input (Data, Array)
	0xC0, // End Collection
}

// Options selects the identity and timing of the linked device.
type Options struct {
	VendorID      uint16
	ProductID     uint16
	DeviceVersion uint16

	// MaxPacketSize0 is the EP0 packet size: 8, 16, 32 or 64.
	MaxPacketSize0 uint8

	Manufacturer string
	Product      string
	Serial       string
	Interface    string

	// Interval is the report endpoint polling interval in frames.
	Interval uint8
	MaxPower uint8
}

// DefaultOptions returns the MXKeyboard identity.
func DefaultOptions() Options {
	return Options{
		VendorID:       DefaultVendorID,
		ProductID:      DefaultProductID,
		DeviceVersion:  DefaultDeviceVersion,
		MaxPacketSize0: DefaultPacketSize,
		Manufacturer:   "bad_alloc Heavy Industries",
		Product:        "MXKeyboard",
		Interface:      "HID keyboard interface",
		Interval:       DefaultInterval,
		MaxPower:       DefaultMaxPower,
	}
}

// ValidPacketSize reports whether n is a legal full-speed EP0 size.
func ValidPacketSize(n uint8) bool {
	switch n {
	case 8, 16, 32, 64:
		return true
	}
	return false
}

// Build links the keyboard's descriptor set into a fresh image and seals
// it. The returned set reads from the returned image.
func Build(opts Options) (*descriptor.Set, *flash.Image, error) {
	if !ValidPacketSize(opts.MaxPacketSize0) {
		return nil, nil, fmt.Errorf("ep0 packet size %d: %w", opts.MaxPacketSize0, pkg.ErrInvalidParameter)
	}
	if opts.Interval == 0 {
		return nil, nil, fmt.Errorf("report interval 0: %w", pkg.ErrInvalidParameter)
	}

	img := flash.NewImage(ImageBase, ImageSize)
	l := descriptor.NewLinker(img)

	l.Device(&descriptor.DeviceDescriptor{
		USBVersion:        0x0200,
		DeviceClass:       descriptor.ClassNone,
		MaxPacketSize0:    opts.MaxPacketSize0,
		VendorID:          opts.VendorID,
		ProductID:         opts.ProductID,
		DeviceVersion:     opts.DeviceVersion,
		ManufacturerIndex: StringManufacturer,
		ProductIndex:      StringProduct,
		NumConfigurations: 1,
	})
	l.Qualifier(&descriptor.QualifierDescriptor{
		USBVersion:     0x0200,
		DeviceClass:    descriptor.ClassNone,
		MaxPacketSize0: opts.MaxPacketSize0,
	})

	iface := l.Interface(&descriptor.InterfaceDescriptor{
		NumEndpoints:      1,
		InterfaceClass:    descriptor.ClassHID,
		InterfaceSubClass: descriptor.HIDSubclassBootInterface,
		InterfaceProtocol: descriptor.HIDProtocolKeyboard,
	})
	hid := l.HIDClass(&descriptor.HIDDescriptor{
		HIDVersion:     0x0111,
		NumDescriptors: 1,
	})
	report := l.HIDReportRef(&descriptor.ReportReference{
		DescriptorType: descriptor.TypeHIDReport,
		Length:         uint16(len(ReportDescriptor)),
	})
	ep := l.Endpoint(&descriptor.EndpointDescriptor{
		EndpointAddress: descriptor.EndpointAddress(true, ReportEndpoint),
		Attributes:      uint8(descriptor.EndpointTypeInterrupt),
		MaxPacketSize:   uint16(opts.MaxPacketSize0),
		Interval:        opts.Interval,
	})
	l.Configuration(&descriptor.ConfigurationDescriptor{
		NumInterfaces:      1,
		ConfigurationValue: 1,
		ConfigurationIndex: StringInterface,
		Attributes:         descriptor.ConfigAttrBusPowered,
		MaxPower:           opts.MaxPower,
	}, iface, hid, report, ep)

	l.Languages(descriptor.LangIDUSEnglish)
	l.String(opts.Manufacturer)
	l.String(opts.Product)
	l.String(opts.Serial)
	l.String(opts.Interface)

	set, err := l.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("link keyboard descriptors: %w", err)
	}
	return set, img, nil
}
