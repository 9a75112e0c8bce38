package host

import (
	"fmt"
	"slices"

	"github.com/bad-alloc-heavy-industries/mxusb/descriptor"
	"github.com/bad-alloc-heavy-industries/mxusb/pkg"
)

// Device is an enumerated device as the host sees it.
type Device struct {
	Address uint8

	Descriptor descriptor.DeviceDescriptor

	// Qualifier is nil when the device stalled the request.
	Qualifier *descriptor.QualifierDescriptor

	Configuration descriptor.ConfigurationDescriptor
	Interfaces    []descriptor.InterfaceDescriptor
	Endpoints     []descriptor.EndpointDescriptor
	HID           []descriptor.HIDDescriptor

	// Raw is the configuration as read in full.
	Raw []byte

	Languages []uint16

	// Strings maps string indices to their text in Languages[0].
	Strings map[uint8]string

	// Configured is set once SET_CONFIGURATION succeeded.
	Configured bool
}

// VendorID returns the device vendor ID.
func (d *Device) VendorID() uint16 {
	return d.Descriptor.VendorID
}

// ProductID returns the device product ID.
func (d *Device) ProductID() uint16 {
	return d.Descriptor.ProductID
}

// Manufacturer returns the manufacturer string, if read.
func (d *Device) Manufacturer() string {
	return d.Strings[d.Descriptor.ManufacturerIndex]
}

// Product returns the product string, if read.
func (d *Device) Product() string {
	return d.Strings[d.Descriptor.ProductIndex]
}

// SerialNumber returns the serial number string, if read.
func (d *Device) SerialNumber() string {
	return d.Strings[d.Descriptor.SerialNumberIndex]
}

// parseConfigurationTree walks the records of a full configuration. Records
// of unknown type are skipped; a record running past the end or shorter
// than its header is an error.
func (d *Device) parseConfigurationTree(data []byte) error {
	if err := descriptor.ParseConfiguration(data, &d.Configuration); err != nil {
		return err
	}
	d.Raw = append([]byte(nil), data...)
	d.Interfaces = d.Interfaces[:0]
	d.Endpoints = d.Endpoints[:0]
	d.HID = d.HID[:0]

	for off := int(data[0]); off < len(data); {
		n := int(data[off])
		if n < 2 || off+n > len(data) {
			return fmt.Errorf("record at offset %d: %w", off, pkg.ErrInvalidDescriptor)
		}
		rec := data[off : off+n]
		var err error
		switch descriptor.Type(rec[1]) {
		case descriptor.TypeInterface:
			var iface descriptor.InterfaceDescriptor
			if err = descriptor.ParseInterface(rec, &iface); err == nil {
				d.Interfaces = append(d.Interfaces, iface)
			}
		case descriptor.TypeEndpoint:
			var ep descriptor.EndpointDescriptor
			if err = descriptor.ParseEndpoint(rec, &ep); err == nil {
				d.Endpoints = append(d.Endpoints, ep)
			}
		case descriptor.TypeHID:
			var hid descriptor.HIDDescriptor
			if err = descriptor.ParseHID(rec, &hid); err == nil {
				d.HID = append(d.HID, hid)
			}
		}
		if err != nil {
			return fmt.Errorf("record at offset %d: %w", off, err)
		}
		off += n
	}
	return nil
}

// stringIndices returns the distinct non-zero string indices the parsed
// descriptors name, in the order they appear.
func (d *Device) stringIndices() []uint8 {
	var out []uint8
	add := func(i uint8) {
		if i != 0 && !slices.Contains(out, i) {
			out = append(out, i)
		}
	}
	add(d.Descriptor.ManufacturerIndex)
	add(d.Descriptor.ProductIndex)
	add(d.Descriptor.SerialNumberIndex)
	add(d.Configuration.ConfigurationIndex)
	for _, iface := range d.Interfaces {
		add(iface.InterfaceIndex)
	}
	return out
}
