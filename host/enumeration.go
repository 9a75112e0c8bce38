package host

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/bad-alloc-heavy-industries/mxusb/descriptor"
	"github.com/bad-alloc-heavy-industries/mxusb/device"
	"github.com/bad-alloc-heavy-industries/mxusb/pkg"
)

// Enumeration errors.
var (
	ErrEnumerationFailed = errors.New("enumeration failed")
	ErrNoAddress         = errors.New("no address available")
)

// MaxAddress is the highest assignable device address.
const MaxAddress = 127

// Transport runs transactions on the default pipe of one device.
type Transport interface {
	Reset(ctx context.Context) error
	ControlIn(ctx context.Context, setup [device.SetupPacketSize]byte) ([]byte, error)
	ControlOut(ctx context.Context, setup [device.SetupPacketSize]byte, data []byte) error
	// SetAddress changes the address subsequent transactions target.
	SetAddress(addr uint8)
	// SetMaxPacket0 sets the EP0 packet size used to detect the end of a
	// data stage.
	SetMaxPacket0(n int) error
}

func controlIn(ctx context.Context, t Transport, pkt device.SetupPacket) ([]byte, error) {
	return t.ControlIn(ctx, pkt.Bytes())
}

func controlOut(ctx context.Context, t Transport, pkt device.SetupPacket) error {
	return t.ControlOut(ctx, pkt.Bytes(), nil)
}

func getDescriptor(ctx context.Context, t Transport, typ descriptor.Type, index uint8, length uint16) ([]byte, error) {
	data, err := controlIn(ctx, t, device.GetDescriptorRequest(uint8(typ), index, length))
	if err != nil {
		return nil, fmt.Errorf("get %v descriptor: %w", typ, err)
	}
	return data, nil
}

// Enumerate resets the device behind t, assigns it address and selects its
// first configuration.
func Enumerate(ctx context.Context, t Transport, address uint8) (*Device, error) {
	if address == 0 || address > MaxAddress {
		return nil, fmt.Errorf("address %d: %w", address, ErrNoAddress)
	}
	pkg.LogDebug(pkg.ComponentHost, "starting enumeration", "address", address)

	if err := t.Reset(ctx); err != nil {
		return nil, err
	}
	t.SetAddress(0)

	// The first eight bytes carry bMaxPacketSize0.
	buf, err := getDescriptor(ctx, t, descriptor.TypeDevice, 0, 8)
	if err != nil {
		return nil, err
	}
	if len(buf) < 8 {
		return nil, fmt.Errorf("device descriptor header: %d bytes: %w", len(buf), ErrEnumerationFailed)
	}
	if err := t.SetMaxPacket0(int(buf[7])); err != nil {
		return nil, fmt.Errorf("max packet size %d: %w", buf[7], err)
	}
	pkg.LogDebug(pkg.ComponentHost, "got max packet size", "size", buf[7])

	if err := controlOut(ctx, t, device.SetAddressRequest(uint16(address))); err != nil {
		return nil, fmt.Errorf("set address: %w", err)
	}
	t.SetAddress(address)
	pkg.LogDebug(pkg.ComponentHost, "assigned address", "address", address)

	dev := &Device{Address: address, Strings: make(map[uint8]string)}

	buf, err = getDescriptor(ctx, t, descriptor.TypeDevice, 0, descriptor.DeviceSize)
	if err != nil {
		return nil, err
	}
	if err := descriptor.ParseDevice(buf, &dev.Descriptor); err != nil {
		return nil, fmt.Errorf("device descriptor: %w", err)
	}
	pkg.LogDebug(pkg.ComponentHost, "device descriptor",
		"vendorID", dev.Descriptor.VendorID,
		"productID", dev.Descriptor.ProductID,
		"class", dev.Descriptor.DeviceClass)

	if err := readQualifier(ctx, t, dev); err != nil {
		return nil, err
	}
	if err := readConfiguration(ctx, t, dev); err != nil {
		return nil, err
	}
	if err := readStrings(ctx, t, dev); err != nil {
		// The device is still usable without its strings.
		pkg.LogWarn(pkg.ComponentHost, "string descriptor read failed", "error", err)
	}

	if value := dev.Configuration.ConfigurationValue; value > 0 {
		if err := controlOut(ctx, t, device.SetConfigurationRequest(value)); err != nil {
			return nil, fmt.Errorf("set configuration %d: %w", value, err)
		}
		dev.Configured = true
	}

	pkg.LogInfo(pkg.ComponentHost, "device enumerated",
		"address", address,
		"vendorID", dev.VendorID(),
		"productID", dev.ProductID(),
		"product", dev.Product())
	return dev, nil
}

// readQualifier fetches the device qualifier. A stall means the device is
// full-speed only and is not an error.
func readQualifier(ctx context.Context, t Transport, dev *Device) error {
	buf, err := getDescriptor(ctx, t, descriptor.TypeDeviceQualifier, 0, descriptor.QualifierSize)
	if errors.Is(err, pkg.ErrStall) {
		return nil
	}
	if err != nil {
		return err
	}
	var q descriptor.QualifierDescriptor
	if err := descriptor.ParseQualifier(buf, &q); err != nil {
		return fmt.Errorf("device qualifier: %w", err)
	}
	dev.Qualifier = &q
	return nil
}

// readConfiguration reads the configuration header for wTotalLength, then
// the whole configuration.
func readConfiguration(ctx context.Context, t Transport, dev *Device) error {
	buf, err := getDescriptor(ctx, t, descriptor.TypeConfiguration, 0, descriptor.ConfigurationSize)
	if err != nil {
		return err
	}
	if len(buf) < descriptor.ConfigurationSize {
		return fmt.Errorf("configuration header: %d bytes: %w", len(buf), ErrEnumerationFailed)
	}
	total := binary.LittleEndian.Uint16(buf[2:4])
	if total < descriptor.ConfigurationSize {
		return fmt.Errorf("configuration total length %d: %w", total, pkg.ErrInvalidDescriptor)
	}

	buf, err = getDescriptor(ctx, t, descriptor.TypeConfiguration, 0, total)
	if err != nil {
		return err
	}
	if len(buf) != int(total) {
		return fmt.Errorf("configuration: %d of %d bytes: %w", len(buf), total, ErrEnumerationFailed)
	}
	if err := dev.parseConfigurationTree(buf); err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	pkg.LogDebug(pkg.ComponentHost, "configuration descriptor",
		"numInterfaces", dev.Configuration.NumInterfaces,
		"configValue", dev.Configuration.ConfigurationValue)
	return nil
}

// readStrings reads the language table and every string the descriptors
// name, in the first language.
func readStrings(ctx context.Context, t Transport, dev *Device) error {
	indices := dev.stringIndices()
	if len(indices) == 0 {
		return nil
	}

	buf, err := getDescriptor(ctx, t, descriptor.TypeString, 0, descriptor.MaxLength)
	if err != nil {
		return fmt.Errorf("language table: %w", err)
	}
	if len(buf) < descriptor.StringHeaderSize || int(buf[0]) > len(buf) || buf[0]%2 != 0 {
		return fmt.Errorf("language table: %w", pkg.ErrInvalidDescriptor)
	}
	for i := descriptor.StringHeaderSize; i+1 < int(buf[0]); i += 2 {
		dev.Languages = append(dev.Languages, binary.LittleEndian.Uint16(buf[i:]))
	}
	if len(dev.Languages) == 0 {
		return fmt.Errorf("language table empty: %w", pkg.ErrInvalidDescriptor)
	}

	lang := dev.Languages[0]
	for _, index := range indices {
		data, err := controlIn(ctx, t, device.GetStringRequest(index, lang, descriptor.MaxLength))
		if err != nil {
			return fmt.Errorf("string %d: %w", index, err)
		}
		s, err := descriptor.DecodeString(data)
		if err != nil {
			return fmt.Errorf("string %d: %w", index, err)
		}
		dev.Strings[index] = s
		pkg.LogDebug(pkg.ComponentHost, "string", "index", index, "value", s)
	}
	return nil
}
