package keyboard

import (
	"bytes"
	"errors"
	"testing"

	"github.com/bad-alloc-heavy-industries/mxusb/descriptor"
	"github.com/bad-alloc-heavy-industries/mxusb/flash"
	"github.com/bad-alloc-heavy-industries/mxusb/pkg"
)

func TestReportDescriptorLength(t *testing.T) {
	if got := len(ReportDescriptor); got != 63 {
		t.Errorf("len(ReportDescriptor) = %d, want 63", got)
	}
	if ReportDescriptor[len(ReportDescriptor)-1] != 0xC0 {
		t.Error("report descriptor does not end with End Collection")
	}
}

func TestBuildDefault(t *testing.T) {
	set, img, err := Build(DefaultOptions())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !img.Sealed() {
		t.Error("image not sealed")
	}
	if set.Mem != flash.Reader(img) {
		t.Error("set does not read from the returned image")
	}

	tests := []struct {
		name string
		got  int
		want int
	}{
		{"configurations", set.ConfigurationCount(), 1},
		{"interfaces", set.InterfaceCount(), 1},
		{"endpoints", set.EndpointCount(), 1},
		{"strings", set.StringCount(), 5},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, tt.got, tt.want)
		}
	}
}

func TestDeviceDescriptor(t *testing.T) {
	set, _, err := Build(DefaultOptions())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	var raw [descriptor.DeviceSize]byte
	set.Mem.ReadAt(set.Device, raw[:])
	var dev descriptor.DeviceDescriptor
	if err := descriptor.ParseDevice(raw[:], &dev); err != nil {
		t.Fatalf("ParseDevice() error = %v", err)
	}
	if dev.USBVersion != 0x0200 {
		t.Errorf("USBVersion = 0x%04X, want 0x0200", dev.USBVersion)
	}
	if dev.VendorID != DefaultVendorID || dev.ProductID != DefaultProductID {
		t.Errorf("VID:PID = %04X:%04X, want %04X:%04X", dev.VendorID, dev.ProductID, DefaultVendorID, DefaultProductID)
	}
	if dev.MaxPacketSize0 != DefaultPacketSize {
		t.Errorf("MaxPacketSize0 = %d, want %d", dev.MaxPacketSize0, DefaultPacketSize)
	}
	if dev.ManufacturerIndex != 1 || dev.ProductIndex != 2 || dev.SerialNumberIndex != 0 {
		t.Errorf("string indices = %d/%d/%d, want 1/2/0",
			dev.ManufacturerIndex, dev.ProductIndex, dev.SerialNumberIndex)
	}
	if dev.NumConfigurations != 1 {
		t.Errorf("NumConfigurations = %d, want 1", dev.NumConfigurations)
	}

	var q [descriptor.QualifierSize]byte
	set.Mem.ReadAt(set.Qualifier, q[:])
	var qual descriptor.QualifierDescriptor
	if err := descriptor.ParseQualifier(q[:], &qual); err != nil {
		t.Fatalf("ParseQualifier() error = %v", err)
	}
	if qual.NumOtherConfigurations != 0 {
		t.Errorf("NumOtherConfigurations = %d, want 0", qual.NumOtherConfigurations)
	}
}

func TestConfigurationTable(t *testing.T) {
	set, _, err := Build(DefaultOptions())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	cfg := set.Configurations[0]
	wantLengths := []uint8{
		descriptor.ConfigurationSize,
		descriptor.InterfaceSize,
		descriptor.HIDSize,
		descriptor.ReportReferenceSize,
		descriptor.EndpointSize,
	}
	if got := cfg.Count(); got != len(wantLengths) {
		t.Fatalf("Count() = %d, want %d", got, len(wantLengths))
	}
	for i, p := range cfg.All() {
		if p.Length != wantLengths[i] {
			t.Errorf("part %d length = %d, want %d", i, p.Length, wantLengths[i])
		}
	}
	if got := cfg.TotalLength(); got != 34 {
		t.Errorf("TotalLength() = %d, want 34", got)
	}

	data := cfg.Bytes()
	var c descriptor.ConfigurationDescriptor
	if err := descriptor.ParseConfiguration(data[:descriptor.ConfigurationSize], &c); err != nil {
		t.Fatalf("ParseConfiguration() error = %v", err)
	}
	if c.TotalLength != 34 {
		t.Errorf("wTotalLength = %d, want 34", c.TotalLength)
	}
	if c.ConfigurationValue != 1 || c.ConfigurationIndex != StringInterface {
		t.Errorf("value/index = %d/%d, want 1/%d", c.ConfigurationValue, c.ConfigurationIndex, StringInterface)
	}
	if c.MaxPower != DefaultMaxPower {
		t.Errorf("MaxPower = %d, want %d", c.MaxPower, DefaultMaxPower)
	}

	// The HID record's bLength spans its report reference.
	hidRec := data[descriptor.ConfigurationSize+descriptor.InterfaceSize:]
	var hid descriptor.HIDDescriptor
	if err := descriptor.ParseHID(hidRec, &hid); err != nil {
		t.Fatalf("ParseHID() error = %v", err)
	}
	if hidRec[0] != descriptor.HIDSize+descriptor.ReportReferenceSize {
		t.Errorf("HID bLength = %d, want %d", hidRec[0], descriptor.HIDSize+descriptor.ReportReferenceSize)
	}

	// Report reference carries the report descriptor length.
	ref := data[descriptor.ConfigurationSize+descriptor.InterfaceSize+descriptor.HIDSize:]
	if descriptor.Type(ref[0]) != descriptor.TypeHIDReport {
		t.Errorf("reference type = %v, want %v", descriptor.Type(ref[0]), descriptor.TypeHIDReport)
	}
	if got := int(ref[1]) | int(ref[2])<<8; got != len(ReportDescriptor) {
		t.Errorf("reference length = %d, want %d", got, len(ReportDescriptor))
	}

	var ep descriptor.EndpointDescriptor
	if err := descriptor.ParseEndpoint(data[len(data)-descriptor.EndpointSize:], &ep); err != nil {
		t.Fatalf("ParseEndpoint() error = %v", err)
	}
	if ep.Number() != ReportEndpoint || !ep.IsIn() {
		t.Errorf("endpoint address = 0x%02X, want IN %d", ep.EndpointAddress, ReportEndpoint)
	}
	if ep.TransferType() != descriptor.EndpointTypeInterrupt {
		t.Errorf("TransferType() = %v, want interrupt", ep.TransferType())
	}
	if ep.Interval != DefaultInterval {
		t.Errorf("Interval = %d, want %d", ep.Interval, DefaultInterval)
	}
}

func TestStrings(t *testing.T) {
	set, _, err := Build(DefaultOptions())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if got := set.Strings[StringLanguages].Bytes(); !bytes.Equal(got, []byte{0x04, 0x03, 0x09, 0x04}) {
		t.Errorf("language table = % X, want 04 03 09 04", got)
	}

	tests := []struct {
		index int
		want  string
	}{
		{StringManufacturer, "bad_alloc Heavy Industries"},
		{StringProduct, "MXKeyboard"},
		{StringSerial, ""},
		{StringInterface, "HID keyboard interface"},
	}
	for _, tt := range tests {
		got, err := descriptor.DecodeString(set.Strings[tt.index].Bytes())
		if err != nil {
			t.Errorf("string %d: DecodeString() error = %v", tt.index, err)
			continue
		}
		if got != tt.want {
			t.Errorf("string %d = %q, want %q", tt.index, got, tt.want)
		}
	}
}

func TestBuildOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxPacketSize0 = 8
	opts.Interval = 10
	opts.Product = "Custom"

	set, _, err := Build(opts)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if got := flash.ReadByte(set.Mem, set.Device+7); got != 8 {
		t.Errorf("bMaxPacketSize0 = %d, want 8", got)
	}
	if got, _ := descriptor.DecodeString(set.Strings[StringProduct].Bytes()); got != "Custom" {
		t.Errorf("product = %q, want %q", got, "Custom")
	}
}

func TestBuildInvalid(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Options)
	}{
		{"packet size 0", func(o *Options) { o.MaxPacketSize0 = 0 }},
		{"packet size 12", func(o *Options) { o.MaxPacketSize0 = 12 }},
		{"packet size 128", func(o *Options) { o.MaxPacketSize0 = 128 }},
		{"interval 0", func(o *Options) { o.Interval = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.modify(&opts)
			_, _, err := Build(opts)
			if !errors.Is(err, pkg.ErrInvalidParameter) {
				t.Errorf("Build() error = %v, want %v", err, pkg.ErrInvalidParameter)
			}
		})
	}
}

func TestBuildStringTooLong(t *testing.T) {
	opts := DefaultOptions()
	opts.Manufacturer = string(bytes.Repeat([]byte{'x'}, 127))
	_, _, err := Build(opts)
	if !errors.Is(err, pkg.ErrInvalidDescriptor) {
		t.Errorf("Build() error = %v, want %v", err, pkg.ErrInvalidDescriptor)
	}
}
