package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bad-alloc-heavy-industries/mxusb/descriptor"
	"github.com/bad-alloc-heavy-industries/mxusb/device/hal"
	"github.com/bad-alloc-heavy-industries/mxusb/device/hal/sim"
	"github.com/bad-alloc-heavy-industries/mxusb/keyboard"
	"github.com/bad-alloc-heavy-industries/mxusb/pkg"
)

func TestGetDescriptor(t *testing.T) {
	b := newBench(t, keyboard.DefaultOptions())

	tests := []struct {
		name    string
		typ     descriptor.Type
		index   uint8
		wantLen int
		stall   bool
	}{
		{"device", descriptor.TypeDevice, 0, descriptor.DeviceSize, false},
		{"qualifier", descriptor.TypeDeviceQualifier, 0, descriptor.QualifierSize, false},
		{"configuration 0", descriptor.TypeConfiguration, 0, 34, false},
		{"configuration 5", descriptor.TypeConfiguration, 5, 0, true},
		{"interface 0", descriptor.TypeInterface, 0, descriptor.InterfaceSize, false},
		{"interface 1", descriptor.TypeInterface, 1, 0, true},
		{"endpoint 0", descriptor.TypeEndpoint, 0, descriptor.EndpointSize, false},
		{"endpoint 1", descriptor.TypeEndpoint, 1, 0, true},
		{"languages", descriptor.TypeString, 0, 4, false},
		{"serial placeholder", descriptor.TypeString, keyboard.StringSerial, 2, false},
		{"string 4", descriptor.TypeString, keyboard.StringInterface, 2 + 2*len("HID keyboard interface"), false},
		{"string 5", descriptor.TypeString, 5, 0, true},
		{"other speed", descriptor.TypeOtherSpeed, 0, 0, true},
		{"hid report", descriptor.TypeHIDReport, 0, 0, true},
	}

	b.run(t, func(ctx context.Context, h *sim.Host) error {
		if err := address(ctx, h, 7); err != nil {
			return err
		}
		for _, tt := range tests {
			got, err := controlIn(ctx, h, GetDescriptorRequest(uint8(tt.typ), tt.index, 255))
			if tt.stall {
				if !errors.Is(err, pkg.ErrStall) {
					t.Errorf("%s: error = %v, want %v", tt.name, err, pkg.ErrStall)
				}
				continue
			}
			if err != nil {
				t.Errorf("%s: error = %v", tt.name, err)
				continue
			}
			if len(got) != tt.wantLen {
				t.Errorf("%s: %d bytes, want %d", tt.name, len(got), tt.wantLen)
			}
			if len(got) >= 2 && got[1] != byte(tt.typ) {
				t.Errorf("%s: bDescriptorType = 0x%02X, want 0x%02X", tt.name, got[1], byte(tt.typ))
			}
		}
		return nil
	})
}

func TestGetDescriptorWrongDirection(t *testing.T) {
	b := newBench(t, keyboard.DefaultOptions())
	b.run(t, func(ctx context.Context, h *sim.Host) error {
		if err := h.Reset(ctx); err != nil {
			return err
		}
		pkt := GetDescriptorRequest(uint8(descriptor.TypeDevice), 0, 0)
		pkt.RequestType = RequestDirectionHostToDevice | RequestTypeStandard | RequestRecipientDevice
		if err := controlOut(ctx, h, pkt); !errors.Is(err, pkg.ErrStall) {
			t.Errorf("host-to-device GET_DESCRIPTOR error = %v, want %v", err, pkg.ErrStall)
		}
		return nil
	})
}

func TestStringDescriptors(t *testing.T) {
	b := newBench(t, keyboard.DefaultOptions())
	b.run(t, func(ctx context.Context, h *sim.Host) error {
		if err := address(ctx, h, 3); err != nil {
			return err
		}
		langs, err := controlIn(ctx, h, GetStringRequest(0, 0, 255))
		if err != nil {
			return err
		}
		if !bytes.Equal(langs, []byte{0x04, 0x03, 0x09, 0x04}) {
			t.Errorf("language table = % X, want 04 03 09 04", langs)
		}

		want := map[uint8]string{
			keyboard.StringManufacturer: "bad_alloc Heavy Industries",
			keyboard.StringProduct:      "MXKeyboard",
			keyboard.StringSerial:       "",
			keyboard.StringInterface:    "HID keyboard interface",
		}
		for index, text := range want {
			data, err := controlIn(ctx, h, GetStringRequest(index, descriptor.LangIDUSEnglish, 255))
			if err != nil {
				return fmt.Errorf("string %d: %w", index, err)
			}
			got, err := descriptor.DecodeString(data)
			if err != nil || got != text {
				t.Errorf("string %d = %q, %v, want %q", index, got, err, text)
			}
		}
		return nil
	})
}

func TestSetAddress(t *testing.T) {
	b := newBench(t, keyboard.DefaultOptions())
	b.run(t, func(ctx context.Context, h *sim.Host) error {
		if err := h.Reset(ctx); err != nil {
			return err
		}
		if err := controlOut(ctx, h, SetAddressRequest(0x85)); err != nil {
			return err
		}
		// Only the low seven bits form the address.
		if got := b.stack.Address(); got != 5 {
			t.Errorf("Address() = %d, want 5", got)
		}
		if got := b.stack.State(); got != StateAddressed {
			t.Errorf("State() = %v, want %v", got, StateAddressed)
		}

		// The device no longer answers at the default address.
		_, err := controlIn(ctx, h, GetDescriptorRequest(uint8(descriptor.TypeDevice), 0, 18))
		if !errors.Is(err, pkg.ErrAddressRejected) {
			t.Errorf("request at address 0 error = %v, want %v", err, pkg.ErrAddressRejected)
		}
		h.SetAddress(5)
		if _, err := controlIn(ctx, h, GetDescriptorRequest(uint8(descriptor.TypeDevice), 0, 18)); err != nil {
			return fmt.Errorf("request at address 5: %w", err)
		}
		return nil
	})
}

func TestSetAddressRejected(t *testing.T) {
	b := newBench(t, keyboard.DefaultOptions())
	b.run(t, func(ctx context.Context, h *sim.Host) error {
		if err := h.Reset(ctx); err != nil {
			return err
		}
		if err := controlOut(ctx, h, SetAddressRequest(0x0105)); err != nil {
			return err
		}
		return nil
	})
	if got := b.stack.Address(); got != 0 {
		t.Errorf("Address() = %d, want 0", got)
	}
	if got := b.stack.State(); got != StateWaiting {
		t.Errorf("State() = %v, want %v", got, StateWaiting)
	}
}

func TestSetConfiguration(t *testing.T) {
	b := newBench(t, keyboard.DefaultOptions())
	ctrl := b.bus.Controller()

	b.run(t, func(ctx context.Context, h *sim.Host) error {
		if err := configure(ctx, h, 6); err != nil {
			return err
		}
		ep := ctrl.Endpoint(keyboard.ReportEndpoint, hal.In)
		if ep.Type != sim.TypeBulk || ep.Stall || ep.BufferSize != sim.BufferSize64 {
			t.Errorf("EP1 IN after configuration = %+v", ep)
		}
		if ep := ctrl.Endpoint(keyboard.ReportEndpoint, hal.Out); ep.Type != sim.TypeDisabled {
			t.Errorf("EP1 OUT type = %v, want %v", ep.Type, sim.TypeDisabled)
		}
		got, err := controlIn(ctx, h, GetConfigurationRequest())
		if err != nil {
			return err
		}
		if !bytes.Equal(got, []byte{1}) {
			t.Errorf("GET_CONFIGURATION = % X, want 01", got)
		}

		if err := controlOut(ctx, h, SetConfigurationRequest(2)); !errors.Is(err, pkg.ErrStall) {
			t.Errorf("SET_CONFIGURATION(2) error = %v, want %v", err, pkg.ErrStall)
		}

		if err := controlOut(ctx, h, SetConfigurationRequest(0)); err != nil {
			return err
		}
		if b.stack.IsConfigured() {
			t.Error("IsConfigured() = true after SET_CONFIGURATION(0)")
		}
		if got := b.stack.State(); got != StateAddressed {
			t.Errorf("State() = %v, want %v", got, StateAddressed)
		}
		if ep := ctrl.Endpoint(keyboard.ReportEndpoint, hal.In); ep.Type != sim.TypeDisabled {
			t.Errorf("EP1 IN type = %v, want %v", ep.Type, sim.TypeDisabled)
		}
		got, err = controlIn(ctx, h, GetConfigurationRequest())
		if err != nil {
			return err
		}
		if !bytes.Equal(got, []byte{0}) {
			t.Errorf("GET_CONFIGURATION = % X, want 00", got)
		}
		return nil
	})
}

func TestInterfaceRequests(t *testing.T) {
	b := newBench(t, keyboard.DefaultOptions())
	b.run(t, func(ctx context.Context, h *sim.Host) error {
		if err := configure(ctx, h, 8); err != nil {
			return err
		}
		if err := controlOut(ctx, h, SetInterfaceRequest(0, 0)); err != nil {
			t.Errorf("SET_INTERFACE(0, 0) error = %v", err)
		}
		if err := controlOut(ctx, h, SetInterfaceRequest(0, 1)); !errors.Is(err, pkg.ErrStall) {
			t.Errorf("SET_INTERFACE(0, 1) error = %v, want %v", err, pkg.ErrStall)
		}
		got, err := controlIn(ctx, h, GetInterfaceRequest(0))
		if err != nil {
			return err
		}
		if !bytes.Equal(got, []byte{0}) {
			t.Errorf("GET_INTERFACE = % X, want 00", got)
		}
		return nil
	})
}

func TestGetStatusAndFeatures(t *testing.T) {
	b := newBench(t, keyboard.DefaultOptions())
	ctrl := b.bus.Controller()
	const ep1In = descriptor.EndpointDirIn | keyboard.ReportEndpoint

	status := func(ctx context.Context, h *sim.Host, recipient uint8, index uint16) ([]byte, error) {
		return controlIn(ctx, h, GetStatusRequest(recipient, index))
	}
	feature := func(ctx context.Context, h *sim.Host, set bool, recipient uint8, sel, index uint16) error {
		return controlOut(ctx, h, FeatureRequest(set, recipient, sel, index))
	}

	b.run(t, func(ctx context.Context, h *sim.Host) error {
		if err := address(ctx, h, 10); err != nil {
			return err
		}
		// User endpoints do not exist until configured.
		if _, err := status(ctx, h, RequestRecipientEndpoint, ep1In); !errors.Is(err, pkg.ErrStall) {
			t.Errorf("endpoint status before configuration error = %v, want %v", err, pkg.ErrStall)
		}
		if _, err := status(ctx, h, RequestRecipientInterface, 0); !errors.Is(err, pkg.ErrStall) {
			t.Errorf("interface status before configuration error = %v, want %v", err, pkg.ErrStall)
		}

		if err := controlOut(ctx, h, SetConfigurationRequest(1)); err != nil {
			return err
		}

		tests := []struct {
			name      string
			recipient uint8
			index     uint16
			want      []byte
		}{
			{"device", RequestRecipientDevice, 0, []byte{0, 0}},
			{"interface", RequestRecipientInterface, 0, []byte{0, 0}},
			{"ep0", RequestRecipientEndpoint, 0x80, []byte{0, 0}},
			{"ep1 in", RequestRecipientEndpoint, ep1In, []byte{0, 0}},
		}
		for _, tt := range tests {
			got, err := status(ctx, h, tt.recipient, tt.index)
			if err != nil {
				t.Errorf("%s: error = %v", tt.name, err)
				continue
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("%s: status = % X, want % X", tt.name, got, tt.want)
			}
		}
		if _, err := status(ctx, h, RequestRecipientInterface, 1); !errors.Is(err, pkg.ErrStall) {
			t.Errorf("interface 1 status error = %v, want %v", err, pkg.ErrStall)
		}
		if _, err := status(ctx, h, RequestRecipientEndpoint, 0x85); !errors.Is(err, pkg.ErrStall) {
			t.Errorf("endpoint 5 status error = %v, want %v", err, pkg.ErrStall)
		}

		// Halt EP1 IN and read it back.
		if err := feature(ctx, h, true, RequestRecipientEndpoint, FeatureEndpointHalt, ep1In); err != nil {
			return err
		}
		if !ctrl.Endpoint(keyboard.ReportEndpoint, hal.In).Stall {
			t.Error("EP1 IN not stalled after SET_FEATURE(ENDPOINT_HALT)")
		}
		got, err := status(ctx, h, RequestRecipientEndpoint, ep1In)
		if err != nil {
			return err
		}
		if !bytes.Equal(got, []byte{1, 0}) {
			t.Errorf("halted status = % X, want 01 00", got)
		}
		if err := feature(ctx, h, false, RequestRecipientEndpoint, FeatureEndpointHalt, ep1In); err != nil {
			return err
		}
		if ctrl.Endpoint(keyboard.ReportEndpoint, hal.In).Stall {
			t.Error("EP1 IN still stalled after CLEAR_FEATURE(ENDPOINT_HALT)")
		}

		// EP0 accepts the halt feature without halting.
		if err := feature(ctx, h, true, RequestRecipientEndpoint, FeatureEndpointHalt, 0); err != nil {
			t.Errorf("EP0 halt error = %v", err)
		}
		if err := feature(ctx, h, true, RequestRecipientDevice, FeatureDeviceRemoteWakeup, 0); !errors.Is(err, pkg.ErrStall) {
			t.Errorf("remote wakeup error = %v, want %v", err, pkg.ErrStall)
		}
		return nil
	})
}

func TestNonStandardRequestStalls(t *testing.T) {
	b := newBench(t, keyboard.DefaultOptions())
	b.run(t, func(ctx context.Context, h *sim.Host) error {
		if err := configure(ctx, h, 2); err != nil {
			return err
		}
		getReport := SetupPacket{
			RequestType: RequestDirectionDeviceToHost | RequestTypeClass | RequestRecipientInterface,
			Request:     0x01,
			Value:       0x0100,
			Length:      8,
		}
		if _, err := controlIn(ctx, h, getReport); !errors.Is(err, pkg.ErrStall) {
			t.Errorf("GET_REPORT error = %v, want %v", err, pkg.ErrStall)
		}
		// The device recovers on the next SETUP.
		if _, err := controlIn(ctx, h, GetConfigurationRequest()); err != nil {
			t.Errorf("GET_CONFIGURATION after stall error = %v", err)
		}
		return nil
	})
}
