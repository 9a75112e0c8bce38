// Package keyboard links the descriptor set of the MXKeyboard, a full-speed
// HID boot keyboard with one configuration and one interrupt IN endpoint.
//
// The set is built at start-up into a sealed [flash.Image] and handed to
// the device stack:
//
//	set, img, err := keyboard.Build(keyboard.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	stack, err := device.New(ctrl, set)
//
// The configuration descriptor is served as five parts: configuration,
// interface, HID class header, report reference and endpoint. Strings are
// served as two parts each, the header and the UTF-16LE text.
package keyboard
