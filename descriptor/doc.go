// Package descriptor holds the USB descriptor wire formats and the
// multi-part descriptor tables the device stack serves from constant
// memory.
//
// A multi-part descriptor is an ordered run of (length, address)
// fragments whose concatenation is the payload sent to the host. A
// configuration is stored as its configuration, interface, class and
// endpoint records; a string as its two-byte header and its UTF-16LE
// text. [Table] walks such a run without copying it.
//
// [Linker] lays records out in a [flash.Image] and produces the [Set] the
// stack answers GET_DESCRIPTOR from:
//
//	img := flash.NewImage(0x10000, 1024)
//	l := descriptor.NewLinker(img)
//	l.Device(&descriptor.DeviceDescriptor{USBVersion: 0x0200, MaxPacketSize0: 64, NumConfigurations: 1})
//	l.Languages(descriptor.LangIDUSEnglish)
//	l.String("Example Corp")
//	set, err := l.Build()
package descriptor
