// Package hal is the boundary between the control-transfer engine and a
// USB device peripheral.
//
// [Controller] exposes the peripheral at register level: per-endpoint
// configuration, stall and interrupt-enable bits, status flags, the
// packet buffers, the address register and the bus interrupt flags. The
// engine in package device owns all protocol logic and touches the
// hardware only through it.
//
// Package sim provides a simulated controller and a scripted host for
// tests and for the usbsim tool. On TinyGo targets a board package
// implements Controller over the real registers.
//
// # Critical sections
//
// Interrupt handlers never nest, but foreground code that updates several
// registers the handlers also read brackets the update with
// [DisableInterrupts] and [RestoreInterrupts]. On TinyGo these map to
// runtime/interrupt; hosted builds compile them to nothing.
package hal
