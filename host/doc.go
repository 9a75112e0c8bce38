// Package host enumerates a USB device from the host side.
//
// It drives any [Transport] that can run control transfers on the default
// pipe, such as the scripted host in
// [github.com/bad-alloc-heavy-industries/mxusb/device/hal/sim], and walks
// the standard enumeration sequence:
//
//   - bus reset and a short device descriptor read to learn bMaxPacketSize0
//   - SET_ADDRESS and the full device descriptor at the new address
//   - the device qualifier, when the device has one
//   - the configuration header, then the whole configuration
//   - the language table and every string the descriptors name
//   - SET_CONFIGURATION with the first configuration value
//
// The result is a [Device] holding the parsed descriptors.
//
// # Example
//
//	err := sim.RunScript(ctx, bus, func(ctx context.Context) error {
//	    dev, err := host.Enumerate(ctx, simHost, 5)
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(dev.Product())
//	    return nil
//	})
package host
