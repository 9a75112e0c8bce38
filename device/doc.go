// Package device implements the device side of USB control transfers for
// a microcontroller that only ever acts as a peripheral.
//
// A [Stack] owns one endpoint controller ([hal.Controller]) and one linked
// descriptor set ([descriptor.Set]). The peripheral's two interrupt
// vectors call [Stack.HandleBusEvent] and [Stack.HandleIOComplete]; all
// protocol work happens inside them and none of it blocks.
//
// # Control transfers
//
// A SETUP on EP0 OUT is captured, answered by the standard request
// responder and the first packet of the reply is queued before the
// handler returns. Replies come from RAM, from a contiguous record in
// constant memory, or from a multi-part descriptor table whose fragments
// are stitched together packet by packet, for any EP0 packet size.
//
//	idle ─SETUP→ wait ─data IN→ dataTX ─last packet→ statusRX ─ZLP OUT→ idle
//	               └─no data→ statusTX ─ZLP IN→ idle
//	               └─stall→ idle
//
// SET_ADDRESS is acknowledged at the old address; the new address is
// written to the controller only once that status packet has gone out.
//
// # Device states
//
//	detached → attached → powered → waiting → addressing → addressed
//
// The configured state is implied by a non-zero active configuration and
// suspend is tracked as a separate flag.
package device
