//go:build tinygo

package hal

import "runtime/interrupt"

// InterruptState is the saved interrupt-enable state.
type InterruptState = interrupt.State

// DisableInterrupts masks interrupts and returns the previous state.
func DisableInterrupts() InterruptState {
	return interrupt.Disable()
}

// RestoreInterrupts restores a state returned by DisableInterrupts.
func RestoreInterrupts(state InterruptState) {
	interrupt.Restore(state)
}
