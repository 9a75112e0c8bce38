//go:build !tinygo

package hal

// InterruptState is the saved interrupt-enable state.
type InterruptState uintptr

// DisableInterrupts masks interrupts and returns the previous state.
// Hosted builds run handlers from a dispatcher goroutine instead, so this
// is a no-op.
func DisableInterrupts() InterruptState {
	return 0
}

// RestoreInterrupts restores a state returned by DisableInterrupts.
func RestoreInterrupts(state InterruptState) {}
