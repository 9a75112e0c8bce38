package flash

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bad-alloc-heavy-industries/mxusb/pkg"
)

// BankSize is the span addressable without touching the bank register.
const BankSize = 1 << 16

// Erased is the value read back from unprogrammed constant memory.
const Erased = 0xFF

// Image is a banked constant-memory region starting at a fixed base address.
//
// Data is appended while the image is being linked, then the image is sealed
// and becomes read-only. Reads never fail: bytes outside the programmed range
// read back as Erased.
type Image struct {
	base Address
	data []byte
	size int

	// bank mirrors the extended-addressing register. Each read saves it,
	// points it at the bank being read and restores it on the way out.
	bank atomic.Uint32

	mutex  sync.Mutex
	sealed atomic.Bool
}

// NewImage creates an empty image of at most size bytes at base.
// base must be non-zero so that Nil is never a valid record address.
func NewImage(base Address, size int) *Image {
	if base == Nil {
		base = 1
	}
	return &Image{
		base: base,
		data: make([]byte, 0, size),
		size: size,
	}
}

// Base returns the first address of the image.
func (m *Image) Base() Address {
	return m.base
}

// End returns the address one past the last programmed byte.
func (m *Image) End() Address {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.base + Address(len(m.data))
}

// Len returns the number of programmed bytes.
func (m *Image) Len() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.data)
}

// Bank returns the current value of the bank register.
func (m *Image) Bank() uint8 {
	return uint8(m.bank.Load())
}

// SetBank sets the bank register, as unrelated foreground code on the
// target might. Reads must leave whatever value is found here untouched.
func (m *Image) SetBank(bank uint8) {
	m.bank.Store(uint32(bank))
}

// Append programs data at the end of the image and returns its address.
func (m *Image) Append(data []byte) (Address, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.sealed.Load() {
		return Nil, pkg.ErrImageSealed
	}
	if len(m.data)+len(data) > m.size {
		return Nil, fmt.Errorf("append %d bytes at offset %d: %w", len(data), len(m.data), pkg.ErrImageFull)
	}
	addr := m.base + Address(len(m.data))
	m.data = append(m.data, data...)
	return addr, nil
}

// Seal makes the image read-only.
func (m *Image) Seal() {
	m.mutex.Lock()
	sealed := m.sealed.CompareAndSwap(false, true)
	n := len(m.data)
	m.mutex.Unlock()
	if sealed {
		pkg.LogDebug(pkg.ComponentFlash, "image sealed",
			"base", fmt.Sprintf("0x%06X", uint32(m.base)),
			"bytes", n)
	}
}

// Sealed reports whether the image is read-only.
func (m *Image) Sealed() bool {
	return m.sealed.Load()
}

// ReadAt implements Reader.
func (m *Image) ReadAt(addr Address, buf []byte) {
	saved := m.bank.Load()
	defer m.bank.Store(saved)

	// Sealed images are immutable; only lock while linking.
	if !m.sealed.Load() {
		m.mutex.Lock()
		defer m.mutex.Unlock()
	}

	for i := range buf {
		a := addr + Address(i)
		m.bank.Store(uint32(a >> 16))
		buf[i] = m.byteAt(a)
	}
}

func (m *Image) byteAt(a Address) byte {
	if a < m.base {
		return Erased
	}
	off := int(a - m.base)
	if off >= len(m.data) {
		return Erased
	}
	return m.data[off]
}
