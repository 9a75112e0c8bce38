package flash

import "encoding/binary"

// Address is a location in constant memory.
type Address uint32

// Nil is the null constant-memory address. No image hands it out.
const Nil Address = 0

// MaxReadSize bounds a single [Reader.ReadAt] call. Larger reads go through
// [Copy], which splits them.
const MaxReadSize = 64

// Reader reads bytes out of constant memory.
//
// ReadAt fills buf with the len(buf) bytes starting at addr. Callers keep
// len(buf) <= MaxReadSize and guarantee addr is valid. Implementations
// must tolerate calls from interrupt context that preempt a foreground
// call, and must not assume any alignment.
type Reader interface {
	ReadAt(addr Address, buf []byte)
}

// ReadByte returns the byte at addr.
func ReadByte(r Reader, addr Address) byte {
	var b [1]byte
	r.ReadAt(addr, b[:])
	return b[0]
}

// ReadUint16 returns the little-endian 16-bit value at addr.
func ReadUint16(r Reader, addr Address) uint16 {
	var b [2]byte
	r.ReadAt(addr, b[:])
	return binary.LittleEndian.Uint16(b[:])
}

// ReadUint32 returns the little-endian 32-bit value at addr.
func ReadUint32(r Reader, addr Address) uint32 {
	var b [4]byte
	r.ReadAt(addr, b[:])
	return binary.LittleEndian.Uint32(b[:])
}

// Copy fills buf from addr in chunks of at most MaxReadSize bytes.
func Copy(r Reader, addr Address, buf []byte) {
	for len(buf) > 0 {
		n := len(buf)
		if n > MaxReadSize {
			n = MaxReadSize
		}
		r.ReadAt(addr, buf[:n])
		addr += Address(n)
		buf = buf[n:]
	}
}
