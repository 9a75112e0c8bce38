package device

import (
	"github.com/bad-alloc-heavy-industries/mxusb/descriptor"
	"github.com/bad-alloc-heavy-industries/mxusb/flash"
)

// Cursor is the position within the source or destination of a transfer.
// Exactly one of its sources is live, selected by its memory tag.
type Cursor struct {
	memory Memory
	ram    []byte
	addr   flash.Address
	table  descriptor.Table
	part   int
	offset int // bytes already taken from the current part
}

// RAMCursor returns a cursor over b.
func RAMCursor(b []byte) Cursor {
	return Cursor{memory: MemoryRAM, ram: b}
}

// FlashCursor returns a cursor over the contiguous record at addr.
func FlashCursor(addr flash.Address) Cursor {
	return Cursor{memory: MemoryFlash, addr: addr}
}

// MultiPartCursor returns a cursor at the start of t's first part.
func MultiPartCursor(t descriptor.Table) Cursor {
	return Cursor{memory: MemoryMultiPart, table: t}
}

// Memory returns the memory tag.
func (c *Cursor) Memory() Memory { return c.memory }

// PartNumber returns the index of the current part of a multi-part source.
func (c *Cursor) PartNumber() int { return c.part }

// IsMultiPart reports whether the cursor walks a multi-part table and has
// not run past its last part.
func (c *Cursor) IsMultiPart() bool {
	return c.memory == MemoryMultiPart && c.part < c.table.Count()
}

// hasSource reports whether there is anything to read from.
func (c *Cursor) hasSource() bool {
	switch c.memory {
	case MemoryFlash:
		return c.addr != flash.Nil
	case MemoryMultiPart:
		return c.IsMultiPart()
	default:
		return c.ram != nil
	}
}

// advance moves the cursor forward by up to n bytes, handing every byte it
// passes to emit in contiguous chunks of at most len(scratch) bytes.
// Constant memory is staged through scratch; RAM is handed over directly.
// Multi-part sources cross as many part boundaries as n spans, skipping
// empty parts. It returns the number of bytes emitted, which is short of n
// only when the source runs out.
func (c *Cursor) advance(mem flash.Reader, n int, scratch []byte, emit func([]byte)) int {
	done := 0
	switch c.memory {
	case MemoryRAM:
		k := min(n, len(c.ram))
		if k > 0 {
			emit(c.ram[:k])
		}
		c.ram = c.ram[k:]
		done = k

	case MemoryFlash:
		for done < n {
			k := min(n-done, len(scratch))
			mem.ReadAt(c.addr, scratch[:k])
			emit(scratch[:k])
			c.addr += flash.Address(k)
			done += k
		}

	case MemoryMultiPart:
		count := c.table.Count()
		for done < n {
			p := c.table.Part(c.part)
			if p.IsEnd() {
				break
			}
			avail := int(p.Length) - c.offset
			if avail > 0 {
				k := min(avail, n-done, len(scratch))
				mem.ReadAt(p.Addr+flash.Address(c.offset), scratch[:k])
				emit(scratch[:k])
				c.offset += k
				done += k
				avail -= k
			}
			if avail == 0 {
				if c.part+1 >= count {
					break
				}
				c.part++
				c.offset = 0
			}
		}
	}
	return done
}

// TransferStatus tracks one direction of the control endpoint across the
// packets of a transfer.
type TransferStatus struct {
	Cursor Cursor

	// Remaining is the number of bytes still to move. It only decreases
	// within a transfer and is zero exactly when the transfer is complete.
	Remaining uint16

	// NeedsArming is set when this direction carries the reply.
	NeedsArming bool

	// Stall is set when the reply is a STALL handshake.
	Stall bool

	// zlp is set when the reply is shorter than wLength, so a data stage
	// ending on a packet boundary must be closed by a zero-length packet.
	zlp bool
}

// IsMultiPart reports whether the transfer walks a multi-part table.
func (t *TransferStatus) IsMultiPart() bool {
	return t.Cursor.IsMultiPart()
}

func (t *TransferStatus) reset() {
	*t = TransferStatus{}
}
