package descriptor

import (
	"encoding/binary"
	"iter"

	"github.com/bad-alloc-heavy-industries/mxusb/flash"
)

// PartSize is the size of one part record in constant memory: a one-byte
// length followed by a little-endian 32-bit address.
const PartSize = 5

// Part is one fragment of a multi-part descriptor: Length bytes of
// constant memory starting at Addr.
type Part struct {
	Length uint8
	Addr   flash.Address
}

// End is the sentinel [Table.Part] returns for an index past the last part.
var End = Part{}

// IsEnd reports whether p is the end sentinel.
func (p Part) IsEnd() bool {
	return p == End
}

// MarshalTo serializes the part record to buf.
func (p Part) MarshalTo(buf []byte) int {
	if len(buf) < PartSize {
		return 0
	}
	buf[0] = p.Length
	binary.LittleEndian.PutUint32(buf[1:5], uint32(p.Addr))
	return PartSize
}

// Table is an ordered run of part records in constant memory, from begin
// up to but not including end. The payload it describes is the
// concatenation of its parts.
//
// A Table only references the records; it is cheap to copy and the zero
// value is an empty table.
type Table struct {
	mem   flash.Reader
	begin flash.Address
	end   flash.Address
}

// NewTable returns the table of part records in [begin, end) read through
// mem. end must not precede begin and the span must be a whole number of
// records.
func NewTable(mem flash.Reader, begin, end flash.Address) Table {
	return Table{mem: mem, begin: begin, end: end}
}

// Begin returns the address of the first part record.
func (t Table) Begin() flash.Address { return t.begin }

// End returns the address one past the last part record.
func (t Table) End() flash.Address { return t.end }

// Count returns the number of parts.
func (t Table) Count() int {
	if t.end <= t.begin {
		return 0
	}
	return int(t.end-t.begin) / PartSize
}

// Part returns part i, or [End] if i is out of range.
func (t Table) Part(i int) Part {
	if i < 0 || i >= t.Count() {
		return End
	}
	var rec [PartSize]byte
	t.mem.ReadAt(t.begin+flash.Address(i*PartSize), rec[:])
	return Part{
		Length: rec[0],
		Addr:   flash.Address(binary.LittleEndian.Uint32(rec[1:5])),
	}
}

// TotalLength returns the sum of all part lengths.
func (t Table) TotalLength() int {
	total := 0
	for _, p := range t.All() {
		total += int(p.Length)
	}
	return total
}

// All iterates over the parts in order.
func (t Table) All() iter.Seq2[int, Part] {
	return func(yield func(int, Part) bool) {
		n := t.Count()
		for i := 0; i < n; i++ {
			if !yield(i, t.Part(i)) {
				return
			}
		}
	}
}

// Bytes returns the concatenated payload. It allocates and is meant for
// tooling, not for the transfer path.
func (t Table) Bytes() []byte {
	buf := make([]byte, 0, t.TotalLength())
	for _, p := range t.All() {
		start := len(buf)
		buf = buf[:start+int(p.Length)]
		flash.Copy(t.mem, p.Addr, buf[start:])
	}
	return buf
}
