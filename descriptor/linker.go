package descriptor

import (
	"fmt"

	"golang.org/x/text/encoding/unicode"

	"github.com/bad-alloc-heavy-industries/mxusb/flash"
	"github.com/bad-alloc-heavy-industries/mxusb/pkg"
)

// Set is a complete, linked descriptor set. Every record lives in the
// constant memory Mem refers to; Set itself only holds addresses and
// tables.
type Set struct {
	Mem flash.Reader

	Device    flash.Address
	Qualifier flash.Address

	// Configurations is indexed by descriptor index, not by
	// bConfigurationValue.
	Configurations []Table
	Interfaces     []flash.Address
	Endpoints      []flash.Address

	// Strings[0] is the language ID table.
	Strings []Table
}

// ConfigurationCount returns the number of configurations.
func (s *Set) ConfigurationCount() int { return len(s.Configurations) }

// InterfaceCount returns the number of interface records.
func (s *Set) InterfaceCount() int { return len(s.Interfaces) }

// EndpointCount returns the number of endpoint records.
func (s *Set) EndpointCount() int { return len(s.Endpoints) }

// StringCount returns the number of string tables, language table included.
func (s *Set) StringCount() int { return len(s.Strings) }

// Linker lays descriptor records out in a [flash.Image] and collects the
// resulting [Set].
//
// Errors are sticky: after the first failure every method is a no-op that
// returns zero values, and [Linker.Build] reports the error.
type Linker struct {
	img *flash.Image
	set Set
	err error
	buf [MaxLength]byte
}

// NewLinker returns a linker writing into img.
func NewLinker(img *flash.Image) *Linker {
	return &Linker{img: img, set: Set{Mem: img}}
}

// Err returns the first error encountered, if any.
func (l *Linker) Err() error {
	return l.err
}

// Place programs data and returns it as a single part.
func (l *Linker) Place(data []byte) Part {
	if l.err != nil {
		return End
	}
	if len(data) > MaxLength {
		l.err = fmt.Errorf("place %d bytes: %w", len(data), pkg.ErrInvalidDescriptor)
		return End
	}
	addr, err := l.img.Append(data)
	if err != nil {
		l.err = fmt.Errorf("place %d bytes: %w", len(data), err)
		return End
	}
	return Part{Length: uint8(len(data)), Addr: addr}
}

// Device places the device descriptor and records it in the set.
func (l *Linker) Device(d *DeviceDescriptor) Part {
	p := l.Place(l.buf[:d.MarshalTo(l.buf[:])])
	l.set.Device = p.Addr
	return p
}

// Qualifier places the device qualifier descriptor and records it in the set.
func (l *Linker) Qualifier(q *QualifierDescriptor) Part {
	p := l.Place(l.buf[:q.MarshalTo(l.buf[:])])
	l.set.Qualifier = p.Addr
	return p
}

// Interface places an interface descriptor and appends it to the set's
// interface records.
func (l *Linker) Interface(i *InterfaceDescriptor) Part {
	p := l.Place(l.buf[:i.MarshalTo(l.buf[:])])
	if l.err == nil {
		l.set.Interfaces = append(l.set.Interfaces, p.Addr)
	}
	return p
}

// Endpoint places an endpoint descriptor and appends it to the set's
// endpoint records.
func (l *Linker) Endpoint(e *EndpointDescriptor) Part {
	p := l.Place(l.buf[:e.MarshalTo(l.buf[:])])
	if l.err == nil {
		l.set.Endpoints = append(l.set.Endpoints, p.Addr)
	}
	return p
}

// HIDClass places a HID class descriptor header.
func (l *Linker) HIDClass(h *HIDDescriptor) Part {
	return l.Place(l.buf[:h.MarshalTo(l.buf[:])])
}

// HIDReportRef places a HID report descriptor reference.
func (l *Linker) HIDReportRef(r *ReportReference) Part {
	return l.Place(l.buf[:r.MarshalTo(l.buf[:])])
}

// Table programs the part records for parts and returns the table.
func (l *Linker) Table(parts ...Part) Table {
	if l.err != nil {
		return Table{}
	}
	begin := l.img.End()
	for _, p := range parts {
		var rec [PartSize]byte
		p.MarshalTo(rec[:])
		if _, err := l.img.Append(rec[:]); err != nil {
			l.err = fmt.Errorf("table record: %w", err)
			return Table{}
		}
	}
	return NewTable(l.img, begin, begin+flash.Address(len(parts)*PartSize))
}

// Configuration places c followed by the table of c and rest, fills in
// wTotalLength and appends the table to the set's configurations.
func (l *Linker) Configuration(c *ConfigurationDescriptor, rest ...Part) Table {
	total := ConfigurationSize
	for _, p := range rest {
		total += int(p.Length)
	}
	cfg := *c
	cfg.TotalLength = uint16(total)
	head := l.Place(l.buf[:cfg.MarshalTo(l.buf[:])])

	parts := make([]Part, 0, len(rest)+1)
	parts = append(parts, head)
	parts = append(parts, rest...)
	t := l.Table(parts...)
	if l.err == nil {
		l.set.Configurations = append(l.set.Configurations, t)
	}
	return t
}

// Languages places the string descriptor zero listing the supported
// language IDs. It must be the first string linked.
func (l *Linker) Languages(ids ...uint16) Table {
	if l.err == nil && len(l.set.Strings) != 0 {
		l.err = fmt.Errorf("language table after %d strings: %w", len(l.set.Strings), pkg.ErrInvalidParameter)
	}
	payload := make([]byte, 2*len(ids))
	for i, id := range ids {
		payload[2*i] = byte(id)
		payload[2*i+1] = byte(id >> 8)
	}
	return l.stringParts(payload)
}

// String places s as a string descriptor split in two parts, the header
// and the UTF-16LE payload, and appends it to the set's strings.
func (l *Linker) String(s string) Table {
	if l.err != nil {
		return Table{}
	}
	enc := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	payload, err := enc.Bytes([]byte(s))
	if err != nil {
		l.err = fmt.Errorf("encode string %q: %w", s, err)
		return Table{}
	}
	return l.stringParts(payload)
}

func (l *Linker) stringParts(payload []byte) Table {
	if l.err != nil {
		return Table{}
	}
	var hdr [StringHeaderSize]byte
	if StringHeader(hdr[:], len(payload)) == 0 {
		l.err = fmt.Errorf("string payload of %d bytes: %w", len(payload), pkg.ErrInvalidDescriptor)
		return Table{}
	}
	t := l.Table(l.Place(hdr[:]), l.Place(payload))
	if l.err == nil {
		l.set.Strings = append(l.set.Strings, t)
	}
	return t
}

// Build seals the image and returns the linked set.
func (l *Linker) Build() (*Set, error) {
	if l.err != nil {
		return nil, l.err
	}
	if l.set.Device == flash.Nil {
		return nil, fmt.Errorf("no device descriptor: %w", pkg.ErrInvalidDescriptor)
	}
	l.img.Seal()
	set := l.set
	pkg.LogDebug(pkg.ComponentDescriptor, "descriptor set linked",
		"configurations", set.ConfigurationCount(),
		"interfaces", set.InterfaceCount(),
		"endpoints", set.EndpointCount(),
		"strings", set.StringCount(),
		"bytes", l.img.Len())
	return &set, nil
}

// DecodeString returns the text of a string descriptor read back from the
// bus.
func DecodeString(data []byte) (string, error) {
	if len(data) < StringHeaderSize {
		return "", pkg.ErrDescriptorTooShort
	}
	if Type(data[1]) != TypeString {
		return "", pkg.ErrDescriptorTypeMismatch
	}
	n := int(data[0])
	if n < StringHeaderSize || n > len(data) || n%2 != 0 {
		return "", pkg.ErrInvalidDescriptor
	}
	dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	text, err := dec.Bytes(data[StringHeaderSize:n])
	if err != nil {
		return "", fmt.Errorf("decode string: %w", err)
	}
	return string(text), nil
}
