package flash

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/bad-alloc-heavy-industries/mxusb/pkg"
)

func newTestImage(t *testing.T, base Address, chunks ...[]byte) (*Image, []Address) {
	t.Helper()
	img := NewImage(base, 1024)
	addrs := make([]Address, 0, len(chunks))
	for _, c := range chunks {
		addr, err := img.Append(c)
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		addrs = append(addrs, addr)
	}
	img.Seal()
	return img, addrs
}

func TestImageAppendAddresses(t *testing.T) {
	img, addrs := newTestImage(t, 0x1000, []byte{1, 2, 3}, []byte{4}, []byte{5, 6})

	want := []Address{0x1000, 0x1003, 0x1004}
	for i, addr := range addrs {
		if addr != want[i] {
			t.Errorf("addrs[%d] = 0x%X, want 0x%X", i, addr, want[i])
		}
	}
	if got := img.End(); got != 0x1006 {
		t.Errorf("End() = 0x%X, want 0x1006", got)
	}
	if got := img.Len(); got != 6 {
		t.Errorf("Len() = %d, want 6", got)
	}
}

func TestImageNilBase(t *testing.T) {
	img := NewImage(Nil, 16)
	addr, err := img.Append([]byte{0xAA})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if addr == Nil {
		t.Error("Append() returned the Nil address")
	}
}

func TestImageFull(t *testing.T) {
	img := NewImage(0x100, 4)
	if _, err := img.Append([]byte{1, 2, 3}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	_, err := img.Append([]byte{4, 5})
	if !errors.Is(err, pkg.ErrImageFull) {
		t.Errorf("Append() error = %v, want %v", err, pkg.ErrImageFull)
	}
}

func TestImageSealed(t *testing.T) {
	img, _ := newTestImage(t, 0x100, []byte{1})
	if !img.Sealed() {
		t.Fatal("image should be sealed")
	}
	_, err := img.Append([]byte{2})
	if !errors.Is(err, pkg.ErrImageSealed) {
		t.Errorf("Append() error = %v, want %v", err, pkg.ErrImageSealed)
	}
}

func TestReadHelpers(t *testing.T) {
	img, addrs := newTestImage(t, 0x2000,
		[]byte{0x7F},
		[]byte{0x34, 0x12},
		[]byte{0x78, 0x56, 0x34, 0x12},
	)

	if got := ReadByte(img, addrs[0]); got != 0x7F {
		t.Errorf("ReadByte() = 0x%02X, want 0x7F", got)
	}
	if got := ReadUint16(img, addrs[1]); got != 0x1234 {
		t.Errorf("ReadUint16() = 0x%04X, want 0x1234", got)
	}
	if got := ReadUint32(img, addrs[2]); got != 0x12345678 {
		t.Errorf("ReadUint32() = 0x%08X, want 0x12345678", got)
	}
	// Unaligned read spanning two records.
	if got := ReadUint16(img, addrs[0]); got != 0x347F {
		t.Errorf("ReadUint16(unaligned) = 0x%04X, want 0x347F", got)
	}
}

func TestReadErased(t *testing.T) {
	img, _ := newTestImage(t, 0x2000, []byte{0x01})

	var buf [3]byte
	img.ReadAt(0x1FFF, buf[:])
	want := []byte{Erased, 0x01, Erased}
	if !bytes.Equal(buf[:], want) {
		t.Errorf("ReadAt() = % X, want % X", buf[:], want)
	}
}

func TestCopySplitsLargeReads(t *testing.T) {
	data := make([]byte, 3*MaxReadSize+5)
	for i := range data {
		data[i] = byte(i)
	}
	img := NewImage(0x3000, len(data))
	addr, err := img.Append(data)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	img.Seal()

	rec := &countingReader{r: img}
	got := make([]byte, len(data))
	Copy(rec, addr, got)

	if !bytes.Equal(got, data) {
		t.Error("Copy() returned different bytes")
	}
	if rec.calls != 4 {
		t.Errorf("ReadAt calls = %d, want 4", rec.calls)
	}
	if rec.largest > MaxReadSize {
		t.Errorf("largest read = %d, want <= %d", rec.largest, MaxReadSize)
	}
}

func TestBankRegisterRestored(t *testing.T) {
	img := NewImage(0xFFFE, 8)
	addr, err := img.Append([]byte{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	img.Seal()

	img.SetBank(0x5A)
	var buf [4]byte
	img.ReadAt(addr, buf[:]) // crosses from bank 0 into bank 1
	if got := img.Bank(); got != 0x5A {
		t.Errorf("Bank() after read = 0x%02X, want 0x5A", got)
	}
	if !bytes.Equal(buf[:], []byte{1, 2, 3, 4}) {
		t.Errorf("ReadAt() = % X, want 01 02 03 04", buf[:])
	}
}

func TestConcurrentReads(t *testing.T) {
	img, addrs := newTestImage(t, 0x4000, []byte("constant"), []byte("memory"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				var a [8]byte
				var b [6]byte
				img.ReadAt(addrs[0], a[:])
				img.ReadAt(addrs[1], b[:])
				if string(a[:]) != "constant" || string(b[:]) != "memory" {
					t.Errorf("concurrent read mismatch: %q %q", a, b)
					return
				}
			}
		}()
	}
	wg.Wait()
}

type countingReader struct {
	r       Reader
	calls   int
	largest int
}

func (c *countingReader) ReadAt(addr Address, buf []byte) {
	c.calls++
	if len(buf) > c.largest {
		c.largest = len(buf)
	}
	c.r.ReadAt(addr, buf)
}
