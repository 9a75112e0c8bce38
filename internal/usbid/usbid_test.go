package usbid

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sample = `# usb.ids excerpt
#	Version: 2024.01.01

1209  Generic
	0001  pid.codes Test PID
	badb  MXKeyboard
		00  interface line is ignored
16c0  Van Ooijen Technische Informatica
	05dc  shared ID for use with libusb
zzzz  not a vendor
	1234  orphan product

# List of known device classes
C 00  (Defined at Interface level)
	01  Audio
`

func TestParse(t *testing.T) {
	db, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	vendors := []struct {
		vid  uint16
		want string
	}{
		{0x1209, "Generic"},
		{0x16C0, "Van Ooijen Technische Informatica"},
		{0xFFFF, ""},
	}
	for _, tt := range vendors {
		if got := db.Vendor(tt.vid); got != tt.want {
			t.Errorf("Vendor(%04x) = %q, want %q", tt.vid, got, tt.want)
		}
	}

	products := []struct {
		vid, pid uint16
		want     string
	}{
		{0x1209, 0x0001, "pid.codes Test PID"},
		{0x1209, 0xBADB, "MXKeyboard"},
		{0x16C0, 0x05DC, "shared ID for use with libusb"},
		{0x1209, 0x1234, ""},
		{0x16C0, 0x0001, ""},
	}
	for _, tt := range products {
		if got := db.Product(tt.vid, tt.pid); got != tt.want {
			t.Errorf("Product(%04x, %04x) = %q, want %q", tt.vid, tt.pid, got, tt.want)
		}
	}

	if v, p := db.Len(); v != 2 || p != 3 {
		t.Errorf("Len() = %d, %d, want 2, 3", v, p)
	}
}

func TestNilDatabase(t *testing.T) {
	var db *Database
	if db.Vendor(0x1209) != "" || db.Product(0x1209, 1) != "" {
		t.Error("nil database returned a name")
	}
	if v, p := db.Len(); v != 0 || p != 0 {
		t.Errorf("Len() = %d, %d, want 0, 0", v, p)
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "usb.ids")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatalf("write usb.ids: %v", err)
	}

	db, used, err := Open([]string{filepath.Join(dir, "missing"), path})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if used != path {
		t.Errorf("Open() path = %q, want %q", used, path)
	}
	if db.Vendor(0x1209) != "Generic" {
		t.Errorf("Vendor(1209) = %q, want Generic", db.Vendor(0x1209))
	}

	if _, _, err := Open([]string{filepath.Join(dir, "missing")}); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Open(missing) error = %v, want %v", err, fs.ErrNotExist)
	}
}
