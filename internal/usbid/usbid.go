// Package usbid resolves vendor and product IDs to names using the usb.ids
// database shipped with usbutils and hwdata.
package usbid

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

// DefaultPaths lists the standard locations of usb.ids.
var DefaultPaths = []string{
	"/usr/share/hwdata/usb.ids",
	"/var/lib/usbutils/usb.ids",
	"/usr/share/misc/usb.ids",
}

// Database holds vendor and product names. The zero value is an empty
// database whose lookups all miss.
type Database struct {
	vendors  map[uint16]string
	products map[uint32]string // VID<<16 | PID
}

// Open loads the first of paths that exists. It returns fs.ErrNotExist
// when none does.
func Open(paths []string) (*Database, string, error) {
	for _, path := range paths {
		f, err := os.Open(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, "", err
		}
		defer f.Close()
		db, err := Parse(f)
		if err != nil {
			return nil, "", fmt.Errorf("%s: %w", path, err)
		}
		return db, path, nil
	}
	return nil, "", fs.ErrNotExist
}

// Parse reads the usb.ids format: vendor lines "vvvv  name", product lines
// indented by one tab "\tpppp  name". Sections after the vendor list
// (classes, languages and so on) end the current vendor.
func Parse(r io.Reader) (*Database, error) {
	db := &Database{
		vendors:  make(map[uint16]string),
		products: make(map[uint32]string),
	}
	scanner := bufio.NewScanner(r)
	var vid uint16
	haveVendor := false

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || line[0] == '#' {
			continue
		}

		if line[0] == '\t' {
			if !haveVendor || strings.HasPrefix(line, "\t\t") {
				continue
			}
			if id, name, ok := entry(line[1:]); ok {
				db.products[uint32(vid)<<16|uint32(id)] = name
			}
			continue
		}

		id, name, ok := entry(line)
		haveVendor = ok
		if ok {
			vid = id
			db.vendors[vid] = name
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return db, nil
}

// entry splits "xxxx  name" into its hex ID and name.
func entry(line string) (uint16, string, bool) {
	if len(line) < 6 || line[4] != ' ' {
		return 0, "", false
	}
	id, err := strconv.ParseUint(line[:4], 16, 16)
	if err != nil {
		return 0, "", false
	}
	return uint16(id), strings.TrimSpace(line[5:]), true
}

// Vendor returns the vendor name for vid, or "" if unknown.
func (db *Database) Vendor(vid uint16) string {
	if db == nil {
		return ""
	}
	return db.vendors[vid]
}

// Product returns the product name for vid:pid, or "" if unknown.
func (db *Database) Product(vid, pid uint16) string {
	if db == nil {
		return ""
	}
	return db.products[uint32(vid)<<16|uint32(pid)]
}

// Len returns the number of vendors and products.
func (db *Database) Len() (vendors, products int) {
	if db == nil {
		return 0, 0
	}
	return len(db.vendors), len(db.products)
}
