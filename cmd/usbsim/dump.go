package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bad-alloc-heavy-industries/mxusb/descriptor"
	"github.com/bad-alloc-heavy-industries/mxusb/flash"
	"github.com/bad-alloc-heavy-industries/mxusb/keyboard"
)

func newDumpCmd(root *rootOptions) *cobra.Command {
	var report bool

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the linked constant-memory image",
		Long: `Link the descriptor set and print where every record landed: the image
bounds and bank, the device and qualifier records, and each multi-part
table with its part records and payload.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			set, img, err := keyboard.Build(root.cfg.Options())
			if err != nil {
				return err
			}
			dumpImage(cmd.OutOrStdout(), set, img)
			if report {
				fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n%s\n",
					headerStyle.Render(fmt.Sprintf("HID report descriptor (%d bytes)", len(keyboard.ReportDescriptor))),
					hexRows(keyboard.ReportDescriptor[:], "  "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&report, "report", "r", false, "Also print the HID report descriptor")
	return cmd
}

func dumpImage(w io.Writer, set *descriptor.Set, img *flash.Image) {
	fmt.Fprintln(w, titleStyle.Render("USBSIM IMAGE"))
	fmt.Fprintln(w, panel("Image", [][2]string{
		{"Base", addr(img.Base())},
		{"End", addr(img.End())},
		{"Length", fmt.Sprintf("%d bytes", img.Len())},
		{"Sealed", fmt.Sprintf("%v", img.Sealed())},
		{"Device", addr(set.Device)},
		{"Qualifier", addr(set.Qualifier)},
		{"Interfaces", addrs(set.Interfaces)},
		{"Endpoints", addrs(set.Endpoints)},
	}))

	for i, t := range set.Configurations {
		dumpTable(w, fmt.Sprintf("Configuration %d", i), set.Mem, t)
	}
	for i, t := range set.Strings {
		title := fmt.Sprintf("String %d", i)
		if i == 0 {
			title += " " + languages(t.Bytes())
		} else if text, err := descriptor.DecodeString(t.Bytes()); err == nil {
			title += fmt.Sprintf(" %q", text)
		}
		dumpTable(w, title, set.Mem, t)
	}
}

func dumpTable(w io.Writer, title string, mem flash.Reader, t descriptor.Table) {
	fmt.Fprintf(w, "\n%s %s\n", labelStyle.Render(title),
		headerStyle.Render(fmt.Sprintf("table %s-%s, %d parts, %d bytes",
			addr(t.Begin()), addr(t.End()), t.Count(), t.TotalLength())))
	for i, p := range t.All() {
		buf := make([]byte, p.Length)
		flash.Copy(mem, p.Addr, buf)
		fmt.Fprintf(w, "  [%d] %s %3d  %s\n", i, addr(p.Addr), p.Length, valueStyle.Render(hexRows(buf, "                      ")))
	}
}

func addr(a flash.Address) string {
	return fmt.Sprintf("0x%06X", uint32(a))
}

func addrs(list []flash.Address) string {
	s := make([]string, len(list))
	for i, a := range list {
		s[i] = addr(a)
	}
	return strings.Join(s, " ")
}

func languages(data []byte) string {
	if len(data) < descriptor.StringHeaderSize {
		return ""
	}
	var ids []string
	for i := descriptor.StringHeaderSize; i+1 < len(data); i += 2 {
		ids = append(ids, fmt.Sprintf("0x%04X", binary.LittleEndian.Uint16(data[i:])))
	}
	return "[" + strings.Join(ids, " ") + "]"
}

// hexRows formats data sixteen bytes to a line, continuation lines
// prefixed with indent.
func hexRows(data []byte, indent string) string {
	var s strings.Builder
	for i := 0; i < len(data); i += 16 {
		if i > 0 {
			s.WriteString("\n")
			s.WriteString(indent)
		}
		fmt.Fprintf(&s, "% X", data[i:min(i+16, len(data))])
	}
	return s.String()
}
