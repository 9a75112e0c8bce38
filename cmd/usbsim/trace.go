package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bad-alloc-heavy-industries/mxusb/device/hal/sim"
	"github.com/bad-alloc-heavy-industries/mxusb/pkg"
)

func newTraceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trace <file.cbor>",
		Short: "Print a transaction trace written by enumerate --trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			records, err := sim.ReadTrace(f)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("USBSIM TRACE %s", args[0])))
			for _, r := range records {
				fmt.Fprintln(w, formatRecord(r))
			}
			return nil
		},
	}
}

func formatRecord(r sim.Record) string {
	var s strings.Builder
	fmt.Fprintf(&s, "%5d %-7s", r.Seq, r.Kind)
	switch r.Kind {
	case sim.KindSetup, sim.KindIn, sim.KindOut:
		fmt.Fprintf(&s, " %3d.%d", r.Address, r.Endpoint)
	}
	if r.Handshake != "" {
		style := valueStyle
		if r.Handshake != pkg.HandshakeACK.String() {
			style = errorStyle
		}
		s.WriteString(" ")
		s.WriteString(style.Render(fmt.Sprintf("%-5s", r.Handshake)))
	}
	if len(r.Data) > 0 {
		fmt.Fprintf(&s, " % X", r.Data)
	}
	if r.Error != "" {
		s.WriteString(" ")
		s.WriteString(errorStyle.Render(r.Error))
	}
	return s.String()
}
