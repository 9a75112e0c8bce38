package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/bad-alloc-heavy-industries/mxusb/device"
	"github.com/bad-alloc-heavy-industries/mxusb/device/hal/sim"
	"github.com/bad-alloc-heavy-industries/mxusb/host"
	"github.com/bad-alloc-heavy-industries/mxusb/internal/usbid"
	"github.com/bad-alloc-heavy-industries/mxusb/keyboard"
	"github.com/bad-alloc-heavy-industries/mxusb/pkg"
)

// simEndpoints is EP0 plus the keyboard's report endpoint.
const simEndpoints = keyboard.ReportEndpoint + 1

type enumerateOptions struct {
	*rootOptions

	address    uint8
	packetSize uint8
	tracePath  string
	usbIDs     string
	timeout    time.Duration
}

func newEnumerateCmd(root *rootOptions) *cobra.Command {
	opts := &enumerateOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "enumerate",
		Short: "Enumerate the simulated device",
		Long: `Run the device stack on the simulated bus and enumerate it from the host side:
bus reset, the first eight bytes of the device descriptor, SET_ADDRESS, the
full device descriptor, the device qualifier, the configuration header and
then the whole configuration, every string, and finally SET_CONFIGURATION.

With --trace every bus transaction is written to a CBOR file that the trace
command can print.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnumerate(cmd, opts)
		},
	}

	cmd.Flags().Uint8VarP(&opts.address, "address", "a", 5, "Address to assign (1-127)")
	cmd.Flags().Uint8VarP(&opts.packetSize, "packet-size", "p", 0, "EP0 max packet size (8, 16, 32 or 64); overrides the configuration")
	cmd.Flags().StringVarP(&opts.tracePath, "trace", "t", "", "Write the transaction trace to this CBOR file")
	cmd.Flags().StringVar(&opts.usbIDs, "usb-ids", "", "usb.ids database for vendor names (default: system locations)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "Give up after this long")
	return cmd
}

// session is one simulated device on one bus.
type session struct {
	stack  *device.Stack
	bus    *sim.Bus
	host   *sim.Host
	trace  *sim.Trace
	states []device.State
}

func newSession(opts keyboard.Options) (*session, error) {
	set, _, err := keyboard.Build(opts)
	if err != nil {
		return nil, err
	}
	ctrl, err := sim.NewController(simEndpoints)
	if err != nil {
		return nil, err
	}
	stack, err := device.New(ctrl, set)
	if err != nil {
		return nil, err
	}

	s := &session{stack: stack, trace: sim.NewTrace()}
	stack.SetOnStateChange(func(from, to device.State) {
		pkg.LogDebug(pkg.ComponentBus, "state change", "from", from, "to", to)
		s.states = append(s.states, to)
	})
	stack.Init()

	s.bus = sim.NewBus(ctrl, stack)
	s.host = sim.NewHost(s.bus)
	s.host.SetTrace(s.trace)
	return s, nil
}

func runEnumerate(cmd *cobra.Command, opts *enumerateOptions) error {
	devOpts := opts.cfg.Options()
	if cmd.Flags().Changed("packet-size") {
		devOpts.MaxPacketSize0 = opts.packetSize
	}

	ids, err := openIDs(opts.usbIDs)
	if err != nil {
		return err
	}

	s, err := newSession(devOpts)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	var dev *host.Device
	err = sim.RunScript(ctx, s.bus, func(ctx context.Context) error {
		var err error
		dev, err = host.Enumerate(ctx, s.host, opts.address)
		return err
	})

	// The trace is worth keeping even when enumeration failed.
	if opts.tracePath != "" {
		if werr := writeTrace(opts.tracePath, s.trace); werr != nil {
			return werr
		}
	}
	if err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), errorStyle.Render("enumeration failed"))
		return fmt.Errorf("enumerate: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderEnumeration(dev, s, ids))
	return nil
}

// openIDs loads the usb.ids database from path, or from the system
// locations when path is empty. A missing system database is not an error.
func openIDs(path string) (*usbid.Database, error) {
	if path != "" {
		db, _, err := usbid.Open([]string{path})
		return db, err
	}
	db, used, err := usbid.Open(usbid.DefaultPaths)
	if errors.Is(err, fs.ErrNotExist) {
		pkg.LogDebug(pkg.ComponentHost, "no usb.ids database found")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	pkg.LogDebug(pkg.ComponentHost, "usb.ids loaded", "path", used)
	return db, nil
}

func writeTrace(path string, trace *sim.Trace) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := trace.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("write trace: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	pkg.LogInfo(pkg.ComponentSim, "trace written", "path", path, "records", trace.Len())
	return nil
}

func renderEnumeration(dev *host.Device, s *session, ids *usbid.Database) string {
	d := dev.Descriptor
	devicePanel := panel("Device", [][2]string{
		{"Address", fmt.Sprintf("%d", dev.Address)},
		{"VID:PID", fmt.Sprintf("%04X:%04X", d.VendorID, d.ProductID)},
		{"Vendor", known(ids.Vendor(d.VendorID))},
		{"Registered", known(ids.Product(d.VendorID, d.ProductID))},
		{"USB", bcd(d.USBVersion)},
		{"Release", bcd(d.DeviceVersion)},
		{"EP0 size", fmt.Sprintf("%d", d.MaxPacketSize0)},
		{"Manufacturer", quoted(dev.Manufacturer())},
		{"Product", quoted(dev.Product())},
		{"Serial", quoted(dev.SerialNumber())},
	})

	c := dev.Configuration
	configRows := [][2]string{
		{"Value", fmt.Sprintf("%d", c.ConfigurationValue)},
		{"Name", quoted(dev.Strings[c.ConfigurationIndex])},
		{"Total length", fmt.Sprintf("%d", c.TotalLength)},
		{"Attributes", fmt.Sprintf("0x%02X", c.Attributes)},
		{"Max power", fmt.Sprintf("%d mA", 2*int(c.MaxPower))},
	}
	for _, iface := range dev.Interfaces {
		configRows = append(configRows, [2]string{
			fmt.Sprintf("Interface %d", iface.InterfaceNumber),
			fmt.Sprintf("class %02X/%02X/%02X", iface.InterfaceClass, iface.InterfaceSubClass, iface.InterfaceProtocol),
		})
	}
	for _, ep := range dev.Endpoints {
		dir := "OUT"
		if ep.IsIn() {
			dir = "IN"
		}
		configRows = append(configRows, [2]string{
			fmt.Sprintf("EP%d %s", ep.Number(), dir),
			fmt.Sprintf("%v, %d bytes, every %d ms", ep.TransferType(), ep.MaxPacketSize, ep.Interval),
		})
	}
	configPanel := panel("Configuration", configRows)

	states := make([]string, len(s.states))
	for i, st := range s.states {
		states[i] = st.String()
	}
	stalls := 0
	for _, r := range s.trace.Records() {
		if r.Handshake == pkg.HandshakeStall.String() {
			stalls++
		}
	}
	busPanel := panel("Bus", [][2]string{
		{"States", strings.Join(states, " > ")},
		{"Configured", fmt.Sprintf("%v (active %d)", s.stack.IsConfigured(), s.stack.ActiveConfiguration())},
		{"Transactions", fmt.Sprintf("%d", s.trace.Len())},
		{"Stalls", fmt.Sprintf("%d", stalls)},
	})

	var out strings.Builder
	out.WriteString(titleStyle.Render("USBSIM ENUMERATE"))
	out.WriteString("\n\n")
	out.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, devicePanel, " ", configPanel))
	out.WriteString("\n")
	out.WriteString(busPanel)
	return out.String()
}

// bcd formats a binary-coded-decimal version such as bcdUSB.
func bcd(v uint16) string {
	return fmt.Sprintf("%x.%02x", v>>8, v&0xFF)
}

func known(s string) string {
	if s == "" {
		return "(unknown)"
	}
	return s
}

func quoted(s string) string {
	if s == "" {
		return "(none)"
	}
	return fmt.Sprintf("%q", s)
}
