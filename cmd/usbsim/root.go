package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bad-alloc-heavy-industries/mxusb/internal/config"
	"github.com/bad-alloc-heavy-industries/mxusb/pkg"
)

// rootOptions carries the persistent flags and the configuration they
// resolve to.
type rootOptions struct {
	verbose    bool
	jsonLogs   bool
	configPath string

	cfg config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{cfg: config.Default()}

	cmd := &cobra.Command{
		Use:   "usbsim",
		Short: "Simulated USB device stack",
		Long: `Usbsim - run the MXKeyboard USB device stack against a simulated controller.

The descriptor set is linked into a constant-memory image exactly as the
firmware lays it out, then served by the device stack to a scripted host
over a register-level model of the USB peripheral.

Device identity, strings and logging come from an optional TOML file:
  usbsim --config keyboard.toml enumerate`,
		Version:           "1.0.0",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: opts.load,
	}

	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log at debug level")
	cmd.PersistentFlags().BoolVar(&opts.jsonLogs, "json", false, "Log in JSON format")
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "TOML configuration file")

	cmd.AddCommand(
		newEnumerateCmd(opts),
		newDumpCmd(opts),
		newConfigCmd(opts),
		newTraceCmd(),
	)
	return cmd
}

// load reads the configuration file, if any, and applies its log settings.
// The command line flags win over the file.
func (o *rootOptions) load(cmd *cobra.Command, args []string) error {
	if o.configPath != "" {
		cfg, err := config.Load(o.configPath)
		if err != nil {
			return err
		}
		o.cfg = cfg
	}

	level, err := o.cfg.LogLevel()
	if err != nil {
		return err
	}
	if o.verbose {
		level = slog.LevelDebug
	}
	format := o.cfg.LogFormat()
	if o.jsonLogs {
		format = pkg.LogFormatJSON
	}
	pkg.SetLogLevel(level)
	pkg.SetLogOutput(cmd.ErrOrStderr(), format)
	return nil
}
