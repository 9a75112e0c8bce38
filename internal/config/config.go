// Package config loads the simulator's device configuration from TOML.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"unicode/utf16"

	"github.com/BurntSushi/toml"

	"github.com/bad-alloc-heavy-industries/mxusb/descriptor"
	"github.com/bad-alloc-heavy-industries/mxusb/keyboard"
	"github.com/bad-alloc-heavy-industries/mxusb/pkg"
)

// Config is the complete simulator configuration.
type Config struct {
	Device  Device  `toml:"device"`
	Strings Strings `toml:"strings"`
	Log     Log     `toml:"log"`
}

// Device holds the identity and endpoint timing of the linked device.
type Device struct {
	VendorID      uint16 `toml:"vendor_id"`
	ProductID     uint16 `toml:"product_id"`
	Version       uint16 `toml:"version"`
	PacketSize    uint8  `toml:"packet_size"`
	Interval      uint8  `toml:"interval"`
	MaxPowerMilli int    `toml:"max_power_ma"`
}

// Strings holds the text of the string descriptors.
type Strings struct {
	Manufacturer string `toml:"manufacturer"`
	Product      string `toml:"product"`
	Serial       string `toml:"serial"`
	Interface    string `toml:"interface"`
}

// Log selects the log level and output format.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Default returns the MXKeyboard configuration.
func Default() Config {
	opts := keyboard.DefaultOptions()
	return Config{
		Device: Device{
			VendorID:      opts.VendorID,
			ProductID:     opts.ProductID,
			Version:       opts.DeviceVersion,
			PacketSize:    opts.MaxPacketSize0,
			Interval:      opts.Interval,
			MaxPowerMilli: 2 * int(opts.MaxPower),
		},
		Strings: Strings{
			Manufacturer: opts.Manufacturer,
			Product:      opts.Product,
			Serial:       opts.Serial,
			Interface:    opts.Interface,
		},
		Log: Log{
			Level:  "warn",
			Format: FormatText,
		},
	}
}

// Load reads the TOML file at path over the defaults and validates the
// result. Keys the configuration does not define are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("load %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("load %s: unknown keys %s: %w",
			path, strings.Join(keys, ", "), pkg.ErrInvalidParameter)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load %s: %w", path, err)
	}
	pkg.LogDebug(pkg.ComponentConfig, "configuration loaded",
		"path", path,
		"vid", fmt.Sprintf("0x%04X", cfg.Device.VendorID),
		"pid", fmt.Sprintf("0x%04X", cfg.Device.ProductID))
	return cfg, nil
}

// Validate checks every field against what the device can express.
func (c *Config) Validate() error {
	if !keyboard.ValidPacketSize(c.Device.PacketSize) {
		return fmt.Errorf("device.packet_size %d: %w", c.Device.PacketSize, pkg.ErrInvalidParameter)
	}
	if c.Device.Interval == 0 {
		return fmt.Errorf("device.interval must be at least 1: %w", pkg.ErrInvalidParameter)
	}
	if c.Device.MaxPowerMilli < 0 || c.Device.MaxPowerMilli > 510 {
		return fmt.Errorf("device.max_power_ma %d: %w", c.Device.MaxPowerMilli, pkg.ErrInvalidParameter)
	}
	for _, f := range []struct{ name, text string }{
		{"manufacturer", c.Strings.Manufacturer},
		{"product", c.Strings.Product},
		{"serial", c.Strings.Serial},
		{"interface", c.Strings.Interface},
	} {
		// Two bytes per UTF-16 code unit after the two-byte header.
		if n := len(utf16.Encode([]rune(f.text))); 2+2*n > descriptor.MaxLength {
			return fmt.Errorf("strings.%s is %d code units: %w", f.name, n, pkg.ErrInvalidParameter)
		}
	}
	if _, err := c.LogLevel(); err != nil {
		return fmt.Errorf("log.level %q: %w", c.Log.Level, err)
	}
	if !slices.Contains([]string{FormatText, FormatJSON}, c.Log.Format) {
		return fmt.Errorf("log.format %q: %w", c.Log.Format, pkg.ErrInvalidParameter)
	}
	return nil
}

// LogLevel returns the configured slog level.
func (c *Config) LogLevel() (slog.Level, error) {
	return pkg.ParseLogLevel(c.Log.Level)
}

// LogFormat returns the configured log format.
func (c *Config) LogFormat() pkg.LogFormat {
	if c.Log.Format == FormatJSON {
		return pkg.LogFormatJSON
	}
	return pkg.LogFormatText
}

// Options maps the configuration onto keyboard link options.
func (c *Config) Options() keyboard.Options {
	return keyboard.Options{
		VendorID:       c.Device.VendorID,
		ProductID:      c.Device.ProductID,
		DeviceVersion:  c.Device.Version,
		MaxPacketSize0: c.Device.PacketSize,
		Manufacturer:   c.Strings.Manufacturer,
		Product:        c.Strings.Product,
		Serial:         c.Strings.Serial,
		Interface:      c.Strings.Interface,
		Interval:       c.Device.Interval,
		MaxPower:       uint8(c.Device.MaxPowerMilli / 2),
	}
}

// Write encodes the configuration as TOML.
func (c *Config) Write(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}
