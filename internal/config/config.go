package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cjeanneret/bonehal/internal/hw/capemgr"
	"github.com/cjeanneret/bonehal/internal/hw/overlay"
	"github.com/cjeanneret/bonehal/internal/hw/pin"
	"gopkg.in/yaml.v3"
)

// GPIO driver backends.
const (
	DriverSysfs = "sysfs" // BeagleBone kernel interfaces (default)
	DriverRPIO  = "rpio"  // go-rpio memory-mapped GPIO
	DriverMock  = "mock"  // logs only, for development on PC
)

// BoardConfig holds the board constants.
type BoardConfig struct {
	LEDPrefix         string  `yaml:"led_prefix"`         // e.g., "beaglebone:green:"
	PinctrlController string  `yaml:"pinctrl_controller"` // e.g., "44e10800.pinmux"
	PinmuxBase        string  `yaml:"pinmux_base"`        // pad register base address, hex
	AnalogScale       float64 `yaml:"analog_scale"`       // raw AIN value at full scale
}

// SysfsConfig locates the kernel interfaces.
type SysfsConfig struct {
	GPIORoot    string `yaml:"gpio_root"`    // /sys/class/gpio
	LEDRoot     string `yaml:"led_root"`     // /sys/class/leds
	DevicesRoot string `yaml:"devices_root"` // /sys/devices
	DebugGPIO   string `yaml:"debug_gpio"`   // /sys/kernel/debug/gpio
	PinctrlRoot string `yaml:"pinctrl_root"` // /sys/kernel/debug/pinctrl
}

// OverlaysConfig names the device-tree overlays to load.
type OverlaysConfig struct {
	PWM         string `yaml:"pwm"`          // generic PWM overlay
	Analog      string `yaml:"analog"`       // iio helper overlay
	FirmwareDir string `yaml:"firmware_dir"` // precompiled .dtbo files

	// Overlay nodes appear asynchronously after a slots write; discovery
	// searches up to DiscoveryAttempts times, DiscoveryRetry apart.
	DiscoveryAttempts int           `yaml:"discovery_attempts"`
	DiscoveryRetry    time.Duration `yaml:"discovery_retry"` // e.g., "100ms"
}

// ServerConfig configures the HTTP pin API.
type ServerConfig struct {
	Addr string `yaml:"addr"` // e.g., ":8080"
}

// Config aggregates all application configuration.
type Config struct {
	DebugLevel int              `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	Driver     string           `yaml:"driver"`      // sysfs, rpio or mock
	Board      BoardConfig      `yaml:"board"`
	Sysfs      SysfsConfig      `yaml:"sysfs"`
	Overlays   OverlaysConfig   `yaml:"overlays"`
	Server     ServerConfig     `yaml:"server"`
	Pins       []pin.Descriptor `yaml:"pins,omitempty"` // added to, or replacing, the built-in header table
}

// Default returns the configuration of a stock BeagleBone Black.
func Default() *Config {
	return &Config{
		Driver: DriverSysfs,
		Board: BoardConfig{
			LEDPrefix:         "beaglebone:green:",
			PinctrlController: "44e10800.pinmux",
			PinmuxBase:        "0x44e10800",
			AnalogScale:       1800,
		},
		Sysfs: SysfsConfig{
			GPIORoot:    "/sys/class/gpio",
			LEDRoot:     "/sys/class/leds",
			DevicesRoot: "/sys/devices",
			DebugGPIO:   "/sys/kernel/debug/gpio",
			PinctrlRoot: "/sys/kernel/debug/pinctrl",
		},
		Overlays: OverlaysConfig{
			PWM:               "am33xx_pwm",
			Analog:            "cape-bone-iio",
			FirmwareDir:       "/lib/firmware",
			DiscoveryAttempts: 10,
			DiscoveryRetry:    100 * time.Millisecond,
		},
		Server: ServerConfig{Addr: ":8080"},
	}
}

// ValidateConfigPath checks that path names a .yaml file directly inside a
// "configs" directory, after cleaning.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	if strings.Contains(filepath.ToSlash(path), "../") {
		return fmt.Errorf("config path %q must not contain '..'", path)
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// MaxConfigFileBytes bounds the size of a config file.
const MaxConfigFileBytes = 1 << 20

// Load reads a YAML file and returns the configuration. Missing keys keep
// their Default value.
func Load(path string) (*Config, error) {
	if err := ValidateConfigPath(path); err != nil {
		return nil, err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if fi.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file %s is %d bytes, max %d", path, fi.Size(), MaxConfigFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration and fills zero values with defaults.
func (c *Config) Validate() error {
	def := Default()

	if c.DebugLevel < 0 || c.DebugLevel > 4 {
		return fmt.Errorf("debug_level must be between 0 and 4, got %d", c.DebugLevel)
	}
	switch c.Driver {
	case "":
		c.Driver = DriverSysfs
	case DriverSysfs, DriverRPIO, DriverMock:
	default:
		return fmt.Errorf("driver must be one of sysfs, rpio, mock, got %q", c.Driver)
	}

	if c.Board.PinmuxBase == "" {
		c.Board.PinmuxBase = def.Board.PinmuxBase
	}
	if _, err := c.PinmuxBase(); err != nil {
		return err
	}
	if c.Board.AnalogScale < 0 {
		return fmt.Errorf("board.analog_scale must be > 0, got %.2f", c.Board.AnalogScale)
	}
	if c.Board.AnalogScale == 0 {
		c.Board.AnalogScale = def.Board.AnalogScale
	}
	if c.Board.PinctrlController == "" {
		c.Board.PinctrlController = def.Board.PinctrlController
	}

	if c.Overlays.DiscoveryAttempts < 0 {
		return fmt.Errorf("overlays.discovery_attempts must be >= 0, got %d", c.Overlays.DiscoveryAttempts)
	}
	if c.Overlays.DiscoveryAttempts == 0 {
		c.Overlays.DiscoveryAttempts = def.Overlays.DiscoveryAttempts
	}
	if c.Overlays.DiscoveryRetry < 0 {
		return fmt.Errorf("overlays.discovery_retry must be >= 0, got %s", c.Overlays.DiscoveryRetry)
	}

	seen := make(map[string]bool, len(c.Pins))
	for i, p := range c.Pins {
		if p.Key == "" {
			return fmt.Errorf("pins[%d]: key is required", i)
		}
		if seen[p.Key] {
			return fmt.Errorf("pins[%d]: duplicate key %q", i, p.Key)
		}
		seen[p.Key] = true
		if p.MuxRegOffset != "" {
			if _, err := p.MuxOffset(); err != nil {
				return fmt.Errorf("pins[%d]: %w", i, err)
			}
		}
	}

	if c.Server.Addr == "" {
		c.Server.Addr = def.Server.Addr
	}
	return nil
}

// PinmuxBase returns the pad register base address.
func (c *Config) PinmuxBase() (uint32, error) {
	v, err := strconv.ParseUint(c.Board.PinmuxBase, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("board.pinmux_base %q: %w", c.Board.PinmuxBase, err)
	}
	return uint32(v), nil
}

// PinctrlPins returns the path of the pinctrl register dump.
func (c *Config) PinctrlPins() string {
	return filepath.Join(c.Sysfs.PinctrlRoot, c.Board.PinctrlController, "pins")
}

// PinTable returns the built-in header table merged with the configured pins.
func (c *Config) PinTable() pin.Table {
	return pin.BeagleBoneBlack().Merge(c.Pins)
}

// HAL returns the capemgr configuration. Empty fields fall back to the
// capemgr defaults.
func (c *Config) HAL() capemgr.Config {
	base, _ := c.PinmuxBase()
	cfg := capemgr.Config{
		GPIORoot:      c.Sysfs.GPIORoot,
		LEDRoot:       c.Sysfs.LEDRoot,
		LEDPrefix:     c.Board.LEDPrefix,
		DevicesRoot:   c.Sysfs.DevicesRoot,
		DebugGPIO:     c.Sysfs.DebugGPIO,
		PinmuxBase:    base,
		AnalogScale:   c.Board.AnalogScale,
		PWMOverlay:    c.Overlays.PWM,
		AnalogOverlay: c.Overlays.Analog,
	}
	if c.Sysfs.PinctrlRoot != "" {
		cfg.PinctrlPins = c.PinctrlPins()
	}
	return cfg
}

// OverlayPaths returns the overlay manager locations.
func (c *Config) OverlayPaths() overlay.Paths {
	p := overlay.Paths{
		DevicesRoot: c.Sysfs.DevicesRoot,
		FirmwareDir: c.Overlays.FirmwareDir,
	}
	if p.DevicesRoot == "" {
		p.DevicesRoot = Default().Sysfs.DevicesRoot
	}
	if p.FirmwareDir == "" {
		p.FirmwareDir = Default().Overlays.FirmwareDir
	}
	return p
}
