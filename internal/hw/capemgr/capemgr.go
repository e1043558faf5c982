// Package capemgr maps BeagleBone pins to the kernel control files of their
// active function. It provisions GPIO and PWM functions through device-tree
// overlays, caches the discovered paths and performs I/O through them.
package capemgr

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cjeanneret/bonehal/internal/debug"
	"github.com/cjeanneret/bonehal/internal/hw/pin"
	"github.com/cjeanneret/bonehal/internal/hw/pinctrl"
	"github.com/spf13/afero"
)

// Overlays is the overlay loading and sysfs discovery service.
// *overlay.Manager implements it.
type Overlays interface {
	LoadOverlay(name string) error
	CreateFragment(p pin.Descriptor, data uint32, template string) error
	FindFile(root, prefix string, depth int) (string, error)
	OCPRoot() (string, bool)
	CapeManagerRoot() (string, bool)
	AnalogHelper() (string, error)
}

// Config locates the kernel interfaces and board constants.
type Config struct {
	GPIORoot      string  // /sys/class/gpio
	LEDRoot       string  // /sys/class/leds
	LEDPrefix     string  // "beaglebone:green:"
	DevicesRoot   string  // /sys/devices
	DebugGPIO     string  // /sys/kernel/debug/gpio
	PinctrlPins   string  // /sys/kernel/debug/pinctrl/44e10800.pinmux/pins
	PinmuxBase    uint32  // address of the pad registers
	AnalogScale   float64 // raw AIN reading at full scale
	PWMOverlay    string  // generic PWM overlay
	AnalogOverlay string  // iio helper overlay
}

// DefaultConfig returns the BeagleBone (3.8 kernel) layout.
func DefaultConfig() Config {
	return Config{
		GPIORoot:      "/sys/class/gpio",
		LEDRoot:       "/sys/class/leds",
		LEDPrefix:     "beaglebone:green:",
		DevicesRoot:   "/sys/devices",
		DebugGPIO:     "/sys/kernel/debug/gpio",
		PinctrlPins:   "/sys/kernel/debug/pinctrl/44e10800.pinmux/pins",
		PinmuxBase:    pinctrl.AM335xBase,
		AnalogScale:   1800,
		PWMOverlay:    "am33xx_pwm",
		AnalogOverlay: "cape-bone-iio",
	}
}

// HAL is the pin hardware-abstraction layer. It is safe for concurrent use:
// pipelines on the same pin key or PWM channel run one at a time, pipelines
// on different pins interleave freely.
type HAL struct {
	fs       afero.Fs
	overlays Overlays
	cfg      Config
	cache    *PathCache
	locks    keyedMutex
}

// New creates a HAL over fs. Zero-valued Config fields take their
// DefaultConfig value.
func New(fs afero.Fs, overlays Overlays, cfg Config) *HAL {
	def := DefaultConfig()
	fill := func(v *string, d string) {
		if *v == "" {
			*v = d
		}
	}
	fill(&cfg.GPIORoot, def.GPIORoot)
	fill(&cfg.LEDRoot, def.LEDRoot)
	fill(&cfg.LEDPrefix, def.LEDPrefix)
	fill(&cfg.DevicesRoot, def.DevicesRoot)
	fill(&cfg.DebugGPIO, def.DebugGPIO)
	fill(&cfg.PinctrlPins, def.PinctrlPins)
	fill(&cfg.PWMOverlay, def.PWMOverlay)
	fill(&cfg.AnalogOverlay, def.AnalogOverlay)
	if cfg.PinmuxBase == 0 {
		cfg.PinmuxBase = def.PinmuxBase
	}
	if cfg.AnalogScale <= 0 {
		cfg.AnalogScale = def.AnalogScale
	}
	return &HAL{
		fs:       fs,
		overlays: overlays,
		cfg:      cfg,
		cache:    NewPathCache(),
	}
}

// Cache returns the path cache shared by all operations of h.
func (h *HAL) Cache() *PathCache { return h.cache }

// Config returns the effective configuration.
func (h *HAL) Config() Config { return h.cfg }

func (h *HAL) gpioPath(line int, attr string) string {
	return filepath.Join(h.cfg.GPIORoot, "gpio"+strconv.Itoa(line), attr)
}

func (h *HAL) ledPath(led, attr string) string {
	return filepath.Join(h.cfg.LEDRoot, h.cfg.LEDPrefix+led, attr)
}

func (h *HAL) exists(path string) bool {
	ok, err := afero.Exists(h.fs, path)
	return err == nil && ok
}

// write replaces the content of an existing control file. Kernel attributes
// are never created.
func (h *HAL) write(path, data string) error {
	debug.Trace("write %s <- %q", path, data)
	f, err := h.fs.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (h *HAL) read(path string) (string, error) {
	data, err := afero.ReadFile(h.fs, path)
	if err != nil {
		return "", err
	}
	debug.Trace("read %s -> %q", path, data)
	return string(data), nil
}

// parseLeadingInt parses the leading run of base digits of s, ignoring
// leading whitespace and anything after the digits.
func parseLeadingInt(s string, base int) (int64, error) {
	s = strings.TrimLeft(s, " \t\r\n")
	end := 0
	for end < len(s) {
		d, ok := digitValue(s[end])
		if !ok || d >= base {
			break
		}
		end++
	}
	if end == 0 {
		return 0, fmt.Errorf("no base-%d digits in %q", base, s)
	}
	return strconv.ParseInt(s[:end], base, 64)
}

func digitValue(c byte) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10, true
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10, true
	}
	return 0, false
}
