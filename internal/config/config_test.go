package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// ---------- ValidateConfigPath ----------

func TestValidateConfigPath_Valid(t *testing.T) {
	// Create a real configs/ directory so filepath.Abs resolves correctly.
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "default.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ValidateConfigPath(path); err != nil {
		t.Errorf("expected valid path, got error: %v", err)
	}
}

func TestValidateConfigPath_PathTraversal(t *testing.T) {
	cases := []string{
		"../../etc/passwd",
		"configs/../../../etc/shadow",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for traversal path %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_WrongExtension(t *testing.T) {
	cases := []string{
		"configs/default.json",
		"configs/default.yml",
		"configs/default.txt",
		"configs/default",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for extension in %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_NotInConfigsDir(t *testing.T) {
	cases := []string{
		"other/default.yaml",
		"default.yaml",
		"/tmp/default.yaml",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for path outside configs/ %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_EmptyPath(t *testing.T) {
	if err := ValidateConfigPath(""); err == nil {
		t.Error("expected error for empty path, got nil")
	}
}

func TestValidateConfigPath_VeryLongPath(t *testing.T) {
	long := "configs/" + strings.Repeat("a", 1000) + ".yaml"
	// Should not panic; error or success is OS-dependent, but must not crash.
	_ = ValidateConfigPath(long)
}

func TestValidateConfigPath_SpecialChars(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name    string
		wantErr bool
	}{
		{"con fig.yaml", false},
		{"café.yaml", false},
	}
	for _, tc := range cases {
		path := filepath.Join(cfgDir, tc.name)
		err := ValidateConfigPath(path)
		if tc.wantErr && err == nil {
			t.Errorf("expected error for %q, got nil", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("unexpected error for %q: %v", tc.name, err)
		}
	}
}

func TestValidateConfigPath_DoubleTraversal(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	// Try to escape via ../../configs/ok.yaml: filepath.Clean resolves this
	// and the parent must still be "configs".
	path := filepath.Join(cfgDir, "../../configs/ok.yaml")
	err := ValidateConfigPath(path)
	// After Clean the parent may or may not be "configs" depending on resolution.
	// The important thing is it either succeeds with a valid parent or fails.
	_ = err
}

// ---------- Load ----------

// writeConfig creates a temporary configs/ dir with the given YAML content and returns the path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "test.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validYAML = `
debug_level: 2
driver: mock
board:
  led_prefix: "beaglebone:blue:"
  pinctrl_controller: "44e10800.pinmux"
  pinmux_base: "0x44e10800"
  analog_scale: 4096
sysfs:
  gpio_root: /tmp/sys/class/gpio
  led_root: /tmp/sys/class/leds
  devices_root: /tmp/sys/devices
  debug_gpio: /tmp/sys/kernel/debug/gpio
  pinctrl_root: /tmp/sys/kernel/debug/pinctrl
overlays:
  pwm: am33xx_pwm
  analog: BB-ADC
  firmware_dir: /tmp/lib/firmware
server:
  addr: ":8980"
pins:
  - key: P8_11
    name: GPIO1_13
    gpio: 45
    mux_offset: "0x034"
  - key: P9_14
    name: EHRPWM1A
    gpio: 50
    mux_offset: "0x048"
    pwm:
      name: EHRPWM1A
      module: ehrpwm1
      index: 0
      muxmode: 6
`

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DebugLevel != 2 {
		t.Errorf("debug_level = %d, want 2", cfg.DebugLevel)
	}
	if cfg.Driver != DriverMock {
		t.Errorf("driver = %q, want %q", cfg.Driver, DriverMock)
	}
	if cfg.Board.AnalogScale != 4096 {
		t.Errorf("board.analog_scale = %v, want 4096", cfg.Board.AnalogScale)
	}
	if cfg.Server.Addr != ":8980" {
		t.Errorf("server.addr = %q, want :8980", cfg.Server.Addr)
	}
	if len(cfg.Pins) != 2 {
		t.Fatalf("pins = %d, want 2", len(cfg.Pins))
	}
	if cfg.Pins[1].PWM == nil || cfg.Pins[1].PWM.MuxMode != 6 {
		t.Errorf("pins[1].pwm = %+v, want muxmode 6", cfg.Pins[1].PWM)
	}
	if got := cfg.PinctrlPins(); got != "/tmp/sys/kernel/debug/pinctrl/44e10800.pinmux/pins" {
		t.Errorf("PinctrlPins() = %q", got)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	path := writeConfig(t, "debug_level: 1\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Driver != DriverSysfs {
		t.Errorf("driver default = %q, want sysfs", cfg.Driver)
	}
	if cfg.Board.AnalogScale != 1800 {
		t.Errorf("analog_scale default = %v, want 1800", cfg.Board.AnalogScale)
	}
	if cfg.Sysfs.GPIORoot != "/sys/class/gpio" {
		t.Errorf("gpio_root default = %q", cfg.Sysfs.GPIORoot)
	}
	if cfg.Overlays.PWM != "am33xx_pwm" || cfg.Overlays.Analog != "cape-bone-iio" {
		t.Errorf("overlays default = %+v", cfg.Overlays)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("server.addr default = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Overlays.DiscoveryAttempts != 10 || cfg.Overlays.DiscoveryRetry != 100*time.Millisecond {
		t.Errorf("discovery defaults = %d, %s", cfg.Overlays.DiscoveryAttempts, cfg.Overlays.DiscoveryRetry)
	}
	base, err := cfg.PinmuxBase()
	if err != nil || base != 0x44e10800 {
		t.Errorf("PinmuxBase() = %#x, %v", base, err)
	}
}

func TestLoad_PartialSectionKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "sysfs:\n  gpio_root: /tmp/gpio\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Sysfs.GPIORoot != "/tmp/gpio" {
		t.Errorf("gpio_root = %q, want /tmp/gpio", cfg.Sysfs.GPIORoot)
	}
	if cfg.Sysfs.LEDRoot != "/sys/class/leds" {
		t.Errorf("led_root = %q, want default", cfg.Sysfs.LEDRoot)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"debug_level_high", "debug_level: 5"},
		{"debug_level_negative", "debug_level: -1"},
		{"driver", "driver: wiringpi"},
		{"pinmux_base", "board:\n  pinmux_base: zz"},
		{"analog_scale", "board:\n  analog_scale: -1"},
		{"pin_without_key", "pins:\n  - gpio: 45"},
		{"duplicate_pin", "pins:\n  - key: P8_11\n  - key: P8_11"},
		{"bad_mux_offset", "pins:\n  - key: P8_11\n    mux_offset: 0xgg"},
		{"discovery_attempts", "overlays:\n  discovery_attempts: -2"},
		{"discovery_retry_negative", "overlays:\n  discovery_retry: -1s"},
		{"discovery_retry_garbage", "overlays:\n  discovery_retry: soon"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.yaml)
			if _, err := Load(path); err == nil {
				t.Errorf("expected error for %q, got nil", tc.yaml)
			}
		})
	}
}

func TestLoad_DiscoveryTiming(t *testing.T) {
	path := writeConfig(t, "overlays:\n  discovery_attempts: 3\n  discovery_retry: 250ms\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Overlays.DiscoveryAttempts != 3 {
		t.Errorf("discovery_attempts = %d, want 3", cfg.Overlays.DiscoveryAttempts)
	}
	if cfg.Overlays.DiscoveryRetry != 250*time.Millisecond {
		t.Errorf("discovery_retry = %s, want 250ms", cfg.Overlays.DiscoveryRetry)
	}
	if cfg.Overlays.PWM != "am33xx_pwm" {
		t.Errorf("overlays.pwm = %q, want default", cfg.Overlays.PWM)
	}
}

func TestLoad_FileTooLarge(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "big.yaml")
	data := make([]byte, MaxConfigFileBytes+1)
	for i := range data {
		data[i] = '#'
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for oversized config file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "{{{{invalid yaml!!!!")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for invalid YAML, got nil")
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	path := writeConfig(t, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("empty config should load defaults, got error: %v", err)
	}
	if cfg.Driver != DriverSysfs {
		t.Errorf("driver = %q, want sysfs", cfg.Driver)
	}
}

func TestLoad_UnknownFields(t *testing.T) {
	yaml := `
driver: mock
unknown_section:
  foo: bar
`
	path := writeConfig(t, yaml)
	_, err := Load(path)
	if err != nil {
		t.Errorf("unknown fields should be ignored, got error: %v", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "nonexistent.yaml")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for nonexistent file, got nil")
	}
}

func TestLoad_RejectsPathOutsideConfigs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.yaml")
	if err := os.WriteFile(path, []byte("driver: mock"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for config outside configs/, got nil")
	}
}

// ---------- Derived settings ----------

func TestPinTable_MergesConfiguredPins(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatal(err)
	}
	table := cfg.PinTable()
	p, err := table.Lookup("p8.11")
	if err != nil {
		t.Fatalf("configured pin missing: %v", err)
	}
	if p.Line() != 45 {
		t.Errorf("P8_11 gpio = %d, want 45", p.Line())
	}
	if _, err := table.Lookup("USR0"); err != nil {
		t.Errorf("built-in pins must survive the merge: %v", err)
	}
}

func TestHAL(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	if err != nil {
		t.Fatal(err)
	}
	h := cfg.HAL()
	if h.GPIORoot != "/tmp/sys/class/gpio" {
		t.Errorf("GPIORoot = %q", h.GPIORoot)
	}
	if h.LEDPrefix != "beaglebone:blue:" {
		t.Errorf("LEDPrefix = %q", h.LEDPrefix)
	}
	if h.AnalogOverlay != "BB-ADC" {
		t.Errorf("AnalogOverlay = %q", h.AnalogOverlay)
	}
	if h.PinmuxBase != 0x44e10800 {
		t.Errorf("PinmuxBase = %#x", h.PinmuxBase)
	}
	if h.PinctrlPins != "/tmp/sys/kernel/debug/pinctrl/44e10800.pinmux/pins" {
		t.Errorf("PinctrlPins = %q", h.PinctrlPins)
	}

	p := cfg.OverlayPaths()
	if p.DevicesRoot != "/tmp/sys/devices" || p.FirmwareDir != "/tmp/lib/firmware" {
		t.Errorf("OverlayPaths() = %+v", p)
	}
}

func TestParse_ShippedConfig(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "configs", "beaglebone-black.yaml"))
	if err != nil {
		t.Fatalf("read shipped config: %v", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Driver != DriverSysfs {
		t.Errorf("Driver = %q, want %q", cfg.Driver, DriverSysfs)
	}
	p, err := cfg.PinTable().Lookup("P9_42")
	if err != nil {
		t.Fatalf("Lookup P9_42: %v", err)
	}
	if p.PWM == nil || p.PWM.Name != "ECAPPWM0" {
		t.Errorf("P9_42 PWM = %+v, want ECAPPWM0", p.PWM)
	}
}
