// Command bonectl provisions and drives BeagleBone header pins.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/cjeanneret/bonehal/internal/config"
	"github.com/cjeanneret/bonehal/internal/debug"
	"github.com/cjeanneret/bonehal/internal/hw/capemgr"
	"github.com/cjeanneret/bonehal/internal/hw/overlay"
	"github.com/cjeanneret/bonehal/internal/hw/pin"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a := &app{}
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app holds the state shared by all commands. It is initialized once, on
// the first command that needs hardware access.
type app struct {
	cfgPath    string
	debugLevel int

	fs   afero.Fs // nil means the OS filesystem
	cfg  *config.Config
	hal  *capemgr.HAL
	pins pin.Table
}

func (a *app) init() error {
	if a.hal != nil {
		return nil
	}
	cfg := config.Default()
	if a.cfgPath != "" {
		var err error
		if cfg, err = config.Load(a.cfgPath); err != nil {
			return fmt.Errorf("load config failed: %w", err)
		}
	}
	if a.debugLevel >= 0 {
		cfg.DebugLevel = a.debugLevel
	}

	debug.Init(cfg.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", a.cfgPath)
	debug.Value("Debug level", cfg.DebugLevel)

	if a.fs == nil {
		a.fs = afero.NewOsFs()
	}
	debug.Step(1, "Initializing overlay manager")
	ov := overlay.NewManager(a.fs, cfg.OverlayPaths())
	ov.Attempts = cfg.Overlays.DiscoveryAttempts
	ov.RetryDelay = cfg.Overlays.DiscoveryRetry
	debug.PrintStruct("Overlay paths", cfg.OverlayPaths())

	debug.Step(2, "Initializing pin HAL")
	a.hal = capemgr.New(a.fs, ov, cfg.HAL())
	debug.PrintStruct("HAL config", a.hal.Config())

	a.pins = cfg.PinTable()
	a.cfg = cfg
	return nil
}

func (a *app) lookup(key string) (pin.Descriptor, error) {
	return a.pins.Lookup(key)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "bonectl",
		Short:         "Provision and drive BeagleBone header pins",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "path to a configs/*.yaml file (default: built-in BeagleBone Black settings)")
	root.PersistentFlags().IntVar(&a.debugLevel, "debug", -1, "debug level 0-4, overrides the config")

	root.AddCommand(
		newModeCmd(a),
		newProvisionCmd(a),
		newExportCmd(a),
		newWriteCmd(a),
		newReadCmd(a),
		newAnalogCmd(a),
		newPWMCmd(a),
		newWatchCmd(a),
		newBoardCmd(a),
		newBlinkCmd(a),
		newServeCmd(a),
		newShellCmd(a),
	)
	return root
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
