package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/cjeanneret/bonehal/internal/debug"
	"github.com/cjeanneret/bonehal/internal/hw/capemgr"
	"github.com/cjeanneret/bonehal/internal/hw/gpio"
	"github.com/cjeanneret/bonehal/internal/hw/pin"
	"github.com/cjeanneret/bonehal/internal/hw/pinctrl"
	"github.com/cjeanneret/bonehal/internal/web"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// defaultPadData returns the pad configuration used when --data is not
// given: mux mode 7 with the receiver on and no pull for GPIO, the PWM mux
// mode with the default pulldown for PWM.
func defaultPadData(p pin.Descriptor, tmpl capemgr.Template) uint32 {
	if tmpl == capemgr.TemplatePWM && p.PWM != nil {
		return pinctrl.Encode(p.PWM.MuxMode, pinctrl.PullDown, false, false)
	}
	return pinctrl.Encode(7, pinctrl.PullDisabled, true, false)
}

func parseData(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid pad data %q: %w", s, err)
	}
	return uint32(v), nil
}

// provision runs Provision and reports a warning without failing.
func (a *app) provision(w io.Writer, p pin.Descriptor, data uint32, tmpl capemgr.Template) error {
	err := a.hal.Provision(p, data, tmpl)
	if capemgr.IsWarning(err) {
		fmt.Fprintf(w, "%s: warning: %v\n", p.Key, err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", p.Key, err)
	}
	return nil
}

func newModeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mode <pin>",
		Short: "Show the decoded mux, direction and PWM state of a pin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.lookup(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), web.PinStatus{Pin: p, Mode: a.hal.Inspect(p)})
		},
	}
}

// lockedWriter serializes writes from concurrent provisioning goroutines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func newProvisionCmd(a *app) *cobra.Command {
	var (
		template string
		data     string
		parallel int
	)
	cmd := &cobra.Command{
		Use:   "provision <pin>...",
		Short: "Load the overlay fragment for each pin and resolve its control files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tmpl, err := capemgr.ParseTemplate(template)
			if err != nil {
				return err
			}
			pins := make([]pin.Descriptor, 0, len(args))
			for _, key := range args {
				p, err := a.lookup(key)
				if err != nil {
					return err
				}
				pins = append(pins, p)
			}
			var fixed *uint32
			if data != "" {
				v, err := parseData(data)
				if err != nil {
					return err
				}
				fixed = &v
			}

			out := &lockedWriter{w: cmd.OutOrStdout()}
			var g errgroup.Group
			g.SetLimit(parallel)
			for _, p := range pins {
				g.Go(func() error {
					d := defaultPadData(p, tmpl)
					if fixed != nil {
						d = *fixed
					}
					debug.Stage(p.Key, string(tmpl), fmt.Sprintf("%#x", d))
					if err := a.provision(out, p, d, tmpl); err != nil {
						return err
					}
					fmt.Fprintf(out, "%s: provisioned %s %#x\n", p.Key, tmpl, d)
					return nil
				})
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&template, "template", "gpio", "pin mode template: gpio or pwm")
	cmd.Flags().StringVar(&data, "data", "", "pad configuration word, e.g. 0x2f (default: derived from the template)")
	cmd.Flags().IntVar(&parallel, "parallel", 4, "pins provisioned concurrently")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <pin> <in|out|high|low>",
		Short: "Export the GPIO line of a pin and set its direction",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.lookup(args[0])
			if err != nil {
				return err
			}
			a.hal.AdoptExported(p)
			return a.hal.Export(p, args[1])
		},
	}
}

func newWriteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "write <pin> <0|1>",
		Short: "Write a digital value to a GPIO or LED",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.lookup(args[0])
			if err != nil {
				return err
			}
			v, err := strconv.Atoi(args[1])
			if err != nil || (v != 0 && v != 1) {
				return fmt.Errorf("value must be 0 or 1, got %q", args[1])
			}
			return a.hal.DigitalWrite(p, v)
		},
	}
}

func newReadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "read <pin>",
		Short: "Read the digital value of a GPIO",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.lookup(args[0])
			if err != nil {
				return err
			}
			v, err := a.hal.DigitalRead(p)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
}

func newAnalogCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "analog <pin>",
		Short: "Read an analog input, normalized to [0,1]",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.lookup(args[0])
			if err != nil {
				return err
			}
			if _, ok := a.hal.Cache().AnalogPrefix(); !ok {
				if err := a.hal.EnableAnalog(); err != nil {
					return err
				}
			}
			v, err := a.hal.AnalogRead(p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%.4f\n", v)
			return nil
		},
	}
}

func newPWMCmd(a *app) *cobra.Command {
	var data string
	cmd := &cobra.Command{
		Use:   "pwm <pin> <freq> <value>",
		Short: "Set the frequency (Hz) and duty fraction of a PWM pin, provisioning it if needed",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.lookup(args[0])
			if err != nil {
				return err
			}
			freq, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid frequency %q: %w", args[1], err)
			}
			value, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("invalid duty value %q: %w", args[2], err)
			}
			if err := web.ValidatePWM(web.PWMRequest{Freq: freq, Value: value}); err != nil {
				return err
			}

			err = a.hal.PWMWrite(p, freq, value)
			if !errors.Is(err, capemgr.ErrNotProvisioned) {
				return err
			}
			d := defaultPadData(p, capemgr.TemplatePWM)
			if data != "" {
				if d, err = parseData(data); err != nil {
					return err
				}
			}
			if err := a.provision(cmd.OutOrStdout(), p, d, capemgr.TemplatePWM); err != nil {
				return err
			}
			return a.hal.PWMWrite(p, freq, value)
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "pad configuration word used if the pin must be provisioned")
	return cmd
}

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <pin> <rising|falling|both>",
		Short: "Print the value of a GPIO on every edge until interrupted",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.lookup(args[0])
			if err != nil {
				return err
			}
			a.hal.AdoptExported(p)
			if err := a.hal.Export(p, "in"); err != nil {
				return err
			}
			h, err := a.hal.SetEdge(p, args[1])
			if err != nil {
				return err
			}
			defer h.Close()

			ctx := cmd.Context()
			for {
				v, err := h.Wait(ctx)
				if ctx.Err() != nil {
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %d\n", time.Now().Format(time.TimeOnly+".000"), p.Key, v)
			}
		},
	}
}

func newBoardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "board",
		Short: "Show the board name, revision and serial number",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pl, err := a.hal.ReadPlatform()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), pl)
		},
	}
}

func newBlinkCmd(a *app) *cobra.Command {
	var (
		period time.Duration
		count  int
	)
	cmd := &cobra.Command{
		Use:   "blink <gpio-line>",
		Short: "Toggle a GPIO line through the configured driver",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid GPIO line %q: %w", args[0], err)
			}
			drv, err := gpio.NewDriver(a.cfg.Driver, a.hal, a.pins)
			if err != nil {
				return fmt.Errorf("init GPIO failed: %w", err)
			}
			defer func() {
				if err := drv.Close(); err != nil {
					debug.Error(fmt.Errorf("closing GPIO driver failed: %w", err))
				}
			}()
			err = gpio.Blink(cmd.Context(), drv, line, period, count)
			if cmd.Context().Err() != nil {
				return nil
			}
			return err
		},
	}
	cmd.Flags().DurationVar(&period, "period", time.Second, "full on/off cycle")
	cmd.Flags().IntVar(&count, "count", 0, "cycles to run, 0 until interrupted")
	return cmd
}

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP pin API and status stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			broadcaster := web.NewStatusBroadcaster()
			debug.SetOutput(io.MultiWriter(os.Stderr, web.BroadcastWriter(broadcaster)))
			defer debug.SetOutput(os.Stdout)

			if err := a.hal.EnableAnalog(); err != nil {
				debug.Error(fmt.Errorf("analog inputs unavailable: %w", err))
			}
			if pl, err := a.hal.ReadPlatform(); err == nil {
				debug.Value("Board", pl)
			}
			return web.NewServer(addr, broadcaster, a.hal, a.pins).Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: server.addr from the config)")
	return cmd
}
