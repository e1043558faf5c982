package capemgr

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cjeanneret/bonehal/internal/debug"
	"github.com/cjeanneret/bonehal/internal/hw/pin"
	"github.com/cjeanneret/bonehal/internal/hw/pinctrl"
)

// State says whether a pin function is live.
type State int

const (
	Inactive State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "inactive"
}

// MarshalText encodes the state as "active" or "inactive".
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// PWMState is the decoded output of a PWM channel.
type PWMState struct {
	Freq  float64 `json:"freq"`  // Hz
	Value float64 `json:"value"` // duty fraction in [0,1]
}

// Mode is a pin's decoded hardware state. It is recomputed on every query.
// Decoders never fail: missing kernel files yield an Inactive Mode, and
// unexpected read errors are reported in Err.
type Mode struct {
	Pin       string       `json:"pin,omitempty"`
	State     State        `json:"state"`
	Direction string       `json:"direction,omitempty"`
	Pad       *pinctrl.Pad `json:"pad,omitempty"`
	PWM       *PWMState    `json:"pwm,omitempty"`
	Err       string       `json:"error,omitempty"`
}

// Active reports whether the mode describes a live function.
func (m Mode) Active() bool { return m.State == Active }

// ReadPinMux decodes the pad configuration register of p from the pinctrl
// debug dump.
func (h *HAL) ReadPinMux(p pin.Descriptor) Mode {
	mode := Mode{Pin: p.Key}
	offset, err := p.MuxOffset()
	if err != nil {
		debug.Verbose("getPinMode(%s): %v", p.Key, err)
		return mode
	}
	data, err := h.read(h.cfg.PinctrlPins)
	if err != nil {
		if os.IsNotExist(err) {
			debug.Verbose("getPinMode(%s): no valid mux data", p.Key)
		} else {
			mode.Err = "readPinctrl error: " + err.Error()
			debug.Verbose("getPinMode(%s): %s", p.Key, mode.Err)
		}
		return mode
	}
	if pad, ok := pinctrl.Find(data, offset, h.cfg.PinmuxBase); ok {
		mode.Pad = &pad
	}
	return mode
}

// ReadPinMuxAsync runs ReadPinMux in a new goroutine and passes the result
// to done.
func (h *HAL) ReadPinMuxAsync(p pin.Descriptor, done func(Mode)) {
	go func() {
		m := h.ReadPinMux(p)
		if done != nil {
			done(m)
		}
	}()
}

// ReadGPIODirection reads the direction of an exported GPIO line. The mode
// is inactive when the line is not exported.
func (h *HAL) ReadGPIODirection(line int) Mode {
	var mode Mode
	path := h.gpioPath(line, "direction")
	if !h.exists(path) {
		return mode
	}
	mode.State = Active
	data, err := h.read(path)
	if err != nil {
		mode.Err = err.Error()
		return mode
	}
	mode.Direction = strings.TrimSpace(data)
	return mode
}

// ReadPWMFreqAndValue reads back the period and duty of a provisioned PWM
// channel. Any failure yields an empty mode.
func (h *HAL) ReadPWMFreqAndValue(p pin.Descriptor) Mode {
	var mode Mode
	if p.PWM == nil {
		return mode
	}
	e, ok := h.cache.PWM(p.PWM.Name)
	if !ok {
		return mode
	}
	period, err := h.readFloat(filepath.Join(e.Dir, "period"))
	if err != nil || period <= 0 {
		return mode
	}
	duty, err := h.readFloat(filepath.Join(e.Dir, "duty"))
	if err != nil {
		return mode
	}
	mode.State = Active
	mode.PWM = &PWMState{Freq: 1e9 / period, Value: duty / period}
	return mode
}

func (h *HAL) readFloat(path string) (float64, error) {
	data, err := h.read(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(data), 64)
}

// Inspect merges mux, GPIO direction and PWM state of p.
func (h *HAL) Inspect(p pin.Descriptor) Mode {
	mode := h.ReadPinMux(p)
	if p.HasGPIO() {
		d := h.ReadGPIODirection(p.Line())
		if d.Active() {
			mode.State = Active
			mode.Direction = d.Direction
		}
		if mode.Err == "" {
			mode.Err = d.Err
		}
	}
	if pw := h.ReadPWMFreqAndValue(p); pw.PWM != nil {
		mode.State = Active
		mode.PWM = pw.PWM
	}
	return mode
}
