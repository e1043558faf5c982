package capemgr

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"

	"github.com/cjeanneret/bonehal/internal/debug"
	"github.com/cjeanneret/bonehal/internal/hw/pin"
)

// valueFile returns the cached output file of p, resolving and caching the
// GPIO value file (or the LED brightness file for LED pins) on first use.
// An LED is handed over to GPIO control before its path is cached.
func (h *HAL) valueFile(p pin.Descriptor) (string, error) {
	if path, ok := h.cache.GPIOFile(p.Key); ok {
		return path, nil
	}
	var path string
	switch {
	case p.LED != "":
		if err := h.setLEDTrigger(p); err != nil {
			return "", fmt.Errorf("digital write %s: %w", p.Key, err)
		}
		path = h.ledPath(p.LED, "brightness")
	case p.HasGPIO():
		path = h.gpioPath(p.Line(), "value")
	default:
		return "", fmt.Errorf("digital write %s: %w", p.Key, ErrNoFunction)
	}
	if !h.exists(path) {
		debug.Error(fmt.Errorf("unable to find gpio: %s", path))
	}
	h.cache.SetGPIOFile(p.Key, path)
	return path, nil
}

// DigitalWrite writes value to the GPIO (or LED) of p.
func (h *HAL) DigitalWrite(p pin.Descriptor, value int) error {
	unlock := h.locks.lock(p.Key)
	defer unlock()

	path, err := h.valueFile(p)
	if err != nil {
		return err
	}
	debug.GPIO("write", p.Line(), value)
	if err := h.write(path, strconv.Itoa(value)); err != nil {
		werr := fmt.Errorf("writing to GPIO failed: %w", err)
		debug.Error(werr)
		return werr
	}
	return nil
}

// DigitalWriteAsync runs DigitalWrite in a new goroutine and passes its
// result to done exactly once.
func (h *HAL) DigitalWriteAsync(p pin.Descriptor, value int, done func(error)) {
	go func() {
		err := h.DigitalWrite(p, value)
		if done != nil {
			done(err)
		}
	}()
}

// DigitalRead reads the GPIO value of p. The file content is parsed as
// leading base-2 digits, which reads the kernel's single '0'/'1'.
func (h *HAL) DigitalRead(p pin.Descriptor) (int, error) {
	if !p.HasGPIO() {
		return 0, fmt.Errorf("digital read %s: %w", p.Key, ErrNoFunction)
	}
	data, err := h.read(h.gpioPath(p.Line(), "value"))
	if err != nil {
		return 0, fmt.Errorf("digitalRead error: %w", err)
	}
	v, err := parseLeadingInt(data, 2)
	if err != nil {
		return 0, fmt.Errorf("digitalRead error: %w", err)
	}
	debug.GPIO("read", p.Line(), v)
	return int(v), nil
}

// EnableAnalog loads the iio helper overlay and caches the AIN path prefix.
func (h *HAL) EnableAnalog() error {
	if _, ok := h.overlays.OCPRoot(); !ok {
		err := errors.New("enableAIN: unable to open ocp file")
		debug.Error(err)
		return err
	}
	if err := h.overlays.LoadOverlay(h.cfg.AnalogOverlay); err != nil {
		return fmt.Errorf("load overlay %s: %w", h.cfg.AnalogOverlay, err)
	}
	helper, err := h.overlays.AnalogHelper()
	if err == nil && helper == "" {
		err = errors.New("empty helper path")
	}
	if err != nil {
		return fmt.Errorf("error enabling analog inputs: %w", err)
	}
	prefix := filepath.Join(helper, "AIN")
	h.cache.SetAnalogPrefix(prefix)
	debug.Verbose("setting ainPrefix to %s", prefix)
	return nil
}

// AnalogRead returns the AIN channel of p normalized by the analog scale
// (1800 raw counts = 1.0).
func (h *HAL) AnalogRead(p pin.Descriptor) (float64, error) {
	if p.AIN == nil {
		return 0, fmt.Errorf("analog read %s: %w", p.Key, ErrNoFunction)
	}
	prefix, ok := h.cache.AnalogPrefix()
	if !ok {
		return 0, fmt.Errorf("analog read %s: %w", p.Key, ErrAnalogDisabled)
	}
	data, err := h.read(prefix + strconv.Itoa(*p.AIN))
	if err != nil {
		return 0, fmt.Errorf("analogRead error: %w", err)
	}
	raw, err := parseLeadingInt(data, 10)
	if err != nil {
		return 0, fmt.Errorf("analogRead error: %w", err)
	}
	return float64(raw) / h.cfg.AnalogScale, nil
}

// PWMWrite sets the frequency (Hz) and duty fraction of the PWM channel of p.
//
// duty is zeroed first so that the kernel never sees duty > period, period
// is rewritten only when freq differs from the last written frequency, and
// the new duty goes last.
func (h *HAL) PWMWrite(p pin.Descriptor, freq, value float64) error {
	if p.PWM == nil {
		return fmt.Errorf("pwm write %s: %w", p.Key, ErrNoFunction)
	}
	period, err := PeriodNs(freq)
	if err != nil {
		return fmt.Errorf("pwm write %s: %w", p.Key, err)
	}
	if !(value >= 0 && value <= 1) {
		return fmt.Errorf("pwm write %s: %w: duty value %g out of [0,1]", p.Key, ErrInvalidArgument, value)
	}

	channel := p.PWM.Name
	unlock := h.locks.lock("pwm:" + channel)
	defer unlock()

	e, ok := h.cache.PWM(channel)
	if !ok {
		return fmt.Errorf("pwm write %s: %w", p.Key, ErrNotProvisioned)
	}

	duty := int64(math.Round(float64(period) * value))

	fail := func(err error) error {
		werr := fmt.Errorf("error updating PWM freq and value: %s: %w", e.Dir, err)
		debug.Error(werr)
		return werr
	}
	dutyFile := filepath.Join(e.Dir, "duty")
	if err := h.write(dutyFile, "0"); err != nil {
		return fail(err)
	}
	if e.Freq != freq {
		debug.Verbose("updating PWM period: %d", period)
		if err := h.write(filepath.Join(e.Dir, "period"), strconv.FormatInt(period, 10)); err != nil {
			return fail(err)
		}
		h.cache.setPWMFreq(channel, freq)
	}
	if err := h.write(dutyFile, strconv.FormatInt(duty, 10)); err != nil {
		return fail(err)
	}
	debug.PWM(channel, period, duty)
	return nil
}

// SetLEDToGPIO hands the LED of p over to GPIO control by setting its
// trigger to "gpio".
func (h *HAL) SetLEDToGPIO(p pin.Descriptor) error {
	unlock := h.locks.lock(p.Key)
	defer unlock()
	return h.setLEDTrigger(p)
}

func (h *HAL) setLEDTrigger(p pin.Descriptor) error {
	if p.LED == "" {
		return fmt.Errorf("led %s: %w", p.Key, ErrNoFunction)
	}
	path := h.ledPath(p.LED, "trigger")
	if !h.exists(path) {
		err := fmt.Errorf("unable to find LED %s", p.LED)
		debug.Error(err)
		return err
	}
	return h.write(path, "gpio")
}

// PeriodNs converts a PWM frequency in Hz to the kernel period in
// nanoseconds. The rounded period must lie in [1, math.MaxInt64].
func PeriodNs(freq float64) (int64, error) {
	if !(freq > 0) || math.IsInf(freq, 0) {
		return 0, fmt.Errorf("%w: frequency %g", ErrInvalidArgument, freq)
	}
	period := math.Round(1e9 / freq)
	// float64(math.MaxInt64) rounds up to 2^63, which does not fit.
	if period < 1 || period >= float64(math.MaxInt64) {
		return 0, fmt.Errorf("%w: frequency %g gives a period of %g ns", ErrInvalidArgument, freq, period)
	}
	return int64(period), nil
}
