package capemgr

import (
	"fmt"
	"path/filepath"

	"github.com/cjeanneret/bonehal/internal/debug"
	"github.com/cjeanneret/bonehal/internal/hw/pin"
)

// Template selects the function a pin is provisioned for.
type Template string

const (
	// TemplateGPIO muxes the pin as a plain GPIO.
	TemplateGPIO Template = "bspm"
	// TemplatePWM muxes the pin to its PWM channel and binds the pwm_test driver.
	TemplatePWM Template = "bspwm"
)

// ParseTemplate accepts "gpio", "pwm" or the raw template names.
func ParseTemplate(s string) (Template, error) {
	switch s {
	case "gpio", string(TemplateGPIO):
		return TemplateGPIO, nil
	case "pwm", string(TemplatePWM):
		return TemplatePWM, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTemplate, s)
}

// Provision brings the requested function of p into a usable state.
//
// For TemplateGPIO the pin's value file is resolved from its line number.
// For TemplatePWM the generic PWM overlay is loaded first. Both then apply
// the per-pin overlay fragment built from data (the pad configuration).
// PWM provisioning finally discovers ocp.*/bs_pwm_test_<key>.*/period,
// caches the channel directory and writes 0 to its polarity.
//
// The first failing stage aborts the pipeline and leaves the cache
// untouched. A polarity failure is returned as a *PolarityError after the
// path has been cached; IsWarning reports true for it.
func (h *HAL) Provision(p pin.Descriptor, data uint32, tmpl Template) error {
	unlock := h.locks.lock(p.Key)
	defer unlock()

	debug.Stage(p.Key, "start", tmpl)

	var valueFile string
	switch tmpl {
	case TemplateGPIO:
		if !p.HasGPIO() {
			return fmt.Errorf("provision %s as gpio: %w", p.Key, ErrNoFunction)
		}
		valueFile = h.gpioPath(p.Line(), "value")
	case TemplatePWM:
		if p.PWM == nil {
			return fmt.Errorf("provision %s as pwm: %w", p.Key, ErrNoFunction)
		}
		if err := h.overlays.LoadOverlay(h.cfg.PWMOverlay); err != nil {
			debug.Error(err)
			return fmt.Errorf("load overlay %s: %w", h.cfg.PWMOverlay, err)
		}
		debug.Stage(p.Key, "overlay", h.cfg.PWMOverlay)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTemplate, tmpl)
	}

	if err := h.overlays.CreateFragment(p, data, string(tmpl)); err != nil {
		debug.Error(err)
		return fmt.Errorf("create overlay fragment for %s: %w", p.Key, err)
	}
	debug.Stage(p.Key, "fragment", fmt.Sprintf("%s data=%#x", tmpl, data))

	if tmpl == TemplateGPIO {
		h.cache.SetGPIOFile(p.Key, valueFile)
		debug.Stage(p.Key, "done", valueFile)
		return nil
	}
	return h.discoverPWM(p)
}

func (h *HAL) discoverPWM(p pin.Descriptor) error {
	ocp, err := h.overlays.FindFile(h.cfg.DevicesRoot, "ocp.", 1)
	if err != nil {
		return h.stageFailed("ocp", err)
	}
	testDir, err := h.overlays.FindFile(ocp, "bs_pwm_test_"+p.Key+".", 1)
	if err != nil {
		return h.stageFailed("pwm_test", err)
	}
	if _, err := h.overlays.FindFile(testDir, "period", 1); err != nil {
		return h.stageFailed("period", err)
	}

	// Same lock as PWMWrite, so a write never spans the old and new entry.
	unlock := h.locks.lock("pwm:" + p.PWM.Name)
	defer unlock()

	h.cache.SetPWM(p.PWM.Name, PWMEntry{Dir: testDir})
	debug.Stage(p.Key, "done", testDir)

	polarity := filepath.Join(testDir, "polarity")
	if err := h.write(polarity, "0"); err != nil {
		perr := &PolarityError{Path: polarity, Err: err}
		debug.Error(perr)
		return perr
	}
	return nil
}

func (h *HAL) stageFailed(stage string, err error) error {
	serr := &StageError{Stage: stage, Err: err}
	debug.Error(serr)
	return serr
}

// ProvisionAsync runs Provision in a new goroutine and passes its result to
// done exactly once.
func (h *HAL) ProvisionAsync(p pin.Descriptor, data uint32, tmpl Template, done func(error)) {
	go func() {
		err := h.Provision(p, data, tmpl)
		if done != nil {
			done(err)
		}
	}()
}
