package capemgr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownTemplate is returned by Provision for templates other than
	// TemplateGPIO and TemplatePWM.
	ErrUnknownTemplate = errors.New("unknown pin mode template")
	// ErrNotProvisioned means I/O was attempted on a function whose control
	// files have not been resolved yet.
	ErrNotProvisioned = errors.New("pin not provisioned")
	// ErrAnalogDisabled means AnalogRead ran before EnableAnalog succeeded.
	ErrAnalogDisabled = errors.New("analog inputs not enabled")
	// ErrNoFunction means the pin descriptor lacks the requested function.
	ErrNoFunction = errors.New("pin does not support function")
	// ErrInvalidArgument marks a rejected direction, edge mode, frequency
	// or duty value. Nothing was written.
	ErrInvalidArgument = errors.New("invalid argument")
)

// StageError reports which discovery stage of PWM provisioning failed.
type StageError struct {
	Stage string // "ocp", "pwm_test" or "period"
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("error searching for %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// PolarityError is returned when a PWM channel was provisioned but its
// polarity could not be initialized. The channel path stays cached.
type PolarityError struct {
	Path string
	Err  error
}

func (e *PolarityError) Error() string {
	return fmt.Sprintf("error writing PWM polarity %s: %v", e.Path, e.Err)
}

func (e *PolarityError) Unwrap() error { return e.Err }

// Warning marks the error as non-fatal.
func (e *PolarityError) Warning() bool { return true }

// IsWarning reports whether err only warns about a partially applied
// operation whose result is still usable.
func IsWarning(err error) bool {
	var w interface{ Warning() bool }
	return errors.As(err, &w) && w.Warning()
}

// ExportError is returned when a GPIO line cannot be exported or its
// direction set. Consumers lists the kernel consumers holding the line,
// when they could be determined.
type ExportError struct {
	Line      int
	Err       error
	Consumers []string
}

func (e *ExportError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "unable to export gpio-%d: %v", e.Line, e.Err)
	for _, c := range e.Consumers {
		b.WriteString("\nconsumed by ")
		b.WriteString(c)
	}
	return b.String()
}

func (e *ExportError) Unwrap() error { return e.Err }
