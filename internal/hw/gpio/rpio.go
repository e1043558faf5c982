package gpio

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/bonehal/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
)

// RPiDriver drives GPIO lines through go-rpio's memory-mapped register
// access, for boards where the sysfs interface is unavailable.
type RPiDriver struct {
	mu    sync.Mutex
	lines map[int]rpioLine
}

type rpioLine struct {
	pin  rpio.Pin
	mode PinMode
}

// NewRPiRealDriver maps the GPIO registers.
// Requires access to /dev/gpiomem or running as root.
func NewRPiRealDriver() (*RPiDriver, error) {
	debug.Info("Initializing memory-mapped GPIO driver (go-rpio)")

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w (is /dev/gpiomem available?)", err)
	}
	debug.Verbose("GPIO registers mapped")

	return &RPiDriver{lines: make(map[int]rpioLine)}, nil
}

func (r *RPiDriver) SetupPin(line int, mode PinMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setup(line, mode)
}

// setup must be called with r.mu held.
func (r *RPiDriver) setup(line int, mode PinMode) error {
	debug.GPIO("SetupPin", line, mode.direction())
	p := rpio.Pin(line)
	switch mode {
	case Input:
		p.Input()
	case Output:
		p.Output()
	default:
		return fmt.Errorf("unknown pin mode: %d", mode)
	}
	r.lines[line] = rpioLine{pin: p, mode: mode}
	return nil
}

// WritePin switches a line set up as input to output before writing.
func (r *RPiDriver) WritePin(line int, level Level) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.lines[line]
	if !ok || l.mode != Output {
		if err := r.setup(line, Output); err != nil {
			return err
		}
		l = r.lines[line]
	}
	debug.GPIO("WritePin", line, level)
	if level == High {
		l.pin.High()
	} else {
		l.pin.Low()
	}
	return nil
}

// ReadPin reads any set-up line; unknown lines are set up as inputs.
func (r *RPiDriver) ReadPin(line int) (Level, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.lines[line]
	if !ok {
		if err := r.setup(line, Input); err != nil {
			return Low, err
		}
		l = r.lines[line]
	}
	v := l.pin.Read() == rpio.High
	debug.GPIO("ReadPin", line, Level(v))
	return Level(v), nil
}

// Close returns every line to input and unmaps the registers.
func (r *RPiDriver) Close() error {
	debug.Trace("GPIO Close (go-rpio)")
	r.mu.Lock()
	defer r.mu.Unlock()
	for line, l := range r.lines {
		debug.Verbose("Resetting line %d to input", line)
		l.pin.Input()
	}
	r.lines = map[int]rpioLine{}
	return rpio.Close()
}
