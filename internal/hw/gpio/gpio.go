package gpio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/bonehal/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "high"
	}
	return "low"
}

// PinMode indicates whether a GPIO is input or output.
type PinMode int

const (
	Input PinMode = iota
	Output
)

func (m PinMode) direction() string {
	if m == Output {
		return "out"
	}
	return "in"
}

// Driver defines the abstract interface for controlling GPIO lines by
// number. This allows plugging in the BeagleBone sysfs HAL, a
// memory-mapped implementation or a mock for development on PC.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	Close() error
}

// Backend names accepted by NewDriver.
const (
	BackendSysfs = "sysfs"
	BackendRPIO  = "rpio"
	BackendMock  = "mock"
)

// NewDriver creates a GPIO driver for the chosen backend. The sysfs backend
// drives lines through hal.
func NewDriver(backend string, hal HAL, pins PinSource) (Driver, error) {
	switch backend {
	case BackendMock:
		debug.Info("Using MOCK GPIO driver (development mode)")
		return NewMockDriver(), nil
	case BackendRPIO:
		return NewRPiRealDriver()
	case BackendSysfs, "":
		if hal == nil {
			return nil, fmt.Errorf("sysfs GPIO driver needs a HAL")
		}
		debug.Info("Using sysfs GPIO driver")
		return NewSysfsDriver(hal, pins), nil
	}
	return nil, fmt.Errorf("unknown GPIO backend %q", backend)
}

// MockDriver is a test implementation that logs actions and remembers the
// last level written to each line.
type MockDriver struct {
	mu     sync.Mutex
	modes  map[int]PinMode
	levels map[int]Level
	writes []Level
}

// NewMockDriver returns a MockDriver with no lines set up.
func NewMockDriver() *MockDriver {
	return &MockDriver{modes: map[int]PinMode{}, levels: map[int]Level{}}
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode.direction())
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modes[pin] = mode
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.levels[pin] = level
	m.writes = append(m.writes, level)
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[pin], nil
}

// Writes returns every level written, in order.
func (m *MockDriver) Writes() []Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Level(nil), m.writes...)
}

// Mode returns the mode a line was set up with.
func (m *MockDriver) Mode(pin int) (PinMode, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mode, ok := m.modes[pin]
	return mode, ok
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	return nil
}

// Blink toggles pin every half period, starting high, for count full
// cycles (count <= 0 runs until ctx is done). The line is left low.
func Blink(ctx context.Context, d Driver, pin int, period time.Duration, count int) error {
	if period <= 0 {
		return fmt.Errorf("blink period must be > 0, got %s", period)
	}
	if err := d.SetupPin(pin, Output); err != nil {
		return err
	}
	half := period / 2
	for i := 0; count <= 0 || i < count; i++ {
		for _, level := range []Level{High, Low} {
			if err := d.WritePin(pin, level); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				if level == High {
					_ = d.WritePin(pin, Low)
				}
				return ctx.Err()
			case <-time.After(half):
			}
		}
	}
	return nil
}
