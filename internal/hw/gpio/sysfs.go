package gpio

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/bonehal/internal/debug"
	"github.com/cjeanneret/bonehal/internal/hw/pin"
)

// HAL is the part of the BeagleBone pin HAL the sysfs driver needs.
// *capemgr.HAL implements it.
type HAL interface {
	Export(p pin.Descriptor, direction string) error
	DigitalWrite(p pin.Descriptor, value int) error
	DigitalRead(p pin.Descriptor) (int, error)
}

// PinSource maps GPIO line numbers to header pins. pin.Table implements it.
type PinSource interface {
	ByGPIO(line int) (pin.Descriptor, bool)
}

// SysfsDriver drives GPIO lines through the kernel's sysfs interface.
type SysfsDriver struct {
	hal  HAL
	pins PinSource

	mu    sync.Mutex
	setup map[int]pin.Descriptor
}

// NewSysfsDriver creates a sysfs driver. pins may be nil, in which case
// lines are addressed by number only.
func NewSysfsDriver(hal HAL, pins PinSource) *SysfsDriver {
	return &SysfsDriver{hal: hal, pins: pins, setup: map[int]pin.Descriptor{}}
}

func (s *SysfsDriver) descriptor(line int) pin.Descriptor {
	if s.pins != nil {
		if d, ok := s.pins.ByGPIO(line); ok {
			return d
		}
	}
	return pin.Descriptor{Key: fmt.Sprintf("GPIO%d", line), GPIO: pin.Int(line)}
}

func (s *SysfsDriver) SetupPin(line int, mode PinMode) error {
	debug.GPIO("SetupPin", line, mode.direction())
	d := s.descriptor(line)
	if err := s.hal.Export(d, mode.direction()); err != nil {
		return err
	}
	s.mu.Lock()
	s.setup[line] = d
	s.mu.Unlock()
	return nil
}

func (s *SysfsDriver) lookup(line int, mode PinMode) (pin.Descriptor, error) {
	s.mu.Lock()
	d, ok := s.setup[line]
	s.mu.Unlock()
	if ok {
		return d, nil
	}
	// Pin not setup yet
	if err := s.SetupPin(line, mode); err != nil {
		return pin.Descriptor{}, err
	}
	return s.descriptor(line), nil
}

func (s *SysfsDriver) WritePin(line int, level Level) error {
	d, err := s.lookup(line, Output)
	if err != nil {
		return err
	}
	v := 0
	if level == High {
		v = 1
	}
	return s.hal.DigitalWrite(d, v)
}

func (s *SysfsDriver) ReadPin(line int) (Level, error) {
	d, err := s.lookup(line, Input)
	if err != nil {
		return Low, err
	}
	v, err := s.hal.DigitalRead(d)
	if err != nil {
		return Low, err
	}
	return v != 0, nil
}

// Close forgets the set-up lines. They stay exported with their last
// direction.
func (s *SysfsDriver) Close() error {
	debug.Trace("GPIO Close (sysfs)")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setup = map[int]pin.Descriptor{}
	return nil
}
