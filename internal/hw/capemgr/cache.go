package capemgr

import (
	"sort"
	"sync"
)

// PWMEntry is the cached state of a provisioned PWM channel.
type PWMEntry struct {
	Dir  string  `json:"dir"`
	Freq float64 `json:"freq"` // last frequency written to period; 0 until the first write
}

// PathCache maps pins to the control files resolved for them.
// GPIO and LED value files are keyed by pin key, PWM directories by PWM
// channel name. Entries are replaced whole, never merged.
type PathCache struct {
	mu     sync.RWMutex
	gpio   map[string]string
	pwm    map[string]PWMEntry
	analog string
}

// NewPathCache returns an empty cache.
func NewPathCache() *PathCache {
	return &PathCache{
		gpio: make(map[string]string),
		pwm:  make(map[string]PWMEntry),
	}
}

// GPIOFile returns the cached value (or LED brightness) file for a pin key.
func (c *PathCache) GPIOFile(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.gpio[key]
	return p, ok
}

// SetGPIOFile caches the value file for a pin key.
func (c *PathCache) SetGPIOFile(key, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gpio[key] = path
}

// PWM returns the cached entry of a PWM channel.
func (c *PathCache) PWM(channel string) (PWMEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.pwm[channel]
	return e, ok
}

// SetPWM replaces the entry of a PWM channel.
func (c *PathCache) SetPWM(channel string, e PWMEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pwm[channel] = e
}

// setPWMFreq records the frequency last written to a channel's period.
// It does nothing if the channel was never provisioned.
func (c *PathCache) setPWMFreq(channel string, freq float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.pwm[channel]; ok {
		e.Freq = freq
		c.pwm[channel] = e
	}
}

// AnalogPrefix returns the AIN path prefix, e.g. ".../helper.15/AIN".
func (c *PathCache) AnalogPrefix() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.analog, c.analog != ""
}

// SetAnalogPrefix caches the AIN path prefix.
func (c *PathCache) SetAnalogPrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.analog = prefix
}

// Snapshot is a copy of the cache contents for display.
type Snapshot struct {
	GPIO   map[string]string   `json:"gpio"`
	PWM    map[string]PWMEntry `json:"pwm"`
	Analog string              `json:"analog,omitempty"`
}

// Snapshot copies the cache.
func (c *PathCache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Snapshot{
		GPIO:   make(map[string]string, len(c.gpio)),
		PWM:    make(map[string]PWMEntry, len(c.pwm)),
		Analog: c.analog,
	}
	for k, v := range c.gpio {
		s.GPIO[k] = v
	}
	for k, v := range c.pwm {
		s.PWM[k] = v
	}
	return s
}

// Keys returns the sorted pin keys with a cached GPIO file.
func (s Snapshot) Keys() []string {
	keys := make([]string, 0, len(s.GPIO))
	for k := range s.GPIO {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// keyedMutex serializes pipelines that touch the same pin or channel.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
