// Package pin describes the logical pins of a BeagleBone header.
package pin

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// PWM describes the PWM channel a pin can be muxed to.
type PWM struct {
	Name    string `yaml:"name" json:"name"`       // e.g. "EHRPWM1A"
	Module  string `yaml:"module" json:"module"`   // e.g. "ehrpwm1"
	Index   int    `yaml:"index" json:"index"`     // channel within the module
	MuxMode int    `yaml:"muxmode" json:"muxmode"` // pad mux mode selecting the PWM function
}

// Descriptor identifies a header pin and the functions it can serve.
// Optional functions are nil (GPIO, AIN, PWM) or empty (LED).
type Descriptor struct {
	Key          string `yaml:"key" json:"key"`
	Name         string `yaml:"name,omitempty" json:"name,omitempty"`
	GPIO         *int   `yaml:"gpio,omitempty" json:"gpio,omitempty"`
	PWM          *PWM   `yaml:"pwm,omitempty" json:"pwm,omitempty"`
	AIN          *int   `yaml:"ain,omitempty" json:"ain,omitempty"`
	LED          string `yaml:"led,omitempty" json:"led,omitempty"`
	MuxRegOffset string `yaml:"mux_offset,omitempty" json:"mux_offset,omitempty"` // hex, e.g. "0x048"
}

// Int returns a pointer to v, for filling optional descriptor fields.
func Int(v int) *int { return &v }

// HasGPIO reports whether the pin can be used as a GPIO line.
func (d Descriptor) HasGPIO() bool { return d.GPIO != nil }

// Line returns the GPIO line number or -1.
func (d Descriptor) Line() int {
	if d.GPIO == nil {
		return -1
	}
	return *d.GPIO
}

// MuxOffset parses MuxRegOffset as a hexadecimal register offset.
func (d Descriptor) MuxOffset() (uint32, error) {
	s := strings.TrimPrefix(strings.ToLower(d.MuxRegOffset), "0x")
	if s == "" {
		return 0, fmt.Errorf("pin %s has no mux register offset", d.Key)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("pin %s: bad mux register offset %q: %w", d.Key, d.MuxRegOffset, err)
	}
	return uint32(v), nil
}

// Table indexes descriptors by key.
type Table map[string]Descriptor

// Lookup finds a pin by key, case-insensitively. "P9.14" and "p9_14" both
// resolve to "P9_14".
func (t Table) Lookup(key string) (Descriptor, error) {
	norm := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	if d, ok := t[norm]; ok {
		return d, nil
	}
	if d, ok := t[key]; ok {
		return d, nil
	}
	return Descriptor{}, fmt.Errorf("unknown pin %q", key)
}

// ByGPIO finds the pin wired to the given GPIO line.
func (t Table) ByGPIO(line int) (Descriptor, bool) {
	for _, d := range t {
		if d.GPIO != nil && *d.GPIO == line {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Keys returns the sorted pin keys.
func (t Table) Keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Merge returns a copy of t with extra added, replacing pins with the same key.
func (t Table) Merge(extra []Descriptor) Table {
	out := make(Table, len(t)+len(extra))
	for k, d := range t {
		out[k] = d
	}
	for _, d := range extra {
		out[d.Key] = d
	}
	return out
}
