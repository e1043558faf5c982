// Package pinctrl decodes the pinctrl-single debugfs register dump of the
// AM335x control module.
//
// The dump has one line per pad:
//
//	pin 18 (44e10848) 00000027 pinctrl-single
//
// where the parenthesized value is the pad's register address and the next
// field its current configuration word.
package pinctrl

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"
)

// AM335xBase is the address of the AM335x control module pad registers.
const AM335xBase uint32 = 0x44e10800

// Pad configuration register bits.
const (
	muxMask     = 0x07
	pullDisable = 0x08
	pullUp      = 0x10
	rxActive    = 0x20
	slewSlow    = 0x40
)

// Pull is the pad's internal resistor setting.
type Pull string

const (
	PullDown     Pull = "pulldown"
	PullUp       Pull = "pullup"
	PullDisabled Pull = "disabled"
)

// Pad is a decoded pad configuration register.
type Pad struct {
	Pin      int    `json:"pin"`
	Address  uint32 `json:"address"`
	Raw      uint32 `json:"raw"`
	Mux      int    `json:"mux"`
	Pull     Pull   `json:"pull"`
	Receiver bool   `json:"rx"`
	Slow     bool   `json:"slow_slew"`
}

var pinLine = regexp.MustCompile(`^pin\s+(\d+)\s+\(([0-9a-fA-F]+)[^)]*\)\s+([0-9a-fA-F]+)`)

// Find scans a register dump for the pad at base+offset.
// It reports false when no line carries that address.
func Find(dump string, offset, base uint32) (Pad, bool) {
	want := base + offset
	sc := bufio.NewScanner(strings.NewReader(dump))
	for sc.Scan() {
		m := pinLine.FindStringSubmatch(strings.TrimSpace(sc.Text()))
		if m == nil {
			continue
		}
		addr, err := strconv.ParseUint(m[2], 16, 32)
		if err != nil || uint32(addr) != want {
			continue
		}
		raw, err := strconv.ParseUint(m[3], 16, 32)
		if err != nil {
			return Pad{}, false
		}
		n, _ := strconv.Atoi(m[1])
		p := Decode(uint32(raw))
		p.Pin = n
		p.Address = want
		return p, true
	}
	return Pad{}, false
}

// Decode splits a raw pad configuration word into its fields.
func Decode(raw uint32) Pad {
	p := Pad{
		Raw:      raw,
		Mux:      int(raw & muxMask),
		Receiver: raw&rxActive != 0,
		Slow:     raw&slewSlow != 0,
	}
	switch {
	case raw&pullDisable != 0:
		p.Pull = PullDisabled
	case raw&pullUp != 0:
		p.Pull = PullUp
	default:
		p.Pull = PullDown
	}
	return p
}

// Encode builds a pad configuration word; the inverse of Decode.
func Encode(mux int, pull Pull, receiver, slow bool) uint32 {
	raw := uint32(mux) & muxMask
	switch pull {
	case PullDisabled:
		raw |= pullDisable
	case PullUp:
		raw |= pullUp
	}
	if receiver {
		raw |= rxActive
	}
	if slow {
		raw |= slewSlow
	}
	return raw
}
