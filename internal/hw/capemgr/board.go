package capemgr

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Platform identifies the board from its baseboard EEPROM.
type Platform struct {
	Name         string `json:"name"`
	Version      string `json:"version,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
}

var boardNames = map[string]string{
	"A335BONE": "BeagleBone",
	"A335BNLT": "BeagleBone Black",
}

// ReadPlatform reads the board name, revision and serial number exposed by
// the cape manager. Revision and serial are dropped when they contain
// non-printable characters (blank EEPROM).
func (h *HAL) ReadPlatform() (Platform, error) {
	root, ok := h.overlays.CapeManagerRoot()
	if !ok {
		return Platform{}, errors.New("read platform: cape manager not found")
	}
	field := func(name string) (string, error) {
		data, err := h.read(filepath.Join(root, "baseboard", name))
		if err != nil {
			return "", fmt.Errorf("read platform %s: %w", name, err)
		}
		return strings.TrimSpace(data), nil
	}

	var p Platform
	var err error
	if p.Name, err = field("board-name"); err != nil {
		return Platform{}, err
	}
	if friendly, ok := boardNames[p.Name]; ok {
		p.Name = friendly
	}
	if p.Version, err = field("revision"); err != nil {
		return Platform{}, err
	}
	if !printable(p.Version) {
		p.Version = ""
	}
	if p.SerialNumber, err = field("serial-number"); err != nil {
		return Platform{}, err
	}
	if !printable(p.SerialNumber) {
		p.SerialNumber = ""
	}
	return p, nil
}

func printable(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return false
		}
	}
	return true
}
