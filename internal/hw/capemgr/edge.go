package capemgr

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cjeanneret/bonehal/internal/debug"
	"github.com/cjeanneret/bonehal/internal/hw/pin"
	"github.com/spf13/afero"
)

// ErrPollUnsupported is returned by EdgeHandle.Wait when the value file is
// not backed by a pollable file descriptor.
var ErrPollUnsupported = errors.New("edge wait not supported on this file")

var edges = map[string]bool{"none": true, "rising": true, "falling": true, "both": true}

// EdgeHandle is an open GPIO value file armed for edge interrupts.
type EdgeHandle struct {
	Path string
	File afero.File
	buf  [1]byte
}

// SetEdge writes the edge trigger mode of p and opens its value file for
// repeated reads. The caller drives the wait loop with Wait or its own
// poll on File, and must Close the handle.
func (h *HAL) SetEdge(p pin.Descriptor, edge string) (*EdgeHandle, error) {
	if !p.HasGPIO() {
		return nil, fmt.Errorf("edge %s: %w", p.Key, ErrNoFunction)
	}
	if !edges[edge] {
		return nil, fmt.Errorf("edge %s: %w: mode %q", p.Key, ErrInvalidArgument, edge)
	}
	n := p.Line()
	if err := h.write(h.gpioPath(n, "edge"), edge); err != nil {
		return nil, fmt.Errorf("set edge of gpio %d: %w", n, err)
	}
	path := h.gpioPath(n, "value")
	f, err := h.fs.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	debug.GPIO("edge", n, edge)
	return &EdgeHandle{Path: path, File: f}, nil
}

// Read rereads the current value from the start of the file.
func (e *EdgeHandle) Read() (int, error) {
	if _, err := e.File.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	n, err := e.File.Read(e.buf[:])
	if n == 0 {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return 0, err
	}
	v, perr := parseLeadingInt(string(e.buf[:n]), 2)
	return int(v), perr
}

// Close closes the value file.
func (e *EdgeHandle) Close() error {
	return e.File.Close()
}
