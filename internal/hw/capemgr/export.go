package capemgr

import (
	"bufio"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/cjeanneret/bonehal/internal/debug"
	"github.com/cjeanneret/bonehal/internal/hw/pin"
)

// Directions accepted by the kernel. "high" and "low" set an output with an
// initial level.
var directions = map[string]bool{"in": true, "out": true, "high": true, "low": true}

// Export makes sure the GPIO line of p is exported and sets its direction.
//
// If the pin's cached value file exists the line is considered exported and
// only the direction is written. Otherwise the line number is written to
// the export control first. After a successful export the value file is
// cached so later calls skip the export write. On any write failure the kernel's GPIO consumer
// listing is consulted to name whoever holds the line; that lookup is
// best-effort.
func (h *HAL) Export(p pin.Descriptor, direction string) error {
	if !p.HasGPIO() {
		return fmt.Errorf("export %s: %w", p.Key, ErrNoFunction)
	}
	if !directions[direction] {
		return fmt.Errorf("export %s: %w: direction %q", p.Key, ErrInvalidArgument, direction)
	}

	unlock := h.locks.lock(p.Key)
	defer unlock()

	n := p.Line()
	if path, ok := h.cache.GPIOFile(p.Key); ok && h.exists(path) {
		debug.Verbose("gpio %d already exported", n)
	} else {
		debug.Live("exporting gpio %d", n)
		if err := h.write(filepath.Join(h.cfg.GPIORoot, "export"), strconv.Itoa(n)); err != nil {
			return h.exportFailed(n, err)
		}
	}

	debug.GPIO("direction", n, direction)
	if err := h.write(h.gpioPath(n, "direction"), direction); err != nil {
		return h.exportFailed(n, err)
	}
	// LED pins keep their brightness file as output.
	if p.LED == "" {
		h.cache.SetGPIOFile(p.Key, h.gpioPath(n, "value"))
	}
	return nil
}

// AdoptExported caches the value file of p when its line is already
// exported, e.g. by an earlier process, so that Export only sets the
// direction. It reports whether the line was found exported.
func (h *HAL) AdoptExported(p pin.Descriptor) bool {
	if !p.HasGPIO() || p.LED != "" {
		return false
	}
	unlock := h.locks.lock(p.Key)
	defer unlock()

	if _, ok := h.cache.GPIOFile(p.Key); ok {
		return true
	}
	path := h.gpioPath(p.Line(), "value")
	if !h.exists(path) {
		return false
	}
	debug.Verbose("adopting exported gpio %d", p.Line())
	h.cache.SetGPIOFile(p.Key, path)
	return true
}

// ExportAsync runs Export in a new goroutine and passes its result to done
// exactly once.
func (h *HAL) ExportAsync(p pin.Descriptor, direction string, done func(error)) {
	go func() {
		err := h.Export(p, direction)
		if done != nil {
			done(err)
		}
	}()
}

func (h *HAL) exportFailed(line int, err error) error {
	e := &ExportError{Line: line, Err: err, Consumers: h.gpioConsumers(line)}
	debug.Error(e)
	return e
}

// gpio-60  (lcd_enable          ) out hi
var consumerLine = regexp.MustCompile(`gpio-(\d+)\s+\((\S+)\s*\)`)

// gpioConsumers lists the consumers of line in the debugfs GPIO listing.
// Read errors yield nil.
func (h *HAL) gpioConsumers(line int) []string {
	data, err := h.read(h.cfg.DebugGPIO)
	if err != nil {
		debug.Verbose("gpio consumer lookup: %v", err)
		return nil
	}
	want := strconv.Itoa(line)
	var out []string
	sc := bufio.NewScanner(strings.NewReader(data))
	for sc.Scan() {
		m := consumerLine.FindStringSubmatch(sc.Text())
		if m != nil && m[1] == want {
			out = append(out, m[2])
		}
	}
	return out
}
