// Package overlay loads device-tree overlays through the BeagleBone cape
// manager and locates the sysfs nodes they create.
package overlay

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cjeanneret/bonehal/internal/debug"
	"github.com/cjeanneret/bonehal/internal/hw/pin"
	"github.com/spf13/afero"
)

// ErrNotFound is returned when an expected sysfs node or firmware file does
// not exist.
var ErrNotFound = errors.New("not found")

// Paths locates the kernel trees the manager works on.
type Paths struct {
	DevicesRoot string // usually /sys/devices
	FirmwareDir string // usually /lib/firmware
}

// Manager implements overlay loading and sysfs discovery on top of an
// afero filesystem, so it runs unchanged against a MemMapFs in tests.
type Manager struct {
	fs    afero.Fs
	paths Paths

	// Attempts is how many times FindFile searches before giving up;
	// overlay nodes appear asynchronously after a slots write.
	Attempts   int
	RetryDelay time.Duration

	mu sync.Mutex // serializes slots read-modify-write
}

// NewManager creates a manager. Attempts defaults to 1.
func NewManager(fs afero.Fs, paths Paths) *Manager {
	return &Manager{fs: fs, paths: paths, Attempts: 1}
}

// FindFile searches root for an entry whose name starts with prefix,
// descending at most depth directory levels. It returns the full path of
// the first match in lexical order.
func (m *Manager) FindFile(root, prefix string, depth int) (string, error) {
	attempts := m.Attempts
	if attempts < 1 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(m.RetryDelay)
		}
		if p, ok := m.search(root, prefix, depth); ok {
			debug.Trace("found %s at %s", prefix, p)
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %s* under %s", ErrNotFound, prefix, root)
}

func (m *Manager) search(dir, prefix string, depth int) (string, bool) {
	if depth < 1 {
		return "", false
	}
	entries, err := afero.ReadDir(m.fs, dir)
	if err != nil {
		return "", false
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) {
			return filepath.Join(dir, e.Name()), true
		}
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if p, ok := m.search(filepath.Join(dir, e.Name()), prefix, depth-1); ok {
			return p, true
		}
	}
	return "", false
}

// OCPRoot returns the on-chip-peripheral bus directory.
func (m *Manager) OCPRoot() (string, bool) {
	return m.rootDir("ocp.")
}

// CapeManagerRoot returns the cape manager directory.
func (m *Manager) CapeManagerRoot() (string, bool) {
	return m.rootDir("bone_capemgr.")
}

func (m *Manager) rootDir(prefix string) (string, bool) {
	for _, dir := range []string{m.paths.DevicesRoot, filepath.Join(m.paths.DevicesRoot, "platform")} {
		if p, ok := m.search(dir, prefix, 1); ok {
			return p, true
		}
	}
	return "", false
}

// AnalogHelper returns the directory of the iio helper exposing AIN files.
func (m *Manager) AnalogHelper() (string, error) {
	ocp, ok := m.OCPRoot()
	if !ok {
		return "", fmt.Errorf("ocp root: %w", ErrNotFound)
	}
	return m.FindFile(ocp, "helper.", 1)
}

// LoadOverlay asks the cape manager to apply the named overlay. Loading an
// overlay that is already listed in slots is a no-op.
func (m *Manager) LoadOverlay(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(name)
}

func (m *Manager) load(name string) error {
	slots, err := m.slotsFile()
	if err != nil {
		return err
	}
	current, err := m.readSlots(slots)
	if err != nil {
		return err
	}
	if _, ok := findSlot(current, name); ok {
		debug.Verbose("overlay %s already loaded", name)
		return nil
	}

	debug.Live("loading overlay %s", name)
	if err := afero.WriteFile(m.fs, slots, []byte(name), 0o644); err != nil {
		return fmt.Errorf("load overlay %s: %w", name, err)
	}

	after, err := m.readSlots(slots)
	if err != nil {
		return err
	}
	if _, ok := findSlot(after, name); !ok {
		return fmt.Errorf("overlay %s not listed in %s after load", name, slots)
	}
	return nil
}

// FragmentName is the overlay name for a pin in a given template and pad
// configuration, e.g. "bspwm_P9_14_6".
func FragmentName(p pin.Descriptor, data uint32, template string) string {
	return fmt.Sprintf("%s_%s_%x", template, p.Key, data)
}

// CreateFragment applies the precompiled per-pin overlay for template.
// A previously loaded fragment for the same pin with another name is
// unloaded first.
func (m *Manager) CreateFragment(p pin.Descriptor, data uint32, template string) error {
	name := FragmentName(p, data, template)
	firmware := filepath.Join(m.paths.FirmwareDir, name+"-00A0.dtbo")
	if _, err := m.fs.Stat(firmware); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("overlay firmware %s: %w", firmware, ErrNotFound)
		}
		return fmt.Errorf("stat %s: %w", firmware, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	slots, err := m.slotsFile()
	if err != nil {
		return err
	}
	current, err := m.readSlots(slots)
	if err != nil {
		return err
	}
	for _, s := range current {
		if s.name != name && strings.Contains(s.name, "_"+p.Key+"_") {
			debug.Live("unloading stale overlay %s (slot %s)", s.name, s.id)
			if err := afero.WriteFile(m.fs, slots, []byte("-"+s.id), 0o644); err != nil {
				return fmt.Errorf("unload overlay %s: %w", s.name, err)
			}
		}
	}
	return m.load(name)
}

func (m *Manager) slotsFile() (string, error) {
	root, ok := m.CapeManagerRoot()
	if !ok {
		return "", fmt.Errorf("cape manager: %w", ErrNotFound)
	}
	return filepath.Join(root, "slots"), nil
}

type slot struct {
	id   string
	name string
}

func (m *Manager) readSlots(path string) ([]slot, error) {
	data, err := afero.ReadFile(m.fs, path)
	if err != nil {
		return nil, fmt.Errorf("read slots: %w", err)
	}
	return parseSlots(string(data)), nil
}

// parseSlots reads lines like
//
//	7: ff:P-O-L Override Board Name,00A0,Override Manuf,bspwm_P9_14_6
//
// A bare overlay name (no slot prefix) is accepted with an empty id.
func parseSlots(data string) []slot {
	var out []slot
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var s slot
		if i := strings.Index(line, ":"); i > 0 {
			s.id = strings.TrimSpace(line[:i])
		}
		fields := strings.Split(line, ",")
		s.name = strings.TrimSpace(fields[len(fields)-1])
		if s.id != "" && len(fields) == 1 {
			// slot without an overlay name, e.g. an empty cape slot
			s.name = ""
		}
		out = append(out, s)
	}
	return out
}

func findSlot(slots []slot, name string) (slot, bool) {
	for _, s := range slots {
		if s.name == name {
			return s, true
		}
	}
	return slot{}, false
}
