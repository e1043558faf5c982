package capemgr

import (
	"testing"

	"github.com/cjeanneret/bonehal/internal/hw/pin"
	"github.com/cjeanneret/bonehal/internal/hw/sysfstest"
	"github.com/stretchr/testify/mock"
)

// mockOverlays is a testify mock of the overlay/discovery service.
type mockOverlays struct{ mock.Mock }

func (m *mockOverlays) LoadOverlay(name string) error {
	return m.Called(name).Error(0)
}

func (m *mockOverlays) CreateFragment(p pin.Descriptor, data uint32, template string) error {
	return m.Called(p.Key, data, template).Error(0)
}

func (m *mockOverlays) FindFile(root, prefix string, depth int) (string, error) {
	ret := m.Called(root, prefix, depth)
	return ret.String(0), ret.Error(1)
}

func (m *mockOverlays) OCPRoot() (string, bool) {
	ret := m.Called()
	return ret.String(0), ret.Bool(1)
}

func (m *mockOverlays) CapeManagerRoot() (string, bool) {
	ret := m.Called()
	return ret.String(0), ret.Bool(1)
}

func (m *mockOverlays) AnalogHelper() (string, error) {
	ret := m.Called()
	return ret.String(0), ret.Error(1)
}

const (
	ocpDir     = "/sys/devices/ocp.3"
	pwmTestDir = "/sys/devices/ocp.3/bs_pwm_test_P9_14.16"
)

func newTestHAL(t *testing.T, fs *sysfstest.Fs, ov Overlays) *HAL {
	t.Helper()
	if ov == nil {
		ov = &mockOverlays{}
	}
	return New(fs, ov, DefaultConfig())
}

func bbbPin(t *testing.T, key string) pin.Descriptor {
	t.Helper()
	d, err := pin.BeagleBoneBlack().Lookup(key)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

// pwmTree lays out the nodes created by the P9_14 pwm_test overlay.
func pwmTree() *sysfstest.Fs {
	return sysfstest.New().
		File(pwmTestDir+"/period", "500000\n").
		File(pwmTestDir+"/duty", "0\n").
		File(pwmTestDir+"/polarity", "1\n")
}

// gpioTree lays out an exported GPIO line.
func gpioTree(fs *sysfstest.Fs, line, value string) *sysfstest.Fs {
	return fs.
		File("/sys/class/gpio/export", "").
		File("/sys/class/gpio/gpio"+line+"/direction", "in\n").
		File("/sys/class/gpio/gpio"+line+"/value", value).
		File("/sys/class/gpio/gpio"+line+"/edge", "none\n")
}
