package overlay

import (
	"testing"
	"time"

	"github.com/cjeanneret/bonehal/internal/hw/pin"
	"github.com/cjeanneret/bonehal/internal/hw/sysfstest"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const capemgr = "/sys/devices/bone_capemgr.9"

func newTestManager(t *testing.T, slots string) (*Manager, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(capemgr, 0o755))
	require.NoError(t, fs.MkdirAll("/sys/devices/ocp.3/helper.15", 0o755))
	require.NoError(t, fs.MkdirAll("/lib/firmware", 0o755))
	require.NoError(t, afero.WriteFile(fs, capemgr+"/slots", []byte(slots), 0o644))
	return NewManager(fs, Paths{DevicesRoot: "/sys/devices", FirmwareDir: "/lib/firmware"}), fs
}

func TestFindFile_Depth(t *testing.T) {
	m, fs := newTestManager(t, "")
	require.NoError(t, fs.MkdirAll("/sys/devices/ocp.3/bs_pwm_test_P9_14.16", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/sys/devices/ocp.3/bs_pwm_test_P9_14.16/period", []byte("0"), 0o644))

	p, err := m.FindFile("/sys/devices", "ocp.", 1)
	require.NoError(t, err)
	assert.Equal(t, "/sys/devices/ocp.3", p)

	_, err = m.FindFile("/sys/devices", "bs_pwm_test_P9_14.", 1)
	assert.ErrorIs(t, err, ErrNotFound, "depth 1 must not descend")

	p, err = m.FindFile("/sys/devices", "bs_pwm_test_P9_14.", 2)
	require.NoError(t, err)
	assert.Equal(t, "/sys/devices/ocp.3/bs_pwm_test_P9_14.16", p)
}

func TestFindFile_RetriesUntilNodeAppears(t *testing.T) {
	m, fs := newTestManager(t, "")
	m.Attempts = 100
	m.RetryDelay = 5 * time.Millisecond

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = fs.MkdirAll("/sys/devices/ocp.3/bs_pwm_test_P9_14.16", 0o755)
	}()

	p, err := m.FindFile("/sys/devices/ocp.3", "bs_pwm_test_P9_14.", 1)
	require.NoError(t, err)
	assert.Equal(t, "/sys/devices/ocp.3/bs_pwm_test_P9_14.16", p)
}

func TestFindFile_GivesUpAfterAttempts(t *testing.T) {
	m, _ := newTestManager(t, "")
	m.Attempts = 3
	m.RetryDelay = 5 * time.Millisecond

	start := time.Now()
	_, err := m.FindFile("/sys/devices/ocp.3", "bs_pwm_test_P9_14.", 1)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond, "two delays between three attempts")
}

func TestFindFile_MissingRoot(t *testing.T) {
	m, _ := newTestManager(t, "")
	_, err := m.FindFile("/does/not/exist", "x", 3)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRoots(t *testing.T) {
	m, _ := newTestManager(t, "")

	ocp, ok := m.OCPRoot()
	require.True(t, ok)
	assert.Equal(t, "/sys/devices/ocp.3", ocp)

	cm, ok := m.CapeManagerRoot()
	require.True(t, ok)
	assert.Equal(t, capemgr, cm)

	helper, err := m.AnalogHelper()
	require.NoError(t, err)
	assert.Equal(t, "/sys/devices/ocp.3/helper.15", helper)
}

func TestRoots_PlatformLayout(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/sys/devices/platform/ocp.2", 0o755))
	m := NewManager(fs, Paths{DevicesRoot: "/sys/devices"})

	ocp, ok := m.OCPRoot()
	require.True(t, ok)
	assert.Equal(t, "/sys/devices/platform/ocp.2", ocp)

	_, ok = m.CapeManagerRoot()
	assert.False(t, ok)
}

func TestLoadOverlay_WritesSlots(t *testing.T) {
	m, fs := newTestManager(t, " 0: 54:PF---\n")
	require.NoError(t, m.LoadOverlay("am33xx_pwm"))

	data, err := afero.ReadFile(fs, capemgr+"/slots")
	require.NoError(t, err)
	assert.Equal(t, "am33xx_pwm", string(data))
}

func TestLoadOverlay_AlreadyLoaded(t *testing.T) {
	slots := " 7: ff:P-O-L Override Board Name,00A0,Override Manuf,am33xx_pwm\n"
	m, fs := newTestManager(t, slots)
	require.NoError(t, m.LoadOverlay("am33xx_pwm"))

	data, err := afero.ReadFile(fs, capemgr+"/slots")
	require.NoError(t, err)
	assert.Equal(t, slots, string(data), "slots must not be rewritten")
}

func TestLoadOverlay_NoCapeManager(t *testing.T) {
	m := NewManager(afero.NewMemMapFs(), Paths{DevicesRoot: "/sys/devices"})
	err := m.LoadOverlay("am33xx_pwm")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateFragment_MissingFirmware(t *testing.T) {
	m, _ := newTestManager(t, "")
	p := pin.Descriptor{Key: "P9_14"}
	err := m.CreateFragment(p, 6, "bspwm")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateFragment_LoadsNamedOverlay(t *testing.T) {
	m, fs := newTestManager(t, "")
	require.NoError(t, afero.WriteFile(fs, "/lib/firmware/bspwm_P9_14_6-00A0.dtbo", []byte{0}, 0o644))

	require.NoError(t, m.CreateFragment(pin.Descriptor{Key: "P9_14"}, 6, "bspwm"))

	data, err := afero.ReadFile(fs, capemgr+"/slots")
	require.NoError(t, err)
	assert.Equal(t, "bspwm_P9_14_6", string(data))
}

func TestCreateFragment_UnloadsStaleFragment(t *testing.T) {
	fs := sysfstest.New().
		File(capemgr+"/slots", " 9: ff:P-O-L Override Board Name,00A0,Override Manuf,bspm_P9_14_2f\n").
		File("/lib/firmware/bspwm_P9_14_6-00A0.dtbo", "\x00")
	m := NewManager(fs, Paths{DevicesRoot: "/sys/devices", FirmwareDir: "/lib/firmware"})

	require.NoError(t, m.CreateFragment(pin.Descriptor{Key: "P9_14"}, 6, "bspwm"))
	assert.Equal(t, []string{"-9", "bspwm_P9_14_6"}, fs.WritesTo(capemgr+"/slots"))
}

func TestParseSlots(t *testing.T) {
	got := parseSlots(" 0: 54:PF---\n 7: ff:P-O-L Override Board Name,00A0,Override Manuf,cape-bone-iio\nbare_name\n")
	require.Len(t, got, 3)
	assert.Equal(t, slot{id: "0"}, got[0])
	assert.Equal(t, slot{id: "7", name: "cape-bone-iio"}, got[1])
	assert.Equal(t, slot{name: "bare_name"}, got[2])
}
