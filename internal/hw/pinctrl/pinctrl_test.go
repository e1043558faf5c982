package pinctrl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dump = `registered pins: 142
pin 0 (44e10800) 00000031 pinctrl-single
pin 18 (44e10848) 00000027 pinctrl-single
pin 30 (44e10878.0) 00000037 pinctrl-single
`

func TestFind_LocatesPadByOffset(t *testing.T) {
	p, ok := Find(dump, 0x48, AM335xBase)
	require.True(t, ok)
	assert.Equal(t, 18, p.Pin)
	assert.Equal(t, uint32(0x44e10848), p.Address)
	assert.Equal(t, uint32(0x27), p.Raw)
	assert.Equal(t, 7, p.Mux)
	assert.Equal(t, PullDown, p.Pull)
	assert.True(t, p.Receiver)
	assert.False(t, p.Slow)
}

func TestFind_AddressWithSuffix(t *testing.T) {
	p, ok := Find(dump, 0x78, AM335xBase)
	require.True(t, ok)
	assert.Equal(t, PullUp, p.Pull)
	assert.Equal(t, 7, p.Mux)
}

func TestFind_Missing(t *testing.T) {
	_, ok := Find(dump, 0x1b4, AM335xBase)
	assert.False(t, ok)

	_, ok = Find("", 0x48, AM335xBase)
	assert.False(t, ok)
}

func TestDecode_Fields(t *testing.T) {
	cases := []struct {
		raw  uint32
		mux  int
		pull Pull
		rx   bool
		slow bool
	}{
		{0x00, 0, PullDown, false, false},
		{0x0f, 7, PullDisabled, false, false},
		{0x17, 7, PullUp, false, false},
		{0x1f, 7, PullDisabled, false, false},
		{0x26, 6, PullDown, true, false},
		{0x44, 4, PullDown, false, true},
	}
	for _, tc := range cases {
		p := Decode(tc.raw)
		assert.Equal(t, tc.mux, p.Mux, "raw %#x", tc.raw)
		assert.Equal(t, tc.pull, p.Pull, "raw %#x", tc.raw)
		assert.Equal(t, tc.rx, p.Receiver, "raw %#x", tc.raw)
		assert.Equal(t, tc.slow, p.Slow, "raw %#x", tc.raw)
	}
}

func TestEncode_RoundTripsDecode(t *testing.T) {
	raw := Encode(6, PullUp, true, false)
	assert.Equal(t, uint32(0x36), raw)

	p := Decode(raw)
	assert.Equal(t, 6, p.Mux)
	assert.Equal(t, PullUp, p.Pull)
	assert.True(t, p.Receiver)
}
