package sensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c/i2ctest"

	"github.com/pavelpernicka/can-sensory/internal/detector"
)

func TestHmcConfigValid(t *testing.T) {
	assert.True(t, HmcConfig{Range: 7, DataRate: 6, Samples: 3, Mode: 2}.Valid())
	assert.False(t, HmcConfig{Range: 8}.Valid())
	assert.False(t, HmcConfig{DataRate: 7}.Valid())
	assert.False(t, HmcConfig{Samples: 4}.Valid())
	assert.False(t, HmcConfig{Mode: 3}.Valid())
}

func TestHmcScaleTable(t *testing.T) {
	assert.Equal(t, uint16(73), HmcConfig{Range: 0}.MgPerDigitCenti())
	assert.Equal(t, uint16(435), HmcConfig{Range: 7}.MgPerDigitCenti())
	assert.Equal(t, uint16(0), HmcConfig{Range: 8}.MgPerDigitCenti())
}

func TestHMC5883LInitAndRead(t *testing.T) {
	cfg := HmcConfig{Range: 7, DataRate: 6, Samples: 0, Mode: 0}
	bus := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: hmcAddr, W: []byte{hmcRegIDA}, R: []byte{'H', '4', '3'}},
			{Addr: hmcAddr, W: []byte{hmcRegConfigA, cfg.Samples<<5 | cfg.DataRate<<2}},
			{Addr: hmcAddr, W: []byte{hmcRegConfigB, cfg.Range << 5}},
			{Addr: hmcAddr, W: []byte{hmcRegMode, cfg.Mode}},
			// x=100, z=-50, y=200 raw digits, chip axis order X,Z,Y.
			{Addr: hmcAddr, W: []byte{hmcRegDataX}, R: []byte{0x00, 0x64, 0xFF, 0xCE, 0x00, 0xC8}},
		},
	}

	h, err := NewHMC5883L(bus, cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg, h.Config())

	s, ok := h.ReadMag()
	require.True(t, ok)
	// Raw digits scaled by 4.35 mg/digit.
	assert.Equal(t, detector.MagSample{X: 435, Y: 870, Z: -217}, s)

	require.NoError(t, bus.Close())
}

func TestHMC5883LRejectsWrongID(t *testing.T) {
	bus := &i2ctest.Playback{
		DontPanic: true,
		Ops: []i2ctest.IO{
			{Addr: hmcAddr, W: []byte{hmcRegIDA}, R: []byte{'X', 'Y', 'Z'}},
		},
	}
	_, err := NewHMC5883L(bus, HmcConfig{})
	assert.Error(t, err)
}

func TestHMC5883LOffsets(t *testing.T) {
	cfg := HmcConfig{Range: 1} // 0.92 mg/digit
	bus := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: hmcAddr, W: []byte{hmcRegIDA}, R: []byte{'H', '4', '3'}},
			{Addr: hmcAddr, W: []byte{hmcRegConfigA, 0}},
			{Addr: hmcAddr, W: []byte{hmcRegConfigB, 1 << 5}},
			{Addr: hmcAddr, W: []byte{hmcRegMode, 0}},
			{Addr: hmcAddr, W: []byte{hmcRegDataX}, R: []byte{0x00, 0x6E, 0x00, 0x00, 0x00, 0x00}},
		},
	}

	h, err := NewHMC5883L(bus, cfg)
	require.NoError(t, err)
	h.SetOffsets(10, 0, 0)

	s, ok := h.ReadMag()
	require.True(t, ok)
	// (110 - 10) digits * 0.92 mg.
	assert.Equal(t, int16(92), s.X)
}

func TestHMC5883LConfigureRejectsBadConfig(t *testing.T) {
	h := &HMC5883L{}
	assert.ErrorIs(t, h.Configure(HmcConfig{Range: 9}), ErrHMCRange)
}

func TestScriptedMag(t *testing.T) {
	src := &ScriptedMag{Samples: []detector.MagSample{{X: 1}, {X: 2}}}

	s, ok := src.ReadMag()
	require.True(t, ok)
	assert.Equal(t, int16(1), s.X)
	s, ok = src.ReadMag()
	require.True(t, ok)
	assert.Equal(t, int16(2), s.X)
	_, ok = src.ReadMag()
	assert.False(t, ok)

	held := &ScriptedMag{Samples: []detector.MagSample{{X: 5}}, Hold: true}
	held.ReadMag()
	s, ok = held.ReadMag()
	require.True(t, ok)
	assert.Equal(t, int16(5), s.X)
}

func TestI2CBridgeTransferScripted(t *testing.T) {
	bus := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: 0x3C, W: []byte{0x01, 0x02}, R: []byte{0xAA}},
		},
	}
	b := NewI2CBridge(bus)

	rx := make([]byte, 1)
	require.NoError(t, b.Transfer(0x3C, []byte{0x01, 0x02}, rx))
	assert.Equal(t, []byte{0xAA}, rx)
}

func TestI2CBridgeProbeScripted(t *testing.T) {
	bus := &i2ctest.Playback{
		DontPanic: true,
		Ops: []i2ctest.IO{
			{Addr: 0x1E, W: nil, R: nil},
		},
	}
	b := NewI2CBridge(bus)
	assert.True(t, b.Probe(0x1E))
	assert.False(t, b.Probe(0x1E), "script exhausted, next probe fails")
}
