package sensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c/i2ctest"
)

func TestI2CBridgeTransfer(t *testing.T) {
	bus := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: 0x1E, W: []byte{0x0A}, R: []byte{'H', '4', '3'}},
		},
		DontPanic: true,
	}
	br := NewI2CBridge(bus)

	rx := make([]byte, 3)
	require.NoError(t, br.Transfer(0x1E, []byte{0x0A}, rx))
	assert.Equal(t, []byte{'H', '4', '3'}, rx)

	// Playback is exhausted; the failure names the address.
	err := br.Transfer(0x1E, []byte{0x00}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0x1E")
}

func TestI2CBridgeProbe(t *testing.T) {
	bus := &i2ctest.Playback{
		Ops:       []i2ctest.IO{{Addr: 0x50}},
		DontPanic: true,
	}
	br := NewI2CBridge(bus)

	assert.True(t, br.Probe(0x50))
	assert.False(t, br.Probe(0x51))
}
