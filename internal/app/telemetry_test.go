package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelpernicka/can-sensory/internal/canbus"
	"github.com/pavelpernicka/can-sensory/internal/detector"
)

func TestDecodeTelemetry(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	statusID := canbus.StatusID(0x05)

	t.Run("event", func(t *testing.T) {
		ev := detector.Event{Type: detector.EventSectorChanged, P0: 2, P1: 5, P2: 17, P3: 4000}
		f := canbus.Frame{ID: statusID, Len: 8, Data: ev.EncodeFrame()}
		key, payload, ok := decodeTelemetry(f, ts)
		require.True(t, ok)
		assert.Equal(t, topicKeyEvents, key)
		msg := payload.(EventMsg)
		assert.Equal(t, uint8(0x05), msg.Device)
		assert.Equal(t, "sector_changed", msg.Name)
		assert.Equal(t, uint8(2), msg.Sector)
		assert.Equal(t, uint8(5), msg.Value)
		assert.Equal(t, uint16(4000), msg.NodeMS)
		assert.Equal(t, "2026-03-01T12:00:00Z", msg.Time)
	})

	t.Run("state", func(t *testing.T) {
		f := canbus.Frame{ID: statusID, Len: 8, Data: detector.EncodeStateFrame(3, 90)}
		key, payload, ok := decodeTelemetry(f, ts)
		require.True(t, ok)
		assert.Equal(t, topicKeyState, key)
		msg := payload.(StateMsg)
		assert.Equal(t, uint8(3), msg.Sector)
		assert.Equal(t, uint8(90), msg.Elevation)
	})

	t.Run("mag", func(t *testing.T) {
		f := canbus.Frame{ID: statusID, Len: 8,
			Data: [8]byte{0, 0x10, 0xD0, 0x07, 0x00, 0x00, 0xD4, 0xFE}}
		key, payload, ok := decodeTelemetry(f, ts)
		require.True(t, ok)
		assert.Equal(t, topicKeyMag, key)
		msg := payload.(MagMsg)
		assert.Equal(t, int16(2000), msg.Mx)
		assert.Equal(t, int16(0), msg.My)
		assert.Equal(t, int16(-300), msg.Mz)
	})

	t.Run("env", func(t *testing.T) {
		f := canbus.Frame{ID: statusID, Len: 8,
			Data: [8]byte{0, 0x12, 0xC2, 0x08, 0x6A, 0x18, 1, 0}}
		key, payload, ok := decodeTelemetry(f, ts)
		require.True(t, ok)
		assert.Equal(t, topicKeyEnv, key)
		msg := payload.(EnvMsg)
		assert.InDelta(t, 22.42, msg.TempC, 0.001)
		assert.InDelta(t, 62.50, msg.RHPct, 0.001)
		assert.True(t, msg.Valid)
	})

	t.Run("ignores non-telemetry", func(t *testing.T) {
		cases := []canbus.Frame{
			// Status response, not a data frame.
			{ID: statusID, Len: 8, Data: [8]byte{2, 1}},
			// Unknown subtype.
			{ID: statusID, Len: 8, Data: [8]byte{0, 0x77}},
			// Command-range ID.
			{ID: canbus.CommandID(0x05), Len: 8, Data: [8]byte{0, 0x10}},
			// Short frame.
			{ID: statusID, Len: 2, Data: [8]byte{0, 0x10}},
		}
		for _, f := range cases {
			_, _, ok := decodeTelemetry(f, ts)
			assert.False(t, ok, "frame % X", f.Data)
		}
	})
}
