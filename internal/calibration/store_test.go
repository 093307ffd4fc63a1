package calibration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelpernicka/can-sensory/internal/flash"
)

func newStore(t *testing.T) (*Store, *flash.Mem) {
	t.Helper()
	l := flash.DefaultLayout()
	m := flash.NewMem(l)
	return NewStore(m, l), m
}

func TestStoreLoadFromBlankFlash(t *testing.T) {
	s, _ := newStore(t)
	err := s.Load()
	assert.ErrorIs(t, err, ErrNoRecord)
	assert.Equal(t, Defaults(), s.Record())
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	s, m := newStore(t)
	want := sampleRecord()
	s.Update(want)
	require.NoError(t, s.Save())

	fresh := NewStore(m, m.Layout())
	require.NoError(t, fresh.Load())
	assert.Equal(t, want, fresh.Record())
}

func TestStoreSaveIsRepeatable(t *testing.T) {
	// Save erases the page first, so saving twice must not trip the
	// program-on-non-erased check.
	s, _ := newStore(t)
	s.Update(sampleRecord())
	require.NoError(t, s.Save())
	rec := s.Record()
	rec.NumSectors = 12
	s.Update(rec)
	require.NoError(t, s.Save())
	require.NoError(t, s.Load())
	assert.Equal(t, uint8(12), s.Record().NumSectors)
}

func TestStoreLoadCorruptFallsBackToDefaults(t *testing.T) {
	s, m := newStore(t)
	s.Update(sampleRecord())
	require.NoError(t, s.Save())

	// Flip one payload byte on flash.
	addr := m.Layout().CalibAddr
	buf := make([]byte, BlobSize)
	require.NoError(t, m.Read(addr, buf))
	buf[headerSize] ^= 0x01
	require.NoError(t, m.ErasePage(addr))
	w := flash.NewWriter(m, addr)
	require.NoError(t, w.Push(buf))
	require.NoError(t, w.Flush())

	err := s.Load()
	assert.ErrorIs(t, err, ErrCRC)
	assert.Equal(t, Defaults(), s.Record())
}

func TestStoreLegacyBlobUpgradesOnlyOnSave(t *testing.T) {
	s, m := newStore(t)

	legacy := encodeLegacy(t, 1, sampleRecord())
	w := flash.NewWriter(m, m.Layout().CalibAddr)
	require.NoError(t, w.Push(legacy))
	require.NoError(t, w.Flush())

	require.NoError(t, s.Load())
	assert.Equal(t, uint8(DefaultSectors), s.Record().NumSectors)

	// Flash still holds the v1 blob until an explicit save.
	head := make([]byte, 6)
	require.NoError(t, m.Read(m.Layout().CalibAddr, head))
	assert.Equal(t, byte(1), head[4])

	require.NoError(t, s.Save())
	require.NoError(t, m.Read(m.Layout().CalibAddr, head))
	assert.Equal(t, byte(CurrentVersion), head[4])
}
