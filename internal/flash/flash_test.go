package flash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemErasedReadsFF(t *testing.T) {
	m := NewMem(DefaultLayout())
	buf := make([]byte, 16)
	require.NoError(t, m.Read(m.Layout().AppStart(), buf))
	for _, b := range buf {
		assert.Equal(t, byte(0xFF), b)
	}
}

func TestMemProgramAndRead(t *testing.T) {
	m := NewMem(DefaultLayout())
	addr := m.Layout().AppStart()
	dw := [DoubleWord]byte{1, 2, 3, 4, 5, 6, 7, 8}
	require.NoError(t, m.Program(addr, dw))

	buf := make([]byte, DoubleWord)
	require.NoError(t, m.Read(addr, buf))
	assert.Equal(t, dw[:], buf)
}

func TestMemRejectsMisalignedProgram(t *testing.T) {
	m := NewMem(DefaultLayout())
	err := m.Program(m.Layout().AppStart()+3, [DoubleWord]byte{})
	assert.ErrorIs(t, err, ErrAlignment)
}

func TestMemRejectsDoubleProgram(t *testing.T) {
	m := NewMem(DefaultLayout())
	addr := m.Layout().AppStart()
	require.NoError(t, m.Program(addr, [DoubleWord]byte{1, 2, 3, 4, 5, 6, 7, 8}))
	err := m.Program(addr, [DoubleWord]byte{9, 9, 9, 9, 9, 9, 9, 9})
	assert.ErrorIs(t, err, ErrNotErased)
}

func TestMemEraseRestoresPage(t *testing.T) {
	m := NewMem(DefaultLayout())
	addr := m.Layout().AppStart()
	require.NoError(t, m.Program(addr, [DoubleWord]byte{1, 2, 3, 4, 5, 6, 7, 8}))
	require.NoError(t, m.ErasePage(addr))
	require.NoError(t, m.Program(addr, [DoubleWord]byte{8, 7, 6, 5, 4, 3, 2, 1}))
}

func TestMemOutOfRange(t *testing.T) {
	l := DefaultLayout()
	m := NewMem(l)
	assert.ErrorIs(t, m.Read(l.Base+l.TotalSize, make([]byte, 1)), ErrOutOfRange)
	assert.ErrorIs(t, m.Read(l.Base-8, make([]byte, 1)), ErrOutOfRange)
}

func TestEraseRange(t *testing.T) {
	l := DefaultLayout()
	m := NewMem(l)
	require.NoError(t, m.Program(l.AppStart(), [DoubleWord]byte{1, 2, 3, 4, 5, 6, 7, 8}))

	require.NoError(t, EraseRange(m, l, l.AppStart(), l.AppEnd()))
	buf := make([]byte, DoubleWord)
	require.NoError(t, m.Read(l.AppStart(), buf))
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, buf)

	wantPages := int((l.AppEnd() - l.AppStart()) / l.PageSize)
	assert.Equal(t, wantPages, m.Erases)
}

func TestWriterStagesSubWordChunks(t *testing.T) {
	l := DefaultLayout()
	m := NewMem(l)
	w := NewWriter(m, l.AppStart())

	// Typical transfer pattern: 7-byte chunks.
	require.NoError(t, w.Push([]byte{1, 2, 3, 4, 5, 6, 7}))
	assert.Equal(t, 7, w.Pending())
	assert.Equal(t, 0, m.Programs)

	require.NoError(t, w.Push([]byte{8, 9}))
	assert.Equal(t, 1, w.Pending())
	assert.Equal(t, 1, m.Programs)

	buf := make([]byte, DoubleWord)
	require.NoError(t, m.Read(l.AppStart(), buf))
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, buf)
}

func TestWriterFlushPadsWithFF(t *testing.T) {
	l := DefaultLayout()
	m := NewMem(l)
	w := NewWriter(m, l.AppStart())

	require.NoError(t, w.Push([]byte{0xAA, 0xBB, 0xCC}))
	require.NoError(t, w.Flush())
	assert.Equal(t, 0, w.Pending())

	buf := make([]byte, DoubleWord)
	require.NoError(t, m.Read(l.AppStart(), buf))
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, buf)
}

func TestWriterFlushEmptyIsNoop(t *testing.T) {
	l := DefaultLayout()
	m := NewMem(l)
	w := NewWriter(m, l.AppStart())
	require.NoError(t, w.Flush())
	assert.Equal(t, 0, m.Programs)
}

func TestWriterPropagatesProgramFailure(t *testing.T) {
	l := DefaultLayout()
	m := NewMem(l)
	m.FailProgramAt = l.AppStart() + DoubleWord
	w := NewWriter(m, l.AppStart())

	require.NoError(t, w.Push(make([]byte, DoubleWord)))
	err := w.Push(make([]byte, DoubleWord))
	assert.ErrorIs(t, err, ErrIO)
}
