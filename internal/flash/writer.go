// Copyright (c) 2026 Pavel Pernicka
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package flash

// Writer accumulates arbitrary-length byte chunks into aligned double-word
// program operations. The wire protocol delivers up to 7 payload bytes per
// frame while flash only programs 8-byte words; this is the adapter between
// the two. Invariant: the staging buffer never holds a full word; it is
// programmed the instant it reaches DoubleWord bytes.
type Writer struct {
	dev  Device
	addr uint32
	buf  [DoubleWord]byte
	n    int
}

// NewWriter starts a staging writer whose first program lands at base.
// base must be double-word aligned.
func NewWriter(dev Device, base uint32) *Writer {
	return &Writer{dev: dev, addr: base}
}

// Push appends p to the staging buffer, programming full double words as
// they complete. On a program failure the writer is left at the failed
// word; the caller is expected to abandon the session.
func (w *Writer) Push(p []byte) error {
	for _, b := range p {
		w.buf[w.n] = b
		w.n++
		if w.n == DoubleWord {
			if err := w.dev.Program(w.addr, w.buf); err != nil {
				return err
			}
			w.addr += DoubleWord
			w.n = 0
		}
	}
	return nil
}

// Flush programs any staged tail bytes, padding to a full double word with
// 0xFF so the unwritten remainder reads back as erased flash. A no-op when
// the staging buffer is empty.
func (w *Writer) Flush() error {
	if w.n == 0 {
		return nil
	}
	for i := w.n; i < DoubleWord; i++ {
		w.buf[i] = 0xFF
	}
	if err := w.dev.Program(w.addr, w.buf); err != nil {
		return err
	}
	w.addr += DoubleWord
	w.n = 0
	return nil
}

// Pending reports how many bytes are staged but not yet programmed.
func (w *Writer) Pending() int { return w.n }

// Pos is the next flash address a full staging buffer would program.
func (w *Writer) Pos() uint32 { return w.addr }
