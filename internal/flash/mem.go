// Copyright (c) 2026 Pavel Pernicka
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package flash

import "fmt"

// Mem is an in-memory flash device with realistic erase/program semantics:
// erased bytes read as 0xFF, programming is only legal on erased bytes, and
// both operations honor the configured granularities.
//
// FailProgramAt and FailEraseAt inject a one-address hardware fault; tests
// use them to drive the transfer error paths.
type Mem struct {
	layout Layout
	data   []byte

	FailProgramAt uint32
	FailEraseAt   uint32

	// Programs counts successful Program calls; tests use it to verify
	// that rejected commands performed no flash work.
	Programs int
	// Erases counts successful page erases.
	Erases int
}

// NewMem returns a fully erased in-memory device for the given layout.
func NewMem(l Layout) *Mem {
	m := &Mem{layout: l, data: make([]byte, l.TotalSize)}
	for i := range m.data {
		m.data[i] = 0xFF
	}
	return m
}

// Layout returns the flash map the device was built with.
func (m *Mem) Layout() Layout { return m.layout }

func (m *Mem) offset(addr uint32, n int) (uint32, error) {
	if addr < m.layout.Base {
		return 0, ErrOutOfRange
	}
	off := addr - m.layout.Base
	if uint64(off)+uint64(n) > uint64(m.layout.TotalSize) {
		return 0, ErrOutOfRange
	}
	return off, nil
}

func (m *Mem) ErasePage(addr uint32) error {
	if addr%m.layout.PageSize != 0 {
		return ErrAlignment
	}
	off, err := m.offset(addr, int(m.layout.PageSize))
	if err != nil {
		return err
	}
	if m.FailEraseAt != 0 && m.FailEraseAt == addr {
		return fmt.Errorf("erase at 0x%08X: %w", addr, ErrIO)
	}
	for i := uint32(0); i < m.layout.PageSize; i++ {
		m.data[off+i] = 0xFF
	}
	m.Erases++
	return nil
}

func (m *Mem) Program(addr uint32, dw [DoubleWord]byte) error {
	if addr%DoubleWord != 0 {
		return ErrAlignment
	}
	off, err := m.offset(addr, DoubleWord)
	if err != nil {
		return err
	}
	if m.FailProgramAt != 0 && m.FailProgramAt == addr {
		return fmt.Errorf("program at 0x%08X: %w", addr, ErrIO)
	}
	for i := 0; i < DoubleWord; i++ {
		if m.data[off+uint32(i)] != 0xFF {
			return fmt.Errorf("program at 0x%08X: %w", addr, ErrNotErased)
		}
	}
	copy(m.data[off:off+DoubleWord], dw[:])
	m.Programs++
	return nil
}

func (m *Mem) Read(addr uint32, p []byte) error {
	off, err := m.offset(addr, len(p))
	if err != nil {
		return err
	}
	copy(p, m.data[off:off+uint32(len(p))])
	return nil
}
