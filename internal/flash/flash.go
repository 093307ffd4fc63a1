// Copyright (c) 2026 Pavel Pernicka
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package flash models the node's internal flash: page-granular erase,
// double-word (8-byte) aligned programming, and the staging buffer that
// batches arbitrary-length protocol chunks into aligned program operations.
//
// Hardware backends implement Device; Mem is the in-memory implementation
// used by the simulator and the tests.
package flash

import (
	"errors"
	"fmt"
)

// DoubleWord is the program granularity of the underlying flash technology.
const DoubleWord = 8

var (
	// ErrAlignment reports an erase or program request that does not
	// respect the device's page or double-word alignment.
	ErrAlignment = errors.New("flash: misaligned access")
	// ErrOutOfRange reports an access outside the device's address range.
	ErrOutOfRange = errors.New("flash: address out of range")
	// ErrNotErased reports a program operation targeting bytes that were
	// not erased first. Real flash cells can only be written from the
	// erased state.
	ErrNotErased = errors.New("flash: programming non-erased memory")
	// ErrIO is the injected hardware failure used in tests.
	ErrIO = errors.New("flash: program/erase failure")
)

// Device is the contract the bootloader and the calibration store program
// against. Addresses are absolute (they include the flash base).
type Device interface {
	// ErasePage erases the page containing addr back to 0xFF.
	// addr must be page-aligned.
	ErasePage(addr uint32) error
	// Program writes exactly one double word at an 8-byte-aligned addr.
	Program(addr uint32, dw [DoubleWord]byte) error
	// Read copies len(p) bytes starting at addr into p.
	Read(addr uint32, p []byte) error
}

// Layout describes the fixed flash map of the node. All regions are
// page-aligned by construction.
type Layout struct {
	Base      uint32
	TotalSize uint32
	PageSize  uint32
	BootSize  uint32
	CalibAddr uint32
}

// DefaultLayout mirrors the STM32L432 map of the reference hardware:
// 128 KiB of flash in 2 KiB pages, a 16 KiB bootloader, application
// metadata in the last page and the calibration record one page below it.
func DefaultLayout() Layout {
	return Layout{
		Base:      0x08000000,
		TotalSize: 0x00020000,
		PageSize:  0x800,
		BootSize:  16 * 1024,
		CalibAddr: 0x0801F000,
	}
}

// AppStart is the first address of the application image region.
func (l Layout) AppStart() uint32 { return l.Base + l.BootSize }

// MetaAddr is the address of the image metadata record (last page).
func (l Layout) MetaAddr() uint32 { return l.Base + l.TotalSize - l.PageSize }

// AppEnd is one past the last usable application byte (the metadata page).
func (l Layout) AppEnd() uint32 { return l.MetaAddr() }

// AppMaxSize is the largest acceptable application image.
func (l Layout) AppMaxSize() uint32 { return l.AppEnd() - l.AppStart() }

// EraseRange erases every page in [start, end). Both bounds must be
// page-aligned with respect to the layout.
func EraseRange(dev Device, l Layout, start, end uint32) error {
	if start%l.PageSize != 0 || end%l.PageSize != 0 {
		return ErrAlignment
	}
	for addr := start; addr < end; addr += l.PageSize {
		if err := dev.ErasePage(addr); err != nil {
			return fmt.Errorf("erase page 0x%08X: %w", addr, err)
		}
	}
	return nil
}
