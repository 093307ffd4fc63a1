// Copyright (c) 2026 Pavel Pernicka
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package bootloader

import (
	"fmt"

	"github.com/pavelpernicka/can-sensory/internal/flash"
	"github.com/pavelpernicka/can-sensory/internal/imagecrc"
)

// Transfer is the firmware-update state machine. One instance guards one
// device's application region; commands arrive strictly in order, there
// are no sequence numbers and no out-of-order chunk acceptance.
type Transfer struct {
	dev    flash.Device
	layout flash.Layout

	updating bool
	expected uint32
	received uint32
	crc      *imagecrc.Accumulator
	writer   *flash.Writer
}

// NewTransfer returns an idle transfer over the device's app region.
func NewTransfer(dev flash.Device, layout flash.Layout) *Transfer {
	return &Transfer{dev: dev, layout: layout, crc: imagecrc.New()}
}

// Updating reports whether a transfer session is open.
func (t *Transfer) Updating() bool { return t.updating }

// Received reports how many image bytes the session has accepted.
func (t *Transfer) Received() uint32 { return t.received }

// Start opens an update session for an image of size bytes. The whole
// application region is erased before any state changes, so a failed
// erase leaves the machine idle. Starting over an open session is
// allowed and abandons it.
func (t *Transfer) Start(size uint32) (Status, uint8, error) {
	if size == 0 || size > t.layout.AppMaxSize() {
		return StatusErrRange, 0, fmt.Errorf("transfer: image size %d out of range", size)
	}
	if err := flash.EraseRange(t.dev, t.layout, t.layout.AppStart(), t.layout.AppEnd()); err != nil {
		return StatusErrGeneric, 1, fmt.Errorf("transfer: erase app region: %w", err)
	}

	t.updating = true
	t.expected = size
	t.received = 0
	t.crc.Reset()
	t.writer = flash.NewWriter(t.dev, t.layout.AppStart())
	return StatusOK, 0, nil
}

// Data accepts the next sequential image chunk. A chunk running past the
// announced size is truncated to the remaining capacity rather than
// rejected; the CRC covers only the accepted bytes. A flash programming
// failure aborts the session.
func (t *Transfer) Data(chunk []byte) (Status, uint8, error) {
	if !t.updating {
		return StatusErrState, 0, fmt.Errorf("transfer: DATA without START")
	}
	if t.received >= t.expected {
		return StatusErrRange, 0, fmt.Errorf("transfer: image already complete")
	}

	remaining := t.expected - t.received
	if uint32(len(chunk)) > remaining {
		chunk = chunk[:remaining]
	}

	if err := t.writer.Push(chunk); err != nil {
		t.updating = false
		return StatusErrGeneric, 2, fmt.Errorf("transfer: program: %w", err)
	}
	t.crc.Update(chunk)
	t.received += uint32(len(chunk))
	return StatusOK, 0, nil
}

// Abort drops an open session without touching flash. The partially
// written region stays invalid until a later END commits metadata.
func (t *Transfer) Abort() { t.updating = false }

// End closes the session against the host's CRC. The session is cleared
// before any verdict so a failed END never leaves a stale half-open
// update. Both the CRC and the exact byte count must match; only then is
// the staging tail flushed and the metadata committed.
func (t *Transfer) End(hostCRC uint32, devID uint8) (Status, uint8, error) {
	if !t.updating {
		return StatusErrState, 0, fmt.Errorf("transfer: END without START")
	}
	t.updating = false

	devCRC := t.crc.Sum32()
	if hostCRC != devCRC || t.received != t.expected {
		return StatusErrCRC, 0, fmt.Errorf("transfer: image mismatch: host crc 0x%08X dev crc 0x%08X, received %d of %d",
			hostCRC, devCRC, t.received, t.expected)
	}

	if err := t.writer.Flush(); err != nil {
		return StatusErrGeneric, 2, fmt.Errorf("transfer: flush tail: %w", err)
	}

	meta := Meta{
		Magic:    MetaMagic,
		Size:     t.received,
		CRC32:    devCRC,
		Reserved: EncodeReserved(devID),
	}
	if err := WriteMeta(t.dev, t.layout, meta); err != nil {
		return StatusErrGeneric, 3, fmt.Errorf("transfer: commit metadata: %w", err)
	}
	return StatusOK, 0, nil
}
