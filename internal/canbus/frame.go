// Copyright (c) 2026 Pavel Pernicka
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package canbus carries the node's 8-byte CAN frames over pluggable
// transports: an in-memory pipe pair for tests and simulation, and an
// slcan serial adapter for real hardware behind a USB-CAN dongle.
package canbus

// Frame is one standard-ID CAN data frame.
type Frame struct {
	ID   uint16
	Len  uint8
	Data [8]byte
}

// New builds a frame from a payload of up to 8 bytes.
func New(id uint16, data ...byte) Frame {
	f := Frame{ID: id, Len: uint8(len(data))}
	copy(f.Data[:], data)
	return f
}

// Payload returns the live data slice, Len bytes long.
func (f *Frame) Payload() []byte { return f.Data[:f.Len] }

// Address bases shared by the bootloader and the application firmware.
// A device listens on command+devID and answers on status+devID.
const (
	CommandBase uint16 = 0x600
	StatusBase  uint16 = 0x580
	MaxDeviceID        = 0x7F
)

// CommandID is the node's receive address for device devID.
func CommandID(devID uint8) uint16 { return CommandBase + uint16(devID) }

// StatusID is the node's transmit address for device devID.
func StatusID(devID uint8) uint16 { return StatusBase + uint16(devID) }

// DeviceFromStatusID maps a status-range CAN ID back to its device ID.
func DeviceFromStatusID(id uint16) (uint8, bool) {
	if id < StatusBase || id > StatusBase+MaxDeviceID {
		return 0, false
	}
	return uint8(id - StatusBase), true
}
