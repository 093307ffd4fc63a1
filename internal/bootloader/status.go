// Copyright (c) 2026 Pavel Pernicka
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package bootloader implements the firmware-update side of the CAN
// protocol: a transfer state machine staging an application image into
// flash, image metadata with CRC validation, and the command dispatcher
// a device runs while waiting for either an update or a boot request.
package bootloader

import "fmt"

// Status is the first byte of every bootloader status frame.
type Status uint8

const (
	StatusOK         Status = 0x00
	StatusErrGeneric Status = 0x01
	StatusErrRange   Status = 0x02
	StatusErrState   Status = 0x03
	StatusErrCRC     Status = 0x04
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusErrGeneric:
		return "generic error"
	case StatusErrRange:
		return "range error"
	case StatusErrState:
		return "state error"
	case StatusErrCRC:
		return "crc mismatch"
	}
	return fmt.Sprintf("status(0x%02X)", uint8(s))
}

// BootError is the sticky last-boot-attempt diagnostic reported by
// BOOT_STATUS.
type BootError uint8

const (
	BootErrNone        BootError = 0x00
	BootErrAppInvalid  BootError = 0xE1
	BootErrVectorEmpty BootError = 0xE2
	BootErrStackAlign  BootError = 0xE3
	BootErrStackRange  BootError = 0xE4
	BootErrEntryRange  BootError = 0xE5
	BootErrReturned    BootError = 0xE6
)

func (e BootError) String() string {
	switch e {
	case BootErrNone:
		return "none"
	case BootErrAppInvalid:
		return "app invalid"
	case BootErrVectorEmpty:
		return "vector table empty"
	case BootErrStackAlign:
		return "stack pointer misaligned"
	case BootErrStackRange:
		return "stack pointer out of range"
	case BootErrEntryRange:
		return "entry point out of range"
	case BootErrReturned:
		return "application returned"
	}
	return fmt.Sprintf("booterr(0x%02X)", uint8(e))
}

// Command opcodes, first payload byte on the command CAN ID.
const (
	CmdPing         = 0x01
	CmdCheck        = 0x02
	CmdStart        = 0x10
	CmdData         = 0x20
	CmdEnd          = 0x30
	CmdBootApp      = 0x40
	CmdBootStatus   = 0x41
	CmdI2CBufClear  = 0x50
	CmdI2CBufAppend = 0x51
	CmdI2CXfer      = 0x52
	CmdI2CScan      = 0x53
)

// Response frame subtypes (payload byte 1 when byte 0 is a Status).
const (
	FrameCheckSummary = 0x20
	FrameCheckCRC     = 0x21
	FrameI2CScan      = 0x60
	FrameI2CRxData    = 0x61
)

// ProtoVersion is reported in PONG, BLST and CHECK responses.
const ProtoVersion = 2

// PING payload byte asking the device to stay in the bootloader.
const StayByte = 0x42
