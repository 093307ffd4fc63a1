// Copyright (c) 2026 Pavel Pernicka
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package node runs the application firmware's main loop: sampling the
// magnetometer into the event detector, publishing sensor and event
// streams on the CAN bus, and serving the configuration command surface.
// The loop is tick-driven; the owner calls Tick with a monotonic
// millisecond clock, which makes the whole node deterministic under test
// and simulation.
package node

import "fmt"

// Status is the first byte of an application status frame. The codes
// deliberately differ in meaning from the bootloader's set: 0x04 here is
// a sensor fault, not a CRC mismatch.
type Status uint8

const (
	StatusOK         Status = 0x00
	StatusErrGeneric Status = 0x01
	StatusErrRange   Status = 0x02
	StatusErrState   Status = 0x03
	StatusErrSensor  Status = 0x04
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
	case StatusErrSensor:
		return "sensor error"
	}
	return fmt.Sprintf("status(0x%02X)", uint8(s))
}

// Command opcodes on the command CAN ID.
const (
	CmdPing            = 0x01
	CmdEnterBootloader = 0x40
	CmdHmcSetCfg       = 0x6E
	CmdHmcGetCfg       = 0x6F
	CmdSetInterval     = 0x70
	CmdGetInterval     = 0x71
	CmdSetStreamEnable = 0x72
	CmdGetStatus       = 0x73
	CmdCalibGet        = 0x79
	CmdCalibSet        = 0x7A
	CmdCalibSave       = 0x7B
	CmdCalibLoad       = 0x7C
	CmdCalibReset      = 0x7D
	CmdCalibCapture    = 0x7E
)

// Frame subtypes on the status CAN ID (payload byte 1; byte 0 is 0x00 for
// data frames and a Status code for status frames).
const (
	FramePong       = 0x01
	FrameStartup    = 0x02
	FrameMag        = 0x10
	FrameAcc        = 0x11
	FrameEnv        = 0x12
	FrameInterval   = 0x30
	FrameStatus     = 0x31
	FrameCalibValue = 0x44
	FrameCalibInfo  = 0x45
	FrameHmcCfg     = 0x46
)

// Stream identifiers, 1-based on the wire.
const (
	StreamMag   = 1
	StreamAcc   = 2
	StreamEnv   = 3
	StreamEvent = 4
)

// ProtoVersion is the application protocol version reported in PONG and
// info frames.
const ProtoVersion = 1

// Sampling cadence and watchdog, in milliseconds.
const (
	magSamplePeriodMS = 10
	accSamplePeriodMS = 20
	noDataTimeoutMS   = 10000

	maxIntervalMS = 60000
)
