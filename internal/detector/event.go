// Copyright (c) 2026 Pavel Pernicka
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package detector

import (
	"errors"
	"fmt"
)

// EventType tags one detector event. Wire values 1..9 are fixed.
type EventType uint8

const (
	EventSectorActivated           EventType = 1
	EventSectorChanged             EventType = 2
	EventIntensityChange           EventType = 3
	EventSectionDeactivated        EventType = 4
	EventSessionStarted            EventType = 5
	EventSessionEnded              EventType = 6
	EventPassingSectorChange       EventType = 7
	EventPossibleMechanicalFailure EventType = 8
	EventErrorNoData               EventType = 9
)

func (t EventType) String() string {
	switch t {
	case EventSectorActivated:
		return "sector_activated"
	case EventSectorChanged:
		return "sector_changed"
	case EventIntensityChange:
		return "intensity_change"
	case EventSectionDeactivated:
		return "section_deactivated"
	case EventSessionStarted:
		return "session_started"
	case EventSessionEnded:
		return "session_ended"
	case EventPassingSectorChange:
		return "passing_sector_change"
	case EventPossibleMechanicalFailure:
		return "possible_mechanical_failure"
	case EventErrorNoData:
		return "error_no_data"
	}
	return fmt.Sprintf("event(%d)", uint8(t))
}

// Event is one fixed-width detector event. P3 carries the low 16 bits of
// the millisecond tick at emission time; it is a rolling correlation tag,
// not a timestamp.
type Event struct {
	Type       EventType
	P0, P1, P2 uint8
	P3         uint16
}

// Frame subtypes on the status CAN ID.
const (
	FrameEvent      = 0x20
	FrameEventState = 0x32
)

var (
	// ErrNotEventFrame reports a frame whose subtype byte is not an
	// event frame.
	ErrNotEventFrame = errors.New("detector: not an event frame")
	// ErrUnknownEventType reports an event frame carrying a type code
	// outside 1..9.
	ErrUnknownEventType = errors.New("detector: unknown event type")
)

// EncodeFrame serializes e into the node's 8-byte event frame:
// [0, 0x20, type, p0, p1, p2, p3lo, p3hi].
func (e Event) EncodeFrame() [8]byte {
	return [8]byte{
		0,
		FrameEvent,
		uint8(e.Type),
		e.P0,
		e.P1,
		e.P2,
		uint8(e.P3),
		uint8(e.P3 >> 8),
	}
}

// DecodeFrame parses an event frame. Unknown type codes are an explicit
// decode error; consumers must not guess at future event semantics.
func DecodeFrame(frame [8]byte) (Event, error) {
	if frame[1] != FrameEvent {
		return Event{}, ErrNotEventFrame
	}
	t := EventType(frame[2])
	if t < EventSectorActivated || t > EventErrorNoData {
		return Event{}, fmt.Errorf("%w: %d", ErrUnknownEventType, frame[2])
	}
	return Event{
		Type: t,
		P0:   frame[3],
		P1:   frame[4],
		P2:   frame[5],
		P3:   uint16(frame[6]) | uint16(frame[7])<<8,
	}, nil
}

// EncodeStateFrame serializes the live sector state snapshot:
// [0, 0x32, sector, elevation, 0, 0, 0, 0].
func EncodeStateFrame(sector, elevation uint8) [8]byte {
	return [8]byte{0, FrameEventState, sector, elevation}
}
