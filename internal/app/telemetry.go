package app

import (
	"time"

	"github.com/pavelpernicka/can-sensory/internal/canbus"
	"github.com/pavelpernicka/can-sensory/internal/detector"
	"github.com/pavelpernicka/can-sensory/internal/node"
)

// EventMsg is the JSON schema published for detector events.
// sector/value/speed mirror the frame's three parameter bytes; their
// meaning depends on the event type (a sector change carries from/to).
type EventMsg struct {
	Device uint8  `json:"device"`
	Type   uint8  `json:"type"`
	Name   string `json:"name"`
	Sector uint8  `json:"sector"`
	Value  uint8  `json:"value"`
	Speed  uint8  `json:"speed"`
	NodeMS uint16 `json:"node_ms"`
	Time   string `json:"time"`
}

// StateMsg is the JSON schema for the periodic sector state.
type StateMsg struct {
	Device    uint8  `json:"device"`
	Sector    uint8  `json:"sector"`
	Elevation uint8  `json:"elevation"`
	Time      string `json:"time"`
}

// MagMsg is the JSON schema for raw magnetometer samples, in milligauss.
type MagMsg struct {
	Device uint8  `json:"device"`
	Mx     int16  `json:"mx"`
	My     int16  `json:"my"`
	Mz     int16  `json:"mz"`
	Time   string `json:"time"`
}

// EnvMsg is the JSON schema for environment samples.
type EnvMsg struct {
	Device uint8   `json:"device"`
	TempC  float64 `json:"temp_c"`
	RHPct  float64 `json:"rh_pct"`
	Valid  bool    `json:"valid"`
	Time   string  `json:"time"`
}

// Telemetry topic keys, mapped to configured MQTT topics by the caller.
const (
	topicKeyEvents = "events"
	topicKeyState  = "state"
	topicKeyMag    = "mag"
	topicKeyEnv    = "env"
)

// decodeTelemetry turns one status-ID frame into a publishable message.
// Frames that are not node telemetry (command responses, bootloader
// traffic, unknown subtypes) report ok=false.
func decodeTelemetry(f canbus.Frame, ts time.Time) (topicKey string, payload interface{}, ok bool) {
	devID, ok := canbus.DeviceFromStatusID(f.ID)
	if !ok || f.Len != 8 || f.Data[0] != 0 {
		return "", nil, false
	}
	stamp := ts.UTC().Format(time.RFC3339)

	switch f.Data[1] {
	case detector.FrameEvent:
		ev, err := detector.DecodeFrame(f.Data)
		if err != nil {
			return "", nil, false
		}
		return topicKeyEvents, EventMsg{
			Device: devID,
			Type:   uint8(ev.Type),
			Name:   ev.Type.String(),
			Sector: ev.P0,
			Value:  ev.P1,
			Speed:  ev.P2,
			NodeMS: ev.P3,
			Time:   stamp,
		}, true

	case detector.FrameEventState:
		return topicKeyState, StateMsg{
			Device:    devID,
			Sector:    f.Data[2],
			Elevation: f.Data[3],
			Time:      stamp,
		}, true

	case node.FrameMag:
		return topicKeyMag, MagMsg{
			Device: devID,
			Mx:     int16(uint16(f.Data[2]) | uint16(f.Data[3])<<8),
			My:     int16(uint16(f.Data[4]) | uint16(f.Data[5])<<8),
			Mz:     int16(uint16(f.Data[6]) | uint16(f.Data[7])<<8),
			Time:   stamp,
		}, true

	case node.FrameEnv:
		temp := int16(uint16(f.Data[2]) | uint16(f.Data[3])<<8)
		rh := uint16(f.Data[4]) | uint16(f.Data[5])<<8
		return topicKeyEnv, EnvMsg{
			Device: devID,
			TempC:  float64(temp) / 100,
			RHPct:  float64(rh) / 100,
			Valid:  f.Data[6] != 0,
			Time:   stamp,
		}, true
	}
	return "", nil, false
}
