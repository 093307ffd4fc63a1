package node

import (
	"log"

	"github.com/pavelpernicka/can-sensory/internal/calibration"
	"github.com/pavelpernicka/can-sensory/internal/canbus"
	"github.com/pavelpernicka/can-sensory/internal/detector"
	"github.com/pavelpernicka/can-sensory/internal/sensor"
)

// send pushes one 8-byte frame on the node's status ID. Transmit errors
// are logged and swallowed; the loop must keep running on a saturated or
// flapping bus.
func (n *Node) send(data [8]byte) {
	f := canbus.Frame{ID: canbus.StatusID(n.cfg.DeviceID), Len: 8, Data: data}
	if err := n.cfg.Bus.Send(f); err != nil {
		log.Printf("node: send frame 0x%02X: %v", data[1], err)
	}
}

func (n *Node) sendStatus(st Status, extra uint8) {
	n.send([8]byte{uint8(st), extra})
}

func (n *Node) sendPong() {
	n.send([8]byte{'P', 'O', 'N', 'G', n.cfg.DeviceID, ProtoVersion, 0x5A, 0})
}

// sensorBits reports which sensors this build carries: bit 0 mag, bit 1
// accelerometer, bit 2 environment.
func (n *Node) sensorBits() uint8 {
	var b uint8
	if n.cfg.Mag != nil {
		b |= 1 << 0
	}
	if n.cfg.Acc != nil {
		b |= 1 << 1
	}
	if n.cfg.Env != nil {
		b |= 1 << 2
	}
	return b
}

func (n *Node) streamBits() uint8 {
	var b uint8
	for sid := StreamMag; sid <= StreamEvent; sid++ {
		if n.streams[sid].enabled {
			b |= 1 << (sid - 1)
		}
	}
	return b
}

func (n *Node) sendStartup() {
	n.send([8]byte{
		0, FrameStartup,
		n.cfg.DeviceID, ProtoVersion,
		n.sensorBits(), n.streamBits(),
		n.cfg.ResetCause, 0,
	})
}

func (n *Node) sendMag() {
	n.send([8]byte{
		0, FrameMag,
		uint8(n.mag.X), uint8(uint16(n.mag.X) >> 8),
		uint8(n.mag.Y), uint8(uint16(n.mag.Y) >> 8),
		uint8(n.mag.Z), uint8(uint16(n.mag.Z) >> 8),
	})
}

func (n *Node) sendAcc() {
	n.send([8]byte{
		0, FrameAcc,
		uint8(n.acc.X), uint8(uint16(n.acc.X) >> 8),
		uint8(n.acc.Y), uint8(uint16(n.acc.Y) >> 8),
		uint8(n.acc.Z), uint8(uint16(n.acc.Z) >> 8),
	})
}

func (n *Node) sendEnv(e sensor.EnvSample) {
	n.send([8]byte{
		0, FrameEnv,
		uint8(e.TempCentiC), uint8(uint16(e.TempCentiC) >> 8),
		uint8(e.RHCentiPct), uint8(e.RHCentiPct >> 8),
		1, 0,
	})
}

func (n *Node) sendInterval(sid int) {
	st := n.streams[sid]
	var en uint8
	if st.enabled {
		en = 1
	}
	n.send([8]byte{
		0, FrameInterval,
		uint8(sid), en,
		uint8(st.intervalMS), uint8(st.intervalMS >> 8),
		n.cfg.DeviceID, ProtoVersion,
	})
}

func (n *Node) sendStatusFrame() {
	n.send([8]byte{
		0, FrameStatus,
		n.sensorBits(), n.streamBits(),
		uint8(n.streams[StreamMag].intervalMS),
		uint8(n.streams[StreamAcc].intervalMS),
		uint8(n.streams[StreamEnv].intervalMS),
		uint8(n.streams[StreamEvent].intervalMS),
	})
}

func (n *Node) sendCalibValue(f calibration.Field) {
	rec := n.cfg.Store.Record()
	v, err := rec.GetField(f)
	if err != nil {
		return
	}
	n.send([8]byte{
		0, FrameCalibValue,
		uint8(f),
		uint8(v), uint8(uint16(v) >> 8),
		0,
		n.cfg.DeviceID, ProtoVersion,
	})
}

func (n *Node) sendCalibAll() {
	for f := calibration.FieldFirst; f <= calibration.FieldLast; f++ {
		n.sendCalibValue(f)
	}
}

func (n *Node) sendCalibInfo(op, result uint8) {
	n.send([8]byte{
		0, FrameCalibInfo,
		op, result,
		n.cfg.DeviceID, ProtoVersion,
		0, 0,
	})
}

func (n *Node) sendHmcCfg() {
	var cfg sensor.HmcConfig
	if n.cfg.Hmc != nil {
		cfg = n.cfg.Hmc.Config()
	}
	mg := cfg.MgPerDigitCenti()
	n.send([8]byte{
		0, FrameHmcCfg,
		cfg.Range, cfg.DataRate, cfg.Samples, cfg.Mode,
		uint8(mg), uint8(mg >> 8),
	})
}

func (n *Node) sendEvent(ev detector.Event) {
	n.send(ev.EncodeFrame())
}

func (n *Node) sendEventState() {
	sector, elev := n.det.SectorState()
	n.send(detector.EncodeStateFrame(sector, elev))
}
