// Copyright (c) 2026 Pavel Pernicka
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package node

import (
	"errors"
	"log"

	"github.com/pavelpernicka/can-sensory/internal/calibration"
	"github.com/pavelpernicka/can-sensory/internal/canbus"
	"github.com/pavelpernicka/can-sensory/internal/detector"
	"github.com/pavelpernicka/can-sensory/internal/sensor"
)

// Config wires a Node. Acc, Env and Hmc may be nil; the matching streams
// and commands then report absence instead of data.
type Config struct {
	Bus      canbus.Bus
	Store    *calibration.Store
	Mag      sensor.MagSource
	Acc      sensor.AccSource
	Env      sensor.EnvSource
	Hmc      sensor.HmcControl
	DeviceID uint8
	// ResetCause is the raw reset-status byte for the startup frame.
	ResetCause uint8
}

type stream struct {
	intervalMS uint16
	enabled    bool
	nextTxMS   uint32
}

// Node is the application firmware loop. All state changes happen inside
// Start, Tick and HandleCommand on the caller's goroutine.
type Node struct {
	cfg Config
	det *detector.Detector

	streams [StreamEvent + 1]stream

	nextMagSampleMS uint32
	nextAccSampleMS uint32
	lastMagDataMS   uint32

	mag      detector.MagSample
	magValid bool
	acc      sensor.AccSample
	accValid bool

	bootloaderReq bool
}

// New builds a node and applies the store's calibration to the detector
// and sensor. It sends nothing until Start.
func New(cfg Config) *Node {
	n := &Node{
		cfg: cfg,
		det: detector.New(detector.DefaultConfig()),
	}
	n.applyCalibration()
	return n
}

// BootloaderRequested reports a pending ENTER_BOOTLOADER command; the
// owner reboots into the bootloader to honor it.
func (n *Node) BootloaderRequested() bool { return n.bootloaderReq }

// Detector exposes the live detector, mainly for diagnostics.
func (n *Node) Detector() *detector.Detector { return n.det }

// applyCalibration pushes the current record into the runtime: detector
// geometry and, when the magnetometer supports it, raw-digit offsets.
func (n *Node) applyCalibration() {
	rec := n.cfg.Store.Record()
	n.det.ApplyConfig(detector.ConfigFromCalibration(rec))
	if h, ok := n.cfg.Hmc.(interface{ SetOffsets(x, y, z int16) }); ok {
		h.SetOffsets(rec.MagOffsetX, rec.MagOffsetY, rec.MagOffsetZ)
	}
}

// loadStreamConfig resets the stream table from the calibration record
// and restarts every transmit deadline.
func (n *Node) loadStreamConfig(nowMS uint32) {
	rec := n.cfg.Store.Record()
	n.streams[StreamMag].intervalMS = rec.IntervalMagMS
	n.streams[StreamAcc].intervalMS = rec.IntervalAccMS
	n.streams[StreamEnv].intervalMS = rec.IntervalEnvMS
	n.streams[StreamEvent].intervalMS = rec.IntervalEventMS
	for sid := StreamMag; sid <= StreamEvent; sid++ {
		n.streams[sid].enabled = rec.StreamEnableMask&(1<<(sid-1)) != 0
		n.streams[sid].nextTxMS = nowMS + uint32(n.streams[sid].intervalMS)
	}
}

// storeStreamConfig mirrors the live stream table back into the record so
// a later CALIB_SAVE persists it.
func (n *Node) storeStreamConfig() {
	var mask uint8
	for sid := StreamMag; sid <= StreamEvent; sid++ {
		if n.streams[sid].enabled {
			mask |= 1 << (sid - 1)
		}
	}
	rec := n.cfg.Store.Record()
	rec.SetStreamConfig(
		n.streams[StreamMag].intervalMS,
		n.streams[StreamAcc].intervalMS,
		n.streams[StreamEnv].intervalMS,
		n.streams[StreamEvent].intervalMS,
		mask,
	)
	n.cfg.Store.Update(rec)
}

// Start announces the node and arms all deadlines.
func (n *Node) Start(nowMS uint32) {
	n.loadStreamConfig(nowMS)
	n.nextMagSampleMS = nowMS + magSamplePeriodMS
	n.nextAccSampleMS = nowMS + accSamplePeriodMS
	n.lastMagDataMS = nowMS
	n.sendStartup()
}

// Tick runs one loop iteration at nowMS: drains pending commands, samples
// sensors on their cadence, forwards detector events and serves the
// periodic streams.
func (n *Node) Tick(nowMS uint32) error {
	for {
		f, ok, err := n.cfg.Bus.TryRecv()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if f.ID == canbus.CommandID(n.cfg.DeviceID) {
			n.HandleCommand(f.Payload(), nowMS)
		}
	}

	if timeDue(nowMS, n.nextMagSampleMS) {
		if s, ok := n.cfg.Mag.ReadMag(); ok {
			n.mag = s
			n.magValid = true
			n.lastMagDataMS = nowMS
			// The sensor's z axis points opposite the detector's frame.
			n.det.ProcessSample(detector.MagSample{X: s.X, Y: s.Y, Z: -s.Z}, nowMS)
		}
		scheduleNext(&n.nextMagSampleMS, magSamplePeriodMS, nowMS)
	}

	if timeDue(nowMS, n.nextAccSampleMS) {
		if n.cfg.Acc != nil {
			if a, ok := n.cfg.Acc.ReadAcc(); ok {
				n.acc = a
				n.accValid = true
			}
		}
		scheduleNext(&n.nextAccSampleMS, accSamplePeriodMS, nowMS)
	}

	if nowMS-n.lastMagDataMS > noDataTimeoutMS {
		n.det.PostNoData(nowMS)
	}

	for {
		ev, ok := n.det.PopEvent()
		if !ok {
			break
		}
		if n.streams[StreamEvent].enabled {
			n.sendEvent(ev)
		}
	}

	n.serviceStream(StreamMag, nowMS, func() {
		if n.magValid {
			n.sendMag()
		}
	})
	n.serviceStream(StreamAcc, nowMS, func() {
		if n.accValid {
			n.sendAcc()
		}
	})
	n.serviceStream(StreamEnv, nowMS, func() {
		if n.cfg.Env != nil {
			if e, ok := n.cfg.Env.ReadEnv(); ok {
				n.sendEnv(e)
			}
		}
	})
	n.serviceStream(StreamEvent, nowMS, n.sendEventState)

	return nil
}

func (n *Node) serviceStream(sid int, nowMS uint32, tx func()) {
	st := &n.streams[sid]
	if !st.enabled || st.intervalMS == 0 || !timeDue(nowMS, st.nextTxMS) {
		return
	}
	tx()
	scheduleNext(&st.nextTxMS, uint32(st.intervalMS), nowMS)
}

// HandleCommand serves one command payload received at nowMS.
func (n *Node) HandleCommand(p []byte, nowMS uint32) {
	if len(p) == 0 {
		return
	}

	switch p[0] {
	case CmdPing:
		n.sendStatus(StatusOK, 0x01)
		n.sendPong()

	case CmdEnterBootloader:
		n.sendStatus(StatusOK, 0x40)
		n.bootloaderReq = true

	case CmdHmcSetCfg:
		if len(p) < 5 {
			n.sendStatus(StatusErrRange, CmdHmcSetCfg)
			return
		}
		if n.cfg.Hmc == nil {
			n.sendStatus(StatusErrSensor, CmdHmcSetCfg)
			return
		}
		cfg := sensor.HmcConfig{Range: p[1], DataRate: p[2], Samples: p[3], Mode: p[4]}
		if err := n.cfg.Hmc.Configure(cfg); err != nil {
			st := StatusErrSensor
			if errors.Is(err, sensor.ErrHMCRange) {
				st = StatusErrRange
			}
			n.sendStatus(st, CmdHmcSetCfg)
			return
		}
		rec := n.cfg.Store.Record()
		rec.SetHmcConfig(cfg.Range, cfg.DataRate, cfg.Samples, cfg.Mode)
		n.cfg.Store.Update(rec)
		n.sendStatus(StatusOK, CmdHmcSetCfg)
		n.sendHmcCfg()

	case CmdHmcGetCfg:
		n.sendStatus(StatusOK, CmdHmcGetCfg)
		n.sendHmcCfg()

	case CmdSetInterval:
		if len(p) < 4 {
			n.sendStatus(StatusErrRange, CmdSetInterval)
			return
		}
		sid := int(p[1])
		if sid < StreamMag || sid > StreamEvent {
			n.sendStatus(StatusErrRange, p[1])
			return
		}
		interval := uint16(p[2]) | uint16(p[3])<<8
		if interval > maxIntervalMS {
			n.sendStatus(StatusErrRange, p[1])
			return
		}
		n.streams[sid].intervalMS = interval
		n.streams[sid].nextTxMS = nowMS + uint32(interval)
		n.storeStreamConfig()
		n.sendStatus(StatusOK, p[1])
		n.sendInterval(sid)

	case CmdGetInterval:
		if len(p) >= 2 && p[1] != 0 {
			sid := int(p[1])
			if sid < StreamMag || sid > StreamEvent {
				n.sendStatus(StatusErrRange, p[1])
				return
			}
			n.sendStatus(StatusOK, p[1])
			n.sendInterval(sid)
			return
		}
		n.sendStatus(StatusOK, CmdGetInterval)
		for sid := StreamMag; sid <= StreamEvent; sid++ {
			n.sendInterval(sid)
		}

	case CmdSetStreamEnable:
		if len(p) < 3 {
			n.sendStatus(StatusErrRange, CmdSetStreamEnable)
			return
		}
		sid := int(p[1])
		if sid < StreamMag || sid > StreamEvent {
			n.sendStatus(StatusErrRange, p[1])
			return
		}
		n.streams[sid].enabled = p[2] != 0
		n.storeStreamConfig()
		n.sendStatus(StatusOK, p[1])
		n.sendInterval(sid)

	case CmdGetStatus:
		n.sendStatus(StatusOK, CmdGetStatus)
		n.sendStatusFrame()

	case CmdCalibGet:
		var field uint8
		if len(p) >= 2 {
			field = p[1]
		}
		if field == 0 {
			n.sendStatus(StatusOK, CmdCalibGet)
			n.sendCalibAll()
			return
		}
		if calibration.Field(field) < calibration.FieldFirst || calibration.Field(field) > calibration.FieldLast {
			n.sendStatus(StatusErrRange, field)
			return
		}
		n.sendStatus(StatusOK, field)
		n.sendCalibValue(calibration.Field(field))

	case CmdCalibSet:
		if len(p) < 4 {
			n.sendStatus(StatusErrRange, CmdCalibSet)
			return
		}
		field := calibration.Field(p[1])
		value := int16(uint16(p[2]) | uint16(p[3])<<8)
		rec := n.cfg.Store.Record()
		if err := rec.SetField(field, value); err != nil {
			n.sendStatus(StatusErrRange, p[1])
			return
		}
		n.cfg.Store.Update(rec)
		n.applyCalibration()
		n.sendStatus(StatusOK, p[1])
		n.sendCalibValue(field)

	case CmdCalibSave:
		n.storeStreamConfig()
		if n.cfg.Hmc != nil {
			cfg := n.cfg.Hmc.Config()
			rec := n.cfg.Store.Record()
			rec.SetHmcConfig(cfg.Range, cfg.DataRate, cfg.Samples, cfg.Mode)
			n.cfg.Store.Update(rec)
		}
		if err := n.cfg.Store.Save(); err != nil {
			log.Printf("node: calibration save: %v", err)
			n.sendStatus(StatusErrGeneric, 1)
			return
		}
		n.sendStatus(StatusOK, CmdCalibSave)
		n.sendCalibInfo(CmdCalibSave, 0)

	case CmdCalibLoad:
		if err := n.cfg.Store.Load(); err != nil {
			log.Printf("node: calibration load: %v", err)
			n.sendStatus(StatusErrGeneric, 1)
			return
		}
		n.applyCalibration()
		n.loadStreamConfig(nowMS)
		n.sendStatus(StatusOK, CmdCalibLoad)
		n.sendCalibInfo(CmdCalibLoad, 0)
		n.sendCalibAll()
		for sid := StreamMag; sid <= StreamEvent; sid++ {
			n.sendInterval(sid)
		}
		n.sendHmcCfg()

	case CmdCalibReset:
		n.cfg.Store.Reset()
		n.applyCalibration()
		n.loadStreamConfig(nowMS)
		n.sendStatus(StatusOK, CmdCalibReset)
		n.sendCalibInfo(CmdCalibReset, 0)
		n.sendCalibAll()
		for sid := StreamMag; sid <= StreamEvent; sid++ {
			n.sendInterval(sid)
		}
		n.sendHmcCfg()

	case CmdCalibCapture:
		s, ok := n.cfg.Mag.ReadMag()
		if !ok {
			n.sendStatus(StatusErrSensor, CmdCalibCapture)
			return
		}
		rec := n.cfg.Store.Record()
		rec.SetEarth(s.X, s.Y, s.Z, true)
		n.cfg.Store.Update(rec)
		n.applyCalibration()
		n.sendStatus(StatusOK, CmdCalibCapture)
		n.sendCalibInfo(CmdCalibCapture, 0)
		n.sendCalibValue(calibration.FieldEarthX)
		n.sendCalibValue(calibration.FieldEarthY)
		n.sendCalibValue(calibration.FieldEarthZ)
		n.sendCalibValue(calibration.FieldEarthValid)

	default:
		n.sendStatus(StatusErrGeneric, 0xFF)
	}
}
