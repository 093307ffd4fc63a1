// Copyright (c) 2026 Pavel Pernicka
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package bootloader

import (
	"encoding/binary"
	"log"

	"github.com/pavelpernicka/can-sensory/internal/canbus"
	"github.com/pavelpernicka/can-sensory/internal/flash"
)

// Config carries the per-device identity and wiring of a Handler.
type Config struct {
	DeviceID  uint8
	Bridge    I2CBridge // nil when no I2C master is available
	ForceStay bool
	// ResetCause is the raw reset-status byte reported in the startup
	// frame; purely diagnostic.
	ResetCause uint8
}

// Handler runs one device's bootloader protocol: it consumes command
// frames, drives the transfer state machine and answers on the status ID.
type Handler struct {
	cfg    Config
	bus    canbus.Bus
	dev    flash.Device
	layout flash.Layout

	transfer *Transfer

	stay          bool
	bootRequested bool
	lastBootError BootError

	txBuf [I2CMaxTx]byte
	txLen uint8
}

// NewHandler wires a handler; it sends nothing until Startup or Poll.
func NewHandler(bus canbus.Bus, dev flash.Device, layout flash.Layout, cfg Config) *Handler {
	return &Handler{
		cfg:      cfg,
		bus:      bus,
		dev:      dev,
		layout:   layout,
		transfer: NewTransfer(dev, layout),
		stay:     cfg.ForceStay,
	}
}

// StayRequested reports whether the host asked the device to hold in the
// bootloader past the autorun window.
func (h *Handler) StayRequested() bool { return h.stay }

// BootRequested reports a pending BOOT_APP; the owner clears it by
// attempting the jump.
func (h *Handler) BootRequested() bool { return h.bootRequested }

// ClearBootRequest acknowledges a taken boot request.
func (h *Handler) ClearBootRequest() { h.bootRequested = false }

// ReportBootError records a failed boot attempt and announces it.
func (h *Handler) ReportBootError(code BootError) error {
	h.lastBootError = code
	return h.sendStatus(StatusErrState, uint8(code))
}

// LastBootError returns the sticky diagnostic from the last boot attempt.
func (h *Handler) LastBootError() BootError { return h.lastBootError }

// Startup announces the bootloader on the bus: "BLST", identity, and
// validity/bridge/stay flags.
func (h *Handler) Startup() error {
	var flags uint8
	if _, ok := IsAppValid(h.dev, h.layout); ok {
		flags |= 1 << 0
	}
	if h.cfg.Bridge != nil {
		flags |= 1 << 1
	}
	if h.cfg.ForceStay {
		flags |= 1 << 2
	}
	return h.send('B', 'L', 'S', 'T', h.cfg.DeviceID, ProtoVersion, flags, h.cfg.ResetCause)
}

// Poll consumes at most one pending bus frame. Frames outside this
// device's command ID are ignored.
func (h *Handler) Poll() error {
	f, ok, err := h.bus.TryRecv()
	if err != nil || !ok {
		return err
	}
	if f.ID != canbus.CommandID(h.cfg.DeviceID) {
		return nil
	}
	return h.Handle(f.Payload())
}

// Handle dispatches one command payload.
func (h *Handler) Handle(p []byte) error {
	if len(p) == 0 {
		return nil
	}

	switch p[0] {
	case CmdPing:
		if len(p) > 1 && p[1] == StayByte {
			h.stay = true
		}
		if err := h.sendStatus(StatusOK, 0x01); err != nil {
			return err
		}
		return h.sendPong()

	case CmdCheck:
		return h.sendCheckInfo()

	case CmdStart:
		if len(p) < 5 {
			return h.sendStatus(StatusErrGeneric, 0)
		}
		size := binary.LittleEndian.Uint32(p[1:5])
		st, extra, err := h.transfer.Start(size)
		if err != nil {
			log.Printf("bootloader: start: %v", err)
		}
		return h.sendStatus(st, extra)

	case CmdData:
		st, extra, err := h.transfer.Data(p[1:])
		if err != nil {
			log.Printf("bootloader: data: %v", err)
		}
		return h.sendStatus(st, extra)

	case CmdEnd:
		if !h.transfer.Updating() {
			return h.sendStatus(StatusErrState, 0)
		}
		if len(p) < 5 {
			h.transfer.Abort()
			return h.sendStatus(StatusErrGeneric, 0)
		}
		hostCRC := binary.LittleEndian.Uint32(p[1:5])
		st, extra, err := h.transfer.End(hostCRC, h.cfg.DeviceID)
		if err != nil {
			log.Printf("bootloader: end: %v", err)
		}
		return h.sendStatus(st, extra)

	case CmdBootApp:
		h.lastBootError = BootErrNone
		h.bootRequested = true
		return h.sendStatus(StatusOK, 0x40)

	case CmdBootStatus:
		return h.sendStatus(StatusOK, uint8(h.lastBootError))

	case CmdI2CBufClear:
		h.txLen = 0
		return h.sendStatus(StatusOK, 0)

	case CmdI2CBufAppend:
		if len(p) <= 1 {
			return h.sendStatus(StatusErrGeneric, 0)
		}
		if h.cfg.Bridge == nil {
			return h.sendStatus(StatusErrState, 0xE0)
		}
		add := len(p) - 1
		if int(h.txLen)+add > I2CMaxTx {
			return h.sendStatus(StatusErrRange, I2CMaxTx)
		}
		copy(h.txBuf[h.txLen:], p[1:])
		h.txLen += uint8(add)
		return h.sendStatus(StatusOK, h.txLen)

	case CmdI2CXfer:
		if len(p) < 3 {
			return h.sendStatus(StatusErrGeneric, 0)
		}
		if h.cfg.Bridge == nil {
			return h.sendStatus(StatusErrState, 0xE0)
		}
		addr7 := p[1] & 0x7F
		rxLen := p[2]
		if rxLen > I2CMaxRx {
			return h.sendStatus(StatusErrRange, 0)
		}
		rx := make([]byte, rxLen)
		err := h.cfg.Bridge.Transfer(addr7, h.txBuf[:h.txLen], rx)
		h.txLen = 0
		if err != nil {
			log.Printf("bootloader: i2c xfer addr 0x%02X: %v", addr7, err)
			return h.sendStatus(StatusErrGeneric, 1)
		}
		return h.sendChunked(FrameI2CRxData, rx)

	case CmdI2CScan:
		if h.cfg.Bridge == nil {
			return h.sendStatus(StatusErrState, 0xE0)
		}
		first, last := uint8(I2CScanFirst), uint8(I2CScanLast)
		if len(p) >= 3 {
			first, last = p[1], p[2]
		}
		if first > 0x7F || last > 0x7F || first > last {
			return h.sendStatus(StatusErrRange, 0)
		}
		var found [16]byte
		for addr := first; ; addr++ {
			if h.cfg.Bridge.Probe(addr) {
				found[addr>>3] |= 1 << (addr & 7)
			}
			if addr == last || addr == 0x7F {
				break
			}
		}
		return h.sendChunked(FrameI2CScan, found[:])

	default:
		return h.sendStatus(StatusErrGeneric, 0xFF)
	}
}

func (h *Handler) send(data ...byte) error {
	return h.bus.Send(canbus.New(canbus.StatusID(h.cfg.DeviceID), data...))
}

func (h *Handler) sendStatus(st Status, extra uint8) error {
	return h.send(uint8(st), extra, 0, 0, 0, 0, 0, 0)
}

func (h *Handler) sendPong() error {
	var stay uint8
	if h.stay {
		stay = 1
	}
	return h.send('P', 'O', 'N', 'G', h.cfg.DeviceID, ProtoVersion, stay, 0xA5)
}

func (h *Handler) sendCheckInfo() error {
	var size, crc uint32
	var valid uint8
	if meta, ok := IsAppValid(h.dev, h.layout); ok {
		valid = 1
		size = meta.Size
		crc = meta.CRC32
	}
	var updating uint8
	if h.transfer.Updating() {
		updating = 1
	}

	summary := [8]byte{uint8(StatusOK), FrameCheckSummary, valid, updating}
	binary.LittleEndian.PutUint32(summary[4:], size)
	if err := h.send(summary[:]...); err != nil {
		return err
	}

	crcFrame := [8]byte{uint8(StatusOK), FrameCheckCRC}
	binary.LittleEndian.PutUint32(crcFrame[2:6], crc)
	crcFrame[6] = h.cfg.DeviceID
	crcFrame[7] = ProtoVersion
	return h.send(crcFrame[:]...)
}

// sendChunked splits a buffer over status frames of four data bytes each:
// [OK, subtype, offset, total, d0..d3].
func (h *Handler) sendChunked(subtype uint8, data []byte) error {
	if len(data) == 0 {
		return h.send(uint8(StatusOK), subtype, 0, 0, 0, 0, 0, 0)
	}
	for off := 0; off < len(data); off += 4 {
		frame := [8]byte{uint8(StatusOK), subtype, uint8(off), uint8(len(data))}
		copy(frame[4:], data[off:])
		if err := h.send(frame[:]...); err != nil {
			return err
		}
	}
	return nil
}
