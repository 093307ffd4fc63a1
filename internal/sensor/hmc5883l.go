// Copyright (c) 2026 Pavel Pernicka
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensor

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"

	"github.com/pavelpernicka/can-sensory/internal/detector"
)

// HMC5883L register map, the subset this driver touches.
const (
	hmcAddr = 0x1E

	hmcRegConfigA = 0x00
	hmcRegConfigB = 0x01
	hmcRegMode    = 0x02
	hmcRegDataX   = 0x03
	hmcRegIDA     = 0x0A
)

// ErrHMCRange marks a rejected configuration; the caller maps it to a
// range-class protocol status.
var ErrHMCRange = fmt.Errorf("hmc5883l: config out of range")

// HMC5883L drives the magnetometer over I2C. It implements MagSource and
// HmcControl. Not safe for concurrent use; the node loop owns it.
type HMC5883L struct {
	dev i2c.Dev
	cfg HmcConfig

	// Raw-digit offsets subtracted before scaling, from calibration.
	OffX, OffY, OffZ int16
}

// NewHMC5883L probes the chip ID and applies cfg.
func NewHMC5883L(bus i2c.Bus, cfg HmcConfig) (*HMC5883L, error) {
	h := &HMC5883L{dev: i2c.Dev{Bus: bus, Addr: hmcAddr}}

	id := make([]byte, 3)
	if err := h.dev.Tx([]byte{hmcRegIDA}, id); err != nil {
		return nil, fmt.Errorf("hmc5883l: read ID: %w", err)
	}
	if id[0] != 'H' || id[1] != '4' || id[2] != '3' {
		return nil, fmt.Errorf("hmc5883l: unexpected ID %q", id)
	}

	if err := h.Configure(cfg); err != nil {
		return nil, err
	}
	return h, nil
}

// Configure writes the three configuration registers. The stored config
// changes only when all writes succeed.
func (h *HMC5883L) Configure(cfg HmcConfig) error {
	if !cfg.Valid() {
		return ErrHMCRange
	}
	regs := [][2]byte{
		{hmcRegConfigA, cfg.Samples<<5 | cfg.DataRate<<2},
		{hmcRegConfigB, cfg.Range << 5},
		{hmcRegMode, cfg.Mode & 0x03},
	}
	for _, r := range regs {
		if err := h.dev.Tx(r[:], nil); err != nil {
			return fmt.Errorf("hmc5883l: write reg 0x%02X: %w", r[0], err)
		}
	}
	h.cfg = cfg
	return nil
}

// Config returns the last applied configuration.
func (h *HMC5883L) Config() HmcConfig { return h.cfg }

// SetOffsets installs the raw-digit calibration offsets.
func (h *HMC5883L) SetOffsets(x, y, z int16) {
	h.OffX, h.OffY, h.OffZ = x, y, z
}

// ReadMag reads the output registers and converts to milligauss. The
// chip orders its axes X, Z, Y, big-endian.
func (h *HMC5883L) ReadMag() (detector.MagSample, bool) {
	raw := make([]byte, 6)
	if err := h.dev.Tx([]byte{hmcRegDataX}, raw); err != nil {
		return detector.MagSample{}, false
	}

	x := int16(uint16(raw[0])<<8 | uint16(raw[1]))
	z := int16(uint16(raw[2])<<8 | uint16(raw[3]))
	y := int16(uint16(raw[4])<<8 | uint16(raw[5]))

	scale := h.cfg.MgPerDigitCenti()
	if scale == 0 {
		return detector.MagSample{}, false
	}

	return detector.MagSample{
		X: scaleDigits(x-h.OffX, scale),
		Y: scaleDigits(y-h.OffY, scale),
		Z: scaleDigits(z-h.OffZ, scale),
	}, true
}

func scaleDigits(digits int16, centiMgPerDigit uint16) int16 {
	v := int32(digits) * int32(centiMgPerDigit) / 100
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
