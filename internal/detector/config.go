// Copyright (c) 2026 Pavel Pernicka
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package detector converts raw magnetometer samples into semantic sector
// events: a rotating target passing through angular zones around a
// calibrated center. The geometry transform classifies each sample into a
// (sector, elevation) pair; the state machine turns classified samples into
// a typed event stream; a bounded queue decouples detection (sample rate)
// from transmission (stream rate).
package detector

import "github.com/pavelpernicka/can-sensory/internal/calibration"

const (
	// smoothLen is the size of the smoothing ring; no events are emitted
	// until it has filled once after init.
	smoothLen = 5

	// MinSectors..MaxSectors bound the angular partition.
	MinSectors     = 1
	MaxSectors     = 16
	DefaultSectors = 6

	// maxEventsPerStep is the most events one sample can produce.
	maxEventsPerStep = 4

	// passingWindowMS: an adjacent-sector change faster than this is a
	// sweep-through, not a settled dwell.
	passingWindowMS = 20
)

// MagSample is one magnetometer reading in milligauss.
type MagSample struct {
	X, Y, Z int16
}

// Config is the calibration-derived geometry and timing of the detector.
// It is replaced wholesale on calibration apply; there is no partial update.
type Config struct {
	CenterX float32
	CenterY float32
	CenterZ float32

	RotateXYDeg float32
	RotateXZDeg float32
	RotateYZDeg float32

	KeepoutRad float32
	ZLimit     float32
	ZMax       float32
	ElevCurve  float32
	DataRadius float32

	NumSectors      uint8
	ChangeThreshold float32

	DeactivationTimeoutMS uint32
	SessionTimeoutMS      uint32
}

// DefaultConfig matches the reference firmware's power-on values.
func DefaultConfig() Config {
	return Config{
		KeepoutRad:            1000,
		ZLimit:                150,
		ZMax:                  405,
		ElevCurve:             1.0,
		DataRadius:            3000,
		NumSectors:            DefaultSectors,
		ChangeThreshold:       3.0,
		DeactivationTimeoutMS: 5000,
		SessionTimeoutMS:      10000,
	}
}

// ConfigFromCalibration converts the fixed-point calibration record into
// detector units (centidegrees to degrees, centi-curve to a float exponent).
func ConfigFromCalibration(rec calibration.Record) Config {
	cfg := DefaultConfig()
	cfg.CenterX = float32(rec.CenterXmg)
	cfg.CenterY = float32(rec.CenterYmg)
	cfg.CenterZ = float32(rec.CenterZmg)
	cfg.RotateXYDeg = float32(rec.RotateXYcdeg) / 100
	cfg.RotateXZDeg = float32(rec.RotateXZcdeg) / 100
	cfg.RotateYZDeg = float32(rec.RotateYZcdeg) / 100
	cfg.KeepoutRad = float32(rec.KeepoutRadMg)
	cfg.ZLimit = float32(rec.ZLimitMg)
	cfg.ZMax = float32(rec.ZMaxMg)
	cfg.ElevCurve = float32(rec.ElevCurveCenti) / 100
	cfg.DataRadius = float32(rec.DataRadiusMg)
	cfg.NumSectors = sanitizeSectors(rec.NumSectors)
	return cfg
}

func sanitizeSectors(n uint8) uint8 {
	if n < MinSectors || n > MaxSectors {
		return DefaultSectors
	}
	return n
}
