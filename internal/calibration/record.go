// Copyright (c) 2026 Pavel Pernicka
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package calibration holds the node's persisted calibration record: the
// geometric parameters the event detector runs on, magnetometer trim, and
// the stream/sensor configuration. The record is stored in a dedicated
// flash page as a versioned, CRC-protected blob; older on-flash layouts
// (versions 1 and 2) are migrated forward at load time.
package calibration

const (
	// MinSectors..MaxSectors bound the angular partition; DefaultSectors
	// is substituted whenever a loaded value is out of range.
	MinSectors     = 1
	MaxSectors     = 16
	DefaultSectors = 6

	maxIntervalMS = 60000
)

// Record is the current (version 3) calibration content. Fixed-point units
// follow the wire protocol: milligauss for field values, centidegrees for
// angles, centi-units for the elevation curve.
type Record struct {
	CenterXmg int16
	CenterYmg int16
	CenterZmg int16

	RotateXYcdeg int16
	RotateXZcdeg int16
	RotateYZcdeg int16

	KeepoutRadMg   uint16
	ZLimitMg       int16
	ZMaxMg         int16
	ElevCurveCenti uint16
	DataRadiusMg   uint16

	MagOffsetX int16
	MagOffsetY int16
	MagOffsetZ int16

	EarthXmg   int16
	EarthYmg   int16
	EarthZmg   int16
	EarthValid bool

	StreamEnableMask uint8
	IntervalMagMS    uint16
	IntervalAccMS    uint16
	IntervalEnvMS    uint16
	IntervalEventMS  uint16

	NumSectors uint8

	HmcRange    uint8
	HmcDataRate uint8
	HmcSamples  uint8
	HmcMode     uint8

	Reserved0 uint16
}

// Defaults returns the compiled-in record used when flash holds nothing
// trustworthy. Values match the reference firmware.
func Defaults() Record {
	return Record{
		KeepoutRadMg:     1000,
		ZLimitMg:         150,
		ZMaxMg:           405,
		ElevCurveCenti:   100,
		DataRadiusMg:     3000,
		StreamEnableMask: 0x0F,
		IntervalMagMS:    200,
		IntervalAccMS:    200,
		IntervalEnvMS:    1000,
		IntervalEventMS:  250,
		NumSectors:       DefaultSectors,
		HmcRange:         7, // 8.1 gauss
		HmcDataRate:      6, // 75 Hz
		HmcSamples:       0, // 1 sample averaged
		HmcMode:          0, // continuous
	}
}

// Sanitize clamps fields that corrupt or foreign data could have driven out
// of range. Runs after every load.
func (r *Record) Sanitize() {
	if r.NumSectors < MinSectors || r.NumSectors > MaxSectors {
		r.NumSectors = DefaultSectors
	}
}

// SetEarth overwrites the captured Earth-field vector.
func (r *Record) SetEarth(x, y, z int16, valid bool) {
	r.EarthXmg = x
	r.EarthYmg = y
	r.EarthZmg = z
	r.EarthValid = valid
}

// SetStreamConfig replaces the transmit intervals and enable mask.
// Intervals are clamped to one minute; the mask keeps its low four bits.
func (r *Record) SetStreamConfig(magMS, accMS, envMS, evtMS uint16, enableMask uint8) {
	clamp := func(v uint16) uint16 {
		if v > maxIntervalMS {
			return maxIntervalMS
		}
		return v
	}
	r.IntervalMagMS = clamp(magMS)
	r.IntervalAccMS = clamp(accMS)
	r.IntervalEnvMS = clamp(envMS)
	r.IntervalEventMS = clamp(evtMS)
	r.StreamEnableMask = enableMask & 0x0F
}

// SetHmcConfig replaces the magnetometer register configuration.
func (r *Record) SetHmcConfig(rng, dataRate, samples, mode uint8) {
	r.HmcRange = rng
	r.HmcDataRate = dataRate
	r.HmcSamples = samples
	r.HmcMode = mode
}
