// Copyright (c) 2026 Pavel Pernicka
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import "errors"

// Field identifies one settable calibration value on the command surface.
// Wire values are stable; new fields append.
type Field uint8

const (
	FieldCenterX    Field = 1
	FieldCenterY    Field = 2
	FieldCenterZ    Field = 3
	FieldRotateXY   Field = 4
	FieldRotateXZ   Field = 5
	FieldRotateYZ   Field = 6
	FieldKeepoutRad Field = 7
	FieldZLimit     Field = 8
	FieldDataRadius Field = 9
	FieldMagOffsetX Field = 10
	FieldMagOffsetY Field = 11
	FieldMagOffsetZ Field = 12
	FieldEarthX     Field = 13
	FieldEarthY     Field = 14
	FieldEarthZ     Field = 15
	FieldEarthValid Field = 16
	FieldNumSectors Field = 17
	FieldZMax       Field = 18
	FieldElevCurve  Field = 19

	FieldFirst = FieldCenterX
	FieldLast  = FieldElevCurve
)

var (
	// ErrUnknownField reports a field ID outside the defined range.
	ErrUnknownField = errors.New("calibration: unknown field")
	// ErrFieldRange reports a value outside the field's legal range.
	ErrFieldRange = errors.New("calibration: field value out of range")
)

// SetField assigns one field by wire ID. Unsigned fields reject negative
// values; the sector count enforces its 1..16 range.
func (r *Record) SetField(f Field, v int16) error {
	switch f {
	case FieldCenterX:
		r.CenterXmg = v
	case FieldCenterY:
		r.CenterYmg = v
	case FieldCenterZ:
		r.CenterZmg = v
	case FieldRotateXY:
		r.RotateXYcdeg = v
	case FieldRotateXZ:
		r.RotateXZcdeg = v
	case FieldRotateYZ:
		r.RotateYZcdeg = v
	case FieldKeepoutRad:
		if v < 0 {
			return ErrFieldRange
		}
		r.KeepoutRadMg = uint16(v)
	case FieldZLimit:
		r.ZLimitMg = v
	case FieldDataRadius:
		if v < 0 {
			return ErrFieldRange
		}
		r.DataRadiusMg = uint16(v)
	case FieldMagOffsetX:
		r.MagOffsetX = v
	case FieldMagOffsetY:
		r.MagOffsetY = v
	case FieldMagOffsetZ:
		r.MagOffsetZ = v
	case FieldEarthX:
		r.EarthXmg = v
	case FieldEarthY:
		r.EarthYmg = v
	case FieldEarthZ:
		r.EarthZmg = v
	case FieldEarthValid:
		r.EarthValid = v != 0
	case FieldNumSectors:
		if v < MinSectors || v > MaxSectors {
			return ErrFieldRange
		}
		r.NumSectors = uint8(v)
	case FieldZMax:
		r.ZMaxMg = v
	case FieldElevCurve:
		if v < 0 {
			return ErrFieldRange
		}
		r.ElevCurveCenti = uint16(v)
	default:
		return ErrUnknownField
	}
	return nil
}

// GetField reads one field by wire ID.
func (r *Record) GetField(f Field) (int16, error) {
	switch f {
	case FieldCenterX:
		return r.CenterXmg, nil
	case FieldCenterY:
		return r.CenterYmg, nil
	case FieldCenterZ:
		return r.CenterZmg, nil
	case FieldRotateXY:
		return r.RotateXYcdeg, nil
	case FieldRotateXZ:
		return r.RotateXZcdeg, nil
	case FieldRotateYZ:
		return r.RotateYZcdeg, nil
	case FieldKeepoutRad:
		return int16(r.KeepoutRadMg), nil
	case FieldZLimit:
		return r.ZLimitMg, nil
	case FieldDataRadius:
		return int16(r.DataRadiusMg), nil
	case FieldMagOffsetX:
		return r.MagOffsetX, nil
	case FieldMagOffsetY:
		return r.MagOffsetY, nil
	case FieldMagOffsetZ:
		return r.MagOffsetZ, nil
	case FieldEarthX:
		return r.EarthXmg, nil
	case FieldEarthY:
		return r.EarthYmg, nil
	case FieldEarthZ:
		return r.EarthZmg, nil
	case FieldEarthValid:
		if r.EarthValid {
			return 1, nil
		}
		return 0, nil
	case FieldNumSectors:
		return int16(r.NumSectors), nil
	case FieldZMax:
		return r.ZMaxMg, nil
	case FieldElevCurve:
		return int16(r.ElevCurveCenti), nil
	default:
		return 0, ErrUnknownField
	}
}
