// Copyright (c) 2026 Pavel Pernicka
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package detector

import "math"

// Project classifies one translated/rotated sample into its angular sector
// and elevation byte.
//
// Order matters and matches the calibration pipeline: the z center offset is
// removed before rotation, the x/y center offsets after. Samples inside the
// keepout radius or below the z limit are gated to (0, 0), "no target",
// before any azimuth math, because atan2 is numerically unstable near the
// rotation axis.
func (c Config) Project(x, y, z float32) (sector, elevation uint8) {
	z -= c.CenterZ
	xr, yr, zr := c.rotate(x, y, z)

	dx := xr - c.CenterX
	dy := yr - c.CenterY
	distance := float32(math.Sqrt(float64(dx*dx + dy*dy)))
	if distance <= c.KeepoutRad || zr < c.ZLimit {
		return 0, 0
	}

	azimuth := float32(math.Atan2(float64(dy), float64(dx))) * 180 / math.Pi
	for azimuth < 0 {
		azimuth += 360
	}
	for azimuth >= 360 {
		azimuth -= 360
	}
	sector = uint8(azimuth/(360/float32(c.NumSectors))) + 1

	span := c.ZMax - c.ZLimit
	if span < 1 {
		span = 1
	}
	normalized := (zr - c.ZLimit) / span
	if normalized < 0 {
		normalized = 0
	} else if normalized > 1 {
		normalized = 1
	}

	curve := c.ElevCurve
	if curve < 0.01 {
		curve = 0.01
	}
	e := float32(math.Pow(float64(normalized), float64(curve))) * 255
	return sector, clampU8(int32(e + 0.5))
}

// rotate applies the three plane rotations in fixed XY, XZ, YZ order.
func (c Config) rotate(x, y, z float32) (xr, yr, zr float32) {
	sinXY, cosXY := sincosDeg(c.RotateXYDeg)
	sinXZ, cosXZ := sincosDeg(c.RotateXZDeg)
	sinYZ, cosYZ := sincosDeg(c.RotateYZDeg)

	x1 := x*cosXY - y*sinXY
	y1 := x*sinXY + y*cosXY
	z1 := z

	x2 := x1*cosXZ - z1*sinXZ
	z2 := x1*sinXZ + z1*cosXZ
	y2 := y1

	y3 := y2*cosYZ - z2*sinYZ
	z3 := y2*sinYZ + z2*cosYZ

	return x2, y3, z3
}

func sincosDeg(deg float32) (sin, cos float32) {
	rad := float64(deg) * math.Pi / 180
	s, c := math.Sincos(rad)
	return float32(s), float32(c)
}

func clampU8(v int32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
