// Copyright (c) 2026 Pavel Pernicka
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package imagecrc implements the CRC-32 variant used by the firmware
// transfer protocol and the application image validity check.
//
// This is the MSB-first (non-reflected) CRC-32 with polynomial 0x04C11DB7,
// initial value 0xFFFFFFFF and a final complement. It is NOT the reflected
// IEEE CRC-32 from hash/crc32; the two produce different checksums for the
// same input, and the wire protocol fixes this variant.
package imagecrc

const poly = 0x04C11DB7

var table = func() [256]uint32 {
	var t [256]uint32
	for i := 0; i < 256; i++ {
		crc := uint32(i) << 24
		for bit := 0; bit < 8; bit++ {
			if crc&0x80000000 != 0 {
				crc = (crc << 1) ^ poly
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return t
}()

// Accumulator is a streaming CRC state. The zero value is not ready for use;
// call Reset (or use New) before the first Update.
type Accumulator struct {
	crc uint32
}

// New returns an accumulator ready to receive data.
func New() *Accumulator {
	a := &Accumulator{}
	a.Reset()
	return a
}

// Reset restores the accumulator to its initial state.
func (a *Accumulator) Reset() {
	a.crc = 0xFFFFFFFF
}

// Update folds p into the running CRC.
func (a *Accumulator) Update(p []byte) {
	crc := a.crc
	for _, b := range p {
		crc = (crc << 8) ^ table[byte(crc>>24)^b]
	}
	a.crc = crc
}

// Sum32 returns the CRC over everything written since the last Reset.
// It does not modify the accumulator; more data may still be appended.
func (a *Accumulator) Sum32() uint32 {
	return ^a.crc
}

// Checksum computes the CRC of p in one shot.
func Checksum(p []byte) uint32 {
	a := New()
	a.Update(p)
	return a.Sum32()
}
