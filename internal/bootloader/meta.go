// Copyright (c) 2026 Pavel Pernicka
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package bootloader

import (
	"encoding/binary"
	"fmt"

	"github.com/pavelpernicka/can-sensory/internal/canbus"
	"github.com/pavelpernicka/can-sensory/internal/flash"
	"github.com/pavelpernicka/can-sensory/internal/imagecrc"
)

// MetaMagic marks a committed application image.
const MetaMagic uint32 = 0xB00710AD

// The reserved metadata word carries the device ID it was flashed for,
// under a recognizable tag so pre-tag images still validate.
const (
	reservedDeviceIDTag  uint32 = 0xA5D10000
	reservedTagMask      uint32 = 0xFFFFFF00
	reservedDeviceIDMask uint32 = 0x000000FF
)

// MetaSize is the on-flash metadata footprint in bytes.
const MetaSize = 16

// Meta describes the committed application image. It lives alone in the
// last flash page and is the sole commit point of an update.
type Meta struct {
	Magic    uint32
	Size     uint32
	CRC32    uint32
	Reserved uint32
}

// EncodeReserved tags devID into the reserved word.
func EncodeReserved(devID uint8) uint32 {
	return reservedDeviceIDTag | uint32(devID)
}

// ReservedDeviceID extracts the device ID from a tagged reserved word.
func ReservedDeviceID(v uint32) (uint8, bool) {
	if v&reservedTagMask != reservedDeviceIDTag {
		return 0, false
	}
	return uint8(v & reservedDeviceIDMask), true
}

// Encode renders the metadata in its 16-byte little-endian layout.
func (m Meta) Encode() [MetaSize]byte {
	var b [MetaSize]byte
	binary.LittleEndian.PutUint32(b[0:4], m.Magic)
	binary.LittleEndian.PutUint32(b[4:8], m.Size)
	binary.LittleEndian.PutUint32(b[8:12], m.CRC32)
	binary.LittleEndian.PutUint32(b[12:16], m.Reserved)
	return b
}

// DecodeMeta parses the 16-byte layout. It does not validate the magic;
// callers decide what an unset page means.
func DecodeMeta(b [MetaSize]byte) Meta {
	return Meta{
		Magic:    binary.LittleEndian.Uint32(b[0:4]),
		Size:     binary.LittleEndian.Uint32(b[4:8]),
		CRC32:    binary.LittleEndian.Uint32(b[8:12]),
		Reserved: binary.LittleEndian.Uint32(b[12:16]),
	}
}

// DeviceIDFromMeta resolves the node's CAN device ID: the tagged reserved
// word of a committed image wins, otherwise fallback. The result is
// clamped into the addressable ID range.
func DeviceIDFromMeta(dev flash.Device, layout flash.Layout, fallback uint8) uint8 {
	id := fallback
	if meta, err := ReadMeta(dev, layout); err == nil {
		if tagged, ok := ReservedDeviceID(meta.Reserved); ok {
			id = tagged
		}
	}
	if id > canbus.MaxDeviceID {
		id = canbus.MaxDeviceID
	}
	return id
}

// ReadMeta loads the metadata record from its flash page.
func ReadMeta(dev flash.Device, layout flash.Layout) (Meta, error) {
	var b [MetaSize]byte
	if err := dev.Read(layout.MetaAddr(), b[:]); err != nil {
		return Meta{}, fmt.Errorf("read meta: %w", err)
	}
	return DecodeMeta(b), nil
}

// WriteMeta erases the metadata page and programs m.
func WriteMeta(dev flash.Device, layout flash.Layout, m Meta) error {
	if err := dev.ErasePage(layout.MetaAddr()); err != nil {
		return fmt.Errorf("erase meta page: %w", err)
	}
	w := flash.NewWriter(dev, layout.MetaAddr())
	b := m.Encode()
	if err := w.Push(b[:]); err != nil {
		return fmt.Errorf("program meta: %w", err)
	}
	return w.Flush()
}

// ComputeAppCRC hashes size bytes of the application region out of flash.
func ComputeAppCRC(dev flash.Device, layout flash.Layout, size uint32) (uint32, error) {
	acc := imagecrc.New()
	buf := make([]byte, 256)
	addr := layout.AppStart()
	for size > 0 {
		n := uint32(len(buf))
		if size < n {
			n = size
		}
		if err := dev.Read(addr, buf[:n]); err != nil {
			return 0, fmt.Errorf("read app region: %w", err)
		}
		acc.Update(buf[:n])
		addr += n
		size -= n
	}
	return acc.Sum32(), nil
}

// IsAppValid checks magic, size bounds and the full image CRC. Flash read
// errors count as invalid; a device that cannot read its own image must
// not jump to it.
func IsAppValid(dev flash.Device, layout flash.Layout) (Meta, bool) {
	meta, err := ReadMeta(dev, layout)
	if err != nil {
		return Meta{}, false
	}
	if meta.Magic != MetaMagic {
		return Meta{}, false
	}
	if meta.Size == 0 || meta.Size > layout.AppMaxSize() {
		return Meta{}, false
	}
	crc, err := ComputeAppCRC(dev, layout, meta.Size)
	if err != nil || crc != meta.CRC32 {
		return Meta{}, false
	}
	return meta, true
}
