// Copyright (c) 2026 Pavel Pernicka
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

// On-flash blob: magic u32 | version u16 | size u16 | payload | crc32 u32,
// all little-endian. size is the payload byte count for the declared
// version; the CRC (standard reflected CRC-32, as computed by the firmware's
// software loop) covers version, size and payload.
const (
	Magic          = 0x43414C42 // "BLAC" on a little-endian dump
	CurrentVersion = 3

	headerSize = 8 // magic + version + size
	crcSize    = 4

	payloadSizeV1 = 42
	payloadSizeV2 = 46
	payloadSizeV3 = 51

	// BlobSize is the encoded size of a current-version blob.
	BlobSize = headerSize + payloadSizeV3 + crcSize
)

var (
	// ErrNoRecord reports flash content without the calibration magic
	// (typically an erased page).
	ErrNoRecord = errors.New("calibration: no record present")
	// ErrVersion reports a magic-valid blob with an unknown version.
	ErrVersion = errors.New("calibration: unknown record version")
	// ErrSize reports a declared payload size that does not match the
	// declared version's layout.
	ErrSize = errors.New("calibration: record size mismatch")
	// ErrCRC reports an integrity failure over the blob body.
	ErrCRC = errors.New("calibration: bad record CRC")
	// ErrShort reports a buffer too small to hold the declared blob.
	ErrShort = errors.New("calibration: truncated record")
)

// Encode serializes r as a current-version blob.
func Encode(r Record) []byte {
	buf := make([]byte, BlobSize)
	le := binary.LittleEndian

	le.PutUint32(buf[0:], Magic)
	le.PutUint16(buf[4:], CurrentVersion)
	le.PutUint16(buf[6:], payloadSizeV3)

	p := buf[headerSize:]
	le.PutUint16(p[0:], uint16(r.CenterXmg))
	le.PutUint16(p[2:], uint16(r.CenterYmg))
	le.PutUint16(p[4:], uint16(r.CenterZmg))
	le.PutUint16(p[6:], uint16(r.RotateXYcdeg))
	le.PutUint16(p[8:], uint16(r.RotateXZcdeg))
	le.PutUint16(p[10:], uint16(r.RotateYZcdeg))
	le.PutUint16(p[12:], r.KeepoutRadMg)
	le.PutUint16(p[14:], uint16(r.ZLimitMg))
	le.PutUint16(p[16:], uint16(r.ZMaxMg))
	le.PutUint16(p[18:], r.ElevCurveCenti)
	le.PutUint16(p[20:], r.DataRadiusMg)
	le.PutUint16(p[22:], uint16(r.MagOffsetX))
	le.PutUint16(p[24:], uint16(r.MagOffsetY))
	le.PutUint16(p[26:], uint16(r.MagOffsetZ))
	le.PutUint16(p[28:], uint16(r.EarthXmg))
	le.PutUint16(p[30:], uint16(r.EarthYmg))
	le.PutUint16(p[32:], uint16(r.EarthZmg))
	p[34] = boolByte(r.EarthValid)
	p[35] = r.StreamEnableMask
	le.PutUint16(p[36:], r.IntervalMagMS)
	le.PutUint16(p[38:], r.IntervalAccMS)
	le.PutUint16(p[40:], r.IntervalEnvMS)
	le.PutUint16(p[42:], r.IntervalEventMS)
	p[44] = r.NumSectors
	p[45] = r.HmcRange
	p[46] = r.HmcDataRate
	p[47] = r.HmcSamples
	p[48] = r.HmcMode
	le.PutUint16(p[49:], r.Reserved0)

	crc := crc32.ChecksumIEEE(buf[4 : headerSize+payloadSizeV3])
	le.PutUint32(buf[headerSize+payloadSizeV3:], crc)
	return buf
}

// Decode parses a calibration blob, migrating version 1 and 2 layouts into
// the current record. Fields absent from an older layout take their
// compiled-in defaults. The returned record is sanitized.
func Decode(buf []byte) (Record, error) {
	le := binary.LittleEndian
	if len(buf) < headerSize {
		return Record{}, ErrShort
	}
	if le.Uint32(buf[0:]) != Magic {
		return Record{}, ErrNoRecord
	}
	version := le.Uint16(buf[4:])
	size := le.Uint16(buf[6:])

	var wantSize uint16
	switch version {
	case 1:
		wantSize = payloadSizeV1
	case 2:
		wantSize = payloadSizeV2
	case CurrentVersion:
		wantSize = payloadSizeV3
	default:
		return Record{}, fmt.Errorf("%w: %d", ErrVersion, version)
	}
	if size != wantSize {
		return Record{}, fmt.Errorf("%w: version %d declares %d bytes, want %d",
			ErrSize, version, size, wantSize)
	}
	if len(buf) < headerSize+int(size)+crcSize {
		return Record{}, ErrShort
	}

	body := buf[4 : headerSize+int(size)]
	stored := le.Uint32(buf[headerSize+int(size):])
	if crc32.ChecksumIEEE(body) != stored {
		return Record{}, ErrCRC
	}

	p := buf[headerSize:]
	r := Defaults()

	// Fields shared by every version.
	r.CenterXmg = int16(le.Uint16(p[0:]))
	r.CenterYmg = int16(le.Uint16(p[2:]))
	r.CenterZmg = int16(le.Uint16(p[4:]))
	r.RotateXYcdeg = int16(le.Uint16(p[6:]))
	r.RotateXZcdeg = int16(le.Uint16(p[8:]))
	r.RotateYZcdeg = int16(le.Uint16(p[10:]))
	r.KeepoutRadMg = le.Uint16(p[12:])
	r.ZLimitMg = int16(le.Uint16(p[14:]))

	switch version {
	case CurrentVersion:
		r.ZMaxMg = int16(le.Uint16(p[16:]))
		r.ElevCurveCenti = le.Uint16(p[18:])
		r.DataRadiusMg = le.Uint16(p[20:])
		r.MagOffsetX = int16(le.Uint16(p[22:]))
		r.MagOffsetY = int16(le.Uint16(p[24:]))
		r.MagOffsetZ = int16(le.Uint16(p[26:]))
		r.EarthXmg = int16(le.Uint16(p[28:]))
		r.EarthYmg = int16(le.Uint16(p[30:]))
		r.EarthZmg = int16(le.Uint16(p[32:]))
		r.EarthValid = p[34] != 0
		r.StreamEnableMask = p[35]
		r.IntervalMagMS = le.Uint16(p[36:])
		r.IntervalAccMS = le.Uint16(p[38:])
		r.IntervalEnvMS = le.Uint16(p[40:])
		r.IntervalEventMS = le.Uint16(p[42:])
		r.NumSectors = p[44]
		r.HmcRange = p[45]
		r.HmcDataRate = p[46]
		r.HmcSamples = p[47]
		r.HmcMode = p[48]
		r.Reserved0 = le.Uint16(p[49:])

	case 1, 2:
		// v1/v2 lack z_max, elev_curve and num_sectors; those keep their
		// defaults (the persisted copy upgrades on the next save).
		r.DataRadiusMg = le.Uint16(p[16:])
		r.MagOffsetX = int16(le.Uint16(p[18:]))
		r.MagOffsetY = int16(le.Uint16(p[20:]))
		r.MagOffsetZ = int16(le.Uint16(p[22:]))
		r.EarthXmg = int16(le.Uint16(p[24:]))
		r.EarthYmg = int16(le.Uint16(p[26:]))
		r.EarthZmg = int16(le.Uint16(p[28:]))
		r.EarthValid = p[30] != 0
		r.StreamEnableMask = p[31]
		r.IntervalMagMS = le.Uint16(p[32:])
		r.IntervalAccMS = le.Uint16(p[34:])
		r.IntervalEnvMS = le.Uint16(p[36:])
		r.IntervalEventMS = le.Uint16(p[38:])
		if version == 2 {
			r.HmcRange = p[40]
			r.HmcDataRate = p[41]
			r.HmcSamples = p[42]
			r.HmcMode = p[43]
			r.Reserved0 = le.Uint16(p[44:])
		} else {
			r.Reserved0 = le.Uint16(p[40:])
		}
	}

	r.Sanitize()
	return r, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
