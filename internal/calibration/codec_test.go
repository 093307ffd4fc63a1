package calibration

import (
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() Record {
	r := Defaults()
	r.CenterXmg = -120
	r.CenterYmg = 85
	r.CenterZmg = 40
	r.RotateXYcdeg = 1550  // 15.50°
	r.RotateXZcdeg = -300
	r.RotateYZcdeg = 25
	r.KeepoutRadMg = 900
	r.ZLimitMg = 160
	r.ZMaxMg = 420
	r.ElevCurveCenti = 180
	r.DataRadiusMg = 2800
	r.MagOffsetX = -5
	r.MagOffsetY = 11
	r.MagOffsetZ = 3
	r.SetEarth(210, -340, 480, true)
	r.NumSectors = 8
	r.SetStreamConfig(150, 300, 900, 100, 0x0B)
	r.SetHmcConfig(5, 4, 1, 0)
	return r
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	want := sampleRecord()
	got, err := Decode(Encode(want))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecodeErasedPage(t *testing.T) {
	blank := make([]byte, BlobSize)
	for i := range blank {
		blank[i] = 0xFF
	}
	_, err := Decode(blank)
	assert.ErrorIs(t, err, ErrNoRecord)
}

func TestDecodeCorruptCRC(t *testing.T) {
	buf := Encode(sampleRecord())
	buf[headerSize+2] ^= 0x01
	_, err := Decode(buf)
	assert.ErrorIs(t, err, ErrCRC)
}

func TestDecodeWrongDeclaredSize(t *testing.T) {
	buf := Encode(sampleRecord())
	binary.LittleEndian.PutUint16(buf[6:], payloadSizeV3+1)
	_, err := Decode(buf)
	assert.ErrorIs(t, err, ErrSize)
}

func TestDecodeUnknownVersion(t *testing.T) {
	buf := Encode(sampleRecord())
	binary.LittleEndian.PutUint16(buf[4:], 9)
	// Re-seal so only the version is wrong.
	crc := crc32.ChecksumIEEE(buf[4 : headerSize+payloadSizeV3])
	binary.LittleEndian.PutUint32(buf[headerSize+payloadSizeV3:], crc)
	_, err := Decode(buf)
	assert.ErrorIs(t, err, ErrVersion)
}

// encodeLegacy builds a v1 or v2 blob the way older firmware laid it out.
func encodeLegacy(t *testing.T, version uint16, r Record) []byte {
	t.Helper()
	var size uint16
	switch version {
	case 1:
		size = payloadSizeV1
	case 2:
		size = payloadSizeV2
	default:
		t.Fatalf("not a legacy version: %d", version)
	}

	buf := make([]byte, headerSize+int(size)+crcSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:], Magic)
	le.PutUint16(buf[4:], version)
	le.PutUint16(buf[6:], size)

	p := buf[headerSize:]
	le.PutUint16(p[0:], uint16(r.CenterXmg))
	le.PutUint16(p[2:], uint16(r.CenterYmg))
	le.PutUint16(p[4:], uint16(r.CenterZmg))
	le.PutUint16(p[6:], uint16(r.RotateXYcdeg))
	le.PutUint16(p[8:], uint16(r.RotateXZcdeg))
	le.PutUint16(p[10:], uint16(r.RotateYZcdeg))
	le.PutUint16(p[12:], r.KeepoutRadMg)
	le.PutUint16(p[14:], uint16(r.ZLimitMg))
	le.PutUint16(p[16:], r.DataRadiusMg)
	le.PutUint16(p[18:], uint16(r.MagOffsetX))
	le.PutUint16(p[20:], uint16(r.MagOffsetY))
	le.PutUint16(p[22:], uint16(r.MagOffsetZ))
	le.PutUint16(p[24:], uint16(r.EarthXmg))
	le.PutUint16(p[26:], uint16(r.EarthYmg))
	le.PutUint16(p[28:], uint16(r.EarthZmg))
	p[30] = boolByte(r.EarthValid)
	p[31] = r.StreamEnableMask
	le.PutUint16(p[32:], r.IntervalMagMS)
	le.PutUint16(p[34:], r.IntervalAccMS)
	le.PutUint16(p[36:], r.IntervalEnvMS)
	le.PutUint16(p[38:], r.IntervalEventMS)
	if version == 2 {
		p[40] = r.HmcRange
		p[41] = r.HmcDataRate
		p[42] = r.HmcSamples
		p[43] = r.HmcMode
		le.PutUint16(p[44:], r.Reserved0)
	} else {
		le.PutUint16(p[40:], r.Reserved0)
	}

	crc := crc32.ChecksumIEEE(buf[4 : headerSize+int(size)])
	le.PutUint32(buf[headerSize+int(size):], crc)
	return buf
}

func TestDecodeV2Migration(t *testing.T) {
	src := sampleRecord()
	got, err := Decode(encodeLegacy(t, 2, src))
	require.NoError(t, err)

	// Shared fields survive.
	assert.Equal(t, src.CenterXmg, got.CenterXmg)
	assert.Equal(t, src.RotateYZcdeg, got.RotateYZcdeg)
	assert.Equal(t, src.KeepoutRadMg, got.KeepoutRadMg)
	assert.Equal(t, src.DataRadiusMg, got.DataRadiusMg)
	assert.Equal(t, src.EarthZmg, got.EarthZmg)
	assert.Equal(t, src.IntervalEventMS, got.IntervalEventMS)
	assert.Equal(t, src.HmcRange, got.HmcRange)
	assert.Equal(t, src.HmcDataRate, got.HmcDataRate)

	// Fields v2 never carried come back as defaults.
	def := Defaults()
	assert.Equal(t, def.NumSectors, got.NumSectors)
	assert.Equal(t, def.ZMaxMg, got.ZMaxMg)
	assert.Equal(t, def.ElevCurveCenti, got.ElevCurveCenti)
}

func TestDecodeV1Migration(t *testing.T) {
	src := sampleRecord()
	got, err := Decode(encodeLegacy(t, 1, src))
	require.NoError(t, err)

	assert.Equal(t, src.CenterZmg, got.CenterZmg)
	assert.Equal(t, src.ZLimitMg, got.ZLimitMg)
	assert.Equal(t, src.StreamEnableMask, got.StreamEnableMask)

	// v1 has neither the HMC block nor the sector count.
	def := Defaults()
	assert.Equal(t, def.HmcRange, got.HmcRange)
	assert.Equal(t, def.HmcMode, got.HmcMode)
	assert.Equal(t, def.NumSectors, got.NumSectors)
}

func TestDecodeSanitizesSectorCount(t *testing.T) {
	r := sampleRecord()
	r.NumSectors = 40 // out of range on the wire
	buf := Encode(r)
	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, uint8(DefaultSectors), got.NumSectors)
}

func TestSetStreamConfigClamps(t *testing.T) {
	r := Defaults()
	r.SetStreamConfig(65000, 10, 20, 30, 0xFF)
	assert.Equal(t, uint16(60000), r.IntervalMagMS)
	assert.Equal(t, uint8(0x0F), r.StreamEnableMask)
}

func TestFieldRoundTrip(t *testing.T) {
	r := Defaults()
	for f := FieldFirst; f <= FieldLast; f++ {
		require.NoError(t, r.SetField(f, 7), "field %d", f)
		v, err := r.GetField(f)
		require.NoError(t, err, "field %d", f)
		if f == FieldEarthValid {
			assert.Equal(t, int16(1), v)
			continue
		}
		assert.Equal(t, int16(7), v, "field %d", f)
	}
}

func TestSetFieldRangeChecks(t *testing.T) {
	r := Defaults()
	assert.ErrorIs(t, r.SetField(FieldKeepoutRad, -1), ErrFieldRange)
	assert.ErrorIs(t, r.SetField(FieldDataRadius, -5), ErrFieldRange)
	assert.ErrorIs(t, r.SetField(FieldNumSectors, 0), ErrFieldRange)
	assert.ErrorIs(t, r.SetField(FieldNumSectors, 17), ErrFieldRange)
	assert.ErrorIs(t, r.SetField(FieldLast+1, 1), ErrUnknownField)
}
