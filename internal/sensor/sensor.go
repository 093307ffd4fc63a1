// Package sensor abstracts the measurement sources the node loop reads:
// the HMC5883L magnetometer the detector runs on, plus optional
// accelerometer and environment inputs. Hardware implementations sit on
// periph.io I2C; simulation and tests use the scripted sources.
package sensor

import "github.com/pavelpernicka/can-sensory/internal/detector"

// MagSource yields magnetic field samples in milligauss. ok is false when
// the sensor is absent or the read failed; callers treat that as silence,
// not as an error to propagate.
type MagSource interface {
	ReadMag() (detector.MagSample, bool)
}

// AccSample is one accelerometer reading in the device's native units.
type AccSample struct {
	X, Y, Z int16
}

type AccSource interface {
	ReadAcc() (AccSample, bool)
}

// EnvSample is a temperature/humidity reading in centi-units.
type EnvSample struct {
	TempCentiC int16
	RHCentiPct uint16
}

type EnvSource interface {
	ReadEnv() (EnvSample, bool)
}

// HmcConfig is the register-level magnetometer configuration carried in
// the calibration record.
type HmcConfig struct {
	Range    uint8 // 0..7, field range selection
	DataRate uint8 // 0..6, output data rate
	Samples  uint8 // 0..3, averaged samples per output
	Mode     uint8 // 0 continuous, 1 single, 2 idle
}

// Valid reports whether every register field is in range.
func (c HmcConfig) Valid() bool {
	return c.Range <= 7 && c.DataRate <= 6 && c.Samples <= 3 && c.Mode <= 2
}

// mg per raw digit for each range code, in centi-milligauss.
var mgPerDigitCenti = [8]uint16{73, 92, 122, 152, 227, 256, 303, 435}

// MgPerDigitCenti returns the scale factor for a range code, 0 when the
// code is invalid.
func (c HmcConfig) MgPerDigitCenti() uint16 {
	if c.Range > 7 {
		return 0
	}
	return mgPerDigitCenti[c.Range]
}

// HmcControl is the configuration surface the CAN command handler drives.
type HmcControl interface {
	Configure(HmcConfig) error
	Config() HmcConfig
}
