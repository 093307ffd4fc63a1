package sensor

import "github.com/pavelpernicka/can-sensory/internal/detector"

// MagFunc adapts a function to MagSource; the simulator feeds the node
// loop this way.
type MagFunc func() (detector.MagSample, bool)

func (f MagFunc) ReadMag() (detector.MagSample, bool) { return f() }

// ScriptedMag replays a fixed sample sequence, then reports absence.
type ScriptedMag struct {
	Samples []detector.MagSample
	// Hold keeps returning the last sample after the script runs out
	// instead of going silent.
	Hold bool

	at int
}

func (s *ScriptedMag) ReadMag() (detector.MagSample, bool) {
	if s.at >= len(s.Samples) {
		if s.Hold && len(s.Samples) > 0 {
			return s.Samples[len(s.Samples)-1], true
		}
		return detector.MagSample{}, false
	}
	out := s.Samples[s.at]
	s.at++
	return out, true
}

// StaticMock is a settable source for all three inputs at once; node
// tests poke its fields between ticks.
type StaticMock struct {
	Mag      detector.MagSample
	MagOK    bool
	Acc      AccSample
	AccOK    bool
	Env      EnvSample
	EnvOK    bool
	HmcCfg   HmcConfig
	HmcErr   error
	MagReads int
}

func (m *StaticMock) ReadMag() (detector.MagSample, bool) {
	m.MagReads++
	return m.Mag, m.MagOK
}

func (m *StaticMock) ReadAcc() (AccSample, bool) { return m.Acc, m.AccOK }

func (m *StaticMock) ReadEnv() (EnvSample, bool) { return m.Env, m.EnvOK }

func (m *StaticMock) Configure(cfg HmcConfig) error {
	if m.HmcErr != nil {
		return m.HmcErr
	}
	if !cfg.Valid() {
		return ErrHMCRange
	}
	m.HmcCfg = cfg
	return nil
}

func (m *StaticMock) Config() HmcConfig { return m.HmcCfg }
