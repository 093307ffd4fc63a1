// Copyright (c) 2026 Pavel Pernicka
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package sim replays magnetometer scenarios against the node loop.
// A scenario is a YAML keyframe track; samples between keyframes are
// linearly interpolated, which is enough to reproduce sweeps, dwells
// and dropouts without hardware on the bench.
package sim

import (
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/pavelpernicka/can-sensory/internal/detector"
)

// Keyframe pins the field vector at one instant. Valid defaults to true;
// an explicit false models a sensor dropout from this keyframe until the
// next one.
type Keyframe struct {
	AtMS uint32 `yaml:"at_ms"`
	X    int16  `yaml:"x"`
	Y    int16  `yaml:"y"`
	Z    int16  `yaml:"z"`
	Drop bool   `yaml:"drop,omitempty"`
}

// Scenario is one replayable track.
type Scenario struct {
	Name           string     `yaml:"name"`
	SamplePeriodMS uint32     `yaml:"sample_period_ms"`
	Keyframes      []Keyframe `yaml:"keyframes"`
}

// Load parses a scenario document.
func Load(r io.Reader) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadFile reads and parses one scenario file.
func LoadFile(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()
	s, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Validate rejects scenarios the player cannot step through.
func (s *Scenario) Validate() error {
	if s.SamplePeriodMS == 0 {
		return fmt.Errorf("scenario %q: sample_period_ms must be positive", s.Name)
	}
	if len(s.Keyframes) == 0 {
		return fmt.Errorf("scenario %q: no keyframes", s.Name)
	}
	if !sort.SliceIsSorted(s.Keyframes, func(i, j int) bool {
		return s.Keyframes[i].AtMS < s.Keyframes[j].AtMS
	}) {
		return fmt.Errorf("scenario %q: keyframes not in time order", s.Name)
	}
	for i := 1; i < len(s.Keyframes); i++ {
		if s.Keyframes[i].AtMS == s.Keyframes[i-1].AtMS {
			return fmt.Errorf("scenario %q: duplicate keyframe at %d ms",
				s.Name, s.Keyframes[i].AtMS)
		}
	}
	return nil
}

// Duration is the timestamp of the last keyframe.
func (s *Scenario) Duration() uint32 {
	return s.Keyframes[len(s.Keyframes)-1].AtMS
}

// SampleAt evaluates the track at one instant. Before the first keyframe
// the track holds its first value, after the last it holds the final one.
// A dropped segment reports ok=false, mimicking a failed sensor read.
func (s *Scenario) SampleAt(ms uint32) (detector.MagSample, bool) {
	kf := s.Keyframes
	if ms <= kf[0].AtMS {
		return sampleOf(kf[0]), !kf[0].Drop
	}
	last := kf[len(kf)-1]
	if ms >= last.AtMS {
		return sampleOf(last), !last.Drop
	}
	// Find the segment [i, i+1] containing ms.
	i := sort.Search(len(kf), func(j int) bool { return kf[j].AtMS > ms }) - 1
	a, b := kf[i], kf[i+1]
	if a.Drop {
		return detector.MagSample{}, false
	}
	f := float64(ms-a.AtMS) / float64(b.AtMS-a.AtMS)
	return detector.MagSample{
		X: lerp(a.X, b.X, f),
		Y: lerp(a.Y, b.Y, f),
		Z: lerp(a.Z, b.Z, f),
	}, true
}

func sampleOf(k Keyframe) detector.MagSample {
	return detector.MagSample{X: k.X, Y: k.Y, Z: k.Z}
}

func lerp(a, b int16, f float64) int16 {
	return int16(float64(a) + (float64(b)-float64(a))*f)
}

// Player steps a scenario on its sample period. Each Next call advances
// the clock by one period until the track is exhausted.
type Player struct {
	s   *Scenario
	now uint32
}

// NewPlayer starts a playback at time zero.
func NewPlayer(s *Scenario) *Player {
	return &Player{s: s}
}

// NowMS is the player's current clock.
func (p *Player) NowMS() uint32 { return p.now }

// Done reports that the clock has passed the last keyframe.
func (p *Player) Done() bool { return p.now > p.s.Duration() }

// Next returns the sample at the current clock and advances one period.
// ok is false during dropout segments.
func (p *Player) Next() (sample detector.MagSample, nowMS uint32, ok bool) {
	nowMS = p.now
	sample, ok = p.s.SampleAt(nowMS)
	p.now += p.s.SamplePeriodMS
	return sample, nowMS, ok
}
