// Copyright (c) 2026 Pavel Pernicka
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package detector

// Detector tracks sector occupancy from a stream of magnetometer samples
// and emits events for activations, transitions, intensity changes and
// timeouts. It is single-goroutine; the node loop owns it.
type Detector struct {
	cfg Config

	smooth   [smoothLen]uint8
	smoothAt int
	smoothN  int

	lastSector         uint8
	lastElevation      float32
	lastStateElevation uint8
	lastEventMS        uint32
	lastNonzeroMS      uint32
	lastNoDataMS       uint32
	sessionActive      bool

	// Per-sector deactivation bookkeeping. Index 0 is unused.
	lastSectorEventMS [MaxSectors + 1]uint32
	deactivatedMask   uint32

	queue eventQueue
}

// New returns a detector running cfg. Timestamps start at whatever the
// caller's millisecond clock reads first.
func New(cfg Config) *Detector {
	d := &Detector{}
	d.ApplyConfig(cfg)
	return d
}

// ApplyConfig swaps the geometry and timing configuration and resets all
// transient sector state. Queued events survive so a calibration update
// cannot silently eat an emitted event.
func (d *Detector) ApplyConfig(cfg Config) {
	cfg.NumSectors = sanitizeSectors(cfg.NumSectors)
	d.cfg = cfg
	d.smoothAt = 0
	d.smoothN = 0
	d.lastSector = 0
	d.lastElevation = 0
	d.lastStateElevation = 0
	d.sessionActive = false
	d.deactivatedMask = 0
	for i := range d.lastSectorEventMS {
		d.lastSectorEventMS[i] = 0
	}
}

// Config returns the active configuration.
func (d *Detector) Config() Config { return d.cfg }

// SectorState reports the current smoothed position for the periodic
// state frame.
func (d *Detector) SectorState() (sector, elevation uint8) {
	return d.lastSector, d.lastStateElevation
}

// PopEvent drains one queued event.
func (d *Detector) PopEvent() (Event, bool) { return d.queue.pop() }

// PendingEvents reports how many events are queued.
func (d *Detector) PendingEvents() int { return d.queue.len() }

// DroppedEvents reports how many events were discarded on queue overflow.
func (d *Detector) DroppedEvents() uint32 { return d.queue.dropped }

func (d *Detector) emit(t EventType, p0, p1, p2 uint8, nowMS uint32) {
	d.queue.push(Event{Type: t, P0: p0, P1: p1, P2: p2, P3: uint16(nowMS)})
}

func clampSpeedU8(v float32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// ProcessSample feeds one magnetometer sample at nowMS milliseconds.
// The first five samples after a reset only warm the smoothing buffer;
// no events are emitted during warm-up.
func (d *Detector) ProcessSample(s MagSample, nowMS uint32) {
	sector, elevation := d.cfg.Project(float32(s.X), float32(s.Y), float32(s.Z))

	d.smooth[d.smoothAt] = elevation
	d.smoothAt = (d.smoothAt + 1) % smoothLen
	if d.smoothN < smoothLen {
		d.smoothN++
		d.lastEventMS = nowMS
		d.lastSector = sector
		d.lastElevation = float32(elevation)
		d.lastStateElevation = elevation
		return
	}

	var sum uint32
	for _, v := range d.smooth {
		sum += uint32(v)
	}
	avg := float32(sum) / smoothLen

	dtSec := float32(nowMS-d.lastEventMS) / 1000
	if dtSec < 0.001 {
		dtSec = 0.001
	}
	speed := avg - d.lastElevation
	if speed < 0 {
		speed = -speed
	}
	speed /= dtSec

	if sector != d.lastSector {
		if d.lastSector == 0 {
			d.emit(EventSectorActivated, sector, uint8(avg), clampSpeedU8(speed), nowMS)
			if !d.sessionActive {
				d.sessionActive = true
				d.emit(EventSessionStarted, 0, 0, 0, nowMS)
			}
		} else if sector != 0 {
			if circularDiff(d.lastSector, sector, d.cfg.NumSectors) == 1 &&
				nowMS-d.lastEventMS < passingWindowMS {
				d.emit(EventPassingSectorChange, sector, 0, 0, nowMS)
			} else {
				d.emit(EventSectorChanged, d.lastSector, sector, 0, nowMS)
			}
		}
		if sector != 0 {
			d.deactivatedMask &^= 1 << sector
			d.lastSectorEventMS[sector] = nowMS
		}
	} else if sector != 0 {
		delta := avg - d.lastElevation
		if delta < 0 {
			delta = -delta
		}
		if delta > d.cfg.ChangeThreshold && d.deactivatedMask&(1<<sector) == 0 {
			d.emit(EventIntensityChange, sector, uint8(avg), clampSpeedU8(speed), nowMS)
			d.lastSectorEventMS[sector] = nowMS
		}
	}

	if d.lastSector != 0 {
		d.lastNonzeroMS = nowMS
	}

	if d.lastSector != 0 && d.lastSectorEventMS[d.lastSector] != 0 &&
		nowMS-d.lastSectorEventMS[d.lastSector] > d.cfg.DeactivationTimeoutMS {
		d.emit(EventSectionDeactivated, d.lastSector, 0, 0, nowMS)
		if d.sessionActive {
			d.sessionActive = false
			d.emit(EventSessionEnded, 0, 0, 0, nowMS)
		}
		d.deactivatedMask |= 1 << d.lastSector
		d.lastSectorEventMS[d.lastSector] = 0
	}

	if d.lastSector != 0 {
		if nowMS-d.lastEventMS > d.cfg.SessionTimeoutMS {
			d.emit(EventPossibleMechanicalFailure, d.lastSector, 0, 0, nowMS)
		}
	} else if nowMS-d.lastNonzeroMS > d.cfg.SessionTimeoutMS && d.sessionActive {
		d.sessionActive = false
		d.emit(EventSessionEnded, 0, 0, 0, nowMS)
	}

	d.lastSector = sector
	d.lastElevation = avg
	d.lastStateElevation = uint8(avg)
	d.lastEventMS = nowMS
}

// PostNoData reports a sensor silence condition. Repeats within the
// session timeout window are suppressed, including the first window
// after reset.
func (d *Detector) PostNoData(nowMS uint32) {
	if nowMS-d.lastNoDataMS < d.cfg.SessionTimeoutMS {
		return
	}
	d.lastNoDataMS = nowMS
	d.emit(EventErrorNoData, 0, 0, 0, nowMS)
}

// circularDiff is the shortest hop count between two 1-based sectors on
// a ring of n sectors.
func circularDiff(a, b, n uint8) uint8 {
	if n == 0 {
		return 0
	}
	var fwd uint8
	if b >= a {
		fwd = b - a
	} else {
		fwd = n - (a - b)
	}
	if back := n - fwd; back < fwd {
		return back
	}
	return fwd
}
