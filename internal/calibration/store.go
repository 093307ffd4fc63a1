// Copyright (c) 2026 Pavel Pernicka
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"fmt"

	"github.com/pavelpernicka/can-sensory/internal/flash"
)

// Store binds a calibration record to its flash page. The record lives in
// RAM between saves; Load never rewrites flash, so an old-version blob stays
// on flash (read-only migrated) until the next explicit Save upgrades it.
type Store struct {
	dev    flash.Device
	layout flash.Layout
	rec    Record
}

// NewStore returns a store primed with defaults. Call Load to pick up
// whatever flash holds.
func NewStore(dev flash.Device, layout flash.Layout) *Store {
	return &Store{dev: dev, layout: layout, rec: Defaults()}
}

// Record returns the current in-RAM record.
func (s *Store) Record() Record { return s.rec }

// Update replaces the in-RAM record (not persisted until Save).
func (s *Store) Update(r Record) {
	r.Sanitize()
	s.rec = r
}

// Reset restores compiled-in defaults in RAM.
func (s *Store) Reset() { s.rec = Defaults() }

// Load reads the calibration page and adopts its record, migrating old
// versions. On any integrity error the in-RAM record falls back to
// defaults and the error is returned for logging.
func (s *Store) Load() error {
	buf := make([]byte, BlobSize)
	if err := s.dev.Read(s.layout.CalibAddr, buf); err != nil {
		s.rec = Defaults()
		return fmt.Errorf("calibration read: %w", err)
	}
	rec, err := Decode(buf)
	if err != nil {
		s.rec = Defaults()
		return err
	}
	s.rec = rec
	return nil
}

// Save persists the in-RAM record as a current-version blob: erase the
// calibration page, then program the encoded record double word by double
// word.
func (s *Store) Save() error {
	blob := Encode(s.rec)
	if err := s.dev.ErasePage(s.layout.CalibAddr); err != nil {
		return fmt.Errorf("calibration erase: %w", err)
	}
	w := flash.NewWriter(s.dev, s.layout.CalibAddr)
	if err := w.Push(blob); err != nil {
		return fmt.Errorf("calibration program: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("calibration program: %w", err)
	}
	return nil
}
