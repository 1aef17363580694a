// Copyright 2026 dboth. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package snapshot persists snapshots as a camera JPEG and a temperature TIFF
// pair, and records them in a catalog.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/dboth/thermalplant/thermal"
)

const (
	// CameraSuffix is appended to the name of the camera image.
	CameraSuffix = ".camera.jpg"
	// TemperaturesSuffix is appended to the name of the temperature raster.
	TemperaturesSuffix = ".temperatures.tiff"

	timeLayout = "20060102_150405"
	maxLabel   = 64
)

// Entry describes one saved snapshot.
type Entry struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Label        string    `json:"label,omitempty"`
	Time         time.Time `json:"time"`
	Camera       string    `json:"camera,omitempty"`
	Temperatures string    `json:"temperatures,omitempty"`
	// Info is the calibration of the thermal frame, if any.
	Info *thermal.CalibrationInfo `json:"info,omitempty"`
}

// Sink writes snapshots to Dir.
type Sink struct {
	Dir string
	// Quality is the JPEG quality. Defaults to 90.
	Quality int
	// Catalog, if set, records every saved snapshot.
	Catalog *Catalog
}

// Save writes the snapshot files and returns what was written.
//
// The camera image is skipped when absent, so is the temperature raster.
// Files are never overwritten; a numeric suffix is added on collision.
func (s *Sink) Save(snap *thermal.Snapshot, label string) (*Entry, error) {
	if snap.Camera == nil && snap.Field == nil {
		return nil, errors.New("snapshot: nothing to save")
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return nil, err
	}
	label = Sanitize(label)
	base := Name(label, snap.Time)
	name := base
	for i := 2; s.exists(name); i++ {
		name = fmt.Sprintf("%s-%d", base, i)
	}
	e := &Entry{Name: name, Label: label, Time: snap.Time, Info: snap.Info}
	if snap.Field != nil {
		p := filepath.Join(s.Dir, name+TemperaturesSuffix)
		if err := writeFile(p, func(w io.Writer) error { return EncodeTemperatures(w, snap.Field) }); err != nil {
			return nil, err
		}
		e.Temperatures = p
	}
	if snap.Camera != nil {
		q := s.Quality
		if q == 0 {
			q = 90
		}
		p := filepath.Join(s.Dir, name+CameraSuffix)
		if err := writeFile(p, func(w io.Writer) error { return jpeg.Encode(w, snap.Camera, &jpeg.Options{Quality: q}) }); err != nil {
			if e.Temperatures != "" {
				os.Remove(e.Temperatures)
			}
			return nil, err
		}
		e.Camera = p
	}
	if s.Catalog != nil {
		if err := s.Catalog.Add(context.Background(), e); err != nil {
			// The files are there, only the index is missing.
			log.Printf("snapshot: cataloging %s: %v", name, err)
		}
	}
	return e, nil
}

func (s *Sink) exists(name string) bool {
	for _, suffix := range []string{CameraSuffix, TemperaturesSuffix} {
		if _, err := os.Stat(filepath.Join(s.Dir, name+suffix)); err == nil {
			return true
		}
	}
	return false
}

// Name returns the base file name of a snapshot taken at t: the timestamp,
// prefixed with the label if any.
func Name(label string, t time.Time) string {
	ts := t.Format(timeLayout)
	if label = Sanitize(label); label == "" {
		return ts
	}
	return label + "." + ts
}

// Sanitize keeps the letters, digits and underscores of a user provided
// label. Spaces become underscores.
func Sanitize(label string) string {
	var b strings.Builder
	n := 0
	for _, r := range strings.TrimSpace(label) {
		if n == maxLabel {
			break
		}
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-':
		case unicode.IsSpace(r):
			r = '_'
		default:
			continue
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

// DefaultDir returns the first removable drive mounted under /media/pi, or the
// home directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return findDir("/media/pi", home)
}

func findDir(root, fallback string) string {
	entries, err := os.ReadDir(root)
	if err == nil {
		for _, e := range entries {
			if e.IsDir() {
				return filepath.Join(root, e.Name())
			}
		}
	}
	return fallback
}

func writeFile(p string, encode func(w io.Writer) error) error {
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	err = encode(f)
	if err2 := f.Close(); err == nil {
		err = err2
	}
	if err != nil {
		os.Remove(p)
		return fmt.Errorf("snapshot: %s: %w", filepath.Base(p), err)
	}
	return nil
}

// Saver persists the snapshots delivered by the acquisition loop. It runs on
// its own goroutine so disk I/O never stalls acquisition.
type Saver struct {
	Sink *Sink
	// OnSave, if set, is called after each successful save.
	OnSave func(e *Entry)

	mu     sync.Mutex
	label  string
	saved  int
	failed int
}

// SetLabel sets the label of the next snapshot saved.
func (s *Saver) SetLabel(label string) {
	s.mu.Lock()
	s.label = label
	s.mu.Unlock()
}

// Run saves snapshots until c is closed. Failures are logged and counted.
func (s *Saver) Run(c <-chan *thermal.Snapshot) {
	for snap := range c {
		s.mu.Lock()
		label := s.label
		s.label = ""
		s.mu.Unlock()
		e, err := s.Sink.Save(snap, label)
		s.mu.Lock()
		if err != nil {
			s.failed++
		} else {
			s.saved++
		}
		s.mu.Unlock()
		if err != nil {
			log.Printf("snapshot: %d: %v", snap.Seq, err)
			continue
		}
		log.Printf("snapshot: saved %s in %s", e.Name, s.Sink.Dir)
		if s.OnSave != nil {
			s.OnSave(e)
		}
	}
}

// Stats returns the number of snapshots saved and failed.
func (s *Saver) Stats() (saved, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved, s.failed
}
