// Copyright 2026 dboth. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package source defines the sensors the acquisition loop polls and the
// ordered policy used to pick one at startup.
package source

import (
	"errors"
	"fmt"
	"image"
	"io"
	"log"

	"github.com/dboth/thermalplant/thermal"
)

// ErrNoSource is returned by Open when every candidate failed.
var ErrNoSource = errors.New("source: no sensor could be opened")

// Kind tags the variant of a Source.
type Kind int

// Valid values for Kind.
const (
	ThermalSensor Kind = iota
	VisibleCamera
	FallbackCamera
)

func (k Kind) String() string {
	switch k {
	case ThermalSensor:
		return "thermal"
	case VisibleCamera:
		return "camera"
	case FallbackCamera:
		return "fallback"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Frame is what a single Read returns.
//
// A ThermalSensor fills Raw, Info and LUT; Info and LUT are only valid for Raw
// and must not be reused with another frame. Cameras fill Image.
type Frame struct {
	Raw   *thermal.RawFrame
	Info  *thermal.CalibrationInfo
	LUT   thermal.LookupTable
	Image image.Image
}

// Source is a sensor polled by the acquisition loop. This interface can be
// mocked.
//
// Read blocks until a frame is available; there is no timeout. Read and Close
// are called from the acquisition goroutine only.
type Source interface {
	io.Closer
	Kind() Kind
	Read() (*Frame, error)
}

// Candidate is one way to open a Source.
type Candidate struct {
	Kind Kind
	Name string
	Open func() (Source, error)
}

// Open tries each candidate in order and returns the first one that opens.
//
// A failure is logged and the next candidate tried; only exhausting the list
// is an error, which wraps ErrNoSource and every individual failure.
func Open(candidates ...Candidate) (Source, error) {
	errs := []error{ErrNoSource}
	for _, c := range candidates {
		s, err := c.Open()
		if err == nil {
			log.Printf("source: using %s %s", c.Kind, c.Name)
			return s, nil
		}
		log.Printf("source: %s %s unavailable: %v", c.Kind, c.Name, err)
		errs = append(errs, fmt.Errorf("%s %s: %w", c.Kind, c.Name, err))
	}
	return nil, errors.Join(errs...)
}
