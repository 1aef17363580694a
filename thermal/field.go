// Copyright 2026 dboth. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package thermal

import (
	"errors"
	"fmt"
	"image"
	"time"
)

// ErrLUTRange is returned when a raw sample has no entry in the lookup table.
var ErrLUTRange = errors.New("thermal: sample outside lookup table")

// TemperatureField is a grid of temperatures in °C with the geometry of the
// thermal RawFrame it was calibrated from.
type TemperatureField struct {
	C      []float32
	Stride int
	Rect   image.Rectangle
}

// NewTemperatureField returns a zeroed field.
func NewTemperatureField(r image.Rectangle) *TemperatureField {
	return &TemperatureField{C: make([]float32, r.Dx()*r.Dy()), Stride: r.Dx(), Rect: r}
}

func (t *TemperatureField) Bounds() image.Rectangle {
	return t.Rect
}

// CelsiusAt returns the temperature at (x, y), or 0 outside the bounds.
func (t *TemperatureField) CelsiusAt(x, y int) float32 {
	if !(image.Point{x, y}.In(t.Rect)) {
		return 0
	}
	return t.C[(y-t.Rect.Min.Y)*t.Stride+(x-t.Rect.Min.X)]
}

// Rows returns the field as rows, mostly useful for tests and JSON.
func (t *TemperatureField) Rows() [][]float32 {
	w, h := t.Rect.Dx(), t.Rect.Dy()
	out := make([][]float32, h)
	for y := range out {
		out[y] = append([]float32(nil), t.C[y*t.Stride:y*t.Stride+w]...)
	}
	return out
}

// Calibrate converts every raw sample through lut.
//
// It must be given the unmodified sensor samples, never an AGC'ed image. It
// has no state: the same inputs always yield the same field.
func Calibrate(raw *RawFrame, lut LookupTable) (*TemperatureField, error) {
	b := raw.Bounds()
	w, h := b.Dx(), b.Dy()
	out := NewTemperatureField(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		src := raw.Pix[y*raw.Stride : y*raw.Stride+w]
		dst := out.C[y*w : (y+1)*w]
		for x, v := range src {
			if int(v) >= len(lut) {
				return nil, fmt.Errorf("%w: sample %d at (%d,%d), table has %d entries", ErrLUTRange, v, x, y, len(lut))
			}
			dst[x] = lut[v]
		}
	}
	return out, nil
}

// Snapshot is one acquisition cycle's data, unprocessed: the camera frame as
// read and the calibrated temperature field of the same cycle.
//
// Camera is nil when no camera is attached, Field is nil when the active
// source has no calibration.
type Snapshot struct {
	Seq    uint64
	Time   time.Time
	Camera image.Image
	Field  *TemperatureField
	Info   *CalibrationInfo
}
