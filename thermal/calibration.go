// Copyright 2026 dboth. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package thermal

import (
	"fmt"
	"image"
	"strings"
)

// ZeroCelsius is 0°C expressed in Kelvin.
const ZeroCelsius = 273.15

// LookupTable maps a raw sample value to a temperature in °C. It is supplied
// by the sensor driver along with each frame.
type LookupTable []float32

// LinearLUT returns the table for a radiometric sensor reporting its samples
// linearly in Kelvin, one count being scaleK Kelvin.
//
// FLIR Lepton in TLinear mode reports 0.01K per count in high gain and 0.1K
// in low gain.
func LinearLUT(bits uint, scaleK float64) LookupTable {
	lut := make(LookupTable, 1<<bits)
	for i := range lut {
		lut[i] = float32(float64(i)*scaleK - ZeroCelsius)
	}
	return lut
}

// Spot is a pixel location and its temperature.
type Spot struct {
	Point   image.Point
	Celsius float64
}

// CalibrationInfo is the per-frame metadata of a thermal sensor: the coolest,
// warmest and center pixels.
//
// It is only valid for the frame it accompanies. Points are expressed in the
// coordinates of that frame as captured, before any orientation is applied.
type CalibrationInfo struct {
	Min    Spot
	Max    Spot
	Center Spot
}

func (c *CalibrationInfo) String() string {
	return fmt.Sprintf("min %s@%s max %s@%s center %s@%s",
		FormatCelsius(c.Min.Celsius), c.Min.Point,
		FormatCelsius(c.Max.Celsius), c.Max.Point,
		FormatCelsius(c.Center.Celsius), c.Center.Point)
}

// Rotate180 returns the info with its points mapped the same way
// RawFrame.Rotate180 maps pixels inside bounds.
func (c *CalibrationInfo) Rotate180(bounds image.Rectangle) *CalibrationInfo {
	out := *c
	out.Min.Point = rotatePoint(c.Min.Point, bounds)
	out.Max.Point = rotatePoint(c.Max.Point, bounds)
	out.Center.Point = rotatePoint(c.Center.Point, bounds)
	return &out
}

// Measure locates the coolest, warmest and center pixels of raw and converts
// them through lut. The first pixel in row order wins on ties.
func Measure(raw *RawFrame, lut LookupTable) (*CalibrationInfo, error) {
	b := raw.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("thermal: empty frame")
	}
	lo, hi := b.Min, b.Min
	loV, hiV := raw.Gray16At(lo.X, lo.Y), raw.Gray16At(hi.X, hi.Y)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := raw.Gray16At(x, y)
			if v < loV {
				loV, lo = v, image.Point{x, y}
			}
			if v > hiV {
				hiV, hi = v, image.Point{x, y}
			}
		}
	}
	center := image.Point{b.Min.X + b.Dx()/2, b.Min.Y + b.Dy()/2}
	cV := raw.Gray16At(center.X, center.Y)
	if int(hiV) >= len(lut) {
		return nil, fmt.Errorf("%w: sample %d, table has %d entries", ErrLUTRange, hiV, len(lut))
	}
	return &CalibrationInfo{
		Min:    Spot{Point: lo, Celsius: float64(lut[loV])},
		Max:    Spot{Point: hi, Celsius: float64(lut[hiV])},
		Center: Spot{Point: center, Celsius: float64(lut[cV])},
	}, nil
}

// FormatCelsius formats a temperature with one decimal and its unit.
func FormatCelsius(v float64) string {
	return fmt.Sprintf("%.1f°C", v)
}

// Orientation is how the sensor is mounted. It is a deployment setting, never
// derived from the data.
type Orientation int

const (
	Upright Orientation = iota
	Rotated180
)

func (o Orientation) String() string {
	switch o {
	case Upright:
		return "upright"
	case Rotated180:
		return "rotated180"
	default:
		return fmt.Sprintf("Orientation(%d)", int(o))
	}
}

// ParseOrientation parses the output of Orientation.String.
func ParseOrientation(s string) (Orientation, error) {
	switch strings.ToLower(s) {
	case "upright", "":
		return Upright, nil
	case "rotated180":
		return Rotated180, nil
	default:
		return Upright, fmt.Errorf("thermal: unknown orientation %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o Orientation) MarshalText() ([]byte, error) {
	if o != Upright && o != Rotated180 {
		return nil, fmt.Errorf("thermal: invalid orientation %d", int(o))
	}
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Orientation) UnmarshalText(b []byte) error {
	v, err := ParseOrientation(string(b))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// Apply orients raw and its info. info may be nil.
func (o Orientation) Apply(raw *RawFrame, info *CalibrationInfo) (*RawFrame, *CalibrationInfo) {
	if o != Rotated180 {
		return raw, info
	}
	if info != nil {
		info = info.Rotate180(raw.Bounds())
	}
	return raw.Rotate180(), info
}

func rotatePoint(p image.Point, b image.Rectangle) image.Point {
	// RawFrame.Rotate180 anchors its result at (0, 0).
	return image.Point{X: b.Dx() - 1 - (p.X - b.Min.X), Y: b.Dy() - 1 - (p.Y - b.Min.Y)}
}
