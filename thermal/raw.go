// Copyright 2026 dboth. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package thermal holds the data exchanged between a thermal sensor and the
// acquisition pipeline: raw sample grids, per-frame calibration and
// calibrated temperature fields.
package thermal

import (
	"image"
	"image/color"
)

// RawFrame is a grid of raw sensor samples. It implements image.Image as a
// Gray16 but keeps native uint16 samples since the host is CPU constrained.
//
// A RawFrame must not be modified once handed to the acquisition loop.
type RawFrame struct {
	Pix    []uint16
	Stride int
	Rect   image.Rectangle
}

// NewRawFrame returns an empty frame of the given bounds.
func NewRawFrame(r image.Rectangle) *RawFrame {
	return &RawFrame{Pix: make([]uint16, r.Dx()*r.Dy()), Stride: r.Dx(), Rect: r}
}

// NewRawFrameFrom builds a frame from rows of samples. All rows must have the
// same length.
func NewRawFrameFrom(rows [][]uint16) *RawFrame {
	h := len(rows)
	w := 0
	if h != 0 {
		w = len(rows[0])
	}
	r := NewRawFrame(image.Rect(0, 0, w, h))
	for y, row := range rows {
		copy(r.Pix[y*r.Stride:], row[:w])
	}
	return r
}

func (r *RawFrame) ColorModel() color.Model {
	return color.Gray16Model
}

func (r *RawFrame) Bounds() image.Rectangle {
	return r.Rect
}

func (r *RawFrame) At(x, y int) color.Color {
	return color.Gray16{Y: r.Gray16At(x, y)}
}

// Gray16At returns the raw sample at (x, y), or 0 outside the bounds.
func (r *RawFrame) Gray16At(x, y int) uint16 {
	if !(image.Point{x, y}.In(r.Rect)) {
		return 0
	}
	return r.Pix[r.offset(x, y)]
}

// SetGray16 sets the raw sample at (x, y).
func (r *RawFrame) SetGray16(x, y int, v uint16) {
	if !(image.Point{x, y}.In(r.Rect)) {
		return
	}
	r.Pix[r.offset(x, y)] = v
}

// MinMax returns the lowest and highest samples. An empty frame returns
// (0xFFFF, 0).
func (r *RawFrame) MinMax() (uint16, uint16) {
	lo := uint16(0xFFFF)
	hi := uint16(0)
	w, h := r.Rect.Dx(), r.Rect.Dy()
	for y := 0; y < h; y++ {
		for _, v := range r.Pix[y*r.Stride : y*r.Stride+w] {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	return lo, hi
}

// Equal returns true if both frames hold the same samples.
func (r *RawFrame) Equal(o *RawFrame) bool {
	if r.Rect.Size() != o.Rect.Size() {
		return false
	}
	w, h := r.Rect.Dx(), r.Rect.Dy()
	for y := 0; y < h; y++ {
		a := r.Pix[y*r.Stride : y*r.Stride+w]
		b := o.Pix[y*o.Stride : y*o.Stride+w]
		for x := range a {
			if a[x] != b[x] {
				return false
			}
		}
	}
	return true
}

// Clone returns a compact copy anchored at (0, 0).
func (r *RawFrame) Clone() *RawFrame {
	w, h := r.Rect.Dx(), r.Rect.Dy()
	out := NewRawFrame(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		copy(out.Pix[y*w:(y+1)*w], r.Pix[y*r.Stride:y*r.Stride+w])
	}
	return out
}

// Rotate180 returns a copy with both row and column order reversed.
func (r *RawFrame) Rotate180() *RawFrame {
	w, h := r.Rect.Dx(), r.Rect.Dy()
	out := NewRawFrame(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		src := r.Pix[y*r.Stride : y*r.Stride+w]
		dst := out.Pix[(h-1-y)*w : (h-y)*w]
		for x, v := range src {
			dst[w-1-x] = v
		}
	}
	return out
}

func (r *RawFrame) offset(x, y int) int {
	return (y-r.Rect.Min.Y)*r.Stride + (x - r.Rect.Min.X)
}
