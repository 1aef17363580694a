// Copyright 2026 dboth. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package process converts raw sensor frames into displayable images.
//
// Each frame is stretched independently: there is no history across frames,
// so the tones flicker when the scene's range changes.
package process

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"

	"github.com/dboth/thermalplant/overlay"
	"github.com/dboth/thermalplant/palette"
	"github.com/dboth/thermalplant/thermal"
)

// Normalize reduces the dynamic range of raw down to 8 bits linearly: the
// lowest sample maps to 0 and the highest to 255.
//
// It returns false when the frame is uniform; the returned image is then all
// zeros.
func Normalize(raw *thermal.RawFrame) (*image.Gray, bool) {
	b := raw.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	floor, ceil := raw.MinMax()
	if ceil <= floor {
		return dst, false
	}
	delta := int(ceil - floor)
	for y := 0; y < h; y++ {
		src := raw.Pix[y*raw.Stride : y*raw.Stride+w]
		out := dst.Pix[y*dst.Stride : y*dst.Stride+w]
		for x, v := range src {
			n := (int(v) - int(floor)) * 255 / delta
			if n < 0 {
				n = 0
			} else if n > 255 {
				n = 255
			}
			out[x] = uint8(n)
		}
	}
	return dst, true
}

// Colorize maps an 8 bit intensity image through p.
func Colorize(g *image.Gray, p *palette.Palette) *image.RGBA {
	return p.Apply(g)
}

// Luma derives a pseudo raw frame from a color image, used when the active
// source is a camera without calibration.
func Luma(img image.Image) *thermal.RawFrame {
	b := img.Bounds()
	out := thermal.NewRawFrame(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.Gray16Model.Convert(img.At(x, y)).(color.Gray16)
			out.Pix[(y-b.Min.Y)*out.Stride+(x-b.Min.X)] = g.Y
		}
	}
	return out
}

// SideBySide places a and b next to each other, b being scaled to the height
// of a.
func SideBySide(a, b image.Image) *image.NRGBA {
	ab, bb := a.Bounds(), b.Bounds()
	if bb.Dy() != ab.Dy() && bb.Dy() != 0 {
		b = imaging.Resize(b, 0, ab.Dy(), imaging.Linear)
		bb = b.Bounds()
	}
	dst := imaging.New(ab.Dx()+bb.Dx(), ab.Dy(), color.Black)
	dst = imaging.Paste(dst, a, image.Pt(0, 0))
	return imaging.Paste(dst, b, image.Pt(ab.Dx(), 0))
}

// Blank returns a uniform image, used as the shutter flash after a snapshot.
func Blank(r image.Rectangle, c color.Color) *image.RGBA {
	dst := image.NewRGBA(r)
	draw.Draw(dst, r, image.NewUniform(c), image.Point{}, draw.Src)
	return dst
}

// Processor turns a source's output into the visual frame of one cycle.
type Processor struct {
	// Orientation is applied to the raw frame, the calibration points and the
	// camera image alike.
	Orientation thermal.Orientation
	// CameraOrientation is the mount of the visible camera.
	CameraOrientation thermal.Orientation
	Palette           *palette.Palette
	// Scale enlarges the thermal image by this integer factor before the
	// markers are drawn. 0 and 1 keep the sensor resolution.
	Scale int
}

// Orient applies the thermal mount orientation.
func (p *Processor) Orient(raw *thermal.RawFrame, info *thermal.CalibrationInfo) (*thermal.RawFrame, *thermal.CalibrationInfo) {
	return p.Orientation.Apply(raw, info)
}

// OrientCamera applies the camera mount orientation.
func (p *Processor) OrientCamera(img image.Image) image.Image {
	if img == nil || p.CameraOrientation != thermal.Rotated180 {
		return img
	}
	return imaging.Rotate180(img)
}

// Thermal normalizes, colorizes and annotates an already oriented frame.
//
// info may be nil, in which case no marker is drawn. It returns false for a
// degenerate (uniform) frame.
func (p *Processor) Thermal(raw *thermal.RawFrame, info *thermal.CalibrationInfo) (*image.RGBA, bool) {
	g, ok := Normalize(raw)
	if !ok {
		return nil, false
	}
	pal := p.Palette
	if pal == nil {
		pal = palette.Inferno
	}
	img := Colorize(g, pal)
	if p.Scale > 1 {
		img, info = upscale(img, info, p.Scale)
	}
	overlay.Spots(img, info)
	return img, true
}

// upscale enlarges img by an integer factor so labels stay legible on low
// resolution sensors. Points move to the center of their enlarged pixel.
func upscale(img *image.RGBA, info *thermal.CalibrationInfo, s int) (*image.RGBA, *thermal.CalibrationInfo) {
	b := img.Bounds()
	n := imaging.Resize(img, b.Dx()*s, b.Dy()*s, imaging.NearestNeighbor)
	dst := image.NewRGBA(n.Bounds())
	draw.Draw(dst, dst.Bounds(), n, n.Bounds().Min, draw.Src)
	if info == nil {
		return dst, nil
	}
	scaled := *info
	for _, sp := range []*thermal.Spot{&scaled.Min, &scaled.Max, &scaled.Center} {
		sp.Point = sp.Point.Mul(s).Add(image.Pt(s/2, s/2))
	}
	return dst, &scaled
}
