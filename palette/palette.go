// Copyright 2026 dboth. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package palette implements false-color palettes for 8 bit intensity images.
package palette

import (
	"fmt"
	"image"
	"image/color"
)

// Palette maps an 8 bit intensity to a color.
type Palette [256]color.RGBA

// Inferno is a perceptual heat palette going from black through purple and
// orange to pale yellow.
var Inferno = interpolate([]color.RGBA{
	{0, 0, 4, 255},
	{31, 12, 72, 255},
	{85, 15, 109, 255},
	{136, 34, 106, 255},
	{186, 54, 85, 255},
	{227, 89, 51, 255},
	{249, 140, 10, 255},
	{249, 201, 50, 255},
	{252, 255, 164, 255},
})

// Gray is the identity palette.
var Gray = interpolate([]color.RGBA{{0, 0, 0, 255}, {255, 255, 255, 255}})

// ByName returns the palette named name: "inferno" or "gray".
func ByName(name string) (*Palette, error) {
	switch name {
	case "inferno", "":
		return Inferno, nil
	case "gray":
		return Gray, nil
	default:
		return nil, fmt.Errorf("palette: unknown palette %q", name)
	}
}

// Apply colors src into a new RGBA image of the same bounds.
func (p *Palette) Apply(src *image.Gray) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	w, h := b.Dx(), b.Dy()
	for y := 0; y < h; y++ {
		s := src.Pix[y*src.Stride : y*src.Stride+w]
		d := dst.Pix[y*dst.Stride : y*dst.Stride+4*w]
		for x, v := range s {
			c := p[v]
			d[4*x] = c.R
			d[4*x+1] = c.G
			d[4*x+2] = c.B
			d[4*x+3] = 0xFF
		}
	}
	return dst
}

// interpolate spreads stops evenly over 256 entries, linearly interpolating
// between them.
func interpolate(stops []color.RGBA) *Palette {
	p := &Palette{}
	segments := len(stops) - 1
	for i := range p {
		pos := i * segments
		j := pos / 255
		if j >= segments {
			p[i] = stops[segments]
			continue
		}
		f := pos - j*255
		a, b := stops[j], stops[j+1]
		p[i] = color.RGBA{
			R: lerp(a.R, b.R, f),
			G: lerp(a.G, b.G, f),
			B: lerp(a.B, b.B, f),
			A: 255,
		}
	}
	return p
}

// lerp returns a + (b-a)*f/255.
func lerp(a, b uint8, f int) uint8 {
	return uint8(int(a) + (int(b)-int(a))*f/255)
}
