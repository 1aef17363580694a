// Copyright 2026 dboth. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package overlay draws temperature markers on false-color images.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/dboth/thermalplant/thermal"
)

// Marker colors, one per role.
var (
	MinColor    = color.RGBA{64, 160, 255, 255}
	MaxColor    = color.RGBA{255, 48, 48, 255}
	CenterColor = color.RGBA{255, 255, 0, 255}
)

var shadow = color.RGBA{0, 0, 0, 255}

const (
	armLen  = 3 // Half the cross size in pixels.
	gap     = 2 // Pixels between the marker and its label.
	ringLen = 4 // Horizontal room taken by the degree ring.
)

// Spots draws the min, max and center markers of info. A nil info is
// silently ignored; cameras have no calibration.
func Spots(dst draw.Image, info *thermal.CalibrationInfo) {
	if info == nil {
		return
	}
	Annotate(dst, info.Min.Point, info.Min.Celsius, MinColor)
	Annotate(dst, info.Max.Point, info.Max.Celsius, MaxColor)
	Annotate(dst, info.Center.Point, info.Center.Celsius, CenterColor)
}

// Annotate draws a cross at pt and the temperature next to it, e.g. "21.3°C".
// The label is moved so it stays inside dst.
func Annotate(dst draw.Image, pt image.Point, celsius float64, c color.Color) {
	b := dst.Bounds()
	if !pt.In(b) {
		return
	}
	cross(dst, pt, c)

	face := basicfont.Face7x13
	num := fmt.Sprintf("%.1f", celsius)
	w := font.MeasureString(face, num).Ceil() + ringLen + font.MeasureString(face, "C").Ceil()
	m := face.Metrics()
	ascent, descent := m.Ascent.Ceil(), m.Descent.Ceil()

	x := pt.X + armLen + gap
	if x+w > b.Max.X {
		x = pt.X - armLen - gap - w
	}
	if x < b.Min.X {
		x = b.Min.X
	}
	y := pt.Y + ascent/2
	if y-ascent < b.Min.Y {
		y = b.Min.Y + ascent
	}
	if y+descent > b.Max.Y {
		y = b.Max.Y - descent
	}
	label(dst, image.Pt(x+1, y+1), num, shadow)
	label(dst, image.Pt(x, y), num, c)
}

// label draws "<num>°C" with its baseline starting at dot. basicfont has no
// degree glyph so it is drawn as a ring.
func label(dst draw.Image, dot image.Point, num string, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(dot.X, dot.Y),
	}
	d.DrawString(num)
	ring(dst, image.Pt(d.Dot.X.Ceil()+1, dot.Y-8), c)
	d.Dot.X += fixed.I(ringLen)
	d.DrawString("C")
}

func cross(dst draw.Image, pt image.Point, c color.Color) {
	for i := -armLen; i <= armLen; i++ {
		set(dst, pt.X+i, pt.Y, c)
		set(dst, pt.X, pt.Y+i, c)
	}
}

// ring draws a 3x3 hollow square whose top left corner is p.
func ring(dst draw.Image, p image.Point, c color.Color) {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if i == 1 && j == 1 {
				continue
			}
			set(dst, p.X+i, p.Y+j, c)
		}
	}
}

func set(dst draw.Image, x, y int, c color.Color) {
	if (image.Point{x, y}).In(dst.Bounds()) {
		dst.Set(x, y, c)
	}
}
