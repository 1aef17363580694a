// Copyright 2026 dboth. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package process

import (
	"image"
	"image/color"
	"testing"

	"github.com/dboth/thermalplant/overlay"
	"github.com/dboth/thermalplant/palette"
	"github.com/dboth/thermalplant/thermal"
)

func TestNormalize(t *testing.T) {
	raw := thermal.NewRawFrameFrom([][]uint16{{100, 200}, {300, 400}})
	g, ok := Normalize(raw)
	if !ok {
		t.Fatal("unexpected degenerate frame")
	}
	want := []uint8{0, 85, 170, 255}
	for i, v := range want {
		if g.Pix[i] != v {
			t.Fatalf("%d: %d != %d", i, g.Pix[i], v)
		}
	}
	img := Colorize(g, palette.Inferno)
	if c := img.RGBAAt(0, 0); c != palette.Inferno[0] {
		t.Fatal(c)
	}
	if c := img.RGBAAt(1, 1); c != palette.Inferno[255] {
		t.Fatal(c)
	}
}

func TestNormalize_range(t *testing.T) {
	data := [][][]uint16{
		{{0, 65535}},
		{{8000, 8001, 8002}, {8190, 8191, 8192}},
		{{3, 1, 4, 1, 5, 9, 2, 6}},
	}
	for i, rows := range data {
		raw := thermal.NewRawFrameFrom(rows)
		g, ok := Normalize(raw)
		if !ok {
			t.Fatalf("%d: degenerate", i)
		}
		lo, hi := uint8(255), uint8(0)
		for _, v := range g.Pix {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if lo != 0 || hi != 255 {
			t.Fatalf("%d: [%d, %d]", i, lo, hi)
		}
	}
}

func TestNormalize_uniform(t *testing.T) {
	raw := thermal.NewRawFrameFrom([][]uint16{{7, 7}, {7, 7}})
	g, ok := Normalize(raw)
	if ok {
		t.Fatal("uniform frame must be reported as degenerate")
	}
	for _, v := range g.Pix {
		if v != 0 {
			t.Fatal(g.Pix)
		}
	}
	p := Processor{}
	if img, ok := p.Thermal(raw, nil); ok || img != nil {
		t.Fatal("expected skip")
	}
}

func TestProcessorThermal(t *testing.T) {
	raw := thermal.NewRawFrame(image.Rect(0, 0, 80, 60))
	for i := range raw.Pix {
		raw.Pix[i] = uint16(29000 + i%80)
	}
	lut := thermal.LinearLUT(16, 0.01)
	info, err := thermal.Measure(raw, lut)
	if err != nil {
		t.Fatal(err)
	}
	p := Processor{Orientation: thermal.Rotated180, Scale: 2}
	r, i := p.Orient(raw, info)
	img, ok := p.Thermal(r, i)
	if !ok {
		t.Fatal("degenerate")
	}
	if b := img.Bounds(); b.Dx() != 160 || b.Dy() != 120 {
		t.Fatal(b)
	}
	// The warmest pixel is on the right before rotation, on the left after.
	if i.Max.Point.X != 0 {
		t.Fatal(i.Max.Point)
	}
	c := img.RGBAAt(1, i.Max.Point.Y*2+1)
	if c != overlay.MaxColor {
		t.Fatalf("no max marker at the scaled location: %v", c)
	}
}

func TestLuma(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.Black)
	img.Set(1, 0, color.White)
	raw := Luma(img)
	if raw.Pix[0] != 0 || raw.Pix[1] != 0xFFFF {
		t.Fatal(raw.Pix)
	}
}

func TestSideBySide(t *testing.T) {
	a := Blank(image.Rect(0, 0, 80, 60), color.White)
	b := Blank(image.Rect(0, 0, 640, 480), color.Black)
	out := SideBySide(a, b)
	if s := out.Bounds().Size(); s != image.Pt(160, 60) {
		t.Fatal(s)
	}
	if c := out.NRGBAAt(10, 10); c != (color.NRGBA{255, 255, 255, 255}) {
		t.Fatal(c)
	}
	if c := out.NRGBAAt(100, 10); c != (color.NRGBA{0, 0, 0, 255}) {
		t.Fatal(c)
	}
}

func TestOrientCamera(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.White)
	p := Processor{CameraOrientation: thermal.Rotated180}
	out := p.OrientCamera(img)
	r, _, _, _ := out.At(1, 0).RGBA()
	if r != 0xFFFF {
		t.Fatal("camera image not rotated")
	}
	if (&Processor{}).OrientCamera(img) != image.Image(img) {
		t.Fatal("upright must be a no-op")
	}
}
