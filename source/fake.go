// Copyright 2026 dboth. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package source

import (
	"image"
	"image/color"
	"math/rand"
	"time"

	"github.com/dboth/thermalplant/thermal"
)

// Fake is a simulated thermal sensor reporting centi-Kelvin samples, to run
// without hardware.
type Fake struct {
	// Delay is slept before each frame, to simulate the sensor's rate.
	Delay time.Duration

	noise *noise
	lut   thermal.LookupTable
	rect  image.Rectangle
	count int
}

// NewFake returns a simulated 80x60 sensor running at ~9Hz, like a Lepton.
func NewFake() *Fake {
	return &Fake{
		Delay: 111 * time.Millisecond,
		noise: makeNoise(),
		lut:   thermal.LinearLUT(16, 0.01),
		rect:  image.Rect(0, 0, 80, 60),
	}
}

func (f *Fake) Kind() Kind {
	return ThermalSensor
}

func (f *Fake) Read() (*Frame, error) {
	if f.Delay != 0 {
		time.Sleep(f.Delay)
	}
	raw := thermal.NewRawFrame(f.rect)
	f.noise.update()
	f.noise.render(raw)
	f.count++
	info, err := thermal.Measure(raw, f.lut)
	if err != nil {
		return nil, err
	}
	return &Frame{Raw: raw, Info: info, LUT: f.lut}, nil
}

func (f *Fake) Close() error {
	return nil
}

// FakeCamera is a simulated visible camera drawing moving color bars.
type FakeCamera struct {
	Delay time.Duration
	Size  image.Point

	offset int
}

func (f *FakeCamera) Kind() Kind {
	return VisibleCamera
}

func (f *FakeCamera) Read() (*Frame, error) {
	if f.Delay != 0 {
		time.Sleep(f.Delay)
	}
	size := f.Size
	if size == (image.Point{}) {
		size = image.Pt(640, 480)
	}
	img := image.NewRGBA(image.Rectangle{Max: size})
	bars := []color.RGBA{
		{255, 255, 255, 255}, {255, 255, 0, 255}, {0, 255, 255, 255}, {0, 255, 0, 255},
		{255, 0, 255, 255}, {255, 0, 0, 255}, {0, 0, 255, 255}, {0, 0, 0, 255},
	}
	for x := 0; x < size.X; x++ {
		c := bars[((x+f.offset)*len(bars)/size.X)%len(bars)]
		for y := 0; y < size.Y; y++ {
			img.SetRGBA(x, y, c)
		}
	}
	f.offset = (f.offset + 4) % size.X
	return &Frame{Image: img}, nil
}

func (f *FakeCamera) Close() error {
	return nil
}

//

const (
	ambient      = 29500 // 22.35°C in centi-Kelvin.
	dynamicRange = 1500  // ±15K around ambient.
)

type vector struct {
	intensity float64
	x         float64
	y         float64
}

// noise is cheezy but gets us going for testing without a device.
type noise struct {
	rand    *rand.Rand
	vectors []vector
}

func makeNoise() *noise {
	n := &noise{rand: rand.New(rand.NewSource(0))}
	n.vectors = make([]vector, 10)
	for i := range n.vectors {
		n.vectors[i].intensity = n.rand.NormFloat64() * 20000
		n.vectors[i].x = n.rand.NormFloat64()*14 + 40
		n.vectors[i].y = n.rand.NormFloat64()*10 + 30
	}
	return n
}

func (n *noise) update() {
	for i := range n.vectors {
		n.vectors[i].intensity += n.rand.NormFloat64() * 200
		n.vectors[i].x += n.rand.NormFloat64() * 0.1
		n.vectors[i].y += n.rand.NormFloat64() * 0.1
	}
}

func (n *noise) render(f *thermal.RawFrame) {
	b := f.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		fy := float64(y)
		for x := b.Min.X; x < b.Max.X; x++ {
			fx := float64(x)
			value := float64(ambient)
			for _, vect := range n.vectors {
				distance := (vect.x-fx)*(vect.x-fx) + (vect.y-fy)*(vect.y-fy) + 1
				value += vect.intensity / distance
			}
			if value >= ambient+dynamicRange {
				value = ambient + dynamicRange
			}
			if value < ambient-dynamicRange {
				value = ambient - dynamicRange
			}
			f.SetGray16(x, y, uint16(value))
		}
	}
}
