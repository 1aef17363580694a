// Copyright 2026 dboth. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package source

import (
	"fmt"
	"image"
	"sync"

	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/conn/spi"
	"periph.io/x/periph/conn/spi/spireg"
	"periph.io/x/periph/devices/lepton"
	"periph.io/x/periph/devices/lepton/image14bit"
	"periph.io/x/periph/host"

	"github.com/dboth/thermalplant/thermal"
)

// LeptonOpts configures the FLIR Lepton connection.
type LeptonOpts struct {
	SPI   string // SPI port name, "" for the first one.
	I2C   string // I²C bus name, "" for the first one.
	SPIHz int64  // 0 keeps the driver default.
	I2CHz int64  // 0 keeps the driver default.
	// ScaleK is the Kelvin per count of the radiometric output: 0.01 for
	// TLinear high gain, 0.1 for low gain.
	ScaleK float64
}

// LeptonStats are counters about the frames read.
type LeptonStats struct {
	GoodFrames      int
	DuplicateFrames int
	Failures        int
	LastFail        error
}

// Lepton is a FLIR Lepton connected over SPI (video) and I²C (control).
type Lepton struct {
	spi spi.PortCloser
	i2c i2c.BusCloser
	dev *lepton.Dev
	lut thermal.LookupTable

	frame     *lepton.Frame
	lastCount uint32

	mu    sync.Mutex
	stats LeptonStats
}

// OpenLepton initializes the host drivers and connects to the Lepton.
func OpenLepton(opts LeptonOpts) (*Lepton, error) {
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	s, err := spireg.Open(opts.SPI)
	if err != nil {
		return nil, fmt.Errorf("lepton: spi: %w", err)
	}
	defer func() {
		if s != nil {
			s.Close()
		}
	}()
	if opts.SPIHz != 0 {
		if err := s.LimitSpeed(physic.Frequency(opts.SPIHz) * physic.Hertz); err != nil {
			return nil, fmt.Errorf("lepton: spi: %w", err)
		}
	}
	b, err := i2creg.Open(opts.I2C)
	if err != nil {
		return nil, fmt.Errorf("lepton: i2c: %w", err)
	}
	defer func() {
		if b != nil {
			b.Close()
		}
	}()
	if opts.I2CHz != 0 {
		if err := b.SetSpeed(physic.Frequency(opts.I2CHz) * physic.Hertz); err != nil {
			return nil, fmt.Errorf("lepton: i2c: %w", err)
		}
	}
	dev, err := lepton.New(s, b)
	if err != nil {
		return nil, fmt.Errorf("lepton: %w", err)
	}
	scale := opts.ScaleK
	if scale == 0 {
		scale = 0.01
	}
	l := &Lepton{
		spi:   s,
		i2c:   b,
		dev:   dev,
		lut:   thermal.LinearLUT(16, scale),
		frame: &lepton.Frame{Gray14: image14bit.NewGray14(dev.Bounds())},
	}
	s = nil
	b = nil
	return l, nil
}

func (l *Lepton) Kind() Kind {
	return ThermalSensor
}

// Read reads the next distinct frame. The sensor sends each frame three
// times; repeats are skipped.
func (l *Lepton) Read() (*Frame, error) {
	for {
		if err := l.dev.NextFrame(l.frame); err != nil {
			l.mu.Lock()
			l.stats.Failures++
			l.stats.LastFail = err
			l.mu.Unlock()
			return nil, err
		}
		count := l.frame.Metadata.FrameCount
		l.mu.Lock()
		dup := count != 0 && count == l.lastCount
		if dup {
			l.stats.DuplicateFrames++
		} else {
			l.stats.GoodFrames++
			l.stats.LastFail = nil
		}
		l.mu.Unlock()
		if dup {
			continue
		}
		l.lastCount = count
		break
	}
	raw := toRaw(l.frame.Gray14)
	info, err := thermal.Measure(raw, l.lut)
	if err != nil {
		return nil, err
	}
	return &Frame{Raw: raw, Info: info, LUT: l.lut}, nil
}

// Stats returns a copy of the counters. It is safe to call concurrently with
// Read.
func (l *Lepton) Stats() LeptonStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Dev returns the underlying driver, to query the camera over I²C.
func (l *Lepton) Dev() *lepton.Dev {
	return l.dev
}

func (l *Lepton) Close() error {
	var err error
	if l.dev != nil {
		err = l.dev.Halt()
		l.dev = nil
	}
	if l.spi != nil {
		if err2 := l.spi.Close(); err == nil {
			err = err2
		}
		l.spi = nil
	}
	if l.i2c != nil {
		if err2 := l.i2c.Close(); err == nil {
			err = err2
		}
		l.i2c = nil
	}
	return err
}

// toRaw copies the driver's frame so it can be handed off while the driver
// reuses its buffer.
func toRaw(g *image14bit.Gray14) *thermal.RawFrame {
	b := g.Bounds()
	raw := thermal.NewRawFrame(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			raw.Pix[(y-b.Min.Y)*raw.Stride+(x-b.Min.X)] = uint16(g.Intensity14At(x, y))
		}
	}
	return raw
}
