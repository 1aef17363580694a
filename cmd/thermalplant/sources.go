// Copyright 2026 dboth. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"fmt"
	"image"
	"log"

	"github.com/dboth/thermalplant/acquire"
	"github.com/dboth/thermalplant/config"
	"github.com/dboth/thermalplant/source"
	"github.com/dboth/thermalplant/source/cvcam"
)

func leptonOpts(cfg *config.Config) source.LeptonOpts {
	return source.LeptonOpts{
		SPI:    cfg.Sensor.SPI,
		I2C:    cfg.Sensor.I2C,
		SPIHz:  cfg.Sensor.SPIHz,
		I2CHz:  cfg.Sensor.I2CHz,
		ScaleK: cfg.Sensor.ScaleK,
	}
}

func thermalCandidate(cfg *config.Config) (source.Candidate, bool) {
	switch cfg.Sensor.Kind {
	case "lepton":
		return source.Candidate{Kind: source.ThermalSensor, Name: "lepton", Open: func() (source.Source, error) {
			l, err := source.OpenLepton(leptonOpts(cfg))
			if err != nil {
				return nil, fmt.Errorf("%w\nIf testing without hardware, use --fake to simulate a sensor", err)
			}
			return l, nil
		}}, true
	case "fake":
		return source.Candidate{Kind: source.ThermalSensor, Name: "fake", Open: func() (source.Source, error) {
			return source.NewFake(), nil
		}}, true
	default:
		return source.Candidate{}, false
	}
}

// cameraIndex returns the configured video device, locating it by its frame
// size if needed.
func cameraIndex(cfg *config.Config) (int, error) {
	if cfg.Camera.Index >= 0 {
		return cfg.Camera.Index, nil
	}
	l := source.Locator{Open: cvcam.Probe, Want: cfg.Camera.Size()}
	return l.Find()
}

func openCamera(index int, size image.Point) (source.Source, error) {
	c, err := cvcam.Open(index, size)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// openSources returns the startup policy: thermal sensor, then visible
// camera, then any generic camera. A visible camera is opened alongside a
// thermal sensor.
func openSources(cfg *config.Config) acquire.OpenFunc {
	return func() (*acquire.Sources, error) {
		var candidates []source.Candidate
		if c, ok := thermalCandidate(cfg); ok {
			candidates = append(candidates, c)
		}
		index := -1
		if cfg.Camera.Enabled {
			var err error
			if index, err = cameraIndex(cfg); err != nil {
				return nil, err
			}
			candidates = append(candidates, source.Candidate{
				Kind: source.VisibleCamera,
				Name: fmt.Sprintf("video%d", index),
				Open: func() (source.Source, error) { return openCamera(index, cfg.Camera.Size()) },
			})
		}
		if cfg.Camera.Fallback {
			candidates = append(candidates, source.Candidate{
				Kind: source.FallbackCamera,
				Name: "generic",
				Open: func() (source.Source, error) {
					c, err := cvcam.OpenFallback()
					if err != nil {
						return nil, err
					}
					return c, nil
				},
			})
		}
		primary, err := source.Open(candidates...)
		if err != nil {
			return nil, err
		}
		srcs := &acquire.Sources{Primary: primary}
		if primary.Kind() == source.ThermalSensor && cfg.Camera.Enabled {
			if srcs.Camera, err = openCamera(index, cfg.Camera.Size()); err != nil {
				log.Printf("camera: %v", err)
				srcs.Camera = nil
			}
		}
		return srcs, nil
	}
}
