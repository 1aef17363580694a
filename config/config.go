// Copyright 2026 dboth. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package config loads the configuration file and watches it for changes.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"log"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dboth/thermalplant/acquire"
	"github.com/dboth/thermalplant/palette"
	"github.com/dboth/thermalplant/telemetry"
	"github.com/dboth/thermalplant/thermal"
)

// Sensor configures the thermal sensor.
type Sensor struct {
	// Kind is "lepton", "fake" or "none".
	Kind   string  `yaml:"kind"`
	SPI    string  `yaml:"spi"`
	I2C    string  `yaml:"i2c"`
	SPIHz  int64   `yaml:"spi_hz"`
	I2CHz  int64   `yaml:"i2c_hz"`
	ScaleK float64 `yaml:"scale_k"`
}

// Camera configures the visible camera.
type Camera struct {
	Enabled bool `yaml:"enabled"`
	// Index is the video device index, -1 to locate it by its frame size.
	Index  int `yaml:"index"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	// Fallback enables the generic camera when no thermal sensor is present.
	Fallback    bool                `yaml:"fallback"`
	Orientation thermal.Orientation `yaml:"orientation"`
}

// Size returns the expected frame size.
func (c *Camera) Size() image.Point {
	return image.Pt(c.Width, c.Height)
}

// Snapshots configures where snapshots are saved.
type Snapshots struct {
	// Dir is the destination; empty means a removable drive if any, else the
	// home directory.
	Dir     string `yaml:"dir"`
	Quality int    `yaml:"quality"`
	// Catalog is the sqlite database path. Empty means snapshots.db next to
	// the config file.
	Catalog string `yaml:"catalog"`
}

// HTTP configures the stream server.
type HTTP struct {
	// Addr is the listen address; empty disables the server.
	Addr    string `yaml:"addr"`
	Quality int    `yaml:"quality"`
}

// Display configures the local screen.
type Display struct {
	// Framebuffer is the device name, e.g. fb0; empty disables it.
	Framebuffer string `yaml:"framebuffer"`
	FPS         int    `yaml:"fps"`
}

// Config is the content of thermalplant.yaml.
type Config struct {
	Mode acquire.Mode `yaml:"mode"`
	// FPS is the acquisition rate: 25 for a local display, 8 is plenty for
	// network streaming.
	FPS         int                 `yaml:"fps"`
	Orientation thermal.Orientation `yaml:"orientation"`
	Palette     string              `yaml:"palette"`
	// Scale enlarges the thermal image before annotating it.
	Scale       int              `yaml:"scale"`
	FlashFrames int              `yaml:"flash_frames"`
	Sensor      Sensor           `yaml:"sensor"`
	Camera      Camera           `yaml:"camera"`
	Snapshots   Snapshots        `yaml:"snapshots"`
	HTTP        HTTP             `yaml:"http"`
	Display     Display          `yaml:"display"`
	Telemetry   telemetry.Config `yaml:"telemetry"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Mode:        acquire.Thermal,
		FPS:         25,
		Palette:     "inferno",
		Scale:       4,
		FlashFrames: 5,
		Sensor:      Sensor{Kind: "lepton", ScaleK: 0.01},
		Camera:      Camera{Index: -1, Width: 640, Height: 480, Fallback: true},
		Snapshots:   Snapshots{Quality: 90},
		HTTP:        HTTP{Addr: ":8010", Quality: 80},
		Display:     Display{FPS: 25},
		Telemetry:   telemetry.Config{Topic: "thermalplant", Interval: time.Second},
	}
}

// Normalize validates c and fills the missing values.
func (c *Config) Normalize() error {
	d := Default()
	if c.FPS <= 0 {
		c.FPS = d.FPS
	}
	if c.FPS > 100 {
		return fmt.Errorf("config: fps %d is too high", c.FPS)
	}
	if c.Palette == "" {
		c.Palette = d.Palette
	}
	if _, err := palette.ByName(c.Palette); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Scale <= 0 {
		c.Scale = 1
	}
	if c.FlashFrames < 0 {
		c.FlashFrames = 0
	}
	switch c.Sensor.Kind {
	case "":
		c.Sensor.Kind = d.Sensor.Kind
	case "lepton", "fake", "none":
	default:
		return fmt.Errorf("config: unknown sensor kind %q", c.Sensor.Kind)
	}
	if c.Sensor.ScaleK <= 0 {
		c.Sensor.ScaleK = d.Sensor.ScaleK
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		c.Camera.Width, c.Camera.Height = d.Camera.Width, d.Camera.Height
	}
	if c.Snapshots.Quality <= 0 || c.Snapshots.Quality > 100 {
		c.Snapshots.Quality = d.Snapshots.Quality
	}
	if c.HTTP.Quality <= 0 || c.HTTP.Quality > 100 {
		c.HTTP.Quality = d.HTTP.Quality
	}
	if c.Display.FPS <= 0 {
		c.Display.FPS = d.Display.FPS
	}
	if c.Telemetry.Topic == "" {
		c.Telemetry.Topic = d.Telemetry.Topic
	}
	if c.Telemetry.Interval <= 0 {
		c.Telemetry.Interval = d.Telemetry.Interval
	}
	if c.Telemetry.QoS > 2 {
		return fmt.Errorf("config: invalid qos %d", c.Telemetry.QoS)
	}
	return nil
}

// Interval returns the acquisition cycle period.
func (c *Config) Interval() time.Duration {
	return time.Second / time.Duration(c.FPS)
}

// DefaultPath returns ~/.config/thermalplant/thermalplant.yaml.
func DefaultPath() string {
	home := "."
	if usr, err := user.Current(); err == nil {
		home = usr.HomeDir
	}
	return filepath.Join(home, ".config", "thermalplant", "thermalplant.yaml")
}

// Load reads the configuration file at path, or creates one if none exists.
//
// The file is normalized: missing values are added with their defaults and
// written back so the user can discover every setting.
func Load(path string) (*Config, error) {
	src, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	c, err := parse(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(src, data) {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			log.Printf("config: failed to create %s: %v", filepath.Dir(path), err)
		} else if err := os.WriteFile(path, data, 0o600); err != nil {
			log.Printf("config: failed to write %s: %v", path, err)
		}
	}
	return c, nil
}

func parse(src []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(src, c); err != nil {
		return nil, err
	}
	if err := c.Normalize(); err != nil {
		return nil, err
	}
	return c, nil
}
