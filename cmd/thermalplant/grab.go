// Copyright 2026 dboth. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dboth/thermalplant/config"
	"github.com/dboth/thermalplant/palette"
	"github.com/dboth/thermalplant/process"
	"github.com/dboth/thermalplant/snapshot"
	"github.com/dboth/thermalplant/thermal"
)

func (a *app) grabCmd() *cobra.Command {
	var agc, meta, fake bool
	cmd := &cobra.Command{
		Use:   "grab <file.png|file.tiff>",
		Short: "Capture a single thermal frame",
		Long: `Capture a single thermal frame.

A .png file receives the raw 16 bits samples, or the annotated false-color
image with --agc. A .tiff file receives the temperature raster as 32 bits
floats in °C.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if fake {
				a.cfg.Sensor.Kind = "fake"
			}
			return grab(a.cfg, args[0], agc, meta, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&agc, "agc", false, "save the 8 bits annotated image instead of the raw samples")
	cmd.Flags().BoolVar(&meta, "meta", false, "print the spot temperatures")
	cmd.Flags().BoolVar(&fake, "fake", false, "use a simulated thermal sensor")
	return cmd
}

func grab(cfg *config.Config, path string, agc, meta bool, out io.Writer) error {
	c, ok := thermalCandidate(cfg)
	if !ok {
		return errors.New("no thermal sensor configured")
	}
	src, err := c.Open()
	if err != nil {
		return err
	}
	defer src.Close()
	f, err := src.Read()
	if err != nil {
		return err
	}
	raw, info := cfg.Orientation.Apply(f.Raw, f.Info)
	if meta {
		fmt.Fprintf(out, "Min:    %s at %s\n", thermal.FormatCelsius(info.Min.Celsius), info.Min.Point)
		fmt.Fprintf(out, "Max:    %s at %s\n", thermal.FormatCelsius(info.Max.Celsius), info.Max.Point)
		fmt.Fprintf(out, "Center: %s at %s\n", thermal.FormatCelsius(info.Center.Celsius), info.Center.Point)
	}
	w, err := os.Create(path)
	if err != nil {
		return err
	}
	defer w.Close()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		field, err := thermal.Calibrate(raw, f.LUT)
		if err != nil {
			return err
		}
		return snapshot.EncodeTemperatures(w, field)
	case ".png":
		var img image.Image = raw
		if agc {
			pal, err := palette.ByName(cfg.Palette)
			if err != nil {
				return err
			}
			p := &process.Processor{Palette: pal, Scale: cfg.Scale}
			v, ok := p.Thermal(raw, info)
			if !ok {
				return errors.New("the frame is uniform")
			}
			img = v
		}
		return png.Encode(w, img)
	default:
		return fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
}
