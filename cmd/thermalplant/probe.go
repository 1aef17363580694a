// Copyright 2026 dboth. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"fmt"
	"image"
	"io"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/dboth/thermalplant/config"
	"github.com/dboth/thermalplant/source"
	"github.com/dboth/thermalplant/source/cvcam"
)

func (a *app) probeCmd() *cobra.Command {
	var max int
	var lepton, ffc bool
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "List the video devices and query the thermal sensor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if err := probeCameras(a.cfg, max, out); err != nil {
				return err
			}
			if lepton {
				return probeLepton(a.cfg, ffc, out)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&max, "max", 10, "number of video device indices to try")
	cmd.Flags().BoolVar(&lepton, "lepton", false, "query the Lepton over I²C")
	cmd.Flags().BoolVar(&ffc, "ffc", false, "trigger a flat field correction")
	return cmd
}

type probed struct {
	index int
	size  image.Point
	err   error
}

func probeCameras(cfg *config.Config, max int, out io.Writer) error {
	bar := progressbar.NewOptions(max,
		progressbar.OptionSetDescription("probing video devices"),
		progressbar.OptionSetWriter(out),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish())
	var found []probed
	l := source.Locator{
		Open: cvcam.Probe,
		Max:  max,
		Want: cfg.Camera.Size(),
		OnProbe: func(index int, size image.Point, err error) {
			found = append(found, probed{index, size, err})
			bar.Add(1)
		},
	}
	index, err := l.Find()
	bar.Finish()
	for _, p := range found {
		if p.err != nil {
			continue
		}
		fmt.Fprintf(out, "video%d: %dx%d\n", p.index, p.size.X, p.size.Y)
	}
	if err != nil {
		fmt.Fprintf(out, "%v\n", err)
		return nil
	}
	fmt.Fprintf(out, "Camera: video%d\n", index)
	return nil
}

func probeLepton(cfg *config.Config, ffc bool, out io.Writer) error {
	l, err := source.OpenLepton(leptonOpts(cfg))
	if err != nil {
		return err
	}
	defer l.Close()
	dev := l.Dev()
	status, err := dev.GetStatus()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Status.CameraStatus: %s\n", status.CameraStatus)
	fmt.Fprintf(out, "Status.CommandCount: %d\n", status.CommandCount)
	serial, err := dev.GetSerial()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Serial:              0x%x\n", serial)
	uptime, err := dev.GetUptime()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Uptime:              %s\n", uptime)
	temp, err := dev.GetTemp()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Temp:                %s\n", temp)
	temp, err = dev.GetTempHousing()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Temp housing:        %s\n", temp)
	if ffc {
		return dev.RunFFC()
	}
	return nil
}
