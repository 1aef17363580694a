// Copyright 2026 dboth. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package cvcam reads V4L video devices through OpenCV.
package cvcam

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/dboth/thermalplant/source"
)

// Camera is a V4L video device.
type Camera struct {
	kind  source.Kind
	index int
	vc    *gocv.VideoCapture
	mat   gocv.Mat
}

// Open opens the video device at index as a VisibleCamera.
//
// size, if not zero, is requested from the driver; the driver may ignore it.
func Open(index int, size image.Point) (*Camera, error) {
	return open(index, size, source.VisibleCamera)
}

// OpenFallback opens the first generic video device as a FallbackCamera: index
// 0 first, then whatever the backend picks with index -1.
func OpenFallback() (*Camera, error) {
	c, err := open(0, image.Point{}, source.FallbackCamera)
	if err == nil {
		return c, nil
	}
	c, err2 := open(-1, image.Point{}, source.FallbackCamera)
	if err2 != nil {
		return nil, errors.Join(err, err2)
	}
	return c, nil
}

func open(index int, size image.Point, kind source.Kind) (*Camera, error) {
	vc, err := gocv.OpenVideoCaptureWithAPI(index, gocv.VideoCaptureV4L)
	if err != nil {
		return nil, fmt.Errorf("cvcam: video%d: %w", index, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("cvcam: video%d: not opened", index)
	}
	if size != (image.Point{}) {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(size.X))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(size.Y))
	}
	// Keep the latency low, only the latest frame matters.
	vc.Set(gocv.VideoCaptureBufferSize, 3)
	return &Camera{kind: kind, index: index, vc: vc, mat: gocv.NewMat()}, nil
}

func (c *Camera) Kind() source.Kind {
	return c.kind
}

// Size returns the frame size reported by the driver.
func (c *Camera) Size() image.Point {
	return image.Pt(int(c.vc.Get(gocv.VideoCaptureFrameWidth)), int(c.vc.Get(gocv.VideoCaptureFrameHeight)))
}

// Read grabs the next frame and converts it to an image.Image.
func (c *Camera) Read() (*source.Frame, error) {
	if ok := c.vc.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, fmt.Errorf("cvcam: video%d: read failed", c.index)
	}
	img, err := c.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("cvcam: video%d: %w", c.index, err)
	}
	return &source.Frame{Image: img}, nil
}

func (c *Camera) Close() error {
	c.mat.Close()
	return c.vc.Close()
}

// Probe opens index only to query its native size. It is meant to be used as
// source.Locator.Open.
func Probe(index int) (source.Probe, error) {
	return open(index, image.Point{}, source.VisibleCamera)
}
