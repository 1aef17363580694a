// Copyright 2026 dboth. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package display shows the live frames on a local screen.
package display

import (
	"context"
	"image"
	"image/color"
	"log"
	"time"

	"github.com/disintegration/imaging"

	"github.com/dboth/thermalplant/acquire"
	"github.com/dboth/thermalplant/mailbox"
)

// Blitter is a screen.
type Blitter interface {
	Bounds() image.Rectangle
	Blit(img image.Image) error
}

// Consumer copies the latest frame to a Blitter at its own refresh rate.
type Consumer struct {
	Frames *mailbox.Mailbox[*acquire.Frame]
	Out    Blitter
	// Interval is the refresh period. Defaults to 40ms.
	Interval time.Duration
	// Filter is used to scale frames. Defaults to nearest neighbor, which keeps
	// the thermal pixels sharp.
	Filter imaging.ResampleFilter
}

// Run refreshes the screen until ctx is done or the mailbox is closed.
//
// A frame is only drawn once; a blit error is logged and the frame retried on
// the next tick.
func (c *Consumer) Run(ctx context.Context) error {
	interval := c.Interval
	if interval <= 0 {
		interval = 40 * time.Millisecond
	}
	filter := c.Filter
	if filter.Support == 0 && filter.Kernel == nil {
		filter = imaging.NearestNeighbor
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	var last uint64
	var size image.Point
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		f, seq, ok := c.Frames.Peek()
		if !ok || seq == last {
			continue
		}
		if size == (image.Point{}) {
			size = c.Out.Bounds().Size()
		}
		if err := c.Out.Blit(Letterbox(f.Image, size, filter)); err != nil {
			log.Printf("display: %v", err)
			continue
		}
		last = seq
	}
}

// Letterbox scales img to fit in size, keeping its aspect ratio, and centers
// it on a black background.
func Letterbox(img image.Image, size image.Point, filter imaging.ResampleFilter) *image.NRGBA {
	b := img.Bounds()
	var fit *image.NRGBA
	if b.Dx() >= size.X || b.Dy() >= size.Y {
		fit = imaging.Fit(img, size.X, size.Y, filter)
	} else {
		// Fit never enlarges.
		w, h := size.X, b.Dy()*size.X/b.Dx()
		if h > size.Y {
			w, h = b.Dx()*size.Y/b.Dy(), size.Y
		}
		fit = imaging.Resize(img, w, h, filter)
	}
	dst := imaging.New(size.X, size.Y, color.Black)
	return imaging.PasteCenter(dst, fit)
}
