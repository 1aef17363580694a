// Copyright 2026 dboth. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package source

import (
	"errors"
	"fmt"
	"image"
	"io"
	"log"
)

// ErrDeviceNotFound is returned by Locator.Find when no candidate has the
// expected geometry.
var ErrDeviceNotFound = errors.New("source: device not found")

// Probe is a device opened only to query its frame size.
type Probe interface {
	io.Closer
	Size() image.Point
}

// ProbeFunc opens the device at index.
type ProbeFunc func(index int) (Probe, error)

// Locator finds the video device whose native frame size matches Want.
type Locator struct {
	Open ProbeFunc
	// Max is the number of indices to try, starting at 0. Defaults to 10.
	Max int
	// Want is the expected frame size. Defaults to 640x480.
	Want image.Point
	// OnProbe is called after each index is tried, if set.
	OnProbe func(index int, size image.Point, err error)
}

// Find returns the first index whose frame size is Want.
//
// Every probe is closed, including the selected one; the caller reopens it by
// index. It is not retried on failure.
func (l *Locator) Find() (int, error) {
	max := l.Max
	if max <= 0 {
		max = 10
	}
	want := l.Want
	if want == (image.Point{}) {
		want = image.Pt(640, 480)
	}
	for i := 0; i < max; i++ {
		p, err := l.Open(i)
		var size image.Point
		if err == nil {
			size = p.Size()
			if cerr := p.Close(); cerr != nil {
				log.Printf("source: closing probe %d: %v", i, cerr)
			}
		}
		if l.OnProbe != nil {
			l.OnProbe(i, size, err)
		}
		if err != nil {
			log.Printf("source: device %d: %v", i, err)
			continue
		}
		log.Printf("source: device %d is %dx%d", i, size.X, size.Y)
		if size == want {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: no %dx%d device among %d", ErrDeviceNotFound, want.X, want.Y, max)
}
