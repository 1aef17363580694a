// Copyright 2026 dboth. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package display

import (
	"context"
	"encoding/binary"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"github.com/dboth/thermalplant/acquire"
	"github.com/dboth/thermalplant/mailbox"
)

func red(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+3] = 255, 255
	}
	return img
}

func TestLetterbox(t *testing.T) {
	data := []struct {
		src    image.Point
		inside image.Rectangle
	}{
		// Enlarged.
		{image.Pt(80, 60), image.Rect(80, 0, 720, 480)},
		// Reduced.
		{image.Pt(1280, 960), image.Rect(80, 0, 720, 480)},
		// Wide.
		{image.Pt(160, 60), image.Rect(0, 90, 800, 390)},
	}
	for i, line := range data {
		out := Letterbox(red(line.src.X, line.src.Y), image.Pt(800, 480), imaging.NearestNeighbor)
		if out.Bounds() != image.Rect(0, 0, 800, 480) {
			t.Fatalf("#%d: %v", i, out.Bounds())
		}
		in := out.NRGBAAt(line.inside.Min.X+1, line.inside.Min.Y+1)
		if in != (color.NRGBA{255, 0, 0, 255}) {
			t.Fatalf("#%d: %v", i, in)
		}
		if line.inside.Min.X > 0 {
			if c := out.NRGBAAt(line.inside.Min.X-1, 240); c != (color.NRGBA{0, 0, 0, 255}) {
				t.Fatalf("#%d: %v", i, c)
			}
		}
		if line.inside.Min.Y > 0 {
			if c := out.NRGBAAt(400, line.inside.Min.Y-1); c != (color.NRGBA{0, 0, 0, 255}) {
				t.Fatalf("#%d: %v", i, c)
			}
		}
	}
}

type screen struct {
	mu    sync.Mutex
	blits []image.Image
}

func (s *screen) Bounds() image.Rectangle { return image.Rect(0, 0, 40, 30) }

func (s *screen) Blit(img image.Image) error {
	s.mu.Lock()
	s.blits = append(s.blits, img)
	s.mu.Unlock()
	return nil
}

func (s *screen) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blits)
}

func TestConsumer(t *testing.T) {
	m := mailbox.New[*acquire.Frame]()
	out := &screen{}
	c := &Consumer{Frames: m, Out: out, Interval: time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- c.Run(ctx)
	}()
	m.Publish(&acquire.Frame{Image: red(4, 3)})
	for i := 0; out.count() == 0; i++ {
		if i == 1000 {
			t.Fatal("no blit")
		}
		time.Sleep(time.Millisecond)
	}
	// The same frame is not drawn twice.
	time.Sleep(20 * time.Millisecond)
	if n := out.count(); n != 1 {
		t.Fatal(n)
	}
	m.Publish(&acquire.Frame{Image: red(4, 3)})
	for i := 0; out.count() == 1; i++ {
		if i == 1000 {
			t.Fatal("no blit")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if b := out.blits[0].Bounds(); b != image.Rect(0, 0, 40, 30) {
		t.Fatal(b)
	}
}

func fakeFB(t *testing.T, bpp, stride string) (string, string) {
	dir := t.TempDir()
	sys := filepath.Join(dir, "sys")
	if err := os.Mkdir(sys, 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{"virtual_size": "4,2\n", "bits_per_pixel": bpp + "\n"}
	if stride != "" {
		files["stride"] = stride + "\n"
	}
	for k, v := range files {
		if err := os.WriteFile(filepath.Join(sys, k), []byte(v), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	dev := filepath.Join(dir, "fb0")
	if err := os.WriteFile(dev, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	return dev, sys
}

func TestFramebuffer16(t *testing.T) {
	dev, sys := fakeFB(t, "16", "")
	fb, err := openFramebuffer(dev, sys)
	if err != nil {
		t.Fatal(err)
	}
	if fb.Bounds() != image.Rect(0, 0, 4, 2) {
		t.Fatal(fb.Bounds())
	}
	if err := fb.Blit(red(4, 2)); err != nil {
		t.Fatal(err)
	}
	if err := fb.Close(); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(dev)
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != 16 {
		t.Fatal(len(b))
	}
	if v := binary.LittleEndian.Uint16(b); v != 0xF800 {
		t.Fatalf("%#x", v)
	}
}

func TestFramebuffer32(t *testing.T) {
	dev, sys := fakeFB(t, "32", "20")
	fb, err := openFramebuffer(dev, sys)
	if err != nil {
		t.Fatal(err)
	}
	defer fb.Close()
	if err := fb.Blit(red(4, 2)); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(dev)
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != 40 {
		t.Fatal(len(b))
	}
	// Second row starts after the padding.
	if b[20] != 0 || b[21] != 0 || b[22] != 255 || b[23] != 255 {
		t.Fatal(b[20:24])
	}
}

func TestFramebuffer_unsupported(t *testing.T) {
	dev, sys := fakeFB(t, "24", "")
	if _, err := openFramebuffer(dev, sys); err == nil {
		t.Fatal("expected error")
	}
}
