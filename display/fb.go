// Copyright 2026 dboth. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package display

import (
	"fmt"
	"image"
	"image/draw"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Framebuffer is a Linux framebuffer device, e.g. the Raspberry Pi's
// touchscreen at /dev/fb0.
//
// Only 16 bits (RGB565) and 32 bits (BGRA) formats are supported.
type Framebuffer struct {
	f      *os.File
	size   image.Point
	bpp    int
	stride int
	buf    []byte
	rgba   *image.RGBA
}

// OpenFramebuffer opens /dev/<name>, its geometry is read from sysfs.
func OpenFramebuffer(name string) (*Framebuffer, error) {
	return openFramebuffer(filepath.Join("/dev", name), filepath.Join("/sys/class/graphics", name))
}

func openFramebuffer(dev, sys string) (*Framebuffer, error) {
	v, err := readSys(sys, "virtual_size")
	if err != nil {
		return nil, err
	}
	parts := strings.Split(v, ",")
	if len(parts) != 2 {
		return nil, fmt.Errorf("display: unexpected virtual_size %q", v)
	}
	fb := &Framebuffer{}
	if fb.size.X, err = strconv.Atoi(parts[0]); err != nil {
		return nil, fmt.Errorf("display: virtual_size: %w", err)
	}
	if fb.size.Y, err = strconv.Atoi(parts[1]); err != nil {
		return nil, fmt.Errorf("display: virtual_size: %w", err)
	}
	if v, err = readSys(sys, "bits_per_pixel"); err != nil {
		return nil, err
	}
	if fb.bpp, err = strconv.Atoi(v); err != nil {
		return nil, fmt.Errorf("display: bits_per_pixel: %w", err)
	}
	if fb.bpp != 16 && fb.bpp != 32 {
		return nil, fmt.Errorf("display: %d bits per pixel is not supported", fb.bpp)
	}
	fb.stride = fb.size.X * fb.bpp / 8
	if v, err = readSys(sys, "stride"); err == nil {
		if s, err := strconv.Atoi(v); err == nil && s >= fb.stride {
			fb.stride = s
		}
	}
	if fb.f, err = os.OpenFile(dev, os.O_WRONLY, 0); err != nil {
		return nil, err
	}
	fb.buf = make([]byte, fb.stride*fb.size.Y)
	fb.rgba = image.NewRGBA(image.Rectangle{Max: fb.size})
	return fb, nil
}

func (fb *Framebuffer) Bounds() image.Rectangle {
	return image.Rectangle{Max: fb.size}
}

// Blit draws img at the top left corner and writes the whole screen.
func (fb *Framebuffer) Blit(img image.Image) error {
	draw.Draw(fb.rgba, fb.rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	pack(fb.buf, fb.rgba, fb.bpp, fb.stride)
	_, err := fb.f.WriteAt(fb.buf, 0)
	return err
}

func (fb *Framebuffer) Close() error {
	return fb.f.Close()
}

// pack converts src to the framebuffer's pixel format.
func pack(dst []byte, src *image.RGBA, bpp, stride int) {
	b := src.Bounds()
	for y := 0; y < b.Dy(); y++ {
		row := dst[y*stride:]
		s := src.Pix[y*src.Stride:]
		for x := 0; x < b.Dx(); x++ {
			r, g, bl := s[4*x], s[4*x+1], s[4*x+2]
			if bpp == 16 {
				v := uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(bl>>3)
				row[2*x] = byte(v)
				row[2*x+1] = byte(v >> 8)
			} else {
				row[4*x] = bl
				row[4*x+1] = g
				row[4*x+2] = r
				row[4*x+3] = 0xFF
			}
		}
	}
}

func readSys(dir, name string) (string, error) {
	b, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return "", fmt.Errorf("display: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}
