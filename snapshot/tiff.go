// Copyright 2026 dboth. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"

	"golang.org/x/image/tiff"

	"github.com/dboth/thermalplant/thermal"
)

// TIFF tags and field types used by the temperature raster.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPlanarConfig    = 284
	tagSampleFormat    = 339

	dtShort = 3
	dtLong  = 4

	sampleFormatUint  = 1
	sampleFormatFloat = 3

	tiffHeaderLen = 8
	maxSide       = 1 << 15
)

var errMalformed = errors.New("snapshot: malformed tiff")

type ifdEntry struct {
	tag   uint16
	typ   uint16
	value uint32
}

// EncodeTemperatures writes the field as an uncompressed single channel TIFF
// of 32 bits floats in °C. Every value is stored as is.
func EncodeTemperatures(w io.Writer, f *thermal.TemperatureField) error {
	b := f.Bounds()
	width, height := b.Dx(), b.Dy()
	if width <= 0 || height <= 0 || width > maxSide || height > maxSide {
		return fmt.Errorf("snapshot: can't encode a %dx%d field", width, height)
	}
	size := 4 * width * height
	// Entries must be sorted by tag.
	entries := []ifdEntry{
		{tagImageWidth, dtLong, uint32(width)},
		{tagImageLength, dtLong, uint32(height)},
		{tagBitsPerSample, dtShort, 32},
		{tagCompression, dtShort, 1},
		{tagPhotometric, dtShort, 1},
		{tagStripOffsets, dtLong, 0},
		{tagSamplesPerPixel, dtShort, 1},
		{tagRowsPerStrip, dtLong, uint32(height)},
		{tagStripByteCounts, dtLong, uint32(size)},
		{tagPlanarConfig, dtShort, 1},
		{tagSampleFormat, dtShort, sampleFormatFloat},
	}
	dataOff := tiffHeaderLen + 2 + 12*len(entries) + 4
	entries[5].value = uint32(dataOff)

	le := binary.LittleEndian
	buf := make([]byte, dataOff+size)
	copy(buf, "II")
	le.PutUint16(buf[2:], 42)
	le.PutUint32(buf[4:], tiffHeaderLen)
	p := tiffHeaderLen
	le.PutUint16(buf[p:], uint16(len(entries)))
	p += 2
	for _, e := range entries {
		le.PutUint16(buf[p:], e.tag)
		le.PutUint16(buf[p+2:], e.typ)
		le.PutUint32(buf[p+4:], 1)
		if e.typ == dtShort {
			le.PutUint16(buf[p+8:], uint16(e.value))
		} else {
			le.PutUint32(buf[p+8:], e.value)
		}
		p += 12
	}
	// The next IFD offset stays 0.
	p = dataOff
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			le.PutUint32(buf[p:], math.Float32bits(f.CelsiusAt(x, y)))
			p += 4
		}
	}
	_, err := w.Write(buf)
	return err
}

// DecodeTemperatures reads back a raster written by EncodeTemperatures.
//
// A 16 bits grayscale TIFF, as exported by radiometric tools, is also accepted
// and read as centi-Kelvin.
func DecodeTemperatures(r io.Reader) (*thermal.TemperatureField, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	t, err := parseTIFF(data)
	if err != nil {
		return nil, err
	}
	if t.sampleFormat == sampleFormatUint && t.bits == 16 {
		return decodeCentiKelvin(data)
	}
	if t.sampleFormat != sampleFormatFloat || t.bits != 32 || t.samples != 1 || t.compression != 1 {
		return nil, fmt.Errorf("snapshot: unsupported tiff: format %d, %d bits, %d samples, compression %d", t.sampleFormat, t.bits, t.samples, t.compression)
	}
	if len(t.offsets) != len(t.counts) {
		return nil, errMalformed
	}
	size := 4 * t.width * t.height
	pix := make([]byte, 0, size)
	for i, off := range t.offsets {
		end := int64(off) + int64(t.counts[i])
		if end > int64(len(data)) {
			return nil, errMalformed
		}
		pix = append(pix, data[off:end]...)
	}
	if len(pix) < size {
		return nil, fmt.Errorf("snapshot: tiff has %d bytes of samples, want %d", len(pix), size)
	}
	f := thermal.NewTemperatureField(image.Rect(0, 0, t.width, t.height))
	for i := range f.C {
		f.C[i] = math.Float32frombits(t.bo.Uint32(pix[4*i:]))
	}
	return f, nil
}

func decodeCentiKelvin(data []byte) (*thermal.TemperatureField, error) {
	img, err := tiff.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	f := thermal.NewTemperatureField(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			k := color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16).Y
			f.C[y*f.Stride+x] = float32(float64(k)/100 - thermal.ZeroCelsius)
		}
	}
	return f, nil
}

// tiffInfo is the first IFD of a TIFF file.
type tiffInfo struct {
	bo           binary.ByteOrder
	width        int
	height       int
	bits         uint32
	samples      uint32
	compression  uint32
	sampleFormat uint32
	offsets      []uint32
	counts       []uint32
}

func parseTIFF(data []byte) (*tiffInfo, error) {
	if len(data) < tiffHeaderLen {
		return nil, errMalformed
	}
	t := &tiffInfo{samples: 1, compression: 1, sampleFormat: sampleFormatUint}
	switch string(data[:2]) {
	case "II":
		t.bo = binary.LittleEndian
	case "MM":
		t.bo = binary.BigEndian
	default:
		return nil, errMalformed
	}
	if t.bo.Uint16(data[2:]) != 42 {
		return nil, errMalformed
	}
	p := int64(t.bo.Uint32(data[4:]))
	if p+2 > int64(len(data)) {
		return nil, errMalformed
	}
	n := int64(t.bo.Uint16(data[p:]))
	p += 2
	if p+12*n > int64(len(data)) {
		return nil, errMalformed
	}
	for i := int64(0); i < n; i++ {
		e := data[p+12*i : p+12*i+12]
		v, err := t.values(data, e)
		if err != nil {
			return nil, err
		}
		if len(v) == 0 {
			continue
		}
		switch t.bo.Uint16(e) {
		case tagImageWidth:
			t.width = int(v[0])
		case tagImageLength:
			t.height = int(v[0])
		case tagBitsPerSample:
			t.bits = v[0]
		case tagCompression:
			t.compression = v[0]
		case tagSamplesPerPixel:
			t.samples = v[0]
		case tagSampleFormat:
			t.sampleFormat = v[0]
		case tagStripOffsets:
			t.offsets = v
		case tagStripByteCounts:
			t.counts = v
		}
	}
	if t.width <= 0 || t.height <= 0 || t.width > maxSide || t.height > maxSide {
		return nil, fmt.Errorf("snapshot: tiff size %dx%d", t.width, t.height)
	}
	return t, nil
}

// values returns the SHORT or LONG values of an IFD entry. Other types are
// skipped.
func (t *tiffInfo) values(data, e []byte) ([]uint32, error) {
	var size int64
	switch t.bo.Uint16(e[2:]) {
	case dtShort:
		size = 2
	case dtLong:
		size = 4
	default:
		return nil, nil
	}
	n := int64(t.bo.Uint32(e[4:]))
	raw := e[8:12]
	if total := n * size; total > 4 {
		off := int64(t.bo.Uint32(raw))
		if off+total > int64(len(data)) {
			return nil, errMalformed
		}
		raw = data[off : off+total]
	}
	out := make([]uint32, n)
	for i := range out {
		if size == 2 {
			out[i] = uint32(t.bo.Uint16(raw[2*i:]))
		} else {
			out[i] = t.bo.Uint32(raw[4*i:])
		}
	}
	return out, nil
}
