// Copyright 2026 dboth. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package snapshot

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/image/tiff"

	"github.com/dboth/thermalplant/thermal"
)

var when = time.Date(2026, 3, 14, 15, 9, 26, 0, time.Local)

func makeSnapshot(t *testing.T) *thermal.Snapshot {
	raw := thermal.NewRawFrameFrom([][]uint16{{29315, 29415}, {30315, 27315}})
	lut := thermal.LinearLUT(16, 0.01)
	field, err := thermal.Calibrate(raw, lut)
	if err != nil {
		t.Fatal(err)
	}
	info, err := thermal.Measure(raw, lut)
	if err != nil {
		t.Fatal(err)
	}
	cam := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for i := range cam.Pix {
		cam.Pix[i] = 200
	}
	return &thermal.Snapshot{Seq: 7, Time: when, Camera: cam, Field: field, Info: info}
}

func TestName(t *testing.T) {
	data := []struct {
		label string
		want  string
	}{
		{"", "20260314_150926"},
		{"tomato", "tomato.20260314_150926"},
		{" leaf 3 / north ", "leaf_3__north.20260314_150926"},
		{"../../etc", "etc.20260314_150926"},
		{"!!!", "20260314_150926"},
	}
	for i, line := range data {
		if got := Name(line.label, when); got != line.want {
			t.Fatalf("#%d: %q != %q", i, got, line.want)
		}
	}
}

func TestSanitize(t *testing.T) {
	data := []struct {
		in   string
		want string
	}{
		{"basil", "basil"},
		{"row 2", "row_2"},
		{"a/b\\c", "abc"},
		{"feuille_été-1", "feuille_été-1"},
	}
	for i, line := range data {
		if got := Sanitize(line.in); got != line.want {
			t.Fatalf("#%d: %q != %q", i, got, line.want)
		}
	}
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'x'
	}
	if got := Sanitize(string(long)); len(got) != maxLabel {
		t.Fatal(len(got))
	}
}

func TestSink_Save(t *testing.T) {
	dir := t.TempDir()
	s := &Sink{Dir: dir}
	snap := makeSnapshot(t)
	e, err := s.Save(snap, "pot 1")
	if err != nil {
		t.Fatal(err)
	}
	if e.Name != "pot_1.20260314_150926" || e.Label != "pot_1" {
		t.Fatalf("%+v", e)
	}
	if e.Camera != filepath.Join(dir, e.Name+CameraSuffix) || e.Temperatures != filepath.Join(dir, e.Name+TemperaturesSuffix) {
		t.Fatalf("%+v", e)
	}

	f, err := os.Open(e.Temperatures)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	field, err := DecodeTemperatures(f)
	if err != nil {
		t.Fatal(err)
	}
	if field.Bounds() != snap.Field.Bounds() {
		t.Fatal(field.Bounds())
	}
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			if field.CelsiusAt(x, y) != snap.Field.CelsiusAt(x, y) {
				t.Fatalf("(%d,%d): %g != %g", x, y, field.CelsiusAt(x, y), snap.Field.CelsiusAt(x, y))
			}
		}
	}

	j, err := os.Open(e.Camera)
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	img, err := jpeg.Decode(j)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds() != image.Rect(0, 0, 32, 24) {
		t.Fatal(img.Bounds())
	}

	// Same second, same label: no overwrite.
	e2, err := s.Save(snap, "pot 1")
	if err != nil {
		t.Fatal(err)
	}
	if e2.Name != "pot_1.20260314_150926-2" {
		t.Fatal(e2.Name)
	}
}

func TestSink_Save_noCamera(t *testing.T) {
	dir := t.TempDir()
	snap := makeSnapshot(t)
	snap.Camera = nil
	e, err := (&Sink{Dir: dir}).Save(snap, "")
	if err != nil {
		t.Fatal(err)
	}
	if e.Camera != "" || e.Temperatures == "" {
		t.Fatalf("%+v", e)
	}
	if _, err := os.Stat(filepath.Join(dir, "20260314_150926"+CameraSuffix)); !os.IsNotExist(err) {
		t.Fatal(err)
	}
	if _, err := (&Sink{Dir: dir}).Save(&thermal.Snapshot{Time: when}, ""); err == nil {
		t.Fatal("empty snapshot must fail")
	}
}

func TestSink_Save_unwritable(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "file")
	if err := os.WriteFile(p, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := (&Sink{Dir: p}).Save(makeSnapshot(t), ""); err == nil {
		t.Fatal("expected error")
	}
}

func TestFindDir(t *testing.T) {
	root := t.TempDir()
	if got := findDir(filepath.Join(root, "missing"), "/home/pi"); got != "/home/pi" {
		t.Fatal(got)
	}
	if err := os.WriteFile(filepath.Join(root, "a-file"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if got := findDir(root, "/home/pi"); got != "/home/pi" {
		t.Fatal(got)
	}
	if err := os.Mkdir(filepath.Join(root, "USBKEY"), 0o755); err != nil {
		t.Fatal(err)
	}
	if got := findDir(root, "/home/pi"); got != filepath.Join(root, "USBKEY") {
		t.Fatal(got)
	}
}

func TestCatalog(t *testing.T) {
	c, err := OpenCatalog(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	s := &Sink{Dir: t.TempDir(), Catalog: c}
	snap := makeSnapshot(t)
	first, err := s.Save(snap, "a")
	if err != nil {
		t.Fatal(err)
	}
	snap.Time = when.Add(time.Minute)
	snap.Info = nil
	second, err := s.Save(snap, "b")
	if err != nil {
		t.Fatal(err)
	}
	if first.ID == 0 || second.ID == first.ID {
		t.Fatal(first.ID, second.ID)
	}
	ctx := context.Background()
	l, err := c.List(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(l) != 2 || l[0].Name != second.Name || l[1].Name != first.Name {
		t.Fatalf("%+v", l)
	}
	if l[0].Info != nil {
		t.Fatal(l[0].Info)
	}
	if l[1].Info == nil || *l[1].Info != *first.Info {
		t.Fatalf("%v != %v", l[1].Info, first.Info)
	}
	if !l[1].Time.Equal(when) {
		t.Fatal(l[1].Time)
	}
	if l, err = c.List(ctx, 1); err != nil || len(l) != 1 {
		t.Fatal(l, err)
	}
}

func TestSaver(t *testing.T) {
	dir := t.TempDir()
	var got []*Entry
	s := &Saver{Sink: &Sink{Dir: dir}, OnSave: func(e *Entry) { got = append(got, e) }}
	c := make(chan *thermal.Snapshot, 3)
	s.SetLabel("first")
	c <- makeSnapshot(t)
	c <- makeSnapshot(t)
	c <- &thermal.Snapshot{Time: when}
	close(c)
	s.Run(c)
	if saved, failed := s.Stats(); saved != 2 || failed != 1 {
		t.Fatal(saved, failed)
	}
	if len(got) != 2 || got[0].Label != "first" || got[1].Label != "" {
		t.Fatalf("%+v", got)
	}
}

func TestEncodeTemperatures(t *testing.T) {
	f := thermal.NewTemperatureField(image.Rect(0, 0, 3, 2))
	copy(f.C, []float32{21.2345, 450, -280, 0.001, 1e-7, 1234.5678})
	var buf bytes.Buffer
	if err := EncodeTemperatures(&buf, f); err != nil {
		t.Fatal(err)
	}
	got, err := DecodeTemperatures(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Bounds() != f.Bounds() {
		t.Fatal(got.Bounds())
	}
	for i, want := range f.C {
		if got.C[i] != want {
			t.Fatalf("#%d: %g != %g", i, got.C[i], want)
		}
	}
}

func TestEncodeTemperatures_offset(t *testing.T) {
	// A field whose bounds don't start at the origin.
	f := thermal.NewTemperatureField(image.Rect(5, 5, 7, 6))
	f.C[0], f.C[1] = -1.5, 2.25
	var buf bytes.Buffer
	if err := EncodeTemperatures(&buf, f); err != nil {
		t.Fatal(err)
	}
	got, err := DecodeTemperatures(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Bounds() != image.Rect(0, 0, 2, 1) || got.C[0] != -1.5 || got.C[1] != 2.25 {
		t.Fatal(got.Bounds(), got.C)
	}
	if err := EncodeTemperatures(&buf, thermal.NewTemperatureField(image.Rectangle{})); err == nil {
		t.Fatal("empty field must fail")
	}
}

func TestDecodeTemperatures_centiKelvin(t *testing.T) {
	img := image.NewGray16(image.Rect(0, 0, 2, 1))
	img.SetGray16(0, 0, color.Gray16{Y: 29315})
	img.SetGray16(1, 0, color.Gray16{Y: 30000})
	var buf bytes.Buffer
	if err := tiff.Encode(&buf, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		t.Fatal(err)
	}
	got, err := DecodeTemperatures(&buf)
	if err != nil {
		t.Fatal(err)
	}
	for x, want := range []float64{20, 26.85} {
		if c := got.CelsiusAt(x, 0); math.Abs(float64(c)-want) > 0.001 {
			t.Fatal(x, c)
		}
	}
}

func TestDecodeTemperatures_invalid(t *testing.T) {
	rgb := image.NewRGBA(image.Rect(0, 0, 2, 2))
	var buf bytes.Buffer
	if err := tiff.Encode(&buf, rgb, nil); err != nil {
		t.Fatal(err)
	}
	var good bytes.Buffer
	if err := EncodeTemperatures(&good, thermal.NewTemperatureField(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}
	data := []struct {
		name string
		in   []byte
	}{
		{"empty", nil},
		{"magic", []byte("II\x2b\x00\x08\x00\x00\x00")},
		{"order", []byte("XX\x2a\x00\x08\x00\x00\x00")},
		{"rgb", buf.Bytes()},
		{"truncated", good.Bytes()[:good.Len()-1]},
	}
	for _, line := range data {
		if _, err := DecodeTemperatures(bytes.NewReader(line.in)); err == nil {
			t.Fatalf("%s: expected error", line.name)
		}
	}
}
