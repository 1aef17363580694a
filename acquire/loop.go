// Copyright 2026 dboth. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package acquire runs the acquisition loop: it polls the sensors at a fixed
// cadence, turns their output into a visual frame and services snapshot
// requests.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dboth/thermalplant/mailbox"
	"github.com/dboth/thermalplant/process"
	"github.com/dboth/thermalplant/source"
	"github.com/dboth/thermalplant/thermal"
)

// ErrDegenerate is recorded when a thermal frame has no dynamic range. The
// cycle publishes nothing and the previous frame stays visible.
var ErrDegenerate = errors.New("acquire: degenerate frame")

// State is the lifecycle of a Loop.
type State int32

// Valid values for State.
const (
	Opening State = iota
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Opening:
		return "opening"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Sources are the sensors owned by a Loop for its lifetime.
//
// Primary is required. It is normally a thermal sensor but may be a camera
// when no thermal sensor is available. Camera is optional.
type Sources struct {
	Primary source.Source
	Camera  source.Source
}

// OpenFunc opens the sensors. It is called once from Run.
type OpenFunc func() (*Sources, error)

// Config configures a Loop.
type Config struct {
	// Interval is the cycle period. Defaults to 40ms.
	Interval time.Duration
	// Mode is the initial mode.
	Mode Mode
	// FlashFrames is the number of white frames published after a snapshot.
	FlashFrames int
	// SnapshotBuffer is the capacity of the Snapshots channel. Defaults to 4.
	SnapshotBuffer int
	Processor      process.Processor
}

// Frame is the visual frame of one cycle, as published to consumers.
//
// Thermal, Camera and Info are oriented and may be nil. The values must not be
// modified.
type Frame struct {
	Seq     uint64
	Time    time.Time
	Mode    Mode
	Image   image.Image
	Thermal *thermal.RawFrame
	Camera  image.Image
	Info    *thermal.CalibrationInfo
	Flash   bool
}

// Stats are counters about the loop.
type Stats struct {
	Cycles        uint64
	Published     uint64
	Dropped       uint64 // Frames overwritten before any consumer read them.
	Snapshots     uint64
	SnapshotDrops uint64
	ReadErrors    uint64
	Degenerate    uint64
	LastErr       string
}

// Loop is the acquisition loop.
type Loop struct {
	cfg  Config
	open OpenFunc

	frames    *mailbox.Mailbox[*Frame]
	snapshots chan *thermal.Snapshot

	state    atomic.Int32
	stopping atomic.Bool
	done     chan struct{}
	stopOnce sync.Once

	modeLock sync.Mutex
	mode     Mode

	snapLock    sync.Mutex
	snapPending bool

	statsLock sync.Mutex
	stats     Stats

	// Only accessed by the loop goroutine.
	seq   uint64
	flash int
	size  image.Rectangle
}

// New returns a Loop in the Opening state. Call Run to start it.
func New(cfg Config, open OpenFunc) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = 40 * time.Millisecond
	}
	if cfg.SnapshotBuffer <= 0 {
		cfg.SnapshotBuffer = 4
	}
	return &Loop{
		cfg:       cfg,
		open:      open,
		frames:    mailbox.New[*Frame](),
		snapshots: make(chan *thermal.Snapshot, cfg.SnapshotBuffer),
		done:      make(chan struct{}),
		mode:      cfg.Mode,
	}
}

// Run opens the sources and cycles until Stop is called or ctx is done.
//
// Failing to open the sources is fatal and returned. On return the sources are
// closed, Snapshots is closed and the mailbox waiters are released.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		close(l.snapshots)
		l.frames.Close()
		l.state.Store(int32(Stopped))
	}()
	l.state.Store(int32(Opening))
	srcs, err := l.open()
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	if srcs == nil || srcs.Primary == nil {
		return fmt.Errorf("acquire: %w", source.ErrNoSource)
	}
	l.state.Store(int32(Running))
	for !l.stopping.Load() && ctx.Err() == nil {
		start := time.Now()
		l.cycle(srcs)
		if d := l.cfg.Interval - time.Since(start); d > 0 {
			t := time.NewTimer(d)
			select {
			case <-t.C:
			case <-ctx.Done():
			case <-l.done:
			}
			t.Stop()
		}
	}
	l.state.Store(int32(Stopping))
	if err := srcs.Primary.Close(); err != nil {
		log.Printf("acquire: closing %s: %v", srcs.Primary.Kind(), err)
	}
	if srcs.Camera != nil {
		if err := srcs.Camera.Close(); err != nil {
			log.Printf("acquire: closing %s: %v", srcs.Camera.Kind(), err)
		}
	}
	return nil
}

// Stop asks the loop to exit. It is checked once per cycle.
func (l *Loop) Stop() {
	l.stopping.Store(true)
	l.stopOnce.Do(func() { close(l.done) })
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// RequestMode changes the mode starting with the next cycle.
func (l *Loop) RequestMode(m Mode) {
	l.modeLock.Lock()
	l.mode = m
	l.modeLock.Unlock()
}

// Mode returns the mode used by the next cycle.
func (l *Loop) Mode() Mode {
	l.modeLock.Lock()
	defer l.modeLock.Unlock()
	return l.mode
}

// RequestSnapshot queues a snapshot for the next successful cycle.
//
// Requests coalesce: it returns false if one was already pending, in which
// case both requests are served by the same snapshot.
func (l *Loop) RequestSnapshot() bool {
	l.snapLock.Lock()
	defer l.snapLock.Unlock()
	if l.snapPending {
		return false
	}
	l.snapPending = true
	return true
}

// Snapshots returns the channel snapshots are delivered on. It is closed when
// Run returns.
func (l *Loop) Snapshots() <-chan *thermal.Snapshot {
	return l.snapshots
}

// Frames returns the mailbox visual frames are published to.
func (l *Loop) Frames() *mailbox.Mailbox[*Frame] {
	return l.frames
}

// Stats returns a copy of the counters.
func (l *Loop) Stats() Stats {
	l.statsLock.Lock()
	s := l.stats
	l.statsLock.Unlock()
	s.Dropped = l.frames.Drops()
	return s
}

//

func (l *Loop) snapshotPending() bool {
	l.snapLock.Lock()
	defer l.snapLock.Unlock()
	return l.snapPending
}

func (l *Loop) clearSnapshot() {
	l.snapLock.Lock()
	l.snapPending = false
	l.snapLock.Unlock()
}

func (l *Loop) count(f func(s *Stats)) {
	l.statsLock.Lock()
	f(&l.stats)
	l.statsLock.Unlock()
}

func (l *Loop) fail(err error) {
	l.count(func(s *Stats) {
		if errors.Is(err, ErrDegenerate) {
			s.Degenerate++
		} else {
			s.ReadErrors++
		}
		s.LastErr = err.Error()
	})
}

// reading is what the sensors returned in one cycle, oriented.
type reading struct {
	raw      *thermal.RawFrame
	info     *thermal.CalibrationInfo
	lut      thermal.LookupTable
	camera   image.Image
	isCamera bool // The primary source is a camera.
}

func (l *Loop) cycle(srcs *Sources) {
	mode := l.Mode()
	snap := l.snapshotPending()
	l.seq++
	seq := l.seq
	now := time.Now()
	l.count(func(s *Stats) { s.Cycles++ })

	r, err := l.read(srcs, mode, snap)
	if err != nil {
		log.Printf("acquire: cycle %d: %v", seq, err)
		l.fail(err)
		return
	}

	if snap {
		// A failed snapshot is dropped; the live view goes on.
		if err := l.snapshot(seq, now, r); err != nil {
			log.Printf("acquire: snapshot %d: %v", seq, err)
			l.fail(err)
		} else if l.cfg.FlashFrames > 0 {
			l.flash = l.cfg.FlashFrames
		}
	}
	if l.flash > 0 {
		l.flash--
		l.publish(&Frame{Seq: seq, Time: now, Mode: mode, Image: process.Blank(l.flashBounds(r), color.White), Flash: true})
		return
	}

	img, err := l.render(mode, r)
	if err != nil {
		l.fail(err)
		return
	}
	l.size = img.Bounds()
	l.publish(&Frame{
		Seq:     seq,
		Time:    now,
		Mode:    mode,
		Image:   img,
		Thermal: r.raw,
		Camera:  r.camera,
		Info:    r.info,
	})
}

// read reads the primary source and the camera, if any.
//
// The camera is read on every cycle, even when the mode doesn't show it, so
// its driver queue never holds stale frames that a snapshot would pair with
// the current thermal frame. A camera failure only fails the cycle when the
// camera image is needed.
func (l *Loop) read(srcs *Sources, mode Mode, snap bool) (*reading, error) {
	p := &l.cfg.Processor
	r := &reading{}
	f, err := srcs.Primary.Read()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", srcs.Primary.Kind(), err)
	}
	if f.Raw != nil {
		r.raw, r.info = p.Orient(f.Raw, f.Info)
		r.lut = f.LUT
	} else {
		r.isCamera = true
		r.camera = p.OrientCamera(f.Image)
	}
	if srcs.Camera != nil {
		c, err := srcs.Camera.Read()
		if err != nil {
			err = fmt.Errorf("%s: %w", srcs.Camera.Kind(), err)
			if mode != Thermal || snap {
				return nil, err
			}
			log.Printf("acquire: %v", err)
		} else {
			r.camera = p.OrientCamera(c.Image)
		}
	}
	return r, nil
}

// snapshot delivers the unprocessed data of the cycle. The request is
// consumed even when it fails.
func (l *Loop) snapshot(seq uint64, now time.Time, r *reading) error {
	l.clearSnapshot()
	s := &thermal.Snapshot{Seq: seq, Time: now, Camera: r.camera, Info: r.info}
	if r.raw != nil && r.lut != nil {
		field, err := thermal.Calibrate(r.raw, r.lut)
		if err != nil {
			return err
		}
		s.Field = field
	}
	select {
	case l.snapshots <- s:
		l.count(func(st *Stats) { st.Snapshots++ })
	default:
		log.Printf("acquire: snapshot %d dropped, consumer is behind", seq)
		l.count(func(st *Stats) { st.SnapshotDrops++ })
	}
	return nil
}

// render builds the visual frame for mode. A missing input falls back to
// whatever is available.
func (l *Loop) render(mode Mode, r *reading) (image.Image, error) {
	p := &l.cfg.Processor
	thermalView := func() (image.Image, error) {
		raw, info := r.raw, r.info
		if r.isCamera {
			raw, info = process.Luma(r.camera), nil
		}
		img, ok := p.Thermal(raw, info)
		if !ok {
			return nil, ErrDegenerate
		}
		return img, nil
	}
	switch mode {
	case Camera:
		if r.camera != nil {
			return r.camera, nil
		}
		return thermalView()
	case Both:
		t, err := thermalView()
		if err != nil {
			return nil, err
		}
		if r.camera == nil || r.isCamera {
			return t, nil
		}
		return process.SideBySide(t, r.camera), nil
	default:
		return thermalView()
	}
}

func (l *Loop) publish(f *Frame) {
	l.frames.Publish(f)
	l.count(func(s *Stats) { s.Published++ })
}

func (l *Loop) flashBounds(r *reading) image.Rectangle {
	if !l.size.Empty() {
		return l.size
	}
	if r.raw != nil {
		return image.Rect(0, 0, r.raw.Rect.Dx(), r.raw.Rect.Dy())
	}
	if r.camera != nil {
		return r.camera.Bounds()
	}
	return image.Rect(0, 0, 80, 60)
}
