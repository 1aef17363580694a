// Copyright 2026 dboth. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/maruel/interrupt"
	"github.com/spf13/cobra"

	"github.com/dboth/thermalplant/acquire"
	"github.com/dboth/thermalplant/config"
	"github.com/dboth/thermalplant/display"
	"github.com/dboth/thermalplant/palette"
	"github.com/dboth/thermalplant/process"
	"github.com/dboth/thermalplant/snapshot"
	"github.com/dboth/thermalplant/stream"
	"github.com/dboth/thermalplant/telemetry"
)

type runFlags struct {
	mode string
	fps  int
	addr string
	fb   string
	dir  string
	fake bool
}

func (a *app) runCmd() *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Acquire continuously, serve the stream and save snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.apply(a.cfg); err != nil {
				return err
			}
			return run(cmd.Context(), a.cfg, a.configPath)
		},
	}
	cmd.Flags().StringVar(&f.mode, "mode", "", "initial mode: thermal, camera or both")
	cmd.Flags().IntVar(&f.fps, "fps", 0, "acquisition rate; 25 for a local display, 8 for streaming")
	cmd.Flags().StringVar(&f.addr, "http", "", "stream server address, e.g. :8010")
	cmd.Flags().StringVar(&f.fb, "fb", "", "framebuffer device to display on, e.g. fb0")
	cmd.Flags().StringVar(&f.dir, "dir", "", "directory to save snapshots in")
	cmd.Flags().BoolVar(&f.fake, "fake", false, "use a simulated thermal sensor")
	return cmd
}

// apply overrides the configuration with the flags that were set.
func (f *runFlags) apply(cfg *config.Config) error {
	if f.mode != "" {
		m, err := acquire.ParseMode(f.mode)
		if err != nil {
			return err
		}
		cfg.Mode = m
	}
	if f.fps != 0 {
		cfg.FPS = f.fps
	}
	if f.addr != "" {
		cfg.HTTP.Addr = f.addr
	}
	if f.fb != "" {
		cfg.Display.Framebuffer = f.fb
	}
	if f.dir != "" {
		cfg.Snapshots.Dir = f.dir
	}
	if f.fake {
		cfg.Sensor.Kind = "fake"
	}
	return cfg.Normalize()
}

func run(ctx context.Context, cfg *config.Config, configPath string) error {
	interrupt.HandleCtrlC()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-interrupt.Channel:
		case <-ctx.Done():
		}
		cancel()
	}()

	pal, err := palette.ByName(cfg.Palette)
	if err != nil {
		return err
	}
	loop := acquire.New(acquire.Config{
		Interval:    cfg.Interval(),
		Mode:        cfg.Mode,
		FlashFrames: cfg.FlashFrames,
		Processor: process.Processor{
			Orientation:       cfg.Orientation,
			CameraOrientation: cfg.Camera.Orientation,
			Palette:           pal,
			Scale:             cfg.Scale,
		},
	}, openSources(cfg))

	dir := cfg.Snapshots.Dir
	if dir == "" {
		dir = snapshot.DefaultDir()
	}
	sink := &snapshot.Sink{Dir: dir, Quality: cfg.Snapshots.Quality}
	catalogPath := cfg.Snapshots.Catalog
	if catalogPath == "" {
		catalogPath = filepath.Join(filepath.Dir(configPath), "snapshots.db")
	}
	if sink.Catalog, err = snapshot.OpenCatalog(catalogPath); err != nil {
		log.Printf("catalog disabled: %v", err)
		sink.Catalog = nil
	} else {
		defer sink.Catalog.Close()
	}
	saver := &snapshot.Saver{Sink: sink}

	var wg sync.WaitGroup
	if cfg.Telemetry.Enabled() {
		pub, err := telemetry.Connect(cfg.Telemetry)
		if err != nil {
			log.Printf("telemetry disabled: %v", err)
		} else {
			defer pub.Close()
			saver.OnSave = pub.Snapshot
			wg.Add(1)
			go func() {
				defer wg.Done()
				pub.Run(ctx, loop.Frames())
			}()
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		saver.Run(loop.Snapshots())
	}()

	if cfg.HTTP.Addr != "" {
		srv := &stream.Server{Loop: loop, Labeler: saver, Catalog: sink.Catalog, Quality: cfg.HTTP.Quality}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.ListenAndServe(ctx, cfg.HTTP.Addr); err != nil {
				log.Printf("http: %v", err)
			}
		}()
		fmt.Printf("Listening on %s\n", cfg.HTTP.Addr)
	}

	if cfg.Display.Framebuffer != "" {
		fb, err := display.OpenFramebuffer(cfg.Display.Framebuffer)
		if err != nil {
			log.Printf("display disabled: %v", err)
		} else {
			defer fb.Close()
			c := &display.Consumer{Frames: loop.Frames(), Out: fb, Interval: time.Second / time.Duration(cfg.Display.FPS)}
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.Run(ctx)
			}()
		}
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		err := config.Watch(ctx, configPath, func(c *config.Config) {
			log.Printf("config: mode %s", c.Mode)
			loop.RequestMode(c.Mode)
		})
		if err != nil {
			log.Printf("config: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := config.WatchExecutable(ctx); err != nil {
			log.Printf("watch: %v", err)
			return
		}
		if ctx.Err() == nil {
			fmt.Printf("\nExecutable changed, exiting.\n")
			cancel()
		}
	}()

	runErr := make(chan error, 1)
	go func() {
		runErr <- loop.Run(ctx)
		cancel()
	}()

	for ctx.Err() == nil {
		s := loop.Stats()
		fmt.Printf("\r%d frames %d dropped %d errors %d degenerate %d snapshots", s.Published, s.Dropped, s.ReadErrors, s.Degenerate, s.Snapshots)
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
		}
	}
	fmt.Print("\n")
	loop.Stop()
	err = <-runErr
	wg.Wait()
	return err
}
