// Copyright 2026 dboth. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package config

import (
	"bytes"
	"context"
	"log"
	"os"
	"path/filepath"

	fsnotify "gopkg.in/fsnotify.v1"
)

// Watch calls onChange every time the file at path is modified, until ctx is
// done. Content that doesn't parse is logged and ignored.
//
// The directory is watched since editors usually replace the file.
func Watch(ctx context.Context, path string, onChange func(c *Config)) error {
	path = filepath.Clean(path)
	last, _ := os.ReadFile(path)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err = watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case err = <-watcher.Errors:
			return err
		case e := <-watcher.Events:
			if filepath.Clean(e.Name) != path || e.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			src, err := os.ReadFile(path)
			// A truncated file is being rewritten.
			if err != nil || len(src) == 0 || bytes.Equal(src, last) {
				continue
			}
			last = src
			c, err := parse(src)
			if err != nil {
				log.Printf("config: ignoring %s: %v", path, err)
				continue
			}
			onChange(c)
		}
	}
}
