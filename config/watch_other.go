// Copyright 2026 dboth. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build !linux

package config

import "context"

// WatchExecutable blocks until ctx is done.
func WatchExecutable(ctx context.Context) error {
	<-ctx.Done()
	return nil
}
