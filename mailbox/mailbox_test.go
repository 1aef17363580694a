// Copyright 2026 dboth. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mailbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestPeek(t *testing.T) {
	m := New[int]()
	if _, _, ok := m.Peek(); ok {
		t.Fatal("empty mailbox")
	}
	m.Publish(1)
	m.Publish(2)
	v, seq, ok := m.Peek()
	if !ok || v != 2 || seq != 2 {
		t.Fatal(v, seq, ok)
	}
	// Reads are not destructive.
	for i := 0; i < 3; i++ {
		if v, _, _ := m.Peek(); v != 2 {
			t.Fatal(v)
		}
	}
	if d := m.Drops(); d != 1 {
		t.Fatalf("value 1 was never read: drops=%d", d)
	}
	m.Publish(3)
	if d := m.Drops(); d != 1 {
		t.Fatalf("value 2 was read: drops=%d", d)
	}
}

func TestWait(t *testing.T) {
	m := New[string]()
	ctx := context.Background()
	var wg sync.WaitGroup
	got := make([]string, 2)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _, err := m.Wait(ctx, 0)
			if err != nil {
				t.Error(err)
			}
			got[i] = v
		}(i)
	}
	time.Sleep(10 * time.Millisecond)
	seq := m.Publish("hot")
	wg.Wait()
	for _, v := range got {
		if v != "hot" {
			t.Fatal(got)
		}
	}
	// A value already seen is not returned again.
	done := make(chan string)
	go func() {
		v, _, err := m.Wait(ctx, seq)
		if err != nil {
			t.Error(err)
		}
		done <- v
	}()
	select {
	case v := <-done:
		t.Fatalf("returned stale value %q", v)
	case <-time.After(20 * time.Millisecond):
	}
	m.Publish("cold")
	if v := <-done; v != "cold" {
		t.Fatal(v)
	}
}

func TestWait_current(t *testing.T) {
	m := New[int]()
	m.Publish(42)
	v, seq, err := m.Wait(context.Background(), 0)
	if err != nil || v != 42 || seq != 1 {
		t.Fatal(v, seq, err)
	}
}

func TestWait_cancel(t *testing.T) {
	m := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error)
	go func() {
		_, _, err := m.Wait(ctx, 0)
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatal(err)
	}
}

func TestClose(t *testing.T) {
	m := New[int]()
	errc := make(chan error)
	go func() {
		_, _, err := m.Wait(context.Background(), 0)
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	m.Close()
	if err := <-errc; !errors.Is(err, ErrClosed) {
		t.Fatal(err)
	}
	m.Publish(1)
	if v, _, ok := m.Peek(); !ok || v != 1 {
		t.Fatal("Peek must keep working after Close")
	}
}
