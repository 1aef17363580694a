// Copyright 2026 dboth. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package mailbox implements a single-slot, latest-value hand-off between one
// producer and any number of consumers.
//
// Publishing overwrites the slot and never blocks on consumers. Reading does
// not consume the value, so every consumer observes the most recent value at
// its own pace and slow consumers simply skip values.
package mailbox

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Wait once the mailbox is closed.
var ErrClosed = errors.New("mailbox: closed")

// Mailbox holds the latest published value.
//
// The zero value is not usable, use New.
type Mailbox[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	value  T
	seq    uint64 // 0 means nothing was published yet.
	closed bool

	overwrites atomic.Uint64 // Read by Drops() without the lock.
	peeked     atomic.Uint64 // seq of the last value read by a consumer.
}

// New returns an empty mailbox.
func New[T any]() *Mailbox[T] {
	m := &Mailbox[T]{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Publish replaces the value and wakes waiting consumers. It returns the
// sequence number assigned to v, starting at 1.
func (m *Mailbox[T]) Publish(v T) uint64 {
	m.mu.Lock()
	if m.seq != 0 && m.peeked.Load() < m.seq {
		m.overwrites.Add(1)
	}
	m.value = v
	m.seq++
	seq := m.seq
	m.cond.Broadcast()
	m.mu.Unlock()
	return seq
}

// Peek returns the latest value and its sequence number without waiting. ok
// is false if nothing was published yet.
func (m *Mailbox[T]) Peek() (v T, seq uint64, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markRead()
	return m.value, m.seq, m.seq != 0
}

// Wait blocks until a value newer than after is published, then returns it.
//
// Pass 0 to get the current value if any. It returns ErrClosed after Close
// and ctx.Err() when ctx is done.
func (m *Mailbox[T]) Wait(ctx context.Context, after uint64) (T, uint64, error) {
	var zero T
	if done := ctx.Done(); done != nil {
		stop := context.AfterFunc(ctx, func() {
			m.mu.Lock()
			m.cond.Broadcast()
			m.mu.Unlock()
		})
		defer stop()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.seq <= after && !m.closed {
		if err := ctx.Err(); err != nil {
			return zero, after, err
		}
		m.cond.Wait()
	}
	if m.closed {
		return zero, after, ErrClosed
	}
	m.markRead()
	return m.value, m.seq, nil
}

// Seq returns the sequence number of the latest value.
func (m *Mailbox[T]) Seq() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seq
}

// Drops returns how many values were overwritten before any consumer read
// them.
func (m *Mailbox[T]) Drops() uint64 {
	return m.overwrites.Load()
}

// Close wakes every waiter with ErrClosed. Publish keeps working so Peek
// users are unaffected.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	m.closed = true
	m.cond.Broadcast()
	m.mu.Unlock()
}

// markRead must be called with mu held.
func (m *Mailbox[T]) markRead() {
	if m.peeked.Load() < m.seq {
		m.peeked.Store(m.seq)
	}
}
