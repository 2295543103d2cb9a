// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package xsync implements the synchronization primitives used to simulate a block of threads:
// a one-shot Latch and a reusable, breakable Barrier.
package xsync

import "sync"

// Latch can be triggered once, and everyone waiting on it is released when it is.
//
// The zero value is not usable, create it with NewLatch.
type Latch struct {
	once sync.Once
	wait chan struct{}
}

// NewLatch returns an un-triggered latch.
func NewLatch() *Latch {
	return &Latch{wait: make(chan struct{})}
}

// Trigger the latch, releasing all waiting goroutines. It can be called more than once.
func (l *Latch) Trigger() {
	l.once.Do(func() { close(l.wait) })
}

// Wait blocks until the latch is triggered.
func (l *Latch) Wait() {
	<-l.wait
}

// WaitChan returns a channel closed when the latch is triggered, for use in select statements.
func (l *Latch) WaitChan() <-chan struct{} {
	return l.wait
}

// Test returns whether the latch was already triggered, without blocking.
func (l *Latch) Test() bool {
	select {
	case <-l.wait:
		return true
	default:
		return false
	}
}
