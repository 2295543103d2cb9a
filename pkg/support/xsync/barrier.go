// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xsync

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrBrokenBarrier is returned by Barrier.Wait when the barrier was broken.
var ErrBrokenBarrier = errors.New("barrier broken")

// Barrier is a reusable rendezvous point for a fixed number of goroutines ("parties"):
// Wait blocks until all parties called it, and then releases all of them and resets for the
// next generation.
//
// Every write issued by a party before calling Wait happens-before every read issued by any
// party after Wait returns.
//
// A Barrier can be broken (see Break), in which case all current and future calls to Wait
// return ErrBrokenBarrier. This is used when one of the parties fails and won't arrive.
type Barrier struct {
	mu         sync.Mutex
	cond       *sync.Cond
	parties    int
	arrived    int
	generation uint64
	broken     bool
}

// NewBarrier creates a Barrier for the given number of parties. It panics if parties <= 0.
func NewBarrier(parties int) *Barrier {
	if parties <= 0 {
		panic(errors.Errorf("NewBarrier: invalid number of parties %d", parties))
	}
	b := &Barrier{parties: parties}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Parties returns the number of goroutines that must call Wait to release the barrier.
func (b *Barrier) Parties() int {
	return b.parties
}

// Wait blocks until all parties have called Wait, or until the barrier is broken.
func (b *Barrier) Wait() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.broken {
		return ErrBrokenBarrier
	}
	generation := b.generation
	b.arrived++
	if b.arrived == b.parties {
		// Last to arrive: release everyone and start a new generation.
		b.arrived = 0
		b.generation++
		b.cond.Broadcast()
		return nil
	}
	for generation == b.generation && !b.broken {
		b.cond.Wait()
	}
	if generation == b.generation {
		return ErrBrokenBarrier
	}
	return nil
}

// Break the barrier: goroutines waiting on it are released with ErrBrokenBarrier, and so are
// any future calls to Wait.
func (b *Barrier) Break() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.broken = true
	b.cond.Broadcast()
}

// IsBroken returns whether Break was called.
func (b *Barrier) IsBroken() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.broken
}
