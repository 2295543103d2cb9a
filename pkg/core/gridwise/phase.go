// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gridwise

import (
	"k8s.io/klog/v2"
)

// Phase of the per-thread state machine of the kernel:
//
//	Init → (LoadTiles → BarrierA → Accumulate → BarrierB)* → Writeback
type Phase int

//go:generate go tool enumer -type Phase -trimprefix=Phase -output=gen_phase_enumer.go phase.go

const (
	// PhaseInit computes the block tile origin and zeroes the accumulator.
	PhaseInit Phase = iota

	// PhaseLoadTiles copies the input and the weight tiles of one (y, x, c) step to shared memory.
	PhaseLoadTiles

	// PhaseBarrierA waits for the tiles to be loaded by all threads.
	PhaseBarrierA

	// PhaseAccumulate runs the blockwise GEMM on the shared tiles.
	PhaseAccumulate

	// PhaseBarrierB waits for all threads to finish reading the shared tiles.
	PhaseBarrierB

	// PhaseWriteback copies the accumulator to the output.
	PhaseWriteback
)

// PhaseEvent is a transition of one thread of the kernel to a new phase.
type PhaseEvent struct {
	BlockID, ThreadID int
	Phase             Phase

	// Y, X and C are the filter tap and the first input channel of the step, for the phases
	// of the loop (LoadTiles to BarrierB). They are 0 otherwise.
	Y, X, C int
}

// PhaseObserver is called by every thread at every phase transition.
//
// It is called concurrently by the threads of a block (and of different blocks), it must be
// safe for concurrent use.
type PhaseObserver func(event PhaseEvent)

// observe reports the phase transition to the observer, if any, and traces it at verbosity 3.
func (cv *Convolution[T, A]) observe(event PhaseEvent) {
	if klog.V(3).Enabled() {
		klog.Infof("gridwise: block %d, thread %d: %s (y=%d, x=%d, c=%d)",
			event.BlockID, event.ThreadID, event.Phase, event.Y, event.X, event.C)
	}
	if cv.observer != nil {
		cv.observer(event)
	}
}
