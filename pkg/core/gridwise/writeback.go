// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gridwise

import (
	"github.com/gomlx/igemm/pkg/core/numeric"
	"github.com/gomlx/igemm/pkg/core/tensordesc"
	"github.com/gomlx/igemm/pkg/core/threadwise"
	"github.com/pkg/errors"
)

// ReshapeStrategy is how the output and the thread register tile are folded for the
// writeback, so that the innermost dimension of the copy is contiguous in both and a multiple
// of the output vector width.
//
// Both fold the output [K, Ho, Wo, N] into 10 dimensions, with K as [K/(K1·K2), K1, K2] where
// K2=GemmMPerThreadSubC and K1=KPerBlock/KPerThread.
type ReshapeStrategy int

//go:generate go tool enumer -type ReshapeStrategy -trimprefix=Reshape -output=gen_reshapestrategy_enumer.go writeback.go

const (
	// ReshapeSubTileInsideN is used when GemmNPerThreadSubC <= NPerBlock: a GEMM sub-tile
	// column spans only batch elements.
	//
	// N is folded as [N/NPerBlock, N1, N2] with N2=GemmNPerThreadSubC, and Wo as
	// [Wo/WoPerBlock, W1, W2] with W2 the number of sub-tile columns along Wo.
	ReshapeSubTileInsideN ReshapeStrategy = iota

	// ReshapeSubTileAcrossWo is used when GemmNPerThreadSubC > NPerBlock: a GEMM sub-tile
	// column spans W3=GemmNPerThreadSubC/NPerBlock output columns.
	//
	// N is folded as [N/NPerBlock, NPerBlock], and Wo as [Wo/WoPerBlock, W1, W2, W3].
	ReshapeSubTileAcrossWo
)

// writeback copies the accumulator of a thread to the output.
type writeback[T numeric.Element, A numeric.Accumulator] struct {
	strategy         ReshapeStrategy
	global, register tensordesc.Descriptor
	copy             *threadwise.SliceCopy[A, T]
}

// newWriteback builds the folded descriptors of the output and of the thread registers
// [KPerThread, HoPerThread, WoPerThread, NPerThread] for the strategy selected by the
// configuration.
func newWriteback[T numeric.Element, A numeric.Accumulator](cfg Config, out, registers tensordesc.Descriptor) (*writeback[T, A], error) {
	k2 := cfg.GemmMPerThreadSubC
	k1 := cfg.KPerBlock / cfg.KPerThread
	nSub := cfg.GemmNPerThreadSubC
	nClusters := cfg.GemmNLevel0Cluster * cfg.GemmNLevel1Cluster

	var globalW, registerW, globalN, registerN []int
	strategy := cfg.ReshapeStrategy()
	switch strategy {
	case ReshapeSubTileInsideN:
		n2 := nSub
		n1 := cfg.NPerBlock / n2
		w2 := nClusters / n1
		w1 := cfg.WoPerBlock / w2
		globalN, registerN = []int{n1, n2}, []int{1, n2}
		globalW, registerW = []int{w1, w2}, []int{w1, 1}
	case ReshapeSubTileAcrossWo:
		n1 := cfg.NPerBlock
		w3 := nSub / n1
		w2 := nClusters
		w1 := cfg.WoPerBlock / (w2 * w3)
		globalN, registerN = []int{n1}, []int{n1}
		globalW, registerW = []int{w1, w2, w3}, []int{w1, 1, w3}
	}

	global, err := foldOutput(out, []int{k1, k2}, globalW, globalN)
	if err != nil {
		return nil, errors.WithMessagef(err, "folding the output for %s", strategy)
	}
	register, err := foldOutput(registers, []int{1, k2}, registerW, registerN)
	if err != nil {
		return nil, errors.WithMessagef(err, "folding the thread registers for %s", strategy)
	}
	_, store := numeric.Converters[T, A]()
	outCopy, err := threadwise.NewSliceCopy(register, global, register.Lengths(), register.Rank()-1,
		cfg.OutThreadCopyDataPerAccessN, store)
	if err != nil {
		return nil, errors.WithMessagef(err, "output copy for %s", strategy)
	}
	return &writeback[T, A]{
		strategy: strategy,
		global:   global,
		register: register,
		copy:     outCopy,
	}, nil
}

// foldOutput folds the dimensions of a [K, Ho, Wo, N] descriptor, last one first so the
// dimension indices of the earlier ones don't move.
func foldOutput(desc tensordesc.Descriptor, k, w, n []int) (tensordesc.Descriptor, error) {
	desc, err := desc.Fold(3, n...)
	if err != nil {
		return desc, err
	}
	desc, err = desc.Fold(2, w...)
	if err != nil {
		return desc, err
	}
	return desc.Fold(0, k...)
}

// newState returns the per-thread state of run.
func (wb *writeback[T, A]) newState() *threadwise.CopyState { return wb.copy.NewState() }

// run copies the registers to the output, where outBase is the offset of the first element of
// the thread tile.
func (wb *writeback[T, A]) run(state *threadwise.CopyState, registers []A, out []T, outBase int) {
	origin := make([]int, wb.global.Rank())
	wb.copy.Run(state, registers, 0, origin, out, outBase, origin)
}
