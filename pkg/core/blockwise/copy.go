// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package blockwise implements the operations all threads of a block perform cooperatively:
// copying a tile from global memory into the block's shared buffer, and the batched
// matrix-multiply-accumulate of shared tiles into per-thread registers.
//
// None of the operations synchronizes: the caller runs them between block barriers.
package blockwise

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/igemm/pkg/core/tensordesc"
	"github.com/gomlx/igemm/pkg/core/threadwise"
	"github.com/pkg/errors"
)

// TileCopy copies a tile (a slice of the source tensor) into a destination tensor, with the work
// split among the threads of a block.
//
// The threads are arranged in a cluster with ClusterLengths threads along each dimension, and
// each thread copies a sub-slice of SubLengths, so that ClusterLengths[i]*SubLengths[i] ==
// SliceLengths[i]. Thread t copies the sub-slice starting at ClusterIndex(t)*SubLengths.
type TileCopy[T any] struct {
	blockSize                                int
	sliceLengths, subLengths, clusterLengths []int
	clusterDesc                              tensordesc.Descriptor
	threadCopy                               *threadwise.SliceCopy[T, T]
}

// NewTileCopy validates the configuration and creates a TileCopy from the src to the dst
// descriptor.
//
// vectorDim and dataPerAccess configure the vector accesses of each thread, see
// threadwise.NewSliceCopy.
func NewTileCopy[T any](blockSize int, src, dst tensordesc.Descriptor, sliceLengths, subLengths, clusterLengths []int,
	vectorDim, dataPerAccess int) (*TileCopy[T], error) {
	rank := len(sliceLengths)
	if len(subLengths) != rank || len(clusterLengths) != rank {
		return nil, errors.Errorf("blockwise.NewTileCopy: slice lengths %v, sub-lengths %v and cluster lengths %v must have the same rank",
			sliceLengths, subLengths, clusterLengths)
	}
	numThreads := 1
	for dim := range rank {
		if subLengths[dim] <= 0 || clusterLengths[dim] <= 0 {
			return nil, errors.Errorf("blockwise.NewTileCopy: sub-lengths %v and cluster lengths %v must be positive",
				subLengths, clusterLengths)
		}
		if clusterLengths[dim]*subLengths[dim] != sliceLengths[dim] {
			return nil, errors.Errorf("blockwise.NewTileCopy: dimension %d: cluster length (%d) x sub-length (%d) != slice length (%d)",
				dim, clusterLengths[dim], subLengths[dim], sliceLengths[dim])
		}
		if dim < dst.Rank() && sliceLengths[dim] > dst.Length(dim) {
			return nil, errors.Errorf("blockwise.NewTileCopy: dimension %d: slice length %d doesn't fit the destination length %d",
				dim, sliceLengths[dim], dst.Length(dim))
		}
		numThreads *= clusterLengths[dim]
	}
	if numThreads != blockSize {
		return nil, errors.Errorf("blockwise.NewTileCopy: product of cluster lengths %v is %d, it must be equal to the block size %d",
			clusterLengths, numThreads, blockSize)
	}
	threadCopy, err := threadwise.NewSliceCopy(src, dst, subLengths, vectorDim, dataPerAccess, threadwise.Identity[T])
	if err != nil {
		return nil, errors.WithMessage(err, "blockwise.NewTileCopy")
	}
	return &TileCopy[T]{
		blockSize:      blockSize,
		sliceLengths:   slices.Clone(sliceLengths),
		subLengths:     slices.Clone(subLengths),
		clusterLengths: slices.Clone(clusterLengths),
		clusterDesc:    tensordesc.MakePacked(clusterLengths...),
		threadCopy:     threadCopy,
	}, nil
}

// ThreadDataBegin returns the index, relative to the tile origin, of the first element copied
// by the thread.
func (c *TileCopy[T]) ThreadDataBegin(threadID int) []int {
	if threadID < 0 || threadID >= c.blockSize {
		exceptions.Panicf("blockwise.TileCopy: invalid thread id %d for block size %d", threadID, c.blockSize)
	}
	begin := c.clusterDesc.MultiIndexFrom1D(threadID)
	for dim := range begin {
		begin[dim] *= c.subLengths[dim]
	}
	return begin
}

// SubLengths returns the lengths of the sub-slice copied by each thread.
func (c *TileCopy[T]) SubLengths() []int { return slices.Clone(c.subLengths) }

// TileCopyThread is the per-thread state of a TileCopy.
type TileCopyThread struct {
	begin     []int
	srcOrigin []int
	state     *threadwise.CopyState
}

// NewThread returns the state thread threadID uses to run its part of the copy.
func (c *TileCopy[T]) NewThread(threadID int) *TileCopyThread {
	begin := c.ThreadDataBegin(threadID)
	return &TileCopyThread{
		begin:     begin,
		srcOrigin: make([]int, len(begin)),
		state:     c.threadCopy.NewState(),
	}
}

// Run copies the thread's part of the tile that starts at srcOrigin (an index in the source
// descriptor, possibly in its padding area) into dst, starting at the destination origin.
// srcBase is added to every source offset.
func (c *TileCopy[T]) Run(th *TileCopyThread, src []T, srcBase int, srcOrigin []int, dst []T) {
	for dim, begin := range th.begin {
		th.srcOrigin[dim] = srcOrigin[dim] + begin
	}
	c.threadCopy.Run(th.state, src, srcBase, th.srcOrigin, dst, 0, th.begin)
}
