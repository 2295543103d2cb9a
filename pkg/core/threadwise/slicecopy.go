// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package threadwise implements the operations a single thread performs on its own: copying a
// slice of a tensor between two descriptors, with vector accesses along one dimension.
package threadwise

import (
	"github.com/gomlx/igemm/pkg/core/tensordesc"
	"github.com/pkg/errors"
)

// SliceCopy copies a slice of fixed lengths from a source tensor to a destination tensor,
// each with its own descriptor, converting elements from S to D.
//
// Accesses are grouped in vectors of DataPerAccess consecutive elements along VectorDim.
// A vector whose source coordinate falls in the padding area of the source descriptor is written
// as zeros, and the source memory is not read.
//
// A SliceCopy is immutable and can be shared by all threads; each thread creates its own
// CopyState with NewState.
type SliceCopy[S, D any] struct {
	src, dst      tensordesc.Descriptor
	lengths       []int
	vectorDim     int
	dataPerAccess int
	convert       func(S) D
}

// NewSliceCopy validates the parameters and returns a SliceCopy.
//
// It checks that both descriptors have the rank of lengths, that lengths[vectorDim] is divisible
// by dataPerAccess, and, when dataPerAccess > 1, that the vector dimension has unit stride on
// both sides, is not padded, and that every other dimension has a stride divisible by
// dataPerAccess.
func NewSliceCopy[S, D any](src, dst tensordesc.Descriptor, lengths []int, vectorDim, dataPerAccess int, convert func(S) D) (*SliceCopy[S, D], error) {
	rank := len(lengths)
	if src.Rank() != rank || dst.Rank() != rank {
		return nil, errors.Errorf("threadwise.NewSliceCopy: source rank %d and destination rank %d must match slice lengths %v",
			src.Rank(), dst.Rank(), lengths)
	}
	if vectorDim < 0 || vectorDim >= rank {
		return nil, errors.Errorf("threadwise.NewSliceCopy: invalid vector dimension %d for rank %d", vectorDim, rank)
	}
	if dataPerAccess <= 0 || lengths[vectorDim]%dataPerAccess != 0 {
		return nil, errors.Errorf("threadwise.NewSliceCopy: slice length %d of the vector dimension %d is not divisible by DataPerAccess=%d",
			lengths[vectorDim], vectorDim, dataPerAccess)
	}
	if convert == nil {
		return nil, errors.New("threadwise.NewSliceCopy: a conversion function is required")
	}
	if dataPerAccess > 1 {
		for _, side := range []struct {
			name string
			desc tensordesc.Descriptor
		}{{"source", src}, {"destination", dst}} {
			if side.desc.Padded(vectorDim) {
				return nil, errors.Errorf("threadwise.NewSliceCopy: vector dimension %d of the %s is padded, it can't be read with DataPerAccess=%d",
					vectorDim, side.name, dataPerAccess)
			}
			for dim := range rank {
				stride, ok := side.desc.DimStride(dim)
				switch {
				case dim == vectorDim && (!ok || stride != 1):
					return nil, errors.Errorf("threadwise.NewSliceCopy: vector dimension %d of the %s must have unit stride for DataPerAccess=%d (%s)",
						vectorDim, side.name, dataPerAccess, side.desc)
				case dim != vectorDim && ok && stride%dataPerAccess != 0:
					return nil, errors.Errorf("threadwise.NewSliceCopy: stride %d of dimension %d of the %s is not divisible by DataPerAccess=%d",
						stride, dim, side.name, dataPerAccess)
				}
			}
		}
	}
	return &SliceCopy[S, D]{
		src:           src,
		dst:           dst,
		lengths:       append([]int(nil), lengths...),
		vectorDim:     vectorDim,
		dataPerAccess: dataPerAccess,
		convert:       convert,
	}, nil
}

// Lengths of the slice copied.
func (c *SliceCopy[S, D]) Lengths() []int { return append([]int(nil), c.lengths...) }

// DataPerAccess returns the vector width of the accesses.
func (c *SliceCopy[S, D]) DataPerAccess() int { return c.dataPerAccess }

// NumVectors returns the number of vector accesses in one Run.
func (c *SliceCopy[S, D]) NumVectors() int {
	n := 1
	for _, l := range c.lengths {
		n *= l
	}
	return n / c.dataPerAccess
}

// CopyState holds the per-thread scratch buffers used by SliceCopy.Run.
type CopyState struct {
	srcResolver, dstResolver *tensordesc.Resolver
	idx, srcIdx, dstIdx      []int
}

// NewState creates the per-thread state for Run.
func (c *SliceCopy[S, D]) NewState() *CopyState {
	rank := len(c.lengths)
	return &CopyState{
		srcResolver: c.src.NewResolver(),
		dstResolver: c.dst.NewResolver(),
		idx:         make([]int, rank),
		srcIdx:      make([]int, rank),
		dstIdx:      make([]int, rank),
	}
}

// Run copies the slice starting at srcOrigin in the source and dstOrigin in the destination.
// srcBase and dstBase are added to the offsets computed by the descriptors: they position the
// descriptors over the given slices.
//
// Slice indices out of range panic: the caller is responsible for the slice fitting in both
// tensors.
func (c *SliceCopy[S, D]) Run(state *CopyState, src []S, srcBase int, srcOrigin []int, dst []D, dstBase int, dstOrigin []int) {
	idx := state.idx
	clear(idx)
	numVectors := c.NumVectors()
	dpa := c.dataPerAccess
	var zero D
	for range numVectors {
		for dim, i := range idx {
			state.srcIdx[dim] = srcOrigin[dim] + i
			state.dstIdx[dim] = dstOrigin[dim] + i
		}
		dstOffset, _ := state.dstResolver.Resolve(state.dstIdx)
		dstOffset += dstBase
		srcOffset, inPadding := state.srcResolver.Resolve(state.srcIdx)
		if inPadding {
			for v := range dpa {
				dst[dstOffset+v] = zero
			}
		} else {
			srcOffset += srcBase
			if dpa == 1 {
				dst[dstOffset] = c.convert(src[srcOffset])
			} else {
				srcVec := src[srcOffset : srcOffset+dpa]
				dstVec := dst[dstOffset : dstOffset+dpa]
				for v, value := range srcVec {
					dstVec[v] = c.convert(value)
				}
			}
		}

		// Next vector: row-major, with the vector dimension stepping by dpa.
		for dim := len(idx) - 1; dim >= 0; dim-- {
			step := 1
			if dim == c.vectorDim {
				step = dpa
			}
			idx[dim] += step
			if idx[dim] < c.lengths[dim] {
				break
			}
			idx[dim] = 0
		}
	}
}

// Identity is the conversion function for copies that don't change the element type.
func Identity[T any](v T) T { return v }
