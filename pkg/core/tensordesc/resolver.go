// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensordesc

import "github.com/gomlx/exceptions"

// Resolver maps multi-indices of a descriptor to memory offsets, using pre-allocated scratch
// buffers for each level of the transform chain.
//
// A Resolver is not safe for concurrent use: each goroutine ("thread") creates its own.
type Resolver struct {
	// levels[0] is the descriptor itself, levels[len-1] is the native root.
	levels  []*Descriptor
	scratch [][]int

	// subUpper and subLower are reused to pass the dimension groups of one step.
	subUpper, subLower []int
}

// NewResolver creates a Resolver for the descriptor.
func (d Descriptor) NewResolver() *Resolver {
	r := &Resolver{}
	maxGroup := 0
	for level := &d; ; level = level.lower {
		r.levels = append(r.levels, level)
		r.scratch = append(r.scratch, make([]int, level.Rank()))
		for _, step := range level.steps {
			maxGroup = max(maxGroup, len(step.LowerDims), len(step.UpperDims))
		}
		if level.IsNative() {
			break
		}
	}
	r.subUpper = make([]int, maxGroup)
	r.subLower = make([]int, maxGroup)
	return r
}

// Resolve returns the memory offset of the multi-index idx and whether it falls in the padding
// area of any level. When inPadding is true the offset is meaningless and must not be used.
func (r *Resolver) Resolve(idx []int) (offset int, inPadding bool) {
	if len(idx) != len(r.scratch[0]) {
		exceptions.Panicf("tensordesc.Resolver.Resolve: index %v has rank %d, descriptor has rank %d", idx, len(idx), len(r.scratch[0]))
	}
	upper := idx
	for levelIdx, level := range r.levels {
		if level.IsNative() {
			for axis, i := range upper {
				offset += i * level.strides[axis]
			}
			return offset, false
		}
		lower := r.scratch[levelIdx+1]
		for _, step := range level.steps {
			subUpper := r.subUpper[:len(step.UpperDims)]
			for i, dim := range step.UpperDims {
				subUpper[i] = upper[dim]
			}
			if step.Transform.IsUpperIndexInPaddingArea(subUpper) {
				return 0, true
			}
			subLower := r.subLower[:len(step.LowerDims)]
			step.Transform.CalculateLowerIndex(subUpper, subLower)
			for i, dim := range step.LowerDims {
				lower[dim] = subLower[i]
			}
		}
		upper = lower
	}
	// Unreachable: the chain always ends in a native descriptor.
	return 0, false
}

// Resolve returns the offset of idx and whether it is in the padding area. It allocates a
// Resolver on each call, see NewResolver for loops.
func (d Descriptor) Resolve(idx []int) (offset int, inPadding bool) {
	return d.NewResolver().Resolve(idx)
}
