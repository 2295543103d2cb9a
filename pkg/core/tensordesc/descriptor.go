// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tensordesc implements tensor descriptors: multidimensional views over a flat memory
// region, described either natively (lengths and strides) or as a chain of index transforms
// (PassThrough, Pad, Merge, Fold) over another descriptor.
//
// Descriptors don't own storage: they only map a multi-index to an offset in a flat slice.
// They are immutable values, built once from the problem shape and shared freely between
// goroutines.
//
// Example: a CHWN input tensor padded in its spatial dimensions:
//
//	in := tensordesc.MakePacked(C, Hi, Wi, N)
//	pad, _ := tensordesc.NewPad([]int{Hi, Wi}, []int{1, 1}, []int{1, 1})
//	padded, err := tensordesc.Transformed(in,
//		tensordesc.Step{Transform: tensordesc.PassThrough{Length: C}, LowerDims: []int{0}, UpperDims: []int{0}},
//		tensordesc.Step{Transform: pad, LowerDims: []int{1, 2}, UpperDims: []int{1, 2}},
//		tensordesc.Step{Transform: tensordesc.PassThrough{Length: N}, LowerDims: []int{3}, UpperDims: []int{3}})
package tensordesc

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// Step is one transform of a transformed descriptor, with the dimensions of the lower
// descriptor it consumes and the dimensions of the new descriptor it produces.
type Step struct {
	Transform            Transform
	LowerDims, UpperDims []int
}

// Descriptor is a view of a tensor. See package documentation.
//
// The zero value is a scalar (rank 0) native descriptor.
type Descriptor struct {
	lengths []int

	// strides is only set for native descriptors.
	strides []int

	// lower is only set for transformed descriptors.
	lower *Descriptor
	steps []Step

	// padded marks the dimensions that derive, at any level, from a Pad transform.
	padded []bool
	linear bool
}

// MakeNative creates a native descriptor with the given lengths and strides.
// It panics if they don't have the same rank or if a length is not positive.
func MakeNative(lengths, strides []int) Descriptor {
	if len(lengths) != len(strides) {
		exceptions.Panicf("tensordesc.MakeNative: lengths %v and strides %v have different ranks", lengths, strides)
	}
	for axis, length := range lengths {
		if length <= 0 {
			exceptions.Panicf("tensordesc.MakeNative: invalid length %d for dimension %d (lengths=%v)", length, axis, lengths)
		}
	}
	return Descriptor{
		lengths: slices.Clone(lengths),
		strides: slices.Clone(strides),
		padded:  make([]bool, len(lengths)),
		linear:  true,
	}
}

// MakePacked creates a native row-major descriptor without gaps.
func MakePacked(lengths ...int) Descriptor {
	strides := make([]int, len(lengths))
	stride := 1
	for axis := len(lengths) - 1; axis >= 0; axis-- {
		strides[axis] = stride
		stride *= lengths[axis]
	}
	return MakeNative(lengths, strides)
}

// MakeAligned creates a native row-major descriptor whose innermost rows start at offsets
// multiple of align: the stride of the second innermost dimension is rounded up to a
// multiple of align. Used for the shared staging tiles, so that vectorized accesses of
// width align never straddle rows.
func MakeAligned(align int, lengths ...int) Descriptor {
	if align <= 0 {
		exceptions.Panicf("tensordesc.MakeAligned: invalid alignment %d", align)
	}
	rank := len(lengths)
	strides := make([]int, rank)
	if rank > 0 {
		strides[rank-1] = 1
	}
	if rank > 1 {
		strides[rank-2] = LeastMultiple(lengths[rank-1], align)
		for axis := rank - 3; axis >= 0; axis-- {
			strides[axis] = strides[axis+1] * lengths[axis+1]
		}
	}
	return MakeNative(lengths, strides)
}

// Transformed creates a new descriptor by applying the steps to lower.
//
// Each dimension of lower must be consumed by exactly one step, and the upper dimensions of
// all steps must cover [0, rank) exactly once. Merge and Fold can't be applied to dimensions
// that were padded: padding must be resolved before flattening.
func Transformed(lower Descriptor, steps ...Step) (Descriptor, error) {
	lowerRank := lower.Rank()
	lowerSeen := make([]bool, lowerRank)
	upperRank := 0
	for _, step := range steps {
		upperRank += len(step.UpperDims)
	}
	upperSeen := make([]bool, upperRank)
	d := Descriptor{
		lengths: make([]int, upperRank),
		lower:   &lower,
		steps:   make([]Step, 0, len(steps)),
		padded:  make([]bool, upperRank),
		linear:  lower.linear,
	}
	for stepIdx, step := range steps {
		if step.Transform == nil {
			return Descriptor{}, errors.Errorf("tensordesc.Transform: step #%d has no transform", stepIdx)
		}
		lowerLengths, upperLengths := step.Transform.LowerLengths(), step.Transform.UpperLengths()
		if len(step.LowerDims) != len(lowerLengths) || len(step.UpperDims) != len(upperLengths) {
			return Descriptor{}, errors.Errorf("tensordesc.Transform: step #%d (%s) takes %d lower and %d upper dimensions, got %v and %v",
				stepIdx, step.Transform, len(lowerLengths), len(upperLengths), step.LowerDims, step.UpperDims)
		}
		anyPadded := false
		for i, dim := range step.LowerDims {
			if dim < 0 || dim >= lowerRank || lowerSeen[dim] {
				return Descriptor{}, errors.Errorf("tensordesc.Transform: step #%d (%s) lower dimension %d is invalid or used twice (lower rank=%d)",
					stepIdx, step.Transform, dim, lowerRank)
			}
			lowerSeen[dim] = true
			if lower.lengths[dim] != lowerLengths[i] {
				return Descriptor{}, errors.Errorf("tensordesc.Transform: step #%d (%s) expects length %d for lower dimension %d, but it has length %d",
					stepIdx, step.Transform, lowerLengths[i], dim, lower.lengths[dim])
			}
			anyPadded = anyPadded || lower.padded[dim]
		}
		_, isPad := step.Transform.(Pad)
		_, isPassThrough := step.Transform.(PassThrough)
		if anyPadded && !isPad && !isPassThrough {
			return Descriptor{}, errors.Errorf("tensordesc.Transform: step #%d (%s) is applied over padded dimensions %v: padding must be resolved before merging or folding",
				stepIdx, step.Transform, step.LowerDims)
		}
		for i, dim := range step.UpperDims {
			if dim < 0 || dim >= upperRank || upperSeen[dim] {
				return Descriptor{}, errors.Errorf("tensordesc.Transform: step #%d (%s) upper dimension %d is invalid or used twice (upper rank=%d)",
					stepIdx, step.Transform, dim, upperRank)
			}
			upperSeen[dim] = true
			d.lengths[dim] = upperLengths[i]
			d.padded[dim] = isPad || (isPassThrough && anyPadded)
		}
		d.linear = d.linear && step.Transform.IsLinear()
		d.steps = append(d.steps, Step{
			Transform: step.Transform,
			LowerDims: slices.Clone(step.LowerDims),
			UpperDims: slices.Clone(step.UpperDims),
		})
	}
	for dim, seen := range lowerSeen {
		if !seen {
			return Descriptor{}, errors.Errorf("tensordesc.Transform: lower dimension %d (of %d) not consumed by any step", dim, lowerRank)
		}
	}
	return d, nil
}

// PassThroughSteps returns PassThrough steps for the given dimensions of d, keeping each
// dimension at the same position. A convenience to build Transform calls.
func (d Descriptor) PassThroughSteps(dims ...int) []Step {
	steps := make([]Step, len(dims))
	for i, dim := range dims {
		steps[i] = Step{Transform: PassThrough{Length: d.lengths[dim]}, LowerDims: []int{dim}, UpperDims: []int{dim}}
	}
	return steps
}

// IsNative returns whether the descriptor is described directly by lengths and strides.
func (d Descriptor) IsNative() bool { return d.lower == nil }

// Rank returns the number of dimensions.
func (d Descriptor) Rank() int { return len(d.lengths) }

// Lengths returns a copy of the lengths of the dimensions.
func (d Descriptor) Lengths() []int { return slices.Clone(d.lengths) }

// Length of dimension dim.
func (d Descriptor) Length(dim int) int { return d.lengths[dim] }

// Strides returns a copy of the strides of a native descriptor. It panics for transformed
// descriptors, see Linearize.
func (d Descriptor) Strides() []int {
	if !d.IsNative() {
		exceptions.Panicf("tensordesc.Descriptor.Strides: not a native descriptor, use Linearize() first")
	}
	return slices.Clone(d.strides)
}

// Stride of dimension dim of a native descriptor.
func (d Descriptor) Stride(dim int) int {
	if !d.IsNative() {
		exceptions.Panicf("tensordesc.Descriptor.Stride: not a native descriptor, use Linearize() first")
	}
	return d.strides[dim]
}

// DimStride returns the distance in memory between consecutive coordinates of dimension dim,
// if it is constant. It is not constant (ok is false) for dimensions produced by a Merge.
// For padded dimensions it is the stride within the non-padded area.
func (d Descriptor) DimStride(dim int) (stride int, ok bool) {
	if d.IsNative() {
		return d.strides[dim], true
	}
	for _, step := range d.steps {
		pos := slices.Index(step.UpperDims, dim)
		if pos < 0 {
			continue
		}
		switch t := step.Transform.(type) {
		case PassThrough, Pad:
			return d.lower.DimStride(step.LowerDims[pos])
		case Fold:
			stride, ok = d.lower.DimStride(step.LowerDims[0])
			return stride * product(t.Lengths[pos+1:]), ok
		default:
			return 0, false
		}
	}
	return 0, false
}

// Lower returns the descriptor this one was transformed from. It panics for native descriptors.
func (d Descriptor) Lower() Descriptor {
	if d.IsNative() {
		exceptions.Panicf("tensordesc.Descriptor.Lower: native descriptors have no lower descriptor")
	}
	return *d.lower
}

// Steps returns the transform steps of a transformed descriptor (nil for native descriptors).
func (d Descriptor) Steps() []Step { return slices.Clone(d.steps) }

// Native returns the native descriptor at the root of the transform chain.
func (d Descriptor) Native() Descriptor {
	for !d.IsNative() {
		d = *d.lower
	}
	return d
}

// Padded returns whether the dimension derives from a Pad transform.
func (d Descriptor) Padded(dim int) bool { return d.padded[dim] }

// HasPadding returns whether any dimension derives from a Pad transform.
func (d Descriptor) HasPadding() bool { return slices.Contains(d.padded, true) }

// IsLinear returns whether the offset is a linear function of the index: true for native
// descriptors and for chains of PassThrough and Fold transforms.
func (d Descriptor) IsLinear() bool { return d.linear }

// ElementSize is the number of elements addressable by the descriptor: the product of its lengths.
func (d Descriptor) ElementSize() int { return product(d.lengths) }

// ElementSpace is the size of the memory region spanned by the native root descriptor:
// 1 + Σ(length_i-1)·stride_i.
func (d Descriptor) ElementSpace() int {
	native := d.Native()
	space := 1
	for axis, length := range native.lengths {
		space += (length - 1) * native.strides[axis]
	}
	return space
}

// AlignedElementSpace is ElementSpace rounded up to a multiple of align.
func (d Descriptor) AlignedElementSpace(align int) int {
	return LeastMultiple(d.ElementSpace(), align)
}

// Offset returns the memory offset of the given multi-index.
// The result is meaningless if the index is in the padding area.
//
// It allocates, use a Resolver in loops.
func (d Descriptor) Offset(idx ...int) int {
	offset, _ := d.NewResolver().Resolve(idx)
	return offset
}

// IsInPaddingArea returns whether the multi-index falls in the padding area of any Pad transform.
func (d Descriptor) IsInPaddingArea(idx ...int) bool {
	_, inPadding := d.NewResolver().Resolve(idx)
	return inPadding
}

// MultiIndexFrom1D decomposes a linear id into a multi-index over the descriptor lengths
// (packed row-major order), using a Merge over the lengths.
func (d Descriptor) MultiIndexFrom1D(id int) []int {
	idx := make([]int, d.Rank())
	Merge{Lengths: d.lengths}.CalculateLowerIndex([]int{id}, idx)
	return idx
}

// OneDFromMultiIndex is the inverse of MultiIndexFrom1D, using a Fold over the lengths.
func (d Descriptor) OneDFromMultiIndex(idx ...int) int {
	flat := []int{0}
	Fold{Lengths: d.lengths}.CalculateLowerIndex(idx, flat)
	return flat[0]
}

// Extract returns a native descriptor with only the given dimensions (and their strides).
func (d Descriptor) Extract(dims ...int) Descriptor {
	if !d.IsNative() {
		exceptions.Panicf("tensordesc.Descriptor.Extract: only native descriptors can be extracted")
	}
	lengths := make([]int, len(dims))
	strides := make([]int, len(dims))
	for i, dim := range dims {
		lengths[i] = d.lengths[dim]
		strides[i] = d.strides[dim]
	}
	return MakeNative(lengths, strides)
}

// Fold splits dimension dim into len(innerLengths)+1 dimensions: the leading one with length
// Length(dim)/∏innerLengths, followed by innerLengths. All other dimensions pass through,
// shifted to make room for the new ones.
func (d Descriptor) Fold(dim int, innerLengths ...int) (Descriptor, error) {
	if dim < 0 || dim >= d.Rank() {
		return Descriptor{}, errors.Errorf("tensordesc.Descriptor.Fold: invalid dimension %d for rank %d", dim, d.Rank())
	}
	inner := product(innerLengths)
	if inner <= 0 || d.lengths[dim]%inner != 0 {
		return Descriptor{}, errors.Errorf("tensordesc.Descriptor.Fold: length %d of dimension %d is not divisible by inner lengths %v",
			d.lengths[dim], dim, innerLengths)
	}
	foldLengths := append([]int{d.lengths[dim] / inner}, innerLengths...)
	steps := make([]Step, 0, d.Rank())
	shift := len(innerLengths)
	for lowerDim := range d.Rank() {
		switch {
		case lowerDim < dim:
			steps = append(steps, Step{Transform: PassThrough{Length: d.lengths[lowerDim]}, LowerDims: []int{lowerDim}, UpperDims: []int{lowerDim}})
		case lowerDim == dim:
			upperDims := make([]int, len(foldLengths))
			for i := range upperDims {
				upperDims[i] = dim + i
			}
			steps = append(steps, Step{Transform: Fold{Lengths: foldLengths}, LowerDims: []int{dim}, UpperDims: upperDims})
		default:
			steps = append(steps, Step{Transform: PassThrough{Length: d.lengths[lowerDim]}, LowerDims: []int{lowerDim}, UpperDims: []int{lowerDim + shift}})
		}
	}
	return Transformed(d, steps...)
}

// Linearize collapses a linear descriptor (see IsLinear) into an equivalent native descriptor.
func (d Descriptor) Linearize() (Descriptor, error) {
	if d.IsNative() {
		return d, nil
	}
	if !d.linear {
		return Descriptor{}, errors.Errorf("tensordesc.Descriptor.Linearize: descriptor %s is not linear", d)
	}
	r := d.NewResolver()
	idx := make([]int, d.Rank())
	base, _ := r.Resolve(idx)
	strides := make([]int, d.Rank())
	for dim := range idx {
		idx[dim] = 1
		offset, _ := r.Resolve(idx)
		strides[dim] = offset - base
		idx[dim] = 0
	}
	return MakeNative(d.lengths, strides), nil
}

// String implements fmt.Stringer.
func (d Descriptor) String() string {
	if d.IsNative() {
		return fmt.Sprintf("native{lengths=%v, strides=%v}", d.lengths, d.strides)
	}
	parts := make([]string, len(d.steps))
	for i, step := range d.steps {
		parts[i] = fmt.Sprintf("%s%v->%v", step.Transform, step.LowerDims, step.UpperDims)
	}
	return fmt.Sprintf("transformed{lengths=%v, steps=[%s]} <- %s", d.lengths, strings.Join(parts, ", "), d.lower)
}

// LeastMultiple returns the smallest multiple of align that is >= value.
func LeastMultiple(value, align int) int {
	return ((value + align - 1) / align) * align
}
