// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensordesc

import (
	"fmt"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// forEachIndex calls fn for every multi-index within lengths, in row-major order.
func forEachIndex(lengths []int, fn func(idx []int)) {
	idx := make([]int, len(lengths))
	total := product(lengths)
	for range total {
		fn(idx)
		for axis := len(idx) - 1; axis >= 0; axis-- {
			idx[axis]++
			if idx[axis] < lengths[axis] {
				break
			}
			idx[axis] = 0
		}
	}
}

func TestNative(t *testing.T) {
	d := MakePacked(2, 3, 4)
	assert.Equal(t, []int{12, 4, 1}, d.Strides())
	assert.Equal(t, 24, d.ElementSize())
	assert.Equal(t, 24, d.ElementSpace())
	assert.Equal(t, 1*12+2*4+3, d.Offset(1, 2, 3))
	assert.True(t, d.IsLinear())
	assert.False(t, d.HasPadding())

	aligned := MakeAligned(4, 2, 3, 3)
	assert.Equal(t, []int{12, 4, 1}, aligned.Strides())
	assert.Equal(t, 1+1*12+2*4+2, aligned.ElementSpace())
	assert.Equal(t, 24, aligned.AlignedElementSpace(4))

	sub := MakePacked(3, 5, 7, 2).Extract(0, 3)
	assert.Equal(t, []int{3, 2}, sub.Lengths())
	assert.Equal(t, []int{70, 1}, sub.Strides())

	require.Panics(t, func() { MakeNative([]int{2, 0}, []int{1, 1}) })
	require.Panics(t, func() { MakeNative([]int{2}, []int{1, 1}) })
}

func TestPadInPaddingArea(t *testing.T) {
	for _, tc := range []struct {
		hi, wi, left, right int
	}{
		{5, 5, 1, 1},
		{4, 3, 0, 2},
		{1, 7, 2, 0},
	} {
		t.Run(fmt.Sprintf("%dx%d_pad%d_%d", tc.hi, tc.wi, tc.left, tc.right), func(t *testing.T) {
			const c, n = 2, 3
			in := MakePacked(c, tc.hi, tc.wi, n)
			pad := must.M1(NewPad([]int{tc.hi, tc.wi}, []int{tc.left, tc.left}, []int{tc.right, tc.right}))
			padded := must.M1(Transformed(in,
				Step{Transform: PassThrough{Length: c}, LowerDims: []int{0}, UpperDims: []int{0}},
				Step{Transform: pad, LowerDims: []int{1, 2}, UpperDims: []int{1, 2}},
				Step{Transform: PassThrough{Length: n}, LowerDims: []int{3}, UpperDims: []int{3}}))
			require.Equal(t, []int{c, tc.hi + tc.left + tc.right, tc.wi + tc.left + tc.right, n}, padded.Lengths())
			assert.True(t, padded.Padded(1))
			assert.True(t, padded.Padded(2))
			assert.False(t, padded.Padded(0))
			assert.False(t, padded.IsLinear())
			assert.Equal(t, in.ElementSpace(), padded.ElementSpace())

			r := padded.NewResolver()
			forEachIndex(padded.Lengths(), func(idx []int) {
				outside := func(o, length int) bool { return o < tc.left || o >= tc.left+length }
				want := outside(idx[1], tc.hi) || outside(idx[2], tc.wi)
				offset, inPadding := r.Resolve(idx)
				require.Equal(t, want, inPadding, "index %v", idx)
				if !inPadding {
					require.Equal(t, in.Offset(idx[0], idx[1]-tc.left, idx[2]-tc.left, idx[3]), offset, "index %v", idx)
				}
			})
		})
	}

	_, err := NewPad([]int{3}, []int{-1}, []int{0})
	require.Error(t, err)
	_, err = NewPad([]int{3, 3}, []int{1}, []int{1, 1})
	require.Error(t, err)
}

func TestMergeFoldRoundTrip(t *testing.T) {
	lengths := []int{3, 1, 4, 2}
	merge, fold := Merge{Lengths: lengths}, Fold{Lengths: lengths}
	require.Equal(t, []int{24}, merge.UpperLengths())
	require.Equal(t, []int{24}, fold.LowerLengths())

	tuple := make([]int, len(lengths))
	flat := []int{0}
	for id := range 24 {
		merge.CalculateLowerIndex([]int{id}, tuple)
		fold.CalculateLowerIndex(tuple, flat)
		require.Equal(t, id, flat[0])
	}
	forEachIndex(lengths, func(idx []int) {
		fold.CalculateLowerIndex(idx, flat)
		merge.CalculateLowerIndex(flat, tuple)
		require.Equal(t, idx, tuple)
	})

	d := MakePacked(lengths...)
	for id := range d.ElementSize() {
		require.Equal(t, id, d.OneDFromMultiIndex(d.MultiIndexFrom1D(id)...))
	}
}

func TestMergedDescriptor(t *testing.T) {
	// [C, H, W, N] -> [C, H*W*N]
	in := MakePacked(2, 3, 4, 5)
	merged := must.M1(Transformed(in,
		Step{Transform: PassThrough{Length: 2}, LowerDims: []int{0}, UpperDims: []int{0}},
		Step{Transform: Merge{Lengths: []int{3, 4, 5}}, LowerDims: []int{1, 2, 3}, UpperDims: []int{1}}))
	require.Equal(t, []int{2, 60}, merged.Lengths())
	assert.False(t, merged.IsLinear())
	forEachIndex(merged.Lengths(), func(idx []int) {
		require.Equal(t, idx[0]*60+idx[1], merged.Offset(idx...))
	})
	_, err := merged.Linearize()
	require.Error(t, err)
	_, ok := merged.DimStride(1)
	assert.False(t, ok)
	stride, ok := merged.DimStride(0)
	assert.True(t, ok)
	assert.Equal(t, 60, stride)
}

func TestFoldAndLinearize(t *testing.T) {
	out := MakePacked(8, 2, 6, 4) // K, Ho, Wo, N
	folded := must.M1(out.Fold(3, 2, 2))
	folded = must.M1(folded.Fold(2, 3))
	folded = must.M1(folded.Fold(0, 2, 2))
	require.Equal(t, []int{2, 2, 2, 2, 2, 3, 1, 2, 2}, folded.Lengths())
	require.True(t, folded.IsLinear())

	native := must.M1(folded.Linearize())
	require.True(t, native.IsNative())
	assert.Equal(t, folded.Lengths(), native.Lengths())
	forEachIndex(folded.Lengths(), func(idx []int) {
		require.Equal(t, folded.Offset(idx...), native.Offset(idx...), "index %v", idx)
	})
	assert.Equal(t, []int{4 * 48, 2 * 48, 48, 24, 12, 4, 4, 2, 1}, native.Strides())
	for dim, want := range native.Strides() {
		stride, ok := folded.DimStride(dim)
		require.True(t, ok)
		require.Equal(t, want, stride, "dimension %d", dim)
	}

	_, err := out.Fold(1, 3)
	require.Error(t, err)
	_, err = out.Fold(4, 1)
	require.Error(t, err)
}

func TestTransformErrors(t *testing.T) {
	in := MakePacked(2, 5, 5, 3)
	pad := must.M1(NewPad([]int{5, 5}, []int{1, 1}, []int{1, 1}))
	passC := Step{Transform: PassThrough{Length: 2}, LowerDims: []int{0}, UpperDims: []int{0}}
	passN := Step{Transform: PassThrough{Length: 3}, LowerDims: []int{3}, UpperDims: []int{3}}
	padHW := Step{Transform: pad, LowerDims: []int{1, 2}, UpperDims: []int{1, 2}}

	t.Run("uncovered lower dimension", func(t *testing.T) {
		_, err := Transformed(in, passC, padHW)
		require.Error(t, err)
	})
	t.Run("dimension used twice", func(t *testing.T) {
		_, err := Transformed(in, passC, padHW, Step{Transform: PassThrough{Length: 2}, LowerDims: []int{0}, UpperDims: []int{3}})
		require.Error(t, err)
	})
	t.Run("length mismatch", func(t *testing.T) {
		_, err := Transformed(in, passC, padHW, Step{Transform: PassThrough{Length: 4}, LowerDims: []int{3}, UpperDims: []int{3}})
		require.Error(t, err)
	})
	t.Run("merge over padded dimensions", func(t *testing.T) {
		padded := must.M1(Transformed(in, passC, padHW, passN))
		_, err := Transformed(padded,
			Step{Transform: PassThrough{Length: 2}, LowerDims: []int{0}, UpperDims: []int{0}},
			Step{Transform: Merge{Lengths: []int{7, 7, 3}}, LowerDims: []int{1, 2, 3}, UpperDims: []int{1}})
		require.Error(t, err)
		_, err = padded.Fold(1, 7)
		require.Error(t, err)

		// Passing the padded dimensions through keeps them padded.
		again := must.M1(Transformed(padded, padded.PassThroughSteps(0, 1, 2, 3)...))
		assert.True(t, again.Padded(2))
		assert.True(t, again.IsInPaddingArea(0, 0, 3, 0))
		assert.False(t, again.IsInPaddingArea(0, 1, 3, 0))
	})
}

func TestString(t *testing.T) {
	d := MakePacked(2, 3)
	assert.Equal(t, "native{lengths=[2 3], strides=[3 1]}", d.String())
	folded := must.M1(d.Fold(1, 3))
	assert.Contains(t, folded.String(), "Fold([1 3])")
}
