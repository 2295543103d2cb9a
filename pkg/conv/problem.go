// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package conv

import (
	"fmt"

	"github.com/gomlx/igemm/pkg/core/gridwise"
	"github.com/gomlx/igemm/pkg/core/tensordesc"
	"github.com/pkg/errors"
)

// Problem is the shape of a 2-D convolution with unit stride and dilation.
//
// The input is laid out as [C, Hi, Wi, N], the weights as [C, Y, X, K] and the output as
// [K, Ho, Wo, N], all packed.
type Problem struct {
	N, C, Hi, Wi, K, Y, X int

	// LeftPads and RightPads are the zero padding of the input spatial dimensions (H, W).
	LeftPads, RightPads [2]int
}

// Problem1D returns the Problem of a 1-D convolution over the width, with H=1 and Y=1.
func Problem1D(n, c, wi, k, x, leftPad, rightPad int) Problem {
	return Problem{
		N: n, C: c, Hi: 1, Wi: wi, K: k, Y: 1, X: x,
		LeftPads:  [2]int{0, leftPad},
		RightPads: [2]int{0, rightPad},
	}
}

// Ho is the output height.
func (p Problem) Ho() int { return p.Hi + p.LeftPads[0] + p.RightPads[0] - p.Y + 1 }

// Wo is the output width.
func (p Problem) Wo() int { return p.Wi + p.LeftPads[1] + p.RightPads[1] - p.X + 1 }

// Dims returns the dimensions of the problem as used by the kernel configuration.
func (p Problem) Dims() gridwise.Dims {
	return gridwise.Dims{N: p.N, C: p.C, Hi: p.Hi, Wi: p.Wi, K: p.K, Y: p.Y, X: p.X, Ho: p.Ho(), Wo: p.Wo()}
}

// InputDescriptor returns the packed [C, Hi, Wi, N] descriptor of the input.
func (p Problem) InputDescriptor() tensordesc.Descriptor {
	return tensordesc.MakePacked(p.C, p.Hi, p.Wi, p.N)
}

// WeightDescriptor returns the packed [C, Y, X, K] descriptor of the weights.
func (p Problem) WeightDescriptor() tensordesc.Descriptor {
	return tensordesc.MakePacked(p.C, p.Y, p.X, p.K)
}

// OutputDescriptor returns the packed [K, Ho, Wo, N] descriptor of the output.
func (p Problem) OutputDescriptor() tensordesc.Descriptor {
	return tensordesc.MakePacked(p.K, p.Ho(), p.Wo(), p.N)
}

// InputSize is the number of elements of the input.
func (p Problem) InputSize() int { return p.C * p.Hi * p.Wi * p.N }

// WeightSize is the number of elements of the weights.
func (p Problem) WeightSize() int { return p.C * p.Y * p.X * p.K }

// OutputSize is the number of elements of the output.
func (p Problem) OutputSize() int { return p.K * p.Ho() * p.Wo() * p.N }

// Validate checks that the problem is well-formed: positive dimensions, non-negative pads
// and an output of at least one element per spatial dimension.
func (p Problem) Validate() error {
	for _, dim := range []struct {
		name  string
		value int
	}{{"N", p.N}, {"C", p.C}, {"Hi", p.Hi}, {"Wi", p.Wi}, {"K", p.K}, {"Y", p.Y}, {"X", p.X}} {
		if dim.value <= 0 {
			return errors.Errorf("conv.Problem: %s=%d must be > 0", dim.name, dim.value)
		}
	}
	for axis := range 2 {
		if p.LeftPads[axis] < 0 || p.RightPads[axis] < 0 {
			return errors.Errorf("conv.Problem: pads must be >= 0, got left=%v, right=%v", p.LeftPads, p.RightPads)
		}
	}
	if p.Ho() <= 0 || p.Wo() <= 0 {
		return errors.Errorf("conv.Problem: filter %dx%d larger than the padded input of %s", p.Y, p.X, p)
	}
	return nil
}

// FLOPs is the number of floating point operations (multiplications and additions) of the
// convolution, counting the taps that fall in the padding.
func (p Problem) FLOPs() int64 {
	return 2 * int64(p.N) * int64(p.K) * int64(p.Ho()) * int64(p.Wo()) * int64(p.C) * int64(p.Y) * int64(p.X)
}

// String implements fmt.Stringer.
func (p Problem) String() string {
	s := fmt.Sprintf("N=%d, C=%d, Hi=%d, Wi=%d, K=%d, Y=%d, X=%d", p.N, p.C, p.Hi, p.Wi, p.K, p.Y, p.X)
	if p.LeftPads != [2]int{} || p.RightPads != [2]int{} {
		s += fmt.Sprintf(", pads=%v/%v", p.LeftPads, p.RightPads)
	}
	return s
}
