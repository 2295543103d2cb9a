// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensordesc

import (
	"fmt"

	"github.com/pkg/errors"
)

// Transform maps an index of an "upper" (derived) index space to an index of a "lower" index space.
//
// It is a closed set: PassThrough, Pad, Merge and Fold are the only implementations.
type Transform interface {
	// LowerLengths returns the lengths of the dimensions the transform consumes.
	LowerLengths() []int

	// UpperLengths returns the lengths of the dimensions the transform produces.
	UpperLengths() []int

	// CalculateLowerIndex writes in lower the index corresponding to upper.
	// len(upper) == len(UpperLengths()) and len(lower) == len(LowerLengths()).
	CalculateLowerIndex(upper, lower []int)

	// IsUpperIndexInPaddingArea returns whether the upper index falls outside the lower tensor.
	// Only Pad can return true.
	IsUpperIndexInPaddingArea(upper []int) bool

	// IsLinear returns whether the lower index is a linear function of the upper index
	// (so a chain of linear transforms can be collapsed into strides).
	IsLinear() bool

	fmt.Stringer

	sealed()
}

// PassThrough is the identity transform over one dimension.
type PassThrough struct {
	Length int
}

var _ Transform = PassThrough{}

func (t PassThrough) LowerLengths() []int { return []int{t.Length} }
func (t PassThrough) UpperLengths() []int { return []int{t.Length} }
func (t PassThrough) CalculateLowerIndex(upper, lower []int) { lower[0] = upper[0] }
func (t PassThrough) IsUpperIndexInPaddingArea(_ []int) bool { return false }
func (t PassThrough) IsLinear() bool { return true }
func (t PassThrough) String() string { return fmt.Sprintf("PassThrough(%d)", t.Length) }
func (t PassThrough) sealed() {}

// Pad adds a left and right margin to one or more dimensions.
//
// An upper coordinate o of dimension i maps to o-LeftPads[i], and it is in the padding area if
// o < LeftPads[i] or o >= LeftPads[i]+Lengths[i]. Values loaded through a padded coordinate
// are defined to be zero, and the backing memory must not be read.
type Pad struct {
	Lengths, LeftPads, RightPads []int
}

var _ Transform = Pad{}

// NewPad creates a Pad transform, checking the lengths and pads are consistent.
func NewPad(lengths, leftPads, rightPads []int) (Pad, error) {
	if len(lengths) != len(leftPads) || len(lengths) != len(rightPads) {
		return Pad{}, errors.Errorf("Pad: lengths %v, left pads %v and right pads %v must have the same rank",
			lengths, leftPads, rightPads)
	}
	for i := range lengths {
		if lengths[i] <= 0 || leftPads[i] < 0 || rightPads[i] < 0 {
			return Pad{}, errors.Errorf("Pad: invalid dimension %d: length=%d, left pad=%d, right pad=%d",
				i, lengths[i], leftPads[i], rightPads[i])
		}
	}
	return Pad{Lengths: lengths, LeftPads: leftPads, RightPads: rightPads}, nil
}

func (t Pad) LowerLengths() []int { return t.Lengths }

func (t Pad) UpperLengths() []int {
	upper := make([]int, len(t.Lengths))
	for i, length := range t.Lengths {
		upper[i] = length + t.LeftPads[i] + t.RightPads[i]
	}
	return upper
}

func (t Pad) CalculateLowerIndex(upper, lower []int) {
	for i, u := range upper {
		lower[i] = u - t.LeftPads[i]
	}
}

func (t Pad) IsUpperIndexInPaddingArea(upper []int) bool {
	for i, u := range upper {
		if u < t.LeftPads[i] || u >= t.LeftPads[i]+t.Lengths[i] {
			return true
		}
	}
	return false
}

func (t Pad) IsLinear() bool { return false }

func (t Pad) String() string {
	return fmt.Sprintf("Pad(%v, left=%v, right=%v)", t.Lengths, t.LeftPads, t.RightPads)
}

func (t Pad) sealed() {}

// Merge flattens several lower dimensions into a single upper dimension, in row-major order:
// the first lower dimension is the most significant.
type Merge struct {
	Lengths []int
}

var _ Transform = Merge{}

func (t Merge) LowerLengths() []int { return t.Lengths }
func (t Merge) UpperLengths() []int { return []int{product(t.Lengths)} }

// CalculateLowerIndex decomposes the flat upper coordinate with the mixed-radix Lengths.
func (t Merge) CalculateLowerIndex(upper, lower []int) {
	flat := upper[0]
	for i := len(t.Lengths) - 1; i >= 0; i-- {
		lower[i] = flat % t.Lengths[i]
		flat /= t.Lengths[i]
	}
}

func (t Merge) IsUpperIndexInPaddingArea(_ []int) bool { return false }
func (t Merge) IsLinear() bool { return false }
func (t Merge) String() string { return fmt.Sprintf("Merge(%v)", t.Lengths) }
func (t Merge) sealed() {}

// Fold splits one lower dimension into several upper dimensions. It is the inverse of a Merge
// with the same Lengths.
type Fold struct {
	Lengths []int
}

var _ Transform = Fold{}

func (t Fold) LowerLengths() []int { return []int{product(t.Lengths)} }
func (t Fold) UpperLengths() []int { return t.Lengths }

// CalculateLowerIndex computes the dot product of upper with the row-major weights of Lengths.
func (t Fold) CalculateLowerIndex(upper, lower []int) {
	flat := 0
	for i, u := range upper {
		flat = flat*t.Lengths[i] + u
	}
	lower[0] = flat
}

func (t Fold) IsUpperIndexInPaddingArea(_ []int) bool { return false }
func (t Fold) IsLinear() bool { return true }
func (t Fold) String() string { return fmt.Sprintf("Fold(%v)", t.Lengths) }
func (t Fold) sealed() {}

func product(values []int) int {
	p := 1
	for _, v := range values {
		p *= v
	}
	return p
}
