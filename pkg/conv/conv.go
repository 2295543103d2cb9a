// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package conv is the front-end of the implicit-GEMM convolution: it describes a problem,
// builds the kernel for a configuration and element type, runs it on a device, and provides
// the direct convolution used to verify it.
//
// Example:
//
//	p := conv.Problem{N: 16, C: 8, Hi: 14, Wi: 14, K: 32, Y: 3, X: 3, LeftPads: [2]int{1, 1}, RightPads: [2]int{1, 1}}
//	_, cfg, err := gridwise.SelectPreset(p.Dims())
//	...
//	err = conv.Conv[float32](ctx, device.New(), cfg, p, in, wei, out)
package conv

import (
	"context"

	"github.com/gomlx/igemm/pkg/core/device"
	"github.com/gomlx/igemm/pkg/core/gridwise"
	"github.com/gomlx/igemm/pkg/core/numeric"
	"github.com/pkg/errors"
)

// kernel is the part of gridwise.Convolution that doesn't depend on the accumulator type.
type kernel[T numeric.Element] interface {
	Launch(ctx context.Context, dev *device.Device, in, wei, out []T) error
	Config() gridwise.Config
	Grid() device.Grid
	InputView() gridwise.InputView
	ReshapeStrategy() gridwise.ReshapeStrategy
}

// Plan is a convolution kernel built for one problem, configuration and element type. It can
// be launched many times, concurrently.
//
// float32 and float64 accumulate in their own type, Float16 and BFloat16 accumulate in
// float32.
type Plan[T numeric.Element] struct {
	kernel[T]
	problem Problem
}

// NewPlan validates the problem and builds its kernel.
//
// It returns an error wrapping gridwise.ErrInapplicable if cfg can't be used for the problem.
func NewPlan[T numeric.Element](cfg gridwise.Config, p Problem) (*Plan[T], error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	in, wei, out := p.InputDescriptor(), p.WeightDescriptor(), p.OutputDescriptor()
	plan := &Plan[T]{problem: p}
	var err error
	var t T
	switch any(t).(type) {
	case float64:
		plan.kernel, err = gridwise.NewConvolution[T, float64](cfg, in, wei, out, p.LeftPads, p.RightPads)
	default:
		plan.kernel, err = gridwise.NewConvolution[T, float32](cfg, in, wei, out, p.LeftPads, p.RightPads)
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "conv.NewPlan(%s, %s)", numeric.DTypeOf[T](), p)
	}
	return plan, nil
}

// Problem returns the problem the plan was built for.
func (plan *Plan[T]) Problem() Problem { return plan.problem }

// Conv builds the kernel for the problem and runs it once: out = conv(in, wei).
//
// The slices are packed as described in Problem.
func Conv[T numeric.Element](ctx context.Context, dev *device.Device, cfg gridwise.Config, p Problem, in, wei, out []T) error {
	plan, err := NewPlan[T](cfg, p)
	if err != nil {
		return err
	}
	return plan.Launch(ctx, dev, in, wei, out)
}
