// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package conv

import (
	"context"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/gomlx/igemm/pkg/core/device"
	"github.com/gomlx/igemm/pkg/core/gridwise"
	"github.com/gomlx/igemm/pkg/core/numeric"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

var runDispatcher = numeric.NewDTypeDispatcher("conv.Run")

func init() {
	runDispatcher.Register(dtypes.Float32, runGeneric[float32])
	runDispatcher.Register(dtypes.Float64, runGeneric[float64])
	runDispatcher.Register(dtypes.Float16, runGeneric[float16.Float16])
	runDispatcher.Register(dtypes.BFloat16, runGeneric[bfloat16.BFloat16])
}

// Run is the untyped version of Conv: in, wei and out must be slices of the Go type of dtype
// ([]float32, []float64, []float16.Float16 or []bfloat16.BFloat16).
func Run(ctx context.Context, dev *device.Device, dtype dtypes.DType, cfg gridwise.Config, p Problem, in, wei, out any) error {
	if !numeric.IsSupported(dtype) {
		return errors.Errorf("conv.Run: dtype %s not supported", dtype)
	}
	return runDispatcher.Dispatch(dtype, ctx, dev, cfg, p, in, wei, out)
}

// runGeneric is registered in runDispatcher for each element type.
func runGeneric[T numeric.Element](params ...any) error {
	ctx, dev := params[0].(context.Context), params[1].(*device.Device)
	cfg, p := params[2].(gridwise.Config), params[3].(Problem)
	tensors := make([][]T, 3)
	for i, name := range []string{"input", "weights", "output"} {
		var ok bool
		tensors[i], ok = params[4+i].([]T)
		if !ok {
			return errors.Errorf("conv.Run: %s must be a %T for dtype %s, got %T",
				name, tensors[i], numeric.DTypeOf[T](), params[4+i])
		}
	}
	return Conv(ctx, dev, cfg, p, tensors[0], tensors[1], tensors[2])
}
