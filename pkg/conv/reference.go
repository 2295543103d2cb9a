// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package conv

import (
	"math"
	"sync"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/igemm/pkg/core/device"
	"github.com/gomlx/igemm/pkg/core/numeric"
)

// Reference is the direct zero-padded convolution, computed in float64. It returns the output
// in the packed [K, Ho, Wo, N] layout.
//
// Output channels are computed in parallel on the device's worker pool, or sequentially if the
// device has parallelism disabled.
func Reference[T numeric.Element](dev *device.Device, p Problem, in, wei []T) []float64 {
	ho, wo := p.Ho(), p.Wo()
	out := make([]float64, p.OutputSize())
	inF := make([]float64, len(in))
	for i, v := range in {
		inF[i] = numeric.ToFloat64(v)
	}
	weiF := make([]float64, len(wei))
	for i, v := range wei {
		weiF[i] = numeric.ToFloat64(v)
	}

	outputChannel := func(k int) {
		for oh := range ho {
			for ow := range wo {
				for n := range p.N {
					var sum float64
					for c := range p.C {
						for y := range p.Y {
							ih := oh + y - p.LeftPads[0]
							if ih < 0 || ih >= p.Hi {
								continue
							}
							for x := range p.X {
								iw := ow + x - p.LeftPads[1]
								if iw < 0 || iw >= p.Wi {
									continue
								}
								sum += inF[((c*p.Hi+ih)*p.Wi+iw)*p.N+n] * weiF[((c*p.Y+y)*p.X+x)*p.K+k]
							}
						}
					}
					out[((k*ho+oh)*wo+ow)*p.N+n] = sum
				}
			}
		}
	}

	pool := dev.Pool()
	if !pool.IsEnabled() {
		for k := range p.K {
			outputChannel(k)
		}
		return out
	}
	var wg sync.WaitGroup
	for k := range p.K {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			outputChannel(k)
		}
		if !pool.StartIfAvailable(task) {
			task()
		}
	}
	wg.Wait()
	return out
}

// Tolerance is the maximum absolute difference expected between the output of the kernel
// with elements of the given dtype and Reference, for inputs and weights in [-1, 1].
//
// It grows with the number of terms of each output element, C·Y·X.
func Tolerance(dtype dtypes.DType, p Problem) float64 {
	terms := float64(p.C * p.Y * p.X)
	switch dtype {
	case dtypes.Float64:
		return 1e-12 * terms
	case dtypes.Float16:
		// Rounding of the stored output dominates: 11 bits of mantissa.
		return 1e-3*terms + 1e-2
	case dtypes.BFloat16:
		return 8e-3*terms + 1e-1
	default:
		return 1e-6 * terms
	}
}

// MaxAbsDiff returns the largest absolute difference between got and want, and the index where
// it happens. NaNs in got count as an infinite difference.
func MaxAbsDiff[T numeric.Element](got []T, want []float64) (maxDiff float64, index int) {
	for i, w := range want {
		diff := math.Abs(numeric.ToFloat64(got[i]) - w)
		if math.IsNaN(diff) {
			diff = math.Inf(1)
		}
		if diff > maxDiff {
			maxDiff, index = diff, i
		}
	}
	return
}
