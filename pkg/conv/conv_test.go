// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package conv

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/gomlx/igemm/pkg/core/device"
	"github.com/gomlx/igemm/pkg/core/gridwise"
	"github.com/gomlx/igemm/pkg/core/numeric"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func randomTensor[T numeric.Element](rng *rand.Rand, n int) []T {
	values := make([]T, n)
	for i := range values {
		values[i] = numeric.FromFloat64[T](rng.Float64()*2 - 1)
	}
	return values
}

func TestProblem(t *testing.T) {
	p := Problem{N: 2, C: 3, Hi: 5, Wi: 7, K: 4, Y: 3, X: 2, LeftPads: [2]int{1, 0}, RightPads: [2]int{1, 1}}
	require.NoError(t, p.Validate())
	assert.Equal(t, 5, p.Ho())
	assert.Equal(t, 7, p.Wo())
	assert.Equal(t, gridwise.Dims{N: 2, C: 3, Hi: 5, Wi: 7, K: 4, Y: 3, X: 2, Ho: 5, Wo: 7}, p.Dims())
	assert.Equal(t, []int{3, 5, 7, 2}, p.InputDescriptor().Lengths())
	assert.Equal(t, []int{3, 3, 2, 4}, p.WeightDescriptor().Lengths())
	assert.Equal(t, []int{4, 5, 7, 2}, p.OutputDescriptor().Lengths())
	assert.Equal(t, p.OutputDescriptor().ElementSpace(), p.OutputSize())
	assert.Equal(t, int64(2*2*4*5*7*3*3*2), p.FLOPs())
	assert.Equal(t, "N=2, C=3, Hi=5, Wi=7, K=4, Y=3, X=2, pads=[1 0]/[1 1]", p.String())

	p1 := Problem1D(1, 2, 10, 3, 3, 1, 1)
	assert.Equal(t, 1, p1.Ho())
	assert.Equal(t, 10, p1.Wo())
	require.NoError(t, p1.Validate())

	for name, bad := range map[string]Problem{
		"zero channels":   {N: 1, C: 0, Hi: 3, Wi: 3, K: 1, Y: 1, X: 1},
		"negative pad":    {N: 1, C: 1, Hi: 3, Wi: 3, K: 1, Y: 1, X: 1, LeftPads: [2]int{-1, 0}},
		"filter too wide": {N: 1, C: 1, Hi: 3, Wi: 3, K: 1, Y: 1, X: 4},
	} {
		assert.Error(t, bad.Validate(), name)
	}
}

func TestReference(t *testing.T) {
	// 1x1 filter with identity weights copies the input (transposed to [K, Ho, Wo, N]).
	p := Problem{N: 2, C: 3, Hi: 2, Wi: 2, K: 3, Y: 1, X: 1}
	in := make([]float64, p.InputSize())
	for i := range in {
		in[i] = float64(i)
	}
	wei := make([]float64, p.WeightSize())
	for c := range p.C {
		wei[c*p.K+c] = 1
	}
	// Sequential, limited and unlimited parallelism on the device's pool.
	for _, parallelism := range []int{0, 2, -1} {
		dev := device.NewWithParallelism(parallelism)
		assert.Equal(t, in, Reference(dev, p, in, wei), "parallelism=%d", parallelism)
	}

	// 1-D with padding: [1 2 3] * [1 1 1] = [3 6 5].
	p = Problem1D(1, 1, 3, 1, 3, 1, 1)
	assert.Equal(t, []float64{3, 6, 5}, Reference(device.New(), p, []float32{1, 2, 3}, []float32{1, 1, 1}))
}

func testConv[T numeric.Element](t *testing.T, p Problem, cfg gridwise.Config) {
	rng := rand.New(rand.NewPCG(uint64(p.N), uint64(p.C)))
	in := randomTensor[T](rng, p.InputSize())
	wei := randomTensor[T](rng, p.WeightSize())
	out := make([]T, p.OutputSize())
	dev := device.New()
	require.NoError(t, Conv(context.Background(), dev, cfg, p, in, wei, out))
	maxDiff, index := MaxAbsDiff(out, Reference(dev, p, in, wei))
	dtype := numeric.DTypeOf[T]()
	require.LessOrEqual(t, maxDiff, Tolerance(dtype, p), "%s: largest difference at output element %d (%v)",
		dtype, index, p.OutputDescriptor().MultiIndexFrom1D(index))
}

func TestConv(t *testing.T) {
	p := Problem{N: 16, C: 8, Hi: 8, Wi: 8, K: 32, Y: 3, X: 3, LeftPads: [2]int{1, 1}, RightPads: [2]int{1, 1}}
	cfg := must.M1(gridwise.Preset("default"))
	t.Run("float32", func(t *testing.T) { testConv[float32](t, p, cfg) })
	t.Run("float64", func(t *testing.T) { testConv[float64](t, p, cfg) })
	t.Run("float16", func(t *testing.T) { testConv[float16.Float16](t, p, cfg) })
	t.Run("bfloat16", func(t *testing.T) { testConv[bfloat16.BFloat16](t, p, cfg) })

	// 1-D problem with the across-Wo reshape.
	p = Problem1D(4, 4, 16, 16, 3, 1, 1)
	cfg = must.M1(gridwise.Preset("across-wo"))
	t.Run("1d", func(t *testing.T) { testConv[float32](t, p, cfg) })
}

func TestNewPlan(t *testing.T) {
	p := Problem{N: 16, C: 8, Hi: 4, Wi: 8, K: 32, Y: 1, X: 1}
	plan := must.M1(NewPlan[float32](must.M1(gridwise.Preset("default")), p))
	assert.Equal(t, p, plan.Problem())
	assert.Equal(t, gridwise.InputViewNative, plan.InputView())
	assert.Equal(t, gridwise.ReshapeSubTileInsideN, plan.ReshapeStrategy())
	assert.Equal(t, 32, plan.Grid().BlockSize)
	assert.Equal(t, 2*2*2*2, plan.Grid().NumBlocks)

	_, err := NewPlan[float32](must.M1(gridwise.Preset("wide-n")), p)
	require.ErrorIs(t, err, gridwise.ErrInapplicable)
	_, err = NewPlan[float32](gridwise.Presets["tiny"], Problem{N: 1, C: 1, Hi: 1, Wi: 1, K: 1, Y: 2, X: 1})
	require.Error(t, err)
}

func TestRun(t *testing.T) {
	p := Problem{N: 1, C: 2, Hi: 4, Wi: 4, K: 2, Y: 3, X: 3}
	cfg := gridwise.Presets["tiny"]
	rng := rand.New(rand.NewPCG(1, 1))
	in := randomTensor[float64](rng, p.InputSize())
	wei := randomTensor[float64](rng, p.WeightSize())
	out := make([]float64, p.OutputSize())
	dev := device.New()
	require.NoError(t, Run(context.Background(), dev, dtypes.Float64, cfg, p, in, wei, out))
	maxDiff, _ := MaxAbsDiff(out, Reference(dev, p, in, wei))
	assert.LessOrEqual(t, maxDiff, Tolerance(dtypes.Float64, p))

	err := Run(context.Background(), device.New(), dtypes.Float32, cfg, p, in, wei, out)
	require.ErrorContains(t, err, "input must be a []float32")
	err = Run(context.Background(), device.New(), dtypes.Int32, cfg, p, in, wei, out)
	require.ErrorContains(t, err, "not supported")
}

func TestMaxAbsDiff(t *testing.T) {
	maxDiff, index := MaxAbsDiff([]float32{1, 2, 3}, []float64{1, 2.5, 3})
	assert.Equal(t, 0.5, maxDiff)
	assert.Equal(t, 1, index)
	maxDiff, index = MaxAbsDiff([]float32{1, float32(math.NaN())}, []float64{1, 2})
	assert.True(t, math.IsInf(maxDiff, 1))
	assert.Equal(t, 1, index)
}
