// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/gomlx/igemm/pkg/conv"
	"github.com/gomlx/igemm/pkg/core/device"
	"github.com/gomlx/igemm/pkg/core/gridwise"
	"github.com/gomlx/igemm/pkg/core/numeric"
	"github.com/gomlx/igemm/ui/commandline"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"k8s.io/klog/v2"
)

// runOptions holds what to run, and collects the results.
type runOptions struct {
	problem    conv.Problem
	presets    []namedConfig
	device     *device.Device
	iterations int
	verify     bool

	results   []runResult
	numFailed int
}

// runResult is one row of the report.
type runResult struct {
	preset       string
	applicable   bool
	strategy     string
	inputView    string
	grid         device.Grid
	maxDiff      float64
	tolerance    float64
	verified     bool
	failed       bool
	median       time.Duration
	errorMessage string
}

var runDispatcher = numeric.NewDTypeDispatcher("igemm_conv")

func init() {
	runDispatcher.Register(dtypes.Float32, runPresets[float32])
	runDispatcher.Register(dtypes.Float64, runPresets[float64])
	runDispatcher.Register(dtypes.Float16, runPresets[float16.Float16])
	runDispatcher.Register(dtypes.BFloat16, runPresets[bfloat16.BFloat16])
}

// runPresets verifies and benchmarks every selected configuration with elements of type T.
func runPresets[T numeric.Element](params ...any) error {
	ctx, opts := params[0].(context.Context), params[1].(*runOptions)
	p := opts.problem
	dtype := numeric.DTypeOf[T]()
	rng := rand.New(rand.NewPCG(uint64(p.N*p.C), uint64(p.K)))
	in := randomTensor[T](rng, p.InputSize())
	wei := randomTensor[T](rng, p.WeightSize())
	out := make([]T, p.OutputSize())
	klog.V(1).Infof("tensors: input %s, weights %s, output %s",
		humanize.IBytes(uint64(len(in))*uint64(dtype.Memory())),
		humanize.IBytes(uint64(len(wei))*uint64(dtype.Memory())),
		humanize.IBytes(uint64(len(out))*uint64(dtype.Memory())))

	var want []float64
	if opts.verify {
		start := time.Now()
		want = conv.Reference(opts.device, p, in, wei)
		klog.V(1).Infof("reference convolution computed in %s", commandline.FormatDuration(time.Since(start)))
	}

	for _, preset := range opts.presets {
		result := runResult{preset: preset.name}
		plan, err := conv.NewPlan[T](preset.cfg, p)
		if err != nil {
			if !errors.Is(err, gridwise.ErrInapplicable) {
				return err
			}
			klog.V(1).Infof("preset %s: %v", preset.name, err)
			opts.results = append(opts.results, result)
			continue
		}
		result.applicable = true
		result.strategy = plan.ReshapeStrategy().String()
		result.inputView = plan.InputView().String()
		result.grid = plan.Grid()

		if opts.verify {
			for i := range out {
				out[i] = numeric.FromFloat64[T](0)
			}
			if err := plan.Launch(ctx, opts.device, in, wei, out); err != nil {
				result.failed = true
				result.errorMessage = err.Error()
				opts.numFailed++
				opts.results = append(opts.results, result)
				continue
			}
			var index int
			result.maxDiff, index = conv.MaxAbsDiff(out, want)
			result.tolerance = conv.Tolerance(dtype, p)
			result.verified = true
			if result.maxDiff > result.tolerance {
				result.failed = true
				opts.numFailed++
				klog.Errorf("preset %s: output element %v differs by %g (tolerance %g)", preset.name,
					p.OutputDescriptor().MultiIndexFrom1D(index), result.maxDiff, result.tolerance)
			}
		}

		if opts.iterations > 0 {
			result.median, err = benchmark(ctx, plan, opts.device, opts.iterations, in, wei, out)
			if err != nil {
				return err
			}
		}
		opts.results = append(opts.results, result)
	}
	return nil
}

// benchmark launches the plan the given number of times, and returns the median duration.
func benchmark[T numeric.Element](ctx context.Context, plan *conv.Plan[T], dev *device.Device, iterations int, in, wei, out []T) (time.Duration, error) {
	flops := plan.Problem().FLOPs()
	var last time.Duration
	bar := commandline.NewProgressBar(fmt.Sprintf("%s x %d blocks", plan.Config().ReshapeStrategy(), plan.Grid().NumBlocks), iterations,
		func() (name, value string) {
			return "Throughput", commandline.FormatRate(flops, last, "FLOP/s")
		})
	defer bar.Done()
	for range iterations {
		start := time.Now()
		if err := plan.Launch(ctx, dev, in, wei, out); err != nil {
			return 0, err
		}
		last = time.Since(start)
		bar.Step(last)
	}
	return bar.Median(), nil
}

func randomTensor[T numeric.Element](rng *rand.Rand, n int) []T {
	values := make([]T, n)
	for i := range values {
		values[i] = numeric.FromFloat64[T](rng.Float64()*2 - 1)
	}
	return values
}

// report formats the results as a table.
func (opts *runOptions) report() string {
	table := commandline.NewTable(lipgloss.Left, lipgloss.Left, lipgloss.Left, lipgloss.Right)
	table.Headers("Preset", "Reshape", "Input", "Blocks x Threads", "Max |diff|", "Median", "Throughput")
	flops := opts.problem.FLOPs()
	for _, result := range opts.results {
		if !result.applicable {
			table.Row(false, result.preset, "inapplicable", "", "", "", "", "")
			continue
		}
		diff := "-"
		if result.verified {
			diff = fmt.Sprintf("%.3g (tol %.2g)", result.maxDiff, result.tolerance)
		} else if result.errorMessage != "" {
			diff = result.errorMessage
		}
		median, throughput := "-", "-"
		if result.median > 0 {
			median = commandline.FormatDuration(result.median)
			throughput = commandline.FormatRate(flops, result.median, "FLOP/s")
		}
		table.Row(result.failed, result.preset, result.strategy, result.inputView,
			fmt.Sprintf("%s x %d", humanize.Comma(int64(result.grid.NumBlocks)), result.grid.BlockSize),
			diff, median, throughput)
	}
	return table.String()
}
