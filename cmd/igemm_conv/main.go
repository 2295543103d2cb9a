// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// igemm_conv runs the implicit-GEMM convolution on a problem given by flags: it verifies the
// result of one or more configurations against the direct convolution and benchmarks them.
//
// With -image it instead applies a 3x3 filter to an image, using the "rgba" configuration.
//
// Examples:
//
//	igemm_conv -n=16 -c=8 -hi=14 -wi=14 -k=32 -y=3 -x=3 -pads=1,1 -preset=all -iterations=100
//	igemm_conv -preset=default -set="LoopOrder=ChannelsOuter;GemmKPerThreadLoop=2" -dtype=bf16
//	igemm_conv -image=photo.jpg -filter=sharpen -output=sharpened.png
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/gomlx/igemm/pkg/conv"
	"github.com/gomlx/igemm/pkg/core/device"
	"github.com/gomlx/igemm/pkg/core/gridwise"
	"github.com/gomlx/igemm/pkg/core/numeric"
	"github.com/gomlx/igemm/pkg/support/xslices"
	"github.com/gomlx/igemm/ui/commandline"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagN  = flag.Int("n", 16, "Batch size.")
	flagC  = flag.Int("c", 8, "Input channels.")
	flagHi = flag.Int("hi", 16, "Input height.")
	flagWi = flag.Int("wi", 16, "Input width.")
	flagK  = flag.Int("k", 32, "Output channels.")
	flagY  = flag.Int("y", 3, "Filter height.")
	flagX  = flag.Int("x", 3, "Filter width.")

	flagPads = xslices.Flag("pads", []int{1, 1},
		"Zero padding of the input, either \"h,w\" (same on both sides) or \"top,left,bottom,right\".",
		strconv.Atoi)

	flagDType  = flag.String("dtype", "float32", "Element type: float32, float64, float16 (f16) or bfloat16 (bf16).")
	flagPreset = flag.String("preset", "", fmt.Sprintf(
		"Comma-separated list of configuration presets to run, or \"all\". "+
			"If empty, the first preset applicable to the problem is used. Presets: %s", strings.Join(gridwise.PresetNames(), ", ")))
	defaultConfig = must.M1(gridwise.Preset("default"))
	flagSettings  = commandline.CreateSettingsFlag(&defaultConfig, "set")

	flagParallelism = flag.Int("parallelism", runtime.NumCPU(),
		"Maximum number of blocks running in parallel. 0 runs blocks sequentially, -1 is unlimited.")
	flagIterations = flag.Int("iterations", 20, "Number of benchmark iterations per configuration. 0 disables the benchmark.")
	flagVerify     = flag.Bool("verify", true, "Verify the output against the direct convolution.")

	flagImage  = flag.String("image", "", "If set, convolves this image with -filter and saves the result to -output.")
	flagFilter = flag.String("filter", "blur", fmt.Sprintf("3x3 filter used with -image, one of %s.", strings.Join(filterNames(), ", ")))
	flagOutput = flag.String("output", "filtered.png", "Output image file for -image.")
)

var titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	runID := uuid.NewString()
	klog.V(1).Infof("igemm_conv run %s", runID)
	ctx := context.Background()
	dev := device.NewWithParallelism(*flagParallelism)

	if *flagImage != "" {
		if err := filterImage(ctx, dev, *flagImage, *flagFilter, *flagOutput); err != nil {
			klog.Fatalf("Failed to filter image %q: %+v", *flagImage, err)
		}
		return
	}

	problem, err := problemFromFlags()
	if err != nil {
		klog.Fatalf("Invalid problem: %v", err)
	}
	dtype, err := numeric.ParseDType(*flagDType)
	if err != nil {
		klog.Fatalf("%v", err)
	}
	presets, err := selectPresets(problem, *flagPreset, *flagSettings)
	if err != nil {
		klog.Fatalf("%v", err)
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("Convolution %s, %s", problem, dtype)))
	opts := &runOptions{
		problem:    problem,
		presets:    presets,
		device:     dev,
		iterations: *flagIterations,
		verify:     *flagVerify,
	}
	if err := runDispatcher.Dispatch(dtype, ctx, opts); err != nil {
		klog.Fatalf("Run %s failed: %+v", runID, err)
	}
	fmt.Println(opts.report())
	if opts.numFailed > 0 {
		klog.Errorf("%d configuration(s) failed verification", opts.numFailed)
		os.Exit(1)
	}
}

// problemFromFlags builds and validates the convolution problem.
func problemFromFlags() (conv.Problem, error) {
	p := conv.Problem{N: *flagN, C: *flagC, Hi: *flagHi, Wi: *flagWi, K: *flagK, Y: *flagY, X: *flagX}
	pads := *flagPads
	switch len(pads) {
	case 0:
	case 2:
		p.LeftPads = [2]int{pads[0], pads[1]}
		p.RightPads = p.LeftPads
	case 4:
		p.LeftPads = [2]int{pads[0], pads[1]}
		p.RightPads = [2]int{pads[2], pads[3]}
	default:
		return p, errors.Errorf("-pads takes 2 or 4 values, got %v", pads)
	}
	return p, p.Validate()
}

// namedConfig is a configuration to run, with the name of its preset.
type namedConfig struct {
	name string
	cfg  gridwise.Config
}

// selectPresets returns the configurations selected by the -preset flag, with the -set settings
// applied to each.
func selectPresets(p conv.Problem, presetFlag, settings string) ([]namedConfig, error) {
	var names []string
	switch presetFlag {
	case "":
		name, _, err := gridwise.SelectPreset(p.Dims())
		if err != nil {
			return nil, err
		}
		names = []string{name}
	case "all":
		names = gridwise.PresetNames()
	default:
		names = strings.Split(presetFlag, ",")
	}
	configs := make([]namedConfig, 0, len(names))
	for _, name := range names {
		cfg, err := gridwise.Preset(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		paramsSet, err := commandline.ParseSettings(&cfg, settings)
		if err != nil {
			return nil, err
		}
		if len(paramsSet) > 0 {
			name += "*"
			klog.V(1).Infof("preset %s modified:\n%s", name, commandline.SprintModifiedSettings(&cfg, paramsSet))
		}
		configs = append(configs, namedConfig{name: name, cfg: cfg})
	}
	return configs, nil
}
