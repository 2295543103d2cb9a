// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"image"
	"math"
	"slices"
	"time"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/igemm/pkg/conv"
	"github.com/gomlx/igemm/pkg/core/device"
	"github.com/gomlx/igemm/pkg/core/gridwise"
	"github.com/gomlx/igemm/pkg/support/fsutil"
	"github.com/gomlx/igemm/ui/commandline"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"k8s.io/klog/v2"
)

// filters are 3x3 kernels applied to each of the R, G and B channels; alpha is copied.
var filters = map[string][3][3]float32{
	"identity": {{0, 0, 0}, {0, 1, 0}, {0, 0, 0}},
	"blur":     {{1. / 16, 2. / 16, 1. / 16}, {2. / 16, 4. / 16, 2. / 16}, {1. / 16, 2. / 16, 1. / 16}},
	"sharpen":  {{0, -1, 0}, {-1, 5, -1}, {0, -1, 0}},
	"edges":    {{-1, -1, -1}, {-1, 8, -1}, {-1, -1, -1}},
	"emboss":   {{-2, -1, 0}, {-1, 1, 1}, {0, 1, 2}},
}

func filterNames() []string {
	names := maps.Keys(filters)
	slices.Sort(names)
	return names
}

// imagePreset is the configuration used for images: 4 channels (RGBA) in and out, batch of 1.
const imagePreset = "rgba"

// filterImage convolves the image in inputPath with the named filter and saves it to outputPath.
//
// The image is cropped (centered) to a size the configuration tiles evenly.
func filterImage(ctx context.Context, dev *device.Device, inputPath, filterName, outputPath string) error {
	kernel, found := filters[filterName]
	if !found {
		return errors.Errorf("unknown filter %q, valid filters are %v", filterName, filterNames())
	}
	cfg, err := gridwise.Preset(imagePreset)
	if err != nil {
		return err
	}
	exists, err := fsutil.FileExists(inputPath)
	if err != nil {
		return err
	}
	if !exists {
		return errors.Errorf("image file %q not found", inputPath)
	}
	img, err := imaging.Open(inputPath)
	if err != nil {
		return errors.Wrapf(err, "failed to read image")
	}
	bounds := img.Bounds()
	width := bounds.Dx() - bounds.Dx()%cfg.WoPerBlock
	height := bounds.Dy() - bounds.Dy()%cfg.HoPerBlock
	if width == 0 || height == 0 {
		return errors.Errorf("image of %dx%d too small", bounds.Dx(), bounds.Dy())
	}
	cropped := imaging.CropCenter(img, width, height)

	p := imageProblem(width, height)
	in := imageToTensor(cropped)
	wei := filterWeights(kernel)
	out := make([]float32, p.OutputSize())
	start := time.Now()
	if err := conv.Conv(ctx, dev, cfg, p, in, wei, out); err != nil {
		return err
	}
	elapsed := time.Since(start)
	klog.Infof("filtered %dx%d image with %q in %s (%s)", width, height, filterName,
		commandline.FormatDuration(elapsed), commandline.FormatRate(p.FLOPs(), elapsed, "FLOP/s"))

	if err := imaging.Save(tensorToImage(out, width, height), outputPath); err != nil {
		return errors.Wrapf(err, "failed to save filtered image")
	}
	klog.Infof("saved %s (%s of pixels)", outputPath, humanize.IBytes(uint64(4*width*height)))
	return nil
}

// imageProblem is the convolution of a width x height RGBA image with a 3x3 filter, padded to
// keep the image size.
func imageProblem(width, height int) conv.Problem {
	return conv.Problem{
		N: 1, C: 4, Hi: height, Wi: width, K: 4, Y: 3, X: 3,
		LeftPads:  [2]int{1, 1},
		RightPads: [2]int{1, 1},
	}
}

// imageToTensor converts the image to a [C=4, H, W, N=1] tensor with values in [0, 1].
func imageToTensor(img image.Image) []float32 {
	nrgba := imaging.Clone(img)
	width, height := nrgba.Rect.Dx(), nrgba.Rect.Dy()
	tensor := make([]float32, 4*height*width)
	for y := range height {
		for x := range width {
			pixel := nrgba.Pix[y*nrgba.Stride+x*4 : y*nrgba.Stride+x*4+4]
			for c := range 4 {
				tensor[(c*height+y)*width+x] = float32(pixel[c]) / 255
			}
		}
	}
	return tensor
}

// tensorToImage converts a [K=4, H, W, N=1] tensor to an image, clamping values to [0, 1].
func tensorToImage(tensor []float32, width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			for c := range 4 {
				v := min(max(tensor[(c*height+y)*width+x], 0), 1)
				img.Pix[y*img.Stride+x*4+c] = uint8(math.Round(float64(v) * 255))
			}
		}
	}
	return img
}

// filterWeights returns the [C=4, Y=3, X=3, K=4] weights applying kernel to the R, G and B channels
// independently, and the identity to alpha.
func filterWeights(kernel [3][3]float32) []float32 {
	alpha := filters["identity"]
	wei := make([]float32, 4*3*3*4)
	for c := range 4 {
		k := kernel
		if c == 3 {
			k = alpha
		}
		for y := range 3 {
			for x := range 3 {
				wei[((c*3+y)*3+x)*4+c] = k[y][x]
			}
		}
	}
	return wei
}
