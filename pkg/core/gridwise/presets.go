// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gridwise

import (
	"slices"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
)

// Presets are hand-checked configurations, indexed by name.
//
// Each one is applicable to the problems whose dimensions are multiples of its block tile
// sizes (and of its vector widths for N and K).
var Presets = map[string]Config{
	// tiny has a single thread per block and 1x1x1x1 tiles: it applies to any problem.
	"tiny": {
		BlockSize:                   1,
		NPerBlock:                   1,
		KPerBlock:                   1,
		CPerBlock:                   1,
		HoPerBlock:                  1,
		WoPerBlock:                  1,
		NPerThread:                  1,
		KPerThread:                  1,
		HoPerThread:                 1,
		WoPerThread:                 1,
		GemmMPerThreadSubC:          1,
		GemmNPerThreadSubC:          1,
		GemmMLevel0Cluster:          1,
		GemmNLevel0Cluster:          1,
		GemmMLevel1Cluster:          1,
		GemmNLevel1Cluster:          1,
		GemmKPerThreadLoop:          1,
		GemmDataPerReadA:            1,
		GemmDataPerReadB:            1,
		InBlockCopySubLengths:       [4]int{1, 1, 1, 1},
		InBlockCopyClusterLengths:   [4]int{1, 1, 1, 1},
		InBlockCopyDataPerAccessN:   1,
		WeiBlockCopySubLengths:      [2]int{1, 1},
		WeiBlockCopyClusterLengths:  [2]int{1, 1},
		WeiBlockCopyDataPerAccessK:  1,
		OutThreadCopyDataPerAccessN: 1,
	},

	// default: 32 threads, for N%8, K%16, C%4, Ho%2 and Wo%4.
	"default": {
		BlockSize:                   32,
		NPerBlock:                   8,
		KPerBlock:                   16,
		CPerBlock:                   4,
		HoPerBlock:                  2,
		WoPerBlock:                  4,
		NPerThread:                  4,
		KPerThread:                  4,
		HoPerThread:                 1,
		WoPerThread:                 2,
		GemmMPerThreadSubC:          4,
		GemmNPerThreadSubC:          4,
		GemmMLevel0Cluster:          2,
		GemmNLevel0Cluster:          2,
		GemmMLevel1Cluster:          2,
		GemmNLevel1Cluster:          2,
		GemmKPerThreadLoop:          1,
		GemmDataPerReadA:            4,
		GemmDataPerReadB:            4,
		InBlockCopySubLengths:       [4]int{1, 1, 1, 8},
		InBlockCopyClusterLengths:   [4]int{4, 2, 4, 1},
		InBlockCopyDataPerAccessN:   4,
		WeiBlockCopySubLengths:      [2]int{1, 2},
		WeiBlockCopyClusterLengths:  [2]int{4, 8},
		WeiBlockCopyDataPerAccessK:  2,
		OutThreadCopyDataPerAccessN: 4,
	},

	// wide-n: 32 threads, for large batches, N%32, K%32, C%8 and Wo%2.
	"wide-n": {
		BlockSize:                   32,
		NPerBlock:                   32,
		KPerBlock:                   32,
		CPerBlock:                   8,
		HoPerBlock:                  1,
		WoPerBlock:                  2,
		NPerThread:                  4,
		KPerThread:                  8,
		HoPerThread:                 1,
		WoPerThread:                 2,
		GemmMPerThreadSubC:          4,
		GemmNPerThreadSubC:          4,
		GemmMLevel0Cluster:          4,
		GemmNLevel0Cluster:          4,
		GemmMLevel1Cluster:          1,
		GemmNLevel1Cluster:          2,
		GemmKPerThreadLoop:          2,
		GemmDataPerReadA:            4,
		GemmDataPerReadB:            4,
		InBlockCopySubLengths:       [4]int{1, 1, 1, 16},
		InBlockCopyClusterLengths:   [4]int{8, 1, 2, 2},
		InBlockCopyDataPerAccessN:   4,
		WeiBlockCopySubLengths:      [2]int{1, 8},
		WeiBlockCopyClusterLengths:  [2]int{8, 4},
		WeiBlockCopyDataPerAccessK:  4,
		OutThreadCopyDataPerAccessN: 4,
	},

	// across-wo: 4 threads, for small batches (N%2) where the GEMM sub-tile spans 2 output
	// columns, K%8, C%2 and Wo%8.
	"across-wo": {
		BlockSize:                   4,
		NPerBlock:                   2,
		KPerBlock:                   8,
		CPerBlock:                   2,
		HoPerBlock:                  1,
		WoPerBlock:                  8,
		NPerThread:                  2,
		KPerThread:                  4,
		HoPerThread:                 1,
		WoPerThread:                 4,
		GemmMPerThreadSubC:          2,
		GemmNPerThreadSubC:          4,
		GemmMLevel0Cluster:          2,
		GemmNLevel0Cluster:          2,
		GemmMLevel1Cluster:          1,
		GemmNLevel1Cluster:          1,
		GemmKPerThreadLoop:          2,
		GemmDataPerReadA:            2,
		GemmDataPerReadB:            2,
		InBlockCopySubLengths:       [4]int{1, 1, 4, 2},
		InBlockCopyClusterLengths:   [4]int{2, 1, 2, 1},
		InBlockCopyDataPerAccessN:   2,
		WeiBlockCopySubLengths:      [2]int{1, 4},
		WeiBlockCopyClusterLengths:  [2]int{2, 2},
		WeiBlockCopyDataPerAccessK:  2,
		OutThreadCopyDataPerAccessN: 2,
	},

	// rgba: 16 threads, for single images with 4 channels in and out (K%4, C%4, Ho%2, Wo%4).
	"rgba": {
		BlockSize:                   16,
		NPerBlock:                   1,
		KPerBlock:                   4,
		CPerBlock:                   4,
		HoPerBlock:                  2,
		WoPerBlock:                  4,
		NPerThread:                  1,
		KPerThread:                  1,
		HoPerThread:                 2,
		WoPerThread:                 1,
		GemmMPerThreadSubC:          1,
		GemmNPerThreadSubC:          1,
		GemmMLevel0Cluster:          2,
		GemmNLevel0Cluster:          2,
		GemmMLevel1Cluster:          2,
		GemmNLevel1Cluster:          2,
		GemmKPerThreadLoop:          4,
		GemmDataPerReadA:            1,
		GemmDataPerReadB:            1,
		InBlockCopySubLengths:       [4]int{1, 2, 1, 1},
		InBlockCopyClusterLengths:   [4]int{4, 1, 4, 1},
		InBlockCopyDataPerAccessN:   1,
		WeiBlockCopySubLengths:      [2]int{1, 1},
		WeiBlockCopyClusterLengths:  [2]int{4, 4},
		WeiBlockCopyDataPerAccessK:  1,
		OutThreadCopyDataPerAccessN: 1,
	},
}

// Preset returns the named preset configuration.
func Preset(name string) (Config, error) {
	cfg, found := Presets[name]
	if !found {
		return Config{}, errors.Errorf("unknown preset %q, valid presets are: %s", name, strings.Join(PresetNames(), ", "))
	}
	return cfg, nil
}

// PresetNames returns the names of the presets, sorted.
func PresetNames() []string {
	names := maps.Keys(Presets)
	slices.Sort(names)
	return names
}

// SelectPreset returns the name of the first preset (in the order of names) applicable to the
// problem, or an error wrapping ErrInapplicable if none is.
func SelectPreset(dims Dims, names ...string) (string, Config, error) {
	if len(names) == 0 {
		names = PresetNames()
	}
	for _, name := range names {
		cfg, err := Preset(name)
		if err != nil {
			return "", Config{}, err
		}
		if cfg.Validate(dims) == nil {
			return name, cfg, nil
		}
	}
	return "", Config{}, errors.WithMessagef(ErrInapplicable, "no preset in %v applies to the problem (%s)", names, dims)
}
