// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gridwise

import (
	"testing"

	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dimsFor returns a problem with 2 tiles of the configuration along every dimension, a 3x2
// filter and padding such that Hi=Ho and Wi=Wo.
func dimsFor(cfg Config) (dims Dims, leftPads, rightPads [2]int) {
	dims = Dims{
		N: 2 * cfg.NPerBlock, C: 2 * cfg.CPerBlock, K: 2 * cfg.KPerBlock,
		Ho: 2 * cfg.HoPerBlock, Wo: 2 * cfg.WoPerBlock,
		Y: 3, X: 2,
	}
	leftPads, rightPads = [2]int{1, 0}, [2]int{1, 1}
	dims.Hi = dims.Ho
	dims.Wi = dims.Wo
	return
}

func TestPresets(t *testing.T) {
	require.Equal(t, []string{"across-wo", "default", "rgba", "tiny", "wide-n"}, PresetNames())
	for _, name := range PresetNames() {
		t.Run(name, func(t *testing.T) {
			cfg := must.M1(Preset(name))
			dims, _, _ := dimsFor(cfg)
			require.NoError(t, cfg.Validate(dims))
			want := ReshapeSubTileInsideN
			if name == "across-wo" {
				want = ReshapeSubTileAcrossWo
			}
			assert.Equal(t, want, cfg.ReshapeStrategy())
		})
	}
	_, err := Preset("huge")
	require.Error(t, err)
}

func TestSelectPreset(t *testing.T) {
	// Only tiny applies to a 1x1 problem with 3 channels.
	dims := Dims{N: 1, C: 3, Hi: 5, Wi: 5, K: 1, Y: 3, X: 3, Ho: 3, Wo: 3}
	name, _ := must.M2(SelectPreset(dims))
	assert.Equal(t, "tiny", name)

	dims = Dims{N: 8, C: 4, Hi: 4, Wi: 4, K: 16, Y: 1, X: 1, Ho: 4, Wo: 4}
	name, cfg := must.M2(SelectPreset(dims, "wide-n", "default", "tiny"))
	assert.Equal(t, "default", name)
	assert.Equal(t, 32, cfg.BlockSize)

	_, _, err := SelectPreset(dims, "wide-n")
	require.ErrorIs(t, err, ErrInapplicable)
}

func TestValidate(t *testing.T) {
	base := must.M1(Preset("default"))
	dims, _, _ := dimsFor(base)
	for name, test := range map[string]struct {
		modify func(cfg *Config, dims *Dims)
		want   string
	}{
		"non-positive":          {func(cfg *Config, _ *Dims) { cfg.GemmKPerThreadLoop = 0 }, "GemmKPerThreadLoop=0"},
		"non-positive array":    {func(cfg *Config, _ *Dims) { cfg.InBlockCopySubLengths[2] = -1 }, "InBlockCopySubLengths"},
		"invalid loop order":    {func(cfg *Config, _ *Dims) { cfg.LoopOrder = 7 }, "LoopOrder"},
		"N not divisible":       {func(_ *Config, dims *Dims) { dims.N = 12 }, "NPerBlock=8 must divide N=12"},
		"K not divisible":       {func(_ *Config, dims *Dims) { dims.K = 24 }, "KPerBlock=16"},
		"C not divisible":       {func(_ *Config, dims *Dims) { dims.C = 6 }, "CPerBlock=4"},
		"Ho not divisible":      {func(_ *Config, dims *Dims) { dims.Ho = 3 }, "HoPerBlock=2"},
		"Wo not divisible":      {func(_ *Config, dims *Dims) { dims.Wo = 6 }, "WoPerBlock=4"},
		"thread tile":           {func(cfg *Config, _ *Dims) { cfg.KPerThread = 3 }, "KPerThread=3"},
		"block size":            {func(cfg *Config, _ *Dims) { cfg.BlockSize = 64 }, "BlockSize=64"},
		"M clusters":            {func(cfg *Config, _ *Dims) { cfg.GemmMLevel1Cluster = 4 }, "KPerBlock=16 must be KPerThread"},
		"N clusters":            {func(cfg *Config, _ *Dims) { cfg.WoPerThread = 1 }, "WoPerBlock x NPerBlock"},
		"K per thread loop":     {func(cfg *Config, _ *Dims) { cfg.GemmKPerThreadLoop = 3 }, "GemmKPerThreadLoop=3"},
		"data per read A":       {func(cfg *Config, _ *Dims) { cfg.GemmDataPerReadA = 8 }, "GemmDataPerReadA=8"},
		"shared alignment":      {func(cfg *Config, _ *Dims) { cfg.WeiBlockCopyDataPerAccessK = 16 }, "shared alignment"},
		"reshape inside N":      {func(cfg *Config, _ *Dims) { cfg.GemmNPerThreadSubC = 2; cfg.GemmDataPerReadB = 2 }, "NPerThread=4 must equal GemmNPerThreadSubC=2"},
		"output vector":         {func(cfg *Config, _ *Dims) { cfg.OutThreadCopyDataPerAccessN = 8 }, "OutThreadCopyDataPerAccessN=8"},
		"input cluster threads": {func(cfg *Config, _ *Dims) { cfg.InBlockCopyClusterLengths = [4]int{4, 2, 2, 1} }, "InBlockCopyClusterLengths"},
		"input sub lengths":     {func(cfg *Config, _ *Dims) { cfg.InBlockCopySubLengths = [4]int{1, 1, 1, 4} }, "InBlockCopySubLengths"},
		"input vector":          {func(cfg *Config, _ *Dims) { cfg.InBlockCopyDataPerAccessN = 16 }, "InBlockCopyDataPerAccessN=16"},
		"weight cluster":        {func(cfg *Config, _ *Dims) { cfg.WeiBlockCopyClusterLengths = [2]int{2, 8} }, "WeiBlockCopyClusterLengths"},
		"weight vector":         {func(cfg *Config, _ *Dims) { cfg.WeiBlockCopyDataPerAccessK = 4 }, "WeiBlockCopyDataPerAccessK=4"},
		"problem dimension":     {func(_ *Config, dims *Dims) { dims.Y = 0 }, "problem dimension Y=0"},
	} {
		t.Run(name, func(t *testing.T) {
			cfg, dims := base, dims
			test.modify(&cfg, &dims)
			err := cfg.Validate(dims)
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrInapplicable))
			require.ErrorContains(t, err, test.want)
		})
	}
}

func TestValidateAcrossWo(t *testing.T) {
	base := must.M1(Preset("across-wo"))
	dims, _, _ := dimsFor(base)
	cfg := base
	cfg.NPerThread = 1
	require.ErrorContains(t, cfg.Validate(dims), "NPerThread=1 must equal NPerBlock=2")
	cfg = base
	cfg.OutThreadCopyDataPerAccessN = 4
	require.ErrorContains(t, cfg.Validate(dims), "OutThreadCopyDataPerAccessN=4 must divide NPerBlock=2")
}

func TestConfigString(t *testing.T) {
	cfg := must.M1(Preset("across-wo"))
	s := cfg.String()
	assert.Contains(t, s, "BlockSize=4;")
	assert.Contains(t, s, "InBlockCopySubLengths=1,1,4,2;")
	assert.Contains(t, s, "LoopOrder=TapsOuter")

	order, err := LoopOrderString("channelsouter")
	require.NoError(t, err)
	assert.Equal(t, LoopOrderChannelsOuter, order)
	_, err = LoopOrderString("diagonal")
	require.Error(t, err)
}
