// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/igemm/pkg/core/gridwise"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSettings struct {
	X         float64
	Y         int
	Z         bool
	S         string
	ListInt   []int
	ListFloat []float64
	Pair      [2]int
	hidden    int
}

func TestParseSettings(t *testing.T) {
	settings := testSettings{X: 11, Y: 7, S: "foo", Pair: [2]int{1, 2}}
	paramsSet, err := ParseSettings(&settings, "X=13;z=true;Y=1_000;S=bar;ListInt=1,3,7;ListFloat=0.1,1.2,3e3;Pair=3, 4;")
	require.NoError(t, err)
	require.Equal(t, []string{"X", "Z", "Y", "S", "ListInt", "ListFloat", "Pair"}, paramsSet)
	assert.Equal(t, testSettings{
		X: 13, Y: 1000, Z: true, S: "bar",
		ListInt: []int{1, 3, 7}, ListFloat: []float64{0.1, 1.2, 3e3}, Pair: [2]int{3, 4},
	}, settings)

	// Unknown and unexported parameters.
	_, err = ParseSettings(&settings, "Q=3")
	require.ErrorContains(t, err, "not one of X, Y, Z, S, ListInt, ListFloat, Pair")
	_, err = ParseSettings(&settings, "hidden=3")
	require.Error(t, err)

	// Cannot set the wrong type of value.
	_, err = ParseSettings(&settings, "Y=3.14")
	require.ErrorContains(t, err, "default value is 1000")
	_, err = ParseSettings(&settings, "Pair=1,2,3")
	require.Error(t, err)
	_, err = ParseSettings(&settings, "X")
	require.Error(t, err)

	// Target must be a pointer to a struct.
	_, err = ParseSettings(settings, "X=1")
	require.Error(t, err)
}

func TestParseSettingsConfig(t *testing.T) {
	cfg := must.M1(gridwise.Preset("default"))
	settingsFile := filepath.Join(t.TempDir(), "tuning.txt")
	require.NoError(t, os.WriteFile(settingsFile, []byte(
		"# Level-1 clusters.\nGemmMLevel1Cluster=4\nGemmNLevel1Cluster=1;KPerBlock=32\n"), 0o644))

	paramsSet, err := ParseSettings(&cfg, "LoopOrder=channelsouter;InBlockCopySubLengths=1,1,1,4;file:"+settingsFile)
	require.NoError(t, err)
	assert.Equal(t, []string{"LoopOrder", "InBlockCopySubLengths", "GemmMLevel1Cluster", "GemmNLevel1Cluster", "KPerBlock"}, paramsSet)
	assert.Equal(t, gridwise.LoopOrderChannelsOuter, cfg.LoopOrder)
	assert.Equal(t, [4]int{1, 1, 1, 4}, cfg.InBlockCopySubLengths)
	assert.Equal(t, 4, cfg.GemmMLevel1Cluster)
	assert.Equal(t, 32, cfg.KPerBlock)

	// Rejected values leave the configuration unchanged.
	_, err = ParseSettings(&cfg, "LoopOrder=diagonal")
	require.Error(t, err)
	assert.Equal(t, gridwise.LoopOrderChannelsOuter, cfg.LoopOrder)
	_, err = ParseSettings(&cfg, "InBlockCopySubLengths=2,x,2,2")
	require.Error(t, err)
	assert.Equal(t, [4]int{1, 1, 1, 4}, cfg.InBlockCopySubLengths)
	_, err = ParseSettings(&cfg, "file:"+filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)

	modified := SprintModifiedSettings(&cfg, append(paramsSet, "KPerBlock"))
	assert.Equal(t, "\t\"GemmMLevel1Cluster\": (int) 4\n"+
		"\t\"GemmNLevel1Cluster\": (int) 1\n"+
		"\t\"InBlockCopySubLengths\": ([4]int) 1,1,1,4\n"+
		"\t\"KPerBlock\": (int) 32\n"+
		"\t\"LoopOrder\": (gridwise.LoopOrder) ChannelsOuter", modified)
	assert.Contains(t, SprintSettings(&cfg), "\t\"WeiBlockCopyClusterLengths\": ([2]int) 4,8\n")
}
