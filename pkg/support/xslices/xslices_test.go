// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xslices

import (
	"flag"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap(t *testing.T) {
	assert.Equal(t, []string{"1", "2", "3"}, Map([]int{1, 2, 3}, strconv.Itoa))
	assert.Empty(t, Map([]int{}, strconv.Itoa))
}

func TestFlag(t *testing.T) {
	flagSet := flag.NewFlagSet("test", flag.ContinueOnError)
	pads := FlagSet(flagSet, "pads", []int{1, 1}, "padding", strconv.Atoi)
	assert.Equal(t, "1,1", flagSet.Lookup("pads").Value.String())
	require.NoError(t, flagSet.Parse([]string{"-pads=0, 1,2,3"}))
	assert.Equal(t, []int{0, 1, 2, 3}, *pads)

	flagSet = flag.NewFlagSet("test", flag.ContinueOnError)
	pads = FlagSet(flagSet, "pads", []int{1, 1}, "padding", strconv.Atoi)
	require.NoError(t, flagSet.Parse([]string{"-pads="}))
	assert.Empty(t, *pads)
	require.Error(t, flagSet.Set("pads", "1,x"))
}
