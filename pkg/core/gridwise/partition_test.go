// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gridwise

import (
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitioner(t *testing.T) {
	p := must.M1(NewPartitioner(KHWN{K: 8, Ho: 6, Wo: 4, N: 4}, KHWN{K: 4, Ho: 2, Wo: 4, N: 2}))
	assert.Equal(t, 2*3*1*2, p.NumBlocks())
	assert.Equal(t, KHWN{K: 2, Ho: 3, Wo: 1, N: 2}, p.BlocksPerDim())

	seen := make(map[KHWN]int)
	for blockID := range p.NumBlocks() {
		work := p.BlockWork(blockID)
		previous, found := seen[work]
		require.False(t, found, "blocks %d and %d map to the same tile %s", previous, blockID, work)
		seen[work] = blockID
		require.Equal(t, blockID, p.BlockID(work))
	}
	assert.Len(t, seen, p.NumBlocks())

	// Row-major: N is the fastest dimension.
	assert.Equal(t, KHWN{K: 0, Ho: 0, Wo: 0, N: 1}, p.BlockWork(1))
	assert.Equal(t, KHWN{K: 1, Ho: 0, Wo: 0, N: 0}, p.BlockWork(6))
	assert.Equal(t, KHWN{K: 4, Ho: 4, Wo: 0, N: 2}, p.Origin(KHWN{K: 1, Ho: 2, Wo: 0, N: 1}))
	require.Panics(t, func() { p.BlockWork(p.NumBlocks()) })
}

func TestNewPartitionerErrors(t *testing.T) {
	_, err := NewPartitioner(KHWN{K: 8, Ho: 6, Wo: 4, N: 4}, KHWN{K: 3, Ho: 2, Wo: 4, N: 2})
	require.Error(t, err)
	_, err = NewPartitioner(KHWN{K: 8, Ho: 6, Wo: 4, N: 4}, KHWN{K: 4, Ho: 0, Wo: 4, N: 2})
	require.Error(t, err)
}
