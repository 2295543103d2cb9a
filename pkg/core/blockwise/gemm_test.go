// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package blockwise

import (
	"math/rand/v2"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// testGemmConfig has 2 batches, 16 threads, an 8x8 C matrix per batch and a 4x2 C matrix per
// thread, with MRepeat=2.
func testGemmConfig() GemmConfig {
	const k, m, n = 6, 8, 8
	return GemmConfig{
		BlockSize:      16,
		K:              k,
		M:              m,
		N:              n,
		RowStrideA:     m,
		RowStrideB:     n,
		BatchStrideA:   0,
		BatchStrideB:   k * n,
		BatchSize:      2,
		BatchPerThread: 1,
		MPerThread:     4,
		NPerThread:     2,
		RowStrideC:     2,
		BatchStrideC:   8,
		MPerThreadSubC: 2,
		NPerThreadSubC: 2,
		MLevel0Cluster: 2,
		NLevel0Cluster: 2,
		MLevel1Cluster: 1,
		NLevel1Cluster: 2,
		KPerThreadLoop: 3,
		DataPerReadA:   2,
		DataPerReadB:   2,
	}
}

func randomSlice(rng *rand.Rand, n int) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = rng.Float64()*2 - 1
	}
	return values
}

func TestBatchedGemm(t *testing.T) {
	cfg := testGemmConfig()
	g := must.M1(NewBatchedGemm[float64, float64](cfg))
	rng := rand.New(rand.NewPCG(42, 0))
	a := randomSlice(rng, cfg.K*cfg.M)
	b := randomSlice(rng, cfg.BatchSize*cfg.K*cfg.N)

	// Run every thread twice (accumulation) and scatter its registers into the block matrix.
	got := make([][]float64, cfg.BatchSize)
	written := make([][]int, cfg.BatchSize)
	for batch := range got {
		got[batch] = make([]float64, cfg.M*cfg.N)
		written[batch] = make([]int, cfg.M*cfg.N)
	}
	for threadID := range cfg.BlockSize {
		th := g.NewThread(threadID)
		c := make([]float64, g.ThreadCSize())
		g.Run(th, a, b, c)
		g.Run(th, a, b, c)
		begin := th.Begin()
		for batchIdx := range cfg.BatchPerThread {
			for m := range cfg.MPerThread {
				for n := range cfg.NPerThread {
					row := begin.Row + g.ThreadRowToBlock(m)
					col := begin.Col + g.ThreadColumnToBlock(n)
					got[begin.Batch+batchIdx][row*cfg.N+col] = c[batchIdx*cfg.BatchStrideC+m*cfg.RowStrideC+n]
					written[begin.Batch+batchIdx][row*cfg.N+col]++
				}
			}
		}
	}

	// Coverage: every element of every batch owned by exactly one thread.
	for batch := range written {
		for i, count := range written[batch] {
			require.Equal(t, 1, count, "batch %d, element (%d, %d)", batch, i/cfg.N, i%cfg.N)
		}
	}

	// Values: 2·Aᵗ·B, with gonum as the oracle.
	aMat := mat.NewDense(cfg.K, cfg.M, a)
	for batch := range cfg.BatchSize {
		bMat := mat.NewDense(cfg.K, cfg.N, b[batch*cfg.BatchStrideB:(batch+1)*cfg.BatchStrideB])
		var want mat.Dense
		want.Mul(aMat.T(), bMat)
		want.Scale(2, &want)
		gotMat := mat.NewDense(cfg.M, cfg.N, got[batch])
		assert.True(t, mat.EqualApprox(&want, gotMat, 1e-12), "batch %d:\nwant %v\n got %v", batch,
			mat.Formatted(&want), mat.Formatted(gotMat))
	}
}

func TestBatchedGemmDeterminism(t *testing.T) {
	cfg := testGemmConfig()
	g := must.M1(NewBatchedGemm[float32, float32](cfg))
	rng := rand.New(rand.NewPCG(7, 0))
	a := make([]float32, cfg.K*cfg.M)
	b := make([]float32, cfg.BatchSize*cfg.K*cfg.N)
	for i := range a {
		a[i] = rng.Float32()
	}
	for i := range b {
		b[i] = rng.Float32()
	}
	for threadID := range cfg.BlockSize {
		c0 := make([]float32, g.ThreadCSize())
		c1 := make([]float32, g.ThreadCSize())
		g.Run(g.NewThread(threadID), a, b, c0)
		g.Run(g.NewThread(threadID), a, b, c1)
		require.Equal(t, c0, c1)
	}
}

func TestThreadMatrixCBegin(t *testing.T) {
	g := must.M1(NewBatchedGemm[float32, float32](testGemmConfig()))
	// Thread 0 is at the origin; thread 1 is the next column of the level-0 cluster; thread 2 the
	// next row; thread 4 the next level-1 cluster along N; thread 8 the next batch.
	assert.Equal(t, MatrixIndex{0, 0, 0}, g.ThreadMatrixCBegin(0))
	assert.Equal(t, MatrixIndex{0, 0, 2}, g.ThreadMatrixCBegin(1))
	assert.Equal(t, MatrixIndex{0, 2, 0}, g.ThreadMatrixCBegin(2))
	assert.Equal(t, MatrixIndex{0, 0, 4}, g.ThreadMatrixCBegin(4))
	assert.Equal(t, MatrixIndex{1, 0, 0}, g.ThreadMatrixCBegin(8))
	assert.Equal(t, 4, g.ThreadRowToBlock(2)) // Second repetition along M.
	require.Panics(t, func() { g.ThreadMatrixCBegin(16) })
}

func TestNewBatchedGemmErrors(t *testing.T) {
	for name, modify := range map[string]func(cfg *GemmConfig){
		"block size":         func(cfg *GemmConfig) { cfg.BlockSize = 8 },
		"M repeat":           func(cfg *GemmConfig) { cfg.M = 12 },
		"N repeat":           func(cfg *GemmConfig) { cfg.N = 4 },
		"K per thread loop":  func(cfg *GemmConfig) { cfg.KPerThreadLoop = 4 },
		"data per read A":    func(cfg *GemmConfig) { cfg.DataPerReadA = 4 },
		"data per read B":    func(cfg *GemmConfig) { cfg.RowStrideB = 9 },
		"batch per thread":   func(cfg *GemmConfig) { cfg.BatchPerThread = 3 },
		"thread sub-tile":    func(cfg *GemmConfig) { cfg.MPerThread = 3 },
		"non-positive value": func(cfg *GemmConfig) { cfg.NLevel1Cluster = 0 },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := testGemmConfig()
			modify(&cfg)
			_, err := NewBatchedGemm[float32, float32](cfg)
			require.Error(t, err)
		})
	}
}
