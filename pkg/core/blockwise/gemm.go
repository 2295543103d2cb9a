// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package blockwise

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/igemm/pkg/core/numeric"
	"github.com/pkg/errors"
)

// GemmConfig configures a BatchedGemm: C[batch][M, N] += Aᵗ[batch][K, M] · B[batch][K, N], where
// A and B are in the block's shared buffer and C is split among the threads' registers.
//
// K is the reduction dimension, M the rows and N the columns of the block's C matrix.
//
// The threads are arranged in two levels of clusters: a level-0 cluster of
// MLevel0Cluster x NLevel0Cluster threads, each owning a MPerThreadSubC x NPerThreadSubC
// sub-tile, and a level-1 cluster of MLevel1Cluster x NLevel1Cluster level-0 clusters. The
// level-1 cluster is repeated MRepeat x NRepeat times to cover the block's M x N matrix, and each
// thread owns the sub-tiles at the same position in every repetition.
type GemmConfig struct {
	BlockSize int

	// K, M, N are the reduction, rows and columns dimensions of the block matrices.
	K, M, N int

	// RowStrideA and RowStrideB are the distances between consecutive K rows of A and B.
	RowStrideA, RowStrideB int

	// BatchStrideA and BatchStrideB are the distances between batches. Use 0 for an operand shared
	// by all batches.
	BatchStrideA, BatchStrideB int

	// BatchSize is the number of batches in the block, BatchPerThread the number of them each
	// thread processes.
	BatchSize, BatchPerThread int

	// MPerThread and NPerThread are the dimensions of each thread's C matrix, a multiple of the
	// sub-tile dimensions.
	MPerThread, NPerThread int

	// RowStrideC and BatchStrideC are the strides of the thread's C matrix in registers.
	RowStrideC, BatchStrideC int

	MPerThreadSubC, NPerThreadSubC int
	MLevel0Cluster, NLevel0Cluster int
	MLevel1Cluster, NLevel1Cluster int

	// KPerThreadLoop is the number of K rows each thread loads into registers per inner step.
	KPerThreadLoop int

	// DataPerReadA and DataPerReadB are the vector widths of the reads from A and B.
	DataPerReadA, DataPerReadB int
}

// MatrixIndex is the position of an element in a batch of matrices.
type MatrixIndex struct {
	Batch, Row, Col int
}

// BatchedGemm is a block-cooperative batched matrix-multiply-accumulate of shared operands
// (element type T) into register accumulators (type A).
//
// It is immutable and shared by all threads of all blocks; each thread creates its own
// GemmThread with NewThread.
type BatchedGemm[T numeric.Element, A numeric.Accumulator] struct {
	cfg              GemmConfig
	mRepeat, nRepeat int

	threadsPerLevel0, threadsPerLevel1 int
	mPerLevel0, nPerLevel0             int
	mPerLevel1, nPerLevel1             int
	load                               func(T) A
}

// NewBatchedGemm validates the configuration and returns a BatchedGemm.
func NewBatchedGemm[T numeric.Element, A numeric.Accumulator](cfg GemmConfig) (*BatchedGemm[T, A], error) {
	for _, p := range []struct {
		name  string
		value int
	}{
		{"BlockSize", cfg.BlockSize}, {"K", cfg.K}, {"M", cfg.M}, {"N", cfg.N},
		{"BatchSize", cfg.BatchSize}, {"BatchPerThread", cfg.BatchPerThread},
		{"MPerThread", cfg.MPerThread}, {"NPerThread", cfg.NPerThread},
		{"MPerThreadSubC", cfg.MPerThreadSubC}, {"NPerThreadSubC", cfg.NPerThreadSubC},
		{"MLevel0Cluster", cfg.MLevel0Cluster}, {"NLevel0Cluster", cfg.NLevel0Cluster},
		{"MLevel1Cluster", cfg.MLevel1Cluster}, {"NLevel1Cluster", cfg.NLevel1Cluster},
		{"KPerThreadLoop", cfg.KPerThreadLoop}, {"DataPerReadA", cfg.DataPerReadA}, {"DataPerReadB", cfg.DataPerReadB},
	} {
		if p.value <= 0 {
			return nil, errors.Errorf("blockwise.NewBatchedGemm: %s=%d must be > 0", p.name, p.value)
		}
	}
	if cfg.BatchSize%cfg.BatchPerThread != 0 {
		return nil, errors.Errorf("blockwise.NewBatchedGemm: BatchSize=%d not divisible by BatchPerThread=%d",
			cfg.BatchSize, cfg.BatchPerThread)
	}
	if cfg.MPerThread%cfg.MPerThreadSubC != 0 || cfg.NPerThread%cfg.NPerThreadSubC != 0 {
		return nil, errors.Errorf("blockwise.NewBatchedGemm: thread matrix %dx%d not divisible by sub-tile %dx%d",
			cfg.MPerThread, cfg.NPerThread, cfg.MPerThreadSubC, cfg.NPerThreadSubC)
	}
	g := &BatchedGemm[T, A]{
		cfg:              cfg,
		mRepeat:          cfg.MPerThread / cfg.MPerThreadSubC,
		nRepeat:          cfg.NPerThread / cfg.NPerThreadSubC,
		threadsPerLevel0: cfg.MLevel0Cluster * cfg.NLevel0Cluster,
		mPerLevel0:       cfg.MPerThreadSubC * cfg.MLevel0Cluster,
		nPerLevel0:       cfg.NPerThreadSubC * cfg.NLevel0Cluster,
	}
	g.threadsPerLevel1 = g.threadsPerLevel0 * cfg.MLevel1Cluster * cfg.NLevel1Cluster
	g.mPerLevel1 = g.mPerLevel0 * cfg.MLevel1Cluster
	g.nPerLevel1 = g.nPerLevel0 * cfg.NLevel1Cluster

	if want := (cfg.BatchSize / cfg.BatchPerThread) * g.threadsPerLevel1; cfg.BlockSize != want {
		return nil, errors.Errorf("blockwise.NewBatchedGemm: BlockSize=%d must be (BatchSize/BatchPerThread) x MLevel0Cluster x NLevel0Cluster x MLevel1Cluster x NLevel1Cluster = %d",
			cfg.BlockSize, want)
	}
	if cfg.M != g.mRepeat*g.mPerLevel1 {
		return nil, errors.Errorf("blockwise.NewBatchedGemm: M=%d must be MRepeat (%d) x MPerThreadSubC (%d) x MLevel0Cluster (%d) x MLevel1Cluster (%d)",
			cfg.M, g.mRepeat, cfg.MPerThreadSubC, cfg.MLevel0Cluster, cfg.MLevel1Cluster)
	}
	if cfg.N != g.nRepeat*g.nPerLevel1 {
		return nil, errors.Errorf("blockwise.NewBatchedGemm: N=%d must be NRepeat (%d) x NPerThreadSubC (%d) x NLevel0Cluster (%d) x NLevel1Cluster (%d)",
			cfg.N, g.nRepeat, cfg.NPerThreadSubC, cfg.NLevel0Cluster, cfg.NLevel1Cluster)
	}
	if cfg.K%cfg.KPerThreadLoop != 0 {
		return nil, errors.Errorf("blockwise.NewBatchedGemm: K=%d not divisible by KPerThreadLoop=%d", cfg.K, cfg.KPerThreadLoop)
	}
	if cfg.MPerThreadSubC%cfg.DataPerReadA != 0 || cfg.RowStrideA%cfg.DataPerReadA != 0 || cfg.BatchStrideA%cfg.DataPerReadA != 0 {
		return nil, errors.Errorf("blockwise.NewBatchedGemm: DataPerReadA=%d must divide MPerThreadSubC=%d, RowStrideA=%d and BatchStrideA=%d",
			cfg.DataPerReadA, cfg.MPerThreadSubC, cfg.RowStrideA, cfg.BatchStrideA)
	}
	if cfg.NPerThreadSubC%cfg.DataPerReadB != 0 || cfg.RowStrideB%cfg.DataPerReadB != 0 || cfg.BatchStrideB%cfg.DataPerReadB != 0 {
		return nil, errors.Errorf("blockwise.NewBatchedGemm: DataPerReadB=%d must divide NPerThreadSubC=%d, RowStrideB=%d and BatchStrideB=%d",
			cfg.DataPerReadB, cfg.NPerThreadSubC, cfg.RowStrideB, cfg.BatchStrideB)
	}
	g.load, _ = numeric.Converters[T, A]()
	return g, nil
}

// Config returns the configuration of the BatchedGemm.
func (g *BatchedGemm[T, A]) Config() GemmConfig { return g.cfg }

// ThreadMatrixCBegin returns the position, in the block's C matrices, of the first element owned
// by the thread: the thread owns batches [Batch, Batch+BatchPerThread), and in each the
// sub-tiles starting at rows Row+i*MPerLevel1Cluster and columns Col+j*NPerLevel1Cluster.
func (g *BatchedGemm[T, A]) ThreadMatrixCBegin(threadID int) MatrixIndex {
	if threadID < 0 || threadID >= g.cfg.BlockSize {
		exceptions.Panicf("blockwise.BatchedGemm: invalid thread id %d for block size %d", threadID, g.cfg.BlockSize)
	}
	batchWorkID := threadID / g.threadsPerLevel1
	clusterID := threadID % g.threadsPerLevel1

	level1ID := clusterID / g.threadsPerLevel0
	level1M := level1ID / g.cfg.NLevel1Cluster
	level1N := level1ID % g.cfg.NLevel1Cluster

	level0ID := clusterID % g.threadsPerLevel0
	level0M := level0ID / g.cfg.NLevel0Cluster
	level0N := level0ID % g.cfg.NLevel0Cluster

	return MatrixIndex{
		Batch: batchWorkID * g.cfg.BatchPerThread,
		Row:   level1M*g.mPerLevel0 + level0M*g.cfg.MPerThreadSubC,
		Col:   level1N*g.nPerLevel0 + level0N*g.cfg.NPerThreadSubC,
	}
}

// ThreadRowToBlock converts a row of the thread's C matrix to the offset of the corresponding
// block row from ThreadMatrixCBegin().Row.
func (g *BatchedGemm[T, A]) ThreadRowToBlock(row int) int {
	return (row/g.cfg.MPerThreadSubC)*g.mPerLevel1 + row%g.cfg.MPerThreadSubC
}

// ThreadColumnToBlock converts a column of the thread's C matrix to the offset of the
// corresponding block column from ThreadMatrixCBegin().Col.
func (g *BatchedGemm[T, A]) ThreadColumnToBlock(col int) int {
	return (col/g.cfg.NPerThreadSubC)*g.nPerLevel1 + col%g.cfg.NPerThreadSubC
}

// ThreadCSize is the number of registers needed for the thread's C matrices.
func (g *BatchedGemm[T, A]) ThreadCSize() int {
	cfg := g.cfg
	return (cfg.BatchPerThread-1)*cfg.BatchStrideC + (cfg.MPerThread-1)*cfg.RowStrideC + cfg.NPerThread
}

// GemmThread holds the registers one thread uses to run the BatchedGemm.
type GemmThread[A numeric.Accumulator] struct {
	begin MatrixIndex

	// aRegs[k*MPerThread+m] and bRegs[k*NPerThread+n] hold KPerThreadLoop rows of A and B.
	aRegs, bRegs []A
}

// NewThread returns the register state for thread threadID.
func (g *BatchedGemm[T, A]) NewThread(threadID int) *GemmThread[A] {
	return &GemmThread[A]{
		begin: g.ThreadMatrixCBegin(threadID),
		aRegs: make([]A, g.cfg.KPerThreadLoop*g.cfg.MPerThread),
		bRegs: make([]A, g.cfg.KPerThreadLoop*g.cfg.NPerThread),
	}
}

// Begin returns the thread's ThreadMatrixCBegin.
func (th *GemmThread[A]) Begin() MatrixIndex { return th.begin }

// Run accumulates the thread's part of Aᵗ·B into c (the thread's C matrices, with the
// configured RowStrideC and BatchStrideC).
//
// The accumulation order is fixed: for each batch, K is consumed in increasing order, so results
// are bit-for-bit reproducible.
func (g *BatchedGemm[T, A]) Run(th *GemmThread[A], a, b []T, c []A) {
	cfg := &g.cfg
	mSub, nSub := cfg.MPerThreadSubC, cfg.NPerThreadSubC
	for batchIdx := range cfg.BatchPerThread {
		batch := th.begin.Batch + batchIdx
		aBatch := batch * cfg.BatchStrideA
		bBatch := batch * cfg.BatchStrideB
		cBatch := c[batchIdx*cfg.BatchStrideC:]
		for k0 := 0; k0 < cfg.K; k0 += cfg.KPerThreadLoop {
			// Load KPerThreadLoop rows of the thread's sub-tiles of A and B into registers, in
			// vectors of DataPerReadA/DataPerReadB.
			for k := range cfg.KPerThreadLoop {
				aRow := aBatch + (k0+k)*cfg.RowStrideA + th.begin.Row
				aRegs := th.aRegs[k*cfg.MPerThread:]
				for mRepeat := range g.mRepeat {
					src := a[aRow+mRepeat*g.mPerLevel1:]
					dst := aRegs[mRepeat*mSub:]
					for m0 := 0; m0 < mSub; m0 += cfg.DataPerReadA {
						for v := range cfg.DataPerReadA {
							dst[m0+v] = g.load(src[m0+v])
						}
					}
				}
				bRow := bBatch + (k0+k)*cfg.RowStrideB + th.begin.Col
				bRegs := th.bRegs[k*cfg.NPerThread:]
				for nRepeat := range g.nRepeat {
					src := b[bRow+nRepeat*g.nPerLevel1:]
					dst := bRegs[nRepeat*nSub:]
					for n0 := 0; n0 < nSub; n0 += cfg.DataPerReadB {
						for v := range cfg.DataPerReadB {
							dst[n0+v] = g.load(src[n0+v])
						}
					}
				}
			}

			// Outer products of the loaded rows.
			for k := range cfg.KPerThreadLoop {
				aRegs := th.aRegs[k*cfg.MPerThread : (k+1)*cfg.MPerThread]
				bRegs := th.bRegs[k*cfg.NPerThread : (k+1)*cfg.NPerThread]
				for m, aValue := range aRegs {
					cRow := cBatch[m*cfg.RowStrideC : m*cfg.RowStrideC+cfg.NPerThread]
					for n, bValue := range bRegs {
						cRow[n] += aValue * bValue
					}
				}
			}
		}
	}
}
