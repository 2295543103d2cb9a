// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gridwise

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/igemm/pkg/core/tensordesc"
	"github.com/pkg/errors"
)

// KHWN is a 4-tuple over the output dimensions: output channels, output height, output width
// and batch.
//
// Depending on the context it holds sizes, tile indices or element coordinates.
type KHWN struct {
	K, Ho, Wo, N int
}

// String implements fmt.Stringer.
func (t KHWN) String() string {
	return fmt.Sprintf("(K=%d, Ho=%d, Wo=%d, N=%d)", t.K, t.Ho, t.Wo, t.N)
}

func (t KHWN) slice() []int { return []int{t.K, t.Ho, t.Wo, t.N} }

// Partitioner maps block ids to the tile of the output each block computes.
//
// The blocks are enumerated as the packed 4D index space [K/KPerBlock, Ho/HoPerBlock,
// Wo/WoPerBlock, N/NPerBlock], the block id is its row-major linear index.
type Partitioner struct {
	sizes, tile KHWN
	blocks      tensordesc.Descriptor
}

// NewPartitioner returns a Partitioner of the output of the given sizes in tiles of the given
// lengths. Every size must be a multiple of the tile length.
func NewPartitioner(sizes, tile KHWN) (*Partitioner, error) {
	sizesSlice, tileSlice := sizes.slice(), tile.slice()
	numBlocks := make([]int, 4)
	for dim := range numBlocks {
		if sizesSlice[dim] <= 0 || tileSlice[dim] <= 0 || sizesSlice[dim]%tileSlice[dim] != 0 {
			return nil, errors.Errorf("gridwise.NewPartitioner: output sizes %s must be positive multiples of the tile %s",
				sizes, tile)
		}
		numBlocks[dim] = sizesSlice[dim] / tileSlice[dim]
	}
	return &Partitioner{
		sizes:  sizes,
		tile:   tile,
		blocks: tensordesc.MakePacked(numBlocks...),
	}, nil
}

// NumBlocks is the number of blocks (tiles) of the grid.
func (p *Partitioner) NumBlocks() int { return p.blocks.ElementSize() }

// Tile returns the tile lengths.
func (p *Partitioner) Tile() KHWN { return p.tile }

// BlocksPerDim returns the number of blocks along each dimension.
func (p *Partitioner) BlocksPerDim() KHWN {
	return KHWN{K: p.blocks.Length(0), Ho: p.blocks.Length(1), Wo: p.blocks.Length(2), N: p.blocks.Length(3)}
}

// BlockWork returns the tile indices of the given block.
func (p *Partitioner) BlockWork(blockID int) KHWN {
	if blockID < 0 || blockID >= p.NumBlocks() {
		exceptions.Panicf("gridwise.Partitioner: block id %d out of range [0, %d)", blockID, p.NumBlocks())
	}
	idx := p.blocks.MultiIndexFrom1D(blockID)
	return KHWN{K: idx[0], Ho: idx[1], Wo: idx[2], N: idx[3]}
}

// BlockID is the inverse of BlockWork.
func (p *Partitioner) BlockID(work KHWN) int {
	return p.blocks.OneDFromMultiIndex(work.slice()...)
}

// Origin returns the coordinates of the first output element of the tile.
func (p *Partitioner) Origin(work KHWN) KHWN {
	return KHWN{
		K:  work.K * p.tile.K,
		Ho: work.Ho * p.tile.Ho,
		Wo: work.Wo * p.tile.Wo,
		N:  work.N * p.tile.N,
	}
}
